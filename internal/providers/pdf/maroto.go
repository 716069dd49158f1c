package pdf

import (
	"context"
	"strconv"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	marotoconfig "github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/smallbiznis/invoicely/internal/invoice/render"
)

// MarotoRenderer draws the invoice natively. It needs no browser and is the
// fallback when Chromium cannot be used.
type MarotoRenderer struct{}

func NewMarotoRenderer() *MarotoRenderer {
	return &MarotoRenderer{}
}

func (r *MarotoRenderer) Name() string { return "maroto" }

func (r *MarotoRenderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in := doc.Input
	accent := parseHexColor(in.Template.PrimaryColor)

	cfg := marotoconfig.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	m := maroto.New(cfg)

	m.AddRow(14,
		text.NewCol(8, in.Company.Name, props.Text{Size: 16, Style: fontstyle.Bold, Color: accent}),
		text.NewCol(4, "INVOICE", props.Text{Size: 18, Style: fontstyle.Bold, Align: align.Right}),
	)

	m.AddRow(22,
		col.New(8).Add(partyLines(in.Company, 0)...),
		col.New(4).Add(
			text.New(in.Invoice.Number, props.Text{Size: 9, Align: align.Right}),
			text.New("Issued "+render.FormatDate(in.Invoice.IssueDate), props.Text{Top: 5, Size: 9, Align: align.Right}),
			text.New("Due "+render.FormatDate(in.Invoice.DueDate), props.Text{Top: 10, Size: 9, Align: align.Right}),
			text.New(strings.ToUpper(in.Invoice.Status), props.Text{Top: 15, Size: 8, Align: align.Right}),
		),
	)

	billTo := append([]core.Component{text.New("Bill to", props.Text{Size: 8, Style: fontstyle.Bold})}, partyLines(in.Client, 5)...)
	m.AddRow(28, col.New(12).Add(billTo...))

	m.AddRow(8,
		text.NewCol(6, "Description", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(2, "Qty", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12, props.Line{Color: accent}))

	for _, item := range in.Items {
		m.AddRow(9,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, render.FormatQuantity(item.Quantity), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, render.FormatMoney(item.UnitPrice, in.Invoice.Currency), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, render.FormatMoney(item.Amount, in.Invoice.Currency), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(8,
		col.New(7),
		text.NewCol(2, "Subtotal", props.Text{Size: 9, Top: 2}),
		text.NewCol(3, render.FormatMoney(in.Invoice.Subtotal, in.Invoice.Currency), props.Text{Size: 9, Top: 2, Align: align.Right}),
	)
	if in.Invoice.TaxRate > 0 {
		m.AddRow(7,
			col.New(7),
			text.NewCol(2, "Tax "+strconv.FormatFloat(in.Invoice.TaxRate, 'f', -1, 64)+"%", props.Text{Size: 9}),
			text.NewCol(3, render.FormatMoney(in.Invoice.TaxAmount, in.Invoice.Currency), props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(10,
		col.New(7),
		text.NewCol(2, "Total", props.Text{Size: 11, Style: fontstyle.Bold, Top: 2}),
		text.NewCol(3, render.FormatMoney(in.Invoice.Total, in.Invoice.Currency), props.Text{Size: 11, Style: fontstyle.Bold, Top: 2, Align: align.Right}),
	)

	if notes := strings.TrimSpace(in.Invoice.Notes); notes != "" {
		m.AddRow(20, text.NewCol(12, notes, props.Text{Size: 8, Top: 6}))
	}

	out, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return out.GetBytes(), nil
}

func partyLines(p render.PartyView, top float64) []core.Component {
	var lines []core.Component
	offset := top
	add := func(value string, style fontstyle.Type) {
		if strings.TrimSpace(value) == "" {
			return
		}
		lines = append(lines, text.New(value, props.Text{Size: 9, Top: offset, Style: style}))
		offset += 4.5
	}
	add(p.Name, fontstyle.Bold)
	add(p.Address, fontstyle.Normal)
	add(p.Email, fontstyle.Normal)
	add(p.Phone, fontstyle.Normal)
	if p.TaxID != "" {
		add("Tax ID "+p.TaxID, fontstyle.Normal)
	}
	return lines
}

func parseHexColor(value string) *props.Color {
	value = strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(value) == 3 {
		value = string([]byte{value[0], value[0], value[1], value[1], value[2], value[2]})
	}
	if len(value) != 6 {
		return &props.Color{Red: 17, Green: 24, Blue: 39}
	}
	rgb, err := strconv.ParseUint(value, 16, 32)
	if err != nil {
		return &props.Color{Red: 17, Green: 24, Blue: 39}
	}
	return &props.Color{
		Red:   int(rgb >> 16 & 0xff),
		Green: int(rgb >> 8 & 0xff),
		Blue:  int(rgb & 0xff),
	}
}
