package render

import (
	"time"

	"github.com/smallbiznis/invoicely/internal/invoice/domain"
)

type Renderer interface {
	RenderHTML(input RenderInput) (string, error)
}

// RenderInput is the print view of one invoice. PDF backends that do not
// consume HTML build their layout from the same fields.
type RenderInput struct {
	Invoice  InvoiceView
	Company  PartyView
	Client   PartyView
	Items    []LineItemView
	Template TemplateView
}

type InvoiceView struct {
	Number    string
	Status    string
	Currency  string
	IssueDate *time.Time
	DueDate   *time.Time
	Subtotal  int64
	TaxRate   float64
	TaxAmount int64
	Total     int64
	Notes     string
}

type PartyView struct {
	Name    string
	Email   string
	Address string
	Phone   string
	TaxID   string
}

type LineItemView struct {
	Description string
	Quantity    float64
	UnitPrice   int64
	Amount      int64
}

type TemplateView struct {
	PrimaryColor string
	FontFamily   string
}

func BuildInput(inv *domain.Invoice) RenderInput {
	company := inv.Company.Data()
	client := inv.Client.Data()
	issued := inv.IssueDate

	items := inv.Items.Data()
	views := make([]LineItemView, 0, len(items))
	for _, item := range items {
		views = append(views, LineItemView{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      item.Amount(),
		})
	}

	return RenderInput{
		Invoice: InvoiceView{
			Number:    inv.InvoiceNumber,
			Status:    string(inv.Status),
			Currency:  inv.Currency,
			IssueDate: &issued,
			DueDate:   inv.DueDate,
			Subtotal:  inv.Subtotal,
			TaxRate:   inv.TaxRate,
			TaxAmount: inv.TaxAmount,
			Total:     inv.Total,
			Notes:     inv.Notes,
		},
		Company: PartyView{
			Name:    company.Name,
			Email:   company.Email,
			Address: company.Address,
			Phone:   company.Phone,
			TaxID:   company.TaxID,
		},
		Client: PartyView{
			Name:    client.Name,
			Email:   client.Email,
			Address: client.Address,
		},
		Items: views,
	}
}
