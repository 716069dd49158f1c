package render

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"
	"strings"
	"time"
)

const invoiceHTMLTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Invoice {{.Invoice.Number}}</title>
  <style>
    :root { --accent: {{.Template.PrimaryColor}}; }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      padding: 32px;
      font-family: "{{.Template.FontFamily}}", Helvetica, Arial, sans-serif;
      color: #1f2937;
      background: #ffffff;
    }
    .sheet { max-width: 780px; margin: 0 auto; }
    .top { display: flex; justify-content: space-between; align-items: flex-start; margin-bottom: 36px; }
    .brand { font-size: 22px; font-weight: 700; color: var(--accent); }
    .doc-title { text-align: right; }
    .doc-title h1 { margin: 0; font-size: 28px; letter-spacing: 1px; text-transform: uppercase; }
    .muted { color: #6b7280; font-size: 12px; }
    .parties { display: flex; gap: 32px; margin-bottom: 32px; }
    .party { flex: 1; font-size: 13px; line-height: 1.5; }
    .caption { font-size: 11px; font-weight: 600; text-transform: uppercase; color: #6b7280; margin-bottom: 6px; }
    .dates { flex: 0 0 200px; font-size: 13px; }
    table { width: 100%; border-collapse: collapse; margin-bottom: 24px; }
    th { text-align: left; font-size: 11px; text-transform: uppercase; color: #6b7280; border-bottom: 2px solid var(--accent); padding: 8px 0; }
    td { padding: 12px 0; border-bottom: 1px solid #e5e7eb; font-size: 13px; vertical-align: top; }
    .num { text-align: right; }
    .summary { margin-left: auto; width: 280px; font-size: 13px; }
    .summary div { display: flex; justify-content: space-between; padding: 4px 0; }
    .summary .grand { border-top: 1px solid #e5e7eb; margin-top: 8px; padding-top: 8px; font-size: 16px; font-weight: 700; }
    .notes { margin-top: 40px; font-size: 12px; color: #4b5563; white-space: pre-line; }
  </style>
</head>
<body>
  <div class="sheet">
    <div class="top">
      <div>
        <div class="brand">{{.Company.Name}}</div>
        {{if .Company.Address}}<div class="muted">{{.Company.Address}}</div>{{end}}
        {{if .Company.Email}}<div class="muted">{{.Company.Email}}</div>{{end}}
        {{if .Company.Phone}}<div class="muted">{{.Company.Phone}}</div>{{end}}
        {{if .Company.TaxID}}<div class="muted">Tax ID {{.Company.TaxID}}</div>{{end}}
      </div>
      <div class="doc-title">
        <h1>Invoice</h1>
        <div class="muted">{{.Invoice.Number}}</div>
        <div class="muted">{{.Invoice.Status}}</div>
      </div>
    </div>

    <div class="parties">
      <div class="party">
        <div class="caption">Bill to</div>
        <strong>{{.Client.Name}}</strong><br>
        {{if .Client.Email}}{{.Client.Email}}<br>{{end}}
        {{if .Client.Address}}{{.Client.Address}}{{end}}
      </div>
      <div class="dates">
        <div class="caption">Issued</div>
        <div>{{formatDate .Invoice.IssueDate}}</div>
        <div class="caption" style="margin-top: 12px;">Due</div>
        <div>{{formatDate .Invoice.DueDate}}</div>
      </div>
    </div>

    <table>
      <thead>
        <tr>
          <th style="width: 52%;">Description</th>
          <th class="num">Qty</th>
          <th class="num">Unit price</th>
          <th class="num">Amount</th>
        </tr>
      </thead>
      <tbody>
        {{range .Items}}
        <tr>
          <td>{{.Description}}</td>
          <td class="num">{{formatQuantity .Quantity}}</td>
          <td class="num">{{formatMoney .UnitPrice $.Invoice.Currency}}</td>
          <td class="num">{{formatMoney .Amount $.Invoice.Currency}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>

    <div class="summary">
      <div><span>Subtotal</span><span>{{formatMoney .Invoice.Subtotal .Invoice.Currency}}</span></div>
      {{if .Invoice.TaxAmount}}
      <div><span>Tax ({{formatQuantity .Invoice.TaxRate}}%)</span><span>{{formatMoney .Invoice.TaxAmount .Invoice.Currency}}</span></div>
      {{end}}
      <div class="grand"><span>Total</span><span>{{formatMoney .Invoice.Total .Invoice.Currency}}</span></div>
    </div>

    {{if .Invoice.Notes}}
    <div class="notes">{{.Invoice.Notes}}</div>
    {{end}}
  </div>
</body>
</html>
`

var (
	hexColorPattern  = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	fontFamilyFilter = regexp.MustCompile(`^[A-Za-z0-9 \-]+$`)
)

type HTMLRenderer struct {
	tpl *template.Template
}

func NewRenderer() Renderer {
	funcs := template.FuncMap{
		"formatMoney":    FormatMoney,
		"formatDate":     FormatDate,
		"formatQuantity": FormatQuantity,
	}
	return &HTMLRenderer{
		tpl: template.Must(template.New("invoice").Funcs(funcs).Parse(invoiceHTMLTemplate)),
	}
}

func (r *HTMLRenderer) RenderHTML(input RenderInput) (string, error) {
	input.Template.PrimaryColor = sanitizeColor(input.Template.PrimaryColor)
	input.Template.FontFamily = sanitizeFont(input.Template.FontFamily)
	if strings.TrimSpace(input.Company.Name) == "" {
		input.Company.Name = "Invoice"
	}

	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, input); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FormatMoney prints minor units as "USD 1,234.50".
func FormatMoney(amount int64, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "USD"
	}
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s %s%s.%02d", currency, sign, groupThousands(amount/100), amount%100)
}

func FormatDate(value *time.Time) string {
	if value == nil || value.IsZero() {
		return "-"
	}
	return value.UTC().Format("2006-01-02")
}

func FormatQuantity(value float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", value), "0"), ".")
}

func groupThousands(v int64) string {
	s := fmt.Sprintf("%d", v)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func sanitizeColor(value string) string {
	trimmed := strings.TrimSpace(value)
	if hexColorPattern.MatchString(trimmed) {
		return trimmed
	}
	return "#111827"
}

func sanitizeFont(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed != "" && fontFamilyFilter.MatchString(trimmed) {
		return trimmed
	}
	return "Inter"
}
