package pdf

import (
	"context"
	"errors"
	"strings"

	"github.com/gosimple/slug"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	"github.com/smallbiznis/invoicely/internal/invoice/render"
)

var ErrRenderFailed = errors.New("pdf_render_failed")

// Document is what a backend prints. HTML backends use HTML, native
// backends lay out Input themselves.
type Document struct {
	HTML  string
	Input render.RenderInput
}

type Renderer interface {
	Name() string
	Render(ctx context.Context, doc Document) ([]byte, error)
}

// FileName is the download name for an invoice, e.g. "inv-0001-globex.pdf".
func FileName(inv *invoicedomain.Invoice) string {
	if inv == nil {
		return "invoice.pdf"
	}
	parts := []string{inv.InvoiceNumber}
	if client := strings.TrimSpace(inv.Client.Data().Name); client != "" {
		parts = append(parts, client)
	}
	name := slug.Make(strings.Join(parts, " "))
	if name == "" {
		name = "invoice"
	}
	return name + ".pdf"
}
