package service

import (
	"context"

	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	"github.com/smallbiznis/invoicely/internal/invoice/render"
)

// RenderHTML produces the printable document shared by every PDF backend.
func (s *Service) RenderHTML(ctx context.Context, invoice *invoicedomain.Invoice) (string, error) {
	if invoice == nil {
		return "", invoicedomain.ErrInvoiceNotFound
	}
	if s.renderer == nil {
		return "", invoicedomain.ErrRendererUnavailable
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.renderer.RenderHTML(render.BuildInput(invoice))
}
