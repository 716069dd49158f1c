package pdf

import (
	"context"

	"github.com/smallbiznis/invoicely/internal/config"
	publicinvoicedomain "github.com/smallbiznis/invoicely/internal/publicinvoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("pdf.provider",
	fx.Provide(
		fx.Annotate(newPrimary, fx.ResultTags(`name:"pdf_primary"`)),
		fx.Annotate(newFallback, fx.ResultTags(`name:"pdf_fallback"`)),
		NewArchiver,
		NewGenerator,
		func(g *Generator) publicinvoicedomain.PDFRenderer { return g },
	),
)

// newPrimary picks the configured backend. Maroto as primary leaves no
// fallback step.
func newPrimary(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Renderer {
	if cfg.PDF.Renderer != config.PDFRendererChromium {
		return nil
	}
	r := NewChromiumRenderer(cfg.PDF.ChromeBin, cfg.PDF.MaxTabs, log)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return r.Close() },
	})
	return r
}

func newFallback() Renderer {
	return NewMarotoRenderer()
}
