package pdf

import (
	"context"
	"errors"
	"fmt"
	"time"

	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	"github.com/smallbiznis/invoicely/internal/invoice/render"
	obsmetrics "github.com/smallbiznis/invoicely/internal/observability/metrics"
	"github.com/smallbiznis/invoicely/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	renderLockTTL  = time.Minute
	renderLockPoll = 100 * time.Millisecond
)

type GeneratorParams struct {
	fx.In

	Log        *zap.Logger
	HTML       render.Renderer
	Primary    Renderer            `name:"pdf_primary" optional:"true"`
	Fallback   Renderer            `name:"pdf_fallback" optional:"true"`
	Archiver   *Archiver           `optional:"true"`
	Locker     *ratelimit.Locker   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Generator turns a stored invoice into PDF bytes. The primary backend is
// tried first, the fallback only after it fails.
type Generator struct {
	log        *zap.Logger
	html       render.Renderer
	primary    Renderer
	fallback   Renderer
	archiver   *Archiver
	locker     *ratelimit.Locker
	obsMetrics *obsmetrics.Metrics
}

func NewGenerator(p GeneratorParams) *Generator {
	fallback := p.Fallback
	if fallback == nil {
		fallback = NewMarotoRenderer()
	}
	return &Generator{
		log:        p.Log.Named("pdf.generator"),
		html:       p.HTML,
		primary:    p.Primary,
		fallback:   fallback,
		archiver:   p.Archiver,
		locker:     p.Locker,
		obsMetrics: p.ObsMetrics,
	}
}

func (g *Generator) RenderInvoice(ctx context.Context, inv *invoicedomain.Invoice) ([]byte, string, error) {
	if inv == nil {
		return nil, "", invoicedomain.ErrInvoiceNotFound
	}
	name := FileName(inv)

	release, err := g.lock(ctx, inv)
	if err != nil {
		return nil, "", err
	}
	defer release()

	doc := Document{Input: render.BuildInput(inv)}
	content, err := g.render(ctx, doc)
	if err != nil {
		return nil, "", err
	}

	if key, err := g.archiver.Archive(ctx, inv.UserID, name, content); err != nil {
		g.log.Warn("pdf archive failed",
			zap.String("invoice_id", inv.ID.String()),
			zap.Error(err),
		)
	} else if key != "" {
		g.log.Debug("pdf archived", zap.String("key", key))
	}
	return content, name, nil
}

func (g *Generator) render(ctx context.Context, doc Document) ([]byte, error) {
	if g.primary != nil {
		if g.html != nil {
			html, err := g.html.RenderHTML(doc.Input)
			if err != nil {
				return nil, err
			}
			doc.HTML = html
		}
		content, err := g.primary.Render(ctx, doc)
		g.obsMetrics.RecordPDFRender(ctx, g.primary.Name(), err)
		if err == nil {
			return content, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.log.Warn("primary pdf renderer failed, using fallback",
			zap.String("renderer", g.primary.Name()),
			zap.Error(err),
		)
	}

	content, err := g.fallback.Render(ctx, doc)
	g.obsMetrics.RecordPDFRender(ctx, g.fallback.Name(), err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	return content, nil
}

// lock serialises renders of the same invoice across instances. Without
// redis the render just proceeds.
func (g *Generator) lock(ctx context.Context, inv *invoicedomain.Invoice) (func(), error) {
	noop := func() {}
	if g.locker == nil {
		return noop, nil
	}

	lease, err := g.locker.Acquire(ctx, "pdf:render:"+inv.ID.String(), renderLockTTL, renderLockPoll)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		g.log.Warn("render lock unavailable", zap.String("invoice_id", inv.ID.String()), zap.Error(err))
		return noop, nil
	}
	return func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			g.log.Warn("render lock release failed", zap.String("key", lease.Key()), zap.Error(err))
		}
	}, nil
}
