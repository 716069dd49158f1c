package invoice

import (
	"github.com/smallbiznis/invoicely/internal/invoice/render"
	"github.com/smallbiznis/invoicely/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(render.NewRenderer),
	fx.Provide(service.NewService),
)
