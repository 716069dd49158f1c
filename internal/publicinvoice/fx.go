package publicinvoice

import (
	"github.com/smallbiznis/invoicely/internal/publicinvoice/repository"
	"github.com/smallbiznis/invoicely/internal/publicinvoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("publicinvoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
