package quota

import (
	"github.com/smallbiznis/invoicely/internal/quota/repository"
	"github.com/smallbiznis/invoicely/internal/quota/service"
	"go.uber.org/fx"
)

var Module = fx.Module("quota.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
