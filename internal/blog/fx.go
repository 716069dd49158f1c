package blog

import (
	"github.com/smallbiznis/invoicely/internal/blog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("blog.service",
	fx.Provide(service.New),
)
