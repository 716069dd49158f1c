package ai

import (
	"github.com/smallbiznis/invoicely/internal/ai/client"
	"github.com/smallbiznis/invoicely/internal/ai/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ai.service",
	fx.Provide(client.New),
	fx.Provide(service.New),
)
