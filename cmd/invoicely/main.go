package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicely/internal/ai"
	"github.com/smallbiznis/invoicely/internal/audit"
	"github.com/smallbiznis/invoicely/internal/auth"
	"github.com/smallbiznis/invoicely/internal/authorization"
	"github.com/smallbiznis/invoicely/internal/billing"
	"github.com/smallbiznis/invoicely/internal/blog"
	"github.com/smallbiznis/invoicely/internal/clock"
	"github.com/smallbiznis/invoicely/internal/config"
	"github.com/smallbiznis/invoicely/internal/invoice"
	"github.com/smallbiznis/invoicely/internal/migration"
	"github.com/smallbiznis/invoicely/internal/observability"
	"github.com/smallbiznis/invoicely/internal/providers"
	"github.com/smallbiznis/invoicely/internal/publicinvoice"
	"github.com/smallbiznis/invoicely/internal/quota"
	"github.com/smallbiznis/invoicely/internal/ratelimit"
	"github.com/smallbiznis/invoicely/internal/server"
	"github.com/smallbiznis/invoicely/internal/user"
	"github.com/smallbiznis/invoicely/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,
		providers.Module,

		// Functional Domains
		user.Module,
		quota.Module,
		audit.Module,
		invoice.Module,
		publicinvoice.Module,
		ai.Module,
		billing.Module,
		blog.Module,
		auth.Module,
		authorization.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
