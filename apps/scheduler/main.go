package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/sokoline/sokoline/internal/clock"
	"github.com/sokoline/sokoline/internal/config"
	"github.com/sokoline/sokoline/internal/effects"
	"github.com/sokoline/sokoline/internal/gateway"
	"github.com/sokoline/sokoline/internal/notification"
	"github.com/sokoline/sokoline/internal/observability"
	"github.com/sokoline/sokoline/internal/order"
	"github.com/sokoline/sokoline/internal/reconcile"
	"github.com/sokoline/sokoline/internal/transaction"
	vendor "github.com/sokoline/sokoline/internal/vendors"
	"github.com/sokoline/sokoline/pkg/db"
	"go.uber.org/fx"
)

// Standalone sweep worker: runs the reconciliation jobs without the HTTP
// surface, for deployments that separate serving from background work.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		gateway.Module,
		notification.Module,
		order.Module,
		transaction.Module,
		vendor.Module,
		effects.Module,
		reconcile.Module,

		fx.Invoke(StartScheduler),
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

func StartScheduler(lc fx.Lifecycle, s *reconcile.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go s.RunForever(context.Background())
			return nil
		},
	})
}
