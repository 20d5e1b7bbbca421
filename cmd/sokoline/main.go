package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/sokoline/sokoline/internal/clock"
	"github.com/sokoline/sokoline/internal/migration"
	"github.com/sokoline/sokoline/internal/observability"
	"github.com/sokoline/sokoline/internal/reconcile"
	"github.com/sokoline/sokoline/internal/server"
	"github.com/sokoline/sokoline/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// server.Module pulls in every domain module, reconcile included.
		server.Module,

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
