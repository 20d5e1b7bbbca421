package order

import (
	"github.com/sokoline/sokoline/internal/order/repository"
	orderservice "github.com/sokoline/sokoline/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(orderservice.NewService),
)
