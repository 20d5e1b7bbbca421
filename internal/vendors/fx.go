package vendor

import (
	"github.com/sokoline/sokoline/internal/vendors/repository"
	vendorservice "github.com/sokoline/sokoline/internal/vendors/service"
	"go.uber.org/fx"
)

var Module = fx.Module("vendor.service",
	fx.Provide(repository.Provide),
	fx.Provide(vendorservice.NewService),
)
