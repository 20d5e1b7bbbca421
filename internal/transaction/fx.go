package transaction

import (
	"github.com/sokoline/sokoline/internal/transaction/repository"
	transactionservice "github.com/sokoline/sokoline/internal/transaction/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transaction.service",
	fx.Provide(repository.Provide),
	fx.Provide(transactionservice.NewService),
)
