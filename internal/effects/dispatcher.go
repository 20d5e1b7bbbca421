package effects

import (
	"context"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/sokoline/sokoline/internal/order/domain"
	transactiondomain "github.com/sokoline/sokoline/internal/transaction/domain"
)

// Dispatcher runs the downstream side effects of a captured payment: vendor
// credits, digital fulfillment, notifications. Every sub-step is idempotent;
// failures are collected, never rolled back into payment state.
type Dispatcher interface {
	// PaymentSucceeded fires after a transaction's first transition to
	// success. The returned errors are per-sub-step; the order stays paid
	// regardless.
	PaymentSucceeded(ctx context.Context, order *orderdomain.Order, tx *transactiondomain.Transaction) []error

	// Retry re-runs all sub-steps for an order. Safe by idempotence; the
	// repair path for partial failures.
	Retry(ctx context.Context, orderID snowflake.ID) []error
}
