package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// ApplyInput is one provider status report entering the reconciliation core,
// whether pushed by a webhook, pulled by the poll sweep, or forced manually.
type ApplyInput struct {
	ExternalID string
	// Status is the already-normalized internal status. Callers normalize
	// through the owning gateway adapter's mapping table first.
	Status     Status
	RawPayload []byte
	Source     Source
}

// ApplyResult reports what a status application did.
type ApplyResult struct {
	Status      Status       `json:"status"`
	OrderID     snowflake.ID `json:"order_id"`
	OrderNumber string       `json:"order_number"`
	// Noop is true for harmless duplicate deliveries of a terminal status.
	Noop bool `json:"noop"`
	// Dispatched is true when downstream effects fired for this application.
	Dispatched bool `json:"dispatched"`
}

// InitiatePaymentRequest starts a payment attempt for an order at checkout.
type InitiatePaymentRequest struct {
	OrderID  snowflake.ID
	Provider string
}

// Checkout is handed back to the storefront to redirect the customer.
type Checkout struct {
	TransactionID snowflake.ID `json:"transaction_id"`
	ExternalID    string       `json:"external_id"`
	CheckoutURL   string       `json:"checkout_url"`
}

type Service interface {
	// ApplyStatus is the single entry point for all status reports (webhook,
	// poll, manual). Safe under concurrent invocation for the same external
	// id; downstream effects fire at most once per transaction.
	ApplyStatus(ctx context.Context, input ApplyInput) (*ApplyResult, error)

	InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*Checkout, error)

	ListConflicts(ctx context.Context, limit, offset int) ([]StatusConflict, error)
}
