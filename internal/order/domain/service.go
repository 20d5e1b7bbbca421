package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	transactiondomain "github.com/sokoline/sokoline/internal/transaction/domain"
)

type CreateItemInput struct {
	VendorID    snowflake.ID `json:"vendor_id"`
	ProductName string       `json:"product_name"`
	Digital     bool         `json:"digital"`
	DownloadURL string       `json:"download_url"`
	Quantity    int          `json:"quantity"`
	UnitAmount  int64        `json:"unit_amount"`
}

type CreateOrderInput struct {
	CustomerEmail string            `json:"customer_email"`
	CustomerName  string            `json:"customer_name"`
	Currency      string            `json:"currency"`
	Items         []CreateItemInput `json:"items"`
}

type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*Order, error)
	Get(ctx context.Context, id snowflake.ID) (*Order, error)

	// ApplyTransactionStatus derives and writes the order status pair for a
	// terminal transaction status. Non-terminal statuses are a no-op.
	ApplyTransactionStatus(ctx context.Context, orderID snowflake.ID, status transactiondomain.Status) (*Order, error)

	MarkShipped(ctx context.Context, orderID snowflake.ID) (*Order, error)
	MarkDelivered(ctx context.Context, orderID snowflake.ID) (*Order, error)
}
