package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// CreditSaleInput credits a vendor for one paid order item, net of the
// marketplace commission.
type CreditSaleInput struct {
	VendorID    snowflake.ID
	OrderID     snowflake.ID
	OrderItemID snowflake.ID
	NetAmount   int64
	Currency    string
	Description string
}

type WithdrawalInput struct {
	VendorID    snowflake.ID `json:"vendor_id"`
	Amount      int64        `json:"amount"`
	Currency    string       `json:"currency"`
	Provider    string       `json:"provider"`
	Method      string       `json:"method"`
	Msisdn      string       `json:"msisdn"`
	AccountName string       `json:"account_name"`
}

type Service interface {
	// CreditSale is idempotent per (order item, vendor) pair; the bool
	// reports whether a new credit was written.
	CreditSale(ctx context.Context, input CreditSaleInput) (bool, error)

	Balance(ctx context.Context, vendorID snowflake.ID) (*VendorBalance, error)
	ListTransactions(ctx context.Context, vendorID snowflake.ID, limit, offset int) ([]VendorTransaction, error)

	RequestWithdrawal(ctx context.Context, input WithdrawalInput) (*WithdrawalRequest, error)
	ApproveWithdrawal(ctx context.Context, id snowflake.ID) (*WithdrawalRequest, error)
	RejectWithdrawal(ctx context.Context, id snowflake.ID, reason string) (*WithdrawalRequest, error)

	// ProcessWithdrawal disburses one approved request through the gateway.
	// Reprocessing a handled request is a no-op.
	ProcessWithdrawal(ctx context.Context, id snowflake.ID) (*WithdrawalRequest, error)

	ListWithdrawals(ctx context.Context, vendorID snowflake.ID, limit, offset int) ([]WithdrawalRequest, error)
	ListApproved(ctx context.Context, limit int) ([]WithdrawalRequest, error)
}
