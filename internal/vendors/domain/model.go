package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// VendorBalance is the per-vendor money aggregate. Mutated only by sale
// credits and withdrawal debits; available_amount never goes negative.
type VendorBalance struct {
	VendorID        snowflake.ID `gorm:"column:vendor_id;primaryKey" json:"vendor_id"`
	AvailableAmount int64        `gorm:"column:available_amount" json:"available_amount"`
	PendingAmount   int64        `gorm:"column:pending_amount" json:"pending_amount"`
	TotalEarned     int64        `gorm:"column:total_earned" json:"total_earned"`
	TotalWithdrawn  int64        `gorm:"column:total_withdrawn" json:"total_withdrawn"`
	Currency        string       `gorm:"column:currency" json:"currency"`
	UpdatedAt       time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

func (VendorBalance) TableName() string { return "vendor_balances" }

type TransactionType string

const (
	TypeSale       TransactionType = "sale"
	TypeWithdrawal TransactionType = "withdrawal"
)

// VendorTransaction is one ledger line on a vendor balance. Sale amounts are
// positive, withdrawal amounts negative. The unique (order_item_id, vendor_id)
// pair guards double credit; the unique withdrawal_id guards double
// disbursement.
type VendorTransaction struct {
	ID           snowflake.ID    `gorm:"column:id;primaryKey" json:"id"`
	VendorID     snowflake.ID    `gorm:"column:vendor_id" json:"vendor_id"`
	Type         TransactionType `gorm:"column:type" json:"type"`
	Amount       int64           `gorm:"column:amount" json:"amount"`
	Currency     string          `gorm:"column:currency" json:"currency"`
	OrderID      *snowflake.ID   `gorm:"column:order_id" json:"order_id,omitempty"`
	OrderItemID  *snowflake.ID   `gorm:"column:order_item_id" json:"order_item_id,omitempty"`
	WithdrawalID *snowflake.ID   `gorm:"column:withdrawal_id" json:"withdrawal_id,omitempty"`
	Description  string          `gorm:"column:description" json:"description"`
	CreatedAt    time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (VendorTransaction) TableName() string { return "vendor_transactions" }

// WithdrawalStatus state machine: pending -> approved -> processed|rejected.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalApproved  WithdrawalStatus = "approved"
	WithdrawalProcessed WithdrawalStatus = "processed"
	WithdrawalRejected  WithdrawalStatus = "rejected"
)

type WithdrawalRequest struct {
	ID            snowflake.ID     `gorm:"column:id;primaryKey" json:"id"`
	VendorID      snowflake.ID     `gorm:"column:vendor_id" json:"vendor_id"`
	Amount        int64            `gorm:"column:amount" json:"amount"`
	Currency      string           `gorm:"column:currency" json:"currency"`
	Provider      string           `gorm:"column:provider" json:"provider"`
	Method        string           `gorm:"column:method" json:"method"`
	Msisdn        string           `gorm:"column:msisdn" json:"msisdn"`
	AccountName   string           `gorm:"column:account_name" json:"account_name"`
	Status        WithdrawalStatus `gorm:"column:status" json:"status"`
	ExternalID    string           `gorm:"column:external_id" json:"external_id,omitempty"`
	FailureReason string           `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	RequestedAt   time.Time        `gorm:"column:requested_at" json:"requested_at"`
	ProcessedAt   *time.Time       `gorm:"column:processed_at" json:"processed_at,omitempty"`
}

func (WithdrawalRequest) TableName() string { return "withdrawal_requests" }
