package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertSale records one sale credit line, reporting false when the
	// (order_item_id, vendor_id) pair already holds a credit.
	InsertSale(ctx context.Context, db *gorm.DB, vt *VendorTransaction) (bool, error)

	// InsertWithdrawalTransaction records the negative disbursement line,
	// reporting false when the withdrawal id is already referenced.
	InsertWithdrawalTransaction(ctx context.Context, db *gorm.DB, vt *VendorTransaction) (bool, error)

	FindTransactionByWithdrawalID(ctx context.Context, db *gorm.DB, withdrawalID snowflake.ID) (*VendorTransaction, error)
	ListTransactions(ctx context.Context, db *gorm.DB, vendorID snowflake.ID, limit, offset int) ([]VendorTransaction, error)

	// CreditBalance upserts the vendor balance row and adds amount to
	// available and total_earned.
	CreditBalance(ctx context.Context, db *gorm.DB, vendorID snowflake.ID, amount int64, currency string, now time.Time) error

	// DebitBalance subtracts amount, guarded so available never goes
	// negative; reports false when the guard blocked the write.
	DebitBalance(ctx context.Context, db *gorm.DB, vendorID snowflake.ID, amount int64, now time.Time) (bool, error)

	FindBalance(ctx context.Context, db *gorm.DB, vendorID snowflake.ID) (*VendorBalance, error)

	InsertWithdrawal(ctx context.Context, db *gorm.DB, wr *WithdrawalRequest) error
	FindWithdrawal(ctx context.Context, db *gorm.DB, id snowflake.ID) (*WithdrawalRequest, error)

	// TransitionWithdrawal moves a request from one status to another. The
	// conditional write enforces the state machine under concurrency.
	TransitionWithdrawal(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to WithdrawalStatus, externalID, failureReason string, processedAt *time.Time) (bool, error)

	ListWithdrawals(ctx context.Context, db *gorm.DB, vendorID snowflake.ID, limit, offset int) ([]WithdrawalRequest, error)
	FindByStatus(ctx context.Context, db *gorm.DB, status WithdrawalStatus, limit int) ([]WithdrawalRequest, error)
}
