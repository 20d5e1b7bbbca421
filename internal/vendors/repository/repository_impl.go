package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sokoline/sokoline/internal/vendors/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertSale(ctx context.Context, db *gorm.DB, vt *domain.VendorTransaction) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO vendor_transactions (
			id, vendor_id, type, amount, currency, order_id, order_item_id,
			withdrawal_id, description, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (order_item_id, vendor_id) DO NOTHING`,
		vt.ID,
		vt.VendorID,
		vt.Type,
		vt.Amount,
		vt.Currency,
		vt.OrderID,
		vt.OrderItemID,
		vt.WithdrawalID,
		vt.Description,
		vt.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertWithdrawalTransaction(ctx context.Context, db *gorm.DB, vt *domain.VendorTransaction) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO vendor_transactions (
			id, vendor_id, type, amount, currency, order_id, order_item_id,
			withdrawal_id, description, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (withdrawal_id) DO NOTHING`,
		vt.ID,
		vt.VendorID,
		vt.Type,
		vt.Amount,
		vt.Currency,
		vt.OrderID,
		vt.OrderItemID,
		vt.WithdrawalID,
		vt.Description,
		vt.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindTransactionByWithdrawalID(ctx context.Context, db *gorm.DB, withdrawalID snowflake.ID) (*domain.VendorTransaction, error) {
	var item domain.VendorTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, vendor_id, type, amount, currency, order_id, order_item_id,
			withdrawal_id, description, created_at
		 FROM vendor_transactions
		 WHERE withdrawal_id = ?
		 LIMIT 1`,
		withdrawalID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, vendorID snowflake.ID, limit, offset int) ([]domain.VendorTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var items []domain.VendorTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, vendor_id, type, amount, currency, order_id, order_item_id,
			withdrawal_id, description, created_at
		 FROM vendor_transactions
		 WHERE vendor_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		vendorID,
		limit,
		offset,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CreditBalance(ctx context.Context, db *gorm.DB, vendorID snowflake.ID, amount int64, currency string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO vendor_balances (
			vendor_id, available_amount, pending_amount, total_earned,
			total_withdrawn, currency, updated_at
		) VALUES (?, ?, 0, ?, 0, ?, ?)
		ON CONFLICT (vendor_id) DO UPDATE SET
			available_amount = vendor_balances.available_amount + excluded.available_amount,
			total_earned = vendor_balances.total_earned + excluded.total_earned,
			updated_at = excluded.updated_at`,
		vendorID,
		amount,
		amount,
		currency,
		now,
	).Error
}

func (r *repo) DebitBalance(ctx context.Context, db *gorm.DB, vendorID snowflake.ID, amount int64, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE vendor_balances
		 SET available_amount = available_amount - ?,
			total_withdrawn = total_withdrawn + ?,
			updated_at = ?
		 WHERE vendor_id = ? AND available_amount >= ?`,
		amount,
		amount,
		now,
		vendorID,
		amount,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindBalance(ctx context.Context, db *gorm.DB, vendorID snowflake.ID) (*domain.VendorBalance, error) {
	var item domain.VendorBalance
	err := db.WithContext(ctx).Raw(
		`SELECT vendor_id, available_amount, pending_amount, total_earned,
			total_withdrawn, currency, updated_at
		 FROM vendor_balances
		 WHERE vendor_id = ?
		 LIMIT 1`,
		vendorID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.VendorID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertWithdrawal(ctx context.Context, db *gorm.DB, wr *domain.WithdrawalRequest) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO withdrawal_requests (
			id, vendor_id, amount, currency, provider, method, msisdn,
			account_name, status, external_id, failure_reason,
			requested_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wr.ID,
		wr.VendorID,
		wr.Amount,
		wr.Currency,
		wr.Provider,
		wr.Method,
		wr.Msisdn,
		wr.AccountName,
		wr.Status,
		wr.ExternalID,
		wr.FailureReason,
		wr.RequestedAt,
		wr.ProcessedAt,
	).Error
}

func (r *repo) FindWithdrawal(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.WithdrawalRequest, error) {
	var item domain.WithdrawalRequest
	err := db.WithContext(ctx).Raw(
		`SELECT id, vendor_id, amount, currency, provider, method, msisdn,
			account_name, status, external_id, failure_reason,
			requested_at, processed_at
		 FROM withdrawal_requests
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) TransitionWithdrawal(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.WithdrawalStatus, externalID, failureReason string, processedAt *time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE withdrawal_requests
		 SET status = ?, external_id = ?, failure_reason = ?, processed_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		externalID,
		failureReason,
		processedAt,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListWithdrawals(ctx context.Context, db *gorm.DB, vendorID snowflake.ID, limit, offset int) ([]domain.WithdrawalRequest, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var items []domain.WithdrawalRequest
	err := db.WithContext(ctx).Raw(
		`SELECT id, vendor_id, amount, currency, provider, method, msisdn,
			account_name, status, external_id, failure_reason,
			requested_at, processed_at
		 FROM withdrawal_requests
		 WHERE vendor_id = ?
		 ORDER BY requested_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		vendorID,
		limit,
		offset,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindByStatus(ctx context.Context, db *gorm.DB, status domain.WithdrawalStatus, limit int) ([]domain.WithdrawalRequest, error) {
	if limit <= 0 {
		limit = 10
	}
	var items []domain.WithdrawalRequest
	err := db.WithContext(ctx).Raw(
		`SELECT id, vendor_id, amount, currency, provider, method, msisdn,
			account_name, status, external_id, failure_reason,
			requested_at, processed_at
		 FROM withdrawal_requests
		 WHERE status = ?
		 ORDER BY requested_at ASC
		 LIMIT ?`,
		status,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
