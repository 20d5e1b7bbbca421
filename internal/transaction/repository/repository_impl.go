package repository

import (
	"context"
	"time"

	"github.com/sokoline/sokoline/internal/transaction/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO transactions (
			id, external_id, provider, order_id, amount, currency,
			status, raw_payload, checkout_url, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.ExternalID,
		tx.Provider,
		tx.OrderID,
		tx.Amount,
		tx.Currency,
		tx.Status,
		tx.RawPayload,
		tx.CheckoutURL,
		tx.CreatedAt,
		tx.UpdatedAt,
	).Error
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Transaction, error) {
	var item domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, external_id, provider, order_id, amount, currency,
			status, raw_payload, checkout_url, created_at, updated_at
		 FROM transactions
		 WHERE external_id = ?
		 LIMIT 1`,
		externalID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateStatusFrom(ctx context.Context, db *gorm.DB, externalID string, from, to domain.Status, raw datatypes.JSON, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET status = ?, raw_payload = COALESCE(?, raw_payload), updated_at = ?
		 WHERE external_id = ? AND status = ?`,
		to,
		raw,
		now,
		externalID,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindStuck(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.Transaction, error) {
	query := `SELECT id, external_id, provider, order_id, amount, currency,
			status, raw_payload, checkout_url, created_at, updated_at
		 FROM transactions
		 WHERE status IN (?, ?) AND updated_at < ?
		 ORDER BY updated_at ASC
		 LIMIT ?`
	if db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE SKIP LOCKED"
	}

	var items []domain.Transaction
	err := db.WithContext(ctx).Raw(
		query,
		domain.StatusPending,
		domain.StatusInitiated,
		cutoff,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) RecordConflict(ctx context.Context, db *gorm.DB, conflict *domain.StatusConflict) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO transaction_conflicts (
			id, external_id, current_status, reported_status, source,
			raw_payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conflict.ID,
		conflict.ExternalID,
		conflict.CurrentStatus,
		conflict.ReportedStatus,
		conflict.Source,
		conflict.RawPayload,
		conflict.CreatedAt,
	).Error
}

func (r *repo) ListConflicts(ctx context.Context, db *gorm.DB, limit, offset int) ([]domain.StatusConflict, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var items []domain.StatusConflict
	err := db.WithContext(ctx).Raw(
		`SELECT id, external_id, current_status, reported_status, source,
			raw_payload, created_at
		 FROM transaction_conflicts
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		limit,
		offset,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
