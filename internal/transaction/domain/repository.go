package domain

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tx *Transaction) error
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Transaction, error)

	// UpdateStatusFrom transitions externalID from the previously observed
	// status to a new one. The conditional write is the at-most-once guard:
	// it reports false when the row moved underneath the caller.
	UpdateStatusFrom(ctx context.Context, db *gorm.DB, externalID string, from, to Status, raw datatypes.JSON, now time.Time) (bool, error)

	// FindStuck returns non-terminal transactions not updated since cutoff,
	// oldest first, capped at limit.
	FindStuck(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Transaction, error)

	RecordConflict(ctx context.Context, db *gorm.DB, conflict *StatusConflict) error
	ListConflicts(ctx context.Context, db *gorm.DB, limit, offset int) ([]StatusConflict, error)
}
