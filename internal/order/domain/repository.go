package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order, items []OrderItem) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OrderItem, error)

	// UpdateStatuses writes the derived status pair. Fulfillment status is
	// left untouched.
	UpdateStatuses(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, payment PaymentStatus, now time.Time) error

	// UpdateFulfillment advances fulfillment only when the order is paid,
	// reporting whether a row changed.
	UpdateFulfillment(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, fulfillment FulfillmentStatus, now time.Time) (bool, error)
}
