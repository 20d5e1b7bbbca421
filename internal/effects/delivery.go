package effects

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// FulfillmentDelivery is the idempotence record for digital fulfillment: one
// row per order item, inserted before the delivery notification goes out.
type FulfillmentDelivery struct {
	ID          snowflake.ID `gorm:"column:id;primaryKey" json:"id"`
	OrderItemID snowflake.ID `gorm:"column:order_item_id" json:"order_item_id"`
	OrderID     snowflake.ID `gorm:"column:order_id" json:"order_id"`
	Recipient   string       `gorm:"column:recipient" json:"recipient"`
	DeliveredAt time.Time    `gorm:"column:delivered_at" json:"delivered_at"`
}

func (FulfillmentDelivery) TableName() string { return "fulfillment_deliveries" }

func insertDelivery(ctx context.Context, db *gorm.DB, delivery *FulfillmentDelivery) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO fulfillment_deliveries (
			id, order_item_id, order_id, recipient, delivered_at
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (order_item_id) DO NOTHING`,
		delivery.ID,
		delivery.OrderItemID,
		delivery.OrderID,
		delivery.Recipient,
		delivery.DeliveredAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
