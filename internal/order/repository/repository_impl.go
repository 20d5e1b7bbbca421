package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sokoline/sokoline/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order, items []domain.OrderItem) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(
			`INSERT INTO orders (
				id, order_number, reference, customer_email, customer_name,
				status, payment_status, fulfillment_status,
				total_amount, currency, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			order.ID,
			order.OrderNumber,
			order.Reference,
			order.CustomerEmail,
			order.CustomerName,
			order.Status,
			order.PaymentStatus,
			order.FulfillmentStatus,
			order.TotalAmount,
			order.Currency,
			order.CreatedAt,
			order.UpdatedAt,
		)
		if res.Error != nil {
			return res.Error
		}
		for _, item := range items {
			res := tx.Exec(
				`INSERT INTO order_items (
					id, order_id, vendor_id, product_name, digital, download_url,
					quantity, unit_amount, subtotal_amount, currency, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				item.ID,
				item.OrderID,
				item.VendorID,
				item.ProductName,
				item.Digital,
				item.DownloadURL,
				item.Quantity,
				item.UnitAmount,
				item.SubtotalAmount,
				item.Currency,
				item.CreatedAt,
			)
			if res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_number, reference, customer_email, customer_name,
			status, payment_status, fulfillment_status,
			total_amount, currency, created_at, updated_at
		 FROM orders
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

func (r *repo) FindItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.OrderItem, error) {
	var items []domain.OrderItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, vendor_id, product_name, digital, download_url,
			quantity, unit_amount, subtotal_amount, currency, created_at
		 FROM order_items
		 WHERE order_id = ?
		 ORDER BY id`,
		orderID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateStatuses(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, payment domain.PaymentStatus, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, payment_status = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		payment,
		now,
		id,
	).Error
}

func (r *repo) UpdateFulfillment(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, fulfillment domain.FulfillmentStatus, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, fulfillment_status = ?, updated_at = ?
		 WHERE id = ? AND payment_status = ?`,
		status,
		fulfillment,
		now,
		id,
		domain.PaymentPaid,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
