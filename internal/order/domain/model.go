package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the order lifecycle status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// PaymentStatus tracks the money side of the order independently of
// fulfillment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentRefunded  PaymentStatus = "refunded"
)

type FulfillmentStatus string

const (
	FulfillmentUnfulfilled FulfillmentStatus = "unfulfilled"
	FulfillmentShipped     FulfillmentStatus = "shipped"
	FulfillmentDelivered   FulfillmentStatus = "delivered"
)

// Order is one customer purchase. Created at checkout, mutated only through
// transaction status application or explicit vendor fulfillment actions,
// never deleted.
type Order struct {
	ID                snowflake.ID      `gorm:"column:id;primaryKey" json:"id"`
	OrderNumber       string            `gorm:"column:order_number" json:"order_number"`
	Reference         string            `gorm:"column:reference" json:"reference"`
	CustomerEmail     string            `gorm:"column:customer_email" json:"customer_email"`
	CustomerName      string            `gorm:"column:customer_name" json:"customer_name"`
	Status            Status            `gorm:"column:status" json:"status"`
	PaymentStatus     PaymentStatus     `gorm:"column:payment_status" json:"payment_status"`
	FulfillmentStatus FulfillmentStatus `gorm:"column:fulfillment_status" json:"fulfillment_status"`
	TotalAmount       int64             `gorm:"column:total_amount" json:"total_amount"`
	Currency          string            `gorm:"column:currency" json:"currency"`
	CreatedAt         time.Time         `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"column:updated_at" json:"updated_at"`

	Items []OrderItem `gorm:"-" json:"items,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

type OrderItem struct {
	ID             snowflake.ID `gorm:"column:id;primaryKey" json:"id"`
	OrderID        snowflake.ID `gorm:"column:order_id" json:"order_id"`
	VendorID       snowflake.ID `gorm:"column:vendor_id" json:"vendor_id"`
	ProductName    string       `gorm:"column:product_name" json:"product_name"`
	Digital        bool         `gorm:"column:digital" json:"digital"`
	DownloadURL    string       `gorm:"column:download_url" json:"download_url,omitempty"`
	Quantity       int          `gorm:"column:quantity" json:"quantity"`
	UnitAmount     int64        `gorm:"column:unit_amount" json:"unit_amount"`
	SubtotalAmount int64        `gorm:"column:subtotal_amount" json:"subtotal_amount"`
	Currency       string       `gorm:"column:currency" json:"currency"`
	CreatedAt      time.Time    `gorm:"column:created_at" json:"created_at"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// Paid reports whether the order's payment has been captured.
func (o *Order) Paid() bool {
	return o != nil && o.PaymentStatus == PaymentPaid
}
