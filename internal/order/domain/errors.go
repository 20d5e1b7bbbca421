package domain

import "errors"

var (
	ErrOrderNotFound    = errors.New("order_not_found")
	ErrOrderNotPaid     = errors.New("order_not_paid")
	ErrInvalidOrder     = errors.New("invalid_order")
	ErrInvalidItems     = errors.New("invalid_order_items")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrInvalidCustomer  = errors.New("invalid_customer")
	ErrItemNotFound     = errors.New("order_item_not_found")
	ErrAlreadyDelivered = errors.New("order_already_delivered")
)
