package domain

import "errors"

var (
	ErrVendorNotFound      = errors.New("vendor_not_found")
	ErrWithdrawalNotFound  = errors.New("withdrawal_not_found")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrInvalidWithdrawal   = errors.New("invalid_withdrawal")
	ErrInvalidTransition   = errors.New("invalid_withdrawal_transition")
)
