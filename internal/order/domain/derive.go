package domain

import (
	transactiondomain "github.com/sokoline/sokoline/internal/transaction/domain"
)

// Derivation is the fixed mapping from a ledger transaction status to the
// order status pair it implies.
type Derivation struct {
	Status        Status
	PaymentStatus PaymentStatus
}

var derivations = map[transactiondomain.Status]Derivation{
	transactiondomain.StatusSuccess:   {StatusConfirmed, PaymentPaid},
	transactiondomain.StatusFailed:    {StatusCancelled, PaymentFailed},
	transactiondomain.StatusCancelled: {StatusCancelled, PaymentCancelled},
}

// Derive returns the order status pair implied by a transaction status. The
// second return is false for non-terminal statuses, which leave the order
// untouched.
func Derive(status transactiondomain.Status) (Derivation, bool) {
	d, ok := derivations[status]
	return d, ok
}
