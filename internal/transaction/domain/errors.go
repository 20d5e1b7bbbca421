package domain

import "errors"

var (
	// ErrUnknownTransaction is returned when a status report references an
	// external id with no ledger row. Out-of-order or foreign traffic; the
	// caller decides between log-and-ignore and alerting.
	ErrUnknownTransaction = errors.New("unknown_transaction")

	// ErrConflictNotApplied is returned when a terminal ledger status would be
	// overwritten by a different terminal status. Requires manual review;
	// downstream effects may already be irreversible.
	ErrConflictNotApplied = errors.New("conflict_not_applied")

	ErrInvalidExternalID = errors.New("invalid_external_id")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidSource     = errors.New("invalid_source")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidCurrency   = errors.New("invalid_currency")
	ErrInvalidOrder      = errors.New("invalid_order")
)
