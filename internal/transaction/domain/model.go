package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the internal transaction status vocabulary. Provider statuses are
// normalized into this set before anything else looks at them.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInitiated Status = "initiated"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further organic transition is expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s belongs to the internal vocabulary.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInitiated, StatusSuccess, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Normalize maps one provider status through the given mapping table.
// Matching is case-insensitive. Anything unmapped stays pending, never
// success.
func Normalize(table map[string]Status, raw string) Status {
	status, ok := table[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return StatusPending
	}
	return status
}

// Source tags where a status report came from.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
	SourceManual  Source = "manual"
)

// Transaction is one payment attempt against a gateway; the ledger keeps
// exactly one row per external transaction id and never deletes it.
type Transaction struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	ExternalID  string         `json:"external_id" gorm:"type:text;not null;uniqueIndex:ux_transactions_external_id"`
	Provider    string         `json:"provider" gorm:"type:text;not null"`
	OrderID     snowflake.ID   `json:"order_id" gorm:"not null;index"`
	Amount      int64          `json:"amount" gorm:"not null"`
	Currency    string         `json:"currency" gorm:"type:text;not null"`
	Status      Status         `json:"status" gorm:"type:text;not null;index"`
	RawPayload  datatypes.JSON `json:"raw_payload" gorm:"type:jsonb"`
	CheckoutURL string         `json:"checkout_url" gorm:"type:text"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"not null"`
}

func (Transaction) TableName() string { return "transactions" }

// StatusConflict records a blocked terminal-to-terminal transition for manual
// review. Insert-only.
type StatusConflict struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	ExternalID     string         `json:"external_id" gorm:"type:text;not null;index"`
	CurrentStatus  Status         `json:"current_status" gorm:"type:text;not null"`
	ReportedStatus Status         `json:"reported_status" gorm:"type:text;not null"`
	Source         Source         `json:"source" gorm:"type:text;not null"`
	RawPayload     datatypes.JSON `json:"raw_payload" gorm:"type:jsonb"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null"`
}

func (StatusConflict) TableName() string { return "transaction_conflicts" }
