package domain

import (
	"context"
	"encoding/json"
	"net/http"

	transactiondomain "github.com/sokoline/sokoline/internal/transaction/domain"
)

// AdapterConfig carries one provider's credentials, resolved once at startup.
type AdapterConfig struct {
	Provider      string
	BaseURL       string
	APIKey        string
	WebhookSecret string
	HTTPClient    *http.Client
}

// Factory builds adapters for one provider.
type Factory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}

// Adapter is the outbound client for one payment provider. Calls are single
// synchronous HTTP round-trips; retry policy belongs to the caller.
type Adapter interface {
	Provider() string

	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentIntent, error)
	VerifyPayment(ctx context.Context, externalID string) (*VerifyResult, error)
	CreateDisbursement(ctx context.Context, req DisbursementRequest) (*DisbursementResult, error)

	// VerifyWebhook checks the provider signature over the raw body.
	VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) error
	// ParseWebhook extracts the external transaction id and raw provider
	// status from a callback body.
	ParseWebhook(ctx context.Context, payload []byte) (*WebhookEvent, error)

	// NormalizeStatus maps the provider status vocabulary into the internal
	// one through the adapter's fixed table.
	NormalizeStatus(raw string) transactiondomain.Status
}

type Customer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type CreatePaymentRequest struct {
	Amount      int64
	Currency    string
	Description string
	ReturnURL   string
	CancelURL   string
	WebhookURL  string
	Customer    Customer
	Metadata    map[string]string
}

type PaymentIntent struct {
	ExternalID  string
	CheckoutURL string
	Raw         json.RawMessage
}

type VerifyResult struct {
	// Status is the provider's raw status string; callers normalize it.
	Status string
	Raw    json.RawMessage
}

// Destination identifies a vendor's payout target (mobile money account).
type Destination struct {
	Method string `json:"method"`
	Msisdn string `json:"msisdn"`
	Name   string `json:"name"`
}

type DisbursementRequest struct {
	Amount      int64
	Currency    string
	Destination Destination
	Metadata    map[string]string
}

type DisbursementResult struct {
	ExternalID string
	Raw        json.RawMessage
}

type WebhookEvent struct {
	ExternalID string
	Status     string
	Raw        []byte
}
