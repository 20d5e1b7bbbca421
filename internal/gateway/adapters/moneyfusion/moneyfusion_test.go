package moneyfusion

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sokoline/sokoline/internal/gateway/domain"
	transactiondomain "github.com/sokoline/sokoline/internal/transaction/domain"
)

func newTestAdapter(t *testing.T, serverURL string) *Adapter {
	t.Helper()
	factory := NewFactory()
	adapter, err := factory.NewAdapter(domain.AdapterConfig{
		BaseURL:       serverURL,
		APIKey:        "fusion_test",
		WebhookSecret: "fusion_secret",
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter.(*Adapter)
}

func TestVerifyWebhook(t *testing.T) {
	adapter := newTestAdapter(t, "https://api.moneyfusion.test")
	payload := []byte(`{"tokenPay":"tok_1","statut":"paid"}`)

	mac := hmac.New(sha256.New, []byte("fusion_secret"))
	_, _ = mac.Write(payload)
	headers := http.Header{}
	headers.Set(signatureHeader, hex.EncodeToString(mac.Sum(nil)))

	if err := adapter.VerifyWebhook(context.Background(), payload, headers); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	headers.Set(signatureHeader, "deadbeef")
	if err := adapter.VerifyWebhook(context.Background(), payload, headers); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}
}

func TestParseWebhook(t *testing.T) {
	adapter := newTestAdapter(t, "https://api.moneyfusion.test")

	event, err := adapter.ParseWebhook(context.Background(), []byte(`{"tokenPay":"tok_1","statut":"paid"}`))
	if err != nil {
		t.Fatalf("parse webhook: %v", err)
	}
	if event.ExternalID != "tok_1" {
		t.Fatalf("expected external id tok_1, got %s", event.ExternalID)
	}
	if event.Status != "paid" {
		t.Fatalf("expected status paid, got %s", event.Status)
	}

	if _, err := adapter.ParseWebhook(context.Background(), []byte(`{"statut":"paid"}`)); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected invalid payload for missing token, got %v", err)
	}
}

func TestNormalizeStatus(t *testing.T) {
	adapter := newTestAdapter(t, "https://api.moneyfusion.test")

	tests := []struct {
		raw  string
		want transactiondomain.Status
	}{
		{"paid", transactiondomain.StatusSuccess},
		{"Paid", transactiondomain.StatusSuccess},
		{"no paid", transactiondomain.StatusFailed},
		{"failure", transactiondomain.StatusFailed},
		{"cancelled", transactiondomain.StatusCancelled},
		{"pending", transactiondomain.StatusPending},
		{"initiated", transactiondomain.StatusInitiated},
		{"weird", transactiondomain.StatusPending},
	}
	for _, tt := range tests {
		if got := adapter.NormalizeStatus(tt.raw); got != tt.want {
			t.Fatalf("normalize %q: expected %s, got %s", tt.raw, tt.want, got)
		}
	}
}

func TestCreatePayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/payment" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"statut":true,"token":"tok_9","url":"https://pay.moneyfusion.test/tok_9"}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	intent, err := adapter.CreatePayment(context.Background(), domain.CreatePaymentRequest{
		Amount:   12500,
		Currency: "XAF",
		Customer: domain.Customer{Email: "a@b.test", FirstName: "Sam", LastName: "O"},
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if intent.ExternalID != "tok_9" {
		t.Fatalf("expected external id tok_9, got %s", intent.ExternalID)
	}
}

func TestCreatePaymentRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"statut":false,"message":"devise non supportee"}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	_, err := adapter.CreatePayment(context.Background(), domain.CreatePaymentRequest{Amount: 100, Currency: "EUR"})
	if !domain.IsRejected(err) {
		t.Fatalf("expected rejection, got %v", err)
	}
	var rejected *domain.RejectedError
	if !errors.As(err, &rejected) || rejected.Message != "devise non supportee" {
		t.Fatalf("expected provider message surfaced, got %v", err)
	}
}

func TestVerifyPaymentTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	_, err := adapter.VerifyPayment(context.Background(), "tok_1")
	if !domain.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
