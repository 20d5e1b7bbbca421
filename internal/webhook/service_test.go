package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	gatewayadapters "github.com/sokoline/sokoline/internal/gateway/adapters"
	gatewaydomain "github.com/sokoline/sokoline/internal/gateway/domain"
	transactiondomain "github.com/sokoline/sokoline/internal/transaction/domain"
	"go.uber.org/zap/zaptest"
)

type stubAdapter struct {
	signatureErr error
	parseErr     error
	event        *gatewaydomain.WebhookEvent
}

func (a *stubAdapter) Provider() string { return "moneroo" }

func (a *stubAdapter) CreatePayment(ctx context.Context, req gatewaydomain.CreatePaymentRequest) (*gatewaydomain.PaymentIntent, error) {
	return nil, errors.New("not used")
}

func (a *stubAdapter) VerifyPayment(ctx context.Context, externalID string) (*gatewaydomain.VerifyResult, error) {
	return nil, errors.New("not used")
}

func (a *stubAdapter) CreateDisbursement(ctx context.Context, req gatewaydomain.DisbursementRequest) (*gatewaydomain.DisbursementResult, error) {
	return nil, errors.New("not used")
}

func (a *stubAdapter) VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	return a.signatureErr
}

func (a *stubAdapter) ParseWebhook(ctx context.Context, payload []byte) (*gatewaydomain.WebhookEvent, error) {
	if a.parseErr != nil {
		return nil, a.parseErr
	}
	return a.event, nil
}

func (a *stubAdapter) NormalizeStatus(raw string) transactiondomain.Status {
	return transactiondomain.Normalize(map[string]transactiondomain.Status{
		"completed": transactiondomain.StatusSuccess,
		"failed":    transactiondomain.StatusFailed,
	}, raw)
}

type stubFactory struct {
	adapter *stubAdapter
}

func (f *stubFactory) Provider() string { return "moneroo" }

func (f *stubFactory) NewAdapter(cfg gatewaydomain.AdapterConfig) (gatewaydomain.Adapter, error) {
	return f.adapter, nil
}

type txServiceStub struct {
	lastInput transactiondomain.ApplyInput
	result    *transactiondomain.ApplyResult
	err       error
}

func (s *txServiceStub) ApplyStatus(ctx context.Context, input transactiondomain.ApplyInput) (*transactiondomain.ApplyResult, error) {
	s.lastInput = input
	return s.result, s.err
}

func (s *txServiceStub) InitiatePayment(ctx context.Context, req transactiondomain.InitiatePaymentRequest) (*transactiondomain.Checkout, error) {
	return nil, errors.New("not used")
}

func (s *txServiceStub) ListConflicts(ctx context.Context, limit, offset int) ([]transactiondomain.StatusConflict, error) {
	return nil, nil
}

func newIngestService(t *testing.T, adapter *stubAdapter, txSvc *txServiceStub) *Service {
	t.Helper()
	registry := gatewayadapters.NewRegistry(&stubFactory{adapter: adapter})
	if err := registry.Register("moneroo", gatewaydomain.AdapterConfig{Provider: "moneroo"}); err != nil {
		t.Fatalf("register adapter: %v", err)
	}
	return NewService(Params{
		Log:      zaptest.NewLogger(t),
		Registry: registry,
		TxSvc:    txSvc,
	})
}

func TestIngestAppliesNormalizedStatus(t *testing.T) {
	payload := []byte(`{"event":"payment.completed","data":{"id":"py_1","status":"completed"}}`)
	adapter := &stubAdapter{
		event: &gatewaydomain.WebhookEvent{ExternalID: "py_1", Status: "completed", Raw: payload},
	}
	txSvc := &txServiceStub{result: &transactiondomain.ApplyResult{Status: transactiondomain.StatusSuccess, Dispatched: true}}
	svc := newIngestService(t, adapter, txSvc)

	result, err := svc.Ingest(context.Background(), "moneroo", payload, http.Header{})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !result.Dispatched {
		t.Fatalf("unexpected result: %+v", result)
	}
	if txSvc.lastInput.ExternalID != "py_1" {
		t.Fatalf("external id = %q", txSvc.lastInput.ExternalID)
	}
	if txSvc.lastInput.Status != transactiondomain.StatusSuccess {
		t.Fatalf("status = %s, want success", txSvc.lastInput.Status)
	}
	if txSvc.lastInput.Source != transactiondomain.SourceWebhook {
		t.Fatalf("source = %s, want webhook", txSvc.lastInput.Source)
	}
	var raw map[string]any
	if err := json.Unmarshal(txSvc.lastInput.RawPayload, &raw); err != nil {
		t.Fatalf("raw payload not forwarded: %v", err)
	}
}

func TestIngestUnmappedStatusStaysPending(t *testing.T) {
	adapter := &stubAdapter{
		event: &gatewaydomain.WebhookEvent{ExternalID: "py_2", Status: "weird_new_state"},
	}
	txSvc := &txServiceStub{result: &transactiondomain.ApplyResult{Status: transactiondomain.StatusPending, Noop: true}}
	svc := newIngestService(t, adapter, txSvc)

	if _, err := svc.Ingest(context.Background(), "moneroo", nil, http.Header{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if txSvc.lastInput.Status != transactiondomain.StatusPending {
		t.Fatalf("unmapped provider status normalized to %s, want pending", txSvc.lastInput.Status)
	}
}

func TestIngestRejections(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		adapter  *stubAdapter
		want     error
	}{
		{
			name:     "unknown provider",
			provider: "paypal",
			adapter:  &stubAdapter{},
			want:     gatewaydomain.ErrProviderNotFound,
		},
		{
			name:     "bad signature",
			provider: "moneroo",
			adapter:  &stubAdapter{signatureErr: gatewaydomain.ErrInvalidSignature},
			want:     gatewaydomain.ErrInvalidSignature,
		},
		{
			name:     "malformed payload",
			provider: "moneroo",
			adapter:  &stubAdapter{parseErr: gatewaydomain.ErrInvalidPayload},
			want:     gatewaydomain.ErrInvalidPayload,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txSvc := &txServiceStub{}
			svc := newIngestService(t, tt.adapter, txSvc)
			_, err := svc.Ingest(context.Background(), tt.provider, []byte("{}"), http.Header{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if txSvc.lastInput.ExternalID != "" {
				t.Fatalf("rejected webhook reached the ledger")
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unknown provider", gatewaydomain.ErrProviderNotFound, false},
		{"bad signature", gatewaydomain.ErrInvalidSignature, false},
		{"bad payload", gatewaydomain.ErrInvalidPayload, false},
		{"unknown transaction", transactiondomain.ErrUnknownTransaction, false},
		{"blocked conflict", transactiondomain.ErrConflictNotApplied, false},
		{"persistence failure", errors.New("database is locked"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
