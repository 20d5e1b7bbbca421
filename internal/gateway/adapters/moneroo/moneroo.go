package moneroo

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sokoline/sokoline/internal/gateway/domain"
	obsmetrics "github.com/sokoline/sokoline/internal/observability/metrics"
	transactiondomain "github.com/sokoline/sokoline/internal/transaction/domain"
)

const providerName = "moneroo"

const signatureHeader = "X-Moneroo-Signature"

// statusTable is the fixed Moneroo status vocabulary. Unmapped inputs
// normalize to pending.
var statusTable = map[string]transactiondomain.Status{
	"pending":    transactiondomain.StatusPending,
	"initiated":  transactiondomain.StatusInitiated,
	"processing": transactiondomain.StatusInitiated,
	"success":    transactiondomain.StatusSuccess,
	"successful": transactiondomain.StatusSuccess,
	"succeeded":  transactiondomain.StatusSuccess,
	"completed":  transactiondomain.StatusSuccess,
	"failed":     transactiondomain.StatusFailed,
	"declined":   transactiondomain.StatusFailed,
	"error":      transactiondomain.StatusFailed,
	"cancelled":  transactiondomain.StatusCancelled,
	"canceled":   transactiondomain.StatusCancelled,
	"expired":    transactiondomain.StatusCancelled,
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	apiKey := strings.TrimSpace(cfg.APIKey)
	if baseURL == "" || apiKey == "" {
		return nil, domain.ErrInvalidConfig
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Adapter{
		baseURL:       baseURL,
		apiKey:        apiKey,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		httpClient:    httpClient,
	}, nil
}

type Adapter struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	httpClient    *http.Client
}

func (a *Adapter) Provider() string { return providerName }

func (a *Adapter) NormalizeStatus(raw string) transactiondomain.Status {
	return transactiondomain.Normalize(statusTable, raw)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initPaymentData struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkout_url"`
}

type verifyData struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type payoutData struct {
	ID string `json:"id"`
}

func (a *Adapter) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.PaymentIntent, error) {
	payload := map[string]any{
		"amount":      req.Amount,
		"currency":    req.Currency,
		"description": req.Description,
		"customer": map[string]string{
			"email":      req.Customer.Email,
			"first_name": req.Customer.FirstName,
			"last_name":  req.Customer.LastName,
		},
		"return_url": req.ReturnURL,
		"metadata":   req.Metadata,
	}

	raw, err := a.do(ctx, http.MethodPost, "/v1/payments/initialize", payload, "create_payment")
	if err != nil {
		return nil, err
	}

	var data initPaymentData
	if err := json.Unmarshal(raw.Data, &data); err != nil {
		return nil, &domain.TransportError{Provider: providerName, Operation: "create_payment", Err: err}
	}
	if strings.TrimSpace(data.ID) == "" {
		return nil, &domain.RejectedError{Provider: providerName, Operation: "create_payment", Status: http.StatusOK, Message: "missing payment id in response"}
	}

	return &domain.PaymentIntent{
		ExternalID:  data.ID,
		CheckoutURL: data.CheckoutURL,
		Raw:         raw.Data,
	}, nil
}

func (a *Adapter) VerifyPayment(ctx context.Context, externalID string) (*domain.VerifyResult, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, &domain.RejectedError{Provider: providerName, Operation: "verify_payment", Status: http.StatusBadRequest, Message: "empty transaction id"}
	}

	raw, err := a.do(ctx, http.MethodGet, "/v1/payments/"+externalID+"/verify", nil, "verify_payment")
	if err != nil {
		return nil, err
	}

	var data verifyData
	if err := json.Unmarshal(raw.Data, &data); err != nil {
		return nil, &domain.TransportError{Provider: providerName, Operation: "verify_payment", Err: err}
	}

	return &domain.VerifyResult{
		Status: data.Status,
		Raw:    raw.Data,
	}, nil
}

func (a *Adapter) CreateDisbursement(ctx context.Context, req domain.DisbursementRequest) (*domain.DisbursementResult, error) {
	payload := map[string]any{
		"amount":   req.Amount,
		"currency": req.Currency,
		"method":   req.Destination.Method,
		"recipient": map[string]string{
			"msisdn": req.Destination.Msisdn,
			"name":   req.Destination.Name,
		},
		"metadata": req.Metadata,
	}

	raw, err := a.do(ctx, http.MethodPost, "/v1/payouts/initialize", payload, "create_disbursement")
	if err != nil {
		return nil, err
	}

	var data payoutData
	if err := json.Unmarshal(raw.Data, &data); err != nil {
		return nil, &domain.TransportError{Provider: providerName, Operation: "create_disbursement", Err: err}
	}
	if strings.TrimSpace(data.ID) == "" {
		return nil, &domain.RejectedError{Provider: providerName, Operation: "create_disbursement", Status: http.StatusOK, Message: "missing payout id in response"}
	}

	return &domain.DisbursementResult{
		ExternalID: data.ID,
		Raw:        raw.Data,
	}, nil
}

func (a *Adapter) VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	_ = ctx
	if a.webhookSecret == "" {
		return domain.ErrInvalidConfig
	}
	signature := strings.TrimSpace(headers.Get(signatureHeader))
	if signature == "" {
		return domain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

type webhookBody struct {
	Event string `json:"event"`
	Data  struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

func (a *Adapter) ParseWebhook(ctx context.Context, payload []byte) (*domain.WebhookEvent, error) {
	_ = ctx
	var body webhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(body.Data.ID) == "" {
		return nil, domain.ErrInvalidPayload
	}

	status := body.Data.Status
	if status == "" {
		// Some events carry the status only in the event name, e.g.
		// "payment.success".
		if idx := strings.LastIndex(body.Event, "."); idx >= 0 {
			status = body.Event[idx+1:]
		}
	}

	return &domain.WebhookEvent{
		ExternalID: body.Data.ID,
		Status:     status,
		Raw:        payload,
	}, nil
}

func (a *Adapter) do(ctx context.Context, method, path string, payload any, operation string) (*envelope, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", operation, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	obsmetrics.Default().ObserveGatewayCall(providerName, operation, time.Since(start))
	if err != nil {
		obsmetrics.Default().IncGatewayError(providerName, operation, "transport")
		return nil, &domain.TransportError{Provider: providerName, Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		obsmetrics.Default().IncGatewayError(providerName, operation, "transport")
		return nil, &domain.TransportError{Provider: providerName, Operation: operation, Err: err}
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		obsmetrics.Default().IncGatewayError(providerName, operation, "transport")
		return nil, &domain.TransportError{
			Provider:  providerName,
			Operation: operation,
			Err:       fmt.Errorf("gateway returned %d: %s", resp.StatusCode, truncate(raw)),
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		obsmetrics.Default().IncGatewayError(providerName, operation, "rejected")
		return nil, &domain.RejectedError{
			Provider:  providerName,
			Operation: operation,
			Status:    resp.StatusCode,
			Message:   rejectionMessage(raw),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &domain.TransportError{Provider: providerName, Operation: operation, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &env, nil
}

func rejectionMessage(raw []byte) string {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && strings.TrimSpace(env.Message) != "" {
		return env.Message
	}
	return truncate(raw)
}

func truncate(raw []byte) string {
	const max = 512
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}
