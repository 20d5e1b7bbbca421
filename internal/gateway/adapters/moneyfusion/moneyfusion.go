package moneyfusion

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

const providerName = "moneyfusion"

const signatureHeader = "X-Fusion-Signature"

// statusTable is the fixed MoneyFusion status vocabulary. The provider speaks
// "paid" / "no paid" rather than success/failed. Unmapped inputs normalize to
// pending.
var statusTable = map[string]transactiondomain.Status{
	"pending":   transactiondomain.StatusPending,
	"initiated": transactiondomain.StatusInitiated,
	"paid":      transactiondomain.StatusSuccess,
	"no paid":   transactiondomain.StatusFailed,
	"failure":   transactiondomain.StatusFailed,
	"cancelled": transactiondomain.StatusCancelled,
	"canceled":  transactiondomain.StatusCancelled,
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

type createResponse struct {
	Statut  bool   `json:"statut"`
	Token   string `json:"token"`
	Message string `json:"message"`
	URL     string `json:"url"`
}

type statusResponse struct {
	Statut bool `json:"statut"`
	Data   struct {
		TokenPay string `json:"tokenPay"`
		Statut   string `json:"statut"`
		Montant  int64  `json:"montant"`
	} `json:"data"`
	Message string `json:"message"`
}

type transferResponse struct {
	Statut    bool   `json:"statut"`
	Reference string `json:"reference"`
	Message   string `json:"message"`
}

func (a *Adapter) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.PaymentIntent, error) {
	payload := map[string]any{
		"totalPrice": req.Amount,
		"devise":     req.Currency,
		"article": []map[string]any{
			{"sokoline_order": req.Amount},
		},
		"personal_Info": []map[string]any{
			{"email": req.Customer.Email, "name": req.Customer.FirstName + " " + req.Customer.LastName},
		},
		"nomclient":  req.Customer.LastName,
		"return_url": req.ReturnURL,
		"webhook":    req.WebhookURL,
	}

	raw, err := a.do(ctx, http.MethodPost, "/api/v1/payment", payload, "create_payment")
	if err != nil {
		return nil, err
	}

	var resp createResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &domain.TransportError{Provider: providerName, Operation: "create_payment", Err: err}
	}
	if !resp.Statut || strings.TrimSpace(resp.Token) == "" {
		return nil, &domain.RejectedError{Provider: providerName, Operation: "create_payment", Status: http.StatusOK, Message: nonEmpty(resp.Message, "payment refused")}
	}

	return &domain.PaymentIntent{
		ExternalID:  resp.Token,
		CheckoutURL: resp.URL,
		Raw:         raw,
	}, nil
}

func (a *Adapter) VerifyPayment(ctx context.Context, externalID string) (*domain.VerifyResult, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, &domain.RejectedError{Provider: providerName, Operation: "verify_payment", Status: http.StatusBadRequest, Message: "empty payment token"}
	}

	raw, err := a.do(ctx, http.MethodGet, "/api/v1/paiementNotif/"+externalID, nil, "verify_payment")
	if err != nil {
		return nil, err
	}

	var resp statusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &domain.TransportError{Provider: providerName, Operation: "verify_payment", Err: err}
	}

	return &domain.VerifyResult{
		Status: resp.Data.Statut,
		Raw:    raw,
	}, nil
}

func (a *Adapter) CreateDisbursement(ctx context.Context, req domain.DisbursementRequest) (*domain.DisbursementResult, error) {
	payload := map[string]any{
		"montant":    req.Amount,
		"devise":     req.Currency,
		"numero":     req.Destination.Msisdn,
		"nomclient":  req.Destination.Name,
		"mode":       req.Destination.Method,
		"motif":      "vendor withdrawal",
		"references": req.Metadata,
	}

	raw, err := a.do(ctx, http.MethodPost, "/api/v1/transfert", payload, "create_disbursement")
	if err != nil {
		return nil, err
	}

	var resp transferResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &domain.TransportError{Provider: providerName, Operation: "create_disbursement", Err: err}
	}
	if !resp.Statut || strings.TrimSpace(resp.Reference) == "" {
		return nil, &domain.RejectedError{Provider: providerName, Operation: "create_disbursement", Status: http.StatusOK, Message: nonEmpty(resp.Message, "transfer refused")}
	}

	return &domain.DisbursementResult{
		ExternalID: resp.Reference,
		Raw:        raw,
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
	TokenPay string `json:"tokenPay"`
	Statut   string `json:"statut"`
	Event    string `json:"event"`
}

func (a *Adapter) ParseWebhook(ctx context.Context, payload []byte) (*domain.WebhookEvent, error) {
	_ = ctx
	var body webhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(body.TokenPay) == "" {
		return nil, domain.ErrInvalidPayload
	}

	return &domain.WebhookEvent{
		ExternalID: body.TokenPay,
		Status:     body.Statut,
		Raw:        payload,
	}, nil
}

func (a *Adapter) do(ctx context.Context, method, path string, payload any, operation string) ([]byte, error) {
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
			Message:   truncate(raw),
		}
	}
	return raw, nil
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func truncate(raw []byte) string {
	const max = 512
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}
