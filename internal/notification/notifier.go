package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sokoline/sokoline/internal/config"
	obsmetrics "github.com/sokoline/sokoline/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// EventType names the notification templates the storefront understands.
type EventType string

const (
	EventUserRegistration    EventType = "user_registration"
	EventPaymentSuccess      EventType = "payment_success"
	EventOrderConfirmation   EventType = "order_confirmation"
	EventDigitalDelivery     EventType = "digital_delivery"
	EventWithdrawalProcessed EventType = "withdrawal_processed"
)

type Event struct {
	Type EventType      `json:"type"`
	Data map[string]any `json:"data"`
}

// Notifier delivers events on a best-effort basis. Failures are logged and
// counted, never propagated: no notification outcome may affect payment state.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

type httpNotifier struct {
	url    string
	log    *zap.Logger
	client *http.Client
}

// New builds the webhook-posting notifier. With no URL configured every
// Notify is a logged no-op.
func New(p Params) Notifier {
	return &httpNotifier{
		url:    p.Config.NotificationURL,
		log:    p.Log.Named("notification"),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *httpNotifier) Notify(ctx context.Context, event Event) {
	if n.url == "" {
		n.log.Debug("notification url not configured, dropping event", zap.String("type", string(event.Type)))
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		n.log.Error("marshal notification", zap.String("type", string(event.Type)), zap.Error(err))
		obsmetrics.Default().IncNotification(string(event.Type), "error")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.log.Error("build notification request", zap.Error(err))
		obsmetrics.Default().IncNotification(string(event.Type), "error")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn("notification delivery failed", zap.String("type", string(event.Type)), zap.Error(err))
		obsmetrics.Default().IncNotification(string(event.Type), "error")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		n.log.Warn("notification rejected",
			zap.String("type", string(event.Type)),
			zap.Int("status", resp.StatusCode),
		)
		obsmetrics.Default().IncNotification(string(event.Type), "rejected")
		return
	}
	obsmetrics.Default().IncNotification(string(event.Type), "delivered")
}

var Module = fx.Module("notification",
	fx.Provide(New),
)
