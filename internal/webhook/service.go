package webhook

import (
	"context"
	"errors"
	"net/http"

	gatewayadapters "github.com/sokoline/sokoline/internal/gateway/adapters"
	gatewaydomain "github.com/sokoline/sokoline/internal/gateway/domain"
	obsmetrics "github.com/sokoline/sokoline/internal/observability/metrics"
	transactiondomain "github.com/sokoline/sokoline/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Registry *gatewayadapters.Registry
	TxSvc    transactiondomain.Service
}

// Service turns an inbound provider callback into a ledger status
// application: resolve adapter, verify signature, parse, normalize, apply.
type Service struct {
	log      *zap.Logger
	registry *gatewayadapters.Registry
	txSvc    transactiondomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		log:      p.Log.Named("webhook"),
		registry: p.Registry,
		txSvc:    p.TxSvc,
	}
}

func (s *Service) Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) (*transactiondomain.ApplyResult, error) {
	adapter, err := s.registry.Adapter(provider)
	if err != nil {
		obsmetrics.Default().IncWebhookEvent(provider, "unknown_provider")
		return nil, err
	}

	if err := adapter.VerifyWebhook(ctx, payload, headers); err != nil {
		obsmetrics.Default().IncWebhookEvent(provider, "invalid_signature")
		s.log.Warn("webhook signature rejected", zap.String("provider", provider))
		return nil, err
	}

	event, err := adapter.ParseWebhook(ctx, payload)
	if err != nil {
		obsmetrics.Default().IncWebhookEvent(provider, "invalid_payload")
		return nil, err
	}

	result, err := s.txSvc.ApplyStatus(ctx, transactiondomain.ApplyInput{
		ExternalID: event.ExternalID,
		Status:     adapter.NormalizeStatus(event.Status),
		RawPayload: event.Raw,
		Source:     transactiondomain.SourceWebhook,
	})
	obsmetrics.Default().IncWebhookEvent(provider, ingestOutcome(result, err))
	return result, err
}

func ingestOutcome(result *transactiondomain.ApplyResult, err error) string {
	switch {
	case err == nil && result != nil && result.Noop:
		return obsmetrics.OutcomeNoop
	case err == nil:
		return obsmetrics.OutcomeApplied
	case errors.Is(err, transactiondomain.ErrConflictNotApplied):
		return obsmetrics.OutcomeConflict
	case errors.Is(err, transactiondomain.ErrUnknownTransaction):
		return obsmetrics.OutcomeUnknown
	default:
		return obsmetrics.OutcomeError
	}
}

// Retryable classifies an ingest failure for the HTTP layer: only persistence
// failures warrant a provider retry. Signature and payload problems are the
// sender's fault; unknown transactions and blocked conflicts will not resolve
// by redelivery.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, gatewaydomain.ErrProviderNotFound),
		errors.Is(err, gatewaydomain.ErrInvalidSignature),
		errors.Is(err, gatewaydomain.ErrInvalidPayload),
		errors.Is(err, transactiondomain.ErrUnknownTransaction),
		errors.Is(err, transactiondomain.ErrConflictNotApplied),
		errors.Is(err, transactiondomain.ErrInvalidExternalID),
		errors.Is(err, transactiondomain.ErrInvalidStatus):
		return false
	default:
		return true
	}
}

var Module = fx.Module("webhook",
	fx.Provide(NewService),
)
