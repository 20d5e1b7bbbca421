package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/sokoline/sokoline/internal/clock"
	"github.com/sokoline/sokoline/internal/config"
	"github.com/sokoline/sokoline/internal/effects"
	gatewayadapters "github.com/sokoline/sokoline/internal/gateway/adapters"
	gatewaydomain "github.com/sokoline/sokoline/internal/gateway/domain"
	obsmetrics "github.com/sokoline/sokoline/internal/observability/metrics"
	orderdomain "github.com/sokoline/sokoline/internal/order/domain"
	"github.com/sokoline/sokoline/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Config     config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	OrderSvc   orderdomain.Service
	Registry   *gatewayadapters.Registry
	Dispatcher effects.Dispatcher
}

type Service struct {
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	orderSvc   orderdomain.Service
	registry   *gatewayadapters.Registry
	dispatcher effects.Dispatcher
}

func NewService(p Params) domain.Service {
	return &Service{
		cfg:        p.Config,
		db:         p.DB,
		log:        p.Log.Named("transaction.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		orderSvc:   p.OrderSvc,
		registry:   p.Registry,
		dispatcher: p.Dispatcher,
	}
}

// applyAttempts bounds the reread-and-retry loop when the conditional status
// update loses a race. One retry is enough: the second read observes the
// winner's terminal write and resolves through the guards.
const applyAttempts = 2

func (s *Service) ApplyStatus(ctx context.Context, input domain.ApplyInput) (*domain.ApplyResult, error) {
	input.ExternalID = strings.TrimSpace(input.ExternalID)
	if input.ExternalID == "" {
		return nil, domain.ErrInvalidExternalID
	}
	if !input.Status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	switch input.Source {
	case domain.SourceWebhook, domain.SourcePoll, domain.SourceManual:
	default:
		return nil, domain.ErrInvalidSource
	}

	result, err := s.applyOnce(ctx, input, applyAttempts)
	outcome := outcomeFor(result, err)
	obsmetrics.Default().IncApplyStatus(string(input.Source), outcome)
	return result, err
}

func (s *Service) applyOnce(ctx context.Context, input domain.ApplyInput, attempts int) (*domain.ApplyResult, error) {
	tx, err := s.repo.FindByExternalID(ctx, s.db, input.ExternalID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, domain.ErrUnknownTransaction
	}

	log := s.log.With(
		zap.String("external_id", input.ExternalID),
		zap.String("source", string(input.Source)),
		zap.String("current_status", string(tx.Status)),
		zap.String("reported_status", string(input.Status)),
	)

	// Idempotence guard: duplicate delivery of the state we already hold.
	if tx.Status == input.Status {
		log.Debug("duplicate status report, no-op")
		return s.noopResult(ctx, tx)
	}

	if tx.Status.Terminal() {
		// A non-terminal report against a settled row is a stale replay.
		if !input.Status.Terminal() {
			log.Debug("stale non-terminal report on settled transaction, no-op")
			return s.noopResult(ctx, tx)
		}

		// Terminal conflict: two different final answers for the same
		// payment. Never overwrite; park it for manual review.
		conflict := &domain.StatusConflict{
			ID:             s.genID.Generate(),
			ExternalID:     tx.ExternalID,
			CurrentStatus:  tx.Status,
			ReportedStatus: input.Status,
			Source:         input.Source,
			RawPayload:     datatypes.JSON(input.RawPayload),
			CreatedAt:      s.clock.Now(),
		}
		if err := s.repo.RecordConflict(ctx, s.db, conflict); err != nil {
			return nil, err
		}
		log.Warn("terminal status conflict blocked", zap.Bool("alert", true))
		return nil, domain.ErrConflictNotApplied
	}

	swapped, err := s.repo.UpdateStatusFrom(ctx, s.db, tx.ExternalID, tx.Status, input.Status, datatypes.JSON(input.RawPayload), s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !swapped {
		// Lost the race: another invocation moved the row between our read
		// and write. Reread and let the guards decide.
		if attempts <= 1 {
			return nil, domain.ErrConflictNotApplied
		}
		log.Debug("conditional update lost race, rereading")
		return s.applyOnce(ctx, input, attempts-1)
	}

	order, err := s.orderSvc.ApplyTransactionStatus(ctx, tx.OrderID, input.Status)
	if err != nil {
		return nil, err
	}

	result := &domain.ApplyResult{
		Status:      input.Status,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
	}

	// Effects fire exactly on the first transition into success: the guards
	// above ensure a settled row can never swap again.
	if input.Status == domain.StatusSuccess {
		tx.Status = input.Status
		if errs := s.dispatcher.PaymentSucceeded(ctx, order, tx); len(errs) > 0 {
			for _, dispatchErr := range errs {
				log.Error("downstream effect failed", zap.Error(dispatchErr))
			}
		}
		result.Dispatched = true
	}

	log.Info("transaction status applied",
		zap.String("order_number", order.OrderNumber),
		zap.Bool("dispatched", result.Dispatched),
	)
	return result, nil
}

func (s *Service) noopResult(ctx context.Context, tx *domain.Transaction) (*domain.ApplyResult, error) {
	result := &domain.ApplyResult{
		Status:  tx.Status,
		OrderID: tx.OrderID,
		Noop:    true,
	}
	order, err := s.orderSvc.Get(ctx, tx.OrderID)
	if err == nil && order != nil {
		result.OrderNumber = order.OrderNumber
	}
	return result, nil
}

func (s *Service) InitiatePayment(ctx context.Context, req domain.InitiatePaymentRequest) (*domain.Checkout, error) {
	order, err := s.orderSvc.Get(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != orderdomain.PaymentPending {
		return nil, domain.ErrInvalidOrder
	}

	adapter, err := s.registry.Adapter(req.Provider)
	if err != nil {
		return nil, err
	}

	intent, err := adapter.CreatePayment(ctx, gatewaydomain.CreatePaymentRequest{
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		Description: "Order " + order.OrderNumber,
		ReturnURL:   s.cfg.BaseURL + "/orders/" + order.ID.String() + "/return",
		WebhookURL:  s.cfg.BaseURL + "/webhooks/payments/" + adapter.Provider(),
		Customer: gatewaydomain.Customer{
			Email:     order.CustomerEmail,
			FirstName: order.CustomerName,
		},
		Metadata: map[string]string{
			"order_id":  order.ID.String(),
			"reference": order.Reference,
		},
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	tx := &domain.Transaction{
		ID:          s.genID.Generate(),
		ExternalID:  intent.ExternalID,
		Provider:    adapter.Provider(),
		OrderID:     order.ID,
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		Status:      domain.StatusPending,
		RawPayload:  datatypes.JSON(intent.Raw),
		CheckoutURL: intent.CheckoutURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, tx); err != nil {
		return nil, err
	}

	s.log.Info("payment initiated",
		zap.String("order_number", order.OrderNumber),
		zap.String("provider", tx.Provider),
		zap.String("external_id", tx.ExternalID),
	)
	return &domain.Checkout{
		TransactionID: tx.ID,
		ExternalID:    tx.ExternalID,
		CheckoutURL:   tx.CheckoutURL,
	}, nil
}

func (s *Service) ListConflicts(ctx context.Context, limit, offset int) ([]domain.StatusConflict, error) {
	return s.repo.ListConflicts(ctx, s.db, limit, offset)
}

func outcomeFor(result *domain.ApplyResult, err error) string {
	switch {
	case err == nil && result != nil && result.Noop:
		return obsmetrics.OutcomeNoop
	case err == nil:
		return obsmetrics.OutcomeApplied
	case errors.Is(err, domain.ErrConflictNotApplied):
		return obsmetrics.OutcomeConflict
	case errors.Is(err, domain.ErrUnknownTransaction):
		return obsmetrics.OutcomeUnknown
	default:
		return obsmetrics.OutcomeError
	}
}
