package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/sokoline/sokoline/internal/clock"
	gatewayadapters "github.com/sokoline/sokoline/internal/gateway/adapters"
	gatewaydomain "github.com/sokoline/sokoline/internal/gateway/domain"
	"github.com/sokoline/sokoline/internal/notification"
	"github.com/sokoline/sokoline/internal/vendors/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Registry *gatewayadapters.Registry
	Notifier notification.Notifier
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	registry *gatewayadapters.Registry
	notifier notification.Notifier
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("vendor.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		registry: p.Registry,
		notifier: p.Notifier,
	}
}

func (s *Service) CreditSale(ctx context.Context, input domain.CreditSaleInput) (bool, error) {
	if input.VendorID == 0 || input.OrderItemID == 0 {
		return false, domain.ErrVendorNotFound
	}
	if input.NetAmount <= 0 {
		return false, domain.ErrInvalidWithdrawal
	}

	now := s.clock.Now()
	orderID := input.OrderID
	itemID := input.OrderItemID
	credit := &domain.VendorTransaction{
		ID:          s.genID.Generate(),
		VendorID:    input.VendorID,
		Type:        domain.TypeSale,
		Amount:      input.NetAmount,
		Currency:    input.Currency,
		OrderID:     &orderID,
		OrderItemID: &itemID,
		Description: input.Description,
		CreatedAt:   now,
	}

	var inserted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inserted, err = s.repo.InsertSale(ctx, tx, credit)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		return s.repo.CreditBalance(ctx, tx, input.VendorID, input.NetAmount, input.Currency, now)
	})
	if err != nil {
		return false, err
	}

	if inserted {
		s.log.Info("vendor credited",
			zap.Int64("vendor_id", int64(input.VendorID)),
			zap.Int64("order_item_id", int64(input.OrderItemID)),
			zap.Int64("net_amount", input.NetAmount),
		)
	}
	return inserted, nil
}

func (s *Service) Balance(ctx context.Context, vendorID snowflake.ID) (*domain.VendorBalance, error) {
	balance, err := s.repo.FindBalance(ctx, s.db, vendorID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return nil, domain.ErrVendorNotFound
	}
	return balance, nil
}

func (s *Service) ListTransactions(ctx context.Context, vendorID snowflake.ID, limit, offset int) ([]domain.VendorTransaction, error) {
	return s.repo.ListTransactions(ctx, s.db, vendorID, limit, offset)
}

func (s *Service) RequestWithdrawal(ctx context.Context, input domain.WithdrawalInput) (*domain.WithdrawalRequest, error) {
	if input.VendorID == 0 || input.Amount <= 0 {
		return nil, domain.ErrInvalidWithdrawal
	}
	input.Msisdn = strings.TrimSpace(input.Msisdn)
	if input.Msisdn == "" {
		return nil, domain.ErrInvalidWithdrawal
	}
	input.Provider = strings.ToLower(strings.TrimSpace(input.Provider))
	if _, err := s.registry.Adapter(input.Provider); err != nil {
		return nil, err
	}

	balance, err := s.repo.FindBalance(ctx, s.db, input.VendorID)
	if err != nil {
		return nil, err
	}
	if balance == nil || balance.AvailableAmount < input.Amount {
		return nil, domain.ErrInsufficientBalance
	}

	wr := &domain.WithdrawalRequest{
		ID:          s.genID.Generate(),
		VendorID:    input.VendorID,
		Amount:      input.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(input.Currency)),
		Provider:    input.Provider,
		Method:      strings.TrimSpace(input.Method),
		Msisdn:      input.Msisdn,
		AccountName: strings.TrimSpace(input.AccountName),
		Status:      domain.WithdrawalPending,
		RequestedAt: s.clock.Now(),
	}
	if wr.Currency == "" {
		wr.Currency = balance.Currency
	}
	if err := s.repo.InsertWithdrawal(ctx, s.db, wr); err != nil {
		return nil, err
	}

	s.log.Info("withdrawal requested",
		zap.Int64("withdrawal_id", int64(wr.ID)),
		zap.Int64("vendor_id", int64(wr.VendorID)),
		zap.Int64("amount", wr.Amount),
	)
	return wr, nil
}

func (s *Service) ApproveWithdrawal(ctx context.Context, id snowflake.ID) (*domain.WithdrawalRequest, error) {
	wr, err := s.findWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}

	moved, err := s.repo.TransitionWithdrawal(ctx, s.db, id, domain.WithdrawalPending, domain.WithdrawalApproved, "", "", nil)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, domain.ErrInvalidTransition
	}
	wr.Status = domain.WithdrawalApproved
	return wr, nil
}

func (s *Service) RejectWithdrawal(ctx context.Context, id snowflake.ID, reason string) (*domain.WithdrawalRequest, error) {
	wr, err := s.findWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	for _, from := range []domain.WithdrawalStatus{domain.WithdrawalPending, domain.WithdrawalApproved} {
		moved, err := s.repo.TransitionWithdrawal(ctx, s.db, id, from, domain.WithdrawalRejected, "", reason, &now)
		if err != nil {
			return nil, err
		}
		if moved {
			wr.Status = domain.WithdrawalRejected
			wr.FailureReason = reason
			wr.ProcessedAt = &now
			return wr, nil
		}
	}
	return nil, domain.ErrInvalidTransition
}

func (s *Service) ProcessWithdrawal(ctx context.Context, id snowflake.ID) (*domain.WithdrawalRequest, error) {
	wr, err := s.findWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}

	switch wr.Status {
	case domain.WithdrawalProcessed, domain.WithdrawalRejected:
		// Already handled; reprocessing is a no-op.
		return wr, nil
	case domain.WithdrawalApproved:
	default:
		return nil, domain.ErrInvalidTransition
	}

	log := s.log.With(
		zap.Int64("withdrawal_id", int64(wr.ID)),
		zap.Int64("vendor_id", int64(wr.VendorID)),
		zap.Int64("amount", wr.Amount),
	)

	// Double-disbursement guard: a ledger line referencing this withdrawal
	// means the gateway call already went out on a previous attempt.
	existing, err := s.repo.FindTransactionByWithdrawalID(ctx, s.db, wr.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		now := s.clock.Now()
		if _, err := s.repo.TransitionWithdrawal(ctx, s.db, wr.ID, domain.WithdrawalApproved, domain.WithdrawalProcessed, wr.ExternalID, "", &now); err != nil {
			return nil, err
		}
		wr.Status = domain.WithdrawalProcessed
		wr.ProcessedAt = &now
		log.Warn("withdrawal already disbursed, repaired status only")
		return wr, nil
	}

	balance, err := s.repo.FindBalance(ctx, s.db, wr.VendorID)
	if err != nil {
		return nil, err
	}
	if balance == nil || balance.AvailableAmount < wr.Amount {
		return s.rejectProcessing(ctx, wr, "insufficient_balance")
	}

	adapter, err := s.registry.Adapter(wr.Provider)
	if err != nil {
		return s.rejectProcessing(ctx, wr, err.Error())
	}

	disbursement, err := adapter.CreateDisbursement(ctx, gatewaydomain.DisbursementRequest{
		Amount:   wr.Amount,
		Currency: wr.Currency,
		Destination: gatewaydomain.Destination{
			Method: wr.Method,
			Msisdn: wr.Msisdn,
			Name:   wr.AccountName,
		},
		Metadata: map[string]string{
			"withdrawal_id": wr.ID.String(),
		},
	})
	if err != nil {
		log.Warn("disbursement failed", zap.Error(err))
		return s.rejectProcessing(ctx, wr, err.Error())
	}

	now := s.clock.Now()
	withdrawalID := wr.ID
	debit := &domain.VendorTransaction{
		ID:           s.genID.Generate(),
		VendorID:     wr.VendorID,
		Type:         domain.TypeWithdrawal,
		Amount:       -wr.Amount,
		Currency:     wr.Currency,
		WithdrawalID: &withdrawalID,
		Description:  "Withdrawal to " + wr.Msisdn,
		CreatedAt:    now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.repo.InsertWithdrawalTransaction(ctx, tx, debit)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		debited, err := s.repo.DebitBalance(ctx, tx, wr.VendorID, wr.Amount, now)
		if err != nil {
			return err
		}
		if !debited {
			return domain.ErrInsufficientBalance
		}
		_, err = s.repo.TransitionWithdrawal(ctx, tx, wr.ID, domain.WithdrawalApproved, domain.WithdrawalProcessed, disbursement.ExternalID, "", &now)
		return err
	})
	if err != nil {
		return nil, err
	}

	wr.Status = domain.WithdrawalProcessed
	wr.ExternalID = disbursement.ExternalID
	wr.ProcessedAt = &now

	log.Info("withdrawal processed", zap.String("external_id", wr.ExternalID))
	s.notifier.Notify(ctx, notification.Event{
		Type: notification.EventWithdrawalProcessed,
		Data: map[string]any{
			"withdrawal_id": wr.ID.String(),
			"vendor_id":     wr.VendorID.String(),
			"amount":        wr.Amount,
			"currency":      wr.Currency,
		},
	})
	return wr, nil
}

func (s *Service) rejectProcessing(ctx context.Context, wr *domain.WithdrawalRequest, reason string) (*domain.WithdrawalRequest, error) {
	now := s.clock.Now()
	moved, err := s.repo.TransitionWithdrawal(ctx, s.db, wr.ID, domain.WithdrawalApproved, domain.WithdrawalRejected, "", reason, &now)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, domain.ErrInvalidTransition
	}
	wr.Status = domain.WithdrawalRejected
	wr.FailureReason = reason
	wr.ProcessedAt = &now
	return wr, nil
}

func (s *Service) ListWithdrawals(ctx context.Context, vendorID snowflake.ID, limit, offset int) ([]domain.WithdrawalRequest, error) {
	return s.repo.ListWithdrawals(ctx, s.db, vendorID, limit, offset)
}

func (s *Service) ListApproved(ctx context.Context, limit int) ([]domain.WithdrawalRequest, error) {
	return s.repo.FindByStatus(ctx, s.db, domain.WithdrawalApproved, limit)
}

func (s *Service) findWithdrawal(ctx context.Context, id snowflake.ID) (*domain.WithdrawalRequest, error) {
	wr, err := s.repo.FindWithdrawal(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if wr == nil {
		return nil, domain.ErrWithdrawalNotFound
	}
	return wr, nil
}
