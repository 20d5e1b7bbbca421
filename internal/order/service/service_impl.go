package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/sokoline/sokoline/internal/clock"
	"github.com/sokoline/sokoline/internal/order/domain"
	transactiondomain "github.com/sokoline/sokoline/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("order.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, input domain.CreateOrderInput) (*domain.Order, error) {
	input.CustomerEmail = strings.TrimSpace(strings.ToLower(input.CustomerEmail))
	if input.CustomerEmail == "" || !strings.Contains(input.CustomerEmail, "@") {
		return nil, domain.ErrInvalidCustomer
	}
	input.Currency = strings.ToUpper(strings.TrimSpace(input.Currency))
	if input.Currency == "" {
		return nil, domain.ErrInvalidCurrency
	}
	if len(input.Items) == 0 {
		return nil, domain.ErrInvalidItems
	}

	now := s.clock.Now()
	orderID := s.genID.Generate()

	var total int64
	items := make([]domain.OrderItem, 0, len(input.Items))
	for _, in := range input.Items {
		if in.VendorID == 0 || strings.TrimSpace(in.ProductName) == "" {
			return nil, domain.ErrInvalidItems
		}
		if in.Quantity <= 0 || in.UnitAmount <= 0 {
			return nil, domain.ErrInvalidAmount
		}
		subtotal := in.UnitAmount * int64(in.Quantity)
		total += subtotal
		items = append(items, domain.OrderItem{
			ID:             s.genID.Generate(),
			OrderID:        orderID,
			VendorID:       in.VendorID,
			ProductName:    strings.TrimSpace(in.ProductName),
			Digital:        in.Digital,
			DownloadURL:    strings.TrimSpace(in.DownloadURL),
			Quantity:       in.Quantity,
			UnitAmount:     in.UnitAmount,
			SubtotalAmount: subtotal,
			Currency:       input.Currency,
			CreatedAt:      now,
		})
	}

	order := &domain.Order{
		ID:                orderID,
		OrderNumber:       "SK-" + orderID.String(),
		Reference:         uuid.NewString(),
		CustomerEmail:     input.CustomerEmail,
		CustomerName:      strings.TrimSpace(input.CustomerName),
		Status:            domain.StatusPending,
		PaymentStatus:     domain.PaymentPending,
		FulfillmentStatus: domain.FulfillmentUnfulfilled,
		TotalAmount:       total,
		Currency:          input.Currency,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Insert(ctx, s.db, order, items); err != nil {
		return nil, err
	}
	order.Items = items

	s.log.Info("order created",
		zap.String("order_number", order.OrderNumber),
		zap.Int64("total_amount", order.TotalAmount),
		zap.Int("items", len(items)),
	)
	return order, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	items, err := s.repo.FindItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (s *Service) ApplyTransactionStatus(ctx context.Context, orderID snowflake.ID, status transactiondomain.Status) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	derived, terminal := domain.Derive(status)
	if !terminal {
		return order, nil
	}
	if order.Status == derived.Status && order.PaymentStatus == derived.PaymentStatus {
		return order, nil
	}

	now := s.clock.Now()
	if err := s.repo.UpdateStatuses(ctx, s.db, orderID, derived.Status, derived.PaymentStatus, now); err != nil {
		return nil, err
	}
	order.Status = derived.Status
	order.PaymentStatus = derived.PaymentStatus
	order.UpdatedAt = now

	s.log.Info("order statuses updated",
		zap.String("order_number", order.OrderNumber),
		zap.String("status", string(derived.Status)),
		zap.String("payment_status", string(derived.PaymentStatus)),
	)
	return order, nil
}

func (s *Service) MarkShipped(ctx context.Context, orderID snowflake.ID) (*domain.Order, error) {
	return s.advanceFulfillment(ctx, orderID, domain.StatusShipped, domain.FulfillmentShipped)
}

func (s *Service) MarkDelivered(ctx context.Context, orderID snowflake.ID) (*domain.Order, error) {
	return s.advanceFulfillment(ctx, orderID, domain.StatusDelivered, domain.FulfillmentDelivered)
}

func (s *Service) advanceFulfillment(ctx context.Context, orderID snowflake.ID, status domain.Status, fulfillment domain.FulfillmentStatus) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	updated, err := s.repo.UpdateFulfillment(ctx, s.db, orderID, status, fulfillment, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domain.ErrOrderNotPaid
	}

	order.Status = status
	order.FulfillmentStatus = fulfillment
	return order, nil
}
