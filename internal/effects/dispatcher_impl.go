package effects

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/sokoline/sokoline/internal/clock"
	"github.com/sokoline/sokoline/internal/config"
	"github.com/sokoline/sokoline/internal/notification"
	obsmetrics "github.com/sokoline/sokoline/internal/observability/metrics"
	orderdomain "github.com/sokoline/sokoline/internal/order/domain"
	transactiondomain "github.com/sokoline/sokoline/internal/transaction/domain"
	vendordomain "github.com/sokoline/sokoline/internal/vendors/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Policy    *config.PolicyHolder
	OrderRepo orderdomain.Repository
	VendorSvc vendordomain.Service
	Notifier  notification.Notifier
}

type dispatcher struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	policy    *config.PolicyHolder
	orderRepo orderdomain.Repository
	vendorSvc vendordomain.Service
	notifier  notification.Notifier
}

func NewDispatcher(p Params) Dispatcher {
	return &dispatcher{
		db:        p.DB,
		log:       p.Log.Named("effects"),
		genID:     p.GenID,
		clock:     p.Clock,
		policy:    p.Policy,
		orderRepo: p.OrderRepo,
		vendorSvc: p.VendorSvc,
		notifier:  p.Notifier,
	}
}

func (d *dispatcher) PaymentSucceeded(ctx context.Context, order *orderdomain.Order, tx *transactiondomain.Transaction) []error {
	if order == nil {
		return []error{orderdomain.ErrInvalidOrder}
	}
	return d.run(ctx, order)
}

func (d *dispatcher) Retry(ctx context.Context, orderID snowflake.ID) []error {
	order, err := d.orderRepo.FindByID(ctx, d.db, orderID)
	if err != nil {
		return []error{err}
	}
	if order == nil {
		return []error{orderdomain.ErrOrderNotFound}
	}
	if !order.Paid() {
		return []error{orderdomain.ErrOrderNotPaid}
	}
	return d.run(ctx, order)
}

func (d *dispatcher) run(ctx context.Context, order *orderdomain.Order) []error {
	log := d.log.With(zap.String("order_number", order.OrderNumber))

	items := order.Items
	if len(items) == 0 {
		loaded, err := d.orderRepo.FindItems(ctx, d.db, order.ID)
		if err != nil {
			return []error{err}
		}
		items = loaded
	}

	var errs []error
	fail := func(step string, err error) {
		errs = append(errs, fmt.Errorf("%s: %w", step, err))
		obsmetrics.Default().IncEffectFailure(step)
		log.Error("effect step failed", zap.String("step", step), zap.Error(err))
	}

	commissionBps := d.policy.Get().CommissionBps
	for _, item := range items {
		net := netAmount(item.SubtotalAmount, commissionBps)
		credited, err := d.vendorSvc.CreditSale(ctx, vendordomain.CreditSaleInput{
			VendorID:    item.VendorID,
			OrderID:     order.ID,
			OrderItemID: item.ID,
			NetAmount:   net,
			Currency:    item.Currency,
			Description: "Sale " + order.OrderNumber + ": " + item.ProductName,
		})
		if err != nil {
			fail("vendor_credit", err)
			continue
		}
		if credited {
			log.Info("vendor credit written",
				zap.Int64("vendor_id", int64(item.VendorID)),
				zap.Int64("net_amount", net),
			)
		}
	}

	for _, item := range items {
		if !item.Digital {
			continue
		}
		delivered, err := insertDelivery(ctx, d.db, &FulfillmentDelivery{
			ID:          d.genID.Generate(),
			OrderItemID: item.ID,
			OrderID:     order.ID,
			Recipient:   order.CustomerEmail,
			DeliveredAt: d.clock.Now(),
		})
		if err != nil {
			fail("digital_fulfillment", err)
			continue
		}
		if delivered {
			d.notifier.Notify(ctx, notification.Event{
				Type: notification.EventDigitalDelivery,
				Data: map[string]any{
					"order_number": order.OrderNumber,
					"product_name": item.ProductName,
					"download_url": item.DownloadURL,
					"recipient":    order.CustomerEmail,
				},
			})
		}
	}

	d.notifier.Notify(ctx, notification.Event{
		Type: notification.EventPaymentSuccess,
		Data: map[string]any{
			"order_number": order.OrderNumber,
			"amount":       order.TotalAmount,
			"currency":     order.Currency,
		},
	})
	d.notifier.Notify(ctx, notification.Event{
		Type: notification.EventOrderConfirmation,
		Data: map[string]any{
			"order_number":   order.OrderNumber,
			"customer_email": order.CustomerEmail,
			"total_amount":   order.TotalAmount,
			"currency":       order.Currency,
		},
	})

	return errs
}

// netAmount is the vendor share after the marketplace commission, floored in
// the platform's favor.
func netAmount(subtotal, commissionBps int64) int64 {
	commission := subtotal * commissionBps / 10000
	return subtotal - commission
}

var Module = fx.Module("effects",
	fx.Provide(NewDispatcher),
)
