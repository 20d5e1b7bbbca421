package effects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/sokoline/sokoline/internal/clock"
	"github.com/sokoline/sokoline/internal/config"
	"github.com/sokoline/sokoline/internal/notification"
	orderdomain "github.com/sokoline/sokoline/internal/order/domain"
	orderrepository "github.com/sokoline/sokoline/internal/order/repository"
	transactiondomain "github.com/sokoline/sokoline/internal/transaction/domain"
	vendordomain "github.com/sokoline/sokoline/internal/vendors/domain"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// vendorStub lets individual credits fail to exercise partial dispatch.
type vendorStub struct {
	mu       sync.Mutex
	failFor  map[snowflake.ID]error
	credited map[snowflake.ID]int
}

func newVendorStub() *vendorStub {
	return &vendorStub{
		failFor:  map[snowflake.ID]error{},
		credited: map[snowflake.ID]int{},
	}
}

func (v *vendorStub) CreditSale(ctx context.Context, input vendordomain.CreditSaleInput) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err, ok := v.failFor[input.OrderItemID]; ok {
		return false, err
	}
	v.credited[input.OrderItemID]++
	return v.credited[input.OrderItemID] == 1, nil
}

func (v *vendorStub) Balance(ctx context.Context, vendorID snowflake.ID) (*vendordomain.VendorBalance, error) {
	return nil, vendordomain.ErrVendorNotFound
}

func (v *vendorStub) ListTransactions(ctx context.Context, vendorID snowflake.ID, limit, offset int) ([]vendordomain.VendorTransaction, error) {
	return nil, nil
}

func (v *vendorStub) RequestWithdrawal(ctx context.Context, input vendordomain.WithdrawalInput) (*vendordomain.WithdrawalRequest, error) {
	return nil, vendordomain.ErrInvalidWithdrawal
}

func (v *vendorStub) ApproveWithdrawal(ctx context.Context, id snowflake.ID) (*vendordomain.WithdrawalRequest, error) {
	return nil, vendordomain.ErrWithdrawalNotFound
}

func (v *vendorStub) RejectWithdrawal(ctx context.Context, id snowflake.ID, reason string) (*vendordomain.WithdrawalRequest, error) {
	return nil, vendordomain.ErrWithdrawalNotFound
}

func (v *vendorStub) ProcessWithdrawal(ctx context.Context, id snowflake.ID) (*vendordomain.WithdrawalRequest, error) {
	return nil, vendordomain.ErrWithdrawalNotFound
}

func (v *vendorStub) ListWithdrawals(ctx context.Context, vendorID snowflake.ID, limit, offset int) ([]vendordomain.WithdrawalRequest, error) {
	return nil, nil
}

func (v *vendorStub) ListApproved(ctx context.Context, limit int) ([]vendordomain.WithdrawalRequest, error) {
	return nil, nil
}

type notifierStub struct {
	mu     sync.Mutex
	events []notification.Event
}

func (n *notifierStub) Notify(ctx context.Context, event notification.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *notifierStub) byType(eventType notification.EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, event := range n.events {
		if event.Type == eventType {
			count++
		}
	}
	return count
}

type dispatchFixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	vendor    *vendorStub
	notifier  *notifierStub
	orderRepo orderdomain.Repository
	disp      Dispatcher
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	stmts := []string{
		`CREATE TABLE orders (
			id BIGINT PRIMARY KEY,
			order_number TEXT NOT NULL UNIQUE,
			reference TEXT NOT NULL UNIQUE,
			customer_email TEXT NOT NULL,
			customer_name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			payment_status TEXT NOT NULL,
			fulfillment_status TEXT NOT NULL,
			total_amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE order_items (
			id BIGINT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			vendor_id BIGINT NOT NULL,
			product_name TEXT NOT NULL,
			digital BOOLEAN NOT NULL DEFAULT FALSE,
			download_url TEXT NOT NULL DEFAULT '',
			quantity INTEGER NOT NULL,
			unit_amount BIGINT NOT NULL,
			subtotal_amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE fulfillment_deliveries (
			id BIGINT PRIMARY KEY,
			order_item_id BIGINT NOT NULL UNIQUE,
			order_id BIGINT NOT NULL,
			recipient TEXT NOT NULL,
			delivered_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	vendor := newVendorStub()
	notifier := &notifierStub{}
	orderRepo := orderrepository.Provide()

	disp := NewDispatcher(Params{
		DB:        db,
		Log:       zaptest.NewLogger(t),
		GenID:     node,
		Clock:     clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		Policy:    config.NewStaticPolicyHolder(config.DefaultMarketplacePolicy()),
		OrderRepo: orderRepo,
		VendorSvc: vendor,
		Notifier:  notifier,
	})

	return &dispatchFixture{db: db, node: node, vendor: vendor, notifier: notifier, orderRepo: orderRepo, disp: disp}
}

func (f *dispatchFixture) seedPaidOrder(t *testing.T, items []orderdomain.OrderItem) *orderdomain.Order {
	t.Helper()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	orderID := f.node.Generate()
	var total int64
	for i := range items {
		items[i].ID = f.node.Generate()
		items[i].OrderID = orderID
		items[i].SubtotalAmount = items[i].UnitAmount * int64(items[i].Quantity)
		items[i].Currency = "XAF"
		items[i].CreatedAt = now
		total += items[i].SubtotalAmount
	}
	order := &orderdomain.Order{
		ID:                orderID,
		OrderNumber:       "SK-" + orderID.String(),
		Reference:         orderID.String(),
		CustomerEmail:     "amina@example.cm",
		Status:            orderdomain.StatusConfirmed,
		PaymentStatus:     orderdomain.PaymentPaid,
		FulfillmentStatus: orderdomain.FulfillmentUnfulfilled,
		TotalAmount:       total,
		Currency:          "XAF",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := f.orderRepo.Insert(context.Background(), f.db, order, items); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	order.Items = items
	return order
}

func TestPaymentSucceededPartialFailure(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	order := f.seedPaidOrder(t, []orderdomain.OrderItem{
		{VendorID: f.node.Generate(), ProductName: "Ankara tote bag", Quantity: 1, UnitAmount: 3000},
		{VendorID: f.node.Generate(), ProductName: "Beat pack vol. 3", Digital: true, Quantity: 1, UnitAmount: 2000},
	})
	brokenItem := order.Items[0].ID
	f.vendor.failFor[brokenItem] = errors.New("balance write timeout")

	errs := f.disp.PaymentSucceeded(ctx, order, &transactiondomain.Transaction{OrderID: order.ID})
	if len(errs) != 1 {
		t.Fatalf("errs = %v, want exactly 1", errs)
	}

	// The healthy item was still credited and the digital item delivered.
	if f.vendor.credited[order.Items[1].ID] != 1 {
		t.Fatalf("healthy item not credited")
	}
	var deliveries int
	if err := f.db.Raw("SELECT COUNT(*) FROM fulfillment_deliveries").Scan(&deliveries).Error; err != nil {
		t.Fatalf("count deliveries: %v", err)
	}
	if deliveries != 1 {
		t.Fatalf("deliveries = %d, want 1", deliveries)
	}
	if n := f.notifier.byType(notification.EventPaymentSuccess); n != 1 {
		t.Fatalf("payment success notifications = %d, want 1", n)
	}

	// Retry after the failure clears completes the missing credit without
	// duplicating the finished steps.
	delete(f.vendor.failFor, brokenItem)
	if errs := f.disp.Retry(ctx, order.ID); len(errs) != 0 {
		t.Fatalf("retry errs = %v", errs)
	}
	if f.vendor.credited[brokenItem] != 1 {
		t.Fatalf("broken item credited %d times, want 1", f.vendor.credited[brokenItem])
	}
	if err := f.db.Raw("SELECT COUNT(*) FROM fulfillment_deliveries").Scan(&deliveries).Error; err != nil {
		t.Fatalf("count deliveries: %v", err)
	}
	if deliveries != 1 {
		t.Fatalf("retry duplicated delivery rows: %d", deliveries)
	}
	if n := f.notifier.byType(notification.EventDigitalDelivery); n != 1 {
		t.Fatalf("digital delivery notifications = %d, want 1", n)
	}
}

func TestDigitalDeliveryOnce(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	order := f.seedPaidOrder(t, []orderdomain.OrderItem{
		{VendorID: f.node.Generate(), ProductName: "Beat pack vol. 3", Digital: true, DownloadURL: "https://cdn.example/beats.zip", Quantity: 1, UnitAmount: 2000},
	})

	for i := 0; i < 3; i++ {
		if errs := f.disp.PaymentSucceeded(ctx, order, &transactiondomain.Transaction{OrderID: order.ID}); len(errs) != 0 {
			t.Fatalf("run %d errs = %v", i, errs)
		}
	}

	var deliveries int
	if err := f.db.Raw("SELECT COUNT(*) FROM fulfillment_deliveries").Scan(&deliveries).Error; err != nil {
		t.Fatalf("count deliveries: %v", err)
	}
	if deliveries != 1 {
		t.Fatalf("deliveries = %d, want 1", deliveries)
	}
	if n := f.notifier.byType(notification.EventDigitalDelivery); n != 1 {
		t.Fatalf("digital delivery notifications = %d, want 1", n)
	}
}

func TestRetryRequiresPaidOrder(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	order := f.seedPaidOrder(t, []orderdomain.OrderItem{
		{VendorID: f.node.Generate(), ProductName: "Ankara tote bag", Quantity: 1, UnitAmount: 3000},
	})
	if err := f.db.Exec("UPDATE orders SET payment_status = ? WHERE id = ?", orderdomain.PaymentPending, order.ID).Error; err != nil {
		t.Fatalf("reset payment status: %v", err)
	}

	errs := f.disp.Retry(ctx, order.ID)
	if len(errs) != 1 || !errors.Is(errs[0], orderdomain.ErrOrderNotPaid) {
		t.Fatalf("errs = %v, want ErrOrderNotPaid", errs)
	}
}

func TestRetryUnknownOrder(t *testing.T) {
	f := newDispatchFixture(t)

	errs := f.disp.Retry(context.Background(), 987654)
	if len(errs) != 1 || !errors.Is(errs[0], orderdomain.ErrOrderNotFound) {
		t.Fatalf("errs = %v, want ErrOrderNotFound", errs)
	}
}

func TestNetAmount(t *testing.T) {
	tests := []struct {
		subtotal int64
		bps      int64
		want     int64
	}{
		{5000, 1000, 4500},
		{5000, 0, 5000},
		{999, 1000, 900},
		{1, 1000, 1},
		{10000, 10000, 0},
	}
	for _, tt := range tests {
		if got := netAmount(tt.subtotal, tt.bps); got != tt.want {
			t.Errorf("netAmount(%d, %d) = %d, want %d", tt.subtotal, tt.bps, got, tt.want)
		}
	}
}
