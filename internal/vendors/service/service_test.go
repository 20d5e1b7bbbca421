package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/sokoline/sokoline/internal/clock"
	gatewayadapters "github.com/sokoline/sokoline/internal/gateway/adapters"
	gatewaydomain "github.com/sokoline/sokoline/internal/gateway/domain"
	"github.com/sokoline/sokoline/internal/notification"
	transactiondomain "github.com/sokoline/sokoline/internal/transaction/domain"
	"github.com/sokoline/sokoline/internal/vendors/domain"
	"github.com/sokoline/sokoline/internal/vendors/repository"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type payoutAdapter struct {
	mu            sync.Mutex
	disburseCalls int
	disburseErr   error
}

func (a *payoutAdapter) Provider() string { return "moneroo" }

func (a *payoutAdapter) CreatePayment(ctx context.Context, req gatewaydomain.CreatePaymentRequest) (*gatewaydomain.PaymentIntent, error) {
	return nil, errors.New("not used")
}

func (a *payoutAdapter) VerifyPayment(ctx context.Context, externalID string) (*gatewaydomain.VerifyResult, error) {
	return nil, errors.New("not used")
}

func (a *payoutAdapter) CreateDisbursement(ctx context.Context, req gatewaydomain.DisbursementRequest) (*gatewaydomain.DisbursementResult, error) {
	a.mu.Lock()
	a.disburseCalls++
	a.mu.Unlock()
	if a.disburseErr != nil {
		return nil, a.disburseErr
	}
	return &gatewaydomain.DisbursementResult{
		ExternalID: "po_1",
		Raw:        json.RawMessage(`{"id":"po_1"}`),
	}, nil
}

func (a *payoutAdapter) VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	return nil
}

func (a *payoutAdapter) ParseWebhook(ctx context.Context, payload []byte) (*gatewaydomain.WebhookEvent, error) {
	return nil, gatewaydomain.ErrInvalidPayload
}

func (a *payoutAdapter) NormalizeStatus(raw string) transactiondomain.Status {
	return transactiondomain.StatusPending
}

func (a *payoutAdapter) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.disburseCalls
}

type payoutFactory struct {
	adapter *payoutAdapter
}

func (f *payoutFactory) Provider() string { return "moneroo" }

func (f *payoutFactory) NewAdapter(cfg gatewaydomain.AdapterConfig) (gatewaydomain.Adapter, error) {
	return f.adapter, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, event notification.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	adapter  *payoutAdapter
	notifier *recordingNotifier
	svc      domain.Service
}

func newFixture(t *testing.T) *fixture {
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
		`CREATE TABLE vendor_balances (
			vendor_id BIGINT PRIMARY KEY,
			available_amount BIGINT NOT NULL DEFAULT 0,
			pending_amount BIGINT NOT NULL DEFAULT 0,
			total_earned BIGINT NOT NULL DEFAULT 0,
			total_withdrawn BIGINT NOT NULL DEFAULT 0,
			currency TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE vendor_transactions (
			id BIGINT PRIMARY KEY,
			vendor_id BIGINT NOT NULL,
			type TEXT NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			order_id BIGINT,
			order_item_id BIGINT,
			withdrawal_id BIGINT,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_vendor_transactions_item_vendor ON vendor_transactions (order_item_id, vendor_id)`,
		`CREATE UNIQUE INDEX ux_vendor_transactions_withdrawal ON vendor_transactions (withdrawal_id)`,
		`CREATE TABLE withdrawal_requests (
			id BIGINT PRIMARY KEY,
			vendor_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			provider TEXT NOT NULL,
			method TEXT NOT NULL DEFAULT '',
			msisdn TEXT NOT NULL,
			account_name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			external_id TEXT NOT NULL DEFAULT '',
			failure_reason TEXT NOT NULL DEFAULT '',
			requested_at TIMESTAMP NOT NULL,
			processed_at TIMESTAMP
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
	adapter := &payoutAdapter{}
	registry := gatewayadapters.NewRegistry(&payoutFactory{adapter: adapter})
	if err := registry.Register("moneroo", gatewaydomain.AdapterConfig{Provider: "moneroo"}); err != nil {
		t.Fatalf("register adapter: %v", err)
	}
	notifier := &recordingNotifier{}

	svc := NewService(Params{
		DB:       db,
		Log:      zaptest.NewLogger(t),
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		Repo:     repository.Provide(),
		Registry: registry,
		Notifier: notifier,
	})

	return &fixture{db: db, node: node, adapter: adapter, notifier: notifier, svc: svc}
}

func (f *fixture) creditVendor(t *testing.T, vendorID snowflake.ID, amount int64) {
	t.Helper()
	inserted, err := f.svc.CreditSale(context.Background(), domain.CreditSaleInput{
		VendorID:    vendorID,
		OrderID:     f.node.Generate(),
		OrderItemID: f.node.Generate(),
		NetAmount:   amount,
		Currency:    "XAF",
		Description: "seed credit",
	})
	if err != nil {
		t.Fatalf("credit vendor: %v", err)
	}
	if !inserted {
		t.Fatalf("seed credit not inserted")
	}
}

func (f *fixture) balance(t *testing.T, vendorID snowflake.ID) *domain.VendorBalance {
	t.Helper()
	balance, err := f.svc.Balance(context.Background(), vendorID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

func TestCreditSaleIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendorID := f.node.Generate()
	input := domain.CreditSaleInput{
		VendorID:    vendorID,
		OrderID:     f.node.Generate(),
		OrderItemID: f.node.Generate(),
		NetAmount:   4500,
		Currency:    "XAF",
		Description: "Sale SK-1: Ankara tote bag",
	}

	inserted, err := f.svc.CreditSale(ctx, input)
	if err != nil {
		t.Fatalf("first credit: %v", err)
	}
	if !inserted {
		t.Fatalf("first credit not inserted")
	}

	inserted, err = f.svc.CreditSale(ctx, input)
	if err != nil {
		t.Fatalf("second credit: %v", err)
	}
	if inserted {
		t.Fatalf("duplicate credit inserted")
	}

	balance := f.balance(t, vendorID)
	if balance.AvailableAmount != 4500 || balance.TotalEarned != 4500 {
		t.Fatalf("balance = %d/%d, want 4500/4500", balance.AvailableAmount, balance.TotalEarned)
	}

	lines, err := f.svc.ListTransactions(ctx, vendorID, 10, 0)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("ledger lines = %d, want 1", len(lines))
	}
}

func TestCreditSaleAccumulates(t *testing.T) {
	f := newFixture(t)

	vendorID := f.node.Generate()
	f.creditVendor(t, vendorID, 3000)
	f.creditVendor(t, vendorID, 2000)

	balance := f.balance(t, vendorID)
	if balance.AvailableAmount != 5000 || balance.TotalEarned != 5000 {
		t.Fatalf("balance = %d/%d, want 5000/5000", balance.AvailableAmount, balance.TotalEarned)
	}
}

func TestWithdrawalLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendorID := f.node.Generate()
	f.creditVendor(t, vendorID, 10000)

	wr, err := f.svc.RequestWithdrawal(ctx, domain.WithdrawalInput{
		VendorID:    vendorID,
		Amount:      6000,
		Provider:    "Moneroo",
		Method:      "mobile_money",
		Msisdn:      "+237650000001",
		AccountName: "Amina",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if wr.Status != domain.WithdrawalPending {
		t.Fatalf("status = %s, want pending", wr.Status)
	}
	if wr.Currency != "XAF" {
		t.Fatalf("currency not defaulted from balance: %q", wr.Currency)
	}

	// Processing before approval is an invalid transition.
	if _, err := f.svc.ProcessWithdrawal(ctx, wr.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	approved, err := f.svc.ApproveWithdrawal(ctx, wr.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.WithdrawalApproved {
		t.Fatalf("status = %s, want approved", approved.Status)
	}

	processed, err := f.svc.ProcessWithdrawal(ctx, wr.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if processed.Status != domain.WithdrawalProcessed || processed.ExternalID != "po_1" {
		t.Fatalf("unexpected processed row: %+v", processed)
	}
	if f.adapter.calls() != 1 {
		t.Fatalf("disbursement calls = %d, want 1", f.adapter.calls())
	}

	balance := f.balance(t, vendorID)
	if balance.AvailableAmount != 4000 || balance.TotalWithdrawn != 6000 {
		t.Fatalf("balance = %d withdrawn %d, want 4000/6000", balance.AvailableAmount, balance.TotalWithdrawn)
	}

	var event notification.Event
	f.notifier.mu.Lock()
	for _, e := range f.notifier.events {
		if e.Type == notification.EventWithdrawalProcessed {
			event = e
		}
	}
	f.notifier.mu.Unlock()
	if event.Type != notification.EventWithdrawalProcessed {
		t.Fatalf("withdrawal notification not sent")
	}
}

func TestProcessWithdrawalIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendorID := f.node.Generate()
	f.creditVendor(t, vendorID, 10000)

	wr, err := f.svc.RequestWithdrawal(ctx, domain.WithdrawalInput{
		VendorID: vendorID,
		Amount:   6000,
		Provider: "moneroo",
		Msisdn:   "+237650000001",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := f.svc.ApproveWithdrawal(ctx, wr.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.svc.ProcessWithdrawal(ctx, wr.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	again, err := f.svc.ProcessWithdrawal(ctx, wr.ID)
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if again.Status != domain.WithdrawalProcessed {
		t.Fatalf("status = %s, want processed", again.Status)
	}
	if f.adapter.calls() != 1 {
		t.Fatalf("disbursement calls = %d, want 1", f.adapter.calls())
	}

	balance := f.balance(t, vendorID)
	if balance.AvailableAmount != 4000 {
		t.Fatalf("balance = %d, want 4000 after one debit", balance.AvailableAmount)
	}

	var debits int
	if err := f.db.Raw("SELECT COUNT(*) FROM vendor_transactions WHERE withdrawal_id = ?", wr.ID).Scan(&debits).Error; err != nil {
		t.Fatalf("count debits: %v", err)
	}
	if debits != 1 {
		t.Fatalf("debit ledger lines = %d, want 1", debits)
	}
}

func TestProcessWithdrawalRepairsDisbursedRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendorID := f.node.Generate()
	f.creditVendor(t, vendorID, 10000)

	wr, err := f.svc.RequestWithdrawal(ctx, domain.WithdrawalInput{
		VendorID: vendorID,
		Amount:   6000,
		Provider: "moneroo",
		Msisdn:   "+237650000001",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := f.svc.ApproveWithdrawal(ctx, wr.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// Simulate a crash after disbursement: the ledger line exists but the
	// request still says approved.
	withdrawalID := wr.ID
	if err := f.db.Exec(
		`INSERT INTO vendor_transactions (id, vendor_id, type, amount, currency, withdrawal_id, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.node.Generate(), vendorID, domain.TypeWithdrawal, -6000, "XAF", withdrawalID, "Withdrawal to +237650000001", time.Now().UTC(),
	).Error; err != nil {
		t.Fatalf("seed ledger line: %v", err)
	}

	repaired, err := f.svc.ProcessWithdrawal(ctx, wr.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if repaired.Status != domain.WithdrawalProcessed {
		t.Fatalf("status = %s, want processed", repaired.Status)
	}
	if f.adapter.calls() != 0 {
		t.Fatalf("gateway called again for an already disbursed withdrawal")
	}
}

func TestRequestWithdrawalInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendorID := f.node.Generate()
	f.creditVendor(t, vendorID, 1000)

	_, err := f.svc.RequestWithdrawal(ctx, domain.WithdrawalInput{
		VendorID: vendorID,
		Amount:   5000,
		Provider: "moneroo",
		Msisdn:   "+237650000001",
	})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
}

func TestProcessWithdrawalDrainedBalanceRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendorID := f.node.Generate()
	f.creditVendor(t, vendorID, 10000)

	first, err := f.svc.RequestWithdrawal(ctx, domain.WithdrawalInput{
		VendorID: vendorID, Amount: 8000, Provider: "moneroo", Msisdn: "+237650000001",
	})
	if err != nil {
		t.Fatalf("request first: %v", err)
	}
	second, err := f.svc.RequestWithdrawal(ctx, domain.WithdrawalInput{
		VendorID: vendorID, Amount: 8000, Provider: "moneroo", Msisdn: "+237650000001",
	})
	if err != nil {
		t.Fatalf("request second: %v", err)
	}
	for _, id := range []snowflake.ID{first.ID, second.ID} {
		if _, err := f.svc.ApproveWithdrawal(ctx, id); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}

	if _, err := f.svc.ProcessWithdrawal(ctx, first.ID); err != nil {
		t.Fatalf("process first: %v", err)
	}

	// The second request no longer fits the remaining balance.
	rejected, err := f.svc.ProcessWithdrawal(ctx, second.ID)
	if err != nil {
		t.Fatalf("process second: %v", err)
	}
	if rejected.Status != domain.WithdrawalRejected || rejected.FailureReason != "insufficient_balance" {
		t.Fatalf("unexpected rejection: %+v", rejected)
	}
	if f.adapter.calls() != 1 {
		t.Fatalf("disbursement calls = %d, want 1", f.adapter.calls())
	}

	balance := f.balance(t, vendorID)
	if balance.AvailableAmount != 2000 {
		t.Fatalf("balance = %d, want 2000", balance.AvailableAmount)
	}
	if balance.AvailableAmount < 0 {
		t.Fatalf("balance went negative")
	}
}

func TestProcessWithdrawalGatewayFailureRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendorID := f.node.Generate()
	f.creditVendor(t, vendorID, 10000)
	f.adapter.disburseErr = &gatewaydomain.RejectedError{
		Provider: "moneroo", Operation: "create_disbursement", Status: 422, Message: "invalid msisdn",
	}

	wr, err := f.svc.RequestWithdrawal(ctx, domain.WithdrawalInput{
		VendorID: vendorID, Amount: 6000, Provider: "moneroo", Msisdn: "+237650000001",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := f.svc.ApproveWithdrawal(ctx, wr.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	rejected, err := f.svc.ProcessWithdrawal(ctx, wr.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if rejected.Status != domain.WithdrawalRejected || rejected.FailureReason == "" {
		t.Fatalf("unexpected rejection: %+v", rejected)
	}

	// No money moved.
	balance := f.balance(t, vendorID)
	if balance.AvailableAmount != 10000 {
		t.Fatalf("balance = %d, want 10000", balance.AvailableAmount)
	}
}

func TestRejectWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendorID := f.node.Generate()
	f.creditVendor(t, vendorID, 10000)

	wr, err := f.svc.RequestWithdrawal(ctx, domain.WithdrawalInput{
		VendorID: vendorID, Amount: 6000, Provider: "moneroo", Msisdn: "+237650000001",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	rejected, err := f.svc.RejectWithdrawal(ctx, wr.ID, "kyc_incomplete")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != domain.WithdrawalRejected || rejected.FailureReason != "kyc_incomplete" {
		t.Fatalf("unexpected rejection: %+v", rejected)
	}

	// A rejected request cannot be approved afterwards.
	if _, err := f.svc.ApproveWithdrawal(ctx, wr.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestRequestWithdrawalValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendorID := f.node.Generate()
	f.creditVendor(t, vendorID, 10000)

	if _, err := f.svc.RequestWithdrawal(ctx, domain.WithdrawalInput{VendorID: vendorID, Amount: 0, Provider: "moneroo", Msisdn: "+237650000001"}); !errors.Is(err, domain.ErrInvalidWithdrawal) {
		t.Fatalf("zero amount err = %v", err)
	}
	if _, err := f.svc.RequestWithdrawal(ctx, domain.WithdrawalInput{VendorID: vendorID, Amount: 100, Provider: "moneroo", Msisdn: "  "}); !errors.Is(err, domain.ErrInvalidWithdrawal) {
		t.Fatalf("blank msisdn err = %v", err)
	}
	if _, err := f.svc.RequestWithdrawal(ctx, domain.WithdrawalInput{VendorID: vendorID, Amount: 100, Provider: "paypal", Msisdn: "+237650000001"}); !errors.Is(err, gatewaydomain.ErrProviderNotFound) {
		t.Fatalf("unknown provider err = %v", err)
	}
}

func TestListApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vendorID := f.node.Generate()
	f.creditVendor(t, vendorID, 10000)

	first, err := f.svc.RequestWithdrawal(ctx, domain.WithdrawalInput{
		VendorID: vendorID, Amount: 2000, Provider: "moneroo", Msisdn: "+237650000001",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := f.svc.RequestWithdrawal(ctx, domain.WithdrawalInput{
		VendorID: vendorID, Amount: 3000, Provider: "moneroo", Msisdn: "+237650000001",
	}); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := f.svc.ApproveWithdrawal(ctx, first.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	approved, err := f.svc.ListApproved(ctx, 10)
	if err != nil {
		t.Fatalf("list approved: %v", err)
	}
	if len(approved) != 1 || approved[0].ID != first.ID {
		t.Fatalf("unexpected approved list: %+v", approved)
	}
}
