package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sokoline/sokoline/internal/clock"
	"github.com/sokoline/sokoline/internal/config"
	gatewayadapters "github.com/sokoline/sokoline/internal/gateway/adapters"
	obsmetrics "github.com/sokoline/sokoline/internal/observability/metrics"
	orderdomain "github.com/sokoline/sokoline/internal/order/domain"
	transactiondomain "github.com/sokoline/sokoline/internal/transaction/domain"
	vendordomain "github.com/sokoline/sokoline/internal/vendors/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("reconcile: invalid configuration")

// stuckSweepCadence gates the stuck-order job to roughly hourly runs
// regardless of the main sweep interval.
const stuckSweepCadence = time.Hour

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Policy   *config.PolicyHolder
	TxRepo   transactiondomain.Repository
	TxSvc    transactiondomain.Service
	OrderSvc orderdomain.Service
	Registry *gatewayadapters.Registry
	Vendor   vendordomain.Service
	Locker   *Locker `optional:"true"`
	Config   Config  `optional:"true"`
}

type Scheduler struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	policy   *config.PolicyHolder
	txRepo   transactiondomain.Repository
	txSvc    transactiondomain.Service
	orderSvc orderdomain.Service
	registry *gatewayadapters.Registry
	vendor   vendordomain.Service
	locker   *Locker

	mu            sync.Mutex
	lastStuckScan time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Policy == nil ||
		p.TxRepo == nil || p.TxSvc == nil || p.OrderSvc == nil || p.Registry == nil || p.Vendor == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:       p.DB,
		log:      p.Log.Named("reconcile").With(zap.String("component", "reconcile")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		policy:   p.Policy,
		txRepo:   p.TxRepo,
		txSvc:    p.TxSvc,
		orderSvc: p.OrderSvc,
		registry: p.Registry,
		vendor:   p.Vendor,
		locker:   p.Locker,
	}, nil
}

// RunOnce runs every enabled job once, in order. Job errors are joined, never
// short-circuited.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.run(ctx, "interval")
}

// RunJob runs a single named job outside the normal cadence, for the manual
// trigger endpoint.
func (s *Scheduler) RunJob(ctx context.Context, name, source string) error {
	if source == "" {
		source = "manual"
	}
	switch name {
	case "reconcile_pending":
		return s.runJob(ctx, name, source, s.reconcilePendingJob)
	case "stuck_orders":
		return s.runJob(ctx, name, source, s.stuckOrdersJob)
	case "process_withdrawals":
		return s.runJob(ctx, name, source, s.processWithdrawalsJob)
	default:
		return fmt.Errorf("reconcile: unknown job %q", name)
	}
}

func (s *Scheduler) run(ctx context.Context, source string) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context, string) error
	}{
		{"reconcile_pending", func(ctx context.Context, src string) error {
			return s.runJob(ctx, "reconcile_pending", src, s.reconcilePendingJob)
		}},
		{"stuck_orders", func(ctx context.Context, src string) error {
			if !s.stuckScanDue() {
				return nil
			}
			return s.runJob(ctx, "stuck_orders", src, s.stuckOrdersJob)
		}},
		{"process_withdrawals", func(ctx context.Context, src string) error {
			return s.runJob(ctx, "process_withdrawals", src, s.processWithdrawalsJob)
		}},
	}

	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, job.Run(ctx, source))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweep run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty EnabledJobs means every job runs (monolith mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) stuckScanDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if !s.lastStuckScan.IsZero() && now.Sub(s.lastStuckScan) < stuckSweepCadence {
		return false
	}
	s.lastStuckScan = now
	return true
}

type jobResult struct {
	processed int
	total     int
	errs      []string
}

func (s *Scheduler) runJob(parent context.Context, name, source string, fn func(ctx context.Context) jobResult) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	log := s.log.With(zap.String("job", name), zap.String("source", source))

	if s.locker != nil {
		key := "sokoline:reconcile:" + name
		token, acquired, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("%s: lock: %w", name, err)
		}
		if !acquired {
			log.Debug("sweep lock held elsewhere, skipping")
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				log.Warn("sweep lock release failed", zap.Error(err))
			}
		}()
	}

	obsmetrics.Default().IncSweepRun(name)
	result := fn(ctx)
	obsmetrics.Default().ObserveSweepDuration(name, time.Since(start))
	obsmetrics.Default().AddSweepItems(name, "processed", result.processed)
	for range result.errs {
		obsmetrics.Default().IncSweepError(name)
	}

	s.writeRunLog(context.WithoutCancel(ctx), source, name, result.processed, result.total, result.errs, start)

	log.Info("sweep finished",
		zap.Int("processed", result.processed),
		zap.Int("total", result.total),
		zap.Int("errors", len(result.errs)),
	)
	if len(result.errs) > 0 {
		return fmt.Errorf("%s: %d of %d items failed", name, len(result.errs), result.total)
	}
	return nil
}

// reconcilePendingJob verifies stale non-terminal transactions against their
// gateway and feeds the answers through the same status application path
// webhooks use.
func (s *Scheduler) reconcilePendingJob(ctx context.Context) jobResult {
	policy := s.policy.Get()
	cutoff := s.clock.Now().Add(-policy.ReconcileMinAge)

	stuck, err := s.txRepo.FindStuck(ctx, s.db, cutoff, policy.SweepBatchSize)
	if err != nil {
		return jobResult{errs: []string{err.Error()}}
	}
	if len(stuck) == 0 {
		return jobResult{}
	}

	var (
		mu     sync.Mutex
		result = jobResult{total: len(stuck)}
	)
	sem := make(chan struct{}, policy.SweepWorkers)
	var wg sync.WaitGroup
	for _, tx := range stuck {
		wg.Add(1)
		sem <- struct{}{}
		go func(tx transactiondomain.Transaction) {
			defer wg.Done()
			defer func() { <-sem }()

			err := s.reconcileOne(ctx, tx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.errs = append(result.errs, tx.ExternalID+": "+err.Error())
				return
			}
			result.processed++
		}(tx)
	}
	wg.Wait()
	return result
}

func (s *Scheduler) reconcileOne(ctx context.Context, tx transactiondomain.Transaction) error {
	adapter, err := s.registry.Adapter(tx.Provider)
	if err != nil {
		return err
	}
	verified, err := adapter.VerifyPayment(ctx, tx.ExternalID)
	if err != nil {
		return err
	}

	_, err = s.txSvc.ApplyStatus(ctx, transactiondomain.ApplyInput{
		ExternalID: tx.ExternalID,
		Status:     adapter.NormalizeStatus(verified.Status),
		RawPayload: verified.Raw,
		Source:     transactiondomain.SourcePoll,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transactiondomain.ErrConflictNotApplied):
		// Parked for manual review; the sweep moves on.
		return nil
	default:
		return err
	}
}

// stuckOrdersJob gives up on transactions that never settled: anything still
// non-terminal past the stuck age is cancelled so the order stops waiting for
// money that is not coming.
func (s *Scheduler) stuckOrdersJob(ctx context.Context) jobResult {
	policy := s.policy.Get()
	cutoff := s.clock.Now().Add(-policy.StuckOrderAge)

	stuck, err := s.txRepo.FindStuck(ctx, s.db, cutoff, policy.SweepBatchSize)
	if err != nil {
		return jobResult{errs: []string{err.Error()}}
	}

	result := jobResult{total: len(stuck)}
	for _, tx := range stuck {
		// One last check against the gateway before giving up.
		status := transactiondomain.StatusCancelled
		var raw []byte
		if adapter, err := s.registry.Adapter(tx.Provider); err == nil {
			if verified, err := adapter.VerifyPayment(ctx, tx.ExternalID); err == nil {
				if normalized := adapter.NormalizeStatus(verified.Status); normalized.Terminal() {
					status = normalized
					raw = verified.Raw
				}
			}
		}

		_, err := s.txSvc.ApplyStatus(ctx, transactiondomain.ApplyInput{
			ExternalID: tx.ExternalID,
			Status:     status,
			RawPayload: raw,
			Source:     transactiondomain.SourcePoll,
		})
		if err != nil && !errors.Is(err, transactiondomain.ErrConflictNotApplied) {
			result.errs = append(result.errs, tx.ExternalID+": "+err.Error())
			continue
		}
		result.processed++
	}

	// Repair order rows that diverged from their settled transactions.
	diverged, err := s.fetchDivergedOrders(ctx, policy.SweepBatchSize)
	if err != nil {
		result.errs = append(result.errs, "diverged scan: "+err.Error())
		return result
	}
	result.total += len(diverged)
	for _, row := range diverged {
		if _, err := s.orderSvc.ApplyTransactionStatus(ctx, row.OrderID, row.Status); err != nil {
			result.errs = append(result.errs, row.ExternalID+": "+err.Error())
			continue
		}
		s.log.Warn("repaired diverged order",
			zap.Int64("order_id", int64(row.OrderID)),
			zap.String("transaction_status", string(row.Status)),
		)
		result.processed++
	}
	return result
}

func (s *Scheduler) processWithdrawalsJob(ctx context.Context) jobResult {
	policy := s.policy.Get()
	approved, err := s.vendor.ListApproved(ctx, policy.WithdrawalBatchSize)
	if err != nil {
		return jobResult{errs: []string{err.Error()}}
	}

	result := jobResult{total: len(approved)}
	for _, wr := range approved {
		if _, err := s.vendor.ProcessWithdrawal(ctx, wr.ID); err != nil {
			result.errs = append(result.errs, wr.ID.String()+": "+err.Error())
			continue
		}
		result.processed++
	}
	return result
}

var Module = fx.Module("reconcile",
	fx.Provide(New),
	fx.Provide(provideLocker),
)
