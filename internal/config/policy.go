package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// MarketplacePolicy is operator-tunable business policy. Unlike Config it can
// change at runtime: the holder watches the config file and swaps atomically.
type MarketplacePolicy struct {
	// CommissionBps is the platform cut per order item, in basis points.
	CommissionBps int64 `mapstructure:"commissionBps"`

	// Reconciliation tuning.
	ReconcileMinAge     time.Duration `mapstructure:"reconcileMinAge"`
	StuckOrderAge       time.Duration `mapstructure:"stuckOrderAge"`
	SweepBatchSize      int           `mapstructure:"sweepBatchSize"`
	SweepWorkers        int           `mapstructure:"sweepWorkers"`
	WithdrawalBatchSize int           `mapstructure:"withdrawalBatchSize"`
}

func DefaultMarketplacePolicy() MarketplacePolicy {
	return MarketplacePolicy{
		CommissionBps:       1000, // 10%
		ReconcileMinAge:     10 * time.Minute,
		StuckOrderAge:       24 * time.Hour,
		SweepBatchSize:      25,
		SweepWorkers:        4,
		WithdrawalBatchSize: 10,
	}
}

type PolicyHolder struct {
	current atomic.Value // holds MarketplacePolicy
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("marketplace")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/sokoline/config")
	v.AddConfigPath("/etc/sokoline")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SOKOLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultMarketplacePolicy()
	v.SetDefault("marketplace.commissionBps", defaults.CommissionBps)
	v.SetDefault("marketplace.reconcileMinAge", defaults.ReconcileMinAge)
	v.SetDefault("marketplace.stuckOrderAge", defaults.StuckOrderAge)
	v.SetDefault("marketplace.sweepBatchSize", defaults.SweepBatchSize)
	v.SetDefault("marketplace.sweepWorkers", defaults.SweepWorkers)
	v.SetDefault("marketplace.withdrawalBatchSize", defaults.WithdrawalBatchSize)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var policy MarketplacePolicy
	if err := v.UnmarshalKey("marketplace", &policy); err != nil {
		return nil, err
	}
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated MarketplacePolicy
		if err := v.UnmarshalKey("marketplace", &updated); err != nil {
			log.Printf("[marketplace-policy] reload failed: %v", err)
			return
		}
		if err := validatePolicy(updated); err != nil {
			log.Printf("[marketplace-policy] invalid policy ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[marketplace-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PolicyHolder) Get() MarketplacePolicy {
	return h.current.Load().(MarketplacePolicy)
}

// NewStaticPolicyHolder wraps a fixed policy, for tests and tools.
func NewStaticPolicyHolder(policy MarketplacePolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func validatePolicy(policy MarketplacePolicy) error {
	if policy.CommissionBps < 0 || policy.CommissionBps > 10000 {
		return errors.New("marketplace.commissionBps must be within [0, 10000]")
	}
	if policy.SweepBatchSize <= 0 {
		return errors.New("marketplace.sweepBatchSize must be positive")
	}
	if policy.SweepWorkers <= 0 {
		return errors.New("marketplace.sweepWorkers must be positive")
	}
	return nil
}
