package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMarketplacePolicyIsValid(t *testing.T) {
	policy := DefaultMarketplacePolicy()
	require.NoError(t, validatePolicy(policy))
	assert.Equal(t, int64(1000), policy.CommissionBps)
	assert.Equal(t, 10*time.Minute, policy.ReconcileMinAge)
	assert.Equal(t, 24*time.Hour, policy.StuckOrderAge)
}

func TestValidatePolicy(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MarketplacePolicy)
		ok     bool
	}{
		{"defaults", func(p *MarketplacePolicy) {}, true},
		{"zero commission", func(p *MarketplacePolicy) { p.CommissionBps = 0 }, true},
		{"full commission", func(p *MarketplacePolicy) { p.CommissionBps = 10000 }, true},
		{"negative commission", func(p *MarketplacePolicy) { p.CommissionBps = -1 }, false},
		{"commission above 100%", func(p *MarketplacePolicy) { p.CommissionBps = 10001 }, false},
		{"zero batch size", func(p *MarketplacePolicy) { p.SweepBatchSize = 0 }, false},
		{"zero workers", func(p *MarketplacePolicy) { p.SweepWorkers = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := DefaultMarketplacePolicy()
			tt.mutate(&policy)
			err := validatePolicy(policy)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestStaticPolicyHolder(t *testing.T) {
	policy := DefaultMarketplacePolicy()
	policy.CommissionBps = 250

	holder := NewStaticPolicyHolder(policy)
	assert.Equal(t, int64(250), holder.Get().CommissionBps)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("MONEROO_API_KEY", "  sk_live_1  ")
	t.Setenv("DATABASE_MAX_OPEN_CONN", "not-a-number")

	cfg := Load()
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, "sk_live_1", cfg.Moneroo.APIKey, "credentials are trimmed")
	assert.Equal(t, 25, cfg.DBMaxOpenConn, "invalid int falls back to default")
}
