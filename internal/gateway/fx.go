package gateway

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sokoline/sokoline/internal/config"
	"github.com/sokoline/sokoline/internal/gateway/adapters"
	"github.com/sokoline/sokoline/internal/gateway/adapters/moneroo"
	"github.com/sokoline/sokoline/internal/gateway/adapters/moneyfusion"
	"github.com/sokoline/sokoline/internal/gateway/domain"
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

// NewRegistry wires every known provider factory and configures the ones that
// carry credentials. Providers without credentials stay unregistered and the
// webhook route rejects them.
func NewRegistry(p Params) (*adapters.Registry, error) {
	registry := adapters.NewRegistry(
		moneroo.NewFactory(),
		moneyfusion.NewFactory(),
	)

	log := p.Log.Named("gateway.registry")

	configs := map[string]config.GatewayConfig{
		"moneroo":     p.Config.Moneroo,
		"moneyfusion": p.Config.MoneyFusion,
	}
	for provider, cfg := range configs {
		if cfg.APIKey == "" {
			log.Warn("provider not configured, skipping", zap.String("provider", provider))
			continue
		}
		err := registry.Register(provider, domain.AdapterConfig{
			Provider:      provider,
			BaseURL:       cfg.BaseURL,
			APIKey:        cfg.APIKey,
			WebhookSecret: cfg.WebhookSecret,
		})
		if err != nil {
			return nil, err
		}
		log.Info("provider registered", zap.String("provider", provider))
	}

	return registry, nil
}

var Module = fx.Module("gateway",
	fx.Provide(NewRegistry),
)
