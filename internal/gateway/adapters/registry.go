package adapters

import (
	"strings"

	"github.com/sokoline/sokoline/internal/gateway/domain"
)

type Registry struct {
	factories map[string]domain.Factory
	adapters  map[string]domain.Adapter
}

func NewRegistry(factories ...domain.Factory) *Registry {
	registry := &Registry{
		factories: map[string]domain.Factory{},
		adapters:  map[string]domain.Adapter{},
	}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := strings.ToLower(strings.TrimSpace(factory.Provider()))
		if provider == "" {
			continue
		}
		registry.factories[provider] = factory
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	_, ok := r.factories[provider]
	return ok
}

// Register constructs and caches the adapter for provider from cfg. Called
// once per configured provider at startup.
func (r *Registry) Register(provider string, cfg domain.AdapterConfig) error {
	if r == nil {
		return domain.ErrProviderNotFound
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	factory, ok := r.factories[provider]
	if !ok {
		return domain.ErrProviderNotFound
	}
	adapter, err := factory.NewAdapter(cfg)
	if err != nil {
		return err
	}
	r.adapters[provider] = adapter
	return nil
}

// Adapter returns the configured adapter for provider.
func (r *Registry) Adapter(provider string) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return adapter, nil
}

// Providers lists configured provider names.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	providers := make([]string, 0, len(r.adapters))
	for provider := range r.adapters {
		providers = append(providers, provider)
	}
	return providers
}
