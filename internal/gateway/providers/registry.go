package providers

import (
	"sort"
	"strings"

	"github.com/dev-orchid/shiksha-sub001/internal/config"
	gatewaydomain "github.com/dev-orchid/shiksha-sub001/internal/gateway/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/gateway/providers/midtrans"
	"github.com/dev-orchid/shiksha-sub001/internal/gateway/providers/razorpay"
	"go.uber.org/zap"
)

type Registry struct {
	providers       map[string]gatewaydomain.Provider
	defaultProvider string
}

func NewRegistry(defaultProvider string, providers ...gatewaydomain.Provider) *Registry {
	registry := &Registry{
		providers:       map[string]gatewaydomain.Provider{},
		defaultProvider: normalize(defaultProvider),
	}
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		name := normalize(provider.Name())
		if name == "" {
			continue
		}
		registry.providers[name] = provider
	}
	return registry
}

// NewRegistryFromConfig registers every provider that has credentials configured.
func NewRegistryFromConfig(cfg config.Config, log *zap.Logger) (*Registry, error) {
	var enabled []gatewaydomain.Provider
	if cfg.Gateway.Razorpay.Enabled() {
		p, err := razorpay.New(razorpay.Config{
			KeyID:         cfg.Gateway.Razorpay.KeyID,
			KeySecret:     cfg.Gateway.Razorpay.KeySecret,
			WebhookSecret: cfg.Gateway.Razorpay.WebhookSecret,
			BaseURL:       cfg.Gateway.Razorpay.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		enabled = append(enabled, p)
	}
	if cfg.Gateway.Midtrans.Enabled() {
		p, err := midtrans.New(midtrans.Config{
			ServerKey:  cfg.Gateway.Midtrans.ServerKey,
			ClientKey:  cfg.Gateway.Midtrans.ClientKey,
			Production: cfg.Gateway.Midtrans.Production,
		})
		if err != nil {
			return nil, err
		}
		enabled = append(enabled, p)
	}

	registry := NewRegistry(cfg.Gateway.DefaultProvider, enabled...)
	if len(enabled) == 0 {
		log.Warn("no payment gateway configured; online checkout is disabled")
	} else {
		log.Info("payment gateways registered", zap.Strings("providers", registry.Names()))
	}
	return registry, nil
}

// Get resolves name, falling back to the default provider when name is empty.
func (r *Registry) Get(name string) (gatewaydomain.Provider, error) {
	if r == nil {
		return nil, gatewaydomain.ErrProviderNotFound
	}
	name = normalize(name)
	if name == "" {
		name = r.defaultProvider
	}
	provider, ok := r.providers[name]
	if !ok {
		return nil, gatewaydomain.ErrProviderNotFound
	}
	return provider, nil
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
