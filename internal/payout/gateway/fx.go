package gateway

import (
	"github.com/smallbiznis/payoutd/internal/config"
	"go.uber.org/zap"
)

// NewConfiguredAdapter builds the adapter selected by configuration.
func NewConfiguredAdapter(cfg config.Config, registry *Registry, log *zap.Logger) (Adapter, error) {
	provider := normalizeProvider(cfg.Gateway.Provider)
	if !registry.ProviderExists(provider) {
		return nil, ErrProviderNotFound
	}
	adapter, err := registry.NewAdapter(provider, AdapterConfig{Config: map[string]any{
		"base_url":     cfg.Gateway.BaseURL,
		"api_token":    cfg.Gateway.APIToken,
		"timeout":      cfg.Gateway.Timeout,
		"fail_amounts": cfg.Gateway.SandboxFailAmounts,
	}})
	if err != nil {
		return nil, err
	}
	log.Named("payout.gateway").Info("transfer gateway ready", zap.String("provider", adapter.Provider()))
	return adapter, nil
}
