package gateway_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/smallbiznis/payoutd/internal/config"
	"github.com/smallbiznis/payoutd/internal/payout/gateway"
	"github.com/smallbiznis/payoutd/internal/payout/gateway/pix"
	"github.com/smallbiznis/payoutd/internal/payout/gateway/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistry(t *testing.T) {
	registry := gateway.NewRegistry(pix.NewFactory(), sandbox.NewFactory(), nil)

	assert.True(t, registry.ProviderExists(" PIX "))
	assert.True(t, registry.ProviderExists("sandbox"))
	assert.False(t, registry.ProviderExists("wire"))

	_, err := registry.NewAdapter("wire", gateway.AdapterConfig{})
	assert.ErrorIs(t, err, gateway.ErrProviderNotFound)

	_, err = registry.NewAdapter("pix", gateway.AdapterConfig{Config: map[string]any{"base_url": "http://x"}})
	assert.ErrorIs(t, err, gateway.ErrInvalidConfig)

	var nilRegistry *gateway.Registry
	assert.False(t, nilRegistry.ProviderExists("pix"))
}

func TestNewConfiguredAdapter(t *testing.T) {
	registry := gateway.NewRegistry(pix.NewFactory(), sandbox.NewFactory())

	cfg := config.Config{Gateway: config.GatewayConfig{Provider: "Sandbox"}}
	adapter, err := gateway.NewConfiguredAdapter(cfg, registry, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "sandbox", adapter.Provider())

	cfg.Gateway.Provider = "pix"
	_, err = gateway.NewConfiguredAdapter(cfg, registry, zap.NewNop())
	assert.ErrorIs(t, err, gateway.ErrInvalidConfig)

	cfg.Gateway.Provider = "unknown"
	_, err = gateway.NewConfiguredAdapter(cfg, registry, zap.NewNop())
	assert.ErrorIs(t, err, gateway.ErrProviderNotFound)
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "", gateway.FailureReason(nil))
	assert.Equal(t, gateway.ReasonTimeout, gateway.FailureReason(context.DeadlineExceeded))
	assert.Equal(t, gateway.ReasonTimeout, gateway.FailureReason(fmt.Errorf("submit: %w", context.DeadlineExceeded)))
	assert.Equal(t, "invalid_key", gateway.FailureReason(&gateway.FailureError{Reason: "invalid_key"}))
	assert.Equal(t, gateway.ReasonUnavailable, gateway.FailureReason(errors.New("boom")))

	wrapped := &gateway.FailureError{Reason: gateway.ReasonUnavailable, Err: errors.New("dial")}
	assert.Contains(t, wrapped.Error(), "dial")
}
