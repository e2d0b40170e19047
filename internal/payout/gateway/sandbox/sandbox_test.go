package sandbox

import (
	"context"
	"strings"
	"testing"

	"github.com/smallbiznis/payoutd/internal/payout/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit(t *testing.T) {
	adapter, err := NewFactory().NewAdapter(gateway.AdapterConfig{Config: map[string]any{
		"fail_amounts": []int64{13_00},
	}})
	require.NoError(t, err)

	ctx := context.Background()
	first, err := adapter.Submit(ctx, gateway.Transfer{AmountMinor: 150_00, IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.Reference, "sbx_"))

	again, err := adapter.Submit(ctx, gateway.Transfer{AmountMinor: 150_00, IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, first.Reference, again.Reference)

	other, err := adapter.Submit(ctx, gateway.Transfer{AmountMinor: 150_00, IdempotencyKey: "k2"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Reference, other.Reference)

	_, err = adapter.Submit(ctx, gateway.Transfer{AmountMinor: 13_00, IdempotencyKey: "k3"})
	var failure *gateway.FailureError
	require.ErrorAs(t, err, &failure)
	assert.True(t, failure.Retryable)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = adapter.Submit(cancelled, gateway.Transfer{AmountMinor: 150_00, IdempotencyKey: "k4"})
	assert.Equal(t, gateway.ReasonTimeout, gateway.FailureReason(err))
}

func TestNewAdapterRejectsBadConfig(t *testing.T) {
	_, err := NewFactory().NewAdapter(gateway.AdapterConfig{Config: map[string]any{"fail_amounts": "13"}})
	assert.ErrorIs(t, err, gateway.ErrInvalidConfig)
}
