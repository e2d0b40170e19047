// Package sandbox simulates the transfer network in-process.
package sandbox

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/payoutd/internal/payout/gateway"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "sandbox"
}

// NewAdapter reads "fail_amounts" ([]int64): transfers for those amounts are
// refused with a retryable failure.
func (f *Factory) NewAdapter(cfg gateway.AdapterConfig) (gateway.Adapter, error) {
	fail := map[int64]struct{}{}
	if raw, ok := cfg.Config["fail_amounts"]; ok {
		amounts, ok := raw.([]int64)
		if !ok {
			return nil, gateway.ErrInvalidConfig
		}
		for _, a := range amounts {
			fail[a] = struct{}{}
		}
	}
	return &Adapter{
		failAmounts: fail,
		seen:        map[string]string{},
		entropy:     ulid.Monotonic(rand.Reader, 0),
	}, nil
}

type Adapter struct {
	failAmounts map[int64]struct{}

	mu      sync.Mutex
	seen    map[string]string
	entropy *ulid.MonotonicEntropy
}

func (a *Adapter) Provider() string { return "sandbox" }

// Submit returns the same reference for a repeated idempotency key.
func (a *Adapter) Submit(ctx context.Context, transfer gateway.Transfer) (gateway.Result, error) {
	if err := ctx.Err(); err != nil {
		return gateway.Result{}, &gateway.FailureError{Reason: gateway.ReasonTimeout, Retryable: true, Err: err}
	}
	if _, ok := a.failAmounts[transfer.AmountMinor]; ok {
		return gateway.Result{}, &gateway.FailureError{Reason: gateway.ReasonUnavailable, Retryable: true}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if ref, ok := a.seen[transfer.IdempotencyKey]; ok {
		return gateway.Result{Reference: ref}, nil
	}
	id, err := ulid.New(ulid.Timestamp(time.Now()), a.entropy)
	if err != nil {
		return gateway.Result{}, err
	}
	ref := "sbx_" + id.String()
	a.seen[transfer.IdempotencyKey] = ref
	return gateway.Result{Reference: ref}, nil
}
