package gateway

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrProviderNotFound = errors.New("gateway_provider_not_found")
	ErrInvalidConfig    = errors.New("gateway_invalid_config")
)

const (
	ReasonTimeout     = "timeout"
	ReasonUnavailable = "unavailable"
	ReasonRejected    = "rejected_by_network"
	ReasonInvalid     = "invalid_response"
)

// Transfer is one instruction to move funds to a network address.
type Transfer struct {
	Address        string
	AddressType    string
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
	Description    string
}

type Result struct {
	Reference string
}

// Adapter submits transfers to one network provider. Submit must be safe to
// repeat with the same idempotency key.
type Adapter interface {
	Provider() string
	Submit(ctx context.Context, transfer Transfer) (Result, error)
}

type AdapterConfig struct {
	Config map[string]any
}

type Factory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}

// FailureError is a definitive or transient refusal from the network.
type FailureError struct {
	Reason    string
	Retryable bool
	Err       error
}

func (e *FailureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transfer failed: %s: %v", e.Reason, e.Err)
	}
	return "transfer failed: " + e.Reason
}

func (e *FailureError) Unwrap() error { return e.Err }

// FailureReason maps any submit error to the reason stored on the ledger.
func FailureReason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var failure *FailureError
	if errors.As(err, &failure) && failure.Reason != "" {
		return failure.Reason
	}
	return ReasonUnavailable
}

// ReadString returns a trimmed, non-empty string value from adapter config.
func ReadString(cfg map[string]any, key string) (string, bool) {
	raw, ok := cfg[key]
	if !ok {
		return "", false
	}
	value, ok := raw.(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
