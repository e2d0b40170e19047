package pix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/payoutd/internal/observability/tracing"
	"github.com/smallbiznis/payoutd/internal/payout/gateway"
)

const defaultTimeout = 15 * time.Second

type Factory struct {
	client *http.Client
}

func NewFactory() *Factory {
	return &Factory{}
}

// NewFactoryWithClient lets tests point the adapter at an httptest server.
func NewFactoryWithClient(client *http.Client) *Factory {
	return &Factory{client: client}
}

func (f *Factory) Provider() string {
	return "pix"
}

func (f *Factory) NewAdapter(cfg gateway.AdapterConfig) (gateway.Adapter, error) {
	baseURL, ok := gateway.ReadString(cfg.Config, "base_url")
	if !ok {
		return nil, gateway.ErrInvalidConfig
	}
	token, ok := gateway.ReadString(cfg.Config, "api_token")
	if !ok {
		return nil, gateway.ErrInvalidConfig
	}

	timeout := defaultTimeout
	if raw, ok := cfg.Config["timeout"].(time.Duration); ok && raw > 0 {
		timeout = raw
	}

	client := f.client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &Adapter{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		client:  tracing.WrapHTTPClient(client, "pix"),
	}, nil
}

type Adapter struct {
	baseURL string
	token   string
	client  *http.Client
}

func (a *Adapter) Provider() string { return "pix" }

type transferRequest struct {
	Key         string `json:"key"`
	KeyType     string `json:"key_type"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
}

type transferResponse struct {
	ID         string `json:"id"`
	EndToEndID string `json:"end_to_end_id"`
	Status     string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *Adapter) Submit(ctx context.Context, transfer gateway.Transfer) (gateway.Result, error) {
	body, err := json.Marshal(transferRequest{
		Key:         transfer.Address,
		KeyType:     transfer.AddressType,
		Amount:      transfer.AmountMinor,
		Currency:    transfer.Currency,
		Description: transfer.Description,
	})
	if err != nil {
		return gateway.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return gateway.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Idempotency-Key", transfer.IdempotencyKey)

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return gateway.Result{}, &gateway.FailureError{Reason: gateway.ReasonTimeout, Retryable: true, Err: err}
		}
		return gateway.Result{}, &gateway.FailureError{Reason: gateway.ReasonUnavailable, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gateway.Result{}, &gateway.FailureError{Reason: gateway.ReasonUnavailable, Retryable: true, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out transferResponse
		if err := json.Unmarshal(payload, &out); err != nil {
			return gateway.Result{}, &gateway.FailureError{Reason: gateway.ReasonInvalid, Retryable: true, Err: err}
		}
		reference := out.EndToEndID
		if reference == "" {
			reference = out.ID
		}
		if reference == "" {
			return gateway.Result{}, &gateway.FailureError{Reason: gateway.ReasonInvalid, Retryable: true}
		}
		return gateway.Result{Reference: reference}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return gateway.Result{}, &gateway.FailureError{
			Reason:    networkReason(payload),
			Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout,
			Err:       fmt.Errorf("status %d", resp.StatusCode),
		}
	default:
		return gateway.Result{}, &gateway.FailureError{
			Reason:    gateway.ReasonUnavailable,
			Retryable: true,
			Err:       fmt.Errorf("status %d", resp.StatusCode),
		}
	}
}

func networkReason(payload []byte) string {
	var out errorResponse
	if err := json.Unmarshal(payload, &out); err == nil && out.Code != "" {
		return strings.ToLower(out.Code)
	}
	return gateway.ReasonRejected
}

type timeoutError interface {
	Timeout() bool
}

func isTimeout(err error) bool {
	var te timeoutError
	return errors.As(err, &te) && te.Timeout()
}
