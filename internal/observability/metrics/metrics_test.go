package metrics

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("outcome", "rejected"),
		attribute.String("booking_id", "456"),
		attribute.String("method", "payout"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "outcome" && attrs[1].Key != "outcome" {
		t.Fatalf("expected outcome to be retained")
	}
	if attrs[0].Key != "method" && attrs[1].Key != "method" {
		t.Fatalf("expected method to be retained")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordSettlementRequest(context.Background(), "payout", "rejected")
	m.RecordGatewaySubmit(context.Background(), "sandbox", "ok", time.Second)
	m.RecordNotification(context.Background(), "slack", "manual_review", "ok")
	m.RecordAdminAction(context.Background(), "approve")
	m.RecordRateLimitDenied(context.Background(), "/admin", "rate_limited")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "payoutd"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordSettlementRequest(context.Background(), "refund", "accepted_and_settled")
}
