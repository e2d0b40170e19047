package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/payoutd/internal/audit/domain"
	"github.com/smallbiznis/payoutd/internal/audit/repository"
	"github.com/smallbiznis/payoutd/internal/clock"
	obscontext "github.com/smallbiznis/payoutd/internal/observability/context"
	"github.com/smallbiznis/payoutd/internal/testutil"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    testutil.OpenDB(t),
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	}).(*Service)
	return svc, clk
}

func TestAuditLogMasksAndEnriches(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActor(ctx, "api_key", "key_booking")
	ctx = obscontext.WithClient(ctx, "10.0.0.1", "booking-service/1.0")

	target := "101"
	require.NoError(t, svc.AuditLog(ctx, "", nil, auditdomain.ActionRequestInvalid, "booking", &target, map[string]any{
		"payee_address": "52998224725",
		"error":         "invalid_payee_address",
	}))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "api_key", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "key_booking", *entry.ActorID)
	assert.Equal(t, "****4725", entry.Metadata["payee_address"])
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	require.NotNil(t, entry.IPAddress)
	assert.Equal(t, "10.0.0.1", *entry.IPAddress)
}

func TestAuditLogRequiresAction(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.AuditLog(context.Background(), "system", nil, " ", "payout", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPaginatesAndFilters(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.AuditLog(ctx, "operator", nil, auditdomain.ActionPayoutApproved, "payout", nil, nil))
		clk.Advance(time.Minute)
	}
	require.NoError(t, svc.AuditLog(ctx, "operator", nil, auditdomain.ActionPayoutRejected, "payout", nil, nil))

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Action:     auditdomain.ActionPayoutApproved,
		Pagination: paginationOf(2, ""),
	})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.True(t, first.AuditLogs[0].CreatedAt.After(first.AuditLogs[1].CreatedAt))

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Action:     auditdomain.ActionPayoutApproved,
		Pagination: paginationOf(2, first.NextPageToken),
	})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)

	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: paginationOf(2, "garbage")})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)

	start := clk.Now()
	end := start.Add(-time.Hour)
	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}

func TestListBookingTrail(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	booking := "101"
	other := "202"
	payoutID := "1850000000000000001"
	require.NoError(t, svc.AuditLog(ctx, "api_key", nil, auditdomain.ActionRequestInvalid, "booking", &booking, map[string]any{
		"error": "invalid_payee_address",
	}))
	clk.Advance(time.Minute)
	require.NoError(t, svc.AuditLog(ctx, "api_key", nil, auditdomain.ActionRequestAccepted, "payout", &payoutID, map[string]any{
		"booking_id": booking,
	}))
	clk.Advance(time.Minute)
	require.NoError(t, svc.AuditLog(obscontext.WithBookingID(ctx, booking), "operator", nil, auditdomain.ActionPayoutApproved, "payout", &payoutID, nil))
	require.NoError(t, svc.AuditLog(ctx, "api_key", nil, auditdomain.ActionRequestInvalid, "booking", &other, nil))

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{BookingID: booking})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 3)
	assert.Equal(t, auditdomain.ActionPayoutApproved, resp.AuditLogs[0].Action)
	assert.Equal(t, auditdomain.ActionRequestInvalid, resp.AuditLogs[2].Action)
}

func paginationOf(size int, token string) pagination.Pagination {
	return pagination.Pagination{PageSize: size, PageToken: token}
}
