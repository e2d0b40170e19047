package authorization

import (
	"context"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/payoutd/internal/audit/domain"
	"github.com/smallbiznis/payoutd/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingAudit struct {
	actions []string
}

func (r *recordingAudit) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	r.actions = append(r.actions, action)
	return nil
}

func (r *recordingAudit) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

func newTestService(t *testing.T) (*ServiceImpl, *recordingAudit) {
	t.Helper()
	db := testutil.OpenDB(t)
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	for i, row := range []struct {
		keyID  string
		role   string
		active bool
	}{
		{"key_PLATFORM", "system", true},
		{"key_VIEWER", "payout_viewer", true},
		{"key_REVOKED", "payout_admin", false},
	} {
		require.NoError(t, db.Exec(
			`INSERT INTO api_keys (id, key_id, name, role, scopes, key_hash, is_active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, '{}', ?, ?, ?, ?)`,
			i+1, row.keyID, row.keyID, row.role, "hash-"+row.keyID, row.active, now, now,
		).Error)
	}

	enforcer, err := newSeededEnforcer(nil)
	require.NoError(t, err)
	audit := &recordingAudit{}
	svc := NewService(Params{DB: db, Log: zap.NewNop(), Enforcer: enforcer, AuditSvc: audit}).(*ServiceImpl)
	return svc, audit
}

func TestAuthorizeRoles(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		actor  string
		object string
		action string
		want   error
	}{
		{"platform key requests payouts", "api_key:key_PLATFORM", ObjectPayout, ActionRequest, nil},
		{"platform key requests refunds", "api_key:key_PLATFORM", ObjectRefund, ActionRequest, nil},
		{"platform key cannot approve", "api_key:key_PLATFORM", ObjectPayout, ActionApprove, ErrForbidden},
		{"viewer reads payouts", "api_key:key_VIEWER", ObjectPayout, ActionView, nil},
		{"viewer cannot export", "api_key:key_VIEWER", ObjectPayout, ActionExport, ErrForbidden},
		{"revoked key has no role", "api_key:key_REVOKED", ObjectPayout, ActionView, ErrForbidden},
		{"operator approves", "operator:ana", ObjectPayout, ActionApprove, nil},
		{"operator cannot request", "operator:ana", ObjectPayout, ActionRequest, ErrForbidden},
		{"scheduler retries", "scheduler", ObjectPayout, ActionRetry, nil},
		{"unknown actor", "robot:1", ObjectPayout, ActionView, ErrInvalidActor},
		{"empty operator", "operator:", ObjectPayout, ActionView, ErrInvalidActor},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authorize(ctx, tc.actor, tc.object, tc.action)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAuthorizeValidatesArguments(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, " ", ObjectPayout, ActionView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "system", "", ActionView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, "system", ObjectPayout, ""), ErrInvalidAction)
}

func TestAuthorizeAuditsDenials(t *testing.T) {
	svc, audit := newTestService(t)

	err := svc.Authorize(context.Background(), "api_key:key_VIEWER", ObjectPayout, ActionApprove)
	require.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, []string{"authorization.denied"}, audit.actions)

	require.NoError(t, svc.Authorize(context.Background(), "api_key:key_VIEWER", ObjectPayout, ActionView))
	assert.Len(t, audit.actions, 1)
}

func TestEnsureGroupingReplacesStaleRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, "api_key:key_VIEWER", ObjectPayout, ActionView))
	require.NoError(t, svc.db.Exec(`UPDATE api_keys SET role = ? WHERE key_id = ?`, "payout_admin", "key_VIEWER").Error)
	require.NoError(t, svc.Authorize(ctx, "api_key:key_VIEWER", ObjectPayout, ActionExport))

	rules, err := svc.enforcer.GetFilteredGroupingPolicy(0, "api_key:key_VIEWER")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"api_key:key_VIEWER", RolePayoutAdmin}}, rules)
}
