package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/payoutd/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/payoutd/internal/audit/domain"
	"github.com/smallbiznis/payoutd/internal/authorization"
	"github.com/smallbiznis/payoutd/internal/clock"
	"github.com/smallbiznis/payoutd/internal/config"
	"github.com/smallbiznis/payoutd/internal/export"
	"github.com/smallbiznis/payoutd/internal/observability"
	payoutdomain "github.com/smallbiznis/payoutd/internal/payout/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	systemKey = "pk_live_system"
	adminKey  = "pk_live_admin"
	viewerKey = "pk_live_viewer"
)

type fakeAPIKeys struct {
	keys    map[string]*apikeydomain.APIKey
	revoked []string
}

func newFakeAPIKeys() *fakeAPIKeys {
	return &fakeAPIKeys{keys: map[string]*apikeydomain.APIKey{
		systemKey: {KeyID: "key_system", Role: apikeydomain.RoleSystem, IsActive: true},
		adminKey:  {KeyID: "key_admin", Role: apikeydomain.RolePayoutAdmin, IsActive: true},
		viewerKey: {KeyID: "key_viewer", Role: apikeydomain.RolePayoutViewer, IsActive: true},
	}}
}

func (f *fakeAPIKeys) List(ctx context.Context) ([]apikeydomain.Response, error) {
	return nil, nil
}

func (f *fakeAPIKeys) Create(ctx context.Context, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	if !apikeydomain.ValidRole(req.Role) {
		return nil, apikeydomain.ErrInvalidRole
	}
	return &apikeydomain.SecretResponse{KeyID: "key_new", Role: req.Role, APIKey: "pk_live_new"}, nil
}

func (f *fakeAPIKeys) Revoke(ctx context.Context, keyID string) error {
	f.revoked = append(f.revoked, keyID)
	return nil
}

func (f *fakeAPIKeys) Authenticate(ctx context.Context, raw string) (*apikeydomain.APIKey, error) {
	key, ok := f.keys[raw]
	if !ok {
		return nil, apikeydomain.ErrUnauthorized
	}
	return key, nil
}

// fakeAuthz grants by key id, mirroring the seeded role policies.
type fakeAuthz struct {
	grants map[string]map[string]bool
}

func newFakeAuthz() *fakeAuthz {
	return &fakeAuthz{grants: map[string]map[string]bool{
		"api_key:key_system": {
			"payout:request": true,
			"refund:request": true,
			"payout:view":    true,
			"payout:retry":   true,
		},
		"api_key:key_admin": {
			"payout:view":      true,
			"payout:approve":   true,
			"payout:reject":    true,
			"payout:retry":     true,
			"payout:export":    true,
			"audit:view":       true,
			"api_key:view":     true,
			"api_key:create":   true,
			"api_key:revoke":   true,
			"risk_policy:view": true,
		},
		"api_key:key_viewer": {
			"payout:view": true,
		},
	}}
}

func (f *fakeAuthz) Authorize(ctx context.Context, actor, object, action string) error {
	if f.grants[actor][object+":"+action] {
		return nil
	}
	return authorization.ErrForbidden
}

type auditEntry struct {
	action   string
	targetID string
	metadata map[string]any
}

type fakeAudit struct {
	entries  []auditEntry
	lastList auditdomain.ListAuditLogRequest
}

func (f *fakeAudit) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	entry := auditEntry{action: action, metadata: metadata}
	if targetID != nil {
		entry.targetID = *targetID
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAudit) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	f.lastList = req
	return auditdomain.ListAuditLogResponse{AuditLogs: []auditdomain.AuditLog{}}, nil
}

type mockSettlement struct {
	mock.Mock
}

func (m *mockSettlement) RequestPayout(ctx context.Context, req payoutdomain.PayoutRequest) (payoutdomain.SettlementResult, error) {
	args := m.Called(req)
	return args.Get(0).(payoutdomain.SettlementResult), args.Error(1)
}

func (m *mockSettlement) RequestRefund(ctx context.Context, req payoutdomain.RefundRequest) (payoutdomain.SettlementResult, error) {
	args := m.Called(req)
	return args.Get(0).(payoutdomain.SettlementResult), args.Error(1)
}

type mockAdmin struct {
	mock.Mock
}

func (m *mockAdmin) Get(ctx context.Context, id snowflake.ID) (payoutdomain.Payout, error) {
	args := m.Called(id)
	return args.Get(0).(payoutdomain.Payout), args.Error(1)
}

func (m *mockAdmin) List(ctx context.Context, req payoutdomain.ListRequest) (payoutdomain.ListResponse, error) {
	args := m.Called(req)
	return args.Get(0).(payoutdomain.ListResponse), args.Error(1)
}

func (m *mockAdmin) Attempts(ctx context.Context, id snowflake.ID) ([]payoutdomain.Attempt, error) {
	args := m.Called(id)
	attempts, _ := args.Get(0).([]payoutdomain.Attempt)
	return attempts, args.Error(1)
}

func (m *mockAdmin) Transitions(ctx context.Context, id snowflake.ID) ([]payoutdomain.Transition, error) {
	args := m.Called(id)
	transitions, _ := args.Get(0).([]payoutdomain.Transition)
	return transitions, args.Error(1)
}

func (m *mockAdmin) Approve(ctx context.Context, req payoutdomain.ReviewRequest) (payoutdomain.SettlementResult, error) {
	args := m.Called(req)
	return args.Get(0).(payoutdomain.SettlementResult), args.Error(1)
}

func (m *mockAdmin) Reject(ctx context.Context, req payoutdomain.ReviewRequest) (payoutdomain.Payout, error) {
	args := m.Called(req)
	return args.Get(0).(payoutdomain.Payout), args.Error(1)
}

func (m *mockAdmin) Retry(ctx context.Context, req payoutdomain.RetryRequest) (payoutdomain.SettlementResult, error) {
	args := m.Called(req)
	return args.Get(0).(payoutdomain.SettlementResult), args.Error(1)
}

type testServer struct {
	engine     *gin.Engine
	settlement *mockSettlement
	admin      *mockAdmin
	audit      *fakeAudit
	apiKeys    *fakeAPIKeys
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	settlement := &mockSettlement{}
	admin := &mockAdmin{}
	audit := &fakeAudit{}
	apiKeys := newFakeAPIKeys()
	log := zap.NewNop()

	exportSvc := export.NewService(export.Params{
		Log:   log,
		Clock: clock.NewFakeClock(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)),
		Admin: admin,
		Audit: audit,
	})

	srv := NewServer(ServerParams{
		Gin:           NewEngine(observability.Config{}, nil),
		Cfg:           config.Config{Environment: "test"},
		Log:           log,
		APIKeySvc:     apiKeys,
		AuthzSvc:      newFakeAuthz(),
		AuditSvc:      audit,
		SettlementSvc: settlement,
		AdminSvc:      admin,
		ExportSvc:     exportSvc,
		Policy:        config.NewStaticRiskPolicy(config.DefaultRiskPolicy()),
	})

	t.Cleanup(func() {
		settlement.AssertExpectations(t)
		admin.AssertExpectations(t)
	})

	return &testServer{
		engine:     srv.Engine(),
		settlement: settlement,
		admin:      admin,
		audit:      audit,
		apiKeys:    apiKeys,
	}
}

func (ts *testServer) do(method, path, key string, body any, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name   string
		header string
	}{
		{name: "missing", header: ""},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "unknown key", header: "Bearer pk_live_unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/v1/payouts", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			ts.engine.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "unauthorized", decodeError(t, rec).Type)
		})
	}
}

func TestRequestPayoutParsesDecimalAmounts(t *testing.T) {
	ts := newTestServer(t)

	ts.settlement.On("RequestPayout", payoutdomain.PayoutRequest{
		BookingID: 100,
		OwnerID:   7,
		RenterID:  8,
		Amounts: payoutdomain.Amounts{
			Total:          20000,
			ServiceFee:     3000,
			InsuranceFee:   1050,
			CouponDiscount: 0,
		},
		PayeeAddress:    "owner@example.com",
		AddressTypeHint: payoutdomain.AddressEmail,
	}).Return(payoutdomain.SettlementResult{
		Outcome:   payoutdomain.OutcomeAcceptedAndSettled,
		PayoutID:  snowflake.ID(1),
		Status:    payoutdomain.StatusCompleted,
		Reference: "E2E-1",
	}, nil).Once()

	rec := ts.do(http.MethodPost, "/internal/v1/payouts", systemKey, map[string]any{
		"booking_id":    100,
		"owner_id":      7,
		"renter_id":     8,
		"total_amount":  "200.00",
		"service_fee":   "30",
		"insurance_fee": "10.50",
		"payee_address": "owner@example.com",
		"address_type":  "email",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Data payoutdomain.SettlementResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, payoutdomain.OutcomeAcceptedAndSettled, resp.Data.Outcome)
	assert.Equal(t, "E2E-1", resp.Data.Reference)
}

func TestRequestPayoutRejectsBadAmountWithoutCallingService(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/internal/v1/payouts", systemKey, map[string]any{
		"booking_id":    100,
		"owner_id":      7,
		"renter_id":     8,
		"total_amount":  "200.001",
		"payee_address": "owner@example.com",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "total_amount", payload.Errors[0].Field)

	require.Len(t, ts.audit.entries, 1)
	assert.Equal(t, auditdomain.ActionRequestInvalid, ts.audit.entries[0].action)
	assert.Equal(t, "100", ts.audit.entries[0].targetID)
}

func TestRequestPayoutOutcomeStatusCodes(t *testing.T) {
	cases := []struct {
		outcome payoutdomain.Outcome
		status  int
	}{
		{payoutdomain.OutcomeAcceptedAndSettled, http.StatusOK},
		{payoutdomain.OutcomeAcceptedAndQueued, http.StatusAccepted},
		{payoutdomain.OutcomeAcceptedForReview, http.StatusAccepted},
		{payoutdomain.OutcomeRejected, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(string(tc.outcome), func(t *testing.T) {
			ts := newTestServer(t)
			ts.settlement.On("RequestPayout", mock.Anything).
				Return(payoutdomain.SettlementResult{Outcome: tc.outcome, Flags: []string{"high_volume"}}, nil).Once()

			rec := ts.do(http.MethodPost, "/internal/v1/payouts", systemKey, map[string]any{
				"booking_id":    101,
				"owner_id":      7,
				"renter_id":     8,
				"total_amount":  "50.00",
				"payee_address": "owner@example.com",
			})
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestRequestPayoutAlreadyProcessedCarriesRecord(t *testing.T) {
	ts := newTestServer(t)
	ts.settlement.On("RequestPayout", mock.Anything).Return(payoutdomain.SettlementResult{
		Outcome:  payoutdomain.OutcomeAlreadyProcessed,
		PayoutID: snowflake.ID(55),
		Status:   payoutdomain.StatusCompleted,
	}, payoutdomain.ErrAlreadyProcessed).Once()

	rec := ts.do(http.MethodPost, "/internal/v1/payouts", systemKey, map[string]any{
		"booking_id":    100,
		"owner_id":      7,
		"renter_id":     8,
		"total_amount":  "200.00",
		"payee_address": "owner@example.com",
	})

	require.Equal(t, http.StatusConflict, rec.Code)
	var resp struct {
		Data  payoutdomain.SettlementResult `json:"data"`
		Error errorPayload                  `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "already_processed", resp.Error.Type)
	assert.Equal(t, snowflake.ID(55), resp.Data.PayoutID)
}

func TestRequestPayoutRetryPendingPointsAtRetryEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.settlement.On("RequestPayout", mock.Anything).Return(payoutdomain.SettlementResult{
		Outcome:  payoutdomain.OutcomeAlreadyProcessed,
		PayoutID: snowflake.ID(56),
		Status:   payoutdomain.StatusFailed,
	}, payoutdomain.ErrRetryPending).Once()

	rec := ts.do(http.MethodPost, "/internal/v1/payouts", systemKey, map[string]any{
		"booking_id":    100,
		"owner_id":      7,
		"renter_id":     8,
		"total_amount":  "200.00",
		"payee_address": "owner@example.com",
	})

	require.Equal(t, http.StatusConflict, rec.Code)
	var resp struct {
		Data  payoutdomain.SettlementResult `json:"data"`
		Error errorPayload                  `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "retry_pending", resp.Error.Type)
	assert.Contains(t, resp.Error.Message, "/admin/v1/bookings/{booking_id}/retry")
	assert.Equal(t, snowflake.ID(56), resp.Data.PayoutID)
}

func TestRequestRefund(t *testing.T) {
	ts := newTestServer(t)
	ts.settlement.On("RequestRefund", payoutdomain.RefundRequest{
		BookingID:    200,
		RenterID:     8,
		Amount:       4990,
		PayeeAddress: "+5511987654321",
		Reason:       "owner cancelled",
	}).Return(payoutdomain.SettlementResult{Outcome: payoutdomain.OutcomeAcceptedAndQueued}, nil).Once()

	rec := ts.do(http.MethodPost, "/internal/v1/refunds", systemKey, map[string]any{
		"booking_id":    200,
		"renter_id":     8,
		"amount":        "49.90",
		"payee_address": "+5511987654321",
		"reason":        " owner cancelled ",
	})

	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
}

func TestSettlementRequiresSystemRole(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/internal/v1/payouts", viewerKey, map[string]any{"booking_id": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSettlementServiceErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{payoutdomain.ErrBookingNotFound, http.StatusNotFound, "not_found"},
		{payoutdomain.ErrBookingNotPaid, http.StatusUnprocessableEntity, "booking_not_paid"},
		{payoutdomain.ErrPartyMismatch, http.StatusUnprocessableEntity, "party_mismatch"},
		{payoutdomain.ErrRefundExceedsBooking, http.StatusUnprocessableEntity, "refund_exceeds_booking"},
		{payoutdomain.ErrInvalidPayeeAddress, http.StatusBadRequest, "validation_error"},
		{payoutdomain.ErrConcurrentRequest, http.StatusConflict, "concurrent_request"},
		{payoutdomain.ErrGatewayNotConfigured, http.StatusServiceUnavailable, "service_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			ts := newTestServer(t)
			ts.settlement.On("RequestPayout", mock.Anything).Return(payoutdomain.SettlementResult{}, tc.err).Once()

			rec := ts.do(http.MethodPost, "/internal/v1/payouts", systemKey, map[string]any{
				"booking_id":    100,
				"owner_id":      7,
				"renter_id":     8,
				"total_amount":  "20.00",
				"payee_address": "owner@example.com",
			})
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.kind, decodeError(t, rec).Type)
		})
	}
}

func TestListPayoutsParsesFilters(t *testing.T) {
	ts := newTestServer(t)

	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC).Add(24*time.Hour - time.Nanosecond)
	ts.admin.On("List", payoutdomain.ListRequest{
		Status:    "failed",
		Method:    "payout",
		BookingID: 100,
		From:      &from,
		To:        &to,
		PageSize:  50,
	}).Return(payoutdomain.ListResponse{
		Payouts: []payoutdomain.Payout{{ID: 1, NetAmount: 16000, Status: payoutdomain.StatusFailed}},
	}, nil).Once()

	rec := ts.do(http.MethodGet, "/admin/v1/payouts?status=failed&method=payout&booking_id=100&from=2026-10-01&to=2026-10-14&page_size=50", viewerKey, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "160.00", resp.Data[0]["net_amount_formatted"])
	assert.EqualValues(t, 16000, resp.Data[0]["net_amount"])
}

func TestListPayoutsRejectsBadFilters(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/admin/v1/payouts?booking_id=abc", viewerKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/admin/v1/payouts?from=yesterday", viewerKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.admin.On("List", mock.Anything).Return(payoutdomain.ListResponse{}, payoutdomain.ErrInvalidStatusFilter).Once()
	rec = ts.do(http.MethodGet, "/admin/v1/payouts?status=settled", viewerKey, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "status", payload.Errors[0].Field)
}

func TestGetPayoutNotFound(t *testing.T) {
	ts := newTestServer(t)
	ts.admin.On("Get", snowflake.ID(42)).Return(payoutdomain.Payout{}, payoutdomain.ErrPayoutNotFound).Once()

	rec := ts.do(http.MethodGet, "/admin/v1/payouts/42", viewerKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "payout not found", decodeError(t, rec).Message)

	rec = ts.do(http.MethodGet, "/admin/v1/payouts/not-a-number", viewerKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAttemptsReturnsEmptyArray(t *testing.T) {
	ts := newTestServer(t)
	ts.admin.On("Attempts", snowflake.ID(42)).Return(nil, nil).Once()

	rec := ts.do(http.MethodGet, "/admin/v1/payouts/42/attempts", viewerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}

func TestApproveUsesOperatorHeader(t *testing.T) {
	ts := newTestServer(t)
	ts.admin.On("Approve", payoutdomain.ReviewRequest{
		ID:    snowflake.ID(42),
		Actor: "operator:alice",
		Note:  "documents verified",
	}).Return(payoutdomain.SettlementResult{Outcome: payoutdomain.OutcomeAcceptedAndSettled}, nil).Once()

	rec := ts.do(http.MethodPost, "/admin/v1/payouts/42/approve", adminKey,
		map[string]any{"reason": "documents verified"}, HeaderOperator, "alice")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestApproveDeniedForViewer(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/admin/v1/payouts/42/approve", viewerKey, map[string]any{})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestApproveDailyCapReached(t *testing.T) {
	ts := newTestServer(t)
	ts.admin.On("Approve", mock.Anything).Return(payoutdomain.SettlementResult{}, payoutdomain.ErrDailyLimitExceeded).Once()

	rec := ts.do(http.MethodPost, "/admin/v1/payouts/42/approve", adminKey, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "daily_limit_exceeded", decodeError(t, rec).Type)
}

func TestRejectRequiresReason(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/admin/v1/payouts/42/reject", adminKey, map[string]any{"reason": "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "reason", payload.Errors[0].Field)
}

func TestRejectFallsBackToKeyActor(t *testing.T) {
	ts := newTestServer(t)
	ts.admin.On("Reject", payoutdomain.ReviewRequest{
		ID:    snowflake.ID(42),
		Actor: "api_key:key_admin",
		Note:  "ownership mismatch",
	}).Return(payoutdomain.Payout{ID: 42, Status: payoutdomain.StatusRejected}, nil).Once()

	rec := ts.do(http.MethodPost, "/admin/v1/payouts/42/reject", adminKey, map[string]any{"reason": "ownership mismatch"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRetryBooking(t *testing.T) {
	ts := newTestServer(t)
	ts.admin.On("Retry", payoutdomain.RetryRequest{
		BookingID: 100,
		Method:    payoutdomain.MethodRefund,
		Actor:     "api_key:key_admin",
		Force:     true,
	}).Return(payoutdomain.SettlementResult{Outcome: payoutdomain.OutcomeAcceptedAndSettled}, nil).Once()

	rec := ts.do(http.MethodPost, "/admin/v1/bookings/100/retry", adminKey, map[string]any{"method": "refund", "force": true})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodPost, "/admin/v1/bookings/100/retry", adminKey, map[string]any{"method": "chargeback"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetryExhaustedAndNotRetryable(t *testing.T) {
	ts := newTestServer(t)
	ts.admin.On("Retry", mock.Anything).Return(payoutdomain.SettlementResult{}, payoutdomain.ErrRetriesExhausted).Once()
	ts.admin.On("Retry", mock.Anything).Return(payoutdomain.SettlementResult{}, payoutdomain.ErrPayoutNotRetryable).Once()

	rec := ts.do(http.MethodPost, "/admin/v1/bookings/100/retry", adminKey, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(http.MethodPost, "/admin/v1/bookings/100/retry", adminKey, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReceiptOnlyForCompletedPayouts(t *testing.T) {
	ts := newTestServer(t)
	ts.admin.On("Get", snowflake.ID(42)).Return(payoutdomain.Payout{
		ID:     42,
		Method: payoutdomain.MethodPayout,
		Status: payoutdomain.StatusFailed,
	}, nil).Once()

	rec := ts.do(http.MethodGet, "/admin/v1/payouts/42/receipt", viewerKey, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "receipt_unavailable", decodeError(t, rec).Type)
}

func TestExportPayoutsReturnsSpreadsheet(t *testing.T) {
	ts := newTestServer(t)
	ts.admin.On("List", mock.Anything).Return(payoutdomain.ListResponse{
		Payouts: []payoutdomain.Payout{{ID: 1, Status: payoutdomain.StatusCompleted, PayeeAddress: "owner@example.com"}},
	}, nil).Once()

	rec := ts.do(http.MethodGet, "/admin/v1/payouts/export?status=completed&label=October%20close", adminKey, nil, HeaderOperator, "alice")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, export.ContentTypeXLSX, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "payouts-october-close-20261014-120000.xlsx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	require.Len(t, ts.audit.entries, 1)
	assert.Equal(t, auditdomain.ActionPayoutExported, ts.audit.entries[0].action)
}

func TestExportDeniedForViewer(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/admin/v1/payouts/export", viewerKey, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateAndRevokeAPIKey(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/admin/v1/api-keys", adminKey, map[string]any{"name": "booking platform", "role": "system"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "pk_live_new")

	rec = ts.do(http.MethodPost, "/admin/v1/api-keys", adminKey, map[string]any{"name": "x", "role": "root"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/admin/v1/api-keys/key_old/revoke", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"key_old"}, ts.apiKeys.revoked)

	rec = ts.do(http.MethodPost, "/admin/v1/api-keys/key_admin/revoke", adminKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRiskPolicy(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/admin/v1/risk-policy", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"daily_cap"`)

	rec = ts.do(http.MethodGet, "/admin/v1/risk-policy", viewerKey, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuditLogsBookingTrail(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/admin/v1/audit-logs?booking_id=100", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"data":[],"page_info":{"has_more":false}}`, rec.Body.String())
	assert.Equal(t, "100", ts.audit.lastList.BookingID)
	assert.Empty(t, ts.audit.lastList.TargetType)

	rec = ts.do(http.MethodGet, "/admin/v1/audit-logs?booking_id=abc", adminKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRouteReturnsEnvelope(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestClassifyErrorForLog(t *testing.T) {
	kind, code := classifyErrorForLog(payoutdomain.ErrInvalidAmount)
	assert.Equal(t, "validation_error", kind)
	assert.Equal(t, "invalid_amount", code)

	kind, code = classifyErrorForLog(errors.New("db down"))
	assert.Equal(t, "internal_error", kind)
	assert.Equal(t, "internal", code)
}
