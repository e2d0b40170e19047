package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/internal/payout/domain"
	"github.com/smallbiznis/payoutd/internal/testutil"
	"github.com/smallbiznis/payoutd/pkg/db"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newPayout(node *snowflake.Node, bookingID, payeeID int64, status domain.Status, net int64, createdAt time.Time) *domain.Payout {
	return &domain.Payout{
		ID:               node.Generate(),
		BookingID:        bookingID,
		Method:           domain.MethodPayout,
		Status:           status,
		OwnerID:          &payeeID,
		PayeeID:          payeeID,
		RenterID:         99,
		TotalAmount:      net,
		NetAmount:        net,
		Currency:         "BRL",
		PayeeAddress:     "52998224725",
		PayeeAddressType: domain.AddressTaxID,
		Retryable:        true,
		RiskFlags:        []string{},
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
}

func TestRepository_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.OpenDB(t)
	node, _ := snowflake.NewNode(1)
	r := Provide()

	p := newPayout(node, 100, 7, domain.StatusPendingReview, 150_00, base)
	p.RiskFlags = []string{"recent_account_change"}
	require.NoError(t, r.Insert(ctx, gdb, p))

	got, err := r.FindByID(ctx, gdb, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(100), got.BookingID)
	assert.Equal(t, domain.StatusPendingReview, got.Status)
	assert.Equal(t, []string{"recent_account_change"}, []string(got.RiskFlags))
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, int64(7), *got.OwnerID)
	assert.True(t, got.CreatedAt.Equal(base))

	active, err := r.FindActiveByBooking(ctx, gdb, 100)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, p.ID, active.ID)

	none, err := r.FindActiveByBooking(ctx, gdb, 101)
	require.NoError(t, err)
	assert.Nil(t, none)

	missing, err := r.FindByIDForUpdate(ctx, gdb, node.Generate())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_ActiveSlotIsUnique(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.OpenDB(t)
	node, _ := snowflake.NewNode(1)
	r := Provide()

	rejected := newPayout(node, 100, 7, domain.StatusRejected, 150_00, base)
	require.NoError(t, r.Insert(ctx, gdb, rejected))

	first := newPayout(node, 100, 7, domain.StatusProcessing, 150_00, base.Add(time.Minute))
	require.NoError(t, r.Insert(ctx, gdb, first))

	dup := newPayout(node, 100, 7, domain.StatusPendingReview, 150_00, base.Add(2*time.Minute))
	err := r.Insert(ctx, gdb, dup)
	require.Error(t, err)
	assert.True(t, db.IsDuplicateKeyErr(err))

	// the slot belongs to the booking, not the method
	refund := newPayout(node, 100, 99, domain.StatusProcessing, 80_00, base.Add(3*time.Minute))
	refund.Method = domain.MethodRefund
	refund.OwnerID = nil
	err = r.Insert(ctx, gdb, refund)
	require.Error(t, err)
	assert.True(t, db.IsDuplicateKeyErr(err))

	active, err := r.FindActiveByBooking(ctx, gdb, 100)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)
}

func TestRepository_GuardedStatusUpdate(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.OpenDB(t)
	node, _ := snowflake.NewNode(1)
	r := Provide()

	p := newPayout(node, 100, 7, domain.StatusFailed, 150_00, base)
	reason := "timeout"
	p.FailureReason = &reason
	require.NoError(t, r.Insert(ctx, gdb, p))

	at := base.Add(time.Hour)
	ok, err := r.UpdateStatus(ctx, gdb, domain.StatusUpdate{
		ID: p.ID, From: domain.StatusFailed, To: domain.StatusProcessing, At: at,
		ClearFailure: true, IncrementAttempt: true,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// stale writer loses
	ok, err = r.UpdateStatus(ctx, gdb, domain.StatusUpdate{
		ID: p.ID, From: domain.StatusFailed, To: domain.StatusProcessing, At: at,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	ref := "ref-1"
	ok, err = r.UpdateStatus(ctx, gdb, domain.StatusUpdate{
		ID: p.ID, From: domain.StatusProcessing, To: domain.StatusCompleted, At: at,
		Reference: &ref, ProcessedAt: &at,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := r.FindByID(ctx, gdb, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	assert.Nil(t, got.FailureReason)
	require.NotNil(t, got.Reference)
	assert.Equal(t, "ref-1", *got.Reference)
	require.NotNil(t, got.LastAttemptAt)
	assert.True(t, got.LastAttemptAt.Equal(at))
}

func TestRepository_AttemptsAndTransitions(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.OpenDB(t)
	node, _ := snowflake.NewNode(1)
	r := Provide()

	p := newPayout(node, 100, 7, domain.StatusProcessing, 150_00, base)
	require.NoError(t, r.Insert(ctx, gdb, p))

	require.NoError(t, r.InsertAttempt(ctx, gdb, &domain.Attempt{
		ID: node.Generate(), PayoutID: p.ID, AttemptNo: 1,
		IdempotencyKey: "k1", Status: domain.AttemptInFlight, StartedAt: base,
	}))
	err := r.InsertAttempt(ctx, gdb, &domain.Attempt{
		ID: node.Generate(), PayoutID: p.ID, AttemptNo: 2,
		IdempotencyKey: "k1", Status: domain.AttemptInFlight, StartedAt: base,
	})
	assert.True(t, db.IsDuplicateKeyErr(err), "idempotency keys are unique")

	reason := "timeout"
	ok, err := r.FinishAttempt(ctx, gdb, domain.AttemptResult{
		PayoutID: p.ID, AttemptNo: 1, Status: domain.AttemptFailed, FailureReason: &reason, At: base.Add(time.Second),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.FinishAttempt(ctx, gdb, domain.AttemptResult{
		PayoutID: p.ID, AttemptNo: 1, Status: domain.AttemptSucceeded, At: base.Add(2 * time.Second),
	})
	require.NoError(t, err)
	assert.False(t, ok, "finished attempts are not overwritten")

	attempts, err := r.ListAttempts(ctx, gdb, p.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, domain.AttemptFailed, attempts[0].Status)

	from := domain.StatusPendingReview
	require.NoError(t, r.InsertTransition(ctx, gdb, &domain.Transition{
		ID: node.Generate(), PayoutID: p.ID, ToStatus: domain.StatusPendingReview, Actor: "system", OccurredAt: base,
	}))
	require.NoError(t, r.InsertTransition(ctx, gdb, &domain.Transition{
		ID: node.Generate(), PayoutID: p.ID, FromStatus: &from, ToStatus: domain.StatusProcessing, Actor: "system", OccurredAt: base.Add(time.Millisecond),
	}))
	transitions, err := r.ListTransitions(ctx, gdb, p.ID)
	require.NoError(t, err)
	require.Len(t, transitions, 2)
	assert.Nil(t, transitions[0].FromStatus)
	assert.Equal(t, domain.StatusProcessing, transitions[1].ToStatus)
}

func TestRepository_PayeeStatsAndSettledSum(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.OpenDB(t)
	node, _ := snowflake.NewNode(1)
	r := Provide()

	processedToday := base.Add(time.Hour)
	processedYesterday := base.Add(-24 * time.Hour)

	completed := newPayout(node, 1, 7, domain.StatusCompleted, 1_000_00, base)
	completed.ProcessedAt = &processedToday
	inFlight := newPayout(node, 2, 7, domain.StatusProcessing, 500_00, base.Add(time.Minute))
	inFlight.LastAttemptAt = &processedToday
	old := newPayout(node, 3, 7, domain.StatusCompleted, 2_000_00, base.Add(-48*time.Hour))
	old.ProcessedAt = &processedYesterday
	failed := newPayout(node, 4, 7, domain.StatusFailed, 300_00, base.Add(2*time.Minute))
	other := newPayout(node, 5, 8, domain.StatusCompleted, 900_00, base)
	other.ProcessedAt = &processedToday
	refund := newPayout(node, 6, 7, domain.StatusCompleted, 250_00, base.Add(3*time.Minute))
	refund.Method = domain.MethodRefund
	refund.OwnerID = nil
	refund.ProcessedAt = &processedToday

	for _, p := range []*domain.Payout{completed, inFlight, old, failed, other, refund} {
		require.NoError(t, r.Insert(ctx, gdb, p))
	}

	dayStart := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	sum, err := r.SettledSum(ctx, gdb, 7, domain.MethodPayout, dayStart, dayStart.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_00), sum)

	refunded, err := r.SettledSum(ctx, gdb, 7, domain.MethodRefund, dayStart, dayStart.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(250_00), refunded)

	stats, err := r.PayeeStats(ctx, gdb, 7, base.Add(-30*24*time.Hour), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Count)
	assert.Equal(t, 1, stats.FailedCount)
	assert.Equal(t, []int64{250_00, 300_00, 500_00, 1_000_00, 2_000_00}, stats.RecentAmounts)

	empty, err := r.PayeeStats(ctx, gdb, 42, base.Add(-30*24*time.Hour), 5)
	require.NoError(t, err)
	assert.Zero(t, empty.Count)
	assert.Empty(t, empty.RecentAmounts)
}

func TestRepository_Claims(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.OpenDB(t)
	node, _ := snowflake.NewNode(1)
	r := Provide()

	due := newPayout(node, 1, 7, domain.StatusFailed, 100_00, base)
	due.AttemptCount = 1
	exhausted := newPayout(node, 2, 7, domain.StatusFailed, 100_00, base)
	exhausted.AttemptCount = 3
	cooling := newPayout(node, 3, 7, domain.StatusFailed, 100_00, base.Add(50*time.Minute))
	cooling.AttemptCount = 1
	refused := newPayout(node, 6, 7, domain.StatusFailed, 100_00, base)
	refused.Retryable = false
	started := base
	stale := newPayout(node, 4, 7, domain.StatusProcessing, 100_00, base)
	stale.LastAttemptAt = &started
	fresh := newPayout(node, 5, 7, domain.StatusProcessing, 100_00, base.Add(55*time.Minute))

	for _, p := range []*domain.Payout{due, exhausted, cooling, refused, stale, fresh} {
		require.NoError(t, r.Insert(ctx, gdb, p))
	}

	now := base.Add(time.Hour)
	claimed, err := r.ClaimRetryable(ctx, gdb, now.Add(-time.Hour), 3, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)

	staleRows, err := r.ClaimStale(ctx, gdb, now.Add(-10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, staleRows, 1)
	assert.Equal(t, stale.ID, staleRows[0].ID)

	ok, err := r.TouchAttempt(ctx, gdb, stale.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)
	staleRows, err = r.ClaimStale(ctx, gdb, now.Add(-10*time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, staleRows, "touched attempt is no longer stale")

	ok, err = r.TouchAttempt(ctx, gdb, due.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "only processing records are touched")
}

func TestRepository_ListWithCursor(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.OpenDB(t)
	node, _ := snowflake.NewNode(1)
	r := Provide()

	var ids []snowflake.ID
	for i := 0; i < 5; i++ {
		p := newPayout(node, int64(100+i), 7, domain.StatusCompleted, 100_00, base.Add(time.Duration(i)*time.Minute))
		if i == 4 {
			p.Status = domain.StatusFailed
		}
		require.NoError(t, r.Insert(ctx, gdb, p))
		ids = append(ids, p.ID)
	}

	page, err := r.List(ctx, gdb, domain.ListFilter{Status: domain.StatusCompleted}, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[3], page[0].ID)
	assert.Equal(t, ids[2], page[1].ID)

	cursor := &pagination.Cursor{ID: page[1].ID.String(), CreatedAt: page[1].CreatedAt.Format(time.RFC3339Nano)}
	next, err := r.List(ctx, gdb, domain.ListFilter{Status: domain.StatusCompleted}, cursor, 10)
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, ids[1], next[0].ID)
	assert.Equal(t, ids[0], next[1].ID)

	byBooking, err := r.List(ctx, gdb, domain.ListFilter{BookingID: 104}, nil, 10)
	require.NoError(t, err)
	require.Len(t, byBooking, 1)

	_, err = r.List(ctx, gdb, domain.ListFilter{}, &pagination.Cursor{ID: "x", CreatedAt: "nope"}, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}

func TestRepository_LockPayeeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.OpenDB(t)
	r := Provide()

	require.NoError(t, r.LockPayee(ctx, gdb, 7))
	require.NoError(t, r.LockPayee(ctx, gdb, 7))

	var count int64
	require.NoError(t, gdb.Raw(`SELECT COUNT(*) FROM payee_locks`).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}
