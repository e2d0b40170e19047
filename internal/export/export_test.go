package export

import (
	"bytes"
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/internal/clock"
	payoutdomain "github.com/smallbiznis/payoutd/internal/payout/domain"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type mockAdmin struct {
	mock.Mock
	payoutdomain.AdminService
}

func (m *mockAdmin) List(ctx context.Context, req payoutdomain.ListRequest) (payoutdomain.ListResponse, error) {
	args := m.Called(req.PageToken)
	return args.Get(0).(payoutdomain.ListResponse), args.Error(1)
}

func (m *mockAdmin) Get(ctx context.Context, id snowflake.ID) (payoutdomain.Payout, error) {
	args := m.Called(id)
	return args.Get(0).(payoutdomain.Payout), args.Error(1)
}

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func samplePayout(id int64, status payoutdomain.Status) payoutdomain.Payout {
	ref := "E2E-" + strconv.FormatInt(id, 10)
	processed := testNow.Add(-time.Hour)
	return payoutdomain.Payout{
		ID:           snowflake.ID(id),
		BookingID:    100 + id,
		Method:       payoutdomain.MethodPayout,
		Status:       status,
		PayeeID:      7,
		TotalAmount:  20000,
		ServiceFee:   3000,
		InsuranceFee: 1000,
		NetAmount:    16000,
		Currency:     "BRL",
		PayeeAddress: "52998224725",
		Reference:    &ref,
		RiskFlags:    []string{"young_account"},
		AttemptCount: 1,
		CreatedAt:    testNow.Add(-2 * time.Hour),
		ProcessedAt:  &processed,
	}
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "payouts-march-close-20261014-120000.xlsx", Filename("payouts", "March Close!", testNow, ".xlsx"))
	assert.Equal(t, "payouts-20261014-120000.xlsx", Filename("payouts", "", testNow, "xlsx"))
	assert.Equal(t, "export-20261014-120000.pdf", Filename("", "  ", testNow, "pdf"))
}

func TestWriteLedgerMasksAddresses(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLedger(&buf, []payoutdomain.Payout{samplePayout(1, payoutdomain.StatusCompleted)}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{ledgerSheet}, f.GetSheetList())
	rows, err := f.GetRows(ledgerSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ledgerHeaders, rows[0])
	assert.Equal(t, "160.00", rows[1][5])
	assert.Equal(t, "*******4725", rows[1][7])
	assert.Equal(t, "young_account", rows[1][10])
}

func TestLedgerPagesThroughResults(t *testing.T) {
	admin := &mockAdmin{}
	admin.On("List", "").Return(payoutdomain.ListResponse{
		PageInfo: pagination.PageInfo{HasMore: true, NextPageToken: "next"},
		Payouts:  []payoutdomain.Payout{samplePayout(1, payoutdomain.StatusCompleted)},
	}, nil).Once()
	admin.On("List", "next").Return(payoutdomain.ListResponse{
		Payouts: []payoutdomain.Payout{samplePayout(2, payoutdomain.StatusFailed)},
	}, nil).Once()

	svc := NewService(Params{Log: zap.NewNop(), Clock: clock.NewFakeClock(testNow), Admin: admin})
	file, err := svc.Ledger(context.Background(), LedgerRequest{Label: "october"})
	require.NoError(t, err)
	admin.AssertExpectations(t)

	assert.Equal(t, "payouts-october-20261014-120000.xlsx", file.Name)
	assert.Equal(t, ContentTypeXLSX, file.ContentType)

	f, err := excelize.OpenReader(bytes.NewReader(file.Body))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(ledgerSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestReceiptRequiresCompletedPayout(t *testing.T) {
	admin := &mockAdmin{}
	admin.On("Get", snowflake.ID(1)).Return(samplePayout(1, payoutdomain.StatusCompleted), nil)
	admin.On("Get", snowflake.ID(2)).Return(samplePayout(2, payoutdomain.StatusFailed), nil)

	svc := NewService(Params{Log: zap.NewNop(), Clock: clock.NewFakeClock(testNow), Admin: admin})

	file, err := svc.Receipt(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ContentTypePDF, file.ContentType)
	assert.Equal(t, "receipt-payout-1-20261014-110000.pdf", file.Name)
	assert.True(t, bytes.HasPrefix(file.Body, []byte("%PDF")))

	_, err = svc.Receipt(context.Background(), 2)
	assert.ErrorIs(t, err, ErrReceiptUnavailable)
}
