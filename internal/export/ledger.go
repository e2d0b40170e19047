package export

import (
	"io"
	"strings"
	"time"

	payoutdomain "github.com/smallbiznis/payoutd/internal/payout/domain"
	"github.com/xuri/excelize/v2"
)

const ledgerSheet = "Payouts"

var ledgerHeaders = []string{
	"Payout ID",
	"Booking ID",
	"Method",
	"Status",
	"Payee ID",
	"Net amount",
	"Currency",
	"Payee address",
	"Reference",
	"Risk score",
	"Risk flags",
	"Attempts",
	"Failure reason",
	"Created at",
	"Processed at",
}

// WriteLedger renders payouts as a single-sheet workbook. Payee addresses are masked.
func WriteLedger(w io.Writer, payouts []payoutdomain.Payout) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(ledgerSheet)
	if err != nil {
		return err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}
	f.SetActiveSheet(index)

	for i, header := range ledgerHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(ledgerSheet, cell, header); err != nil {
			return err
		}
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(ledgerHeaders), 1)
	if err := f.SetCellStyle(ledgerSheet, "A1", lastHeader, headerStyle); err != nil {
		return err
	}

	for i, p := range payouts {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			p.ID.String(),
			p.BookingID,
			string(p.Method),
			string(p.Status),
			p.PayeeID,
			payoutdomain.FormatMinor(p.NetAmount),
			p.Currency,
			payoutdomain.MaskAddress(p.PayeeAddress),
			stringValue(p.Reference),
			p.RiskScore,
			strings.Join(p.RiskFlags, ","),
			p.AttemptCount,
			stringValue(p.FailureReason),
			p.CreatedAt.UTC().Format(time.RFC3339),
			timeValue(p.ProcessedAt),
		}
		if err := f.SetSheetRow(ledgerSheet, cell, &row); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func timeValue(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}
