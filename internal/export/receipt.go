package export

import (
	"fmt"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	payoutdomain "github.com/smallbiznis/payoutd/internal/payout/domain"
)

// RenderReceipt renders a completed payout as a one-page PDF.
func RenderReceipt(p payoutdomain.Payout) ([]byte, error) {
	if p.Status != payoutdomain.StatusCompleted {
		return nil, ErrReceiptUnavailable
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	title := "Payout receipt"
	if p.Method == payoutdomain.MethodRefund {
		title = "Refund receipt"
	}
	m.AddRow(20,
		text.NewCol(12, title, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	processed := ""
	if p.ProcessedAt != nil {
		processed = p.ProcessedAt.UTC().Format(time.RFC1123)
	}
	m.AddRow(25,
		col.New(6).Add(
			text.New("Payout: "+p.ID.String(), props.Text{Top: 0}),
			text.New(fmt.Sprintf("Booking: %d", p.BookingID), props.Text{Top: 5}),
			text.New("Processed: "+processed, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Reference", props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(stringValue(p.Reference), props.Text{Top: 5, Align: align.Right}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, fmt.Sprintf("%s %s sent to %s", p.Currency, payoutdomain.FormatMinor(p.NetAmount), payoutdomain.MaskAddress(p.PayeeAddress)), props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	lines := []struct {
		label  string
		amount int64
	}{
		{"Booking total", p.TotalAmount},
		{"Service fee", -p.ServiceFee},
		{"Insurance fee", -p.InsuranceFee},
		{"Coupon discount", -p.CouponDiscount},
	}
	for _, line := range lines {
		if line.amount == 0 && line.label != "Booking total" {
			continue
		}
		m.AddRow(8,
			text.NewCol(8, line.label, props.Text{Size: 9}),
			text.NewCol(4, payoutdomain.FormatMinor(line.amount), props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Net", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(2, payoutdomain.FormatMinor(p.NetAmount), props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
