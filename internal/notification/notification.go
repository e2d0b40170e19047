// Package notification delivers manual review alerts and payee receipts.
// Delivery is best effort: errors are logged and counted, never returned to
// the settlement path.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/smallbiznis/payoutd/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	KindManualReview = "manual_review"
	KindPayeeSettled = "payee_settled"
)

// Message is a channel-neutral notification.
type Message struct {
	Kind    string
	Subject string
	Text    string
	// To overrides the channel's default recipients.
	To []string
}

// Channel is one delivery backend.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

type ReviewNotice struct {
	PayoutID  snowflake.ID
	BookingID int64
	Method    string
	NetAmount string
	Currency  string
	RiskScore int
	Flags     []string
}

type PayeeNotice struct {
	PayoutID      snowflake.ID
	Method        string
	Email         string
	NetAmount     string
	Currency      string
	Reference     string
	MaskedAddress string
}

// Dispatcher fans each notice out to its channels in the background.
type Dispatcher struct {
	log      *zap.Logger
	metrics  *obsmetrics.Metrics
	timeout  time.Duration
	review   []Channel
	receipts Channel

	wg sync.WaitGroup
}

func NewDispatcher(log *zap.Logger, metrics *obsmetrics.Metrics, timeout time.Duration, review []Channel, receipts Channel) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		log:      log.Named("notification.dispatcher"),
		metrics:  metrics,
		timeout:  timeout,
		review:   review,
		receipts: receipts,
	}
}

func (d *Dispatcher) NotifyManualReview(ctx context.Context, notice ReviewNotice) {
	flags := "none"
	if len(notice.Flags) > 0 {
		flags = strings.Join(notice.Flags, ", ")
	}
	msg := Message{
		Kind:    KindManualReview,
		Subject: fmt.Sprintf("Payout %s needs review", notice.PayoutID),
		Text: fmt.Sprintf(
			"Settlement %s (%s) for booking %d is waiting for manual review.\nAmount: %s %s\nRisk score: %d\nFlags: %s",
			notice.PayoutID, notice.Method, notice.BookingID, notice.NetAmount, notice.Currency, notice.RiskScore, flags,
		),
	}
	if len(d.review) == 0 {
		d.log.Warn("no review channel configured", zap.String("payout_id", notice.PayoutID.String()))
	}
	for _, ch := range d.review {
		d.dispatch(ctx, ch, msg, notice.PayoutID)
	}
}

func (d *Dispatcher) NotifyPayee(ctx context.Context, notice PayeeNotice) {
	if d.receipts == nil || notice.Email == "" {
		return
	}
	msg := Message{
		Kind:    KindPayeeSettled,
		Subject: fmt.Sprintf("Your %s has been sent", notice.Method),
		Text: fmt.Sprintf("We sent %s %s to %s.\nTransfer reference: %s",
			notice.NetAmount, notice.Currency, notice.MaskedAddress, notice.Reference),
		To: []string{notice.Email},
	}
	d.dispatch(ctx, d.receipts, msg, notice.PayoutID)
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(parent context.Context, ch Channel, msg Message, payoutID snowflake.ID) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.timeout)
		defer cancel()

		err := ch.Send(ctx, msg)
		result := "sent"
		if err != nil {
			result = "failed"
			d.log.Warn("notification delivery failed",
				zap.String("channel", ch.Name()),
				zap.String("kind", msg.Kind),
				zap.String("payout_id", payoutID.String()),
				zap.Error(err),
			)
		}
		d.metrics.RecordNotification(ctx, ch.Name(), msg.Kind, result)
	}()
}
