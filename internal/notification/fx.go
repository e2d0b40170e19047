package notification

import (
	"context"
	"net/http"

	"github.com/smallbiznis/payoutd/internal/config"
	obsmetrics "github.com/smallbiznis/payoutd/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(NewFromConfig),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

// NewFromConfig enables every channel that has credentials configured.
func NewFromConfig(p Params) *Dispatcher {
	log := p.Log.Named("notification")
	cfg := p.Config.Notify

	var review []Channel
	if cfg.SlackWebhookURL != "" {
		review = append(review, NewSlackWebhook(cfg.SlackWebhookURL, cfg.SlackChannel, &http.Client{Timeout: cfg.Timeout}))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != 0 {
		tg, err := NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn("telegram channel disabled", zap.Error(err))
		} else {
			review = append(review, tg)
		}
	}

	var receipts Channel
	if cfg.SMTPHost != "" {
		var reviewTo []string
		if cfg.ReviewEmailTo != "" {
			reviewTo = []string{cfg.ReviewEmailTo}
		}
		mail := NewEmail(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom, reviewTo)
		receipts = mail
		if len(reviewTo) > 0 {
			review = append(review, mail)
		}
	}

	d := NewDispatcher(p.Log, p.Metrics, cfg.Timeout, review, receipts)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			d.Wait()
			return nil
		},
	})
	return d
}
