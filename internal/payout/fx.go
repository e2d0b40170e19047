package payout

import (
	"github.com/smallbiznis/payoutd/internal/notification"
	"github.com/smallbiznis/payoutd/internal/payout/domain"
	"github.com/smallbiznis/payoutd/internal/payout/gateway"
	"github.com/smallbiznis/payoutd/internal/payout/gateway/pix"
	"github.com/smallbiznis/payoutd/internal/payout/gateway/sandbox"
	"github.com/smallbiznis/payoutd/internal/payout/repository"
	"github.com/smallbiznis/payoutd/internal/payout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *gateway.Registry {
		return gateway.NewRegistry(
			pix.NewFactory(),
			sandbox.NewFactory(),
		)
	}),
	fx.Provide(gateway.NewConfiguredAdapter),
	fx.Provide(func(d *notification.Dispatcher) service.Notifier { return d }),
	fx.Provide(
		fx.Annotate(
			service.NewService,
			fx.As(new(domain.SettlementService)),
			fx.As(new(domain.AdminService)),
			fx.As(new(domain.SweepService)),
		),
	),
)
