package booking

import (
	"github.com/smallbiznis/payoutd/internal/booking/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("booking.repository",
	fx.Provide(repository.Provide),
)
