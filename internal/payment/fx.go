package payment

import (
	"github.com/dev-orchid/shiksha-sub001/internal/payment/repository"
	paymentservice "github.com/dev-orchid/shiksha-sub001/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(paymentservice.NewService),
)
