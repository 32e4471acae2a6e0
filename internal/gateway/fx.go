package gateway

import (
	"github.com/dev-orchid/shiksha-sub001/internal/gateway/providers"
	"github.com/dev-orchid/shiksha-sub001/internal/gateway/repository"
	"github.com/dev-orchid/shiksha-sub001/internal/gateway/service"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway.service",
	fx.Provide(providers.NewRegistryFromConfig),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewBroker),
	fx.Provide(service.NewVerifier),
)
