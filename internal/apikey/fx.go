package apikey

import (
	"github.com/dev-orchid/shiksha-sub001/internal/apikey/repository"
	"github.com/dev-orchid/shiksha-sub001/internal/apikey/service"
	"go.uber.org/fx"
)

// Module exposes the key service; the key store stays private to it.
var Module = fx.Module("apikey",
	fx.Provide(repository.Provide, fx.Private),
	fx.Provide(service.New),
)
