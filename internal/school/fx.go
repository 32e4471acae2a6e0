package school

import (
	"github.com/dev-orchid/shiksha-sub001/internal/school/repository"
	"github.com/dev-orchid/shiksha-sub001/internal/school/service"
	"go.uber.org/fx"
)

var Module = fx.Module("school.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideSequences),
	fx.Provide(service.NewService),
)
