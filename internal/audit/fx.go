package audit

import (
	"github.com/dev-orchid/shiksha-sub001/internal/audit/repository"
	"github.com/dev-orchid/shiksha-sub001/internal/audit/service"
	"go.uber.org/fx"
)

// Module exposes the audit trail service. Other modules record through it,
// never through the repository.
var Module = fx.Module("audit",
	fx.Provide(repository.Provide, fx.Private),
	fx.Provide(service.NewService),
)
