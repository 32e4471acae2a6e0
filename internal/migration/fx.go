package migration

import (
	"context"
	"strings"

	apikeydomain "github.com/dev-orchid/shiksha-sub001/internal/apikey/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/config"
	schooldomain "github.com/dev-orchid/shiksha-sub001/internal/school/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Config    config.Config
	Log       *zap.Logger
	SchoolSvc schooldomain.Service
	APIKeySvc apikeydomain.Service
}

var Module = fx.Module("migrations",
	fx.Invoke(func(p Params) error {
		if p.Config.DBAutoMigrate {
			if err := applySchema(p.DB, p.Config); err != nil {
				return err
			}
		}
		return seed.Bootstrap(context.Background(), p.Config.Bootstrap, p.SchoolSvc, p.APIKeySvc, p.Log)
	}),
)

// applySchema runs golang-migrate on postgres and AutoMigrate elsewhere.
func applySchema(conn *gorm.DB, cfg config.Config) error {
	if strings.EqualFold(cfg.DBType, "postgres") {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}
	return AutoMigrate(conn)
}
