package seed

import (
	"context"
	"fmt"

	apikeydomain "github.com/dev-orchid/shiksha-sub001/internal/apikey/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/config"
	schooldomain "github.com/dev-orchid/shiksha-sub001/internal/school/domain"
	"go.uber.org/zap"
)

const bootstrapKeyName = "bootstrap"

// Bootstrap ensures the configured school exists and imports the configured
// API key for it. Both steps are idempotent, so every startup may run them.
func Bootstrap(ctx context.Context, cfg config.BootstrapConfig, schools schooldomain.Service, keys apikeydomain.Service, log *zap.Logger) error {
	if cfg.SchoolName == "" {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}

	school, err := schools.Ensure(ctx, schooldomain.EnsureRequest{
		Name:     cfg.SchoolName,
		Currency: cfg.SchoolCurrency,
	})
	if err != nil {
		return fmt.Errorf("bootstrap school: %w", err)
	}

	if cfg.APIKey != "" {
		if err := keys.Import(ctx, school.ID, bootstrapKeyName, cfg.APIKey); err != nil {
			return fmt.Errorf("bootstrap api key: %w", err)
		}
	}

	log.Named("seed").Info("bootstrap complete",
		zap.String("school_id", school.ID.String()),
		zap.String("school_code", school.Code),
		zap.Bool("api_key", cfg.APIKey != ""),
	)
	return nil
}
