package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	apikeydomain "github.com/dev-orchid/shiksha-sub001/internal/apikey/domain"
	auditdomain "github.com/dev-orchid/shiksha-sub001/internal/audit/domain"
	gatewaydomain "github.com/dev-orchid/shiksha-sub001/internal/gateway/domain"
	invoicedomain "github.com/dev-orchid/shiksha-sub001/internal/invoice/domain"
	paymentdomain "github.com/dev-orchid/shiksha-sub001/internal/payment/domain"
	schooldomain "github.com/dev-orchid/shiksha-sub001/internal/school/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded postgres schema.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// gatewayIndexes are the partial unique indexes AutoMigrate cannot express.
var gatewayIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_gateway_txn ON payments (school_id, transaction_id)
		WHERE payment_mode = 'online_gateway' AND kind = 'payment'`,
}

// AutoMigrate builds the schema from the models. It serves sqlite and mysql
// deployments and the test suites.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&schooldomain.School{},
		&schooldomain.SchoolCounter{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&paymentdomain.Payment{},
		&gatewaydomain.GatewayOrder{},
		&gatewaydomain.GatewayEvent{},
		&auditdomain.AuditLog{},
		&apikeydomain.APIKey{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if db.Dialector.Name() == "mysql" {
		// mysql has no partial indexes; the verifier's transaction lookup still guards duplicates.
		return nil
	}
	for _, stmt := range gatewayIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
