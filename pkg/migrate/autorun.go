package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/config"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/db"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/db/models"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/logger"
)

// Models lists every table owned by the service, parents first.
func Models() []any {
	return []any{
		&models.Order{},
		&models.VendorOrder{},
		&models.OrderItem{},
		&models.OrderStatusEvent{},
		&models.OutboxEvent{},
	}
}

// MaybeRunDev brings the schema up to date when the auto-migrate flag is set.
// Postgres runs the embedded goose migrations in dev only; SQLite has no goose
// dialect for this schema and is migrated from the models instead.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	if cfg.DB.IsSQLite() {
		ctx = logg.WithField(ctx, "driver", config.DriverSQLite)
		logg.Info(ctx, "running model auto-migration")
		if err := client.DB().WithContext(ctx).AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto-migrating sqlite schema: %w", err)
		}
		return nil
	}

	if !cfg.App.IsDev() {
		return nil
	}

	sqlDB, err := client.SQL()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": "embedded"})
	logg.Info(ctx, "running Goose migrations (dev auto-run)")

	if err := Run(ctx, sqlDB, EmbeddedDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "Goose migrations completed")
	return nil
}
