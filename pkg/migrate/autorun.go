package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/machawaste/wastelink-backend/pkg/config"
	"github.com/machawaste/wastelink-backend/pkg/db"
	"github.com/machawaste/wastelink-backend/pkg/db/models"
	"github.com/machawaste/wastelink-backend/pkg/logger"
)

// Models lists every table the services read or write, in dependency order.
func Models() []any {
	return []any{
		&models.Account{},
		&models.WasteListing{},
		&models.Match{},
		&models.LedgerEntry{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// MaybeRunDev brings the schema up to date at boot when the app runs in dev
// mode with WASTELINK_AUTO_MIGRATE set. It is a no-op everywhere else.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	started := time.Now()
	strategy, apply := "goose", gooseUp
	if cfg.DB.IsSQLite() {
		strategy, apply = "gorm", gormAutoMigrate
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"driver":   cfg.DB.Driver,
		"strategy": strategy,
	})

	logg.Info(ctx, "dev schema migration starting")
	if err := apply(ctx, client); err != nil {
		logg.Error(ctx, "dev schema migration failed", err)
		return err
	}
	logg.Info(logg.WithField(ctx, "took", time.Since(started).String()), "dev schema migration finished")
	return nil
}

// gormAutoMigrate serves the embedded sqlite driver, which cannot run the
// postgres-only goose files.
func gormAutoMigrate(ctx context.Context, client *db.Client) error {
	if err := client.DB().WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate sqlite: %w", err)
	}
	return nil
}

func gooseUp(ctx context.Context, client *db.Client) error {
	if err := ValidateDir(DefaultDir); err != nil {
		return fmt.Errorf("validate %s: %w", DefaultDir, err)
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}
	if err := Run(ctx, sqlDB, DefaultDir, CommandUp); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
