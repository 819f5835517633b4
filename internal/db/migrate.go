package db

import (
	"fmt"

	"github.com/estateiq/estateiq/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// allModels lists every table owned by the service.
func allModels() []any {
	return []any{
		&models.User{},
		&models.Billing{},
		&models.Property{},
		&models.Analysis{},
		&models.AnalyticsLog{},
		&models.Upload{},
	}
}

// migratePostgres applies PostgreSQL-specific schema updates and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(allModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errIdem := conn.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_analyses_user_idempotency
		ON analyses (user_id, idempotency_key)
		WHERE idempotency_key IS NOT NULL
	`).Error; errIdem != nil {
		return fmt.Errorf("db: create analyses idempotency index: %w", errIdem)
	}
	if errPropIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_properties_user_created
		ON properties (user_id, created_at DESC)
	`).Error; errPropIdx != nil {
		return fmt.Errorf("db: create properties user index: %w", errPropIdx)
	}
	if errLogIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_analytics_logs_user_created
		ON analytics_logs (user_id, created_at DESC)
	`).Error; errLogIdx != nil {
		return fmt.Errorf("db: create analytics logs user index: %w", errLogIdx)
	}
	return nil
}

// migrateSQLite applies SQLite-specific schema updates and indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(allModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errIdem := conn.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_analyses_user_idempotency
		ON analyses (user_id, idempotency_key)
		WHERE idempotency_key IS NOT NULL
	`).Error; errIdem != nil {
		return fmt.Errorf("db: create analyses idempotency index: %w", errIdem)
	}
	if errPropIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_properties_user_created
		ON properties (user_id, created_at)
	`).Error; errPropIdx != nil {
		return fmt.Errorf("db: create properties user index: %w", errPropIdx)
	}
	if errLogIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_analytics_logs_user_created
		ON analytics_logs (user_id, created_at)
	`).Error; errLogIdx != nil {
		return fmt.Errorf("db: create analytics logs user index: %w", errLogIdx)
	}
	return nil
}
