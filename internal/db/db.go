// Package db manages the PostgreSQL connection used by the Graph DB layer.
// Migrations and schema-specific statements live in internal/graph, which
// owns the domain schema; this package only opens and tunes the connection.
package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config holds the configuration required to open a database connection.
type Config struct {
	DSN      string
	Logger   *zap.Logger
	LogLevel gormlogger.LogLevel
}

// New opens a PostgreSQL connection and returns the ready-to-use *gorm.DB
// instance. It does not apply migrations, and neither does
// internal/graph.Open, which wraps this; the schema migration sequence runs
// only when a caller invokes graph.(*DB).Migrate.
func New(cfg Config) (*gorm.DB, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("db: logger is required")
	}

	gormCfg := &gorm.Config{
		Logger: newZapGORMLogger(cfg.Logger, cfg.LogLevel),
	}

	database, err := gorm.Open(gormpostgres.Open(cfg.DSN), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("db: failed to open postgres: %w", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("db: failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return database, nil
}

// Ping verifies that the database connection is still alive.
func Ping(ctx context.Context, database *gorm.DB) error {
	sqlDB, err := database.DB()
	if err != nil {
		return fmt.Errorf("db: failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
