// Package graph owns the Graph DB schema: the migration runner, the
// pre-order-DFS transactional persistence of a JobResult tree, and the
// NUL-replacement pass required at the persistence boundary.
//
// Open wraps internal/db's GORM-backed connection pool (same pgx/v5
// postgres driver, same zap-adapted logger, same pool tuning every other
// caller gets) and then drops to the pool's underlying *sql.DB for the
// migration runner's whole-file batch execution and the graph insert's
// RETURNING/ON CONFLICT clauses, neither of which has a natural GORM
// query-builder expression.
package graph

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/contextal/workgraph/internal/db"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBSchemaVersion is the compiled-in target schema version. Bumping it
// requires adding migrations/<version zero-padded to 6>.sql.
const DBSchemaVersion = 2

// DB wraps the Graph DB connection and exposes the operations the Grapher
// and the rules engine need: migration, transactional persistence, and
// read-only subgraph queries.
type DB struct {
	sql *sql.DB
	log *zap.Logger
}

// Open opens the connection pool via internal/db.New and verifies
// connectivity. It does not run migrations — call Migrate explicitly so
// that a caller which only needs read access (the Director, via
// internal/rulesengine) can open a DB without racing the Grapher's
// migration transaction.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*DB, error) {
	gormDB, err := db.New(db.Config{DSN: dsn, Logger: log, LogLevel: gormlogger.Warn})
	if err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("graph: unwrap sql.DB: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("graph: ping: %w", err)
	}

	return &DB{sql: sqlDB, log: log}, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	return db.sql.Close()
}

// Ping verifies the connection is alive. The /healthz handler does not call
// it; /healthz reports only the process's failure notifier.
func (db *DB) Ping(ctx context.Context) error {
	return db.sql.PingContext(ctx)
}
