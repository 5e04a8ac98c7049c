// Package store persists integration runs to SQLite so past results can be
// listed and re-fetched without recomputing.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite handle with pooling and prepared statements.
type DB struct {
	*sql.DB
	pool     *connectionPool
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

type connectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

func newConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *connectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &connectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// Stats returns connection pool statistics for the metrics endpoint.
func (cp *connectionPool) Stats() map[string]interface{} {
	stats := cp.db.Stats()
	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"max_lifetime_seconds": cp.maxLifetime.Seconds(),
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}

// NewDB opens (or creates) the run database under dataDir.
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "mavemeter.db")
	connStr := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pool := newConnectionPool(db, 25, 5, 5*time.Minute)

	database := &DB{
		DB:       db,
		pool:     pool,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := database.initPreparedStatements(); err != nil {
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("run database initialized",
		"path", dbPath,
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns)

	return database, nil
}

func (db *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			experiments INTEGER NOT NULL,
			variants INTEGER NOT NULL,
			observations INTEGER NOT NULL,
			parse_failures INTEGER NOT NULL,
			missingness REAL NOT NULL,
			selected_k INTEGER NOT NULL,
			imputed_cells INTEGER NOT NULL,
			unimputable_cells INTEGER NOT NULL,
			low_confidence BOOLEAN NOT NULL,
			report TEXT NOT NULL -- JSON: full pipeline result sans matrices
		)`,

		`CREATE TABLE IF NOT EXISTS run_variants (
			run_id TEXT NOT NULL,
			variant TEXT NOT NULL,
			n_present INTEGER NOT NULL,
			n_imputed INTEGER NOT NULL,
			mean_effect REAL NOT NULL,
			std_effect REAL NOT NULL,
			category TEXT NOT NULL,
			PRIMARY KEY (run_id, variant),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_run_variants_run ON run_variants(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_run_variants_category ON run_variants(run_id, category)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

func (db *DB) initPreparedStatements() error {
	statements := map[string]string{
		"insert_run": `INSERT INTO runs (
			id, created_at, experiments, variants, observations, parse_failures,
			missingness, selected_k, imputed_cells, unimputable_cells,
			low_confidence, report
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		"insert_run_variant": `INSERT INTO run_variants (
			run_id, variant, n_present, n_imputed, mean_effect, std_effect, category
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,

		"get_run": `SELECT id, created_at, experiments, variants, observations,
			parse_failures, missingness, selected_k, imputed_cells,
			unimputable_cells, low_confidence, report
			FROM runs WHERE id = ?`,

		"list_runs": `SELECT id, created_at, experiments, variants, observations,
			parse_failures, missingness, selected_k, imputed_cells,
			unimputable_cells, low_confidence
			FROM runs ORDER BY created_at DESC LIMIT ?`,

		"get_run_variants": `SELECT variant, n_present, n_imputed, mean_effect,
			std_effect, category
			FROM run_variants WHERE run_id = ? ORDER BY variant`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt
	}
	return nil
}

func (db *DB) stmt(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}
	return stmt, nil
}

// PoolStats exposes pool statistics for the metrics endpoint.
func (db *DB) PoolStats() map[string]interface{} {
	return db.pool.Stats()
}

// Close closes prepared statements and the connection.
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("failed to close prepared statement", "name", name, "error", err)
		}
	}
	db.prepared = make(map[string]*sql.Stmt)

	return db.DB.Close()
}
