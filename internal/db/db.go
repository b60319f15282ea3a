package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/plate/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Init initializes the SQLite database at baseDir/plate.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.plate.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, "plate.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify WAL mode is active
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
// Call after Init if you need to tune pool behavior for contention.
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS analysis_jobs (
		  id          TEXT PRIMARY KEY,
		  kind        TEXT NOT NULL,
		  source_ref  TEXT NOT NULL,
		  user_id     TEXT NOT NULL,
		  date        TEXT NOT NULL,
		  status      TEXT NOT NULL DEFAULT 'pending',
		  result_json TEXT,
		  failure     TEXT,
		  entry_id    TEXT,
		  request_key TEXT,
		  created_at  INTEGER NOT NULL,
		  updated_at  INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_analysis_jobs_pending
		ON analysis_jobs(created_at DESC, id DESC)
		WHERE status = 'pending';

		CREATE INDEX IF NOT EXISTS idx_analysis_jobs_user_pending
		ON analysis_jobs(user_id, created_at DESC)
		WHERE status = 'pending';

		CREATE UNIQUE INDEX IF NOT EXISTS idx_analysis_jobs_request_key
		ON analysis_jobs(request_key)
		WHERE request_key IS NOT NULL;

		CREATE TABLE IF NOT EXISTS entries (
		  id                   TEXT PRIMARY KEY,
		  user_id              TEXT NOT NULL,
		  date                 TEXT NOT NULL,
		  name                 TEXT NOT NULL,
		  ingredients_json     TEXT NOT NULL,
		  total_protein        REAL NOT NULL,
		  total_calories       REAL,
		  amino_recommendation TEXT,
		  image_url            TEXT,
		  entry_method         TEXT NOT NULL,
		  version              INTEGER NOT NULL DEFAULT 1,
		  created_at           INTEGER NOT NULL,
		  updated_at           INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_entries_user_date
		ON entries(user_id, date, created_at);

		CREATE TABLE IF NOT EXISTS fix_jobs (
		  id            TEXT PRIMARY KEY,
		  entry_id      TEXT NOT NULL,
		  instruction   TEXT NOT NULL,
		  status        TEXT NOT NULL DEFAULT 'pending',
		  snapshot_json TEXT NOT NULL,
		  result_json   TEXT,
		  failure       TEXT,
		  request_key   TEXT,
		  created_at    INTEGER NOT NULL,
		  updated_at    INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_fix_jobs_status_created
		ON fix_jobs(status, created_at DESC);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_fix_jobs_request_key
		ON fix_jobs(request_key)
		WHERE request_key IS NOT NULL;
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
