package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// migrations contains all database migrations in order.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema with samples and pattern clusters",
		Up:          migrationV1Up,
		Down:        migrationV1Down,
	},
	{
		Version:     2,
		Description: "Add domain index for per-platform windows",
		Up:          migrationV2Up,
		Down:        migrationV2Down,
	},
	{
		Version:     3,
		Description: "Add device index for per-device lookups",
		Up:          migrationV3Up,
		Down:        migrationV3Down,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS samples (
    id               TEXT PRIMARY KEY,
    domain           TEXT NOT NULL,
    device_id        TEXT NOT NULL DEFAULT '',
    text             TEXT NOT NULL,
    calibrated_score REAL,
    length           INTEGER NOT NULL DEFAULT 0,
    caps             INTEGER NOT NULL DEFAULT 0,
    punctuation      INTEGER NOT NULL DEFAULT 0,
    digits           INTEGER NOT NULL DEFAULT 0,
    emojis           INTEGER NOT NULL DEFAULT 0,
    urls             INTEGER NOT NULL DEFAULT 0,
    signature_json   TEXT,
    created_at       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_created ON samples(created_at);

CREATE TABLE IF NOT EXISTS pattern_clusters (
    platform         TEXT NOT NULL,
    cluster_type     TEXT NOT NULL,
    length_avg       REAL NOT NULL DEFAULT 0,
    punctuation_rate REAL NOT NULL DEFAULT 0,
    caps_rate        REAL NOT NULL DEFAULT 0,
    emoji_rate       REAL NOT NULL DEFAULT 0,
    digit_rate       REAL NOT NULL DEFAULT 0,
    url_rate         REAL NOT NULL DEFAULT 0,
    entropy          REAL NOT NULL DEFAULT 0,
    burstiness       REAL NOT NULL DEFAULT 0,
    length_std       REAL NOT NULL DEFAULT 0,
    signature_json   TEXT,
    sample_count     INTEGER NOT NULL DEFAULT 0,
    updated_at       INTEGER NOT NULL,
    PRIMARY KEY (platform, cluster_type)
);
`

const migrationV1Down = `
DROP TABLE IF EXISTS pattern_clusters;
DROP TABLE IF EXISTS samples;
`

const migrationV2Up = `
CREATE INDEX IF NOT EXISTS idx_samples_domain ON samples(domain, created_at);
`

const migrationV2Down = `
DROP INDEX IF EXISTS idx_samples_domain;
`

const migrationV3Up = `
CREATE INDEX IF NOT EXISTS idx_samples_device ON samples(device_id);
`

const migrationV3Down = `
DROP INDEX IF EXISTS idx_samples_device;
`

// Migrate applies all pending migrations.
func (s *Store) Migrate() error {
	return MigrateDB(s.db)
}

// MigrateDB applies all pending migrations to the given database.
func MigrateDB(db *sql.DB) error {
	// Ensure migrations table exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	// Apply pending migrations
	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now().UnixNano(), m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// RollbackMigration rolls back the last applied migration.
func RollbackMigration(db *sql.DB) error {
	var currentVersion int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	if currentVersion == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	var migration *Migration
	for i := range migrations {
		if migrations[i].Version == currentVersion {
			migration = &migrations[i]
			break
		}
	}

	if migration == nil {
		return fmt.Errorf("migration %d not found", currentVersion)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if _, err := tx.Exec(migration.Down); err != nil {
		tx.Rollback()
		return fmt.Errorf("rollback migration %d: %w", currentVersion, err)
	}

	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", currentVersion); err != nil {
		tx.Rollback()
		return fmt.Errorf("remove migration record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollback: %w", err)
	}

	return nil
}

// MigrationStatus reports applied and pending migrations.
type MigrationStatus struct {
	CurrentVersion int
	LatestVersion  int
	Pending        []Migration
}

// GetMigrationStatus returns the current migration status.
func GetMigrationStatus(db *sql.DB) (*MigrationStatus, error) {
	status := &MigrationStatus{}
	if len(migrations) > 0 {
		status.LatestVersion = migrations[len(migrations)-1].Version
	}

	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&status.CurrentVersion)
	if err != nil {
		// Migrations table may not exist yet
		status.CurrentVersion = 0
	}

	for _, m := range migrations {
		if m.Version > status.CurrentVersion {
			status.Pending = append(status.Pending, m)
		}
	}

	return status, nil
}
