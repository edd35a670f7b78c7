package app

import (
	"fmt"

	"dstash/internal/config"
	"dstash/internal/database"
	"dstash/internal/database/migrations"
)

// The schema commands open the database directly instead of going
// through NewApp: they must work against an empty or out-of-date
// schema, which NewApp rejects. They are not journaled because the
// operations table may not exist yet when they run.

// MigrateDB brings the configured database schema to the latest version
// and reports the resulting status.
func MigrateDB(cfg *config.Config) (migrations.Status, error) {
	db, err := database.NewFromConfig(cfg.Database)
	if err != nil {
		return migrations.Status{}, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.MigrateUp(); err != nil {
		return migrations.Status{}, err
	}
	return db.MigrationStatus()
}

// DBStatus reports the schema version of the configured database. The
// error describes any mismatch; the status is valid whenever a version
// could be read at all.
func DBStatus(cfg *config.Config) (migrations.Status, error) {
	db, err := database.NewFromConfig(cfg.Database)
	if err != nil {
		return migrations.Status{}, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	return db.MigrationStatus()
}

// BackupDB writes a complete copy of the configured database to
// destPath.
func BackupDB(cfg *config.Config, destPath string) error {
	db, err := database.NewFromConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	return db.BackupTo(destPath)
}
