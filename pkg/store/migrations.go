package store

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/parasync/pkg/errors"
)

// migrations are applied in order. Applied migrations must never change.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
			CREATE TABLE sync_runs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				pair TEXT NOT NULL,
				mode TEXT NOT NULL,
				local_root TEXT NOT NULL,
				remote_root TEXT NOT NULL,
				started_at TEXT NOT NULL,
				finished_at TEXT NOT NULL,
				files_copied INTEGER DEFAULT 0,
				files_trashed INTEGER DEFAULT 0,
				files_failed INTEGER DEFAULT 0,
				conflicts INTEGER DEFAULT 0,
				bytes_transferred INTEGER DEFAULT 0,
				status TEXT NOT NULL
			);

			CREATE TABLE trash_records (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id INTEGER NOT NULL,
				pair TEXT NOT NULL,
				side TEXT NOT NULL,
				original_path TEXT NOT NULL,
				trashed_path TEXT NOT NULL,
				trashed_at TEXT NOT NULL,
				FOREIGN KEY(run_id) REFERENCES sync_runs(id)
			);

			CREATE INDEX idx_sync_runs_pair ON sync_runs(pair);
			CREATE INDEX idx_trash_records_pair ON trash_records(pair);
		`,
	},
	{
		version: 2,
		sql: `
			CREATE TABLE failures (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id INTEGER NOT NULL,
				path TEXT NOT NULL,
				reason TEXT NOT NULL,
				FOREIGN KEY(run_id) REFERENCES sync_runs(id)
			);
		`,
	},
}

func (s *Store) migrate() error {
	const createMigrationsTable = `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := s.db.Exec(createMigrationsTable); err != nil {
		return errors.WithContext(err, "create migrations table")
	}

	var currentVersion int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return errors.WithContext(err, "get schema version")
	}

	for _, migration := range migrations {
		if migration.version <= currentVersion {
			continue
		}

		log.WithField("version", migration.version).Debug("Applying journal migration")
		tx, err := s.db.Begin()
		if err != nil {
			return errors.WithContext(err, "begin migration")
		}

		if _, err := tx.Exec(migration.sql); err != nil {
			tx.Rollback()
			return errors.WithContext(err, fmt.Sprintf("apply migration %d", migration.version))
		}

		if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", migration.version); err != nil {
			tx.Rollback()
			return errors.WithContext(err, "record migration")
		}

		if err := tx.Commit(); err != nil {
			return errors.WithContext(err, "commit migration")
		}
	}
	return nil
}
