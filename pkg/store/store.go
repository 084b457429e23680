// Package store keeps an append-only journal of every sync that was applied,
// and of every file that was moved to the trash.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/sidkik/parasync/pkg/config"
	"github.com/sidkik/parasync/pkg/errors"
	"github.com/sidkik/parasync/pkg/sync"
	"github.com/sidkik/parasync/pkg/tree"
)

// DefaultPath is where the journal is kept.
const DefaultPath = "~/.parasync/journal.db"

const timeFormat = time.RFC3339Nano

// Store is a SQLite backed journal. It implements sync.Journal.
type Store struct {
	db *sql.DB
}

// Run is a sync that was applied.
type Run struct {
	ID               int64
	Pair             string
	Mode             config.Mode
	StartedAt        time.Time
	FinishedAt       time.Time
	Copied           int
	Trashed          int
	Failed           int
	Conflicts        int
	BytesTransferred int64
	Status           sync.Status
}

// TrashEntry is a file that was moved to the trash.
type TrashEntry struct {
	RunID int64
	Pair  string
	sync.TrashRecord
}

// Open opens the journal at `path`, creating it if necessary. Use ":memory:"
// for a journal that isn't persisted.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, errors.WithContext(err, "create journal directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WithContext(err, "open database")
	}

	// SQLite serializes writes anyway, and in-memory databases are private
	// to a single connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.WithContext(err, "ping database")
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.WithContext(err, "migrate")
	}

	log.WithField("path", path).Debug("Opened sync journal")
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordSync appends the report and its trash records to the journal.
func (s *Store) RecordSync(ctx context.Context, pair config.SyncPair, report sync.SyncReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WithContext(err, "begin transaction")
	}
	defer tx.Rollback()

	const insertRun = `
		INSERT INTO sync_runs (
			pair, mode, local_root, remote_root, started_at, finished_at,
			files_copied, files_trashed, files_failed, conflicts,
			bytes_transferred, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, insertRun,
		pair.Name, string(report.Mode), pair.LocalRoot, pair.RemoteRoot,
		formatTime(report.StartedAt), formatTime(report.FinishedAt),
		len(report.Copied), len(report.Trashed), len(report.Failed),
		len(report.Conflicts), report.BytesTransferred, string(report.Status()))
	if err != nil {
		return errors.WithContext(err, "insert sync run")
	}

	runID, err := result.LastInsertId()
	if err != nil {
		return errors.WithContext(err, "get run id")
	}

	const insertTrash = `
		INSERT INTO trash_records (
			run_id, pair, side, original_path, trashed_path, trashed_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	for _, record := range report.TrashRecords {
		_, err := tx.ExecContext(ctx, insertTrash,
			runID, pair.Name, record.Side.String(), record.OriginalRelativePath,
			record.TrashedPath, formatTime(record.TrashedAt))
		if err != nil {
			return errors.WithContext(err, "insert trash record")
		}
	}

	const insertFailure = `
		INSERT INTO failures (run_id, path, reason) VALUES (?, ?, ?)
	`
	for _, failure := range report.Failed {
		if _, err := tx.ExecContext(ctx, insertFailure, runID, failure.Path, failure.Reason); err != nil {
			return errors.WithContext(err, "insert failure")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.WithContext(err, "commit")
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. If `pair` is set,
// only runs of that pair are returned.
func (s *Store) ListRuns(ctx context.Context, pair string, limit int) ([]Run, error) {
	const query = `
		SELECT id, pair, mode, started_at, finished_at, files_copied,
		       files_trashed, files_failed, conflicts, bytes_transferred, status
		FROM sync_runs
		WHERE ? = '' OR pair = ?
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, pair, pair, limit)
	if err != nil {
		return nil, errors.WithContext(err, "query sync runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var mode, status, startedAt, finishedAt string
		err := rows.Scan(&run.ID, &run.Pair, &mode, &startedAt, &finishedAt,
			&run.Copied, &run.Trashed, &run.Failed, &run.Conflicts,
			&run.BytesTransferred, &status)
		if err != nil {
			return nil, errors.WithContext(err, "scan sync run")
		}

		run.Mode = config.Mode(mode)
		run.Status = sync.Status(status)
		if run.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if run.FinishedAt, err = parseTime(finishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListTrash returns every trash record in the order they were created. If
// `pair` is set, only records of that pair are returned.
func (s *Store) ListTrash(ctx context.Context, pair string) ([]TrashEntry, error) {
	const query = `
		SELECT run_id, pair, side, original_path, trashed_path, trashed_at
		FROM trash_records
		WHERE ? = '' OR pair = ?
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, pair, pair)
	if err != nil {
		return nil, errors.WithContext(err, "query trash records")
	}
	defer rows.Close()

	var entries []TrashEntry
	for rows.Next() {
		var entry TrashEntry
		var side, trashedAt string
		err := rows.Scan(&entry.RunID, &entry.Pair, &side, &entry.OriginalRelativePath,
			&entry.TrashedPath, &trashedAt)
		if err != nil {
			return nil, errors.WithContext(err, "scan trash record")
		}

		entry.Side = tree.Local
		if side == tree.Remote.String() {
			entry.Side = tree.Remote
		}
		if entry.TrashedAt, err = parseTime(trashedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListFailures returns the failures recorded for a run.
func (s *Store) ListFailures(ctx context.Context, runID int64) ([]sync.Failure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, reason FROM failures WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, errors.WithContext(err, "query failures")
	}
	defer rows.Close()

	var failures []sync.Failure
	for rows.Next() {
		var failure sync.Failure
		if err := rows.Scan(&failure.Path, &failure.Reason); err != nil {
			return nil, errors.WithContext(err, "scan failure")
		}
		failures = append(failures, failure)
	}
	return failures, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, errors.WithContext(err, "parse timestamp")
	}
	return t, nil
}
