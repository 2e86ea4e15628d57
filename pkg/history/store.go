// Package history persists batch audit outcomes in a local SQLite
// database. Audit results are otherwise process-local; this store is the
// explicit cache for callers that want to track compliance over time.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/defkit/defkit/pkg/audit"
)

// RunSummary is one persisted batch run.
type RunSummary struct {
	ID          string    `db:"id"`
	CreatedAt   time.Time `db:"created_at"`
	Pass        int       `db:"pass"`
	Warn        int       `db:"warn"`
	Fail        int       `db:"fail"`
	ParseErrors int       `db:"parse_errors"`
}

// ResultRecord is one artifact's outcome within a persisted run.
type ResultRecord struct {
	RunID      string    `db:"run_id"`
	CreatedAt  time.Time `db:"created_at"`
	Identifier string    `db:"identifier"`
	Location   string    `db:"location"`
	Status     string    `db:"status"`
	Verdicts   string    `db:"verdicts"`
}

// DecodeVerdicts unmarshals the stored verdict set.
func (r *ResultRecord) DecodeVerdicts() ([]audit.Verdict, error) {
	var verdicts []audit.Verdict
	if err := json.Unmarshal([]byte(r.Verdicts), &verdicts); err != nil {
		return nil, errors.Wrap(err, "failed to decode stored verdicts")
	}
	return verdicts, nil
}

// Store is a SQLite-backed audit history cache.
type Store struct {
	dbPath string
	db     *sqlx.DB
}

// NewStore opens (creating if needed) the history database at dbPath.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if err := configureDatabase(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to configure database")
	}

	store := &Store{dbPath: dbPath, db: db}
	if err := store.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func configureDatabase(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "failed to execute pragma: %s", pragma)
		}
	}
	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(1)
	return nil
}

func (s *Store) initializeSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return errors.Wrap(err, "failed to create schema")
}

// SaveRun persists one batch report with all per-artifact results.
func (s *Store) SaveRun(ctx context.Context, batch *audit.BatchReport) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_runs (id, created_at, pass, warn, fail, parse_errors) VALUES (?, ?, ?, ?, ?, ?)`,
		batch.ID, now, batch.Summary.Pass, batch.Summary.Warn, batch.Summary.Fail, batch.Summary.ParseErrors)
	if err != nil {
		return errors.Wrap(err, "failed to insert run")
	}

	for _, report := range batch.Reports {
		verdicts, err := json.Marshal(report.Verdicts)
		if err != nil {
			return errors.Wrapf(err, "failed to encode verdicts for %s", report.Artifact.Identifier)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO audit_results (run_id, identifier, location, status, verdicts) VALUES (?, ?, ?, ?, ?)`,
			batch.ID, report.Artifact.Identifier, string(report.Artifact.Location), string(report.Status), string(verdicts))
		if err != nil {
			return errors.Wrapf(err, "failed to insert result for %s", report.Artifact.Identifier)
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit run")
}

// RecentRuns returns the most recent run summaries, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	var runs []RunSummary
	err := s.db.SelectContext(ctx, &runs,
		`SELECT id, created_at, pass, warn, fail, parse_errors FROM audit_runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query runs")
	}
	return runs, nil
}

// LastRunFor returns an artifact's most recent persisted result.
func (s *Store) LastRunFor(ctx context.Context, identifier string) (*ResultRecord, error) {
	var record ResultRecord
	err := s.db.GetContext(ctx, &record,
		`SELECT r.run_id, runs.created_at, r.identifier, r.location, r.status, r.verdicts
		 FROM audit_results r
		 JOIN audit_runs runs ON runs.id = r.run_id
		 WHERE r.identifier = ?
		 ORDER BY runs.created_at DESC, runs.id DESC
		 LIMIT 1`, identifier)
	if err == sql.ErrNoRows {
		return nil, errors.Errorf("no audit history for %q", identifier)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query result")
	}
	return &record, nil
}
