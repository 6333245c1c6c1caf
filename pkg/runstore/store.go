// Package runstore keeps the run counter and run index of a storage
// directory in SQLite.
package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/harun/triad/pkg/orchestrator"
)

// DBName is the database file kept in the storage directory
const DBName = "runs.db"

// StatusAllocated marks a number handed out for a run that has not started
const StatusAllocated = "allocated"

// ErrNotFound is returned when a run number is unknown
var ErrNotFound = errors.New("run not found")

// Run is one row of the run index
type Run struct {
	Number    int64      `json:"number"`
	RunID     string     `json:"run_id"`
	Task      string     `json:"task"`
	Mode      string     `json:"mode"`
	Status    string     `json:"status"`
	Outcome   string     `json:"outcome,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Turns     int        `json:"turns"`
	Resumes   int        `json:"resumes"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Config holds run store configuration
type Config struct {
	DBPath string
	Logger zerolog.Logger
}

// Store is a SQLite-backed orchestrator.RunCounter plus run index.
// Numbers come from an AUTOINCREMENT key and are never reused.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	clock  func() time.Time
}

var _ orchestrator.RunCounter = (*Store)(nil)

// Open opens or creates the run database
func Open(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		logger: cfg.Logger.With().Str("component", "runstore").Logger(),
		clock:  time.Now,
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Debug().Str("path", cfg.DBPath).Msg("Run store opened")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			number INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL DEFAULT '',
			task TEXT NOT NULL DEFAULT '',
			mode TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			outcome TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			turns INTEGER NOT NULL DEFAULT 0,
			resumes INTEGER NOT NULL DEFAULT 0,
			allocated_at TEXT NOT NULL,
			started_at TEXT,
			ended_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_runs_run_id ON runs(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) now() string {
	return s.clock().UTC().Format(time.RFC3339Nano)
}

// Next allocates the next run number
func (s *Store) Next(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (status, allocated_at) VALUES (?, ?)",
		StatusAllocated, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to allocate run number: %w", err)
	}
	n, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run number: %w", err)
	}
	s.logger.Debug().Int64("run_number", n).Msg("Run number allocated")
	return n, nil
}

// EnsureFloor makes sure later numbers are greater than floor. Used to stay
// ahead of records written before the index existed.
func (s *Store) EnsureFloor(ctx context.Context, floor int64) error {
	if floor <= 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq sql.NullInt64
	err = tx.QueryRowContext(ctx, "SELECT seq FROM sqlite_sequence WHERE name = 'runs'").Scan(&seq)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, "INSERT INTO sqlite_sequence (name, seq) VALUES ('runs', ?)", floor); err != nil {
			return fmt.Errorf("failed to seed run counter: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read run counter: %w", err)
	case seq.Int64 < floor:
		if _, err := tx.ExecContext(ctx, "UPDATE sqlite_sequence SET seq = ? WHERE name = 'runs'", floor); err != nil {
			return fmt.Errorf("failed to raise run counter: %w", err)
		}
	default:
		return nil
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run counter: %w", err)
	}
	s.logger.Info().Int64("floor", floor).Msg("Run counter raised")
	return nil
}

// Begin marks a run as running
func (s *Store) Begin(ctx context.Context, number int64, runID, task, mode string, startedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET run_id = ?, task = ?, mode = ?, status = ?, started_at = COALESCE(started_at, ?)
		WHERE number = ?`,
		runID, task, mode, string(orchestrator.StatusRunning), startedAt.UTC().Format(time.RFC3339Nano), number)
	if err != nil {
		return fmt.Errorf("failed to begin run %d: %w", number, err)
	}
	return expectOne(res, number)
}

// Complete records the terminal result of a run
func (s *Store) Complete(ctx context.Context, result orchestrator.RunResult, resumes int, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, outcome = ?, reason = ?, turns = ?, resumes = ?, ended_at = ?
		WHERE number = ?`,
		string(result.Status), string(result.Outcome), reasonOf(result), result.Turns, resumes,
		endedAt.UTC().Format(time.RFC3339Nano), result.RunNumber)
	if err != nil {
		return fmt.Errorf("failed to complete run %d: %w", result.RunNumber, err)
	}
	return expectOne(res, result.RunNumber)
}

func reasonOf(result orchestrator.RunResult) string {
	if result.Error != "" {
		return result.Error
	}
	return result.Reason
}

func expectOne(res sql.Result, number int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, number)
	}
	return nil
}

const selectRuns = `
	SELECT number, run_id, task, mode, status, outcome, reason, turns, resumes, started_at, ended_at
	FROM runs`

// Get returns one run
func (s *Store) Get(ctx context.Context, number int64) (Run, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+" WHERE number = ?", number)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %d", ErrNotFound, number)
	}
	return run, err
}

// List returns the most recent runs first. A non-positive limit lists all.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := selectRuns + " ORDER BY number DESC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var started, ended sql.NullString
	if err := row.Scan(&run.Number, &run.RunID, &run.Task, &run.Mode, &run.Status, &run.Outcome,
		&run.Reason, &run.Turns, &run.Resumes, &started, &ended); err != nil {
		return Run{}, err
	}

	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, err
	}
	if run.EndedAt, err = parseTime(ended); err != nil {
		return Run{}, err
	}
	return run, nil
}

func parseTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", v.String, err)
	}
	return &t, nil
}
