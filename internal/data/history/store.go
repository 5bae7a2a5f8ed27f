package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	domainerrors "aquanet/internal/core/errors"
	"aquanet/internal/shared/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

type Option func(*options)

type options struct {
	busyTimeout time.Duration
}

func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

func Open(path string, opts ...Option) (*Store, error) {
	o := options{busyTimeout: 2 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)",
		cleanPath, o.busyTimeout.Milliseconds())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun inserts or replaces a run and its node extremes. A run without an
// ID gets a fresh one, which is returned.
func (s *Store) SaveRun(ctx context.Context, run Run) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := observability.Tracer.Start(ctx, "history.SaveRun")
	defer span.End()
	start := time.Now()
	defer func() { observability.HistoryWriteSeconds.Observe(time.Since(start).Seconds()) }()

	if strings.TrimSpace(run.Network) == "" {
		return "", domainerrors.New(domainerrors.CodeValidationError, "run network must not be empty")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = StatusOK
	}
	if run.SchemaVersion == 0 {
		run.SchemaVersion = SchemaVersion
	}
	if run.SchemaVersion != SchemaVersion {
		return "", fmt.Errorf("unsupported run schema version %d", run.SchemaVersion)
	}
	span.SetAttributes(attribute.String("run_id", run.ID), attribute.Int("nodes", len(run.Nodes)))

	err := s.withRetry("save run", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `
INSERT OR REPLACE INTO runs (
  id, network, kind, schema_version, started_at_utc, elapsed_ns, status, warning, error,
  periods, min_pressure, max_pressure, peak_demand, energy_cost
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID,
			run.Network,
			run.Kind,
			run.SchemaVersion,
			run.StartedAt.UTC().Format(time.RFC3339Nano),
			run.Elapsed.Nanoseconds(),
			run.Status,
			run.Warning,
			run.Error,
			run.Periods,
			run.MinPressure,
			run.MaxPressure,
			run.PeakDemand,
			run.EnergyCost,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM run_nodes WHERE run_id = ?`, run.ID); err != nil {
			return err
		}
		for _, n := range run.Nodes {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO run_nodes (run_id, node_id, min_pressure, max_pressure) VALUES (?, ?, ?, ?)`,
				run.ID, n.NodeID, n.MinPressure, n.MaxPressure,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return run.ID, nil
}

const runColumns = `
  id, network, kind, schema_version, started_at_utc, elapsed_ns, status, warning, error,
  periods, min_pressure, max_pressure, peak_demand, energy_cost
`

// LoadRuns returns a network's runs oldest first, without node extremes.
func (s *Store) LoadRuns(network string, since time.Time) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT` + runColumns + `FROM runs WHERE network = ?`
	args := []any{network}
	if !since.IsZero() {
		query += " AND started_at_utc >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	query += " ORDER BY started_at_utc ASC, id ASC"

	var rows *sql.Rows
	err := s.withRetry("load runs", func() error {
		var qErr error
		rows, qErr = s.db.Query(query, args...)
		return qErr
	})
	if err != nil {
		return nil, err
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// LoadRun returns one run with its node extremes ordered by node id.
func (s *Store) LoadRun(id string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var run Run
	err := s.withRetry("load run", func() error {
		row := s.db.QueryRow(`SELECT`+runColumns+`FROM runs WHERE id = ?`, id)
		var scanErr error
		run, scanErr = scanRun(row)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, domainerrors.AddContext(
			domainerrors.New(domainerrors.CodeNotFound, "run not found"), domainerrors.CtxRunID, id)
	}
	if err != nil {
		return Run{}, err
	}

	rows, err := s.db.Query(`SELECT node_id, min_pressure, max_pressure FROM run_nodes WHERE run_id = ? ORDER BY node_id`, id)
	if err != nil {
		return Run{}, fmt.Errorf("load run nodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n NodeExtreme
		if err := rows.Scan(&n.NodeID, &n.MinPressure, &n.MaxPressure); err != nil {
			return Run{}, fmt.Errorf("scan run node: %w", err)
		}
		run.Nodes = append(run.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return Run{}, fmt.Errorf("iterate run nodes: %w", err)
	}
	return run, nil
}

// Prune keeps the newest keep runs of a network and reports how many were
// deleted. keep <= 0 deletes nothing.
func (s *Store) Prune(network string, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	err := s.withRetry("prune runs", func() error {
		res, err := s.db.Exec(`
DELETE FROM runs WHERE network = ? AND id NOT IN (
  SELECT id FROM runs WHERE network = ? ORDER BY started_at_utc DESC, id DESC LIMIT ?
)`, network, network, keep)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run       Run
		startedAt string
		elapsedNS int64
	)
	if err := row.Scan(
		&run.ID,
		&run.Network,
		&run.Kind,
		&run.SchemaVersion,
		&startedAt,
		&elapsedNS,
		&run.Status,
		&run.Warning,
		&run.Error,
		&run.Periods,
		&run.MinPressure,
		&run.MaxPressure,
		&run.PeakDemand,
		&run.EnergyCost,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run row: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse run timestamp %q: %w", startedAt, err)
	}
	run.StartedAt = ts.UTC()
	run.Elapsed = time.Duration(elapsedNS)
	return run, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}
