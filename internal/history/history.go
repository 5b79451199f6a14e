// Package history records check and init runs, with the paths each run
// reported, in SQLite or PostgreSQL.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/flarebyte/aegis/internal/integrity"
)

// Schema is valid for both SQLite and PostgreSQL.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	started_at BIGINT NOT NULL,
	finished_at BIGINT NOT NULL,
	baseline TEXT NOT NULL,
	algorithm TEXT NOT NULL,
	files INTEGER NOT NULL,
	errors INTEGER NOT NULL,
	created INTEGER NOT NULL,
	modified INTEGER NOT NULL,
	deleted INTEGER NOT NULL,
	first_run INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	message TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE TABLE IF NOT EXISTS changes (
	run_id TEXT NOT NULL REFERENCES runs(id),
	path TEXT NOT NULL,
	change TEXT NOT NULL,
	PRIMARY KEY (run_id, change, path)
);
`

const (
	ChangeCreated  = "created"
	ChangeModified = "modified"
	ChangeDeleted  = "deleted"
	ChangeMetadata = "metadata"
)

var ErrRunNotFound = errors.New("run not found")

// Run is one recorded invocation.
type Run struct {
	ID         string    `json:"id"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Baseline   string    `json:"baseline"`
	Algorithm  string    `json:"algorithm"`
	Files      int       `json:"files"`
	Errors     int       `json:"errors"`
	Created    int       `json:"created"`
	Modified   int       `json:"modified"`
	Deleted    int       `json:"deleted"`
	FirstRun   bool      `json:"firstRun"`
	Outcome    string    `json:"outcome"`
	Message    string    `json:"message"`
}

type Change struct {
	Path   string `json:"path"`
	Change string `json:"change"`
}

type Store struct {
	db       *sql.DB
	postgres bool
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Open connects to dsn (a postgres:// URL, or a SQLite path or ":memory:")
// and creates the tables if needed.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("history dsn is empty")
	}
	s := &Store{postgres: isPostgres(dsn)}
	var err error
	if s.postgres {
		s.db, err = sql.Open("pgx", dsn)
	} else {
		s.db, err = sql.Open("sqlite", dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	if !s.postgres {
		// one writer; also keeps ":memory:" a single database
		s.db.SetMaxOpenConns(1)
	}
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (s *Store) rebind(q string) string {
	if !s.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RecordRun stores run and, when res is given, every reported path. An empty
// run.ID is replaced by a fresh UUID, which is returned.
func (s *Store) RecordRun(ctx context.Context, run Run, res *integrity.Result) (id string, err error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if res != nil {
		run.Created, run.Modified, run.Deleted = len(res.Created), len(res.Modified), len(res.Deleted)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("history: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO runs
		(id, mode, started_at, finished_at, baseline, algorithm, files, errors, created, modified, deleted, first_run, outcome, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID, run.Mode, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), run.Baseline, run.Algorithm,
		run.Files, run.Errors, run.Created, run.Modified, run.Deleted, boolInt(run.FirstRun), run.Outcome, run.Message); err != nil {
		return "", fmt.Errorf("history: insert run: %w", err)
	}

	if res != nil {
		stmt, perr := tx.PrepareContext(ctx, s.rebind(`INSERT INTO changes (run_id, path, change) VALUES (?, ?, ?)`))
		if perr != nil {
			err = fmt.Errorf("history: prepare: %w", perr)
			return "", err
		}
		defer stmt.Close()
		for _, group := range []struct {
			change string
			paths  []string
		}{
			{ChangeCreated, res.Created},
			{ChangeModified, res.Modified},
			{ChangeDeleted, res.Deleted},
			{ChangeMetadata, res.MetadataChanged},
		} {
			for _, p := range group.paths {
				if _, err = stmt.ExecContext(ctx, run.ID, p, group.change); err != nil {
					return "", fmt.Errorf("history: insert change: %w", err)
				}
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("history: commit: %w", err)
	}
	return run.ID, nil
}

const runColumns = `id, mode, started_at, finished_at, baseline, algorithm, files, errors, created, modified, deleted, first_run, outcome, message`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var started, finished int64
	var firstRun int
	if err := row.Scan(&r.ID, &r.Mode, &started, &finished, &r.Baseline, &r.Algorithm,
		&r.Files, &r.Errors, &r.Created, &r.Modified, &r.Deleted, &firstRun, &r.Outcome, &r.Message); err != nil {
		return Run{}, err
	}
	r.StartedAt = time.UnixMilli(started).UTC()
	r.FinishedAt = time.UnixMilli(finished).UTC()
	r.FirstRun = firstRun != 0
	return r, nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns a single run.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, s.rebind(`SELECT `+runColumns+` FROM runs WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// Changes lists the paths a run reported, grouped by change then path.
func (s *Store) Changes(ctx context.Context, runID string) ([]Change, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT path, change FROM changes WHERE run_id = ? ORDER BY change, path`), runID)
	if err != nil {
		return nil, fmt.Errorf("history: query changes: %w", err)
	}
	defer rows.Close()
	var out []Change
	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.Path, &c.Change); err != nil {
			return nil, fmt.Errorf("history: scan change: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
