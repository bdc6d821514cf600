// Package datalog persists sweep logs in SQLite. A Store is the backend
// a sweep.Sweeper writes to; the same Store reads logs back for listing
// and export.
package datalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/labsweep/internal/param"
	"github.com/banshee-data/labsweep/internal/sweep"
)

var (
	ErrLogExists     = errors.New("datalog: log name already in use")
	ErrLogNotFound   = errors.New("datalog: log not found")
	ErrFieldMismatch = errors.New("datalog: trace fields do not match log")
	ErrShape         = errors.New("datalog: trace length does not match trace axis")
	ErrLogFull       = errors.New("datalog: log already holds every entry")
)

// Ensure Store implements sweep.Backend.
var _ sweep.Backend = (*Store)(nil)

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// Store is a SQLite-backed collection of sweep logs.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and brings its
// schema up to date.
func Open(path string) (*Store, error) {
	s, err := OpenUnmigrated(path)
	if err != nil {
		return nil, err
	}
	if err := s.MigrateUp(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// OpenUnmigrated opens the database without touching its schema. It is
// meant for migration tooling.
func OpenUnmigrated(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection keeps per-connection pragmas in force and
	// serialises writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) nameExists(ctx context.Context, name string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sweep_logs WHERE name = ?`, name).Scan(&n); err != nil {
		return false, fmt.Errorf("query log name: %w", err)
	}
	return n > 0, nil
}

// UniqueName returns base if no log uses it, otherwise the first unused
// "<base>__<n>" name, n counting from 1.
func (s *Store) UniqueName(ctx context.Context, base string) (string, error) {
	return UniquifyName(base, func(name string) (bool, error) {
		return s.nameExists(ctx, name)
	})
}

// CreateLog creates an empty log. Steps are in backend order (trace axis
// first).
func (s *Store) CreateLog(ctx context.Context, name string, fields []param.FieldDescriptor, steps []param.StepDescriptor) (sweep.Log, error) {
	return s.createLog(ctx, name, fields, steps)
}

func (s *Store) createLog(ctx context.Context, name string, fields []param.FieldDescriptor, steps []param.StepDescriptor) (*Log, error) {
	if name == "" {
		return nil, fmt.Errorf("datalog: empty log name")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create log: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sweep_logs WHERE name = ?`, name).Scan(&n); err != nil {
		return nil, fmt.Errorf("query log name: %w", err)
	}
	if n > 0 {
		return nil, fmt.Errorf("%w: %q", ErrLogExists, name)
	}

	lg := &Log{
		store:     s,
		id:        uuid.New().String(),
		name:      name,
		createdAt: time.Now().UTC(),
		fields:    append([]param.FieldDescriptor(nil), fields...),
		steps:     append([]param.StepDescriptor(nil), steps...),
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sweep_logs (log_id, name, comment, tags_json, created_at) VALUES (?, ?, '', '[]', ?)`,
		lg.id, lg.name, lg.createdAt.UnixNano(),
	); err != nil {
		return nil, fmt.Errorf("insert log: %w", err)
	}
	for i, f := range fields {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sweep_log_fields (log_id, position, name, units, is_vector) VALUES (?, ?, ?, ?, ?)`,
			lg.id, i, f.Name, f.Units, f.Vector,
		); err != nil {
			return nil, fmt.Errorf("insert field %q: %w", f.Name, err)
		}
	}
	for i, st := range steps {
		values, err := json.Marshal(st.Values)
		if err != nil {
			return nil, fmt.Errorf("encode step %q values: %w", st.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sweep_log_steps (log_id, position, name, units, values_json) VALUES (?, ?, ?, ?, ?)`,
			lg.id, i, st.Name, st.Units, string(values),
		); err != nil {
			return nil, fmt.Errorf("insert step %q: %w", st.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create log: %w", err)
	}

	opsf("created log %q (%s): %d fields, %d steps, %d entries expected", name, lg.id, len(fields), len(steps), lg.Capacity())
	return lg, nil
}

// LogInfo summarises a stored log.
type LogInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	Entries   int       `json:"entries"`
}

// Logs lists stored logs, oldest first.
func (s *Store) Logs(ctx context.Context) ([]LogInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.log_id, l.name, l.tags_json, l.created_at, COUNT(e.entry_index)
		FROM sweep_logs l
		LEFT JOIN sweep_log_entries e ON e.log_id = l.log_id
		GROUP BY l.log_id
		ORDER BY l.created_at, l.name`)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var out []LogInfo
	for rows.Next() {
		var (
			info    LogInfo
			tags    string
			created int64
		)
		if err := rows.Scan(&info.ID, &info.Name, &tags, &created, &info.Entries); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &info.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of %q: %w", info.Name, err)
		}
		info.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

// OpenLog loads an existing log by name. The returned Log accepts further
// entries until it is complete.
func (s *Store) OpenLog(ctx context.Context, name string) (*Log, error) {
	lg := &Log{store: s, name: name}
	var (
		tags    string
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT log_id, comment, tags_json, created_at FROM sweep_logs WHERE name = ?`, name,
	).Scan(&lg.id, &lg.comment, &tags, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrLogNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("query log %q: %w", name, err)
	}
	if err := json.Unmarshal([]byte(tags), &lg.tags); err != nil {
		return nil, fmt.Errorf("decode tags of %q: %w", name, err)
	}
	lg.createdAt = time.Unix(0, created).UTC()

	if lg.fields, err = s.loadFields(ctx, lg.id); err != nil {
		return nil, err
	}
	if lg.steps, err = s.loadSteps(ctx, lg.id); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sweep_log_entries WHERE log_id = ?`, lg.id,
	).Scan(&lg.entries); err != nil {
		return nil, fmt.Errorf("count entries of %q: %w", name, err)
	}
	return lg, nil
}

func (s *Store) loadFields(ctx context.Context, logID string) ([]param.FieldDescriptor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, units, is_vector FROM sweep_log_fields WHERE log_id = ? ORDER BY position`, logID)
	if err != nil {
		return nil, fmt.Errorf("query fields: %w", err)
	}
	defer rows.Close()

	var out []param.FieldDescriptor
	for rows.Next() {
		var f param.FieldDescriptor
		if err := rows.Scan(&f.Name, &f.Units, &f.Vector); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) loadSteps(ctx context.Context, logID string) ([]param.StepDescriptor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, units, values_json FROM sweep_log_steps WHERE log_id = ? ORDER BY position`, logID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var out []param.StepDescriptor
	for rows.Next() {
		var (
			st     param.StepDescriptor
			values string
		)
		if err := rows.Scan(&st.Name, &st.Units, &values); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		if err := json.Unmarshal([]byte(values), &st.Values); err != nil {
			return nil, fmt.Errorf("decode step %q values: %w", st.Name, err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
