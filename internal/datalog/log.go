package datalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/labsweep/internal/param"
	"github.com/banshee-data/labsweep/internal/trace"
)

// Log is one stored sweep log. Entries are numbered from 0 in the order
// they were appended.
type Log struct {
	store     *Store
	id        string
	name      string
	createdAt time.Time
	fields    []param.FieldDescriptor
	steps     []param.StepDescriptor

	mu      sync.Mutex
	comment string
	tags    []string
	entries int
}

func (l *Log) Name() string                    { return l.name }
func (l *Log) ID() string                      { return l.id }
func (l *Log) CreatedAt() time.Time            { return l.createdAt }
func (l *Log) Fields() []param.FieldDescriptor { return l.fields }
func (l *Log) Steps() []param.StepDescriptor   { return l.steps }

// Capacity is the number of entries a complete log holds: one per outer
// grid point.
func (l *Log) Capacity() int { return EntryCapacity(l.steps) }

// Complete reports whether every entry has been appended.
func (l *Log) Complete() bool { return l.EntryCount() >= l.Capacity() }

// Comment returns the log comment.
func (l *Log) Comment() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.comment
}

// Tags returns the log tags.
func (l *Log) Tags() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.tags...)
}

// EntryCount returns the number of entries appended so far.
func (l *Log) EntryCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries
}

// AddEntry appends one trace. The trace must carry the log's fields in
// order, with one point per value of the trace axis, and the log must not
// already hold one entry per outer grid point.
func (l *Log) AddEntry(ctx context.Context, tr trace.Trace) error {
	if err := l.check(tr); err != nil {
		return err
	}
	data, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entries >= l.Capacity() {
		return fmt.Errorf("%w: %q has %d of %d", ErrLogFull, l.name, l.entries, l.Capacity())
	}
	if _, err := l.store.db.ExecContext(ctx,
		`INSERT INTO sweep_log_entries (log_id, entry_index, trace_json, created_at) VALUES (?, ?, ?, ?)`,
		l.id, l.entries, string(data), time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("insert entry %d of %q: %w", l.entries, l.name, err)
	}
	diagf("%s: entry %d/%d", l.name, l.entries+1, l.Capacity())
	l.entries++
	return nil
}

func (l *Log) check(tr trace.Trace) error {
	if len(tr.Fields) != len(l.fields) {
		return fmt.Errorf("%w: trace has %d fields, log has %d", ErrFieldMismatch, len(tr.Fields), len(l.fields))
	}
	for i, f := range tr.Fields {
		want := l.fields[i]
		if f.Name != want.Name || f.Vector != want.Vector {
			return fmt.Errorf("%w: field %d is %q (vector=%t), want %q (vector=%t)",
				ErrFieldMismatch, i, f.Name, f.Vector, want.Name, want.Vector)
		}
	}
	if len(l.steps) == 0 {
		return nil
	}
	points := len(l.steps[0].Values)
	for _, f := range tr.Fields {
		if f.Len() != points {
			return fmt.Errorf("%w: field %q has %d points, %q has %d values",
				ErrShape, f.Name, f.Len(), l.steps[0].Name, points)
		}
	}
	return nil
}

// SetComment replaces the log comment.
func (l *Log) SetComment(ctx context.Context, comment string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.store.db.ExecContext(ctx,
		`UPDATE sweep_logs SET comment = ? WHERE log_id = ?`, comment, l.id,
	); err != nil {
		return fmt.Errorf("update comment of %q: %w", l.name, err)
	}
	l.comment = comment
	return nil
}

// SetTags replaces the log tags.
func (l *Log) SetTags(ctx context.Context, tags []string) error {
	data, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.store.db.ExecContext(ctx,
		`UPDATE sweep_logs SET tags_json = ? WHERE log_id = ?`, string(data), l.id,
	); err != nil {
		return fmt.Errorf("update tags of %q: %w", l.name, err)
	}
	l.tags = append([]string(nil), tags...)
	return nil
}

// Entries reads every stored trace in append order. Vector values come
// back as []any of JSON-decoded elements.
func (l *Log) Entries(ctx context.Context) ([]trace.Trace, error) {
	rows, err := l.store.db.QueryContext(ctx,
		`SELECT entry_index, trace_json FROM sweep_log_entries WHERE log_id = ? ORDER BY entry_index`, l.id)
	if err != nil {
		return nil, fmt.Errorf("query entries of %q: %w", l.name, err)
	}
	defer rows.Close()

	var out []trace.Trace
	for rows.Next() {
		var (
			index int
			data  string
			tr    trace.Trace
		)
		if err := rows.Scan(&index, &data); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &tr); err != nil {
			return nil, fmt.Errorf("decode entry %d of %q: %w", index, l.name, err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}
