// Package sqlite stores the saga log in a local SQLite file.
//
// WAL mode is enabled on Open so the saga goroutines can append while a
// status endpoint or a reconciler reads.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jcmexdev/order-orchestrator/internal/coordinator/sagalog"

	// Pure-Go driver, no CGO.
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by GetLatest for unknown saga ids.
var ErrNotFound = errors.New("sqlite: saga not found")

// schema is append-only: each row is an immutable event. The latest row per
// saga_id is its current state.
const schema = `
CREATE TABLE IF NOT EXISTS saga_logs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    saga_id         TEXT NOT NULL,
    saga            TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL,
    current_step    TEXT NOT NULL DEFAULT '',

    -- reservation or payment id the step produced or the compensation targets
    reference       TEXT NOT NULL DEFAULT '',

    -- JSON input, written on STARTED only
    payload         TEXT,
    error_messages  TEXT NOT NULL DEFAULT '[]',
    trace_id        TEXT NOT NULL DEFAULT '',
    span_id         TEXT NOT NULL DEFAULT '',

    -- RFC3339Nano
    updated_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saga_logs_saga_id ON saga_logs(saga_id, id);
CREATE INDEX IF NOT EXISTS idx_saga_logs_status ON saga_logs(status, id);
CREATE INDEX IF NOT EXISTS idx_saga_logs_trace_id ON saga_logs(trace_id);
`

const selectColumns = `saga_id, saga, status, current_step, reference, COALESCE(payload, ''),
	error_messages, trace_id, span_id, updated_at`

type Repository struct {
	db *sql.DB
}

var _ sagalog.Repository = (*Repository)(nil)

// Open opens or creates the database at path and applies the schema.
//
//	repo, err := sqlite.Open("./data/saga.db")
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// One writer connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Save appends entry. Safe for concurrent use.
func (r *Repository) Save(ctx context.Context, entry *sagalog.SagaLog) error {
	const q = `
		INSERT INTO saga_logs
			(saga_id, saga, status, current_step, reference, payload, error_messages, trace_id, span_id, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		entry.SagaID,
		entry.Saga,
		string(entry.Status),
		entry.CurrentStep,
		entry.Reference,
		nullableString(entry.Payload),
		entry.ErrorMessages,
		entry.TraceID,
		entry.SpanID,
		formatTime(entry.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save saga log for %q: %w", entry.SagaID, err)
	}
	return nil
}

// GetLatest returns the newest row for sagaID.
func (r *Repository) GetLatest(ctx context.Context, sagaID string) (*sagalog.SagaLog, error) {
	q := `SELECT ` + selectColumns + ` FROM saga_logs WHERE saga_id = ? ORDER BY id DESC LIMIT 1`

	entry, err := scan(r.db.QueryRowContext(ctx, q, sagaID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, sagaID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get latest for %q: %w", sagaID, err)
	}
	return entry, nil
}

// History returns every row for sagaID, oldest first.
func (r *Repository) History(ctx context.Context, sagaID string) ([]*sagalog.SagaLog, error) {
	q := `SELECT ` + selectColumns + ` FROM saga_logs WHERE saga_id = ? ORDER BY id`
	return r.query(ctx, q, sagaID)
}

// FindByStatus returns up to limit rows with status, oldest first. A
// reconciler polls it for StatusCompensationFailed.
func (r *Repository) FindByStatus(ctx context.Context, status sagalog.Status, limit int) ([]*sagalog.SagaLog, error) {
	q := `SELECT ` + selectColumns + ` FROM saga_logs WHERE status = ? ORDER BY id LIMIT ?`
	return r.query(ctx, q, string(status), limit)
}

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]*sagalog.SagaLog, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query saga logs: %w", err)
	}
	defer rows.Close()

	var out []*sagalog.SagaLog
	for rows.Next() {
		entry, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan saga log: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: read saga logs: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*sagalog.SagaLog, error) {
	var entry sagalog.SagaLog
	var updatedAt string
	err := s.Scan(
		&entry.SagaID,
		&entry.Saga,
		&entry.Status,
		&entry.CurrentStep,
		&entry.Reference,
		&entry.Payload,
		&entry.ErrorMessages,
		&entry.TraceID,
		&entry.SpanID,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if entry.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &entry, nil
}

// nullableString stores NULL instead of '' so only STARTED rows carry a
// payload.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
