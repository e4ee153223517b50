package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jcmexdev/order-orchestrator/internal/pkg/outbox"
)

// maxRetries bounds how often a failed event is picked up again.
const maxRetries = 10

type OutboxStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

var _ outbox.Store = (*OutboxStore)(nil)

func NewOutboxStore(log *slog.Logger, pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{log: log, pool: pool}
}

// LockBatch leases up to batchSize events to relayID. Pending rows, failed
// rows under the retry limit and rows whose lease expired are eligible.
func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("postgres: begin lock batch: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, type, payload, headers, traceparent, created_at, retry_count
		FROM outbox
		WHERE status = 'pending'
		   OR (status = 'failed' AND retry_count < $2)
		   OR (status = 'in_progress' AND lease_until < now())
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1`, batchSize, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("postgres: select outbox batch: %w", err)
	}

	var events []outbox.Event
	for rows.Next() {
		var (
			event   outbox.Event
			headers map[string]string
		)
		if err := rows.Scan(&event.ID, &event.AggregateType, &event.AggregateID, &event.Type,
			&event.Payload, &headers, &event.Traceparent, &event.CreatedAt, &event.RetryCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan outbox event: %w", err)
		}
		event.Headers = headers
		event.Status = outbox.StatusInProgress
		events = append(events, event)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: read outbox batch: %w", err)
	}
	if len(events) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}

	_, err = tx.Exec(ctx, `
		UPDATE outbox
		SET status = 'in_progress', relay_id = $1, lease_until = now() + make_interval(secs => $2)
		WHERE id = ANY($3)`, relayID, lease.Seconds(), ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: lease outbox batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit outbox lease: %w", err)
	}
	return events, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	ct, err := s.pool.Exec(ctx, `UPDATE outbox SET status = 'sent', lease_until = NULL WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("postgres: mark sent: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return errors.New("postgres: mark sent: no rows updated")
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox
		SET status = 'failed', last_error = $2, retry_count = retry_count + 1, lease_until = NULL
		WHERE id = $1`, id, errMsg)
	if err != nil {
		return fmt.Errorf("postgres: mark %d failed: %w", id, err)
	}
	return nil
}

func (s *OutboxStore) ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox SET lease_until = now() + make_interval(secs => $1)
		WHERE id = ANY($2) AND relay_id = $3`, lease.Seconds(), ids, relayID)
	if err != nil {
		return fmt.Errorf("postgres: extend lease: %w", err)
	}
	return nil
}
