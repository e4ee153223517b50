package sagalog

import "context"

// Repository persists saga log rows. The coordinator only appends; reads are
// for status endpoints, tests and reconciliation jobs.
type Repository interface {
	// Save appends a row. It never updates earlier rows.
	Save(ctx context.Context, entry *SagaLog) error
}
