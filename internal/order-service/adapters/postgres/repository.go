// Package postgres stores orders in PostgreSQL and writes a lifecycle event
// to the outbox table in the same transaction as every status change.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/jcmexdev/order-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/order-orchestrator/internal/order-service/ports"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/interceptors"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/interceptors/constants"
)

const aggregateOrder = "order"

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

var _ ports.OrderRepository = (*Repository)(nil)

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// Save inserts a new order with its lines and an order_placed event.
func (r *Repository) Save(ctx context.Context, o *domain.Order) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: begin save %s: %w", o.ID, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, status, total_amount, street, city, state, zip, country,
		                    reservation_id, payment_id, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		o.ID, o.UserID, string(o.Status), o.TotalAmount.String(),
		o.ShippingAddress.Street, o.ShippingAddress.City, o.ShippingAddress.State,
		o.ShippingAddress.Zip, o.ShippingAddress.Country,
		o.ReservationID, o.PaymentID, o.FailureReason, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert order %s: %w", o.ID, err)
	}

	batch := &pgx.Batch{}
	for i, l := range o.Lines {
		batch.Queue(`INSERT INTO order_items (order_id, position, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5::numeric)`,
			o.ID, i, l.ProductID, l.Quantity, l.UnitPrice.String())
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: insert items for %s: %w", o.ID, err)
	}

	if err := r.insertEvent(ctx, tx, o); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit save %s: %w", o.ID, err)
	}
	return nil
}

// UpdateStatus locks the row, checks the transition and writes the matching
// lifecycle event before committing.
func (r *Repository) UpdateStatus(ctx context.Context, id string, upd ports.StatusUpdate) (*domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("postgres: begin update %s: %w", id, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	o, err := getOrder(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}

	at := upd.At
	if at.IsZero() {
		at = time.Now()
	}
	if err := o.Transition(upd.Status, upd.ReservationID, upd.PaymentID, upd.Reason, at); err != nil {
		return nil, fmt.Errorf("postgres: order %s: %w", id, err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET status = $2, reservation_id = $3, payment_id = $4, failure_reason = $5, updated_at = $6
		WHERE id = $1`,
		o.ID, string(o.Status), o.ReservationID, o.PaymentID, o.FailureReason, o.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: update order %s: %w", id, err)
	}

	if err := r.insertEvent(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit update %s: %w", id, err)
	}
	return o, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return getOrder(ctx, r.pool, id, false)
}

func (r *Repository) List(ctx context.Context, filter ports.ListFilter) ([]*domain.Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE $1 = '' OR user_id = $1
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3`,
		filter.UserID, max(filter.Skip, 0), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}

	orders := make([]*domain.Order, 0, limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}

	for _, o := range orders {
		if o.Lines, err = getLines(ctx, r.pool, o.ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// insertEvent appends the event describing o's current status.
func (r *Repository) insertEvent(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	typ, payload, err := domain.NewOrderEvent(o)
	if err != nil {
		return fmt.Errorf("postgres: build event for %s: %w", o.ID, err)
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := map[string]string{}
	if reqID := interceptors.GetValue(ctx, constants.ContextKeyRequestID); reqID != "" {
		headers["request_id"] = reqID
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')`,
		aggregateOrder, o.ID, typ, payload, headers, carrier.Get("traceparent"),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert %s event for %s: %w", typ, o.ID, err)
	}
	r.log.DebugContext(ctx, "outbox event queued", "order_id", o.ID, "type", typ)
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const orderColumns = `id::text, user_id, status, total_amount::text, street, city, state, zip, country,
	reservation_id, payment_id, failure_reason, created_at, updated_at`

func getOrder(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	o, err := scanOrder(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: order %s: %w", id, domain.ErrOrderNotFound)
	}
	if err != nil {
		return nil, err
	}

	if o.Lines, err = getLines(ctx, q, id); err != nil {
		return nil, err
	}
	return o, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o      domain.Order
		status string
		total  string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &status, &total,
		&o.ShippingAddress.Street, &o.ShippingAddress.City, &o.ShippingAddress.State,
		&o.ShippingAddress.Zip, &o.ShippingAddress.Country,
		&o.ReservationID, &o.PaymentID, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: scan order: %w", err)
	}

	o.Status = domain.OrderStatus(status)
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("postgres: parse total of %s: %w", o.ID, err)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

func getLines(ctx context.Context, q querier, orderID string) ([]domain.OrderLine, error) {
	rows, err := q.Query(ctx, `
		SELECT product_id, quantity, unit_price::text
		FROM order_items
		WHERE order_id = $1
		ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("postgres: query items of %s: %w", orderID, err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var (
			l     domain.OrderLine
			price string
		)
		if err := rows.Scan(&l.ProductID, &l.Quantity, &price); err != nil {
			return nil, fmt.Errorf("postgres: scan item of %s: %w", orderID, err)
		}
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("postgres: parse price of %s: %w", orderID, err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: read items of %s: %w", orderID, err)
	}
	return lines, nil
}
