package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied on startup. Every statement is idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id               UUID PRIMARY KEY,
    user_id          TEXT           NOT NULL,
    status           TEXT           NOT NULL,
    total_amount     NUMERIC(14, 2) NOT NULL,
    street           TEXT           NOT NULL,
    city             TEXT           NOT NULL,
    state            TEXT           NOT NULL,
    zip              TEXT           NOT NULL,
    country          TEXT           NOT NULL,
    reservation_id   TEXT           NOT NULL DEFAULT '',
    payment_id       TEXT           NOT NULL DEFAULT '',
    failure_reason   TEXT           NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ    NOT NULL,
    updated_at       TIMESTAMPTZ    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS order_items (
    order_id    UUID           NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
    position    INT            NOT NULL,
    product_id  TEXT           NOT NULL,
    quantity    INT            NOT NULL CHECK (quantity > 0),
    unit_price  NUMERIC(14, 2) NOT NULL CHECK (unit_price >= 0),
    PRIMARY KEY (order_id, position)
);

CREATE TABLE IF NOT EXISTS outbox (
    id              BIGSERIAL PRIMARY KEY,
    aggregate_type  TEXT        NOT NULL,
    aggregate_id    TEXT        NOT NULL,
    type            TEXT        NOT NULL,
    payload         JSONB       NOT NULL,
    headers         JSONB       NOT NULL DEFAULT '{}',
    traceparent     TEXT        NOT NULL DEFAULT '',
    status          TEXT        NOT NULL DEFAULT 'pending',
    relay_id        TEXT,
    lease_until     TIMESTAMPTZ,
    retry_count     INT         NOT NULL DEFAULT 0,
    last_error      TEXT,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_outbox_status_id ON outbox (status, id);
`

// Migrate creates the tables the repository and outbox store use.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}
