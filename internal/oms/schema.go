package oms

// Schema is the durable order-store DDL. It is applied once at startup by
// the orchestrator's bootstrap (cmd/orchestrator/main.go), mirroring how the
// teacher's web3 repository tests bootstrap their own schema inline
// (internal/web3/repository_integration_test.go) rather than shipping a
// separate migration tool.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	operation_id        TEXT PRIMARY KEY,
	canonical_id         TEXT NOT NULL,
	venue                TEXT NOT NULL,
	venue_order_id       TEXT,
	strategy_id          TEXT NOT NULL DEFAULT '',
	side                 TEXT NOT NULL,
	order_type           TEXT NOT NULL,
	time_in_force        TEXT NOT NULL,
	quantity             NUMERIC NOT NULL,
	price                NUMERIC,
	status               TEXT NOT NULL,
	filled_quantity      NUMERIC NOT NULL DEFAULT 0,
	avg_fill_price       NUMERIC NOT NULL DEFAULT 0,
	atomic_group_id      TEXT,
	reject_reason        TEXT,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_strategy_created
	ON orders (strategy_id, created_at);
CREATE INDEX IF NOT EXISTS idx_orders_status_strategy
	ON orders (status, strategy_id);
CREATE INDEX IF NOT EXISTS idx_orders_venue_status
	ON orders (venue, status);
CREATE INDEX IF NOT EXISTS idx_orders_canonical_id
	ON orders (canonical_id);
CREATE INDEX IF NOT EXISTS idx_orders_atomic_group
	ON orders (atomic_group_id);

CREATE TABLE IF NOT EXISTS fills (
	fill_id        TEXT PRIMARY KEY,
	operation_id   TEXT NOT NULL REFERENCES orders (operation_id),
	venue_fill_id  TEXT NOT NULL,
	quantity       NUMERIC NOT NULL,
	price          NUMERIC NOT NULL,
	fee            NUMERIC NOT NULL DEFAULT 0,
	occurred_at    TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_fills_venue_fill_id
	ON fills (operation_id, venue_fill_id);
`
