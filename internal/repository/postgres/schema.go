package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// All statements are idempotent so startup can run them unconditionally.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id                     TEXT PRIMARY KEY,
		shop                   TEXT NOT NULL,
		session_id             TEXT NOT NULL,
		deposit_cents          BIGINT NOT NULL DEFAULT 0,
		damage_fee_cents       BIGINT NOT NULL DEFAULT 0,
		started_at             TIMESTAMPTZ NOT NULL,
		return_date            TIMESTAMPTZ NOT NULL,
		returned_at            TIMESTAMPTZ,
		refunded_at            TIMESTAMPTZ,
		late_fee_charged_at    TIMESTAMPTZ,
		risk_level             TEXT NOT NULL DEFAULT '',
		risk_score             DOUBLE PRECISION NOT NULL DEFAULT 0,
		needs_attention        BOOLEAN NOT NULL DEFAULT FALSE,
		charge_id              TEXT NOT NULL DEFAULT '',
		balance_transaction_id TEXT NOT NULL DEFAULT '',
		customer_id            TEXT NOT NULL DEFAULT '',
		payment_intent_id      TEXT NOT NULL DEFAULT '',
		created_on             TIMESTAMPTZ NOT NULL,
		updated_on             TIMESTAMPTZ NOT NULL,
		UNIQUE (shop, session_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_shop_payment_intent ON orders (shop, payment_intent_id)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id       TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders (id),
		sku      TEXT NOT NULL,
		kind     TEXT NOT NULL,
		status   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items (order_id)`,
	`CREATE TABLE IF NOT EXISTS shop_settings (
		shop       TEXT PRIMARY KEY,
		doc        JSONB NOT NULL,
		updated_on TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS shop_settings_history (
		id          BIGSERIAL PRIMARY KEY,
		shop        TEXT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL,
		diff        JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS subscription_statuses (
		shop            TEXT NOT NULL,
		subscription_id TEXT NOT NULL,
		customer_id     TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL,
		updated_on      TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (shop, subscription_id)
	)`,
}

// EnsureSchema creates the tables and indexes if they do not exist yet.
func EnsureSchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: apply schema: %w", err)
		}
	}
	return nil
}
