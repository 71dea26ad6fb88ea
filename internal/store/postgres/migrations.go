package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate creates the schema if it does not exist. Statements are
// idempotent so the server can run them on every boot.
func Migrate(ctx context.Context, db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			sku TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			unit_price_cents BIGINT NOT NULL CHECK (unit_price_cents >= 0),
			unit_cost_cents BIGINT NOT NULL DEFAULT 0,
			qty_on_hand INTEGER NOT NULL DEFAULT 0 CHECK (qty_on_hand >= 0),
			min_qty INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS invoice_series (
			id TEXT PRIMARY KEY,
			prefix TEXT NOT NULL,
			current BIGINT NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id TEXT PRIMARY KEY,
			series_id TEXT NOT NULL REFERENCES invoice_series(id),
			invoice_number BIGINT NOT NULL,
			customer_id TEXT,
			payment_method TEXT NOT NULL,
			subtotal_cents BIGINT NOT NULL,
			tax_cents BIGINT NOT NULL,
			total_cents BIGINT NOT NULL,
			tendered_cents BIGINT NOT NULL DEFAULT 0,
			change_cents BIGINT NOT NULL DEFAULT 0,
			voided BOOLEAN NOT NULL DEFAULT false,
			void_reason TEXT,
			voided_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (series_id, invoice_number)
		)`,
		`CREATE TABLE IF NOT EXISTS sale_lines (
			id TEXT PRIMARY KEY,
			sale_id TEXT NOT NULL REFERENCES sales(id),
			item_id TEXT NOT NULL REFERENCES items(id),
			qty INTEGER NOT NULL CHECK (qty > 0),
			unit_price_cents BIGINT NOT NULL,
			amount_cents BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS returns (
			id TEXT PRIMARY KEY,
			sale_id TEXT NOT NULL REFERENCES sales(id),
			reason TEXT NOT NULL,
			total_cents BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS return_lines (
			id TEXT PRIMARY KEY,
			return_id TEXT NOT NULL REFERENCES returns(id),
			sale_line_id TEXT NOT NULL REFERENCES sale_lines(id),
			item_id TEXT NOT NULL REFERENCES items(id),
			qty INTEGER NOT NULL CHECK (qty > 0),
			unit_price_cents BIGINT NOT NULL,
			amount_cents BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cash_sessions (
			id TEXT PRIMARY KEY,
			business_date DATE NOT NULL UNIQUE,
			opening_float_cents BIGINT NOT NULL,
			cash_sales_cents BIGINT NOT NULL,
			card_sales_cents BIGINT NOT NULL,
			transfer_sales_cents BIGINT NOT NULL,
			returns_cents BIGINT NOT NULL,
			expected_cash_cents BIGINT NOT NULL,
			counted_cents BIGINT NOT NULL,
			discrepancy_cents BIGINT NOT NULL,
			classification TEXT NOT NULL,
			next_float_cents BIGINT NOT NULL,
			hand_over_cents BIGINT NOT NULL,
			notes TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			actor_username TEXT NOT NULL,
			actor_role TEXT NOT NULL,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_created_at ON sales (created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sale_lines_sale_id ON sale_lines (sale_id)`,
		`CREATE INDEX IF NOT EXISTS idx_returns_sale_id ON returns (sale_id)`,
		`CREATE INDEX IF NOT EXISTS idx_return_lines_return_id ON return_lines (return_id)`,
		`INSERT INTO invoice_series (id, prefix, current, active)
			VALUES ('series-a', 'A', 0, true)
			ON CONFLICT (id) DO NOTHING`,
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
