package storage

import (
	"database/sql"
	"fmt"
)

// Migration represents a database schema migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// allMigrations defines all migrations in order
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "core_schema",
		Up:      migration001CoreSchema,
	},
	{
		Version: 2,
		Name:    "payment_tables",
		Up:      migration002PaymentTables,
	},
	{
		Version: 3,
		Name:    "transaction_groups_and_rule_metrics",
		Up:      migration003GroupsAndRuleMetrics,
	},
	{
		Version: 4,
		Name:    "expected_value_columns",
		Up:      migration004ExpectedValueColumns,
	},
}

// runMigrations executes all pending migrations
func (s *Storage) runMigrations() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		_, err = tx.Exec(`
			INSERT INTO schema_migrations (version, name) VALUES (?, ?)
		`, migration.Version, migration.Name)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

func (s *Storage) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (s *Storage) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// migration001CoreSchema creates the ERP order mirror, the per-marketplace
// mirror tables and the order link table.
func migration001CoreSchema(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE tiny_orders (
			id INTEGER PRIMARY KEY,
			numero_pedido INTEGER NOT NULL DEFAULT 0,
			canal TEXT NOT NULL DEFAULT '',
			situacao INTEGER NOT NULL DEFAULT 0,
			cliente_nome TEXT NOT NULL DEFAULT '',
			valor_total REAL NOT NULL DEFAULT 0,
			valor_frete REAL NOT NULL DEFAULT 0,
			data_criacao TIMESTAMP,
			raw_payload TEXT,
			payment_received INTEGER NOT NULL DEFAULT 0,
			payment_received_at TIMESTAMP,
			marketplace_payment_id INTEGER
		)`,
		`CREATE INDEX idx_tiny_orders_canal_data ON tiny_orders(canal, data_criacao)`,
		`CREATE TABLE shopee_orders (
			order_sn TEXT PRIMARY KEY,
			total_amount REAL NOT NULL DEFAULT 0,
			create_time TIMESTAMP
		)`,
		`CREATE TABLE meli_orders (
			meli_order_id INTEGER PRIMARY KEY,
			raw_payload TEXT,
			date_created TIMESTAMP
		)`,
		`CREATE TABLE magalu_orders (
			id_order TEXT PRIMARY KEY,
			purchased_date TIMESTAMP
		)`,
		`CREATE TABLE marketplace_order_links (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			marketplace TEXT NOT NULL,
			marketplace_order_id TEXT NOT NULL,
			tiny_order_id INTEGER NOT NULL,
			linked_by TEXT NOT NULL DEFAULT '',
			confidence_score REAL NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT '',
			linked_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(marketplace, marketplace_order_id)
		)`,
		`CREATE INDEX idx_order_links_tiny ON marketplace_order_links(tiny_order_id)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migration002PaymentTables creates upload batches, import sessions and the
// payment ledger table. Monetary columns are stored as canonical decimal
// strings.
func migration002PaymentTables(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE payment_upload_batches (
			id TEXT PRIMARY KEY,
			marketplace TEXT NOT NULL,
			filename TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'processing',
			date_range_start TIMESTAMP,
			date_range_end TIMESTAMP,
			payments_count INTEGER NOT NULL DEFAULT 0,
			rows_processed INTEGER NOT NULL DEFAULT 0,
			rows_matched INTEGER NOT NULL DEFAULT 0,
			uploaded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE payment_import_sessions (
			id TEXT PRIMARY KEY,
			marketplace TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'preview',
			parsed_data TEXT,
			date_range_start TIMESTAMP,
			date_range_end TIMESTAMP,
			batch_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE marketplace_payments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			marketplace TEXT NOT NULL,
			marketplace_order_id TEXT NOT NULL,
			upload_batch_id TEXT NOT NULL DEFAULT '',
			payment_date TIMESTAMP,
			settlement_date TIMESTAMP,
			gross_amount TEXT NOT NULL DEFAULT '0',
			net_amount TEXT NOT NULL DEFAULT '0',
			fees TEXT NOT NULL DEFAULT '0',
			discount TEXT NOT NULL DEFAULT '0',
			status TEXT NOT NULL DEFAULT '',
			payment_method TEXT NOT NULL DEFAULT '',
			transaction_type TEXT NOT NULL DEFAULT '',
			transaction_description TEXT NOT NULL DEFAULT '',
			is_adjustment INTEGER NOT NULL DEFAULT 0,
			is_refund INTEGER NOT NULL DEFAULT 0,
			is_expense INTEGER NOT NULL DEFAULT 0,
			expense_category TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			tiny_order_id INTEGER REFERENCES tiny_orders(id),
			matched_at TIMESTAMP,
			match_confidence TEXT,
			raw_data TEXT,
			UNIQUE(marketplace, marketplace_order_id)
		)`,
		`CREATE INDEX idx_marketplace_payments_tiny ON marketplace_payments(tiny_order_id)`,
		`CREATE INDEX idx_marketplace_payments_batch ON marketplace_payments(upload_batch_id)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func migration003GroupsAndRuleMetrics(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE payment_transaction_groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			marketplace TEXT NOT NULL,
			marketplace_order_id TEXT NOT NULL,
			net_balance TEXT NOT NULL DEFAULT '0',
			has_adjustments INTEGER NOT NULL DEFAULT 0,
			has_refunds INTEGER NOT NULL DEFAULT 0,
			transaction_count INTEGER NOT NULL DEFAULT 0,
			tags TEXT NOT NULL DEFAULT '[]',
			UNIQUE(marketplace, marketplace_order_id)
		)`,
		`CREATE TABLE payment_rule_metrics (
			rule TEXT PRIMARY KEY,
			applied_count INTEGER NOT NULL DEFAULT 0,
			last_applied_at TIMESTAMP
		)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migration004ExpectedValueColumns adds the expected-vs-actual variance
// fields the payment engine writes back to ERP orders.
func migration004ExpectedValueColumns(tx *sql.Tx) error {
	stmts := []string{
		`ALTER TABLE tiny_orders ADD COLUMN valor_esperado_liquido TEXT`,
		`ALTER TABLE tiny_orders ADD COLUMN diferenca_valor TEXT`,
		`ALTER TABLE tiny_orders ADD COLUMN fees_breakdown TEXT`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
