package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"bank-reconciliation-service/pkg/logger"
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
		Name:    "catalogs",
		Up:      migration001Catalogs,
	},
	{
		Version: 2,
		Name:    "movements",
		Up:      migration002Movements,
	},
	{
		Version: 3,
		Name:    "matches",
		Up:      migration003Matches,
	},
	{
		Version: 4,
		Name:    "matching_config_aliases_rules",
		Up:      migration004ConfigAliasesRules,
	},
	{
		Version: 5,
		Name:    "period_totals",
		Up:      migration005PeriodTotals,
	},
}

// runMigrations executes all pending migrations, each in its own transaction
func (s *Store) runMigrations(ctx context.Context) error {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue
		}

		log := s.logger.WithFields(logger.Fields{"version": migration.Version, "name": migration.Name})
		log.Debug("Running migration")

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, migration.Version, migration.Name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		log.Info("Migration complete")
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table
func (s *Store) ensureMigrationsTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

// getAppliedMigrations returns a set of applied migration versions
func (s *Store) getAppliedMigrations(ctx context.Context) (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// ================================================================
// MIGRATION FUNCTIONS
// ================================================================

func migration001Catalogs(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE currencies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			code TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			currency_id INTEGER
		)`,
		`CREATE TABLE third_parties (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			document TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE reference_catalog (
			reference TEXT PRIMARY KEY,
			third_party_id INTEGER NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX idx_reference_catalog_description ON reference_catalog(description)`,
	})
}

func migration002Movements(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE statement_movements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL,
			year INTEGER NOT NULL,
			month INTEGER NOT NULL,
			date TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			reference TEXT NOT NULL DEFAULT '',
			amount TEXT NOT NULL,
			foreign_amount TEXT
		)`,
		`CREATE INDEX idx_statement_movements_period ON statement_movements(account_id, year, month)`,

		`CREATE TABLE ledger_movements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			reference TEXT NOT NULL DEFAULT '',
			amount TEXT NOT NULL,
			currency_id INTEGER NOT NULL DEFAULT 0,
			foreign_amount TEXT,
			third_party_id INTEGER
		)`,
		`CREATE INDEX idx_ledger_movements_account_date ON ledger_movements(account_id, date)`,
		`CREATE INDEX idx_ledger_movements_reference ON ledger_movements(reference)`,
		`CREATE INDEX idx_ledger_movements_third_party ON ledger_movements(third_party_id)`,

		`CREATE TABLE detail_splits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			movement_id INTEGER NOT NULL REFERENCES ledger_movements(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			amount TEXT NOT NULL,
			third_party_id INTEGER,
			cost_center_id INTEGER,
			concept_id INTEGER
		)`,
		`CREATE INDEX idx_detail_splits_movement ON detail_splits(movement_id, position)`,
	})
}

// ledger_id carries no unique constraint; one-to-many links are repaired by the validation service
func migration003Matches(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE matches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			statement_id INTEGER NOT NULL UNIQUE REFERENCES statement_movements(id) ON DELETE CASCADE,
			ledger_id INTEGER,
			estado TEXT NOT NULL,
			score REAL NOT NULL DEFAULT 0,
			score_fecha REAL NOT NULL DEFAULT 0,
			score_valor REAL NOT NULL DEFAULT 0,
			score_descripcion REAL NOT NULL DEFAULT 0,
			confirmado BOOLEAN NOT NULL DEFAULT 0,
			created_by TEXT NOT NULL DEFAULT '',
			notas TEXT NOT NULL DEFAULT '',
			reasons_json TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX idx_matches_ledger ON matches(ledger_id)`,
		`CREATE INDEX idx_matches_estado ON matches(estado)`,
	})
}

func migration004ConfigAliasesRules(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE matching_config (
			id INTEGER PRIMARY KEY,
			tolerancia_valor TEXT NOT NULL,
			similitud_descripcion_minima REAL NOT NULL,
			peso_fecha REAL NOT NULL,
			peso_valor REAL NOT NULL,
			peso_descripcion REAL NOT NULL,
			score_minimo_exacto REAL NOT NULL,
			score_minimo_probable REAL NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE matching_aliases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL,
			patron TEXT NOT NULL,
			reemplazo TEXT NOT NULL
		)`,
		`CREATE INDEX idx_matching_aliases_account ON matching_aliases(account_id)`,
		`CREATE TABLE classification_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER,
			patron TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'contains',
			third_party_id INTEGER,
			cost_center_id INTEGER,
			concept_id INTEGER
		)`,
	})
}

func migration005PeriodTotals(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE period_totals (
			account_id INTEGER NOT NULL,
			year INTEGER NOT NULL,
			month INTEGER NOT NULL,
			inflows TEXT NOT NULL,
			outflows TEXT NOT NULL,
			net TEXT NOT NULL,
			movement_count INTEGER NOT NULL,
			from_matches BOOLEAN NOT NULL DEFAULT 0,
			computed_at TIMESTAMP NOT NULL,
			PRIMARY KEY (account_id, year, month)
		)`,
	})
}
