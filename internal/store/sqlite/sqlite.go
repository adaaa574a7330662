// Package sqlite implements store.Repository on SQLite through database/sql.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/store"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Store provides SQLite access for movements, matches, rules and catalogs.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

// Compile-time check that Store implements Repository
var _ store.Repository = (*Store)(nil)

// New opens (or creates) the database at path and applies pending migrations
func New(ctx context.Context, path string, log logger.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.StorageError(errors.CodeReadFailed, "open database", err).WithContext("path", path)
	}
	// a single connection keeps PRAGMA settings and avoids SQLITE_BUSY between our own writes
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, errors.StorageError(errors.CodeMigration, "enable foreign keys", err)
	}

	s := &Store{db: db, logger: logger.OrGlobal(log).WithComponent("sqlite")}

	if err := s.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, errors.StorageError(errors.CodeMigration, "run migrations", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, rolling back on any error
func (s *Store) withTx(ctx context.Context, operation string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StorageError(errors.CodeWriteFailed, operation, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if _, ok := errors.AsReconcilerError(err); ok {
			return err
		}
		return errors.StorageError(errors.CodeWriteFailed, operation, err)
	}
	if err := tx.Commit(); err != nil {
		return errors.StorageError(errors.CodeWriteFailed, operation, err)
	}
	return nil
}

// ================================================================
// STATEMENTS
// ================================================================

const statementColumns = `id, account_id, year, month, date, description, reference, amount, foreign_amount`

func (s *Store) ListStatements(ctx context.Context, period models.Period) ([]*models.StatementMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+statementColumns+` FROM statement_movements
		WHERE account_id = ? AND year = ? AND month = ?
		ORDER BY date, id`, period.AccountID, period.Year, period.Month)
	if err != nil {
		return nil, errors.StorageError(errors.CodeReadFailed, "list statements", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*models.StatementMovement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, errors.StorageError(errors.CodeReadFailed, "scan statement", err)
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

func (s *Store) GetStatement(ctx context.Context, id int64) (*models.StatementMovement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+statementColumns+` FROM statement_movements WHERE id = ?`, id)
	st, err := scanStatement(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError(errors.CodeStatementNotFound, "statement movement", id)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeReadFailed, "get statement", err)
	}
	return st, nil
}

func (s *Store) ReplaceStatements(ctx context.Context, period models.Period, statements []*models.StatementMovement) error {
	return s.withTx(ctx, "replace statements", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM matches WHERE statement_id IN (
				SELECT id FROM statement_movements WHERE account_id = ? AND year = ? AND month = ?)`,
			period.AccountID, period.Year, period.Month); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM statement_movements WHERE account_id = ? AND year = ? AND month = ?`,
			period.AccountID, period.Year, period.Month); err != nil {
			return err
		}

		for _, st := range statements {
			st.AccountID, st.Year, st.Month = period.AccountID, period.Year, period.Month
			res, err := tx.ExecContext(ctx, `
				INSERT INTO statement_movements (account_id, year, month, date, description, reference, amount, foreign_amount)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				st.AccountID, st.Year, st.Month, st.Date.Format(dateLayout), st.Description, st.Reference,
				st.Amount.String(), nullDecimal(st.ForeignAmount))
			if err != nil {
				return err
			}
			if st.ID, err = res.LastInsertId(); err != nil {
				return err
			}
		}
		return nil
	})
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanStatement(row scanner) (*models.StatementMovement, error) {
	var (
		st      models.StatementMovement
		date    string
		amount  string
		foreign sql.NullString
	)
	if err := row.Scan(&st.ID, &st.AccountID, &st.Year, &st.Month, &date, &st.Description, &st.Reference, &amount, &foreign); err != nil {
		return nil, err
	}
	var err error
	if st.Date, err = time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("statement %d date: %w", st.ID, err)
	}
	if st.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("statement %d amount: %w", st.ID, err)
	}
	if st.ForeignAmount, err = parseNullDecimal(foreign); err != nil {
		return nil, fmt.Errorf("statement %d foreign amount: %w", st.ID, err)
	}
	return &st, nil
}

// ================================================================
// LEDGER MOVEMENTS
// ================================================================

const ledgerColumns = `id, account_id, date, description, reference, amount, currency_id, foreign_amount, third_party_id`

func (s *Store) GetLedger(ctx context.Context, id int64) (*models.LedgerMovement, error) {
	movements, err := s.queryLedgers(ctx, `SELECT `+ledgerColumns+` FROM ledger_movements WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(movements) == 0 {
		return nil, errors.NotFoundError(errors.CodeLedgerNotFound, "ledger movement", id)
	}
	return movements[0], nil
}

func (s *Store) GetLedgers(ctx context.Context, ids []int64) ([]*models.LedgerMovement, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(ids)
	return s.queryLedgers(ctx, `SELECT `+ledgerColumns+` FROM ledger_movements WHERE id IN (`+placeholders+`) ORDER BY date, id`, args...)
}

// SearchLedgers pushes the column filters into SQL; description, split-dependent
// filters and the limit are applied afterwards by store.ApplyFilter. SQLite's UPPER
// only folds ASCII, so text comparison stays in Go.
func (s *Store) SearchLedgers(ctx context.Context, filter store.LedgerFilter) ([]*models.LedgerMovement, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.AccountID != 0 {
		where = append(where, "account_id = ?")
		args = append(args, filter.AccountID)
	}
	if !filter.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, filter.From.Format(dateLayout))
	}
	if !filter.To.IsZero() {
		where = append(where, "date < ?")
		args = append(args, filter.To.Format(dateLayout))
	}
	if filter.Reference != "" {
		where = append(where, "reference = ?")
		args = append(args, filter.Reference)
	}
	if len(filter.ExcludeIDs) > 0 {
		placeholders, ids := inClause(filter.ExcludeIDs)
		where = append(where, "id NOT IN ("+placeholders+")")
		args = append(args, ids...)
	}

	query := `SELECT ` + ledgerColumns + ` FROM ledger_movements`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, id"

	movements, err := s.queryLedgers(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return store.ApplyFilter(movements, filter), nil
}

func (s *Store) SaveLedger(ctx context.Context, movement *models.LedgerMovement) error {
	if err := movement.Validate(); err != nil {
		return errors.ValidationError(errors.CodeInvalidAmount, "splits", movement.Amount.String(), err)
	}

	return s.withTx(ctx, "save ledger movement", func(tx *sql.Tx) error {
		args := []interface{}{
			movement.AccountID, movement.Date.Format(dateLayout), movement.Description, movement.Reference,
			movement.Amount.String(), movement.CurrencyID, nullDecimal(movement.ForeignAmount), nullID(movement.ThirdPartyID),
		}

		if movement.ID == 0 {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO ledger_movements (account_id, date, description, reference, amount, currency_id, foreign_amount, third_party_id)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, args...)
			if err != nil {
				return err
			}
			if movement.ID, err = res.LastInsertId(); err != nil {
				return err
			}
		} else {
			res, err := tx.ExecContext(ctx, `
				UPDATE ledger_movements SET account_id = ?, date = ?, description = ?, reference = ?, amount = ?,
					currency_id = ?, foreign_amount = ?, third_party_id = ?
				WHERE id = ?`, append(args, movement.ID)...)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO ledger_movements (id, account_id, date, description, reference, amount, currency_id, foreign_amount, third_party_id)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, append([]interface{}{movement.ID}, args...)...); err != nil {
					return err
				}
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM detail_splits WHERE movement_id = ?`, movement.ID); err != nil {
			return err
		}
		for i := range movement.Splits {
			split := &movement.Splits[i]
			split.MovementID = movement.ID
			res, err := tx.ExecContext(ctx, `
				INSERT INTO detail_splits (movement_id, position, amount, third_party_id, cost_center_id, concept_id)
				VALUES (?, ?, ?, ?, ?, ?)`,
				movement.ID, i, split.Amount.String(), nullID(split.ThirdPartyID), nullID(split.CostCenterID), nullID(split.ConceptID))
			if err != nil {
				return err
			}
			if split.ID, err = res.LastInsertId(); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) LedgerExists(ctx context.Context, accountID int64, date time.Time, amount decimal.Decimal, description string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT amount, description FROM ledger_movements
		WHERE account_id = ? AND date = ?`,
		accountID, date.Format(dateLayout))
	if err != nil {
		return false, errors.StorageError(errors.CodeReadFailed, "ledger exists", err)
	}
	defer func() { _ = rows.Close() }()

	desc := models.NormalizeText(description)
	for rows.Next() {
		var raw, existing string
		if err := rows.Scan(&raw, &existing); err != nil {
			return false, errors.StorageError(errors.CodeReadFailed, "ledger exists", err)
		}
		if models.NormalizeText(existing) != desc {
			continue
		}
		if d, err := decimal.NewFromString(raw); err == nil && d.Equal(amount) {
			return true, nil
		}
	}
	return false, rows.Err()
}

// queryLedgers loads headers and then their splits in one extra query
func (s *Store) queryLedgers(ctx context.Context, query string, args ...interface{}) ([]*models.LedgerMovement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError(errors.CodeReadFailed, "query ledger movements", err)
	}

	var (
		result []*models.LedgerMovement
		byID   = make(map[int64]*models.LedgerMovement)
		ids    []int64
	)
	for rows.Next() {
		m, err := scanLedger(rows)
		if err != nil {
			_ = rows.Close()
			return nil, errors.StorageError(errors.CodeReadFailed, "scan ledger movement", err)
		}
		result = append(result, m)
		byID[m.ID] = m
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, errors.StorageError(errors.CodeReadFailed, "query ledger movements", err)
	}
	_ = rows.Close()

	if len(ids) == 0 {
		return result, nil
	}
	if err := s.loadSplits(ctx, ids, byID); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) loadSplits(ctx context.Context, ids []int64, byID map[int64]*models.LedgerMovement) error {
	placeholders, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, movement_id, amount, third_party_id, cost_center_id, concept_id
		FROM detail_splits WHERE movement_id IN (`+placeholders+`)
		ORDER BY movement_id, position`, args...)
	if err != nil {
		return errors.StorageError(errors.CodeReadFailed, "load splits", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			split                   models.DetailSplit
			amount                  string
			third, center, concept sql.NullInt64
		)
		if err := rows.Scan(&split.ID, &split.MovementID, &amount, &third, &center, &concept); err != nil {
			return errors.StorageError(errors.CodeReadFailed, "scan split", err)
		}
		if split.Amount, err = decimal.NewFromString(amount); err != nil {
			return errors.StorageError(errors.CodeReadFailed, "parse split amount", err)
		}
		split.ThirdPartyID = idFromNull(third)
		split.CostCenterID = idFromNull(center)
		split.ConceptID = idFromNull(concept)
		if m, ok := byID[split.MovementID]; ok {
			m.Splits = append(m.Splits, split)
		}
	}
	return rows.Err()
}

func scanLedger(row scanner) (*models.LedgerMovement, error) {
	var (
		m       models.LedgerMovement
		date    string
		amount  string
		foreign sql.NullString
		third   sql.NullInt64
	)
	if err := row.Scan(&m.ID, &m.AccountID, &date, &m.Description, &m.Reference, &amount, &m.CurrencyID, &foreign, &third); err != nil {
		return nil, err
	}
	var err error
	if m.Date, err = time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("ledger %d date: %w", m.ID, err)
	}
	if m.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("ledger %d amount: %w", m.ID, err)
	}
	if m.ForeignAmount, err = parseNullDecimal(foreign); err != nil {
		return nil, fmt.Errorf("ledger %d foreign amount: %w", m.ID, err)
	}
	m.ThirdPartyID = idFromNull(third)
	return &m, nil
}

// ================================================================
// HELPERS
// ================================================================

func inClause(ids []int64) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ", "), args
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func idFromNull(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(n sql.NullString) (*decimal.Decimal, error) {
	if !n.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(n.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
