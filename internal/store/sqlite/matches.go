package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
)

const matchColumns = `m.id, m.statement_id, m.ledger_id, m.estado, m.score, m.score_fecha, m.score_valor,
	m.score_descripcion, m.confirmado, m.created_by, m.notas, m.reasons_json, m.created_at, m.updated_at`

const periodJoin = ` FROM matches m JOIN statement_movements s ON s.id = m.statement_id
	WHERE s.account_id = ? AND s.year = ? AND s.month = ?`

func (s *Store) GetMatch(ctx context.Context, id int64) (*models.Match, error) {
	matches, err := s.queryMatches(ctx, `SELECT `+matchColumns+` FROM matches m WHERE m.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, errors.NotFoundError(errors.CodeMatchNotFound, "match", id)
	}
	return matches[0], nil
}

func (s *Store) FindMatchByStatement(ctx context.Context, statementID int64) (*models.Match, error) {
	matches, err := s.queryMatches(ctx, `SELECT `+matchColumns+` FROM matches m WHERE m.statement_id = ?`, statementID)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return matches[0], nil
}

func (s *Store) ListMatchesByLedger(ctx context.Context, ledgerID int64) ([]*models.Match, error) {
	return s.queryMatches(ctx, `SELECT `+matchColumns+` FROM matches m WHERE m.ledger_id = ? ORDER BY m.id`, ledgerID)
}

func (s *Store) ListMatchesByPeriod(ctx context.Context, period models.Period) ([]*models.Match, error) {
	return s.queryMatches(ctx, `SELECT `+matchColumns+periodJoin+` ORDER BY m.id`,
		period.AccountID, period.Year, period.Month)
}

func (s *Store) ListMatchesByEstado(ctx context.Context, period models.Period, estado models.MatchEstado) ([]*models.Match, error) {
	return s.queryMatches(ctx, `SELECT `+matchColumns+periodJoin+` AND m.estado = ? ORDER BY m.id`,
		period.AccountID, period.Year, period.Month, string(estado))
}

// SaveMatch upserts on statement_id so a statement line never has two matches
func (s *Store) SaveMatch(ctx context.Context, match *models.Match) error {
	if err := match.Validate(); err != nil {
		return errors.ValidationError(errors.CodeInvalidState, "estado", match.Estado, err)
	}

	reasons, err := json.Marshal(match.Reasons)
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "encode match reasons", err)
	}

	now := time.Now().UTC()
	if match.CreatedAt.IsZero() {
		match.CreatedAt = now
	}
	match.UpdatedAt = now

	return s.withTx(ctx, "save match", func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM statement_movements WHERE id = ?`, match.StatementID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return errors.NotFoundError(errors.CodeStatementNotFound, "statement movement", match.StatementID)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO matches (statement_id, ledger_id, estado, score, score_fecha, score_valor, score_descripcion,
				confirmado, created_by, notas, reasons_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(statement_id) DO UPDATE SET
				ledger_id = excluded.ledger_id,
				estado = excluded.estado,
				score = excluded.score,
				score_fecha = excluded.score_fecha,
				score_valor = excluded.score_valor,
				score_descripcion = excluded.score_descripcion,
				confirmado = excluded.confirmado,
				created_by = excluded.created_by,
				notas = excluded.notas,
				reasons_json = excluded.reasons_json,
				updated_at = excluded.updated_at`,
			match.StatementID, nullID(match.LedgerID), string(match.Estado),
			match.Scores.Total, match.Scores.Fecha, match.Scores.Valor, match.Scores.Descripcion,
			match.Confirmado, match.CreatedBy, match.Notas, string(reasons), match.CreatedAt, match.UpdatedAt)
		if err != nil {
			return err
		}

		return tx.QueryRowContext(ctx, `SELECT id, created_at FROM matches WHERE statement_id = ?`, match.StatementID).
			Scan(&match.ID, &match.CreatedAt)
	})
}

func (s *Store) DeleteMatches(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders, args := inClause(ids)
	res, err := s.db.ExecContext(ctx, `DELETE FROM matches WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, errors.StorageError(errors.CodeWriteFailed, "delete matches", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) DeleteMatchesByPeriod(ctx context.Context, period models.Period) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM matches WHERE statement_id IN (
			SELECT id FROM statement_movements WHERE account_id = ? AND year = ? AND month = ?)`,
		period.AccountID, period.Year, period.Month)
	if err != nil {
		return 0, errors.StorageError(errors.CodeWriteFailed, "delete period matches", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) queryMatches(ctx context.Context, query string, args ...interface{}) ([]*models.Match, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError(errors.CodeReadFailed, "query matches", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*models.Match
	for rows.Next() {
		var (
			m       models.Match
			ledger  sql.NullInt64
			estado  string
			reasons string
		)
		if err := rows.Scan(&m.ID, &m.StatementID, &ledger, &estado,
			&m.Scores.Total, &m.Scores.Fecha, &m.Scores.Valor, &m.Scores.Descripcion,
			&m.Confirmado, &m.CreatedBy, &m.Notas, &reasons, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, errors.StorageError(errors.CodeReadFailed, "scan match", err)
		}
		m.LedgerID = idFromNull(ledger)
		m.Estado = models.MatchEstado(estado)
		if reasons != "" {
			_ = json.Unmarshal([]byte(reasons), &m.Reasons)
		}
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeReadFailed, "query matches", err)
	}
	return result, nil
}
