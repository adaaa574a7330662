package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// activeConfigID is the row holding the single active matching config
const activeConfigID = 1

// ================================================================
// MATCHING CONFIG, ALIASES, RULES
// ================================================================

func (s *Store) FindActiveConfig(ctx context.Context) (*matcher.MatchingConfig, error) {
	var (
		config    matcher.MatchingConfig
		tolerance string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tolerancia_valor, similitud_descripcion_minima, peso_fecha, peso_valor, peso_descripcion,
			score_minimo_exacto, score_minimo_probable
		FROM matching_config WHERE id = ?`, activeConfigID).Scan(
		&config.ID, &tolerance, &config.SimilitudDescripcionMinima,
		&config.PesoFecha, &config.PesoValor, &config.PesoDescripcion,
		&config.ScoreMinimoExacto, &config.ScoreMinimoProbable)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeReadFailed, "load matching config", err)
	}
	if config.ToleranciaValor, err = decimal.NewFromString(tolerance); err != nil {
		return nil, errors.StorageError(errors.CodeReadFailed, "parse tolerancia_valor", err)
	}
	return &config, nil
}

// SaveConfig validates and writes the active config in place
func (s *Store) SaveConfig(ctx context.Context, config *matcher.MatchingConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	config.ID = activeConfigID

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matching_config (id, tolerancia_valor, similitud_descripcion_minima, peso_fecha, peso_valor,
			peso_descripcion, score_minimo_exacto, score_minimo_probable, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tolerancia_valor = excluded.tolerancia_valor,
			similitud_descripcion_minima = excluded.similitud_descripcion_minima,
			peso_fecha = excluded.peso_fecha,
			peso_valor = excluded.peso_valor,
			peso_descripcion = excluded.peso_descripcion,
			score_minimo_exacto = excluded.score_minimo_exacto,
			score_minimo_probable = excluded.score_minimo_probable,
			updated_at = excluded.updated_at`,
		config.ID, config.ToleranciaValor.String(), config.SimilitudDescripcionMinima,
		config.PesoFecha, config.PesoValor, config.PesoDescripcion,
		config.ScoreMinimoExacto, config.ScoreMinimoProbable, time.Now().UTC())
	if err != nil {
		return errors.StorageError(errors.CodeWriteFailed, "save matching config", err)
	}
	return nil
}

func (s *Store) ListAliases(ctx context.Context, accountID int64) ([]models.MatchingAlias, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, patron, reemplazo FROM matching_aliases WHERE account_id = ? ORDER BY id`, accountID)
	if err != nil {
		return nil, errors.StorageError(errors.CodeReadFailed, "list aliases", err)
	}
	defer func() { _ = rows.Close() }()

	var result []models.MatchingAlias
	for rows.Next() {
		var a models.MatchingAlias
		if err := rows.Scan(&a.ID, &a.AccountID, &a.Patron, &a.Reemplazo); err != nil {
			return nil, errors.StorageError(errors.CodeReadFailed, "scan alias", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) SaveAlias(ctx context.Context, alias *models.MatchingAlias) error {
	if alias.ID != 0 {
		_, err := s.db.ExecContext(ctx, `UPDATE matching_aliases SET account_id = ?, patron = ?, reemplazo = ? WHERE id = ?`,
			alias.AccountID, alias.Patron, alias.Reemplazo, alias.ID)
		if err != nil {
			return errors.StorageError(errors.CodeWriteFailed, "update alias", err)
		}
		return nil
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO matching_aliases (account_id, patron, reemplazo) VALUES (?, ?, ?)`,
		alias.AccountID, alias.Patron, alias.Reemplazo)
	if err != nil {
		return errors.StorageError(errors.CodeWriteFailed, "insert alias", err)
	}
	alias.ID, _ = res.LastInsertId()
	return nil
}

func (s *Store) ListRules(ctx context.Context) ([]models.ClassificationRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, patron, kind, third_party_id, cost_center_id, concept_id
		FROM classification_rules ORDER BY id`)
	if err != nil {
		return nil, errors.StorageError(errors.CodeReadFailed, "list rules", err)
	}
	defer func() { _ = rows.Close() }()

	var result []models.ClassificationRule
	for rows.Next() {
		var (
			r                               models.ClassificationRule
			kind                            string
			account, third, center, concept sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &account, &r.Patron, &kind, &third, &center, &concept); err != nil {
			return nil, errors.StorageError(errors.CodeReadFailed, "scan rule", err)
		}
		r.Kind = models.MatchKind(kind)
		r.AccountID = idFromNull(account)
		r.ThirdPartyID = idFromNull(third)
		r.CostCenterID = idFromNull(center)
		r.ConceptID = idFromNull(concept)
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) SaveRule(ctx context.Context, rule *models.ClassificationRule) error {
	if rule.Kind == "" {
		rule.Kind = models.MatchContains
	}
	if !rule.Kind.IsValid() {
		return errors.ValidationError(errors.CodeOutOfRange, "kind", rule.Kind, nil)
	}
	args := []interface{}{nullID(rule.AccountID), rule.Patron, string(rule.Kind),
		nullID(rule.ThirdPartyID), nullID(rule.CostCenterID), nullID(rule.ConceptID)}

	if rule.ID != 0 {
		_, err := s.db.ExecContext(ctx, `
			UPDATE classification_rules SET account_id = ?, patron = ?, kind = ?, third_party_id = ?,
				cost_center_id = ?, concept_id = ? WHERE id = ?`, append(args, rule.ID)...)
		if err != nil {
			return errors.StorageError(errors.CodeWriteFailed, "update rule", err)
		}
		return nil
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO classification_rules (account_id, patron, kind, third_party_id, cost_center_id, concept_id)
		VALUES (?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return errors.StorageError(errors.CodeWriteFailed, "insert rule", err)
	}
	rule.ID, _ = res.LastInsertId()
	return nil
}

// ================================================================
// CATALOGS
// ================================================================

func (s *Store) GetThirdParty(ctx context.Context, id int64) (*models.ThirdParty, error) {
	var tp models.ThirdParty
	err := s.db.QueryRowContext(ctx, `SELECT id, name, document FROM third_parties WHERE id = ?`, id).
		Scan(&tp.ID, &tp.Name, &tp.Document)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError(errors.CodeThirdPartyNotFound, "third party", id)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeReadFailed, "get third party", err)
	}
	return &tp, nil
}

func (s *Store) SaveThirdParty(ctx context.Context, tp *models.ThirdParty) error {
	if tp.ID == 0 {
		res, err := s.db.ExecContext(ctx, `INSERT INTO third_parties (name, document) VALUES (?, ?)`, tp.Name, tp.Document)
		if err != nil {
			return errors.StorageError(errors.CodeWriteFailed, "insert third party", err)
		}
		tp.ID, _ = res.LastInsertId()
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO third_parties (id, name, document) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, document = excluded.document`,
		tp.ID, tp.Name, tp.Document)
	if err != nil {
		return errors.StorageError(errors.CodeWriteFailed, "save third party", err)
	}
	return nil
}

func (s *Store) FindReference(ctx context.Context, reference string) (*models.ReferenceEntry, error) {
	return s.findReference(ctx, `SELECT reference, third_party_id, description FROM reference_catalog WHERE reference = ?`, reference)
}

func (s *Store) FindReferenceByDescriptionPrefix(ctx context.Context, prefix string) (*models.ReferenceEntry, error) {
	prefix = models.NormalizeText(prefix)
	if prefix == "" {
		return nil, nil
	}

	// the prefix is compared in Go because SQLite's UPPER leaves accented letters alone
	rows, err := s.db.QueryContext(ctx, `SELECT reference, third_party_id, description FROM reference_catalog ORDER BY reference`)
	if err != nil {
		return nil, errors.StorageError(errors.CodeReadFailed, "find reference", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var e models.ReferenceEntry
		if err := rows.Scan(&e.Reference, &e.ThirdPartyID, &e.Description); err != nil {
			return nil, errors.StorageError(errors.CodeReadFailed, "find reference", err)
		}
		if strings.HasPrefix(models.NormalizeText(e.Description), prefix) {
			return &e, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeReadFailed, "find reference", err)
	}
	return nil, nil
}

func (s *Store) findReference(ctx context.Context, query string, arg interface{}) (*models.ReferenceEntry, error) {
	var e models.ReferenceEntry
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&e.Reference, &e.ThirdPartyID, &e.Description)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeReadFailed, "find reference", err)
	}
	return &e, nil
}

func (s *Store) SaveReference(ctx context.Context, entry *models.ReferenceEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reference_catalog (reference, third_party_id, description) VALUES (?, ?, ?)
		ON CONFLICT(reference) DO UPDATE SET third_party_id = excluded.third_party_id, description = excluded.description`,
		entry.Reference, entry.ThirdPartyID, entry.Description)
	if err != nil {
		return errors.StorageError(errors.CodeWriteFailed, "save reference", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	var (
		a        models.Account
		currency sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, type, currency_id FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.Type, &currency)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError(errors.CodeAccountNotFound, "account", id)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeReadFailed, "get account", err)
	}
	a.CurrencyID = currency.Int64
	return &a, nil
}

func (s *Store) SaveAccount(ctx context.Context, account *models.Account) error {
	if account.ID == 0 {
		res, err := s.db.ExecContext(ctx, `INSERT INTO accounts (name, type, currency_id) VALUES (?, ?, ?)`,
			account.Name, account.Type, account.CurrencyID)
		if err != nil {
			return errors.StorageError(errors.CodeWriteFailed, "insert account", err)
		}
		account.ID, _ = res.LastInsertId()
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, type, currency_id) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, type = excluded.type, currency_id = excluded.currency_id`,
		account.ID, account.Name, account.Type, account.CurrencyID)
	if err != nil {
		return errors.StorageError(errors.CodeWriteFailed, "save account", err)
	}
	return nil
}

func (s *Store) GetCurrency(ctx context.Context, id int64) (*models.Currency, error) {
	var c models.Currency
	err := s.db.QueryRowContext(ctx, `SELECT id, code FROM currencies WHERE id = ?`, id).Scan(&c.ID, &c.Code)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError(errors.CodeCurrencyNotFound, "currency", id)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeReadFailed, "get currency", err)
	}
	return &c, nil
}

func (s *Store) SaveCurrency(ctx context.Context, currency *models.Currency) error {
	if currency.ID == 0 {
		res, err := s.db.ExecContext(ctx, `INSERT INTO currencies (code) VALUES (?)`, currency.Code)
		if err != nil {
			return errors.StorageError(errors.CodeWriteFailed, "insert currency", err)
		}
		currency.ID, _ = res.LastInsertId()
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO currencies (id, code) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET code = excluded.code`, currency.ID, currency.Code)
	if err != nil {
		return errors.StorageError(errors.CodeWriteFailed, "save currency", err)
	}
	return nil
}

// ================================================================
// PERIOD TOTALS
// ================================================================

func (s *Store) FindPeriodTotals(ctx context.Context, period models.Period) (*models.PeriodTotals, error) {
	var (
		t                       models.PeriodTotals
		inflows, outflows, net string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT account_id, year, month, inflows, outflows, net, movement_count, from_matches, computed_at
		FROM period_totals WHERE account_id = ? AND year = ? AND month = ?`,
		period.AccountID, period.Year, period.Month).Scan(
		&t.AccountID, &t.Year, &t.Month, &inflows, &outflows, &net, &t.MovementCount, &t.FromMatches, &t.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeReadFailed, "load period totals", err)
	}
	for _, f := range []struct {
		raw string
		dst *decimal.Decimal
	}{{inflows, &t.Inflows}, {outflows, &t.Outflows}, {net, &t.Net}} {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return nil, errors.StorageError(errors.CodeReadFailed, "parse period totals", err)
		}
	}
	return &t, nil
}

func (s *Store) SavePeriodTotals(ctx context.Context, totals *models.PeriodTotals) error {
	if totals.ComputedAt.IsZero() {
		totals.ComputedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO period_totals (account_id, year, month, inflows, outflows, net, movement_count, from_matches, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, year, month) DO UPDATE SET
			inflows = excluded.inflows,
			outflows = excluded.outflows,
			net = excluded.net,
			movement_count = excluded.movement_count,
			from_matches = excluded.from_matches,
			computed_at = excluded.computed_at`,
		totals.AccountID, totals.Year, totals.Month, totals.Inflows.String(), totals.Outflows.String(),
		totals.Net.String(), totals.MovementCount, totals.FromMatches, totals.ComputedAt)
	if err != nil {
		return errors.StorageError(errors.CodeWriteFailed, "save period totals", err)
	}
	return nil
}
