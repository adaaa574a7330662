// Package memory is an in-process implementation of store.Repository used by tests
// and dry runs. Values are copied on the way in and out.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/store"
	"bank-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// Store keeps every entity in maps guarded by one mutex
type Store struct {
	mu sync.RWMutex

	nextID int64

	statements map[int64]*models.StatementMovement
	ledgers    map[int64]*models.LedgerMovement
	matches    map[int64]*models.Match
	config     *matcher.MatchingConfig
	aliases    []models.MatchingAlias
	rules      []models.ClassificationRule
	thirdParty map[int64]*models.ThirdParty
	references map[string]*models.ReferenceEntry
	accounts   map[int64]*models.Account
	currencies map[int64]*models.Currency
	totals     map[models.Period]*models.PeriodTotals
}

var _ store.Repository = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		statements: make(map[int64]*models.StatementMovement),
		ledgers:    make(map[int64]*models.LedgerMovement),
		matches:    make(map[int64]*models.Match),
		thirdParty: make(map[int64]*models.ThirdParty),
		references: make(map[string]*models.ReferenceEntry),
		accounts:   make(map[int64]*models.Account),
		currencies: make(map[int64]*models.Currency),
		totals:     make(map[models.Period]*models.PeriodTotals),
	}
}

// Close is a no-op
func (s *Store) Close() error { return nil }

func (s *Store) assignID(id *int64) {
	if *id == 0 {
		s.nextID++
		*id = s.nextID
	} else if *id > s.nextID {
		s.nextID = *id
	}
}

// Statements

func (s *Store) ListStatements(_ context.Context, period models.Period) ([]*models.StatementMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.StatementMovement
	for _, st := range s.statements {
		if st.Period() == period {
			c := *st
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *Store) GetStatement(_ context.Context, id int64) (*models.StatementMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.statements[id]
	if !ok {
		return nil, errors.NotFoundError(errors.CodeStatementNotFound, "statement movement", id)
	}
	c := *st
	return &c, nil
}

func (s *Store) ReplaceStatements(_ context.Context, period models.Period, statements []*models.StatementMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, st := range s.statements {
		if st.Period() != period {
			continue
		}
		delete(s.statements, id)
		for mid, m := range s.matches {
			if m.StatementID == id {
				delete(s.matches, mid)
			}
		}
	}
	for _, st := range statements {
		st.AccountID, st.Year, st.Month = period.AccountID, period.Year, period.Month
		s.assignID(&st.ID)
		c := *st
		s.statements[st.ID] = &c
	}
	return nil
}

// Ledger

func (s *Store) GetLedger(_ context.Context, id int64) (*models.LedgerMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.ledgers[id]
	if !ok {
		return nil, errors.NotFoundError(errors.CodeLedgerNotFound, "ledger movement", id)
	}
	return l.Clone(), nil
}

func (s *Store) GetLedgers(_ context.Context, ids []int64) ([]*models.LedgerMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.LedgerMovement, 0, len(ids))
	for _, id := range ids {
		if l, ok := s.ledgers[id]; ok {
			result = append(result, l.Clone())
		}
	}
	return result, nil
}

func (s *Store) SearchLedgers(_ context.Context, filter store.LedgerFilter) ([]*models.LedgerMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*models.LedgerMovement, 0, len(s.ledgers))
	for _, l := range s.ledgers {
		all = append(all, l)
	}
	matched := store.ApplyFilter(all, filter)
	result := make([]*models.LedgerMovement, len(matched))
	for i, l := range matched {
		result[i] = l.Clone()
	}
	return result, nil
}

func (s *Store) SaveLedger(_ context.Context, movement *models.LedgerMovement) error {
	if err := movement.Validate(); err != nil {
		return errors.ValidationError(errors.CodeInvalidAmount, "splits", movement.Amount.String(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.assignID(&movement.ID)
	for i := range movement.Splits {
		movement.Splits[i].MovementID = movement.ID
		s.assignID(&movement.Splits[i].ID)
	}
	s.ledgers[movement.ID] = movement.Clone()
	return nil
}

func (s *Store) LedgerExists(_ context.Context, accountID int64, date time.Time, amount decimal.Decimal, description string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := models.DateOnly(date)
	desc := models.NormalizeText(description)
	for _, l := range s.ledgers {
		if l.AccountID == accountID && models.DateOnly(l.Date).Equal(day) &&
			l.Amount.Equal(amount) && models.NormalizeText(l.Description) == desc {
			return true, nil
		}
	}
	return false, nil
}

// Matches

func (s *Store) GetMatch(_ context.Context, id int64) (*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.matches[id]
	if !ok {
		return nil, errors.NotFoundError(errors.CodeMatchNotFound, "match", id)
	}
	return copyMatch(m), nil
}

func (s *Store) FindMatchByStatement(_ context.Context, statementID int64) (*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.matches {
		if m.StatementID == statementID {
			return copyMatch(m), nil
		}
	}
	return nil, nil
}

func (s *Store) ListMatchesByLedger(_ context.Context, ledgerID int64) ([]*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collectMatches(func(m *models.Match) bool {
		return m.LedgerID != nil && *m.LedgerID == ledgerID
	}), nil
}

func (s *Store) ListMatchesByPeriod(_ context.Context, period models.Period) ([]*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collectMatches(func(m *models.Match) bool {
		st, ok := s.statements[m.StatementID]
		return ok && st.Period() == period
	}), nil
}

func (s *Store) ListMatchesByEstado(_ context.Context, period models.Period, estado models.MatchEstado) ([]*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collectMatches(func(m *models.Match) bool {
		st, ok := s.statements[m.StatementID]
		return ok && st.Period() == period && m.Estado == estado
	}), nil
}

func (s *Store) SaveMatch(_ context.Context, match *models.Match) error {
	if err := match.Validate(); err != nil {
		return errors.ValidationError(errors.CodeInvalidState, "estado", match.Estado, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.statements[match.StatementID]; !ok {
		return errors.NotFoundError(errors.CodeStatementNotFound, "statement movement", match.StatementID)
	}
	for id, existing := range s.matches {
		if existing.StatementID == match.StatementID && id != match.ID {
			match.ID = id
			if match.CreatedAt.IsZero() {
				match.CreatedAt = existing.CreatedAt
			}
			break
		}
	}
	now := time.Now().UTC()
	if match.CreatedAt.IsZero() {
		match.CreatedAt = now
	}
	match.UpdatedAt = now
	s.assignID(&match.ID)
	s.matches[match.ID] = copyMatch(match)
	return nil
}

func (s *Store) DeleteMatches(_ context.Context, ids []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		if _, ok := s.matches[id]; ok {
			delete(s.matches, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) DeleteMatchesByPeriod(_ context.Context, period models.Period) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, m := range s.matches {
		if st, ok := s.statements[m.StatementID]; ok && st.Period() == period {
			delete(s.matches, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) collectMatches(keep func(*models.Match) bool) []*models.Match {
	var result []*models.Match
	for _, m := range s.matches {
		if keep(m) {
			result = append(result, copyMatch(m))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func copyMatch(m *models.Match) *models.Match {
	c := *m
	if m.LedgerID != nil {
		id := *m.LedgerID
		c.LedgerID = &id
	}
	c.Reasons = append([]string(nil), m.Reasons...)
	return &c
}

// Config, aliases and rules

func (s *Store) FindActiveConfig(_ context.Context) (*matcher.MatchingConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Clone(), nil
}

func (s *Store) SaveConfig(_ context.Context, config *matcher.MatchingConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if config.ID == 0 {
		config.ID = 1
	}
	s.config = config.Clone()
	return nil
}

func (s *Store) ListAliases(_ context.Context, accountID int64) ([]models.MatchingAlias, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.MatchingAlias
	for _, a := range s.aliases {
		if a.AccountID == accountID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (s *Store) SaveAlias(_ context.Context, alias *models.MatchingAlias) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.aliases {
		if alias.ID != 0 && s.aliases[i].ID == alias.ID {
			s.aliases[i] = *alias
			return nil
		}
	}
	s.assignID(&alias.ID)
	s.aliases = append(s.aliases, *alias)
	return nil
}

func (s *Store) ListRules(_ context.Context) ([]models.ClassificationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ClassificationRule(nil), s.rules...), nil
}

func (s *Store) SaveRule(_ context.Context, rule *models.ClassificationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rules {
		if rule.ID != 0 && s.rules[i].ID == rule.ID {
			s.rules[i] = *rule
			return nil
		}
	}
	s.assignID(&rule.ID)
	s.rules = append(s.rules, *rule)
	return nil
}

// Catalogs

func (s *Store) GetThirdParty(_ context.Context, id int64) (*models.ThirdParty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tp, ok := s.thirdParty[id]
	if !ok {
		return nil, errors.NotFoundError(errors.CodeThirdPartyNotFound, "third party", id)
	}
	c := *tp
	return &c, nil
}

func (s *Store) SaveThirdParty(_ context.Context, tp *models.ThirdParty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignID(&tp.ID)
	c := *tp
	s.thirdParty[tp.ID] = &c
	return nil
}

func (s *Store) FindReference(_ context.Context, reference string) (*models.ReferenceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.references[reference]; ok {
		c := *e
		return &c, nil
	}
	return nil, nil
}

func (s *Store) FindReferenceByDescriptionPrefix(_ context.Context, prefix string) (*models.ReferenceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix = models.NormalizeText(prefix)
	if prefix == "" {
		return nil, nil
	}
	keys := make([]string, 0, len(s.references))
	for k := range s.references {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e := s.references[k]
		if strings.HasPrefix(models.NormalizeText(e.Description), prefix) {
			c := *e
			return &c, nil
		}
	}
	return nil, nil
}

func (s *Store) SaveReference(_ context.Context, entry *models.ReferenceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *entry
	s.references[entry.Reference] = &c
	return nil
}

func (s *Store) GetAccount(_ context.Context, id int64) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, errors.NotFoundError(errors.CodeAccountNotFound, "account", id)
	}
	c := *a
	return &c, nil
}

func (s *Store) SaveAccount(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignID(&account.ID)
	c := *account
	s.accounts[account.ID] = &c
	return nil
}

func (s *Store) GetCurrency(_ context.Context, id int64) (*models.Currency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.currencies[id]
	if !ok {
		return nil, errors.NotFoundError(errors.CodeCurrencyNotFound, "currency", id)
	}
	cp := *c
	return &cp, nil
}

func (s *Store) SaveCurrency(_ context.Context, currency *models.Currency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignID(&currency.ID)
	c := *currency
	s.currencies[currency.ID] = &c
	return nil
}

// Totals

func (s *Store) FindPeriodTotals(_ context.Context, period models.Period) (*models.PeriodTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.totals[period]; ok {
		c := *t
		return &c, nil
	}
	return nil, nil
}

func (s *Store) SavePeriodTotals(_ context.Context, totals *models.PeriodTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	period := models.Period{AccountID: totals.AccountID, Year: totals.Year, Month: totals.Month}
	c := *totals
	s.totals[period] = &c
	return nil
}
