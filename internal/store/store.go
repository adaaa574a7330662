// Package store declares the persistence collaborators used by the reconciliation
// and classification services. Get* lookups return a not-found error when the entity
// is missing; Find* lookups return nil without error.
package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// StatementStore reads bank statement lines
type StatementStore interface {
	ListStatements(ctx context.Context, period models.Period) ([]*models.StatementMovement, error)
	GetStatement(ctx context.Context, id int64) (*models.StatementMovement, error)
	// ReplaceStatements drops the period's lines (and their matches) and stores the new ones
	ReplaceStatements(ctx context.Context, period models.Period, statements []*models.StatementMovement) error
}

// LedgerFilter narrows a ledger search. Zero values mean "any".
type LedgerFilter struct {
	AccountID           int64
	From                time.Time // inclusive
	To                  time.Time // exclusive
	ThirdPartyID        *int64
	Reference           string
	DescriptionContains string
	OnlyClassified      bool
	OnlyPending         bool
	ExcludeIDs          []int64
	Limit               int
	NewestFirst         bool
}

// LedgerStore reads and writes ledger movements with their splits
type LedgerStore interface {
	GetLedger(ctx context.Context, id int64) (*models.LedgerMovement, error)
	GetLedgers(ctx context.Context, ids []int64) ([]*models.LedgerMovement, error)
	SearchLedgers(ctx context.Context, filter LedgerFilter) ([]*models.LedgerMovement, error)
	// SaveLedger writes the header and replaces its splits; a zero ID inserts
	SaveLedger(ctx context.Context, movement *models.LedgerMovement) error
	LedgerExists(ctx context.Context, accountID int64, date time.Time, amount decimal.Decimal, description string) (bool, error)
}

// MatchStore persists matches. There is at most one match per statement line.
type MatchStore interface {
	GetMatch(ctx context.Context, id int64) (*models.Match, error)
	FindMatchByStatement(ctx context.Context, statementID int64) (*models.Match, error)
	ListMatchesByLedger(ctx context.Context, ledgerID int64) ([]*models.Match, error)
	ListMatchesByPeriod(ctx context.Context, period models.Period) ([]*models.Match, error)
	ListMatchesByEstado(ctx context.Context, period models.Period, estado models.MatchEstado) ([]*models.Match, error)
	// SaveMatch inserts or overwrites the match of its statement line
	SaveMatch(ctx context.Context, match *models.Match) error
	DeleteMatches(ctx context.Context, ids []int64) (int, error)
	DeleteMatchesByPeriod(ctx context.Context, period models.Period) (int, error)
}

// ConfigStore holds the single active matching configuration
type ConfigStore interface {
	FindActiveConfig(ctx context.Context) (*matcher.MatchingConfig, error)
	SaveConfig(ctx context.Context, config *matcher.MatchingConfig) error
}

// AliasStore holds the statement text aliases
type AliasStore interface {
	ListAliases(ctx context.Context, accountID int64) ([]models.MatchingAlias, error)
	SaveAlias(ctx context.Context, alias *models.MatchingAlias) error
}

// RuleStore holds the static classification rules
type RuleStore interface {
	ListRules(ctx context.Context) ([]models.ClassificationRule, error)
	SaveRule(ctx context.Context, rule *models.ClassificationRule) error
}

// ThirdPartyCatalog reads third parties
type ThirdPartyCatalog interface {
	GetThirdParty(ctx context.Context, id int64) (*models.ThirdParty, error)
	SaveThirdParty(ctx context.Context, tp *models.ThirdParty) error
}

// ReferenceCatalog maps bank references to third parties
type ReferenceCatalog interface {
	FindReference(ctx context.Context, reference string) (*models.ReferenceEntry, error)
	// FindReferenceByDescriptionPrefix returns an entry whose description starts with prefix
	FindReferenceByDescriptionPrefix(ctx context.Context, prefix string) (*models.ReferenceEntry, error)
	SaveReference(ctx context.Context, entry *models.ReferenceEntry) error
}

// AccountCatalog reads bank accounts
type AccountCatalog interface {
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	SaveAccount(ctx context.Context, account *models.Account) error
}

// CurrencyCatalog reads currencies
type CurrencyCatalog interface {
	GetCurrency(ctx context.Context, id int64) (*models.Currency, error)
	SaveCurrency(ctx context.Context, currency *models.Currency) error
}

// TotalsStore keeps the aggregate ledger totals per period
type TotalsStore interface {
	FindPeriodTotals(ctx context.Context, period models.Period) (*models.PeriodTotals, error)
	SavePeriodTotals(ctx context.Context, totals *models.PeriodTotals) error
}

// Repository is everything a backend provides
type Repository interface {
	StatementStore
	LedgerStore
	MatchStore
	ConfigStore
	AliasStore
	RuleStore
	ThirdPartyCatalog
	ReferenceCatalog
	AccountCatalog
	CurrencyCatalog
	TotalsStore
	Close() error
}

// Matches reports whether the movement satisfies the filter. Backends that filter in
// memory share it so both behave the same way.
func (f LedgerFilter) Matches(m *models.LedgerMovement) bool {
	if f.AccountID != 0 && m.AccountID != f.AccountID {
		return false
	}
	d := models.DateOnly(m.Date)
	if !f.From.IsZero() && d.Before(models.DateOnly(f.From)) {
		return false
	}
	if !f.To.IsZero() && !d.Before(models.DateOnly(f.To)) {
		return false
	}
	if f.ThirdPartyID != nil && !models.IDEqual(m.EffectiveThirdParty(), f.ThirdPartyID) {
		return false
	}
	if f.Reference != "" && m.Reference != f.Reference {
		return false
	}
	if f.DescriptionContains != "" && !containsFold(m.Description, f.DescriptionContains) {
		return false
	}
	if f.OnlyClassified && m.IsPending() {
		return false
	}
	if f.OnlyPending && !m.IsPending() {
		return false
	}
	for _, id := range f.ExcludeIDs {
		if m.ID == id {
			return false
		}
	}
	return true
}

func containsFold(text, sub string) bool {
	return strings.Contains(models.NormalizeText(text), models.NormalizeText(sub))
}

// ApplyFilter filters, orders and limits movements the same way for every backend
func ApplyFilter(movements []*models.LedgerMovement, f LedgerFilter) []*models.LedgerMovement {
	result := make([]*models.LedgerMovement, 0, len(movements))
	for _, m := range movements {
		if f.Matches(m) {
			result = append(result, m)
		}
	}
	SortLedgers(result, f.NewestFirst)
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result
}

// SortLedgers orders by date then id, ascending or newest first
func SortLedgers(movements []*models.LedgerMovement, newestFirst bool) {
	sort.SliceStable(movements, func(i, j int) bool {
		a, b := movements[i], movements[j]
		if !a.Date.Equal(b.Date) {
			if newestFirst {
				return a.Date.After(b.Date)
			}
			return a.Date.Before(b.Date)
		}
		if newestFirst {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
}
