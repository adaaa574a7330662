// Package reconciler runs period reconciliation on top of the matcher and manages the
// lifecycle of persisted matches.
//
// ConciliacionService computes the ledger universe of a period, feeds it to the
// MatchingService together with the statement lines still open, and persists the
// produced matches one by one. LifecycleService covers the human actions (link,
// unlink, ignore, create a ledger movement from a statement line) and
// MatchValidationService detects and repairs ledger movements linked more than once.
//
// Example usage:
//
//	svc := reconciler.NewConciliacionService(repo, log)
//	result, err := svc.RunPeriod(ctx, models.Period{AccountID: 1, Year: 2025, Month: 1})
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/store"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceTolerance is the largest statement vs ledger difference still reported as balanced
var BalanceTolerance = decimal.NewFromFloat(0.01)

// ConciliacionService reconciles one account period at a time
type ConciliacionService struct {
	repo       store.Repository
	matching   *matcher.MatchingService
	validation *MatchValidationService
	logger     logger.Logger

	// currency codes resolved during the current run
	currencyMu    sync.Mutex
	currencyCodes map[int64]string
}

// PeriodResult is what RunPeriod returns
type PeriodResult struct {
	Matches   []*models.Match      `json:"matches"`
	Stats     *PeriodStats         `json:"stats"`
	Integrity *IntegrityReport     `json:"integrity"`
	Totals    *models.PeriodTotals `json:"totals,omitempty"`
}

// PeriodStats describes one reconciliation run
type PeriodStats struct {
	RunID        string                     `json:"run_id"`
	Period       models.Period              `json:"period"`
	Statements   int                        `json:"statements"`
	Processed    int                        `json:"processed"`
	Kept         int                        `json:"kept"`
	UniverseSize int                        `json:"universe_size"`
	PoolSize     int                        `json:"pool_size"`
	Held         int                        `json:"held"`
	ByEstado     map[models.MatchEstado]int `json:"by_estado"`
	ByCurrency   map[string]*CurrencyStats  `json:"by_currency"`
	AverageScore float64                    `json:"average_score"`
	StartedAt    time.Time                  `json:"started_at"`
	Duration     time.Duration              `json:"duration"`
}

// CurrencyStats groups the period universe by currency code
type CurrencyStats struct {
	Movements int             `json:"movements"`
	Amount    decimal.Decimal `json:"amount"`
	Matched   int             `json:"matched"`
}

// IntegrityReport compares the statement side with the ledger side of the active matches
type IntegrityReport struct {
	StatementTotal        decimal.Decimal `json:"statement_total"`
	MatchedStatementTotal decimal.Decimal `json:"matched_statement_total"`
	MatchedLedgerTotal    decimal.Decimal `json:"matched_ledger_total"`
	Difference            decimal.Decimal `json:"difference"`
	Balanced              bool            `json:"balanced"`
	ActiveMatches         int             `json:"active_matches"`
	OpenStatements        int             `json:"open_statements"`
	OneToMany             []OneToManyCase `json:"one_to_many,omitempty"`
}

// ResetResult is what ResetPeriod returns
type ResetResult struct {
	Period  models.Period        `json:"period"`
	Deleted int                  `json:"deleted"`
	Totals  *models.PeriodTotals `json:"totals"`
}

// NewConciliacionService creates a new reconciliation service
func NewConciliacionService(repo store.Repository, log logger.Logger) *ConciliacionService {
	log = logger.OrGlobal(log)
	return &ConciliacionService{
		repo:          repo,
		matching:      matcher.NewMatchingService(log),
		validation:    NewMatchValidationService(repo, log),
		logger:        log.WithComponent("conciliacion"),
		currencyCodes: make(map[int64]string),
	}
}

// SystemUniverse returns the ledger movements dated inside the period plus any ledger
// movement from another period already linked to one of the period's statement lines.
func (cs *ConciliacionService) SystemUniverse(ctx context.Context, period models.Period) ([]*models.LedgerMovement, error) {
	if err := period.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeOutOfRange, "period", period.String(), err)
	}

	calendar, err := cs.repo.SearchLedgers(ctx, store.LedgerFilter{
		AccountID: period.AccountID,
		From:      period.Start(),
		To:        period.End(),
	})
	if err != nil {
		return nil, err
	}

	matches, err := cs.repo.ListMatchesByPeriod(ctx, period)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(calendar))
	for _, m := range calendar {
		seen[m.ID] = true
	}
	var extra []int64
	for _, m := range matches {
		if m.HasLedger() && !seen[*m.LedgerID] {
			seen[*m.LedgerID] = true
			extra = append(extra, *m.LedgerID)
		}
	}
	if len(extra) == 0 {
		return calendar, nil
	}

	crossPeriod, err := cs.repo.GetLedgers(ctx, extra)
	if err != nil {
		return nil, err
	}
	store.SortLedgers(crossPeriod, false)

	cs.logger.WithFields(logger.Fields{
		"period":       period.String(),
		"calendar":     len(calendar),
		"cross_period": len(crossPeriod),
	}).Debug("Computed system universe")

	return append(calendar, crossPeriod...), nil
}

// ResetPeriod deletes every match of the period and recomputes its totals
func (cs *ConciliacionService) ResetPeriod(ctx context.Context, period models.Period) (*ResetResult, error) {
	if err := period.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeOutOfRange, "period", period.String(), err)
	}

	deleted, err := cs.repo.DeleteMatchesByPeriod(ctx, period)
	if err != nil {
		return nil, err
	}

	totals, err := cs.recomputeTotals(ctx, period)
	if err != nil {
		return nil, err
	}

	cs.logger.WithFields(logger.Fields{
		"period":  period.String(),
		"deleted": deleted,
		"net":     totals.Net.String(),
	}).Info("Period reset")

	return &ResetResult{Period: period, Deleted: deleted, Totals: totals}, nil
}

// RunPeriod reconciles the statement lines of a period that have no persisted match, or
// only an unconfirmed SIN_MATCH, against the period's system universe. Ledger movements
// already backing an active match are kept out of the pool. Matches are saved one at a
// time; a failed save returns the error and leaves the earlier saves in place.
func (cs *ConciliacionService) RunPeriod(ctx context.Context, period models.Period) (*PeriodResult, error) {
	if err := period.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeOutOfRange, "period", period.String(), err)
	}

	stats := &PeriodStats{
		RunID:      uuid.New().String(),
		Period:     period,
		StartedAt:  time.Now(),
		ByEstado:   make(map[models.MatchEstado]int),
		ByCurrency: make(map[string]*CurrencyStats),
	}
	op := logger.NewOperationLogger("run_period", cs.logger, logger.Fields{
		"run_id": stats.RunID,
		"period": period.String(),
	})

	config, err := cs.activeConfig(ctx)
	if err != nil {
		op.Error(err, "Matching configuration unavailable")
		return nil, err
	}

	aliases, err := cs.repo.ListAliases(ctx, period.AccountID)
	if err != nil {
		return nil, err
	}

	statements, err := cs.repo.ListStatements(ctx, period)
	if err != nil {
		return nil, err
	}
	stats.Statements = len(statements)

	existing, err := cs.existingMatches(ctx, period)
	if err != nil {
		return nil, err
	}
	pending := selectPending(statements, existing)
	stats.Processed = len(pending)
	stats.Kept = len(statements) - len(pending)
	op.Step("Loaded statements", logger.Fields{"statements": len(statements), "pending": len(pending)})

	universe, err := cs.SystemUniverse(ctx, period)
	if err != nil {
		return nil, err
	}
	stats.UniverseSize = len(universe)

	pool, held, err := cs.availablePool(ctx, universe)
	if err != nil {
		return nil, err
	}
	stats.PoolSize = len(pool)
	stats.Held = held
	op.Step("Built ledger pool", logger.Fields{"universe": len(universe), "pool": len(pool), "held": held})

	matches, err := cs.matching.RunMatching(pending, pool, config, aliases)
	if err != nil {
		op.Error(err, "Matching failed")
		return nil, err
	}

	for _, m := range matches {
		if prev, ok := existing[m.StatementID]; ok {
			m.ID = prev.ID
			m.CreatedAt = prev.CreatedAt
		}
		if err := cs.repo.SaveMatch(ctx, m); err != nil {
			op.Error(err, "Saving match failed")
			return nil, errors.ReconciliationError(errors.CodeMatchingFailed, "save match", err).
				WithContext("statement_id", m.StatementID).
				WithContext("run_id", stats.RunID)
		}
		stats.ByEstado[m.Estado]++
	}
	stats.AverageScore = matcher.Summarize(matches).AverageScore

	totals, err := cs.recomputeTotals(ctx, period)
	if err != nil {
		return nil, err
	}

	integrity, err := cs.checkIntegrity(ctx, period, statements)
	if err != nil {
		return nil, err
	}

	if err := cs.currencyStats(ctx, period, universe, stats); err != nil {
		return nil, err
	}
	stats.Duration = time.Since(stats.StartedAt)

	op.Success("Period reconciled", logger.Fields{
		"processed":   stats.Processed,
		"ok":          stats.ByEstado[models.EstadoOK],
		"probable":    stats.ByEstado[models.EstadoProbable],
		"sin_match":   stats.ByEstado[models.EstadoSinMatch],
		"balanced":    integrity.Balanced,
		"one_to_many": len(integrity.OneToMany),
	})

	return &PeriodResult{
		Matches:   matches,
		Stats:     stats,
		Integrity: integrity,
		Totals:    totals,
	}, nil
}

// Integrity reports the statement vs ledger balance of a period without matching
func (cs *ConciliacionService) Integrity(ctx context.Context, period models.Period) (*IntegrityReport, error) {
	if err := period.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeOutOfRange, "period", period.String(), err)
	}
	statements, err := cs.repo.ListStatements(ctx, period)
	if err != nil {
		return nil, err
	}
	return cs.checkIntegrity(ctx, period, statements)
}

// activeConfig loads the active config; matching never runs on a missing or invalid one
func (cs *ConciliacionService) activeConfig(ctx context.Context) (*matcher.MatchingConfig, error) {
	config, err := cs.repo.FindActiveConfig(ctx)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "matching_config", nil,
			fmt.Errorf("no active matching configuration"))
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching_config", config.String(), err)
	}
	return config, nil
}
