package reconciler

import (
	"context"
	"sort"
	"time"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/store"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// ValidationStore is what MatchValidationService reads and deletes
type ValidationStore interface {
	store.StatementStore
	store.MatchStore
}

// MatchValidationService finds ledger movements backing more than one active match.
// The matcher only prevents that within a single run; separate runs and manual
// actions can still produce it.
type MatchValidationService struct {
	store  ValidationStore
	logger logger.Logger
}

// StatementLink is one statement line hanging off a shared ledger movement
type StatementLink struct {
	MatchID     int64              `json:"match_id"`
	StatementID int64              `json:"statement_id"`
	Estado      models.MatchEstado `json:"estado"`
	Period      models.Period      `json:"period"`
	Date        time.Time          `json:"date"`
	Description string             `json:"description"`
	Amount      decimal.Decimal    `json:"amount"`
}

// OneToManyCase is a ledger movement with its full statement-side fan-out
type OneToManyCase struct {
	LedgerID   int64           `json:"ledger_id"`
	Statements []StatementLink `json:"statements"`
}

// OneToManyReport is the result of DetectOneToMany
type OneToManyReport struct {
	Period models.Period   `json:"period"`
	Cases  []OneToManyCase `json:"cases"`
}

// InvalidationResult is the result of InvalidateOneToMany
type InvalidationResult struct {
	Period  models.Period   `json:"period"`
	Deleted int             `json:"deleted"`
	Cases   []OneToManyCase `json:"cases"`
}

// NewMatchValidationService creates a new validation service
func NewMatchValidationService(s ValidationStore, log logger.Logger) *MatchValidationService {
	return &MatchValidationService{
		store:  s,
		logger: logger.OrGlobal(log).WithComponent("match_validation"),
	}
}

// DetectOneToMany lists the ledger movements linked by the period's matches that are the
// system side of more than one active match. Each case carries every linked statement
// line, including lines from other periods.
func (vs *MatchValidationService) DetectOneToMany(ctx context.Context, period models.Period) (*OneToManyReport, error) {
	if err := period.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeOutOfRange, "period", period.String(), err)
	}

	matches, err := vs.store.ListMatchesByPeriod(ctx, period)
	if err != nil {
		return nil, err
	}

	report := &OneToManyReport{Period: period}
	for _, ledgerID := range activeLedgerIDs(matches) {
		links, err := vs.store.ListMatchesByLedger(ctx, ledgerID)
		if err != nil {
			return nil, err
		}

		statements := make(map[int64]bool)
		var fanOut []StatementLink
		for _, m := range links {
			if !m.IsActive() || statements[m.StatementID] {
				continue
			}
			statements[m.StatementID] = true

			link := StatementLink{MatchID: m.ID, StatementID: m.StatementID, Estado: m.Estado}
			st, err := vs.store.GetStatement(ctx, m.StatementID)
			if err != nil && !errors.IsNotFound(err) {
				return nil, err
			}
			if st != nil {
				link.Period = st.Period()
				link.Date = st.Date
				link.Description = st.Description
				link.Amount = st.Amount
			}
			fanOut = append(fanOut, link)
		}

		if len(fanOut) > 1 {
			report.Cases = append(report.Cases, OneToManyCase{LedgerID: ledgerID, Statements: fanOut})
		}
	}

	sort.Slice(report.Cases, func(i, j int) bool { return report.Cases[i].LedgerID < report.Cases[j].LedgerID })

	if len(report.Cases) > 0 {
		vs.logger.WithFields(logger.Fields{
			"period": period.String(),
			"cases":  len(report.Cases),
		}).Warn("One-to-many links detected")
	}
	return report, nil
}

// InvalidateOneToMany deletes every match touching an offending ledger movement whose
// statement line belongs to the period. Links from other periods are kept. Running it
// again on a clean period deletes nothing.
func (vs *MatchValidationService) InvalidateOneToMany(ctx context.Context, period models.Period) (*InvalidationResult, error) {
	report, err := vs.DetectOneToMany(ctx, period)
	if err != nil {
		return nil, err
	}

	result := &InvalidationResult{Period: period, Cases: report.Cases}
	var ids []int64
	for _, c := range report.Cases {
		for _, link := range c.Statements {
			if link.Period == period {
				ids = append(ids, link.MatchID)
			}
		}
	}
	if len(ids) == 0 {
		return result, nil
	}

	deleted, err := vs.store.DeleteMatches(ctx, ids)
	if err != nil {
		return nil, err
	}
	result.Deleted = deleted

	vs.logger.WithFields(logger.Fields{
		"period":  period.String(),
		"cases":   len(report.Cases),
		"deleted": deleted,
	}).Info("One-to-many links invalidated")

	return result, nil
}
