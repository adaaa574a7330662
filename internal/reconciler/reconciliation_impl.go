package reconciler

import (
	"context"
	"fmt"
	"time"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/store"
	"bank-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// existingMatches indexes the period's persisted matches by statement line
func (cs *ConciliacionService) existingMatches(ctx context.Context, period models.Period) (map[int64]*models.Match, error) {
	matches, err := cs.repo.ListMatchesByPeriod(ctx, period)
	if err != nil {
		return nil, err
	}
	byStatement := make(map[int64]*models.Match, len(matches))
	for _, m := range matches {
		byStatement[m.StatementID] = m
	}
	return byStatement, nil
}

// selectPending keeps statement lines with no persisted match or an unconfirmed SIN_MATCH.
// A confirmed SIN_MATCH is an unlink tombstone and stays out of automatic matching.
func selectPending(statements []*models.StatementMovement, existing map[int64]*models.Match) []*models.StatementMovement {
	pending := make([]*models.StatementMovement, 0, len(statements))
	for _, st := range statements {
		m, ok := existing[st.ID]
		if !ok || (m.Estado == models.EstadoSinMatch && !m.Confirmado) {
			pending = append(pending, st)
		}
	}
	return pending
}

// availablePool drops ledger movements that already back an active match, in this
// period or any other
func (cs *ConciliacionService) availablePool(ctx context.Context, universe []*models.LedgerMovement) ([]*models.LedgerMovement, int, error) {
	pool := make([]*models.LedgerMovement, 0, len(universe))
	held := 0
	for _, l := range universe {
		links, err := cs.repo.ListMatchesByLedger(ctx, l.ID)
		if err != nil {
			return nil, 0, err
		}
		if hasActive(links) {
			held++
			continue
		}
		pool = append(pool, l)
	}
	return pool, held, nil
}

func hasActive(matches []*models.Match) bool {
	for _, m := range matches {
		if m.IsActive() {
			return true
		}
	}
	return false
}

// activeLedgerIDs returns the distinct ledger ids behind the active matches, in match order
func activeLedgerIDs(matches []*models.Match) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, m := range matches {
		if m.IsActive() && m.HasLedger() && !seen[*m.LedgerID] {
			seen[*m.LedgerID] = true
			ids = append(ids, *m.LedgerID)
		}
	}
	return ids
}

// recomputeTotals rebuilds the period totals from the ledger side of its active matches.
// With no active match the totals fall back to every ledger movement dated in the period.
func (cs *ConciliacionService) recomputeTotals(ctx context.Context, period models.Period) (*models.PeriodTotals, error) {
	matches, err := cs.repo.ListMatchesByPeriod(ctx, period)
	if err != nil {
		return nil, err
	}

	var (
		ledgers     []*models.LedgerMovement
		fromMatches bool
	)
	if ids := activeLedgerIDs(matches); len(ids) > 0 {
		fromMatches = true
		ledgers, err = cs.repo.GetLedgers(ctx, ids)
	} else {
		ledgers, err = cs.repo.SearchLedgers(ctx, store.LedgerFilter{
			AccountID: period.AccountID,
			From:      period.Start(),
			To:        period.End(),
		})
	}
	if err != nil {
		return nil, err
	}

	totals := sumLedgers(period, ledgers)
	totals.FromMatches = fromMatches
	totals.ComputedAt = time.Now().UTC()

	if err := cs.repo.SavePeriodTotals(ctx, totals); err != nil {
		return nil, err
	}
	return totals, nil
}

func sumLedgers(period models.Period, ledgers []*models.LedgerMovement) *models.PeriodTotals {
	totals := &models.PeriodTotals{
		AccountID: period.AccountID,
		Year:      period.Year,
		Month:     period.Month,
		Inflows:   decimal.Zero,
		Outflows:  decimal.Zero,
	}
	for _, l := range ledgers {
		if l.Amount.IsPositive() {
			totals.Inflows = totals.Inflows.Add(l.Amount)
		} else {
			totals.Outflows = totals.Outflows.Add(l.Amount)
		}
		totals.MovementCount++
	}
	totals.Net = totals.Inflows.Add(totals.Outflows)
	return totals
}

// checkIntegrity compares statement amounts with the ledger amounts they are linked to
func (cs *ConciliacionService) checkIntegrity(ctx context.Context, period models.Period, statements []*models.StatementMovement) (*IntegrityReport, error) {
	matches, err := cs.repo.ListMatchesByPeriod(ctx, period)
	if err != nil {
		return nil, err
	}

	report := &IntegrityReport{
		StatementTotal:        decimal.Zero,
		MatchedStatementTotal: decimal.Zero,
		MatchedLedgerTotal:    decimal.Zero,
	}

	active := make(map[int64]bool)
	for _, m := range matches {
		if m.IsActive() {
			active[m.StatementID] = true
			report.ActiveMatches++
		}
	}
	for _, st := range statements {
		report.StatementTotal = report.StatementTotal.Add(st.Amount)
		if active[st.ID] {
			report.MatchedStatementTotal = report.MatchedStatementTotal.Add(st.Amount)
		} else {
			report.OpenStatements++
		}
	}

	ledgers, err := cs.repo.GetLedgers(ctx, activeLedgerIDs(matches))
	if err != nil {
		return nil, err
	}
	for _, l := range ledgers {
		report.MatchedLedgerTotal = report.MatchedLedgerTotal.Add(l.Amount)
	}

	report.Difference = report.MatchedStatementTotal.Sub(report.MatchedLedgerTotal)
	report.Balanced = report.Difference.Abs().LessThanOrEqual(BalanceTolerance)

	oneToMany, err := cs.validation.DetectOneToMany(ctx, period)
	if err != nil {
		return nil, err
	}
	report.OneToMany = oneToMany.Cases
	if len(report.OneToMany) > 0 {
		report.Balanced = false
	}

	return report, nil
}

// currencyStats groups the universe by currency code and counts the ledger movements
// that ended up behind an active match
func (cs *ConciliacionService) currencyStats(ctx context.Context, period models.Period, universe []*models.LedgerMovement, stats *PeriodStats) error {
	matches, err := cs.repo.ListMatchesByPeriod(ctx, period)
	if err != nil {
		return err
	}
	matched := make(map[int64]bool)
	for _, id := range activeLedgerIDs(matches) {
		matched[id] = true
	}

	cs.resetCurrencyCache()
	for _, l := range universe {
		code, err := cs.currencyCode(ctx, l.CurrencyID)
		if err != nil {
			return err
		}
		cur, ok := stats.ByCurrency[code]
		if !ok {
			cur = &CurrencyStats{Amount: decimal.Zero}
			stats.ByCurrency[code] = cur
		}
		cur.Movements++
		cur.Amount = cur.Amount.Add(l.Amount)
		if matched[l.ID] {
			cur.Matched++
		}
	}
	return nil
}

func (cs *ConciliacionService) resetCurrencyCache() {
	cs.currencyMu.Lock()
	defer cs.currencyMu.Unlock()
	cs.currencyCodes = make(map[int64]string)
}

// currencyCode resolves a currency id through the run cache. Unknown ids get a
// placeholder code instead of failing the run.
func (cs *ConciliacionService) currencyCode(ctx context.Context, id int64) (string, error) {
	cs.currencyMu.Lock()
	defer cs.currencyMu.Unlock()

	if code, ok := cs.currencyCodes[id]; ok {
		return code, nil
	}

	code := fmt.Sprintf("#%d", id)
	currency, err := cs.repo.GetCurrency(ctx, id)
	switch {
	case err == nil:
		code = currency.Code
	case !errors.IsNotFound(err):
		return "", err
	}
	cs.currencyCodes[id] = code
	return code, nil
}
