package reconciler

import (
	"context"
	"testing"
	"time"

	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/store/memory"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var january = models.Period{AccountID: 1, Year: 2025, Month: 1}

func day(year, month, d int) time.Time {
	return time.Date(year, time.Month(month), d, 0, 0, 0, 0, time.UTC)
}

// fixture is a memory store seeded with one account in COP
type fixture struct {
	t    *testing.T
	ctx  context.Context
	repo *memory.Store
}

func newFixture(t *testing.T, withConfig bool) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), repo: memory.New()}

	require.NoError(t, f.repo.SaveCurrency(f.ctx, &models.Currency{ID: 1, Code: "COP"}))
	require.NoError(t, f.repo.SaveAccount(f.ctx, &models.Account{ID: 1, Name: "Corriente", Type: "corriente", CurrencyID: 1}))
	if withConfig {
		require.NoError(t, f.repo.SaveConfig(f.ctx, matcher.DefaultMatchingConfig()))
	}
	return f
}

func (f *fixture) statements(period models.Period, lines ...*models.StatementMovement) []*models.StatementMovement {
	f.t.Helper()
	require.NoError(f.t, f.repo.ReplaceStatements(f.ctx, period, lines))
	return lines
}

func (f *fixture) ledger(date time.Time, amount int64, desc string) *models.LedgerMovement {
	f.t.Helper()
	m := &models.LedgerMovement{AccountID: 1, Date: date, Description: desc, Amount: decimal.NewFromInt(amount), CurrencyID: 1}
	require.NoError(f.t, f.repo.SaveLedger(f.ctx, m))
	return m
}

func (f *fixture) match(statementID int64) *models.Match {
	f.t.Helper()
	m, err := f.repo.FindMatchByStatement(f.ctx, statementID)
	require.NoError(f.t, err)
	return m
}

func line(date time.Time, amount int64, desc string) *models.StatementMovement {
	return &models.StatementMovement{Date: date, Description: desc, Amount: decimal.NewFromInt(amount)}
}

// januaryScenario seeds the period used by most tests:
//
//	s1 RETIRO TRASLA        -> l1 via alias, OK
//	s2 PAGO PROVEEDOR ACME  -> l2, OK
//	s3 CONSIGNACION         -> no candidate within a day, SIN_MATCH
//	l3 is dated outside every window
type januaryScenario struct {
	s1, s2, s3 *models.StatementMovement
	l1, l2, l3 *models.LedgerMovement
}

func (f *fixture) januaryScenario() *januaryScenario {
	f.t.Helper()
	require.NoError(f.t, f.repo.SaveAlias(f.ctx, &models.MatchingAlias{AccountID: 1, Patron: "RETIRO", Reemplazo: "TRASLADO HACIA CUENTA"}))

	lines := f.statements(january,
		line(day(2025, 1, 10), 100000, "RETIRO TRASLA"),
		line(day(2025, 1, 15), -50000, "PAGO PROVEEDOR ACME"),
		line(day(2025, 1, 20), 7000, "CONSIGNACION"),
	)
	return &januaryScenario{
		s1: lines[0], s2: lines[1], s3: lines[2],
		l1: f.ledger(day(2025, 1, 10), 100000, "TRASLADO HACIA CUENTA"),
		l2: f.ledger(day(2025, 1, 15), -50000, "PAGO PROVEEDOR ACME SAS"),
		l3: f.ledger(day(2025, 1, 25), 999, "OTRO"),
	}
}

func (f *fixture) conciliacion() *ConciliacionService {
	return NewConciliacionService(f.repo, logger.Discard())
}

func (f *fixture) lifecycle() *LifecycleService {
	return NewLifecycleService(f.repo, logger.Discard())
}

func requireCode(t *testing.T, err error, category errors.ErrorCategory, code errors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	rerr, ok := errors.AsReconcilerError(err)
	require.True(t, ok, "expected a ReconcilerError, got %T: %v", err, err)
	require.Equal(t, category, rerr.Category)
	require.Equal(t, code, rerr.Code)
}
