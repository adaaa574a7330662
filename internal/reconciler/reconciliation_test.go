package reconciler

import (
	"testing"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPeriod_MatchesAndPersists(t *testing.T) {
	f := newFixture(t, true)
	sc := f.januaryScenario()

	result, err := f.conciliacion().RunPeriod(f.ctx, january)
	require.NoError(t, err)

	require.Len(t, result.Matches, 3)
	assert.NotEmpty(t, result.Stats.RunID)
	assert.Equal(t, 3, result.Stats.Processed)
	assert.Equal(t, 3, result.Stats.UniverseSize)
	assert.Equal(t, 2, result.Stats.ByEstado[models.EstadoOK])
	assert.Equal(t, 1, result.Stats.ByEstado[models.EstadoSinMatch])

	m1 := f.match(sc.s1.ID)
	require.NotNil(t, m1)
	assert.Equal(t, models.EstadoOK, m1.Estado)
	assert.Equal(t, sc.l1.ID, *m1.LedgerID)
	assert.False(t, m1.Confirmado)

	m3 := f.match(sc.s3.ID)
	require.NotNil(t, m3)
	assert.Equal(t, models.EstadoSinMatch, m3.Estado)
	assert.Nil(t, m3.LedgerID)

	require.NotNil(t, result.Totals)
	assert.True(t, result.Totals.FromMatches)
	assert.Equal(t, 2, result.Totals.MovementCount)
	assert.True(t, result.Totals.Net.Equal(decimal.NewFromInt(50000)))

	in := result.Integrity
	assert.True(t, in.StatementTotal.Equal(decimal.NewFromInt(57000)))
	assert.True(t, in.MatchedStatementTotal.Equal(decimal.NewFromInt(50000)))
	assert.True(t, in.MatchedLedgerTotal.Equal(decimal.NewFromInt(50000)))
	assert.True(t, in.Balanced)
	assert.Equal(t, 2, in.ActiveMatches)
	assert.Equal(t, 1, in.OpenStatements)
	assert.Empty(t, in.OneToMany)

	cop := result.Stats.ByCurrency["COP"]
	require.NotNil(t, cop)
	assert.Equal(t, 3, cop.Movements)
	assert.Equal(t, 2, cop.Matched)
}

func TestRunPeriod_TwiceProducesNoDuplicates(t *testing.T) {
	f := newFixture(t, true)
	sc := f.januaryScenario()
	svc := f.conciliacion()

	_, err := svc.RunPeriod(f.ctx, january)
	require.NoError(t, err)
	first := f.match(sc.s3.ID)

	second, err := svc.RunPeriod(f.ctx, january)
	require.NoError(t, err)

	assert.Equal(t, 1, second.Stats.Processed, "only the unconfirmed SIN_MATCH is reprocessed")
	assert.Equal(t, 2, second.Stats.Kept)
	assert.Equal(t, 2, second.Stats.Held)
	assert.Zero(t, second.Stats.ByEstado[models.EstadoOK])

	all, err := f.repo.ListMatchesByPeriod(f.ctx, january)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	for _, l := range []*models.LedgerMovement{sc.l1, sc.l2} {
		links, err := f.repo.ListMatchesByLedger(f.ctx, l.ID)
		require.NoError(t, err)
		assert.Len(t, links, 1, "ledger %d", l.ID)
	}

	again := f.match(sc.s3.ID)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, again.CreatedAt.Equal(first.CreatedAt))
}

func TestRunPeriod_ConfirmedSinMatchIsNotRematched(t *testing.T) {
	f := newFixture(t, true)
	sc := f.januaryScenario()
	svc := f.conciliacion()

	_, err := svc.RunPeriod(f.ctx, january)
	require.NoError(t, err)

	_, err = f.lifecycle().Unlink(f.ctx, sc.s1.ID)
	require.NoError(t, err)

	result, err := svc.RunPeriod(f.ctx, january)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.Processed)

	m1 := f.match(sc.s1.ID)
	assert.Equal(t, models.EstadoSinMatch, m1.Estado)
	assert.True(t, m1.Confirmado)
	assert.Nil(t, m1.LedgerID)
}

func TestRunPeriod_RequiresActiveConfig(t *testing.T) {
	f := newFixture(t, false)
	f.januaryScenario()

	_, err := f.conciliacion().RunPeriod(f.ctx, january)
	requireCode(t, err, errors.CategoryConfiguration, errors.CodeMissingConfig)

	matches, err := f.repo.ListMatchesByPeriod(f.ctx, january)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRunPeriod_InvalidPeriod(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.conciliacion().RunPeriod(f.ctx, models.Period{AccountID: 1, Year: 2025, Month: 13})
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestSystemUniverse_IncludesCrossPeriodLinks(t *testing.T) {
	f := newFixture(t, true)

	lines := f.statements(january, line(day(2025, 1, 2), 300, "CHEQUE 123"))
	december := f.ledger(day(2024, 12, 28), 300, "CHEQUE 123")
	inside := f.ledger(day(2025, 1, 31), 10, "GMF")
	f.ledger(day(2025, 2, 1), 10, "FEBRERO")

	svc := f.conciliacion()
	universe, err := svc.SystemUniverse(f.ctx, january)
	require.NoError(t, err)
	require.Len(t, universe, 1)
	assert.Equal(t, inside.ID, universe[0].ID)

	_, err = f.lifecycle().ManualLink(f.ctx, lines[0].ID, december.ID, "ana", "cleared in January")
	require.NoError(t, err)

	universe, err = svc.SystemUniverse(f.ctx, january)
	require.NoError(t, err)
	require.Len(t, universe, 2)
	assert.Equal(t, inside.ID, universe[0].ID)
	assert.Equal(t, december.ID, universe[1].ID)
}

func TestResetPeriod_FallsBackToCalendarTotals(t *testing.T) {
	f := newFixture(t, true)
	f.januaryScenario()
	svc := f.conciliacion()

	_, err := svc.RunPeriod(f.ctx, january)
	require.NoError(t, err)

	reset, err := svc.ResetPeriod(f.ctx, january)
	require.NoError(t, err)
	assert.Equal(t, 3, reset.Deleted)
	assert.False(t, reset.Totals.FromMatches)
	assert.Equal(t, 3, reset.Totals.MovementCount)
	assert.True(t, reset.Totals.Inflows.Equal(decimal.NewFromInt(100999)))
	assert.True(t, reset.Totals.Outflows.Equal(decimal.NewFromInt(-50000)))

	stored, err := f.repo.FindPeriodTotals(f.ctx, january)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Net.Equal(decimal.NewFromInt(50999)))

	matches, err := f.repo.ListMatchesByPeriod(f.ctx, january)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestIntegrity_UnbalancedWhenAmountsDiffer(t *testing.T) {
	f := newFixture(t, true)
	lines := f.statements(january, line(day(2025, 1, 5), 1000, "PAGO"))
	l := f.ledger(day(2025, 1, 5), 900, "PAGO")

	_, err := f.lifecycle().ManualLink(f.ctx, lines[0].ID, l.ID, "ana", "")
	require.NoError(t, err)

	report, err := f.conciliacion().Integrity(f.ctx, january)
	require.NoError(t, err)
	assert.False(t, report.Balanced)
	assert.True(t, report.Difference.Equal(decimal.NewFromInt(100)))
}

func TestCurrencyCode_UnknownCurrencyGetsPlaceholder(t *testing.T) {
	f := newFixture(t, true)
	svc := f.conciliacion()

	code, err := svc.currencyCode(f.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "COP", code)

	code, err = svc.currencyCode(f.ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, "#99", code)
	assert.Len(t, svc.currencyCodes, 2)
}
