package reconciler

import (
	"testing"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneToMany_DetectAndInvalidate(t *testing.T) {
	f := newFixture(t, true)
	sc := f.januaryScenario()

	february := models.Period{AccountID: 1, Year: 2025, Month: 2}
	feb := f.statements(february, line(day(2025, 2, 1), 100000, "RETIRO"))

	_, err := f.conciliacion().RunPeriod(f.ctx, january)
	require.NoError(t, err)

	// links written behind the matcher's back, as concurrent runs or imports would
	for _, st := range []*models.StatementMovement{sc.s3, feb[0]} {
		require.NoError(t, f.repo.SaveMatch(f.ctx, &models.Match{
			StatementID: st.ID,
			LedgerID:    models.IDPtr(sc.l1.ID),
			Estado:      models.EstadoProbable,
		}))
	}

	vs := NewMatchValidationService(f.repo, logger.Discard())

	report, err := vs.DetectOneToMany(f.ctx, january)
	require.NoError(t, err)
	require.Len(t, report.Cases, 1)
	assert.Equal(t, sc.l1.ID, report.Cases[0].LedgerID)
	assert.Len(t, report.Cases[0].Statements, 3, "fan-out includes the February line")

	result, err := vs.InvalidateOneToMany(f.ctx, january)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Deleted)
	assert.Len(t, result.Cases, 1)

	report, err = vs.DetectOneToMany(f.ctx, january)
	require.NoError(t, err)
	assert.Empty(t, report.Cases)

	// the link outside the period survives, and l2 is untouched
	kept := f.match(feb[0].ID)
	require.NotNil(t, kept)
	assert.Equal(t, sc.l1.ID, *kept.LedgerID)
	assert.NotNil(t, f.match(sc.s2.ID))

	again, err := vs.InvalidateOneToMany(f.ctx, january)
	require.NoError(t, err)
	assert.Zero(t, again.Deleted)
	assert.Empty(t, again.Cases)
}

func TestOneToMany_InactiveLinksAreIgnored(t *testing.T) {
	f := newFixture(t, true)
	sc := f.januaryScenario()
	ls := f.lifecycle()

	_, err := ls.ManualLink(f.ctx, sc.s1.ID, sc.l1.ID, "ana", "")
	require.NoError(t, err)
	_, err = ls.Unlink(f.ctx, sc.s1.ID)
	require.NoError(t, err)
	_, err = ls.ManualLink(f.ctx, sc.s2.ID, sc.l1.ID, "ana", "")
	require.NoError(t, err)

	report, err := NewMatchValidationService(f.repo, logger.Discard()).DetectOneToMany(f.ctx, january)
	require.NoError(t, err)
	assert.Empty(t, report.Cases)
}

func TestIntegrity_ReportsOneToMany(t *testing.T) {
	f := newFixture(t, true)
	sc := f.januaryScenario()

	for _, st := range []*models.StatementMovement{sc.s1, sc.s3} {
		require.NoError(t, f.repo.SaveMatch(f.ctx, &models.Match{
			StatementID: st.ID,
			LedgerID:    models.IDPtr(sc.l1.ID),
			Estado:      models.EstadoOK,
		}))
	}

	report, err := f.conciliacion().Integrity(f.ctx, january)
	require.NoError(t, err)
	assert.Len(t, report.OneToMany, 1)
	assert.False(t, report.Balanced)
}
