package classifier

import (
	"testing"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggest_RanksBySimilarityAndValue(t *testing.T) {
	f := newFixture(t)
	card := f.classified(1, "PAGO TC MASTER", "", -500000, 1, 10, 20)
	f.classified(1, "TRANSFERENCIA PESOS A JUAN", "", -200000, 2, 11, 21)
	q := f.pending(1, "PAGO SUC VIRT TC MASTER PESOS", "", -500000)

	res, err := f.svc.Suggest(f.ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, res.Context, 2)
	assert.Equal(t, card.ID, res.Context[0].Movement.ID)
	assert.Equal(t, 3, res.Context[0].Coverage)
	assert.Equal(t, float64(100), res.Context[0].ValueScore)
	assert.GreaterOrEqual(t, res.Context[0].Total, SuggestThreshold)
	assert.Greater(t, res.Context[0].Total, res.Context[1].Total)

	require.NotNil(t, res.Suggestion)
	s := res.Suggestion
	assert.Equal(t, SourceHistory, s.Source)
	assert.Equal(t, int64(1), *s.ThirdPartyID)
	assert.Equal(t, int64(10), *s.CostCenterID)
	assert.Equal(t, int64(20), *s.ConceptID)
	assert.Equal(t, card.ID, s.BasedOn)
	assert.False(t, res.UnresolvedReference)
}

func TestSuggest_UnresolvedReference(t *testing.T) {
	f := newFixture(t)
	q := f.pending(1, "CONSIGNACION XYZ", "123456789012", 100)

	res, err := f.svc.Suggest(f.ctx, q.ID)
	require.NoError(t, err)
	assert.True(t, res.UnresolvedReference)
	assert.Equal(t, "123456789012", res.Reference)
	assert.Nil(t, res.Suggestion)
	assert.Empty(t, res.Context)
}

func TestSuggest_CatalogReferenceFixesThirdParty(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.SaveReference(f.ctx, &models.ReferenceEntry{Reference: "900123456", ThirdPartyID: 9}))
	own := f.classified(1, "ABONO BANCO", "", 1000, 9, 1, 2)
	f.classified(1, "PAGO PSE", "", 1000, 3, 4, 5)
	q := f.pending(1, "PAGO PSE", "900123456", 1000)

	res, err := f.svc.Suggest(f.ctx, q.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Suggestion)
	assert.Equal(t, SourceCatalogReference, res.Suggestion.Source)
	assert.Equal(t, int64(9), *res.Suggestion.ThirdPartyID)
	assert.False(t, res.UnresolvedReference)

	require.Len(t, res.Context, 1, "keyword search is skipped once the catalog answers")
	assert.Equal(t, own.ID, res.Context[0].Movement.ID)
	assert.Equal(t, weightCatalogHistory, res.Context[0].Coverage)
}

func TestSuggest_DescriptionPrefixProbe(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.SaveReference(f.ctx, &models.ReferenceEntry{
		Reference: "900123456", ThirdPartyID: 9, Description: "Pago TC Master",
	}))
	f.classified(1, "PAGO TC VISA", "", 10, 3, 4, 5)
	q := f.pending(1, "PAGO TC VISA ORO", "77", 10)

	res, err := f.svc.Suggest(f.ctx, q.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Suggestion)
	assert.Equal(t, SourceCatalogPrefix, res.Suggestion.Source)
	assert.Equal(t, int64(9), *res.Suggestion.ThirdPartyID)
	assert.Nil(t, res.Suggestion.CostCenterID)
	assert.Empty(t, res.Context, "keyword search is skipped once the catalog answers")
}

func TestSuggest_ConsistentHistoryFallback(t *testing.T) {
	f := newFixture(t)
	f.classified(1, "ABC", "", 999, 5, 1, 1)
	f.classified(1, "ABC", "", 999, 5, 2, 2)
	q := f.pending(1, "ZZZ", "", 1)
	q.ThirdPartyID = id(5)
	require.NoError(t, f.repo.SaveLedger(f.ctx, q))

	res, err := f.svc.Suggest(f.ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, res.Context, 2)
	for _, c := range res.Context {
		assert.Less(t, c.Total, SuggestThreshold)
	}
	require.NotNil(t, res.Suggestion)
	assert.Equal(t, SourceConsistentHistory, res.Suggestion.Source)
	assert.Equal(t, int64(5), *res.Suggestion.ThirdPartyID)
	assert.Nil(t, res.Suggestion.ConceptID)
}

func TestSuggest_SweepAccountHistory(t *testing.T) {
	f := newFixture(t)
	sweep := f.classified(2, "TRASLADO FONDO", "", 100, 8, 1, 1)
	f.classified(1, "TRASLADO FONDO", "", 100, 6, 1, 1)
	q := f.pending(2, "RENDIMIENTOS", "", 7)

	res, err := f.svc.Suggest(f.ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, res.Context, 1)
	assert.Equal(t, sweep.ID, res.Context[0].Movement.ID)
	assert.Contains(t, res.Context[0].Signals, "sweep account history")
	require.NotNil(t, res.Suggestion)
	assert.Equal(t, int64(8), *res.Suggestion.ThirdPartyID)
}

func TestSuggest_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Suggest(f.ctx, 4040)
	assert.True(t, errors.IsNotFound(err))
}
