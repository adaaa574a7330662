// Package storetest holds the behaviour every store.Repository backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/store"
	"bank-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty repository for one subtest
type Factory func(t *testing.T) store.Repository

// Day builds a UTC calendar date
func Day(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// Run exercises the repository contract against the backend produced by newRepo
func Run(t *testing.T, newRepo Factory) {
	t.Run("statements", func(t *testing.T) { testStatements(t, newRepo(t)) })
	t.Run("ledgers", func(t *testing.T) { testLedgers(t, newRepo(t)) })
	t.Run("search", func(t *testing.T) { testSearch(t, newRepo(t)) })
	t.Run("matches", func(t *testing.T) { testMatches(t, newRepo(t)) })
	t.Run("config", func(t *testing.T) { testConfig(t, newRepo(t)) })
	t.Run("aliases and rules", func(t *testing.T) { testAliasesAndRules(t, newRepo(t)) })
	t.Run("catalogs", func(t *testing.T) { testCatalogs(t, newRepo(t)) })
	t.Run("totals", func(t *testing.T) { testTotals(t, newRepo(t)) })
}

func statement(date time.Time, desc, amount string) *models.StatementMovement {
	return &models.StatementMovement{
		Date:        date,
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
	}
}

func testStatements(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	jan := models.Period{AccountID: 1, Year: 2025, Month: 1}

	first := []*models.StatementMovement{
		statement(Day(2025, 1, 12), "B", "200"),
		statement(Day(2025, 1, 10), "A", "100"),
	}
	require.NoError(t, repo.ReplaceStatements(ctx, jan, first))
	assert.NotZero(t, first[0].ID)
	assert.Equal(t, int64(1), first[0].AccountID)

	listed, err := repo.ListStatements(ctx, jan)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "A", listed[0].Description, "ordered by date")
	assert.True(t, listed[0].Amount.Equal(decimal.NewFromInt(100)))

	got, err := repo.GetStatement(ctx, first[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "B", got.Description)

	_, err = repo.GetStatement(ctx, 9999)
	assert.True(t, errors.IsNotFound(err))

	// a match on the old line disappears with the reload
	require.NoError(t, repo.SaveMatch(ctx, &models.Match{StatementID: first[1].ID, Estado: models.EstadoSinMatch}))

	foreign := decimal.RequireFromString("25.50")
	second := []*models.StatementMovement{statement(Day(2025, 1, 15), "C", "300")}
	second[0].ForeignAmount = &foreign
	require.NoError(t, repo.ReplaceStatements(ctx, jan, second))

	listed, err = repo.ListStatements(ctx, jan)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.NotNil(t, listed[0].ForeignAmount)
	assert.True(t, listed[0].ForeignAmount.Equal(foreign))

	matches, err := repo.ListMatchesByPeriod(ctx, jan)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func testLedgers(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	m := &models.LedgerMovement{
		AccountID:   1,
		Date:        Day(2025, 1, 10),
		Description: "Pago proveedor",
		Reference:   "123456789",
		Amount:      decimal.NewFromInt(-500),
		CurrencyID:  1,
		Splits: []models.DetailSplit{
			{Amount: decimal.NewFromInt(-300), ThirdPartyID: models.IDPtr(7)},
			{Amount: decimal.NewFromInt(-200), ConceptID: models.IDPtr(3)},
		},
	}
	require.NoError(t, repo.SaveLedger(ctx, m))
	require.NotZero(t, m.ID)

	got, err := repo.GetLedger(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, got.Splits, 2)
	assert.True(t, got.Splits[0].Amount.Equal(decimal.NewFromInt(-300)))
	assert.Equal(t, int64(7), *got.Splits[0].ThirdPartyID)
	assert.Nil(t, got.Splits[1].ThirdPartyID)
	assert.Equal(t, m.ID, got.Splits[1].MovementID)

	// splits are replaced on save
	got.Splits = []models.DetailSplit{{Amount: decimal.NewFromInt(-500), ThirdPartyID: models.IDPtr(9)}}
	got.ThirdPartyID = models.IDPtr(9)
	require.NoError(t, repo.SaveLedger(ctx, got))
	again, err := repo.GetLedger(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, again.Splits, 1)
	assert.Equal(t, int64(9), *again.ThirdPartyID)

	bad := &models.LedgerMovement{
		AccountID: 1, Date: Day(2025, 1, 10), Amount: decimal.NewFromInt(100),
		Splits: []models.DetailSplit{{Amount: decimal.NewFromInt(90)}},
	}
	err = repo.SaveLedger(ctx, bad)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	exists, err := repo.LedgerExists(ctx, 1, Day(2025, 1, 10), decimal.RequireFromString("-500.00"), "PAGO PROVEEDOR")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.LedgerExists(ctx, 1, Day(2025, 1, 11), decimal.NewFromInt(-500), "PAGO PROVEEDOR")
	require.NoError(t, err)
	assert.False(t, exists)

	// accented text folds the same way on every backend
	nomina := &models.LedgerMovement{AccountID: 2, Date: Day(2025, 1, 15), Description: "Pago nómina enero", Amount: decimal.NewFromInt(-900)}
	require.NoError(t, repo.SaveLedger(ctx, nomina))
	exists, err = repo.LedgerExists(ctx, 2, Day(2025, 1, 15), decimal.NewFromInt(-900), " PAGO NÓMINA ENERO ")
	require.NoError(t, err)
	assert.True(t, exists)

	many, err := repo.GetLedgers(ctx, []int64{m.ID, 424242})
	require.NoError(t, err)
	assert.Len(t, many, 1)

	_, err = repo.GetLedger(ctx, 424242)
	assert.True(t, errors.IsNotFound(err))
}

func testSearch(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	save := func(account int64, date time.Time, desc, ref string, third *int64) *models.LedgerMovement {
		m := &models.LedgerMovement{AccountID: account, Date: date, Description: desc, Reference: ref, Amount: decimal.NewFromInt(10)}
		if third != nil {
			m.Splits = []models.DetailSplit{{
				Amount: decimal.NewFromInt(10), ThirdPartyID: third, CostCenterID: models.IDPtr(1), ConceptID: models.IDPtr(1),
			}}
			m.ThirdPartyID = third
		}
		require.NoError(t, repo.SaveLedger(ctx, m))
		return m
	}

	a := save(1, Day(2025, 1, 5), "PAGO TC MASTER", "", models.IDPtr(4))
	b := save(1, Day(2025, 1, 20), "TRANSFERENCIA 100%", "555", nil)
	c := save(1, Day(2025, 2, 1), "PAGO NOMINA", "", models.IDPtr(4))
	save(2, Day(2025, 1, 6), "PAGO TC MASTER", "", nil)
	d := save(3, Day(2025, 1, 7), "Pago nómina enero", "", nil)

	ids := func(ms []*models.LedgerMovement) []int64 {
		out := make([]int64, len(ms))
		for i, m := range ms {
			out[i] = m.ID
		}
		return out
	}

	found, err := repo.SearchLedgers(ctx, store.LedgerFilter{AccountID: 1, From: Day(2025, 1, 1), To: Day(2025, 2, 1)})
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID}, ids(found))

	found, err = repo.SearchLedgers(ctx, store.LedgerFilter{ThirdPartyID: models.IDPtr(4), NewestFirst: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{c.ID, a.ID}, ids(found))

	found, err = repo.SearchLedgers(ctx, store.LedgerFilter{AccountID: 1, DescriptionContains: "pago", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, ids(found))

	found, err = repo.SearchLedgers(ctx, store.LedgerFilter{DescriptionContains: "100%"})
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, ids(found))

	found, err = repo.SearchLedgers(ctx, store.LedgerFilter{AccountID: 1, OnlyPending: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, ids(found))

	found, err = repo.SearchLedgers(ctx, store.LedgerFilter{AccountID: 1, OnlyClassified: true, ExcludeIDs: []int64{a.ID}})
	require.NoError(t, err)
	assert.Equal(t, []int64{c.ID}, ids(found))

	found, err = repo.SearchLedgers(ctx, store.LedgerFilter{Reference: "555"})
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, ids(found))

	found, err = repo.SearchLedgers(ctx, store.LedgerFilter{DescriptionContains: "NÓMINA"})
	require.NoError(t, err)
	assert.Equal(t, []int64{d.ID}, ids(found))

	found, err = repo.SearchLedgers(ctx, store.LedgerFilter{DescriptionContains: "pago Nómina"})
	require.NoError(t, err)
	assert.Equal(t, []int64{d.ID}, ids(found))
}

func testMatches(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	jan := models.Period{AccountID: 1, Year: 2025, Month: 1}
	feb := models.Period{AccountID: 1, Year: 2025, Month: 2}

	janLines := []*models.StatementMovement{statement(Day(2025, 1, 3), "A", "1"), statement(Day(2025, 1, 4), "B", "2")}
	febLines := []*models.StatementMovement{statement(Day(2025, 2, 3), "C", "3")}
	require.NoError(t, repo.ReplaceStatements(ctx, jan, janLines))
	require.NoError(t, repo.ReplaceStatements(ctx, feb, febLines))

	ledger := &models.LedgerMovement{AccountID: 1, Date: Day(2025, 1, 3), Amount: decimal.NewFromInt(1)}
	require.NoError(t, repo.SaveLedger(ctx, ledger))

	m := &models.Match{
		StatementID: janLines[0].ID,
		LedgerID:    models.IDPtr(ledger.ID),
		Estado:      models.EstadoProbable,
		Scores:      models.Scores{Total: 0.8, Fecha: 1, Valor: 1, Descripcion: 0.5},
		CreatedBy:   "system",
		Reasons:     []string{"same day"},
	}
	require.NoError(t, repo.SaveMatch(ctx, m))
	require.NotZero(t, m.ID)
	firstID, createdAt := m.ID, m.CreatedAt

	got, err := repo.FindMatchByStatement(ctx, janLines[0].ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.EstadoProbable, got.Estado)
	assert.InDelta(t, 0.8, got.Scores.Total, 1e-9)
	assert.Equal(t, []string{"same day"}, got.Reasons)

	// saving again for the same statement overwrites in place
	upd := &models.Match{StatementID: janLines[0].ID, Estado: models.EstadoSinMatch, Confirmado: true}
	require.NoError(t, repo.SaveMatch(ctx, upd))
	assert.Equal(t, firstID, upd.ID)
	assert.True(t, upd.CreatedAt.Equal(createdAt))

	got, err = repo.GetMatch(ctx, firstID)
	require.NoError(t, err)
	assert.Nil(t, got.LedgerID)
	assert.True(t, got.Confirmado)

	none, err := repo.FindMatchByStatement(ctx, janLines[1].ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = repo.GetMatch(ctx, 98765)
	assert.True(t, errors.IsNotFound(err))

	// invalid state combinations and unknown statements are rejected
	err = repo.SaveMatch(ctx, &models.Match{StatementID: janLines[1].ID, Estado: models.EstadoOK})
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	err = repo.SaveMatch(ctx, &models.Match{StatementID: 98765, Estado: models.EstadoSinMatch})
	assert.True(t, errors.IsNotFound(err))

	// two statements on the same ledger are allowed at store level
	for _, st := range []*models.StatementMovement{janLines[1], febLines[0]} {
		require.NoError(t, repo.SaveMatch(ctx, &models.Match{
			StatementID: st.ID, LedgerID: models.IDPtr(ledger.ID), Estado: models.EstadoOK,
		}))
	}

	byLedger, err := repo.ListMatchesByLedger(ctx, ledger.ID)
	require.NoError(t, err)
	assert.Len(t, byLedger, 2)

	byPeriod, err := repo.ListMatchesByPeriod(ctx, jan)
	require.NoError(t, err)
	assert.Len(t, byPeriod, 2)

	byEstado, err := repo.ListMatchesByEstado(ctx, jan, models.EstadoOK)
	require.NoError(t, err)
	require.Len(t, byEstado, 1)
	assert.Equal(t, janLines[1].ID, byEstado[0].StatementID)

	n, err := repo.DeleteMatchesByPeriod(ctx, jan)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	remaining, err := repo.ListMatchesByLedger(ctx, ledger.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)

	n, err = repo.DeleteMatches(ctx, []int64{remaining[0].ID, 123456})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.DeleteMatches(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testConfig(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	none, err := repo.FindActiveConfig(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	config := matcher.DefaultMatchingConfig()
	require.NoError(t, repo.SaveConfig(ctx, config))
	assert.Equal(t, int64(1), config.ID)

	sim := 0.5
	require.NoError(t, config.Update(matcher.ConfigPatch{SimilitudDescripcionMinima: &sim}))
	require.NoError(t, repo.SaveConfig(ctx, config))

	got, err := repo.FindActiveConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 0.5, got.SimilitudDescripcionMinima, 1e-9)
	assert.True(t, got.ToleranciaValor.Equal(config.ToleranciaValor))

	invalid := config.Clone()
	invalid.PesoFecha = 0.9
	assert.Error(t, repo.SaveConfig(ctx, invalid))

	got, err = repo.FindActiveConfig(ctx)
	require.NoError(t, err)
	assert.InDelta(t, config.PesoFecha, got.PesoFecha, 1e-9)
}

func testAliasesAndRules(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	alias := &models.MatchingAlias{AccountID: 1, Patron: "RETIRO", Reemplazo: "TRASLADO HACIA CUENTA"}
	require.NoError(t, repo.SaveAlias(ctx, alias))
	require.NoError(t, repo.SaveAlias(ctx, &models.MatchingAlias{AccountID: 2, Patron: "X", Reemplazo: "Y"}))
	require.NotZero(t, alias.ID)

	alias.Reemplazo = "TRASLADO"
	require.NoError(t, repo.SaveAlias(ctx, alias))

	aliases, err := repo.ListAliases(ctx, 1)
	require.NoError(t, err)
	require.Len(t, aliases, 1)
	assert.Equal(t, "TRASLADO", aliases[0].Reemplazo)

	rule := &models.ClassificationRule{Patron: "NOMINA", Kind: models.MatchStartsWith, ConceptID: models.IDPtr(5)}
	require.NoError(t, repo.SaveRule(ctx, rule))
	scoped := &models.ClassificationRule{AccountID: models.IDPtr(1), Patron: "GMF", Kind: models.MatchContains, ThirdPartyID: models.IDPtr(2)}
	require.NoError(t, repo.SaveRule(ctx, scoped))

	rules, err := repo.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Nil(t, rules[0].AccountID)
	assert.Equal(t, models.MatchStartsWith, rules[0].Kind)
	assert.Equal(t, int64(5), *rules[0].ConceptID)
	assert.Equal(t, int64(1), *rules[1].AccountID)
}

func testCatalogs(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	tp := &models.ThirdParty{Name: "Banco Master", Document: "900123"}
	require.NoError(t, repo.SaveThirdParty(ctx, tp))
	got, err := repo.GetThirdParty(ctx, tp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Banco Master", got.Name)
	_, err = repo.GetThirdParty(ctx, 777)
	assert.True(t, errors.IsNotFound(err))

	require.NoError(t, repo.SaveReference(ctx, &models.ReferenceEntry{Reference: "900123456", ThirdPartyID: tp.ID, Description: "PAGO TC MASTER"}))
	require.NoError(t, repo.SaveReference(ctx, &models.ReferenceEntry{Reference: "100", ThirdPartyID: 3, Description: "PAGO SERVICIOS"}))

	ref, err := repo.FindReference(ctx, "900123456")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, tp.ID, ref.ThirdPartyID)

	ref, err = repo.FindReference(ctx, "000")
	require.NoError(t, err)
	assert.Nil(t, ref)

	ref, err = repo.FindReferenceByDescriptionPrefix(ctx, "pago tc")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "900123456", ref.Reference)

	ref, err = repo.FindReferenceByDescriptionPrefix(ctx, "PAGO")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "100", ref.Reference, "lowest reference wins")

	ref, err = repo.FindReferenceByDescriptionPrefix(ctx, "TC")
	require.NoError(t, err)
	assert.Nil(t, ref)

	require.NoError(t, repo.SaveReference(ctx, &models.ReferenceEntry{Reference: "200", ThirdPartyID: 3, Description: "Cuota administración"}))
	ref, err = repo.FindReferenceByDescriptionPrefix(ctx, "CUOTA ADMINISTRACIÓN")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "200", ref.Reference)

	account := &models.Account{Name: "Ahorros", Type: "ahorros", CurrencyID: 1}
	require.NoError(t, repo.SaveAccount(ctx, account))
	gotAccount, err := repo.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "ahorros", gotAccount.Type)

	currency := &models.Currency{Code: "USD"}
	require.NoError(t, repo.SaveCurrency(ctx, currency))
	gotCurrency, err := repo.GetCurrency(ctx, currency.ID)
	require.NoError(t, err)
	assert.Equal(t, "USD", gotCurrency.Code)
	_, err = repo.GetCurrency(ctx, 9090)
	assert.True(t, errors.IsNotFound(err))
}

func testTotals(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	period := models.Period{AccountID: 1, Year: 2025, Month: 3}

	none, err := repo.FindPeriodTotals(ctx, period)
	require.NoError(t, err)
	assert.Nil(t, none)

	totals := &models.PeriodTotals{
		AccountID: 1, Year: 2025, Month: 3,
		Inflows: decimal.NewFromInt(100), Outflows: decimal.NewFromInt(-40), Net: decimal.NewFromInt(60),
		MovementCount: 3,
	}
	require.NoError(t, repo.SavePeriodTotals(ctx, totals))
	totals.FromMatches = true
	totals.MovementCount = 2
	require.NoError(t, repo.SavePeriodTotals(ctx, totals))

	got, err := repo.FindPeriodTotals(ctx, period)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Net.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, 2, got.MovementCount)
	assert.True(t, got.FromMatches)
}
