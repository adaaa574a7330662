package matcher

import (
	"math"
	"strings"
	"time"

	"bank-reconciliation-service/internal/models"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/shopspring/decimal"
)

// Fixed matching constants. They are not part of MatchingConfig.
const (
	// CandidateWindowDays is how many calendar days a ledger date may differ from the statement date
	CandidateWindowDays = 1

	// SameDayAmountFloor is the minimum total for pairs with perfect date and value scores
	SameDayAmountFloor = 0.85
)

// ForeignAmountEpsilon replaces a coarse tolerance (> 1.0) when foreign amounts are compared
var ForeignAmountEpsilon = decimal.NewFromFloat(0.01)

var coarseTolerance = decimal.NewFromInt(1)

// ScoreBreakdown holds the partial and total scores of one statement/ledger pair
type ScoreBreakdown struct {
	Fecha       float64
	Valor       float64
	Descripcion float64
	Total       float64
	Floored     bool
}

// AsScores converts the breakdown into the scores stored on a match
func (b ScoreBreakdown) AsScores() models.Scores {
	return models.Scores{Total: b.Total, Fecha: b.Fecha, Valor: b.Valor, Descripcion: b.Descripcion}
}

// ScorePair computes every score for one statement/ledger pair
func ScorePair(stmt *models.StatementMovement, ledger *models.LedgerMovement, config *MatchingConfig, aliases []models.MatchingAlias) ScoreBreakdown {
	b := ScoreBreakdown{
		Fecha:       DateScore(stmt.Date, ledger.Date),
		Valor:       ValueScore(stmt, ledger, config.ToleranciaValor),
		Descripcion: DescriptionScore(ApplyAliases(stmt.Description, stmt.AccountID, aliases), ledger.Description),
	}
	b.Total = config.WeightedScore(b.Fecha, b.Valor, b.Descripcion)

	// same day and same amount is at least probable whatever the wording
	if b.Fecha == 1.0 && b.Valor == 1.0 && b.Total < SameDayAmountFloor {
		b.Total = SameDayAmountFloor
		b.Floored = true
	}
	return b
}

// DateScore is 1.0 when both dates share the calendar day, else 0.0
func DateScore(a, b time.Time) float64 {
	if models.DaysBetween(a, b) == 0 {
		return 1.0
	}
	return 0.0
}

// ValueScore compares amounts with linear decay down to zero at the tolerance.
// Foreign amounts are compared instead when both sides carry one.
func ValueScore(stmt *models.StatementMovement, ledger *models.LedgerMovement, tolerance decimal.Decimal) float64 {
	a, b := stmt.Amount, ledger.Amount
	if stmt.ForeignAmount != nil && ledger.ForeignAmount != nil {
		a, b = *stmt.ForeignAmount, *ledger.ForeignAmount
		if tolerance.GreaterThan(coarseTolerance) {
			tolerance = ForeignAmountEpsilon
		}
	}
	return LinearValueScore(a.Sub(b).Abs(), tolerance)
}

// LinearValueScore maps an absolute difference to [0,1]
func LinearValueScore(diff, tolerance decimal.Decimal) float64 {
	if diff.IsZero() {
		return 1.0
	}
	if !tolerance.IsPositive() || diff.GreaterThan(tolerance) {
		return 0.0
	}
	score, _ := decimal.NewFromInt(1).Sub(diff.Div(tolerance)).Float64()
	return score
}

// ApplyAliases rewrites the statement description with every alias of the account whose
// pattern appears in it. The result is uppercased and trimmed.
func ApplyAliases(description string, accountID int64, aliases []models.MatchingAlias) string {
	text := models.NormalizeText(description)
	for _, alias := range aliases {
		if alias.AccountID != accountID {
			continue
		}
		patron := models.NormalizeText(alias.Patron)
		if patron == "" || !strings.Contains(text, patron) {
			continue
		}
		text = strings.ReplaceAll(text, patron, models.NormalizeText(alias.Reemplazo))
	}
	return strings.TrimSpace(text)
}

// DescriptionScore is the sequence similarity of both normalized texts rounded to 2 decimals
func DescriptionScore(statementText, ledgerText string) float64 {
	return round2(SequenceRatio(models.NormalizeText(statementText), models.NormalizeText(ledgerText)))
}

// SequenceRatio returns the character-level similarity ratio of a and b in [0,1]
func SequenceRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
