// Package matcher pairs bank statement lines with ledger movements.
//
// Each statement line is compared against a shrinking pool of ledger movements:
//  1. Candidate selection from a date-bucketed pool (±CandidateWindowDays)
//  2. Scoring by date, value and description similarity
//  3. Weighted total with the same-day same-amount floor
//  4. Classification into OK / PROBABLE / SIN_MATCH and pool removal
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	service := matcher.NewMatchingService(log)
//	matches, err := service.RunMatching(statements, ledgers, config, aliases)
package matcher

import (
	"fmt"
	"math"

	"bank-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// WeightSumTolerance is how far the three weights may drift from 1.00
const WeightSumTolerance = 0.01

// MatchingConfig holds the single active set of matching parameters.
// It is created once with defaults and edited in place; every edit is validated.
type MatchingConfig struct {
	ID int64 `json:"id,omitempty"`

	// ToleranciaValor is the absolute amount difference at which the value score reaches zero
	ToleranciaValor decimal.Decimal `json:"tolerancia_valor"`

	// SimilitudDescripcionMinima is the minimum best total a statement line needs to keep a candidate
	SimilitudDescripcionMinima float64 `json:"similitud_descripcion_minima"`

	PesoFecha       float64 `json:"peso_fecha"`
	PesoValor       float64 `json:"peso_valor"`
	PesoDescripcion float64 `json:"peso_descripcion"`

	ScoreMinimoExacto   float64 `json:"score_minimo_exacto"`
	ScoreMinimoProbable float64 `json:"score_minimo_probable"`
}

// ConfigPatch carries the fields to change on the active config; nil fields are left alone.
type ConfigPatch struct {
	ToleranciaValor            *decimal.Decimal `json:"tolerancia_valor,omitempty"`
	SimilitudDescripcionMinima *float64         `json:"similitud_descripcion_minima,omitempty"`
	PesoFecha                  *float64         `json:"peso_fecha,omitempty"`
	PesoValor                  *float64         `json:"peso_valor,omitempty"`
	PesoDescripcion            *float64         `json:"peso_descripcion,omitempty"`
	ScoreMinimoExacto          *float64         `json:"score_minimo_exacto,omitempty"`
	ScoreMinimoProbable        *float64         `json:"score_minimo_probable,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p ConfigPatch) IsEmpty() bool {
	return p.ToleranciaValor == nil && p.SimilitudDescripcionMinima == nil &&
		p.PesoFecha == nil && p.PesoValor == nil && p.PesoDescripcion == nil &&
		p.ScoreMinimoExacto == nil && p.ScoreMinimoProbable == nil
}

// DefaultMatchingConfig returns the configuration created on first use
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		ToleranciaValor:            decimal.NewFromInt(100),
		SimilitudDescripcionMinima: 0.30,
		PesoFecha:                  0.40,
		PesoValor:                  0.40,
		PesoDescripcion:            0.20,
		ScoreMinimoExacto:          0.95,
		ScoreMinimoProbable:        0.70,
	}
}

// NewMatchingConfig builds a config and validates it
func NewMatchingConfig(tolerancia decimal.Decimal, similitud, pesoFecha, pesoValor, pesoDescripcion, exacto, probable float64) (*MatchingConfig, error) {
	mc := &MatchingConfig{
		ToleranciaValor:            tolerancia,
		SimilitudDescripcionMinima: similitud,
		PesoFecha:                  pesoFecha,
		PesoValor:                  pesoValor,
		PesoDescripcion:            pesoDescripcion,
		ScoreMinimoExacto:          exacto,
		ScoreMinimoProbable:        probable,
	}
	if err := mc.Validate(); err != nil {
		return nil, err
	}
	return mc, nil
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.ToleranciaValor.IsNegative() {
		return errors.ValidationError(errors.CodeOutOfRange, "tolerancia_valor", mc.ToleranciaValor.String(), nil).
			WithSuggestion("tolerance cannot be negative")
	}

	unit := []struct {
		field string
		value float64
	}{
		{"similitud_descripcion_minima", mc.SimilitudDescripcionMinima},
		{"peso_fecha", mc.PesoFecha},
		{"peso_valor", mc.PesoValor},
		{"peso_descripcion", mc.PesoDescripcion},
		{"score_minimo_exacto", mc.ScoreMinimoExacto},
		{"score_minimo_probable", mc.ScoreMinimoProbable},
	}
	for _, u := range unit {
		if math.IsNaN(u.value) || u.value < 0 || u.value > 1 {
			return errors.ValidationError(errors.CodeOutOfRange, u.field, u.value, nil).
				WithSuggestion("use a value between 0 and 1")
		}
	}

	total := mc.PesoFecha + mc.PesoValor + mc.PesoDescripcion
	if math.Abs(total-1.0) > WeightSumTolerance+1e-9 {
		return errors.ValidationError(errors.CodeInvalidWeight, "pesos", fmt.Sprintf("%.4f", total), nil)
	}

	if mc.ScoreMinimoExacto < mc.ScoreMinimoProbable {
		return errors.ValidationError(errors.CodeOutOfRange, "score_minimo_exacto", mc.ScoreMinimoExacto, nil).
			WithSuggestion(fmt.Sprintf("score_minimo_exacto must be at least score_minimo_probable (%.2f)", mc.ScoreMinimoProbable))
	}

	return nil
}

// Update applies the patch in place after validating the result; on error the config is unchanged
func (mc *MatchingConfig) Update(patch ConfigPatch) error {
	next := mc.Clone()
	if patch.ToleranciaValor != nil {
		next.ToleranciaValor = *patch.ToleranciaValor
	}
	if patch.SimilitudDescripcionMinima != nil {
		next.SimilitudDescripcionMinima = *patch.SimilitudDescripcionMinima
	}
	if patch.PesoFecha != nil {
		next.PesoFecha = *patch.PesoFecha
	}
	if patch.PesoValor != nil {
		next.PesoValor = *patch.PesoValor
	}
	if patch.PesoDescripcion != nil {
		next.PesoDescripcion = *patch.PesoDescripcion
	}
	if patch.ScoreMinimoExacto != nil {
		next.ScoreMinimoExacto = *patch.ScoreMinimoExacto
	}
	if patch.ScoreMinimoProbable != nil {
		next.ScoreMinimoProbable = *patch.ScoreMinimoProbable
	}

	if err := next.Validate(); err != nil {
		return err
	}
	*mc = *next
	return nil
}

// WeightedScore combines the three partial scores into a total
func (mc *MatchingConfig) WeightedScore(dateScore, valueScore, descScore float64) float64 {
	return dateScore*mc.PesoFecha + valueScore*mc.PesoValor + descScore*mc.PesoDescripcion
}

// IsExact reports whether total reaches the exact threshold
func (mc *MatchingConfig) IsExact(total float64) bool {
	return total >= mc.ScoreMinimoExacto
}

// IsProbable reports whether total lies in [probable, exact)
func (mc *MatchingConfig) IsProbable(total float64) bool {
	return total >= mc.ScoreMinimoProbable && total < mc.ScoreMinimoExacto
}

// Clone creates a deep copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	c := *mc
	return &c
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{Tolerancia: %s, SimilitudMin: %.2f, Pesos: %.2f/%.2f/%.2f, Exacto: %.2f, Probable: %.2f}",
		mc.ToleranciaValor.String(), mc.SimilitudDescripcionMinima,
		mc.PesoFecha, mc.PesoValor, mc.PesoDescripcion,
		mc.ScoreMinimoExacto, mc.ScoreMinimoProbable)
}
