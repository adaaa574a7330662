package parsers

import (
	"fmt"
	"strings"

	"bank-reconciliation-service/internal/models"
)

// PreprocessingConfig controls the clean-up applied to parsed ledger rows
type PreprocessingConfig struct {
	// DecimalPlaces rounds amounts; -1 leaves them untouched
	DecimalPlaces    int
	UppercaseText    bool
	RemoveDuplicates bool
}

// DefaultPreprocessingConfig rounds to cents and drops repeated ledger rows
func DefaultPreprocessingConfig() *PreprocessingConfig {
	return &PreprocessingConfig{
		DecimalPlaces:    2,
		RemoveDuplicates: true,
	}
}

// Preprocessor normalizes parsed movements before they are stored
type Preprocessor struct {
	config *PreprocessingConfig
}

func NewPreprocessor(config *PreprocessingConfig) *Preprocessor {
	if config == nil {
		config = DefaultPreprocessingConfig()
	}
	return &Preprocessor{config: config}
}

// Statements normalizes statement lines in place. Repeated bank lines are
// legitimate (two identical fees on one day) and are never removed.
func (p *Preprocessor) Statements(lines []*models.StatementMovement) []*models.StatementMovement {
	for _, s := range lines {
		s.Description = p.text(s.Description)
		if p.config.DecimalPlaces >= 0 {
			s.Amount = s.Amount.Round(int32(p.config.DecimalPlaces))
		}
	}
	return lines
}

// Ledger normalizes ledger movements and, when configured, drops rows that
// repeat an earlier row's date, amount and description. It returns the kept
// movements and how many were dropped.
func (p *Preprocessor) Ledger(movements []*models.LedgerMovement) ([]*models.LedgerMovement, int) {
	seen := make(map[string]bool, len(movements))
	kept := movements[:0]
	dropped := 0

	for _, m := range movements {
		m.Description = p.text(m.Description)
		if p.config.DecimalPlaces >= 0 {
			m.Amount = m.Amount.Round(int32(p.config.DecimalPlaces))
			for i := range m.Splits {
				m.Splits[i].Amount = m.Splits[i].Amount.Round(int32(p.config.DecimalPlaces))
			}
		}

		if p.config.RemoveDuplicates {
			key := ledgerKey(m)
			if seen[key] {
				dropped++
				continue
			}
			seen[key] = true
		}
		kept = append(kept, m)
	}
	return kept, dropped
}

func (p *Preprocessor) text(s string) string {
	s = normalizeSpaces(s)
	if p.config.UppercaseText {
		s = strings.ToUpper(s)
	}
	return s
}

func ledgerKey(m *models.LedgerMovement) string {
	return fmt.Sprintf("%s|%s|%s", m.Date.Format("2006-01-02"), m.Amount.String(), models.NormalizeText(m.Description))
}

// normalizeSpaces trims and collapses runs of whitespace to one space
func normalizeSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
