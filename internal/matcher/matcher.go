package matcher

import (
	"fmt"
	"time"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

const flooredReason = "Same-day same-amount floor applied"

// MatchingService pairs statement lines with ledger movements
type MatchingService struct {
	logger logger.Logger
	now    func() time.Time
}

// MatchingSummary counts the matches produced by one run
type MatchingSummary struct {
	TotalStatements int                        `json:"total_statements"`
	ByEstado        map[models.MatchEstado]int `json:"by_estado"`
	MatchedLedgers  int                        `json:"matched_ledgers"`
	Floored         int                        `json:"floored"`
	AverageScore    float64                    `json:"average_score"`
}

// NewMatchingService creates a new matching service
func NewMatchingService(log logger.Logger) *MatchingService {
	return &MatchingService{
		logger: logger.OrGlobal(log).WithComponent("matcher"),
		now:    time.Now,
	}
}

// RunMatching produces one match per statement line. Ledger movements chosen as OK or
// PROBABLE leave the pool so no ledger movement backs two matches of the same run.
// The config must be present and valid.
func (ms *MatchingService) RunMatching(
	statements []*models.StatementMovement,
	ledgers []*models.LedgerMovement,
	config *MatchingConfig,
	aliases []models.MatchingAlias,
) ([]*models.Match, error) {
	if config == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "matching_config", nil, nil)
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching_config", config.String(), err)
	}

	pool := NewLedgerPool(ledgers)
	now := ms.now()
	matches := make([]*models.Match, 0, len(statements))

	stats := pool.GetStats()
	ms.logger.WithFields(logger.Fields{
		"statements":  len(statements),
		"ledgers":     stats.AvailableItems,
		"ledger_days": stats.UniqueDateEntries,
		"aliases":     len(aliases),
	}).Debug("Starting matching run")

	for _, stmt := range statements {
		if stmt == nil {
			continue
		}
		match := ms.matchStatement(stmt, pool, config, aliases)
		match.CreatedAt = now
		match.UpdatedAt = now
		matches = append(matches, match)
	}

	summary := Summarize(matches)
	ms.logger.WithFields(logger.Fields{
		"statements": summary.TotalStatements,
		"ok":         summary.ByEstado[models.EstadoOK],
		"probable":   summary.ByEstado[models.EstadoProbable],
		"sin_match":  summary.ByEstado[models.EstadoSinMatch],
		"remaining":  pool.Size(),
	}).Info("Matching run completed")

	return matches, nil
}

func (ms *MatchingService) matchStatement(stmt *models.StatementMovement, pool *LedgerPool, config *MatchingConfig, aliases []models.MatchingAlias) *models.Match {
	candidates := pool.Candidates(stmt.Date, CandidateWindowDays)
	if len(candidates) == 0 {
		return sinMatch(stmt, fmt.Sprintf("No ledger movement within %d day(s)", CandidateWindowDays))
	}

	var best *models.LedgerMovement
	var bestScore ScoreBreakdown
	for _, candidate := range candidates {
		score := ScorePair(stmt, candidate, config, aliases)
		if best == nil || score.Total > bestScore.Total {
			best = candidate
			bestScore = score
		}
	}

	if bestScore.Total < config.SimilitudDescripcionMinima {
		return sinMatch(stmt, fmt.Sprintf("Best score %.2f below minimum %.2f", bestScore.Total, config.SimilitudDescripcionMinima))
	}

	match := &models.Match{
		StatementID: stmt.ID,
		Scores:      bestScore.AsScores(),
		CreatedBy:   "system",
		Reasons:     generateMatchReasons(bestScore),
	}

	switch {
	case config.IsExact(bestScore.Total):
		match.Estado = models.EstadoOK
	case config.IsProbable(bestScore.Total):
		match.Estado = models.EstadoProbable
	default:
		// scores stay on the match for audit
		match.Estado = models.EstadoSinMatch
		match.Reasons = append(match.Reasons, fmt.Sprintf("Best candidate %d below probable threshold", best.ID))
		ms.logger.WithFields(logger.Fields{
			"statement_id": stmt.ID,
			"ledger_id":    best.ID,
			"score":        bestScore.Total,
		}).Debug("Best candidate below probable threshold")
		return match
	}

	ledgerID := best.ID
	match.LedgerID = &ledgerID
	pool.Remove(best.ID)
	return match
}

func sinMatch(stmt *models.StatementMovement, reason string) *models.Match {
	return &models.Match{
		StatementID: stmt.ID,
		Estado:      models.EstadoSinMatch,
		CreatedBy:   "system",
		Reasons:     []string{reason},
	}
}

// generateMatchReasons generates human-readable reasons for the match
func generateMatchReasons(b ScoreBreakdown) []string {
	var reasons []string

	if b.Fecha == 1.0 {
		reasons = append(reasons, "Same date")
	} else {
		reasons = append(reasons, "Date within window")
	}

	switch {
	case b.Valor == 1.0:
		reasons = append(reasons, "Exact amount match")
	case b.Valor > 0:
		reasons = append(reasons, "Amount within tolerance")
	default:
		reasons = append(reasons, "Amount outside tolerance")
	}

	reasons = append(reasons, fmt.Sprintf("Description similarity %.2f", b.Descripcion))
	if b.Floored {
		reasons = append(reasons, flooredReason)
	}
	return reasons
}

// Summarize counts the matches of a run by state
func Summarize(matches []*models.Match) MatchingSummary {
	summary := MatchingSummary{
		TotalStatements: len(matches),
		ByEstado:        make(map[models.MatchEstado]int),
	}

	var scored int
	var totalScore float64
	for _, m := range matches {
		summary.ByEstado[m.Estado]++
		if m.IsActive() {
			summary.MatchedLedgers++
			totalScore += m.Scores.Total
			scored++
		}
		for _, r := range m.Reasons {
			if r == flooredReason {
				summary.Floored++
				break
			}
		}
	}
	if scored > 0 {
		summary.AverageScore = totalScore / float64(scored)
	}
	return summary
}
