package classifier

import (
	"context"
	"sort"
	"strings"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/store"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

const (
	// SuggestThreshold is the total a winning candidate needs to be suggested
	SuggestThreshold = 50.0
	// ContextSize is how many ranked candidates are returned for display
	ContextSize = 5

	weightThirdPartyHistory = 5
	weightCatalogHistory    = 10
	weightKeyword           = 1
	weightSweep             = 1
	maxBonus                = 10.0
	prefixWords             = 3
)

// Suggestion sources
const (
	SourceCatalogReference  = "reference catalog"
	SourceCatalogPrefix     = "description catalog"
	SourceHistory           = "similar movement"
	SourceConsistentHistory = "consistent history"
)

// Candidate is a classified movement considered as a classification source
type Candidate struct {
	Movement   *models.LedgerMovement `json:"movement"`
	Coverage   int                    `json:"coverage"`
	Signals    []string               `json:"signals"`
	Similarity float64                `json:"similarity"`
	ValueScore float64                `json:"value_score"`
	Bonus      float64                `json:"bonus"`
	Total      float64                `json:"total"`
}

// Suggestion is the proposed classification. CostCenterID and ConceptID are
// only set when the source movement's amount is close enough to trust them.
type Suggestion struct {
	ThirdPartyID *int64  `json:"third_party_id,omitempty"`
	CostCenterID *int64  `json:"cost_center_id,omitempty"`
	ConceptID    *int64  `json:"concept_id,omitempty"`
	Source       string  `json:"source"`
	BasedOn      int64   `json:"based_on,omitempty"`
	Score        float64 `json:"score,omitempty"`
}

// SuggestResult is what Suggest returns to the caller
type SuggestResult struct {
	MovementID int64       `json:"movement_id"`
	Suggestion *Suggestion `json:"suggestion,omitempty"`
	Context    []Candidate `json:"context"`
	// UnresolvedReference is set when a catalog-sized numeric reference is not
	// in the catalog, so the caller can offer to register it
	UnresolvedReference bool   `json:"unresolved_reference"`
	Reference           string `json:"reference,omitempty"`
}

// pool accumulates candidates keyed by movement id
type pool struct {
	exclude    int64
	candidates map[int64]*Candidate
	order      []int64
}

func newPool(exclude int64) *pool {
	return &pool{exclude: exclude, candidates: make(map[int64]*Candidate)}
}

func (p *pool) add(movements []*models.LedgerMovement, weight int, signal string) {
	for _, m := range movements {
		if m.ID == p.exclude {
			continue
		}
		c, ok := p.candidates[m.ID]
		if !ok {
			c = &Candidate{Movement: m}
			p.candidates[m.ID] = c
			p.order = append(p.order, m.ID)
		}
		c.Coverage += weight
		if len(c.Signals) == 0 || c.Signals[len(c.Signals)-1] != signal {
			c.Signals = append(c.Signals, signal)
		}
	}
}

// Suggest proposes a classification for a movement from its classified
// neighbours. Signals run in order and feed one pool:
//
//   - the movement's own third party history
//   - a catalog-sized numeric reference: a hit fixes the third party and pools
//     its history, a miss flags the reference as unresolved
//   - otherwise, with a shorter reference, the catalog is probed by the first
//     one to three words of the description
//   - keyword search over classified movements, skipped once a reference fixed
//     the third party
//   - recent history of sweep and investment accounts
func (cs *ClasificacionService) Suggest(ctx context.Context, movementID int64) (*SuggestResult, error) {
	m, err := cs.repo.GetLedger(ctx, movementID)
	if err != nil {
		return nil, err
	}

	op := logger.NewOperationLogger("suggest", cs.logger, logger.Fields{"movement_id": movementID})
	result := &SuggestResult{MovementID: m.ID}
	p := newPool(m.ID)

	var fixed *Suggestion

	if tp := m.EffectiveThirdParty(); tp != nil {
		history, err := cs.history(ctx, store.LedgerFilter{ThirdPartyID: tp, Limit: cs.config.HistoryLimit})
		if err != nil {
			return nil, cs.fail(op, err)
		}
		p.add(history, weightThirdPartyHistory, "third party history")
	}

	ref := strings.TrimSpace(m.Reference)
	switch {
	case isCatalogReference(ref):
		entry, err := cs.repo.FindReference(ctx, ref)
		if err != nil {
			return nil, cs.fail(op, err)
		}
		if entry == nil {
			result.UnresolvedReference = true
			result.Reference = ref
			break
		}
		fixed = &Suggestion{ThirdPartyID: models.IDPtr(entry.ThirdPartyID), Source: SourceCatalogReference}
		history, err := cs.history(ctx, store.LedgerFilter{ThirdPartyID: fixed.ThirdPartyID, Limit: cs.config.HistoryLimit})
		if err != nil {
			return nil, cs.fail(op, err)
		}
		p.add(history, weightCatalogHistory, SourceCatalogReference)

	case ref != "":
		for _, prefix := range prefixes(m.Description, prefixWords) {
			entry, err := cs.repo.FindReferenceByDescriptionPrefix(ctx, prefix)
			if err != nil {
				return nil, cs.fail(op, err)
			}
			if entry != nil {
				fixed = &Suggestion{ThirdPartyID: models.IDPtr(entry.ThirdPartyID), Source: SourceCatalogPrefix}
				op.Step("catalog prefix hit", logger.Fields{"prefix": prefix, "reference": entry.Reference})
				break
			}
		}
	}

	if fixed == nil {
		for _, word := range keywords(m.Description) {
			hits, err := cs.history(ctx, store.LedgerFilter{DescriptionContains: word, Limit: cs.config.KeywordLimit})
			if err != nil {
				return nil, cs.fail(op, err)
			}
			p.add(hits, weightKeyword, "keyword "+word)
		}
	}

	if cs.config.SweepHistoryLimit > 0 {
		account, err := cs.repo.GetAccount(ctx, m.AccountID)
		if err != nil && !errors.IsNotFound(err) {
			return nil, cs.fail(op, err)
		}
		if account != nil && cs.config.isSweepAccount(account.Type) {
			recent, err := cs.history(ctx, store.LedgerFilter{AccountID: m.AccountID, Limit: cs.config.SweepHistoryLimit})
			if err != nil {
				return nil, cs.fail(op, err)
			}
			p.add(recent, weightSweep, "sweep account history")
		}
	}

	ranked := cs.rank(m, p)
	if len(ranked) > ContextSize {
		result.Context = ranked[:ContextSize]
	} else {
		result.Context = ranked
	}
	result.Suggestion = decide(fixed, ranked, result.Context)

	fields := logger.Fields{
		"pool":       len(ranked),
		"unresolved": result.UnresolvedReference,
	}
	if result.Suggestion != nil {
		fields["source"] = result.Suggestion.Source
	}
	op.Success("Suggestion computed", fields)
	return result, nil
}

// history searches classified movements newest first
func (cs *ClasificacionService) history(ctx context.Context, f store.LedgerFilter) ([]*models.LedgerMovement, error) {
	f.OnlyClassified = true
	f.NewestFirst = true
	return cs.repo.SearchLedgers(ctx, f)
}

func (cs *ClasificacionService) fail(op *logger.OperationLogger, err error) error {
	op.Error(err, "Suggestion failed")
	return errors.WrapIfNeeded(err, errors.CategoryClassification, errors.CodeSuggestionFailed, "suggestion failed")
}

// rank scores every pooled candidate against m, best first. Ties keep pool order.
func (cs *ClasificacionService) rank(m *models.LedgerMovement, p *pool) []Candidate {
	ranked := make([]Candidate, 0, len(p.order))
	for _, id := range p.order {
		c := *p.candidates[id]
		c.Similarity = Similarity(m.Description, c.Movement.Description)
		c.ValueScore = ValueScore(m.Amount, c.Movement.Amount, cs.config.ValueBandPercent)
		c.Bonus = float64(c.Coverage) * 2
		if c.Bonus > maxBonus {
			c.Bonus = maxBonus
		}
		c.Total = c.Similarity*0.7 + c.ValueScore*0.3 + c.Bonus
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Total > ranked[j].Total
	})
	return ranked
}

// ValueScore is 100 for the same amount, 50 for the same sign within bandPercent
// of the query's absolute amount, and 0 otherwise
func ValueScore(query, candidate decimal.Decimal, bandPercent float64) float64 {
	if query.Equal(candidate) {
		return 100
	}
	if query.Sign() != candidate.Sign() {
		return 0
	}
	band := query.Abs().Mul(decimal.NewFromFloat(bandPercent)).Div(decimal.NewFromInt(100))
	if query.Sub(candidate).Abs().LessThanOrEqual(band) {
		return 50
	}
	return 0
}

// decide turns the ranking into a suggestion
func decide(fixed *Suggestion, ranked, context []Candidate) *Suggestion {
	var winner *Candidate
	if len(ranked) > 0 && ranked[0].Total >= SuggestThreshold {
		winner = &ranked[0]
	}

	if fixed != nil {
		if winner != nil && winner.ValueScore >= 50 && models.IDEqual(winner.Movement.EffectiveThirdParty(), fixed.ThirdPartyID) {
			copyDimensions(fixed, winner)
		}
		return fixed
	}

	if winner != nil {
		if tp := winner.Movement.EffectiveThirdParty(); tp != nil {
			s := &Suggestion{ThirdPartyID: models.IDPtr(*tp), Source: SourceHistory}
			if winner.ValueScore >= 50 {
				copyDimensions(s, winner)
			}
			s.BasedOn = winner.Movement.ID
			s.Score = winner.Total
			return s
		}
	}

	if tp := sharedThirdParty(context); tp != nil {
		return &Suggestion{ThirdPartyID: tp, Source: SourceConsistentHistory}
	}
	return nil
}

func copyDimensions(s *Suggestion, c *Candidate) {
	if split := c.Movement.PrimarySplit(); split != nil {
		s.CostCenterID = split.CostCenterID
		s.ConceptID = split.ConceptID
	}
	s.BasedOn = c.Movement.ID
	s.Score = c.Total
}

// sharedThirdParty returns the third party every candidate has, if there is one
func sharedThirdParty(candidates []Candidate) *int64 {
	if len(candidates) == 0 {
		return nil
	}
	first := candidates[0].Movement.EffectiveThirdParty()
	if first == nil {
		return nil
	}
	for _, c := range candidates[1:] {
		if !models.IDEqual(c.Movement.EffectiveThirdParty(), first) {
			return nil
		}
	}
	return models.IDPtr(*first)
}
