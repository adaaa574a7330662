// Package classifier assigns third party, cost center and concept to ledger
// movements.
//
// Classify runs a deterministic cascade (static rules, history by reference,
// reference catalog) and never guesses. Suggest is the interactive helper: it
// pools candidate movements from several signals and ranks them by text and
// value similarity, leaving the final decision to a person.
package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/store"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"

	"github.com/google/uuid"
)

// MinCatalogReferenceDigits is the length a numeric reference must exceed to be
// looked up in the reference catalog
const MinCatalogReferenceDigits = 8

// Reasons reported by Classify
const (
	ReasonRule       = "rule"
	ReasonHistory    = "history by reference"
	ReasonCatalog    = "catalog reference"
	ReasonNoMatch    = "no match"
	ReasonClassified = "already classified"
)

// Store is the slice of the repository the classifier reads and writes
type Store interface {
	store.LedgerStore
	store.RuleStore
	store.ReferenceCatalog
	store.AccountCatalog
}

// Config tunes the suggestion pipeline
type Config struct {
	// ValueBandPercent is the relative amount band that earns a partial value score
	ValueBandPercent float64 `json:"value_band_percent" mapstructure:"value_band_percent"`
	// KeywordLimit caps the movements fetched per keyword
	KeywordLimit int `json:"keyword_limit" mapstructure:"keyword_limit"`
	// HistoryLimit caps the third-party history pulled into the pool
	HistoryLimit int `json:"history_limit" mapstructure:"history_limit"`
	// SweepAccountTypes are account types whose recent history is always pooled
	SweepAccountTypes []string `json:"sweep_account_types" mapstructure:"sweep_account_types"`
	SweepHistoryLimit int      `json:"sweep_history_limit" mapstructure:"sweep_history_limit"`
}

// DefaultConfig returns the suggestion settings used when none are configured
func DefaultConfig() *Config {
	return &Config{
		ValueBandPercent:  10,
		KeywordLimit:      25,
		HistoryLimit:      20,
		SweepAccountTypes: []string{"barrido", "inversion"},
		SweepHistoryLimit: 30,
	}
}

// Validate checks the configuration values are usable
func (c *Config) Validate() error {
	if c.ValueBandPercent < 0 || c.ValueBandPercent > 100 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "classifier.value_band_percent", c.ValueBandPercent, nil)
	}
	if c.KeywordLimit <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "classifier.keyword_limit", c.KeywordLimit, nil)
	}
	if c.HistoryLimit <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "classifier.history_limit", c.HistoryLimit, nil)
	}
	if c.SweepHistoryLimit < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "classifier.sweep_history_limit", c.SweepHistoryLimit, nil)
	}
	return nil
}

func (c *Config) isSweepAccount(accountType string) bool {
	for _, t := range c.SweepAccountTypes {
		if strings.EqualFold(strings.TrimSpace(t), strings.TrimSpace(accountType)) {
			return true
		}
	}
	return false
}

// ClasificacionService classifies ledger movements and suggests classifications
type ClasificacionService struct {
	repo   Store
	config *Config
	logger logger.Logger
}

// NewClasificacionService creates a classifier over repo. A nil config uses DefaultConfig.
func NewClasificacionService(repo Store, config *Config, log logger.Logger) (*ClasificacionService, error) {
	if repo == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "store", nil, nil)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ClasificacionService{
		repo:   repo,
		config: config,
		logger: logger.OrGlobal(log).WithComponent("classifier"),
	}, nil
}

// Classify runs the cascade on m, mutating it on success. It does not save.
// The first strategy that applies wins:
//
//  1. static rules, account scoped before global
//  2. the newest classified movement sharing the exact reference, adopted wholesale
//  3. the reference catalog, for numeric references longer than eight digits (third party only)
//
// A movement nothing applies to returns (false, "no match", nil).
func (cs *ClasificacionService) Classify(ctx context.Context, m *models.LedgerMovement) (bool, string, error) {
	rules, err := cs.repo.ListRules(ctx)
	if err != nil {
		return false, "", err
	}
	if rule := firstMatchingRule(rules, m); rule != nil {
		applyRule(m, rule, false)
		return true, fmt.Sprintf("%s #%d", ReasonRule, rule.ID), nil
	}

	ref := strings.TrimSpace(m.Reference)
	if ref != "" {
		found, err := cs.repo.SearchLedgers(ctx, store.LedgerFilter{
			Reference:      ref,
			OnlyClassified: true,
			ExcludeIDs:     []int64{m.ID},
			NewestFirst:    true,
			Limit:          1,
		})
		if err != nil {
			return false, "", err
		}
		if len(found) > 0 {
			adoptClassification(m, found[0])
			return true, fmt.Sprintf("%s (movement %d)", ReasonHistory, found[0].ID), nil
		}
	}

	if isCatalogReference(ref) {
		entry, err := cs.repo.FindReference(ctx, ref)
		if err != nil {
			return false, "", err
		}
		if entry != nil {
			assignThirdParty(m, entry.ThirdPartyID)
			return true, ReasonCatalog, nil
		}
	}

	return false, ReasonNoMatch, nil
}

// ClassifyResult is the outcome of classifying one stored movement
type ClassifyResult struct {
	Movement   *models.LedgerMovement `json:"movement"`
	Classified bool                   `json:"classified"`
	Reason     string                 `json:"reason"`
}

// ClassifyMovement loads a movement, classifies it and saves it when the cascade applied
func (cs *ClasificacionService) ClassifyMovement(ctx context.Context, id int64) (*ClassifyResult, error) {
	m, err := cs.repo.GetLedger(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.IsPending() {
		return &ClassifyResult{Movement: m, Reason: ReasonClassified}, nil
	}

	ok, reason, err := cs.Classify(ctx, m)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryClassification, errors.CodeSuggestionFailed, "classification failed")
	}
	if ok {
		if err := cs.repo.SaveLedger(ctx, m); err != nil {
			return nil, err
		}
		cs.logger.WithFields(logger.Fields{"movement_id": m.ID, "reason": reason}).Info("Classified movement")
	}
	return &ClassifyResult{Movement: m, Classified: ok, Reason: reason}, nil
}

// BatchResult summarizes a batch classification run
type BatchResult struct {
	RunID      string         `json:"run_id"`
	Processed  int            `json:"processed"`
	Classified int            `json:"classified"`
	Failed     int            `json:"failed"`
	// Unchanged counts movements the cascade matched without changing them,
	// e.g. a catalog hit on a movement that already carries that third party
	Unchanged  int            `json:"unchanged"`
	ByReason   map[string]int `json:"by_reason"`
	Duration   time.Duration  `json:"duration"`
}

// AutoClassifyPending runs Classify over every pending movement and saves the
// ones it changed. A failure on one movement is logged and counted; the
// batch goes on.
func (cs *ClasificacionService) AutoClassifyPending(ctx context.Context) (*BatchResult, error) {
	start := time.Now()
	result := &BatchResult{RunID: uuid.New().String(), ByReason: make(map[string]int)}
	log := cs.logger.WithField("run_id", result.RunID)

	pending, err := cs.repo.SearchLedgers(ctx, store.LedgerFilter{OnlyPending: true})
	if err != nil {
		return nil, err
	}

	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "auto_classify",
		Total:     int64(len(pending)),
		Logger:    log,
	})

	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			tracker.CompleteWithError(err)
			return result, errors.ClassificationError(errors.CodeBatchFailed, "auto_classify", err)
		}
		result.Processed++

		before := m.Clone()
		ok, reason, err := cs.Classify(ctx, m)
		if err == nil && ok && sameClassification(before, m) {
			result.Unchanged++
			tracker.Increment()
			continue
		}
		if err == nil && ok {
			err = cs.repo.SaveLedger(ctx, m)
		}
		switch {
		case err != nil:
			result.Failed++
			log.WithError(err).WithField("movement_id", m.ID).Warn("Classification failed")
		case ok:
			result.Classified++
			result.ByReason[reasonKey(reason)]++
		}
		tracker.Increment()
	}

	result.Duration = time.Since(start)
	tracker.Complete(logger.Fields{
		"classified": result.Classified,
		"unchanged":  result.Unchanged,
		"failed":     result.Failed,
	})
	return result, nil
}

// sameClassification reports whether a and b carry the same third party and splits
func sameClassification(a, b *models.LedgerMovement) bool {
	if !models.IDEqual(a.ThirdPartyID, b.ThirdPartyID) || len(a.Splits) != len(b.Splits) {
		return false
	}
	for i := range a.Splits {
		x, y := a.Splits[i], b.Splits[i]
		if !x.Amount.Equal(y.Amount) || !models.IDEqual(x.ThirdPartyID, y.ThirdPartyID) ||
			!models.IDEqual(x.CostCenterID, y.CostCenterID) || !models.IDEqual(x.ConceptID, y.ConceptID) {
			return false
		}
	}
	return true
}

// reasonKey drops the rule or movement id from a reason
func reasonKey(reason string) string {
	for _, prefix := range []string{ReasonRule, ReasonHistory} {
		if strings.HasPrefix(reason, prefix) {
			return prefix
		}
	}
	return reason
}

// RuleBatch describes a bulk assignment
type RuleBatch struct {
	// AccountID limits the batch to one account; zero means every account
	AccountID    int64            `json:"account_id,omitempty"`
	Pattern      string           `json:"pattern"`
	Kind         models.MatchKind `json:"kind,omitempty"`
	ThirdPartyID *int64           `json:"third_party_id,omitempty"`
	CostCenterID *int64           `json:"cost_center_id,omitempty"`
	ConceptID    *int64           `json:"concept_id,omitempty"`
}

// ApplyRuleBatch assigns the batch's fields to every pending movement whose
// description matches the pattern and returns how many were updated. Given
// fields overwrite what the movement had.
func (cs *ClasificacionService) ApplyRuleBatch(ctx context.Context, batch RuleBatch) (int, error) {
	if strings.TrimSpace(batch.Pattern) == "" {
		return 0, errors.ValidationError(errors.CodeMissingField, "pattern", batch.Pattern, nil)
	}
	if batch.ThirdPartyID == nil && batch.CostCenterID == nil && batch.ConceptID == nil {
		return 0, errors.ValidationError(errors.CodeMissingField, "assignment", nil, nil).
			WithSuggestion("set at least one of third party, cost center or concept")
	}
	if batch.Kind == "" {
		batch.Kind = models.MatchContains
	}
	if !batch.Kind.IsValid() {
		return 0, errors.ValidationError(errors.CodeInvalidState, "kind", batch.Kind, nil)
	}

	rule := &models.ClassificationRule{
		Patron:       batch.Pattern,
		Kind:         batch.Kind,
		ThirdPartyID: batch.ThirdPartyID,
		CostCenterID: batch.CostCenterID,
		ConceptID:    batch.ConceptID,
	}

	pending, err := cs.repo.SearchLedgers(ctx, store.LedgerFilter{AccountID: batch.AccountID, OnlyPending: true})
	if err != nil {
		return 0, err
	}

	affected := 0
	for _, m := range pending {
		if !rule.Matches(m.Description) {
			continue
		}
		applyRule(m, rule, true)
		if err := cs.repo.SaveLedger(ctx, m); err != nil {
			return affected, err
		}
		affected++
	}

	cs.logger.WithFields(logger.Fields{
		"pattern":  batch.Pattern,
		"kind":     batch.Kind,
		"affected": affected,
	}).Info("Applied rule batch")
	return affected, nil
}

// firstMatchingRule returns the first rule scoped to the movement's account that
// matches, falling back to global rules
func firstMatchingRule(rules []models.ClassificationRule, m *models.LedgerMovement) *models.ClassificationRule {
	for _, scoped := range []bool{true, false} {
		for i := range rules {
			r := &rules[i]
			if (r.AccountID != nil) != scoped {
				continue
			}
			if scoped && *r.AccountID != m.AccountID {
				continue
			}
			if r.Matches(m.Description) {
				return r
			}
		}
	}
	return nil
}

// applyRule sets the rule's fields on the primary split. Without overwrite
// only unset fields are filled.
func applyRule(m *models.LedgerMovement, r *models.ClassificationRule, overwrite bool) {
	models.EnsureDefaultSplit(m)
	s := &m.Splits[0]

	if r.ThirdPartyID != nil && (overwrite || m.EffectiveThirdParty() == nil) {
		assignThirdParty(m, *r.ThirdPartyID)
	}
	if r.CostCenterID != nil && (overwrite || s.CostCenterID == nil) {
		s.CostCenterID = models.IDPtr(*r.CostCenterID)
	}
	if r.ConceptID != nil && (overwrite || s.ConceptID == nil) {
		s.ConceptID = models.IDPtr(*r.ConceptID)
	}
}

// assignThirdParty sets the header third party and mirrors it onto a sole split
func assignThirdParty(m *models.LedgerMovement, id int64) {
	m.ThirdPartyID = models.IDPtr(id)
	if len(m.Splits) == 1 {
		m.Splits[0].ThirdPartyID = models.IDPtr(id)
	}
}

// adoptClassification copies src's classification onto m. Splits are copied
// as they are when both movements carry the same amount; otherwise m gets a
// single split with src's primary attribution.
func adoptClassification(m, src *models.LedgerMovement) {
	src = src.Clone()
	if len(src.Splits) > 1 && src.Amount.Equal(m.Amount) {
		for i := range src.Splits {
			src.Splits[i].ID = 0
			src.Splits[i].MovementID = m.ID
		}
		m.Splits = src.Splits
		m.ThirdPartyID = src.ThirdPartyID
		return
	}

	split := models.DetailSplit{MovementID: m.ID, Amount: m.Amount}
	if primary := src.PrimarySplit(); primary != nil {
		split.CostCenterID = primary.CostCenterID
		split.ConceptID = primary.ConceptID
	}
	split.ThirdPartyID = src.EffectiveThirdParty()
	m.Splits = []models.DetailSplit{split}
	m.ThirdPartyID = nil
	m.MirrorThirdParty()
}

func isCatalogReference(ref string) bool {
	return models.IsNumericReference(ref) && len(ref) > MinCatalogReferenceDigits
}
