package reconciler

import (
	"context"
	"fmt"

	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/store"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// LifecycleService applies the human actions on matches
type LifecycleService struct {
	repo   store.Repository
	logger logger.Logger
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(repo store.Repository, log logger.Logger) *LifecycleService {
	return &LifecycleService{
		repo:   repo,
		logger: logger.OrGlobal(log).WithComponent("match_lifecycle"),
	}
}

// ManualLink links a statement line to a ledger movement as a confirmed OK match. It
// fails with a conflict when the ledger movement already backs an active match of a
// different statement line. Scores are computed for audit only.
func (ls *LifecycleService) ManualLink(ctx context.Context, statementID, ledgerID int64, user, notes string) (*models.Match, error) {
	st, err := ls.repo.GetStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	ledger, err := ls.repo.GetLedger(ctx, ledgerID)
	if err != nil {
		return nil, err
	}

	links, err := ls.repo.ListMatchesByLedger(ctx, ledgerID)
	if err != nil {
		return nil, err
	}
	for _, m := range links {
		if m.IsActive() && m.StatementID != statementID {
			return nil, errors.ConflictError(errors.CodeAlreadyLinked,
				fmt.Sprintf("ledger movement %d is already linked to statement line %d", ledgerID, m.StatementID)).
				WithContext("ledger_id", ledgerID).
				WithContext("statement_id", m.StatementID).
				WithContext("estado", m.Estado).
				WithSuggestion("Unlink the other statement line first")
		}
	}

	scores, err := ls.auditScores(ctx, st, ledger)
	if err != nil {
		return nil, err
	}

	match, err := ls.matchFor(ctx, statementID)
	if err != nil {
		return nil, err
	}
	match.LedgerID = models.IDPtr(ledgerID)
	match.Estado = models.EstadoOK
	match.Scores = scores
	match.Confirmado = true
	match.CreatedBy = user
	match.Notas = notes
	match.Reasons = []string{fmt.Sprintf("Linked manually by %s", user)}

	if err := ls.repo.SaveMatch(ctx, match); err != nil {
		return nil, err
	}

	ls.logger.WithFields(logger.Fields{
		"statement_id": statementID,
		"ledger_id":    ledgerID,
		"user":         user,
		"score":        scores.Total,
	}).Info("Manual link saved")
	return match, nil
}

// Unlink turns the statement line's match into a confirmed SIN_MATCH. The confirmation
// keeps automatic runs from matching the line again.
func (ls *LifecycleService) Unlink(ctx context.Context, statementID int64) (*models.Match, error) {
	if _, err := ls.repo.GetStatement(ctx, statementID); err != nil {
		return nil, err
	}

	match, err := ls.matchFor(ctx, statementID)
	if err != nil {
		return nil, err
	}
	previous := match.LedgerID

	match.LedgerID = nil
	match.Estado = models.EstadoSinMatch
	match.Scores = models.Scores{}
	match.Confirmado = true
	match.Reasons = []string{"Unlinked manually"}

	if err := ls.repo.SaveMatch(ctx, match); err != nil {
		return nil, err
	}

	fields := logger.Fields{"statement_id": statementID}
	if previous != nil {
		fields["previous_ledger_id"] = *previous
	}
	ls.logger.WithFields(fields).Info("Statement line unlinked")
	return match, nil
}

// Ignore marks the statement line as IGNORADO with the given reason
func (ls *LifecycleService) Ignore(ctx context.Context, statementID int64, user, reason string) (*models.Match, error) {
	if _, err := ls.repo.GetStatement(ctx, statementID); err != nil {
		return nil, err
	}

	match, err := ls.matchFor(ctx, statementID)
	if err != nil {
		return nil, err
	}
	match.LedgerID = nil
	match.Estado = models.EstadoIgnorado
	match.Scores = models.Scores{}
	match.Confirmado = true
	match.CreatedBy = user
	match.Notas = reason
	match.Reasons = nil

	if err := ls.repo.SaveMatch(ctx, match); err != nil {
		return nil, err
	}

	ls.logger.WithFields(logger.Fields{
		"statement_id": statementID,
		"user":         user,
	}).Info("Statement line ignored")
	return match, nil
}

// CreateFromStatement books a ledger movement mirroring the statement line and links
// both as MANUAL. The statement line must not already have an active match, and an
// identical ledger movement (same account, day, amount and description) must not exist.
func (ls *LifecycleService) CreateFromStatement(ctx context.Context, statementID int64, user string) (*models.LedgerMovement, *models.Match, error) {
	st, err := ls.repo.GetStatement(ctx, statementID)
	if err != nil {
		return nil, nil, err
	}

	match, err := ls.matchFor(ctx, statementID)
	if err != nil {
		return nil, nil, err
	}
	if match.IsActive() {
		return nil, nil, errors.ConflictError(errors.CodeAlreadyLinked,
			fmt.Sprintf("statement line %d already has an active %s match", statementID, match.Estado)).
			WithContext("statement_id", statementID)
	}

	exists, err := ls.repo.LedgerExists(ctx, st.AccountID, st.Date, st.Amount, st.Description)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		return nil, nil, errors.ConflictError(errors.CodeDuplicate,
			fmt.Sprintf("a ledger movement for %s already exists", st.String())).
			WithContext("statement_id", statementID).
			WithSuggestion("Link the existing ledger movement instead")
	}

	ledger := &models.LedgerMovement{
		AccountID:     st.AccountID,
		Date:          st.Date,
		Description:   st.Description,
		Reference:     st.Reference,
		Amount:        st.Amount,
		ForeignAmount: st.ForeignAmount,
	}
	account, err := ls.repo.GetAccount(ctx, st.AccountID)
	switch {
	case err == nil:
		ledger.CurrencyID = account.CurrencyID
	case !errors.IsNotFound(err):
		return nil, nil, err
	}
	models.EnsureDefaultSplit(ledger)

	if err := ls.repo.SaveLedger(ctx, ledger); err != nil {
		return nil, nil, err
	}

	scores, err := ls.auditScores(ctx, st, ledger)
	if err != nil {
		return nil, nil, err
	}
	match.LedgerID = models.IDPtr(ledger.ID)
	match.Estado = models.EstadoManual
	match.Scores = scores
	match.Confirmado = true
	match.CreatedBy = user
	match.Notas = "Created from statement line"
	match.Reasons = []string{fmt.Sprintf("Ledger movement %d created by %s", ledger.ID, user)}

	if err := ls.repo.SaveMatch(ctx, match); err != nil {
		return nil, nil, err
	}

	ls.logger.WithFields(logger.Fields{
		"statement_id": statementID,
		"ledger_id":    ledger.ID,
		"user":         user,
	}).Info("Ledger movement created from statement line")
	return ledger, match, nil
}

// matchFor returns the persisted match of the statement line, or a fresh one
func (ls *LifecycleService) matchFor(ctx context.Context, statementID int64) (*models.Match, error) {
	match, err := ls.repo.FindMatchByStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	if match == nil {
		match = &models.Match{StatementID: statementID}
	}
	return match, nil
}

// auditScores scores the pair with the active config, or the defaults when none is stored
func (ls *LifecycleService) auditScores(ctx context.Context, st *models.StatementMovement, ledger *models.LedgerMovement) (models.Scores, error) {
	config, err := ls.repo.FindActiveConfig(ctx)
	if err != nil {
		return models.Scores{}, err
	}
	if config == nil {
		ls.logger.Warn("No active matching configuration, scoring manual action with defaults")
		config = matcher.DefaultMatchingConfig()
	}
	aliases, err := ls.repo.ListAliases(ctx, st.AccountID)
	if err != nil {
		return models.Scores{}, err
	}
	return matcher.ScorePair(st, ledger, config, aliases).AsScores(), nil
}
