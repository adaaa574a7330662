package cmd

import (
	"fmt"

	"bank-reconciliation-service/internal/classifier"
	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
)

func (a *app) classifyCommand() *cobra.Command {
	var movement int64
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify one pending ledger movement",
		Long: `Classify runs the rule, history and reference catalog cascade on one
pending movement and saves it when a step applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := a.classifier.ClassifyMovement(commandContext(cmd), movement)
			if err != nil {
				return err
			}
			return a.render(result)
		},
	}
	cmd.Flags().Int64Var(&movement, "movement", 0, "ledger movement id (required)")
	cmd.MarkFlagRequired("movement")
	return cmd
}

func (a *app) autoClassifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "auto-classify",
		Short: "Classify every pending ledger movement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := a.classifier.AutoClassifyPending(commandContext(cmd))
			if err != nil {
				return err
			}
			return a.render(result)
		},
	}
}

func (a *app) suggestCommand() *cobra.Command {
	var (
		movement   int64
		register   int64
		description string
	)
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest a classification for a ledger movement",
		Long: `Suggest ranks classified movements similar to the given one and proposes
third party, cost center and concept. Nothing is saved.

When the movement carries a catalog-sized reference that is not in the
reference catalog, --register-third-party adds it to the catalog.

Example:
  conciliador suggest --movement 1207
  conciliador suggest --movement 1207 --register-third-party 15`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			result, err := a.classifier.Suggest(ctx, movement)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("register-third-party") {
				if !result.UnresolvedReference {
					return errors.ValidationError(errors.CodeInvalidState, "register-third-party", register,
						fmt.Errorf("movement %d has no unresolved reference", movement))
				}
				if _, err := a.repo.GetThirdParty(ctx, register); err != nil {
					return err
				}
				entry := &models.ReferenceEntry{Reference: result.Reference, ThirdPartyID: register, Description: description}
				if err := a.repo.SaveReference(ctx, entry); err != nil {
					return err
				}
				a.logger.WithFields(logger.Fields{
					"reference":      entry.Reference,
					"third_party_id": register,
				}).Info("Reference registered")
				fmt.Fprintf(a.errOut, "Reference %s registered for third party %d\n", entry.Reference, register)
			}
			return a.render(result)
		},
	}
	cmd.Flags().Int64Var(&movement, "movement", 0, "ledger movement id (required)")
	cmd.Flags().Int64Var(&register, "register-third-party", 0, "register the unresolved reference for this third party")
	cmd.Flags().StringVar(&description, "reference-description", "", "description stored with a registered reference")
	cmd.MarkFlagRequired("movement")
	return cmd
}

func (a *app) applyRuleCommand() *cobra.Command {
	var (
		batch      classifier.RuleBatch
		kind       string
		thirdParty int64
		costCenter int64
		concept    int64
		save       bool
	)
	cmd := &cobra.Command{
		Use:   "apply-rule",
		Short: "Assign a classification to every pending movement matching a pattern",
		Long: `Apply-rule assigns the given fields to the pending movements whose
description matches the pattern. Given fields overwrite what the movements
had. With --save the pattern is also stored as a classification rule for
future imports.

Example:
  conciliador apply-rule --pattern "GMF" --third-party 3 --concept 40 --save`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			batch.Kind = models.MatchKind(kind)
			if cmd.Flags().Changed("third-party") {
				batch.ThirdPartyID = models.IDPtr(thirdParty)
			}
			if cmd.Flags().Changed("cost-center") {
				batch.CostCenterID = models.IDPtr(costCenter)
			}
			if cmd.Flags().Changed("concept") {
				batch.ConceptID = models.IDPtr(concept)
			}

			ctx := commandContext(cmd)
			updated, err := a.classifier.ApplyRuleBatch(ctx, batch)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Updated %d movements\n", updated)

			if save {
				rule := &models.ClassificationRule{
					Patron:       batch.Pattern,
					Kind:         batch.Kind,
					ThirdPartyID: batch.ThirdPartyID,
					CostCenterID: batch.CostCenterID,
					ConceptID:    batch.ConceptID,
				}
				if batch.AccountID != 0 {
					rule.AccountID = models.IDPtr(batch.AccountID)
				}
				if err := a.repo.SaveRule(ctx, rule); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Saved rule %d\n", rule.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&batch.Pattern, "pattern", "", "description pattern (required)")
	cmd.Flags().StringVar(&kind, "kind", string(models.MatchContains), "pattern kind: contains, starts_with, exact")
	cmd.Flags().Int64Var(&batch.AccountID, "account", 0, "limit to one bank account")
	cmd.Flags().Int64Var(&thirdParty, "third-party", 0, "third party id to assign")
	cmd.Flags().Int64Var(&costCenter, "cost-center", 0, "cost center id to assign")
	cmd.Flags().Int64Var(&concept, "concept", 0, "concept id to assign")
	cmd.Flags().BoolVar(&save, "save", false, "store the pattern as a classification rule")
	cmd.MarkFlagRequired("pattern")
	return cmd
}
