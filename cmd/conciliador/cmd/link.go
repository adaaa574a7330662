package cmd

import (
	"bank-reconciliation-service/internal/models"

	"github.com/spf13/cobra"
)

func (a *app) linkCommand() *cobra.Command {
	var (
		statement int64
		ledger    int64
		notes     string
	)
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link a statement line to a ledger movement by hand",
		Long: `Link replaces whatever match the statement line had with a confirmed
OK match to the given ledger movement. The ledger movement must not back an
active match of another statement line. Scores are stored for audit only.

Example:
  conciliador link --statement 41 --ledger 1207 --notes "cheque 441"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			match, err := a.lifecycle.ManualLink(commandContext(cmd), statement, ledger, a.config.User, notes)
			if err != nil {
				return err
			}
			return a.render(match)
		},
	}
	cmd.Flags().Int64Var(&statement, "statement", 0, "statement line id (required)")
	cmd.Flags().Int64Var(&ledger, "ledger", 0, "ledger movement id (required)")
	cmd.Flags().StringVar(&notes, "notes", "", "free text stored on the match")
	cmd.MarkFlagRequired("statement")
	cmd.MarkFlagRequired("ledger")
	return cmd
}

func (a *app) unlinkCommand() *cobra.Command {
	var statement int64
	cmd := &cobra.Command{
		Use:   "unlink",
		Short: "Return a statement line to SIN_MATCH",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			match, err := a.lifecycle.Unlink(commandContext(cmd), statement)
			if err != nil {
				return err
			}
			return a.render(match)
		},
	}
	cmd.Flags().Int64Var(&statement, "statement", 0, "statement line id (required)")
	cmd.MarkFlagRequired("statement")
	return cmd
}

func (a *app) ignoreCommand() *cobra.Command {
	var (
		statement int64
		reason    string
	)
	cmd := &cobra.Command{
		Use:   "ignore",
		Short: "Mark a statement line as IGNORADO",
		Long: `Ignore records that the statement line needs no ledger movement. The
automatic matcher leaves ignored lines alone until they are unlinked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			match, err := a.lifecycle.Ignore(commandContext(cmd), statement, a.config.User, reason)
			if err != nil {
				return err
			}
			return a.render(match)
		},
	}
	cmd.Flags().Int64Var(&statement, "statement", 0, "statement line id (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "why the line is ignored")
	cmd.MarkFlagRequired("statement")
	return cmd
}

func (a *app) createLedgerCommand() *cobra.Command {
	var statement int64
	cmd := &cobra.Command{
		Use:   "create-ledger",
		Short: "Create a ledger movement from a statement line and link it",
		Long: `Create-ledger books the statement line as a new pending ledger movement
of the same account, date, amount and description, and links both with a
MANUAL match.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			movement, match, err := a.lifecycle.CreateFromStatement(commandContext(cmd), statement, a.config.User)
			if err != nil {
				return err
			}
			if err := a.render(match); err != nil {
				return err
			}
			if a.output != "" {
				return nil
			}
			return a.render([]*models.LedgerMovement{movement})
		},
	}
	cmd.Flags().Int64Var(&statement, "statement", 0, "statement line id (required)")
	cmd.MarkFlagRequired("statement")
	return cmd
}
