package cmd

import (
	"fmt"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/reconciler"
	"bank-reconciliation-service/pkg/errors"

	"github.com/spf13/cobra"
)

// periodFlags are the --account, --year and --month flags shared by the
// period commands
type periodFlags struct {
	account int64
	year    int
	month   int
}

func (p *periodFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&p.account, "account", 0, "bank account id (required)")
	cmd.Flags().IntVar(&p.year, "year", 0, "period year (required)")
	cmd.Flags().IntVar(&p.month, "month", 0, "period month 1-12 (required)")
	cmd.MarkFlagRequired("account")
	cmd.MarkFlagRequired("year")
	cmd.MarkFlagRequired("month")
}

func (p *periodFlags) period() (models.Period, error) {
	period, err := models.NewPeriod(p.account, p.year, p.month)
	if err != nil {
		return period, errors.ValidationError(errors.CodeOutOfRange, "period",
			fmt.Sprintf("%d/%d-%02d", p.account, p.year, p.month), err)
	}
	return period, nil
}

func (a *app) matchCommand() *cobra.Command {
	var (
		pf          periodFlags
		toYear      int
		toMonth     int
		stopOnError bool
		progress    bool
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Reconcile one period or a range of months",
		Long: `Match scores every pending statement line of the period against the
ledger movements still available and stores one match per line. Confirmed,
manual and ignored lines are kept as they are.

With --to-year and --to-month every month from --year/--month up to that
month is reconciled in order. The default matching configuration is stored
on first use.

Examples:
  conciliador match --account 1 --year 2024 --month 3
  conciliador match --account 1 --year 2024 --month 1 --to-year 2024 --to-month 6 --progress`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			period, err := pf.period()
			if err != nil {
				return err
			}
			if _, err := a.conciliacion.EnsureConfig(ctx); err != nil {
				return err
			}

			if !cmd.Flags().Changed("to-year") && !cmd.Flags().Changed("to-month") {
				result, err := a.conciliacion.RunPeriod(ctx, period)
				if err != nil {
					return err
				}
				return a.render(result)
			}

			if toYear == 0 {
				toYear = pf.year
			}
			if toMonth == 0 {
				toMonth = 12
			}
			periods, err := reconciler.MonthRange(pf.account, pf.year, pf.month, toYear, toMonth)
			if err != nil {
				return err
			}

			orchestrator, err := reconciler.NewOrchestrator(a.conciliacion, a.logger)
			if err != nil {
				return err
			}
			orchestrator.StopOnError = stopOnError
			if progress {
				orchestrator.AddProgressCallback(func(p *reconciler.BatchProgress) {
					fmt.Fprintf(a.errOut, "[%d/%d] %s (%.0f%%, %d matches)\n",
						p.CompletedPeriods, p.TotalPeriods, p.CurrentPeriod, p.PercentComplete, p.MatchesSaved)
				})
			}

			result, err := orchestrator.RunPeriods(ctx, periods)
			if result != nil {
				if renderErr := a.render(result); renderErr != nil && err == nil {
					err = renderErr
				}
			}
			return err
		},
	}

	pf.register(cmd)
	cmd.Flags().IntVar(&toYear, "to-year", 0, "last year of a month range (default --year)")
	cmd.Flags().IntVar(&toMonth, "to-month", 0, "last month of a month range (default 12)")
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "abort a month range at the first failing period")
	cmd.Flags().BoolVar(&progress, "progress", false, "show progress for month ranges")
	return cmd
}

func (a *app) universeCommand() *cobra.Command {
	var pf periodFlags
	cmd := &cobra.Command{
		Use:   "universe",
		Short: "List the ledger movements of a period",
		Long: `Universe lists the ledger movements the matcher sees for the period:
movements of the account dated within the month.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			period, err := pf.period()
			if err != nil {
				return err
			}
			movements, err := a.conciliacion.SystemUniverse(commandContext(cmd), period)
			if err != nil {
				return err
			}
			return a.render(movements)
		},
	}
	pf.register(cmd)
	return cmd
}

func (a *app) resetCommand() *cobra.Command {
	var (
		pf  periodFlags
		yes bool
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every match of a period",
		Long: `Reset deletes all matches of the period, manual and ignored ones
included, and recomputes the period totals. Requires --yes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			period, err := pf.period()
			if err != nil {
				return err
			}
			if !yes {
				return errors.ValidationError(errors.CodeMissingField, "yes", false, nil).
					WithSuggestion("Reset deletes manual decisions too; pass --yes to confirm")
			}
			result, err := a.conciliacion.ResetPeriod(commandContext(cmd), period)
			if err != nil {
				return err
			}
			return a.render(result)
		},
	}
	pf.register(cmd)
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func (a *app) integrityCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integrity",
		Short: "Check and repair period integrity",
	}

	var check periodFlags
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Compare statement and ledger totals of a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			period, err := check.period()
			if err != nil {
				return err
			}
			report, err := a.conciliacion.Integrity(commandContext(cmd), period)
			if err != nil {
				return err
			}
			return a.render(report)
		},
	}
	check.register(checkCmd)

	var detect periodFlags
	detectCmd := &cobra.Command{
		Use:   "detect",
		Short: "List ledger movements matched to more than one statement line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			period, err := detect.period()
			if err != nil {
				return err
			}
			report, err := a.validation.DetectOneToMany(commandContext(cmd), period)
			if err != nil {
				return err
			}
			return a.render(report)
		},
	}
	detect.register(detectCmd)

	var fix periodFlags
	fixCmd := &cobra.Command{
		Use:   "fix",
		Short: "Delete the matches of a period that share a ledger movement",
		Long: `Fix deletes every match of the period whose ledger movement is held by
more than one statement line. Links from other periods are kept and the freed
lines are matched again on the next run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			period, err := fix.period()
			if err != nil {
				return err
			}
			result, err := a.validation.InvalidateOneToMany(commandContext(cmd), period)
			if err != nil {
				return err
			}
			return a.render(result)
		},
	}
	fix.register(fixCmd)

	cmd.AddCommand(checkCmd, detectCmd, fixCmd)
	return cmd
}
