package cmd

import (
	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/parsers"
	"bank-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
)

func (a *app) importCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load statements, ledger exports and catalogs",
	}
	cmd.AddCommand(a.importStatementsCommand(), a.importLedgerCommand(), a.importSeedsCommand())
	return cmd
}

func (a *app) importStatementsCommand() *cobra.Command {
	var (
		pf   periodFlags
		file string
	)
	cmd := &cobra.Command{
		Use:   "statements",
		Short: "Replace the statement lines of a period from a CSV file",
		Long: `Statements parses a bank statement CSV (columns fecha, descripcion,
valor and optionally referencia) and replaces the stored lines of the period.
Rows dated outside the period are rejected.

Example:
  conciliador import statements --file marzo.csv --account 1 --year 2024 --month 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			period, err := pf.period()
			if err != nil {
				return err
			}
			parseConfig, err := a.config.ParseConfig()
			if err != nil {
				return err
			}
			parser, err := parsers.NewStatementParser(parseConfig, parsers.DefaultStatementColumns(), a.logger)
			if err != nil {
				return err
			}

			lines, stats, err := parser.ParseFile(ctx, file, period)
			if err != nil {
				return err
			}
			lines = parsers.NewPreprocessor(nil).Statements(lines)
			if err := a.repo.ReplaceStatements(ctx, period, lines); err != nil {
				return err
			}

			a.logger.WithFields(logger.Fields{
				"period": period.String(),
				"lines":  len(lines),
			}).Info("Statement lines imported")
			return a.render(stats)
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVar(&file, "file", "", "statement CSV file (required)")
	cmd.MarkFlagRequired("file")
	return cmd
}

func (a *app) importLedgerCommand() *cobra.Command {
	var (
		file string
		opts parsers.LedgerImport
	)
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Append ledger movements of an account from a CSV file",
		Long: `Ledger parses an accounting export and stores its movements for the
account. Rows repeating the date, amount and description of a row in the same
file or of a stored movement are skipped and counted as duplicates.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			account, err := a.repo.GetAccount(ctx, opts.AccountID)
			if err != nil {
				return err
			}
			if opts.CurrencyID == 0 {
				opts.CurrencyID = account.CurrencyID
			}
			parseConfig, err := a.config.ParseConfig()
			if err != nil {
				return err
			}
			parser, err := parsers.NewLedgerParser(parseConfig, parsers.DefaultLedgerColumns(), a.logger)
			if err != nil {
				return err
			}

			movements, stats, err := parser.ParseFile(ctx, file, opts)
			if err != nil {
				return err
			}
			movements, dropped := parsers.NewPreprocessor(nil).Ledger(movements)
			stats.Duplicates += dropped

			saved := make([]*models.LedgerMovement, 0, len(movements))
			for _, m := range movements {
				exists, err := a.repo.LedgerExists(ctx, m.AccountID, m.Date, m.Amount, m.Description)
				if err != nil {
					return err
				}
				if exists {
					stats.Duplicates++
					continue
				}
				if err := a.repo.SaveLedger(ctx, m); err != nil {
					return err
				}
				saved = append(saved, m)
			}

			a.logger.WithFields(logger.Fields{
				"account_id": opts.AccountID,
				"saved":      len(saved),
				"duplicates": stats.Duplicates,
			}).Info("Ledger movements imported")
			return a.render(stats)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "ledger CSV file (required)")
	cmd.Flags().Int64Var(&opts.AccountID, "account", 0, "bank account id (required)")
	cmd.Flags().Int64Var(&opts.CurrencyID, "currency", 0, "currency id for rows without one (default: the account currency)")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("account")
	return cmd
}

func (a *app) importSeedsCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seeds",
		Short: "Load catalogs, aliases and rules from a YAML file",
		Long: `Seeds upserts currencies, accounts, third parties, the reference
catalog, matching aliases and classification rules from a YAML file.
Environment variables in the file are expanded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			seeds, err := parsers.LoadSeeds(file)
			if err != nil {
				return err
			}
			result, err := seeds.Apply(commandContext(cmd), a.repo, a.logger)
			if err != nil {
				return err
			}
			return a.render(result)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "seed YAML file (required)")
	cmd.MarkFlagRequired("file")
	return cmd
}
