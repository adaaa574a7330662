package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"bank-reconciliation-service/cmd/conciliador/config"
	"bank-reconciliation-service/internal/classifier"
	"bank-reconciliation-service/internal/reconciler"
	"bank-reconciliation-service/internal/reporter"
	"bank-reconciliation-service/internal/store/sqlite"
	"bank-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// skipSetup marks commands that run without configuration or database
const skipSetup = "skip-setup"

// app holds the flags and the services built for one invocation
type app struct {
	configFile string
	verbose    bool
	output     string

	v      *viper.Viper
	out    io.Writer
	errOut io.Writer

	config       *config.AppConfig
	logger       logger.Logger
	repo         *sqlite.Store
	conciliacion *reconciler.ConciliacionService
	lifecycle    *reconciler.LifecycleService
	validation   *reconciler.MatchValidationService
	classifier   *classifier.ClasificacionService
}

func newApp(out, errOut io.Writer) *app {
	return &app{v: viper.New(), out: out, errOut: errOut}
}

// Execute runs the command line and returns the process exit code
func Execute() int {
	a := newApp(os.Stdout, os.Stderr)
	root := a.rootCommand()
	err := root.Execute()
	a.close()
	return NewCLIErrorHandler(a.errOut, a.verbose).HandleError(err)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "conciliador",
		Short: "Bank statement reconciliation and movement classification",
		Long: `Conciliador matches bank statement lines against ledger movements one
account period at a time, keeps manual decisions across runs and suggests
third party, cost center and concept for unclassified movements.

Examples:
  conciliador import seeds --file seeds.yaml
  conciliador import statements --file marzo.csv --account 1 --year 2024 --month 3
  conciliador match --account 1 --year 2024 --month 3
  conciliador link --statement 41 --ledger 1207 --notes "cheque 441"
  conciliador suggest --movement 1207 --format json`,
		Version:           getVersionString(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { a.close() },
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (optional)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	flags.String("db", "", "SQLite database path (default conciliacion.db)")
	flags.StringP("format", "f", "", "output format: console, json, csv")
	flags.StringVarP(&a.output, "output", "o", "", "output file path (default: stdout)")

	a.v.BindPFlag("database.path", flags.Lookup("db"))
	a.v.BindPFlag("report.format", flags.Lookup("format"))

	root.AddCommand(
		a.matchCommand(),
		a.universeCommand(),
		a.resetCommand(),
		a.integrityCommand(),
		a.linkCommand(),
		a.unlinkCommand(),
		a.ignoreCommand(),
		a.createLedgerCommand(),
		a.classifyCommand(),
		a.autoClassifyCommand(),
		a.suggestCommand(),
		a.applyRuleCommand(),
		a.configCommand(),
		a.importCommand(),
		a.versionCommand(),
	)
	return root
}

// setup loads the configuration and opens the database for every command
// that needs them
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if _, ok := cmd.Annotations[skipSetup]; ok {
		return nil
	}

	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Log.Level = logger.DebugLevel
	}

	log, err := logger.NewLogger(&cfg.Log)
	if err != nil {
		return err
	}
	logger.SetGlobalLogger(log)
	if a.configFile != "" {
		log.WithField("file", a.v.ConfigFileUsed()).Debug("Using config file")
	}

	repo, err := sqlite.New(commandContext(cmd), cfg.DatabasePath(a.configFile), log)
	if err != nil {
		return err
	}

	cls, err := classifier.NewClasificacionService(repo, &cfg.Classifier, log)
	if err != nil {
		_ = repo.Close()
		return err
	}

	a.config = cfg
	a.logger = log
	a.repo = repo
	a.conciliacion = reconciler.NewConciliacionService(repo, log)
	a.lifecycle = reconciler.NewLifecycleService(repo, log)
	a.validation = reconciler.NewMatchValidationService(repo, log)
	a.classifier = cls
	return nil
}

func (a *app) close() {
	if a.repo == nil {
		return
	}
	if err := a.repo.Close(); err != nil && a.logger != nil {
		a.logger.WithError(err).Warn("Failed to close database")
	}
	a.repo = nil
}

// render writes a result in the configured format to stdout or --output
func (a *app) render(result interface{}) error {
	rc, err := a.config.ReportConfig()
	if err != nil {
		return err
	}
	generator, err := reporter.NewSafeReportGenerator(rc, a.logger)
	if err != nil {
		return err
	}
	if a.output != "" {
		return generator.WriteFile(result, a.output)
	}
	return generator.GenerateReportSafely(result, a.out)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSetup: "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(a.out, "conciliador %s\n", getVersionString())
		},
	}
}
