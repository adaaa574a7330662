// Package config loads the command line configuration from a YAML file,
// CONCILIADOR_* environment variables and flags, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"bank-reconciliation-service/internal/classifier"
	"bank-reconciliation-service/internal/parsers"
	"bank-reconciliation-service/internal/reporter"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by the CLI
const EnvPrefix = "CONCILIADOR"

// AppConfig is the complete CLI configuration
type AppConfig struct {
	Database   DatabaseConfig    `mapstructure:"database"`
	Log        logger.Config     `mapstructure:"log"`
	Classifier classifier.Config `mapstructure:"classifier"`
	Report     ReportSettings    `mapstructure:"report"`
	Import     ImportSettings    `mapstructure:"import"`
	// User is recorded on manual links, ignores and created ledger movements
	User string `mapstructure:"user"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ReportSettings mirrors reporter.ReportConfig with a string delimiter
type ReportSettings struct {
	Format         string `mapstructure:"format"`
	IncludeMatches bool   `mapstructure:"include_matches"`
	MaxListItems   int    `mapstructure:"max_list_items"`
	CSVDelimiter   string `mapstructure:"csv_delimiter"`
}

// ImportSettings is the CSV dialect of imported files
type ImportSettings struct {
	Delimiter    string `mapstructure:"delimiter"`
	DecimalComma bool   `mapstructure:"decimal_comma"`
	MaxErrors    int    `mapstructure:"max_errors"`
}

// SetDefaults registers every key so environment variables can override it
func SetDefaults(v *viper.Viper) {
	cls := classifier.DefaultConfig()
	rep := reporter.DefaultReportConfig()
	parse := parsers.DefaultParseConfig()

	v.SetDefault("database.path", "conciliacion.db")

	v.SetDefault("log.level", string(logger.InfoLevel))
	v.SetDefault("log.format", string(logger.TextFormat))
	v.SetDefault("log.output", string(logger.StderrOutput))
	v.SetDefault("log.file", "")

	v.SetDefault("classifier.value_band_percent", cls.ValueBandPercent)
	v.SetDefault("classifier.keyword_limit", cls.KeywordLimit)
	v.SetDefault("classifier.history_limit", cls.HistoryLimit)
	v.SetDefault("classifier.sweep_account_types", cls.SweepAccountTypes)
	v.SetDefault("classifier.sweep_history_limit", cls.SweepHistoryLimit)

	v.SetDefault("report.format", string(rep.Format))
	v.SetDefault("report.include_matches", rep.IncludeMatches)
	v.SetDefault("report.max_list_items", rep.MaxListItems)
	v.SetDefault("report.csv_delimiter", string(rep.CSVDelimiter))

	v.SetDefault("import.delimiter", string(parse.Delimiter))
	v.SetDefault("import.decimal_comma", parse.DecimalComma)
	v.SetDefault("import.max_errors", parse.MaxErrors)

	v.SetDefault("user", defaultUser())
}

// Load reads the optional config file and the environment into an AppConfig
func Load(v *viper.Viper, file string) (*AppConfig, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(file); os.IsNotExist(statErr) {
				return nil, errors.FileError(errors.CodeFileNotFound, file, err)
			}
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", file, err).
				WithSuggestion("Check the YAML syntax of the config file")
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", v.ConfigFileUsed(), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "database.path", c.Database.Path, nil)
	}
	if err := c.Log.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", c.Log.Level, err)
	}
	if err := c.Classifier.Validate(); err != nil {
		return err
	}
	rc, err := c.ReportConfig()
	if err != nil {
		return err
	}
	if err := rc.Validate(); err != nil {
		return err
	}
	pc, err := c.ParseConfig()
	if err != nil {
		return err
	}
	return pc.Validate()
}

// ReportConfig converts the report settings
func (c *AppConfig) ReportConfig() (*reporter.ReportConfig, error) {
	delimiter, err := singleRune("report.csv_delimiter", c.Report.CSVDelimiter)
	if err != nil {
		return nil, err
	}
	return &reporter.ReportConfig{
		Format:         reporter.OutputFormat(strings.ToLower(c.Report.Format)),
		IncludeMatches: c.Report.IncludeMatches,
		MaxListItems:   c.Report.MaxListItems,
		CSVDelimiter:   delimiter,
		CSVHeaders:     true,
	}, nil
}

// ParseConfig converts the import settings
func (c *AppConfig) ParseConfig() (*parsers.ParseConfig, error) {
	delimiter, err := singleRune("import.delimiter", c.Import.Delimiter)
	if err != nil {
		return nil, err
	}
	pc := parsers.DefaultParseConfig()
	pc.Delimiter = delimiter
	pc.DecimalComma = c.Import.DecimalComma
	pc.MaxErrors = c.Import.MaxErrors
	return pc, nil
}

// singleRune accepts one character or the words "tab" and "semicolon"
func singleRune(setting, value string) (rune, error) {
	switch strings.ToLower(value) {
	case "tab", `\t`:
		return '\t', nil
	case "semicolon":
		return ';', nil
	}
	if utf8.RuneCountInString(value) != 1 {
		return 0, errors.ConfigurationError(errors.CodeInvalidConfig, setting, value,
			fmt.Errorf("expected a single character"))
	}
	r, _ := utf8.DecodeRuneInString(value)
	return r, nil
}

// DatabasePath resolves the database path against the config file directory
func (c *AppConfig) DatabasePath(configFile string) string {
	if c.Database.Path == ":memory:" || filepath.IsAbs(c.Database.Path) || configFile == "" {
		return c.Database.Path
	}
	return filepath.Join(filepath.Dir(configFile), c.Database.Path)
}

func defaultUser() string {
	for _, key := range []string{"USER", "USERNAME"} {
		if u := os.Getenv(key); u != "" {
			return u
		}
	}
	return "conciliador"
}
