package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"bank-reconciliation-service/internal/reporter"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"

	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conciliador.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Path != "conciliacion.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.Log.Level != logger.InfoLevel || cfg.Log.Format != logger.TextFormat {
		t.Errorf("unexpected log config %+v", cfg.Log)
	}
	if cfg.Classifier.KeywordLimit != 25 || cfg.Classifier.ValueBandPercent != 10 {
		t.Errorf("unexpected classifier config %+v", cfg.Classifier)
	}
	if !reflect.DeepEqual(cfg.Classifier.SweepAccountTypes, []string{"barrido", "inversion"}) {
		t.Errorf("sweep_account_types = %v", cfg.Classifier.SweepAccountTypes)
	}
	if cfg.User == "" {
		t.Errorf("expected a default user")
	}

	rc, err := cfg.ReportConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc.Format != reporter.FormatConsole || rc.CSVDelimiter != ',' {
		t.Errorf("unexpected report config %+v", rc)
	}
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
database:
  path: data/conciliacion.db
log:
  level: debug
  format: json
classifier:
  keyword_limit: 10
  sweep_account_types: [fiducia]
report:
  format: CSV
  csv_delimiter: semicolon
import:
  delimiter: ";"
  decimal_comma: true
`)
	t.Setenv("CONCILIADOR_CLASSIFIER_HISTORY_LIMIT", "7")
	t.Setenv("CONCILIADOR_USER", "auditor")

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Log.Level != logger.DebugLevel || cfg.Log.Format != logger.JSONFormat {
		t.Errorf("log config not read from file: %+v", cfg.Log)
	}
	if cfg.Classifier.KeywordLimit != 10 {
		t.Errorf("keyword_limit = %d", cfg.Classifier.KeywordLimit)
	}
	if cfg.Classifier.HistoryLimit != 7 {
		t.Errorf("history_limit from environment = %d", cfg.Classifier.HistoryLimit)
	}
	if !reflect.DeepEqual(cfg.Classifier.SweepAccountTypes, []string{"fiducia"}) {
		t.Errorf("sweep_account_types = %v", cfg.Classifier.SweepAccountTypes)
	}
	if cfg.User != "auditor" {
		t.Errorf("user = %q", cfg.User)
	}

	rc, _ := cfg.ReportConfig()
	if rc.Format != reporter.FormatCSV || rc.CSVDelimiter != ';' {
		t.Errorf("unexpected report config %+v", rc)
	}
	pc, _ := cfg.ParseConfig()
	if pc.Delimiter != ';' || !pc.DecimalComma {
		t.Errorf("unexpected parse config %+v", pc)
	}

	want := filepath.Join(filepath.Dir(path), "data", "conciliacion.db")
	if got := cfg.DatabasePath(path); got != want {
		t.Errorf("DatabasePath = %s, want %s", got, want)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		env      map[string]string
		category errors.ErrorCategory
	}{
		{
			name:     "bad log level",
			content:  "log:\n  level: loud\n",
			category: errors.CategoryConfiguration,
		},
		{
			name:     "bad keyword limit",
			content:  "classifier:\n  keyword_limit: 0\n",
			category: errors.CategoryConfiguration,
		},
		{
			name:     "bad report format",
			content:  "report:\n  format: xml\n",
			category: errors.CategoryConfiguration,
		},
		{
			name:     "multi character delimiter",
			content:  "import:\n  delimiter: ';;'\n",
			category: errors.CategoryConfiguration,
		},
		{
			name:     "decimal comma with comma delimiter",
			content:  "import:\n  decimal_comma: true\n",
			category: errors.CategoryConfiguration,
		},
		{
			name:     "broken yaml",
			content:  "log: [unclosed\n",
			category: errors.CategoryConfiguration,
		},
		{
			name:     "empty database path from environment",
			content:  "",
			env:      map[string]string{"CONCILIADOR_DATABASE_PATH": " "},
			category: errors.CategoryConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(viper.New(), writeConfig(t, tt.content))
			if err == nil {
				t.Fatalf("expected error but got none")
			}
			if !errors.IsCategory(err, tt.category) {
				t.Errorf("expected %s error, got %v", tt.category, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.IsCategory(err, errors.CategoryFile) {
		t.Errorf("expected file error, got %v", err)
	}
}

func TestSingleRune(t *testing.T) {
	tests := []struct {
		value   string
		want    rune
		wantErr bool
	}{
		{",", ',', false},
		{"tab", '\t', false},
		{"semicolon", ';', false},
		{"|", '|', false},
		{"", 0, true},
		{"ab", 0, true},
	}

	for _, tt := range tests {
		got, err := singleRune("x", tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("singleRune(%q) error = %v", tt.value, err)
			continue
		}
		if got != tt.want {
			t.Errorf("singleRune(%q) = %q, want %q", tt.value, got, tt.want)
		}
	}
}
