package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"bank-reconciliation-service/internal/classifier"
	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/parsers"
	"bank-reconciliation-service/internal/reconciler"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{"default config", nil, false},
		{"valid config", DefaultReportConfig(), false},
		{"invalid format", &ReportConfig{Format: "xml"}, true},
		{"negative list size", &ReportConfig{Format: FormatConsole, MaxListItems: -1}, true},
		{"csv without delimiter defaults to comma", &ReportConfig{Format: FormatCSV}, false},
		{"csv quote delimiter", &ReportConfig{Format: FormatCSV, CSVDelimiter: '"'}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				} else if !errors.IsCategory(err, errors.CategoryConfiguration) {
					t.Errorf("expected configuration error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if generator == nil {
				t.Errorf("expected generator but got nil")
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatCSV, true},
		{"invalid", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if tt.format.IsValid() != tt.valid {
				t.Errorf("expected IsValid() = %v for format %s", tt.valid, tt.format)
			}
		})
	}
}

func TestGeneratePeriodReport(t *testing.T) {
	result := createSamplePeriodResult()

	tests := []struct {
		name        string
		config      *ReportConfig
		checkOutput func(t *testing.T, output string)
	}{
		{
			name:   "console format",
			config: &ReportConfig{Format: FormatConsole, IncludeMatches: true},
			checkOutput: func(t *testing.T, output string) {
				for _, want := range []string{
					"RECONCILIATION REPORT 1/2024-03",
					"=== BY ESTADO ===",
					"OK             1 (33.3%)",
					"=== BY CURRENCY ===",
					"COP   movements: 2, matched: 1",
					"Balanced:                true",
					"statement 10 -> ledger 20 [OK]",
					"statement 12 -> ledger - [SIN_MATCH]",
				} {
					if !strings.Contains(output, want) {
						t.Errorf("console output missing %q", want)
					}
				}
			},
		},
		{
			name:   "console without matches",
			config: &ReportConfig{Format: FormatConsole},
			checkOutput: func(t *testing.T, output string) {
				if strings.Contains(output, "=== MATCHES ===") {
					t.Errorf("matches should be omitted")
				}
			},
		},
		{
			name:   "json format",
			config: &ReportConfig{Format: FormatJSON, IncludeMatches: true},
			checkOutput: func(t *testing.T, output string) {
				var decoded map[string]interface{}
				if err := json.Unmarshal([]byte(output), &decoded); err != nil {
					t.Fatalf("invalid JSON output: %v", err)
				}
				matches, ok := decoded["matches"].([]interface{})
				if !ok || len(matches) != 3 {
					t.Errorf("expected 3 matches in JSON, got %v", decoded["matches"])
				}
				if _, ok := decoded["integrity"]; !ok {
					t.Errorf("expected integrity section")
				}
			},
		},
		{
			name:   "json without matches",
			config: &ReportConfig{Format: FormatJSON},
			checkOutput: func(t *testing.T, output string) {
				if strings.Contains(output, `"statement_id"`) {
					t.Errorf("matches should be dropped from JSON output")
				}
			},
		},
		{
			name:   "csv format",
			config: &ReportConfig{Format: FormatCSV, CSVDelimiter: ';', CSVHeaders: true},
			checkOutput: func(t *testing.T, output string) {
				r := csv.NewReader(strings.NewReader(output))
				r.Comma = ';'
				records, err := r.ReadAll()
				if err != nil {
					t.Fatalf("invalid CSV output: %v", err)
				}
				if len(records) != 4 {
					t.Fatalf("expected header plus 3 rows, got %d", len(records))
				}
				if records[0][0] != "period" {
					t.Errorf("unexpected header %v", records[0])
				}
				if records[1][4] != "OK" || records[1][5] != "92.50" {
					t.Errorf("unexpected first row %v", records[1])
				}
				if records[3][3] != "-" {
					t.Errorf("SIN_MATCH row should have no ledger, got %q", records[3][3])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if err != nil {
				t.Fatalf("failed to create generator: %v", err)
			}
			var buf bytes.Buffer
			if err := generator.GenerateReport(result, &buf); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.checkOutput(t, buf.String())
		})
	}
}

func TestGenerateReport_OtherResults(t *testing.T) {
	generator, err := NewReportGenerator(&ReportConfig{Format: FormatConsole, MaxListItems: 1})
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	period := models.Period{AccountID: 1, Year: 2024, Month: 3}
	tp := models.IDPtr(7)
	movement := &models.LedgerMovement{
		ID: 20, AccountID: 1, Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		Description: "PAGO TC MASTER", Amount: decimal.NewFromInt(-500000), ThirdPartyID: tp,
	}

	tests := []struct {
		name   string
		result interface{}
		want   []string
	}{
		{
			name: "one to many",
			result: &reconciler.OneToManyReport{Period: period, Cases: []reconciler.OneToManyCase{{
				LedgerID: 20,
				Statements: []reconciler.StatementLink{
					{MatchID: 1, StatementID: 10, Estado: models.EstadoOK, Period: period, Amount: decimal.NewFromInt(5)},
					{MatchID: 2, StatementID: 11, Estado: models.EstadoProbable, Period: period, Amount: decimal.NewFromInt(5)},
				},
			}}},
			want: []string{"Ledger 20 (2 statement lines)", "statement 11 [PROBABLE]"},
		},
		{
			name:   "empty one to many",
			result: &reconciler.OneToManyReport{Period: period},
			want:   []string{"No ledger movement is shared"},
		},
		{
			name:   "universe truncated",
			result: []*models.LedgerMovement{movement, movement, movement},
			want:   []string{"Ledger movements: 3", "ID: 20", "... and 2 more"},
		},
		{
			name: "suggestion",
			result: &classifier.SuggestResult{
				MovementID:          30,
				UnresolvedReference: true,
				Reference:           "123456789012",
				Suggestion:          &classifier.Suggestion{ThirdPartyID: tp, Source: classifier.SourceHistory, BasedOn: 20, Score: 71.2},
				Context:             []classifier.Candidate{{Movement: movement, Total: 71.2, Signals: []string{"keyword PAGO"}}},
			},
			want: []string{"Reference 123456789012 is not in the reference catalog", "Third party: 7", "movement 20, score 71.20", "keyword PAGO"},
		},
		{
			name: "manual match",
			result: &models.Match{ID: 9, StatementID: 10, LedgerID: models.IDPtr(20), Estado: models.EstadoManual,
				Confirmado: true, CreatedBy: "ana", Notas: "cheque 441"},
			want: []string{"MATCH 9", "statement 10 -> ledger 20 [MANUAL]", "By: ana", "Notes: cheque 441"},
		},
		{
			name:   "matching config",
			result: matcher.DefaultMatchingConfig(),
			want:   []string{"tolerancia_valor:             100", "peso_fecha:                   0.40", "score_minimo_probable:        0.70"},
		},
		{
			name:   "seeds",
			result: &parsers.SeedResult{Currencies: 1, Accounts: 2, Rules: 3},
			want:   []string{"Accounts:      2", "Rules:         3"},
		},
		{
			name:   "no suggestion",
			result: &classifier.SuggestResult{MovementID: 30},
			want:   []string{"No suggestion"},
		},
		{
			name:   "classification batch",
			result: &classifier.BatchResult{RunID: "run-1", Processed: 4, Classified: 3, Unchanged: 1, ByReason: map[string]int{"rule": 2, "catalog reference": 1}},
			want:   []string{"Classified: 3 (75.0%)", "Unchanged:  1", "rule", "catalog reference"},
		},
		{
			name: "parse stats",
			result: &parsers.ParseStats{
				File: "extracto.csv", TotalLines: 5, RecordsParsed: 4, RecordsValid: 2,
				Errors: []*errors.RowError{
					errors.InvalidAmountError("extracto.csv", 3, "valor", "abc"),
					errors.EmptyValueError("extracto.csv", 4, "fecha"),
				},
			},
			want: []string{"IMPORT extracto.csv", "Errors:     2", "... and 1 more"},
		},
		{
			name:   "reset",
			result: &reconciler.ResetResult{Period: period, Deleted: 4},
			want:   []string{"RESET 1/2024-03", "Matches deleted: 4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := generator.GenerateReport(tt.result, &buf); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestGenerateReport_Errors(t *testing.T) {
	generator, _ := NewReportGenerator(&ReportConfig{Format: FormatCSV})

	var buf bytes.Buffer
	if err := generator.GenerateReport(nil, &buf); !errors.IsCategory(err, errors.CategoryValidation) {
		t.Errorf("expected validation error for nil result, got %v", err)
	}
	if err := generator.GenerateReport(&reconciler.IntegrityReport{}, &buf); !errors.IsCategory(err, errors.CategoryValidation) {
		t.Errorf("expected validation error for csv integrity report, got %v", err)
	}
	if err := generator.GenerateReport("text", &buf); err == nil {
		t.Errorf("expected error for unknown result type")
	}
}

func TestSafeReportGenerator_FormatFallback(t *testing.T) {
	srg, err := NewSafeReportGenerator(&ReportConfig{Format: FormatCSV}, logger.Discard())
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	report := &reconciler.IntegrityReport{
		StatementTotal: decimal.NewFromInt(100),
		Difference:     decimal.NewFromInt(3),
		Balanced:       false,
	}
	var buf bytes.Buffer
	if err := srg.GenerateReportSafely(report, &buf); err != nil {
		t.Fatalf("fallback should succeed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "NOTE: csv output is not available") {
		t.Errorf("expected fallback notice, got:\n%s", output)
	}
	if !strings.Contains(output, "Difference:              3.00") {
		t.Errorf("expected console integrity section, got:\n%s", output)
	}

	if err := srg.GenerateReportSafely(nil, &buf); err == nil {
		t.Errorf("expected error for nil result")
	}
	if err := srg.GenerateReportSafely(report, nil); err == nil {
		t.Errorf("expected error for nil writer")
	}
}

func TestGenerateBackupPath(t *testing.T) {
	if got := generateBackupPath("/tmp/out/report.csv"); got != "/tmp/out/report_backup.csv" {
		t.Errorf("generateBackupPath = %s", got)
	}
}

func createSamplePeriodResult() *reconciler.PeriodResult {
	period := models.Period{AccountID: 1, Year: 2024, Month: 3}
	ledger := models.IDPtr(20)
	other := models.IDPtr(21)

	return &reconciler.PeriodResult{
		Matches: []*models.Match{
			{ID: 1, StatementID: 10, LedgerID: ledger, Estado: models.EstadoOK,
				Scores: models.Scores{Total: 92.5, Fecha: 100, Valor: 100, Descripcion: 75}},
			{ID: 2, StatementID: 11, LedgerID: other, Estado: models.EstadoProbable,
				Scores: models.Scores{Total: 70, Fecha: 80, Valor: 90, Descripcion: 30}, Reasons: []string{"date offset 2 days"}},
			{ID: 3, StatementID: 12, Estado: models.EstadoSinMatch},
		},
		Stats: &reconciler.PeriodStats{
			RunID:        "run-1",
			Period:       period,
			Statements:   3,
			Processed:    3,
			UniverseSize: 2,
			PoolSize:     2,
			ByEstado: map[models.MatchEstado]int{
				models.EstadoOK:       1,
				models.EstadoProbable: 1,
				models.EstadoSinMatch: 1,
			},
			ByCurrency: map[string]*reconciler.CurrencyStats{
				"COP": {Movements: 2, Amount: decimal.NewFromInt(-700), Matched: 1},
			},
			AverageScore: 54.17,
		},
		Integrity: &reconciler.IntegrityReport{
			StatementTotal:        decimal.NewFromInt(-700),
			MatchedStatementTotal: decimal.NewFromInt(-600),
			MatchedLedgerTotal:    decimal.NewFromInt(-600),
			Balanced:              true,
			ActiveMatches:         2,
			OpenStatements:        1,
		},
	}
}
