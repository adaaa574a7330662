// Package reporter renders reconciliation, integrity, classification and
// import results for the command line.
//
// Supported output formats:
//   - Console: human-readable sections for terminal display
//   - JSON: the result structures as they are, for programmatic consumption
//   - CSV: one row per match, movement or candidate, for spreadsheets
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatCSV})
//	err = generator.GenerateReport(periodResult, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"bank-reconciliation-service/internal/classifier"
	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/parsers"
	"bank-reconciliation-service/internal/reconciler"
	"bank-reconciliation-service/pkg/errors"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format"`

	// IncludeMatches lists every match of a period run, not only the counts
	IncludeMatches bool `json:"include_matches" mapstructure:"include_matches"`
	// MaxListItems caps console lists; zero prints everything
	MaxListItems int `json:"max_list_items" mapstructure:"max_list_items"`

	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:         FormatConsole,
		IncludeMatches: true,
		MaxListItems:   20,
		CSVDelimiter:   ',',
		CSVHeaders:     true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report.format", c.Format, nil).
			WithSuggestion("use console, json or csv")
	}
	if c.MaxListItems < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report.max_list_items", c.MaxListItems, nil)
	}
	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report.csv_delimiter", string(c.CSVDelimiter), nil)
	}
	return nil
}

// ReportGenerator generates reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if config.CSVDelimiter == 0 {
		config.CSVDelimiter = ','
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes result in the configured format. result is one of the
// service results: *reconciler.PeriodResult, *reconciler.BatchResult,
// *reconciler.IntegrityReport, *reconciler.OneToManyReport,
// *reconciler.InvalidationResult, *reconciler.ResetResult,
// *classifier.SuggestResult, *classifier.ClassifyResult,
// *classifier.BatchResult, *parsers.ParseStats, *parsers.SeedResult,
// *models.Match, *matcher.MatchingConfig or a ledger movement list.
func (rg *ReportGenerator) GenerateReport(result interface{}, writer io.Writer) error {
	if result == nil {
		return errors.ValidationError(errors.CodeMissingField, "result", nil, nil)
	}

	switch rg.config.Format {
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return rg.generateConsoleReport(result, writer)
	}
}

// generateJSONReport encodes the result. Match lists are dropped when not requested.
func (rg *ReportGenerator) generateJSONReport(result interface{}, writer io.Writer) error {
	if pr, ok := result.(*reconciler.PeriodResult); ok && !rg.config.IncludeMatches {
		trimmed := *pr
		trimmed.Matches = nil
		result = &trimmed
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "encode_json", err)
	}
	return nil
}

// generateCSVReport writes one row per tabular item of the result
func (rg *ReportGenerator) generateCSVReport(result interface{}, writer io.Writer) error {
	headers, rows, err := csvRows(result)
	if err != nil {
		return err
	}

	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(headers); err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "write_csv_headers", err)
		}
	}
	if err := csvWriter.WriteAll(rows); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "write_csv_rows", err)
	}
	return nil
}

var matchHeaders = []string{
	"period", "match_id", "statement_id", "ledger_id", "estado",
	"score_total", "score_fecha", "score_valor", "score_descripcion", "confirmado", "reasons",
}

func matchRow(period string, m *models.Match) []string {
	return []string{
		period,
		strconv.FormatInt(m.ID, 10),
		strconv.FormatInt(m.StatementID, 10),
		idString(m.LedgerID),
		string(m.Estado),
		formatScore(m.Scores.Total),
		formatScore(m.Scores.Fecha),
		formatScore(m.Scores.Valor),
		formatScore(m.Scores.Descripcion),
		strconv.FormatBool(m.Confirmado),
		strings.Join(m.Reasons, "; "),
	}
}

var ledgerHeaders = []string{
	"id", "account_id", "date", "description", "reference", "amount", "third_party_id", "splits", "pending",
}

func ledgerRow(m *models.LedgerMovement) []string {
	return []string{
		strconv.FormatInt(m.ID, 10),
		strconv.FormatInt(m.AccountID, 10),
		m.Date.Format("2006-01-02"),
		m.Description,
		m.Reference,
		m.Amount.StringFixed(2),
		idString(m.EffectiveThirdParty()),
		strconv.Itoa(len(m.Splits)),
		strconv.FormatBool(m.IsPending()),
	}
}

var fanOutHeaders = []string{
	"period", "ledger_id", "match_id", "statement_id", "estado", "date", "description", "amount",
}

func fanOutRows(period string, cases []reconciler.OneToManyCase) [][]string {
	var rows [][]string
	for _, c := range cases {
		for _, s := range c.Statements {
			rows = append(rows, []string{
				period,
				strconv.FormatInt(c.LedgerID, 10),
				strconv.FormatInt(s.MatchID, 10),
				strconv.FormatInt(s.StatementID, 10),
				string(s.Estado),
				s.Date.Format("2006-01-02"),
				s.Description,
				s.Amount.StringFixed(2),
			})
		}
	}
	return rows
}

// csvRows flattens the result types that have a natural row shape
func csvRows(result interface{}) ([]string, [][]string, error) {
	switch r := result.(type) {
	case *reconciler.PeriodResult:
		rows := make([][]string, 0, len(r.Matches))
		for _, m := range r.Matches {
			rows = append(rows, matchRow(r.Stats.Period.String(), m))
		}
		return matchHeaders, rows, nil

	case *reconciler.BatchResult:
		var rows [][]string
		for _, pr := range r.Periods {
			for _, m := range pr.Matches {
				rows = append(rows, matchRow(pr.Stats.Period.String(), m))
			}
		}
		return matchHeaders, rows, nil

	case *reconciler.OneToManyReport:
		return fanOutHeaders, fanOutRows(r.Period.String(), r.Cases), nil

	case *reconciler.InvalidationResult:
		return fanOutHeaders, fanOutRows(r.Period.String(), r.Cases), nil

	case []*models.LedgerMovement:
		rows := make([][]string, 0, len(r))
		for _, m := range r {
			rows = append(rows, ledgerRow(m))
		}
		return ledgerHeaders, rows, nil

	case *classifier.SuggestResult:
		headers := []string{"rank", "movement_id", "description", "amount", "third_party_id",
			"similarity", "value_score", "bonus", "total", "signals"}
		rows := make([][]string, 0, len(r.Context))
		for i, c := range r.Context {
			rows = append(rows, []string{
				strconv.Itoa(i + 1),
				strconv.FormatInt(c.Movement.ID, 10),
				c.Movement.Description,
				c.Movement.Amount.StringFixed(2),
				idString(c.Movement.EffectiveThirdParty()),
				formatScore(c.Similarity),
				formatScore(c.ValueScore),
				formatScore(c.Bonus),
				formatScore(c.Total),
				strings.Join(c.Signals, "; "),
			})
		}
		return headers, rows, nil

	case *parsers.ParseStats:
		headers := []string{"file", "line", "column", "code", "value", "message"}
		rows := make([][]string, 0, len(r.Errors))
		for _, e := range r.Errors {
			rows = append(rows, []string{
				e.Context.File,
				strconv.Itoa(e.Context.Line),
				e.Context.Column,
				string(e.Code),
				e.Context.Value,
				e.Message,
			})
		}
		return headers, rows, nil
	}

	return nil, nil, errors.ValidationError(errors.CodeInvalidFormat, "result", fmt.Sprintf("%T", result), nil).
		WithSuggestion("use console or json output for this result")
}

// generateConsoleReport dispatches to the section printers
func (rg *ReportGenerator) generateConsoleReport(result interface{}, writer io.Writer) error {
	switch r := result.(type) {
	case *reconciler.PeriodResult:
		rg.printPeriodResult(r, writer)
	case *reconciler.BatchResult:
		rg.printBatchResult(r, writer)
	case *reconciler.IntegrityReport:
		fmt.Fprintf(writer, "=== INTEGRITY ===\n")
		rg.printIntegrity(r, writer)
	case *reconciler.OneToManyReport:
		fmt.Fprintf(writer, "ONE-TO-MANY REPORT %s\n", r.Period)
		rg.printFanOut(r.Cases, writer)
	case *reconciler.InvalidationResult:
		fmt.Fprintf(writer, "ONE-TO-MANY FIX %s\n", r.Period)
		fmt.Fprintf(writer, "Matches deleted: %d\n", r.Deleted)
		rg.printFanOut(r.Cases, writer)
	case *reconciler.ResetResult:
		fmt.Fprintf(writer, "RESET %s\n", r.Period)
		fmt.Fprintf(writer, "Matches deleted: %d\n", r.Deleted)
		if r.Totals != nil {
			rg.printTotals(r.Totals, writer)
		}
	case []*models.LedgerMovement:
		fmt.Fprintf(writer, "Ledger movements: %d\n", len(r))
		rg.printLedgerList(r, writer)
	case *classifier.SuggestResult:
		rg.printSuggestion(r, writer)
	case *classifier.ClassifyResult:
		status := "not classified"
		if r.Classified {
			status = "classified"
		}
		fmt.Fprintf(writer, "Movement %d %s: %s\n", r.Movement.ID, status, r.Reason)
		rg.printLedgerList([]*models.LedgerMovement{r.Movement}, writer)
	case *classifier.BatchResult:
		rg.printClassificationBatch(r, writer)
	case *parsers.ParseStats:
		rg.printParseStats(r, writer)
	case *parsers.SeedResult:
		fmt.Fprintf(writer, "SEEDS\n")
		fmt.Fprintf(writer, "Currencies:    %d\n", r.Currencies)
		fmt.Fprintf(writer, "Accounts:      %d\n", r.Accounts)
		fmt.Fprintf(writer, "Third parties: %d\n", r.ThirdParties)
		fmt.Fprintf(writer, "References:    %d\n", r.References)
		fmt.Fprintf(writer, "Aliases:       %d\n", r.Aliases)
		fmt.Fprintf(writer, "Rules:         %d\n", r.Rules)
	case *models.Match:
		fmt.Fprintf(writer, "MATCH %d\n", r.ID)
		rg.printMatchList([]*models.Match{r}, writer)
		if r.CreatedBy != "" {
			fmt.Fprintf(writer, "By: %s\n", r.CreatedBy)
		}
		if r.Notas != "" {
			fmt.Fprintf(writer, "Notes: %s\n", r.Notas)
		}
		for _, reason := range r.Reasons {
			fmt.Fprintf(writer, "  - %s\n", reason)
		}
	case *matcher.MatchingConfig:
		fmt.Fprintf(writer, "MATCHING CONFIG\n")
		fmt.Fprintf(writer, "tolerancia_valor:             %s\n", r.ToleranciaValor.String())
		fmt.Fprintf(writer, "similitud_descripcion_minima: %s\n", formatScore(r.SimilitudDescripcionMinima))
		fmt.Fprintf(writer, "peso_fecha:                   %s\n", formatScore(r.PesoFecha))
		fmt.Fprintf(writer, "peso_valor:                   %s\n", formatScore(r.PesoValor))
		fmt.Fprintf(writer, "peso_descripcion:             %s\n", formatScore(r.PesoDescripcion))
		fmt.Fprintf(writer, "score_minimo_exacto:          %s\n", formatScore(r.ScoreMinimoExacto))
		fmt.Fprintf(writer, "score_minimo_probable:        %s\n", formatScore(r.ScoreMinimoProbable))
	default:
		return errors.ValidationError(errors.CodeInvalidFormat, "result", fmt.Sprintf("%T", result), nil)
	}
	return nil
}

func (rg *ReportGenerator) printPeriodResult(r *reconciler.PeriodResult, writer io.Writer) {
	s := r.Stats
	fmt.Fprintf(writer, "RECONCILIATION REPORT %s\n", s.Period)
	fmt.Fprintf(writer, "Run: %s\n", s.RunID)
	fmt.Fprintf(writer, "Processing Duration: %v\n\n", s.Duration)

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	fmt.Fprintf(writer, "Statement lines:  %d\n", s.Statements)
	fmt.Fprintf(writer, "  Processed:      %d\n", s.Processed)
	fmt.Fprintf(writer, "  Kept:           %d\n", s.Kept)
	fmt.Fprintf(writer, "Ledger universe:  %d\n", s.UniverseSize)
	fmt.Fprintf(writer, "  Available:      %d\n", s.PoolSize)
	fmt.Fprintf(writer, "  Held elsewhere: %d\n", s.Held)
	fmt.Fprintf(writer, "Average score:    %.2f\n\n", s.AverageScore)

	fmt.Fprintf(writer, "=== BY ESTADO ===\n")
	processed := 0
	for _, n := range s.ByEstado {
		processed += n
	}
	for _, estado := range []models.MatchEstado{
		models.EstadoOK, models.EstadoProbable, models.EstadoManual, models.EstadoSinMatch, models.EstadoIgnorado,
	} {
		n := s.ByEstado[estado]
		fmt.Fprintf(writer, "%-10s %5d (%.1f%%)\n", estado, n, calculatePercentage(n, processed))
	}
	fmt.Fprintf(writer, "\n")

	if len(s.ByCurrency) > 0 {
		fmt.Fprintf(writer, "=== BY CURRENCY ===\n")
		codes := make([]string, 0, len(s.ByCurrency))
		for code := range s.ByCurrency {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			c := s.ByCurrency[code]
			fmt.Fprintf(writer, "%-5s movements: %d, matched: %d, amount: %s\n",
				code, c.Movements, c.Matched, c.Amount.StringFixed(2))
		}
		fmt.Fprintf(writer, "\n")
	}

	if r.Integrity != nil {
		fmt.Fprintf(writer, "=== INTEGRITY ===\n")
		rg.printIntegrity(r.Integrity, writer)
		fmt.Fprintf(writer, "\n")
	}

	if r.Totals != nil {
		fmt.Fprintf(writer, "=== TOTALS ===\n")
		rg.printTotals(r.Totals, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeMatches && len(r.Matches) > 0 {
		fmt.Fprintf(writer, "=== MATCHES ===\n")
		rg.printMatchList(r.Matches, writer)
	}
}

func (rg *ReportGenerator) printBatchResult(r *reconciler.BatchResult, writer io.Writer) {
	fmt.Fprintf(writer, "BATCH RECONCILIATION\n")
	fmt.Fprintf(writer, "Periods: %d ok, %d failed, elapsed %v\n\n", len(r.Periods), len(r.Failed), r.Elapsed)

	for _, pr := range r.Periods {
		s := pr.Stats
		balanced := "n/a"
		if pr.Integrity != nil {
			balanced = strconv.FormatBool(pr.Integrity.Balanced)
		}
		fmt.Fprintf(writer, "%s  processed: %d  OK: %d  PROBABLE: %d  SIN_MATCH: %d  balanced: %s\n",
			s.Period, s.Processed, s.ByEstado[models.EstadoOK], s.ByEstado[models.EstadoProbable],
			s.ByEstado[models.EstadoSinMatch], balanced)
	}

	if len(r.Failed) > 0 {
		fmt.Fprintf(writer, "\n=== FAILED PERIODS ===\n")
		periods := make([]string, 0, len(r.Failed))
		for p := range r.Failed {
			periods = append(periods, p)
		}
		sort.Strings(periods)
		for _, p := range periods {
			fmt.Fprintf(writer, "  - %s: %s\n", p, r.Failed[p])
		}
	}
}

func (rg *ReportGenerator) printIntegrity(r *reconciler.IntegrityReport, writer io.Writer) {
	fmt.Fprintf(writer, "Statement total:         %s\n", r.StatementTotal.StringFixed(2))
	fmt.Fprintf(writer, "Matched statement total: %s\n", r.MatchedStatementTotal.StringFixed(2))
	fmt.Fprintf(writer, "Matched ledger total:    %s\n", r.MatchedLedgerTotal.StringFixed(2))
	fmt.Fprintf(writer, "Difference:              %s\n", r.Difference.StringFixed(2))
	fmt.Fprintf(writer, "Balanced:                %t\n", r.Balanced)
	fmt.Fprintf(writer, "Active matches:          %d\n", r.ActiveMatches)
	fmt.Fprintf(writer, "Open statements:         %d\n", r.OpenStatements)
	if len(r.OneToMany) > 0 {
		fmt.Fprintf(writer, "One-to-many ledger movements: %d\n", len(r.OneToMany))
		rg.printFanOut(r.OneToMany, writer)
	}
}

func (rg *ReportGenerator) printFanOut(cases []reconciler.OneToManyCase, writer io.Writer) {
	if len(cases) == 0 {
		fmt.Fprintf(writer, "No ledger movement is shared by several statement lines\n")
		return
	}
	for _, c := range cases {
		fmt.Fprintf(writer, "  Ledger %d (%d statement lines):\n", c.LedgerID, len(c.Statements))
		for _, s := range c.Statements {
			fmt.Fprintf(writer, "    - statement %d [%s] %s %s %s (%s)\n",
				s.StatementID, s.Estado, s.Date.Format("2006-01-02"), s.Amount.StringFixed(2), s.Description, s.Period)
		}
	}
}

func (rg *ReportGenerator) printTotals(t *models.PeriodTotals, writer io.Writer) {
	source := "ledger universe"
	if t.FromMatches {
		source = "matches"
	}
	fmt.Fprintf(writer, "Inflows:   %s\n", t.Inflows.StringFixed(2))
	fmt.Fprintf(writer, "Outflows:  %s\n", t.Outflows.StringFixed(2))
	fmt.Fprintf(writer, "Net:       %s\n", t.Net.StringFixed(2))
	fmt.Fprintf(writer, "Movements: %d (from %s)\n", t.MovementCount, source)
}

func (rg *ReportGenerator) printMatchList(matches []*models.Match, writer io.Writer) {
	for i, m := range matches {
		if rg.truncated(i, len(matches), writer) {
			break
		}
		fmt.Fprintf(writer, "  %d. statement %d -> ledger %s [%s] score %.2f (fecha %.2f, valor %.2f, desc %.2f)\n",
			i+1, m.StatementID, idString(m.LedgerID), m.Estado,
			m.Scores.Total, m.Scores.Fecha, m.Scores.Valor, m.Scores.Descripcion)
	}
}

func (rg *ReportGenerator) printLedgerList(movements []*models.LedgerMovement, writer io.Writer) {
	for i, m := range movements {
		if rg.truncated(i, len(movements), writer) {
			break
		}
		status := "classified"
		if m.IsPending() {
			status = "pending"
		}
		fmt.Fprintf(writer, "  %d. ID: %d, Date: %s, Amount: %s, Desc: %s, Third party: %s, Splits: %d (%s)\n",
			i+1, m.ID, m.Date.Format("2006-01-02"), m.Amount.StringFixed(2), m.Description,
			idString(m.EffectiveThirdParty()), len(m.Splits), status)
	}
}

func (rg *ReportGenerator) printSuggestion(r *classifier.SuggestResult, writer io.Writer) {
	fmt.Fprintf(writer, "SUGGESTION FOR MOVEMENT %d\n", r.MovementID)
	if r.UnresolvedReference {
		fmt.Fprintf(writer, "Reference %s is not in the reference catalog\n", r.Reference)
	}

	if s := r.Suggestion; s != nil {
		fmt.Fprintf(writer, "Third party: %s\n", idString(s.ThirdPartyID))
		fmt.Fprintf(writer, "Cost center: %s\n", idString(s.CostCenterID))
		fmt.Fprintf(writer, "Concept:     %s\n", idString(s.ConceptID))
		fmt.Fprintf(writer, "Source:      %s", s.Source)
		if s.BasedOn != 0 {
			fmt.Fprintf(writer, " (movement %d, score %.2f)", s.BasedOn, s.Score)
		}
		fmt.Fprintf(writer, "\n")
	} else {
		fmt.Fprintf(writer, "No suggestion\n")
	}

	if len(r.Context) > 0 {
		fmt.Fprintf(writer, "\n=== SIMILAR MOVEMENTS ===\n")
		for i, c := range r.Context {
			fmt.Fprintf(writer, "  %d. [%.2f] ID: %d, %s %s, third party %s (sim %.2f, value %.0f, bonus %.0f; %s)\n",
				i+1, c.Total, c.Movement.ID, c.Movement.Amount.StringFixed(2), c.Movement.Description,
				idString(c.Movement.EffectiveThirdParty()), c.Similarity, c.ValueScore, c.Bonus,
				strings.Join(c.Signals, ", "))
		}
	}
}

func (rg *ReportGenerator) printClassificationBatch(r *classifier.BatchResult, writer io.Writer) {
	fmt.Fprintf(writer, "AUTO CLASSIFICATION\n")
	fmt.Fprintf(writer, "Run: %s\n", r.RunID)
	fmt.Fprintf(writer, "Processed:  %d\n", r.Processed)
	fmt.Fprintf(writer, "Classified: %d (%.1f%%)\n", r.Classified, calculatePercentage(r.Classified, r.Processed))
	fmt.Fprintf(writer, "Failed:     %d\n", r.Failed)
	if r.Unchanged > 0 {
		fmt.Fprintf(writer, "Unchanged:  %d\n", r.Unchanged)
	}
	reasons := make([]string, 0, len(r.ByReason))
	for reason := range r.ByReason {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(writer, "  %-22s %d\n", reason, r.ByReason[reason])
	}
	fmt.Fprintf(writer, "Duration:   %v\n", r.Duration)
}

func (rg *ReportGenerator) printParseStats(s *parsers.ParseStats, writer io.Writer) {
	fmt.Fprintf(writer, "IMPORT %s\n", s.File)
	fmt.Fprintf(writer, "Lines:      %d\n", s.TotalLines)
	fmt.Fprintf(writer, "Parsed:     %d\n", s.RecordsParsed)
	fmt.Fprintf(writer, "Valid:      %d\n", s.RecordsValid)
	if s.Duplicates > 0 {
		fmt.Fprintf(writer, "Duplicates: %d\n", s.Duplicates)
	}
	fmt.Fprintf(writer, "Errors:     %d\n", len(s.Errors))
	if s.HasErrors() {
		limit := rg.config.MaxListItems
		for _, msg := range s.SampleErrors(limit) {
			fmt.Fprintf(writer, "  - %s\n", msg)
		}
		if limit > 0 && len(s.Errors) > limit {
			fmt.Fprintf(writer, "  ... and %d more\n", len(s.Errors)-limit)
		}
	}
}

// truncated prints the overflow line once the list reaches MaxListItems
func (rg *ReportGenerator) truncated(i, total int, writer io.Writer) bool {
	max := rg.config.MaxListItems
	if max > 0 && i >= max {
		fmt.Fprintf(writer, "  ... and %d more\n", total-max)
		return true
	}
	return false
}

// Helper functions

func calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func idString(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
