// Package parsers loads bank statement and ledger movements from CSV exports
// and catalog seeds from YAML files.
//
// CSV imports are row tolerant: a row that fails to parse is recorded in the
// returned ParseStats and skipped, while structural problems (missing file,
// missing required columns, invalid encoding) abort the import.
//
// Example usage:
//
//	p, err := NewStatementParser(DefaultParseConfig(), DefaultStatementColumns(), log)
//	lines, stats, err := p.ParseFile(ctx, "extracto-2025-01.csv", period)
//	if stats.HasErrors() {
//		fmt.Println(errors.FormatRowErrors(stats.Errors))
//	}
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// ParseConfig holds the CSV dialect shared by every import
type ParseConfig struct {
	Delimiter rune `json:"delimiter"`
	// DecimalComma reads amounts written as 1.234,56
	DecimalComma     bool `json:"decimal_comma"`
	ValidateEncoding bool `json:"validate_encoding"`
	SkipEmptyRows    bool `json:"skip_empty_rows"`
	// MaxErrors stops the import after that many bad rows; zero means no limit
	MaxErrors int `json:"max_errors"`
}

// DefaultParseConfig returns a comma separated, UTF-8, dot-decimal dialect
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:        ',',
		ValidateEncoding: true,
		SkipEmptyRows:    true,
		MaxErrors:        100,
	}
}

// Validate checks the dialect is usable
func (c *ParseConfig) Validate() error {
	if c.Delimiter == 0 || c.Delimiter == '"' || c.Delimiter == '\n' || c.Delimiter == '\r' {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "delimiter", string(c.Delimiter), nil)
	}
	if c.DecimalComma && c.Delimiter == ',' {
		return errors.ConfigurationError(errors.CodeConfigConflict, "decimal_comma", true,
			fmt.Errorf("decimal comma needs a delimiter other than ','"))
	}
	if c.MaxErrors < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max_errors", c.MaxErrors, nil)
	}
	return nil
}

// BaseParser provides the CSV plumbing shared by the statement and ledger parsers
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a BaseParser, falling back to the default dialect
func NewBaseParser(config *ParseConfig, log logger.Logger) (*BaseParser, error) {
	if config == nil {
		config = DefaultParseConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &BaseParser{
		config: config,
		logger: logger.OrGlobal(log).WithComponent("parser"),
	}, nil
}

// parseState tracks one pass over a CSV source
type parseState struct {
	ctx    context.Context
	file   string
	line   int
	header map[string]int
	stats  *ParseStats
	errs   *errors.ParseErrorCollector
}

func (bp *BaseParser) newState(ctx context.Context, file string) *parseState {
	if ctx == nil {
		ctx = context.Background()
	}
	return &parseState{
		ctx:   ctx,
		file:  file,
		stats: &ParseStats{File: file},
		errs:  errors.NewParseErrorCollector(bp.config.MaxErrors),
	}
}

// reject records a bad row and reports whether the import may go on
func (st *parseState) reject(err *errors.RowError) bool {
	st.stats.Errors = append(st.stats.Errors, err)
	return st.errs.Add(err)
}

// abort builds the error returned when the collector asks to stop
func (st *parseState) abort() error {
	return errors.Wrap(st.errs.Summary(), errors.CategoryFile, errors.CodeInvalidFormat,
		fmt.Sprintf("import of %s stopped after %d bad rows", st.file, len(st.stats.Errors))).
		WithContext("file_path", st.file).
		WithSuggestion("fix the reported rows and import the file again")
}

// field returns the trimmed cell for a column, or "" when the column is absent
func (st *parseState) field(record []string, column string) string {
	if column == "" {
		return ""
	}
	idx, ok := st.header[strings.ToLower(column)]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func (st *parseState) hasColumn(column string) bool {
	_, ok := st.header[strings.ToLower(column)]
	return column != "" && ok
}

// OpenFile opens a CSV file, checking its encoding first when configured
func (bp *BaseParser) OpenFile(path string) (*os.File, error) {
	bp.logger.WithField("file_path", path).Debug("Opening CSV file")

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeInvalidFormat, path, err)
	}

	if bp.config.ValidateEncoding {
		if err := validateEncoding(file, path); err != nil {
			_ = file.Close()
			bp.logger.WithError(err).WithField("file_path", path).Error("File encoding validation failed")
			return nil, err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			_ = file.Close()
			return nil, errors.FileError(errors.CodeInvalidFormat, path, err)
		}
	}

	return file, nil
}

func validateEncoding(r io.Reader, path string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.EncodingError(path, line, fmt.Errorf("invalid UTF-8 sequence"))
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeInvalidFormat, path, err)
	}
	return nil
}

func (bp *BaseParser) newReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comma = bp.config.Delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader
}

// readHeaders reads the header row and checks the required columns are present
func (bp *BaseParser) readHeaders(reader *csv.Reader, st *parseState, required []string) error {
	headers, err := reader.Read()
	if err == io.EOF {
		return errors.FileError(errors.CodeInvalidFormat, st.file, fmt.Errorf("file is empty")).
			WithSuggestion("export the file with a header row")
	}
	if err != nil {
		return errors.FileError(errors.CodeInvalidFormat, st.file, err)
	}
	st.line = 1

	st.header = make(map[string]int, len(headers))
	cleaned := make([]string, len(headers))
	for i, h := range headers {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		cleaned[i] = strings.TrimSpace(h)
		st.header[strings.ToLower(cleaned[i])] = i
	}

	for _, col := range required {
		if !st.hasColumn(col) {
			bp.logger.WithFields(logger.Fields{
				"file":     st.file,
				"required": required,
				"headers":  cleaned,
			}).Error("Required columns are missing")
			return errors.MissingColumnError(st.file, required, cleaned)
		}
	}
	return nil
}

// readRecord returns the next non-empty record, io.EOF at the end of input
func (bp *BaseParser) readRecord(reader *csv.Reader, st *parseState) ([]string, error) {
	for {
		if err := st.ctx.Err(); err != nil {
			return nil, errors.InternalError(errors.CodeUnexpectedError, "csv_parsing", err)
		}

		record, err := reader.Read()
		if err == io.EOF {
			return nil, err
		}
		st.stats.TotalLines++
		if err != nil {
			st.line++
			return nil, errors.NewRowError(errors.CodeInvalidFormat,
				&errors.ParseContext{File: st.file, Line: st.line}, "malformed CSV row", err)
		}
		st.line, _ = reader.FieldPos(0)
		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}
		return record, nil
	}
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// parseAmount reads an amount cell honoring the configured decimal separator
func (bp *BaseParser) parseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	if negative {
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	s = strings.ReplaceAll(s, " ", "")
	if bp.config.DecimalComma {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}

	d, err := models.ParseDecimalFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// optionalAmount is like parseAmount but treats a blank cell as absent
func (bp *BaseParser) optionalAmount(raw string) (*decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := bp.parseAmount(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseDate(raw string) (time.Time, error) {
	t, err := models.ParseTimeWithFormats(raw)
	if err != nil {
		return time.Time{}, err
	}
	return models.DateOnly(t), nil
}

// ParseStats summarizes one import
type ParseStats struct {
	File          string             `json:"file"`
	TotalLines    int                `json:"total_lines"`
	RecordsParsed int                `json:"records_parsed"`
	RecordsValid  int                `json:"records_valid"`
	Duplicates    int                `json:"duplicates,omitempty"`
	Errors        []*errors.RowError `json:"errors,omitempty"`
}

func (ps *ParseStats) HasErrors() bool {
	return len(ps.Errors) > 0
}

func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, len(ps.Errors))
}

// SampleErrors returns up to max error messages for logging
func (ps *ParseStats) SampleErrors(max int) []string {
	limit := len(ps.Errors)
	if max > 0 && max < limit {
		limit = max
	}
	samples := make([]string, 0, limit)
	for _, err := range ps.Errors[:limit] {
		samples = append(samples, err.Error())
	}
	return samples
}

// parseRows drives the record loop shared by every import. Bad rows are
// collected in the stats; the loop stops early only when the collector says so.
func parseRows[T any](bp *BaseParser, reader *csv.Reader, st *parseState, parseRow func([]string) (T, *errors.RowError)) ([]T, error) {
	var out []T
	for {
		record, err := bp.readRecord(reader, st)
		if err == io.EOF {
			break
		}
		if rowErr, ok := err.(*errors.RowError); ok {
			if !st.reject(rowErr) {
				return out, st.abort()
			}
			continue
		}
		if err != nil {
			return out, err
		}

		st.stats.RecordsParsed++
		item, rowErr := parseRow(record)
		if rowErr != nil {
			if !st.reject(rowErr) {
				return out, st.abort()
			}
			continue
		}
		out = append(out, item)
		st.stats.RecordsValid++
	}

	if st.stats.HasErrors() {
		bp.logger.WithFields(logger.Fields{
			"file":    st.file,
			"errors":  len(st.stats.Errors),
			"samples": st.stats.SampleErrors(3),
		}).Warn("Skipped invalid rows")
	}
	return out, nil
}
