package errors

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ParseContext locates a problem inside an imported file
type ParseContext struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   string `json:"column,omitempty"`
	Value    string `json:"value,omitempty"`
	Expected string `json:"expected,omitempty"`
}

// RowError is a file error tied to one row of an import. Recoverable rows
// are skipped and the import continues.
type RowError struct {
	*ReconcilerError
	Context     *ParseContext `json:"context"`
	Recoverable bool          `json:"recoverable"`
	Examples    []string      `json:"examples,omitempty"`
}

func (e *RowError) Error() string {
	msg := e.ReconcilerError.Error()
	if e.Context == nil {
		return msg
	}

	location := "at " + filepath.Base(e.Context.File)
	if e.Context.Line > 0 {
		location += fmt.Sprintf(":%d", e.Context.Line)
	}
	if e.Context.Column != "" {
		location += fmt.Sprintf(" column '%s'", e.Context.Column)
	}
	return msg + " " + location
}

// Unwrap exposes the embedded ReconcilerError to errors.As
func (e *RowError) Unwrap() error {
	return e.ReconcilerError
}

// Detailed renders the error over several lines for console output
func (e *RowError) Detailed() string {
	lines := []string{"ERROR: " + e.Message}
	if c := e.Context; c != nil {
		lines = append(lines, "  file: "+c.File)
		if c.Line > 0 {
			lines = append(lines, fmt.Sprintf("  line: %d", c.Line))
		}
		if c.Column != "" {
			lines = append(lines, "  column: "+c.Column)
		}
		if c.Value != "" {
			lines = append(lines, fmt.Sprintf("  value: '%s'", c.Value))
		}
		if c.Expected != "" {
			lines = append(lines, "  expected: "+c.Expected)
		}
	}
	if e.Suggestion != "" {
		lines = append(lines, "  suggestion: "+e.Suggestion)
	}
	if len(e.Examples) > 0 {
		lines = append(lines, "  examples: "+strings.Join(e.Examples, ", "))
	}
	return strings.Join(lines, "\n")
}

// NewRowError builds a recoverable file error with its location attached
func NewRowError(code ErrorCode, ctx *ParseContext, message string, cause error) *RowError {
	var base *ReconcilerError
	if cause != nil {
		base = Wrap(cause, CategoryFile, code, message)
	} else {
		base = New(CategoryFile, code, message)
	}

	if ctx != nil {
		base.WithContext("file", ctx.File).WithContext("line", ctx.Line)
		if ctx.Column != "" {
			base.WithContext("column", ctx.Column)
		}
		if ctx.Value != "" {
			base.WithContext("value", ctx.Value)
		}
	}

	return &RowError{ReconcilerError: base, Context: ctx, Recoverable: true}
}

func (e *RowError) WithSuggestion(suggestion string) *RowError {
	e.ReconcilerError.WithSuggestion(suggestion)
	return e
}

func (e *RowError) WithExamples(examples ...string) *RowError {
	e.Examples = examples
	return e
}

// InvalidAmountError reports a value that does not parse as a decimal amount
func InvalidAmountError(file string, line int, column, value string) *RowError {
	return NewRowError(CodeInvalidAmount, &ParseContext{
		File: file, Line: line, Column: column, Value: value, Expected: "decimal number",
	}, "invalid amount format", nil).
		WithExamples("1250.50", "-500.00", "1.250,50").
		WithSuggestion("remove currency symbols and keep a single decimal separator")
}

// InvalidDateError reports a value that matches none of the accepted layouts
func InvalidDateError(file string, line int, column, value string) *RowError {
	return NewRowError(CodeInvalidDate, &ParseContext{
		File: file, Line: line, Column: column, Value: value, Expected: "date in YYYY-MM-DD format",
	}, "invalid date format", nil).
		WithExamples("2025-01-15", "15/01/2025").
		WithSuggestion("use YYYY-MM-DD or DD/MM/YYYY")
}

// EmptyValueError reports a required cell left blank
func EmptyValueError(file string, line int, column string) *RowError {
	return NewRowError(CodeMissingField, &ParseContext{
		File: file, Line: line, Column: column, Expected: "non-empty value",
	}, "required field is empty", nil)
}

// OutOfPeriodError reports a statement row dated outside the period being imported
func OutOfPeriodError(file string, line int, value, period string) *RowError {
	return NewRowError(CodeOutOfRange, &ParseContext{
		File: file, Line: line, Column: "fecha", Value: value, Expected: "a date within " + period,
	}, "movement dated outside the period", nil).
		WithSuggestion("split the file by month or import it under the right period")
}

// MissingColumnError reports header columns the import cannot do without
func MissingColumnError(file string, expected, actual []string) *RowError {
	missing := findMissingColumns(expected, actual)
	err := NewRowError(CodeMissingColumn, &ParseContext{
		File: file, Line: 1, Expected: "columns: " + strings.Join(expected, ", "),
	}, "missing required columns: "+strings.Join(missing, ", "), nil).
		WithSuggestion("add the missing columns to the CSV header")
	err.Recoverable = false
	return err
}

// EncodingError reports a file that is not valid UTF-8
func EncodingError(file string, line int, cause error) *RowError {
	err := NewRowError(CodeInvalidFormat, &ParseContext{File: file, Line: line},
		"file encoding error", cause).
		WithSuggestion("save the file in UTF-8 encoding")
	err.Recoverable = false
	return err
}

// ParseErrorCollector gathers row errors until a limit is reached
type ParseErrorCollector struct {
	errors    []*RowError
	maxErrors int
}

func NewParseErrorCollector(maxErrors int) *ParseErrorCollector {
	return &ParseErrorCollector{maxErrors: maxErrors}
}

// Add records err and reports whether processing may continue
func (c *ParseErrorCollector) Add(err *RowError) bool {
	if err == nil {
		return true
	}
	c.errors = append(c.errors, err)
	if c.maxErrors > 0 && len(c.errors) >= c.maxErrors {
		return false
	}
	return err.Recoverable
}

func (c *ParseErrorCollector) HasErrors() bool {
	return len(c.errors) > 0
}

func (c *ParseErrorCollector) Errors() []*RowError {
	return c.errors
}

// Summary converts the collected rows into an ErrorSummary
func (c *ParseErrorCollector) Summary() *ErrorSummary {
	base := make([]*ReconcilerError, len(c.errors))
	for i, err := range c.errors {
		base[i] = err.ReconcilerError
	}
	return NewErrorSummary(base)
}

func findMissingColumns(expected, actual []string) []string {
	present := make(map[string]bool, len(actual))
	for _, col := range actual {
		present[strings.ToLower(strings.TrimSpace(col))] = true
	}

	var missing []string
	for _, col := range expected {
		if !present[strings.ToLower(strings.TrimSpace(col))] {
			missing = append(missing, col)
		}
	}
	return missing
}

// FormatRowErrors renders row errors grouped by file, detailing the first
// few of each file
func FormatRowErrors(errs []*RowError) string {
	switch len(errs) {
	case 0:
		return "no parse errors"
	case 1:
		return errs[0].Detailed()
	}

	const detailed = 3
	var files []string
	byFile := make(map[string][]*RowError)
	for _, err := range errs {
		file := "unknown"
		if err.Context != nil {
			file = filepath.Base(err.Context.File)
		}
		if _, seen := byFile[file]; !seen {
			files = append(files, file)
		}
		byFile[file] = append(byFile[file], err)
	}

	lines := []string{fmt.Sprintf("found %d parse errors:", len(errs))}
	for _, file := range files {
		fileErrs := byFile[file]
		lines = append(lines, "", fmt.Sprintf("file: %s (%d errors)", file, len(fileErrs)))
		for i, err := range fileErrs {
			if i == detailed {
				lines = append(lines, fmt.Sprintf("... and %d more", len(fileErrs)-detailed))
				break
			}
			lines = append(lines, err.Detailed())
		}
	}
	return strings.Join(lines, "\n")
}
