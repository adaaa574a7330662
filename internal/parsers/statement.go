package parsers

import (
	"context"
	"io"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// StatementParser reads one month of bank statement lines for an account
type StatementParser struct {
	*BaseParser
	columns StatementColumns
}

// NewStatementParser creates a StatementParser for the given dialect and column names
func NewStatementParser(config *ParseConfig, columns StatementColumns, log logger.Logger) (*StatementParser, error) {
	if err := columns.Validate(); err != nil {
		return nil, err
	}
	base, err := NewBaseParser(config, log)
	if err != nil {
		return nil, err
	}
	return &StatementParser{BaseParser: base, columns: columns}, nil
}

// ParseFile parses a statement export from disk
func (p *StatementParser) ParseFile(ctx context.Context, path string, period models.Period) ([]*models.StatementMovement, *ParseStats, error) {
	file, err := p.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	return p.Parse(ctx, file, path, period)
}

// Parse reads statement lines for period. Rows dated outside the period are
// rejected so a file never spills into a neighbouring month. The returned
// lines keep file order, which is the order matching processes them in.
func (p *StatementParser) Parse(ctx context.Context, r io.Reader, name string, period models.Period) ([]*models.StatementMovement, *ParseStats, error) {
	if err := period.Validate(); err != nil {
		return nil, nil, err
	}

	st := p.newState(ctx, name)
	reader := p.newReader(r)
	if err := p.readHeaders(reader, st, p.columns.required()); err != nil {
		return nil, st.stats, err
	}

	lines, err := parseRows(p.BaseParser, reader, st, func(record []string) (*models.StatementMovement, *errors.RowError) {
		return p.parseRecord(record, st, period)
	})
	if err != nil {
		return lines, st.stats, err
	}

	p.logger.WithFields(logger.Fields{
		"file":   name,
		"period": period.String(),
		"lines":  len(lines),
		"errors": len(st.stats.Errors),
	}).Info("Parsed bank statement")
	return lines, st.stats, nil
}

func (p *StatementParser) parseRecord(record []string, st *parseState, period models.Period) (*models.StatementMovement, *errors.RowError) {
	c := p.columns

	rawDate := st.field(record, c.Date)
	if rawDate == "" {
		return nil, errors.EmptyValueError(st.file, st.line, c.Date)
	}
	date, err := parseDate(rawDate)
	if err != nil {
		return nil, errors.InvalidDateError(st.file, st.line, c.Date, rawDate)
	}
	if !period.Contains(date) {
		return nil, errors.OutOfPeriodError(st.file, st.line, rawDate, period.String())
	}

	rawAmount := st.field(record, c.Amount)
	if rawAmount == "" {
		return nil, errors.EmptyValueError(st.file, st.line, c.Amount)
	}
	amount, err := p.parseAmount(rawAmount)
	if err != nil {
		return nil, errors.InvalidAmountError(st.file, st.line, c.Amount, rawAmount)
	}

	rawForeign := st.field(record, c.ForeignAmount)
	foreign, err := p.optionalAmount(rawForeign)
	if err != nil {
		return nil, errors.InvalidAmountError(st.file, st.line, c.ForeignAmount, rawForeign)
	}

	return &models.StatementMovement{
		AccountID:     period.AccountID,
		Year:          period.Year,
		Month:         period.Month,
		Date:          date,
		Description:   normalizeSpaces(st.field(record, c.Description)),
		Reference:     st.field(record, c.Reference),
		Amount:        amount,
		ForeignAmount: foreign,
	}, nil
}
