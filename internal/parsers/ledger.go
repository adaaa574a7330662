package parsers

import (
	"context"
	"io"
	"strconv"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// LedgerParser reads accounting ledger movements for an account
type LedgerParser struct {
	*BaseParser
	columns LedgerColumns
}

// NewLedgerParser creates a LedgerParser for the given dialect and column names
func NewLedgerParser(config *ParseConfig, columns LedgerColumns, log logger.Logger) (*LedgerParser, error) {
	if err := columns.Validate(); err != nil {
		return nil, err
	}
	base, err := NewBaseParser(config, log)
	if err != nil {
		return nil, err
	}
	return &LedgerParser{BaseParser: base, columns: columns}, nil
}

// LedgerImport carries the values applied to every parsed row
type LedgerImport struct {
	AccountID int64
	// CurrencyID is used for rows without a currency cell
	CurrencyID int64
}

// ParseFile parses a ledger export from disk
func (p *LedgerParser) ParseFile(ctx context.Context, path string, opts LedgerImport) ([]*models.LedgerMovement, *ParseStats, error) {
	file, err := p.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	return p.Parse(ctx, file, path, opts)
}

// Parse reads ledger movements. A row carrying any classification cell gets a
// single split for the whole amount; rows without one import unclassified.
func (p *LedgerParser) Parse(ctx context.Context, r io.Reader, name string, opts LedgerImport) ([]*models.LedgerMovement, *ParseStats, error) {
	if opts.AccountID <= 0 {
		return nil, nil, errors.ValidationError(errors.CodeMissingField, "account_id", opts.AccountID, nil)
	}

	st := p.newState(ctx, name)
	reader := p.newReader(r)
	if err := p.readHeaders(reader, st, p.columns.required()); err != nil {
		return nil, st.stats, err
	}

	movements, err := parseRows(p.BaseParser, reader, st, func(record []string) (*models.LedgerMovement, *errors.RowError) {
		return p.parseRecord(record, st, opts)
	})
	if err != nil {
		return movements, st.stats, err
	}

	p.logger.WithFields(logger.Fields{
		"file":       name,
		"account_id": opts.AccountID,
		"movements":  len(movements),
		"errors":     len(st.stats.Errors),
	}).Info("Parsed ledger export")
	return movements, st.stats, nil
}

func (p *LedgerParser) parseRecord(record []string, st *parseState, opts LedgerImport) (*models.LedgerMovement, *errors.RowError) {
	c := p.columns

	rawDate := st.field(record, c.Date)
	if rawDate == "" {
		return nil, errors.EmptyValueError(st.file, st.line, c.Date)
	}
	date, err := parseDate(rawDate)
	if err != nil {
		return nil, errors.InvalidDateError(st.file, st.line, c.Date, rawDate)
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

	ids := make(map[string]*int64, 4)
	for _, col := range []string{c.Currency, c.ThirdParty, c.CostCenter, c.Concept} {
		id, rowErr := parseID(st, record, col)
		if rowErr != nil {
			return nil, rowErr
		}
		ids[col] = id
	}

	m := &models.LedgerMovement{
		AccountID:     opts.AccountID,
		Date:          date,
		Description:   normalizeSpaces(st.field(record, c.Description)),
		Reference:     st.field(record, c.Reference),
		Amount:        amount,
		CurrencyID:    opts.CurrencyID,
		ForeignAmount: foreign,
		ThirdPartyID:  ids[c.ThirdParty],
	}
	if cur := ids[c.Currency]; cur != nil {
		m.CurrencyID = *cur
	}

	if ids[c.ThirdParty] != nil || ids[c.CostCenter] != nil || ids[c.Concept] != nil {
		m.Splits = []models.DetailSplit{{
			Amount:       amount,
			ThirdPartyID: ids[c.ThirdParty],
			CostCenterID: ids[c.CostCenter],
			ConceptID:    ids[c.Concept],
		}}
	}
	return m, nil
}

// parseID reads an optional positive catalog id
func parseID(st *parseState, record []string, column string) (*int64, *errors.RowError) {
	raw := st.field(record, column)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, errors.NewRowError(errors.CodeInvalidFormat, &errors.ParseContext{
			File: st.file, Line: st.line, Column: column, Value: raw, Expected: "positive integer id",
		}, "invalid catalog id", err)
	}
	return &id, nil
}
