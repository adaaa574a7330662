package parsers

import (
	"strings"

	"bank-reconciliation-service/pkg/errors"
)

// StatementColumns names the header columns of a bank statement export
type StatementColumns struct {
	Date          string `json:"date" yaml:"date"`
	Description   string `json:"description" yaml:"description"`
	Reference     string `json:"reference" yaml:"reference"`
	Amount        string `json:"amount" yaml:"amount"`
	ForeignAmount string `json:"foreign_amount" yaml:"foreign_amount"`
}

// DefaultStatementColumns returns the column names of the bank's standard export
func DefaultStatementColumns() StatementColumns {
	return StatementColumns{
		Date:          "fecha",
		Description:   "descripcion",
		Reference:     "referencia",
		Amount:        "valor",
		ForeignAmount: "valor_moneda_extranjera",
	}
}

func (c StatementColumns) required() []string {
	return []string{c.Date, c.Description, c.Amount}
}

// Validate checks the required column names are set
func (c StatementColumns) Validate() error {
	return requireColumns(map[string]string{
		"date":        c.Date,
		"description": c.Description,
		"amount":      c.Amount,
	})
}

// LedgerColumns names the header columns of an accounting ledger export.
// Classification columns are optional; rows without them import as pending.
type LedgerColumns struct {
	Date          string `json:"date" yaml:"date"`
	Description   string `json:"description" yaml:"description"`
	Reference     string `json:"reference" yaml:"reference"`
	Amount        string `json:"amount" yaml:"amount"`
	ForeignAmount string `json:"foreign_amount" yaml:"foreign_amount"`
	Currency      string `json:"currency" yaml:"currency"`
	ThirdParty    string `json:"third_party" yaml:"third_party"`
	CostCenter    string `json:"cost_center" yaml:"cost_center"`
	Concept       string `json:"concept" yaml:"concept"`
}

// DefaultLedgerColumns returns the column names of the accounting export
func DefaultLedgerColumns() LedgerColumns {
	return LedgerColumns{
		Date:          "fecha",
		Description:   "descripcion",
		Reference:     "referencia",
		Amount:        "valor",
		ForeignAmount: "valor_moneda_extranjera",
		Currency:      "moneda_id",
		ThirdParty:    "tercero_id",
		CostCenter:    "centro_costo_id",
		Concept:       "concepto_id",
	}
}

func (c LedgerColumns) required() []string {
	return []string{c.Date, c.Description, c.Amount}
}

// Validate checks the required column names are set
func (c LedgerColumns) Validate() error {
	return requireColumns(map[string]string{
		"date":        c.Date,
		"description": c.Description,
		"amount":      c.Amount,
	})
}

func requireColumns(columns map[string]string) error {
	for setting, name := range columns {
		if strings.TrimSpace(name) == "" {
			return errors.ConfigurationError(errors.CodeInvalidConfig, setting+"_column", name, nil).
				WithSuggestion("name the CSV column holding the " + setting)
		}
	}
	return nil
}
