package parsers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/store/memory"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

var january = models.Period{AccountID: 1, Year: 2025, Month: 1}

// createTempFile writes content under the test's temp dir
func createTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

func newStatementParser(t *testing.T, config *ParseConfig) *StatementParser {
	t.Helper()
	p, err := NewStatementParser(config, DefaultStatementColumns(), logger.Discard())
	if err != nil {
		t.Fatalf("NewStatementParser: %v", err)
	}
	return p
}

func TestParseConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  ParseConfig
		wantErr bool
	}{
		{"default", *DefaultParseConfig(), false},
		{"semicolon with decimal comma", ParseConfig{Delimiter: ';', DecimalComma: true}, false},
		{"comma with decimal comma", ParseConfig{Delimiter: ',', DecimalComma: true}, true},
		{"no delimiter", ParseConfig{}, true},
		{"quote delimiter", ParseConfig{Delimiter: '"'}, true},
		{"negative max errors", ParseConfig{Delimiter: ',', MaxErrors: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.IsCategory(err, errors.CategoryConfiguration) {
				t.Errorf("expected a configuration error, got %v", err)
			}
		})
	}
}

func TestColumns_Validate(t *testing.T) {
	cols := DefaultStatementColumns()
	if err := cols.Validate(); err != nil {
		t.Fatalf("default statement columns invalid: %v", err)
	}
	cols.Amount = " "
	if err := cols.Validate(); err == nil {
		t.Error("expected an error for a blank amount column")
	}

	ledger := DefaultLedgerColumns()
	ledger.ThirdParty = ""
	if err := ledger.Validate(); err != nil {
		t.Errorf("classification columns are optional: %v", err)
	}
}

func TestStatementParser_Parse(t *testing.T) {
	content := "\ufefffecha,descripcion,referencia,valor,valor_moneda_extranjera\n" +
		"2025-01-10,  RETIRO   TRASLA ,000123,100000,\n" +
		"\n" +
		"15/01/2025,PAGO PROVEEDOR,,-50000.50,-12.40\n" +
		"2025-02-01,FEBRERO,,10,\n" +
		"2025-01-20,MALO,,abc,\n" +
		"2025-01-21,SIN VALOR,,,\n" +
		"2025-01-31,\"GMF, 4X1000\",,(400),\n"

	p := newStatementParser(t, nil)
	lines, stats, err := p.Parse(context.Background(), strings.NewReader(content), "extracto.csv", january)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if stats.RecordsParsed != 6 || stats.RecordsValid != 3 || len(stats.Errors) != 3 {
		t.Errorf("unexpected stats: %s", stats)
	}

	first := lines[0]
	if first.Description != "RETIRO TRASLA" {
		t.Errorf("description not normalized: %q", first.Description)
	}
	if first.Reference != "000123" {
		t.Errorf("reference should be kept verbatim, got %q", first.Reference)
	}
	if first.AccountID != 1 || first.Year != 2025 || first.Month != 1 {
		t.Errorf("period not applied: %+v", first)
	}
	if first.ForeignAmount != nil {
		t.Error("blank foreign amount should stay nil")
	}

	second := lines[1]
	if !second.Date.Equal(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("DD/MM/YYYY date parsed as %s", second.Date)
	}
	if second.ForeignAmount == nil || !second.ForeignAmount.Equal(decimal.RequireFromString("-12.40")) {
		t.Errorf("foreign amount = %v", second.ForeignAmount)
	}

	if !lines[2].Amount.Equal(decimal.NewFromInt(-400)) {
		t.Errorf("parenthesized amount should be negative, got %s", lines[2].Amount)
	}

	codes := map[errors.ErrorCode]int{}
	for _, e := range stats.Errors {
		codes[e.Code]++
	}
	if codes[errors.CodeOutOfRange] != 1 || codes[errors.CodeInvalidAmount] != 1 || codes[errors.CodeMissingField] != 1 {
		t.Errorf("unexpected error codes: %v", codes)
	}
	if line := stats.Errors[0].Context.Line; line != 5 {
		t.Errorf("out of period row reported at line %d, want 5", line)
	}
}

func TestStatementParser_DecimalComma(t *testing.T) {
	content := "fecha;descripcion;valor\n2025-01-03;ABONO;1.234.567,89\n"

	p := newStatementParser(t, &ParseConfig{Delimiter: ';', DecimalComma: true})
	lines, _, err := p.Parse(context.Background(), strings.NewReader(content), "x.csv", january)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(lines) != 1 || !lines[0].Amount.Equal(decimal.RequireFromString("1234567.89")) {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestStatementParser_MissingColumns(t *testing.T) {
	p := newStatementParser(t, nil)
	_, _, err := p.Parse(context.Background(), strings.NewReader("fecha,detalle\n2025-01-01,x\n"), "x.csv", january)

	re, ok := errors.AsReconcilerError(err)
	if !ok || re.Code != errors.CodeMissingColumn {
		t.Fatalf("expected missing column error, got %v", err)
	}
}

func TestStatementParser_EmptyInput(t *testing.T) {
	p := newStatementParser(t, nil)
	_, _, err := p.Parse(context.Background(), strings.NewReader(""), "x.csv", january)
	if !errors.IsCategory(err, errors.CategoryFile) {
		t.Fatalf("expected file error, got %v", err)
	}
}

func TestStatementParser_StopsAfterMaxErrors(t *testing.T) {
	var b strings.Builder
	b.WriteString("fecha,descripcion,valor\n")
	for i := 0; i < 5; i++ {
		b.WriteString("bad,X,1\n")
	}

	p := newStatementParser(t, &ParseConfig{Delimiter: ',', MaxErrors: 2})
	_, stats, err := p.Parse(context.Background(), strings.NewReader(b.String()), "x.csv", january)
	if err == nil {
		t.Fatal("expected the import to stop")
	}
	if len(stats.Errors) != 2 {
		t.Errorf("expected 2 collected errors, got %d", len(stats.Errors))
	}
}

func TestStatementParser_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newStatementParser(t, nil)
	_, _, err := p.Parse(ctx, strings.NewReader("fecha,descripcion,valor\n2025-01-01,X,1\n"), "x.csv", january)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestStatementParser_ParseFile(t *testing.T) {
	p := newStatementParser(t, nil)

	path := createTempFile(t, "extracto.csv", "fecha,descripcion,valor\n2025-01-02,ABONO,10\n")
	lines, _, err := p.ParseFile(context.Background(), path, january)
	if err != nil || len(lines) != 1 {
		t.Fatalf("ParseFile: %v (%d lines)", err, len(lines))
	}

	_, _, err = p.ParseFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), january)
	re, ok := errors.AsReconcilerError(err)
	if !ok || re.Code != errors.CodeFileNotFound {
		t.Errorf("expected file not found, got %v", err)
	}

	bad := createTempFile(t, "latin1.csv", "fecha,descripcion,valor\n2025-01-02,ABONO \xf1,10\n")
	_, _, err = p.ParseFile(context.Background(), bad, january)
	if !errors.IsCategory(err, errors.CategoryFile) {
		t.Errorf("expected encoding error, got %v", err)
	}
}

func TestLedgerParser_Parse(t *testing.T) {
	content := "fecha,descripcion,referencia,valor,moneda_id,tercero_id,centro_costo_id,concepto_id\n" +
		"2025-01-10,TRASLADO HACIA CUENTA,,100000,,,,\n" +
		"2025-01-15,PAGO ACME,FAC-9,-50000,2,77,3,4\n" +
		"2025-01-16,PAGO ACME,FAC-9,-50000,,x,,\n"

	p, err := NewLedgerParser(nil, DefaultLedgerColumns(), logger.Discard())
	if err != nil {
		t.Fatalf("NewLedgerParser: %v", err)
	}

	movements, stats, err := p.Parse(context.Background(), strings.NewReader(content), "sistema.csv",
		LedgerImport{AccountID: 1, CurrencyID: 1})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(movements) != 2 || len(stats.Errors) != 1 {
		t.Fatalf("expected 2 movements and 1 error, got %d/%d", len(movements), len(stats.Errors))
	}

	pending := movements[0]
	if len(pending.Splits) != 0 || !pending.IsPending() || pending.CurrencyID != 1 {
		t.Errorf("unclassified row imported wrong: %+v", pending)
	}

	classified := movements[1]
	if classified.CurrencyID != 2 {
		t.Errorf("currency column should win, got %d", classified.CurrencyID)
	}
	if len(classified.Splits) != 1 || classified.IsPending() {
		t.Fatalf("classified row should carry one complete split: %+v", classified.Splits)
	}
	if !models.IDEqual(classified.ThirdPartyID, models.IDPtr(77)) {
		t.Errorf("header third party = %v", classified.ThirdPartyID)
	}
	if err := classified.Validate(); err != nil {
		t.Errorf("classified movement invalid: %v", err)
	}

	if stats.Errors[0].Context.Column != "tercero_id" {
		t.Errorf("bad id reported on column %q", stats.Errors[0].Context.Column)
	}

	if _, _, err := p.Parse(context.Background(), strings.NewReader(content), "x.csv", LedgerImport{}); err == nil {
		t.Error("expected an error without an account")
	}
}

func TestPreprocessor(t *testing.T) {
	day := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	pp := NewPreprocessor(nil)

	ledger := []*models.LedgerMovement{
		{AccountID: 1, Date: day, Description: "pago  acme", Amount: decimal.RequireFromString("10.004")},
		{AccountID: 1, Date: day, Description: "PAGO ACME", Amount: decimal.RequireFromString("10.001")},
		{AccountID: 1, Date: day, Description: "PAGO ACME", Amount: decimal.RequireFromString("11")},
	}
	kept, dropped := pp.Ledger(ledger)
	if len(kept) != 2 || dropped != 1 {
		t.Fatalf("expected 2 kept and 1 dropped, got %d/%d", len(kept), dropped)
	}
	if kept[0].Description != "pago acme" || !kept[0].Amount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("unexpected normalization: %+v", kept[0])
	}

	lines := []*models.StatementMovement{
		{Description: "GMF", Amount: decimal.NewFromInt(-4)},
		{Description: "GMF", Amount: decimal.NewFromInt(-4)},
	}
	if got := pp.Statements(lines); len(got) != 2 {
		t.Error("identical bank lines must all be kept")
	}

	upper := NewPreprocessor(&PreprocessingConfig{DecimalPlaces: -1, UppercaseText: true})
	kept, _ = upper.Ledger([]*models.LedgerMovement{{Description: " a  b ", Amount: decimal.RequireFromString("1.005")}})
	if kept[0].Description != "A B" || kept[0].Amount.String() != "1.005" {
		t.Errorf("unexpected result: %+v", kept[0])
	}
}

const seedYAML = `
currencies:
  - {id: 1, code: COP}
accounts:
  - {id: 1, name: Corriente, type: corriente, currency_id: 1}
third_parties:
  - {id: 9, name: BANCO, document: "${SEED_NIT}"}
references:
  - {reference: "900123456", third_party_id: 9, description: PAGO TC MASTER}
aliases:
  - {account_id: 1, patron: RETIRO, reemplazo: TRASLADO HACIA CUENTA}
rules:
  - {patron: GMF, kind: contains, third_party_id: 9, concept_id: 4}
  - {account_id: 1, patron: INTERESES, kind: starts_with, concept_id: 5}
`

func TestSeeds_LoadAndApply(t *testing.T) {
	t.Setenv("SEED_NIT", "860002964")
	path := createTempFile(t, "seeds.yaml", seedYAML)

	seeds, err := LoadSeeds(path)
	if err != nil {
		t.Fatalf("LoadSeeds: %v", err)
	}
	if len(seeds.Rules) != 2 || seeds.Rules[1].AccountID == nil || *seeds.Rules[1].AccountID != 1 {
		t.Fatalf("rules decoded wrong: %+v", seeds.Rules)
	}
	if seeds.ThirdParties[0].Document != "860002964" {
		t.Errorf("environment not expanded: %q", seeds.ThirdParties[0].Document)
	}

	ctx := context.Background()
	repo := memory.New()
	res, err := seeds.Apply(ctx, repo, logger.Discard())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Rules != 2 || res.Aliases != 1 || res.References != 1 || res.Accounts != 1 {
		t.Errorf("unexpected result: %+v", res)
	}

	ref, err := repo.FindReference(ctx, "900123456")
	if err != nil || ref == nil || ref.ThirdPartyID != 9 {
		t.Errorf("reference not stored: %v %v", ref, err)
	}
	aliases, err := repo.ListAliases(ctx, 1)
	if err != nil || len(aliases) != 1 {
		t.Errorf("aliases not stored: %v %v", aliases, err)
	}
}

func TestSeeds_Invalid(t *testing.T) {
	seeds, err := DecodeSeeds(strings.NewReader("rules:\n  - {patron: X, kind: regex}\n"))
	if err != nil {
		t.Fatalf("DecodeSeeds: %v", err)
	}
	_, err = seeds.Apply(context.Background(), memory.New(), logger.Discard())
	if !errors.IsCategory(err, errors.CategoryValidation) {
		t.Errorf("expected validation error, got %v", err)
	}

	if _, err := DecodeSeeds(strings.NewReader("rules: [")); !errors.IsCategory(err, errors.CategoryFile) {
		t.Errorf("expected file error for broken YAML, got %v", err)
	}

	if _, err := LoadSeeds(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
