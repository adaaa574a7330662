package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMatchEstado_IsValid(t *testing.T) {
	tests := []struct {
		estado MatchEstado
		valid  bool
		active bool
	}{
		{EstadoOK, true, true},
		{EstadoProbable, true, true},
		{EstadoManual, true, true},
		{EstadoSinMatch, true, false},
		{EstadoIgnorado, true, false},
		{"IGNORED", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.estado), func(t *testing.T) {
			if got := tt.estado.IsValid(); got != tt.valid {
				t.Errorf("MatchEstado.IsValid() = %v, want %v", got, tt.valid)
			}
			if got := tt.estado.IsActive(); got != tt.active {
				t.Errorf("MatchEstado.IsActive() = %v, want %v", got, tt.active)
			}
		})
	}
}

func TestParseMatchEstado(t *testing.T) {
	got, err := ParseMatchEstado(" probable ")
	if err != nil || got != EstadoProbable {
		t.Errorf("Expected PROBABLE, got %q (%v)", got, err)
	}
	if _, err := ParseMatchEstado("maybe"); err == nil {
		t.Error("Expected error for unknown state")
	}
}

func TestPeriod(t *testing.T) {
	p, err := NewPeriod(1, 2025, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Contains(day(2025, 1, 31)) {
		t.Error("Expected Jan 31 to be inside the period")
	}
	if p.Contains(day(2025, 2, 1)) {
		t.Error("Expected Feb 1 to be outside the period")
	}
	if p.String() != "1/2025-01" {
		t.Errorf("Expected '1/2025-01', got %s", p.String())
	}

	if _, err := NewPeriod(1, 2025, 13); err == nil {
		t.Error("Expected error for month 13")
	}
	if _, err := NewPeriod(0, 2025, 1); err == nil {
		t.Error("Expected error for empty account")
	}
}

func TestEnsureDefaultSplit(t *testing.T) {
	tp := IDPtr(9)
	m := &LedgerMovement{ID: 4, AccountID: 1, Date: day(2025, 1, 2), Amount: decimal.NewFromInt(-500), ThirdPartyID: tp}

	splits := EnsureDefaultSplit(m)
	if len(splits) != 1 {
		t.Fatalf("Expected one default split, got %d", len(splits))
	}
	if !splits[0].Amount.Equal(m.Amount) {
		t.Errorf("Expected split amount %s, got %s", m.Amount, splits[0].Amount)
	}
	if splits[0].MovementID != 4 || !IDEqual(splits[0].ThirdPartyID, tp) {
		t.Errorf("Expected split to carry movement id and third party, got %+v", splits[0])
	}

	// second call keeps the existing split
	m.Splits[0].ConceptID = IDPtr(3)
	again := EnsureDefaultSplit(m)
	if len(again) != 1 || again[0].ConceptID == nil {
		t.Error("Expected existing split to be preserved")
	}
}

func TestLedgerMovement_Validate(t *testing.T) {
	base := LedgerMovement{AccountID: 1, Date: day(2025, 1, 2), Amount: decimal.NewFromInt(100)}

	tests := []struct {
		name    string
		splits  []DetailSplit
		wantErr bool
	}{
		{"no splits", nil, false},
		{"exact sum", []DetailSplit{{Amount: decimal.NewFromInt(60)}, {Amount: decimal.NewFromInt(40)}}, false},
		{"within tolerance", []DetailSplit{{Amount: decimal.RequireFromString("99.995")}}, false},
		{"off by one", []DetailSplit{{Amount: decimal.NewFromInt(99)}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base
			m.Splits = tt.splits
			err := m.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLedgerMovement_IsPending(t *testing.T) {
	full := DetailSplit{ThirdPartyID: IDPtr(1), CostCenterID: IDPtr(2), ConceptID: IDPtr(3)}
	noThird := DetailSplit{CostCenterID: IDPtr(2), ConceptID: IDPtr(3)}
	noConcept := DetailSplit{ThirdPartyID: IDPtr(1), CostCenterID: IDPtr(2)}

	tests := []struct {
		name    string
		header  *int64
		splits  []DetailSplit
		pending bool
	}{
		{"no splits", nil, nil, true},
		{"fully classified", nil, []DetailSplit{full}, false},
		{"third party from header", IDPtr(1), []DetailSplit{noThird}, false},
		{"missing third party", nil, []DetailSplit{noThird}, true},
		{"one split missing concept", nil, []DetailSplit{full, noConcept}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &LedgerMovement{ThirdPartyID: tt.header, Splits: tt.splits}
			if got := m.IsPending(); got != tt.pending {
				t.Errorf("IsPending() = %v, want %v", got, tt.pending)
			}
		})
	}
}

func TestLedgerMovement_MirrorAndClone(t *testing.T) {
	m := &LedgerMovement{Splits: []DetailSplit{{ThirdPartyID: IDPtr(7)}}}
	m.MirrorThirdParty()
	if m.ThirdPartyID == nil || *m.ThirdPartyID != 7 {
		t.Fatalf("Expected header third party 7, got %v", m.ThirdPartyID)
	}

	c := m.Clone()
	*c.Splits[0].ThirdPartyID = 8
	if *m.Splits[0].ThirdPartyID != 7 {
		t.Error("Expected clone to be independent of the original")
	}

	multi := &LedgerMovement{Splits: []DetailSplit{{ThirdPartyID: IDPtr(1)}, {ThirdPartyID: IDPtr(2)}}}
	multi.MirrorThirdParty()
	if multi.ThirdPartyID != nil {
		t.Error("Expected multi-split header to stay untouched")
	}
	if got := multi.EffectiveThirdParty(); got == nil || *got != 1 {
		t.Errorf("Expected effective third party 1, got %v", got)
	}
}

func TestMatch_Validate(t *testing.T) {
	ledger := IDPtr(2)
	tests := []struct {
		name    string
		match   Match
		wantErr bool
	}{
		{"ok with ledger", Match{StatementID: 1, LedgerID: ledger, Estado: EstadoOK}, false},
		{"ok without ledger", Match{StatementID: 1, Estado: EstadoOK}, true},
		{"sin match", Match{StatementID: 1, Estado: EstadoSinMatch}, false},
		{"ignored with ledger", Match{StatementID: 1, LedgerID: ledger, Estado: EstadoIgnorado}, true},
		{"unknown state", Match{StatementID: 1, Estado: "X"}, true},
		{"missing statement", Match{Estado: EstadoSinMatch}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.match.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClassificationRule_Matches(t *testing.T) {
	tests := []struct {
		kind  MatchKind
		text  string
		match bool
	}{
		{MatchContains, "pago nomina enero", true},
		{MatchContains, "PAGO PROVEEDOR", false},
		{MatchStartsWith, "nomina enero", true},
		{MatchStartsWith, "PAGO NOMINA", false},
		{MatchExact, " nomina ", true},
		{MatchExact, "NOMINA ENERO", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+tt.text, func(t *testing.T) {
			r := ClassificationRule{Patron: "Nomina", Kind: tt.kind}
			if got := r.Matches(tt.text); got != tt.match {
				t.Errorf("Matches(%q) = %v, want %v", tt.text, got, tt.match)
			}
		})
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2025, 1, 10, 23, 0, 0, 0, time.UTC)
	b := time.Date(2025, 1, 11, 1, 0, 0, 0, time.UTC)
	if got := DaysBetween(a, b); got != 1 {
		t.Errorf("Expected 1 day, got %d", got)
	}
	if got := DaysBetween(b, b); got != 0 {
		t.Errorf("Expected 0 days, got %d", got)
	}
}

func TestIsNumericReference(t *testing.T) {
	if !IsNumericReference("123456789") {
		t.Error("Expected digits to be numeric")
	}
	if IsNumericReference("12A") || IsNumericReference("") {
		t.Error("Expected non-digit and empty references to be rejected")
	}
}

func TestParseDecimalFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"100.50", "100.5", false},
		{"$1,234.56", "1234.56", false},
		{"-100000", "-100000", false},
		{"", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecimalFromString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDecimalFromString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.String() != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got.String())
			}
		})
	}
}

func TestLedgerMovement_JSON(t *testing.T) {
	fa := decimal.NewFromInt(25)
	m := LedgerMovement{ID: 1, AccountID: 2, Date: day(2025, 1, 3), Amount: decimal.RequireFromString("100.10"), ForeignAmount: &fa}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["amount"] != "100.1" {
		t.Errorf("Expected decimal amount as string, got %v", decoded["amount"])
	}
	if _, ok := decoded["splits"]; ok {
		t.Error("Expected empty splits to be omitted")
	}
}
