// Package models holds the reconciliation domain: statement lines ("extracto"),
// ledger movements ("sistema") with their detail splits, the matches linking
// them, and the rules and catalogs used to classify ledger movements.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SplitSumTolerance is the maximum allowed gap between a header amount and the sum of its splits.
var SplitSumTolerance = decimal.NewFromFloat(0.01)

// Period identifies one calendar month of one bank account.
type Period struct {
	AccountID int64 `json:"account_id"`
	Year      int   `json:"year"`
	Month     int   `json:"month"`
}

// NewPeriod creates a period and validates the month
func NewPeriod(accountID int64, year, month int) (Period, error) {
	p := Period{AccountID: accountID, Year: year, Month: month}
	return p, p.Validate()
}

// Validate checks the period bounds
func (p Period) Validate() error {
	if p.AccountID <= 0 {
		return fmt.Errorf("account id must be positive: %d", p.AccountID)
	}
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("month must be between 1 and 12: %d", p.Month)
	}
	if p.Year < 1900 || p.Year > 9999 {
		return fmt.Errorf("year out of range: %d", p.Year)
	}
	return nil
}

// Start returns the first instant of the period (UTC)
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant after the period
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Contains reports whether t falls within the calendar month
func (p Period) Contains(t time.Time) bool {
	d := DateOnly(t)
	return !d.Before(p.Start()) && d.Before(p.End())
}

// String returns the period as account/YYYY-MM
func (p Period) String() string {
	return fmt.Sprintf("%d/%04d-%02d", p.AccountID, p.Year, p.Month)
}

// StatementMovement is one line of the bank's official statement.
type StatementMovement struct {
	ID            int64            `json:"id"`
	AccountID     int64            `json:"account_id"`
	Year          int              `json:"year"`
	Month         int              `json:"month"`
	Date          time.Time        `json:"date"`
	Description   string           `json:"description"`
	Reference     string           `json:"reference,omitempty"`
	Amount        decimal.Decimal  `json:"amount"`
	ForeignAmount *decimal.Decimal `json:"foreign_amount,omitempty"`
}

// Period returns the period the statement line belongs to
func (s *StatementMovement) Period() Period {
	return Period{AccountID: s.AccountID, Year: s.Year, Month: s.Month}
}

// Validate performs basic validation on the statement line
func (s *StatementMovement) Validate() error {
	if s.AccountID <= 0 {
		return fmt.Errorf("statement movement account cannot be empty")
	}
	if s.Date.IsZero() {
		return fmt.Errorf("statement movement date cannot be zero")
	}
	if err := s.Period().Validate(); err != nil {
		return err
	}
	return nil
}

// String returns a string representation of the statement line
func (s *StatementMovement) String() string {
	return fmt.Sprintf("StatementMovement{ID: %d, Date: %s, Amount: %s, Desc: %q}",
		s.ID, s.Date.Format("2006-01-02"), s.Amount.String(), s.Description)
}

// DetailSplit is a classified portion of a ledger movement.
type DetailSplit struct {
	ID           int64           `json:"id"`
	MovementID   int64           `json:"movement_id"`
	Amount       decimal.Decimal `json:"amount"`
	ThirdPartyID *int64          `json:"third_party_id,omitempty"`
	CostCenterID *int64          `json:"cost_center_id,omitempty"`
	ConceptID    *int64          `json:"concept_id,omitempty"`
}

// IsClassified reports whether the split has every classification dimension set
func (d *DetailSplit) IsClassified() bool {
	return d.ThirdPartyID != nil && d.CostCenterID != nil && d.ConceptID != nil
}

// LedgerMovement is a movement recorded in the company's internal ledger.
type LedgerMovement struct {
	ID            int64            `json:"id"`
	AccountID     int64            `json:"account_id"`
	Date          time.Time        `json:"date"`
	Description   string           `json:"description"`
	Reference     string           `json:"reference,omitempty"`
	Amount        decimal.Decimal  `json:"amount"`
	CurrencyID    int64            `json:"currency_id,omitempty"`
	ForeignAmount *decimal.Decimal `json:"foreign_amount,omitempty"`
	ThirdPartyID  *int64           `json:"third_party_id,omitempty"`
	Splits        []DetailSplit    `json:"splits,omitempty"`
}

// EnsureDefaultSplit makes sure the movement owns at least one split. A movement
// without splits gets a single split carrying the whole header amount and the
// header third party. It returns the split slice, which is never empty afterwards.
func EnsureDefaultSplit(m *LedgerMovement) []DetailSplit {
	if len(m.Splits) == 0 {
		m.Splits = []DetailSplit{{
			MovementID:   m.ID,
			Amount:       m.Amount,
			ThirdPartyID: m.ThirdPartyID,
		}}
	}
	return m.Splits
}

// Validate checks the split-sum invariant and required fields
func (m *LedgerMovement) Validate() error {
	if m.AccountID <= 0 {
		return fmt.Errorf("ledger movement account cannot be empty")
	}
	if m.Date.IsZero() {
		return fmt.Errorf("ledger movement date cannot be zero")
	}
	if len(m.Splits) == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, s := range m.Splits {
		sum = sum.Add(s.Amount)
	}
	if sum.Sub(m.Amount).Abs().GreaterThan(SplitSumTolerance) {
		return fmt.Errorf("split amounts sum to %s but header amount is %s", sum.String(), m.Amount.String())
	}
	return nil
}

// IsPending reports whether the movement still needs classification
func (m *LedgerMovement) IsPending() bool {
	if len(m.Splits) == 0 {
		return true
	}
	for i := range m.Splits {
		s := &m.Splits[i]
		if s.CostCenterID == nil || s.ConceptID == nil {
			return true
		}
		if s.ThirdPartyID == nil && m.ThirdPartyID == nil {
			return true
		}
	}
	return false
}

// EffectiveThirdParty returns the header third party, falling back to the first split's
func (m *LedgerMovement) EffectiveThirdParty() *int64 {
	if m.ThirdPartyID != nil {
		return m.ThirdPartyID
	}
	for i := range m.Splits {
		if m.Splits[i].ThirdPartyID != nil {
			return m.Splits[i].ThirdPartyID
		}
	}
	return nil
}

// PrimarySplit returns the first split, or nil when there is none
func (m *LedgerMovement) PrimarySplit() *DetailSplit {
	if len(m.Splits) == 0 {
		return nil
	}
	return &m.Splits[0]
}

// MirrorThirdParty copies the sole split's third party onto the header so
// single-split movements can be filtered by third party without a join.
func (m *LedgerMovement) MirrorThirdParty() {
	if len(m.Splits) == 1 && m.Splits[0].ThirdPartyID != nil {
		tp := *m.Splits[0].ThirdPartyID
		m.ThirdPartyID = &tp
	}
}

// Clone returns a deep copy of the movement
func (m *LedgerMovement) Clone() *LedgerMovement {
	c := *m
	c.ThirdPartyID = cloneID(m.ThirdPartyID)
	if m.ForeignAmount != nil {
		fa := *m.ForeignAmount
		c.ForeignAmount = &fa
	}
	c.Splits = make([]DetailSplit, len(m.Splits))
	for i, s := range m.Splits {
		s.ThirdPartyID = cloneID(s.ThirdPartyID)
		s.CostCenterID = cloneID(s.CostCenterID)
		s.ConceptID = cloneID(s.ConceptID)
		c.Splits[i] = s
	}
	return &c
}

// String returns a string representation of the ledger movement
func (m *LedgerMovement) String() string {
	return fmt.Sprintf("LedgerMovement{ID: %d, Date: %s, Amount: %s, Desc: %q, Splits: %d}",
		m.ID, m.Date.Format("2006-01-02"), m.Amount.String(), m.Description, len(m.Splits))
}

// MatchEstado is the lifecycle state of a match.
type MatchEstado string

const (
	EstadoOK       MatchEstado = "OK"
	EstadoProbable MatchEstado = "PROBABLE"
	EstadoManual   MatchEstado = "MANUAL"
	EstadoSinMatch MatchEstado = "SIN_MATCH"
	EstadoIgnorado MatchEstado = "IGNORADO"
)

// AllEstados lists every state in display order
var AllEstados = []MatchEstado{EstadoOK, EstadoProbable, EstadoManual, EstadoSinMatch, EstadoIgnorado}

// IsValid checks if the state is one of the known states
func (e MatchEstado) IsValid() bool {
	switch e {
	case EstadoOK, EstadoProbable, EstadoManual, EstadoSinMatch, EstadoIgnorado:
		return true
	}
	return false
}

// IsActive reports whether the state holds its ledger movement
func (e MatchEstado) IsActive() bool {
	return e == EstadoOK || e == EstadoProbable || e == EstadoManual
}

// ParseMatchEstado parses a state name
func ParseMatchEstado(s string) (MatchEstado, error) {
	e := MatchEstado(strings.ToUpper(strings.TrimSpace(s)))
	if !e.IsValid() {
		return "", fmt.Errorf("invalid match state '%s'", s)
	}
	return e, nil
}

// Scores groups the four scores carried by a match.
type Scores struct {
	Total       float64 `json:"total"`
	Fecha       float64 `json:"fecha"`
	Valor       float64 `json:"valor"`
	Descripcion float64 `json:"descripcion"`
}

// Match links one statement line to at most one ledger movement.
type Match struct {
	ID          int64       `json:"id"`
	StatementID int64       `json:"statement_id"`
	LedgerID    *int64      `json:"ledger_id,omitempty"`
	Estado      MatchEstado `json:"estado"`
	Scores      Scores      `json:"scores"`
	Confirmado  bool        `json:"confirmado"`
	CreatedBy   string      `json:"created_by,omitempty"`
	Notas       string      `json:"notas,omitempty"`
	Reasons     []string    `json:"reasons,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// HasLedger reports whether the match carries a ledger side
func (m *Match) HasLedger() bool {
	return m.LedgerID != nil
}

// IsActive reports whether the match holds its ledger movement
func (m *Match) IsActive() bool {
	return m.LedgerID != nil && m.Estado.IsActive()
}

// Validate checks state consistency
func (m *Match) Validate() error {
	if m.StatementID <= 0 {
		return fmt.Errorf("match statement id cannot be empty")
	}
	if !m.Estado.IsValid() {
		return fmt.Errorf("invalid match state: %s", m.Estado)
	}
	if m.Estado.IsActive() && m.LedgerID == nil {
		return fmt.Errorf("match in state %s requires a ledger movement", m.Estado)
	}
	if (m.Estado == EstadoSinMatch || m.Estado == EstadoIgnorado) && m.LedgerID != nil {
		return fmt.Errorf("match in state %s cannot carry a ledger movement", m.Estado)
	}
	return nil
}

// String returns a string representation of the match
func (m *Match) String() string {
	ledger := "-"
	if m.LedgerID != nil {
		ledger = fmt.Sprintf("%d", *m.LedgerID)
	}
	return fmt.Sprintf("Match{Statement: %d, Ledger: %s, Estado: %s, Score: %.2f}",
		m.StatementID, ledger, m.Estado, m.Scores.Total)
}

// MatchingAlias is an account-scoped substitution applied to statement text.
type MatchingAlias struct {
	ID        int64  `json:"id" yaml:"id,omitempty"`
	AccountID int64  `json:"account_id" yaml:"account_id"`
	Patron    string `json:"patron" yaml:"patron"`
	Reemplazo string `json:"reemplazo" yaml:"reemplazo"`
}

// MatchKind is how a classification rule compares its pattern.
type MatchKind string

const (
	MatchContains   MatchKind = "contains"
	MatchStartsWith MatchKind = "starts_with"
	MatchExact      MatchKind = "exact"
)

// IsValid checks the match kind
func (k MatchKind) IsValid() bool {
	return k == MatchContains || k == MatchStartsWith || k == MatchExact
}

// ClassificationRule assigns classification to movements whose text matches its pattern.
type ClassificationRule struct {
	ID           int64     `json:"id" yaml:"id,omitempty"`
	AccountID    *int64    `json:"account_id,omitempty" yaml:"account_id,omitempty"`
	Patron       string    `json:"patron" yaml:"patron"`
	Kind         MatchKind `json:"kind" yaml:"kind"`
	ThirdPartyID *int64    `json:"third_party_id,omitempty" yaml:"third_party_id,omitempty"`
	CostCenterID *int64    `json:"cost_center_id,omitempty" yaml:"cost_center_id,omitempty"`
	ConceptID    *int64    `json:"concept_id,omitempty" yaml:"concept_id,omitempty"`
}

// Matches reports whether the rule applies to the given text (case-insensitive)
func (r *ClassificationRule) Matches(text string) bool {
	pattern := NormalizeText(r.Patron)
	if pattern == "" {
		return false
	}
	text = NormalizeText(text)
	switch r.Kind {
	case MatchStartsWith:
		return strings.HasPrefix(text, pattern)
	case MatchExact:
		return text == pattern
	default:
		return strings.Contains(text, pattern)
	}
}

// ThirdParty is a counterparty from the third-party catalog.
type ThirdParty struct {
	ID       int64  `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Document string `json:"document,omitempty" yaml:"document,omitempty"`
}

// ReferenceEntry maps a bank reference (e.g. an agreement number) to a third party.
type ReferenceEntry struct {
	Reference    string `json:"reference" yaml:"reference"`
	ThirdPartyID int64  `json:"third_party_id" yaml:"third_party_id"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Account is a bank account from the accounts catalog.
type Account struct {
	ID         int64  `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Type       string `json:"type" yaml:"type"`
	CurrencyID int64  `json:"currency_id" yaml:"currency_id"`
}

// Currency is a currency from the currencies catalog.
type Currency struct {
	ID   int64  `json:"id" yaml:"id"`
	Code string `json:"code" yaml:"code"`
}

// PeriodTotals are the aggregate ledger totals of a period.
type PeriodTotals struct {
	AccountID     int64           `json:"account_id"`
	Year          int             `json:"year"`
	Month         int             `json:"month"`
	Inflows       decimal.Decimal `json:"inflows"`
	Outflows      decimal.Decimal `json:"outflows"`
	Net           decimal.Decimal `json:"net"`
	MovementCount int             `json:"movement_count"`
	FromMatches   bool            `json:"from_matches"`
	ComputedAt    time.Time       `json:"computed_at"`
}

// Utility functions

// NormalizeText uppercases and trims a description for comparison
func NormalizeText(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// DateOnly truncates t to midnight UTC of its calendar date
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute number of calendar days between a and b
func DaysBetween(a, b time.Time) int {
	diff := DateOnly(a).Sub(DateOnly(b)).Hours() / 24
	if diff < 0 {
		diff = -diff
	}
	return int(diff + 0.5)
}

// IDPtr returns a pointer to id
func IDPtr(id int64) *int64 {
	return &id
}

// IDEqual compares two optional ids
func IDEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// IsNumericReference reports whether ref is made of digits only
func IsNumericReference(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return false
	}
	for _, r := range ref {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseDecimalFromString parses a decimal value from string with validation
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ParseTimeWithFormats attempts to parse a date using the formats banks commonly export
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	formats := []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02 15:04:05",
		"02/01/2006",
		"2006/01/02",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}
