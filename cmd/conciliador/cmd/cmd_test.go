package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/reconciler"
	"bank-reconciliation-service/pkg/errors"
)

const testSeeds = `
currencies:
  - {id: 1, code: COP}
accounts:
  - {id: 1, name: Corriente, type: corriente, currency_id: 1}
third_parties:
  - {id: 9, name: BANCO}
rules:
  - {patron: GMF, kind: contains, third_party_id: 9, cost_center_id: 1, concept_id: 4}
`

const testLedger = "fecha,descripcion,referencia,valor\n" +
	"2024-03-05,PAGO PROVEEDOR ACME,,-500000\n" +
	"2024-03-10,GMF,,-2000\n"

const testStatements = "fecha,descripcion,referencia,valor\n" +
	"2024-03-05,PAGO PROVEEDOR ACME,,-500000\n" +
	"2024-03-11,ABONO INTERESES,,99999\n"

// cliEnv is a temporary database plus input files
type cliEnv struct {
	t   *testing.T
	dir string
	db  string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv("CONCILIADOR_LOG_LEVEL", "error")
	t.Setenv("CONCILIADOR_USER", "tester")

	dir := t.TempDir()
	env := &cliEnv{t: t, dir: dir, db: filepath.Join(dir, "conciliacion.db")}
	env.write("seeds.yaml", testSeeds)
	env.write("sistema.csv", testLedger)
	env.write("extracto.csv", testStatements)
	return env
}

func (e *cliEnv) write(name, content string) string {
	e.t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		e.t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func (e *cliEnv) path(name string) string {
	return filepath.Join(e.dir, name)
}

// run executes one command line against the environment database
func (e *cliEnv) run(args ...string) (string, error) {
	var out, errOut bytes.Buffer
	a := newApp(&out, &errOut)
	root := a.rootCommand()
	root.SetArgs(append([]string{"--db", e.db}, args...))
	err := root.Execute()
	a.close()
	return out.String(), err
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	if err != nil {
		e.t.Fatalf("%s: unexpected error: %v", strings.Join(args, " "), err)
	}
	return out
}

func (e *cliEnv) load() {
	e.t.Helper()
	e.mustRun("import", "seeds", "--file", e.path("seeds.yaml"))
	e.mustRun("import", "ledger", "--file", e.path("sistema.csv"), "--account", "1")
	e.mustRun("import", "statements", "--file", e.path("extracto.csv"), "--account", "1", "--year", "2024", "--month", "3")
}

func assertContains(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

func TestImportCommands(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun("import", "seeds", "--file", env.path("seeds.yaml"))
	assertContains(t, out, "SEEDS", "Accounts:      1", "Rules:         1")

	out = env.mustRun("import", "ledger", "--file", env.path("sistema.csv"), "--account", "1")
	assertContains(t, out, "Valid:      2", "Errors:     0")

	out = env.mustRun("import", "ledger", "--file", env.path("sistema.csv"), "--account", "1")
	assertContains(t, out, "Duplicates: 2")

	out = env.mustRun("import", "statements", "--file", env.path("extracto.csv"),
		"--account", "1", "--year", "2024", "--month", "3")
	assertContains(t, out, "Valid:      2")

	out = env.mustRun("universe", "--account", "1", "--year", "2024", "--month", "3")
	assertContains(t, out, "Ledger movements: 2", "PAGO PROVEEDOR ACME")

	_, err := env.run("import", "ledger", "--file", env.path("sistema.csv"), "--account", "5")
	if !errors.IsNotFound(err) {
		t.Errorf("expected not found for unknown account, got %v", err)
	}
}

func TestMatchAndLifecycle(t *testing.T) {
	env := newCLIEnv(t)
	env.load()

	out := env.mustRun("match", "--account", "1", "--year", "2024", "--month", "3", "--format", "json")
	var result reconciler.PeriodResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("match output is not JSON: %v\n%s", err, out)
	}
	if len(result.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(result.Matches))
	}
	byStatement := make(map[int64]*models.Match)
	for _, m := range result.Matches {
		byStatement[m.StatementID] = m
	}
	if m := byStatement[1]; m == nil || m.Estado != models.EstadoOK || m.LedgerID == nil || *m.LedgerID != 1 {
		t.Errorf("statement 1 should match ledger 1 as OK: %+v", m)
	}
	if m := byStatement[2]; m == nil || m.Estado != models.EstadoSinMatch {
		t.Errorf("statement 2 should be SIN_MATCH: %+v", m)
	}

	out = env.mustRun("ignore", "--statement", "2", "--reason", "interest")
	assertContains(t, out, "statement 2 -> ledger - [IGNORADO]", "By: tester")

	out = env.mustRun("unlink", "--statement", "2")
	assertContains(t, out, "[SIN_MATCH]")

	out = env.mustRun("create-ledger", "--statement", "2")
	assertContains(t, out, "statement 2 -> ledger 3 [MANUAL]", "ABONO INTERESES")

	_, err := env.run("link", "--statement", "1", "--ledger", "3")
	if !errors.IsCategory(err, errors.CategoryConflict) {
		t.Errorf("expected conflict linking a held ledger movement, got %v", err)
	}

	out = env.mustRun("link", "--statement", "1", "--ledger", "2", "--notes", "reviewed")
	assertContains(t, out, "statement 1 -> ledger 2 [OK]", "Notes: reviewed")

	out = env.mustRun("integrity", "detect", "--account", "1", "--year", "2024", "--month", "3")
	assertContains(t, out, "No ledger movement is shared")

	_, err = env.run("reset", "--account", "1", "--year", "2024", "--month", "3")
	if !errors.IsCategory(err, errors.CategoryValidation) {
		t.Errorf("reset without --yes should fail validation, got %v", err)
	}
	out = env.mustRun("reset", "--account", "1", "--year", "2024", "--month", "3", "--yes")
	assertContains(t, out, "Matches deleted: 2")
}

func TestMatchMonthRange(t *testing.T) {
	env := newCLIEnv(t)
	env.load()

	out := env.mustRun("match", "--account", "1", "--year", "2024", "--month", "2",
		"--to-year", "2024", "--to-month", "3", "--format", "json")
	var result reconciler.BatchResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("batch output is not JSON: %v\n%s", err, out)
	}
	if len(result.Periods) != 2 || len(result.Failed) != 0 {
		t.Errorf("expected 2 reconciled periods, got %d (failed %v)", len(result.Periods), result.Failed)
	}

	_, err := env.run("match", "--account", "1", "--year", "2024", "--month", "13")
	if !errors.IsCategory(err, errors.CategoryValidation) {
		t.Errorf("expected validation error for month 13, got %v", err)
	}
}

func TestClassificationCommands(t *testing.T) {
	env := newCLIEnv(t)
	env.load()

	out := env.mustRun("classify", "--movement", "2")
	assertContains(t, out, "Movement 2 classified")

	out = env.mustRun("auto-classify")
	assertContains(t, out, "AUTO CLASSIFICATION", "Processed:  1")

	out = env.mustRun("apply-rule", "--pattern", "ACME", "--third-party", "9",
		"--cost-center", "1", "--concept", "7", "--save")
	assertContains(t, out, "Updated 1 movements", "Saved rule")

	out = env.mustRun("suggest", "--movement", "1")
	assertContains(t, out, "SUGGESTION FOR MOVEMENT 1")

	_, err := env.run("apply-rule", "--pattern", "ACME")
	if !errors.IsCategory(err, errors.CategoryValidation) {
		t.Errorf("apply-rule without fields should fail validation, got %v", err)
	}
	_, err = env.run("suggest", "--movement", "99")
	if !errors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestConfigCommands(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun("config", "show")
	assertContains(t, out, "peso_fecha:                   0.40", "score_minimo_exacto:          0.95")

	_, err := env.run("config", "set", "--peso-fecha", "0.5")
	if !errors.IsCategory(err, errors.CategoryConfiguration) {
		t.Errorf("weights not adding up to 1 should be rejected, got %v", err)
	}

	out = env.mustRun("config", "set", "--peso-fecha", "0.3", "--peso-valor", "0.5", "--tolerancia-valor", "250")
	assertContains(t, out, "tolerancia_valor:             250", "peso_valor:                   0.50")

	out = env.mustRun("config", "show")
	assertContains(t, out, "peso_fecha:                   0.30")

	_, err = env.run("config", "set")
	if !errors.IsCategory(err, errors.CategoryValidation) {
		t.Errorf("empty patch should fail validation, got %v", err)
	}
}

func TestOutputFile(t *testing.T) {
	env := newCLIEnv(t)
	target := env.path("config.json")

	out := env.mustRun("config", "show", "--format", "json", "--output", target)
	if out != "" {
		t.Errorf("expected nothing on stdout, got %q", out)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("report file not written: %v", err)
	}
	var cfg map[string]interface{}
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("report file is not JSON: %v", err)
	}
	if cfg["peso_fecha"] != 0.4 {
		t.Errorf("peso_fecha = %v", cfg["peso_fecha"])
	}
}

func TestVersionSkipsSetup(t *testing.T) {
	var out bytes.Buffer
	a := newApp(&out, &out)
	root := a.rootCommand()
	root.SetArgs([]string{"version", "--config", "/does/not/exist.yaml"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version should not load config: %v", err)
	}
	assertContains(t, out.String(), "conciliador dev")
	if a.repo != nil {
		t.Error("version should not open the database")
	}
}

func TestCLIErrorHandler(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		want     string
	}{
		{"nil", nil, 0, ""},
		{"not found", errors.NotFoundError(errors.CodeStatementNotFound, "statement", 41), 3, "Not found help"},
		{"configuration", errors.ConfigurationError(errors.CodeInvalidConfig, "log.level", "loud", nil), 4, "Configuration error help"},
		{"file", errors.FileError(errors.CodeFileNotFound, "x.csv", os.ErrNotExist), 2, "File error help"},
		{"row", errors.InvalidAmountError("x.csv", 3, "valor", "abc"), 2, "line: 3"},
		{"summary", errors.NewErrorSummary([]*errors.ReconcilerError{
			errors.StorageError(errors.CodeWriteFailed, "save", fmt.Errorf("locked")),
			errors.NotFoundError(errors.CodeAccountNotFound, "account", 2),
		}), 6, "2 errors occurred"},
		{"generic", fmt.Errorf("required flag(s) \"account\" not set"), 1, "required flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			code := NewCLIErrorHandler(&out, false).HandleError(tt.err)
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out.String())
			}
		})
	}
}
