package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]interface{}{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", *DefaultConfig(), false},
		{"debug", *DebugConfig(), false},
		{"bad level", Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"file without path", Config{Level: InfoLevel, Format: JSONFormat, Output: FileOutput}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFieldsAccumulate(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, DebugLevel).
		WithComponent("matcher").
		WithField("account", 3).
		WithError(errors.New("boom"))

	log.Info("scored")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["component"] != "matcher" {
		t.Errorf("expected component field, got %v", entry["component"])
	}
	if entry["account"] != float64(3) {
		t.Errorf("expected account field 3, got %v", entry["account"])
	}
	if entry["error"] != "boom" {
		t.Errorf("expected error field, got %v", entry["error"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, WarnLevel)

	log.Info("dropped")
	log.Warn("kept")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["msg"] != "kept" {
		t.Errorf("expected only the warning to be written, got %v", entries)
	}
}

func TestProgressTracker(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(ProgressConfig{
		Operation: "auto_classify",
		Total:     4,
		Logger:    NewWithWriter(&buf, InfoLevel),
	})

	tracker.Increment()
	tracker.Increment()

	stats := tracker.GetStats()
	if stats.Current != 2 || stats.Percentage != 50 {
		t.Errorf("expected 2 processed at 50%%, got %d at %.1f", stats.Current, stats.Percentage)
	}

	tracker.Complete(Fields{"classified": 1})
	entries := decodeLines(t, &buf)
	last := entries[len(entries)-1]
	if last["msg"] != "Operation completed" || last["classified"] != float64(1) {
		t.Errorf("unexpected completion entry %v", last)
	}
}
