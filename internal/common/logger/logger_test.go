package logger

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLogLevel(tt.input); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLogger_VerboseOverridesLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, true, "ERROR")

	LogDebug(log, "fetching devices", "org", "acme")
	if !strings.Contains(buf.String(), "fetching devices") {
		t.Errorf("verbose logger dropped debug record: %q", buf.String())
	}
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, false, "WARN")

	LogInfo(log, "hidden")
	LogWarn(log, "shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at WARN level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestLogHelpers_NilLogger(t *testing.T) {
	// Must not panic.
	LogDebug(nil, "x")
	LogInfo(nil, "x")
	LogWarn(nil, "x")
	LogError(nil, "x")
}

func TestCSVLogger_HeaderAndRow(t *testing.T) {
	l, err := NewCSVLogger("warrantyreport_test", "csv")
	if err != nil {
		t.Fatalf("NewCSVLogger() error = %v", err)
	}
	path := l.Path()
	defer os.Remove(path)

	if ok, err := l.ShouldWriteHeader(); err != nil || !ok {
		t.Fatalf("ShouldWriteHeader() = %v, %v; want true for new file", ok, err)
	}
	if err := l.WriteHeader([]string{"RunID", "Rows"}); err != nil {
		t.Fatalf("WriteHeader() error = %v", err)
	}
	if err := l.WriteRow([]string{"abc", "3"}); err != nil {
		t.Fatalf("WriteRow() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit file: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse audit file: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if strings.Join(records[0], ",") != "Timestamp,RunID,Rows" {
		t.Errorf("header = %v", records[0])
	}
	if records[1][1] != "abc" || records[1][2] != "3" {
		t.Errorf("row = %v", records[1])
	}
}

func TestJSONLogger_WriteRow(t *testing.T) {
	l, err := NewJSONLogger("warrantyreport_test", "json")
	if err != nil {
		t.Fatalf("NewJSONLogger() error = %v", err)
	}
	path := l.Path()
	defer os.Remove(path)

	if err := l.WriteRow([]string{"x"}); err == nil {
		t.Error("WriteRow() before WriteHeader should fail")
	}
	if err := l.WriteHeader([]string{"RunID", "Delivery"}); err != nil {
		t.Fatalf("WriteHeader() error = %v", err)
	}
	if err := l.WriteRow([]string{"only-one"}); err == nil {
		t.Error("WriteRow() with wrong column count should fail")
	}
	if err := l.WriteRow([]string{"abc", "SENT"}); err != nil {
		t.Fatalf("WriteRow() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	var obj map[string]string
	if err := json.Unmarshal([]byte(lines[0]), &obj); err != nil {
		t.Fatalf("parse JSON line: %v", err)
	}
	if obj["RunID"] != "abc" || obj["Delivery"] != "SENT" || obj["timestamp"] == "" {
		t.Errorf("unexpected JSON object: %v", obj)
	}
}

func TestNewAuditLogger(t *testing.T) {
	none, err := NewAuditLogger(FormatNone, "warrantyreport_test", "none")
	if err != nil {
		t.Fatalf("NewAuditLogger(none) error = %v", err)
	}
	if err := none.WriteRow([]string{"anything"}); err != nil {
		t.Errorf("nop WriteRow() error = %v", err)
	}

	if _, err := NewAuditLogger("xml", "warrantyreport_test", "bad"); err == nil {
		t.Error("NewAuditLogger(xml) should fail")
	}

	l, err := NewAuditLogger(FormatJSON, "warrantyreport_test", "factory")
	if err != nil {
		t.Fatalf("NewAuditLogger(json) error = %v", err)
	}
	jl, ok := l.(*JSONLogger)
	if !ok {
		t.Fatalf("NewAuditLogger(json) returned %T", l)
	}
	defer os.Remove(jl.Path())
	l.Close()
}
