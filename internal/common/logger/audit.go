package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Logger is a tabular audit sink. Each run appends one row.
type Logger interface {
	WriteHeader(columns []string) error
	WriteRow(row []string) error
	ShouldWriteHeader() (bool, error)
	Close() error
}

// Audit log formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatNone = "none"
)

// NewAuditLogger opens the audit sink for format.
// FormatNone returns a Logger that discards everything.
func NewAuditLogger(format, toolName, action string) (Logger, error) {
	switch strings.ToLower(format) {
	case FormatCSV, "":
		return NewCSVLogger(toolName, action)
	case FormatJSON:
		return NewJSONLogger(toolName, action)
	case FormatNone:
		return nopLogger{}, nil
	default:
		return nil, fmt.Errorf("unknown log format %q (must be csv, json or none)", format)
	}
}

// auditFilePath builds <tmp>/_{toolName}_{action}_{date}{ext}.
func auditFilePath(toolName, action, ext string) string {
	dateStr := time.Now().Format("2006-01-02")
	return filepath.Join(os.TempDir(), fmt.Sprintf("_%s_%s_%s%s", toolName, action, dateStr, ext))
}

func openAppend(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open audit log %s: %w", path, err)
	}
	return file, nil
}

func isEmpty(file *os.File) (bool, error) {
	info, err := file.Stat()
	if err != nil {
		return false, fmt.Errorf("could not stat audit log: %w", err)
	}
	return info.Size() == 0, nil
}

type nopLogger struct{}

func (nopLogger) WriteHeader([]string) error       { return nil }
func (nopLogger) WriteRow([]string) error          { return nil }
func (nopLogger) ShouldWriteHeader() (bool, error) { return false, nil }
func (nopLogger) Close() error                     { return nil }
