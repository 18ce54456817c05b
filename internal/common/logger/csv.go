package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"
)

// CSVLogger appends timestamped rows to a per-day CSV file in the temp dir.
type CSVLogger struct {
	writer *csv.Writer
	file   *os.File
}

// NewCSVLogger opens (or creates) _{toolName}_{action}_{date}.csv in append mode.
func NewCSVLogger(toolName, action string) (*CSVLogger, error) {
	file, err := openAppend(auditFilePath(toolName, action, ".csv"))
	if err != nil {
		return nil, err
	}
	return &CSVLogger{writer: csv.NewWriter(file), file: file}, nil
}

// Path returns the file being written.
func (l *CSVLogger) Path() string {
	return l.file.Name()
}

// WriteHeader writes the column names with a leading Timestamp column.
func (l *CSVLogger) WriteHeader(columns []string) error {
	header := append([]string{"Timestamp"}, columns...)
	if err := l.writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	l.writer.Flush()
	return l.writer.Error()
}

// WriteRow writes one timestamped row and flushes it.
// Runs write a single row, so there is nothing to gain from buffering.
func (l *CSVLogger) WriteRow(row []string) error {
	if l.writer == nil {
		return fmt.Errorf("CSV writer is not initialized")
	}

	fullRow := append([]string{time.Now().Format("2006-01-02 15:04:05")}, row...)
	if err := l.writer.Write(fullRow); err != nil {
		return fmt.Errorf("failed to write CSV row: %w", err)
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// ShouldWriteHeader reports whether the file is still empty.
func (l *CSVLogger) ShouldWriteHeader() (bool, error) {
	return isEmpty(l.file)
}

// Close flushes and closes the file.
func (l *CSVLogger) Close() error {
	if l.writer != nil {
		l.writer.Flush()
		if err := l.writer.Error(); err != nil {
			return fmt.Errorf("error flushing CSV on close: %w", err)
		}
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
