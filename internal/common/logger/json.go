package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// JSONLogger appends one JSON object per row (JSON Lines).
// Keys come from the columns given to WriteHeader.
type JSONLogger struct {
	file    *os.File
	writer  *bufio.Writer
	columns []string
	closed  bool
}

// NewJSONLogger opens (or creates) _{toolName}_{action}_{date}.jsonl in append mode.
func NewJSONLogger(toolName, action string) (*JSONLogger, error) {
	file, err := openAppend(auditFilePath(toolName, action, ".jsonl"))
	if err != nil {
		return nil, err
	}
	return &JSONLogger{file: file, writer: bufio.NewWriter(file)}, nil
}

// Path returns the file being written.
func (l *JSONLogger) Path() string {
	return l.file.Name()
}

// WriteHeader records the column names; nothing is written to the file.
func (l *JSONLogger) WriteHeader(columns []string) error {
	l.columns = append([]string(nil), columns...)
	return nil
}

// WriteRow writes row as an object keyed by the header columns plus "timestamp".
func (l *JSONLogger) WriteRow(row []string) error {
	if l.columns == nil {
		return fmt.Errorf("WriteHeader must be called before WriteRow")
	}
	if len(row) != len(l.columns) {
		return fmt.Errorf("row has %d values, header has %d columns", len(row), len(l.columns))
	}

	obj := make(map[string]string, len(row)+1)
	obj["timestamp"] = time.Now().Format(time.RFC3339)
	for i, col := range l.columns {
		obj[col] = row[i]
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to encode JSON row: %w", err)
	}
	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write JSON row: %w", err)
	}
	return l.writer.Flush()
}

// ShouldWriteHeader reports whether the file is still empty.
// JSON rows are self-describing, but callers still pass the header through.
func (l *JSONLogger) ShouldWriteHeader() (bool, error) {
	return isEmpty(l.file)
}

// Close flushes and closes the file. It is safe to call more than once.
func (l *JSONLogger) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.writer.Flush(); err != nil {
		l.file.Close()
		return fmt.Errorf("error flushing JSON on close: %w", err)
	}
	return l.file.Close()
}
