package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// RecordWriter appends newline-delimited JSON records to a file. It is safe
// for concurrent use.
type RecordWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	path string
}

// NewRecordWriter opens or creates path in append mode.
func NewRecordWriter(path string) (*RecordWriter, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open record file: %w", err)
	}
	return &RecordWriter{
		file: file,
		buf:  bufio.NewWriter(file),
		path: path,
	}, nil
}

// Write marshals v as a single JSON line.
func (rw *RecordWriter) Write(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	rw.mu.Lock()
	defer rw.mu.Unlock()

	if _, err := rw.buf.Write(line); err != nil {
		return err
	}
	return rw.buf.WriteByte('\n')
}

// Sync flushes the buffer and fsyncs the file.
func (rw *RecordWriter) Sync() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if err := rw.buf.Flush(); err != nil {
		return err
	}
	return rw.file.Sync()
}

// Close flushes pending records and closes the file.
func (rw *RecordWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if err := rw.buf.Flush(); err != nil {
		_ = rw.file.Close()
		return err
	}
	return rw.file.Close()
}

// Path returns the file path.
func (rw *RecordWriter) Path() string {
	return rw.path
}
