package log

import (
	"io"
	"os"
	"sync"
)

// ConsoleOutput writes entries to the console, errors to stderr.
type ConsoleOutput struct {
	mu     sync.Mutex
	writer io.Writer
	errOut io.Writer
}

// NewConsoleOutput creates a console output writing to stdout/stderr.
func NewConsoleOutput() *ConsoleOutput {
	return &ConsoleOutput{writer: os.Stdout, errOut: os.Stderr}
}

// NewWriterOutput creates an output writing all entries to w.
func NewWriterOutput(w io.Writer) *ConsoleOutput {
	return &ConsoleOutput{writer: w, errOut: w}
}

// Write writes the formatted entry.
func (o *ConsoleOutput) Write(entry *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	w := o.writer
	if entry.Level >= ErrorLevel {
		w = o.errOut
	}
	_, err := w.Write(formatted)
	return err
}

// Close implements Output; console writers are not owned by the logger.
func (o *ConsoleOutput) Close() error {
	return nil
}

// FileOutput appends entries to a log file.
type FileOutput struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileOutput opens (or creates) path for appending log entries.
func NewFileOutput(path string) (*FileOutput, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileOutput{file: f}, nil
}

// Write writes the formatted entry to the file.
func (o *FileOutput) Write(_ *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.file.Write(formatted)
	return err
}

// Close closes the underlying file.
func (o *FileOutput) Close() error {
	return o.file.Close()
}
