package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/danidanone/scraping-dashboard/models"
)

// NamedWriter labels an OutputWriter so fan-out errors say which format failed.
type NamedWriter struct {
	Name   string
	Writer OutputWriter
}

// MultiWriter sends every table to several writers in order.
type MultiWriter struct {
	writers []NamedWriter
	mu      sync.Mutex
}

// NewMultiWriter fans out to writers. It takes ownership of them.
func NewMultiWriter(writers ...NamedWriter) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// NewDualWriter writes CSV and JSON tables into the same directory.
func NewDualWriter(dir string) (*MultiWriter, error) {
	csvWriter, err := NewCSVWriter(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}

	jsonWriter, err := NewJSONWriter(dir)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("failed to create JSON writer: %w", err)
	}

	return NewMultiWriter(
		NamedWriter{Name: "CSV", Writer: csvWriter},
		NamedWriter{Name: "JSON", Writer: jsonWriter},
	), nil
}

// WriteItems stops at the first writer that fails.
func (mw *MultiWriter) WriteItems(items []models.Item) error {
	return mw.each("write", func(w OutputWriter) error { return w.WriteItems(items) }, true)
}

func (mw *MultiWriter) WriteStats(stats []models.CategoryStats) error {
	return mw.each("write", func(w OutputWriter) error { return w.WriteStats(stats) }, true)
}

// Close closes every writer, even after a failure.
func (mw *MultiWriter) Close() error {
	return mw.each("close", OutputWriter.Close, false)
}

func (mw *MultiWriter) Validate() error {
	return mw.each("validation", OutputWriter.Validate, false)
}

func (mw *MultiWriter) each(op string, fn func(OutputWriter) error, stopOnError bool) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for _, nw := range mw.writers {
		if err := fn(nw.Writer); err != nil {
			errs = append(errs, fmt.Errorf("%s %s failed: %w", nw.Name, op, err))
			if stopOnError {
				break
			}
		}
	}
	return errors.Join(errs...)
}
