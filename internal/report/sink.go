// Package report renders batch results as they are produced.
//
// A Sink receives every ExecutionResult in order, then one Summary for the
// whole batch, then Close. The CLI builds sinks from the report config: a
// Console or JSONL sink for the selected format, plus an MQTT sink when a
// broker is configured.
package report

import (
	"fmt"

	"github.com/Iron-Ham/atkrun/internal/errors"
	"github.com/Iron-Ham/atkrun/internal/model"
)

// Report formats accepted by report.format.
const (
	FormatConsole = "console"
	FormatJSONL   = "jsonl"
	FormatNone    = "none"
)

// Sink consumes the results of one batch run.
type Sink interface {
	Result(res model.ExecutionResult) error
	Summary(batch model.BatchResult) error
	Close() error
}

// Multi fans out to several sinks. Every sink sees every call; errors are
// joined.
type Multi []Sink

// Result forwards res to every sink.
func (m Multi) Result(res model.ExecutionResult) error {
	var errs []error
	for _, s := range m {
		if err := s.Result(res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Summary forwards batch to every sink.
func (m Multi) Summary(batch model.BatchResult) error {
	var errs []error
	for _, s := range m {
		if err := s.Summary(batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard is a Sink that drops everything.
type Discard struct{}

func (Discard) Result(model.ExecutionResult) error { return nil }

func (Discard) Summary(model.BatchResult) error { return nil }

func (Discard) Close() error { return nil }

func sinkError(sink, op string, err error) error {
	return fmt.Errorf("%s report: %s: %w", sink, op, err)
}
