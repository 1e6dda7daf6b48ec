package sink

import (
	"context"
	"errors"

	"block-timestamp-logger/internal/monitor"
)

// ErrNotConfigured indicates a sink backend was not initialised.
var ErrNotConfigured = errors.New("sink: not configured")

// Sink persists snapshot output: one summary record per chain per snapshot,
// and an incremental stream of raw delta rows that is never re-emitted.
type Sink interface {
	WriteSummary(ctx context.Context, summary monitor.Summary) error
	AppendDeltas(ctx context.Context, chain string, rows []monitor.RawDelta) error
	Close() error
}

// Multi fans out to several sinks. A failing sink does not stop the others;
// their errors are joined for the caller to log.
type Multi struct {
	sinks []Sink
}

// NewMulti combines sinks into one.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// WriteSummary writes the summary to every sink.
func (m *Multi) WriteSummary(ctx context.Context, summary monitor.Summary) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.WriteSummary(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AppendDeltas appends the rows to every sink.
func (m *Multi) AppendDeltas(ctx context.Context, chain string, rows []monitor.RawDelta) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.AppendDeltas(ctx, chain, rows); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases every sink.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Sink = (*Multi)(nil)
