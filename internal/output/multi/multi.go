package multi

import (
	"context"
	"errors"
	"fmt"

	"github.com/crimson-sun/netsentry/internal/model"
	"github.com/crimson-sun/netsentry/internal/output"
)

// Sink is an output with a name used in errors and metrics.
type Sink struct {
	Name   string
	Output output.Output
}

// Option configures a Multi.
type Option func(*Multi)

// WithOnError registers a callback invoked with the sink name whenever a
// sink's Write fails.
func WithOnError(f func(name string, err error)) Option {
	return func(m *Multi) { m.onError = f }
}

// Multi fans alerts out to several sinks. A failing sink never prevents
// delivery to the others.
type Multi struct {
	sinks   []Sink
	onError func(string, error)
}

// New creates a Multi over sinks.
func New(sinks []Sink, opts ...Option) *Multi {
	m := &Multi{sinks: sinks}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Write delivers the alert to every sink and joins their errors.
func (m *Multi) Write(ctx context.Context, alert model.Alert) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Output.Write(ctx, alert); err != nil {
			if m.onError != nil {
				m.onError(s.Name, err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink, collecting errors.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Output.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
