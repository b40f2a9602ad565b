package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crimson-sun/netsentry/internal/alertlog"
	"github.com/crimson-sun/netsentry/internal/connector"
	"github.com/crimson-sun/netsentry/internal/engine"
	"github.com/crimson-sun/netsentry/internal/engine/dedup"
	"github.com/crimson-sun/netsentry/internal/metrics"
	"github.com/crimson-sun/netsentry/internal/model"
	"github.com/crimson-sun/netsentry/internal/output"
)

const (
	defaultScanInterval   = 3 * time.Second
	defaultMinConnections = 3
)

// Detector is the part of the engine the pipeline drives.
type Detector interface {
	Ingest(obs model.ConnectionObservation) bool
	Scan(ctx context.Context, minConnections int) []engine.ScanResult
}

// Pipeline connects a connector, the detection engine and an output:
// observations are ingested as they arrive and every scan interval the
// active pairs are classified and intrusions are raised as alerts.
type Pipeline struct {
	connector connector.Connector
	detector  Detector
	output    output.Output

	scanInterval   time.Duration
	minConnections int
	maxBufferSize  int
	enabled        map[model.Category]bool // nil enables every intrusion category
	dedup          *dedup.Deduplicator
	alerts         *alertlog.Log
	metrics        *metrics.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithScanInterval sets how often active pairs are classified. Default: 3s.
func WithScanInterval(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.scanInterval = d
		}
	}
}

// WithMinConnections skips pairs with fewer connections. Default: 3.
func WithMinConnections(n int) Option {
	return func(p *Pipeline) { p.minConnections = n }
}

// WithDedup suppresses repeated alerts for the same pair and attack type.
func WithDedup(d *dedup.Deduplicator) Option {
	return func(p *Pipeline) { p.dedup = d }
}

// WithAlertLog records every emitted alert in l.
func WithAlertLog(l *alertlog.Log) Option {
	return func(p *Pipeline) { p.alerts = l }
}

// WithEnabledCategories restricts alerts to the given categories.
func WithEnabledCategories(cats []model.Category) Option {
	return func(p *Pipeline) {
		p.enabled = make(map[model.Category]bool, len(cats))
		for _, c := range cats {
			p.enabled[c] = true
		}
	}
}

// WithMaxBufferSize flushes the alert buffer early once it holds n alerts.
// 0 (default) flushes once per scan.
func WithMaxBufferSize(n int) Option {
	return func(p *Pipeline) { p.maxBufferSize = n }
}

// WithMetrics records alert and output activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline from the given components.
func New(conn connector.Connector, det Detector, out output.Output, opts ...Option) *Pipeline {
	p := &Pipeline{
		connector:      conn,
		detector:       det,
		output:         out,
		scanInterval:   defaultScanInterval,
		minConnections: defaultMinConnections,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stream ingests observations as they arrive and scans on a ticker. It
// blocks until ctx is cancelled or the source is exhausted; in the latter
// case a final scan runs before returning nil.
func (p *Pipeline) Stream(ctx context.Context, cfg connector.Config) error {
	ch, err := p.connector.Stream(ctx, cfg)
	if err != nil {
		return fmt.Errorf("pipeline stream: %w", err)
	}

	buf := newStreamBuffer(p.output, p.maxBufferSize)
	ticker := time.NewTicker(p.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.shutdown(ctx, buf)

		case obs, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return p.shutdown(ctx, buf)
				}
				p.scan(ctx, buf)
				return p.flush(ctx, buf)
			}
			p.detector.Ingest(obs)

		case <-ticker.C:
			p.scan(ctx, buf)
			if err := p.flush(ctx, buf); err != nil {
				log.Warn().Err(err).Msg("alert output failed")
			}
		}
	}
}

// shutdown delivers what the last scan buffered, bounded by a fresh
// deadline, and returns the cancellation cause.
func (p *Pipeline) shutdown(ctx context.Context, buf *streamBuffer) error {
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.flush(flushCtx, buf); err != nil {
		log.Warn().Err(err).Msg("final flush failed")
	}
	return ctx.Err()
}

// Query ingests a bounded batch, classifies every pair once and writes the
// resulting alerts, collapsed by the deduplicator when one is configured.
func (p *Pipeline) Query(ctx context.Context, cfg connector.Config, params connector.QueryParams) error {
	batch, err := p.connector.Query(ctx, cfg, params)
	if err != nil {
		return fmt.Errorf("pipeline query: %w", err)
	}
	for _, obs := range batch {
		p.detector.Ingest(obs)
	}

	var alerts []model.Alert
	for _, r := range p.detector.Scan(ctx, p.minConnections) {
		if a, ok := p.raise(r); ok {
			alerts = append(alerts, a)
		}
	}
	if p.dedup != nil {
		alerts = p.dedup.DeduplicateBatch(alerts)
	}

	var errs []error
	for _, a := range alerts {
		p.record(a)
		if err := p.output.Write(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("pipeline output: %w", err)
	}
	return nil
}

// Close shuts down the output.
func (p *Pipeline) Close() error {
	return p.output.Close()
}

// scan classifies the active pairs and buffers the admitted alerts.
func (p *Pipeline) scan(ctx context.Context, buf *streamBuffer) {
	results := p.detector.Scan(ctx, p.minConnections)
	now := time.Now()
	raised := 0
	for _, r := range results {
		a, ok := p.raise(r)
		if !ok {
			continue
		}
		if p.dedup != nil {
			if a, ok = p.dedup.Admit(a); !ok {
				continue
			}
		}
		p.record(a)
		raised++
		if buf.add(a) {
			if err := p.flush(ctx, buf); err != nil {
				log.Warn().Err(err).Msg("alert output failed")
			}
		}
	}
	if p.dedup != nil {
		p.dedup.Sweep(now)
	}
	log.Debug().Int("pairs", len(results)).Int("alerts", raised).Msg("scan complete")
}

// raise turns an intrusive verdict into an alert, honoring the per-category
// detection toggles.
func (p *Pipeline) raise(r engine.ScanResult) (model.Alert, bool) {
	v := r.Verdict
	if !v.IsIntrusion || v.Outcome == model.OutcomeIgnored {
		return model.Alert{}, false
	}
	if p.enabled != nil && !p.enabled[v.Category] {
		return model.Alert{}, false
	}
	return model.NewAlert(v, r.Stat), true
}

func (p *Pipeline) record(a model.Alert) {
	if p.alerts != nil {
		p.alerts.Record(a)
	}
	p.metrics.ObserveAlert(string(a.Category), a.Severity)
	log.Info().
		Str("attack_type", string(a.Category)).
		Str("severity", a.Severity).
		Str("source", a.Source).
		Str("destination", a.Destination).
		Float64("confidence", a.Confidence).
		Str("method", string(a.Method)).
		Int("connections", a.Connections).
		Msg("alert")
}

func (p *Pipeline) flush(ctx context.Context, buf *streamBuffer) error {
	if err := buf.flush(ctx); err != nil {
		p.metrics.ObserveOutputError("pipeline")
		return fmt.Errorf("pipeline output: %w", err)
	}
	return nil
}
