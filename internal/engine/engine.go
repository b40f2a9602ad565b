package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/crimson-sun/netsentry/internal/engine/aggregator"
	"github.com/crimson-sun/netsentry/internal/engine/classifier"
	"github.com/crimson-sun/netsentry/internal/engine/features"
	"github.com/crimson-sun/netsentry/internal/engine/reconciler"
	"github.com/crimson-sun/netsentry/internal/engine/rules"
	"github.com/crimson-sun/netsentry/internal/metrics"
	"github.com/crimson-sun/netsentry/internal/model"
)

const tracerName = "github.com/crimson-sun/netsentry/internal/engine"

// Engine orchestrates aggregate -> extract -> normalize -> rules -> classify -> reconcile.
// Safe for concurrent use.
type Engine struct {
	aggregator *aggregator.Aggregator
	extractor  *features.Extractor
	normalizer *features.Normalizer
	rules      *rules.Engine
	classifier classifier.Model
	reconciler *reconciler.Reconciler

	metrics *metrics.Metrics
	tracer  trace.Tracer
	backend string
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records engine activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithBackendName labels inference metrics. Default: "model".
func WithBackendName(name string) Option {
	return func(e *Engine) { e.backend = name }
}

// New creates an Engine with the provided components. The classifier is a
// shared, already-constructed handle; the engine never loads models itself.
func New(agg *aggregator.Aggregator, ext *features.Extractor, nrm *features.Normalizer,
	rl *rules.Engine, cls classifier.Model, rec *reconciler.Reconciler, opts ...Option) *Engine {
	e := &Engine{
		aggregator: agg,
		extractor:  ext,
		normalizer: nrm,
		rules:      rl,
		classifier: cls,
		reconciler: rec,
		tracer:     otel.Tracer(tracerName),
		backend:    "model",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ingest folds an observation into the aggregator without classifying it.
func (e *Engine) Ingest(obs model.ConnectionObservation) bool {
	ok := e.aggregator.Ingest(obs)
	e.metrics.ObserveIngest(ok, e.aggregator.Len())
	return ok
}

// Classify ingests obs and classifies it against its pair's updated
// statistic. It never fails; check Verdict.Outcome to tell a real
// classification from an ignored or degraded one.
func (e *Engine) Classify(ctx context.Context, obs model.ConnectionObservation) model.Verdict {
	if !e.Ingest(obs) {
		v := model.Verdict{
			ClassificationResult: model.SafeDefault(),
			Outcome:              model.OutcomeIgnored,
		}
		fillPair(&v, obs)
		return v
	}
	stat, ok := e.aggregator.Snapshot(obs.Source, obs.Destination)
	if !ok {
		// Evicted between ingest and snapshot; classify the observation alone.
		stat = singleton(obs)
	}
	return e.Evaluate(ctx, obs, stat)
}

// Evaluate classifies obs against the given statistic without touching the
// aggregator. Identical inputs give identical verdicts for a deterministic model.
func (e *Engine) Evaluate(ctx context.Context, obs model.ConnectionObservation, stat model.AggregatedStat) model.Verdict {
	ctx, span := e.tracer.Start(ctx, "engine.Evaluate")
	defer span.End()

	regime := features.ClassifyRegime(stat.Count, stat.PortCount())
	vec := e.normalizer.Normalize(e.extractor.Extract(obs, stat))

	var (
		rulePtr *rules.Match
		dist    classifier.Distribution
		stepErr error
	)
	if m, ok := e.rules.Evaluate(stat, obs); ok {
		rulePtr = &m
	} else {
		dist, stepErr = e.predict(ctx, vec)
	}

	res, err := e.reconciler.Decide(stat, obs, rulePtr, dist)
	if err != nil {
		stepErr = err
	}

	v := model.Verdict{
		ClassificationResult: res,
		Outcome:              model.OutcomeClassified,
		Regime:               string(regime),
		Count:                stat.Count,
		Ports:                stat.PortCount(),
	}
	fillPair(&v, obs)
	if rulePtr != nil && res.Method == model.MethodRule {
		v.Rule = rulePtr.Rule
	}
	if stepErr != nil {
		v.Outcome = model.OutcomeDegraded
		v.ErrorKind = string(reconciler.KindOf(stepErr))
		span.RecordError(stepErr)
		span.SetStatus(codes.Error, v.ErrorKind)
	}

	span.SetAttributes(
		attribute.String("netsentry.pair", stat.Key.String()),
		attribute.String("netsentry.regime", v.Regime),
		attribute.String("netsentry.rule", v.Rule),
		attribute.String("netsentry.category", string(v.Category)),
		attribute.String("netsentry.method", string(v.Method)),
		attribute.Float64("netsentry.confidence", v.Confidence),
	)
	log.Debug().
		Str("pair", stat.Key.String()).
		Int("count", v.Count).
		Int("ports", v.Ports).
		Str("regime", v.Regime).
		Str("rule", v.Rule).
		Str("category", string(v.Category)).
		Str("method", string(v.Method)).
		Float64("confidence", v.Confidence).
		Str("outcome", string(v.Outcome)).
		Msg("verdict")
	e.metrics.ObserveVerdict(string(v.Category), string(v.Method), string(v.Outcome), v.Rule)

	return v
}

// predict runs the classifier. Failures degrade to a zero-confidence Normal
// distribution so the reconciler falls back to count buckets.
func (e *Engine) predict(ctx context.Context, vec features.Vector) (classifier.Distribution, error) {
	start := time.Now()
	dist, err := e.classifier.Predict(ctx, vec.Float32())
	e.metrics.ObserveInference(e.backend, time.Since(start))
	if err != nil {
		log.Warn().Err(err).Msg("classifier failed, degrading to count buckets")
		return classifier.Degraded(), err
	}
	return dist, nil
}

// ScanResult pairs a verdict with the statistic it was computed from.
type ScanResult struct {
	Verdict model.Verdict
	Stat    model.AggregatedStat
}

// Scan classifies every live pair with at least minConnections connections,
// using each pair's most recent observation.
func (e *Engine) Scan(ctx context.Context, minConnections int) []ScanResult {
	keys := e.aggregator.Pairs()
	e.metrics.SetTrackedPairs(len(keys))

	var out []ScanResult
	for _, k := range keys {
		if ctx.Err() != nil {
			break
		}
		stat, ok := e.aggregator.Snapshot(k.Source, k.Destination)
		if !ok || stat.Count < minConnections {
			continue
		}
		out = append(out, ScanResult{Verdict: e.Evaluate(ctx, stat.Last, stat), Stat: stat})
	}
	return out
}

// Snapshot exposes the aggregated statistic for a pair.
func (e *Engine) Snapshot(obs model.ConnectionObservation) (model.AggregatedStat, bool) {
	return e.aggregator.Snapshot(obs.Source, obs.Destination)
}

// Close releases the classifier.
func (e *Engine) Close() error {
	return e.classifier.Close()
}

func fillPair(v *model.Verdict, obs model.ConnectionObservation) {
	v.Pair = obs.Key()
	v.Source = obs.Source.String()
	v.Dest = obs.Destination.String()
	v.DestPort = obs.DestPort
	v.Timestamp = obs.Timestamp
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now()
	}
}

func singleton(obs model.ConnectionObservation) model.AggregatedStat {
	st := model.AggregatedStat{
		Key:       obs.Key(),
		Count:     1,
		Ports:     map[uint16]struct{}{obs.DestPort: {}},
		Flags:     map[string]int{},
		States:    map[string]int{},
		BytesSent: obs.BytesSent,
		BytesRecv: obs.BytesRecv,
		FirstSeen: obs.Timestamp,
		LastSeen:  obs.Timestamp,
		Last:      obs,
	}
	if f := model.CanonicalFlag(obs.Flag); f != "" {
		st.Flags[f] = 1
	}
	return st
}
