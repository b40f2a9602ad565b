package netsentry

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"github.com/crimson-sun/netsentry/internal/config"
	"github.com/crimson-sun/netsentry/internal/engine"
	"github.com/crimson-sun/netsentry/internal/engine/aggregator"
	"github.com/crimson-sun/netsentry/internal/engine/classifier"
	"github.com/crimson-sun/netsentry/internal/engine/features"
	"github.com/crimson-sun/netsentry/internal/engine/reconciler"
	"github.com/crimson-sun/netsentry/internal/engine/rules"
	"github.com/crimson-sun/netsentry/internal/model"
)

// Detector is a traffic classification engine.
// Safe for concurrent use.
type Detector struct {
	engine  *engine.Engine
	backend string
}

// New creates a Detector, loading the classifier artifact once. A missing or
// unreadable model is not an error: the Detector falls back to rules and
// count buckets and Backend reports "uniform".
func New(opts ...Option) (*Detector, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, fmt.Errorf("netsentry: %w", err)
		}
		cfg = loaded
	}
	if err := apply(&cfg, o); err != nil {
		return nil, fmt.Errorf("netsentry: %w", err)
	}

	lazy := classifier.NewLazy(cfg.Classifier)
	backend, _ := lazy.Load()

	eng := engine.New(
		aggregator.New(cfg.Aggregator),
		features.NewExtractor(),
		features.NewNormalizer(cfg.Features),
		rules.New(cfg.Rules),
		classifier.WithTimeout(lazy, cfg.Classifier.Timeout),
		reconciler.New(cfg.Thresholds),
		engine.WithBackendName(backend),
	)
	return &Detector{engine: eng, backend: backend}, nil
}

func apply(cfg *config.Config, o options) error {
	if o.modelPath != nil {
		cfg.Classifier.ModelPath = *o.modelPath
	}
	if o.timeout > 0 {
		cfg.Classifier.Timeout = o.timeout
	}
	if o.window > 0 {
		cfg.Aggregator.Window = o.window
	}
	if o.maxPairs > 0 {
		cfg.Aggregator.MaxPairs = o.maxPairs
	}
	for name, t := range o.thresholds {
		if t < 0 || t > 1 {
			return fmt.Errorf("threshold for %q must be within [0,1], got %v", name, t)
		}
		th := &cfg.Thresholds
		switch model.ParseCategory(name) {
		case model.Normal:
			th.Normal = t
		case model.DoS:
			th.DoS = t
		case model.Probe:
			th.Probe = t
		case model.PortScan:
			th.PortScan = t
		case model.R2L:
			th.R2L = t
		case model.U2R:
			th.U2R = t
		default:
			if !strings.EqualFold(name, string(model.Unknown)) {
				return fmt.Errorf("unknown category %q", name)
			}
			th.Unknown = t
		}
	}
	return nil
}

// Classify folds obs into its pair's history and classifies it. It never
// fails; check Verdict.Outcome for ignored or degraded results.
func (d *Detector) Classify(obs Observation) Verdict {
	return d.ClassifyContext(context.Background(), obs)
}

// ClassifyContext is Classify with a caller-supplied context, which bounds
// model inference in addition to the configured timeout.
func (d *Detector) ClassifyContext(ctx context.Context, obs Observation) Verdict {
	return verdictFromModel(d.engine.Classify(ctx, obs.internal()))
}

// Backend reports which classifier backend is serving: "onnx" or "uniform".
func (d *Detector) Backend() string {
	return d.backend
}

// Close releases model resources (ONNX runtime, memory).
func (d *Detector) Close() error {
	return d.engine.Close()
}

func (o Observation) internal() model.ConnectionObservation {
	return model.ConnectionObservation{
		Source:      parseAddr(o.Source),
		Destination: parseAddr(o.Destination),
		SourcePort:  o.SourcePort,
		DestPort:    o.DestPort,
		Protocol:    o.Protocol,
		Flag:        o.Flag,
		State:       o.State,
		BytesSent:   o.BytesSent,
		BytesRecv:   o.BytesRecv,
		Duration:    o.Duration,
		Timestamp:   o.Timestamp,
	}
}

// parseAddr returns the zero Addr for unparseable input, which the
// aggregator ignores.
func parseAddr(s string) netip.Addr {
	a, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}
	}
	return a
}

// verdictFromModel converts the internal Verdict to the public type.
func verdictFromModel(v model.Verdict) Verdict {
	return Verdict{
		IsIntrusion: v.IsIntrusion,
		Category:    string(v.Category),
		Confidence:  v.Confidence,
		Method:      string(v.Method),
		Outcome:     string(v.Outcome),
		ErrorKind:   v.ErrorKind,
		Rule:        v.Rule,
		Regime:      v.Regime,
		Severity:    v.Category.Severity(),
		Source:      v.Source,
		Destination: v.Dest,
		Connections: v.Count,
		Ports:       v.Ports,
		Timestamp:   v.Timestamp,
	}
}
