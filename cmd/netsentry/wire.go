package main

import (
	"fmt"

	"github.com/crimson-sun/netsentry/internal/alertlog"
	"github.com/crimson-sun/netsentry/internal/config"
	"github.com/crimson-sun/netsentry/internal/engine"
	"github.com/crimson-sun/netsentry/internal/engine/aggregator"
	"github.com/crimson-sun/netsentry/internal/engine/classifier"
	"github.com/crimson-sun/netsentry/internal/engine/dedup"
	"github.com/crimson-sun/netsentry/internal/engine/features"
	"github.com/crimson-sun/netsentry/internal/engine/reconciler"
	"github.com/crimson-sun/netsentry/internal/engine/rules"
	"github.com/crimson-sun/netsentry/internal/metrics"
	"github.com/crimson-sun/netsentry/internal/output"
	"github.com/crimson-sun/netsentry/internal/output/async"
	"github.com/crimson-sun/netsentry/internal/output/file"
	"github.com/crimson-sun/netsentry/internal/output/kafka"
	"github.com/crimson-sun/netsentry/internal/output/multi"
	"github.com/crimson-sun/netsentry/internal/output/stdout"
	"github.com/crimson-sun/netsentry/internal/output/webhook"
	"github.com/crimson-sun/netsentry/internal/pipeline"
)

// buildEngine loads the classifier once and assembles the detection engine.
// A missing or broken model degrades to the uniform backend.
func buildEngine(cfg config.Config, m *metrics.Metrics) *engine.Engine {
	lazy := classifier.NewLazy(cfg.Classifier)
	// Load has already logged the reason when the uniform backend serves.
	backend, _ := lazy.Load()

	return engine.New(
		aggregator.New(cfg.Aggregator),
		features.NewExtractor(),
		features.NewNormalizer(cfg.Features),
		rules.New(cfg.Rules),
		classifier.WithTimeout(lazy, cfg.Classifier.Timeout),
		reconciler.New(cfg.Thresholds),
		engine.WithMetrics(m),
		engine.WithBackendName(backend),
	)
}

// buildOutput creates the configured sinks, fanned out when there is more
// than one and made asynchronous when requested.
func buildOutput(cfg config.Config, m *metrics.Metrics) (output.Output, error) {
	verbosity, err := output.ParseVerbosity(cfg.Output.Verbosity)
	if err != nil {
		return nil, err
	}

	var sinks []multi.Sink
	closeAll := func() {
		for _, s := range sinks {
			s.Output.Close()
		}
	}
	for _, name := range cfg.Output.Sinks {
		var o output.Output
		switch name {
		case "stdout":
			o = stdout.New(verbosity, cfg.Output.Pretty)
		case "file":
			if o, err = file.New(cfg.Output.File, verbosity); err != nil {
				closeAll()
				return nil, err
			}
		case "kafka":
			if o, err = kafka.New(cfg.Output.Kafka, verbosity, kafka.WithOnDeliveryFailure(func(error) {
				m.ObserveOutputError("kafka")
			})); err != nil {
				closeAll()
				return nil, err
			}
		case "webhook":
			if o, err = webhook.New(cfg.Output.Webhook, verbosity, webhook.WithOnError(func(error) {
				m.ObserveOutputError("webhook")
			})); err != nil {
				closeAll()
				return nil, err
			}
		default:
			closeAll()
			return nil, fmt.Errorf("unknown output sink %q", name)
		}
		sinks = append(sinks, multi.Sink{Name: name, Output: o})
	}

	var out output.Output
	if len(sinks) == 1 {
		out = sinks[0].Output
	} else {
		out = multi.New(sinks, multi.WithOnError(func(name string, _ error) {
			m.ObserveOutputError(name)
		}))
	}
	if cfg.Output.Async {
		out = async.New(out, async.WithBufferSize(cfg.Output.BufferSize), async.WithOnError(func(err error) {
			m.ObserveOutputError("async")
		}))
	}
	return out, nil
}

func pipelineOptions(cfg config.Config, alerts *alertlog.Log, m *metrics.Metrics) []pipeline.Option {
	opts := []pipeline.Option{
		pipeline.WithScanInterval(cfg.Pipeline.ScanInterval),
		pipeline.WithMinConnections(cfg.Pipeline.MinConnections),
		pipeline.WithMaxBufferSize(cfg.Pipeline.MaxBufferSize),
		pipeline.WithEnabledCategories(cfg.Detection.Categories()),
		pipeline.WithAlertLog(alerts),
		pipeline.WithMetrics(m),
	}
	if cfg.Pipeline.DedupWindow > 0 {
		opts = append(opts, pipeline.WithDedup(dedup.New(dedup.Config{Window: cfg.Pipeline.DedupWindow})))
	}
	return opts
}
