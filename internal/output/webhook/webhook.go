package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crimson-sun/netsentry/internal/connector/httpclient"
	"github.com/crimson-sun/netsentry/internal/model"
	"github.com/crimson-sun/netsentry/internal/output"
)

const (
	defaultBatchSize     = 50
	defaultFlushInterval = 5 * time.Second
	defaultTimeout       = 10 * time.Second
)

// Config holds settings for the alert webhook.
type Config struct {
	URL           string            `yaml:"url"`
	Token         string            `yaml:"token"` // sent as a Bearer token when set
	Headers       map[string]string `yaml:"headers"`
	BatchSize     int               `yaml:"batch_size"`
	FlushInterval time.Duration     `yaml:"flush_interval"`
	Timeout       time.Duration     `yaml:"timeout"`
}

// Option configures a webhook Output.
type Option func(*Output)

// WithOnError sets a callback invoked when a timer-triggered flush fails.
// Default: logs a warning.
func WithOnError(f func(error)) Option {
	return func(o *Output) { o.errFunc = f }
}

// WithBackoff sets the first retry delay of the underlying client.
func WithBackoff(d time.Duration) Option {
	return func(o *Output) { o.clientOpts = append(o.clientOpts, httpclient.WithBackoff(d)) }
}

// Output POSTs batched alerts to an HTTP endpoint as a JSON array.
// Alerts accumulate until BatchSize is reached or FlushInterval elapses.
// 429 and 5xx responses are retried with backoff.
type Output struct {
	client        *httpclient.Client
	clientOpts    []httpclient.Option
	verbosity     output.Verbosity
	batchSize     int
	flushInterval time.Duration
	timeout       time.Duration
	errFunc       func(error)

	sendMu  sync.Mutex // serializes POSTs so batches arrive in order
	mu      sync.Mutex
	pending []model.Alert
	timer   *time.Timer
	closed  bool
}

// New creates a webhook output targeting cfg.URL.
func New(cfg Config, verbosity output.Verbosity, opts ...Option) (*Output, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook output: url is required")
	}
	o := &Output{
		verbosity:     verbosity,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		timeout:       cfg.Timeout,
		errFunc: func(err error) {
			log.Warn().Err(err).Str("output", "webhook").Msg("flush error")
		},
	}
	if o.batchSize <= 0 {
		o.batchSize = defaultBatchSize
	}
	if o.flushInterval <= 0 {
		o.flushInterval = defaultFlushInterval
	}
	if o.timeout <= 0 {
		o.timeout = defaultTimeout
	}
	for _, opt := range opts {
		opt(o)
	}
	clientOpts := append([]httpclient.Option{
		httpclient.WithTimeout(o.timeout),
		httpclient.WithHeaders(cfg.Headers),
	}, o.clientOpts...)
	o.client = httpclient.New(cfg.URL, cfg.Token, clientOpts...)
	return o, nil
}

// Write appends an alert to the batch. A full batch is sent immediately;
// otherwise a timer started by the first alert sends it.
func (o *Output) Write(ctx context.Context, alert model.Alert) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return errors.New("webhook output: closed")
	}
	o.pending = append(o.pending, output.FormatAlert(alert, o.verbosity))

	if len(o.pending) >= o.batchSize {
		batch := o.takeLocked()
		o.mu.Unlock()
		return o.send(ctx, batch)
	}
	if len(o.pending) == 1 {
		o.timer = time.AfterFunc(o.flushInterval, o.flushOnTimer)
	}
	o.mu.Unlock()
	return nil
}

func (o *Output) flushOnTimer() {
	o.mu.Lock()
	batch := o.takeLocked()
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), o.deadline())
	defer cancel()
	if err := o.send(ctx, batch); err != nil {
		o.errFunc(err)
	}
}

// Close sends any remaining alerts. Later writes fail.
func (o *Output) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	batch := o.takeLocked()
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), o.deadline())
	defer cancel()
	return o.send(ctx, batch)
}

// takeLocked detaches the pending batch and stops its timer. Caller must hold o.mu.
func (o *Output) takeLocked() []model.Alert {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	batch := o.pending
	o.pending = nil
	return batch
}

func (o *Output) send(ctx context.Context, batch []model.Alert) error {
	if len(batch) == 0 {
		return nil
	}
	o.sendMu.Lock()
	defer o.sendMu.Unlock()
	if err := o.client.PostJSON(ctx, "", batch); err != nil {
		return fmt.Errorf("webhook output: %d alerts: %w", len(batch), err)
	}
	return nil
}

// deadline bounds a background send including its retries.
func (o *Output) deadline() time.Duration {
	return 4 * o.timeout
}
