package async

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crimson-sun/netsentry/internal/model"
	"github.com/crimson-sun/netsentry/internal/output"
)

const (
	defaultBufferSize   = 256
	defaultDrainTimeout = 5 * time.Second
)

// Option configures an Async wrapper.
type Option func(*Async)

// WithBufferSize sets the channel capacity. Default: 256.
func WithBufferSize(n int) Option {
	return func(a *Async) { a.bufSize = n }
}

// WithOnError sets the callback invoked when the inner output fails.
// Default: logs a warning.
func WithOnError(f func(error)) Option {
	return func(a *Async) { a.onError = f }
}

// WithDropOnFull makes Write drop the alert instead of blocking when the
// buffer is full. onDrop, if non-nil, is called for every dropped alert.
func WithDropOnFull(onDrop func(model.Alert)) Option {
	return func(a *Async) {
		a.dropOnFull = true
		a.onDrop = onDrop
	}
}

// Async hands alerts to a background goroutine that writes them to the
// wrapped output, so a slow sink (Kafka, a full disk) never stalls the scan loop.
type Async struct {
	inner      output.Output
	ch         chan model.Alert
	done       chan struct{}
	onError    func(error)
	onDrop     func(model.Alert)
	bufSize    int
	dropOnFull bool

	mu     sync.RWMutex
	closed bool
}

// New wraps inner and starts the drain goroutine.
func New(inner output.Output, opts ...Option) *Async {
	a := &Async{
		inner:   inner,
		bufSize: defaultBufferSize,
		onError: func(err error) { log.Warn().Err(err).Msg("async output write failed") },
	}
	for _, opt := range opts {
		opt(a)
	}
	a.ch = make(chan model.Alert, a.bufSize)
	a.done = make(chan struct{})
	go a.drain()
	return a
}

// Write queues the alert. It blocks while the buffer is full unless the
// wrapper drops on full, and gives up when ctx is cancelled. Writes after
// Close are discarded.
func (a *Async) Write(ctx context.Context, alert model.Alert) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}

	if a.dropOnFull {
		select {
		case a.ch <- alert:
		default:
			log.Warn().Str("attack_type", string(alert.Category)).Str("source", alert.Source).
				Msg("async output buffer full, dropping alert")
			if a.onDrop != nil {
				a.onDrop(alert)
			}
		}
		return nil
	}

	select {
	case a.ch <- alert:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting alerts, waits for the queue to drain (bounded by a
// timeout), then closes the inner output. Safe to call more than once.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()

	select {
	case <-a.done:
	case <-time.After(defaultDrainTimeout):
		log.Warn().Int("pending", len(a.ch)).Msg("async output drain timed out")
	}
	return a.inner.Close()
}

func (a *Async) drain() {
	defer close(a.done)
	for alert := range a.ch {
		if err := a.inner.Write(context.Background(), alert); err != nil {
			a.onError(err)
		}
	}
}
