package classifier

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crimson-sun/netsentry/internal/model"
)

// Config selects and bounds the classifier backend.
type Config struct {
	ModelPath      string        `yaml:"model_path"`
	LibraryPath    string        `yaml:"library_path"` // onnxruntime shared library; defaults next to the model
	Labels         []string      `yaml:"labels"`       // model output order; defaults to DefaultLabels
	Timeout        time.Duration `yaml:"timeout"`
	IntraOpThreads int           `yaml:"intra_op_threads"`
}

// DefaultConfig returns the classifier defaults.
func DefaultConfig() Config {
	return Config{
		ModelPath: "models/netsentry.onnx",
		Timeout:   200 * time.Millisecond,
	}
}

func (c Config) categories() []model.Category {
	if len(c.Labels) == 0 {
		return append([]model.Category(nil), DefaultLabels...)
	}
	out := make([]model.Category, len(c.Labels))
	for i, l := range c.Labels {
		out[i] = model.ParseCategory(l)
	}
	return out
}

// Backend names reported by Lazy.Backend.
const (
	BackendONNX    = "onnx"
	BackendUniform = "uniform"
)

// Lazy loads the configured model on first use and shares it read-only
// afterwards. When no artifact exists, or it fails to load, it serves the
// near-uniform fallback instead. Create one per process and pass it to the
// engine.
type Lazy struct {
	cfg Config

	once    sync.Once
	model   Model
	backend string
	loadErr error
}

// NewLazy creates a lazily loaded classifier. Nothing is read until the
// first Predict or Load call.
func NewLazy(cfg Config) *Lazy {
	return &Lazy{cfg: cfg}
}

// Load forces the model load and reports which backend is serving.
// The returned error explains why the fallback was chosen, if it was.
func (l *Lazy) Load() (string, error) {
	l.once.Do(l.load)
	return l.backend, l.loadErr
}

func (l *Lazy) load() {
	labels := l.cfg.categories()
	if l.cfg.ModelPath == "" {
		l.fallback(labels, ErrUnavailable)
		return
	}
	if _, err := os.Stat(l.cfg.ModelPath); err != nil {
		l.fallback(labels, errors.Join(ErrUnavailable, err))
		return
	}
	m, err := NewONNX(l.cfg)
	if err != nil {
		l.fallback(labels, errors.Join(ErrUnavailable, err))
		return
	}
	l.model, l.backend = m, BackendONNX
	log.Info().Str("path", l.cfg.ModelPath).Int("labels", len(labels)).Msg("classifier model loaded")
}

func (l *Lazy) fallback(labels []model.Category, err error) {
	l.model, l.backend, l.loadErr = NewUniform(labels), BackendUniform, err
	log.Warn().Err(err).Str("path", l.cfg.ModelPath).Msg("no trained classifier available, using uniform fallback")
}

// Backend returns the serving backend, loading the model if needed.
func (l *Lazy) Backend() string {
	b, _ := l.Load()
	return b
}

// Predict loads the model if needed and runs inference.
func (l *Lazy) Predict(ctx context.Context, vec []float32) (Distribution, error) {
	l.once.Do(l.load)
	return l.model.Predict(ctx, vec)
}

// Close releases the loaded model, if any.
func (l *Lazy) Close() error {
	if l.model == nil {
		return nil
	}
	return l.model.Close()
}
