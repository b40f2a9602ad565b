package connector

import (
	"context"
	"strconv"
	"time"

	"github.com/crimson-sun/netsentry/internal/model"
)

// Connector defines the interface every observation source implements.
type Connector interface {
	// Stream sends observations as they are produced until ctx is done or
	// the source is exhausted, then closes the channel.
	Stream(ctx context.Context, cfg Config) (<-chan model.ConnectionObservation, error)

	// Query returns a bounded batch of observations matching params.
	Query(ctx context.Context, cfg Config, params QueryParams) ([]model.ConnectionObservation, error)
}

// Config holds source-specific settings.
type Config struct {
	Provider string            `yaml:"provider"`
	Path     string            `yaml:"path"`     // replay file
	Endpoint string            `yaml:"endpoint"` // poll base URL
	APIKey   string            `yaml:"api_key"`  // poll bearer token
	Extra    map[string]string `yaml:"extra"`
}

// QueryParams filters a batch query. Zero values mean unbounded.
type QueryParams struct {
	Start time.Time
	End   time.Time
	Limit int
}

// Match reports whether ts falls within [Start, End).
func (p QueryParams) Match(ts time.Time) bool {
	if !p.Start.IsZero() && ts.Before(p.Start) {
		return false
	}
	if !p.End.IsZero() && !ts.Before(p.End) {
		return false
	}
	return true
}

// Duration reads a duration from Extra, falling back on absence or parse failure.
func (c Config) Duration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(c.Extra[key]); err == nil && d > 0 {
		return d
	}
	return fallback
}

// Int reads an integer from Extra.
func (c Config) Int(key string, fallback int) int {
	if n, err := strconv.Atoi(c.Extra[key]); err == nil {
		return n
	}
	return fallback
}

// Bool reads a boolean from Extra.
func (c Config) Bool(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(c.Extra[key]); err == nil {
		return b
	}
	return fallback
}

// Value reads a string from Extra.
func (c Config) Value(key, fallback string) string {
	if v := c.Extra[key]; v != "" {
		return v
	}
	return fallback
}
