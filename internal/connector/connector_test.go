package connector

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/crimson-sun/netsentry/internal/model"
)

type nopConnector struct{}

func (nopConnector) Stream(context.Context, Config) (<-chan model.ConnectionObservation, error) {
	ch := make(chan model.ConnectionObservation)
	close(ch)
	return ch, nil
}

func (nopConnector) Query(context.Context, Config, QueryParams) ([]model.ConnectionObservation, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	Register("zz-test", func() Connector { return nopConnector{} })
	Register("aa-test", func() Connector { return nopConnector{} })

	ctor, err := Get("zz-test")
	if err != nil || ctor() == nil {
		t.Fatalf("Get = %v", err)
	}

	names := Providers()
	ai, zi := -1, -1
	for i, n := range names {
		switch n {
		case "aa-test":
			ai = i
		case "zz-test":
			zi = i
		}
	}
	if ai < 0 || zi < 0 || ai > zi {
		t.Errorf("Providers = %v, want sorted with both test entries", names)
	}

	if _, err := Get("missing"); err == nil || !strings.Contains(err.Error(), "aa-test") {
		t.Errorf("Get(missing) err = %v, want list of registered providers", err)
	}
}

func TestQueryParamsMatch(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := QueryParams{Start: t0, End: t0.Add(time.Minute)}

	tests := []struct {
		ts   time.Time
		want bool
	}{
		{t0.Add(-time.Second), false},
		{t0, true},
		{t0.Add(30 * time.Second), true},
		{t0.Add(time.Minute), false},
	}
	for _, tt := range tests {
		if got := p.Match(tt.ts); got != tt.want {
			t.Errorf("Match(%v) = %v, want %v", tt.ts, got, tt.want)
		}
	}
	if !(QueryParams{}).Match(t0) {
		t.Error("zero params must match everything")
	}
}

func TestConfigExtra(t *testing.T) {
	cfg := Config{Extra: map[string]string{
		"rate": "25", "interval": "250ms", "loop": "true", "scenario": "dos", "bad": "x",
	}}
	if got := cfg.Int("rate", 1); got != 25 {
		t.Errorf("Int = %d", got)
	}
	if got := cfg.Int("bad", 7); got != 7 {
		t.Errorf("Int fallback = %d", got)
	}
	if got := cfg.Duration("interval", time.Second); got != 250*time.Millisecond {
		t.Errorf("Duration = %v", got)
	}
	if got := cfg.Duration("missing", time.Second); got != time.Second {
		t.Errorf("Duration fallback = %v", got)
	}
	if !cfg.Bool("loop", false) || cfg.Bool("bad", false) {
		t.Error("Bool parse")
	}
	if cfg.Value("scenario", "normal") != "dos" || cfg.Value("missing", "normal") != "normal" {
		t.Error("Value parse")
	}
}
