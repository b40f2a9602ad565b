package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/crimson-sun/netsentry/internal/config"
	"github.com/crimson-sun/netsentry/internal/connector"
	"github.com/crimson-sun/netsentry/internal/model"
	"github.com/crimson-sun/netsentry/internal/output/file"
	"github.com/crimson-sun/netsentry/internal/output/multi"
	"github.com/crimson-sun/netsentry/internal/output/stdout"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	os.Exit(m.Run())
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "netsentry "+version) {
		t.Fatalf("version output = %q", buf.String())
	}
}

func TestBuildOutput(t *testing.T) {
	tests := []struct {
		name    string
		sinks   []string
		check   func(t *testing.T, out any)
		wantErr bool
	}{
		{
			name:  "single stdout",
			sinks: []string{"stdout"},
			check: func(t *testing.T, out any) {
				if _, ok := out.(*stdout.Output); !ok {
					t.Fatalf("got %T, want *stdout.Output", out)
				}
			},
		},
		{
			name:  "single file",
			sinks: []string{"file"},
			check: func(t *testing.T, out any) {
				if _, ok := out.(*file.Output); !ok {
					t.Fatalf("got %T, want *file.Output", out)
				}
			},
		},
		{
			name:  "fan out",
			sinks: []string{"stdout", "file"},
			check: func(t *testing.T, out any) {
				if _, ok := out.(*multi.Multi); !ok {
					t.Fatalf("got %T, want *multi.Multi", out)
				}
			},
		},
		{name: "unknown sink", sinks: []string{"stdout", "carrier-pigeon"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Output.Sinks = tt.sinks
			cfg.Output.File.Path = filepath.Join(t.TempDir(), "alerts.jsonl")

			out, err := buildOutput(cfg, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildOutput: %v", err)
			}
			defer out.Close()
			tt.check(t, out)
		})
	}
}

func TestSimulatedFloodClassifiesAsDoS(t *testing.T) {
	cfg := config.Default()
	cfg.Connector.Provider = "simulate"
	cfg.Connector.Extra = map[string]string{"scenario": "dos", "count": "150", "seed": "7"}

	eng := buildEngine(cfg, nil)
	defer eng.Close()

	conn, err := resolveConnector(cfg)
	if err != nil {
		t.Fatalf("resolveConnector: %v", err)
	}
	batch, err := conn.Query(t.Context(), cfg.Connector, connector.QueryParams{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(batch) != 150 {
		t.Fatalf("batch = %d observations, want 150", len(batch))
	}

	var last model.Verdict
	for _, obs := range batch {
		last = eng.Classify(t.Context(), obs)
	}
	if last.Category != model.DoS || last.Method != model.MethodRule {
		t.Fatalf("last verdict = %s/%s, want DoS/rule", last.Category, last.Method)
	}
}
