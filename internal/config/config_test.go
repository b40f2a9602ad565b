package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/crimson-sun/netsentry/internal/model"
)

// clearEnv unsets every NETSENTRY_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "NETSENTRY_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netsentry.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Connector.Provider != "simulate" {
		t.Errorf("provider = %q, want simulate", cfg.Connector.Provider)
	}
	if cfg.Pipeline.ScanInterval != 3*time.Second || cfg.Pipeline.MinConnections != 3 || cfg.Pipeline.AlertLogSize != 20 {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Thresholds.Version != "2026.1" || cfg.Thresholds.DoS != 0.6 {
		t.Errorf("thresholds = %+v", cfg.Thresholds)
	}
	if cfg.Classifier.Timeout != 200*time.Millisecond {
		t.Errorf("classifier timeout = %v", cfg.Classifier.Timeout)
	}
	if len(cfg.Output.Sinks) != 1 || cfg.Output.Sinks[0] != "stdout" {
		t.Errorf("sinks = %v", cfg.Output.Sinks)
	}
	if cfg.Connector.Extra != nil {
		t.Errorf("expected nil Extra, got %v", cfg.Connector.Extra)
	}
	if got := cfg.Detection.Categories(); len(got) != 6 {
		t.Errorf("enabled categories = %v, want all six intrusion categories", got)
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
connector:
  provider: replay
  path: /var/lib/netsentry/capture.ndjson
  extra:
    rate: "100"
aggregator:
  window: 2m
thresholds:
  version: "2026.1-site"
  dos: 0.7
pipeline:
  scan_interval: 5s
  min_connections: 4
detection:
  enabled:
    portscan: false
    R2L: false
output:
  sinks: [stdout, file]
  verbosity: full
  file:
    path: /tmp/alerts.jsonl
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Connector.Provider != "replay" || cfg.Connector.Extra["rate"] != "100" {
		t.Errorf("connector = %+v", cfg.Connector)
	}
	if cfg.Aggregator.Window != 2*time.Minute {
		t.Errorf("window = %v", cfg.Aggregator.Window)
	}
	if cfg.Aggregator.MaxPairs != 5000 {
		t.Errorf("unset fields must keep defaults, max_pairs = %d", cfg.Aggregator.MaxPairs)
	}
	if cfg.Thresholds.DoS != 0.7 || cfg.Thresholds.Probe != 0.5 || cfg.Thresholds.Version != "2026.1-site" {
		t.Errorf("thresholds = %+v", cfg.Thresholds)
	}
	if cfg.Pipeline.ScanInterval != 5*time.Second || cfg.Pipeline.MinConnections != 4 {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	cats := cfg.Detection.Categories()
	for _, c := range cats {
		if c == model.PortScan || c == model.R2L {
			t.Errorf("%s should be disabled", c)
		}
	}
	if len(cats) != 4 {
		t.Errorf("enabled = %v, want 4", cats)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "pipeline:\n  scan_interval: 5s\n")
	t.Setenv("NETSENTRY_SCAN_INTERVAL", "1s")
	t.Setenv("NETSENTRY_MIN_CONNECTIONS", "10")
	t.Setenv("NETSENTRY_MODEL_PATH", "/models/ids.onnx")
	t.Setenv("NETSENTRY_OUTPUT", "stdout, kafka")
	t.Setenv("NETSENTRY_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("NETSENTRY_OUTPUT_PRETTY", "true")
	t.Setenv("NETSENTRY_DETECTION_DISABLED", "dos,bogus")
	t.Setenv("NETSENTRY_SIM_SCENARIO", "portscan")
	t.Setenv("NETSENTRY_TRACE_SAMPLE_RATIO", "0.25")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.ScanInterval != time.Second || cfg.Pipeline.MinConnections != 10 {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Classifier.ModelPath != "/models/ids.onnx" {
		t.Errorf("model path = %q", cfg.Classifier.ModelPath)
	}
	if len(cfg.Output.Sinks) != 2 || cfg.Output.Sinks[1] != "kafka" {
		t.Errorf("sinks = %v", cfg.Output.Sinks)
	}
	if len(cfg.Output.Kafka.Brokers) != 2 || !cfg.Output.Pretty {
		t.Errorf("output = %+v", cfg.Output)
	}
	if cfg.Detection.Enabled["DoS"] {
		t.Error("DoS should be disabled")
	}
	if len(cfg.Detection.Enabled) != 1 {
		t.Errorf("unknown names must be ignored: %v", cfg.Detection.Enabled)
	}
	if cfg.Connector.Extra["scenario"] != "portscan" {
		t.Errorf("extra = %v", cfg.Connector.Extra)
	}
	if cfg.Tracing.SampleRatio != 0.25 {
		t.Errorf("sample ratio = %v", cfg.Tracing.SampleRatio)
	}
}

func TestLoadInvalidEnvKeepsFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("NETSENTRY_SCAN_INTERVAL", "soon")
	t.Setenv("NETSENTRY_MAX_PAIRS", "many")
	t.Setenv("NETSENTRY_LOG_JSON", "maybe")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.ScanInterval != 3*time.Second || cfg.Aggregator.MaxPairs != 5000 || cfg.Logging.JSON {
		t.Errorf("unparseable env values must fall back: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"threshold out of range", "thresholds:\n  dos: 1.5\n", "thresholds.dos"},
		{"unknown sink", "output:\n  sinks: [carrier-pigeon]\n", "unknown sink"},
		{"bad verbosity", "output:\n  verbosity: loud\n", "output.verbosity"},
		{"zero scan interval", "pipeline:\n  scan_interval: 0s\n", "scan_interval"},
		{"unknown category", "detection:\n  enabled:\n    ransomware: false\n", "ransomware"},
		{"kafka without topic", "output:\n  sinks: [kafka]\n  kafka:\n    topic: \"\"\n", "topic"},
		{"malformed yaml", "pipeline: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}

	if _, err := Load("/nonexistent/netsentry.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.MinConnections = 0
	cfg.Pipeline.AlertLogSize = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"min_connections", "alert_log_size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %s", err, want)
		}
	}
}

func TestPollAndWebhookEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("NETSENTRY_CONNECTOR", "poll")
	t.Setenv("NETSENTRY_POLL_ENDPOINT", "http://sensor.local:8089")
	t.Setenv("NETSENTRY_POLL_TOKEN", "sensor-token")
	t.Setenv("NETSENTRY_POLL_INTERVAL", "5s")
	t.Setenv("NETSENTRY_OUTPUT", "stdout,webhook")
	t.Setenv("NETSENTRY_WEBHOOK_URL", "https://hooks.example.com/netsentry")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Connector.Endpoint != "http://sensor.local:8089" || cfg.Connector.APIKey != "sensor-token" {
		t.Errorf("connector = %+v", cfg.Connector)
	}
	if cfg.Connector.Extra["poll_interval"] != "5s" {
		t.Errorf("poll_interval = %q", cfg.Connector.Extra["poll_interval"])
	}
	if cfg.Output.Webhook.URL != "https://hooks.example.com/netsentry" {
		t.Errorf("webhook url = %q", cfg.Output.Webhook.URL)
	}
}

func TestConnectorRequirements(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"poll", "connector.endpoint"},
		{"replay", "connector.path"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := Default()
			cfg.Connector.Provider = tt.provider
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error mentioning %s", err, tt.want)
			}
		})
	}

	cfg := Default()
	cfg.Output.Sinks = []string{"webhook"}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "output.webhook.url") {
		t.Fatalf("Validate() = %v, want webhook url error", err)
	}
}
