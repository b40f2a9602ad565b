package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crimson-sun/netsentry/internal/connector"
	"github.com/crimson-sun/netsentry/internal/engine/aggregator"
	"github.com/crimson-sun/netsentry/internal/engine/classifier"
	"github.com/crimson-sun/netsentry/internal/engine/features"
	"github.com/crimson-sun/netsentry/internal/engine/reconciler"
	"github.com/crimson-sun/netsentry/internal/engine/rules"
	"github.com/crimson-sun/netsentry/internal/metrics"
	"github.com/crimson-sun/netsentry/internal/model"
	"github.com/crimson-sun/netsentry/internal/output"
	"github.com/crimson-sun/netsentry/internal/output/file"
	"github.com/crimson-sun/netsentry/internal/output/kafka"
	"github.com/crimson-sun/netsentry/internal/output/webhook"
	"github.com/crimson-sun/netsentry/internal/tracing"
)

// Config holds all netsentry configuration.
type Config struct {
	Connector  connector.Config      `yaml:"connector"`
	Aggregator aggregator.Config     `yaml:"aggregator"`
	Features   features.Scales       `yaml:"features"`
	Rules      rules.Params          `yaml:"rules"`
	Thresholds reconciler.Thresholds `yaml:"thresholds"`
	Classifier classifier.Config     `yaml:"classifier"`
	Pipeline   PipelineConfig        `yaml:"pipeline"`
	Detection  DetectionConfig       `yaml:"detection"`
	Output     OutputConfig          `yaml:"output"`
	Logging    LoggingConfig         `yaml:"logging"`
	Metrics    metrics.Config        `yaml:"metrics"`
	Tracing    tracing.Config        `yaml:"tracing"`
}

// PipelineConfig controls the scan loop.
type PipelineConfig struct {
	ScanInterval   time.Duration `yaml:"scan_interval"`
	MinConnections int           `yaml:"min_connections"`
	AlertLogSize   int           `yaml:"alert_log_size"`
	DedupWindow    time.Duration `yaml:"dedup_window"` // 0 disables alert deduplication
	MaxBufferSize  int           `yaml:"max_buffer_size"`
}

// DetectionConfig toggles alerting per attack type.
type DetectionConfig struct {
	Enabled map[string]bool `yaml:"enabled"`
}

// Categories returns the intrusion categories that raise alerts, in
// canonical order. Categories absent from Enabled stay on.
func (d DetectionConfig) Categories() []model.Category {
	disabled := make(map[model.Category]bool)
	for name, on := range d.Enabled {
		if c, ok := parseCategory(name); ok && !on {
			disabled[c] = true
		}
	}
	var out []model.Category
	for _, c := range model.Categories {
		if c.IsIntrusion() && !disabled[c] {
			out = append(out, c)
		}
	}
	return out
}

// parseCategory is model.ParseCategory that rejects unrecognized names
// instead of mapping them to Unknown.
func parseCategory(name string) (model.Category, bool) {
	c := model.ParseCategory(name)
	if c == model.Unknown && !strings.EqualFold(strings.TrimSpace(name), string(model.Unknown)) {
		return "", false
	}
	return c, true
}

// OutputConfig holds alert destination settings.
type OutputConfig struct {
	Sinks      []string       `yaml:"sinks"` // stdout, file, kafka, webhook
	Pretty     bool           `yaml:"pretty"`
	Verbosity  string         `yaml:"verbosity"` // minimal, standard, full
	Async      bool           `yaml:"async"`     // decouple slow sinks from the scan loop
	BufferSize int            `yaml:"buffer_size"`
	File       file.Config    `yaml:"file"`
	Kafka      kafka.Config   `yaml:"kafka"`
	Webhook    webhook.Config `yaml:"webhook"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Connector:  connector.Config{Provider: "simulate"},
		Aggregator: aggregator.DefaultConfig(),
		Features:   features.DefaultScales(),
		Rules:      rules.DefaultParams(),
		Thresholds: reconciler.DefaultThresholds(),
		Classifier: classifier.DefaultConfig(),
		Pipeline: PipelineConfig{
			ScanInterval:   3 * time.Second,
			MinConnections: 3,
			AlertLogSize:   20,
			DedupWindow:    30 * time.Second,
		},
		Output: OutputConfig{
			Sinks:      []string{"stdout"},
			Verbosity:  "standard",
			BufferSize: 256,
			File:       file.Config{Path: "netsentry-alerts.jsonl", MaxSize: 10 << 20, MaxBackups: 5},
			Kafka:      kafka.DefaultConfig(),
		},
		Logging: LoggingConfig{Level: "info"},
		Metrics: metrics.Config{Addr: ":9108"},
		Tracing: tracing.Config{ServiceName: "netsentry", OTLPEndpoint: "localhost:4317", SampleRatio: 1},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then NETSENTRY_* environment overrides. The result is
// validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Connector.Provider = getenv("NETSENTRY_CONNECTOR", cfg.Connector.Provider)
	cfg.Connector.Path = getenv("NETSENTRY_REPLAY_PATH", cfg.Connector.Path)
	cfg.Connector.Endpoint = getenv("NETSENTRY_POLL_ENDPOINT", cfg.Connector.Endpoint)
	cfg.Connector.APIKey = getenv("NETSENTRY_POLL_TOKEN", cfg.Connector.APIKey)
	cfg.Connector.Extra = loadConnectorExtra(cfg.Connector.Extra)

	cfg.Aggregator.Window = getenvDuration("NETSENTRY_WINDOW", cfg.Aggregator.Window)
	cfg.Aggregator.MaxPairs = getenvInt("NETSENTRY_MAX_PAIRS", cfg.Aggregator.MaxPairs)

	cfg.Classifier.ModelPath = getenv("NETSENTRY_MODEL_PATH", cfg.Classifier.ModelPath)
	cfg.Classifier.LibraryPath = getenv("NETSENTRY_ORT_LIBRARY", cfg.Classifier.LibraryPath)
	cfg.Classifier.Timeout = getenvDuration("NETSENTRY_INFERENCE_TIMEOUT", cfg.Classifier.Timeout)

	cfg.Pipeline.ScanInterval = getenvDuration("NETSENTRY_SCAN_INTERVAL", cfg.Pipeline.ScanInterval)
	cfg.Pipeline.MinConnections = getenvInt("NETSENTRY_MIN_CONNECTIONS", cfg.Pipeline.MinConnections)
	cfg.Pipeline.AlertLogSize = getenvInt("NETSENTRY_ALERT_LOG_SIZE", cfg.Pipeline.AlertLogSize)
	cfg.Pipeline.DedupWindow = getenvDuration("NETSENTRY_DEDUP_WINDOW", cfg.Pipeline.DedupWindow)

	if v := os.Getenv("NETSENTRY_DETECTION_DISABLED"); v != "" {
		if cfg.Detection.Enabled == nil {
			cfg.Detection.Enabled = make(map[string]bool)
		}
		for _, name := range splitList(v) {
			if c, ok := parseCategory(name); ok {
				cfg.Detection.Enabled[string(c)] = false
			}
		}
	}

	if v := os.Getenv("NETSENTRY_OUTPUT"); v != "" {
		cfg.Output.Sinks = splitList(v)
	}
	cfg.Output.Pretty = getenvBool("NETSENTRY_OUTPUT_PRETTY", cfg.Output.Pretty)
	cfg.Output.Verbosity = getenv("NETSENTRY_VERBOSITY", cfg.Output.Verbosity)
	cfg.Output.Async = getenvBool("NETSENTRY_OUTPUT_ASYNC", cfg.Output.Async)
	cfg.Output.File.Path = getenv("NETSENTRY_OUTPUT_FILE", cfg.Output.File.Path)
	if v := os.Getenv("NETSENTRY_KAFKA_BROKERS"); v != "" {
		cfg.Output.Kafka.Brokers = splitList(v)
	}
	cfg.Output.Kafka.Topic = getenv("NETSENTRY_KAFKA_TOPIC", cfg.Output.Kafka.Topic)
	cfg.Output.Kafka.SASLUser = getenv("NETSENTRY_KAFKA_SASL_USER", cfg.Output.Kafka.SASLUser)
	cfg.Output.Kafka.SASLPassword = getenv("NETSENTRY_KAFKA_SASL_PASSWORD", cfg.Output.Kafka.SASLPassword)
	cfg.Output.Webhook.URL = getenv("NETSENTRY_WEBHOOK_URL", cfg.Output.Webhook.URL)
	cfg.Output.Webhook.Token = getenv("NETSENTRY_WEBHOOK_TOKEN", cfg.Output.Webhook.Token)

	cfg.Logging.Level = getenv("NETSENTRY_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.JSON = getenvBool("NETSENTRY_LOG_JSON", cfg.Logging.JSON)

	cfg.Metrics.Enabled = getenvBool("NETSENTRY_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Addr = getenv("NETSENTRY_METRICS_ADDR", cfg.Metrics.Addr)

	cfg.Tracing.Enabled = getenvBool("NETSENTRY_TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.OTLPEndpoint = getenv("NETSENTRY_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	cfg.Tracing.SampleRatio = getenvFloat("NETSENTRY_TRACE_SAMPLE_RATIO", cfg.Tracing.SampleRatio)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.Connector.Provider {
	case "replay":
		check(c.Connector.Path != "", "connector.path is required for the replay connector")
	case "poll":
		check(c.Connector.Endpoint != "", "connector.endpoint is required for the poll connector")
	}
	check(c.Aggregator.Window > 0, "aggregator.window must be positive")
	check(c.Aggregator.MaxPairs > 0, "aggregator.max_pairs must be positive")
	check(c.Classifier.Timeout > 0, "classifier.timeout must be positive")
	check(c.Pipeline.ScanInterval > 0, "pipeline.scan_interval must be positive")
	check(c.Pipeline.MinConnections >= 1, "pipeline.min_connections must be at least 1")
	check(c.Pipeline.AlertLogSize >= 1, "pipeline.alert_log_size must be at least 1")
	check(c.Pipeline.DedupWindow >= 0, "pipeline.dedup_window must not be negative")
	check(c.Tracing.SampleRatio >= 0 && c.Tracing.SampleRatio <= 1, "tracing.sample_ratio must be within [0,1]")

	t := c.Thresholds
	for name, v := range map[string]float64{
		"normal": t.Normal, "dos": t.DoS, "probe": t.Probe, "portscan": t.PortScan,
		"r2l": t.R2L, "u2r": t.U2R, "unknown": t.Unknown,
		"fallback_confidence": t.FallbackConfidence, "boost_cap": t.BoostCap,
	} {
		check(v >= 0 && v <= 1, "thresholds.%s must be within [0,1], got %v", name, v)
	}

	for name := range c.Detection.Enabled {
		_, ok := parseCategory(name)
		check(ok, "detection.enabled: unknown attack type %q", name)
	}

	if _, err := output.ParseVerbosity(c.Output.Verbosity); err != nil {
		errs = append(errs, fmt.Errorf("output.verbosity: %w", err))
	}
	check(len(c.Output.Sinks) > 0, "output.sinks must name at least one sink")
	for _, s := range c.Output.Sinks {
		switch s {
		case "stdout":
		case "file":
			check(c.Output.File.Path != "", "output.file.path is required for the file sink")
		case "kafka":
			if err := c.Output.Kafka.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("output.kafka: %w", err))
			}
		case "webhook":
			check(c.Output.Webhook.URL != "", "output.webhook.url is required for the webhook sink")
		default:
			check(false, "output.sinks: unknown sink %q", s)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadConnectorExtra overlays connector-specific env vars onto extra.
func loadConnectorExtra(extra map[string]string) map[string]string {
	vars := []struct {
		envVar   string
		extraKey string
	}{
		{"NETSENTRY_SIM_SCENARIO", "scenario"},
		{"NETSENTRY_SIM_RATE", "rate"},
		{"NETSENTRY_SIM_COUNT", "count"},
		{"NETSENTRY_SIM_TARGET", "target"},
		{"NETSENTRY_SIM_SEED", "seed"},
		{"NETSENTRY_REPLAY_RATE", "rate"},
		{"NETSENTRY_REPLAY_LOOP", "loop"},
		{"NETSENTRY_REPLAY_RESTAMP", "restamp"},
		{"NETSENTRY_POLL_INTERVAL", "poll_interval"},
		{"NETSENTRY_POLL_PATH", "path"},
	}

	for _, v := range vars {
		if val := os.Getenv(v.envVar); val != "" {
			if extra == nil {
				extra = make(map[string]string)
			}
			extra[v.extraKey] = val
		}
	}
	return extra
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
