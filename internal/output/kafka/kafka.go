package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	ckafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog/log"

	"github.com/crimson-sun/netsentry/internal/model"
	"github.com/crimson-sun/netsentry/internal/output"
)

const (
	schemaVersion = "v1"
	flushTimeout  = 10 * time.Second
)

// Config holds the producer settings.
type Config struct {
	Brokers     []string `yaml:"brokers"`
	Topic       string   `yaml:"topic"`
	Acks        string   `yaml:"acks"`
	Compression string   `yaml:"compression"`

	SASLMechanism string `yaml:"sasl_mechanism"`
	SASLUser      string `yaml:"sasl_user"`
	SASLPassword  string `yaml:"sasl_password"`

	TLSCAPath     string `yaml:"tls_ca"`
	TLSSkipVerify bool   `yaml:"tls_skip_verify"`
}

// DefaultConfig targets a local broker.
func DefaultConfig() Config {
	return Config{
		Brokers: []string{"localhost:9092"},
		Topic:   "netsentry.alerts",
		Acks:    "all",
	}
}

// ConfigMap translates cfg into librdkafka properties.
func (cfg Config) ConfigMap() *ckafka.ConfigMap {
	m := ckafka.ConfigMap{
		"bootstrap.servers": strings.Join(cfg.Brokers, ","),
		"acks":              cfg.Acks,
		"retries":           10,
		"retry.backoff.ms":  100,
		"linger.ms":         10,
	}
	if cfg.Compression != "" {
		m["compression.type"] = cfg.Compression
	}
	if cfg.SASLMechanism != "" {
		m["security.protocol"] = "SASL_SSL"
		m["sasl.mechanism"] = cfg.SASLMechanism
		if cfg.SASLUser != "" {
			m["sasl.username"] = cfg.SASLUser
		}
		if cfg.SASLPassword != "" {
			m["sasl.password"] = cfg.SASLPassword
		}
	}
	if cfg.TLSCAPath != "" {
		if cfg.SASLMechanism == "" {
			m["security.protocol"] = "SSL"
		}
		m["ssl.ca.location"] = cfg.TLSCAPath
	}
	if cfg.TLSSkipVerify {
		m["ssl.endpoint.identification.algorithm"] = "none"
	}
	return &m
}

// Validate reports missing required settings.
func (cfg Config) Validate() error {
	var errs []error
	if len(cfg.Brokers) == 0 {
		errs = append(errs, errors.New("kafka: at least one broker is required"))
	}
	if cfg.Topic == "" {
		errs = append(errs, errors.New("kafka: topic is required"))
	}
	return errors.Join(errs...)
}

// producer is the subset of *ckafka.Producer the output uses.
type producer interface {
	Produce(msg *ckafka.Message, deliveryChan chan ckafka.Event) error
	Events() chan ckafka.Event
	Flush(timeoutMs int) int
	Close()
}

// Output produces alerts to a Kafka topic keyed by alert ID.
type Output struct {
	cfg       Config
	verbosity output.Verbosity
	producer  producer
	onFailure func(error)

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Option configures an Output.
type Option func(*Output)

// WithOnDeliveryFailure registers a callback for asynchronous delivery failures.
func WithOnDeliveryFailure(f func(error)) Option {
	return func(o *Output) { o.onFailure = f }
}

// New creates the producer and starts the delivery report loop.
func New(cfg Config, verbosity output.Verbosity, opts ...Option) (*Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := ckafka.NewProducer(cfg.ConfigMap())
	if err != nil {
		return nil, fmt.Errorf("kafka output: create producer: %w", err)
	}
	return newOutput(cfg, verbosity, p, opts...), nil
}

func newOutput(cfg Config, verbosity output.Verbosity, p producer, opts ...Option) *Output {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Output{cfg: cfg, verbosity: verbosity, producer: p, cancel: cancel}
	for _, opt := range opts {
		opt(o)
	}
	o.wg.Add(1)
	go o.deliveryReports(ctx)
	return o
}

// Write enqueues the alert. Delivery is asynchronous; failures are reported
// through the delivery callback.
func (o *Output) Write(_ context.Context, alert model.Alert) error {
	msg, err := o.message(alert)
	if err != nil {
		return err
	}
	if err := o.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("kafka output: produce: %w", err)
	}
	return nil
}

func (o *Output) message(alert model.Alert) (*ckafka.Message, error) {
	value, err := json.Marshal(output.FormatAlert(alert, o.verbosity))
	if err != nil {
		return nil, fmt.Errorf("kafka output: marshal: %w", err)
	}
	return &ckafka.Message{
		TopicPartition: ckafka.TopicPartition{Topic: &o.cfg.Topic, Partition: ckafka.PartitionAny},
		Key:            []byte(alert.ID),
		Value:          value,
		Timestamp:      alert.Timestamp,
		Headers: []ckafka.Header{
			{Key: "attack_type", Value: []byte(alert.Category)},
			{Key: "severity", Value: []byte(alert.Severity)},
			{Key: "schema", Value: []byte(schemaVersion)},
		},
	}, nil
}

// Close flushes pending messages and closes the producer.
func (o *Output) Close() error {
	var err error
	o.once.Do(func() {
		if remaining := o.producer.Flush(int(flushTimeout.Milliseconds())); remaining > 0 {
			err = fmt.Errorf("kafka output: %d messages not flushed", remaining)
		}
		o.cancel()
		o.wg.Wait()
		o.producer.Close()
	})
	return err
}

func (o *Output) deliveryReports(ctx context.Context) {
	defer o.wg.Done()
	events := o.producer.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case *ckafka.Message:
				if e.TopicPartition.Error != nil {
					o.fail(fmt.Errorf("kafka delivery: %w", e.TopicPartition.Error))
				}
			case ckafka.Error:
				o.fail(fmt.Errorf("kafka: %w", e))
			}
		}
	}
}

func (o *Output) fail(err error) {
	log.Warn().Err(err).Str("topic", o.cfg.Topic).Msg("kafka output failure")
	if o.onFailure != nil {
		o.onFailure(err)
	}
}
