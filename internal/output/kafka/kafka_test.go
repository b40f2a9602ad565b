package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	ckafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/crimson-sun/netsentry/internal/model"
	"github.com/crimson-sun/netsentry/internal/output"
)

type fakeProducer struct {
	mu       sync.Mutex
	produced []*ckafka.Message
	events   chan ckafka.Event
	err      error
	pending  int
	closed   bool
}

func newFakeProducer() *fakeProducer {
	return &fakeProducer{events: make(chan ckafka.Event, 8)}
}

func (f *fakeProducer) Produce(msg *ckafka.Message, _ chan ckafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.produced = append(f.produced, msg)
	return nil
}

func (f *fakeProducer) Events() chan ckafka.Event { return f.events }
func (f *fakeProducer) Flush(int) int             { return f.pending }
func (f *fakeProducer) Close()                    { f.closed = true }

func testAlert() model.Alert {
	return model.Alert{
		ID:        "5e0c7c43-9a39-4bb0-a0a1-7f1f9b8b7d10",
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Source:    "203.0.113.7",
		Category:  model.DoS,
		Severity:  "high",
		Rule:      "syn-flood",
	}
}

func TestWriteProducesKeyedMessage(t *testing.T) {
	fp := newFakeProducer()
	o := newOutput(DefaultConfig(), output.Standard, fp)
	defer o.Close()

	if err := o.Write(context.Background(), testAlert()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(fp.produced) != 1 {
		t.Fatalf("produced %d messages, want 1", len(fp.produced))
	}
	msg := fp.produced[0]
	if string(msg.Key) != testAlert().ID {
		t.Errorf("Key = %q, want alert id", msg.Key)
	}
	if *msg.TopicPartition.Topic != "netsentry.alerts" {
		t.Errorf("Topic = %q", *msg.TopicPartition.Topic)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["attack_type"] != "DoS" || headers["severity"] != "high" || headers["schema"] != "v1" {
		t.Errorf("headers = %v", headers)
	}
	var decoded model.Alert
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Rule != "syn-flood" {
		t.Errorf("decoded rule = %q", decoded.Rule)
	}
}

func TestWriteProduceError(t *testing.T) {
	fp := newFakeProducer()
	fp.err = errors.New("queue full")
	o := newOutput(DefaultConfig(), output.Standard, fp)
	defer o.Close()

	if err := o.Write(context.Background(), testAlert()); err == nil {
		t.Fatal("expected produce error")
	}
}

func TestDeliveryFailureReported(t *testing.T) {
	fp := newFakeProducer()
	failures := make(chan error, 1)
	o := newOutput(DefaultConfig(), output.Standard, fp, WithOnDeliveryFailure(func(err error) { failures <- err }))
	defer o.Close()

	topic := "netsentry.alerts"
	fp.events <- &ckafka.Message{TopicPartition: ckafka.TopicPartition{Topic: &topic, Error: errors.New("broker unreachable")}}

	select {
	case err := <-failures:
		if err == nil {
			t.Fatal("nil failure")
		}
	case <-time.After(time.Second):
		t.Fatal("delivery failure not reported")
	}
}

func TestCloseReportsUnflushed(t *testing.T) {
	fp := newFakeProducer()
	fp.pending = 3
	o := newOutput(DefaultConfig(), output.Standard, fp)

	if err := o.Close(); err == nil {
		t.Fatal("expected unflushed error")
	}
	if !fp.closed {
		t.Error("producer not closed")
	}
	if err := o.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestConfigMap(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want map[string]any
	}{
		{
			name: "plain",
			cfg:  Config{Brokers: []string{"a:9092", "b:9092"}, Topic: "t", Acks: "1"},
			want: map[string]any{"bootstrap.servers": "a:9092,b:9092", "acks": "1"},
		},
		{
			name: "sasl",
			cfg:  Config{Brokers: []string{"a:9092"}, Topic: "t", SASLMechanism: "PLAIN", SASLUser: "u", SASLPassword: "p"},
			want: map[string]any{"security.protocol": "SASL_SSL", "sasl.mechanism": "PLAIN", "sasl.username": "u"},
		},
		{
			name: "tls",
			cfg:  Config{Brokers: []string{"a:9092"}, Topic: "t", TLSCAPath: "/ca.pem", TLSSkipVerify: true, Compression: "zstd"},
			want: map[string]any{
				"security.protocol":                     "SSL",
				"ssl.ca.location":                       "/ca.pem",
				"ssl.endpoint.identification.algorithm": "none",
				"compression.type":                      "zstd",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := *tt.cfg.ConfigMap()
			for k, v := range tt.want {
				if m[k] != v {
					t.Errorf("%s = %v, want %v", k, m[k], v)
				}
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if err := (Config{}).Validate(); err == nil {
		t.Fatal("empty config should be invalid")
	}
}
