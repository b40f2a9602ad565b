package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crimson-sun/netsentry/internal/model"
	"github.com/crimson-sun/netsentry/internal/output"
)

func testAlert(cat model.Category) model.Alert {
	return model.Alert{
		ID:            "a-" + string(cat),
		Timestamp:     time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC),
		Source:        "203.0.113.7",
		Destination:   "10.0.0.5",
		Category:      cat,
		Severity:      cat.Severity(),
		Confidence:    0.9,
		StatusPattern: map[string]int{"SYN_SENT": 120},
	}
}

type receiver struct {
	mu      sync.Mutex
	batches [][]model.Alert
	headers []http.Header
}

func (rc *receiver) handler(w http.ResponseWriter, r *http.Request) {
	var batch []model.Alert
	json.NewDecoder(r.Body).Decode(&batch)
	rc.mu.Lock()
	rc.batches = append(rc.batches, batch)
	rc.headers = append(rc.headers, r.Header.Clone())
	rc.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (rc *receiver) snapshot() [][]model.Alert {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([][]model.Alert(nil), rc.batches...)
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(Config{}, output.Standard); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestBatchFlushAtBatchSize(t *testing.T) {
	rc := &receiver{}
	srv := httptest.NewServer(http.HandlerFunc(rc.handler))
	defer srv.Close()

	out, err := New(Config{URL: srv.URL, BatchSize: 3, FlushInterval: 10 * time.Second}, output.Standard)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()

	for range 3 {
		if err := out.Write(context.Background(), testAlert(model.DoS)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	got := rc.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(got))
	}
	if len(got[0]) != 3 {
		t.Errorf("batch size = %d, want 3", len(got[0]))
	}
}

func TestFlushOnInterval(t *testing.T) {
	rc := &receiver{}
	srv := httptest.NewServer(http.HandlerFunc(rc.handler))
	defer srv.Close()

	out, err := New(Config{URL: srv.URL, BatchSize: 100, FlushInterval: 50 * time.Millisecond}, output.Standard)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()

	out.Write(context.Background(), testAlert(model.Probe))
	time.Sleep(300 * time.Millisecond)

	got := rc.snapshot()
	if len(got) != 1 || len(got[0]) != 1 {
		t.Fatalf("expected one batch of 1, got %v", got)
	}
}

func TestCloseFlushesRemaining(t *testing.T) {
	rc := &receiver{}
	srv := httptest.NewServer(http.HandlerFunc(rc.handler))
	defer srv.Close()

	out, _ := New(Config{URL: srv.URL, BatchSize: 100, FlushInterval: 10 * time.Second}, output.Standard)
	out.Write(context.Background(), testAlert(model.DoS))
	out.Write(context.Background(), testAlert(model.PortScan))

	if err := out.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := out.Write(context.Background(), testAlert(model.DoS)); err == nil {
		t.Fatal("expected Write after Close to fail")
	}

	got := rc.snapshot()
	if len(got) != 1 || len(got[0]) != 2 {
		t.Fatalf("expected one batch of 2, got %v", got)
	}
}

func TestVerbosityAndHeaders(t *testing.T) {
	rc := &receiver{}
	srv := httptest.NewServer(http.HandlerFunc(rc.handler))
	defer srv.Close()

	cfg := Config{
		URL:       srv.URL,
		Token:     "hook-secret",
		Headers:   map[string]string{"X-Sensor": "edge-1"},
		BatchSize: 1,
	}
	out, _ := New(cfg, output.Minimal)
	defer out.Close()

	if err := out.Write(context.Background(), testAlert(model.DoS)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := rc.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(got))
	}
	if a := got[0][0]; a.Confidence != 0 || a.StatusPattern != nil {
		t.Errorf("minimal verbosity should strip detail, got %+v", a)
	}
	rc.mu.Lock()
	h := rc.headers[0]
	rc.mu.Unlock()
	if h.Get("Authorization") != "Bearer hook-secret" || h.Get("X-Sensor") != "edge-1" {
		t.Errorf("unexpected headers: %v", h)
	}
}

func TestRetryOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out, _ := New(Config{URL: srv.URL, BatchSize: 1}, output.Standard, WithBackoff(time.Millisecond))
	defer out.Close()

	if err := out.Write(context.Background(), testAlert(model.DoS)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestNoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	out, _ := New(Config{URL: srv.URL, BatchSize: 1}, output.Standard, WithBackoff(time.Millisecond))
	defer out.Close()

	if err := out.Write(context.Background(), testAlert(model.DoS)); err == nil {
		t.Fatal("expected error for 400")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestTimerErrorCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	errCh := make(chan error, 1)
	out, _ := New(Config{URL: srv.URL, BatchSize: 100, FlushInterval: 20 * time.Millisecond}, output.Standard,
		WithOnError(func(err error) { errCh <- err }))
	defer out.Close()

	out.Write(context.Background(), testAlert(model.Probe))
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected non-nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error callback not invoked")
	}
}
