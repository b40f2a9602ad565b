package aggregator

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/crimson-sun/netsentry/internal/model"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var (
	attacker = netip.MustParseAddr("203.0.113.7")
	victimA  = netip.MustParseAddr("10.0.0.5")
	victimB  = netip.MustParseAddr("10.0.0.6")
)

func newTestAggregator(cfg Config) (*Aggregator, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(cfg, WithClock(clk.Now)), clk
}

func obs(src, dst netip.Addr, port uint16, flag string) model.ConnectionObservation {
	return model.ConnectionObservation{Source: src, Destination: dst, DestPort: port, Protocol: "tcp", Flag: flag}
}

func TestIngestAccumulates(t *testing.T) {
	a, _ := newTestAggregator(Config{})

	for i := 0; i < 5; i++ {
		a.Ingest(obs(attacker, victimA, 80, "S0"))
	}
	a.Ingest(obs(attacker, victimA, 443, "sf"))

	st, ok := a.Snapshot(attacker, victimA)
	if !ok {
		t.Fatal("expected snapshot for pair")
	}
	if st.Count != 6 {
		t.Errorf("Count = %d, want 6", st.Count)
	}
	if st.PortCount() != 2 {
		t.Errorf("PortCount = %d, want 2", st.PortCount())
	}
	if st.Flags["S0"] != 5 || st.Flags["SF"] != 1 {
		t.Errorf("Flags = %v, want S0=5 SF=1", st.Flags)
	}
}

func TestPairsAreIndependent(t *testing.T) {
	a, _ := newTestAggregator(Config{})

	a.Ingest(obs(attacker, victimA, 80, "S0"))
	a.Ingest(obs(attacker, victimA, 80, "S0"))
	a.Ingest(obs(attacker, victimB, 22, "REJ"))

	stA, _ := a.Snapshot(attacker, victimA)
	stB, _ := a.Snapshot(attacker, victimB)
	if stA.Count != 2 || stB.Count != 1 {
		t.Errorf("counts = (%d, %d), want (2, 1)", stA.Count, stB.Count)
	}
	if _, ok := a.Snapshot(victimA, attacker); ok {
		t.Error("reverse direction must be a separate pair")
	}
}

func TestIgnoredAddresses(t *testing.T) {
	tests := []struct {
		name string
		src  string
		dst  string
	}{
		{"loopback source", "127.0.0.1", "10.0.0.5"},
		{"loopback destination", "10.0.0.5", "127.0.0.1"},
		{"unspecified", "0.0.0.0", "10.0.0.5"},
		{"ipv6 loopback", "::1", "10.0.0.5"},
		{"mapped loopback", "::ffff:127.0.0.1", "10.0.0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestAggregator(Config{})
			src, dst := netip.MustParseAddr(tt.src), netip.MustParseAddr(tt.dst)
			if a.Ingest(obs(src, dst, 80, "SF")) {
				t.Error("Ingest returned true for ignored traffic")
			}
			if a.Len() != 0 {
				t.Errorf("Len = %d, want 0", a.Len())
			}
		})
	}

	a, _ := newTestAggregator(Config{})
	if a.Ingest(model.ConnectionObservation{DestPort: 80}) {
		t.Error("observation without addresses must be ignored")
	}
}

func TestWindowExpiry(t *testing.T) {
	a, clk := newTestAggregator(Config{Window: 10 * time.Second})

	a.Ingest(obs(attacker, victimA, 80, "S0"))
	clk.Advance(5 * time.Second)
	if _, ok := a.Snapshot(attacker, victimA); !ok {
		t.Fatal("pair expired too early")
	}

	clk.Advance(6 * time.Second)
	if _, ok := a.Snapshot(attacker, victimA); ok {
		t.Fatal("pair should have expired after the window")
	}

	a.Ingest(obs(attacker, victimA, 80, "S0"))
	st, _ := a.Snapshot(attacker, victimA)
	if st.Count != 1 {
		t.Errorf("Count after expiry = %d, want fresh stat with 1", st.Count)
	}
}

func TestSweep(t *testing.T) {
	a, clk := newTestAggregator(Config{Window: time.Second})
	a.Ingest(obs(attacker, victimA, 80, "SF"))
	a.Ingest(obs(attacker, victimB, 80, "SF"))

	clk.Advance(2 * time.Second)
	a.Ingest(obs(victimA, victimB, 80, "SF"))

	if n := a.Sweep(); n != 2 {
		t.Errorf("Sweep removed %d, want 2", n)
	}
	if got := a.Pairs(); len(got) != 1 {
		t.Errorf("Pairs = %v, want 1 live pair", got)
	}
}

func TestMaxPairsEvictsOldest(t *testing.T) {
	a, clk := newTestAggregator(Config{MaxPairs: 2})

	a.Ingest(obs(attacker, victimA, 80, "SF"))
	clk.Advance(time.Second)
	a.Ingest(obs(attacker, victimB, 80, "SF"))
	clk.Advance(time.Second)
	a.Ingest(obs(victimA, victimB, 80, "SF"))

	if a.Len() != 2 {
		t.Fatalf("Len = %d, want 2", a.Len())
	}
	if _, ok := a.Snapshot(attacker, victimA); ok {
		t.Error("oldest pair should have been evicted")
	}
}

func TestMaxPortsPerPair(t *testing.T) {
	a, _ := newTestAggregator(Config{MaxPortsPerPair: 3})
	for p := uint16(1); p <= 10; p++ {
		a.Ingest(obs(attacker, victimA, p, "S0"))
	}
	st, _ := a.Snapshot(attacker, victimA)
	if st.PortCount() != 3 {
		t.Errorf("PortCount = %d, want cap of 3", st.PortCount())
	}
	if st.Count != 10 {
		t.Errorf("Count = %d, want 10", st.Count)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	a, _ := newTestAggregator(Config{})
	a.Ingest(obs(attacker, victimA, 80, "S0"))

	st, _ := a.Snapshot(attacker, victimA)
	st.Ports[9999] = struct{}{}
	st.Flags["S0"] = 100

	again, _ := a.Snapshot(attacker, victimA)
	if again.PortCount() != 1 || again.Flags["S0"] != 1 {
		t.Error("mutating a snapshot leaked into aggregator state")
	}
}

func TestConcurrentIngestAndSnapshot(t *testing.T) {
	a, _ := newTestAggregator(Config{})
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				a.Ingest(obs(attacker, victimA, uint16(i%20), "S0"))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				a.Snapshot(attacker, victimA)
				a.Pairs()
			}
		}()
	}
	wg.Wait()

	st, _ := a.Snapshot(attacker, victimA)
	if st.Count != 1000 {
		t.Errorf("Count = %d, want 1000", st.Count)
	}
}

func TestRecordedTimestampsAgeOnObservationClock(t *testing.T) {
	a, clk := newTestAggregator(Config{Window: 10 * time.Second})
	recorded := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 250; i++ {
		o := obs(attacker, victimA, 80, "S0")
		o.Timestamp = recorded.Add(time.Duration(i) * time.Millisecond)
		a.Ingest(o)
	}

	st, ok := a.Snapshot(attacker, victimA)
	if !ok {
		t.Fatal("pair with recorded timestamps expired on read")
	}
	if st.Count != 250 {
		t.Errorf("Count = %d, want 250", st.Count)
	}
	if got := a.Pairs(); len(got) != 1 {
		t.Fatalf("Pairs = %v, want the recorded pair", got)
	}

	clk.Advance(11 * time.Second)
	if _, ok := a.Snapshot(attacker, victimA); ok {
		t.Error("recorded pair should expire once the window elapses")
	}
}

func TestIdleGapInRecordedTimestampsStartsFreshStat(t *testing.T) {
	a, _ := newTestAggregator(Config{Window: 10 * time.Second})
	recorded := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	first := obs(attacker, victimA, 80, "S0")
	first.Timestamp = recorded
	a.Ingest(first)

	later := obs(attacker, victimA, 80, "S0")
	later.Timestamp = recorded.Add(time.Minute)
	a.Ingest(later)

	st, ok := a.Snapshot(attacker, victimA)
	if !ok || st.Count != 1 {
		t.Fatalf("snapshot = (%d, %v), want a fresh stat with 1", st.Count, ok)
	}
}

func TestSnapshotDoesNotRefreshEvictionOrder(t *testing.T) {
	a, clk := newTestAggregator(Config{MaxPairs: 2})

	a.Ingest(obs(attacker, victimA, 80, "SF"))
	clk.Advance(time.Second)
	a.Ingest(obs(attacker, victimB, 80, "SF"))
	a.Snapshot(attacker, victimA)
	clk.Advance(time.Second)
	a.Ingest(obs(victimA, victimB, 80, "SF"))

	if _, ok := a.Snapshot(attacker, victimA); ok {
		t.Error("reading a pair must not protect it from eviction")
	}
	if _, ok := a.Snapshot(attacker, victimB); !ok {
		t.Error("more recently ingested pair was evicted")
	}
}
