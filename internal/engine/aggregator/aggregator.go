package aggregator

import (
	"net/netip"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/crimson-sun/netsentry/internal/model"
)

// Config bounds the aggregator's memory and window.
type Config struct {
	Window          time.Duration `yaml:"window"`             // idle time after which a pair expires
	MaxPairs        int           `yaml:"max_pairs"`          // tracked (source, destination) pairs
	MaxPortsPerPair int           `yaml:"max_ports_per_pair"` // distinct ports remembered per pair
}

// DefaultConfig returns the default aggregation bounds.
func DefaultConfig() Config {
	return Config{
		Window:          60 * time.Second,
		MaxPairs:        5000,
		MaxPortsPerPair: 2048,
	}
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the wall-clock source that advances the observation
// clock between ingests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// Aggregator groups observations into per (source, destination) statistics.
// Safe for concurrent use: the scan loop and on-demand classification share it.
//
// Expiry runs on an observation clock: the newest ingested timestamp,
// advanced by the wall time elapsed since it arrived. Captures replayed with
// their recorded timestamps therefore age exactly like live traffic.
type Aggregator struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	pairs    *lru.Cache[model.PairKey, *model.AggregatedStat] // recency is ingest order
	latest   time.Time                                        // newest observation timestamp
	latestAt time.Time                                        // wall time latest arrived
}

// New creates an Aggregator. Zero config fields fall back to DefaultConfig.
func New(cfg Config, opts ...Option) *Aggregator {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MaxPairs <= 0 {
		cfg.MaxPairs = def.MaxPairs
	}
	if cfg.MaxPortsPerPair <= 0 {
		cfg.MaxPortsPerPair = def.MaxPortsPerPair
	}
	// lru.New only fails for a non-positive size.
	pairs, _ := lru.New[model.PairKey, *model.AggregatedStat](cfg.MaxPairs)
	a := &Aggregator{
		cfg:   cfg,
		now:   time.Now,
		pairs: pairs,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ignored reports whether traffic involving addr is never aggregated.
func Ignored(addr netip.Addr) bool {
	if !addr.IsValid() {
		return true
	}
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsUnspecified()
}

// Ingest folds an observation into its pair's statistic. It returns false
// when the observation was ignored.
func (a *Aggregator) Ingest(obs model.ConnectionObservation) bool {
	if Ignored(obs.Source) || Ignored(obs.Destination) {
		return false
	}
	key := obs.Key()

	a.mu.Lock()
	defer a.mu.Unlock()

	ts := obs.Timestamp
	if ts.IsZero() {
		ts = a.clockLocked()
		obs.Timestamp = ts
	}
	if a.latest.IsZero() || ts.After(a.latest) {
		a.latest, a.latestAt = ts, a.now()
	}

	st, ok := a.pairs.Get(key)
	if ok && ts.Sub(st.LastSeen) > a.cfg.Window {
		// Idle beyond the window: start a fresh statistic for the pair.
		a.pairs.Remove(key)
		ok = false
	}
	if !ok {
		if a.pairs.Len() >= a.cfg.MaxPairs {
			a.sweepLocked(a.clockLocked())
		}
		st = &model.AggregatedStat{
			Key:       key,
			Ports:     make(map[uint16]struct{}),
			Flags:     make(map[string]int),
			States:    make(map[string]int),
			FirstSeen: ts,
			LastSeen:  ts,
		}
		// Still full after the sweep: the least recently ingested pair goes.
		a.pairs.Add(key, st)
	}

	st.Count++
	if _, seen := st.Ports[obs.DestPort]; seen || len(st.Ports) < a.cfg.MaxPortsPerPair {
		st.Ports[obs.DestPort] = struct{}{}
	}
	if f := model.CanonicalFlag(obs.Flag); f != "" {
		st.Flags[f]++
	}
	if s := model.CanonicalState(obs.State); s != "" {
		st.States[s]++
	}
	st.BytesSent += max(obs.BytesSent, 0)
	st.BytesRecv += max(obs.BytesRecv, 0)
	if ts.Before(st.FirstSeen) {
		st.FirstSeen = ts
	}
	if ts.After(st.LastSeen) {
		st.LastSeen = ts
	}
	st.Last = obs
	return true
}

// Snapshot returns a copy of the current statistic for the pair.
func (a *Aggregator) Snapshot(src, dst netip.Addr) (model.AggregatedStat, bool) {
	key := model.PairKey{Source: src, Destination: dst}

	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.pairs.Peek(key)
	if !ok {
		return model.AggregatedStat{}, false
	}
	if a.expired(st, a.clockLocked()) {
		a.pairs.Remove(key)
		return model.AggregatedStat{}, false
	}
	return st.Clone(), true
}

// Pairs returns the keys of all live pairs in a stable order.
func (a *Aggregator) Pairs() []model.PairKey {
	a.mu.Lock()
	a.sweepLocked(a.clockLocked())
	keys := a.pairs.Keys()
	a.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if c := keys[i].Source.Compare(keys[j].Source); c != 0 {
			return c < 0
		}
		return keys[i].Destination.Compare(keys[j].Destination) < 0
	})
	return keys
}

// Len returns the number of tracked pairs, expired ones included until swept.
func (a *Aggregator) Len() int {
	return a.pairs.Len()
}

// Sweep drops every pair idle longer than the window and returns how many were removed.
func (a *Aggregator) Sweep() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sweepLocked(a.clockLocked())
}

func (a *Aggregator) clockLocked() time.Time {
	now := a.now()
	if a.latest.IsZero() {
		return now
	}
	return a.latest.Add(now.Sub(a.latestAt))
}

func (a *Aggregator) expired(st *model.AggregatedStat, now time.Time) bool {
	return now.Sub(st.LastSeen) > a.cfg.Window
}

func (a *Aggregator) sweepLocked(now time.Time) int {
	n := 0
	for _, k := range a.pairs.Keys() {
		if st, ok := a.pairs.Peek(k); ok && a.expired(st, now) {
			a.pairs.Remove(k)
			n++
		}
	}
	return n
}
