package dedup

import (
	"fmt"
	"sync"
	"time"

	"github.com/crimson-sun/netsentry/internal/model"
)

// Config controls deduplication behavior.
type Config struct {
	Window time.Duration `yaml:"window"` // suppression window per (pair, attack type)
}

// Deduplicator collapses repeated alerts for the same source, destination
// and attack type. Safe for concurrent use.
type Deduplicator struct {
	cfg Config

	mu     sync.Mutex
	active map[string]*group
}

// New creates a Deduplicator with the given config.
func New(cfg Config) *Deduplicator {
	return &Deduplicator{cfg: cfg, active: make(map[string]*group)}
}

type group struct {
	alert    model.Alert
	count    int
	firstTS  time.Time
	latestTS time.Time
}

func key(a model.Alert) string {
	return a.Source + "->" + a.Destination + "/" + string(a.Category)
}

// Admit decides whether a freshly raised alert should be emitted. The first
// alert for a key is emitted and opens a window; repeats inside the window
// are absorbed. The first alert after the window closes is emitted with
// Count set to the number of alerts it stands for.
func (d *Deduplicator) Admit(a model.Alert) (model.Alert, bool) {
	if d.cfg.Window <= 0 {
		return a, true
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	k := key(a)
	g, ok := d.active[k]
	if ok && a.Timestamp.Sub(g.firstTS) <= d.cfg.Window {
		g.count++
		if a.Timestamp.After(g.latestTS) {
			g.latestTS = a.Timestamp
		}
		return model.Alert{}, false
	}

	if ok && g.count > 0 {
		a.Count = g.count + 1
		a.Summary = annotate(a.Summary, a.Count, a.Timestamp.Sub(g.firstTS))
	}
	d.active[k] = &group{alert: a, firstTS: a.Timestamp, latestTS: a.Timestamp}
	return a, true
}

// Sweep forgets keys whose last alert is older than the window, relative
// to now. Returns the number of keys removed.
func (d *Deduplicator) Sweep(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for k, g := range d.active {
		if now.Sub(g.latestTS) > d.cfg.Window {
			delete(d.active, k)
			n++
		}
	}
	return n
}

// Len reports the number of open keys.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// DeduplicateBatch collapses alerts with the same key within Window of the
// group's first alert. Returns alerts in first-occurrence order, with Count
// set and Summary annotated on merged alerts. It does not touch the
// streaming state used by Admit.
func (d *Deduplicator) DeduplicateBatch(alerts []model.Alert) []model.Alert {
	if len(alerts) == 0 {
		return nil
	}

	var order []*group
	groups := make(map[string]*group)
	for _, a := range alerts {
		k := key(a)
		if g, ok := groups[k]; ok && a.Timestamp.Sub(g.firstTS) <= d.cfg.Window {
			g.count++
			if a.Timestamp.After(g.latestTS) {
				g.latestTS = a.Timestamp
			}
			if a.Connections > g.alert.Connections {
				g.alert.Connections = a.Connections
			}
			continue
		}
		g := &group{alert: a, count: 1, firstTS: a.Timestamp, latestTS: a.Timestamp}
		groups[k] = g
		order = append(order, g)
	}

	result := make([]model.Alert, 0, len(order))
	for _, g := range order {
		a := g.alert
		if g.count > 1 {
			a.Count = g.count
			a.Summary = annotate(a.Summary, g.count, g.latestTS.Sub(g.firstTS))
		}
		result = append(result, a)
	}
	return result
}

func annotate(summary string, count int, d time.Duration) string {
	return fmt.Sprintf("%s (x%d in %s)", summary, count, formatDuration(d))
}

// formatDuration produces a short human-readable duration.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm%ds", mins, secs)
}
