// Package alertlog keeps the most recent alerts and running detection
// statistics.
package alertlog

import (
	"math"
	"sync"
	"time"

	"github.com/crimson-sun/netsentry/internal/model"
)

// DefaultSize is the number of alerts retained.
const DefaultSize = 20

// Stats summarizes detection activity.
type Stats struct {
	TotalAlerts      int            `json:"total_alerts"`
	RecentAlerts     int            `json:"recent_alerts"`
	ActiveThreats    int            `json:"active_threats"`    // high-severity alerts among the recent ones
	TotalConnections int            `json:"total_connections"` // connections behind all recorded alerts
	DetectionRate    float64        `json:"detection_rate"`    // percent, alerts per connection
	ByCategory       map[string]int `json:"by_category"`
	LastUpdate       time.Time      `json:"last_update"`
}

// Log is a fixed-size ring of recent alerts. Safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	ring    []model.Alert
	next    int
	full    bool
	total   int
	conns   int
	byCat   map[string]int
	updated time.Time
}

// New creates a Log retaining size alerts. size <= 0 means DefaultSize.
func New(size int) *Log {
	if size <= 0 {
		size = DefaultSize
	}
	return &Log{ring: make([]model.Alert, size), byCat: make(map[string]int)}
}

// Record appends an alert, evicting the oldest when full.
func (l *Log) Record(a model.Alert) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring[l.next] = a
	l.next = (l.next + 1) % len(l.ring)
	if l.next == 0 {
		l.full = true
	}

	n := a.Count
	if n < 1 {
		n = 1
	}
	l.total += n
	l.conns += a.Connections
	l.byCat[string(a.Category)] += n
	l.updated = a.Timestamp
	if l.updated.IsZero() {
		l.updated = time.Now()
	}
}

// Recent returns retained alerts, newest first.
func (l *Log) Recent() []model.Alert {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recentLocked()
}

func (l *Log) recentLocked() []model.Alert {
	n := l.next
	if l.full {
		n = len(l.ring)
	}
	out := make([]model.Alert, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.next - i + len(l.ring)) % len(l.ring)
		out = append(out, l.ring[idx])
	}
	return out
}

// Stats computes the current statistics.
func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.recentLocked()
	s := Stats{
		TotalAlerts:      l.total,
		RecentAlerts:     len(recent),
		TotalConnections: l.conns,
		ByCategory:       make(map[string]int, len(l.byCat)),
		LastUpdate:       l.updated,
	}
	for _, a := range recent {
		if a.Severity == "high" {
			s.ActiveThreats++
		}
	}
	for k, v := range l.byCat {
		s.ByCategory[k] = v
	}
	if l.conns > 0 {
		s.DetectionRate = math.Round(float64(l.total)/float64(l.conns)*100*100) / 100
	}
	return s
}

// Reset clears alerts and statistics.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.ring {
		l.ring[i] = model.Alert{}
	}
	l.next, l.full, l.total, l.conns = 0, false, 0, 0
	l.byCat = make(map[string]int)
	l.updated = time.Time{}
}
