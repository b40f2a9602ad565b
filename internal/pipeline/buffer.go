package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/crimson-sun/netsentry/internal/model"
	"github.com/crimson-sun/netsentry/internal/output"
)

// streamBuffer collects the alerts raised during a scan and writes them
// together, high severity first.
type streamBuffer struct {
	out     output.Output
	maxSize int // 0 means unlimited

	mu      sync.Mutex
	pending []model.Alert
}

func newStreamBuffer(out output.Output, maxSize int) *streamBuffer {
	return &streamBuffer{out: out, maxSize: maxSize}
}

// add appends an alert. Returns true if the buffer is full and needs flushing.
func (b *streamBuffer) add(a model.Alert) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, a)
	return b.maxSize > 0 && len(b.pending) >= b.maxSize
}

func (b *streamBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// flush writes all pending alerts. Every alert is attempted; errors are joined.
func (b *streamBuffer) flush(ctx context.Context) error {
	b.mu.Lock()
	alerts := b.pending
	b.pending = nil
	b.mu.Unlock()

	sort.SliceStable(alerts, func(i, j int) bool {
		return severityRank(alerts[i].Severity) > severityRank(alerts[j].Severity)
	})

	var errs []error
	for _, a := range alerts {
		if err := b.out.Write(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func severityRank(s string) int {
	switch s {
	case "high":
		return 2
	case "medium":
		return 1
	}
	return 0
}
