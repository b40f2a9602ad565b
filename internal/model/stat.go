package model

import (
	"sort"
	"time"
)

// AggregatedStat is the per-pair statistic kept by the aggregator over its window.
// Values handed out by the aggregator are copies and safe to read without locking.
type AggregatedStat struct {
	Key       PairKey
	Count     int
	Ports     map[uint16]struct{}
	Flags     map[string]int // connection-state flag histogram (SF, S0, ...)
	States    map[string]int // socket-state histogram (ESTABLISHED, SYN_SENT, ...)
	BytesSent int64
	BytesRecv int64
	FirstSeen time.Time
	LastSeen  time.Time
	Last      ConnectionObservation
}

// PortCount returns the number of distinct destination ports seen.
func (s AggregatedStat) PortCount() int {
	return len(s.Ports)
}

// SortedPorts returns up to limit destination ports in ascending order.
// limit <= 0 returns all of them.
func (s AggregatedStat) SortedPorts(limit int) []uint16 {
	ports := make([]uint16, 0, len(s.Ports))
	for p := range s.Ports {
		ports = append(ports, p)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	if limit > 0 && len(ports) > limit {
		ports = ports[:limit]
	}
	return ports
}

// FlagShare returns the fraction of connections carrying any of the given flags.
func (s AggregatedStat) FlagShare(flags ...string) float64 {
	total := 0
	for _, n := range s.Flags {
		total += n
	}
	if total == 0 {
		return 0
	}
	return float64(s.FlagCount(flags...)) / float64(total)
}

// FlagCount returns the number of connections carrying any of the given flags.
func (s AggregatedStat) FlagCount(flags ...string) int {
	n := 0
	for _, f := range flags {
		n += s.Flags[f]
	}
	return n
}

// Elapsed returns the time between the first and last observation.
func (s AggregatedStat) Elapsed() time.Duration {
	return s.LastSeen.Sub(s.FirstSeen)
}

// Clone returns a deep copy of the stat.
func (s AggregatedStat) Clone() AggregatedStat {
	c := s
	c.Ports = make(map[uint16]struct{}, len(s.Ports))
	for p := range s.Ports {
		c.Ports[p] = struct{}{}
	}
	c.Flags = cloneCounts(s.Flags)
	c.States = cloneCounts(s.States)
	return c
}

func cloneCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
