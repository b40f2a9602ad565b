package model

import (
	"net/netip"
	"time"
)

// ConnectionObservation is a single polled or captured connection, produced by
// connectors and consumed once by the aggregator.
type ConnectionObservation struct {
	Source      netip.Addr    `json:"source"`
	Destination netip.Addr    `json:"destination"`
	SourcePort  uint16        `json:"source_port,omitempty"`
	DestPort    uint16        `json:"dest_port"`
	Protocol    string        `json:"protocol,omitempty"` // tcp, udp, icmp
	Flag        string        `json:"flag,omitempty"`     // SF, S0, REJ, ...
	State       string        `json:"state,omitempty"`    // socket state (ESTABLISHED, SYN_SENT, ...)
	BytesSent   int64         `json:"bytes_sent,omitempty"`
	BytesRecv   int64         `json:"bytes_recv,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// PairKey identifies an aggregated (source, destination) pair.
type PairKey struct {
	Source      netip.Addr
	Destination netip.Addr
}

// Key returns the pair key of the observation.
func (o ConnectionObservation) Key() PairKey {
	return PairKey{Source: o.Source, Destination: o.Destination}
}

func (k PairKey) String() string {
	return k.Source.String() + "->" + k.Destination.String()
}
