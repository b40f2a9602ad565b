package netsentry

import "time"

// Observation is one observed connection. Addresses are IPv4 or IPv6
// literals; loopback, unspecified and unparseable addresses are ignored.
type Observation struct {
	Source      string        `json:"source_ip"`
	Destination string        `json:"destination_ip"`
	SourcePort  uint16        `json:"source_port,omitempty"`
	DestPort    uint16        `json:"dest_port"`
	Protocol    string        `json:"protocol,omitempty"` // tcp, udp, icmp
	Flag        string        `json:"flag,omitempty"`     // SF, S0, REJ, ...
	State       string        `json:"state,omitempty"`    // ESTABLISHED, SYN_SENT, ...
	BytesSent   int64         `json:"bytes_sent,omitempty"`
	BytesRecv   int64         `json:"bytes_received,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Timestamp   time.Time     `json:"timestamp"` // zero = time.Now()
}

// Verdict is the classification of one observation.
// This is the stable public type; internal representations may evolve
// independently without breaking consumers.
type Verdict struct {
	IsIntrusion bool      `json:"is_intrusion"`
	Category    string    `json:"category"`             // Normal, DoS, Probe, PortScan, R2L, U2R, Unknown
	Confidence  float64   `json:"confidence"`           // 0..1
	Method      string    `json:"method"`               // rule, model, fallback
	Outcome     string    `json:"outcome"`              // classified, degraded, ignored
	ErrorKind   string    `json:"error_kind,omitempty"` // set when Outcome is degraded
	Rule        string    `json:"rule,omitempty"`
	Regime      string    `json:"regime,omitempty"`
	Severity    string    `json:"severity"` // high, medium, info
	Source      string    `json:"source_ip"`
	Destination string    `json:"destination_ip"`
	Connections int       `json:"connections_count"`
	Ports       int       `json:"port_count"`
	Timestamp   time.Time `json:"timestamp"`
}

// Degraded reports whether the verdict is a fail-safe default rather than a
// real classification.
func (v Verdict) Degraded() bool {
	return v.Outcome == "degraded"
}
