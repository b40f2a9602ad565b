package model

import (
	"time"

	"github.com/google/uuid"
)

// Method records which stage produced a classification.
type Method string

const (
	MethodRule     Method = "rule"
	MethodModel    Method = "model"
	MethodFallback Method = "fallback"
)

// Outcome distinguishes a real classification from a defaulted one.
type Outcome string

const (
	OutcomeClassified Outcome = "classified"
	OutcomeDegraded   Outcome = "degraded" // classification failed, result is the fail-safe default
	OutcomeIgnored    Outcome = "ignored"  // loopback/unspecified traffic, never classified
)

// ClassificationResult is the decision for a single observation.
type ClassificationResult struct {
	IsIntrusion bool     `json:"is_intrusion"`
	Category    Category `json:"category"`
	Confidence  float64  `json:"confidence"`
	Method      Method   `json:"method"`
}

// SafeDefault is the conservative result used when classification fails.
func SafeDefault() ClassificationResult {
	return ClassificationResult{Category: Normal, Method: MethodFallback}
}

// Verdict is the engine's answer for one observation: the result plus
// enough context to explain it.
type Verdict struct {
	ClassificationResult
	Pair      PairKey   `json:"-"`
	Source    string    `json:"source"`
	Dest      string    `json:"destination"`
	DestPort  uint16    `json:"dest_port"`
	Outcome   Outcome   `json:"outcome"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Rule      string    `json:"rule,omitempty"`
	Regime    string    `json:"regime,omitempty"`
	Count     int       `json:"connection_count"`
	Ports     int       `json:"port_count"`
	Timestamp time.Time `json:"timestamp"`
}

// Alert is netsentry's output type, emitted for intrusive verdicts.
type Alert struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	Source        string         `json:"source_ip"`
	Destination   string         `json:"destination_ip"`
	DestPort      uint16         `json:"dest_port"`
	Protocol      string         `json:"protocol"`
	Category      Category       `json:"attack_type"`
	Severity      string         `json:"severity"`
	Confidence    float64        `json:"confidence,omitempty"`
	Method        Method         `json:"detection_method"`
	Rule          string         `json:"rule,omitempty"`
	Connections   int            `json:"connections_count"`
	PortCount     int            `json:"port_count"`
	Ports         []uint16       `json:"ports,omitempty"`
	StatusPattern map[string]int `json:"status_pattern,omitempty"`
	Summary       string         `json:"summary,omitempty"`
	Count         int            `json:"count,omitempty"` // >1 when deduplicated
}

// maxAlertPorts bounds the sample of ports carried on an alert.
const maxAlertPorts = 10

// NewAlert builds an alert from a verdict and the stat it was computed from.
func NewAlert(v Verdict, stat AggregatedStat) Alert {
	proto := CanonicalProtocol(stat.Last.Protocol)
	if proto == "" {
		proto = "tcp"
	}
	var pattern map[string]int
	if len(stat.States) > 0 {
		pattern = cloneCounts(stat.States)
	} else if len(stat.Flags) > 0 {
		pattern = cloneCounts(stat.Flags)
	}
	return Alert{
		ID:            uuid.NewString(),
		Timestamp:     v.Timestamp,
		Source:        v.Source,
		Destination:   v.Dest,
		DestPort:      v.DestPort,
		Protocol:      proto,
		Category:      v.Category,
		Severity:      v.Category.Severity(),
		Confidence:    v.Confidence,
		Method:        v.Method,
		Rule:          v.Rule,
		Connections:   stat.Count,
		PortCount:     stat.PortCount(),
		Ports:         stat.SortedPorts(maxAlertPorts),
		StatusPattern: pattern,
		Summary:       summarize(v),
	}
}

func summarize(v Verdict) string {
	s := string(v.Category) + " " + v.Source + " -> " + v.Dest
	if v.Rule != "" {
		s += " [" + v.Rule + "]"
	}
	return s
}
