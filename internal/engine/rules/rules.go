package rules

import (
	"github.com/crimson-sun/netsentry/internal/engine/features"
	"github.com/crimson-sun/netsentry/internal/model"
)

// Group orders rule evaluation: every DoS rule runs before any Probe rule.
type Group string

const (
	GroupDoS   Group = "dos"
	GroupProbe Group = "probe"
)

// Params holds the tunable thresholds of the built-in rules. Count bounds are
// exclusive where the name says "over" and inclusive otherwise.
type Params struct {
	DoSCountOver     int      `yaml:"dos_count_over"`
	DoSMaxPorts      int      `yaml:"dos_max_ports"`
	SYNCountOver     int      `yaml:"syn_count_over"`
	SYNShare         float64  `yaml:"syn_share"`
	FloodBytes       int64    `yaml:"flood_bytes"`
	SweepPortsOver   int      `yaml:"sweep_ports_over"`
	SweepCountOver   int      `yaml:"sweep_count_over"`
	ProbeMinCount    int      `yaml:"probe_min_count"`
	ProbeMaxCount    int      `yaml:"probe_max_count"`
	RejectShare      float64  `yaml:"reject_share"`
	RejectMinCount   int      `yaml:"reject_min_count"`
	RejectCountBelow int      `yaml:"reject_count_below"`
	ScanPronePorts   []uint16 `yaml:"scan_prone_ports"`
}

// DefaultParams returns the canonical rule thresholds.
func DefaultParams() Params {
	return Params{
		DoSCountOver:     100,
		DoSMaxPorts:      3,
		SYNCountOver:     100,
		SYNShare:         0.5,
		FloodBytes:       1 << 20,
		SweepPortsOver:   10,
		SweepCountOver:   10,
		ProbeMinCount:    10,
		ProbeMaxCount:    60,
		RejectShare:      0.5,
		RejectMinCount:   3,
		RejectCountBelow: 10,
		ScanPronePorts:   []uint16{21, 22, 23, 25, 53, 110, 111, 135, 139, 143, 445, 1433, 3306, 3389, 5900},
	}
}

// Match is a fired rule.
type Match struct {
	Rule       string
	Group      Group
	Category   model.Category
	Confidence float64
}

type rule struct {
	name     string
	group    Group
	category model.Category
	check    func(e *Engine, st model.AggregatedStat, obs model.ConnectionObservation) (float64, bool)
}

// Engine evaluates the ordered rule set. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	params    Params
	scanProne map[uint16]bool
	rules     []rule
}

// New creates a rule engine with the given parameters.
func New(p Params) *Engine {
	e := &Engine{
		params:    p,
		scanProne: make(map[uint16]bool, len(p.ScanPronePorts)),
	}
	for _, port := range p.ScanPronePorts {
		e.scanProne[port] = true
	}
	e.rules = append(dosRules(), probeRules()...)
	return e
}

// Evaluate runs the rules in order and returns the first match.
func (e *Engine) Evaluate(st model.AggregatedStat, obs model.ConnectionObservation) (Match, bool) {
	if m, ok := e.evaluateGroup(GroupDoS, st, obs); ok {
		return m, true
	}
	return e.evaluateGroup(GroupProbe, st, obs)
}

// Names lists the rule names in evaluation order.
func (e *Engine) Names() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.name
	}
	return names
}

func (e *Engine) evaluateGroup(g Group, st model.AggregatedStat, obs model.ConnectionObservation) (Match, bool) {
	for _, r := range e.rules {
		if r.group != g {
			continue
		}
		if conf, ok := r.check(e, st, obs); ok {
			return Match{Rule: r.name, Group: r.group, Category: r.category, Confidence: conf}, true
		}
	}
	return Match{}, false
}

func dosRules() []rule {
	return []rule{
		{
			name: "critical-port-flood", group: GroupDoS, category: model.DoS,
			check: func(e *Engine, st model.AggregatedStat, obs model.ConnectionObservation) (float64, bool) {
				p := e.params
				return 0.9, st.Count > p.DoSCountOver && st.PortCount() <= p.DoSMaxPorts &&
					features.IsCriticalPort(obs.DestPort)
			},
		},
		{
			name: "syn-flood", group: GroupDoS, category: model.DoS,
			check: func(e *Engine, st model.AggregatedStat, _ model.ConnectionObservation) (float64, bool) {
				p := e.params
				return 0.95, st.FlagCount(model.SynFlags...) > p.SYNCountOver &&
					st.FlagShare(model.SynFlags...) >= p.SYNShare
			},
		},
		{
			name: "volume-flood", group: GroupDoS, category: model.DoS,
			check: func(e *Engine, st model.AggregatedStat, _ model.ConnectionObservation) (float64, bool) {
				p := e.params
				return 0.85, st.Count > p.DoSCountOver && st.PortCount() <= p.DoSMaxPorts &&
					st.BytesSent+st.BytesRecv >= p.FloodBytes
			},
		},
	}
}

func probeRules() []rule {
	return []rule{
		{
			name: "port-sweep", group: GroupProbe, category: model.PortScan,
			check: func(e *Engine, st model.AggregatedStat, _ model.ConnectionObservation) (float64, bool) {
				p := e.params
				return 0.85, st.PortCount() > p.SweepPortsOver && st.Count > p.SweepCountOver
			},
		},
		{
			name: "scan-prone-port", group: GroupProbe, category: model.Probe,
			check: func(e *Engine, st model.AggregatedStat, obs model.ConnectionObservation) (float64, bool) {
				p := e.params
				return 0.8, st.Count >= p.ProbeMinCount && st.Count <= p.ProbeMaxCount &&
					e.scanProne[obs.DestPort]
			},
		},
		{
			name: "reject-dominant", group: GroupProbe, category: model.Probe,
			check: func(e *Engine, st model.AggregatedStat, _ model.ConnectionObservation) (float64, bool) {
				p := e.params
				if st.Count < p.RejectMinCount || st.Count >= p.RejectCountBelow ||
					st.FlagShare(model.RejectFlags...) < p.RejectShare {
					return 0, false
				}
				if st.PortCount() <= p.DoSMaxPorts {
					return 0.75, true
				}
				return 0.7, true
			},
		},
	}
}
