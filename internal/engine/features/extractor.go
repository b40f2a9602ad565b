package features

import (
	"math"

	"github.com/crimson-sun/netsentry/internal/model"
)

// Extractor maps an observation and its pair statistic to a feature vector.
// It never fails: missing numeric fields become zero and unknown categorical
// values fall into the "other"/OTH slots.
type Extractor struct{}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract builds the feature vector for obs given its pair statistic.
func (e *Extractor) Extract(obs model.ConnectionObservation, stat model.AggregatedStat) Vector {
	var v Vector

	count := stat.Count
	ports := stat.PortCount()
	flag := ResolveFlag(obs, stat)

	// Base numeric block.
	v[IdxDuration] = math.Max(obs.Duration.Seconds(), 0)
	v[IdxSrcBytes], v[IdxDstBytes] = byteCounts(obs, stat)
	if obs.Source.IsValid() && obs.Source == obs.Destination {
		v[IdxLand] = 1
	}
	if flag == "SF" {
		v[IdxLoggedIn] = 1
	}

	// Traffic regime block.
	writeRegime(&v, ClassifyRegime(count, ports), count, ports)

	// One-hot blocks.
	if i := ProtocolIndex(model.CanonicalProtocol(obs.Protocol)); i >= 0 {
		v[i] = 1
	}
	v[ServiceIndex(Service(obs.DestPort))] = 1
	v[FlagIndex(flag)] = 1

	// Signature block.
	v[IdxCountOver200] = indicator(count > 200)
	v[IdxFloodBand] = indicator(count > 100 && count <= 200 && ports <= 3)
	v[IdxScanBand] = indicator(count >= 50 && count <= 150 && ports > 10)
	v[IdxStealthProbe] = indicator(isStealthProbe(count, ports))
	v[IdxSlowProbe] = indicator(isSlowProbe(count, ports))
	if count > 0 {
		v[IdxPortRatio] = float64(ports) / float64(count)
	}
	v[IdxCriticalPort] = indicator(IsCriticalPort(obs.DestPort))
	v[IdxConnsPerSecond] = float64(count) / math.Max(stat.Elapsed().Seconds(), 1)
	v[IdxSynShare] = stat.FlagShare(model.SynFlags...)
	v[IdxRejectShare] = stat.FlagShare(model.RejectFlags...)

	return v
}

// ResolveFlag picks the connection flag for obs: its own flag when present,
// otherwise one derived from the pair's socket states, then the pair's most
// frequent flag, then OTH.
func ResolveFlag(obs model.ConnectionObservation, stat model.AggregatedStat) string {
	if f := model.CanonicalFlag(obs.Flag); f != "" {
		return f
	}
	if f := model.FlagFromStates(stat.States, stat.PortCount()); f != "" {
		return f
	}
	best, n := "", 0
	for _, f := range flagOrder {
		if stat.Flags[f] > n {
			best, n = f, stat.Flags[f]
		}
	}
	if best == "" {
		return "OTH"
	}
	return best
}

func byteCounts(obs model.ConnectionObservation, stat model.AggregatedStat) (float64, float64) {
	if stat.Count > 0 {
		return float64(max(stat.BytesSent, 0)), float64(max(stat.BytesRecv, 0))
	}
	return float64(max(obs.BytesSent, 0)), float64(max(obs.BytesRecv, 0))
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
