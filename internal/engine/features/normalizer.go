package features

import "math"

// Scales used by the Normalizer.
type Scales struct {
	Duration  float64 `yaml:"duration_seconds"` // divides the duration field
	Bytes     float64 `yaml:"bytes"`            // divides byte counters
	Count     float64 `yaml:"count_ceiling"`    // divides count and srv_count
	ConnsRate float64 `yaml:"conns_per_second"` // divides connections per second
}

// DefaultScales returns the scale constants used when none are configured.
func DefaultScales() Scales {
	return Scales{
		Duration:  300,
		Bytes:     1 << 20,
		Count:     511,
		ConnsRate: 100,
	}
}

// Normalizer rescales feature vectors into [0,1] per field category.
type Normalizer struct {
	scales Scales
}

// NewNormalizer creates a Normalizer. Non-positive scales fall back to defaults.
func NewNormalizer(s Scales) *Normalizer {
	def := DefaultScales()
	if s.Duration <= 0 {
		s.Duration = def.Duration
	}
	if s.Bytes <= 0 {
		s.Bytes = def.Bytes
	}
	if s.Count <= 0 {
		s.Count = def.Count
	}
	if s.ConnsRate <= 0 {
		s.ConnsRate = def.ConnsRate
	}
	return &Normalizer{scales: s}
}

// Normalize returns a copy of v with every entry in [0,1] and one-hot ranges
// binarized. A vector whose entries are all equal normalizes to all zeros.
func (n *Normalizer) Normalize(v Vector) Vector {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			v[i] = 0
		}
	}
	if uniform(v) {
		return Vector{}
	}

	var out Vector
	for i, x := range v {
		switch {
		case i == IdxDuration:
			out[i] = clamp(x / n.scales.Duration)
		case i == IdxSrcBytes || i == IdxDstBytes:
			out[i] = clamp(x / n.scales.Bytes)
		case i == IdxCount || i == IdxSrvCount:
			out[i] = clamp(x / n.scales.Count)
		case i == IdxConnsPerSecond:
			out[i] = clamp(x / n.scales.ConnsRate)
		case i >= oneHotStart && i < oneHotEnd:
			out[i] = indicator(x >= 0.5)
		default:
			out[i] = clamp(x)
		}
	}
	return out
}

// FromSlice pads or truncates s to a Vector.
func FromSlice(s []float64) Vector {
	var v Vector
	copy(v[:], s)
	return v
}

// Float32 converts the vector for model input.
func (v Vector) Float32() []float32 {
	out := make([]float32, Size)
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func uniform(v Vector) bool {
	for _, x := range v[1:] {
		if x != v[0] {
			return false
		}
	}
	return true
}

func clamp(x float64) float64 {
	switch {
	case x < 0 || math.IsNaN(x):
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
