package reconciler

import "github.com/crimson-sun/netsentry/internal/model"

// Thresholds is the versioned decision table: the minimum model confidence
// accepted per category, the count buckets used below threshold and the
// corroboration boost.
type Thresholds struct {
	Version string `yaml:"version"`

	Normal   float64 `yaml:"normal"`
	DoS      float64 `yaml:"dos"`
	Probe    float64 `yaml:"probe"`
	PortScan float64 `yaml:"portscan"`
	R2L      float64 `yaml:"r2l"`
	U2R      float64 `yaml:"u2r"`
	Unknown  float64 `yaml:"unknown"`

	FallbackConfidence float64 `yaml:"fallback_confidence"`
	DoSBucketOver      int     `yaml:"dos_bucket_over"`  // count > this -> DoS
	ProbeBucketMin     int     `yaml:"probe_bucket_min"` // count >= this -> Probe

	BoostStep float64 `yaml:"boost_step"`
	BoostCap  float64 `yaml:"boost_cap"`
}

// DefaultThresholds returns the canonical table.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Version:            "2026.1",
		Normal:             0.5,
		DoS:                0.6,
		Probe:              0.5,
		PortScan:           0.5,
		R2L:                0.7,
		U2R:                0.8,
		Unknown:            0.9,
		FallbackConfidence: 0.5,
		DoSBucketOver:      100,
		ProbeBucketMin:     10,
		BoostStep:          0.1,
		BoostCap:           0.99,
	}
}

// For returns the required confidence for c. Unlisted categories use Unknown.
func (t Thresholds) For(c model.Category) float64 {
	switch c {
	case model.Normal:
		return t.Normal
	case model.DoS:
		return t.DoS
	case model.Probe:
		return t.Probe
	case model.PortScan:
		return t.PortScan
	case model.R2L:
		return t.R2L
	case model.U2R:
		return t.U2R
	default:
		return t.Unknown
	}
}
