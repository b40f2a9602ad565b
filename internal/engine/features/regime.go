package features

import "math"

// Regime is the qualitative traffic pattern of a pair, used to synthesize
// rate features the short aggregation window cannot measure directly.
type Regime string

const (
	RegimeDoS          Regime = "dos-pure"
	RegimePortScan     Regime = "portscan-pure"
	RegimeProbeStealth Regime = "probe-stealth"
	RegimeProbeSlow    Regime = "probe-slow"
	RegimeNormal       Regime = "normal"
)

// ClassifyRegime maps (connection count, distinct ports) to exactly one regime.
// Conditions are checked in priority order; the first match wins. A count of
// exactly 100 is not DoS-pure.
func ClassifyRegime(count, ports int) Regime {
	switch {
	case count > 100 && ports <= 3:
		return RegimeDoS
	case ports > 10 && count > 10:
		return RegimePortScan
	case isStealthProbe(count, ports):
		return RegimeProbeStealth
	case isSlowProbe(count, ports):
		return RegimeProbeSlow
	default:
		return RegimeNormal
	}
}

func isStealthProbe(count, ports int) bool {
	return count >= 10 && count <= 50 && ports >= 5 && ports <= 15
}

func isSlowProbe(count, ports int) bool {
	return count >= 5 && count <= 20 && ports >= 2 && ports <= 8
}

// rates is the synthetic rate tuple written for a regime.
type rates struct {
	serror      float64
	rerror      float64
	sameSrv     float64
	diffSrv     float64
	srvDiffHost float64
}

var regimeRates = map[Regime]rates{
	RegimeDoS:          {serror: 0.95, rerror: 0.0, sameSrv: 1.0, diffSrv: 0.0, srvDiffHost: 0.0},
	RegimePortScan:     {serror: 0.5, rerror: 0.45, sameSrv: 0.05, diffSrv: 0.95, srvDiffHost: 0.1},
	RegimeProbeStealth: {serror: 0.3, rerror: 0.3, sameSrv: 0.4, diffSrv: 0.6, srvDiffHost: 0.1},
	RegimeProbeSlow:    {serror: 0.15, rerror: 0.2, sameSrv: 0.7, diffSrv: 0.3, srvDiffHost: 0.05},
	RegimeNormal:       {serror: 0.0, rerror: 0.0, sameSrv: 1.0, diffSrv: 0.0, srvDiffHost: 0.0},
}

// writeRegime fills the traffic block for the given regime.
func writeRegime(v *Vector, r Regime, count, ports int) {
	rt := regimeRates[r]

	srvCount := float64(count)
	if r != RegimeDoS && r != RegimeNormal && ports > 0 {
		srvCount = math.Ceil(float64(count) / float64(ports))
	}

	v[IdxCount] = float64(count)
	v[IdxSrvCount] = srvCount
	v[IdxSerrorRate] = rt.serror
	v[IdxSrvSerrorRate] = rt.serror
	v[IdxRerrorRate] = rt.rerror
	v[IdxSrvRerrorRate] = rt.rerror
	v[IdxSameSrvRate] = rt.sameSrv
	v[IdxDiffSrvRate] = rt.diffSrv
	v[IdxSrvDiffHostRate] = rt.srvDiffHost
}
