package features

// Size is the fixed length of every feature vector.
const Size = 145

// Vector is a fixed-length feature vector. Being an array, its length is
// enforced by the type.
type Vector [Size]float64

// Index layout. Ranges are half-open [start, end).
const (
	// Base numeric block.
	IdxDuration = 0
	IdxSrcBytes = 1
	IdxDstBytes = 2
	IdxLand     = 3
	IdxLoggedIn = 8 // 4-7 and 9-18 are placeholders and stay zero
	baseStart   = 0
	baseEnd     = 19

	// Traffic regime block.
	IdxCount           = 19
	IdxSrvCount        = 20
	IdxSerrorRate      = 21
	IdxSrvSerrorRate   = 22
	IdxRerrorRate      = 23
	IdxSrvRerrorRate   = 24
	IdxSameSrvRate     = 25
	IdxDiffSrvRate     = 26
	IdxSrvDiffHostRate = 27
	trafficStart       = 19
	trafficEnd         = 28

	// One-hot blocks.
	protocolStart = 28
	protocolEnd   = 31
	serviceStart  = 31
	serviceEnd    = 46
	flagStart     = 46
	flagEnd       = 57
	oneHotStart   = protocolStart
	oneHotEnd     = flagEnd

	// Signature block.
	IdxCountOver200   = 57
	IdxFloodBand      = 58
	IdxScanBand       = 59
	IdxStealthProbe   = 60
	IdxSlowProbe      = 61
	IdxPortRatio      = 62
	IdxCriticalPort   = 63
	IdxConnsPerSecond = 64
	IdxSynShare       = 65
	IdxRejectShare    = 66
	signatureStart    = 57
	signatureEnd      = 67
)

// ProtocolIndex returns the one-hot index for a canonical protocol, or -1.
func ProtocolIndex(proto string) int {
	switch proto {
	case "tcp":
		return protocolStart
	case "udp":
		return protocolStart + 1
	case "icmp":
		return protocolStart + 2
	}
	return -1
}

// FlagIndex returns the one-hot index for a canonical flag. Unknown flags map to OTH.
func FlagIndex(flag string) int {
	for i, f := range flagOrder {
		if f == flag {
			return flagStart + i
		}
	}
	return flagEnd - 1
}

// ServiceIndex returns the one-hot index for a service name. Unknown services map to "other".
func ServiceIndex(service string) int {
	for i, s := range serviceOrder {
		if s == service {
			return serviceStart + i
		}
	}
	return serviceEnd - 1
}

var flagOrder = [flagEnd - flagStart]string{"SF", "S0", "S1", "S2", "S3", "REJ", "RSTO", "RSTR", "RSTOS0", "SH", "OTH"}
