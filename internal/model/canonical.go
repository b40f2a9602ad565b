package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Known connection-state flags, in one-hot order.
var Flags = []string{"SF", "S0", "S1", "S2", "S3", "REJ", "RSTO", "RSTR", "RSTOS0", "SH", "OTH"}

// Protocols lists the transport protocols with a one-hot slot.
var Protocols = []string{"tcp", "udp", "icmp"}

// CanonicalProtocol normalizes a protocol name. Unknown names return "".
func CanonicalProtocol(s string) string {
	p := cases.Lower(language.Und).String(norm.NFKC.String(strings.TrimSpace(s)))
	switch p {
	case "tcp", "tcp4", "tcp6":
		return "tcp"
	case "udp", "udp4", "udp6":
		return "udp"
	case "icmp", "icmp6", "icmpv6":
		return "icmp"
	default:
		return ""
	}
}

// CanonicalFlag normalizes a connection flag. Empty input returns "";
// unrecognized flags return OTH.
func CanonicalFlag(s string) string {
	f := cases.Upper(language.Und).String(norm.NFKC.String(strings.TrimSpace(s)))
	if f == "" {
		return ""
	}
	for _, known := range Flags {
		if f == known {
			return f
		}
	}
	return "OTH"
}

// CanonicalState normalizes a socket state name ("syn-sent" -> "SYN_SENT").
func CanonicalState(s string) string {
	st := cases.Upper(language.Und).String(norm.NFKC.String(strings.TrimSpace(s)))
	return strings.ReplaceAll(st, "-", "_")
}

// FlagFromStates derives a connection flag from a socket-state histogram when
// the source only reports socket states.
func FlagFromStates(states map[string]int, ports int) string {
	switch {
	case states["ESTABLISHED"] > 0:
		return "SF"
	case states["SYN_SENT"] > 10 && ports == 1:
		return "S0"
	case ports > 10 && states["SYN_SENT"] > 5:
		return "S1"
	case states["TIME_WAIT"] > 0:
		return "SF"
	case len(states) == 0:
		return ""
	default:
		return "REJ"
	}
}

func foldLabel(s string) string {
	s = cases.Lower(language.Und).String(norm.NFKC.String(s))
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
}

// SynFlags are the half-open flags counted as SYN traffic.
var SynFlags = []string{"S0", "S1"}

// RejectFlags are flags of refused or reset connections.
var RejectFlags = []string{"REJ", "RSTO", "RSTR", "RSTOS0"}
