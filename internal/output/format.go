package output

import (
	"fmt"
	"strings"

	"github.com/crimson-sun/netsentry/internal/model"
)

// Verbosity controls how much of an alert is written.
type Verbosity int

const (
	Minimal Verbosity = iota
	Standard
	Full
)

func (v Verbosity) String() string {
	switch v {
	case Minimal:
		return "minimal"
	case Full:
		return "full"
	default:
		return "standard"
	}
}

// ParseVerbosity maps a config string to a Verbosity.
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal":
		return Minimal, nil
	case "", "standard":
		return Standard, nil
	case "full":
		return Full, nil
	}
	return Standard, fmt.Errorf("unknown verbosity %q", s)
}

// FormatAlert returns a copy of the alert with fields stripped according to verbosity.
// At Minimal: confidence, rule, port sample and status pattern are dropped.
// At Standard: the status pattern is dropped.
// At Full: all fields preserved.
func FormatAlert(a model.Alert, verbosity Verbosity) model.Alert {
	switch verbosity {
	case Minimal:
		a.Confidence = 0
		a.Rule = ""
		a.Ports = nil
		a.StatusPattern = nil
	case Standard:
		a.StatusPattern = nil
	}
	return a
}
