package model

// Category is an attack category assigned by the engine.
type Category string

const (
	Normal   Category = "Normal"
	DoS      Category = "DoS"
	Probe    Category = "Probe"
	PortScan Category = "PortScan"
	R2L      Category = "R2L"
	U2R      Category = "U2R"
	Unknown  Category = "Unknown"
)

// Categories lists every category in canonical order.
var Categories = []Category{Normal, DoS, Probe, PortScan, R2L, U2R, Unknown}

// ParseCategory maps a label to a Category. Common spellings from model
// exports ("normal", "Port Scan", "portsweep") are accepted; anything else is Unknown.
func ParseCategory(s string) Category {
	switch foldLabel(s) {
	case "normal":
		return Normal
	case "dos":
		return DoS
	case "probe":
		return Probe
	case "portscan", "portsweep":
		return PortScan
	case "r2l":
		return R2L
	case "u2r":
		return U2R
	default:
		return Unknown
	}
}

// IsIntrusion reports whether the category denotes an attack.
func (c Category) IsIntrusion() bool {
	return c != Normal && c != ""
}

// Severity returns the alert severity for the category.
func (c Category) Severity() string {
	switch c {
	case DoS:
		return "high"
	case Normal:
		return "info"
	default:
		return "medium"
	}
}
