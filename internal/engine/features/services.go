package features

// serviceOrder fixes the service one-hot layout; "other" must stay last.
var serviceOrder = [serviceEnd - serviceStart]string{
	"http", "http_443", "ssh", "telnet", "ftp", "ftp_data", "smtp", "domain_u",
	"pop_3", "imap4", "finger", "auth", "netbios_ssn", "sql_net", "other",
}

// portServices is the static port to service lookup table.
var portServices = map[uint16]string{
	20:   "ftp_data",
	21:   "ftp",
	22:   "ssh",
	23:   "telnet",
	25:   "smtp",
	53:   "domain_u",
	79:   "finger",
	80:   "http",
	110:  "pop_3",
	113:  "auth",
	139:  "netbios_ssn",
	143:  "imap4",
	443:  "http_443",
	445:  "netbios_ssn",
	1433: "sql_net",
	1521: "sql_net",
	3306: "sql_net",
	5432: "sql_net",
	8000: "http",
	8080: "http",
	8443: "http_443",
}

// Service returns the service name for a destination port, "other" when unmapped.
func Service(port uint16) string {
	if s, ok := portServices[port]; ok {
		return s
	}
	return "other"
}

// criticalPorts are services whose saturation takes a host's main function down.
var criticalPorts = map[uint16]bool{
	21: true, 22: true, 23: true, 25: true, 53: true, 80: true, 110: true,
	143: true, 443: true, 445: true, 3306: true, 3389: true, 5432: true, 8080: true,
}

// IsCriticalPort reports whether port is in the critical-port set.
func IsCriticalPort(port uint16) bool {
	return criticalPorts[port]
}
