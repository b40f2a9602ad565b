package connector

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/crimson-sun/netsentry/internal/model"
)

// Record is the JSON wire shape of one connection, shared by the NDJSON
// replay files and the HTTP poll endpoint. Durations are seconds.
type Record struct {
	Source      string    `json:"source_ip"`
	Destination string    `json:"destination_ip"`
	SourcePort  uint16    `json:"source_port"`
	DestPort    uint16    `json:"dest_port"`
	Protocol    string    `json:"protocol"`
	Flag        string    `json:"flag"`
	State       string    `json:"state"`
	BytesSent   int64     `json:"bytes_sent"`
	BytesRecv   int64     `json:"bytes_received"`
	Duration    float64   `json:"duration"`
	Timestamp   time.Time `json:"timestamp"`
}

// Observation converts the record, rejecting unparseable addresses.
func (r Record) Observation() (model.ConnectionObservation, error) {
	src, err := netip.ParseAddr(r.Source)
	if err != nil {
		return model.ConnectionObservation{}, fmt.Errorf("source_ip: %w", err)
	}
	dst, err := netip.ParseAddr(r.Destination)
	if err != nil {
		return model.ConnectionObservation{}, fmt.Errorf("destination_ip: %w", err)
	}
	return model.ConnectionObservation{
		Source:      src,
		Destination: dst,
		SourcePort:  r.SourcePort,
		DestPort:    r.DestPort,
		Protocol:    r.Protocol,
		Flag:        r.Flag,
		State:       r.State,
		BytesSent:   r.BytesSent,
		BytesRecv:   r.BytesRecv,
		Duration:    time.Duration(r.Duration * float64(time.Second)),
		Timestamp:   r.Timestamp,
	}, nil
}
