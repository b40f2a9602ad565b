package testdata

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/netip"
	"time"

	"github.com/crimson-sun/netsentry/internal/model"
)

//go:embed corpus.json
var corpusJSON []byte

// CorpusEntry is a labelled traffic pattern for classification validation:
// Count connections from one source to one destination, cycling over Ports
// distinct destination ports starting at BasePort.
type CorpusEntry struct {
	Description      string `json:"description"`
	Count            int    `json:"count"`
	Ports            int    `json:"ports"`
	BasePort         uint16 `json:"base_port"`
	Flag             string `json:"flag"`
	BytesSent        int64  `json:"bytes_sent"`
	ExpectedCategory string `json:"expected_category"`
	ExpectedMethod   string `json:"expected_method"`
	ExpectedRule     string `json:"expected_rule"`
}

// LoadCorpus parses the embedded corpus.json and returns all entries.
func LoadCorpus() ([]CorpusEntry, error) {
	var entries []CorpusEntry
	if err := json.Unmarshal(corpusJSON, &entries); err != nil {
		return nil, fmt.Errorf("parse corpus.json: %w", err)
	}
	return entries, nil
}

// Observations expands the entry into its connection sequence, one
// millisecond apart from start.
func (e CorpusEntry) Observations(src, dst netip.Addr, start time.Time) []model.ConnectionObservation {
	ports := max(e.Ports, 1)
	out := make([]model.ConnectionObservation, e.Count)
	for i := range out {
		out[i] = model.ConnectionObservation{
			Source:      src,
			Destination: dst,
			SourcePort:  uint16(40000 + i%20000),
			DestPort:    e.BasePort + uint16(i%ports),
			Protocol:    "tcp",
			Flag:        e.Flag,
			BytesSent:   e.BytesSent,
			Timestamp:   start.Add(time.Duration(i) * time.Millisecond),
		}
	}
	return out
}
