// Package netsentry classifies network connection activity into attack
// categories (Normal, DoS, Probe, PortScan, R2L, U2R, Unknown).
//
// Quick start:
//
//	d, err := netsentry.New(netsentry.WithModelPath("models/netsentry.onnx"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer d.Close()
//
//	v := d.Classify(netsentry.Observation{
//	    Source:      "203.0.113.7",
//	    Destination: "10.0.0.5",
//	    DestPort:    80,
//	    Flag:        "S0",
//	})
//	fmt.Println(v.Category, v.Method) // Normal fallback, until the pair builds up
//
// Observations from the same (source, destination) pair accumulate inside the
// Detector, so repeated calls see the pair's recent history. Without a model
// artifact the Detector still works: rules decide the obvious attacks and
// connection-count buckets decide the rest.
//
// The Detector is safe for concurrent use. Create once, reuse across requests.
package netsentry
