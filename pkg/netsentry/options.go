package netsentry

import (
	"time"
)

type options struct {
	configPath string
	modelPath  *string
	timeout    time.Duration
	window     time.Duration
	maxPairs   int
	thresholds map[string]float64
}

// Option configures a Detector.
type Option func(*options)

// WithConfigFile loads settings from a YAML file (the same format as the
// netsentry command). Other options override values from the file.
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configPath = path
	}
}

// WithModelPath sets the ONNX classifier artifact. An empty path disables the
// model and leaves rules and count buckets in charge.
func WithModelPath(path string) Option {
	return func(o *options) {
		o.modelPath = &path
	}
}

// WithInferenceTimeout bounds a single model call. Default: 200ms.
func WithInferenceTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithWindow sets how long an idle (source, destination) pair is remembered.
// Default: 60s.
func WithWindow(d time.Duration) Option {
	return func(o *options) {
		o.window = d
	}
}

// WithMaxPairs bounds the number of tracked pairs. Default: 5000.
func WithMaxPairs(n int) Option {
	return func(o *options) {
		o.maxPairs = n
	}
}

// WithThreshold sets the minimum model confidence accepted for category.
// Category names are case-insensitive ("dos", "PortScan").
func WithThreshold(category string, t float64) Option {
	return func(o *options) {
		if o.thresholds == nil {
			o.thresholds = make(map[string]float64)
		}
		o.thresholds[category] = t
	}
}
