package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/crimson-sun/netsentry/internal/model"
)

var (
	// ErrUnavailable is returned when no trained model could be loaded.
	ErrUnavailable = errors.New("classifier: model unavailable")
	// ErrTimeout is returned when inference exceeds its deadline.
	ErrTimeout = errors.New("classifier: inference timed out")
	// ErrShape is returned when an input or output tensor has an unexpected size.
	ErrShape = errors.New("classifier: unexpected tensor shape")
)

// InferenceError describes a failed inference call.
type InferenceError struct {
	Op      string // operation that failed
	Backend string // backend name
	Cause   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s failed on %s: %v", e.Op, e.Backend, e.Cause)
}

func (e *InferenceError) Unwrap() error {
	return e.Cause
}

// Model produces a probability distribution over categories for a normalized
// feature vector. Implementations must be safe for concurrent use.
type Model interface {
	Predict(ctx context.Context, vec []float32) (Distribution, error)
	Close() error
}

// DefaultLabels is the output order of the bundled model exports.
var DefaultLabels = []model.Category{model.Normal, model.DoS, model.Probe, model.R2L, model.U2R}

// Distribution is a probability per label.
type Distribution struct {
	Labels []model.Category
	Probs  []float64
}

// Top returns the most probable label. Ties resolve to the earlier label.
// It returns false when the distribution is empty or malformed.
func (d Distribution) Top() (model.Category, float64, bool) {
	if len(d.Labels) == 0 || len(d.Labels) != len(d.Probs) {
		return "", 0, false
	}
	best := 0
	for i, p := range d.Probs {
		if math.IsNaN(p) {
			return "", 0, false
		}
		if p > d.Probs[best] {
			best = i
		}
	}
	return d.Labels[best], d.Probs[best], true
}

// Prob returns the probability assigned to c, or 0.
func (d Distribution) Prob(c model.Category) float64 {
	for i, l := range d.Labels {
		if l == c && i < len(d.Probs) {
			return d.Probs[i]
		}
	}
	return 0
}

// Degraded is the distribution reported when inference failed: Normal with
// zero confidence.
func Degraded() Distribution {
	return Distribution{
		Labels: append([]model.Category(nil), DefaultLabels...),
		Probs:  make([]float64, len(DefaultLabels)),
	}
}

// softmax turns raw scores into probabilities unless they already form one.
func softmax(scores []float32) []float64 {
	out := make([]float64, len(scores))
	sum := 0.0
	isProb := true
	for i, s := range scores {
		out[i] = float64(s)
		if s < 0 || s > 1 {
			isProb = false
		}
		sum += out[i]
	}
	if isProb && math.Abs(sum-1) < 1e-3 {
		return out
	}

	maxScore := math.Inf(-1)
	for _, s := range out {
		maxScore = math.Max(maxScore, s)
	}
	sum = 0
	for i, s := range out {
		out[i] = math.Exp(s - maxScore)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
