package classifier

import (
	"context"

	"github.com/crimson-sun/netsentry/internal/model"
)

// uniformTilt is the extra mass given to Normal so the fallback's argmax is
// deterministic.
const uniformTilt = 0.01

// Uniform is the stand-in used when no trained model exists. Its output is
// near-uniform, so every verdict it influences falls below the category
// thresholds and the rules remain the effective decision-makers.
type Uniform struct {
	labels []model.Category
}

// NewUniform creates the fallback model over labels (DefaultLabels when empty).
func NewUniform(labels []model.Category) *Uniform {
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	return &Uniform{labels: append([]model.Category(nil), labels...)}
}

func (u *Uniform) Predict(_ context.Context, _ []float32) (Distribution, error) {
	n := float64(len(u.labels))
	probs := make([]float64, len(u.labels))
	for i, l := range u.labels {
		probs[i] = 1 / n
		if l == model.Normal {
			probs[i] += uniformTilt
		}
	}
	total := 0.0
	for _, p := range probs {
		total += p
	}
	for i := range probs {
		probs[i] /= total
	}
	return Distribution{Labels: append([]model.Category(nil), u.labels...), Probs: probs}, nil
}

func (u *Uniform) Close() error {
	return nil
}
