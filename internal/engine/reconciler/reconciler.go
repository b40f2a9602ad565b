package reconciler

import (
	"errors"
	"fmt"
	"math"

	"github.com/crimson-sun/netsentry/internal/engine/classifier"
	"github.com/crimson-sun/netsentry/internal/engine/rules"
	"github.com/crimson-sun/netsentry/internal/model"
)

// Kind names why a classification degraded.
type Kind string

const (
	KindClassifierUnavailable Kind = "classifier_unavailable"
	KindInferenceTimeout      Kind = "inference_timeout"
	KindInferenceFailed       Kind = "inference_failed"
	KindReconciliation        Kind = "reconciliation"
)

// Error is a typed classification failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf maps an error to its Kind. Classifier errors map to their inference kinds.
func KindOf(err error) Kind {
	var re *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &re):
		return re.Kind
	case errors.Is(err, classifier.ErrTimeout):
		return KindInferenceTimeout
	case errors.Is(err, classifier.ErrUnavailable):
		return KindClassifierUnavailable
	default:
		return KindInferenceFailed
	}
}

var errMalformed = errors.New("malformed model distribution")

type state int

const (
	ruleCheck state = iota
	modelInference
	thresholdCheck
	final
)

// Reconciler merges rule and model outputs into a final decision.
type Reconciler struct {
	t Thresholds
}

// New creates a Reconciler with the given decision table.
func New(t Thresholds) *Reconciler {
	return &Reconciler{t: t}
}

// Thresholds returns the decision table in use.
func (r *Reconciler) Thresholds() Thresholds {
	return r.t
}

// Decide produces the classification for one observation. rule is nil when
// no rule fired. It never panics: on any internal failure it returns
// model.SafeDefault together with a *Error of KindReconciliation, so callers
// can tell a defaulted Normal from a real one.
func (r *Reconciler) Decide(stat model.AggregatedStat, obs model.ConnectionObservation, rule *rules.Match, dist classifier.Distribution) (res model.ClassificationResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = model.SafeDefault()
			err = &Error{Kind: KindReconciliation, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	var (
		category   model.Category
		confidence float64
		method     model.Method
	)

	for s := ruleCheck; s != final; {
		switch s {
		case ruleCheck:
			if rule != nil {
				category, confidence, method = rule.Category, rule.Confidence, model.MethodRule
				s = final
				continue
			}
			s = modelInference

		case modelInference:
			c, p, ok := dist.Top()
			if !ok || p < 0 || p > 1 {
				return model.SafeDefault(), &Error{Kind: KindReconciliation, Err: errMalformed}
			}
			category, confidence, method = c, p, model.MethodModel
			s = thresholdCheck

		case thresholdCheck:
			if confidence < r.t.For(category) {
				category, confidence, method = r.bucket(stat), r.t.FallbackConfidence, model.MethodFallback
			}
			confidence = r.boost(category, confidence, stat)
			s = final
		}
	}

	if math.IsNaN(confidence) {
		return model.SafeDefault(), &Error{Kind: KindReconciliation, Err: errMalformed}
	}
	return model.ClassificationResult{
		IsIntrusion: category.IsIntrusion(),
		Category:    category,
		Confidence:  math.Min(math.Max(confidence, 0), 1),
		Method:      method,
	}, nil
}

// bucket re-derives a category from the connection count alone.
func (r *Reconciler) bucket(stat model.AggregatedStat) model.Category {
	switch {
	case stat.Count > r.t.DoSBucketOver:
		return model.DoS
	case stat.Count >= r.t.ProbeBucketMin:
		return model.Probe
	default:
		return model.Normal
	}
}

// boost raises confidence by at most BoostStep, never above BoostCap, when
// the pair's counts corroborate the category.
func (r *Reconciler) boost(c model.Category, conf float64, stat model.AggregatedStat) float64 {
	var corroborated bool
	switch c {
	case model.DoS:
		corroborated = stat.Count > 2*r.t.DoSBucketOver
	case model.PortScan:
		corroborated = stat.PortCount() > 20
	case model.Probe:
		corroborated = stat.Count >= r.t.ProbeBucketMin && stat.PortCount() > 5
	}
	if !corroborated || conf >= r.t.BoostCap {
		return conf
	}
	return math.Min(conf+r.t.BoostStep, r.t.BoostCap)
}
