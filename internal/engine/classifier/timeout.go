package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type timeoutModel struct {
	inner   Model
	timeout time.Duration
}

// WithTimeout bounds every Predict call of m by d and converts panics inside
// the backend into errors. d <= 0 returns m unchanged.
func WithTimeout(m Model, d time.Duration) Model {
	if d <= 0 {
		return m
	}
	return &timeoutModel{inner: m, timeout: d}
}

type prediction struct {
	dist Distribution
	err  error
}

func (t *timeoutModel) Predict(ctx context.Context, vec []float32) (Distribution, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	ch := make(chan prediction, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- prediction{err: &InferenceError{Op: "predict", Backend: "model", Cause: fmt.Errorf("panic: %v", r)}}
			}
		}()
		d, err := t.inner.Predict(ctx, vec)
		ch <- prediction{dist: d, err: err}
	}()

	select {
	case p := <-ch:
		return p.dist, p.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Distribution{}, fmt.Errorf("%w after %s", ErrTimeout, t.timeout)
		}
		return Distribution{}, ctx.Err()
	}
}

func (t *timeoutModel) Close() error {
	return t.inner.Close()
}
