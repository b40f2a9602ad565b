package classifier

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/crimson-sun/netsentry/internal/engine/features"
	"github.com/crimson-sun/netsentry/internal/model"
)

// ortEnv manages global ONNX Runtime initialization. The runtime itself is
// process-wide; sessions built on it are owned by their ONNX values.
var ortEnv struct {
	once sync.Once
	err  error
}

// initORT initializes the ONNX Runtime environment. Safe to call multiple
// times; only the first call has any effect.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// ONNX runs a trained classifier exported to ONNX. The model takes a
// [batch, 145] float32 tensor and returns [batch, len(labels)] scores.
type ONNX struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	labels     []model.Category
}

// NewONNX loads the model at cfg.ModelPath and validates its tensor shapes.
func NewONNX(cfg Config) (*ONNX, error) {
	libPath := cfg.LibraryPath
	if libPath == "" {
		// Shipped alongside the model file.
		libPath = filepath.Join(filepath.Dir(cfg.ModelPath), "libonnxruntime.so")
	}
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return nil, fmt.Errorf("onnx: expected one input and at least one output, got %d/%d: %w", len(inputs), len(outputs), ErrShape)
	}
	if dims := inputs[0].Dimensions; len(dims) != 2 || (dims[1] != features.Size && dims[1] != -1) {
		return nil, fmt.Errorf("onnx: input dims %v, want [batch, %d]: %w", dims, features.Size, ErrShape)
	}

	labels := cfg.categories()
	dims := outputs[0].Dimensions
	if len(dims) != 2 || dims[1] != int64(len(labels)) {
		return nil, fmt.Errorf("onnx: output dims %v, want [batch, %d]: %w", dims, len(labels), ErrShape)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	threads := cfg.IntraOpThreads
	if threads <= 0 {
		threads = 1
	}
	opts.SetIntraOpNumThreads(threads)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &ONNX{
		session:    session,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		labels:     labels,
	}, nil
}

// Predict runs a single inference call on a normalized feature vector.
func (o *ONNX) Predict(ctx context.Context, vec []float32) (Distribution, error) {
	if len(vec) != features.Size {
		return Distribution{}, &InferenceError{Op: "predict", Backend: "onnx", Cause: fmt.Errorf("%w: input len %d", ErrShape, len(vec))}
	}
	if err := ctx.Err(); err != nil {
		return Distribution{}, err
	}

	in, err := ort.NewTensor(ort.NewShape(1, features.Size), vec)
	if err != nil {
		return Distribution{}, fmt.Errorf("onnx: failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(o.labels))))
	if err != nil {
		return Distribution{}, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer out.Destroy()

	if err := o.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return Distribution{}, &InferenceError{Op: "predict", Backend: "onnx", Cause: err}
	}

	// Copy data out before the tensor is destroyed.
	return Distribution{
		Labels: append([]model.Category(nil), o.labels...),
		Probs:  softmax(out.GetData()),
	}, nil
}

// Close releases the ONNX session.
func (o *ONNX) Close() error {
	return o.session.Destroy()
}
