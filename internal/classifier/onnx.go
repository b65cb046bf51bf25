//go:build onnx && cgo

package classifier

import (
	"context"
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	runtimeInitOnce sync.Once
	runtimeInitErr  error
)

func initRuntime(libPath string) error {
	runtimeInitOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		runtimeInitErr = ort.InitializeEnvironment()
	})
	return runtimeInitErr
}

// ONNXClassifier runs the OpenNSFW model through ONNX Runtime.
type ONNXClassifier struct {
	session *ort.DynamicAdvancedSession
	opts    ONNXOptions
}

// NewONNXLoader returns a loader for the ONNX classifier.
func NewONNXLoader(opts ONNXOptions) Loader {
	return func() (Classifier, error) {
		return NewONNXClassifier(opts)
	}
}

// NewONNXClassifier loads the model at opts.ModelPath.
func NewONNXClassifier(opts ONNXOptions) (*ONNXClassifier, error) {
	opts = opts.withDefaults()
	if opts.ModelPath == "" {
		return nil, ErrModelNotConfigured
	}
	if err := initRuntime(opts.SharedLibraryPath); err != nil {
		return nil, fmt.Errorf("runtime init: %w", err)
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer sessOpts.Destroy()

	if opts.NumThreads > 0 {
		if err := sessOpts.SetIntraOpNumThreads(opts.NumThreads); err != nil {
			return nil, fmt.Errorf("set threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		opts.ModelPath,
		[]string{opts.InputName},
		[]string{opts.OutputName},
		sessOpts,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &ONNXClassifier{session: session, opts: opts}, nil
}

func (c *ONNXClassifier) Classify(ctx context.Context, img image.Image) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	input, err := ort.NewTensor(ort.Shape{1, InputSize, InputSize, 3}, Preprocess(img))
	if err != nil {
		return 0, fmt.Errorf("input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.Shape{1, 2})
	if err != nil {
		return 0, fmt.Errorf("output tensor: %w", err)
	}
	defer output.Destroy()

	if err := c.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return 0, fmt.Errorf("inference: %w", err)
	}
	return probabilityFromOutput(output.GetData())
}

func (c *ONNXClassifier) Name() string { return ModelTag }

func (c *ONNXClassifier) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Destroy()
}
