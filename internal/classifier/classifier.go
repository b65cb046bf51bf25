// Package classifier wraps the pretrained NSFW model behind a small
// interface so the analyzer can run with a real model, a stub, or none.
package classifier

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrModelNotConfigured is returned by loaders when no model path is set.
	ErrModelNotConfigured = errors.New("nsfw model path not configured")
	// ErrRuntimeUnavailable is returned when the binary was built without
	// ONNX Runtime support.
	ErrRuntimeUnavailable = errors.New("onnx runtime support not compiled in")
	// ErrBadOutput is returned when the model produces an unusable tensor.
	ErrBadOutput = errors.New("unexpected classifier output")
)

// Classifier scores an image with the probability that it is NSFW.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, img image.Image) (float64, error)
	Name() string
	Close() error
}

// Loader constructs a Classifier. It is called at most once per process.
type Loader func() (Classifier, error)

// Func adapts a plain function into a Classifier.
type Func struct {
	Tag string
	Fn  func(ctx context.Context, img image.Image) (float64, error)
}

func (f Func) Classify(ctx context.Context, img image.Image) (float64, error) {
	return f.Fn(ctx, img)
}

func (f Func) Name() string {
	if f.Tag == "" {
		return "func"
	}
	return f.Tag
}

func (f Func) Close() error { return nil }

// Static returns a loader that always hands out c.
func Static(c Classifier) Loader {
	return func() (Classifier, error) { return c, nil }
}

// Failing returns a loader that always fails with err.
func Failing(err error) Loader {
	return func() (Classifier, error) { return nil, err }
}
