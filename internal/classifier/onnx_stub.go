//go:build !(onnx && cgo)

package classifier

// NewONNXLoader returns a loader that always fails in builds without ONNX
// Runtime support, leaving the analyzer in fallback mode.
func NewONNXLoader(opts ONNXOptions) Loader {
	return func() (Classifier, error) {
		if opts.ModelPath == "" {
			return nil, ErrModelNotConfigured
		}
		return nil, ErrRuntimeUnavailable
	}
}
