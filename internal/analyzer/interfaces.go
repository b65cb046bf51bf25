package analyzer

import "context"

// ImageAnalyzer defines the main interface for image analysis
type ImageAnalyzer interface {
	Analyze(ctx context.Context, src Source, opts Options) Result
	AnalyzeDecoded(ctx context.Context, img *DecodedImage, opts Options) Result

	// DetectInappropriateContent always returns a report, falling back to a
	// placeholder score when the classifier is unavailable or fails.
	DetectInappropriateContent(ctx context.Context, img *DecodedImage) NsfwReport

	State() State

	// Lifecycle management
	Close() error
}

var _ ImageAnalyzer = (*Analyzer)(nil)
