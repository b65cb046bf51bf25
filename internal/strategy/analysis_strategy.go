package strategy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/anime-shed/profile-image-analyzer/internal/analyzer"
)

// AnalysisStrategy selects which analyses run for an image
type AnalysisStrategy interface {
	Options() analyzer.Options
	GetStrategyName() string
}

type optionsStrategy struct {
	name string
	opts analyzer.Options
}

func (s optionsStrategy) Options() analyzer.Options { return s.opts }
func (s optionsStrategy) GetStrategyName() string   { return s.name }

// FullAnalysisStrategy runs quality, crops and content detection
func FullAnalysisStrategy() AnalysisStrategy {
	return optionsStrategy{name: "full", opts: analyzer.DefaultOptions()}
}

// QualityAnalysisStrategy only scores image quality
func QualityAnalysisStrategy() AnalysisStrategy {
	return optionsStrategy{name: "quality", opts: analyzer.QualityOnly()}
}

// CropAnalysisStrategy only suggests crops
func CropAnalysisStrategy() AnalysisStrategy {
	return optionsStrategy{name: "crops", opts: analyzer.Options{SuggestCrops: true}}
}

// ContentAnalysisStrategy only runs content detection
func ContentAnalysisStrategy() AnalysisStrategy {
	return optionsStrategy{name: "content", opts: analyzer.Options{DetectInappropriate: true}}
}

// FastAnalysisStrategy skips the classifier
func FastAnalysisStrategy() AnalysisStrategy {
	return optionsStrategy{name: "fast", opts: analyzer.DefaultOptions().WithoutContentDetection()}
}

var registry = map[string]func() AnalysisStrategy{
	"full":    FullAnalysisStrategy,
	"quality": QualityAnalysisStrategy,
	"crops":   CropAnalysisStrategy,
	"content": ContentAnalysisStrategy,
	"fast":    FastAnalysisStrategy,
}

// Names lists the registered strategy names in sorted order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the strategy registered under name. An empty name selects
// the full strategy.
func Lookup(name string) (AnalysisStrategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return FullAnalysisStrategy(), nil
	}
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown analysis mode %q (want one of %s)", name, strings.Join(Names(), ", "))
	}
	return build(), nil
}

// AnalysisContext manages the analysis strategy
type AnalysisContext struct {
	analyzer analyzer.ImageAnalyzer
	strategy AnalysisStrategy
}

// NewAnalysisContext creates a new analysis context
func NewAnalysisContext(a analyzer.ImageAnalyzer, strategy AnalysisStrategy) *AnalysisContext {
	return &AnalysisContext{
		analyzer: a,
		strategy: strategy,
	}
}

// SetStrategy changes the analysis strategy
func (c *AnalysisContext) SetStrategy(strategy AnalysisStrategy) {
	c.strategy = strategy
}

// ExecuteAnalysis runs the current strategy against src
func (c *AnalysisContext) ExecuteAnalysis(ctx context.Context, src analyzer.Source) analyzer.Result {
	return c.analyzer.Analyze(ctx, src, c.strategy.Options())
}

// GetCurrentStrategy returns the current strategy name
func (c *AnalysisContext) GetCurrentStrategy() string {
	return c.strategy.GetStrategyName()
}
