package analyzer

import (
	"math/rand"

	"github.com/sirupsen/logrus"
)

// Options selects which analyses Analyze runs.
type Options struct {
	AnalyzeQuality      bool
	SuggestCrops        bool
	DetectInappropriate bool
}

// DefaultOptions enables every analysis.
func DefaultOptions() Options {
	return Options{
		AnalyzeQuality:      true,
		SuggestCrops:        true,
		DetectInappropriate: true,
	}
}

// QualityOnly returns options running just the quality assessment.
func QualityOnly() Options {
	return Options{AnalyzeQuality: true}
}

// WithoutQuality disables the quality assessment
func (o Options) WithoutQuality() Options {
	o.AnalyzeQuality = false
	return o
}

// WithoutCrops disables crop suggestions
func (o Options) WithoutCrops() Options {
	o.SuggestCrops = false
	return o
}

// WithoutContentDetection disables NSFW detection
func (o Options) WithoutContentDetection() Options {
	o.DetectInappropriate = false
	return o
}

// Config is the construction-time configuration of an Analyzer.
type Config struct {
	// NSFWThreshold is stored and reported but does not move the 0.5
	// decision boundary.
	NSFWThreshold float64
	LoadModel     bool
}

// DefaultConfig mirrors the service defaults.
func DefaultConfig() Config {
	return Config{NSFWThreshold: 0.7, LoadModel: true}
}

// Option customizes an Analyzer at construction.
type Option func(*Analyzer)

// WithRand sets the random source used by the fallback score.
func WithRand(r *rand.Rand) Option {
	return func(a *Analyzer) {
		if r != nil {
			a.rng = &lockedRand{r: r}
		}
	}
}

// WithLogger sets the log entry used for classifier faults.
func WithLogger(entry *logrus.Entry) Option {
	return func(a *Analyzer) {
		if entry != nil {
			a.log = entry
		}
	}
}

// WithTargets replaces the default crop targets.
func WithTargets(targets []AspectTarget) Option {
	return func(a *Analyzer) {
		if len(targets) > 0 {
			a.targets = append([]AspectTarget(nil), targets...)
		}
	}
}
