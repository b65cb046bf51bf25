package analyzer

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	// DecisionBoundary is the fixed probability above which content is flagged.
	DecisionBoundary = 0.5

	FallbackModelTag   = "fallback"
	fallbackMax        = 0.3
	fallbackConfidence = 0.5
)

// Outcome is the result of one classifier call: OutcomeSuccess,
// OutcomeUnavailable or OutcomeRuntimeFault.
type Outcome interface {
	outcome()
}

type OutcomeSuccess struct {
	Probability float64
}

type OutcomeUnavailable struct{}

type OutcomeRuntimeFault struct {
	Reason string
}

func (OutcomeSuccess) outcome()      {}
func (OutcomeUnavailable) outcome()  {}
func (OutcomeRuntimeFault) outcome() {}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// classify runs the classifier once and turns errors, panics and invalid
// probabilities into OutcomeRuntimeFault.
func (a *Analyzer) classify(ctx context.Context, img *DecodedImage) (out Outcome) {
	if !a.state.ModelAvailable {
		return OutcomeUnavailable{}
	}

	defer func() {
		if r := recover(); r != nil {
			out = OutcomeRuntimeFault{Reason: fmt.Sprintf("classifier panic: %v", r)}
		}
	}()

	p, err := a.clf.Classify(ctx, img.Image)
	if err != nil {
		return OutcomeRuntimeFault{Reason: err.Error()}
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return OutcomeRuntimeFault{Reason: fmt.Sprintf("probability out of range: %v", p)}
	}
	return OutcomeSuccess{Probability: p}
}

// DetectInappropriateContent always returns a report. Without a working
// classifier the report carries a placeholder score tagged FallbackModelTag.
func (a *Analyzer) DetectInappropriateContent(ctx context.Context, img *DecodedImage) NsfwReport {
	switch o := a.classify(ctx, img).(type) {
	case OutcomeSuccess:
		return modelReport(o.Probability, a.state.ModelName)
	case OutcomeRuntimeFault:
		a.log.WithFields(logrus.Fields{
			"model":  a.state.ModelName,
			"reason": o.Reason,
		}).Warn("NSFW classifier failed, using fallback score")
		a.notifyFallback(o.Reason)
	}
	return a.fallbackReport()
}

func modelReport(p float64, tag string) NsfwReport {
	return NsfwReport{
		NsfwProbability: p,
		SfwProbability:  1 - p,
		IsInappropriate: p > DecisionBoundary,
		Confidence:      math.Max(p, 1-p),
		ModelUsed:       tag,
	}
}

// fallbackReport is a low random placeholder, not a detection.
func (a *Analyzer) fallbackReport() NsfwReport {
	p := a.rng.Float64() * fallbackMax
	return NsfwReport{
		NsfwProbability: p,
		SfwProbability:  1 - p,
		IsInappropriate: p > DecisionBoundary,
		Confidence:      fallbackConfidence,
		ModelUsed:       FallbackModelTag,
	}
}
