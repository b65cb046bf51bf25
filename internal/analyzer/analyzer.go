package analyzer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/anime-shed/profile-image-analyzer/internal/classifier"
	"github.com/anime-shed/profile-image-analyzer/internal/logger"
	"github.com/sirupsen/logrus"
)

// Analyzer runs the quality, crop and content analyses. Its State is fixed at
// construction; a classifier that failed to load is never retried.
type Analyzer struct {
	state   State
	clf     classifier.Classifier
	rng     *lockedRand
	log     *logrus.Entry
	targets []AspectTarget
	onFault func(reason string)

	closeOnce sync.Once
	closeErr  error
}

// New builds an Analyzer around an already constructed classifier. A nil
// classifier leaves the analyzer in fallback mode.
func New(cfg Config, clf classifier.Classifier, opts ...Option) *Analyzer {
	a := &Analyzer{
		clf:     clf,
		rng:     &lockedRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))},
		log:     logger.ForComponent("analyzer"),
		targets: DefaultTargets(),
		state: State{
			ModelAvailable: clf != nil,
			Threshold:      cfg.NSFWThreshold,
			ModelName:      FallbackModelTag,
		},
	}
	if clf != nil {
		a.state.ModelName = clf.Name()
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewFromLoader attempts to construct the classifier once when cfg.LoadModel
// is set. A failed load is logged and the analyzer stays in fallback mode.
func NewFromLoader(cfg Config, load classifier.Loader, opts ...Option) *Analyzer {
	var clf classifier.Classifier
	if cfg.LoadModel && load != nil {
		var err error
		clf, err = safeLoad(load)
		if err != nil {
			entry := logger.ForComponent("analyzer")
			if errors.Is(err, classifier.ErrModelNotConfigured) || errors.Is(err, classifier.ErrRuntimeUnavailable) {
				entry.WithError(err).Info("NSFW model not loaded, content detection uses fallback")
			} else {
				entry.WithError(err).Error("Failed to load NSFW model, content detection uses fallback")
			}
			clf = nil
		}
	}
	return New(cfg, clf, opts...)
}

func safeLoad(load classifier.Loader) (clf classifier.Classifier, err error) {
	defer func() {
		if r := recover(); r != nil {
			clf, err = nil, fmt.Errorf("classifier loader panic: %v", r)
		}
	}()
	clf, err = load()
	if err == nil && clf == nil {
		err = errors.New("classifier loader returned nil")
	}
	return clf, err
}

// WithFaultHook registers a callback invoked for every classifier runtime fault.
func WithFaultHook(fn func(reason string)) Option {
	return func(a *Analyzer) {
		a.onFault = fn
	}
}

func (a *Analyzer) notifyFallback(reason string) {
	if a.onFault != nil {
		a.onFault(reason)
	}
}

// State returns the immutable analyzer state.
func (a *Analyzer) State() State {
	return a.state
}

// Targets returns a copy of the configured crop targets.
func (a *Analyzer) Targets() []AspectTarget {
	return append([]AspectTarget(nil), a.targets...)
}

// Analyze loads src and runs the analyses selected by opts. A load failure
// yields a Result with only Error set.
func (a *Analyzer) Analyze(ctx context.Context, src Source, opts Options) Result {
	img, err := Load(src)
	if err != nil {
		a.log.WithError(err).Debug("Image load failed")
		return Result{Error: err.Error()}
	}
	return a.AnalyzeDecoded(ctx, img, opts)
}

// AnalyzeDecoded runs the selected analyses on an already loaded image. The
// content report is only included when the classifier is available.
func (a *Analyzer) AnalyzeDecoded(ctx context.Context, img *DecodedImage, opts Options) Result {
	res := Result{OriginalSize: []int{img.Width, img.Height}}

	if opts.AnalyzeQuality {
		q := AssessQuality(img)
		res.Quality = &q
	}
	if opts.SuggestCrops {
		res.SuggestedCrops = SuggestCropsFor(img, a.targets)
	}
	if opts.DetectInappropriate && a.state.ModelAvailable {
		report := a.DetectInappropriateContent(ctx, img)
		res.InappropriateContent = &report
	}
	return res
}

// Close releases the classifier. Safe to call more than once.
func (a *Analyzer) Close() error {
	a.closeOnce.Do(func() {
		if a.clf != nil {
			a.closeErr = a.clf.Close()
		}
	})
	return a.closeErr
}
