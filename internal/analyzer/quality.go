package analyzer

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/histogram"
	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"
)

const (
	MinWidth  = 800
	MinHeight = 800

	// BlurSigma is the standard deviation of the softened reference.
	BlurSigma = 3.0

	HighQualityThreshold = 0.7

	sharpnessEpsilon = 1e-4
	sharpnessScale   = 5.0
)

var levels = func() []float64 {
	l := make([]float64, 256)
	for i := range l {
		l[i] = float64(i)
	}
	return l
}()

// weights turns histogram bins into the weight vector for gonum's weighted
// statistics over levels.
func weights(h histogram.Histogram) []float64 {
	w := make([]float64, len(h.Bins))
	for i, n := range h.Bins {
		w[i] = float64(n)
	}
	return w
}

// extrema returns the lowest and highest populated levels.
func extrema(h histogram.Histogram) (lo, hi int) {
	lo, hi = 255, 0
	for v, n := range h.Bins {
		if n == 0 {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// luminanceStd is the population standard deviation of a grayscale image.
// Grayscale images carry the level in every color sample, so the red bins
// suffice.
func luminanceStd(gray image.Image) float64 {
	h := histogram.NewRGBAHistogram(gray)
	_, std := stat.PopMeanStdDev(levels, weights(h.R))
	return std
}

// AssessQuality computes the quality report of img. It is a pure function of
// the pixel data.
func AssessQuality(img *DecodedImage) QualityReport {
	lum := imaging.Grayscale(img.Image)
	softened := imaging.Blur(lum, BlurSigma)
	sharpness := luminanceStd(lum) / math.Max(luminanceStd(softened), sharpnessEpsilon)

	hist := histogram.NewRGBAHistogram(img.Image)
	var meanSum float64
	lowest, highest := 255, 0
	for _, ch := range []histogram.Histogram{hist.R, hist.G, hist.B} {
		meanSum += stat.Mean(levels, weights(ch))
		lo, hi := extrema(ch)
		if lo < lowest {
			lowest = lo
		}
		if hi > highest {
			highest = hi
		}
	}
	brightness := meanSum / 3
	contrast := float64(highest-lowest) / 255

	score := qualityScore(img.Width, img.Height, sharpness, brightness)

	return QualityReport{
		Width:         img.Width,
		Height:        img.Height,
		Sharpness:     sharpness,
		Brightness:    brightness,
		Contrast:      contrast,
		QualityScore:  score,
		IsHighQuality: score > HighQualityThreshold,
	}
}

func resolutionScore(width, height int) float64 {
	return math.Min(1, float64(width*height)/float64(MinWidth*MinHeight))
}

func sharpnessScore(sharpness float64) float64 {
	return math.Min(1, sharpness/sharpnessScale)
}

// exposureScore peaks at mid-gray and falls off linearly toward black and white.
func exposureScore(brightness float64) float64 {
	return 1 - 2*math.Abs(brightness/255-0.5)
}

func qualityScore(width, height int, sharpness, brightness float64) float64 {
	return 0.4*resolutionScore(width, height) +
		0.4*sharpnessScore(sharpness) +
		0.2*exposureScore(brightness)
}
