package analyzer

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// RatioTolerance is how close the source ratio must be to a target for the
// crop to be skipped.
const RatioTolerance = 0.1

// AspectTarget names a target aspect ratio (width / height).
type AspectTarget struct {
	Name  string
	Ratio float64
}

// DefaultTargets are the crops suggested for profile pictures.
func DefaultTargets() []AspectTarget {
	return []AspectTarget{
		{Name: "profile", Ratio: 1.0},
		{Name: "cover", Ratio: 1.91},
		{Name: "portrait", Ratio: 0.75},
	}
}

// SuggestCrops suggests a centered crop for each default target.
func SuggestCrops(img *DecodedImage) map[string]CropSuggestion {
	return SuggestCropsFor(img, DefaultTargets())
}

// SuggestCropsFor suggests a centered crop for each of targets. Targets with a
// non-positive ratio are skipped.
func SuggestCropsFor(img *DecodedImage, targets []AspectTarget) map[string]CropSuggestion {
	out := make(map[string]CropSuggestion, len(targets))
	for _, t := range targets {
		if t.Ratio <= 0 || math.IsNaN(t.Ratio) || math.IsInf(t.Ratio, 0) {
			continue
		}
		out[t.Name] = suggestCrop(t.Name, img.Width, img.Height, t.Ratio)
	}
	return out
}

func suggestCrop(name string, width, height int, target float64) CropSuggestion {
	original := float64(width) / float64(height)

	if math.Abs(original-target) < RatioTolerance {
		return CropSuggestion{
			Right:       width,
			Bottom:      height,
			Width:       width,
			Height:      height,
			Message:     fmt.Sprintf("Image already has a good %s ratio", name),
			AlreadyGood: true,
		}
	}

	var newW, newH int
	if original > target {
		newH = height
		newW = int(float64(height) * target)
	} else {
		newW = width
		newH = int(float64(width) / target)
	}
	newW = clampInt(newW, 1, width)
	newH = clampInt(newH, 1, height)

	cx, cy := width/2, height/2
	left := clampInt(cx-newW/2, 0, width-newW)
	top := clampInt(cy-newH/2, 0, height-newH)

	return CropSuggestion{
		Left:    left,
		Top:     top,
		Right:   left + newW,
		Bottom:  top + newH,
		Width:   newW,
		Height:  newH,
		Message: fmt.Sprintf("Suggested crop for %s format", name),
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ApplyCrop cuts the suggested rectangle out of img.
func ApplyCrop(img *DecodedImage, s CropSuggestion) (image.Image, error) {
	r := s.Rect()
	if r.Empty() || !r.In(img.Image.Bounds()) {
		return nil, fmt.Errorf("crop %v outside image bounds %dx%d", r, img.Width, img.Height)
	}
	return imaging.Crop(img.Image, r), nil
}
