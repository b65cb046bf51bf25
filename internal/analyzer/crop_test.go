package analyzer

import (
	"encoding/json"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sized(w, h int) *DecodedImage {
	return &DecodedImage{Width: w, Height: h}
}

func TestSuggestCrops_WideImageProfile(t *testing.T) {
	crops := SuggestCrops(sized(1000, 500))

	profile, ok := crops["profile"]
	require.True(t, ok)
	assert.False(t, profile.AlreadyGood)
	assert.Equal(t, CropSuggestion{Left: 250, Top: 0, Right: 750, Bottom: 500, Width: 500, Height: 500, Message: "Suggested crop for profile format"}, profile)
}

func TestSuggestCrops_SquareProfileIsNoOp(t *testing.T) {
	crops := SuggestCrops(sized(1000, 1000))

	profile := crops["profile"]
	assert.True(t, profile.AlreadyGood)
	assert.Equal(t, 0, profile.Left)
	assert.Equal(t, 0, profile.Top)
	assert.Equal(t, 1000, profile.Right)
	assert.Equal(t, 1000, profile.Bottom)
	assert.Equal(t, "Image already has a good profile ratio", profile.Message)
}

func TestSuggestCrops_AllTargets(t *testing.T) {
	crops := SuggestCrops(sized(1000, 1000))
	require.Len(t, crops, 3)

	// 1000/1.91 truncates to 523; centered on 500 -> top 500-261
	assert.Equal(t, CropSuggestion{Left: 0, Top: 239, Right: 1000, Bottom: 762, Width: 1000, Height: 523, Message: "Suggested crop for cover format"}, crops["cover"])
	assert.Equal(t, CropSuggestion{Left: 125, Top: 0, Right: 875, Bottom: 1000, Width: 750, Height: 1000, Message: "Suggested crop for portrait format"}, crops["portrait"])
}

func TestSuggestCrops_BoundsProperty(t *testing.T) {
	sizes := [][2]int{
		{1, 1}, {1, 1000}, {1000, 1}, {3, 7}, {640, 480}, {1080, 1920},
		{1999, 1001}, {801, 799}, {5000, 10}, {10, 5000}, {2, 3},
	}
	targets := append(DefaultTargets(), AspectTarget{Name: "ultrawide", Ratio: 3.5}, AspectTarget{Name: "tall", Ratio: 0.2})

	for _, s := range sizes {
		w, h := s[0], s[1]
		for name, c := range SuggestCropsFor(sized(w, h), targets) {
			if !(0 <= c.Left && c.Left < c.Right && c.Right <= w) {
				t.Errorf("%dx%d %s: horizontal bounds out of range: %+v", w, h, name, c)
			}
			if !(0 <= c.Top && c.Top < c.Bottom && c.Bottom <= h) {
				t.Errorf("%dx%d %s: vertical bounds out of range: %+v", w, h, name, c)
			}
			if c.Width > w || c.Height > h {
				t.Errorf("%dx%d %s: crop larger than source: %+v", w, h, name, c)
			}
			if c.Right-c.Left != c.Width || c.Bottom-c.Top != c.Height {
				t.Errorf("%dx%d %s: dimensions disagree with bounds: %+v", w, h, name, c)
			}
		}
	}
}

func TestSuggestCropsFor_SkipsInvalidRatios(t *testing.T) {
	crops := SuggestCropsFor(sized(100, 100), []AspectTarget{
		{Name: "zero", Ratio: 0},
		{Name: "negative", Ratio: -1},
		{Name: "ok", Ratio: 2},
	})
	assert.Len(t, crops, 1)
	assert.Contains(t, crops, "ok")
}

func TestCropSuggestion_JSON(t *testing.T) {
	crops := SuggestCrops(sized(1000, 500))

	data, err := json.Marshal(crops["profile"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"crop_coordinates":[250,0,750,500],"dimensions":[500,500],"message":"Suggested crop for profile format"}`, string(data))

	data, err = json.Marshal(crops["cover"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"crop_coordinates":[0,0,1000,500],"message":"Image already has a good cover ratio"}`, string(data))

	var back CropSuggestion
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, crops["cover"], back)
}

func TestApplyCrop(t *testing.T) {
	img := decoded(t, createTestImage(200, 100, color.RGBA{9, 8, 7, 255}))
	s := SuggestCrops(img)["profile"]

	out, err := ApplyCrop(img, s)
	require.NoError(t, err)
	assert.Equal(t, 100, out.Bounds().Dx())
	assert.Equal(t, 100, out.Bounds().Dy())

	_, err = ApplyCrop(img, CropSuggestion{Left: 150, Right: 250, Bottom: 100})
	assert.Error(t, err)
}
