package analyzer

import (
	"encoding/json"
	"image"
)

// DecodedImage is a normalized 8-bit RGB raster. Alpha is always 255.
type DecodedImage struct {
	Image  *image.RGBA
	Width  int
	Height int
	Format string
}

// QualityReport holds the objective quality measurements of one image.
type QualityReport struct {
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	Sharpness     float64 `json:"sharpness"`
	Brightness    float64 `json:"brightness"`
	Contrast      float64 `json:"contrast"`
	QualityScore  float64 `json:"quality_score"`
	IsHighQuality bool    `json:"is_high_quality"`
}

// CropSuggestion is a rectangle inside the source image matching one target
// aspect ratio. AlreadyGood marks a no-op suggestion covering the full image.
type CropSuggestion struct {
	Left        int
	Top         int
	Right       int
	Bottom      int
	Width       int
	Height      int
	Message     string
	AlreadyGood bool
}

// Rect returns the suggestion as an image rectangle.
func (s CropSuggestion) Rect() image.Rectangle {
	return image.Rect(s.Left, s.Top, s.Right, s.Bottom)
}

type cropSuggestionJSON struct {
	CropCoordinates [4]int `json:"crop_coordinates"`
	Dimensions      []int  `json:"dimensions,omitempty"`
	Message         string `json:"message,omitempty"`
}

func (s CropSuggestion) MarshalJSON() ([]byte, error) {
	out := cropSuggestionJSON{
		CropCoordinates: [4]int{s.Left, s.Top, s.Right, s.Bottom},
		Message:         s.Message,
	}
	if !s.AlreadyGood {
		out.Dimensions = []int{s.Width, s.Height}
	}
	return json.Marshal(out)
}

func (s *CropSuggestion) UnmarshalJSON(data []byte) error {
	var in cropSuggestionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = CropSuggestion{
		Left:    in.CropCoordinates[0],
		Top:     in.CropCoordinates[1],
		Right:   in.CropCoordinates[2],
		Bottom:  in.CropCoordinates[3],
		Message: in.Message,
	}
	if len(in.Dimensions) == 2 {
		s.Width, s.Height = in.Dimensions[0], in.Dimensions[1]
	} else {
		s.Width, s.Height = s.Right-s.Left, s.Bottom-s.Top
		s.AlreadyGood = true
	}
	return nil
}

// NsfwReport is the outcome of content detection. ModelUsed tells whether the
// numbers came from the real classifier or the placeholder fallback.
type NsfwReport struct {
	NsfwProbability float64 `json:"nsfw_probability"`
	SfwProbability  float64 `json:"sfw_probability"`
	IsInappropriate bool    `json:"is_inappropriate"`
	Confidence      float64 `json:"confidence"`
	ModelUsed       string  `json:"model_used"`
}

// IsFallback reports whether the report was produced without the classifier.
func (r NsfwReport) IsFallback() bool {
	return r.ModelUsed == FallbackModelTag
}

// Result aggregates whatever analyses were requested. A load failure leaves
// only Error set.
type Result struct {
	OriginalSize         []int                     `json:"original_size,omitempty"`
	Quality              *QualityReport            `json:"quality,omitempty"`
	SuggestedCrops       map[string]CropSuggestion `json:"suggested_crops,omitempty"`
	InappropriateContent *NsfwReport               `json:"inappropriate_content,omitempty"`
	Error                string                    `json:"error,omitempty"`
}

// Failed reports whether the result carries a load failure.
func (r Result) Failed() bool {
	return r.Error != ""
}

// State is the process-wide analyzer state, fixed at construction.
type State struct {
	ModelAvailable bool    `json:"model_available"`
	Threshold      float64 `json:"threshold"`
	ModelName      string  `json:"model_name"`
}
