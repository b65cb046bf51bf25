package classifier

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	// ResizeSize is the square size the image is scaled to before cropping.
	ResizeSize = 256
	// InputSize is the square model input size.
	InputSize = 224
)

// meanBGR is subtracted from each pixel, in BGR order.
var meanBGR = [3]float32{104, 117, 123}

// Preprocess converts img into the OpenNSFW input layout: 256x256 bilinear
// resize, 224x224 center crop, BGR float32 with the channel mean removed,
// NHWC order.
func Preprocess(img image.Image) []float32 {
	resized := imaging.Resize(img, ResizeSize, ResizeSize, imaging.Linear)
	cropped := imaging.CropCenter(resized, InputSize, InputSize)

	out := make([]float32, InputSize*InputSize*3)
	for y := 0; y < InputSize; y++ {
		row := cropped.Pix[y*cropped.Stride:]
		for x := 0; x < InputSize; x++ {
			p := row[x*4 : x*4+3]
			i := (y*InputSize + x) * 3
			out[i] = float32(p[2]) - meanBGR[0]
			out[i+1] = float32(p[1]) - meanBGR[1]
			out[i+2] = float32(p[0]) - meanBGR[2]
		}
	}
	return out
}

// probabilityFromOutput reads the NSFW probability from a [1,2] softmax
// output where index 1 is the NSFW class.
func probabilityFromOutput(out []float32) (float64, error) {
	if len(out) != 2 {
		return 0, fmt.Errorf("%w: want 2 values, got %d", ErrBadOutput, len(out))
	}
	p := float64(out[1])
	if p != p || p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: probability %v", ErrBadOutput, out[1])
	}
	return p, nil
}

// ONNXOptions configures the ONNX classifier.
type ONNXOptions struct {
	ModelPath         string
	SharedLibraryPath string
	InputName         string
	OutputName        string
	NumThreads        int
}

func (o ONNXOptions) withDefaults() ONNXOptions {
	if o.InputName == "" {
		o.InputName = "input"
	}
	if o.OutputName == "" {
		o.OutputName = "output"
	}
	return o
}

// ModelTag identifies the real classifier in reports.
const ModelTag = "opennsfw2"
