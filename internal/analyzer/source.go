package analyzer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"

	// Registered decoders.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels bounds the decoded raster size when a source sets no limit.
// Larger images are rejected before their pixel data is decoded. A decode
// plus the RGB copy costs about 8 bytes per pixel.
const DefaultMaxPixels = 40_000_000

// Source is one of PathSource, BytesSource or DecodedSource.
type Source interface {
	describe() string
}

// PathSource loads an image from the local filesystem. MaxPixels of zero
// means DefaultMaxPixels.
type PathSource struct {
	Path      string
	MaxPixels int64
}

// BytesSource decodes an in-memory encoded image. MaxPixels of zero means
// DefaultMaxPixels.
type BytesSource struct {
	Data      []byte
	MaxPixels int64
}

// DecodedSource wraps an image that is already decoded.
type DecodedSource struct {
	Image image.Image
}

func (s PathSource) describe() string    { return "path " + s.Path }
func (s BytesSource) describe() string   { return fmt.Sprintf("%d bytes", len(s.Data)) }
func (s DecodedSource) describe() string { return "decoded image" }

// LoadError reports that a source could not be turned into a DecodedImage.
type LoadError struct {
	Source string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot load image from %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("cannot load image from %s: %s", e.Source, e.Reason)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

var errEmptyImage = errors.New("image has zero width or height")

// Load decodes src and normalizes it to RGB. Every failure, including decoder
// panics, is returned as *LoadError.
func Load(src Source) (img *DecodedImage, err error) {
	if src == nil {
		return nil, &LoadError{Source: "nil source", Reason: "no image given"}
	}

	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = &LoadError{Source: src.describe(), Reason: "decoder panic", Err: fmt.Errorf("%v", r)}
		}
	}()

	switch s := src.(type) {
	case PathSource:
		data, readErr := os.ReadFile(s.Path)
		if readErr != nil {
			return nil, &LoadError{Source: s.describe(), Reason: "read failed", Err: readErr}
		}
		return decodeBytes(s.describe(), data, s.MaxPixels)
	case BytesSource:
		return decodeBytes(s.describe(), s.Data, s.MaxPixels)
	case DecodedSource:
		if s.Image == nil {
			return nil, &LoadError{Source: s.describe(), Reason: "no image given"}
		}
		return normalize(s.describe(), s.Image, "")
	default:
		return nil, &LoadError{Source: fmt.Sprintf("%T", src), Reason: "unsupported source"}
	}
}

func decodeBytes(desc string, data []byte, maxPixels int64) (*DecodedImage, error) {
	if len(data) == 0 {
		return nil, &LoadError{Source: desc, Reason: "empty data"}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &LoadError{Source: desc, Reason: "unrecognized image data", Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &LoadError{Source: desc, Reason: "invalid dimensions", Err: errEmptyImage}
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, &LoadError{
			Source: desc,
			Reason: fmt.Sprintf("image too large (%dx%d)", cfg.Width, cfg.Height),
		}
	}

	decoded, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &LoadError{Source: desc, Reason: "decode failed", Err: err}
	}
	return normalize(desc, decoded, format)
}

func normalize(desc string, img image.Image, format string) (*DecodedImage, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &LoadError{Source: desc, Reason: "invalid dimensions", Err: errEmptyImage}
	}
	return &DecodedImage{
		Image:  toRGB(img),
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: format,
	}, nil
}

type opaquer interface {
	Opaque() bool
}

// toRGB copies img into an opaque RGBA rebased at the origin. Transparent
// pixels keep their straight color values; alpha is discarded.
func toRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if o, ok := img.(opaquer); ok && o.Opaque() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}

	for y := 0; y < b.Dy(); y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()*4]
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := x * 4
			row[i] = c.R
			row[i+1] = c.G
			row[i+2] = c.B
			row[i+3] = 0xff
		}
	}
	return dst
}
