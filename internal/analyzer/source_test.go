package analyzer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func TestLoad_Formats(t *testing.T) {
	src := createTestImage(40, 30, color.RGBA{120, 60, 30, 255})

	var jpg, gf, bm bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, src, &jpeg.Options{Quality: 95}))
	require.NoError(t, gif.Encode(&gf, src, nil))
	require.NoError(t, bmp.Encode(&bm, src))

	tests := []struct {
		name   string
		data   []byte
		format string
	}{
		{"png", encodePNG(t, src), "png"},
		{"jpeg", jpg.Bytes(), "jpeg"},
		{"gif", gf.Bytes(), "gif"},
		{"bmp", bm.Bytes(), "bmp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Load(BytesSource{Data: tt.data})
			require.NoError(t, err)
			assert.Equal(t, 40, img.Width)
			assert.Equal(t, 30, img.Height)
			assert.Equal(t, tt.format, img.Format)
			assert.Equal(t, image.Rect(0, 0, 40, 30), img.Image.Bounds())
		})
	}
}

func TestLoad_Path(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, createTestImage(12, 8, color.RGBA{1, 2, 3, 255})), 0o600))

	img, err := Load(PathSource{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 12, img.Width)
	assert.Equal(t, 8, img.Height)
}

func TestLoad_Failures(t *testing.T) {
	tests := []struct {
		name string
		src  Source
	}{
		{"missing path", PathSource{Path: filepath.Join(t.TempDir(), "nope.png")}},
		{"corrupt bytes", BytesSource{Data: []byte("definitely not an image")}},
		{"truncated png", BytesSource{Data: encodePNG(t, createTestImage(20, 20, color.RGBA{}))[:40]}},
		{"empty bytes", BytesSource{}},
		{"nil decoded image", DecodedSource{}},
		{"empty decoded image", DecodedSource{Image: image.NewRGBA(image.Rect(0, 0, 0, 10))}},
		{"nil source", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Load(tt.src)
			assert.Nil(t, img)
			require.Error(t, err)

			var loadErr *LoadError
			assert.True(t, errors.As(err, &loadErr))
			assert.NotEmpty(t, err.Error())
		})
	}
}

// withPNGSize rewrites the IHDR dimensions of an encoded PNG without touching
// the pixel data, so only DecodeConfig sees the new size.
func withPNGSize(t *testing.T, data []byte, w, h uint32) []byte {
	t.Helper()
	out := append([]byte(nil), data...)
	require.Equal(t, "IHDR", string(out[12:16]))
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestLoad_PixelLimit(t *testing.T) {
	small := encodePNG(t, createTestImage(20, 20, color.RGBA{1, 2, 3, 255}))

	t.Run("default limit", func(t *testing.T) {
		huge := withPNGSize(t, small, 8000, 6000)
		_, err := Load(BytesSource{Data: huge})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "image too large (8000x6000)")
	})

	t.Run("source limit", func(t *testing.T) {
		_, err := Load(BytesSource{Data: small, MaxPixels: 399})
		assert.ErrorContains(t, err, "image too large (20x20)")

		img, err := Load(BytesSource{Data: small, MaxPixels: 400})
		require.NoError(t, err)
		assert.Equal(t, 20, img.Width)
	})

	t.Run("path source", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "big.png")
		require.NoError(t, os.WriteFile(path, small, 0o644))
		_, err := Load(PathSource{Path: path, MaxPixels: 100})
		assert.ErrorContains(t, err, "image too large")
	})
}

func TestLoad_PanickingImageIsRecovered(t *testing.T) {
	img, err := Load(DecodedSource{Image: panicImage{}})
	assert.Nil(t, img)

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "decoder panic", loadErr.Reason)
}

type panicImage struct{}

func (panicImage) ColorModel() color.Model { return color.RGBAModel }
func (panicImage) Bounds() image.Rectangle { return image.Rect(0, 0, 2, 2) }
func (panicImage) At(x, y int) color.Color { panic("broken pixel") }

func TestLoad_NormalizesToRGB(t *testing.T) {
	t.Run("transparent pixels keep their color", func(t *testing.T) {
		src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
		src.SetNRGBA(0, 0, color.NRGBA{200, 100, 50, 0})
		src.SetNRGBA(1, 0, color.NRGBA{10, 20, 30, 128})

		img := decoded(t, src)
		assert.Equal(t, color.RGBA{200, 100, 50, 255}, img.Image.RGBAAt(0, 0))
		assert.Equal(t, color.RGBA{10, 20, 30, 255}, img.Image.RGBAAt(1, 0))
	})

	t.Run("gray expands to three channels", func(t *testing.T) {
		src := image.NewGray(image.Rect(0, 0, 3, 3))
		src.SetGray(1, 1, color.Gray{Y: 77})

		img := decoded(t, src)
		assert.Equal(t, color.RGBA{77, 77, 77, 255}, img.Image.RGBAAt(1, 1))
	})

	t.Run("palette expands to three channels", func(t *testing.T) {
		pal := color.Palette{color.RGBA{0, 0, 0, 255}, color.RGBA{250, 5, 9, 255}}
		src := image.NewPaletted(image.Rect(0, 0, 2, 2), pal)
		src.SetColorIndex(1, 0, 1)

		img := decoded(t, src)
		assert.Equal(t, color.RGBA{250, 5, 9, 255}, img.Image.RGBAAt(1, 0))
		assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.Image.RGBAAt(0, 0))
	})

	t.Run("sub image is rebased to origin", func(t *testing.T) {
		full := createTestImage(10, 10, color.RGBA{5, 5, 5, 255})
		full.Set(4, 6, color.RGBA{99, 98, 97, 255})
		sub := full.SubImage(image.Rect(4, 6, 8, 9))

		img := decoded(t, sub)
		assert.Equal(t, 4, img.Width)
		assert.Equal(t, 3, img.Height)
		assert.Equal(t, image.Rect(0, 0, 4, 3), img.Image.Bounds())
		assert.Equal(t, color.RGBA{99, 98, 97, 255}, img.Image.RGBAAt(0, 0))
	})
}
