package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// Quadrant colors used by QuadrantImage, in top-left, top-right,
// bottom-left, bottom-right order.
var (
	TopLeft     = color.NRGBA{R: 255, A: 255}
	TopRight    = color.NRGBA{G: 255, A: 255}
	BottomLeft  = color.NRGBA{B: 255, A: 255}
	BottomRight = color.NRGBA{R: 255, G: 255, A: 255}
)

// SolidImage creates a width x height image filled with c.
func SolidImage(width, height int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

// QuadrantImage creates an image split into four solid quadrants. Geometric
// transforms can be checked by sampling the corners.
func QuadrantImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	hw, hh := width/2, height/2
	fill := func(r image.Rectangle, c color.Color) {
		draw.Draw(img, r, &image.Uniform{c}, image.Point{}, draw.Src)
	}
	fill(image.Rect(0, 0, hw, hh), TopLeft)
	fill(image.Rect(hw, 0, width, hh), TopRight)
	fill(image.Rect(0, hh, hw, height), BottomLeft)
	fill(image.Rect(hw, hh, width, height), BottomRight)
	return img
}

// WriteImage encodes img in the format implied by path's extension and writes
// it to fs, creating parent directories as needed.
func WriteImage(t *testing.T, fs afero.Fs, path string, img image.Image) {
	t.Helper()

	format, err := imaging.FormatFromFilename(path)
	require.NoError(t, err, "Unsupported image extension for %s", path)

	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format), "Failed to encode %s", path)
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0o644), "Failed to write %s", path)
}

// LoadImage decodes the image stored at path on fs.
func LoadImage(t *testing.T, fs afero.Fs, path string) image.Image {
	t.Helper()

	f, err := fs.Open(path)
	require.NoError(t, err, "Failed to open image file %s", path)
	defer func() { _ = f.Close() }()

	img, err := imaging.Decode(f)
	require.NoError(t, err, "Failed to decode image %s", path)
	return img
}

// ColorAt returns the pixel at (x, y) relative to the image origin as NRGBA.
func ColorAt(img image.Image, x, y int) color.NRGBA {
	b := img.Bounds()
	return color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
}
