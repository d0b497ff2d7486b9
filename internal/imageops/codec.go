// Package imageops provides image decoding, encoding and the geometric
// kernels (resize, crop, flip) used by augmentation operations.
package imageops

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
)

// SupportedImageExtensions lists the extensions that can be decoded and
// re-encoded in the same format.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tif", ".tiff"}

// DefaultJPEGQuality is used when a Codec is created with a zero quality.
const DefaultJPEGQuality = 95

// IsSupportedImage reports whether the path has a supported image extension.
// The comparison is case-insensitive.
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedImageExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// ImageError wraps codec failures with the operation and file involved.
type ImageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *ImageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("image %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("image %s %s: %v", e.Operation, e.Path, e.Err)
}

func (e *ImageError) Unwrap() error { return e.Err }

// Codec reads and writes images through an afero filesystem.
type Codec struct {
	fs          afero.Fs
	jpegQuality int
}

// NewCodec creates a codec. A jpegQuality of 0 selects DefaultJPEGQuality.
func NewCodec(fs afero.Fs, jpegQuality int) *Codec {
	if jpegQuality <= 0 {
		jpegQuality = DefaultJPEGQuality
	}
	return &Codec{fs: fs, jpegQuality: jpegQuality}
}

// Decode opens and decodes the image at path. EXIF orientation is ignored so
// pixel coordinates stay aligned with the label file.
func (c *Codec) Decode(path string) (image.Image, error) {
	if path == "" {
		return nil, &ImageError{Operation: "decode", Err: errors.New("empty path")}
	}
	if !IsSupportedImage(path) {
		return nil, &ImageError{Operation: "decode", Path: path, Err: fmt.Errorf("unsupported format: %s", filepath.Ext(path))}
	}

	f, err := c.fs.Open(path)
	if err != nil {
		return nil, &ImageError{Operation: "decode", Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	img, err := imaging.Decode(f)
	if err != nil {
		return nil, &ImageError{Operation: "decode", Path: path, Err: err}
	}
	return img, nil
}

// Encode writes img to path, choosing the format from the path extension.
func (c *Codec) Encode(img image.Image, path string) error {
	if img == nil {
		return &ImageError{Operation: "encode", Path: path, Err: errors.New("input image is nil")}
	}
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return &ImageError{Operation: "encode", Path: path, Err: err}
	}

	f, err := c.fs.Create(path)
	if err != nil {
		return &ImageError{Operation: "encode", Path: path, Err: err}
	}
	if err := imaging.Encode(f, img, format, imaging.JPEGQuality(c.jpegQuality)); err != nil {
		_ = f.Close()
		return &ImageError{Operation: "encode", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &ImageError{Operation: "encode", Path: path, Err: err}
	}
	return nil
}
