package imageops

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/MeKo-Tech/yoloaug/internal/annotation"
	"github.com/disintegration/imaging"
)

var (
	// ErrDegenerateCrop is returned when crop margins leave no pixels.
	ErrDegenerateCrop = errors.New("crop margins leave an empty image")
	// ErrInvalidSize is returned for non-positive resize targets.
	ErrInvalidSize = errors.New("target size must be positive")
)

// ValidationError reports geometry that cannot be applied to an image.
type ValidationError struct {
	Operation string
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Operation, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Axis selects the mirror direction for Flip.
type Axis int

const (
	// Horizontal mirrors columns (left <-> right).
	Horizontal Axis = iota
	// Vertical mirrors rows (top <-> bottom).
	Vertical
	// Both mirrors rows and columns.
	Both
)

func (a Axis) String() string {
	switch a {
	case Horizontal:
		return "horizontal"
	case Vertical:
		return "vertical"
	case Both:
		return "both"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// Size returns the width and height of img.
func Size(img image.Image) (int, int) {
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

// FitSize computes the realized output size for a resize request. With
// preserveAspect the image is fit inside targetW x targetH: when the target is
// wider than the source aspect the height is matched, otherwise the width.
func FitSize(origW, origH, targetW, targetH int, preserveAspect bool) (int, int, error) {
	if targetW <= 0 || targetH <= 0 {
		return 0, 0, &ValidationError{Operation: "resize", Err: fmt.Errorf("%w: %dx%d", ErrInvalidSize, targetW, targetH)}
	}
	if origW <= 0 || origH <= 0 {
		return 0, 0, &ValidationError{Operation: "resize", Err: fmt.Errorf("%w: source %dx%d", ErrInvalidSize, origW, origH)}
	}
	if !preserveAspect {
		return targetW, targetH, nil
	}

	aspect := float64(origW) / float64(origH)
	var newW, newH int
	if float64(targetW)/float64(targetH) > aspect {
		newH = targetH
		newW = int(math.Round(float64(targetH) * aspect))
	} else {
		newW = targetW
		newH = int(math.Round(float64(targetW) / aspect))
	}
	return max(newW, 1), max(newH, 1), nil
}

// Resize scales img to exactly w x h using area averaging.
func Resize(img image.Image, w, h int) (*image.NRGBA, error) {
	if img == nil {
		return nil, &ValidationError{Operation: "resize", Err: errors.New("input image is nil")}
	}
	if w <= 0 || h <= 0 {
		return nil, &ValidationError{Operation: "resize", Err: fmt.Errorf("%w: %dx%d", ErrInvalidSize, w, h)}
	}
	return imaging.Resize(img, w, h, imaging.Box), nil
}

// CheckCrop validates margins against a width x height image.
func CheckCrop(width, height int, m annotation.Margins) error {
	if m.Left < 0 || m.Right < 0 || m.Top < 0 || m.Bottom < 0 {
		return &ValidationError{Operation: "crop", Err: fmt.Errorf("negative margin %+v", m)}
	}
	newW, newH := m.Apply(width, height)
	if newW <= 0 || newH <= 0 {
		return &ValidationError{
			Operation: "crop",
			Err:       fmt.Errorf("%w: %dx%d with margins %+v", ErrDegenerateCrop, width, height, m),
		}
	}
	return nil
}

// Crop keeps the region [top, height-bottom) x [left, width-right).
func Crop(img image.Image, m annotation.Margins) (*image.NRGBA, error) {
	if img == nil {
		return nil, &ValidationError{Operation: "crop", Err: errors.New("input image is nil")}
	}
	w, h := Size(img)
	if err := CheckCrop(w, h, m); err != nil {
		return nil, err
	}
	b := img.Bounds()
	rect := image.Rect(b.Min.X+m.Left, b.Min.Y+m.Top, b.Max.X-m.Right, b.Max.Y-m.Bottom)
	return imaging.Crop(img, rect), nil
}

// Flip mirrors img along axis.
func Flip(img image.Image, axis Axis) (*image.NRGBA, error) {
	if img == nil {
		return nil, &ValidationError{Operation: "flip", Err: errors.New("input image is nil")}
	}
	switch axis {
	case Horizontal:
		return imaging.FlipH(img), nil
	case Vertical:
		return imaging.FlipV(img), nil
	case Both:
		return imaging.Rotate180(img), nil
	default:
		return nil, &ValidationError{Operation: "flip", Err: fmt.Errorf("unknown axis %v", axis)}
	}
}
