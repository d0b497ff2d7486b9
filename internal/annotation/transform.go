package annotation

import (
	"errors"
	"fmt"
)

// ErrInvalidDimensions is returned when a transform is asked to map boxes
// into or out of an image with a non-positive side.
var ErrInvalidDimensions = errors.New("image dimensions must be positive")

// Margins are absolute pixel counts removed from each side of an image.
type Margins struct {
	Left   int
	Right  int
	Top    int
	Bottom int
}

// Apply returns the width and height left after removing the margins.
func (m Margins) Apply(width, height int) (int, int) {
	return width - m.Left - m.Right, height - m.Top - m.Bottom
}

// IsZero reports whether no pixels are removed.
func (m Margins) IsZero() bool {
	return m == Margins{}
}

// Resize maps boxes from an origW x origH image onto a newW x newH image.
// Each box goes to pixel space, is scaled per axis, and is renormalized by the
// new dimension.
func Resize(boxes Set, origW, origH, newW, newH int) (Set, error) {
	if origW <= 0 || origH <= 0 || newW <= 0 || newH <= 0 {
		return nil, fmt.Errorf("resize %dx%d -> %dx%d: %w", origW, origH, newW, newH, ErrInvalidDimensions)
	}
	scaleX := float64(newW) / float64(origW)
	scaleY := float64(newH) / float64(origH)
	nw, nh := float64(newW), float64(newH)

	out := make(Set, 0, len(boxes))
	for _, b := range boxes {
		abs := b.ToAbsolute(float64(origW), float64(origH))
		scaled := Absolute{
			XCenter: abs.XCenter * scaleX,
			YCenter: abs.YCenter * scaleY,
			Width:   abs.Width * scaleX,
			Height:  abs.Height * scaleY,
		}
		out = append(out, scaled.ToNormalized(b.ClassID, nw, nh))
	}
	return out, nil
}

// Crop maps boxes from an origW x origH image onto the region left after
// removing m. Boxes whose center falls outside the retained region are
// dropped; dropped reports how many.
func Crop(boxes Set, m Margins, origW, origH int) (Set, int, error) {
	newW, newH := m.Apply(origW, origH)
	if origW <= 0 || origH <= 0 || newW <= 0 || newH <= 0 {
		return nil, 0, fmt.Errorf("crop %dx%d by %+v: %w", origW, origH, m, ErrInvalidDimensions)
	}
	nw, nh := float64(newW), float64(newH)

	out := make(Set, 0, len(boxes))
	dropped := 0
	for _, b := range boxes {
		abs := b.ToAbsolute(float64(origW), float64(origH))
		abs.XCenter -= float64(m.Left)
		abs.YCenter -= float64(m.Top)
		if abs.XCenter < 0 || abs.YCenter < 0 || abs.XCenter > nw || abs.YCenter > nh {
			dropped++
			continue
		}
		out = append(out, abs.ToNormalized(b.ClassID, nw, nh))
	}
	return out, dropped, nil
}

// FlipHorizontal mirrors box centers across the vertical axis.
func FlipHorizontal(boxes Set) Set {
	return flip(boxes, true, false)
}

// FlipVertical mirrors box centers across the horizontal axis.
func FlipVertical(boxes Set) Set {
	return flip(boxes, false, true)
}

// FlipBoth mirrors box centers across both axes in one pass.
func FlipBoth(boxes Set) Set {
	return flip(boxes, true, true)
}

func flip(boxes Set, horizontal, vertical bool) Set {
	out := make(Set, 0, len(boxes))
	for _, b := range boxes {
		if horizontal {
			b.XCenter = 1 - b.XCenter
		}
		if vertical {
			b.YCenter = 1 - b.YCenter
		}
		out = append(out, b.Clamped())
	}
	return out
}
