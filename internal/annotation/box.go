// Package annotation models YOLO bounding boxes and the coordinate transforms
// that keep them aligned with geometric image operations.
package annotation

import (
	"fmt"
	"strconv"
	"strings"
)

// BoundingBox is one YOLO label line. Coordinates are normalized to [0,1]
// relative to the width and height of the image the box belongs to.
type BoundingBox struct {
	ClassID int
	XCenter float64
	YCenter float64
	Width   float64
	Height  float64
}

// Set is an ordered list of boxes. Order follows the source file and is never
// changed by a transform.
type Set []BoundingBox

// Absolute is a box expressed in pixel space.
type Absolute struct {
	XCenter float64
	YCenter float64
	Width   float64
	Height  float64
}

// ToAbsolute scales the normalized box to pixel space for a width x height image.
func (b BoundingBox) ToAbsolute(width, height float64) Absolute {
	return Absolute{
		XCenter: b.XCenter * width,
		YCenter: b.YCenter * height,
		Width:   b.Width * width,
		Height:  b.Height * height,
	}
}

// ToNormalized divides the pixel-space box by the given dimensions and clamps
// every field into [0,1]. The class id is supplied by the caller.
func (a Absolute) ToNormalized(classID int, width, height float64) BoundingBox {
	return BoundingBox{
		ClassID: classID,
		XCenter: a.XCenter / width,
		YCenter: a.YCenter / height,
		Width:   a.Width / width,
		Height:  a.Height / height,
	}.Clamped()
}

// Clamped returns a copy with all four coordinates limited to [0,1].
func (b BoundingBox) Clamped() BoundingBox {
	b.XCenter = clamp01(b.XCenter)
	b.YCenter = clamp01(b.YCenter)
	b.Width = clamp01(b.Width)
	b.Height = clamp01(b.Height)
	return b
}

// InFrame reports whether all coordinates are already within [0,1].
func (b BoundingBox) InFrame() bool {
	return inUnit(b.XCenter) && inUnit(b.YCenter) && inUnit(b.Width) && inUnit(b.Height)
}

// String formats the box as a single YOLO line.
func (b BoundingBox) String() string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(b.ClassID))
	for _, v := range [...]float64{b.XCenter, b.YCenter, b.Width, b.Height} {
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	return sb.String()
}

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	copy(out, s)
	return out
}

// ClassIDs returns the class id of every box, in order.
func (s Set) ClassIDs() []int {
	ids := make([]int, len(s))
	for i, b := range s {
		ids[i] = b.ClassID
	}
	return ids
}

func (s Set) String() string {
	return fmt.Sprintf("annotation.Set(%d boxes)", len(s))
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
