// Package augment runs the preprocessing chain and the independent
// augmentation operations for one image/label sample.
package augment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/yoloaug/internal/annotation"
	"github.com/MeKo-Tech/yoloaug/internal/imageops"
)

// ErrUnknownOperation is returned for operation names outside the registry.
var ErrUnknownOperation = errors.New("unknown operation")

// Kind enumerates the registered operations.
type Kind int

const (
	// Basic passes the sample through unchanged.
	Basic Kind = iota
	// ResizeImage scales the image and renormalizes boxes.
	ResizeImage
	// CropImage removes pixel margins and drops boxes centered outside the frame.
	CropImage
	// FlipHorizontal mirrors left to right.
	FlipHorizontal
	// FlipVertical mirrors top to bottom.
	FlipVertical
	// FlipBoth mirrors on both axes.
	FlipBoth

	kindCount
)

var kindNames = [kindCount]string{
	Basic:          "basic",
	ResizeImage:    "resize_image",
	CropImage:      "crop_image",
	FlipHorizontal: "flip_horizontal",
	FlipVertical:   "flip_vertical",
	FlipBoth:       "flip_both",
}

// Kinds returns every registered kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Basic; k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// Names returns the configuration names of every registered kind.
func Names() []string {
	return append([]string(nil), kindNames[:]...)
}

func (k Kind) String() string {
	if k >= 0 && k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Valid reports whether k is a registered kind.
func (k Kind) Valid() bool {
	return k >= 0 && k < kindCount
}

// ParseKind resolves a configured operation name.
func ParseKind(name string) (Kind, error) {
	n := strings.TrimSpace(name)
	for k, known := range kindNames {
		if n == known {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w %q (must be one of: %s)", ErrUnknownOperation, name, strings.Join(Names(), ", "))
}

// ResizeParams configures ResizeImage.
type ResizeParams struct {
	Width          int
	Height         int
	PreserveAspect bool
}

// Params holds the tunables shared by all configured operations.
type Params struct {
	Resize ResizeParams
	Crop   annotation.Margins
}

// Operation is a kind bound to its parameters.
type Operation struct {
	Kind   Kind
	Resize ResizeParams
	Crop   annotation.Margins
}

// NewOperation binds kind to the relevant part of params.
func NewOperation(kind Kind, params Params) Operation {
	op := Operation{Kind: kind}
	switch kind {
	case ResizeImage:
		op.Resize = params.Resize
	case CropImage:
		op.Crop = params.Crop
	}
	return op
}

// ParseOperations resolves names in order. The first unknown name fails.
func ParseOperations(names []string, params Params) ([]Operation, error) {
	ops := make([]Operation, 0, len(names))
	for _, name := range names {
		kind, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		ops = append(ops, NewOperation(kind, params))
	}
	return ops, nil
}

// Tag is the filename suffix used when the operation runs as an augmentation.
func (o Operation) Tag() string {
	return o.Kind.String()
}

func (o Operation) String() string {
	switch o.Kind {
	case ResizeImage:
		return fmt.Sprintf("%s(%dx%d, preserve_aspect=%t)", o.Kind, o.Resize.Width, o.Resize.Height, o.Resize.PreserveAspect)
	case CropImage:
		return fmt.Sprintf("%s(l=%d r=%d t=%d b=%d)", o.Kind, o.Crop.Left, o.Crop.Right, o.Crop.Top, o.Crop.Bottom)
	default:
		return o.Kind.String()
	}
}

// Check validates the operation against a width x height input without
// touching pixels.
func (o Operation) Check(width, height int) error {
	switch o.Kind {
	case ResizeImage:
		_, _, err := imageops.FitSize(width, height, o.Resize.Width, o.Resize.Height, o.Resize.PreserveAspect)
		return err
	case CropImage:
		return imageops.CheckCrop(width, height, o.Crop)
	case Basic, FlipHorizontal, FlipVertical, FlipBoth:
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrUnknownOperation, o.Kind)
	}
}

// Apply transforms the image and its boxes together and returns the new
// sample. The input sample is not modified.
func (o Operation) Apply(s Sample) (Sample, error) {
	if s.Image == nil {
		return Sample{}, fmt.Errorf("%s: sample %q has no image", o.Kind, s.Stem)
	}
	w, h := imageops.Size(s.Image)

	switch o.Kind {
	case Basic:
		return s.with(o.Kind, s.Image, s.Boxes.Clone(), 0), nil

	case ResizeImage:
		tw, th, err := imageops.FitSize(w, h, o.Resize.Width, o.Resize.Height, o.Resize.PreserveAspect)
		if err != nil {
			return Sample{}, err
		}
		img, err := imageops.Resize(s.Image, tw, th)
		if err != nil {
			return Sample{}, err
		}
		// Boxes follow the realized size, which differs from the request
		// when the aspect ratio is preserved.
		nw, nh := imageops.Size(img)
		boxes, err := annotation.Resize(s.Boxes, w, h, nw, nh)
		if err != nil {
			return Sample{}, err
		}
		return s.with(o.Kind, img, boxes, 0), nil

	case CropImage:
		img, err := imageops.Crop(s.Image, o.Crop)
		if err != nil {
			return Sample{}, err
		}
		boxes, dropped, err := annotation.Crop(s.Boxes, o.Crop, w, h)
		if err != nil {
			return Sample{}, err
		}
		return s.with(o.Kind, img, boxes, dropped), nil

	case FlipHorizontal:
		return o.flip(s, imageops.Horizontal, annotation.FlipHorizontal)
	case FlipVertical:
		return o.flip(s, imageops.Vertical, annotation.FlipVertical)
	case FlipBoth:
		return o.flip(s, imageops.Both, annotation.FlipBoth)

	default:
		return Sample{}, fmt.Errorf("%w: %v", ErrUnknownOperation, o.Kind)
	}
}

func (o Operation) flip(s Sample, axis imageops.Axis, boxes func(annotation.Set) annotation.Set) (Sample, error) {
	img, err := imageops.Flip(s.Image, axis)
	if err != nil {
		return Sample{}, err
	}
	return s.with(o.Kind, img, boxes(s.Boxes), 0), nil
}
