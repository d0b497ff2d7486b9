package augment

import (
	"image"
	"strings"

	"github.com/MeKo-Tech/yoloaug/internal/annotation"
	"github.com/MeKo-Tech/yoloaug/internal/imageops"
)

// Sample is one image together with its boxes. Operations never mutate a
// Sample; they return a new one.
type Sample struct {
	Stem  string
	Image image.Image
	Boxes annotation.Set

	// Dropped counts boxes removed by crops since the sample was loaded.
	Dropped int
	// Applied lists the operations that produced this sample, in order.
	Applied []Kind
}

// NewSample wraps a decoded image and its boxes.
func NewSample(stem string, img image.Image, boxes annotation.Set) Sample {
	return Sample{Stem: stem, Image: img, Boxes: boxes}
}

// Size returns the image dimensions.
func (s Sample) Size() (int, int) {
	if s.Image == nil {
		return 0, 0
	}
	return imageops.Size(s.Image)
}

// History renders Applied as "a>b>c".
func (s Sample) History() string {
	names := make([]string, len(s.Applied))
	for i, k := range s.Applied {
		names[i] = k.String()
	}
	return strings.Join(names, ">")
}

func (s Sample) with(kind Kind, img image.Image, boxes annotation.Set, dropped int) Sample {
	applied := make([]Kind, len(s.Applied), len(s.Applied)+1)
	copy(applied, s.Applied)
	return Sample{
		Stem:    s.Stem,
		Image:   img,
		Boxes:   boxes,
		Dropped: s.Dropped + dropped,
		Applied: append(applied, kind),
	}
}
