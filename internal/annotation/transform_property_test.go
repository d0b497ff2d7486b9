package annotation

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func near(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6
}

func boxesNear(a, b Set) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ClassID != b[i].ClassID ||
			!near(a[i].XCenter, b[i].XCenter) || !near(a[i].YCenter, b[i].YCenter) ||
			!near(a[i].Width, b[i].Width) || !near(a[i].Height, b[i].Height) {
			return false
		}
	}
	return true
}

func allInFrame(s Set) bool {
	for _, b := range s {
		if !b.InFrame() {
			return false
		}
	}
	return true
}

// TestResize_RoundTrip verifies resizing there and back restores the boxes.
func TestResize_RoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("resize to WxH and back is identity for in-frame boxes", prop.ForAll(
		func(origW, origH, w, h, class int, x, y, bw, bh float64) bool {
			boxes := Set{{ClassID: class, XCenter: x, YCenter: y, Width: bw, Height: bh}}

			there, err := Resize(boxes, origW, origH, w, h)
			if err != nil {
				return false
			}
			back, err := Resize(there, w, h, origW, origH)
			if err != nil {
				return false
			}
			return boxesNear(boxes, back)
		},
		gen.IntRange(1, 4096),
		gen.IntRange(1, 4096),
		gen.IntRange(1, 4096),
		gen.IntRange(1, 4096),
		gen.IntRange(0, 80),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

// TestTransforms_Clamp verifies every transform keeps coordinates in [0,1],
// even for out-of-range input.
func TestTransforms_Clamp(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("all transforms yield coordinates in [0,1]", prop.ForAll(
		func(x, y, bw, bh float64, left, right, top, bottom, newW, newH int) bool {
			boxes := Set{{ClassID: 1, XCenter: x, YCenter: y, Width: bw, Height: bh}}

			resized, err := Resize(boxes, 200, 200, newW, newH)
			if err != nil || !allInFrame(resized) {
				return false
			}
			cropped, _, err := Crop(boxes, Margins{Left: left, Right: right, Top: top, Bottom: bottom}, 200, 200)
			if err != nil || !allInFrame(cropped) {
				return false
			}
			return allInFrame(FlipHorizontal(boxes)) &&
				allInFrame(FlipVertical(boxes)) &&
				allInFrame(FlipBoth(boxes))
		},
		gen.Float64Range(-0.5, 1.5),
		gen.Float64Range(-0.5, 1.5),
		gen.Float64Range(0, 2),
		gen.Float64Range(0, 2),
		gen.IntRange(0, 90),
		gen.IntRange(0, 90),
		gen.IntRange(0, 90),
		gen.IntRange(0, 90),
		gen.IntRange(1, 1000),
		gen.IntRange(1, 1000),
	))

	properties.TestingRun(t)
}

// TestFlip_Involution verifies each flip undoes itself.
func TestFlip_Involution(t *testing.T) {
	properties := gopter.NewProperties(nil)

	flips := map[string]func(Set) Set{
		"horizontal": FlipHorizontal,
		"vertical":   FlipVertical,
		"both":       FlipBoth,
	}

	for name, fn := range flips {
		properties.Property("flip "+name+" twice is identity", prop.ForAll(
			func(x, y, bw, bh float64) bool {
				boxes := Set{
					{ClassID: 0, XCenter: x, YCenter: y, Width: bw, Height: bh},
					{ClassID: 5, XCenter: y, YCenter: x, Width: bh, Height: bw},
				}
				return boxesNear(boxes, fn(fn(boxes)))
			},
			gen.Float64Range(0, 1),
			gen.Float64Range(0, 1),
			gen.Float64Range(0, 1),
			gen.Float64Range(0, 1),
		))
	}

	properties.TestingRun(t)
}

// TestCrop_Exclusion verifies boxes centered in a removed margin are dropped
// and boxes centered in the retained region survive.
func TestCrop_Exclusion(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("box centered in the left margin is dropped", prop.ForAll(
		func(left, right int, frac, y float64) bool {
			const size = 200
			// center strictly inside [0, left)
			cx := frac * float64(left) * 0.999
			boxes := Set{{ClassID: 2, XCenter: cx / size, YCenter: y, Width: 0.01, Height: 0.01}}

			out, dropped, err := Crop(boxes, Margins{Left: left, Right: right}, size, size)
			return err == nil && len(out) == 0 && dropped == 1
		},
		gen.IntRange(1, 90),
		gen.IntRange(0, 90),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.Property("box centered in the retained region is kept with shifted coordinates", prop.ForAll(
		func(left, right, top, bottom int, fx, fy float64) bool {
			const size = 200
			newW, newH := Margins{left, right, top, bottom}.Apply(size, size)
			cx := float64(left) + fx*float64(newW)
			cy := float64(top) + fy*float64(newH)
			boxes := Set{{ClassID: 4, XCenter: cx / size, YCenter: cy / size, Width: 0.05, Height: 0.05}}

			out, dropped, err := Crop(boxes, Margins{left, right, top, bottom}, size, size)
			if err != nil || dropped != 0 || len(out) != 1 {
				return false
			}
			return out[0].ClassID == 4 && near(out[0].XCenter, fx) && near(out[0].YCenter, fy)
		},
		gen.IntRange(0, 90),
		gen.IntRange(0, 90),
		gen.IntRange(0, 90),
		gen.IntRange(0, 90),
		gen.Float64Range(0.001, 0.999),
		gen.Float64Range(0.001, 0.999),
	))

	properties.TestingRun(t)
}
