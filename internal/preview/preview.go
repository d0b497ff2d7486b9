// Package preview draws YOLO boxes over an image so augmented artifacts can
// be checked by eye.
package preview

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/yoloaug/internal/annotation"
	"github.com/MeKo-Tech/yoloaug/internal/imageops"
	"github.com/spf13/afero"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Palette colors boxes by class id, cycling when there are more classes.
var Palette = []color.RGBA{
	{0, 255, 0, 255},
	{255, 0, 0, 255},
	{0, 128, 255, 255},
	{255, 200, 0, 255},
	{255, 0, 255, 255},
	{0, 255, 255, 255},
}

// Options controls rendering.
type Options struct {
	Thickness  int
	Labels     bool
	ClassNames []string
}

// DefaultOptions draws 2px boxes with class labels.
func DefaultOptions() Options {
	return Options{Thickness: 2, Labels: true}
}

// Render returns an RGBA copy of img with every box outlined.
func Render(img image.Image, boxes annotation.Set, opts Options) *image.RGBA {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	w, h := float64(b.Dx()), float64(b.Dy())
	for _, box := range boxes {
		rect := PixelRect(box, w, h)
		col := ClassColor(box.ClassID)
		drawRect(dst, rect, col, opts.Thickness)
		if opts.Labels {
			drawLabel(dst, rect.Min, className(box.ClassID, opts.ClassNames), col)
		}
	}
	return dst
}

// PixelRect converts a normalized box into its pixel rectangle, truncating
// corners toward zero.
func PixelRect(box annotation.BoundingBox, width, height float64) image.Rectangle {
	x1 := int(math.Trunc((box.XCenter - box.Width/2) * width))
	y1 := int(math.Trunc((box.YCenter - box.Height/2) * height))
	x2 := int(math.Trunc((box.XCenter + box.Width/2) * width))
	y2 := int(math.Trunc((box.YCenter + box.Height/2) * height))
	return image.Rect(x1, y1, x2, y2)
}

// ClassColor returns the palette color for a class id.
func ClassColor(classID int) color.RGBA {
	if classID < 0 {
		classID = -classID
	}
	return Palette[classID%len(Palette)]
}

func className(id int, names []string) string {
	if id >= 0 && id < len(names) && names[id] != "" {
		return names[id]
	}
	return strconv.Itoa(id)
}

// drawRect draws an axis-aligned rectangle outline into dst.
func drawRect(dst *image.RGBA, rect image.Rectangle, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	for t := range thickness {
		yTop := rect.Min.Y + t
		yBot := rect.Max.Y - 1 - t
		for x := rect.Min.X; x < rect.Max.X; x++ {
			dst.Set(x, yTop, col)
			dst.Set(x, yBot, col)
		}
	}
	for t := range thickness {
		xLeft := rect.Min.X + t
		xRight := rect.Max.X - 1 - t
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			dst.Set(xLeft, y, col)
			dst.Set(xRight, y, col)
		}
	}
}

// drawLabel writes text on a filled tag just above at, or inside the box when
// there is no room above.
func drawLabel(dst *image.RGBA, at image.Point, text string, bg color.RGBA) {
	face := basicfont.Face7x13
	tw := font.MeasureString(face, text).Ceil() + 2
	th := face.Metrics().Height.Ceil()

	top := at.Y - th
	if top < 0 {
		top = max(at.Y, 0)
	}
	left := max(at.X, 0)
	tag := image.Rect(left, top, left+tw, top+th).Intersect(dst.Bounds())
	if tag.Empty() {
		return
	}
	draw.Draw(dst, tag, &image.Uniform{bg}, image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(left+1, top+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}

// LoadClassNames reads one class name per line. Blank lines keep their index.
func LoadClassNames(fs afero.Fs, path string) ([]string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read class names: %w", err)
	}
	var names []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		names = append(names, strings.TrimSpace(sc.Text()))
	}
	for len(names) > 0 && names[len(names)-1] == "" {
		names = names[:len(names)-1]
	}
	return names, sc.Err()
}

// Renderer loads an image/label pair, draws the overlay and saves it.
type Renderer struct {
	fs     afero.Fs
	codec  *imageops.Codec
	opts   Options
	logger *slog.Logger
}

// NewRenderer creates a renderer writing through codec.
func NewRenderer(fs afero.Fs, codec *imageops.Codec, opts Options, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{fs: fs, codec: codec, opts: opts, logger: logger}
}

// RenderFile draws the boxes of labelPath over imagePath and writes the
// result to outPath. It returns the number of boxes drawn.
func (r *Renderer) RenderFile(imagePath, labelPath, outPath string) (int, error) {
	img, err := r.codec.Decode(imagePath)
	if err != nil {
		return 0, err
	}
	boxes, skipped, err := annotation.Load(r.fs, labelPath)
	if err != nil {
		return 0, err
	}
	for _, perr := range skipped {
		r.logger.Warn("skipping malformed annotation line", "file", perr.Path, "line", perr.Line, "error", perr.Err)
	}

	w, h := imageops.Size(img)
	r.logger.Debug("rendering preview", "file", imagePath, "width", w, "height", h, "boxes", len(boxes))
	if err := r.codec.Encode(Render(img, boxes, r.opts), outPath); err != nil {
		return 0, err
	}
	return len(boxes), nil
}
