// Package annotate draws prediction results onto images.
package annotate

import (
	"VisionDetect/internal/entity"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/fogleman/gg"
	"golang.org/x/image/colornames"
)

// DefaultThreshold is the confidence a detection must exceed to be drawn.
const DefaultThreshold = 0.5

// DefaultFallback is used for labels missing from the color map.
var DefaultFallback color.Color = colornames.White

// DefaultColors returns the stroke color per known label.
func DefaultColors() map[string]color.Color {
	return map[string]color.Color{
		"apple":  colornames.Lightgreen,
		"banana": colornames.Yellow,
		"orange": colornames.Orange,
	}
}

// Box is a detection that passed the threshold together with what was drawn for it.
type Box struct {
	Detection entity.Detection
	Corners   [4]gg.Point
	Color     color.Color
	Line      string
}

type Renderer struct {
	colors     map[string]color.Color
	fallback   color.Color
	threshold  float64
	drawLabels bool
}

type Option func(*Renderer)

func WithColors(colors map[string]color.Color) Option {
	return func(r *Renderer) {
		r.colors = colors
	}
}

func WithFallback(c color.Color) Option {
	return func(r *Renderer) {
		r.fallback = c
	}
}

func WithThreshold(threshold float64) Option {
	return func(r *Renderer) {
		r.threshold = threshold
	}
}

// WithLabels additionally writes each text line above its rectangle.
func WithLabels(enabled bool) Option {
	return func(r *Renderer) {
		r.drawLabels = enabled
	}
}

func New(opts ...Option) *Renderer {
	r := &Renderer{
		colors:    DefaultColors(),
		fallback:  DefaultFallback,
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ColorFor returns the stroke color of label.
func (r *Renderer) ColorFor(label string) color.Color {
	if c, ok := r.colors[label]; ok {
		return c
	}
	return r.fallback
}

// Render draws every detection whose confidence is strictly above the threshold onto img and
// returns them in input order. img must have its origin at (0, 0), see ToRGBA.
func (r *Renderer) Render(img *image.RGBA, detections []entity.Detection) []Box {
	boxes := make([]Box, 0, len(detections))
	if len(detections) == 0 {
		return boxes
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	var dc *gg.Context
	for _, d := range detections {
		if d.Confidence <= r.threshold {
			continue
		}

		if dc == nil {
			dc = gg.NewContextForRGBA(img)
		}

		box := Box{
			Detection: d,
			Corners:   Corners(d.BoundingBox, w, h),
			Color:     r.ColorFor(d.Label),
			Line:      Line(d),
		}

		drawOutline(dc, box.Corners, box.Color, StrokeWidth(w))
		if r.drawLabels {
			drawCaption(dc, box, w)
		}

		boxes = append(boxes, box)
	}

	return boxes
}

// Annotate renders onto a copy of src; src is left untouched.
func (r *Renderer) Annotate(src image.Image, detections []entity.Detection) (*image.RGBA, []Box) {
	dst := ToRGBA(src)
	return dst, r.Render(dst, detections)
}

// Lines returns the text line of each rendered box.
func Lines(boxes []Box) []string {
	lines := make([]string, 0, len(boxes))
	for _, b := range boxes {
		lines = append(lines, b.Line)
	}
	return lines
}

// Line formats a detection as "label: 92.00%".
func Line(d entity.Detection) string {
	return fmt.Sprintf("%s: %.2f%%", d.Label, d.Confidence*100)
}

// Corners scales the normalised box to a w x h image, clockwise from the top-left corner.
func Corners(box entity.BoundingBox, w, h int) [4]gg.Point {
	left := box.Left * float64(w)
	top := box.Top * float64(h)
	width := box.Width * float64(w)
	height := box.Height * float64(h)

	return [4]gg.Point{
		{X: left, Y: top},
		{X: left + width, Y: top},
		{X: left + width, Y: top + height},
		{X: left, Y: top + height},
	}
}

// StrokeWidth is one hundredth of the image width, never thinner than a pixel.
func StrokeWidth(imageWidth int) float64 {
	width := imageWidth / 100
	if width < 1 {
		width = 1
	}
	return float64(width)
}

// ToRGBA copies img into a new RGBA whose bounds start at the origin.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func drawOutline(dc *gg.Context, corners [4]gg.Point, c color.Color, width float64) {
	dc.MoveTo(corners[0].X, corners[0].Y)
	for _, p := range corners[1:] {
		dc.LineTo(p.X, p.Y)
	}
	dc.ClosePath()

	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.Stroke()
}
