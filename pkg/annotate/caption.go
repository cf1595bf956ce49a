package annotate

import (
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

var font *truetype.Font

func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// captionSize scales the caption with the stroke so it stays legible on large photos.
func captionSize(imageWidth int) float64 {
	return 4*StrokeWidth(imageWidth) + 8
}

// drawCaption writes the box line just above its top-left corner, or inside the box when
// there is no room above it.
func drawCaption(dc *gg.Context, box Box, imageWidth int) {
	size := captionSize(imageWidth)
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: size}))
	dc.SetColor(box.Color)

	x := box.Corners[0].X
	y := box.Corners[0].Y - StrokeWidth(imageWidth)
	if y-size < 0 {
		y = box.Corners[0].Y + StrokeWidth(imageWidth) + size
	}
	dc.DrawString(box.Line, x, y)
}
