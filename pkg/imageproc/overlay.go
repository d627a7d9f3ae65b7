package imageproc

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"

	"github.com/menta2k/tracking-data/pkg/types"
)

// BoxColor is the outline colour of ground truth boxes
var BoxColor = color.NRGBA{R: 0, G: 255, B: 0, A: 255}

// Overlay returns a copy of img with box, in pixel coordinates, outlined and
// an optional label written above it. The stroke scales with the smaller
// image side.
func Overlay(img image.Image, box types.Box, label string) image.Image {
	dc := gg.NewContextForImage(img)
	b := img.Bounds()
	stroke := max(1.0, 0.01*float64(min(b.Dx(), b.Dy())))

	dc.SetColor(BoxColor)
	dc.SetLineWidth(stroke)
	dc.DrawRectangle(float64(box.Left), float64(box.Top), float64(box.Width()), float64(box.Height()))
	dc.Stroke()

	if label != "" {
		y := float64(box.Top) - stroke
		ay := 0.0
		if y < 12 {
			// no room above the box
			y = float64(box.Top) + stroke
			ay = 1
		}
		dc.DrawStringAnchored(label, float64(box.Left)+stroke, y, 0, ay)
	}
	return dc.Image()
}
