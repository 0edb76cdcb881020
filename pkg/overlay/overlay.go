// Package overlay renders detections on top of a frame for visual review
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/minescan/pkg/types"
)

var (
	high   = color.NRGBA{255, 0, 0, 255}   // confidence >= 0.75
	medium = color.NRGBA{255, 140, 0, 255} // confidence >= 0.5
	low    = color.NRGBA{255, 220, 0, 255}
)

// Options controls overlay rendering
type Options struct {
	// Stroke is the outline width in pixels, 0 picks ~0.4% of the shorter side
	Stroke int
	// Labels draws "<label> <confidence>%" above each box
	Labels bool
	// MinConfidence hides detections below this score
	MinConfidence float64
}

// DefaultOptions draws labelled boxes for every detection
func DefaultOptions() Options {
	return Options{Labels: true}
}

// ColorFor returns the outline color for a confidence score
func ColorFor(confidence float64) color.NRGBA {
	switch {
	case confidence >= 0.75:
		return high
	case confidence >= 0.5:
		return medium
	default:
		return low
	}
}

// DrawDetections returns a copy of img with every detection outlined. Boxes
// are in normalized coordinates. Grayscale frames come back as RGB so the
// colors are visible.
func DrawDetections(img image.Image, dets []types.Detection, opts Options) *image.NRGBA {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()
	if w == 0 || h == 0 {
		return nrgba
	}

	stroke := opts.Stroke
	if stroke <= 0 {
		stroke = int(math.Max(2, 0.004*float64(min(w, h))))
	}

	for _, d := range dets {
		if d.Confidence < opts.MinConfidence || !d.Box.Valid() {
			continue
		}
		c := ColorFor(d.Confidence)
		drawBox(nrgba, d.Box, w, h, c, stroke)
		if opts.Labels {
			x0, y0, _, _ := boxToPixels(d.Box, w, h)
			drawLabel(nrgba, Label(d), x0, y0, c)
		}
	}
	return nrgba
}

// Label formats the caption drawn above a detection
func Label(d types.Detection) string {
	name := d.Label
	if name == "" {
		name = "object"
	}
	return fmt.Sprintf("%s %.0f%%", name, d.Confidence*100)
}

func drawLabel(img *image.NRGBA, text string, x, y int, c color.NRGBA) {
	face := basicfont.Face7x13
	// Baseline sits just above the box, or inside it at the top edge of the frame
	baseline := y - 3
	if baseline-face.Ascent < 0 {
		baseline = y + face.Ascent + 2
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(text)
}

func boxToPixels(box types.Box, w, h int) (int, int, int, int) {
	b := box.Clamp()
	x0 := int(b.XMin*float64(w) + 0.5)
	y0 := int(b.YMin*float64(h) + 0.5)
	x1 := int(b.XMax*float64(w) + 0.5)
	y1 := int(b.YMax*float64(h) + 0.5)
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return x0, y0, x1, y1
}

func drawBox(img *image.NRGBA, box types.Box, w, h int, c color.NRGBA, stroke int) {
	x0, y0, x1, y1 := boxToPixels(box, w, h)
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	x0 = max(x0, 0)
	x1 = min(x1, img.Bounds().Dx())
	for x := x0; x < x1; x++ {
		img.SetNRGBA(x, y, c)
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	y0 = max(y0, 0)
	y1 = min(y1, img.Bounds().Dy())
	for y := y0; y < y1; y++ {
		img.SetNRGBA(x, y, c)
	}
}
