package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/menta2k/minescan/pkg/types"
)

func grayFrame(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 40
	}
	return img
}

func TestDrawDetectionsOutlinesBox(t *testing.T) {
	src := grayFrame(100, 100)
	dets := []types.Detection{{
		Box:        types.Box{XMin: 0.2, YMin: 0.3, XMax: 0.6, YMax: 0.7},
		Confidence: 0.9,
		Label:      "landmine",
	}}

	out := DrawDetections(src, dets, Options{Stroke: 2})
	require.Equal(t, src.Bounds(), out.Bounds())

	require.Equal(t, high, out.NRGBAAt(20, 30))
	require.Equal(t, high, out.NRGBAAt(40, 31))
	require.Equal(t, high, out.NRGBAAt(59, 50))
	// Interior and outside are untouched
	require.Equal(t, color.NRGBA{40, 40, 40, 255}, out.NRGBAAt(40, 50))
	require.Equal(t, color.NRGBA{40, 40, 40, 255}, out.NRGBAAt(5, 5))
	// Source frame is not modified
	require.Equal(t, uint8(40), src.GrayAt(20, 30).Y)
}

func TestDrawDetectionsFiltersAndClips(t *testing.T) {
	src := grayFrame(50, 50)
	dets := []types.Detection{
		{Box: types.Box{XMin: 0.1, YMin: 0.1, XMax: 0.4, YMax: 0.4}, Confidence: 0.2},
		{Box: types.Box{XMin: 0.5, YMin: 0.5, XMax: 1.0, YMax: 1.0}, Confidence: 0.6},
	}
	out := DrawDetections(src, dets, Options{Stroke: 1, MinConfidence: 0.5})
	require.Equal(t, color.NRGBA{40, 40, 40, 255}, out.NRGBAAt(5, 5))
	require.Equal(t, medium, out.NRGBAAt(25, 25))
	require.Equal(t, medium, out.NRGBAAt(49, 49))
}

func TestDrawDetectionsLabels(t *testing.T) {
	src := grayFrame(200, 200)
	dets := []types.Detection{{Box: types.Box{XMin: 0.25, YMin: 0.5, XMax: 0.5, YMax: 0.75}, Confidence: 0.3}}

	plain := DrawDetections(src, dets, Options{Stroke: 1})
	labelled := DrawDetections(src, dets, Options{Stroke: 1, Labels: true})

	changed := 0
	for y := 80; y < 100; y++ {
		for x := 50; x < 150; x++ {
			if plain.NRGBAAt(x, y) != labelled.NRGBAAt(x, y) {
				changed++
			}
		}
	}
	require.Positive(t, changed)
}

func TestColorForAndLabel(t *testing.T) {
	require.Equal(t, high, ColorFor(0.75))
	require.Equal(t, medium, ColorFor(0.5))
	require.Equal(t, low, ColorFor(0.1))

	require.Equal(t, "landmine 87%", Label(types.Detection{Label: "landmine", Confidence: 0.87}))
	require.Equal(t, "object 50%", Label(types.Detection{Confidence: 0.5}))
}
