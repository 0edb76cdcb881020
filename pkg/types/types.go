package types

import "math"

// Box represents a normalized bounding box with corner coordinates in [0,1] range
type Box struct {
	XMin float64 `json:"x_min"`
	YMin float64 `json:"y_min"`
	XMax float64 `json:"x_max"`
	YMax float64 `json:"y_max"`
}

// BoxFromArray builds a box from an (x_min, y_min, x_max, y_max) tuple
func BoxFromArray(a [4]float64) Box {
	return Box{XMin: a[0], YMin: a[1], XMax: a[2], YMax: a[3]}
}

// Array returns the box as an (x_min, y_min, x_max, y_max) tuple
func (b Box) Array() [4]float64 {
	return [4]float64{b.XMin, b.YMin, b.XMax, b.YMax}
}

// Clamp returns the box with every coordinate limited to [0,1] and corners ordered
func (b Box) Clamp() Box {
	x0, x1 := clamp01(b.XMin), clamp01(b.XMax)
	y0, y1 := clamp01(b.YMin), clamp01(b.YMax)
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	return Box{XMin: x0, YMin: y0, XMax: x1, YMax: y1}
}

// Valid reports whether all coordinates are finite, inside [0,1] and ordered
func (b Box) Valid() bool {
	for _, v := range b.Array() {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return false
		}
	}
	return b.XMin <= b.XMax && b.YMin <= b.YMax
}

// Width returns the normalized width of the box
func (b Box) Width() float64 {
	return math.Max(0, b.XMax-b.XMin)
}

// Height returns the normalized height of the box
func (b Box) Height() float64 {
	return math.Max(0, b.YMax-b.YMin)
}

// Area returns the normalized area of the box
func (b Box) Area() float64 {
	return b.Width() * b.Height()
}

// IoU returns the intersection over union of two boxes
func (b Box) IoU(o Box) float64 {
	ix := math.Min(b.XMax, o.XMax) - math.Max(b.XMin, o.XMin)
	iy := math.Min(b.YMax, o.YMax) - math.Max(b.YMin, o.YMin)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Detection is a single detector hit
type Detection struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label,omitempty"`
}

// Result holds every detection the detector produced for one input image
type Result struct {
	Path       string      `json:"path"`
	Detections []Detection `json:"detections"`
}

// Boxes returns the detection boxes as plain nested lists, never nil
func (r Result) Boxes() [][4]float64 {
	out := make([][4]float64, 0, len(r.Detections))
	for _, d := range r.Detections {
		out = append(out, d.Box.Array())
	}
	return out
}

// Confidences returns the detection scores in the same order as Boxes, never nil
func (r Result) Confidences() []float64 {
	out := make([]float64, 0, len(r.Detections))
	for _, d := range r.Detections {
		out = append(out, d.Confidence)
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
