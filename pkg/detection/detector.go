// Package detection defines the boundary to the landmine detector and the
// backends that implement it.
//
// A Detector receives the ordered list of normalized image paths of a whole
// mission and returns one Result per path in the same order. Run enforces
// that contract and sanitizes whatever the backend produced, so callers can
// rely on result k belonging to input k and on every coordinate and score
// lying in [0,1].
package detection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"github.com/menta2k/minescan/pkg/types"
)

// ErrResultMismatch is returned when a backend breaks the one-result-per-input contract
var ErrResultMismatch = errors.New("detector results do not match inputs")

// Detector locates landmines in a batch of normalized images
type Detector interface {
	Detect(ctx context.Context, paths []string) ([]types.Result, error)
}

// Func adapts a plain function to the Detector interface
type Func func(ctx context.Context, paths []string) ([]types.Result, error)

// Detect calls f
func (f Func) Detect(ctx context.Context, paths []string) ([]types.Result, error) {
	return f(ctx, paths)
}

// Postprocessor filters or modifies the detections of one image
type Postprocessor func([]types.Detection) []types.Detection

// NewScoreFilter drops detections below a confidence threshold
func NewScoreFilter(conf float64) Postprocessor {
	return func(in []types.Detection) []types.Detection {
		out := make([]types.Detection, 0, len(in))
		for _, d := range in {
			if d.Confidence >= conf {
				out = append(out, d)
			}
		}
		return out
	}
}

// NewAreaFilter drops detections whose normalized area is below area
func NewAreaFilter(area float64) Postprocessor {
	return func(in []types.Detection) []types.Detection {
		out := make([]types.Detection, 0, len(in))
		for _, d := range in {
			if d.Box.Area() >= area {
				out = append(out, d)
			}
		}
		return out
	}
}

// NewNMS suppresses overlapping detections above the IoU threshold
func NewNMS(iou float64) Postprocessor {
	return func(in []types.Detection) []types.Detection {
		return NonMaxSuppression(in, iou)
	}
}

// NonMaxSuppression keeps the highest scoring detection of every group of
// boxes overlapping by more than iou. Labels are ignored.
func NonMaxSuppression(dets []types.Detection, iou float64) []types.Detection {
	sorted := make([]types.Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]types.Detection, 0, len(sorted))
	for _, d := range sorted {
		suppressed := false
		for _, k := range kept {
			if d.Box.IoU(k.Box) > iou {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}

// Run invokes the detector once for the whole batch, checks that the results
// line up with the inputs and sanitizes every detection
func Run(ctx context.Context, d Detector, paths []string, post ...Postprocessor) ([]types.Result, error) {
	if d == nil {
		return nil, errors.New("detector is not configured")
	}
	results, err := d.Detect(ctx, paths)
	if err != nil {
		return nil, err
	}
	if len(results) != len(paths) {
		return nil, fmt.Errorf("%w: %d results for %d images", ErrResultMismatch, len(results), len(paths))
	}

	out := make([]types.Result, len(results))
	for i, r := range results {
		if r.Path != "" && filepath.Clean(r.Path) != filepath.Clean(paths[i]) {
			return nil, fmt.Errorf("%w: result %d is for %s, expected %s", ErrResultMismatch, i, r.Path, paths[i])
		}
		dets := sanitize(r.Detections)
		for _, p := range post {
			dets = p(dets)
		}
		if dets == nil {
			dets = []types.Detection{}
		}
		out[i] = types.Result{Path: paths[i], Detections: dets}
	}
	return out, nil
}

// sanitize clamps boxes and scores into [0,1] and drops non-finite entries
func sanitize(in []types.Detection) []types.Detection {
	out := make([]types.Detection, 0, len(in))
	for _, d := range in {
		if math.IsNaN(d.Confidence) || math.IsInf(d.Confidence, 0) {
			continue
		}
		d.Box = d.Box.Clamp()
		d.Confidence = clamp(d.Confidence, 0, 1)
		out = append(out, d)
	}
	return out
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
