package detection

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/menta2k/minescan/pkg/types"
)

// HotspotDetector is a model-free baseline that flags compact thermal
// anomalies. It scores every pixel by its contrast against its 8 neighbours
// and by its deviation from the frame mean, then slides square windows over
// the score map and keeps the strongest non-overlapping windows.
type HotspotDetector struct {
	config HotspotConfig
}

// HotspotConfig holds configuration for hotspot detection
type HotspotConfig struct {
	ContrastWeight  float64
	AnomalyWeight   float64
	ScoreThreshold  float64
	WindowFractions []float64 // window side as a fraction of the shorter image side
	MaxRegions      int
	IoUThreshold    float64
}

// DefaultHotspotConfig returns the configuration tuned on 640x640 thermal frames
func DefaultHotspotConfig() HotspotConfig {
	return HotspotConfig{
		ContrastWeight:  0.4,
		AnomalyWeight:   0.6,
		ScoreThreshold:  0.25,
		WindowFractions: []float64{1.0 / 32, 1.0 / 20, 1.0 / 12},
		MaxRegions:      10,
		IoUThreshold:    0.3,
	}
}

// NewHotspotDetector creates a new HotspotDetector with default configuration
func NewHotspotDetector() *HotspotDetector {
	return &HotspotDetector{config: DefaultHotspotConfig()}
}

// NewHotspotDetectorWithConfig creates a new HotspotDetector with custom configuration
func NewHotspotDetectorWithConfig(config HotspotConfig) *HotspotDetector {
	return &HotspotDetector{config: config}
}

// Detect scores each image independently, in input order
func (d *HotspotDetector) Detect(ctx context.Context, paths []string) ([]types.Result, error) {
	results := make([]types.Result, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := imaging.Open(p)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", p, err)
		}
		results = append(results, types.Result{Path: p, Detections: d.DetectImage(img)})
	}
	return results, nil
}

// DetectImage returns the hotspots of a single image
func (d *HotspotDetector) DetectImage(img image.Image) []types.Detection {
	gray := imaging.Grayscale(img)
	width, height := gray.Bounds().Dx(), gray.Bounds().Dy()
	if width < 3 || height < 3 {
		return []types.Detection{}
	}

	scoreMap := d.calculateScoreMap(gray)
	regions := d.findHotRegions(scoreMap, width, height)

	dets := make([]types.Detection, 0, len(regions))
	for _, r := range regions {
		dets = append(dets, types.Detection{
			Box: types.Box{
				XMin: float64(r.Min.X) / float64(width),
				YMin: float64(r.Min.Y) / float64(height),
				XMax: float64(r.Max.X) / float64(width),
				YMax: float64(r.Max.Y) / float64(height),
			},
			Confidence: clamp(r.score, 0, 1),
			Label:      "hotspot",
		})
	}

	dets = NonMaxSuppression(dets, d.config.IoUThreshold)
	if d.config.MaxRegions > 0 && len(dets) > d.config.MaxRegions {
		dets = dets[:d.config.MaxRegions]
	}
	return dets
}

type scoredRegion struct {
	image.Rectangle
	score float64
}

func (d *HotspotDetector) calculateScoreMap(gray *image.NRGBA) [][]float64 {
	width, height := gray.Bounds().Dx(), gray.Bounds().Dy()
	lum := func(x, y int) float64 {
		return float64(gray.Pix[y*gray.Stride+x*4]) / 255.0
	}

	var mean float64
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			mean += lum(x, y)
		}
	}
	mean /= float64(width * height)

	scoreMap := make([][]float64, height)
	for i := range scoreMap {
		scoreMap[i] = make([]float64, width)
	}

	neighbors := [][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			current := lum(x, y)

			var contrast float64
			for _, off := range neighbors {
				contrast += math.Abs(current - lum(x+off[0], y+off[1]))
			}
			contrast /= 8.0

			anomaly := math.Abs(current - mean)
			scoreMap[y][x] = d.config.ContrastWeight*contrast + d.config.AnomalyWeight*anomaly
		}
	}
	return scoreMap
}

func (d *HotspotDetector) findHotRegions(scoreMap [][]float64, width, height int) []scoredRegion {
	var regions []scoredRegion
	short := width
	if height < short {
		short = height
	}

	for _, frac := range d.config.WindowFractions {
		size := int(frac * float64(short))
		if size < 4 {
			continue
		}
		step := size / 4
		if step < 1 {
			step = 1
		}
		for y := 0; y <= height-size; y += step {
			for x := 0; x <= width-size; x += step {
				score := regionScore(scoreMap, x, y, size)
				if score > d.config.ScoreThreshold {
					regions = append(regions, scoredRegion{
						Rectangle: image.Rect(x, y, x+size, y+size),
						score:     score,
					})
				}
			}
		}
	}

	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].score > regions[j].score
	})
	return regions
}

func regionScore(scoreMap [][]float64, x, y, size int) float64 {
	var total float64
	count := 0
	for ry := y; ry < y+size && ry < len(scoreMap); ry++ {
		for rx := x; rx < x+size && rx < len(scoreMap[ry]); rx++ {
			total += scoreMap[ry][rx]
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}
