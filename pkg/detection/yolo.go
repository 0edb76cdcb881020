package detection

import (
	"fmt"

	"github.com/menta2k/minescan/pkg/types"
)

// YOLOConfig holds the decoding parameters of an exported YOLO model
type YOLOConfig struct {
	ModelPath     string
	InputWidth    int
	InputHeight   int
	ConfThreshold float64
	IoUThreshold  float64
	Labels        []string
}

// DefaultYOLOConfig returns the parameters the landmine models were trained with
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		InputWidth:    640,
		InputHeight:   640,
		ConfThreshold: 0.25,
		IoUThreshold:  0.7,
		Labels:        []string{"landmine"},
	}
}

// DecodeYOLO parses the raw output of an ultralytics detection export.
//
// The tensor has shape [1, 4+classes, anchors] in channel-major order: rows
// 0-3 hold the box centre and size in input pixels, the remaining rows hold
// one score per class. Boxes are normalized by the input size.
func DecodeYOLO(data []float32, channels, anchors int, cfg YOLOConfig) ([]types.Detection, error) {
	if channels < 5 {
		return nil, fmt.Errorf("yolo output needs at least 5 channels, got %d", channels)
	}
	if len(data) < channels*anchors {
		return nil, fmt.Errorf("yolo output has %d values, want %d", len(data), channels*anchors)
	}
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		return nil, fmt.Errorf("invalid yolo input size %dx%d", cfg.InputWidth, cfg.InputHeight)
	}

	at := func(c, a int) float64 { return float64(data[c*anchors+a]) }
	w, h := float64(cfg.InputWidth), float64(cfg.InputHeight)

	var dets []types.Detection
	for a := 0; a < anchors; a++ {
		bestClass, bestScore := 0, 0.0
		for c := 4; c < channels; c++ {
			if s := at(c, a); s > bestScore {
				bestClass, bestScore = c-4, s
			}
		}
		if bestScore < cfg.ConfThreshold {
			continue
		}

		cx, cy, bw, bh := at(0, a), at(1, a), at(2, a), at(3, a)
		box := types.Box{
			XMin: (cx - bw/2) / w,
			YMin: (cy - bh/2) / h,
			XMax: (cx + bw/2) / w,
			YMax: (cy + bh/2) / h,
		}.Clamp()

		label := ""
		if bestClass < len(cfg.Labels) {
			label = cfg.Labels[bestClass]
		}
		dets = append(dets, types.Detection{Box: box, Confidence: bestScore, Label: label})
	}

	return NonMaxSuppression(dets, cfg.IoUThreshold), nil
}
