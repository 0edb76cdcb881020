package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/menta2k/minescan/pkg/types"
)

// Prediction is the exported output of one image in xyxyn layout
type Prediction struct {
	XYXYN [][4]float64 `json:"xyxyn"`
	Conf  []float64    `json:"conf"`
}

// PredictionFile holds predictions exported by an external inference run, keyed by image base name
type PredictionFile struct {
	Model       string                `json:"model,omitempty"`
	Predictions map[string]Prediction `json:"predictions"`
}

// LoadPredictionFile reads a prediction export from disk
func LoadPredictionFile(path string) (*PredictionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read predictions: %w", err)
	}
	var pf PredictionFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse predictions: %w", err)
	}
	if pf.Predictions == nil {
		pf.Predictions = map[string]Prediction{}
	}
	return &pf, nil
}

// FileDetector replays detections that were computed elsewhere
type FileDetector struct {
	file *PredictionFile
}

// NewFileDetector creates a detector backed by a loaded prediction export
func NewFileDetector(pf *PredictionFile) *FileDetector {
	return &FileDetector{file: pf}
}

// Detect looks up every path by base name. A missing entry is an error, an
// entry with no boxes is an image without detections.
func (d *FileDetector) Detect(ctx context.Context, paths []string) ([]types.Result, error) {
	results := make([]types.Result, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := filepath.Base(p)
		pred, ok := d.file.Predictions[name]
		if !ok {
			return nil, fmt.Errorf("no prediction for %s", name)
		}
		if len(pred.XYXYN) != len(pred.Conf) {
			return nil, fmt.Errorf("prediction for %s has %d boxes and %d scores", name, len(pred.XYXYN), len(pred.Conf))
		}
		dets := make([]types.Detection, len(pred.XYXYN))
		for i, box := range pred.XYXYN {
			dets[i] = types.Detection{Box: types.BoxFromArray(box), Confidence: pred.Conf[i], Label: "landmine"}
		}
		results = append(results, types.Result{Path: p, Detections: dets})
	}
	return results, nil
}
