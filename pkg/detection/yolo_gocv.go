//go:build gocv
// +build gocv

package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/menta2k/minescan/pkg/types"
)

// ONNXDetector runs an exported YOLO model through the OpenCV DNN module
type ONNXDetector struct {
	config YOLOConfig
	net    gocv.Net
	mu     sync.Mutex
}

// NewONNXDetector loads the model at cfg.ModelPath
func NewONNXDetector(cfg YOLOConfig) (*ONNXDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", cfg.ModelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set target: %w", err)
	}

	return &ONNXDetector{config: cfg, net: net}, nil
}

// Close releases the network
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// Detect runs the network on every image in input order
func (d *ONNXDetector) Detect(ctx context.Context, paths []string) ([]types.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	results := make([]types.Result, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dets, err := d.detectFile(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		results = append(results, types.Result{Path: p, Detections: dets})
	}
	return results, nil
}

func (d *ONNXDetector) detectFile(path string) ([]types.Detection, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		return nil, errors.New("failed to read image")
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(d.config.InputWidth, d.config.InputHeight),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	sizes := out.Size()
	if len(sizes) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", sizes)
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read output: %w", err)
	}
	// Copy out of the Mat before it is closed
	values := make([]float32, len(data))
	copy(values, data)

	return DecodeYOLO(values, sizes[1], sizes[2], d.config)
}
