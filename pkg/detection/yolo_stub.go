//go:build !gocv
// +build !gocv

package detection

import (
	"context"
	"errors"

	"github.com/menta2k/minescan/pkg/types"
)

// ErrGoCVDisabled is returned by the ONNX detector in builds without the gocv tag
var ErrGoCVDisabled = errors.New("gocv build tag is not enabled")

// ONNXDetector is a placeholder for builds without OpenCV
type ONNXDetector struct {
	config YOLOConfig
}

// NewONNXDetector reports that OpenCV support was not compiled in
func NewONNXDetector(cfg YOLOConfig) (*ONNXDetector, error) {
	return nil, ErrGoCVDisabled
}

// Close is a no-op
func (d *ONNXDetector) Close() error {
	return nil
}

// Detect always fails without the gocv tag
func (d *ONNXDetector) Detect(ctx context.Context, paths []string) ([]types.Result, error) {
	return nil, ErrGoCVDisabled
}
