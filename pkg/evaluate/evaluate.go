// Package evaluate runs the detector over a random sample of test frames and
// writes an annotated copy of each one for visual inspection.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/minescan/internal/utils"
	"github.com/menta2k/minescan/pkg/detection"
	"github.com/menta2k/minescan/pkg/overlay"
	"github.com/menta2k/minescan/pkg/types"
)

// ErrNotEnoughImages is returned when the directory holds fewer frames than the sample size
var ErrNotEnoughImages = errors.New("not enough images to sample")

// Config controls sampling and output layout
type Config struct {
	SampleSize int
	// Seed makes the sample reproducible, 0 seeds from the clock
	Seed int64
	// Project is the output root, each sample goes to Project/<NamePrefix><k>/<base>
	Project    string
	NamePrefix string
	StartIndex int
	Extensions []string
	Overlay    overlay.Options
}

// DefaultConfig samples 15 JPEG frames into predicted_images/image1..image15
func DefaultConfig() Config {
	return Config{
		SampleSize: 15,
		Project:    "predicted_images",
		NamePrefix: "image",
		StartIndex: 1,
		Extensions: []string{"jpg"},
		Overlay:    overlay.DefaultOptions(),
	}
}

// Validate checks the configuration before any file is read
func (c Config) Validate() error {
	if c.SampleSize < 1 {
		return fmt.Errorf("sample size must be positive")
	}
	if c.Project == "" {
		return fmt.Errorf("project directory must be set")
	}
	if len(c.Extensions) == 0 {
		return fmt.Errorf("at least one image extension is required")
	}
	return nil
}

// Sample is one evaluated frame
type Sample struct {
	Source string
	Output string
	Result types.Result
}

// Evaluator runs the detector over a random sample of test frames and
// renders the detections for visual inspection
type Evaluator struct {
	det    detection.Detector
	post   []detection.Postprocessor
	cfg    Config
	logger logrus.FieldLogger
	rng    *rand.Rand
}

// New creates an evaluator. A nil logger uses the logrus standard logger.
func New(det detection.Detector, cfg Config, logger logrus.FieldLogger, post ...detection.Postprocessor) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Evaluator{
		det:    det,
		post:   post,
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}, nil
}

// Choose picks SampleSize distinct files without replacement
func (e *Evaluator) Choose(files []string) ([]string, error) {
	if len(files) < e.cfg.SampleSize {
		return nil, fmt.Errorf("%w: found %d, need %d", ErrNotEnoughImages, len(files), e.cfg.SampleSize)
	}
	perm := e.rng.Perm(len(files))
	chosen := make([]string, e.cfg.SampleSize)
	for i := range chosen {
		chosen[i] = files[perm[i]]
	}
	return chosen, nil
}

// Run samples frames from imageDir, detects on them in one batch and writes overlays
func (e *Evaluator) Run(ctx context.Context, imageDir string) ([]Sample, error) {
	files, err := utils.ListFiles(imageDir, e.cfg.Extensions...)
	if err != nil {
		return nil, fmt.Errorf("list test images: %w", err)
	}
	chosen, err := e.Choose(files)
	if err != nil {
		return nil, err
	}

	results, err := detection.Run(ctx, e.det, chosen, e.post...)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}

	samples := make([]Sample, 0, len(chosen))
	for i, src := range chosen {
		if err := ctx.Err(); err != nil {
			return samples, err
		}
		out := e.OutputPath(i, src)
		if err := e.render(src, out, results[i].Detections); err != nil {
			return samples, err
		}
		e.logger.WithFields(logrus.Fields{
			"path":       src,
			"output":     out,
			"detections": len(results[i].Detections),
		}).Info("Saved prediction")
		samples = append(samples, Sample{Source: src, Output: out, Result: results[i]})
	}
	return samples, nil
}

// OutputPath returns where the overlay for the i-th sampled frame is written
func (e *Evaluator) OutputPath(i int, src string) string {
	name := fmt.Sprintf("%s%d", e.cfg.NamePrefix, e.cfg.StartIndex+i)
	return filepath.Join(e.cfg.Project, name, filepath.Base(src))
}

func (e *Evaluator) render(src, out string, dets []types.Detection) error {
	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	if err := utils.EnsureDir(filepath.Dir(out)); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := imaging.Save(overlay.DrawDetections(img, dets, e.cfg.Overlay), out); err != nil {
		return fmt.Errorf("failed to save %s: %w", out, err)
	}
	return nil
}
