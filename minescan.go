// Package minescan detects landmines in drone thermal imagery.
//
// The pipeline normalizes raw frames to the detector's input format, runs a
// pretrained detector over a whole mission in one batch and writes the
// detections back into each frame's metadata document.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		"github.com/menta2k/minescan"
//		"github.com/menta2k/minescan/pkg/detection"
//	)
//
//	func main() {
//		preds, err := detection.LoadPredictionFile("predictions.json")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		p, err := minescan.New(detection.NewFileDetector(preds))
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		report, err := p.AnnotateMission(context.Background(), "data/mission_001", "results/mission_001")
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("annotated %d of %d images", report.Count(), report.Total)
//	}
//
// The package consists of these components:
//
// 1. Preprocess (pkg/preprocess): EXIF stripping, direct resize and luma conversion
// 2. Detection (pkg/detection): detector backends and result post-processing
// 3. Mission (pkg/mission): batch annotation of a mission directory
// 4. Evaluate (pkg/evaluate): sampled visual evaluation on a test set
// 5. Training (pkg/training): launcher for the external trainer
//
// Detector backends:
//
//   - FileDetector replays predictions exported by the training toolchain
//   - VisionDetector asks a vision language model served by Ollama or llama.cpp
//   - ONNXDetector runs an exported YOLO model through OpenCV (build tag gocv)
//   - HotspotDetector flags local thermal anomalies without a trained model
package minescan

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/menta2k/minescan/internal/utils"
	"github.com/menta2k/minescan/pkg/detection"
	"github.com/menta2k/minescan/pkg/evaluate"
	"github.com/menta2k/minescan/pkg/mission"
	"github.com/menta2k/minescan/pkg/preprocess"
)

// Version of the minescan library
const Version = "0.2.0"

// ImageExtensions lists the raw frame formats PreprocessDir picks up
var ImageExtensions = []string{"jpg", "jpeg", "png", "bmp", "tif", "tiff", "webp"}

// Pipeline wires preprocessing, detection and annotation together
type Pipeline struct {
	pre    *preprocess.Preprocessor
	det    detection.Detector
	post   []detection.Postprocessor
	logger logrus.FieldLogger
}

// Option customizes a Pipeline
type Option func(*Pipeline) error

// WithPreprocessOptions replaces the default 640x640 grayscale normalization
func WithPreprocessOptions(opts preprocess.Options) Option {
	return func(p *Pipeline) error {
		pre, err := preprocess.NewWithOptions(opts)
		if err != nil {
			return err
		}
		p.pre = pre
		return nil
	}
}

// WithLogger sets the logger used by every stage
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *Pipeline) error {
		p.logger = logger
		return nil
	}
}

// WithPostprocessors adds filters applied to every detector result, in order
func WithPostprocessors(post ...detection.Postprocessor) Option {
	return func(p *Pipeline) error {
		p.post = append(p.post, post...)
		return nil
	}
}

// New creates a pipeline around det
func New(det detection.Detector, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		pre:    preprocess.New(),
		det:    det,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Normalize loads and normalizes a single frame
func (p *Pipeline) Normalize(path string) (image.Image, error) {
	return p.pre.NormalizeFile(path)
}

// PreprocessDir normalizes every image directly inside inDir into outDir,
// keeping base names. It returns the number of frames written; failures for
// individual files are combined into the returned error.
func (p *Pipeline) PreprocessDir(ctx context.Context, inDir, outDir string) (int, error) {
	files, err := utils.ListFiles(inDir, ImageExtensions...)
	if err != nil {
		return 0, fmt.Errorf("failed to list images: %w", err)
	}
	if err := utils.EnsureDir(outDir); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", mission.ErrWrite, outDir, err)
	}

	var errs error
	written := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return written, multierr.Append(errs, err)
		}
		base := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		out := filepath.Join(outDir, base+"."+p.pre.Extension())

		img, err := p.pre.NormalizeFile(f)
		if err == nil {
			err = p.pre.Save(img, out)
		}
		if err != nil {
			p.logger.WithField("path", f).WithError(err).Warn("Failed to preprocess image")
			errs = multierr.Append(errs, err)
			continue
		}
		p.logger.WithFields(logrus.Fields{"path": f, "output": out}).Debug("Preprocessed image")
		written++
	}
	return written, errs
}

// AnnotateMission runs the mission annotator, see mission.Annotator
func (p *Pipeline) AnnotateMission(ctx context.Context, rawDir, outDir string) (*mission.Report, error) {
	return mission.New(p.pre, p.det, p.logger, p.post...).AnnotateMission(ctx, rawDir, outDir)
}

// Evaluate samples frames from imageDir and writes prediction overlays
func (p *Pipeline) Evaluate(ctx context.Context, imageDir string, cfg evaluate.Config) ([]evaluate.Sample, error) {
	e, err := evaluate.New(p.det, cfg, p.logger, p.post...)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, imageDir)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
