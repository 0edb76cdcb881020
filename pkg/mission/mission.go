// Package mission annotates one drone mission: it normalizes every raw
// frame, runs the detector once over the whole batch and merges the
// detections into each frame's metadata document.
//
// Input layout is raw_dir/IMG_{i}.jpg plus raw_dir/IMG_{i}.json for i in
// 1..N. Output goes to out_dir/processed_images/IMG_{i}.<ext> and
// out_dir/json/IMG_{i}.json. The index alone determines both output paths.
package mission

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/menta2k/minescan/internal/utils"
	"github.com/menta2k/minescan/pkg/detection"
	"github.com/menta2k/minescan/pkg/preprocess"
	"github.com/menta2k/minescan/pkg/types"
)

const (
	// ProcessedDir is the subdirectory holding normalized frames
	ProcessedDir = "processed_images"
	// MetadataDir is the subdirectory holding annotated metadata documents
	MetadataDir = "json"
)

// Report summarizes a mission run
type Report struct {
	// Total is the mission size N
	Total     int
	Annotated []int
	Failures  []*IndexError
}

// Count returns the number of annotated indices
func (r *Report) Count() int {
	return len(r.Annotated)
}

// Err combines every per-index failure, or returns nil when all indices were annotated
func (r *Report) Err() error {
	var err error
	for _, f := range r.Failures {
		err = multierr.Append(err, f)
	}
	return err
}

func (r *Report) fail(idx int, err error) {
	r.Failures = append(r.Failures, &IndexError{Index: idx, Err: err})
}

// Annotator drives preprocessing, detection and metadata merging for a mission
type Annotator struct {
	pre    *preprocess.Preprocessor
	det    detection.Detector
	post   []detection.Postprocessor
	logger logrus.FieldLogger
}

// New creates an annotator. A nil preprocessor uses the default options and
// a nil logger uses the logrus standard logger.
func New(pre *preprocess.Preprocessor, det detection.Detector, logger logrus.FieldLogger, post ...detection.Postprocessor) *Annotator {
	if pre == nil {
		pre = preprocess.New()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Annotator{pre: pre, det: det, post: post, logger: logger}
}

// staged is an index that made it through preprocessing and is waiting for detections
type staged struct {
	index     int
	imagePath string
	metaPath  string
}

// ProcessedPath returns the normalized frame path for index i
func (a *Annotator) ProcessedPath(outDir string, i int) string {
	return filepath.Join(outDir, ProcessedDir, fmt.Sprintf("IMG_%d.%s", i, a.pre.Extension()))
}

// MetadataPath returns the annotated metadata path for index i
func MetadataPath(outDir string, i int) string {
	return filepath.Join(outDir, MetadataDir, fmt.Sprintf("IMG_%d.json", i))
}

// AnnotateMission processes every index of rawDir into outDir. Per-index
// failures are recorded in the report and do not stop sibling indices. The
// returned error is non-nil only for failures that abort the whole mission:
// an unreadable rawDir, output directories that cannot be created, a
// detector failure or context cancellation. The report is returned in every
// case and reflects the work done so far.
func (a *Annotator) AnnotateMission(ctx context.Context, rawDir, outDir string) (*Report, error) {
	report := &Report{}

	n, pairs, err := ScanPairs(rawDir)
	if err != nil {
		return report, err
	}
	report.Total = n
	log := a.logger.WithFields(logrus.Fields{"raw_dir": rawDir, "out_dir": outDir})
	log.WithField("images", n).Info("Annotating mission")

	for _, dir := range []string{filepath.Join(outDir, ProcessedDir), filepath.Join(outDir, MetadataDir)} {
		if err := utils.EnsureDir(dir); err != nil {
			return report, fmt.Errorf("%w: %s: %v", ErrWrite, dir, err)
		}
	}

	var batch []staged
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s, err := a.stage(p, outDir)
		if err != nil {
			log.WithFields(logrus.Fields{"index": p.Index, "path": p.ImagePath}).WithError(err).Warn("Skipping image")
			report.fail(p.Index, err)
			continue
		}
		batch = append(batch, s)
	}

	if len(batch) == 0 {
		log.Warn("No image survived preprocessing, skipping detection")
		return report, nil
	}

	paths := make([]string, len(batch))
	for i, s := range batch {
		paths[i] = s.imagePath
	}
	log.WithField("images", len(paths)).Debug("Running detector")
	results, err := detection.Run(ctx, a.det, paths, a.post...)
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrDetector, err)
	}

	for k, s := range batch {
		entry := log.WithFields(logrus.Fields{"index": s.index, "path": s.metaPath})
		if err := a.merge(s.metaPath, results[k]); err != nil {
			entry.WithError(err).Warn("Failed to annotate metadata")
			report.fail(s.index, err)
			continue
		}
		entry.WithField("detections", len(results[k].Detections)).Debug("Annotated")
		report.Annotated = append(report.Annotated, s.index)
	}

	sort.SliceStable(report.Failures, func(i, j int) bool {
		return report.Failures[i].Index < report.Failures[j].Index
	})
	log.WithFields(logrus.Fields{"annotated": report.Count(), "failed": len(report.Failures)}).Info("Mission annotated")
	return report, nil
}

// stage normalizes one frame, validates its metadata and copies both into outDir
func (a *Annotator) stage(p Pair, outDir string) (staged, error) {
	if err := p.check(); err != nil {
		return staged{}, err
	}

	img, err := a.pre.NormalizeFile(p.ImagePath)
	if err != nil {
		return staged{}, err
	}

	doc, err := os.ReadFile(p.MetadataPath)
	if err != nil {
		return staged{}, fmt.Errorf("%w: %v", ErrMetadataParse, err)
	}
	if _, err := ParseMetadata(doc); err != nil {
		return staged{}, fmt.Errorf("%s: %w", p.MetadataPath, err)
	}

	s := staged{
		index:     p.Index,
		imagePath: a.ProcessedPath(outDir, p.Index),
		metaPath:  MetadataPath(outDir, p.Index),
	}
	if err := a.pre.Save(img, s.imagePath); err != nil {
		return staged{}, fmt.Errorf("%w: %s: %v", ErrWrite, s.imagePath, err)
	}
	if err := utils.CopyFile(p.MetadataPath, s.metaPath); err != nil {
		return staged{}, fmt.Errorf("%w: %s: %v", ErrWrite, s.metaPath, err)
	}
	return s, nil
}

func (a *Annotator) merge(path string, result types.Result) error {
	doc, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read back %s: %v", ErrWrite, path, err)
	}
	merged, err := MergeDetections(doc, result)
	if err != nil {
		return err
	}
	if err := utils.WriteFile(path, merged); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
	}
	return nil
}
