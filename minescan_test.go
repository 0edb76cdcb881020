package minescan

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/minescan/pkg/detection"
	"github.com/menta2k/minescan/pkg/evaluate"
	"github.com/menta2k/minescan/pkg/mission"
	"github.com/menta2k/minescan/pkg/preprocess"
	"github.com/menta2k/minescan/pkg/types"
)

func fixedDetector(conf float64) detection.Detector {
	return detection.Func(func(ctx context.Context, paths []string) ([]types.Result, error) {
		results := make([]types.Result, len(paths))
		for i, p := range paths {
			results[i] = types.Result{Path: p, Detections: []types.Detection{
				{Box: types.Box{XMin: 0.1, YMin: 0.1, XMax: 0.2, YMax: 0.2}, Confidence: conf},
			}}
		}
		return results, nil
	})
}

func writeFrame(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, imaging.Save(imaging.New(w, h, color.NRGBA{200, 120, 40, 255}), path))
}

func quiet() Option {
	logger, _ := logtest.NewNullLogger()
	return WithLogger(logger)
}

func TestNewOptions(t *testing.T) {
	_, err := New(fixedDetector(0.5), WithPreprocessOptions(preprocess.Options{TargetWidth: 0, TargetHeight: 10}))
	require.ErrorIs(t, err, preprocess.ErrInvalidSize)

	p, err := New(fixedDetector(0.5), quiet())
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, Version, GetVersion())
}

func TestNormalize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.png")
	writeFrame(t, path, 120, 80)

	p, err := New(nil, quiet())
	require.NoError(t, err)
	img, err := p.Normalize(path)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 640, 640), img.Bounds())
	require.True(t, preprocess.IsGray(img))
}

func TestPreprocessDir(t *testing.T) {
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "processed")
	writeFrame(t, filepath.Join(in, "a.jpg"), 50, 40)
	writeFrame(t, filepath.Join(in, "b.png"), 40, 50)
	require.NoError(t, os.WriteFile(filepath.Join(in, "broken.jpg"), []byte("nope"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(in, "notes.txt"), []byte("skip"), 0o644))

	opts := preprocess.DefaultOptions()
	opts.TargetWidth, opts.TargetHeight = 32, 16
	p, err := New(nil, quiet(), WithPreprocessOptions(opts))
	require.NoError(t, err)

	n, err := p.PreprocessDir(context.Background(), in, out)
	require.ErrorIs(t, err, preprocess.ErrImageLoad)
	require.Equal(t, 2, n)

	img, err := imaging.Open(filepath.Join(out, "b.jpg"))
	require.NoError(t, err)
	require.Equal(t, 32, img.Bounds().Dx())
	require.Equal(t, 16, img.Bounds().Dy())
	require.FileExists(t, filepath.Join(out, "a.jpg"))
}

func TestAnnotateMissionWithPostprocessors(t *testing.T) {
	raw, out := t.TempDir(), t.TempDir()
	writeFrame(t, filepath.Join(raw, "IMG_1.jpg"), 30, 20)
	require.NoError(t, os.WriteFile(filepath.Join(raw, "IMG_1.json"), []byte(`{"sensor":"thermal"}`), 0o644))

	p, err := New(fixedDetector(0.1), quiet(), WithPostprocessors(detection.NewScoreFilter(0.25)))
	require.NoError(t, err)

	report, err := p.AnnotateMission(context.Background(), raw, out)
	require.NoError(t, err)
	require.Equal(t, 1, report.Count())

	data, err := os.ReadFile(mission.MetadataPath(out, 1))
	require.NoError(t, err)
	require.JSONEq(t, `{"sensor":"thermal","bounding_boxes":[],"probabilities":[]}`, string(data))
}

func TestEvaluate(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"x.jpg", "y.jpg", "z.jpg"} {
		writeFrame(t, filepath.Join(dir, name), 40, 40)
	}

	p, err := New(fixedDetector(0.8), quiet())
	require.NoError(t, err)

	cfg := evaluate.DefaultConfig()
	cfg.SampleSize = 2
	cfg.Seed = 1
	cfg.Project = t.TempDir()
	samples, err := p.Evaluate(context.Background(), dir, cfg)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	cfg.SampleSize = 0
	_, err = p.Evaluate(context.Background(), dir, cfg)
	require.Error(t, err)
}
