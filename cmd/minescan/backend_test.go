package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/minescan/internal/config"
	"github.com/menta2k/minescan/pkg/detection"
)

func TestNewDetector(t *testing.T) {
	preds := filepath.Join(t.TempDir(), "predictions.json")
	require.NoError(t, os.WriteFile(preds, []byte(`{"predictions": {}}`), 0o644))

	cfg := config.Default().Detector
	cfg.PredictionsPath = preds
	det, closeFn, err := newDetector(cfg)
	require.NoError(t, err)
	require.IsType(t, &detection.FileDetector{}, det)
	require.NoError(t, closeFn())

	cfg.Backend = config.BackendHotspot
	det, _, err = newDetector(cfg)
	require.NoError(t, err)
	require.IsType(t, &detection.HotspotDetector{}, det)

	cfg.Backend = config.BackendOllama
	det, _, err = newDetector(cfg)
	require.NoError(t, err)
	require.IsType(t, &detection.VisionDetector{}, det)

	cfg.Backend = config.BackendLlamaCpp
	cfg.URL = "localhost:8080"
	_, _, err = newDetector(cfg)
	require.Error(t, err)

	cfg.Backend = "tensorflow"
	_, closeFn, err = newDetector(cfg)
	require.Error(t, err)
	require.NotNil(t, closeFn)

	cfg.Backend = config.BackendFile
	cfg.PredictionsPath = filepath.Join(t.TempDir(), "missing.json")
	_, _, err = newDetector(cfg)
	require.Error(t, err)
}

func TestPostprocessors(t *testing.T) {
	cfg := config.Default().Detector
	require.Len(t, postprocessors(cfg), 2)

	cfg.MinArea = 0.001
	require.Len(t, postprocessors(cfg), 3)

	cfg.ConfidenceThreshold, cfg.IoUThreshold, cfg.MinArea = 0, 0, 0
	require.Empty(t, postprocessors(cfg))
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger(config.LoggingConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	require.Equal(t, logrus.DebugLevel, logger.GetLevel())
	require.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger, err = newLogger(config.LoggingConfig{Level: "warn", Format: "text"})
	require.NoError(t, err)
	require.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	_, err = newLogger(config.LoggingConfig{Level: "loud"})
	require.Error(t, err)
}

func TestPreprocessOptions(t *testing.T) {
	opts := preprocessOptions(config.Default().Preprocess)
	require.Equal(t, 640, opts.TargetWidth)
	require.True(t, opts.Grayscale)
	require.NoError(t, opts.Validate())
}
