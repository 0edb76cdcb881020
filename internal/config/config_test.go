package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 640, cfg.Preprocess.TargetWidth)
	require.Equal(t, BackendFile, cfg.Detector.Backend)
	require.Equal(t, 15, cfg.Evaluate.SampleSize)
	require.Equal(t, 100, cfg.Training.Epochs)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Detector.Backend = BackendOllama
	cfg.Detector.Model = "minicpm-v"
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestLoadFromFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"detector": {"backend": "hotspot"}}`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, BackendHotspot, cfg.Detector.Backend)
	require.Equal(t, 0.25, cfg.Detector.ConfidenceThreshold)
	require.Equal(t, 640, cfg.Preprocess.TargetHeight)

	require.NoError(t, os.WriteFile(path, []byte(`{"detector": `), 0o644))
	_, err = LoadFromFile(path)
	require.Error(t, err)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("MINESCAN_DETECTOR_BACKEND", BackendLlamaCpp)
	t.Setenv("MINESCAN_DETECTOR_URL", "http://gpu-box:8080")
	t.Setenv("MINESCAN_DETECTOR_CONFIDENCE", "0.4")
	t.Setenv("MINESCAN_LOG_LEVEL", "debug")
	t.Setenv("MINESCAN_EVALUATE_SEED", "99")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	require.Equal(t, BackendLlamaCpp, cfg.Detector.Backend)
	require.Equal(t, "http://gpu-box:8080", cfg.Detector.URL)
	require.Equal(t, 0.4, cfg.Detector.ConfidenceThreshold)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, int64(99), cfg.Evaluate.Seed)

	t.Setenv("MINESCAN_DETECTOR_CONFIDENCE", "high")
	require.Error(t, Default().ApplyEnv())
}

func TestLoad(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile(".env", []byte("MINESCAN_DETECTOR_BACKEND=hotspot\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("MINESCAN_DETECTOR_BACKEND") })

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, BackendHotspot, cfg.Detector.Backend)

	require.NoError(t, os.WriteFile("bad.json", []byte(`{"detector": {"backend": "tensorflow"}}`), 0o644))
	t.Setenv("MINESCAN_DETECTOR_BACKEND", "")
	_, err = Load("bad.json")
	require.Error(t, err)
}

func TestLoadMalformedDotEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile(".env", []byte("BROKEN-KEY=1\n"), 0o644))

	_, err := Load("")
	require.ErrorContains(t, err, ".env")
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"zero width":        func(c *Config) { c.Preprocess.TargetWidth = 0 },
		"quality":           func(c *Config) { c.Preprocess.Quality = 101 },
		"unknown backend":   func(c *Config) { c.Detector.Backend = "tensorflow" },
		"file without path": func(c *Config) { c.Detector.PredictionsPath = "" },
		"ollama without model": func(c *Config) {
			c.Detector.Backend = BackendOllama
			c.Detector.Model = ""
		},
		"onnx without model": func(c *Config) { c.Detector.Backend = BackendONNX },
		"confidence":         func(c *Config) { c.Detector.ConfidenceThreshold = 1.5 },
		"iou":                func(c *Config) { c.Detector.IoUThreshold = -0.1 },
		"min area":           func(c *Config) { c.Detector.MinArea = 2 },
		"sample size":        func(c *Config) { c.Evaluate.SampleSize = 0 },
		"log format":         func(c *Config) { c.Logging.Format = "xml" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestGetConfigPath(t *testing.T) {
	require.Equal(t, "config.json", filepath.Base(GetConfigPath()))
}
