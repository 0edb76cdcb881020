package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Detector backends
const (
	BackendFile     = "file"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
	BackendONNX     = "onnx"
	BackendHotspot  = "hotspot"
)

// Config holds the application configuration
type Config struct {
	Preprocess PreprocessConfig `json:"preprocess"`
	Detector   DetectorConfig   `json:"detector"`
	Evaluate   EvaluateConfig   `json:"evaluate"`
	Training   TrainingConfig   `json:"training"`
	Logging    LoggingConfig    `json:"logging"`
}

// PreprocessConfig holds configuration for frame normalization
type PreprocessConfig struct {
	TargetWidth  int    `json:"target_width"`
	TargetHeight int    `json:"target_height"`
	StripEXIF    bool   `json:"strip_exif"`
	Grayscale    bool   `json:"grayscale"`
	AutoOrient   bool   `json:"auto_orient"`
	Format       string `json:"format"`
	Quality      int    `json:"quality"`
}

// DetectorConfig selects and configures the detection backend
type DetectorConfig struct {
	Backend             string  `json:"backend"`
	URL                 string  `json:"url"`
	Model               string  `json:"model"`
	ModelPath           string  `json:"model_path"`
	PredictionsPath     string  `json:"predictions_path"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	IoUThreshold        float64 `json:"iou_threshold"`
	MinArea             float64 `json:"min_area"`
}

// EvaluateConfig holds configuration for sampled evaluation runs
type EvaluateConfig struct {
	SampleSize int    `json:"sample_size"`
	Seed       int64  `json:"seed"`
	Project    string `json:"project"`
	NamePrefix string `json:"name_prefix"`
	StartIndex int    `json:"start_index"`
}

// TrainingConfig holds configuration for the external trainer
type TrainingConfig struct {
	Command   string `json:"command"`
	Model     string `json:"model"`
	Data      string `json:"data"`
	Epochs    int    `json:"epochs"`
	ImageSize int    `json:"image_size"`
	Device    string `json:"device"`
	Project   string `json:"project"`
	Name      string `json:"name"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Preprocess: PreprocessConfig{
			TargetWidth:  640,
			TargetHeight: 640,
			StripEXIF:    true,
			Grayscale:    true,
			Format:       "jpg",
			Quality:      95,
		},
		Detector: DetectorConfig{
			Backend:             BackendFile,
			URL:                 "http://localhost:11434",
			Model:               "llava",
			PredictionsPath:     "predictions.json",
			ConfidenceThreshold: 0.25,
			IoUThreshold:        0.7,
		},
		Evaluate: EvaluateConfig{
			SampleSize: 15,
			Project:    "predicted_images",
			NamePrefix: "image",
			StartIndex: 1,
		},
		Training: TrainingConfig{
			Command:   "yolo",
			Model:     "yolo11n.pt",
			Epochs:    100,
			ImageSize: 640,
			Device:    "cpu",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Fields missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads filename when it is non-empty, then applies .env and MINESCAN_* overrides
func Load(filename string) (*Config, error) {
	config := Default()
	if filename != "" {
		var err error
		if config, err = LoadFromFile(filename); err != nil {
			return nil, err
		}
	}

	// A missing .env file is not an error
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	return config, config.Validate()
}

// ApplyEnv overrides fields from MINESCAN_* environment variables
func (c *Config) ApplyEnv() error {
	c.Detector.Backend = getEnv("MINESCAN_DETECTOR_BACKEND", c.Detector.Backend)
	c.Detector.URL = getEnv("MINESCAN_DETECTOR_URL", c.Detector.URL)
	c.Detector.Model = getEnv("MINESCAN_DETECTOR_MODEL", c.Detector.Model)
	c.Detector.ModelPath = getEnv("MINESCAN_DETECTOR_MODEL_PATH", c.Detector.ModelPath)
	c.Detector.PredictionsPath = getEnv("MINESCAN_DETECTOR_PREDICTIONS", c.Detector.PredictionsPath)
	c.Training.Data = getEnv("MINESCAN_TRAINING_DATA", c.Training.Data)
	c.Logging.Level = getEnv("MINESCAN_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("MINESCAN_LOG_FORMAT", c.Logging.Format)

	var err error
	if c.Detector.ConfidenceThreshold, err = getEnvAsFloat("MINESCAN_DETECTOR_CONFIDENCE", c.Detector.ConfidenceThreshold); err != nil {
		return err
	}
	if c.Evaluate.Seed, err = getEnvAsInt64("MINESCAN_EVALUATE_SEED", c.Evaluate.Seed); err != nil {
		return err
	}
	return nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Preprocess.TargetWidth < 1 || c.Preprocess.TargetHeight < 1 {
		return fmt.Errorf("preprocess target size must be positive")
	}

	if c.Preprocess.Quality < 1 || c.Preprocess.Quality > 100 {
		return fmt.Errorf("preprocess.quality must be between 1 and 100")
	}

	switch c.Detector.Backend {
	case BackendFile:
		if c.Detector.PredictionsPath == "" {
			return fmt.Errorf("detector.predictions_path is required for the file backend")
		}
	case BackendOllama, BackendLlamaCpp:
		if c.Detector.URL == "" || c.Detector.Model == "" {
			return fmt.Errorf("detector.url and detector.model are required for the %s backend", c.Detector.Backend)
		}
	case BackendONNX:
		if c.Detector.ModelPath == "" {
			return fmt.Errorf("detector.model_path is required for the onnx backend")
		}
	case BackendHotspot:
	default:
		return fmt.Errorf("unknown detector backend: %q", c.Detector.Backend)
	}

	if c.Detector.ConfidenceThreshold < 0 || c.Detector.ConfidenceThreshold > 1 {
		return fmt.Errorf("detector.confidence_threshold must be between 0 and 1")
	}

	if c.Detector.IoUThreshold < 0 || c.Detector.IoUThreshold > 1 {
		return fmt.Errorf("detector.iou_threshold must be between 0 and 1")
	}

	if c.Detector.MinArea < 0 || c.Detector.MinArea > 1 {
		return fmt.Errorf("detector.min_area must be between 0 and 1")
	}

	if c.Evaluate.SampleSize < 1 {
		return fmt.Errorf("evaluate.sample_size must be positive")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "minescan", "config.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvAsInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return i, nil
}
