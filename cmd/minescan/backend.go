package main

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/minescan/internal/config"
	"github.com/menta2k/minescan/pkg/client"
	"github.com/menta2k/minescan/pkg/detection"
	"github.com/menta2k/minescan/pkg/llamacpp"
	"github.com/menta2k/minescan/pkg/ollama"
	"github.com/menta2k/minescan/pkg/preprocess"
)

// newLogger builds the process logger from the logging section
func newLogger(cfg config.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// newDetector creates the configured backend. The returned close function
// releases backend resources and is never nil.
func newDetector(cfg config.DetectorConfig) (detection.Detector, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendFile:
		preds, err := detection.LoadPredictionFile(cfg.PredictionsPath)
		if err != nil {
			return nil, noop, err
		}
		return detection.NewFileDetector(preds), noop, nil

	case config.BackendOllama, config.BackendLlamaCpp:
		var (
			visionClient client.VisionClient
			err          error
		)
		if cfg.Backend == config.BackendOllama {
			visionClient, err = ollama.NewClient(cfg.URL)
		} else {
			visionClient, err = llamacpp.NewClient(cfg.URL)
		}
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create %s client: %w", cfg.Backend, err)
		}
		return detection.NewVisionDetector(visionClient, cfg.Model), noop, nil

	case config.BackendONNX:
		yolo := detection.DefaultYOLOConfig()
		yolo.ModelPath = cfg.ModelPath
		if cfg.ConfidenceThreshold > 0 {
			yolo.ConfThreshold = cfg.ConfidenceThreshold
		}
		if cfg.IoUThreshold > 0 {
			yolo.IoUThreshold = cfg.IoUThreshold
		}
		d, err := detection.NewONNXDetector(yolo)
		if err != nil {
			return nil, noop, err
		}
		return d, d.Close, nil

	case config.BackendHotspot:
		return detection.NewHotspotDetector(), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown detector backend: %q", cfg.Backend)
}

// postprocessors turns the detector thresholds into result filters
func postprocessors(cfg config.DetectorConfig) []detection.Postprocessor {
	var post []detection.Postprocessor
	if cfg.ConfidenceThreshold > 0 {
		post = append(post, detection.NewScoreFilter(cfg.ConfidenceThreshold))
	}
	if cfg.MinArea > 0 {
		post = append(post, detection.NewAreaFilter(cfg.MinArea))
	}
	if cfg.IoUThreshold > 0 {
		post = append(post, detection.NewNMS(cfg.IoUThreshold))
	}
	return post
}

func preprocessOptions(cfg config.PreprocessConfig) preprocess.Options {
	return preprocess.Options{
		TargetWidth:  cfg.TargetWidth,
		TargetHeight: cfg.TargetHeight,
		StripEXIF:    cfg.StripEXIF,
		Grayscale:    cfg.Grayscale,
		AutoOrient:   cfg.AutoOrient,
		Format:       cfg.Format,
		Quality:      cfg.Quality,
	}
}
