package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/minescan"
	"github.com/menta2k/minescan/internal/config"
	"github.com/menta2k/minescan/pkg/evaluate"
	"github.com/menta2k/minescan/pkg/training"
)

const usage = `usage: %s <command> [flags]

commands:
  preprocess  -in dir -out dir           normalize every frame in a directory
  annotate    -raw dir -out dir          annotate a mission with detections
  evaluate    -images dir [-project dir] write prediction overlays for a random sample
  train       -data dataset.yaml         fine-tune the detector with the external trainer
  version                                print the version

Every command accepts -config path/to/config.json. Run "<command> -h" for its flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "preprocess":
		err = runPreprocess(ctx, args)
	case "annotate":
		err = runAnnotate(ctx, args)
	case "evaluate":
		err = runEvaluate(ctx, args)
	case "train":
		err = runTrain(ctx, args)
	case "version", "-version", "--version":
		fmt.Println(minescan.GetVersion())
	case "help", "-h", "--help":
		fmt.Fprintf(os.Stdout, usage, filepath.Base(os.Args[0]))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n"+usage, cmd, filepath.Base(os.Args[0]))
		os.Exit(2)
	}
	if err != nil {
		logrus.WithError(err).Error("Command failed")
		stop()
		os.Exit(1)
	}
}

// env is what every subcommand needs after flag parsing
type env struct {
	cfg    *config.Config
	logger *logrus.Logger
}

func setup(fs *flag.FlagSet, args []string, configPath *string) (*env, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	return &env{cfg: cfg, logger: logger}, nil
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "JSON config file (defaults are used when empty)")
	return fs, configPath
}

func newPipeline(e *env, withDetector bool) (*minescan.Pipeline, func() error, error) {
	closeFn := func() error { return nil }
	opts := []minescan.Option{
		minescan.WithLogger(e.logger),
		minescan.WithPreprocessOptions(preprocessOptions(e.cfg.Preprocess)),
	}
	if !withDetector {
		p, err := minescan.New(nil, opts...)
		return p, closeFn, err
	}

	det, closeFn, err := newDetector(e.cfg.Detector)
	if err != nil {
		return nil, closeFn, err
	}
	opts = append(opts, minescan.WithPostprocessors(postprocessors(e.cfg.Detector)...))
	p, err := minescan.New(det, opts...)
	return p, closeFn, err
}

func runPreprocess(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("preprocess")
	in := fs.String("in", "", "directory of raw frames")
	out := fs.String("out", "processed", "output directory")
	e, err := setup(fs, args, configPath)
	if err != nil {
		return err
	}
	if *in == "" {
		fs.Usage()
		return fmt.Errorf("-in is required")
	}

	p, _, err := newPipeline(e, false)
	if err != nil {
		return err
	}
	n, err := p.PreprocessDir(ctx, *in, *out)
	e.logger.WithFields(logrus.Fields{"written": n, "out": *out}).Info("Preprocessing finished")
	return err
}

func runAnnotate(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("annotate")
	raw := fs.String("raw", "", "mission directory with IMG_{i}.jpg and IMG_{i}.json")
	out := fs.String("out", "", "results directory")
	backend := fs.String("backend", "", "override detector backend: file|ollama|llamacpp|onnx|hotspot")
	e, err := setup(fs, args, configPath)
	if err != nil {
		return err
	}
	if *raw == "" || *out == "" {
		fs.Usage()
		return fmt.Errorf("-raw and -out are required")
	}
	if *backend != "" {
		e.cfg.Detector.Backend = *backend
		if err := e.cfg.Validate(); err != nil {
			return err
		}
	}

	p, closeFn, err := newPipeline(e, true)
	if err != nil {
		return err
	}
	defer closeFn()

	report, err := p.AnnotateMission(ctx, *raw, *out)
	if err != nil {
		return err
	}
	for _, f := range report.Failures {
		e.logger.WithField("index", f.Index).Error(f.Err)
	}
	e.logger.WithFields(logrus.Fields{
		"annotated": report.Count(),
		"total":     report.Total,
		"json":      filepath.Join(*out, "json"),
	}).Info("Updated metadata files")
	if len(report.Failures) > 0 {
		return fmt.Errorf("%d of %d images failed", len(report.Failures), report.Total)
	}
	return nil
}

func runEvaluate(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("evaluate")
	images := fs.String("images", "", "test image directory")
	project := fs.String("project", "", "output root (overrides config)")
	sample := fs.Int("n", 0, "number of images to sample (overrides config)")
	seed := fs.Int64("seed", 0, "random seed, 0 uses the config or the clock")
	e, err := setup(fs, args, configPath)
	if err != nil {
		return err
	}
	if *images == "" {
		fs.Usage()
		return fmt.Errorf("-images is required")
	}

	ec := evaluate.DefaultConfig()
	ec.SampleSize = e.cfg.Evaluate.SampleSize
	ec.Seed = e.cfg.Evaluate.Seed
	ec.Project = e.cfg.Evaluate.Project
	ec.NamePrefix = e.cfg.Evaluate.NamePrefix
	ec.StartIndex = e.cfg.Evaluate.StartIndex
	if *project != "" {
		ec.Project = *project
	}
	if *sample > 0 {
		ec.SampleSize = *sample
	}
	if *seed != 0 {
		ec.Seed = *seed
	}

	p, closeFn, err := newPipeline(e, true)
	if err != nil {
		return err
	}
	defer closeFn()

	samples, err := p.Evaluate(ctx, *images, ec)
	if err != nil {
		return err
	}
	e.logger.WithFields(logrus.Fields{"samples": len(samples), "project": ec.Project}).Info("Evaluation finished")
	return nil
}

func runTrain(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("train")
	data := fs.String("data", "", "dataset yaml (overrides config)")
	model := fs.String("model", "", "pretrained checkpoint (overrides config)")
	epochs := fs.Int("epochs", 0, "number of epochs (overrides config)")
	name := fs.String("name", "", "run name (overrides config)")
	e, err := setup(fs, args, configPath)
	if err != nil {
		return err
	}

	tc := training.Config{
		Command:   e.cfg.Training.Command,
		Model:     e.cfg.Training.Model,
		Data:      e.cfg.Training.Data,
		Epochs:    e.cfg.Training.Epochs,
		ImageSize: e.cfg.Training.ImageSize,
		Device:    e.cfg.Training.Device,
		Project:   e.cfg.Training.Project,
		Name:      e.cfg.Training.Name,
	}
	if *data != "" {
		tc.Data = *data
	}
	if *model != "" {
		tc.Model = *model
	}
	if *epochs > 0 {
		tc.Epochs = *epochs
	}
	if *name != "" {
		tc.Name = *name
	}

	l, err := training.New(tc, e.logger)
	if err != nil {
		return err
	}
	return l.Run(ctx)
}
