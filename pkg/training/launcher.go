// Package training launches fine-tuning of the pretrained detector through
// the external Ultralytics command line. The training loop itself runs in
// that process; this package only assembles and supervises the invocation.
package training

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/sirupsen/logrus"
)

// ErrNoDataset is returned when no dataset description is configured
var ErrNoDataset = errors.New("dataset yaml is required")

// Config describes one training run
type Config struct {
	// Command is the trainer executable, resolved through PATH
	Command string
	// Model is the pretrained checkpoint to start from
	Model string
	// Data is the dataset yaml listing train/val image folders and class names
	Data      string
	Epochs    int
	ImageSize int
	Device    string
	// Project and Name select the run directory, both optional
	Project string
	Name    string
	// Extra holds additional key=value arguments passed through unchanged
	Extra []string
}

// DefaultConfig returns the settings the landmine model was trained with
func DefaultConfig() Config {
	return Config{
		Command:   "yolo",
		Model:     "yolo11n.pt",
		Epochs:    100,
		ImageSize: 640,
		Device:    "cpu",
	}
}

// Validate checks the configuration without touching the filesystem
func (c Config) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("trainer command must be set")
	}
	if c.Model == "" {
		return fmt.Errorf("model must be set")
	}
	if c.Data == "" {
		return ErrNoDataset
	}
	if c.Epochs < 1 {
		return fmt.Errorf("epochs must be positive")
	}
	if c.ImageSize < 32 {
		return fmt.Errorf("image size must be at least 32")
	}
	return nil
}

// Launcher runs the trainer as a child process
type Launcher struct {
	cfg    Config
	logger logrus.FieldLogger
	stdout io.Writer
	stderr io.Writer
}

// New creates a launcher that forwards the trainer output to the current process
func New(cfg Config, logger logrus.FieldLogger) (*Launcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Launcher{cfg: cfg, logger: logger, stdout: os.Stdout, stderr: os.Stderr}, nil
}

// WithOutput redirects the trainer's stdout and stderr
func (l *Launcher) WithOutput(stdout, stderr io.Writer) *Launcher {
	l.stdout = stdout
	l.stderr = stderr
	return l
}

// Args returns the trainer arguments, without the command itself
func (l *Launcher) Args() []string {
	args := []string{
		"detect", "train",
		"model=" + l.cfg.Model,
		"data=" + l.cfg.Data,
		"epochs=" + strconv.Itoa(l.cfg.Epochs),
		"imgsz=" + strconv.Itoa(l.cfg.ImageSize),
	}
	if l.cfg.Device != "" {
		args = append(args, "device="+l.cfg.Device)
	}
	if l.cfg.Project != "" {
		args = append(args, "project="+l.cfg.Project)
	}
	if l.cfg.Name != "" {
		args = append(args, "name="+l.cfg.Name)
	}
	return append(args, l.cfg.Extra...)
}

// Run starts the trainer and waits for it to exit. Cancelling ctx kills the process.
func (l *Launcher) Run(ctx context.Context) error {
	path, err := exec.LookPath(l.cfg.Command)
	if err != nil {
		return fmt.Errorf("trainer not found: %w", err)
	}

	args := l.Args()
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = l.stdout
	cmd.Stderr = l.stderr

	log := l.logger.WithFields(logrus.Fields{"command": path, "model": l.cfg.Model, "data": l.cfg.Data})
	log.WithField("args", args).Info("Starting training")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("training failed: %w", err)
	}
	log.Info("Training finished")
	return nil
}
