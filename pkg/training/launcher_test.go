package training

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func TestArgs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Data = "data/landmines.yaml"
	cfg.Project = "runs"
	cfg.Name = "subset_20"
	cfg.Extra = []string{"batch=8"}

	l, err := New(cfg, nil)
	require.NoError(t, err)
	require.Equal(t, []string{
		"detect", "train",
		"model=yolo11n.pt",
		"data=data/landmines.yaml",
		"epochs=100",
		"imgsz=640",
		"device=cpu",
		"project=runs",
		"name=subset_20",
		"batch=8",
	}, l.Args())
}

func TestValidate(t *testing.T) {
	_, err := New(DefaultConfig(), nil)
	require.ErrorIs(t, err, ErrNoDataset)

	for _, mutate := range []func(*Config){
		func(c *Config) { c.Command = "" },
		func(c *Config) { c.Model = "" },
		func(c *Config) { c.Epochs = 0 },
		func(c *Config) { c.ImageSize = 16 },
	} {
		cfg := DefaultConfig()
		cfg.Data = "d.yaml"
		mutate(&cfg)
		require.Error(t, cfg.Validate())
	}
}

// fakeTrainer writes a shell script that echoes its arguments and exits with code
func fakeTrainer(t *testing.T, code string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "yolo")
	script := "#!/bin/sh\necho \"$@\"\nexit " + code + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Command = fakeTrainer(t, "0")
	cfg.Data = "landmines.yaml"

	logger, hook := logtest.NewNullLogger()
	l, err := New(cfg, logger)
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	require.NoError(t, l.WithOutput(&stdout, &stderr).Run(context.Background()))
	require.Equal(t, "detect train model=yolo11n.pt data=landmines.yaml epochs=100 imgsz=640 device=cpu\n", stdout.String())
	require.Len(t, hook.AllEntries(), 2)
}

func TestRunFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Command = fakeTrainer(t, "3")
	cfg.Data = "landmines.yaml"
	l, err := New(cfg, nil)
	require.NoError(t, err)
	var out bytes.Buffer
	require.Error(t, l.WithOutput(&out, &out).Run(context.Background()))

	cfg.Command = filepath.Join(t.TempDir(), "no-such-trainer")
	l, err = New(cfg, nil)
	require.NoError(t, err)
	require.Error(t, l.Run(context.Background()))
}
