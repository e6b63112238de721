package main

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-motion/config"
)

func parse(t *testing.T, args ...string) (*flag.FlagSet, *options) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "")
	fs.StringVar(&opts.input, "input", "", "")
	fs.StringVar(&opts.output, "output", "", "")
	fs.IntVar(&opts.workers, "workers", 0, "")
	fs.BoolVar(&opts.replace, "replace", false, "")
	fs.StringVar(&opts.extensions, "ext", "", "")
	fs.Float64Var(&opts.sequenceFPS, "sequence-fps", 0, "")
	fs.BoolVar(&opts.snapshots, "snapshots", false, "")
	require.NoError(t, fs.Parse(args))
	return fs, opts
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "motion.yaml")
	require.NoError(t, os.WriteFile(path, []byte("input_dir: /yaml/in\nworkers: 2\n"), 0o600))

	fs, opts := parse(t, "-config", path, "-workers", "4", "-ext", "MP4, avi,.mp4", "-snapshots")
	cfg, err := loadConfig(fs, opts)
	require.NoError(t, err)

	assert.Equal(t, "/yaml/in", cfg.InputDir, "unset flags keep configured values")
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, []string{".mp4", ".avi"}, cfg.Extensions)
	assert.True(t, cfg.Snapshots.Enabled)
	assert.Equal(t, config.Default().OutputDir, cfg.OutputDir)
}

func TestLoadConfigInvalidFlag(t *testing.T) {
	fs, opts := parse(t, "-workers", "0")
	_, err := loadConfig(fs, opts)
	assert.ErrorContains(t, err, "workers")
}

func TestRunExitCodes(t *testing.T) {
	var stderr bytes.Buffer
	ctx := context.Background()

	missing := filepath.Join(t.TempDir(), "missing")
	assert.Equal(t, 1, run(ctx, []string{"-input", missing}, &stderr))
	assert.Contains(t, stderr.String(), "cannot list recordings")

	assert.Equal(t, 1, run(ctx, []string{"-input", t.TempDir(), "-workers", "-1"}, &stderr))

	// An empty input directory is not an error.
	out := filepath.Join(t.TempDir(), "out")
	assert.Equal(t, 0, run(ctx, []string{"-input", t.TempDir(), "-output", out}, &stderr))

	// A broken recording is reported but does not change the exit code.
	in := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(in, "broken.mp4"), []byte("not a video"), 0o600))
	stderr.Reset()
	assert.Equal(t, 0, run(ctx, []string{"-input", in, "-output", out}, &stderr))
	assert.Contains(t, stderr.String(), "recording failed")

	// Writing trimmed copies over the recordings is a configuration error.
	assert.Equal(t, 1, run(ctx, []string{"-input", in, "-output", in}, &stderr))

	// Recordings whose outputs collide are skipped, not overwritten.
	clash := t.TempDir()
	for _, name := range []string{"cam.mp4", "cam.MP4"} {
		require.NoError(t, os.WriteFile(filepath.Join(clash, name), []byte("not a video"), 0o600))
	}
	stderr.Reset()
	assert.Equal(t, 0, run(ctx, []string{"-input", clash, "-output", out}, &stderr))
	assert.Contains(t, stderr.String(), "recording skipped")
	assert.Contains(t, stderr.String(), "output conflict")

	assert.Equal(t, 2, run(ctx, []string{"-no-such-flag"}, &stderr))
}

func TestListInputs(t *testing.T) {
	in := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(in, "a.mp4"), nil, 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(in, "cam1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(in, "cam1", "frame-0.jpg"), nil, 0o600))

	cfg := config.Default()
	cfg.InputDir = in
	paths, err := listInputs(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(in, "a.mp4")}, paths)

	cfg.SequenceFPS = 5
	paths, err = listInputs(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(in, "a.mp4"), filepath.Join(in, "cam1")}, paths)

	cfg.InputDir = filepath.Join(in, "a.mp4")
	_, err = listInputs(cfg)
	assert.Error(t, err)
}
