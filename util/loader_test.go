package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
}

func TestListRecordings(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.mp4"))
	touch(t, filepath.Join(dir, "a.MP4"))
	touch(t, filepath.Join(dir, "c.avi"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "nested.mp4", "inner.mp4"))

	paths, err := ListRecordings(dir, []string{".mp4"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.MP4"), filepath.Join(dir, "b.mp4")}, paths)

	paths, err = ListRecordings(dir, []string{".mp4", ".avi"})
	require.NoError(t, err)
	assert.Len(t, paths, 3)

	paths, err = ListRecordings(t.TempDir(), []string{".mp4"})
	require.NoError(t, err)
	assert.Empty(t, paths)

	_, err = ListRecordings(filepath.Join(dir, "missing"), []string{".mp4"})
	assert.Error(t, err)
}

func TestListFrameFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame-10.jpg", "frame-2.jpg", "frame-1.png", "readme.md"} {
		touch(t, filepath.Join(dir, name))
	}

	frames, err := ListFrameFiles(dir)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{frames[0].Frame, frames[1].Frame, frames[2].Frame})
	assert.Equal(t, filepath.Join(dir, "frame-1.png"), frames[0].Path)

	touch(t, filepath.Join(dir, "cover.jpg"))
	_, err = ListFrameFiles(dir)
	assert.Error(t, err)
}

func TestListSequenceDirs(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "cam2", "frame-0.jpg"))
	touch(t, filepath.Join(dir, "cam1", "0.jpg"))
	touch(t, filepath.Join(dir, "empty", "notes.txt"))
	touch(t, filepath.Join(dir, "clip.mp4"))

	dirs, err := ListSequenceDirs(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "cam1"), filepath.Join(dir, "cam2")}, dirs)
}

func TestStem(t *testing.T) {
	assert.Equal(t, "lobby", Stem("/data/cctv/lobby.mp4"))
	assert.Equal(t, "frames", Stem("frames"))
}
