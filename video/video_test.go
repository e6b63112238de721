package video

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-motion/motion"
)

const testCodec = "MJPG"

func levelFrame(width, height int, level float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(level, level, level, 0), height, width, gocv.MatTypeCV8UC3)
}

// writeVideo writes n frames to path or skips the test when the codec is not
// available in the local OpenCV build.
func writeVideo(t *testing.T, path string, n int) {
	t.Helper()
	sink, err := CreateFile(path, testCodec, 10, 64, 48)
	if err != nil {
		t.Skipf("video writer unavailable: %v", err)
	}
	for i := 0; i < n; i++ {
		frame := levelFrame(64, 48, float64(i*10))
		require.NoError(t, sink.Write(&frame))
		frame.Close()
	}
	assert.Equal(t, n, sink.Written())
	require.NoError(t, sink.Close())
}

func readAll(t *testing.T, src Source) int {
	t.Helper()
	var n int
	for {
		frame, ok, err := src.Read()
		require.NoError(t, err)
		if !ok {
			return n
		}
		assert.Equal(t, src.Width(), frame.Cols())
		assert.Equal(t, src.Height(), frame.Rows())
		frame.Close()
		n++
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.avi")
	writeVideo(t, path, 12)

	src, err := OpenFile(path)
	require.NoError(t, err)
	defer src.Close()

	assert.InDelta(t, 10.0, src.FPS(), 0.01)
	assert.Equal(t, 64, src.Width())
	assert.Equal(t, 48, src.Height())
	assert.Equal(t, path, src.Path())
	assert.Equal(t, 12, readAll(t, src))

	// Exhausted sources stay exhausted.
	_, ok, err := src.Read()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenFileUnavailable(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing.mp4"))
	assert.ErrorIs(t, err, motion.ErrSourceUnavailable)

	garbage := filepath.Join(t.TempDir(), "garbage.mp4")
	require.NoError(t, os.WriteFile(garbage, []byte("not a video"), 0o600))
	_, err = OpenFile(garbage)
	assert.ErrorIs(t, err, motion.ErrSourceUnavailable)
}

func TestSequence(t *testing.T) {
	dir := t.TempDir()
	levels := map[int]float64{1: 10, 2: 20, 10: 100}
	for n, level := range levels {
		frame := levelFrame(32, 24, level)
		require.True(t, gocv.IMWrite(filepath.Join(dir, fmt.Sprintf("frame-%d.png", n)), frame))
		frame.Close()
	}

	src, err := OpenSequence(dir, 5)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, 3, src.Len())
	assert.Equal(t, 5.0, src.FPS())
	assert.Equal(t, 32, src.Width())
	assert.Equal(t, 24, src.Height())

	var got []uint8
	for {
		frame, ok, err := src.Read()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, frame.GetUCharAt(0, 0))
		frame.Close()
	}
	assert.Equal(t, []uint8{10, 20, 100}, got, "frames are read in frame number order")
}

func TestSequenceErrors(t *testing.T) {
	_, err := OpenSequence(t.TempDir(), 5)
	assert.ErrorIs(t, err, motion.ErrSourceUnavailable)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "frame-0.jpg"), []byte("broken"), 0o600))
	_, err = OpenSequence(dir, 5)
	assert.ErrorIs(t, err, motion.ErrSourceUnavailable)

	// A frame with a different size fails the read.
	dir = t.TempDir()
	small, large := levelFrame(16, 16, 0), levelFrame(32, 32, 0)
	defer small.Close()
	defer large.Close()
	require.True(t, gocv.IMWrite(filepath.Join(dir, "frame-0.png"), small))
	require.True(t, gocv.IMWrite(filepath.Join(dir, "frame-1.png"), large))

	src, err := OpenSequence(dir, 5)
	require.NoError(t, err)
	frame, ok, err := src.Read()
	require.NoError(t, err)
	require.True(t, ok)
	frame.Close()
	_, _, err = src.Read()
	assert.Error(t, err)
}

func TestReplaceSink(t *testing.T) {
	t.Run("replaces target when frames were written", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "cam.avi")
		writeVideo(t, target, 20)

		sink, err := NewReplaceSink(target, testCodec, 10, 64, 48)
		require.NoError(t, err)
		assert.FileExists(t, TempPath(target))
		for i := 0; i < 4; i++ {
			frame := levelFrame(64, 48, 200)
			require.NoError(t, sink.Write(&frame))
			frame.Close()
		}
		require.NoError(t, sink.Close())
		require.NoError(t, sink.Close(), "closing twice is harmless")

		assert.NoFileExists(t, TempPath(target))
		src, err := OpenFile(target)
		require.NoError(t, err)
		defer src.Close()
		assert.Equal(t, 4, readAll(t, src))
	})

	t.Run("keeps target when nothing was written", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "cam.avi")
		writeVideo(t, target, 5)
		before, err := os.ReadFile(target)
		require.NoError(t, err)

		sink, err := NewReplaceSink(target, testCodec, 10, 64, 48)
		require.NoError(t, err)
		require.NoError(t, sink.Close())

		after, err := os.ReadFile(target)
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assert.NoFileExists(t, TempPath(target))
	})

	t.Run("abort keeps target", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "cam.avi")
		writeVideo(t, target, 5)

		sink, err := NewReplaceSink(target, testCodec, 10, 64, 48)
		require.NoError(t, err)
		frame := levelFrame(64, 48, 0)
		require.NoError(t, sink.Write(&frame))
		frame.Close()
		require.NoError(t, sink.Abort())
		require.NoError(t, sink.Close())

		assert.NoFileExists(t, TempPath(target))
		src, err := OpenFile(target)
		require.NoError(t, err)
		defer src.Close()
		assert.Equal(t, 5, readAll(t, src))
	})
}

func TestTempPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/data", ".lobby.partial.mp4"), TempPath("/data/lobby.mp4"))
}
