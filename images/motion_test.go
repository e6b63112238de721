package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-motion/config"
)

// blankFrame returns a BGR frame filled with a single gray level.
func blankFrame(width, height int, level float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(level, level, level, 0), height, width, gocv.MatTypeCV8UC3)
}

// fillRect sets every channel of the w x h rectangle at (x, y) to value.
func fillRect(m *gocv.Mat, x, y, w, h int, value uint8) {
	channels := m.Channels()
	for row := y; row < y+h; row++ {
		for col := x; col < x+w; col++ {
			for c := 0; c < channels; c++ {
				m.SetUCharAt(row, col*channels+c, value)
			}
		}
	}
}

// squareFrame returns a black frame with a white size x size square at (x, y).
func squareFrame(width, height, x, y, size int) gocv.Mat {
	m := blankFrame(width, height, 0)
	fillRect(&m, x, y, size, size, 255)
	return m
}

func TestForegroundMaskShape(t *testing.T) {
	fg := NewForegroundDetector(config.DefaultDetection())
	defer fg.Close()

	for i := 0; i < 12; i++ {
		frame := squareFrame(160, 120, 5+i*8, 40, 30)
		mask, err := fg.Observe(frame)
		require.NoError(t, err)

		assert.Equal(t, frame.Rows(), mask.Rows())
		assert.Equal(t, frame.Cols(), mask.Cols())
		assert.True(t, IsBinaryMask(mask), "frame %d mask must only hold 0 and 255", i)
		frame.Close()
	}
	assert.Equal(t, 4, fg.HistoryLen())
}

func TestForegroundLeavesFrameUntouched(t *testing.T) {
	fg := NewForegroundDetector(config.DefaultDetection())
	defer fg.Close()

	for i := 0; i < 5; i++ {
		frame := squareFrame(160, 120, 10+i*10, 30, 40)
		before := ComputeMatChecksum(frame)
		_, err := fg.Observe(frame)
		require.NoError(t, err)
		assert.Equal(t, before, ComputeMatChecksum(frame))
		frame.Close()
	}
}

func TestLongDiffNeedsGapFrames(t *testing.T) {
	cfg := config.DefaultDetection()
	// Nothing the background model emits exceeds 255, so only the long
	// interval difference can mark pixels.
	cfg.ThresholdValue = 255
	cfg.LongDiffGap = 3

	fg := NewForegroundDetector(cfg)
	defer fg.Close()

	frames := []gocv.Mat{
		blankFrame(120, 120, 0),
		blankFrame(120, 120, 0),
		squareFrame(120, 120, 45, 45, 30),
		squareFrame(120, 120, 45, 45, 30),
	}
	defer func() {
		for _, f := range frames {
			f.Close()
		}
	}()

	for i := 0; i < 3; i++ {
		mask, err := fg.Observe(frames[i])
		require.NoError(t, err)
		assert.Zero(t, gocv.CountNonZero(mask), "no frame %d steps back yet at frame %d", cfg.LongDiffGap, i)
	}

	// Frame 3 is compared with frame 0.
	mask, err := fg.Observe(frames[3])
	require.NoError(t, err)
	assert.Positive(t, gocv.CountNonZero(mask))
	assert.True(t, IsBinaryMask(mask))
}

func TestForegroundRejectsBadFrames(t *testing.T) {
	fg := NewForegroundDetector(config.DefaultDetection())
	defer fg.Close()

	empty := gocv.NewMat()
	defer empty.Close()
	_, err := fg.Observe(empty)
	assert.Error(t, err)

	first := blankFrame(64, 48, 10)
	defer first.Close()
	_, err = fg.Observe(first)
	require.NoError(t, err)

	resized := blankFrame(32, 24, 10)
	defer resized.Close()
	_, err = fg.Observe(resized)
	assert.Error(t, err)
}

func TestForegroundGrayscaleInput(t *testing.T) {
	fg := NewForegroundDetector(config.DefaultDetection())
	defer fg.Close()

	gray := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(50, 0, 0, 0), 48, 64, gocv.MatTypeCV8UC1)
	defer gray.Close()

	mask, err := fg.Observe(gray)
	require.NoError(t, err)
	assert.Equal(t, 48, mask.Rows())
	assert.Equal(t, 64, mask.Cols())
}
