// Package video provides gocv frame sources and sinks for recordings: video
// files, directories of numbered images, and output files that optionally
// replace the recording they were trimmed from.
package video

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-motion/motion"
)

// Source is a recording opened for reading. Frames returned by Read are owned
// by the caller.
type Source interface {
	Read() (*gocv.Mat, bool, error)
	FPS() float64
	Width() int
	Height() int
	Close() error
}

// FileSource reads the frames of a video file in order.
type FileSource struct {
	path       string
	capture    *gocv.VideoCapture
	fps        float64
	width      int
	height     int
	frameCount int
}

// OpenFile opens the video file at path.
//
// Returns:
//   - *FileSource: The opened source. Always call Close().
//   - error: motion.ErrSourceUnavailable if the file cannot be opened.
func OpenFile(path string) (*FileSource, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, errors.Wrapf(motion.ErrSourceUnavailable, "%s: %v", path, err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, errors.Wrapf(motion.ErrSourceUnavailable, "%s: not opened", path)
	}

	return &FileSource{
		path:       path,
		capture:    capture,
		fps:        capture.Get(gocv.VideoCaptureFPS),
		width:      int(capture.Get(gocv.VideoCaptureFrameWidth)),
		height:     int(capture.Get(gocv.VideoCaptureFrameHeight)),
		frameCount: int(capture.Get(gocv.VideoCaptureFrameCount)),
	}, nil
}

// Read returns the next frame as a new Mat. ok is false once the decoder has
// no more frames.
func (s *FileSource) Read() (*gocv.Mat, bool, error) {
	frame := gocv.NewMat()
	if ok := s.capture.Read(&frame); !ok || frame.Empty() {
		_ = frame.Close()
		return nil, false, nil
	}
	return &frame, true, nil
}

// FPS returns the frame rate stored in the container.
func (s *FileSource) FPS() float64 { return s.fps }

// Width returns the frame width in pixels.
func (s *FileSource) Width() int { return s.width }

// Height returns the frame height in pixels.
func (s *FileSource) Height() int { return s.height }

// FrameCount returns the frame count stored in the container. It is an
// estimate for some codecs.
func (s *FileSource) FrameCount() int { return s.frameCount }

// Path returns the path the source was opened from.
func (s *FileSource) Path() string { return s.path }

// Close releases the decoder.
func (s *FileSource) Close() error {
	return s.capture.Close()
}
