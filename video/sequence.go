package video

import (
	"os"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-motion/motion"
	"github.com/nvr-ai/go-motion/util"
)

// SequenceSource reads a directory of numbered frame images, such as
// frame-0.jpg, frame-1.jpg, ..., in frame number order.
type SequenceSource struct {
	dir    string
	files  []util.FrameFile
	next   int
	fps    float64
	width  int
	height int
}

// OpenSequence opens the image sequence in dir. Image files carry no timing,
// so the frame rate must be supplied.
//
// Returns:
//   - *SequenceSource: The opened source.
//   - error: motion.ErrSourceUnavailable if dir holds no readable frames.
func OpenSequence(dir string, fps float64) (*SequenceSource, error) {
	files, err := util.ListFrameFiles(dir)
	if err != nil {
		return nil, errors.Wrapf(motion.ErrSourceUnavailable, "%s: %v", dir, err)
	}
	if len(files) == 0 {
		return nil, errors.Wrapf(motion.ErrSourceUnavailable, "%s: no frame images", dir)
	}

	first, err := decode(files[0].Path)
	if err != nil {
		return nil, errors.Wrapf(motion.ErrSourceUnavailable, "%s: %v", dir, err)
	}
	defer first.Close()

	return &SequenceSource{
		dir:    dir,
		files:  files,
		fps:    fps,
		width:  first.Cols(),
		height: first.Rows(),
	}, nil
}

// Read decodes the next image.
func (s *SequenceSource) Read() (*gocv.Mat, bool, error) {
	if s.next >= len(s.files) {
		return nil, false, nil
	}
	file := s.files[s.next]
	s.next++

	frame, err := decode(file.Path)
	if err != nil {
		return nil, false, err
	}
	if frame.Cols() != s.width || frame.Rows() != s.height {
		_ = frame.Close()
		return nil, false, errors.Errorf("%s is %dx%d, sequence is %dx%d",
			file.Path, frame.Cols(), frame.Rows(), s.width, s.height)
	}
	return &frame, true, nil
}

func decode(path string) (gocv.Mat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gocv.Mat{}, errors.Wrapf(err, "failed to read %s", path)
	}
	frame, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, errors.Wrapf(err, "failed to decode %s", path)
	}
	if frame.Empty() {
		_ = frame.Close()
		return gocv.Mat{}, errors.Errorf("failed to decode %s", path)
	}
	return frame, nil
}

// FPS returns the frame rate given to OpenSequence.
func (s *SequenceSource) FPS() float64 { return s.fps }

// Width returns the width of the first frame.
func (s *SequenceSource) Width() int { return s.width }

// Height returns the height of the first frame.
func (s *SequenceSource) Height() int { return s.height }

// Len returns the number of frames in the sequence.
func (s *SequenceSource) Len() int { return len(s.files) }

// Close is a no-op; images are decoded one at a time.
func (s *SequenceSource) Close() error { return nil }
