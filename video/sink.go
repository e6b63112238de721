package video

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DefaultCodec is the fourcc used for trimmed recordings.
const DefaultCodec = "mp4v"

// Sink is an output recording.
type Sink interface {
	Write(frame *gocv.Mat) error
	Written() int
	Close() error
}

// FileSink encodes frames into a video file.
type FileSink struct {
	path    string
	writer  *gocv.VideoWriter
	written int
}

// CreateFile creates a video file at path with the given fourcc codec, frame
// rate and frame size.
//
// Always call Close() to flush the container.
func CreateFile(path, codec string, fps float64, width, height int) (*FileSink, error) {
	if codec == "" {
		codec = DefaultCodec
	}
	writer, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", path)
	}
	if !writer.IsOpened() {
		_ = writer.Close()
		return nil, errors.Errorf("failed to open %s with codec %s", path, codec)
	}
	return &FileSink{path: path, writer: writer}, nil
}

// Write encodes one frame. The frame is not retained.
func (s *FileSink) Write(frame *gocv.Mat) error {
	if err := s.writer.Write(*frame); err != nil {
		return errors.Wrapf(err, "failed to write %s", s.path)
	}
	s.written++
	return nil
}

// Written returns how many frames were written.
func (s *FileSink) Written() int { return s.written }

// Path returns the output path.
func (s *FileSink) Path() string { return s.path }

// Close finalizes the file.
func (s *FileSink) Close() error {
	return s.writer.Close()
}

// ReplaceSink writes a recording that replaces target once it is complete.
//
// Frames go to a hidden temporary file next to target. Close renames it over
// target if at least one frame was written and removes it otherwise, so an
// input without motion is left untouched. Abort removes it unconditionally.
type ReplaceSink struct {
	target string
	sink   *FileSink
	done   bool
}

// NewReplaceSink creates the temporary output for target.
func NewReplaceSink(target, codec string, fps float64, width, height int) (*ReplaceSink, error) {
	sink, err := CreateFile(TempPath(target), codec, fps, width, height)
	if err != nil {
		return nil, err
	}
	return &ReplaceSink{target: target, sink: sink}, nil
}

// TempPath returns the temporary sibling used while replacing target. The
// extension is kept so the container format matches.
func TempPath(target string) string {
	dir, name := filepath.Split(target)
	ext := filepath.Ext(name)
	return filepath.Join(dir, "."+strings.TrimSuffix(name, ext)+".partial"+ext)
}

// Write encodes one frame into the temporary file.
func (r *ReplaceSink) Write(frame *gocv.Mat) error {
	return r.sink.Write(frame)
}

// Written returns how many frames were written.
func (r *ReplaceSink) Written() int { return r.sink.Written() }

// Close finalizes the temporary file and moves it over the target.
func (r *ReplaceSink) Close() error {
	if r.done {
		return nil
	}
	r.done = true

	tmp := r.sink.Path()
	if err := r.sink.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "failed to finalize %s", tmp)
	}
	if r.sink.Written() == 0 {
		return removeIfExists(tmp)
	}
	if err := os.Rename(tmp, r.target); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "failed to replace %s", r.target)
	}
	return nil
}

// Abort discards the temporary file and leaves the target untouched.
func (r *ReplaceSink) Abort() error {
	if r.done {
		return nil
	}
	r.done = true

	_ = r.sink.Close()
	return removeIfExists(r.sink.Path())
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove %s", path)
	}
	return nil
}
