// Package controller - This file contains the per-recording pipeline that routes
// frames from a source through the motion detector and the event state machine
// to a sink.
package controller

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-motion/config"
	"github.com/nvr-ai/go-motion/motion"
)

// Source yields the frames of one recording in order.
type Source[F motion.Frame] interface {
	// Read returns the next frame. ok is false once the stream is exhausted.
	// The caller owns the returned frame.
	Read() (frame F, ok bool, err error)
	// FPS is the nominal frame rate of the recording.
	FPS() float64
}

// Sink accepts the frames of committed motion events. Write must not retain
// the frame after it returns.
type Sink[F motion.Frame] interface {
	Write(frame F) error
}

// MotionDetector is an interface for a motion detector.
type MotionDetector[F motion.Frame] interface {
	// Learn updates the background model with frame and discards the result.
	Learn(frame F) error
	// DetectMotion updates the background model and reports whether frame shows motion.
	DetectMotion(frame F) (bool, error)
}

// Timer times named operations. profiler.Profiler implements it.
type Timer interface {
	StartOperation(name string) func()
}

// SegmentHook is called with every committed event before its frames are
// written. It must not retain the frames.
type SegmentHook[F motion.Frame] func(seq int, seg *motion.Segment[F]) error

// Result summarizes one processed recording.
type Result struct {
	// Events is the event log of the recording.
	Events *motion.EventLog
	// FPS is the frame rate timestamps were derived from.
	FPS float64
	// FramesRead counts every frame read from the source.
	FramesRead int
	// WarmupFrames counts the frames used only to train the background model.
	WarmupFrames int
	// MotionFrames counts the frames classified as motion.
	MotionFrames int
	// FramesWritten counts the frames forwarded to the sink.
	FramesWritten int
}

// Controller runs one recording through detection and event segmentation.
// It is not safe for concurrent use; every recording gets its own controller
// and detector.
type Controller[F motion.Frame] struct {
	cfg       config.Detection
	detector  MotionDetector[F]
	logger    *slog.Logger
	timer     Timer
	onSegment SegmentHook[F]
}

// Option customizes a Controller.
type Option[F motion.Frame] func(*Controller[F])

// WithLogger sets the logger. The default is slog.Default().
func WithLogger[F motion.Frame](logger *slog.Logger) Option[F] {
	return func(c *Controller[F]) { c.logger = logger }
}

// WithTimer times the detect and write operations.
func WithTimer[F motion.Frame](timer Timer) Option[F] {
	return func(c *Controller[F]) { c.timer = timer }
}

// WithSegmentHook registers a hook that sees every committed event.
func WithSegmentHook[F motion.Frame](hook SegmentHook[F]) Option[F] {
	return func(c *Controller[F]) { c.onSegment = hook }
}

// New creates a controller.
//
// Arguments:
//   - cfg: Detection thresholds, validated by the caller.
//   - detector: A detector with a fresh background model.
//   - opts: Optional logger, timer and segment hook.
//
// Returns:
//   - *Controller: The controller.
func New[F motion.Frame](cfg config.Detection, detector MotionDetector[F], opts ...Option[F]) *Controller[F] {
	c := &Controller[F]{
		cfg:      cfg,
		detector: detector,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes source until it is exhausted and writes the frames of every
// motion event to sink.
//
// Source and sink are owned by the caller. Every frame read from the source
// is either written and released or released without being written, on every
// exit path.
//
// Returns:
//   - *Result: Counters and the event log. On error it holds the events
//     committed before the failure.
//   - error: ErrInvalidFrameRate, ErrFrameRead, or a detector or sink error.
func (c *Controller[F]) Run(source Source[F], sink Sink[F]) (*Result, error) {
	fps := source.FPS()
	result := &Result{Events: &motion.EventLog{}, FPS: fps}

	seg, err := motion.NewSegmenter[F](fps, c.cfg.HysteresisFrames(fps))
	if err != nil {
		return result, err
	}
	defer seg.Discard()

	warmup := c.cfg.WarmupFrames(fps)
	c.logger.Debug("controller: starting recording",
		"fps", fps,
		"warmup_frames", warmup,
		"hysteresis_frames", c.cfg.HysteresisFrames(fps))

	for index := 0; ; index++ {
		frame, ok, err := source.Read()
		if err != nil {
			return result, errors.Wrapf(motion.ErrFrameRead, "frame %d: %v", index, err)
		}
		if !ok {
			break
		}
		result.FramesRead++

		if index < warmup {
			result.WarmupFrames++
			err := c.detector.Learn(frame)
			_ = frame.Close()
			if err != nil {
				return result, errors.Wrapf(err, "background warm-up failed at frame %d", index)
			}
			continue
		}

		moving, err := c.detect(frame)
		if err != nil {
			_ = frame.Close()
			return result, errors.Wrapf(err, "motion detection failed at frame %d", index)
		}
		if moving {
			result.MotionFrames++
		}

		segment, err := seg.Step(index, frame, moving)
		if err != nil {
			return result, err
		}
		if segment != nil {
			if err := c.commit(segment, sink, result); err != nil {
				return result, err
			}
		}
	}

	segment, err := seg.Finish(c.cfg.EndOfStream)
	if err != nil {
		return result, err
	}
	if segment != nil {
		c.logger.Debug("controller: flushing event open at end of stream",
			"start", segment.Event.Start,
			"end", segment.Event.End)
		if err := c.commit(segment, sink, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (c *Controller[F]) detect(frame F) (bool, error) {
	if c.timer != nil {
		defer c.timer.StartOperation("detect")()
	}
	return c.detector.DetectMotion(frame)
}

// commit records the event, runs the hook and writes the segment's frames in
// order. Every frame of the segment is released, including after a failure.
func (c *Controller[F]) commit(segment *motion.Segment[F], sink Sink[F], result *Result) error {
	defer func() {
		for _, f := range segment.Frames {
			_ = f.Close()
		}
	}()

	if err := result.Events.Append(segment.Event); err != nil {
		return err
	}
	c.logger.Info("controller: motion event",
		"start", motion.Round3(segment.Event.Start),
		"end", motion.Round3(segment.Event.End),
		"duration", motion.Round3(segment.Event.Duration),
		"frames", len(segment.Frames))

	if c.onSegment != nil {
		if err := c.onSegment(result.Events.Len(), segment); err != nil {
			return errors.Wrap(err, "segment hook failed")
		}
	}

	if c.timer != nil {
		defer c.timer.StartOperation("write")()
	}
	for _, f := range segment.Frames {
		if err := sink.Write(f); err != nil {
			return errors.Wrapf(err, "failed to write frame %d", result.FramesWritten)
		}
		result.FramesWritten++
	}
	return nil
}
