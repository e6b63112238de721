package motion

import (
	"github.com/pkg/errors"
)

// Frame is anything the segmenter can buffer. Frames the segmenter decides
// not to forward are released with Close.
type Frame interface {
	Close() error
}

// State is the state of the segmenter.
type State int

const (
	// Idle means no candidate event is open.
	Idle State = iota
	// Active means a candidate event is open and frames are being buffered.
	Active
)

// String returns a human readable name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// EndPolicy decides what happens to an event that is still open when the
// stream ends.
type EndPolicy string

const (
	// FlushOnEnd closes the open event at the last frame that showed motion
	// and forwards its buffered frames.
	FlushOnEnd EndPolicy = "flush"
	// DropOnEnd discards the open event and its buffered frames.
	DropOnEnd EndPolicy = "drop"
)

// Valid reports whether p is a known policy.
func (p EndPolicy) Valid() bool {
	return p == FlushOnEnd || p == DropOnEnd
}

// Segment is a committed event together with the frames that belong to it.
// Ownership of Frames passes to the receiver, which must Close each of them.
type Segment[F Frame] struct {
	Event Event
	// Frames holds every frame buffered while the event was active, in source order.
	Frames []F
	// FirstIndex is the index of the frame that opened the event.
	FirstIndex int
	// LastMotionIndex is the index of the last frame that showed motion.
	LastMotionIndex int
	// CloseIndex is the index of the frame on which the event was closed.
	CloseIndex int
}

// Segmenter is the motion event state machine.
//
// It consumes one boolean motion signal per frame and applies hysteresis: an
// active event only ends after more than hysteresis consecutive frames
// without motion. The end of the event is back-dated to the last frame that
// showed motion. While an event is active every frame is buffered so the
// whole event can be forwarded once it is known to be real.
//
// A Segmenter serves one recording and must not be shared between goroutines.
type Segmenter[F Frame] struct {
	fps        float64
	hysteresis int

	state      State
	startIndex int
	start      float64
	noMotion   int
	buffer     []F
	lastIndex  int
	seen       bool
}

// NewSegmenter creates a segmenter in the Idle state.
//
// Arguments:
//   - fps: Frame rate of the recording, used to convert indices to seconds.
//   - hysteresis: Number of consecutive motion-free frames tolerated before an
//     active event is closed.
//
// Returns:
//   - *Segmenter: The state machine.
//   - error: ErrInvalidFrameRate for unusable fps, or an error for a negative hysteresis.
func NewSegmenter[F Frame](fps float64, hysteresis int) (*Segmenter[F], error) {
	if !ValidFrameRate(fps) {
		return nil, errors.Wrapf(ErrInvalidFrameRate, "fps=%v", fps)
	}
	if hysteresis < 0 {
		return nil, errors.Errorf("hysteresis must not be negative: %d", hysteresis)
	}
	return &Segmenter[F]{fps: fps, hysteresis: hysteresis}, nil
}

// State returns the current state.
func (s *Segmenter[F]) State() State {
	return s.state
}

// Buffered returns the number of frames held for the open event.
func (s *Segmenter[F]) Buffered() int {
	return len(s.buffer)
}

// Step feeds one frame and its motion signal into the state machine. The
// segmenter takes ownership of frame: it is either buffered, returned inside
// a Segment, or released.
//
// Arguments:
//   - index: Source index of the frame. Must be strictly increasing.
//   - frame: The frame itself.
//   - motion: Whether the frame showed motion.
//
// Returns:
//   - *Segment: The committed event when this frame closed one, nil otherwise.
//   - error: An error if the index is not increasing.
func (s *Segmenter[F]) Step(index int, frame F, motion bool) (*Segment[F], error) {
	if s.seen && index <= s.lastIndex {
		_ = frame.Close()
		return nil, errors.Errorf("frame index %d is not after %d", index, s.lastIndex)
	}
	s.seen = true
	s.lastIndex = index

	switch {
	case s.state == Idle && !motion:
		_ = frame.Close()
		return nil, nil

	case s.state == Idle && motion:
		s.state = Active
		s.startIndex = index
		s.start = float64(index) / s.fps
		s.noMotion = 0
		s.buffer = append(s.buffer, frame)
		return nil, nil

	case motion:
		s.noMotion = 0
		s.buffer = append(s.buffer, frame)
		return nil, nil
	}

	// Active without motion: the event may still resume, so keep the frame.
	s.noMotion++
	s.buffer = append(s.buffer, frame)
	if s.noMotion <= s.hysteresis {
		return nil, nil
	}
	return s.close(index), nil
}

// Finish ends the stream. If an event is still open it is flushed or dropped
// according to policy.
//
// Returns:
//   - *Segment: The flushed event, or nil when nothing was committed.
//   - error: An error for an unknown policy.
func (s *Segmenter[F]) Finish(policy EndPolicy) (*Segment[F], error) {
	if !policy.Valid() {
		s.reset()
		return nil, errors.Errorf("unknown end of stream policy %q", policy)
	}
	if s.state == Idle {
		return nil, nil
	}
	if policy == DropOnEnd {
		s.reset()
		return nil, nil
	}
	return s.close(s.lastIndex), nil
}

// Discard releases every buffered frame and returns to Idle. Used when
// processing is aborted.
func (s *Segmenter[F]) Discard() {
	s.reset()
}

// close ends the open event at closeIndex.
func (s *Segmenter[F]) close(closeIndex int) *Segment[F] {
	lastMotion := closeIndex - s.noMotion
	end := float64(lastMotion) / s.fps

	event, err := NewEvent(s.start, end)
	if err != nil {
		// Zero length event, e.g. a single motion frame.
		s.reset()
		return nil
	}

	seg := &Segment[F]{
		Event:           event,
		Frames:          s.buffer,
		FirstIndex:      s.startIndex,
		LastMotionIndex: lastMotion,
		CloseIndex:      closeIndex,
	}
	s.buffer = nil
	s.state = Idle
	s.noMotion = 0
	return seg
}

// reset releases the buffer and returns to Idle.
func (s *Segmenter[F]) reset() {
	for _, f := range s.buffer {
		_ = f.Close()
	}
	s.buffer = nil
	s.state = Idle
	s.noMotion = 0
}
