// Package motion - Motion events, the per-recording event log and the
// hysteresis state machine that turns a per-frame motion signal into events.
//
// Nothing in this package depends on OpenCV. Frames are any type that can be
// released, which keeps the state machine testable with plain Go values.
package motion

import (
	"encoding/json"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Event is a closed interval of sustained motion, in seconds from the start
// of the recording.
type Event struct {
	// Start is the timestamp of the first frame that showed motion.
	Start float64
	// End is the timestamp of the last frame that showed motion.
	End float64
	// Duration is End - Start.
	Duration float64
}

// NewEvent builds an event from its boundaries.
//
// Arguments:
//   - start: Timestamp of the first motion frame in seconds.
//   - end: Timestamp of the last motion frame in seconds.
//
// Returns:
//   - Event: The event with Duration = end - start.
//   - error: An error if the interval is empty or reversed.
func NewEvent(start, end float64) (Event, error) {
	e := Event{Start: start, End: end, Duration: end - start}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Validate checks the interval invariant start < end and duration > 0.
func (e Event) Validate() error {
	if math.IsNaN(e.Start) || math.IsNaN(e.End) || math.IsInf(e.Start, 0) || math.IsInf(e.End, 0) {
		return errors.Errorf("event bounds must be finite: start=%v end=%v", e.Start, e.End)
	}
	if !(e.Start < e.End) || !(e.Duration > 0) {
		return errors.Errorf("event must have positive duration: start=%.3f end=%.3f", e.Start, e.End)
	}
	return nil
}

// eventJSON is the on-disk representation of an Event.
type eventJSON struct {
	Start    float64 `json:"start_seconds"`
	End      float64 `json:"end_seconds"`
	Duration float64 `json:"duration_seconds"`
}

// MarshalJSON writes the event with every value rounded to milliseconds.
// Rounding happens only here; the in-memory values are exact.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		Start:    Round3(e.Start),
		End:      Round3(e.End),
		Duration: Round3(e.Duration),
	})
}

// UnmarshalJSON reads an event written by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Event{Start: raw.Start, End: raw.End, Duration: raw.Duration}
	return nil
}

// Round3 rounds v to three decimal places.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// ValidFrameRate reports whether fps can be used to derive timestamps.
func ValidFrameRate(fps float64) bool {
	return fps > 0 && !math.IsNaN(fps) && !math.IsInf(fps, 0)
}

// EventLog is the ordered list of events detected in one recording.
//
// Events are kept in non-decreasing order of Start. The log is built
// incrementally while the recording is processed and is not shared between
// goroutines.
type EventLog struct {
	events []Event
}

// Append adds an event to the end of the log.
//
// Arguments:
//   - e: The event to append.
//
// Returns:
//   - error: An error if the event is invalid or starts before the last event.
func (l *EventLog) Append(e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if n := len(l.events); n > 0 && e.Start < l.events[n-1].Start {
		return errors.Errorf("event at %.3fs starts before previous event at %.3fs", e.Start, l.events[n-1].Start)
	}
	l.events = append(l.events, e)
	return nil
}

// Events returns a copy of the logged events.
func (l *EventLog) Events() []Event {
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of events in the log.
func (l *EventLog) Len() int {
	return len(l.events)
}

// TotalDuration returns the summed duration of all events.
func (l *EventLog) TotalDuration() float64 {
	total := 0.0
	for _, e := range l.events {
		total += e.Duration
	}
	return total
}

// MarshalJSON writes the log as a JSON array. An empty log is written as [].
func (l *EventLog) MarshalJSON() ([]byte, error) {
	if l.events == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.events)
}

// WriteJSON writes the log to w as a JSON array indented with four spaces.
func (l *EventLog) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(l); err != nil {
		return errors.Wrap(err, "failed to encode event log")
	}
	return nil
}

// ReadEventLog decodes a log previously written with WriteJSON.
func ReadEventLog(r io.Reader) (*EventLog, error) {
	var events []Event
	if err := json.NewDecoder(r).Decode(&events); err != nil {
		return nil, errors.Wrap(err, "failed to decode event log")
	}
	log := &EventLog{}
	for _, e := range events {
		if err := log.Append(e); err != nil {
			return nil, err
		}
	}
	return log, nil
}
