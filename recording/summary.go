// Package recording processes one recording end to end: it opens the source
// and the output, runs detection and event segmentation, writes the event
// log and snapshots, and hands a Summary to every configured publisher.
package recording

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/nvr-ai/go-motion/motion"
)

// Summary describes one processed recording. It is what publishers receive.
type Summary struct {
	RunID         string         `json:"run_id"`
	Recording     string         `json:"recording"`
	Source        string         `json:"source"`
	Output        string         `json:"output"`
	LogPath       string         `json:"log_path"`
	Snapshots     []string       `json:"snapshots,omitempty"`
	FPS           float64        `json:"fps"`
	FramesRead    int            `json:"frames_read"`
	FramesWritten int            `json:"frames_written"`
	MotionFrames  int            `json:"motion_frames"`
	Events        []motion.Event `json:"events"`
	ProcessedAt   time.Time      `json:"processed_at"`
}

// MotionSeconds returns the summed duration of all events.
func (s *Summary) MotionSeconds() float64 {
	return lo.SumBy(s.Events, func(e motion.Event) float64 { return e.Duration })
}

// Publisher delivers summaries to an external system.
type Publisher interface {
	// Name identifies the publisher in logs.
	Name() string
	Publish(ctx context.Context, summary *Summary) error
}
