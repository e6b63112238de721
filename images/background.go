package images

import (
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-motion/config"
)

// BackgroundModel is the adaptive per-pixel model of the static scene.
//
// It wraps a MOG2 background subtractor. Every call to Apply both updates the
// per-pixel statistics and produces the foreground response for the frame, so
// the model must see every frame of the recording in order, warm-up included.
// A model belongs to exactly one recording.
type BackgroundModel struct {
	subtractor gocv.BackgroundSubtractorMOG2
}

// NewBackgroundModel creates a model with the history, variance threshold and
// shadow detection of cfg.
//
// Always call Close() to release native memory.
func NewBackgroundModel(cfg config.Detection) *BackgroundModel {
	return &BackgroundModel{
		subtractor: gocv.NewBackgroundSubtractorMOG2WithParams(
			cfg.History,
			cfg.VarThreshold,
			cfg.DetectShadows,
		),
	}
}

// Apply updates the model with src and writes the foreground response to dst.
// Foreground pixels are 255, shadows (when enabled) 127, background 0.
func (b *BackgroundModel) Apply(src gocv.Mat, dst *gocv.Mat) error {
	return b.subtractor.Apply(src, dst)
}

// Close releases the native background subtractor.
func (b *BackgroundModel) Close() error {
	return b.subtractor.Close()
}
