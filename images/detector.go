// Package images - Motion classification of frames using background
// subtraction, long interval differencing and blob area filtering
package images

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-motion/config"
)

// MotionDetector classifies frames as motion or no motion.
//
// It combines a ForegroundDetector, which produces the binary mask, with a
// BlobFilter, which applies the minimum blob area. Each detector owns the
// background model of exactly one recording.
type MotionDetector struct {
	foreground *ForegroundDetector
	blobs      *BlobFilter
	mask       gocv.Mat
	region     Rect
	previous   Rect
	frameCount int64
	mu         sync.RWMutex
}

// NewMotionDetector creates a detector with a fresh background model.
//
// Arguments:
//   - cfg: Detection thresholds.
//
// Returns:
//   - *MotionDetector: The initialized motion detector
//
// @example
// detector := NewMotionDetector(config.DefaultDetection())
// defer detector.Close()
func NewMotionDetector(cfg config.Detection) *MotionDetector {
	return &MotionDetector{
		foreground: NewForegroundDetector(cfg),
		blobs:      NewBlobFilter(cfg.MinContourArea),
		mask:       gocv.NewMat(),
	}
}

// Learn feeds frame to the background model and the frame history without
// classifying it. It is used for the warm-up period.
func (d *MotionDetector) Learn(frame *gocv.Mat) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame == nil {
		return errors.New("frame is nil")
	}
	if _, err := d.foreground.Observe(*frame); err != nil {
		return err
	}
	d.frameCount++
	return nil
}

// DetectMotion updates the background model with frame and reports whether
// the frame contains a blob larger than the minimum area.
//
// Arguments:
//   - frame: The video frame to analyze for motion. It is not modified.
//
// Returns:
//   - bool: True when the frame shows motion.
//   - error: An error if motion detection fails
func (d *MotionDetector) DetectMotion(frame *gocv.Mat) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame == nil {
		return false, errors.New("frame is nil")
	}
	mask, err := d.foreground.Observe(*frame)
	if err != nil {
		return false, err
	}
	d.frameCount++

	if err := mask.CopyTo(&d.mask); err != nil {
		return false, errors.Wrap(err, "failed to keep mask")
	}
	blobs := d.blobs.Blobs(mask)
	d.previous, d.region = d.region, MotionRegion(blobs, d.blobs.MinArea())
	return ExceedsArea(lo.Map(blobs, func(b Blob, _ int) int { return b.Area }), d.blobs.MinArea()), nil
}

// Region returns the bounding box of the qualifying blobs of the last
// classified frame. It is empty when that frame showed no motion.
func (d *MotionDetector) Region() Rect {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.region
}

// Mask returns a copy of the mask of the last classified frame. The caller
// must close it.
func (d *MotionDetector) Mask() gocv.Mat {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mask.Clone()
}

// GetFrameCount returns the total number of frames processed
//
// Returns:
//   - int64: Number of frames processed since initialization
func (d *MotionDetector) GetFrameCount() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.frameCount
}

// Overlap returns the IoU of the motion regions of the last two classified
// frames. It is near 1 for an object that stays put and 0 when either frame
// showed no motion or the object jumped clear of its previous box.
func (d *MotionDetector) Overlap() float32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return CalculateIoU(d.previous, d.region)
}

// Close releases all resources associated with the motion detector
//
// This method must be called when the detector is no longer needed to prevent memory leaks.
func (d *MotionDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.mask.Close()
	_ = d.blobs.Close()
	return d.foreground.Close()
}
