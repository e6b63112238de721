// Package images - This file contains the foreground detection pipeline
// using OpenCV (via gocv).
//
// The ForegroundDetector combines two independent motion signals into one
// binary mask:
//  1. Background subtraction using MOG2, thresholded and cleaned with a
//     morphological opening.
//  2. A long interval frame difference between the current frame and the
//     frame long_diff_gap steps back, which catches slow or low contrast
//     objects that the adaptive model absorbs into the background.
//
// Pipeline Overview:
//
// ┌──────────────┐
// │ Input Frame  │
// └──────┬───────┘
// ┌──────────────────────────────┐
// │ Grayscale + Gaussian blur    │
// └──────┬──────────────┬────────┘
// ┌──────────────┐ ┌──────────────────────┐
// │ MOG2         │ │ |frame - frame[t-K]| │
// │ threshold    │ │ threshold            │
// │ opening      │ │                      │
// └──────┬───────┘ └──────┬───────────────┘
// ┌────────────────────────────┐
// │ Bitwise OR (final mask)    │
// └────────────────────────────┘
//
// Usage:
//
//	fg := images.NewForegroundDetector(cfg.Detection)
//	defer fg.Close()
//
//	for {
//	    frame := getNextFrame()
//	    mask, err := fg.Observe(frame)
//	    ...
//	}
//
// Note: You must call Close() when finished to release native resources.
package images

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-motion/config"
)

// MaskValue is the value of foreground pixels in every mask.
const MaskValue = 255

// ForegroundDetector turns raw frames into binary foreground masks.
//
// This struct is stateful: it owns the background model and the history of
// recent frames, and reuses its intermediate matrices across frames. It is not
// safe for concurrent use.
type ForegroundDetector struct {
	cfg        config.Detection
	background *BackgroundModel
	kernel     gocv.Mat // Opening kernel.

	gray     gocv.Mat // Single channel input.
	blurred  gocv.Mat // Smoothed intensity.
	response gocv.Mat // Raw background model output.
	bgMask   gocv.Mat // Thresholded and opened background mask.
	diff     gocv.Mat // Long interval absolute difference.
	diffMask gocv.Mat // Thresholded difference.
	combined gocv.Mat // Final mask returned to callers.

	history []gocv.Mat // Last LongDiffGap+1 blurred frames, oldest first.
}

// NewForegroundDetector creates a detector with a fresh background model.
//
// Always call Close() to release memory.
func NewForegroundDetector(cfg config.Detection) *ForegroundDetector {
	return &ForegroundDetector{
		cfg:        cfg,
		background: NewBackgroundModel(cfg),
		kernel:     gocv.GetStructuringElement(gocv.MorphRect, image.Pt(cfg.MorphKernelSize, cfg.MorphKernelSize)),
		gray:       gocv.NewMat(),
		blurred:    gocv.NewMat(),
		response:   gocv.NewMat(),
		bgMask:     gocv.NewMat(),
		diff:       gocv.NewMat(),
		diffMask:   gocv.NewMat(),
		combined:   gocv.NewMat(),
		history:    make([]gocv.Mat, 0, cfg.LongDiffGap+1),
	}
}

// Observe runs the full pipeline on frame and returns the combined mask.
//
// The mask is single channel, has the dimensions of frame, and contains only
// 0 and MaskValue. It is owned by the detector and stays valid until the next
// call. frame itself is never modified.
//
// The long interval signal is all-zero until LongDiffGap frames of history
// precede the current one, so for the first LongDiffGap observed frames the
// mask is the background subtraction mask alone.
//
// Arguments:
//   - frame: A BGR, BGRA or grayscale 8-bit frame.
//
// Returns:
//   - gocv.Mat: The foreground mask.
//   - error: An error if the frame is empty or an OpenCV call fails.
func (f *ForegroundDetector) Observe(frame gocv.Mat) (gocv.Mat, error) {
	if frame.Empty() {
		return gocv.Mat{}, errors.New("frame is empty")
	}
	if len(f.history) > 0 {
		last := f.history[len(f.history)-1]
		if last.Rows() != frame.Rows() || last.Cols() != frame.Cols() {
			return gocv.Mat{}, errors.Errorf("frame size changed from %dx%d to %dx%d",
				last.Cols(), last.Rows(), frame.Cols(), frame.Rows())
		}
	}

	if err := f.intensity(frame); err != nil {
		return gocv.Mat{}, err
	}

	// Background subtraction.
	if err := f.background.Apply(f.blurred, &f.response); err != nil {
		return gocv.Mat{}, errors.Wrap(err, "background subtraction failed")
	}
	gocv.Threshold(f.response, &f.bgMask, float32(f.cfg.ThresholdValue), MaskValue, gocv.ThresholdBinary)
	if err := gocv.MorphologyEx(f.bgMask, &f.bgMask, gocv.MorphOpen, f.kernel); err != nil {
		return gocv.Mat{}, errors.Wrap(err, "opening failed")
	}

	// Long interval difference.
	f.remember()
	if len(f.history) <= f.cfg.LongDiffGap {
		if err := f.bgMask.CopyTo(&f.combined); err != nil {
			return gocv.Mat{}, err
		}
		return f.combined, nil
	}
	current, past := f.history[len(f.history)-1], f.history[0]
	if err := gocv.AbsDiff(current, past, &f.diff); err != nil {
		return gocv.Mat{}, errors.Wrap(err, "frame difference failed")
	}
	gocv.Threshold(f.diff, &f.diffMask, float32(f.cfg.LongDiffThreshold), MaskValue, gocv.ThresholdBinary)

	if err := gocv.BitwiseOr(f.bgMask, f.diffMask, &f.combined); err != nil {
		return gocv.Mat{}, errors.Wrap(err, "mask combination failed")
	}
	return f.combined, nil
}

// intensity converts frame to a smoothed single channel image in f.blurred.
func (f *ForegroundDetector) intensity(frame gocv.Mat) error {
	switch frame.Channels() {
	case 1:
		if err := frame.CopyTo(&f.gray); err != nil {
			return err
		}
	case 3:
		if err := gocv.CvtColor(frame, &f.gray, gocv.ColorBGRToGray); err != nil {
			return errors.Wrap(err, "grayscale conversion failed")
		}
	case 4:
		if err := gocv.CvtColor(frame, &f.gray, gocv.ColorBGRAToGray); err != nil {
			return errors.Wrap(err, "grayscale conversion failed")
		}
	default:
		return errors.Errorf("unsupported channel count %d", frame.Channels())
	}

	k := f.cfg.BlurKernelSize
	if err := gocv.GaussianBlur(f.gray, &f.blurred, image.Pt(k, k), 0, 0, gocv.BorderDefault); err != nil {
		return errors.Wrap(err, "blur failed")
	}
	return nil
}

// remember appends the current blurred frame to the history, dropping the
// oldest once LongDiffGap+1 frames are held.
func (f *ForegroundDetector) remember() {
	f.history = append(f.history, f.blurred.Clone())
	if len(f.history) > f.cfg.LongDiffGap+1 {
		f.history[0].Close()
		f.history = f.history[1:]
	}
}

// HistoryLen returns how many past intensity frames are held.
func (f *ForegroundDetector) HistoryLen() int {
	return len(f.history)
}

// Close releases all OpenCV native resources used by the detector.
func (f *ForegroundDetector) Close() error {
	for _, m := range f.history {
		m.Close()
	}
	f.history = nil

	f.kernel.Close()
	f.gray.Close()
	f.blurred.Close()
	f.response.Close()
	f.bgMask.Close()
	f.diff.Close()
	f.diffMask.Close()
	f.combined.Close()
	return f.background.Close()
}
