package images

import (
	"github.com/samber/lo"
	"gocv.io/x/gocv"
)

// BlobFilter decides whether a foreground mask contains a moving object.
//
// Blobs are the 8-connected components of the mask. Their area is the number
// of foreground pixels they contain, and a mask shows motion when at least one
// blob is strictly larger than the minimum area.
type BlobFilter struct {
	minArea   int
	labels    gocv.Mat
	stats     gocv.Mat
	centroids gocv.Mat
}

// NewBlobFilter creates a filter for blobs larger than minArea pixels.
//
// Always call Close() to release memory.
func NewBlobFilter(minArea int) *BlobFilter {
	return &BlobFilter{
		minArea:   minArea,
		labels:    gocv.NewMat(),
		stats:     gocv.NewMat(),
		centroids: gocv.NewMat(),
	}
}

// Blobs returns every blob in mask, in label order.
func (b *BlobFilter) Blobs(mask gocv.Mat) []Blob {
	n := gocv.ConnectedComponentsWithStats(mask, &b.labels, &b.stats, &b.centroids)
	if n <= 1 {
		return nil
	}

	stat := func(label int, s gocv.ConnectedComponentsTypes) int {
		return int(b.stats.GetIntAt(label, int(s)))
	}

	// Label 0 is the background.
	blobs := make([]Blob, 0, n-1)
	for label := 1; label < n; label++ {
		left, top := stat(label, gocv.CC_STAT_LEFT), stat(label, gocv.CC_STAT_TOP)
		blobs = append(blobs, Blob{
			Area: stat(label, gocv.CC_STAT_AREA),
			Bounds: Rect{
				X1: left,
				Y1: top,
				X2: left + stat(label, gocv.CC_STAT_WIDTH),
				Y2: top + stat(label, gocv.CC_STAT_HEIGHT),
			},
		})
	}
	return blobs
}

// Areas returns the pixel area of every blob in mask, in label order.
func (b *BlobFilter) Areas(mask gocv.Mat) []int {
	return lo.Map(b.Blobs(mask), func(blob Blob, _ int) int { return blob.Area })
}

// HasMotion reports whether any blob in mask exceeds the minimum area.
func (b *BlobFilter) HasMotion(mask gocv.Mat) bool {
	return ExceedsArea(b.Areas(mask), b.minArea)
}

// MinArea returns the area a blob must exceed.
func (b *BlobFilter) MinArea() int {
	return b.minArea
}

// ExceedsArea reports whether any area is strictly greater than minArea.
func ExceedsArea(areas []int, minArea int) bool {
	for _, a := range areas {
		if a > minArea {
			return true
		}
	}
	return false
}

// Close releases the label and statistics buffers.
func (b *BlobFilter) Close() error {
	b.labels.Close()
	b.stats.Close()
	b.centroids.Close()
	return nil
}
