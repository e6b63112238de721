// Package images - Bounding boxes of foreground blobs
package images

import "image"

// Rect is a lightweight bounding box.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 int
}

// Area returns the number of pixels covered by the box.
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return (r.X2 - r.X1) * (r.Y2 - r.Y1)
}

// Empty reports whether the box covers no pixels.
func (r Rect) Empty() bool {
	return r.X2 <= r.X1 || r.Y2 <= r.Y1
}

// Union returns the smallest box containing both r and o. Empty boxes are
// ignored.
func (r Rect) Union(o Rect) Rect {
	switch {
	case r.Empty():
		return o
	case o.Empty():
		return r
	}
	return Rect{
		X1: min(r.X1, o.X1),
		Y1: min(r.Y1, o.Y1),
		X2: max(r.X2, o.X2),
		Y2: max(r.Y2, o.Y2),
	}
}

// Image converts the box to an image.Rectangle for drawing.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// CalculateIoU returns the intersection over union of two boxes, between
// 0.0 (disjoint) and 1.0 (identical).
//
// Example Usage:
// ```go
//
//	rect1 := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	rect2 := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	iou := CalculateIoU(rect1, rect2) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	inter := Rect{
		X1: max(r.X1, o.X1),
		Y1: max(r.Y1, o.Y1),
		X2: min(r.X2, o.X2),
		Y2: min(r.Y2, o.Y2),
	}
	if inter.Empty() {
		return 0.0
	}
	interArea := inter.Area()

	// Inclusion-exclusion avoids counting the overlap twice.
	unionArea := r.Area() + o.Area() - interArea
	return float32(interArea) / float32(unionArea)
}

// Blob is one 8-connected foreground region of a mask.
type Blob struct {
	// Area is the number of foreground pixels.
	Area int
	// Bounds is the bounding box of the region.
	Bounds Rect
}

// MotionRegion returns the union of the bounds of every blob larger than
// minArea.
func MotionRegion(blobs []Blob, minArea int) Rect {
	var region Rect
	for _, b := range blobs {
		if b.Area > minArea {
			region = region.Union(b.Bounds)
		}
	}
	return region
}
