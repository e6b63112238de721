package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateIoU(t *testing.T) {
	tests := []struct {
		name     string
		r1, r2   Rect
		expected float32
	}{
		{name: "identical", r1: Rect{0, 0, 100, 100}, r2: Rect{0, 0, 100, 100}, expected: 1.0},
		{name: "no overlap", r1: Rect{0, 0, 100, 100}, r2: Rect{200, 200, 300, 300}, expected: 0.0},
		{name: "touching edges", r1: Rect{0, 0, 100, 100}, r2: Rect{100, 0, 200, 100}, expected: 0.0},
		{name: "half overlap", r1: Rect{0, 0, 100, 100}, r2: Rect{50, 0, 150, 100}, expected: 1.0 / 3.0},
		{name: "corner overlap", r1: Rect{0, 0, 10, 10}, r2: Rect{5, 5, 15, 15}, expected: 25.0 / 175.0},
		{name: "contained", r1: Rect{0, 0, 100, 100}, r2: Rect{25, 25, 75, 75}, expected: 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CalculateIoU(tt.r1, tt.r2), 1e-4)
			assert.InDelta(t, tt.expected, CalculateIoU(tt.r2, tt.r1), 1e-4, "symmetric")
		})
	}
}

func TestRectUnion(t *testing.T) {
	a := Rect{10, 10, 20, 20}
	b := Rect{15, 5, 30, 12}
	assert.Equal(t, Rect{10, 5, 30, 20}, a.Union(b))
	assert.Equal(t, a, a.Union(Rect{}))
	assert.Equal(t, a, Rect{}.Union(a))
	assert.Equal(t, 100, a.Area())
	assert.Zero(t, Rect{5, 5, 5, 10}.Area())
}

func TestMotionRegion(t *testing.T) {
	blobs := []Blob{
		{Area: 100, Bounds: Rect{0, 0, 10, 10}},
		{Area: 5, Bounds: Rect{50, 50, 55, 51}},
		{Area: 400, Bounds: Rect{20, 30, 40, 50}},
	}
	assert.Equal(t, Rect{0, 0, 40, 50}, MotionRegion(blobs, 50))
	assert.True(t, MotionRegion(blobs, 1000).Empty())
}
