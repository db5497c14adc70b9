package geozone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func square(x0, y0, x1, y1 float64) []Point {
	return []Point{{x0, y0}, {x0, y1}, {x1, y1}, {x1, y0}}
}

func TestPointInRing_UnitSquare(t *testing.T) {
	ring := square(0, 0, 1, 1)

	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"center", Point{0.5, 0.5}, true},
		{"outside", Point{2, 2}, false},
		{"left edge", Point{0, 0.5}, true},
		{"top edge", Point{0.5, 1}, true},
		{"vertex", Point{1, 1}, true},
		{"just outside right", Point{1.0001, 0.5}, false},
		{"below", Point{0.5, -0.5}, false},
		{"collinear beyond edge", Point{0, 1.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PointInRing(tt.p, ring, 0))
			assert.Equal(t, tt.want, PointInRing(tt.p, ring, DefaultEpsilon))
		})
	}
}

func TestPointInRing_Degenerate(t *testing.T) {
	assert.False(t, PointInRing(Point{0, 0}, nil, DefaultEpsilon))
	assert.False(t, PointInRing(Point{0, 0}, []Point{{0, 0}, {1, 1}}, DefaultEpsilon))
}

func TestPointInRing_ClosedRingRepeatsFirstVertex(t *testing.T) {
	ring := append(square(0, 0, 2, 2), Point{0, 0})
	assert.True(t, PointInRing(Point{1, 1}, ring, DefaultEpsilon))
	assert.False(t, PointInRing(Point{3, 1}, ring, DefaultEpsilon))
}

func TestPointInRing_Concave(t *testing.T) {
	// U shape opening upward.
	ring := []Point{{0, 0}, {0, 3}, {1, 3}, {1, 1}, {2, 1}, {2, 3}, {3, 3}, {3, 0}}
	assert.True(t, PointInRing(Point{0.5, 2}, ring, DefaultEpsilon))
	assert.True(t, PointInRing(Point{2.5, 2}, ring, DefaultEpsilon))
	assert.False(t, PointInRing(Point{1.5, 2}, ring, DefaultEpsilon))
	assert.True(t, PointInRing(Point{1.5, 0.5}, ring, DefaultEpsilon))
}

func TestPointInRing_VertexAtRayHeight(t *testing.T) {
	// Diamond whose side vertices sit exactly on the ray through the center.
	ring := []Point{{0, 1}, {1, 2}, {2, 1}, {1, 0}}
	assert.True(t, PointInRing(Point{1, 1}, ring, DefaultEpsilon))
	assert.False(t, PointInRing(Point{-1, 1}, ring, DefaultEpsilon))
	assert.False(t, PointInRing(Point{3, 1}, ring, DefaultEpsilon))
}

func TestPointInRing_EpsilonWidensBoundary(t *testing.T) {
	ring := square(0, 0, 1, 1)
	p := Point{-1e-7, 0.5}
	assert.False(t, PointInRing(p, ring, 0))
	assert.True(t, PointInRing(p, ring, 1e-6))
}

func TestPointInShape_Hole(t *testing.T) {
	points := append(square(0, 0, 10, 10), square(4, 4, 6, 6)...)
	parts := []int{0, 4}

	assert.False(t, PointInShape(Point{5, 5}, points, parts, DefaultEpsilon))
	assert.True(t, PointInShape(Point{1, 1}, points, parts, DefaultEpsilon))
	assert.False(t, PointInShape(Point{11, 11}, points, parts, DefaultEpsilon))
}

func TestPointInShape_MultiPart(t *testing.T) {
	points := append(square(0, 0, 1, 1), square(5, 5, 6, 6)...)
	parts := []int{0, 4}

	assert.True(t, PointInShape(Point{0.5, 0.5}, points, parts, DefaultEpsilon))
	assert.True(t, PointInShape(Point{5.5, 5.5}, points, parts, DefaultEpsilon))
	assert.False(t, PointInShape(Point{3, 3}, points, parts, DefaultEpsilon))
}

func TestPointInShape_InvalidRangesSkipped(t *testing.T) {
	outer := square(0, 0, 10, 10)
	points := append(append([]Point{}, outer...), square(4, 4, 6, 6)...)

	// The hole ring ends past the point array, so only the outer ring counts.
	assert.True(t, PointInShape(Point{5, 5}, points, []int{0, 4, 100}, DefaultEpsilon))

	// A negative start drops the first ring; the second still classifies.
	assert.True(t, PointInShape(Point{1, 1}, outer, []int{-1, 0}, DefaultEpsilon))
	assert.False(t, PointInShape(Point{11, 1}, outer, []int{-1, 0}, DefaultEpsilon))

	// start >= end on the middle ring.
	assert.NotPanics(t, func() {
		PointInShape(Point{1, 1}, points, []int{0, 6, 4}, DefaultEpsilon)
	})
	assert.False(t, PointInShape(Point{1, 1}, points, []int{4, 4}, DefaultEpsilon))
}

func TestPointInShape_Empty(t *testing.T) {
	assert.False(t, PointInShape(Point{0, 0}, nil, []int{0}, DefaultEpsilon))
	assert.False(t, PointInShape(Point{0, 0}, square(-1, -1, 1, 1), nil, DefaultEpsilon))
}
