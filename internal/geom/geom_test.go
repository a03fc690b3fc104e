package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

const eps = 1e-9

// TestAngle verifies the screen-space angle convention (y grows downward)
func TestAngle(t *testing.T) {
	c := Pt(100, 100)
	tests := []struct {
		name string
		p    Vec
		want float64
	}{
		{"same point", c, 0},
		{"right", Pt(150, 100), 0},
		{"up on screen", Pt(100, 50), 90},
		{"left", Pt(50, 100), 180},
		{"down on screen", Pt(100, 150), 270},
		{"upper right diagonal", Pt(110, 90), 45},
		{"lower right diagonal", Pt(110, 110), 315},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Angle(c, tt.p), 1e-9)
		})
	}
}

// TestPointAtRoundTrip verifies PointAt and Angle are inverses
func TestPointAtRoundTrip(t *testing.T) {
	c := Pt(128, 128)
	for _, angle := range []float64{0, 30, 90, 150, 210, 270, 330} {
		p := PointAt(c, 60, angle)
		assert.InDelta(t, angle, Angle(c, p), 1e-6, "angle %v", angle)
		assert.InDelta(t, 60, Distance(c, p), 1e-9)
	}
}

// TestPointAtNegativeRadius verifies a negative radius lands opposite
func TestPointAtNegativeRadius(t *testing.T) {
	c := Pt(0, 0)
	p := PointAt(c, -10, 0)
	assert.InDelta(t, -10, p.X, eps)
	assert.InDelta(t, 0, p.Y, eps)
}

// TestClampAngle checks normalization into [0, 360]
func TestClampAngle(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{30, 30},
		{360, 360},
		{720, 360},
		{370, 10},
		{-90, 270},
		{-360, 0},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ClampAngle(tt.in), eps, "in=%v", tt.in)
	}
}

// TestSegmentDistanceAndProjection covers signed distance and parallel position
func TestSegmentDistanceAndProjection(t *testing.T) {
	s := Segment{P1: Pt(0, 0), P2: Pt(10, 0)}

	assert.InDelta(t, 10, s.Length(), eps)
	assert.InDelta(t, 0.5, s.ParallelPosition(Pt(5, 3)), eps)
	assert.InDelta(t, -0.5, s.ParallelPosition(Pt(-5, 0)), eps)
	assert.InDelta(t, 1.5, s.ParallelPosition(Pt(15, 0)), eps)

	above := s.SignedDistance(Pt(5, -3))
	below := s.SignedDistance(Pt(5, 3))
	assert.InDelta(t, 3, math.Abs(above), eps)
	assert.InDelta(t, 3, math.Abs(below), eps)
	assert.True(t, above*below < 0, "points on opposite sides must have opposite signs")
	assert.NotEqual(t, s.Side(Pt(5, -3)), s.Side(Pt(5, 3)))
}

// TestSegmentNear checks the strict interior and tolerance rules
func TestSegmentNear(t *testing.T) {
	s := Segment{P1: Pt(0, 0), P2: Pt(0, 100)}

	assert.True(t, s.Near(Pt(4, 50), 5))
	assert.False(t, s.Near(Pt(6, 50), 5))
	assert.False(t, s.Near(Pt(0, 0), 5), "endpoint is not strictly inside")
	assert.False(t, s.Near(Pt(0, 120), 5))
}

// TestDegenerateSegment guards against division by zero
func TestDegenerateSegment(t *testing.T) {
	s := Segment{P1: Pt(3, 3), P2: Pt(3, 3)}
	assert.Equal(t, 0.0, s.SignedDistance(Pt(10, 10)))
	assert.Equal(t, 0.0, s.ParallelPosition(Pt(10, 10)))
}
