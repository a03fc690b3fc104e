// Package geom provides the 2D helpers shared by paths, strings and markers.
//
// Screen coordinates are used throughout: x grows to the right and y grows
// downward. Angles are in degrees, measured counter-clockwise on screen from
// the positive x axis, so a point at angle θ and radius r around c is
// (c.x + r·cos θ, c.y − r·sin θ).
package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Vec is a point or direction in screen space.
type Vec = r2.Vec

// Pt builds a Vec.
func Pt(x, y float64) Vec {
	return Vec{X: x, Y: y}
}

// Distance returns |a − b|.
func Distance(a, b Vec) float64 {
	return r2.Norm(r2.Sub(a, b))
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Angle returns the angle of p around center in [0, 360).
// The angle of the center itself is 0.
func Angle(center, p Vec) float64 {
	dx := p.X - center.X
	dy := center.Y - p.Y
	if dx == 0 && dy == 0 {
		return 0
	}
	a := Degrees(math.Atan2(dy, dx))
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a -= 360
	}
	return a
}

// PointAt returns the point at the given radius and angle (degrees) around center.
// A negative radius lands on the opposite side.
func PointAt(center Vec, radius, angle float64) Vec {
	rad := Radians(angle)
	return Vec{
		X: center.X + radius*math.Cos(rad),
		Y: center.Y - radius*math.Sin(rad),
	}
}

// ClampAngle brings an angle into [0, 360]. Positive multiples of 360 map to
// 360 so that a full circle drawn from 360 down to 0 survives normalization.
func ClampAngle(angle float64) float64 {
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return 0
	}
	c := math.Mod(angle, 360)
	if c < 0 {
		c += 360
	}
	if c == 0 && angle > 0 {
		return 360
	}
	return c
}

// Segment is the directed line from P1 to P2.
type Segment struct {
	P1, P2 Vec
}

// Length returns |P2 − P1|.
func (s Segment) Length() float64 {
	return Distance(s.P1, s.P2)
}

// SignedDistance returns the perpendicular distance of p from the line through
// the segment. The sign tells which side p is on; it is 0 for a degenerate segment.
func (s Segment) SignedDistance(p Vec) float64 {
	d := r2.Sub(s.P2, s.P1)
	normal := Vec{X: -d.Y, Y: d.X}
	amp := r2.Norm(normal)
	if amp == 0 {
		return 0
	}
	return r2.Dot(r2.Sub(p, s.P1), normal) / amp
}

// ParallelPosition projects p onto the segment: 0 at P1, 1 at P2, outside
// [0, 1] beyond the endpoints.
func (s Segment) ParallelPosition(p Vec) float64 {
	d := r2.Sub(s.P2, s.P1)
	l2 := r2.Norm2(d)
	if l2 == 0 {
		return 0
	}
	return r2.Dot(r2.Sub(p, s.P1), d) / l2
}

// Side reports which side of the segment p lies on: −1 for negative signed
// distance and +1 otherwise.
func (s Segment) Side(p Vec) int {
	if s.SignedDistance(p) < 0 {
		return -1
	}
	return 1
}

// Near reports whether p projects strictly inside the segment and lies within
// tolerance of its line.
func (s Segment) Near(p Vec, tolerance float64) bool {
	t := s.ParallelPosition(p)
	return t > 0 && t < 1 && math.Abs(s.SignedDistance(p)) < tolerance
}
