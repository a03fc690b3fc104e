package scene

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"playround/internal/geom"
)

// radiusEpsilon below which a curved path is treated as a circular arc.
const radiusEpsilon = 1e-4

// Path is a traversable connection between two junctions.
type Path interface {
	Object
	// Junctions returns the start and end junction.
	Junctions() (JunctionID, JunctionID)
	// Endpoints returns the geometric start and end point.
	Endpoints() (geom.Vec, geom.Vec)
	// Advance moves pos by distance along the path, toward the start when
	// reverse is set. The result is clamped to the path's endpoints.
	Advance(pos geom.Vec, distance float64, reverse bool) geom.Vec

	base() *pathBase
}

// pathBase is the state shared by every path kind.
type pathBase struct {
	node
	j1, j2   JunctionID
	Enabled  bool
	Active   bool
	Directed bool

	markers []*Marker
}

func newPathBase(id, parent string) pathBase {
	return pathBase{
		node:     node{id: id, parent: parent},
		Enabled:  true,
		Directed: true,
	}
}

func (p *pathBase) base() *pathBase                      { return p }
func (p *pathBase) Junctions() (JunctionID, JunctionID) { return p.j1, p.j2 }

func (p *pathBase) fill(r *Record) {
	r.Junctions = [2]JunctionID{p.j1, p.j2}
	r.Enabled = p.Enabled
	r.Active = p.Active
	r.Directed = p.Directed
}

// =============================================================================
// CURVED PATH
// =============================================================================

// CurvedPath is a spiral arc around its pad's center. It runs clockwise on
// screen from StartAngle to EndAngle while the radius varies linearly with
// the angle travelled.
type CurvedPath struct {
	pathBase
	Center      geom.Vec
	StartAngle  float64
	StartRadius float64
	EndAngle    float64
	EndRadius   float64
}

func (c *CurvedPath) Kind() Kind { return KindCurvedPath }

func (c *CurvedPath) Endpoints() (geom.Vec, geom.Vec) {
	return geom.PointAt(c.Center, c.StartRadius, c.StartAngle),
		geom.PointAt(c.Center, c.EndRadius, c.EndAngle)
}

func (c *CurvedPath) Record() Record {
	r := Record{
		Kind:        KindCurvedPath,
		ID:          c.id,
		Parent:      c.parent,
		Center:      c.Center,
		StartAngle:  c.StartAngle,
		StartRadius: c.StartRadius,
		EndAngle:    c.EndAngle,
		EndRadius:   c.EndRadius,
	}
	c.fill(&r)
	return r
}

// Span returns the clockwise sweep in degrees, in (0, 360]. Equal angles
// describe a full turn.
func (c *CurvedPath) Span() float64 {
	s := math.Mod(c.StartAngle-c.EndAngle, 360)
	if s <= 0 {
		s += 360
	}
	return s
}

// progress returns how far pos is from the start, in degrees within [0, span].
// Positions outside the sweep snap to the nearer end.
func (c *CurvedPath) progress(pos geom.Vec) float64 {
	span := c.Span()
	t := math.Mod(c.StartAngle-geom.Angle(c.Center, pos), 360)
	if t < 0 {
		t += 360
	}
	if t > span {
		if t-span < 360-t {
			return span
		}
		return 0
	}
	return t
}

// pointAt returns the point u radians into the sweep.
func (c *CurvedPath) pointAt(u float64) geom.Vec {
	span := geom.Radians(c.Span())
	k := (c.EndRadius - c.StartRadius) / span
	return geom.PointAt(c.Center, c.StartRadius+k*u, c.StartAngle-geom.Degrees(u))
}

func (c *CurvedPath) Advance(pos geom.Vec, distance float64, reverse bool) geom.Vec {
	span := geom.Radians(c.Span())
	uc := geom.Radians(c.progress(pos))
	if distance <= 0 {
		return c.pointAt(uc)
	}

	r0 := c.StartRadius
	k := (c.EndRadius - r0) / span
	far := span
	if reverse {
		far = 0
	}

	var u float64
	if math.Abs(c.EndRadius-r0) < radiusEpsilon {
		if r0 <= 0 {
			return c.pointAt(far)
		}
		if reverse {
			u = uc - distance/r0
		} else {
			u = uc + distance/r0
		}
	} else {
		// Arc length from uc to u is r0·(u−uc) + k/2·(u²−uc²).
		sign := 1.0
		if reverse {
			sign = -1
		}
		roots := solveQuadratic(k/2, r0, -(r0*uc + k/2*uc*uc + sign*distance))
		u = far
		found := false
		for _, root := range roots {
			if reverse {
				if root >= 0 && root <= uc && (!found || root < u) {
					u, found = root, true
				}
			} else if root >= uc && root <= span && (!found || root > u) {
				u, found = root, true
			}
		}
		if !found {
			u = far
		}
	}

	if u < 0 {
		u = 0
	}
	if u > span {
		u = span
	}
	return c.pointAt(u)
}

// solveQuadratic returns the real roots of a·x² + b·x + c.
func solveQuadratic(a, b, c float64) []float64 {
	if math.Abs(a) < 1e-12 {
		if b == 0 {
			return nil
		}
		return []float64{-c / b}
	}
	disc := b*b - 4*a*c
	if disc < 0 {
		return nil
	}
	q := -0.5 * (b + math.Copysign(math.Sqrt(disc), b))
	if q == 0 {
		return []float64{0}
	}
	return []float64{q / a, c / q}
}

// =============================================================================
// STRAIGHT PATH
// =============================================================================

// StraightPath is a segment between two junctions. It may cross pads.
type StraightPath struct {
	pathBase
	P1, P2 geom.Vec
}

func (p *StraightPath) Kind() Kind { return KindStraightPath }

func (p *StraightPath) Endpoints() (geom.Vec, geom.Vec) {
	return p.P1, p.P2
}

func (p *StraightPath) Record() Record {
	r := Record{
		Kind:   KindStraightPath,
		ID:     p.id,
		Parent: p.parent,
		P1:     p.P1,
		P2:     p.P2,
	}
	p.fill(&r)
	return r
}

func (p *StraightPath) Advance(pos geom.Vec, distance float64, reverse bool) geom.Vec {
	length := geom.Distance(p.P1, p.P2)
	if length == 0 {
		return p.P1
	}
	dir := r2.Unit(r2.Sub(p.P2, p.P1))
	if reverse {
		dir = r2.Scale(-1, dir)
	}
	next := r2.Add(pos, r2.Scale(distance, dir))
	switch {
	case geom.Distance(next, p.P1) > length:
		return p.P2
	case geom.Distance(next, p.P2) > length:
		return p.P1
	}
	return next
}

// TraceCurve samples a curved path record into n+1 points from its start to
// its end junction.
func TraceCurve(rec Record, n int) []geom.Vec {
	if n < 1 {
		n = 1
	}
	c := &CurvedPath{
		Center:      rec.Center,
		StartAngle:  rec.StartAngle,
		StartRadius: rec.StartRadius,
		EndAngle:    rec.EndAngle,
		EndRadius:   rec.EndRadius,
	}
	span := geom.Radians(c.Span())
	out := make([]geom.Vec, 0, n+1)
	for i := 0; i <= n; i++ {
		out = append(out, c.pointAt(span*float64(i)/float64(n)))
	}
	return out
}
