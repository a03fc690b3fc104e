package scene

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playround/internal/geom"
)

func newArc(a0, r0, a1, r1 float64) *CurvedPath {
	return &CurvedPath{
		Center:      geom.Pt(0, 0),
		StartAngle:  a0,
		StartRadius: r0,
		EndAngle:    a1,
		EndRadius:   r1,
	}
}

// TestCurvedAdvanceConstantRadius verifies arc travel on a circle
func TestCurvedAdvanceConstantRadius(t *testing.T) {
	arc := newArc(90, 50, 0, 50)
	step := 50 * geom.Radians(10)

	next := arc.Advance(geom.PointAt(arc.Center, 50, 90), step, false)
	assert.InDelta(t, 80, geom.Angle(arc.Center, next), 1e-9)
	assert.InDelta(t, 50, geom.Distance(arc.Center, next), 1e-9)

	back := arc.Advance(geom.PointAt(arc.Center, 50, 45), step, true)
	assert.InDelta(t, 55, geom.Angle(arc.Center, back), 1e-9)
}

// TestCurvedAdvanceClamps verifies overshoot lands on the endpoints
func TestCurvedAdvanceClamps(t *testing.T) {
	arc := newArc(90, 50, 0, 50)
	start, end := arc.Endpoints()

	assert.InDelta(t, 0, geom.Distance(end, arc.Advance(geom.PointAt(arc.Center, 50, 10), 1000, false)), 1e-9)
	assert.InDelta(t, 0, geom.Distance(start, arc.Advance(geom.PointAt(arc.Center, 50, 80), 1000, true)), 1e-9)
}

// TestCurvedAdvanceSpiral verifies travel on a spiral covers the requested arc length
func TestCurvedAdvanceSpiral(t *testing.T) {
	arc := newArc(90, 10, 0, 50)
	span := geom.Radians(arc.Span())
	k := (arc.EndRadius - arc.StartRadius) / span
	arcLength := func(u float64) float64 { return arc.StartRadius*u + k/2*u*u }
	progress := func(p geom.Vec) float64 { return geom.Radians(90 - geom.Angle(arc.Center, p)) }

	start, _ := arc.Endpoints()
	next := arc.Advance(start, 10, false)
	u := progress(next)
	assert.InDelta(t, 10, arcLength(u), 1e-6)
	assert.InDelta(t, arc.StartRadius+k*u, geom.Distance(arc.Center, next), 1e-6)

	back := arc.Advance(next, 4, true)
	assert.InDelta(t, 6, arcLength(progress(back)), 1e-6)
}

// TestCurvedSpanAndProgress verifies sweep normalization
func TestCurvedSpanAndProgress(t *testing.T) {
	tests := []struct {
		a0, a1, want float64
	}{
		{90, 0, 90},
		{30, 270, 120},
		{0, 90, 270},
		{180, 180, 360},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, newArc(tt.a0, 10, tt.a1, 10).Span(), 1e-9)
	}

	arc := newArc(90, 50, 0, 50)
	// outside the sweep, nearer the end
	assert.InDelta(t, 90, arc.progress(geom.PointAt(arc.Center, 50, 350)), 1e-9)
	// outside the sweep, nearer the start
	assert.InDelta(t, 0, arc.progress(geom.PointAt(arc.Center, 50, 120)), 1e-9)
}

// TestStraightAdvance verifies segment travel and clamping
func TestStraightAdvance(t *testing.T) {
	p := &StraightPath{P1: geom.Pt(0, 0), P2: geom.Pt(100, 0)}

	tests := []struct {
		name    string
		pos     geom.Vec
		reverse bool
		want    geom.Vec
	}{
		{"forward", geom.Pt(0, 0), false, geom.Pt(10, 0)},
		{"forward clamps", geom.Pt(95, 0), false, geom.Pt(100, 0)},
		{"reverse", geom.Pt(50, 0), true, geom.Pt(40, 0)},
		{"reverse clamps", geom.Pt(5, 0), true, geom.Pt(0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Advance(tt.pos, 10, tt.reverse)
			assert.InDelta(t, tt.want.X, got.X, 1e-9)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-9)
		})
	}
}

// TestMarkerFanOut verifies a marker continues onto directed successors only
func TestMarkerFanOut(t *testing.T) {
	s, _, _ := newTestScene()
	_, _, err := s.Apply(padRecord("pad", 100, 100, 100))
	require.NoError(t, err)
	_, _, err = s.Apply(lineRecord(KindStraightPath, "a", "pad", geom.Pt(50, 100), geom.Pt(80, 100)))
	require.NoError(t, err)
	_, _, err = s.Apply(lineRecord(KindStraightPath, "b", "pad", geom.Pt(80, 100), geom.Pt(120, 100)))
	require.NoError(t, err)
	// ends at the shared junction, so directed travel never enters it
	_, _, err = s.Apply(lineRecord(KindStraightPath, "c", "pad", geom.Pt(150, 150), geom.Pt(80, 100)))
	require.NoError(t, err)

	require.NoError(t, s.SpawnMarker("a"))

	s.Tick()
	s.Tick()
	res := s.Tick()
	assert.Equal(t, 1, res.Retired)
	assert.Equal(t, 1, res.Spawned)
	assert.Equal(t, 1, res.Markers)

	frame := s.Snapshot()
	require.Len(t, frame.Markers, 1)
	assert.Equal(t, "b", frame.Markers[0].Path)
	assert.Equal(t, geom.Pt(80, 100), frame.Markers[0].Pos)

	a, _ := s.Get("a")
	b, _ := s.Get("b")
	assert.False(t, a.Active)
	assert.True(t, b.Active)
}

// TestMarkerFanOutUndirected verifies undirected paths take markers from
// either end and disabled paths take none
func TestMarkerFanOutUndirected(t *testing.T) {
	tests := []struct {
		name     string
		disabled string
		want     []string
	}{
		{"all enabled", "", []string{"b", "c"}},
		{"one disabled", "c", []string{"b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newTestScene()
			_, _, err := s.Apply(padRecord("pad", 100, 100, 100))
			require.NoError(t, err)
			_, _, err = s.Apply(lineRecord(KindStraightPath, "a", "pad", geom.Pt(50, 100), geom.Pt(80, 100)))
			require.NoError(t, err)
			_, _, err = s.Apply(lineRecord(KindStraightPath, "b", "pad", geom.Pt(80, 100), geom.Pt(120, 100)))
			require.NoError(t, err)
			// ends at the shared junction, so a marker entering it travels backwards
			_, _, err = s.Apply(lineRecord(KindStraightPath, "c", "pad", geom.Pt(150, 150), geom.Pt(80, 100)))
			require.NoError(t, err)

			for _, id := range []string{"a", "b", "c"} {
				s.objects[id].(Path).base().Directed = false
			}
			if tt.disabled != "" {
				s.objects[tt.disabled].(Path).base().Enabled = false
			}

			require.NoError(t, s.SpawnMarker("a"))
			s.Tick()
			s.Tick()
			res := s.Tick()
			assert.Equal(t, 1, res.Retired)
			assert.Equal(t, len(tt.want), res.Spawned)

			var paths []string
			for _, m := range s.Snapshot().Markers {
				assert.Equal(t, geom.Pt(80, 100), m.Pos)
				paths = append(paths, m.Path)
			}
			assert.ElementsMatch(t, tt.want, paths)

			c, _ := s.Get("c")
			assert.Equal(t, tt.disabled == "", c.Active)
			if tt.disabled != "" {
				return
			}

			s.Tick()
			for _, m := range s.Snapshot().Markers {
				if m.Path != "c" {
					continue
				}
				assert.Equal(t, c.Junctions[1], m.Start)
				assert.Equal(t, c.Junctions[0], m.End)
				assert.InDelta(t, geom.Distance(geom.Pt(80, 100), geom.Pt(150, 150))-10,
					geom.Distance(m.Pos, geom.Pt(150, 150)), 1e-9)
			}
		})
	}
}

// TestMarkerPlucksCrossedString verifies a crossing within tolerance sounds the string
func TestMarkerPlucksCrossedString(t *testing.T) {
	s, _, voices := newTestScene()
	_, _, err := s.Apply(padRecord("pad", 100, 100, 100))
	require.NoError(t, err)
	_, _, err = s.Apply(lineRecord(KindStraightPath, "path", "pad", geom.Pt(55, 100), geom.Pt(150, 100)))
	require.NoError(t, err)
	_, _, err = s.Apply(lineRecord(KindString, "str", "pad", geom.Pt(100, 70), geom.Pt(100, 130)))
	require.NoError(t, err)
	require.NoError(t, s.SpawnMarker("path"))

	var plucks []PluckEvent
	for i := 0; i < 6; i++ {
		plucks = append(plucks, s.Tick().Plucks...)
	}
	require.Len(t, plucks, 1)
	assert.Equal(t, "str", plucks[0].String)
	assert.Equal(t, "path", plucks[0].Path)
	assert.Equal(t, uint64(6), plucks[0].Tick)
	assert.InDelta(t, 418, plucks[0].Frequency, 1e-9)
	// one note from creation, one from the pluck
	assert.Len(t, voices["str"].on, 2)
}

// TestMarkerIgnoresFarStrings verifies strings outside the home pads never sound
func TestMarkerIgnoresFarStrings(t *testing.T) {
	s, _, _ := newTestScene()
	_, _, err := s.Apply(padRecord("pad", 100, 100, 100))
	require.NoError(t, err)
	_, _, err = s.Apply(padRecord("far", 400, 400, 50))
	require.NoError(t, err)
	_, _, err = s.Apply(lineRecord(KindStraightPath, "path", "pad", geom.Pt(55, 100), geom.Pt(150, 100)))
	require.NoError(t, err)
	// crosses the path geometrically but belongs to a pad no junction is homed on
	_, _, err = s.Apply(lineRecord(KindString, "str", "far", geom.Pt(100, 70), geom.Pt(100, 130)))
	require.NoError(t, err)
	require.NoError(t, s.SpawnMarker("path"))

	for i := 0; i < 10; i++ {
		assert.Empty(t, s.Tick().Plucks)
	}
}

// TestHoverPlucksOnCrossing verifies cursor plucks need a side change near the string
func TestHoverPlucksOnCrossing(t *testing.T) {
	s, _, _ := newTestScene()
	_, _, err := s.Apply(padRecord("pad", 100, 100, 100))
	require.NoError(t, err)
	_, _, err = s.Apply(lineRecord(KindString, "str", "pad", geom.Pt(100, 70), geom.Pt(100, 130)))
	require.NoError(t, err)

	assert.Empty(t, s.Hover(geom.Pt(97, 100)), "first observation only records a side")
	assert.Empty(t, s.Hover(geom.Pt(98, 100)))
	plucks := s.Hover(geom.Pt(103, 100))
	require.Len(t, plucks, 1)
	assert.Equal(t, "str", plucks[0].String)
	assert.Empty(t, plucks[0].Path)

	// moving away and back on the far side does not pluck
	assert.Empty(t, s.Hover(geom.Pt(150, 100)))
	assert.Empty(t, s.Hover(geom.Pt(103, 110)))
}

// TestSpawnAtJunction verifies markers start on every path leaving the junction
func TestSpawnAtJunction(t *testing.T) {
	s, _, _ := newTestScene()
	_, _, err := s.Apply(padRecord("pad", 100, 100, 100))
	require.NoError(t, err)
	a, _, err := s.Apply(lineRecord(KindStraightPath, "a", "pad", geom.Pt(50, 100), geom.Pt(80, 100)))
	require.NoError(t, err)
	_, _, err = s.Apply(lineRecord(KindStraightPath, "b", "pad", geom.Pt(50, 100), geom.Pt(50, 150)))
	require.NoError(t, err)

	paths, err := s.SpawnAtJunction(a.Junctions[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, paths)
	assert.Len(t, s.Snapshot().Markers, 2)

	_, err = s.SpawnAtJunction(999)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.SpawnMarker("pad"), ErrNotFound)
}

// TestMarkerCap verifies fan-out stops at the configured marker limit
func TestMarkerCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMarkers = 1
	s := New(cfg, nil, nil)
	_, _, err := s.Apply(padRecord("pad", 100, 100, 100))
	require.NoError(t, err)
	_, _, err = s.Apply(lineRecord(KindStraightPath, "a", "pad", geom.Pt(50, 100), geom.Pt(60, 100)))
	require.NoError(t, err)
	_, _, err = s.Apply(lineRecord(KindStraightPath, "b", "pad", geom.Pt(60, 100), geom.Pt(100, 100)))
	require.NoError(t, err)
	_, _, err = s.Apply(lineRecord(KindStraightPath, "c", "pad", geom.Pt(60, 100), geom.Pt(60, 150)))
	require.NoError(t, err)
	require.NoError(t, s.SpawnMarker("a"))

	res := s.Tick()
	assert.Equal(t, 1, res.Spawned)
	assert.Equal(t, uint64(1), s.GetStats()["droppedSpawns"])
}

// TestSeedLoopPlucks verifies the starter scene plays on its own
func TestSeedLoopPlucks(t *testing.T) {
	s, bank, _ := newTestScene()
	recs, err := s.Seed(512, 512)
	require.NoError(t, err)
	require.Len(t, recs, 7)
	assert.Equal(t, geom.Pt(128, 128), recs[0].Center)
	assert.Equal(t, WelcomeText, recs[0].Text)
	assert.Len(t, s.Junctions(), 3)
	assert.Len(t, bank.inserted, 3)

	frame := s.Snapshot()
	require.Len(t, frame.Markers, 1)
	assert.Equal(t, recs[1].ID, frame.Markers[0].Path)

	plucked := map[string]bool{}
	for i := 0; i < 200; i++ {
		for _, p := range s.Tick().Plucks {
			plucked[p.String] = true
		}
	}
	assert.Len(t, plucked, 3, "the marker goes round the loop across every string")
	assert.Len(t, s.Snapshot().Markers, 1)
	assert.False(t, math.IsNaN(s.Snapshot().Markers[0].Pos.X))
}
