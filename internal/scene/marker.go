package scene

import (
	"fmt"
	"math"

	"playround/internal/geom"
)

// Marker is a point travelling along one path from its start junction to its
// end junction. It remembers which side of each nearby string it was last on.
type Marker struct {
	Start, End JunctionID
	Pos        geom.Vec

	sides map[string]int
}

// MarkerView is a read-only copy of a marker.
type MarkerView struct {
	Path  string     `json:"path"`
	Pos   geom.Vec   `json:"pos"`
	Start JunctionID `json:"start"`
	End   JunctionID `json:"end"`
}

func (m *Marker) view(path string) MarkerView {
	return MarkerView{Path: path, Pos: m.Pos, Start: m.Start, End: m.End}
}

// PluckEvent reports one string excitation.
type PluckEvent struct {
	String    string   `json:"string"`
	Frequency float64  `json:"frequency"`
	Pos       geom.Vec `json:"pos"`
	Tick      uint64   `json:"tick"`
	// Path is empty for cursor plucks.
	Path string `json:"path,omitempty"`
}

// TickResult summarizes one simulation step.
type TickResult struct {
	Tick    uint64
	Plucks  []PluckEvent
	Markers int
	Spawned int
	Retired int
}

// SpawnMarker places a marker at the start junction of a path, heading to
// its end junction.
func (s *Scene) SpawnMarker(pathID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.objects[pathID].(Path)
	if !ok {
		return fmt.Errorf("path %q: %w", pathID, ErrNotFound)
	}
	j1, j2 := p.Junctions()
	s.spawn(p, j1, j2)
	return nil
}

// SpawnAtJunction places a marker on every path that starts at the junction.
// It returns the identifiers of those paths.
func (s *Scene) SpawnAtJunction(id JunctionID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := s.junctions[id]
	if j == nil {
		return nil, fmt.Errorf("junction %d: %w", id, ErrNotFound)
	}
	var spawned []string
	for _, pid := range j.paths {
		p, ok := s.objects[pid].(Path)
		if !ok {
			continue
		}
		j1, j2 := p.Junctions()
		if j1 != id {
			continue
		}
		s.spawn(p, j1, j2)
		spawned = append(spawned, pid)
	}
	return spawned, nil
}

func (s *Scene) spawn(p Path, from, to JunctionID) {
	start := s.junctions[from]
	if start == nil {
		return
	}
	b := p.base()
	b.markers = append(b.markers, &Marker{
		Start: from,
		End:   to,
		Pos:   start.Center,
		sides: make(map[string]int),
	})
	b.Active = true
}

// Tick advances every marker by one step. For each marker it first checks
// the strings of the pads homing its path's junctions, then moves it, then
// fans it out onto the next paths once it reaches its end junction.
// Markers spawned by fan-out join after the step.
func (s *Scene) Tick() TickResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tick++
	res := TickResult{Tick: s.tick}

	type pending struct {
		path     Path
		from, to JunctionID
	}
	var spawns []pending
	live := 0

	paths := s.paths()
	for _, p := range paths {
		live += len(p.base().markers)
	}

	for _, p := range paths {
		b := p.base()
		kept := b.markers[:0]
		for _, m := range b.markers {
			res.Plucks = append(res.Plucks, s.checkStrings(p, m)...)

			reverse := m.Start != b.j1
			if !s.atEnd(m) {
				m.Pos = p.Advance(m.Pos, s.cfg.MarkerSpeed, reverse)
			}
			if !s.atEnd(m) {
				kept = append(kept, m)
				continue
			}

			res.Retired++
			live--
			end := s.junctions[m.End]
			if end == nil {
				continue
			}
			for _, next := range end.paths {
				if next == b.id {
					continue
				}
				np, ok := s.objects[next].(Path)
				if !ok || !np.base().Enabled {
					continue
				}
				n1, n2 := np.Junctions()
				if np.base().Directed && n1 != m.End {
					continue
				}
				if s.cfg.MaxMarkers > 0 && live+len(spawns) >= s.cfg.MaxMarkers {
					s.droppedSpawns++
					continue
				}
				other := n2
				if n1 != m.End {
					other = n1
				}
				spawns = append(spawns, pending{path: np, from: m.End, to: other})
			}
		}
		for i := len(kept); i < len(b.markers); i++ {
			b.markers[i] = nil
		}
		b.markers = kept
		b.Active = len(kept) > 0
	}

	for _, sp := range spawns {
		s.spawn(sp.path, sp.from, sp.to)
	}
	res.Spawned = len(spawns)
	res.Markers = live + len(spawns)
	s.plucks += uint64(len(res.Plucks))
	return res
}

func (s *Scene) atEnd(m *Marker) bool {
	end := s.junctions[m.End]
	if end == nil {
		return true
	}
	return end.Hit(m.Pos)
}

// checkStrings plucks every string of the path's home pads that the marker
// crossed since it last looked. The first observation only records a side.
func (s *Scene) checkStrings(p Path, m *Marker) []PluckEvent {
	var out []PluckEvent
	j1, j2 := p.Junctions()
	seen := make(map[string]bool, 2)
	for _, jid := range []JunctionID{j1, j2} {
		j := s.junctions[jid]
		if j == nil || j.Home == "" || seen[j.Home] {
			continue
		}
		seen[j.Home] = true
		pad, ok := s.pad(j.Home)
		if !ok {
			continue
		}
		for _, cid := range pad.children {
			str, ok := s.objects[cid].(*String)
			if !ok {
				continue
			}
			seg := str.Segment()
			dist := seg.SignedDistance(m.Pos)
			ppos := seg.ParallelPosition(m.Pos)
			prev, known := m.sides[cid]
			if known && ppos > 0 && ppos < 1 && math.Abs(dist) < s.cfg.PluckTolerance && dist*float64(prev) < 0 {
				str.pluck()
				out = append(out, PluckEvent{
					String:    cid,
					Frequency: str.Frequency,
					Pos:       m.Pos,
					Tick:      s.tick,
					Path:      p.ID(),
				})
			}
			m.sides[cid] = seg.Side(m.Pos)
		}
	}
	return out
}

// Hover plucks every string a local cursor at pt has just crossed.
func (s *Scene) Hover(pt geom.Vec) []PluckEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PluckEvent
	for _, id := range s.order {
		str, ok := s.objects[id].(*String)
		if !ok {
			continue
		}
		seg := str.Segment()
		if !seg.Near(pt, s.cfg.HoverTolerance) {
			continue
		}
		side := seg.Side(pt)
		if str.mouseSide != 0 && side != str.mouseSide {
			str.pluck()
			s.plucks++
			out = append(out, PluckEvent{
				String:    id,
				Frequency: str.Frequency,
				Pos:       pt,
				Tick:      s.tick,
			})
		}
		str.mouseSide = side
	}
	return out
}
