package scene

import (
	"sort"

	"playround/internal/geom"
)

// JunctionID indexes the junction arena. Zero means "no junction".
type JunctionID uint32

// Junction is a point where paths meet. Junctions are owned by the arena and
// shared by every path that references them; a junction is freed when its
// last path detaches.
type Junction struct {
	ID     JunctionID
	Center geom.Vec
	Radius float64
	// Home is the pad whose strings a marker passing through checks, or "".
	Home string

	paths []string
}

// Hit reports whether p falls on the junction.
func (j *Junction) Hit(p geom.Vec) bool {
	return geom.Distance(j.Center, p) <= j.Radius
}

// Paths returns the identifiers of incident paths in attachment order.
func (j *Junction) Paths() []string {
	out := make([]string, len(j.paths))
	copy(out, j.paths)
	return out
}

// JunctionView is a read-only copy of a junction.
type JunctionView struct {
	ID     JunctionID `json:"id"`
	Center geom.Vec   `json:"center"`
	Radius float64    `json:"radius"`
	Home   string     `json:"home,omitempty"`
	Paths  []string   `json:"paths"`
}

func (j *Junction) view() JunctionView {
	return JunctionView{
		ID:     j.ID,
		Center: j.Center,
		Radius: j.Radius,
		Home:   j.Home,
		Paths:  j.Paths(),
	}
}

// =============================================================================
// ARENA (caller holds s.mu)
// =============================================================================

func (s *Scene) newJunction(center geom.Vec, home string) *Junction {
	s.nextJunction++
	j := &Junction{
		ID:     s.nextJunction,
		Center: center,
		Radius: s.cfg.JunctionRadius,
		Home:   home,
	}
	s.junctions[j.ID] = j
	return j
}

func (s *Scene) attachJunction(id JunctionID, pathID string) {
	j := s.junctions[id]
	if j == nil {
		return
	}
	for _, p := range j.paths {
		if p == pathID {
			return
		}
	}
	j.paths = append(j.paths, pathID)
}

// detachJunction drops pathID from the junction and frees it once unused.
func (s *Scene) detachJunction(id JunctionID, pathID string) {
	j := s.junctions[id]
	if j == nil {
		return
	}
	for i, p := range j.paths {
		if p == pathID {
			j.paths = append(j.paths[:i], j.paths[i+1:]...)
			break
		}
	}
	if len(j.paths) == 0 {
		delete(s.junctions, id)
	}
}

// sortedJunctions returns the arena in creation order.
func (s *Scene) sortedJunctions() []*Junction {
	out := make([]*Junction, 0, len(s.junctions))
	for _, j := range s.junctions {
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// padJunctions returns the junctions of the pad's paths, most recent path first.
func (s *Scene) padJunctions(pad *Pad) []*Junction {
	var out []*Junction
	seen := make(map[JunctionID]bool)
	for i := len(pad.children) - 1; i >= 0; i-- {
		p, ok := s.objects[pad.children[i]].(Path)
		if !ok {
			continue
		}
		j1, j2 := p.Junctions()
		for _, id := range []JunctionID{j1, j2} {
			if j := s.junctions[id]; j != nil && !seen[id] {
				seen[id] = true
				out = append(out, j)
			}
		}
	}
	return out
}

// matchJunctions picks reusable junctions for a new path's endpoints. Each
// candidate is claimed by at most one endpoint, start first.
func matchJunctions(candidates []*Junction, start, end geom.Vec) (*Junction, *Junction) {
	var js, je *Junction
	for _, j := range candidates {
		if js == nil && j.Hit(start) {
			js = j
		} else if je == nil && j.Hit(end) {
			je = j
		}
	}
	return js, je
}
