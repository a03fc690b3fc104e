package scene

import (
	"sync"

	"playround/internal/audio"
	"playround/internal/geom"
)

// Config holds the tunables of the traversal simulation.
type Config struct {
	JunctionRadius float64 // hit radius of a junction
	MarkerSpeed    float64 // distance travelled per tick
	PluckTolerance float64 // max |distance| from a string for a marker crossing
	HoverTolerance float64 // max |distance| from a string for a cursor crossing
	MaxMarkers     int     // fan-out stops spawning beyond this many live markers
}

// DefaultConfig returns the stock simulation tunables.
func DefaultConfig() Config {
	return Config{
		JunctionRadius: 7,
		MarkerSpeed:    10,
		PluckTolerance: 10,
		HoverTolerance: 5,
		MaxMarkers:     1000,
	}
}

// SoundBank receives the voice of every string. *audio.Bank satisfies it.
type SoundBank interface {
	Insert(id string, src audio.SoundSource)
	Erase(id string)
}

// VoiceFactory builds the sound source for a new string.
type VoiceFactory func(id string) audio.SoundSource

type nopBank struct{}

func (nopBank) Insert(string, audio.SoundSource) {}
func (nopBank) Erase(string)                     {}

// Scene is the replicated scene graph plus its simulation state.
type Scene struct {
	mu  sync.RWMutex
	cfg Config

	objects map[string]Object
	order   []string // creation order, for deterministic iteration
	roots   []string

	junctions    map[JunctionID]*Junction
	nextJunction JunctionID

	orphans *orphanTable

	bank     SoundBank
	newVoice VoiceFactory

	tick          uint64
	plucks        uint64
	droppedSpawns uint64
}

// New creates an empty scene. A nil bank discards voices and a nil factory
// creates silent strings.
func New(cfg Config, bank SoundBank, newVoice VoiceFactory) *Scene {
	if cfg.JunctionRadius <= 0 {
		cfg.JunctionRadius = DefaultConfig().JunctionRadius
	}
	if cfg.MarkerSpeed <= 0 {
		cfg.MarkerSpeed = DefaultConfig().MarkerSpeed
	}
	if cfg.PluckTolerance <= 0 {
		cfg.PluckTolerance = DefaultConfig().PluckTolerance
	}
	if cfg.HoverTolerance <= 0 {
		cfg.HoverTolerance = DefaultConfig().HoverTolerance
	}
	if bank == nil {
		bank = nopBank{}
	}
	return &Scene{
		cfg:       cfg,
		objects:   make(map[string]Object),
		junctions: make(map[JunctionID]*Junction),
		orphans:   newOrphanTable(),
		bank:      bank,
		newVoice:  newVoice,
	}
}

// =============================================================================
// REGISTRY (caller holds s.mu)
// =============================================================================

func (s *Scene) register(obj Object) {
	s.objects[obj.ID()] = obj
	s.order = append(s.order, obj.ID())
	if obj.ParentID() == "" {
		s.roots = append(s.roots, obj.ID())
		return
	}
	if parent := s.objects[obj.ParentID()]; parent != nil {
		if n, ok := parent.(interface{ addChild(string) }); ok {
			n.addChild(obj.ID())
		}
	}
}

func (s *Scene) unregister(id string) {
	obj := s.objects[id]
	if obj == nil {
		return
	}
	delete(s.objects, id)
	s.order = removeString(s.order, id)
	if obj.ParentID() == "" {
		s.roots = removeString(s.roots, id)
		return
	}
	if parent := s.objects[obj.ParentID()]; parent != nil {
		if n, ok := parent.(interface{ removeChild(string) bool }); ok {
			n.removeChild(id)
		}
	}
}

func removeString(list []string, id string) []string {
	for i, v := range list {
		if v == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (s *Scene) pad(id string) (*Pad, bool) {
	p, ok := s.objects[id].(*Pad)
	return p, ok
}

func (s *Scene) paths() []Path {
	var out []Path
	for _, id := range s.order {
		if p, ok := s.objects[id].(Path); ok {
			out = append(out, p)
		}
	}
	return out
}

// =============================================================================
// QUERIES
// =============================================================================

// Has reports whether id is registered.
func (s *Scene) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[id]
	return ok
}

// Get returns the record of a registered object.
func (s *Scene) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[id]
	if !ok {
		return Record{}, false
	}
	return obj.Record(), true
}

// Len returns the number of registered objects.
func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Records returns every registered object in creation order.
func (s *Scene) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.objects[id].Record())
	}
	return out
}

// Junctions returns a copy of the junction arena in creation order.
func (s *Scene) Junctions() []JunctionView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	js := s.sortedJunctions()
	out := make([]JunctionView, 0, len(js))
	for _, j := range js {
		out = append(out, j.view())
	}
	return out
}

// PadAt returns the topmost pad containing pt.
func (s *Scene) PadAt(pt geom.Vec) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p := s.padAt(pt); p != nil {
		return p.Record(), true
	}
	return Record{}, false
}

func (s *Scene) padAt(pt geom.Vec) *Pad {
	for i := len(s.roots) - 1; i >= 0; i-- {
		if p, ok := s.pad(s.roots[i]); ok && p.Contains(pt) {
			return p
		}
	}
	return nil
}

// MaxPadRadius returns the largest radius a new pad at center can take
// without overlapping an existing pad, capped at limit.
func (s *Scene) MaxPadRadius(center geom.Vec, limit float64) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := limit
	for _, id := range s.roots {
		p, ok := s.pad(id)
		if !ok {
			continue
		}
		if room := geom.Distance(center, p.Center) - p.Radius; room < r {
			r = room
		}
	}
	if r < 0 {
		return 0
	}
	return r
}

// Frame is a consistent copy of the whole scene at one tick.
type Frame struct {
	Tick      uint64         `json:"tick"`
	Objects   []Record       `json:"objects"`
	Junctions []JunctionView `json:"junctions"`
	Markers   []MarkerView   `json:"markers"`
}

// Snapshot copies the scene under the read lock.
func (s *Scene) Snapshot() *Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f := &Frame{
		Tick:      s.tick,
		Objects:   make([]Record, 0, len(s.order)),
		Junctions: make([]JunctionView, 0, len(s.junctions)),
	}
	for _, id := range s.order {
		obj := s.objects[id]
		f.Objects = append(f.Objects, obj.Record())
		if p, ok := obj.(Path); ok {
			for _, m := range p.base().markers {
				f.Markers = append(f.Markers, m.view(id))
			}
		}
	}
	for _, j := range s.sortedJunctions() {
		f.Junctions = append(f.Junctions, j.view())
	}
	return f
}

// GetStats returns scene statistics
func (s *Scene) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	markers := 0
	for _, obj := range s.objects {
		counts[obj.Kind().String()]++
		if p, ok := obj.(Path); ok {
			markers += len(p.base().markers)
		}
	}
	return map[string]interface{}{
		"objects":       len(s.objects),
		"byKind":        counts,
		"junctions":     len(s.junctions),
		"markers":       markers,
		"orphans":       s.orphans.len(),
		"tick":          s.tick,
		"plucks":        s.plucks,
		"droppedSpawns": s.droppedSpawns,
	}
}
