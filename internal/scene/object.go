// Package scene holds the shared scene graph: the object registry, the
// junction arena, the orphan table and the marker traversal simulation.
//
// A Scene is the session object that owns all of it. Every exported method
// takes the scene lock itself, so callers never hold it across I/O.
package scene

import (
	"errors"
	"math"

	"playround/internal/audio"
	"playround/internal/geom"
)

var (
	// ErrNotFound is returned when an identifier is not in the registry.
	ErrNotFound = errors.New("object not found")
	// ErrUnknownParent is returned by local creation when the parent is missing.
	ErrUnknownParent = errors.New("unknown parent")
	// ErrInvalidParent is returned when the parent exists but cannot own the object.
	ErrInvalidParent = errors.New("parent cannot own this object")
	// ErrInvalidRecord is returned for records with missing or non-finite fields.
	ErrInvalidRecord = errors.New("invalid record")
)

// Kind tags the concrete type behind an Object and a Record.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindPad
	KindCurvedPath
	KindStraightPath
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindPad:
		return "pad"
	case KindCurvedPath:
		return "curved_path"
	case KindStraightPath:
		return "straight_path"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// MarshalText makes kinds readable in JSON.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Object is anything stored in the registry.
type Object interface {
	ID() string
	Kind() Kind
	ParentID() string
	Children() []string
	Record() Record
}

// node carries identity and the parent/child links shared by every object.
type node struct {
	id       string
	parent   string
	children []string
}

func (n *node) ID() string       { return n.id }
func (n *node) ParentID() string { return n.parent }

func (n *node) Children() []string {
	out := make([]string, len(n.children))
	copy(out, n.children)
	return out
}

func (n *node) addChild(id string) {
	for _, c := range n.children {
		if c == id {
			return
		}
	}
	n.children = append(n.children, id)
}

func (n *node) removeChild(id string) bool {
	for i, c := range n.children {
		if c == id {
			n.children = append(n.children[:i], n.children[i+1:]...)
			return true
		}
	}
	return false
}

// =============================================================================
// PAD
// =============================================================================

// Pad is a circular region that anchors paths and strings.
type Pad struct {
	node
	Center geom.Vec
	Radius float64
	Text   string
}

func (p *Pad) Kind() Kind { return KindPad }

// Contains reports whether pt lies strictly inside the pad.
func (p *Pad) Contains(pt geom.Vec) bool {
	return geom.Distance(p.Center, pt) < p.Radius
}

func (p *Pad) Record() Record {
	return Record{
		Kind:     KindPad,
		ID:       p.id,
		Center:   p.Center,
		Radius:   p.Radius,
		Text:     p.Text,
		Children: p.Children(),
	}
}

// =============================================================================
// STRING
// =============================================================================

// String is a plucked segment anchored on a pad.
type String struct {
	node
	P1, P2    geom.Vec
	PadRadius float64
	Frequency float64

	voice     audio.SoundSource
	mouseSide int
}

func (s *String) Kind() Kind { return KindString }

// Segment returns the string as a geometric segment.
func (s *String) Segment() geom.Segment {
	return geom.Segment{P1: s.P1, P2: s.P2}
}

// setPadRadius retunes the string and re-plucks it at the new pitch.
func (s *String) setPadRadius(radius float64) {
	s.PadRadius = radius
	s.Frequency = StringFrequency(geom.Distance(s.P1, s.P2), radius)
	if s.voice != nil {
		s.voice.NoteOff(1)
		s.voice.NoteOn(s.Frequency, 1)
	}
}

func (s *String) pluck() {
	if s.voice != nil {
		s.voice.NoteOn(s.Frequency, 1)
	}
}

func (s *String) Record() Record {
	return Record{
		Kind:      KindString,
		ID:        s.id,
		Parent:    s.parent,
		P1:        s.P1,
		P2:        s.P2,
		Frequency: s.Frequency,
	}
}

// StringFrequency maps a string length relative to its pad radius onto
// 880 Hz (vanishingly short) down to 110 Hz (as long as the radius or longer).
func StringFrequency(length, padRadius float64) float64 {
	if padRadius < 0.001 {
		return 880
	}
	return 880 - math.Min(1, length/padRadius)*770
}

// =============================================================================
// RECORD
// =============================================================================

// Record is a detached, value-typed view of one object. It is the canonical
// form used for broadcasting, for parking orphans and for read-only consumers.
type Record struct {
	Kind   Kind   `json:"kind"`
	ID     string `json:"id"`
	Parent string `json:"parent,omitempty"`

	// pad
	Center geom.Vec `json:"center"`
	Radius float64  `json:"radius,omitempty"`
	Text   string   `json:"text,omitempty"`

	// curved path
	StartAngle  float64 `json:"startAngle,omitempty"`
	StartRadius float64 `json:"startRadius,omitempty"`
	EndAngle    float64 `json:"endAngle,omitempty"`
	EndRadius   float64 `json:"endRadius,omitempty"`

	// straight path and string
	P1 geom.Vec `json:"p1"`
	P2 geom.Vec `json:"p2"`

	// derived, never read back from the wire
	Frequency float64       `json:"frequency,omitempty"`
	Junctions [2]JunctionID `json:"junctions"`
	Enabled   bool          `json:"enabled"`
	Active    bool          `json:"active"`
	Directed  bool          `json:"directed"`
	Children  []string      `json:"children,omitempty"`
}

func (r Record) validate() error {
	if r.ID == "" {
		return ErrInvalidRecord
	}
	finite := func(vs ...float64) bool {
		for _, v := range vs {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
		return true
	}
	switch r.Kind {
	case KindPad:
		if !finite(r.Center.X, r.Center.Y, r.Radius) || r.Radius < 0 {
			return ErrInvalidRecord
		}
	case KindCurvedPath:
		if r.Parent == "" || !finite(r.StartAngle, r.StartRadius, r.EndAngle, r.EndRadius) ||
			r.StartRadius < 0 || r.EndRadius < 0 {
			return ErrInvalidRecord
		}
	case KindStraightPath, KindString:
		if r.Parent == "" || !finite(r.P1.X, r.P1.Y, r.P2.X, r.P2.Y) {
			return ErrInvalidRecord
		}
	default:
		return ErrInvalidRecord
	}
	return nil
}
