package scene

import (
	"errors"
	"fmt"

	"playround/internal/geom"
)

// ErrDuplicate is returned by local creation when the identifier is taken.
var ErrDuplicate = errors.New("duplicate identifier")

// Outcome tells the caller what Apply did with a record.
type Outcome uint8

const (
	Created Outcome = iota + 1
	Duplicate
	Orphaned
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Duplicate:
		return "duplicate"
	case Orphaned:
		return "orphaned"
	default:
		return "none"
	}
}

// Apply integrates a replicated creation. It is idempotent by identifier;
// records whose parent is unknown are parked in the orphan table. The
// returned record is the canonical form of the created object.
func (s *Scene) Apply(rec Record) (Record, Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(rec, true)
}

// Create integrates a locally originated creation. Unlike Apply, an unknown
// parent is an error.
func (s *Scene) Create(rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, outcome, err := s.apply(rec, false)
	if err != nil {
		return Record{}, err
	}
	if outcome == Duplicate {
		return Record{}, fmt.Errorf("%s %q: %w", rec.Kind, rec.ID, ErrDuplicate)
	}
	return out, nil
}

func (s *Scene) apply(rec Record, park bool) (Record, Outcome, error) {
	if err := rec.validate(); err != nil {
		return Record{}, 0, fmt.Errorf("%s %q: %w", rec.Kind, rec.ID, err)
	}
	if obj, ok := s.objects[rec.ID]; ok {
		return obj.Record(), Duplicate, nil
	}
	if s.orphans.has(rec.ID) {
		return rec, Duplicate, nil
	}

	if rec.Kind == KindPad {
		return s.createPad(rec).Record(), Created, nil
	}

	parent, ok := s.objects[rec.Parent]
	if !ok {
		if !park {
			return Record{}, 0, fmt.Errorf("%s %q: parent %q: %w", rec.Kind, rec.ID, rec.Parent, ErrUnknownParent)
		}
		s.orphans.park(rec)
		return rec, Orphaned, nil
	}
	pad, ok := parent.(*Pad)
	if !ok {
		return Record{}, 0, fmt.Errorf("%s %q: parent %q is a %s: %w", rec.Kind, rec.ID, rec.Parent, parent.Kind(), ErrInvalidParent)
	}

	var obj Object
	switch rec.Kind {
	case KindCurvedPath:
		obj = s.createCurved(rec, pad)
	case KindStraightPath:
		obj = s.createStraight(rec, pad)
	case KindString:
		obj = s.createString(rec, pad)
	}
	return obj.Record(), Created, nil
}

func (s *Scene) createPad(rec Record) *Pad {
	p := &Pad{
		node:   node{id: rec.ID},
		Center: rec.Center,
		Radius: rec.Radius,
		Text:   rec.Text,
	}
	s.register(p)
	return p
}

// createCurved reuses junctions of the pad's paths under either endpoint and
// snaps the endpoint geometry onto reused junctions.
func (s *Scene) createCurved(rec Record, pad *Pad) *CurvedPath {
	c := &CurvedPath{
		pathBase:    newPathBase(rec.ID, pad.id),
		Center:      pad.Center,
		StartAngle:  geom.ClampAngle(rec.StartAngle),
		StartRadius: rec.StartRadius,
		EndAngle:    geom.ClampAngle(rec.EndAngle),
		EndRadius:   rec.EndRadius,
	}
	start, end := c.Endpoints()
	js, je := matchJunctions(s.padJunctions(pad), start, end)

	if js != nil {
		c.StartAngle = geom.ClampAngle(geom.Angle(c.Center, js.Center))
		c.StartRadius = geom.Distance(c.Center, js.Center)
	} else {
		js = s.newJunction(start, pad.id)
	}
	if je != nil {
		c.EndAngle = geom.ClampAngle(geom.Angle(c.Center, je.Center))
		c.EndRadius = geom.Distance(c.Center, je.Center)
	} else {
		je = s.newJunction(end, pad.id)
	}
	js.Home = pad.id
	je.Home = pad.id

	c.j1, c.j2 = js.ID, je.ID
	s.attachJunction(js.ID, c.id)
	s.attachJunction(je.ID, c.id)
	s.register(c)
	return c
}

// createStraight reuses any junction in the scene under either endpoint. New
// junctions are homed on the pad containing them, if any.
func (s *Scene) createStraight(rec Record, pad *Pad) *StraightPath {
	p := &StraightPath{
		pathBase: newPathBase(rec.ID, pad.id),
		P1:       rec.P1,
		P2:       rec.P2,
	}
	js, je := matchJunctions(s.sortedJunctions(), p.P1, p.P2)

	if js != nil {
		p.P1 = js.Center
	} else {
		js = s.newJunction(p.P1, s.homeFor(p.P1))
	}
	if je != nil {
		p.P2 = je.Center
	} else {
		je = s.newJunction(p.P2, s.homeFor(p.P2))
	}

	p.j1, p.j2 = js.ID, je.ID
	s.attachJunction(js.ID, p.id)
	s.attachJunction(je.ID, p.id)
	s.register(p)
	return p
}

func (s *Scene) homeFor(pt geom.Vec) string {
	if p := s.padAt(pt); p != nil {
		return p.id
	}
	return ""
}

func (s *Scene) createString(rec Record, pad *Pad) *String {
	str := &String{
		node: node{id: rec.ID, parent: pad.id},
		P1:   rec.P1,
		P2:   rec.P2,
	}
	if s.newVoice != nil {
		str.voice = s.newVoice(str.id)
	}
	str.setPadRadius(pad.Radius)
	if str.voice != nil {
		s.bank.Insert(str.id, str.voice)
	}
	s.register(str)
	return str
}

// =============================================================================
// MUTATION
// =============================================================================

// SetPadText replaces a pad's comment text.
func (s *Scene) SetPadText(id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pad(id)
	if !ok {
		return fmt.Errorf("pad %q: %w", id, ErrNotFound)
	}
	p.Text = text
	return nil
}

// Delete removes an object and everything that depends on it: a pad takes its
// children and any straight path with a junction homed on it. The returned
// identifiers start with id itself. A parked orphan is dropped along with
// anything parked under it, so its parent arriving later cannot revive it.
func (s *Scene) Delete(id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	switch {
	case s.objects[id] != nil:
		s.delete(id, &removed)
	case s.orphans.has(id):
		s.orphans.remove(id, &removed)
	default:
		return nil, fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	return removed, nil
}

func (s *Scene) delete(id string, removed *[]string) {
	obj, ok := s.objects[id]
	if !ok {
		return
	}
	*removed = append(*removed, id)

	switch o := obj.(type) {
	case *Pad:
		for _, child := range o.Children() {
			s.delete(child, removed)
		}
		for _, p := range s.paths() {
			j1, j2 := p.Junctions()
			if s.homedOn(j1, o.id) || s.homedOn(j2, o.id) {
				s.delete(p.ID(), removed)
			}
		}
		for _, j := range s.junctions {
			if j.Home == o.id {
				j.Home = ""
			}
		}
	case Path:
		b := o.base()
		s.detachJunction(b.j1, b.id)
		s.detachJunction(b.j2, b.id)
		b.markers = nil
	case *String:
		s.bank.Erase(o.id)
	}
	s.unregister(id)
}

func (s *Scene) homedOn(id JunctionID, pad string) bool {
	j := s.junctions[id]
	return j != nil && j.Home == pad
}
