package scene

import (
	"github.com/google/uuid"

	"playround/internal/geom"
)

// WelcomeText is shown on the private pad every peer starts with.
const WelcomeText = "Hi there!\nSo glad to see ya!\n\nWelcome to Play 'Round.\n\n" +
	"The pad above is yours.\nNo one else will ever\nsee it. Use it to\ntry things out.\n\n" +
	"If you need more room,\njust expand the window."

// Seed builds the private starter scene for a canvas of the given size: a
// pad in the upper-left quarter, a closed loop of three arcs with a marker
// running on it, and one string across each arc. Nothing here is broadcast.
// It returns the records it created.
func (s *Scene) Seed(width, height float64) ([]Record, error) {
	newID := func() string { return uuid.NewString() }

	var out []Record
	add := func(rec Record) (Record, error) {
		created, err := s.Create(rec)
		if err != nil {
			return Record{}, err
		}
		out = append(out, created)
		return created, nil
	}

	pad, err := add(Record{
		Kind:   KindPad,
		ID:     newID(),
		Center: geom.Pt(width/4, height/4),
		Radius: 100,
		Text:   WelcomeText,
	})
	if err != nil {
		return nil, err
	}

	arcs := [][2]float64{{30, 270}, {270, 150}, {150, 30}}
	var first string
	for _, a := range arcs {
		arc, err := add(Record{
			Kind:        KindCurvedPath,
			ID:          newID(),
			Parent:      pad.ID,
			StartAngle:  a[0],
			StartRadius: 60,
			EndAngle:    a[1],
			EndRadius:   60,
		})
		if err != nil {
			return nil, err
		}
		if first == "" {
			first = arc.ID
		}
	}
	if err := s.SpawnMarker(first); err != nil {
		return nil, err
	}

	for _, angle := range []float64{330, 210, 90} {
		_, err := add(Record{
			Kind:   KindString,
			ID:     newID(),
			Parent: pad.ID,
			P1:     geom.PointAt(pad.Center, 30, angle),
			P2:     geom.PointAt(pad.Center, 90, angle),
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
