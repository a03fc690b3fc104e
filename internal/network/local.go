package network

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"playround/internal/geom"
	"playround/internal/logging"
	"playround/internal/metrics"
	"playround/internal/protocol"
	"playround/internal/scene"
)

// ErrNoRoom is returned when a new pad would overlap existing pads.
var ErrNoRoom = errors.New("no room for a pad here")

// MinPadRadius is the smallest pad a local user can create.
const MinPadRadius = 10

// Announce tells every known peer that we are up.
func (p *Processor) Announce() {
	p.flush(p.broadcast(protocol.PeerUp{Addr: 0, Port: int32(p.listenPort)}))
}

// Shutdown tells every known peer that we are leaving.
func (p *Processor) Shutdown() {
	p.flush(p.broadcast(protocol.PeerDown{Addr: 0, Port: int32(p.listenPort)}))
}

// AddPeer registers a peer given out of band, such as on the command line.
func (p *Processor) AddPeer(addr netip.AddrPort) bool {
	if p.isSelf(addr) {
		return false
	}
	added := p.peers.Add(addr)
	if added {
		metrics.UpdatePeers(p.peers.Len())
	}
	return added
}

// create inserts a locally originated object and broadcasts it.
func (p *Processor) create(rec scene.Record) (scene.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	out, err := p.scene.Create(rec)
	if err != nil {
		return scene.Record{}, err
	}
	logging.Info("✨ created", zap.String("kind", out.Kind.String()), zap.String("id", out.ID))
	if p.OnCreate != nil {
		p.OnCreate(out, Local)
	}
	p.flush(p.broadcastRecord(out))
	return out, nil
}

// CreatePad creates a pad at center. The radius shrinks so the pad does not
// overlap its neighbours.
func (p *Processor) CreatePad(center geom.Vec, radius float64) (scene.Record, error) {
	r := p.scene.MaxPadRadius(center, radius)
	if r < MinPadRadius {
		return scene.Record{}, fmt.Errorf("pad at (%.0f, %.0f): %w", center.X, center.Y, ErrNoRoom)
	}
	return p.create(scene.Record{Kind: scene.KindPad, Center: center, Radius: r})
}

// CreateCurvedPath creates a spiral arc on a pad.
func (p *Processor) CreateCurvedPath(padID string, startAngle, startRadius, endAngle, endRadius float64) (scene.Record, error) {
	return p.create(scene.Record{
		Kind:        scene.KindCurvedPath,
		Parent:      padID,
		StartAngle:  startAngle,
		StartRadius: startRadius,
		EndAngle:    endAngle,
		EndRadius:   endRadius,
	})
}

// CreateStraightPath creates a segment path owned by a pad.
func (p *Processor) CreateStraightPath(padID string, p1, p2 geom.Vec) (scene.Record, error) {
	return p.create(scene.Record{Kind: scene.KindStraightPath, Parent: padID, P1: p1, P2: p2})
}

// CreateString creates a string on a pad.
func (p *Processor) CreateString(padID string, p1, p2 geom.Vec) (scene.Record, error) {
	return p.create(scene.Record{Kind: scene.KindString, Parent: padID, P1: p1, P2: p2})
}

// SetPadText replaces a pad's text and broadcasts it.
func (p *Processor) SetPadText(id, text string) error {
	if err := p.scene.SetPadText(id, text); err != nil {
		return err
	}
	p.flush(p.broadcast(protocol.PadText{ID: id, Text: text}))
	return nil
}

// SpawnMarker starts a marker on a path here and on every peer.
func (p *Processor) SpawnMarker(pathID string) error {
	if err := p.scene.SpawnMarker(pathID); err != nil {
		return err
	}
	p.flush(p.broadcast(protocol.PluckerSpawn{PathID: pathID}))
	return nil
}

// SpawnAtJunction starts a marker on every path leaving a junction.
func (p *Processor) SpawnAtJunction(id scene.JunctionID) ([]string, error) {
	paths, err := p.scene.SpawnAtJunction(id)
	if err != nil {
		return nil, err
	}
	var out []envelope
	for _, pathID := range paths {
		out = append(out, p.broadcast(protocol.PluckerSpawn{PathID: pathID})...)
	}
	p.flush(out)
	return paths, nil
}

// Delete removes an object and its dependents. The delete notice is sent
// several times to ride out datagram loss.
func (p *Processor) Delete(id string) ([]string, error) {
	removed, err := p.scene.Delete(id)
	if err != nil {
		return nil, err
	}
	p.notifyDelete(removed, Local)

	notice := p.broadcast(protocol.ObjectDelete{ID: id})
	var out []envelope
	for i := 0; i < p.deleteRepeats; i++ {
		out = append(out, notice...)
	}
	p.flush(out)
	return removed, nil
}

// SetDisplayName broadcasts our display name.
func (p *Processor) SetDisplayName(name string) {
	p.flush(p.broadcast(protocol.PeerText{Addr: 0, Port: int32(p.listenPort), Text: name}))
}

// MoveCursor broadcasts our cursor and plucks any string it just crossed.
func (p *Processor) MoveCursor(pos geom.Vec, pressed bool) []scene.PluckEvent {
	plucks := p.scene.Hover(pos)
	metrics.RecordPlucks("cursor", len(plucks))
	for _, ev := range plucks {
		if p.OnPluck != nil {
			p.OnPluck(ev)
		}
	}
	p.flush(p.broadcast(protocol.CursorPosition{
		Port:    int32(p.listenPort),
		X:       float32(pos.X),
		Y:       float32(pos.Y),
		Pressed: pressed,
	}))
	return plucks
}
