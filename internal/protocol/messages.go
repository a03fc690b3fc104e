// Package protocol defines the OSC messages peers exchange to replicate the
// scene, and their binary encoding.
//
// Every message is one OSC 1.0 message: an address pattern followed by a
// fixed, address-specific argument list. Coordinates travel as float32,
// peer addresses as an IPv4 address packed into an int64.
package protocol

import (
	"net/netip"

	"playround/internal/geom"
	"playround/internal/scene"
)

const (
	// DefaultPort is the UDP port a peer listens on unless told otherwise.
	DefaultPort = 10101

	// MaxDatagramSize bounds inbound reads.
	MaxDatagramSize = 64 * 1024
)

// Address patterns
const (
	AddrPeerUp        = "/network/peer/up"
	AddrPeerDown      = "/network/peer/down"
	AddrPeerText      = "/network/peer/text"
	AddrMousePosition = "/mouse/position"
	AddrPad           = "/object/pad"
	AddrPadText       = "/object/pad/text"
	AddrPlucker       = "/object/plucker"
	AddrCurvedPath    = "/object/track/spiral"
	AddrStraightPath  = "/object/track/line"
	AddrString        = "/object/track/string"
	AddrDelete        = "/object/delete"
	AddrQuery         = "/object/query"
)

// Message is one decoded protocol message.
type Message interface {
	Address() string
	args() []interface{}
}

// PeerUp announces a peer. Addr 0 means "the sender of this datagram".
type PeerUp struct {
	Addr int64
	Port int32
}

// PeerDown announces that a peer left.
type PeerDown struct {
	Addr int64
	Port int32
}

// PeerText sets a peer's display name.
type PeerText struct {
	Addr int64
	Port int32
	Text string
}

// CursorPosition reports where a peer's cursor is. The peer is identified by
// the datagram's source address plus Port.
type CursorPosition struct {
	Port    int32
	X, Y    float32
	Pressed bool
}

// PadCreate creates a pad under the scene root.
type PadCreate struct {
	ID     string
	X, Y   float32
	Radius float32
}

// PadText replaces a pad's comment text.
type PadText struct {
	ID   string
	Text string
}

// PluckerSpawn starts a marker on a path.
type PluckerSpawn struct {
	PathID string
}

// CurvedPathCreate creates a spiral arc around its pad's center.
type CurvedPathCreate struct {
	ID          string
	PadID       string
	StartAngle  float32
	StartRadius float32
	EndAngle    float32
	EndRadius   float32
}

// StraightPathCreate creates a segment path.
type StraightPathCreate struct {
	ID     string
	PadID  string
	X1, Y1 float32
	X2, Y2 float32
}

// StringCreate creates a string on a pad.
type StringCreate struct {
	ID     string
	PadID  string
	X1, Y1 float32
	X2, Y2 float32
}

// ObjectDelete removes an object.
type ObjectDelete struct {
	ID string
}

// ObjectQuery is accepted and ignored.
type ObjectQuery struct{}

func (PeerUp) Address() string             { return AddrPeerUp }
func (PeerDown) Address() string           { return AddrPeerDown }
func (PeerText) Address() string           { return AddrPeerText }
func (CursorPosition) Address() string     { return AddrMousePosition }
func (PadCreate) Address() string          { return AddrPad }
func (PadText) Address() string            { return AddrPadText }
func (PluckerSpawn) Address() string       { return AddrPlucker }
func (CurvedPathCreate) Address() string   { return AddrCurvedPath }
func (StraightPathCreate) Address() string { return AddrStraightPath }
func (StringCreate) Address() string       { return AddrString }
func (ObjectDelete) Address() string       { return AddrDelete }
func (ObjectQuery) Address() string        { return AddrQuery }

func (m PeerUp) args() []interface{}   { return []interface{}{m.Addr, m.Port} }
func (m PeerDown) args() []interface{} { return []interface{}{m.Addr, m.Port} }
func (m PeerText) args() []interface{} { return []interface{}{m.Addr, m.Port, m.Text} }
func (m CursorPosition) args() []interface{} {
	return []interface{}{m.Port, m.X, m.Y, m.Pressed}
}
func (m PadCreate) args() []interface{}    { return []interface{}{m.ID, m.X, m.Y, m.Radius} }
func (m PadText) args() []interface{}      { return []interface{}{m.ID, m.Text} }
func (m PluckerSpawn) args() []interface{} { return []interface{}{m.PathID} }
func (m CurvedPathCreate) args() []interface{} {
	return []interface{}{m.ID, m.PadID, m.StartAngle, m.StartRadius, m.EndAngle, m.EndRadius}
}
func (m StraightPathCreate) args() []interface{} {
	return []interface{}{m.ID, m.PadID, m.X1, m.Y1, m.X2, m.Y2}
}
func (m StringCreate) args() []interface{} {
	return []interface{}{m.ID, m.PadID, m.X1, m.Y1, m.X2, m.Y2}
}
func (m ObjectDelete) args() []interface{} { return []interface{}{m.ID} }
func (ObjectQuery) args() []interface{}    { return nil }

// =============================================================================
// SCENE RECORDS
// =============================================================================

// Creation is a message that creates a scene object.
type Creation interface {
	Message
	Record() scene.Record
}

func (m PadCreate) Record() scene.Record {
	return scene.Record{
		Kind:   scene.KindPad,
		ID:     m.ID,
		Center: geom.Pt(float64(m.X), float64(m.Y)),
		Radius: float64(m.Radius),
	}
}

func (m CurvedPathCreate) Record() scene.Record {
	return scene.Record{
		Kind:        scene.KindCurvedPath,
		ID:          m.ID,
		Parent:      m.PadID,
		StartAngle:  float64(m.StartAngle),
		StartRadius: float64(m.StartRadius),
		EndAngle:    float64(m.EndAngle),
		EndRadius:   float64(m.EndRadius),
	}
}

func (m StraightPathCreate) Record() scene.Record {
	return scene.Record{
		Kind:   scene.KindStraightPath,
		ID:     m.ID,
		Parent: m.PadID,
		P1:     geom.Pt(float64(m.X1), float64(m.Y1)),
		P2:     geom.Pt(float64(m.X2), float64(m.Y2)),
	}
}

func (m StringCreate) Record() scene.Record {
	return scene.Record{
		Kind:   scene.KindString,
		ID:     m.ID,
		Parent: m.PadID,
		P1:     geom.Pt(float64(m.X1), float64(m.Y1)),
		P2:     geom.Pt(float64(m.X2), float64(m.Y2)),
	}
}

// FromRecord returns the creation message carrying rec's canonical form.
func FromRecord(rec scene.Record) (Creation, error) {
	switch rec.Kind {
	case scene.KindPad:
		return PadCreate{
			ID:     rec.ID,
			X:      float32(rec.Center.X),
			Y:      float32(rec.Center.Y),
			Radius: float32(rec.Radius),
		}, nil
	case scene.KindCurvedPath:
		return CurvedPathCreate{
			ID:          rec.ID,
			PadID:       rec.Parent,
			StartAngle:  float32(rec.StartAngle),
			StartRadius: float32(rec.StartRadius),
			EndAngle:    float32(rec.EndAngle),
			EndRadius:   float32(rec.EndRadius),
		}, nil
	case scene.KindStraightPath:
		return StraightPathCreate{
			ID:    rec.ID,
			PadID: rec.Parent,
			X1:    float32(rec.P1.X),
			Y1:    float32(rec.P1.Y),
			X2:    float32(rec.P2.X),
			Y2:    float32(rec.P2.Y),
		}, nil
	case scene.KindString:
		return StringCreate{
			ID:    rec.ID,
			PadID: rec.Parent,
			X1:    float32(rec.P1.X),
			Y1:    float32(rec.P1.Y),
			X2:    float32(rec.P2.X),
			Y2:    float32(rec.P2.Y),
		}, nil
	}
	return nil, ErrUnknownKind
}

// =============================================================================
// PEER ADDRESSES
// =============================================================================

// PackAddr packs an IPv4 address into the wire's int64 form. Other
// addresses pack to 0.
func PackAddr(addr netip.Addr) int64 {
	addr = addr.Unmap()
	if !addr.Is4() {
		return 0
	}
	b := addr.As4()
	return int64(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
}

// UnpackAddr is the inverse of PackAddr.
func UnpackAddr(v int64) netip.Addr {
	u := uint32(v)
	return netip.AddrFrom4([4]byte{byte(u >> 24), byte(u >> 16), byte(u >> 8), byte(u)})
}
