// Package network replicates the scene between peers over OSC/UDP.
//
// The Processor applies inbound messages to the scene and peer table and
// turns local edits into broadcasts. Handlers never send while holding a
// lock: they return envelopes which are flushed afterwards.
package network

import (
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"playround/internal/geom"
	"playround/internal/logging"
	"playround/internal/metrics"
	"playround/internal/protocol"
	"playround/internal/scene"
)

// Origin tells observers whether a change came from this process or a peer.
type Origin string

const (
	Local  Origin = "local"
	Remote Origin = "remote"
)

// envelope is one outbound message to one peer.
type envelope struct {
	to  netip.AddrPort
	msg protocol.Message
}

// Processor is the replication protocol state machine.
type Processor struct {
	scene  *scene.Scene
	peers  *PeerTable
	sender Sender

	listenPort    uint16
	deleteRepeats int

	localMu    sync.RWMutex
	localAddrs map[netip.Addr]bool

	// Event callbacks
	OnPeerUp   func(addr netip.AddrPort)
	OnPeerDown func(addr netip.AddrPort)
	OnCreate   func(rec scene.Record, origin Origin)
	OnDelete   func(removed []string, origin Origin)
	OnOrphan   func(rec scene.Record)
	OnResolve  func(rec scene.Record)
	OnPluck    func(ev scene.PluckEvent)

	// Stats
	handled  uint64 // atomic
	dropped  uint64 // atomic
	sent     uint64 // atomic
	sendErrs uint64 // atomic
}

// NewProcessor creates a processor for a peer listening on listenPort.
func NewProcessor(sc *scene.Scene, peers *PeerTable, sender Sender, listenPort int) *Processor {
	return &Processor{
		scene:         sc,
		peers:         peers,
		sender:        sender,
		listenPort:    uint16(listenPort),
		deleteRepeats: 5,
		localAddrs:    make(map[netip.Addr]bool),
	}
}

// SetLocalAddrs records the addresses of this host so that a peer-up naming
// this process is never inserted as a peer.
func (p *Processor) SetLocalAddrs(addrs []netip.Addr) {
	p.localMu.Lock()
	defer p.localMu.Unlock()
	p.localAddrs = make(map[netip.Addr]bool, len(addrs))
	for _, a := range addrs {
		p.localAddrs[a.Unmap()] = true
	}
}

func (p *Processor) isSelf(addr netip.AddrPort) bool {
	if addr.Port() != p.listenPort {
		return false
	}
	a := addr.Addr().Unmap()
	if a.IsLoopback() || a.IsUnspecified() {
		return true
	}
	p.localMu.RLock()
	defer p.localMu.RUnlock()
	return p.localAddrs[a]
}

// Handle processes one inbound datagram from `from`. Malformed input is
// logged and dropped; a panic is contained to this datagram.
func (p *Processor) Handle(from netip.AddrPort, payload []byte) {
	from = normalize(from)
	var out []envelope

	defer func() {
		if r := recover(); r != nil {
			atomic.AddUint64(&p.dropped, 1)
			metrics.RecordDropped("panic")
			logging.Error("❌ panic handling datagram",
				zap.Stringer("from", from), zap.Any("panic", r))
		}
	}()

	msgs, err := protocol.Decode(payload)
	for _, m := range msgs {
		metrics.RecordInbound(m.Address())
		out = append(out, p.dispatch(from, m)...)
	}
	if err != nil {
		atomic.AddUint64(&p.dropped, 1)
		metrics.RecordDropped(dropReason(err))
		logging.Debug("dropped datagram", zap.Stringer("from", from), zap.Error(err))
	}

	out = append(out, p.resolveOrphans()...)
	p.flush(out)
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrUnknownAddress):
		return "unknown_address"
	case errors.Is(err, protocol.ErrArgumentMismatch):
		return "arguments"
	default:
		return "malformed"
	}
}

func (p *Processor) dispatch(from netip.AddrPort, m protocol.Message) []envelope {
	atomic.AddUint64(&p.handled, 1)

	switch msg := m.(type) {
	case protocol.PeerUp:
		return p.handlePeerUp(from, msg)
	case protocol.PeerDown:
		return p.handlePeerDown(from, msg)
	case protocol.PeerText:
		if addr, ok := resolvePeer(from, msg.Addr, msg.Port); ok {
			p.peers.SetName(addr, msg.Text)
		}
	case protocol.CursorPosition:
		if addr, ok := resolvePeer(from, 0, msg.Port); ok {
			p.peers.SetCursor(addr, geom.Pt(float64(msg.X), float64(msg.Y)), msg.Pressed)
		}
	case protocol.Creation:
		return p.handleCreate(msg)
	case protocol.PadText:
		if err := p.scene.SetPadText(msg.ID, msg.Text); err != nil {
			logging.Debug("pad text for unknown pad", zap.String("id", msg.ID))
		}
	case protocol.PluckerSpawn:
		if err := p.scene.SpawnMarker(msg.PathID); err != nil {
			logging.Debug("plucker for unknown path", zap.String("id", msg.PathID))
		}
	case protocol.ObjectDelete:
		removed, err := p.scene.Delete(msg.ID)
		if err != nil {
			return nil
		}
		p.notifyDelete(removed, Remote)
		return p.broadcast(protocol.ObjectDelete{ID: msg.ID})
	case protocol.ObjectQuery:
	}
	return nil
}

// resolvePeer turns a wire address into a peer address. Address 0 stands for
// the datagram's source.
func resolvePeer(from netip.AddrPort, addr int64, port int32) (netip.AddrPort, bool) {
	if port <= 0 || port > 0xffff {
		return netip.AddrPort{}, false
	}
	a := from.Addr()
	if addr != 0 {
		a = protocol.UnpackAddr(addr)
	}
	return netip.AddrPortFrom(a.Unmap(), uint16(port)), true
}

// handlePeerUp introduces a new peer to everyone we know and everyone we know
// to the new peer, then announces ourselves. Known peers are ignored, which
// is what makes repeated announcements converge.
func (p *Processor) handlePeerUp(from netip.AddrPort, msg protocol.PeerUp) []envelope {
	addr, ok := resolvePeer(from, msg.Addr, msg.Port)
	if !ok || p.isSelf(addr) {
		return nil
	}
	existing := p.peers.Addrs()
	if !p.peers.Add(addr) {
		return nil
	}
	metrics.UpdatePeers(p.peers.Len())
	logging.Info("👋 peer up", zap.Stringer("peer", addr))
	if p.OnPeerUp != nil {
		p.OnPeerUp(addr)
	}

	var out []envelope
	for _, e := range existing {
		if packed, ok := wireAddr(addr); ok {
			out = append(out, envelope{to: e, msg: protocol.PeerUp{Addr: packed, Port: int32(addr.Port())}})
		}
		if packed, ok := wireAddr(e); ok {
			out = append(out, envelope{to: addr, msg: protocol.PeerUp{Addr: packed, Port: int32(e.Port())}})
		}
	}
	return append(out, p.broadcast(protocol.PeerUp{Addr: 0, Port: int32(p.listenPort)})...)
}

// wireAddr packs a peer address for relaying to a third party. Only IPv4
// fits the wire, and 0 would read as the relaying peer itself.
func wireAddr(addr netip.AddrPort) (int64, bool) {
	packed := protocol.PackAddr(addr.Addr())
	return packed, packed != 0
}

func (p *Processor) handlePeerDown(from netip.AddrPort, msg protocol.PeerDown) []envelope {
	addr, ok := resolvePeer(from, msg.Addr, msg.Port)
	if !ok || !p.peers.Remove(addr) {
		return nil
	}
	metrics.UpdatePeers(p.peers.Len())
	logging.Info("👋 peer down", zap.Stringer("peer", addr))
	if p.OnPeerDown != nil {
		p.OnPeerDown(addr)
	}
	packed, ok := wireAddr(addr)
	if !ok {
		return nil
	}
	return p.broadcast(protocol.PeerDown{Addr: packed, Port: int32(addr.Port())})
}

func (p *Processor) handleCreate(msg protocol.Creation) []envelope {
	rec, outcome, err := p.scene.Apply(msg.Record())
	if err != nil {
		atomic.AddUint64(&p.dropped, 1)
		metrics.RecordDropped("invalid")
		logging.Warn("⚠️ rejected creation", zap.String("address", msg.Address()), zap.Error(err))
		return nil
	}

	switch outcome {
	case scene.Created:
		if p.OnCreate != nil {
			p.OnCreate(rec, Remote)
		}
		return p.broadcastRecord(rec)
	case scene.Orphaned:
		logging.Debug("parked orphan", zap.String("id", rec.ID), zap.String("parent", rec.Parent))
		if p.OnOrphan != nil {
			p.OnOrphan(rec)
		}
	}
	return nil
}

func (p *Processor) resolveOrphans() []envelope {
	var out []envelope
	for _, rec := range p.scene.ResolveOrphans() {
		logging.Debug("resolved orphan", zap.String("id", rec.ID), zap.String("parent", rec.Parent))
		if p.OnResolve != nil {
			p.OnResolve(rec)
		}
		out = append(out, p.broadcastRecord(rec)...)
	}
	return out
}

func (p *Processor) notifyDelete(removed []string, origin Origin) {
	logging.Debug("deleted", zap.Strings("ids", removed), zap.String("origin", string(origin)))
	if p.OnDelete != nil {
		p.OnDelete(removed, origin)
	}
}

// =============================================================================
// OUTBOUND
// =============================================================================

func (p *Processor) broadcast(m protocol.Message) []envelope {
	addrs := p.peers.Addrs()
	out := make([]envelope, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, envelope{to: a, msg: m})
	}
	return out
}

func (p *Processor) broadcastRecord(rec scene.Record) []envelope {
	m, err := protocol.FromRecord(rec)
	if err != nil {
		logging.Warn("⚠️ cannot broadcast record", zap.String("id", rec.ID), zap.Error(err))
		return nil
	}
	return p.broadcast(m)
}

// flush encodes and sends envelopes. Failures are counted and logged only.
func (p *Processor) flush(out []envelope) {
	cache := make(map[protocol.Message][]byte)
	for _, e := range out {
		data, ok := cache[e.msg]
		if !ok {
			var err error
			data, err = protocol.Encode(e.msg)
			if err != nil {
				logging.Warn("⚠️ encode failed", zap.Error(err))
				continue
			}
			cache[e.msg] = data
		}
		err := p.sender.Send(e.to, data)
		metrics.RecordSend(err)
		atomic.AddUint64(&p.sent, 1)
		if err != nil {
			atomic.AddUint64(&p.sendErrs, 1)
			logging.Debug("send failed", zap.Stringer("to", e.to), zap.Error(err))
		}
	}
}

// GetStats returns processor statistics
func (p *Processor) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"handled":    atomic.LoadUint64(&p.handled),
		"dropped":    atomic.LoadUint64(&p.dropped),
		"sent":       atomic.LoadUint64(&p.sent),
		"sendErrors": atomic.LoadUint64(&p.sendErrs),
		"peers":      p.peers.Len(),
	}
}
