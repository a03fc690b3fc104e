package network

import (
	"net/netip"
	"sync"
	"time"

	"playround/internal/geom"
)

// Peer is a remote instance we exchange scene traffic with.
type Peer struct {
	Addr     netip.AddrPort `json:"addr"`
	Name     string         `json:"name,omitempty"`
	Cursor   geom.Vec       `json:"cursor"`
	Pressed  bool           `json:"pressed"`
	LastSeen time.Time      `json:"lastSeen"`
}

// PeerTable is the set of known peers, in join order.
type PeerTable struct {
	mu    sync.RWMutex
	peers map[netip.AddrPort]*Peer
	order []netip.AddrPort
}

// NewPeerTable creates an empty table.
func NewPeerTable() *PeerTable {
	return &PeerTable{peers: make(map[netip.AddrPort]*Peer)}
}

// Add inserts a peer. It reports false if the peer was already known.
func (t *PeerTable) Add(addr netip.AddrPort) bool {
	addr = normalize(addr)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.peers[addr]; ok {
		return false
	}
	t.peers[addr] = &Peer{Addr: addr, LastSeen: time.Now()}
	t.order = append(t.order, addr)
	return true
}

// Remove deletes a peer. It reports false if the peer was unknown.
func (t *PeerTable) Remove(addr netip.AddrPort) bool {
	addr = normalize(addr)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.peers[addr]; !ok {
		return false
	}
	delete(t.peers, addr)
	for i, a := range t.order {
		if a == addr {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// Has reports whether addr is a known peer.
func (t *PeerTable) Has(addr netip.AddrPort) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.peers[normalize(addr)]
	return ok
}

// Addrs returns every peer address in join order.
func (t *PeerTable) Addrs() []netip.AddrPort {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]netip.AddrPort, len(t.order))
	copy(out, t.order)
	return out
}

// SetName updates a known peer's display name.
func (t *PeerTable) SetName(addr netip.AddrPort, name string) bool {
	return t.update(addr, func(p *Peer) { p.Name = name })
}

// SetCursor updates a known peer's cursor.
func (t *PeerTable) SetCursor(addr netip.AddrPort, pos geom.Vec, pressed bool) bool {
	return t.update(addr, func(p *Peer) {
		p.Cursor = pos
		p.Pressed = pressed
	})
}

func (t *PeerTable) update(addr netip.AddrPort, fn func(*Peer)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[normalize(addr)]
	if !ok {
		return false
	}
	fn(p)
	p.LastSeen = time.Now()
	return true
}

// List returns copies of every peer in join order.
func (t *PeerTable) List() []Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Peer, 0, len(t.order))
	for _, a := range t.order {
		out = append(out, *t.peers[a])
	}
	return out
}

// Len returns the number of known peers.
func (t *PeerTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

func normalize(addr netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
}
