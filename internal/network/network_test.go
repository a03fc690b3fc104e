package network

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playround/internal/geom"
	"playround/internal/protocol"
	"playround/internal/scene"
)

var (
	peerA = netip.MustParseAddrPort("10.0.0.1:10101")
	peerB = netip.MustParseAddrPort("10.0.0.2:10101")
)

type sentMessage struct {
	to  netip.AddrPort
	msg protocol.Message
}

// recordingSender decodes everything it is asked to send
type recordingSender struct {
	sent []sentMessage
}

func (r *recordingSender) Send(to netip.AddrPort, payload []byte) error {
	msgs, err := protocol.Decode(payload)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		r.sent = append(r.sent, sentMessage{to: to, msg: m})
	}
	return nil
}

func (r *recordingSender) reset() { r.sent = nil }

func (r *recordingSender) to(addr netip.AddrPort) []protocol.Message {
	var out []protocol.Message
	for _, s := range r.sent {
		if s.to == addr {
			out = append(out, s.msg)
		}
	}
	return out
}

func newTestProcessor(t *testing.T) (*Processor, *scene.Scene, *recordingSender) {
	t.Helper()
	sc := scene.New(scene.DefaultConfig(), nil, nil)
	sender := &recordingSender{}
	return NewProcessor(sc, NewPeerTable(), sender, 10101), sc, sender
}

func encode(t *testing.T, m protocol.Message) []byte {
	t.Helper()
	data, err := protocol.Encode(m)
	require.NoError(t, err)
	return data
}

// TestPeerUpIntroducesPeers verifies a new peer is introduced both ways
func TestPeerUpIntroducesPeers(t *testing.T) {
	p, _, sender := newTestProcessor(t)
	require.True(t, p.AddPeer(peerA))

	p.Handle(peerB, encode(t, protocol.PeerUp{Addr: 0, Port: 10101}))

	assert.Equal(t, []netip.AddrPort{peerA, peerB}, p.peers.Addrs())
	assert.Equal(t, []sentMessage{
		{to: peerA, msg: protocol.PeerUp{Addr: protocol.PackAddr(peerB.Addr()), Port: 10101}},
		{to: peerB, msg: protocol.PeerUp{Addr: protocol.PackAddr(peerA.Addr()), Port: 10101}},
		{to: peerA, msg: protocol.PeerUp{Addr: 0, Port: 10101}},
		{to: peerB, msg: protocol.PeerUp{Addr: 0, Port: 10101}},
	}, sender.sent)
}

// TestDuplicatePeerUpIsSafe verifies repeated announcements change nothing
func TestDuplicatePeerUpIsSafe(t *testing.T) {
	p, _, sender := newTestProcessor(t)
	p.Handle(peerB, encode(t, protocol.PeerUp{Addr: 0, Port: 10101}))
	sender.reset()

	for i := 0; i < 3; i++ {
		p.Handle(peerB, encode(t, protocol.PeerUp{Addr: protocol.PackAddr(peerB.Addr()), Port: 10101}))
	}
	assert.Equal(t, 1, p.peers.Len())
	assert.Empty(t, sender.sent)
}

// TestPeerUpIgnoresSelf verifies we never become our own peer
func TestPeerUpIgnoresSelf(t *testing.T) {
	p, _, sender := newTestProcessor(t)
	p.SetLocalAddrs([]netip.Addr{netip.MustParseAddr("192.168.1.5")})

	p.Handle(netip.MustParseAddrPort("127.0.0.1:10101"), encode(t, protocol.PeerUp{Addr: 0, Port: 10101}))
	p.Handle(peerA, encode(t, protocol.PeerUp{Addr: protocol.PackAddr(netip.MustParseAddr("192.168.1.5")), Port: 10101}))
	assert.Equal(t, 0, p.peers.Len())
	assert.Empty(t, sender.sent)
	assert.False(t, p.AddPeer(netip.MustParseAddrPort("127.0.0.1:10101")))
}

// TestPeerDown verifies known peers are removed and the departure relayed
func TestPeerDown(t *testing.T) {
	p, _, sender := newTestProcessor(t)
	p.AddPeer(peerA)
	p.AddPeer(peerB)

	p.Handle(peerB, encode(t, protocol.PeerDown{Addr: 0, Port: 10101}))
	assert.Equal(t, []netip.AddrPort{peerA}, p.peers.Addrs())
	assert.Equal(t, []sentMessage{
		{to: peerA, msg: protocol.PeerDown{Addr: protocol.PackAddr(peerB.Addr()), Port: 10101}},
	}, sender.sent)

	sender.reset()
	p.Handle(peerB, encode(t, protocol.PeerDown{Addr: 0, Port: 10101}))
	assert.Empty(t, sender.sent, "unknown peer is a no-op")
}

// TestPeerTextAndCursor verifies peer attributes update only for known peers
func TestPeerTextAndCursor(t *testing.T) {
	p, _, sender := newTestProcessor(t)
	known := netip.MustParseAddrPort("10.0.0.2:10102")
	p.AddPeer(known)

	// cursor traffic comes from an ephemeral port and names the listen port
	p.Handle(netip.MustParseAddrPort("10.0.0.2:5555"), encode(t, protocol.CursorPosition{Port: 10102, X: 10, Y: 20, Pressed: true}))
	p.Handle(netip.MustParseAddrPort("10.0.0.2:5555"), encode(t, protocol.PeerText{Addr: 0, Port: 10102, Text: "bea"}))
	p.Handle(peerA, encode(t, protocol.PeerText{Addr: 0, Port: 10101, Text: "ghost"}))

	peers := p.peers.List()
	require.Len(t, peers, 1)
	assert.Equal(t, geom.Pt(10, 20), peers[0].Cursor)
	assert.True(t, peers[0].Pressed)
	assert.Equal(t, "bea", peers[0].Name)
	assert.Empty(t, sender.sent, "cursor and text are never relayed")
}

// TestRemoteCreateIsIdempotent verifies creation is applied and relayed once
func TestRemoteCreateIsIdempotent(t *testing.T) {
	p, sc, sender := newTestProcessor(t)
	p.AddPeer(peerA)

	var created []scene.Record
	p.OnCreate = func(rec scene.Record, origin Origin) {
		assert.Equal(t, Remote, origin)
		created = append(created, rec)
	}

	pad := protocol.PadCreate{ID: "pad", X: 100, Y: 100, Radius: 50}
	p.Handle(peerA, encode(t, pad))
	p.Handle(peerA, encode(t, pad))

	assert.Equal(t, 1, sc.Len())
	assert.Len(t, created, 1)
	assert.Equal(t, []protocol.Message{pad}, sender.to(peerA))
}

// TestOrphanResolvedAfterParent verifies out-of-order delivery converges and
// the resolved child is relayed
func TestOrphanResolvedAfterParent(t *testing.T) {
	p, sc, sender := newTestProcessor(t)
	p.AddPeer(peerA)

	var parked, resolved []string
	p.OnOrphan = func(rec scene.Record) { parked = append(parked, rec.ID) }
	p.OnResolve = func(rec scene.Record) { resolved = append(resolved, rec.ID) }

	str := protocol.StringCreate{ID: "str", PadID: "pad", X1: 100, Y1: 70, X2: 100, Y2: 130}
	p.Handle(peerA, encode(t, str))
	assert.Equal(t, 1, sc.OrphanCount())
	assert.Empty(t, sender.sent)

	pad := protocol.PadCreate{ID: "pad", X: 100, Y: 100, Radius: 100}
	p.Handle(peerA, encode(t, pad))

	assert.Equal(t, 0, sc.OrphanCount())
	assert.True(t, sc.Has("str"))
	assert.Equal(t, []string{"str"}, parked)
	assert.Equal(t, []string{"str"}, resolved)
	assert.Equal(t, []protocol.Message{pad, str}, sender.to(peerA))
}

// TestPeerUpSkipsUnpackableAddresses verifies an IPv6 peer is never relayed
// as address 0, which third parties would read as the sender
func TestPeerUpSkipsUnpackableAddresses(t *testing.T) {
	p, _, sender := newTestProcessor(t)
	require.True(t, p.AddPeer(peerA))
	peerV6 := netip.MustParseAddrPort("[fd00::2]:10101")

	p.Handle(peerV6, encode(t, protocol.PeerUp{Addr: 0, Port: 10101}))

	assert.True(t, p.peers.Has(peerV6))
	assert.Equal(t, []sentMessage{
		{to: peerV6, msg: protocol.PeerUp{Addr: protocol.PackAddr(peerA.Addr()), Port: 10101}},
		{to: peerA, msg: protocol.PeerUp{Addr: 0, Port: 10101}},
		{to: peerV6, msg: protocol.PeerUp{Addr: 0, Port: 10101}},
	}, sender.sent)

	sender.reset()
	p.Handle(peerV6, encode(t, protocol.PeerDown{Addr: 0, Port: 10101}))
	assert.False(t, p.peers.Has(peerV6))
	assert.Empty(t, sender.sent)
}

// TestDeletedOrphanIsNotRevived verifies a delete reaching a parked child
// keeps it from being created when its parent arrives
func TestDeletedOrphanIsNotRevived(t *testing.T) {
	p, sc, sender := newTestProcessor(t)
	p.AddPeer(peerA)

	var removed []string
	p.OnDelete = func(ids []string, origin Origin) { removed = ids }

	p.Handle(peerA, encode(t, protocol.StringCreate{ID: "str", PadID: "pad", X1: 100, Y1: 70, X2: 100, Y2: 130}))
	require.Equal(t, 1, sc.OrphanCount())

	p.Handle(peerA, encode(t, protocol.ObjectDelete{ID: "str"}))
	assert.Equal(t, 0, sc.OrphanCount())
	assert.Equal(t, []string{"str"}, removed)
	assert.Equal(t, []protocol.Message{protocol.ObjectDelete{ID: "str"}}, sender.to(peerA))
	sender.reset()

	pad := protocol.PadCreate{ID: "pad", X: 100, Y: 100, Radius: 100}
	p.Handle(peerA, encode(t, pad))

	assert.True(t, sc.Has("pad"))
	assert.False(t, sc.Has("str"))
	assert.Equal(t, []protocol.Message{pad}, sender.to(peerA))
}

// TestMalformedDatagramsAreDropped verifies bad input never escapes Handle
func TestMalformedDatagramsAreDropped(t *testing.T) {
	p, sc, sender := newTestProcessor(t)
	p.AddPeer(peerA)

	p.Handle(peerA, []byte("garbage"))
	p.Handle(peerA, []byte{})
	p.Handle(peerA, encode(t, protocol.PadCreate{ID: "", X: 1, Y: 1, Radius: 1}))

	assert.Equal(t, 0, sc.Len())
	assert.Empty(t, sender.sent)
	assert.Equal(t, uint64(3), p.GetStats()["dropped"])
}

// TestRemoteDelete verifies known deletes are applied and relayed once
func TestRemoteDelete(t *testing.T) {
	p, sc, sender := newTestProcessor(t)
	p.AddPeer(peerA)
	p.Handle(peerA, encode(t, protocol.PadCreate{ID: "pad", X: 100, Y: 100, Radius: 50}))
	sender.reset()

	var removed []string
	p.OnDelete = func(ids []string, origin Origin) { removed = ids }

	p.Handle(peerA, encode(t, protocol.ObjectDelete{ID: "pad"}))
	p.Handle(peerA, encode(t, protocol.ObjectDelete{ID: "pad"}))

	assert.False(t, sc.Has("pad"))
	assert.Equal(t, []string{"pad"}, removed)
	assert.Equal(t, []protocol.Message{protocol.ObjectDelete{ID: "pad"}}, sender.to(peerA))
}

// TestLocalDeleteIsRepeated verifies local deletes are sent several times
func TestLocalDeleteIsRepeated(t *testing.T) {
	p, _, sender := newTestProcessor(t)
	p.AddPeer(peerA)
	rec, err := p.CreatePad(geom.Pt(100, 100), 50)
	require.NoError(t, err)
	sender.reset()

	_, err = p.Delete(rec.ID)
	require.NoError(t, err)
	assert.Len(t, sender.to(peerA), 5)

	_, err = p.Delete(rec.ID)
	assert.ErrorIs(t, err, scene.ErrNotFound)
}

// TestCreatePadRespectsNeighbours verifies local pads never overlap
func TestCreatePadRespectsNeighbours(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	_, err := p.CreatePad(geom.Pt(100, 100), 100)
	require.NoError(t, err)

	rec, err := p.CreatePad(geom.Pt(300, 100), 150)
	require.NoError(t, err)
	assert.InDelta(t, 100, rec.Radius, 1e-9)

	_, err = p.CreatePad(geom.Pt(150, 100), 50)
	assert.ErrorIs(t, err, ErrNoRoom)
}

// TestLocalEditsAreBroadcast verifies each local edit reaches peers
func TestLocalEditsAreBroadcast(t *testing.T) {
	p, _, sender := newTestProcessor(t)
	p.AddPeer(peerA)

	pad, err := p.CreatePad(geom.Pt(100, 100), 100)
	require.NoError(t, err)
	arc, err := p.CreateCurvedPath(pad.ID, 90, 50, 0, 50)
	require.NoError(t, err)
	_, err = p.CreateString(pad.ID, geom.Pt(100, 70), geom.Pt(100, 20))
	require.NoError(t, err)
	require.NoError(t, p.SetPadText(pad.ID, "hello"))
	require.NoError(t, p.SpawnMarker(arc.ID))
	p.SetDisplayName("me")

	var addrs []string
	for _, m := range sender.to(peerA) {
		addrs = append(addrs, m.Address())
	}
	assert.Equal(t, []string{
		protocol.AddrPad,
		protocol.AddrCurvedPath,
		protocol.AddrString,
		protocol.AddrPadText,
		protocol.AddrPlucker,
		protocol.AddrPeerText,
	}, addrs)

	_, err = p.CreateString("missing", geom.Pt(0, 0), geom.Pt(1, 1))
	assert.ErrorIs(t, err, scene.ErrUnknownParent)
}

// =============================================================================
// TWO-PEER CONVERGENCE
// =============================================================================

type datagram struct {
	from, to netip.AddrPort
	payload  []byte
}

// fabric is an in-memory network that delivers datagrams in FIFO order
type fabric struct {
	queue []datagram
	nodes map[netip.AddrPort]*Processor
}

type fabricSender struct {
	f    *fabric
	self netip.AddrPort
}

func (s fabricSender) Send(to netip.AddrPort, payload []byte) error {
	s.f.queue = append(s.f.queue, datagram{from: s.self, to: to, payload: append([]byte(nil), payload...)})
	return nil
}

func (f *fabric) join(addr netip.AddrPort) (*Processor, *scene.Scene) {
	sc := scene.New(scene.DefaultConfig(), nil, nil)
	p := NewProcessor(sc, NewPeerTable(), fabricSender{f: f, self: addr}, int(addr.Port()))
	f.nodes[addr] = p
	return p, sc
}

func (f *fabric) pump(t *testing.T) {
	for n := 0; len(f.queue) > 0; n++ {
		require.Less(t, n, 10000, "traffic never settles")
		d := f.queue[0]
		f.queue = f.queue[1:]
		if p := f.nodes[d.to]; p != nil {
			p.Handle(d.from, d.payload)
		}
	}
}

// TestTwoPeersConverge verifies a handshake and local edits replicate
func TestTwoPeersConverge(t *testing.T) {
	f := &fabric{nodes: make(map[netip.AddrPort]*Processor)}
	a, sceneA := f.join(peerA)
	b, sceneB := f.join(peerB)

	a.AddPeer(peerB)
	a.Announce()
	f.pump(t)
	assert.True(t, b.peers.Has(peerA))
	assert.True(t, a.peers.Has(peerB))

	pad, err := a.CreatePad(geom.Pt(100, 100), 100)
	require.NoError(t, err)
	_, err = a.CreateCurvedPath(pad.ID, 30, 60, 270, 60)
	require.NoError(t, err)
	_, err = b.CreateString(pad.ID, geom.Pt(100, 70), geom.Pt(100, 10))
	assert.ErrorIs(t, err, scene.ErrUnknownParent, "b has not heard of the pad yet")
	f.pump(t)

	_, err = b.CreateString(pad.ID, geom.Pt(100, 70), geom.Pt(100, 10))
	require.NoError(t, err)
	f.pump(t)

	ids := func(sc *scene.Scene) []string {
		var out []string
		for _, r := range sc.Records() {
			out = append(out, r.ID)
		}
		return out
	}
	assert.ElementsMatch(t, ids(sceneA), ids(sceneB))
	assert.Equal(t, 3, sceneA.Len())

	_, err = a.Delete(pad.ID)
	require.NoError(t, err)
	f.pump(t)
	assert.Equal(t, 0, sceneA.Len())
	assert.Equal(t, 0, sceneB.Len())
}
