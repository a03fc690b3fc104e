package protocol

import (
	"net/netip"
	"testing"

	"github.com/hypebeast/go-osc/osc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playround/internal/geom"
	"playround/internal/scene"
)

func roundTrip(t *testing.T, m Message) Message {
	t.Helper()
	data, err := Encode(m)
	require.NoError(t, err)
	msgs, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	return msgs[0]
}

// TestRoundTrip verifies every message survives encode and decode
func TestRoundTrip(t *testing.T) {
	tests := []Message{
		PeerUp{Addr: PackAddr(netip.MustParseAddr("10.0.0.7")), Port: 10101},
		PeerDown{Addr: 0, Port: 10102},
		PeerText{Addr: 1, Port: 2, Text: "alice"},
		CursorPosition{Port: 10101, X: 12.5, Y: 99, Pressed: true},
		CursorPosition{Port: 10101, X: 1, Y: 2, Pressed: false},
		PadCreate{ID: "pad", X: 128, Y: 128, Radius: 100},
		PadText{ID: "pad", Text: "Hi there!\nSo glad"},
		PluckerSpawn{PathID: "path"},
		CurvedPathCreate{ID: "c", PadID: "pad", StartAngle: 30, StartRadius: 60, EndAngle: 270, EndRadius: 60},
		StraightPathCreate{ID: "s", PadID: "pad", X1: 1, Y1: 2, X2: 3, Y2: 4},
		StringCreate{ID: "str", PadID: "pad", X1: 5, Y1: 6, X2: 7, Y2: 8},
		ObjectDelete{ID: "gone"},
		ObjectQuery{},
	}
	for _, m := range tests {
		t.Run(m.Address(), func(t *testing.T) {
			assert.Equal(t, m, roundTrip(t, m))
		})
	}
}

// TestRecordRoundTrip verifies scene records survive the wire
func TestRecordRoundTrip(t *testing.T) {
	recs := []scene.Record{
		{Kind: scene.KindPad, ID: "pad", Center: geom.Pt(128, 64), Radius: 100},
		{Kind: scene.KindCurvedPath, ID: "c", Parent: "pad", StartAngle: 30, StartRadius: 60, EndAngle: 270, EndRadius: 80},
		{Kind: scene.KindStraightPath, ID: "s", Parent: "pad", P1: geom.Pt(1, 2), P2: geom.Pt(3, 4)},
		{Kind: scene.KindString, ID: "str", Parent: "pad", P1: geom.Pt(10, 20), P2: geom.Pt(30, 40)},
	}
	for _, rec := range recs {
		t.Run(rec.Kind.String(), func(t *testing.T) {
			m, err := FromRecord(rec)
			require.NoError(t, err)
			got, ok := roundTrip(t, m).(Creation)
			require.True(t, ok)
			assert.Equal(t, rec, got.Record())
		})
	}

	_, err := FromRecord(scene.Record{ID: "x"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

// TestDecodeRejects verifies malformed input is reported, not panicked on
func TestDecodeRejects(t *testing.T) {
	encode := func(addr string, args ...interface{}) []byte {
		data, err := osc.NewMessage(addr, args...).MarshalBinary()
		require.NoError(t, err)
		return data
	}

	tests := []struct {
		name    string
		payload []byte
		want    error
	}{
		{"garbage", []byte("not osc"), ErrMalformed},
		{"unknown address", encode("/object/teleport", "x"), ErrUnknownAddress},
		{"missing argument", encode(AddrPad, "pad", float32(1), float32(2)), ErrArgumentMismatch},
		{"extra argument", encode(AddrDelete, "a", "b"), ErrArgumentMismatch},
		{"wrong type", encode(AddrPad, int32(1), float32(1), float32(2), float32(3)), ErrArgumentMismatch},
		{"port overflow", encode(AddrPeerUp, int64(0), int64(1)<<40), ErrArgumentMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.payload)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// TestDecodeWidensNumbers verifies lossless numeric widening
func TestDecodeWidensNumbers(t *testing.T) {
	data, err := osc.NewMessage(AddrPeerUp, int32(5), int32(10101)).MarshalBinary()
	require.NoError(t, err)
	msgs, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, PeerUp{Addr: 5, Port: 10101}, msgs[0])

	data, err = osc.NewMessage(AddrPad, "p", int32(3), float64(4), float32(5)).MarshalBinary()
	require.NoError(t, err)
	msgs, err = Decode(data)
	require.NoError(t, err)
	assert.Equal(t, PadCreate{ID: "p", X: 3, Y: 4, Radius: 5}, msgs[0])
}

// TestPackAddr verifies IPv4 packing
func TestPackAddr(t *testing.T) {
	tests := []struct {
		addr string
		want int64
	}{
		{"127.0.0.1", 0x7f000001},
		{"192.168.1.20", 0xc0a80114},
		{"::ffff:10.0.0.1", 0x0a000001},
		{"::1", 0},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			got := PackAddr(netip.MustParseAddr(tt.addr))
			assert.Equal(t, tt.want, got)
			if tt.want != 0 {
				assert.Equal(t, netip.MustParseAddr(tt.addr).Unmap(), UnpackAddr(got))
			}
		})
	}
}
