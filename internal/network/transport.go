package network

import (
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
)

// Sender delivers one datagram. Delivery is fire-and-forget.
type Sender interface {
	Send(to netip.AddrPort, payload []byte) error
}

// UDPTransport is the IPv4 UDP socket shared by the receive loop and senders.
type UDPTransport struct {
	conn *net.UDPConn

	sent     uint64 // atomic
	received uint64 // atomic
}

// ListenUDP binds the transport on every IPv4 interface at port.
// Port 0 picks a free port.
func ListenUDP(port int) (*UDPTransport, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("listen udp :%d: %w", port, err)
	}
	return &UDPTransport{conn: conn}, nil
}

// Send implements Sender.
func (t *UDPTransport) Send(to netip.AddrPort, payload []byte) error {
	if _, err := t.conn.WriteToUDPAddrPort(payload, to); err != nil {
		return fmt.Errorf("send to %s: %w", to, err)
	}
	atomic.AddUint64(&t.sent, 1)
	return nil
}

// Receive blocks for the next datagram.
func (t *UDPTransport) Receive(buf []byte) (int, netip.AddrPort, error) {
	n, from, err := t.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		return 0, netip.AddrPort{}, err
	}
	atomic.AddUint64(&t.received, 1)
	return n, normalize(from), nil
}

// LocalPort returns the bound port.
func (t *UDPTransport) LocalPort() int {
	return t.conn.LocalAddr().(*net.UDPAddr).Port
}

// Close unblocks Receive and releases the socket.
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

// GetStats returns transport statistics
func (t *UDPTransport) GetStats() map[string]uint64 {
	return map[string]uint64{
		"sent":     atomic.LoadUint64(&t.sent),
		"received": atomic.LoadUint64(&t.received),
	}
}
