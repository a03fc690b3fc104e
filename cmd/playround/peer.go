package main

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// splitPeer splits "host[:port]" and falls back to defaultPort.
func splitPeer(arg string, defaultPort int) (string, int, error) {
	if arg == "" {
		return "", 0, fmt.Errorf("empty peer address")
	}
	host, portStr, err := net.SplitHostPort(arg)
	if err != nil {
		// No port given
		if strings.Contains(err.Error(), "missing port") {
			return strings.Trim(arg, "[]"), defaultPort, nil
		}
		return "", 0, fmt.Errorf("peer %q: %w", arg, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("peer %q: invalid port %q", arg, portStr)
	}
	if host == "" {
		return "", 0, fmt.Errorf("peer %q: missing host", arg)
	}
	return host, port, nil
}

// resolvePeer turns "host[:port]" into an IPv4 address.
func resolvePeer(arg string, defaultPort int) (netip.AddrPort, error) {
	host, port, err := splitPeer(arg, defaultPort)
	if err != nil {
		return netip.AddrPort{}, err
	}
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("resolve peer %q: %w", host, err)
	}
	ap := addr.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}

// parsePort validates a listen port argument.
func parsePort(arg string) (int, error) {
	port, err := strconv.Atoi(arg)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid listen port %q", arg)
	}
	return port, nil
}
