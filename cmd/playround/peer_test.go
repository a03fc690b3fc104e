package main

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSplitPeer verifies host and port parsing of the peer argument
func TestSplitPeer(t *testing.T) {
	tests := []struct {
		arg      string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"10.0.0.5", "10.0.0.5", 10101, false},
		{"10.0.0.5:20000", "10.0.0.5", 20000, false},
		{"studio.local", "studio.local", 10101, false},
		{"studio.local:9", "studio.local", 9, false},
		{"10.0.0.5:0", "", 0, true},
		{"10.0.0.5:port", "", 0, true},
		{":10101", "", 0, true},
		{"", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			host, port, err := splitPeer(tt.arg, 10101)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

// TestResolvePeer verifies literal addresses resolve without DNS
func TestResolvePeer(t *testing.T) {
	got, err := resolvePeer("127.0.0.1:10102", 10101)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:10102"), got)

	got, err = resolvePeer("192.168.1.20", 10101)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddrPort("192.168.1.20:10101"), got)
}

// TestParsePort verifies listen port validation
func TestParsePort(t *testing.T) {
	p, err := parsePort("10102")
	require.NoError(t, err)
	assert.Equal(t, 10102, p)

	for _, bad := range []string{"0", "-1", "65536", "abc"} {
		_, err := parsePort(bad)
		assert.Error(t, err, bad)
	}
}
