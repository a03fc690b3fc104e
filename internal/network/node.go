package network

import (
	"errors"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"playround/internal/logging"
	"playround/internal/metrics"
	"playround/internal/protocol"
)

// NodeConfig configures the receive loop.
type NodeConfig struct {
	MessagesPerSecond float64       // per source address
	Burst             int           // per source address
	CleanupInterval   time.Duration // how often idle limiters are dropped
}

// DefaultNodeConfig returns defaults generous enough for cursor traffic.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		MessagesPerSecond: 500,
		Burst:             1000,
		CleanupInterval:   5 * time.Minute,
	}
}

// Receiver is the inbound half of a transport.
type Receiver interface {
	Receive(buf []byte) (int, netip.AddrPort, error)
	Close() error
}

// Node runs the receive loop: every datagram that passes the per-source
// limiter is handed to the processor synchronously.
type Node struct {
	cfg      NodeConfig
	conn     Receiver
	proc     *Processor
	limiters *sourceLimiter

	running  int32 // atomic
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewNode creates a node reading from conn.
func NewNode(cfg NodeConfig, conn Receiver, proc *Processor) *Node {
	if cfg.MessagesPerSecond <= 0 {
		cfg = DefaultNodeConfig()
	}
	return &Node{
		cfg:      cfg,
		conn:     conn,
		proc:     proc,
		limiters: newSourceLimiter(cfg.MessagesPerSecond, cfg.Burst),
		stopChan: make(chan struct{}),
	}
}

// Start launches the receive loop.
func (n *Node) Start() {
	if !atomic.CompareAndSwapInt32(&n.running, 0, 1) {
		return
	}
	n.wg.Add(2)
	go n.receiveLoop()
	go n.cleanupLoop()
	logging.Info("📡 node listening", zap.Float64("perSourceRate", n.cfg.MessagesPerSecond))
}

// Stop closes the socket and waits for the loops to exit.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopChan)
		if err := n.conn.Close(); err != nil {
			logging.Debug("close transport", zap.Error(err))
		}
		n.wg.Wait()
		atomic.StoreInt32(&n.running, 0)
	})
}

func (n *Node) receiveLoop() {
	defer n.wg.Done()
	buf := make([]byte, protocol.MaxDatagramSize)

	for {
		size, from, err := n.conn.Receive(buf)
		if err != nil {
			select {
			case <-n.stopChan:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Warn("⚠️ receive failed", zap.Error(err))
			continue
		}
		if !n.limiters.allow(from.Addr()) {
			metrics.RecordDropped("rate_limit")
			continue
		}
		n.proc.Handle(from, buf[:size])
	}
}

func (n *Node) cleanupLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopChan:
			return
		case <-ticker.C:
			n.limiters.cleanup(time.Now().Add(-2 * n.cfg.CleanupInterval))
		}
	}
}

// GetStats returns node statistics
func (n *Node) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"running":  atomic.LoadInt32(&n.running) == 1,
		"limited":  n.limiters.rejectedCount(),
		"sources":  n.limiters.len(),
		"handling": n.proc.GetStats(),
	}
}

// =============================================================================
// PER-SOURCE LIMITER
// =============================================================================

type sourceEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// sourceLimiter keeps one token bucket per source address.
type sourceLimiter struct {
	mu       sync.Mutex
	entries  map[netip.Addr]*sourceEntry
	limit    rate.Limit
	burst    int
	rejected uint64 // atomic
}

func newSourceLimiter(perSecond float64, burst int) *sourceLimiter {
	return &sourceLimiter{
		entries: make(map[netip.Addr]*sourceEntry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

func (l *sourceLimiter) allow(addr netip.Addr) bool {
	l.mu.Lock()
	e, ok := l.entries[addr]
	if !ok {
		e = &sourceEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[addr] = e
	}
	e.lastSeen = time.Now()
	l.mu.Unlock()

	if e.limiter.Allow() {
		return true
	}
	atomic.AddUint64(&l.rejected, 1)
	return false
}

func (l *sourceLimiter) cleanup(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for addr, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, addr)
		}
	}
}

func (l *sourceLimiter) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *sourceLimiter) rejectedCount() uint64 {
	return atomic.LoadUint64(&l.rejected)
}

// LocalAddrs lists the unicast addresses of this host's interfaces.
func LocalAddrs() []netip.Addr {
	ifaddrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var out []netip.Addr
	for _, a := range ifaddrs {
		if prefix, err := netip.ParsePrefix(a.String()); err == nil {
			out = append(out, prefix.Addr().Unmap())
		}
	}
	return out
}
