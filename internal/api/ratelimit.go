package api

import (
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"playround/internal/metrics"
)

// RateLimitConfig configures the per-client request limiter
type RateLimitConfig struct {
	RequestsPerSecond float64       // sustained requests per client IP
	Burst             int           // requests a client may send at once
	CleanupInterval   time.Duration // idle clients are forgotten after twice this
}

// DefaultRateLimitConfig allows a renderer to stream cursor moves
var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 60,
	Burst:             120,
	CleanupInterval:   5 * time.Minute,
}

type clientBucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// IPRateLimiter throttles HTTP requests per client IP.
type IPRateLimiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	buckets map[string]*clientBucket

	stopChan chan struct{}
	stopOnce sync.Once

	allowed  uint64 // atomic
	rejected uint64 // atomic
}

// NewIPRateLimiter creates a limiter and starts forgetting idle clients in
// the background until Stop.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimitConfig.CleanupInterval
	}
	rl := &IPRateLimiter{
		cfg:      cfg,
		buckets:  make(map[string]*clientBucket),
		stopChan: make(chan struct{}),
	}
	go rl.forgetLoop()
	return rl
}

// Stop ends the background cleanup.
func (rl *IPRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}

// Allow takes one token from ip's bucket.
func (rl *IPRateLimiter) Allow(ip string) bool {
	now := time.Now()

	rl.mu.Lock()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst)}
		rl.buckets[ip] = b
	}
	b.seen = now
	ok = b.limiter.AllowN(now, 1)
	rl.mu.Unlock()

	if ok {
		atomic.AddUint64(&rl.allowed, 1)
	} else {
		atomic.AddUint64(&rl.rejected, 1)
	}
	return ok
}

func (rl *IPRateLimiter) forgetLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case now := <-ticker.C:
			rl.forget(now.Add(-2 * rl.cfg.CleanupInterval))
		}
	}
}

// forget drops clients not seen since cutoff.
func (rl *IPRateLimiter) forget(cutoff time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for ip, b := range rl.buckets {
		if b.seen.Before(cutoff) {
			delete(rl.buckets, ip)
			n++
		}
	}
	return n
}

// Middleware answers 429 to clients over their budget.
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(GetClientIP(r)) {
			metrics.RecordConnectionRejected("rate_limit")
			w.Header().Set("Retry-After", "1")
			writeError(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetStats returns rate limiter statistics
func (rl *IPRateLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	clients := len(rl.buckets)
	rl.mu.Unlock()
	return map[string]interface{}{
		"clients":  clients,
		"allowed":  atomic.LoadUint64(&rl.allowed),
		"rejected": atomic.LoadUint64(&rl.rejected),
	}
}

// GetClientIP extracts the client IP from an HTTP request.
// Forwarding headers are ignored: the API is meant to be reached directly.
func GetClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// connLimiter caps concurrent WebSocket connections per client IP.
type connLimiter struct {
	maxPerIP int

	mu    sync.Mutex
	open  map[string]int
	total int

	rejected uint64 // atomic
}

func newConnLimiter(maxPerIP int) *connLimiter {
	return &connLimiter{maxPerIP: maxPerIP, open: make(map[string]int)}
}

// acquire reserves a slot for ip unless it, or the whole hub, is full.
func (c *connLimiter) acquire(ip string, maxTotal int) (ok bool, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.total >= maxTotal:
		reason = "ws_total_limit"
	case c.open[ip] >= c.maxPerIP:
		reason = "ws_ip_limit"
	default:
		c.open[ip]++
		c.total++
		return true, ""
	}
	atomic.AddUint64(&c.rejected, 1)
	return false, reason
}

// release frees a slot taken by acquire.
func (c *connLimiter) release(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open[ip] == 0 {
		return
	}
	c.total--
	if c.open[ip]--; c.open[ip] == 0 {
		delete(c.open, ip)
	}
}

func (c *connLimiter) count(ip string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open[ip]
}

// IsAllowedOrigin accepts browser origins on this machine only
func IsAllowedOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
