// Package journal keeps a bounded, rate-limited JSONL record of protocol and
// simulation events.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"playround/internal/logging"
	"playround/internal/metrics"
	"playround/internal/scene"
)

// SourceLocal marks events caused by this process.
const SourceLocal = "local"

// Config bounds the journal.
type Config struct {
	BufferSize         int           // circular buffer capacity
	MaxEventsPerSec    float64       // global rate limit
	MaxEventsPerSource float64       // per-source rate limit per second
	BatchSize          int           // events per batch write
	FlushInterval      time.Duration // how often to flush
	LimiterCleanup     time.Duration // idle per-source limiters are dropped after this
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:         1024,
		MaxEventsPerSec:    2000,
		MaxEventsPerSource: 200,
		BatchSize:          64,
		FlushInterval:      100 * time.Millisecond,
		LimiterCleanup:     5 * time.Minute,
	}
}

// Journal buffers events in a ring and writes them asynchronously.
// When the ring is full the oldest unwritten event is dropped.
type Journal struct {
	cfg Config

	mu        sync.Mutex
	buffer    []Event
	writeHead uint64 // next sequence to assign
	readHead  uint64 // next sequence to flush

	globalLimiter  *rate.Limiter
	sourceLimiters sync.Map // map[string]*limiterEntry

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	fileMu sync.Mutex
	file   *os.File

	droppedCount uint64 // atomic
	totalCount   uint64 // atomic
	writtenCount uint64 // atomic
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // unix nano
}

// New creates a stopped journal.
func New(cfg Config) *Journal {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.MaxEventsPerSec <= 0 {
		cfg.MaxEventsPerSec = def.MaxEventsPerSec
	}
	if cfg.MaxEventsPerSource <= 0 {
		cfg.MaxEventsPerSource = def.MaxEventsPerSource
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.LimiterCleanup <= 0 {
		cfg.LimiterCleanup = def.LimiterCleanup
	}
	return &Journal{
		cfg:           cfg,
		buffer:        make([]Event, cfg.BufferSize),
		globalLimiter: rate.NewLimiter(rate.Limit(cfg.MaxEventsPerSec), burst(cfg.MaxEventsPerSec)),
		stopChan:      make(chan struct{}),
	}
}

func burst(perSec float64) int {
	if b := int(perSec / 10); b > 0 {
		return b
	}
	return 1
}

// Start opens path for append and begins the writer. An empty path keeps
// events in memory only.
func (j *Journal) Start(path string) error {
	if j.running.Load() {
		return nil
	}
	if path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		j.file = file
	}

	j.running.Store(true)
	j.wg.Add(2)
	go j.writerLoop()
	go j.cleanupLoop()

	logging.Info("📓 journal started", zap.String("path", path))
	return nil
}

// Stop flushes what is buffered and closes the file.
func (j *Journal) Stop() {
	j.stopOnce.Do(func() {
		if !j.running.Swap(false) {
			return
		}
		close(j.stopChan)
		j.wg.Wait()

		j.fileMu.Lock()
		defer j.fileMu.Unlock()
		if j.file != nil {
			if err := j.file.Close(); err != nil {
				logging.Warn("⚠️ journal close failed", zap.Error(err))
			}
			j.file = nil
		}
	})
}

// Emit appends an event. It returns false when rate limited or stopped.
func (j *Journal) Emit(event Event) bool {
	if !j.running.Load() {
		return false
	}
	if !j.globalLimiter.Allow() || (event.Source != "" && !j.sourceLimiter(event.Source).Allow()) {
		atomic.AddUint64(&j.droppedCount, 1)
		metrics.RecordJournal(false)
		return false
	}

	j.mu.Lock()
	j.writeHead++
	event.Sequence = j.writeHead
	j.buffer[event.Sequence%uint64(len(j.buffer))] = event
	if j.writeHead-j.readHead > uint64(len(j.buffer)) {
		j.readHead = j.writeHead - uint64(len(j.buffer))
		atomic.AddUint64(&j.droppedCount, 1)
	}
	j.mu.Unlock()

	atomic.AddUint64(&j.totalCount, 1)
	metrics.RecordJournal(true)
	return true
}

func (j *Journal) sourceLimiter(source string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := j.sourceLimiters.Load(source); ok {
		e := v.(*limiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}
	e := &limiterEntry{
		limiter: rate.NewLimiter(rate.Limit(j.cfg.MaxEventsPerSource), burst(j.cfg.MaxEventsPerSource)),
	}
	e.lastUsed.Store(now)
	actual, _ := j.sourceLimiters.LoadOrStore(source, e)
	return actual.(*limiterEntry).limiter
}

// Recent returns up to n of the latest events, oldest first, whether or not
// they have been written yet.
func (j *Journal) Recent(n int) []Event {
	j.mu.Lock()
	defer j.mu.Unlock()

	avail := j.writeHead
	if avail > uint64(len(j.buffer)) {
		avail = uint64(len(j.buffer))
	}
	if n <= 0 || uint64(n) > avail {
		n = int(avail)
	}
	out := make([]Event, 0, n)
	for seq := j.writeHead - uint64(n) + 1; seq <= j.writeHead; seq++ {
		out = append(out, j.buffer[seq%uint64(len(j.buffer))])
	}
	return out
}

// =============================================================================
// WRITER
// =============================================================================

func (j *Journal) writerLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, j.cfg.BatchSize)
	for {
		select {
		case <-j.stopChan:
			for {
				batch = j.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				j.flushBatch(batch)
			}
		case <-ticker.C:
			batch = j.collectBatch(batch[:0])
			if len(batch) > 0 {
				j.flushBatch(batch)
			}
		}
	}
}

func (j *Journal) cleanupLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.cfg.LimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			return
		case <-ticker.C:
			j.cleanupLimiters(time.Now().Add(-j.cfg.LimiterCleanup))
		}
	}
}

func (j *Journal) cleanupLimiters(cutoff time.Time) {
	j.sourceLimiters.Range(func(key, value interface{}) bool {
		if value.(*limiterEntry).lastUsed.Load() < cutoff.UnixNano() {
			j.sourceLimiters.Delete(key)
		}
		return true
	})
}

func (j *Journal) collectBatch(batch []Event) []Event {
	j.mu.Lock()
	defer j.mu.Unlock()

	for j.readHead < j.writeHead && len(batch) < cap(batch) {
		j.readHead++
		batch = append(batch, j.buffer[j.readHead%uint64(len(j.buffer))])
	}
	return batch
}

// flushBatch appends newline-delimited JSON.
func (j *Journal) flushBatch(batch []Event) {
	j.fileMu.Lock()
	defer j.fileMu.Unlock()

	if j.file == nil {
		return
	}
	var buf []byte
	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}
	if _, err := j.file.Write(buf); err != nil {
		logging.Warn("⚠️ journal write failed", zap.Error(err))
		return
	}
	atomic.AddUint64(&j.writtenCount, uint64(len(batch)))
}

// GetStats returns journal statistics
func (j *Journal) GetStats() map[string]interface{} {
	j.mu.Lock()
	pending := j.writeHead - j.readHead
	j.mu.Unlock()

	return map[string]interface{}{
		"total":   atomic.LoadUint64(&j.totalCount),
		"dropped": atomic.LoadUint64(&j.droppedCount),
		"written": atomic.LoadUint64(&j.writtenCount),
		"pending": pending,
		"running": j.running.Load(),
	}
}

// =============================================================================
// DOMAIN EVENTS
// =============================================================================

// PeerUp records a peer joining.
func (j *Journal) PeerUp(addr string) bool {
	return j.Emit(NewEvent(EventTypePeerUp, addr, PeerPayload{Addr: addr}))
}

// PeerDown records a peer leaving.
func (j *Journal) PeerDown(addr string) bool {
	return j.Emit(NewEvent(EventTypePeerDown, addr, PeerPayload{Addr: addr}))
}

// Created records an object entering the scene.
func (j *Journal) Created(rec scene.Record, source string) bool {
	return j.Emit(NewEvent(EventTypeCreate, source, objectPayload(rec)))
}

// Deleted records a delete and everything it cascaded to.
func (j *Journal) Deleted(removed []string, source string) bool {
	return j.Emit(NewEvent(EventTypeDelete, source, DeletePayload{Removed: removed}))
}

// OrphanParked records a creation held back for its parent.
func (j *Journal) OrphanParked(rec scene.Record) bool {
	return j.Emit(NewEvent(EventTypeOrphanParked, "", objectPayload(rec)))
}

// OrphanResolved records a held creation that was finally applied.
func (j *Journal) OrphanResolved(rec scene.Record) bool {
	return j.Emit(NewEvent(EventTypeOrphanResolved, "", objectPayload(rec)))
}

// Plucked records a string excitation.
func (j *Journal) Plucked(ev scene.PluckEvent) bool {
	return j.Emit(NewEvent(EventTypePluck, SourceLocal, PluckPayload{
		String:    ev.String,
		Frequency: ev.Frequency,
		Path:      ev.Path,
		Tick:      ev.Tick,
	}))
}

func objectPayload(rec scene.Record) ObjectPayload {
	return ObjectPayload{Kind: rec.Kind.String(), ID: rec.ID, Parent: rec.Parent}
}
