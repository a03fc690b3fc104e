// Package sim drives the scene at a fixed tick rate and publishes frames
// for readers that must not contend with the tick.
package sim

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"playround/internal/logging"
	"playround/internal/metrics"
	"playround/internal/scene"
)

// DefaultTickRate is the simulation rate in ticks per second.
const DefaultTickRate = 30

// SourceBank is the simulation side of the sound-source double buffer.
type SourceBank interface {
	Swap()
	Len() int
}

// Engine owns the simulation ticker.
type Engine struct {
	mu       sync.Mutex
	scene    *scene.Scene
	bank     SourceBank
	tickRate int
	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}
	done     chan struct{}

	// Latest published frame, swapped atomically once per tick
	frame atomic.Pointer[scene.Frame]

	// Event callbacks
	OnTick  func(res scene.TickResult)
	OnPluck func(ev scene.PluckEvent)

	// Stats
	ticks       uint64 // atomic
	plucks      uint64 // atomic
	maxTickNs   int64  // atomic
	lastTickNs  int64  // atomic
	overrunTick uint64 // atomic
}

// NewEngine creates an engine over sc. bank may be nil when audio is off.
func NewEngine(sc *scene.Scene, bank SourceBank, tickRate int) *Engine {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	e := &Engine{
		scene:    sc,
		bank:     bank,
		tickRate: tickRate,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	e.frame.Store(sc.Snapshot())
	return e
}

// SetCallbacks sets the event callbacks
func (e *Engine) SetCallbacks(onTick func(scene.TickResult), onPluck func(scene.PluckEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.OnTick = onTick
	e.OnPluck = onPluck
}

// Interval returns the duration of one tick.
func (e *Engine) Interval() time.Duration {
	return time.Second / time.Duration(e.tickRate)
}

// Start begins the simulation loop
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.ticker = time.NewTicker(e.Interval())
	e.mu.Unlock()

	go func() {
		defer close(e.done)
		for {
			select {
			case <-e.ticker.C:
				e.tick()
			case <-e.stopChan:
				return
			}
		}
	}()

	logging.Info("🎮 simulation started", zap.Int("tps", e.tickRate))
}

// Stop stops the simulation loop and waits for the current tick to finish
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.ticker.Stop()
	close(e.stopChan)
	e.mu.Unlock()

	<-e.done
	logging.Info("🛑 simulation stopped")
}

// tick advances the scene, reports plucks, swaps the sound maps and
// publishes a new frame.
func (e *Engine) tick() scene.TickResult {
	start := time.Now()

	res := e.scene.Tick()

	e.mu.Lock()
	onTick, onPluck := e.OnTick, e.OnPluck
	e.mu.Unlock()

	for _, ev := range res.Plucks {
		logging.Debug("🎵 string plucked",
			zap.String("string", ev.String),
			zap.Float64("hz", ev.Frequency),
			zap.String("path", ev.Path))
		if onPluck != nil {
			onPluck(ev)
		}
	}

	sources := 0
	if e.bank != nil {
		e.bank.Swap()
		sources = e.bank.Len()
	}

	e.frame.Store(e.scene.Snapshot())

	elapsed := time.Since(start)
	atomic.AddUint64(&e.ticks, 1)
	atomic.AddUint64(&e.plucks, uint64(len(res.Plucks)))
	atomic.StoreInt64(&e.lastTickNs, elapsed.Nanoseconds())
	for {
		cur := atomic.LoadInt64(&e.maxTickNs)
		if elapsed.Nanoseconds() <= cur || atomic.CompareAndSwapInt64(&e.maxTickNs, cur, elapsed.Nanoseconds()) {
			break
		}
	}
	if elapsed > e.Interval() {
		atomic.AddUint64(&e.overrunTick, 1)
	}

	metrics.RecordTick(elapsed, res.Markers)
	metrics.RecordPlucks("marker", len(res.Plucks))
	metrics.UpdateScene(e.scene.Len(), e.scene.OrphanCount())
	metrics.UpdateSoundSources(sources)

	if onTick != nil {
		onTick(res)
	}
	return res
}

// Frame returns the most recently published frame. It never blocks on the
// scene lock and the returned frame must not be modified.
func (e *Engine) Frame() *scene.Frame {
	return e.frame.Load()
}

// Refresh publishes a frame immediately, so that edits made between ticks
// are visible to readers before the next tick.
func (e *Engine) Refresh() {
	e.frame.Store(e.scene.Snapshot())
}

// GetStats returns engine statistics
func (e *Engine) GetStats() map[string]interface{} {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()

	return map[string]interface{}{
		"running":    running,
		"tickRate":   e.tickRate,
		"ticks":      atomic.LoadUint64(&e.ticks),
		"plucks":     atomic.LoadUint64(&e.plucks),
		"lastTickUs": atomic.LoadInt64(&e.lastTickNs) / 1000,
		"maxTickUs":  atomic.LoadInt64(&e.maxTickNs) / 1000,
		"overruns":   atomic.LoadUint64(&e.overrunTick),
		"scene":      e.scene.GetStats(),
	}
}
