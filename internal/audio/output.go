package audio

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	"go.uber.org/zap"

	"playround/internal/logging"
)

// Sink consumes rendered stereo frames. WriteFrames must not block the pump.
type Sink interface {
	WriteFrames(frames [][2]float64) error
	Close() error
}

// OutputConfig configures the audio pump.
type OutputConfig struct {
	SampleRate int
	BufferSize int // frames per callback
}

// Output periodically pulls one buffer from a streamer and hands it to sinks.
// It plays the role of the hardware audio callback.
type Output struct {
	cfg      OutputConfig
	streamer beep.Streamer
	buf      [][2]float64

	mu    sync.Mutex
	sinks []Sink

	running  atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	callbacks   uint64 // atomic
	maxCallback int64  // atomic, nanoseconds
}

// NewOutput creates a pump over streamer.
func NewOutput(cfg OutputConfig, streamer beep.Streamer) *Output {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 512
	}
	return &Output{
		cfg:      cfg,
		streamer: streamer,
		buf:      make([][2]float64, cfg.BufferSize),
		stopChan: make(chan struct{}),
	}
}

// AddSink registers a sink. Sinks are closed on Stop.
func (o *Output) AddSink(s Sink) {
	o.mu.Lock()
	o.sinks = append(o.sinks, s)
	o.mu.Unlock()
}

// Period returns the wall-clock duration of one buffer.
func (o *Output) Period() time.Duration {
	return beep.SampleRate(o.cfg.SampleRate).D(o.cfg.BufferSize)
}

// Start begins the pump loop.
func (o *Output) Start() {
	if o.running.Swap(true) {
		return
	}
	o.wg.Add(1)
	go o.loop()
	logging.Info("🔊 audio output started",
		zap.Int("sampleRate", o.cfg.SampleRate),
		zap.Int("bufferSize", o.cfg.BufferSize),
		zap.Duration("period", o.Period()))
}

// Stop halts the pump and closes every sink.
func (o *Output) Stop() {
	o.stopOnce.Do(func() {
		if o.running.Load() {
			close(o.stopChan)
			o.wg.Wait()
		}
		o.running.Store(false)

		o.mu.Lock()
		defer o.mu.Unlock()
		for _, s := range o.sinks {
			if err := s.Close(); err != nil {
				logging.Warn("⚠️ audio sink close failed", zap.Error(err))
			}
		}
		o.sinks = nil
	})
}

func (o *Output) loop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.Period())
	defer ticker.Stop()

	for {
		select {
		case <-o.stopChan:
			return
		case <-ticker.C:
			o.Pump()
		}
	}
}

// Pump renders exactly one buffer and delivers it.
func (o *Output) Pump() {
	start := time.Now()
	n, _ := o.streamer.Stream(o.buf)
	elapsed := time.Since(start).Nanoseconds()

	atomic.AddUint64(&o.callbacks, 1)
	for {
		cur := atomic.LoadInt64(&o.maxCallback)
		if elapsed <= cur || atomic.CompareAndSwapInt64(&o.maxCallback, cur, elapsed) {
			break
		}
	}

	o.mu.Lock()
	sinks := o.sinks
	o.mu.Unlock()
	for _, s := range sinks {
		if err := s.WriteFrames(o.buf[:n]); err != nil {
			logging.Debug("audio sink write failed", zap.Error(err))
		}
	}
}

// GetStats returns pump statistics
func (o *Output) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"running":       o.running.Load(),
		"callbacks":     atomic.LoadUint64(&o.callbacks),
		"maxCallbackUs": atomic.LoadInt64(&o.maxCallback) / 1000,
	}
}

// =============================================================================
// WAV RECORDER
// =============================================================================

// WAVRecorder is a Sink that encodes everything it receives to a WAV file.
// Frames are queued to an encoder goroutine; when the queue is full the
// buffer is dropped rather than stalling the pump.
type WAVRecorder struct {
	file   *os.File
	queue  chan [][2]float64
	done   chan error
	closed atomic.Bool

	dropped uint64 // atomic
}

// NewWAVRecorder creates path and starts encoding 16-bit stereo at sampleRate.
func NewWAVRecorder(path string, sampleRate int) (*WAVRecorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}

	r := &WAVRecorder{
		file:  file,
		queue: make(chan [][2]float64, 64),
		done:  make(chan error, 1),
	}
	format := beep.Format{
		SampleRate:  beep.SampleRate(sampleRate),
		NumChannels: 2,
		Precision:   2,
	}
	go func() {
		r.done <- wav.Encode(file, &queueStreamer{queue: r.queue}, format)
	}()
	return r, nil
}

// WriteFrames copies frames onto the encoder queue.
func (r *WAVRecorder) WriteFrames(frames [][2]float64) error {
	if r.closed.Load() {
		return fmt.Errorf("recorder closed")
	}
	chunk := make([][2]float64, len(frames))
	copy(chunk, frames)
	select {
	case r.queue <- chunk:
		return nil
	default:
		atomic.AddUint64(&r.dropped, 1)
		return fmt.Errorf("recorder queue full")
	}
}

// Close finishes the WAV header and closes the file.
func (r *WAVRecorder) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	close(r.queue)
	encErr := <-r.done
	closeErr := r.file.Close()
	if encErr != nil {
		return fmt.Errorf("encode recording: %w", encErr)
	}
	return closeErr
}

// Dropped returns the number of buffers lost to backpressure.
func (r *WAVRecorder) Dropped() uint64 {
	return atomic.LoadUint64(&r.dropped)
}

// queueStreamer drains a channel of frame chunks as a beep.Streamer.
type queueStreamer struct {
	queue   <-chan [][2]float64
	pending [][2]float64
}

func (q *queueStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) {
		if len(q.pending) == 0 {
			chunk, open := <-q.queue
			if !open {
				return n, n > 0
			}
			q.pending = chunk
			continue
		}
		c := copy(samples[n:], q.pending)
		q.pending = q.pending[c:]
		n += c
	}
	return n, true
}

func (q *queueStreamer) Err() error {
	return nil
}
