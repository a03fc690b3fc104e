// Package audio holds the sound-source bank shared with the audio callback,
// the plucked-string voice, and the output pump that drives both.
package audio

import (
	"math"
	"math/rand"
	"sync/atomic"
)

// SoundSource is a unit that accepts note events from the simulation side and
// produces one sample per Tick on the audio side.
type SoundSource interface {
	NoteOn(frequency, amplitude float64)
	NoteOff(amplitude float64)
	Tick() float64
}

const (
	lowestFrequency = 20.0
	defaultLoopGain = 0.995
)

// PluckedString is a Karplus-Strong string.
//
// NoteOn and NoteOff only publish a request through atomics; the delay line is
// touched exclusively by Tick, which runs on the audio side.
type PluckedString struct {
	sampleRate float64

	pendingFreq atomic.Uint64 // float64 bits, 0 when nothing is pending
	pendingAmp  atomic.Uint64
	pendingOff  atomic.Uint64 // float64 bits of (amplitude + 1), 0 when nothing is pending

	// audio-side state
	delay    []float64
	length   int
	pos      int
	loopGain float64
	rng      *rand.Rand
}

// NewPluckedString creates a silent string for the given sample rate.
func NewPluckedString(sampleRate int, seed int64) *PluckedString {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &PluckedString{
		sampleRate: float64(sampleRate),
		delay:      make([]float64, int(float64(sampleRate)/lowestFrequency)+2),
		loopGain:   defaultLoopGain,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// NoteOn schedules an excitation at the given frequency.
func (s *PluckedString) NoteOn(frequency, amplitude float64) {
	if frequency <= 0 || math.IsNaN(frequency) {
		return
	}
	s.pendingAmp.Store(math.Float64bits(amplitude))
	s.pendingFreq.Store(math.Float64bits(frequency))
}

// NoteOff schedules damping; amplitude 1 stops the string almost at once.
func (s *PluckedString) NoteOff(amplitude float64) {
	s.pendingOff.Store(math.Float64bits(amplitude + 1))
}

// Tick produces the next sample.
func (s *PluckedString) Tick() float64 {
	if bits := s.pendingOff.Swap(0); bits != 0 {
		amp := math.Float64frombits(bits) - 1
		s.loopGain = clamp(1-amp, 0, 1)
	}
	if bits := s.pendingFreq.Swap(0); bits != 0 {
		s.excite(math.Float64frombits(bits), math.Float64frombits(s.pendingAmp.Load()))
	}
	if s.length == 0 {
		return 0
	}

	out := s.delay[s.pos]
	next := s.delay[(s.pos+1)%s.length]
	s.delay[s.pos] = s.loopGain * 0.5 * (out + next)
	s.pos = (s.pos + 1) % s.length
	return out
}

func (s *PluckedString) excite(frequency, amplitude float64) {
	n := int(s.sampleRate / frequency)
	if n < 2 {
		n = 2
	}
	if n > len(s.delay) {
		n = len(s.delay)
	}
	s.length = n
	s.pos = 0

	// white noise through a two-tap average for a softer pick
	prev := 0.0
	for i := 0; i < n; i++ {
		v := (s.rng.Float64()*2 - 1) * amplitude
		s.delay[i] = 0.5 * (v + prev)
		prev = v
	}

	s.loopGain = defaultLoopGain + frequency*0.000005
	if s.loopGain > 0.99999 {
		s.loopGain = 0.99999
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
