package audio

import (
	"math"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
)

// Mixer adapts a Bank to beep.Streamer: it renders the mono sum of all
// read-side sources, clamps it to [-1, 1] and copies it to both channels.
type Mixer struct {
	bank *Bank
	mono []float64
}

// NewMixer creates a mixer over bank.
func NewMixer(bank *Bank) *Mixer {
	return &Mixer{bank: bank}
}

// Stream implements beep.Streamer. It never runs dry.
func (m *Mixer) Stream(samples [][2]float64) (n int, ok bool) {
	if cap(m.mono) < len(samples) {
		m.mono = make([]float64, len(samples))
	}
	mono := m.mono[:len(samples)]
	m.bank.Render(mono)

	for i, v := range mono {
		v = clamp(v, -1, 1)
		samples[i][0] = v
		samples[i][1] = v
	}
	return len(samples), true
}

// Err implements beep.Streamer.
func (m *Mixer) Err() error {
	return nil
}

// WithVolume wraps s with a master gain in [0, 1]. Gain 0 silences the output.
func WithVolume(s beep.Streamer, gain float64) beep.Streamer {
	if gain >= 1 {
		return s
	}
	if gain <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Silent: true}
	}
	return &effects.Volume{
		Streamer: s,
		Base:     2,
		Volume:   math.Log2(gain),
	}
}
