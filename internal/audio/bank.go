package audio

import (
	"sort"
	"sync"
)

// Bank is the double-buffered set of active sound sources.
//
// The simulation side inserts into the write-side map. The audio side renders
// from the read-side map while holding mu for the whole buffer. Swap exchanges
// the two maps and resynchronizes the new write side, all under mu, so the
// audio side never observes a map being rebuilt.
type Bank struct {
	mu    sync.Mutex
	write map[string]SoundSource
	read  map[string]SoundSource
	swaps uint64
}

// NewBank creates an empty bank.
func NewBank() *Bank {
	return &Bank{
		write: make(map[string]SoundSource),
		read:  make(map[string]SoundSource),
	}
}

// Insert adds a source to the write side. It becomes audible after the next Swap.
func (b *Bank) Insert(id string, src SoundSource) {
	b.mu.Lock()
	b.write[id] = src
	b.mu.Unlock()
}

// Erase removes a source from both sides.
func (b *Bank) Erase(id string) {
	b.mu.Lock()
	delete(b.read, id)
	delete(b.write, id)
	b.mu.Unlock()
}

// Contains reports whether id is present on the write side.
func (b *Bank) Contains(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.write[id]
	return ok
}

// Len returns the number of sources on the write side.
func (b *Bank) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.write)
}

// Swap exchanges the maps, then makes the new write side mirror the new read side.
func (b *Bank) Swap() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.read, b.write = b.write, b.read
	for id := range b.write {
		delete(b.write, id)
	}
	for id, src := range b.read {
		b.write[id] = src
	}
	b.swaps++
}

// Render fills out with the sum of one Tick per read-side source per sample.
// No clamping is applied here.
func (b *Bank) Render(out []float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range out {
		sum := 0.0
		for _, src := range b.read {
			sum += src.Tick()
		}
		out[i] = sum
	}
}

// Membership returns the sorted identifiers on each side.
func (b *Bank) Membership() (write, read []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	write = make([]string, 0, len(b.write))
	for id := range b.write {
		write = append(write, id)
	}
	read = make([]string, 0, len(b.read))
	for id := range b.read {
		read = append(read, id)
	}
	sort.Strings(write)
	sort.Strings(read)
	return write, read
}

// GetStats returns bank statistics
func (b *Bank) GetStats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]interface{}{
		"writeSide": len(b.write),
		"readSide":  len(b.read),
		"swaps":     b.swaps,
	}
}
