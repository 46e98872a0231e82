package history

import (
	"sync"

	"github.com/pandamime100hp/iracingtelemotron/pkg/model"
)

// DefaultCapacity holds about one minute of samples at 60 packets/s.
const DefaultCapacity = 600

// Buffer is a fixed-capacity ring of samples, oldest to newest. Once full,
// each push evicts exactly the oldest entry. A single writer (the ingestion
// loop) and any number of snapshot readers may use it concurrently; readers
// never observe a partially written sample.
type Buffer struct {
	mu      sync.RWMutex
	samples []model.Sample
	head    int // next write position
	size    int
}

func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Buffer{samples: make([]model.Sample, capacity)}
}

// Push appends a sample, evicting the oldest when at capacity.
func (b *Buffer) Push(sample model.Sample) {
	b.mu.Lock()
	b.samples[b.head] = sample
	b.head = (b.head + 1) % len(b.samples)
	if b.size < len(b.samples) {
		b.size++
	}
	b.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the buffer contents, oldest
// first. The copy is detached; concurrent pushes don't affect it.
func (b *Buffer) Snapshot() []model.Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.Sample, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.samples[(b.head-b.size+i+len(b.samples))%len(b.samples)]
	}
	return out
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

func (b *Buffer) Capacity() int {
	return len(b.samples)
}
