package buffer

import (
	"sync"

	"github.com/gammazero/deque"
)

// Sample is one (elapsed time, value) observation.
type Sample struct {
	Time  float64
	Value float64
}

// Snapshot is a consistent copy of buffered samples as two parallel slices.
type Snapshot struct {
	Times  []float64
	Values []float64
}

// Len returns the number of samples in the snapshot.
func (s Snapshot) Len() int {
	return len(s.Times)
}

// Span returns the elapsed time between the first and last sample, or 0.
func (s Snapshot) Span() float64 {
	if len(s.Times) < 2 {
		return 0
	}
	return s.Times[len(s.Times)-1] - s.Times[0]
}

// SampleBuffer holds the most recent maxDataLength samples.
// Appends evict the oldest sample once the buffer is full.
type SampleBuffer struct {
	mu      sync.RWMutex
	samples deque.Deque[Sample]
	maxLen  int
}

// New creates an empty buffer bounded at maxDataLength samples.
// A non-positive maxDataLength is treated as 1.
func New(maxDataLength int) *SampleBuffer {
	if maxDataLength < 1 {
		maxDataLength = 1
	}
	b := &SampleBuffer{maxLen: maxDataLength}
	b.samples.SetBaseCap(maxDataLength + 1)
	return b
}

// Append adds a sample, evicting the oldest one if capacity is exceeded.
// Callers supply non-decreasing times.
func (b *SampleBuffer) Append(t, v float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples.PushBack(Sample{Time: t, Value: v})
	for b.samples.Len() > b.maxLen {
		b.samples.PopFront()
	}
}

// LatestTime returns the time of the newest sample and false when empty.
func (b *SampleBuffer) LatestTime() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.samples.Len() == 0 {
		return 0, false
	}
	return b.samples.Back().Time, true
}

func (b *SampleBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.samples.Len()
}

func (b *SampleBuffer) IsEmpty() bool {
	return b.Len() == 0
}

// Cap returns the configured maximum number of samples.
func (b *SampleBuffer) Cap() int {
	return b.maxLen
}

// Snapshot copies the whole buffer.
func (b *SampleBuffer) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.copyFrom(0)
}

// Trailing copies the n most recent samples. n is clamped to the buffer length.
func (b *SampleBuffer) Trailing(n int) Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	size := b.samples.Len()
	if n > size {
		n = size
	}
	if n < 0 {
		n = 0
	}
	return b.copyFrom(size - n)
}

// Clear drops all samples.
func (b *SampleBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples.Clear()
}

// copyFrom must be called with the read lock held.
func (b *SampleBuffer) copyFrom(start int) Snapshot {
	size := b.samples.Len()
	snap := Snapshot{
		Times:  make([]float64, 0, size-start),
		Values: make([]float64, 0, size-start),
	}
	for i := start; i < size; i++ {
		s := b.samples.At(i)
		snap.Times = append(snap.Times, s.Time)
		snap.Values = append(snap.Values, s.Value)
	}
	return snap
}
