package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendEvictsOldestFirst(t *testing.T) {
	const capacity = 5
	b := New(capacity)

	for i := 0; i < 12; i++ {
		b.Append(float64(i), float64(i*10))
		require.LessOrEqual(t, b.Len(), capacity)
	}

	snap := b.Snapshot()
	assert.Equal(t, []float64{7, 8, 9, 10, 11}, snap.Times)
	assert.Equal(t, []float64{70, 80, 90, 100, 110}, snap.Values)
}

func TestTimesStayNonDecreasing(t *testing.T) {
	b := New(64)
	for i := 0; i < 500; i++ {
		b.Append(float64(i)*0.004, 1)
	}

	snap := b.Snapshot()
	require.Equal(t, 64, snap.Len())
	for i := 1; i < snap.Len(); i++ {
		assert.GreaterOrEqual(t, snap.Times[i], snap.Times[i-1])
	}
}

func TestQueries(t *testing.T) {
	b := New(3)
	assert.True(t, b.IsEmpty())
	_, ok := b.LatestTime()
	assert.False(t, ok)

	b.Append(0.5, 1)
	b.Append(0.75, 2)

	latest, ok := b.LatestTime()
	require.True(t, ok)
	assert.Equal(t, 0.75, latest)
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 3, b.Cap())
	assert.False(t, b.IsEmpty())
}

func TestTrailing(t *testing.T) {
	b := New(10)
	for i := 0; i < 10; i++ {
		b.Append(float64(i), float64(-i))
	}

	tail := b.Trailing(3)
	assert.Equal(t, []float64{7, 8, 9}, tail.Times)
	assert.Equal(t, []float64{-7, -8, -9}, tail.Values)
	assert.Equal(t, 2.0, tail.Span())

	assert.Equal(t, 10, b.Trailing(50).Len())
	assert.Equal(t, 0, b.Trailing(-1).Len())
}

func TestSnapshotIsACopy(t *testing.T) {
	b := New(4)
	b.Append(1, 1)
	snap := b.Snapshot()
	snap.Values[0] = 42

	assert.Equal(t, 1.0, b.Snapshot().Values[0])
}

func TestClear(t *testing.T) {
	b := New(4)
	b.Append(1, 1)
	b.Clear()
	assert.True(t, b.IsEmpty())
}

func TestNonPositiveCapacity(t *testing.T) {
	b := New(0)
	b.Append(1, 1)
	b.Append(2, 2)
	assert.Equal(t, 1, b.Len())
}

func TestConcurrentAppendAndSnapshot(t *testing.T) {
	b := New(100)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5000; i++ {
			b.Append(float64(i), float64(i))
		}
	}()

	for i := 0; i < 200; i++ {
		snap := b.Snapshot()
		require.Equal(t, len(snap.Times), len(snap.Values))
		for j := range snap.Times {
			require.Equal(t, snap.Times[j], snap.Values[j])
		}
	}
	wg.Wait()
	assert.Equal(t, 100, b.Len())
}
