package queue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBounded_FIFO(t *testing.T) {
	q := New[int](10, 8)
	for i := 0; i < 10; i++ {
		require.True(t, q.Enqueue(i))
	}
	assert.Equal(t, 10, q.Len())
	assert.False(t, q.TryEnqueue(10), "queue should be full")

	for i := 0; i < 10; i++ {
		v, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.True(t, q.IsEmpty())

	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestBounded_Defaults(t *testing.T) {
	q := New[string](0, 5)
	assert.Equal(t, 1, q.Capacity())
	assert.Equal(t, 1, q.HighWater())

	q = New[string](10, 0)
	assert.Equal(t, 10, q.HighWater())
}

func TestBounded_EnqueueBlocksUntilHighWater(t *testing.T) {
	q := New[int](4, 2)
	for i := 0; i < 4; i++ {
		require.True(t, q.Enqueue(i))
	}

	var enqueued int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Enqueue(4)
		atomic.StoreInt32(&enqueued, 1)
	}()

	// 3 left: still above the high-water mark, the producer must stay blocked
	_, _ = q.Dequeue()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&enqueued))
	assert.False(t, q.TryEnqueue(42), "queue should still be draining")

	// 2 left: still not below the high-water mark
	_, _ = q.Dequeue()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&enqueued))

	// 1 left: below the mark, the producer resumes
	_, _ = q.Dequeue()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("producer was not released below the high-water mark")
	}
	assert.Equal(t, 2, q.Len())

	v, _ := q.Dequeue()
	assert.Equal(t, 3, v)
	v, _ = q.Dequeue()
	assert.Equal(t, 4, v)
}

func TestBounded_DequeueBlocks(t *testing.T) {
	q := New[int](2, 2)
	got := make(chan int)
	go func() {
		v, _ := q.Dequeue()
		got <- v
	}()

	select {
	case <-got:
		t.Fatal("dequeue should block on an empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	require.True(t, q.Enqueue(7))
	select {
	case v := <-got:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken up")
	}
}

func TestBounded_Close(t *testing.T) {
	q := New[int](1, 1)
	require.True(t, q.Enqueue(1))

	var wg sync.WaitGroup
	wg.Add(1)
	blockedResult := make(chan bool, 1)
	go func() {
		defer wg.Done()
		blockedResult <- q.Enqueue(2)
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	wg.Wait()
	assert.False(t, <-blockedResult)

	// remaining items can still be drained
	v, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = q.Dequeue()
	assert.False(t, ok)
	assert.False(t, q.Enqueue(3))

	q.Drop()
	assert.True(t, q.Enqueue(3))
}

func TestBounded_Drop(t *testing.T) {
	q := New[int](3, 3)
	q.Enqueue(1)
	q.Enqueue(2)
	q.Drop()
	assert.True(t, q.IsEmpty())
	assert.True(t, q.TryEnqueue(3))
}

func TestBounded_Concurrent(t *testing.T) {
	const (
		producers = 8
		perProd   = 500
	)
	q := New[int](16, 12)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProd; i++ {
				q.Enqueue(1)
			}
		}()
	}

	sum := 0
	for i := 0; i < producers*perProd; i++ {
		v, ok := q.Dequeue()
		require.True(t, ok)
		sum += v
	}
	wg.Wait()
	assert.Equal(t, producers*perProd, sum)
	assert.True(t, q.IsEmpty())
}
