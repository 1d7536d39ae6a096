package ingress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/wabaledger/pkg/metrics"
)

func TestEnqueueBeyondCapacityFailsImmediately(t *testing.T) {
	q := NewQueue(2, nil)
	now := time.Now()

	require.NoError(t, q.Enqueue(NewEnvelope([]byte(`{"n":1}`), now)))
	require.NoError(t, q.Enqueue(NewEnvelope([]byte(`{"n":2}`), now)))

	done := make(chan error, 1)
	go func() { done <- q.Enqueue(NewEnvelope([]byte(`{"n":3}`), now)) }()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrQueueFull))
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
	assert.Equal(t, 2, q.Depth())
	assert.Equal(t, 2, q.Capacity())
}

func TestDequeuePreservesArrivalOrder(t *testing.T) {
	q := NewQueue(10, nil)
	for _, body := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(NewEnvelope([]byte(body), time.Now())))
	}

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		env, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, string(env.Body))
		assert.NotEmpty(t, env.ID)
	}
	assert.Equal(t, 0, q.Depth())
}

func TestDequeueHonoursCancellation(t *testing.T) {
	q := NewQueue(1, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentProducersNeverExceedCapacity(t *testing.T) {
	q := NewQueue(50, nil)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				err := q.Enqueue(NewEnvelope([]byte("x"), time.Now()))
				mu.Lock()
				if err != nil {
					rejected++
				} else {
					accepted++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, accepted)
	assert.Equal(t, 150, rejected)
	assert.Equal(t, 50, q.Depth())
}

func TestDefaultCapacity(t *testing.T) {
	q := NewQueue(0, metrics.NewIngressMetrics(prometheus.NewRegistry()))
	assert.Equal(t, DefaultCapacity, q.Capacity())
}
