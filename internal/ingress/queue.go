package ingress

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/wabaledger/pkg/metrics"
)

// DefaultCapacity bounds the queue when no capacity is configured.
const DefaultCapacity = 5000

// ErrQueueFull is returned by Enqueue when the buffer is at capacity.
var ErrQueueFull = errors.New("ingress queue full")

// Envelope is one raw webhook delivery as received over HTTP.
type Envelope struct {
	ID         string
	ReceivedAt time.Time
	Body       []byte
}

// NewEnvelope stamps a body with an id and receive time.
func NewEnvelope(body []byte, receivedAt time.Time) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		ReceivedAt: receivedAt.UTC(),
		Body:       body,
	}
}

// Queue is a bounded multi-producer buffer drained by a single consumer.
// Producers never block: a full queue fails fast with ErrQueueFull.
type Queue struct {
	items   chan Envelope
	metrics *metrics.IngressMetrics
}

// NewQueue builds a queue holding at most capacity envelopes.
func NewQueue(capacity int, m *metrics.IngressMetrics) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	m.SetCapacity(capacity)
	return &Queue{
		items:   make(chan Envelope, capacity),
		metrics: m,
	}
}

// Enqueue appends env without blocking.
func (q *Queue) Enqueue(env Envelope) error {
	select {
	case q.items <- env:
		q.metrics.ObserveEnqueue(metrics.EnqueueAccepted, len(q.items))
		return nil
	default:
		q.metrics.ObserveEnqueue(metrics.EnqueueOverflow, len(q.items))
		return ErrQueueFull
	}
}

// Dequeue blocks until an envelope is available or ctx is done. Envelopes
// come out in arrival order.
func (q *Queue) Dequeue(ctx context.Context) (Envelope, error) {
	select {
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	case env := <-q.items:
		q.metrics.SetDepth(len(q.items))
		return env, nil
	}
}

// Depth reports how many envelopes are waiting.
func (q *Queue) Depth() int {
	return len(q.items)
}

// Capacity reports the configured bound.
func (q *Queue) Capacity() int {
	return cap(q.items)
}
