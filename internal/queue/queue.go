// Package queue implements the hub's shared blocking FIFO: the
// channel-backed stand-in for the original's condition-variable deque,
// used to hand datapoints from the orchestrator off to send clients, log
// clients, and the script worker. The queue is bounded: once it is full, a
// producer waits for the consumer.
package queue

import "github.com/sheinberglab/dserv/pkg/dpoint"

// Queue is a bounded, strictly-FIFO-per-producer blocking channel of
// datapoints. Push blocks while the channel is at capacity; Pop blocks
// until an item is available or the queue is closed.
type Queue struct {
	ch chan dpoint.Datapoint
}

// New returns a Queue with the given channel capacity. A capacity of 0
// makes Push synchronous with a waiting Pop; callers that need Push to
// never block under a slow consumer should size capacity generously.
func New(capacity int) *Queue {
	return &Queue{ch: make(chan dpoint.Datapoint, capacity)}
}

// Push enqueues point. It blocks only if the channel is at capacity and
// the consumer is lagging; there is no separate bounded/unbounded mode,
// matching the original's single unbounded-deque design closely enough
// for a process that sizes queues ahead of expected load.
func (q *Queue) Push(point dpoint.Datapoint) {
	q.ch <- point
}

// Pop blocks until a datapoint is available, returning ok=false once the
// queue has been closed and drained.
func (q *Queue) Pop() (point dpoint.Datapoint, ok bool) {
	point, ok = <-q.ch
	return point, ok
}

// C exposes the underlying channel for use in a select alongside other
// event sources (shutdown contexts, timers).
func (q *Queue) C() <-chan dpoint.Datapoint {
	return q.ch
}

// Close shuts the queue down; no further Push may occur. Pending items
// already queued are still delivered to Pop before it reports ok=false.
func (q *Queue) Close() {
	close(q.ch)
}

// Len reports the number of datapoints currently buffered, for metrics.
func (q *Queue) Len() int {
	return len(q.ch)
}
