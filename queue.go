package analytics

import (
	"sync"

	"go.uber.org/zap"
)

// OverflowPolicy controls what happens when the queue is at capacity.
type OverflowPolicy int

const (
	// DropOldest removes the head of the queue to make room for new events.
	DropOldest OverflowPolicy = iota
	// DropNewest refuses the incoming event instead.
	DropNewest
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop-oldest"
	case DropNewest:
		return "drop-newest"
	default:
		return "unknown"
	}
}

// EventQueue is a bounded FIFO of enriched events. All operations are atomic
// with respect to each other; concurrent producers may enqueue while a single
// consumer drains. None of the operations fail.
type EventQueue struct {
	mu       sync.Mutex
	events   []*Event
	capacity int
	policy   OverflowPolicy
	logger   *zap.Logger
	metrics  MetricsCollector
}

// NewEventQueue creates a queue holding at most capacity events.
func NewEventQueue(capacity int, policy OverflowPolicy, logger *zap.Logger, metrics MetricsCollector) *EventQueue {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewNopMetricsCollector()
	}
	return &EventQueue{
		capacity: capacity,
		policy:   policy,
		logger:   logger,
		metrics:  metrics,
	}
}

// Enqueue appends e at the tail, applying the overflow policy when full.
func (q *EventQueue) Enqueue(e *Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) >= q.capacity {
		switch q.policy {
		case DropOldest:
			dropped := q.events[0]
			q.events = q.events[1:]
			q.logger.Warn("Queue full, dropping oldest event",
				zap.String("message_id", dropped.MessageID),
				zap.Int("capacity", q.capacity))
		case DropNewest:
			q.logger.Warn("Queue full, refusing incoming event",
				zap.String("message_id", e.MessageID),
				zap.Int("capacity", q.capacity))
			q.metrics.IncrementCounter("queue.events_dropped", map[string]string{"policy": q.policy.String()})
			return
		}
		q.metrics.IncrementCounter("queue.events_dropped", map[string]string{"policy": q.policy.String()})
	}
	q.events = append(q.events, e)
}

// Drain removes and returns up to max events from the head, in order.
func (q *EventQueue) Drain(max int) []*Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if max <= 0 || len(q.events) == 0 {
		return nil
	}
	n := max
	if n > len(q.events) {
		n = len(q.events)
	}
	batch := make([]*Event, n)
	copy(batch, q.events[:n])
	q.events = q.events[n:]
	return batch
}

// RequeueToFront reinserts batch at the head, preserving its internal order.
// If the insertion overflows capacity, the just-requeued events are kept:
// drop-oldest trims from the tail, drop-newest trims the previously queued
// events from their head.
func (q *EventQueue) RequeueToFront(batch []*Event) {
	if len(batch) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	combined := make([]*Event, 0, len(batch)+len(q.events))
	combined = append(combined, batch...)
	combined = append(combined, q.events...)

	if overflow := len(combined) - q.capacity; overflow > 0 {
		switch q.policy {
		case DropOldest:
			combined = combined[:q.capacity]
		case DropNewest:
			if len(batch) >= q.capacity {
				combined = combined[:q.capacity]
			} else {
				kept := combined[:len(batch)]
				combined = append(kept, q.events[overflow:]...)
			}
		}
		q.logger.Warn("Requeue overflowed capacity, dropping events",
			zap.Int("dropped", overflow),
			zap.Int("capacity", q.capacity))
		q.metrics.IncrementCounter("queue.events_dropped", map[string]string{"policy": q.policy.String()})
	}
	q.events = combined
}

// DropFront discards up to n head events without returning them.
func (q *EventQueue) DropFront(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 {
		return
	}
	if n > len(q.events) {
		n = len(q.events)
	}
	q.events = q.events[n:]
}

// Clear empties the queue.
func (q *EventQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = nil
}

// Len returns the current number of queued events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
