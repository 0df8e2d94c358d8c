package analytics

import (
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEvents(n int) []*Event {
	events := make([]*Event, n)
	for i := range events {
		events[i] = &Event{Type: EventTypeTrack, MessageID: fmt.Sprintf("ev-%d", i)}
	}
	return events
}

func messageIDsOf(events []*Event) []string {
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.MessageID
	}
	return ids
}

func TestEventQueue_EnqueueDrain(t *testing.T) {
	q := NewEventQueue(10, DropOldest, nil, nil)
	events := makeEvents(5)
	for _, ev := range events {
		q.Enqueue(ev)
	}
	assert.Equal(t, 5, q.Len())

	batch := q.Drain(3)
	assert.Equal(t, []string{"ev-0", "ev-1", "ev-2"}, messageIDsOf(batch))
	assert.Equal(t, 2, q.Len())

	batch = q.Drain(10)
	assert.Equal(t, []string{"ev-3", "ev-4"}, messageIDsOf(batch))
	assert.Equal(t, 0, q.Len())

	assert.Nil(t, q.Drain(1))
}

func TestEventQueue_OverflowDropOldest(t *testing.T) {
	q := NewEventQueue(3, DropOldest, nil, nil)
	for _, ev := range makeEvents(5) {
		q.Enqueue(ev)
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []string{"ev-2", "ev-3", "ev-4"}, messageIDsOf(q.Drain(3)))
}

func TestEventQueue_OverflowDropNewest(t *testing.T) {
	q := NewEventQueue(3, DropNewest, nil, nil)
	for _, ev := range makeEvents(5) {
		q.Enqueue(ev)
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []string{"ev-0", "ev-1", "ev-2"}, messageIDsOf(q.Drain(3)))
}

func TestEventQueue_RequeueToFront(t *testing.T) {
	q := NewEventQueue(10, DropOldest, nil, nil)
	for _, ev := range makeEvents(5) {
		q.Enqueue(ev)
	}

	batch := q.Drain(3)
	require.Len(t, batch, 3)
	q.RequeueToFront(batch)

	assert.Equal(t, 5, q.Len())
	assert.Equal(t, []string{"ev-0", "ev-1", "ev-2", "ev-3", "ev-4"}, messageIDsOf(q.Drain(5)))
}

func TestEventQueue_RequeueOverflowKeepsRequeued(t *testing.T) {
	t.Run("drop-oldest trims tail", func(t *testing.T) {
		q := NewEventQueue(4, DropOldest, nil, nil)
		for _, ev := range makeEvents(4) {
			q.Enqueue(ev)
		}
		batch := q.Drain(2) // ev-0, ev-1
		q.Enqueue(&Event{MessageID: "ev-4"})
		q.Enqueue(&Event{MessageID: "ev-5"})
		// queue: ev-2, ev-3, ev-4, ev-5 (full); requeue ev-0, ev-1
		q.RequeueToFront(batch)

		assert.Equal(t, 4, q.Len())
		assert.Equal(t, []string{"ev-0", "ev-1", "ev-2", "ev-3"}, messageIDsOf(q.Drain(4)))
	})

	t.Run("drop-newest trims behind the batch", func(t *testing.T) {
		q := NewEventQueue(4, DropNewest, nil, nil)
		for _, ev := range makeEvents(4) {
			q.Enqueue(ev)
		}
		batch := q.Drain(2) // ev-0, ev-1
		q.Enqueue(&Event{MessageID: "ev-4"})
		q.Enqueue(&Event{MessageID: "ev-5"})
		q.RequeueToFront(batch)

		assert.Equal(t, 4, q.Len())
		ids := messageIDsOf(q.Drain(4))
		assert.Equal(t, "ev-0", ids[0])
		assert.Equal(t, "ev-1", ids[1])
	})
}

func TestEventQueue_DropFrontAndClear(t *testing.T) {
	q := NewEventQueue(10, DropOldest, nil, nil)
	for _, ev := range makeEvents(5) {
		q.Enqueue(ev)
	}

	q.DropFront(2)
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []string{"ev-2"}, messageIDsOf(q.Drain(1)))

	q.DropFront(100)
	assert.Equal(t, 0, q.Len())

	q.Enqueue(&Event{MessageID: "x"})
	q.Clear()
	assert.Equal(t, 0, q.Len())
	q.Clear() // repeated clear is a no-op
	assert.Equal(t, 0, q.Len())
}

func TestEventQueue_ConcurrentProducers(t *testing.T) {
	q := NewEventQueue(1000, DropOldest, nil, nil)

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Enqueue(&Event{MessageID: fmt.Sprintf("p%d-%d", p, i)})
			}
		}(p)
	}
	wg.Wait()

	assert.Equal(t, 800, q.Len())
	drained := q.Drain(800)
	assert.Len(t, drained, 800)
}

func TestEventQueue_FIFOProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("drained prefix equals enqueue order", prop.ForAll(
		func(total int, drains []int) bool {
			q := NewEventQueue(total+1, DropOldest, nil, nil)
			events := makeEvents(total)
			for _, ev := range events {
				q.Enqueue(ev)
			}

			var drained []*Event
			for _, k := range drains {
				drained = append(drained, q.Drain(k)...)
			}
			for i, ev := range drained {
				if ev.MessageID != events[i].MessageID {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 50),
		gen.SliceOf(gen.IntRange(0, 10)),
	))

	properties.Property("requeue after drain restores the original order", prop.ForAll(
		func(total, drain int) bool {
			q := NewEventQueue(total+1, DropOldest, nil, nil)
			events := makeEvents(total)
			for _, ev := range events {
				q.Enqueue(ev)
			}

			batch := q.Drain(drain)
			q.RequeueToFront(batch)

			redrained := q.Drain(len(batch))
			for i, ev := range redrained {
				if ev.MessageID != batch[i].MessageID {
					return false
				}
			}
			return q.Len() == total-len(batch)
		},
		gen.IntRange(1, 50),
		gen.IntRange(1, 50),
	))

	properties.Property("length never exceeds capacity under drop-oldest", prop.ForAll(
		func(capacity int, ops []int) bool {
			q := NewEventQueue(capacity, DropOldest, nil, nil)
			next := 0
			for _, op := range ops {
				switch {
				case op%3 == 0:
					q.Drain(op % 5)
				case op%7 == 0:
					q.RequeueToFront(makeEvents(op % 4))
				default:
					q.Enqueue(&Event{MessageID: fmt.Sprintf("ev-%d", next)})
					next++
				}
				if q.Len() > capacity {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 10),
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}
