package analytics

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlushWorker_RunsWorkOnEachTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var runs atomic.Int32

	w := newFlushWorker("test", time.Second, clock, nil, func() {
		runs.Add(1)
	})
	w.Start()
	defer w.Stop()

	clock.BlockUntil(1)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return runs.Load() == 1
	}, 2*time.Second, 2*time.Millisecond)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return runs.Load() == 2
	}, 2*time.Second, 2*time.Millisecond)
}

func TestFlushWorker_StopPreventsFurtherRuns(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var runs atomic.Int32

	w := newFlushWorker("test", time.Second, clock, nil, func() {
		runs.Add(1)
	})
	w.Start()

	clock.BlockUntil(1)
	w.Stop()
	w.Stop() // stopping twice is safe

	clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())
}
