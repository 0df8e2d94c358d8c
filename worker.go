package analytics

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// flushWorker runs a function at a fixed interval and handles graceful
// shutdown. The dispatcher uses one to drive periodic flushes; a new worker
// is created each time the flush loop starts.
type flushWorker struct {
	name     string
	interval time.Duration
	clock    clockwork.Clock
	logger   *zap.Logger
	workFunc func()

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

func newFlushWorker(name string, interval time.Duration, clock clockwork.Clock, logger *zap.Logger, workFunc func()) *flushWorker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &flushWorker{
		name:     name,
		interval: interval,
		clock:    clock,
		logger:   logger,
		workFunc: workFunc,
		stopChan: make(chan struct{}),
	}
}

// Start launches the ticker loop in its own goroutine.
func (w *flushWorker) Start() {
	w.wg.Add(1)
	go w.run()
}

func (w *flushWorker) run() {
	defer w.wg.Done()

	w.logger.Debug("Worker starting", zap.String("name", w.name), zap.Duration("interval", w.interval))
	defer w.logger.Debug("Worker finished", zap.String("name", w.name))

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.Chan():
			// Before starting work, do a non-blocking check for the stop
			// signal. This prevents a race where Stop() is called right as we
			// are about to start work.
			select {
			case <-w.stopChan:
				return
			default:
			}
			w.workFunc()
		}
	}
}

// Stop shuts down the worker and waits for the loop to exit.
// It is safe to call Stop multiple times.
func (w *flushWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.wg.Wait()
	})
}
