package analytics

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	defaultEndpointPath       = "/v1/batch"
	defaultHTTPTimeout        = 8 * time.Second
	defaultAutoFlushThreshold = 20
	defaultMaxBatchSize       = 100

	// minRetryDelay floors retry scheduling for transport and server
	// failures; throttleRetryDelay floors it for 429 responses.
	minRetryDelay      = 100 * time.Millisecond
	throttleRetryDelay = time.Second
)

// DispatcherConfig holds dispatcher tuning. Zero values use defaults.
type DispatcherConfig struct {
	EndpointPath       string
	Timeout            time.Duration
	AutoFlushThreshold int
	MaxBatchSize       int
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.EndpointPath == "" {
		c.EndpointPath = defaultEndpointPath
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultHTTPTimeout
	}
	if c.AutoFlushThreshold < 1 {
		c.AutoFlushThreshold = defaultAutoFlushThreshold
	}
	if c.MaxBatchSize < 1 {
		c.MaxBatchSize = defaultMaxBatchSize
	}
	return c
}

// DispatcherDebugInfo is a point-in-time snapshot of dispatcher state.
type DispatcherDebugInfo struct {
	QueueLength     int
	FlushInFlight   bool
	MaxBatchSize    int
	BreakerState    string
	BreakerCooldown time.Duration
}

// Dispatcher owns the event queue, the circuit breaker, the flush timer, and
// retry scheduling. It drains the queue in FIFO batches, POSTs each batch to
// the collector, and applies the HTTP status policy: success removes the
// batch, retryable failures requeue it to the front, non-retryable failures
// drop it, and fatal configuration responses clear the queue and notify the
// registered handler.
type Dispatcher struct {
	url       string
	transport HTTPTransport
	queue     *EventQueue
	breaker   *CircuitBreaker
	clock     clockwork.Clock
	logger    *zap.Logger
	metrics   MetricsCollector
	timeout   time.Duration

	autoFlushThreshold int

	mu            sync.Mutex
	maxBatchSize  int
	flushInFlight bool
	retryTimer    clockwork.Timer
	flushLoop     *flushWorker
	fatalHandler  func(status int)
	fatalFired    bool
	generation    uint64
}

// NewDispatcher creates a dispatcher posting to ingestionHost + the
// configured endpoint path.
func NewDispatcher(ingestionHost string, cfg DispatcherConfig, queue *EventQueue, breaker *CircuitBreaker, transport HTTPTransport, clock clockwork.Clock, logger *zap.Logger, metrics MetricsCollector) *Dispatcher {
	cfg = cfg.withDefaults()
	if transport == nil {
		transport = NewHTTPTransport()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewNopMetricsCollector()
	}
	return &Dispatcher{
		url:                ingestionHost + cfg.EndpointPath,
		transport:          transport,
		queue:              queue,
		breaker:            breaker,
		clock:              clock,
		logger:             logger,
		metrics:            metrics,
		timeout:            cfg.Timeout,
		autoFlushThreshold: cfg.AutoFlushThreshold,
		maxBatchSize:       cfg.MaxBatchSize,
	}
}

// Offer enqueues an enriched event and triggers a flush once the queue
// reaches the auto-flush threshold.
func (d *Dispatcher) Offer(ev *Event) {
	d.queue.Enqueue(ev)
	d.metrics.RecordGauge("dispatcher.queue_depth", 1, nil)
	if d.queue.Len() >= d.autoFlushThreshold {
		d.Flush()
	}
}

// Flush starts a batch loop unless one is already in progress, in which case
// it returns immediately. The loop runs asynchronously; producers never block
// on delivery.
func (d *Dispatcher) Flush() {
	if !d.acquireFlush() {
		return
	}
	go d.runFlush()
}

func (d *Dispatcher) acquireFlush() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.flushInFlight {
		return false
	}
	d.flushInFlight = true
	return true
}

// runFlush executes the batch loop and, when the loop parked on a breaker
// wait or a failed attempt, arms the retry timer after releasing the
// flush-in-flight guard.
func (d *Dispatcher) runFlush() {
	delay, retry := d.processUntilEmpty()

	d.mu.Lock()
	d.flushInFlight = false
	gen := d.generation
	d.mu.Unlock()

	if retry {
		d.armRetry(delay, gen)
	}
}

// processUntilEmpty drains the queue batch by batch. It returns a retry
// delay (and true) when the loop must park: the breaker refused the request,
// or an attempt failed retryably. A zero delay with retry=true means
// immediate rescheduling, used after a 413 batch shrink.
func (d *Dispatcher) processUntilEmpty() (time.Duration, bool) {
	for {
		if d.queue.Len() == 0 {
			return 0, false
		}

		if wait := d.breaker.BeforeRequest(); wait > 0 {
			return wait, true
		}

		batch := d.queue.Drain(d.currentMaxBatchSize())
		if len(batch) == 0 {
			return 0, false
		}
		d.metrics.RecordGauge("dispatcher.queue_depth", -float64(len(batch)), nil)

		// sentAt reflects the instant of this attempt; a requeued batch gets
		// a fresh stamp next time around.
		sentAt := formatTimestamp(d.clock.Now())
		for _, ev := range batch {
			ev.SentAt = sentAt
		}

		body, err := json.Marshal(batchPayload{Batch: batch})
		if err != nil {
			d.logger.Error("Dropping batch, payload serialisation failed",
				zap.Int("events", len(batch)), zap.Error(err))
			d.metrics.IncrementCounter("dispatcher.batches_dropped", map[string]string{"reason": "marshal"})
			continue
		}

		gen := d.currentGeneration()
		start := d.clock.Now()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		resp, err := d.transport.PostJSON(ctx, d.url, body)
		cancel()

		if d.currentGeneration() != gen {
			// A reset raced the request; the in-flight batch is dropped
			// rather than requeued into the new generation's queue.
			return 0, false
		}

		if err != nil {
			d.breaker.OnFailure()
			d.queue.RequeueToFront(batch)
			d.metrics.IncrementCounter("dispatcher.batches_requeued", map[string]string{"reason": "transport"})
			delay := d.breaker.BeforeRequest()
			if delay < minRetryDelay {
				delay = minRetryDelay
			}
			d.logger.Warn("Batch delivery failed",
				zap.Int("events", len(batch)),
				zap.Duration("retry_in", delay),
				zap.Error(err))
			return delay, true
		}

		d.metrics.RecordDuration("dispatcher.delivery_duration", d.clock.Since(start), nil)
		if delay, retry, done := d.handleResponse(resp, batch); done {
			return delay, retry
		}
	}
}

// handleResponse applies the HTTP status policy. done=true parks the loop
// with the given retry decision; done=false continues with the next batch.
func (d *Dispatcher) handleResponse(resp *Response, batch []*Event) (delay time.Duration, retry, done bool) {
	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		d.breaker.OnSuccess()
		d.metrics.IncrementCounter("dispatcher.batches_delivered", nil)
		d.logger.Debug("Batch delivered", zap.Int("events", len(batch)), zap.Int("status", status))
		return 0, false, false

	case status == 408 || (status >= 500 && status < 600):
		d.breaker.OnFailure()
		d.queue.RequeueToFront(batch)
		d.metrics.IncrementCounter("dispatcher.batches_requeued", map[string]string{"reason": "server"})
		delay, ok := parseRetryAfter(resp.Header, d.clock.Now())
		if !ok {
			delay = d.breaker.BeforeRequest()
		}
		if delay < minRetryDelay {
			delay = minRetryDelay
		}
		d.logger.Warn("Collector unavailable, batch requeued",
			zap.Int("status", status), zap.Duration("retry_in", delay))
		return delay, true, true

	case status == 429:
		d.breaker.OnFailure()
		d.queue.RequeueToFront(batch)
		d.metrics.IncrementCounter("dispatcher.batches_requeued", map[string]string{"reason": "throttle"})
		delay, _ := parseRetryAfter(resp.Header, d.clock.Now())
		if wait := d.breaker.BeforeRequest(); wait > delay {
			delay = wait
		}
		if delay < throttleRetryDelay {
			delay = throttleRetryDelay
		}
		d.logger.Warn("Collector throttling, batch requeued", zap.Duration("retry_in", delay))
		return delay, true, true

	case status == 413:
		d.breaker.OnNonRetryable()
		d.mu.Lock()
		if d.maxBatchSize > 1 {
			d.maxBatchSize /= 2
			size := d.maxBatchSize
			d.mu.Unlock()
			d.queue.RequeueToFront(batch)
			d.logger.Warn("Payload too large, halving batch size",
				zap.Int("events", len(batch)), zap.Int("max_batch_size", size))
			return 0, true, true
		}
		d.mu.Unlock()
		d.metrics.IncrementCounter("dispatcher.batches_dropped", map[string]string{"reason": "oversize"})
		d.logger.Warn("Dropping oversize event, batch size already at floor",
			zap.Strings("message_ids", messageIDs(batch)))
		return 0, false, false

	case status == 401 || status == 403 || status == 404:
		d.queue.Clear()
		d.metrics.IncrementCounter("dispatcher.fatal_config", map[string]string{"status": strconv.Itoa(status)})
		d.logger.Error("Fatal configuration response, delivery disabled", zap.Int("status", status))
		d.fireFatal(status)
		return 0, false, true

	case status >= 400 && status < 500:
		d.breaker.OnNonRetryable()
		d.metrics.IncrementCounter("dispatcher.batches_dropped", map[string]string{"reason": "rejected"})
		d.logger.Warn("Collector rejected batch, dropping",
			zap.Int("status", status), zap.Int("events", len(batch)))
		return 0, false, false

	default:
		d.breaker.OnNonRetryable()
		d.metrics.IncrementCounter("dispatcher.batches_dropped", map[string]string{"reason": "unexpected"})
		d.logger.Warn("Unexpected response status, dropping batch",
			zap.Int("status", status), zap.Int("events", len(batch)))
		return 0, false, false
	}
}

// armRetry schedules re-entry into the batch loop, replacing any previously
// scheduled retry. A non-positive delay re-enters immediately; the loop's
// breaker consult still runs on re-entry.
func (d *Dispatcher) armRetry(delay time.Duration, gen uint64) {
	d.mu.Lock()
	if d.retryTimer != nil {
		d.retryTimer.Stop()
		d.retryTimer = nil
	}
	if d.generation != gen {
		d.mu.Unlock()
		return
	}
	if delay <= 0 {
		d.mu.Unlock()
		d.retryNow(gen)
		return
	}
	d.retryTimer = d.clock.AfterFunc(delay, func() { d.retryNow(gen) })
	d.mu.Unlock()
}

func (d *Dispatcher) retryNow(gen uint64) {
	d.mu.Lock()
	if d.generation != gen || d.flushInFlight {
		d.mu.Unlock()
		return
	}
	d.flushInFlight = true
	d.retryTimer = nil
	d.mu.Unlock()
	d.runFlush()
}

// StartFlushLoop schedules periodic flushes at interval, cancelling any prior
// loop. Intervals below one second are clamped.
func (d *Dispatcher) StartFlushLoop(interval time.Duration) {
	if interval < time.Second {
		interval = time.Second
	}

	d.mu.Lock()
	prior := d.flushLoop
	worker := newFlushWorker("flush-loop", interval, d.clock, d.logger, d.Flush)
	d.flushLoop = worker
	d.mu.Unlock()

	if prior != nil {
		prior.Stop()
	}
	worker.Start()
}

// StopFlushLoop cancels the periodic flush loop if one is running.
func (d *Dispatcher) StopFlushLoop() {
	d.mu.Lock()
	worker := d.flushLoop
	d.flushLoop = nil
	d.mu.Unlock()

	if worker != nil {
		worker.Stop()
	}
}

// CancelScheduledRetry cancels a pending backoff-scheduled retry, if any.
func (d *Dispatcher) CancelScheduledRetry() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.retryTimer != nil {
		d.retryTimer.Stop()
		d.retryTimer = nil
	}
}

// ClearAll empties the queue.
func (d *Dispatcher) ClearAll() {
	d.queue.Clear()
}

// SetFatalConfigHandler registers a callback invoked once on the first
// 401/403/404 response.
func (d *Dispatcher) SetFatalConfigHandler(handler func(status int)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fatalHandler = handler
}

// Reset cancels scheduled work, clears the queue, and bumps the generation so
// that an in-flight batch completing after this point is dropped rather than
// requeued.
func (d *Dispatcher) Reset() {
	d.StopFlushLoop()

	d.mu.Lock()
	d.generation++
	d.fatalFired = false
	if d.retryTimer != nil {
		d.retryTimer.Stop()
		d.retryTimer = nil
	}
	d.mu.Unlock()

	d.queue.Clear()
}

// DebugInfo returns a snapshot of dispatcher state for diagnostics.
func (d *Dispatcher) DebugInfo() DispatcherDebugInfo {
	d.mu.Lock()
	flushInFlight := d.flushInFlight
	maxBatchSize := d.maxBatchSize
	d.mu.Unlock()

	return DispatcherDebugInfo{
		QueueLength:     d.queue.Len(),
		FlushInFlight:   flushInFlight,
		MaxBatchSize:    maxBatchSize,
		BreakerState:    d.breaker.State().String(),
		BreakerCooldown: d.breaker.RemainingCooldown(),
	}
}

func (d *Dispatcher) currentMaxBatchSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxBatchSize
}

func (d *Dispatcher) currentGeneration() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generation
}

func (d *Dispatcher) fireFatal(status int) {
	d.mu.Lock()
	handler := d.fatalHandler
	fired := d.fatalFired
	d.fatalFired = true
	d.mu.Unlock()

	if handler != nil && !fired {
		handler(status)
	}
}

func messageIDs(batch []*Event) []string {
	ids := make([]string, len(batch))
	for i, ev := range batch {
		ids[i] = ev.MessageID
	}
	return ids
}
