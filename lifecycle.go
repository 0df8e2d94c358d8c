package analytics

import (
	"sync"

	"go.uber.org/zap"
)

// LifecycleState tracks where the pipeline is between construction and
// teardown.
type LifecycleState int

const (
	StateIdle LifecycleState = iota
	StateInitializing
	StateReady
	StateResetting
	StateDisabled
)

func (s LifecycleState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateResetting:
		return "resetting"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// LifecycleController owns pipeline construction and teardown. Initialize
// builds the identity store, dispatcher, and enricher, binds the proxy, and
// starts the flush loop; Reset tears everything down and returns to Idle. A
// fatal configuration response moves the controller to Disabled, which is
// terminal until the next Reset.
type LifecycleController struct {
	cfg    *Config
	proxy  *Proxy
	logger *zap.Logger

	mu         sync.Mutex
	state      LifecycleState
	identity   *IdentityStore
	dispatcher *Dispatcher
	provider   ContextProvider
	client     *coreClient
}

func newLifecycleController(cfg *Config, proxy *Proxy) *LifecycleController {
	return &LifecycleController{
		cfg:    cfg,
		proxy:  proxy,
		logger: cfg.Logger,
		state:  StateIdle,
	}
}

// State returns the current lifecycle state.
func (l *LifecycleController) State() LifecycleState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Initialize starts pipeline construction in the background. Calls made to
// the proxy in the meantime are recorded and replayed once the pipeline
// binds. Initializing an already-initialized controller is a no-op.
func (l *LifecycleController) Initialize() {
	go func() {
		if err := l.initialize(); err != nil {
			l.logger.Error("Initialization failed", zap.Error(err))
		}
	}()
}

// InitializeAndWait is the barrier variant of Initialize: it returns once the
// pipeline is Ready (or construction failed).
func (l *LifecycleController) InitializeAndWait() error {
	return l.initialize()
}

func (l *LifecycleController) initialize() error {
	l.mu.Lock()
	if l.state != StateIdle {
		l.mu.Unlock()
		return nil
	}
	l.state = StateInitializing
	l.mu.Unlock()

	identity, err := NewIdentityStore(l.cfg.Store, l.logger)
	if err != nil {
		l.setState(StateIdle)
		return err
	}
	if l.cfg.AdvertisingID != "" {
		identity.SetAdvertisingID(l.cfg.AdvertisingID)
	}

	provider := l.cfg.ContextProvider
	queue := NewEventQueue(l.cfg.MaxQueueEvents, l.cfg.OverflowPolicy, l.logger, l.cfg.Metrics)
	breaker := NewCircuitBreaker(l.cfg.Breaker, l.cfg.Clock)
	dispatcher := NewDispatcher(l.cfg.IngestionHost, l.cfg.Dispatcher, queue, breaker,
		l.cfg.Transport, l.cfg.Clock, l.logger, l.cfg.Metrics)
	dispatcher.SetFatalConfigHandler(l.onFatalConfig)

	enricher := NewEnricher(l.cfg.WriteKey, identity, provider, l.cfg.Clock, l.logger)
	client := &coreClient{
		enricher:   enricher,
		dispatcher: dispatcher,
		lifecycle:  l,
		logger:     l.logger,
	}

	l.mu.Lock()
	l.identity = identity
	l.dispatcher = dispatcher
	l.provider = provider
	l.client = client
	l.state = StateReady
	l.mu.Unlock()

	dispatcher.StartFlushLoop(l.cfg.FlushInterval)
	l.proxy.Bind(client)
	l.logger.Debug("Pipeline ready",
		zap.String("anonymous_id", identity.Snapshot().AnonymousID))
	return nil
}

// Reset starts teardown in the background: the flush loop stops, scheduled
// retries are cancelled, the queue and the identity store are cleared, and
// the controller returns to Idle. The next Initialize regenerates a fresh
// anonymousId.
func (l *LifecycleController) Reset() {
	go l.resetNow()
}

// ResetAndWait is the barrier variant of Reset: it returns after teardown
// completes.
func (l *LifecycleController) ResetAndWait() {
	l.resetNow()
}

func (l *LifecycleController) resetNow() {
	l.mu.Lock()
	if l.state == StateIdle || l.state == StateResetting {
		l.mu.Unlock()
		return
	}
	l.state = StateResetting
	dispatcher := l.dispatcher
	identity := l.identity
	provider := l.provider
	l.mu.Unlock()

	l.proxy.Unbind()
	if dispatcher != nil {
		dispatcher.Reset()
	}
	if identity != nil {
		identity.Reset()
	}
	if provider != nil {
		provider.ClearCache()
	}

	l.mu.Lock()
	l.identity = nil
	l.dispatcher = nil
	l.provider = nil
	l.client = nil
	l.state = StateIdle
	l.mu.Unlock()

	l.logger.Debug("Pipeline reset")
}

// HandleForeground restarts the flush loop and triggers an immediate flush.
// Platform adapters call this from their foreground notification.
func (l *LifecycleController) HandleForeground() {
	l.mu.Lock()
	dispatcher := l.dispatcher
	ready := l.state == StateReady
	l.mu.Unlock()

	if !ready || dispatcher == nil {
		return
	}
	dispatcher.StartFlushLoop(l.cfg.FlushInterval)
	dispatcher.Flush()
}

// HandleBackground performs a final flush, stops the flush loop, and cancels
// any scheduled retry. Platform adapters call this from their background
// notification.
func (l *LifecycleController) HandleBackground() {
	l.mu.Lock()
	dispatcher := l.dispatcher
	ready := l.state == StateReady
	l.mu.Unlock()

	if !ready || dispatcher == nil {
		return
	}
	dispatcher.Flush()
	dispatcher.StopFlushLoop()
	dispatcher.CancelScheduledRetry()
}

// SetAdvertisingID updates the advertising id and invalidates the cached
// context record so the next event carries the new value.
func (l *LifecycleController) SetAdvertisingID(advertisingID string) {
	l.mu.Lock()
	identity := l.identity
	provider := l.provider
	l.mu.Unlock()

	if identity == nil {
		return
	}
	identity.SetAdvertisingID(advertisingID)
	if provider != nil {
		provider.ClearCache()
	}
}

// IdentitySnapshot returns the current identity fields, when the pipeline is
// initialized.
func (l *LifecycleController) IdentitySnapshot() (IdentitySnapshot, bool) {
	l.mu.Lock()
	identity := l.identity
	l.mu.Unlock()

	if identity == nil {
		return IdentitySnapshot{}, false
	}
	return identity.Snapshot(), true
}

// onFatalConfig is invoked by the dispatcher on the first 401, 403, or 404
// response. Delivery is disabled until the next Reset.
func (l *LifecycleController) onFatalConfig(status int) {
	l.mu.Lock()
	if l.state != StateReady && l.state != StateInitializing {
		l.mu.Unlock()
		return
	}
	l.state = StateDisabled
	dispatcher := l.dispatcher
	l.mu.Unlock()

	l.logger.Error("Disabling client after fatal configuration response",
		zap.Int("status", status))
	if dispatcher != nil {
		dispatcher.StopFlushLoop()
		dispatcher.CancelScheduledRetry()
	}
}

func (l *LifecycleController) setState(s LifecycleState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *LifecycleController) debugInfo() (DispatcherDebugInfo, bool) {
	l.mu.Lock()
	dispatcher := l.dispatcher
	l.mu.Unlock()

	if dispatcher == nil {
		return DispatcherDebugInfo{}, false
	}
	return dispatcher.DebugInfo(), true
}
