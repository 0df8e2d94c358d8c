// Package analytics is a client-side analytics ingestion library. Semantic
// calls (track, identify, group, screen, page, alias) are enriched with
// identity and context, buffered in a bounded FIFO queue, and delivered to a
// collector endpoint in batches with breaker-gated retry.
//
// The client is usable immediately after New: calls made before Initialize
// completes are recorded in a bounded replay buffer and forwarded, in order,
// once the pipeline is ready.
package analytics

// Analytics is the caller-owned entry point. All methods are safe for
// concurrent use from any goroutine.
type Analytics struct {
	cfg       *Config
	proxy     *Proxy
	lifecycle *LifecycleController
}

// DebugInfo is a diagnostic snapshot of the pipeline.
type DebugInfo struct {
	LifecycleState string
	AnonymousID    string
	Dispatcher     DispatcherDebugInfo
}

// New validates the configuration and constructs a client in the Idle state.
// It fails fast on an empty write key or a malformed ingestion host; nothing
// else fails synchronously.
func New(writeKey, ingestionHost string, opts ...Option) (*Analytics, error) {
	cfg, err := newConfig(writeKey, ingestionHost, opts...)
	if err != nil {
		return nil, err
	}
	proxy := NewProxy(proxyBufferCapacity, cfg.Logger)
	return &Analytics{
		cfg:       cfg,
		proxy:     proxy,
		lifecycle: newLifecycleController(cfg, proxy),
	}, nil
}

// Initialize starts the pipeline in the background. See
// LifecycleController.Initialize.
func (a *Analytics) Initialize() {
	a.lifecycle.Initialize()
}

// InitializeAndWait starts the pipeline and returns once it is ready.
func (a *Analytics) InitializeAndWait() error {
	return a.lifecycle.InitializeAndWait()
}

// Track records an action the user performed.
func (a *Analytics) Track(event string, properties Properties) {
	a.proxy.Track(event, properties)
}

// Identify associates the user with an id and optional traits.
func (a *Analytics) Identify(userID string, traits Traits) {
	a.proxy.Identify(userID, traits)
}

// Group associates the user with a group.
func (a *Analytics) Group(groupID string, traits Traits) {
	a.proxy.Group(groupID, traits)
}

// Screen records a screen view.
func (a *Analytics) Screen(name string, properties Properties) {
	a.proxy.Screen(name, properties)
}

// Page records a page view.
func (a *Analytics) Page(name string, properties Properties) {
	a.proxy.Page(name, properties)
}

// Alias links the current user to a new id.
func (a *Analytics) Alias(newUserID string) {
	a.proxy.Alias(newUserID)
}

// Flush triggers an immediate delivery attempt.
func (a *Analytics) Flush() {
	a.proxy.Flush()
}

// Reset tears the pipeline down in the background: queued events are
// discarded and the persisted identity is cleared, so the next Initialize
// mints a fresh anonymousId.
func (a *Analytics) Reset() {
	a.lifecycle.Reset()
}

// ResetAndWait is the barrier variant of Reset.
func (a *Analytics) ResetAndWait() {
	a.lifecycle.ResetAndWait()
}

// HandleForeground restarts periodic flushing. Platform adapters wire this
// to their foreground notification.
func (a *Analytics) HandleForeground() {
	a.lifecycle.HandleForeground()
}

// HandleBackground flushes and suspends periodic work. Platform adapters
// wire this to their background notification.
func (a *Analytics) HandleBackground() {
	a.lifecycle.HandleBackground()
}

// SetAdvertisingID updates the advertising identifier and invalidates the
// cached context record.
func (a *Analytics) SetAdvertisingID(id string) {
	a.lifecycle.SetAdvertisingID(id)
}

// Identity returns the current identity snapshot. The second return is false
// before the pipeline has initialized.
func (a *Analytics) Identity() (IdentitySnapshot, bool) {
	return a.lifecycle.IdentitySnapshot()
}

// State returns the current lifecycle state.
func (a *Analytics) State() LifecycleState {
	return a.lifecycle.State()
}

// GetDebugInfo returns a diagnostic snapshot of the pipeline.
func (a *Analytics) GetDebugInfo() DebugInfo {
	info := DebugInfo{LifecycleState: a.lifecycle.State().String()}
	if snap, ok := a.lifecycle.IdentitySnapshot(); ok {
		info.AnonymousID = snap.AnonymousID
	}
	if d, ok := a.lifecycle.debugInfo(); ok {
		info.Dispatcher = d
	}
	return info
}
