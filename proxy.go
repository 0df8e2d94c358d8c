package analytics

import (
	"sync"

	"go.uber.org/zap"
)

// proxyBufferCapacity bounds how many calls the proxy records before the
// pipeline is ready. Overflow drops the oldest recorded call.
const proxyBufferCapacity = 20

// Proxy is the thread-safe front end of the pipeline. While unbound it
// records inbound calls, preserving arguments and order, in a bounded FIFO;
// Bind replays the recorded calls into the client and flips to direct
// forwarding. All transitions and forwards happen under one mutex, so a call
// that happens-after a completed Bind can never be observed before a
// buffered call.
type Proxy struct {
	mu       sync.Mutex
	client   Client
	buffer   []func(Client)
	capacity int
	logger   *zap.Logger
}

// NewProxy creates an unbound proxy with the given replay-buffer capacity.
func NewProxy(capacity int, logger *zap.Logger) *Proxy {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proxy{
		capacity: capacity,
		logger:   logger,
	}
}

func (p *Proxy) Track(event string, properties Properties) {
	p.invoke(func(c Client) { c.Track(event, properties) })
}

func (p *Proxy) Identify(userID string, traits Traits) {
	p.invoke(func(c Client) { c.Identify(userID, traits) })
}

func (p *Proxy) Group(groupID string, traits Traits) {
	p.invoke(func(c Client) { c.Group(groupID, traits) })
}

func (p *Proxy) Screen(name string, properties Properties) {
	p.invoke(func(c Client) { c.Screen(name, properties) })
}

func (p *Proxy) Page(name string, properties Properties) {
	p.invoke(func(c Client) { c.Page(name, properties) })
}

func (p *Proxy) Alias(newUserID string) {
	p.invoke(func(c Client) { c.Alias(newUserID) })
}

func (p *Proxy) Flush() {
	p.invoke(func(c Client) { c.Flush() })
}

// Bind flips the proxy to the bound position and replays every recorded call
// into client in order. It returns after the replay completes.
func (p *Proxy) Bind(client Client) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.client = client
	for _, call := range p.buffer {
		call(client)
	}
	if n := len(p.buffer); n > 0 {
		p.logger.Debug("Replayed buffered calls", zap.Int("count", n))
	}
	p.buffer = nil
}

// Unbind flips the proxy back to the unbound position and drops the buffer.
func (p *Proxy) Unbind() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = nil
	p.buffer = nil
}

// Bound reports whether the proxy currently forwards directly.
func (p *Proxy) Bound() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil
}

func (p *Proxy) invoke(call func(Client)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		call(p.client)
		return
	}
	if len(p.buffer) >= p.capacity {
		p.buffer = p.buffer[1:]
		p.logger.Warn("Replay buffer full, dropping oldest recorded call",
			zap.Int("capacity", p.capacity))
	}
	p.buffer = append(p.buffer, call)
}

var _ Client = (*Proxy)(nil)
