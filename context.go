package analytics

import (
	"context"
	"runtime"
	"sync"
	"time"
)

const (
	libraryName    = "analytics-go"
	libraryVersion = "1.0.0"
)

// ContextProvider supplies the immutable context record attached to every
// event. Implementations own platform introspection (device, screen, network
// probing); the library treats the returned record as opaque beyond its
// structure. The record is expected to be cached until ClearCache is called.
type ContextProvider interface {
	Context(ctx context.Context) (EventContext, error)
	ClearCache()
}

// StaticContextProvider serves a fixed context record. It fills in library,
// OS name, and timezone defaults on first materialisation and caches the
// result until ClearCache.
type StaticContextProvider struct {
	mu     sync.Mutex
	info   EventContext
	cached *EventContext
}

// NewStaticContextProvider creates a provider serving info. A zero-valued
// library is set to this library's name and version; an empty OS name and
// timezone are defaulted from the runtime. Locale is left as given.
func NewStaticContextProvider(info EventContext) *StaticContextProvider {
	return &StaticContextProvider{info: info}
}

func (p *StaticContextProvider) Context(_ context.Context) (EventContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil {
		return *p.cached, nil
	}

	record := p.info
	if record.Library == (LibraryInfo{}) {
		record.Library = LibraryInfo{Name: libraryName, Version: libraryVersion}
	}
	if record.OS.Name == "" {
		record.OS.Name = runtime.GOOS
	}
	if record.Timezone == "" {
		record.Timezone, _ = time.Now().Zone()
	}
	p.cached = &record
	return record, nil
}

func (p *StaticContextProvider) ClearCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached = nil
}

var _ ContextProvider = (*StaticContextProvider)(nil)
