package analytics

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/metarouterio/analytics-go/kvstore"
)

var (
	// ErrEmptyWriteKey is returned by New when no write key is provided.
	ErrEmptyWriteKey = errors.New("write key must not be empty")
	// ErrInvalidHost is returned by New when the ingestion host is not an
	// absolute http(s) URL.
	ErrInvalidHost = errors.New("ingestion host must be an absolute http(s) URL")
)

const (
	defaultFlushInterval  = 10 * time.Second
	minFlushInterval      = time.Second
	defaultMaxQueueEvents = 2000
)

// Config holds the assembled configuration of a client. Construct it through
// New and the With* options rather than directly.
type Config struct {
	WriteKey       string
	IngestionHost  string
	Debug          bool
	FlushInterval  time.Duration
	MaxQueueEvents int
	AdvertisingID  string
	OverflowPolicy OverflowPolicy

	Breaker    BreakerConfig
	Dispatcher DispatcherConfig

	Logger          *zap.Logger
	Metrics         MetricsCollector
	Transport       HTTPTransport
	Store           kvstore.Store
	ContextProvider ContextProvider
	Clock           clockwork.Clock
}

// Option customises a Config.
type Option func(*Config)

// WithDebug toggles debug logging. Without an explicit logger, debug mode
// selects a development zap logger instead of the nop default.
func WithDebug(debug bool) Option {
	return func(c *Config) {
		c.Debug = debug
	}
}

// WithFlushInterval sets the periodic flush interval. Values below one
// second are clamped.
func WithFlushInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.FlushInterval = interval
	}
}

// WithMaxQueueEvents bounds the event queue. Values below one are clamped.
func WithMaxQueueEvents(n int) Option {
	return func(c *Config) {
		c.MaxQueueEvents = n
	}
}

// WithAdvertisingID seeds the advertising identifier at initialization.
func WithAdvertisingID(id string) Option {
	return func(c *Config) {
		c.AdvertisingID = id
	}
}

// WithOverflowPolicy selects the queue overflow policy. Default is DropOldest.
func WithOverflowPolicy(policy OverflowPolicy) Option {
	return func(c *Config) {
		c.OverflowPolicy = policy
	}
}

// WithBreakerConfig overrides the circuit breaker tuning.
func WithBreakerConfig(cfg BreakerConfig) Option {
	return func(c *Config) {
		c.Breaker = cfg
	}
}

// WithDispatcherConfig overrides the dispatcher tuning.
func WithDispatcherConfig(cfg DispatcherConfig) Option {
	return func(c *Config) {
		c.Dispatcher = cfg
	}
}

// WithLogger sets the logger. Defaults to zap.NewNop, or a development
// logger when debug is enabled.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the metrics collector. Defaults to the nop collector.
func WithMetrics(metrics MetricsCollector) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithTransport sets the HTTP transport. Defaults to the pooled net/http
// transport.
func WithTransport(transport HTTPTransport) Option {
	return func(c *Config) {
		c.Transport = transport
	}
}

// WithStore sets the persistent key-value store backing identity. Defaults
// to an in-memory store; platform adapters inject a durable one.
func WithStore(store kvstore.Store) Option {
	return func(c *Config) {
		c.Store = store
	}
}

// WithContextProvider sets the context provider. Defaults to a static
// provider carrying only library information, the OS name, and the timezone.
func WithContextProvider(provider ContextProvider) Option {
	return func(c *Config) {
		c.ContextProvider = provider
	}
}

// WithClock sets the clock used for timestamps, cooldowns, and timers.
// Tests inject a fake clock.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

func newConfig(writeKey, ingestionHost string, opts ...Option) (*Config, error) {
	cfg := &Config{
		WriteKey:       strings.TrimSpace(writeKey),
		FlushInterval:  defaultFlushInterval,
		MaxQueueEvents: defaultMaxQueueEvents,
		OverflowPolicy: DropOldest,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.WriteKey == "" {
		return nil, ErrEmptyWriteKey
	}
	host, err := normalizeHost(ingestionHost)
	if err != nil {
		return nil, err
	}
	cfg.IngestionHost = host

	if cfg.FlushInterval < minFlushInterval {
		cfg.FlushInterval = minFlushInterval
	}
	if cfg.MaxQueueEvents < 1 {
		cfg.MaxQueueEvents = 1
	}
	if cfg.Logger == nil {
		if cfg.Debug {
			logger, err := zap.NewDevelopment()
			if err != nil {
				logger = zap.NewNop()
			}
			cfg.Logger = logger
		} else {
			cfg.Logger = zap.NewNop()
		}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewNopMetricsCollector()
	}
	if cfg.Store == nil {
		cfg.Store = kvstore.NewMemoryStore()
	}
	if cfg.ContextProvider == nil {
		cfg.ContextProvider = NewStaticContextProvider(EventContext{})
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	return cfg, nil
}

// normalizeHost trims surrounding whitespace and trailing slashes, then
// requires an absolute http or https URL.
func normalizeHost(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimRight(s, "/")
	if s == "" {
		return "", ErrInvalidHost
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", ErrInvalidHost
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidHost
	}
	return s, nil
}
