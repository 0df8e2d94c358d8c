package analytics

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metarouterio/analytics-go/kvstore"
)

func newTestAnalytics(t *testing.T, transport HTTPTransport, opts ...Option) *Analytics {
	t.Helper()
	opts = append([]Option{WithTransport(transport)}, opts...)
	a, err := New("wk", "https://ingest.example.com", opts...)
	require.NoError(t, err)
	return a
}

func TestAnalytics_HappyPathEndToEnd(t *testing.T) {
	transport := &scriptedTransport{}
	a := newTestAnalytics(t, transport)
	require.NoError(t, a.InitializeAndWait())
	assert.Equal(t, StateReady, a.State())

	a.Track("E", Properties{"k": "v"})
	a.Flush()

	require.Eventually(t, func() bool {
		return transport.requestCount() == 1 && a.GetDebugInfo().Dispatcher.QueueLength == 0
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "https://ingest.example.com/v1/batch", transport.urls[0])
	batch := transport.batchAt(t, 0)
	require.Len(t, batch, 1)
	assert.Equal(t, EventTypeTrack, batch[0].Type)
	assert.Equal(t, "E", batch[0].Event)
	assert.Equal(t, Properties{"k": "v"}, batch[0].Properties)
	assert.Equal(t, "wk", batch[0].WriteKey)
	assert.True(t, ValidMessageID(batch[0].MessageID))

	snap, ok := a.Identity()
	require.True(t, ok)
	assert.Equal(t, snap.AnonymousID, batch[0].AnonymousID)
	assert.Equal(t, "closed", a.GetDebugInfo().Dispatcher.BreakerState)
}

func TestAnalytics_CallsBeforeInitializeAreReplayed(t *testing.T) {
	transport := &scriptedTransport{}
	a := newTestAnalytics(t, transport)

	a.Track("early-1", nil)
	a.Track("early-2", nil)
	require.NoError(t, a.InitializeAndWait())
	a.Flush()

	require.Eventually(t, func() bool {
		return transport.requestCount() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	batch := transport.batchAt(t, 0)
	require.Len(t, batch, 2)
	assert.Equal(t, "early-1", batch[0].Event)
	assert.Equal(t, "early-2", batch[1].Event)
}

func TestAnalytics_InitializeIsIdempotent(t *testing.T) {
	store := kvstore.NewMemoryStore()
	transport := &scriptedTransport{}
	a := newTestAnalytics(t, transport, WithStore(store))

	require.NoError(t, a.InitializeAndWait())
	first, ok := a.Identity()
	require.True(t, ok)

	require.NoError(t, a.InitializeAndWait())
	second, _ := a.Identity()
	assert.Equal(t, first.AnonymousID, second.AnonymousID)

	// A fresh client over the same persistent store observes the same id.
	b := newTestAnalytics(t, transport, WithStore(store))
	require.NoError(t, b.InitializeAndWait())
	third, _ := b.Identity()
	assert.Equal(t, first.AnonymousID, third.AnonymousID)
}

func TestAnalytics_ResetRegeneratesAnonymousID(t *testing.T) {
	store := kvstore.NewMemoryStore()
	transport := &scriptedTransport{}
	a := newTestAnalytics(t, transport, WithStore(store))

	require.NoError(t, a.InitializeAndWait())
	first, _ := a.Identity()

	a.ResetAndWait()
	assert.Equal(t, StateIdle, a.State())
	_, ok := a.Identity()
	assert.False(t, ok)

	a.ResetAndWait() // repeated reset is a no-op
	assert.Equal(t, StateIdle, a.State())

	require.NoError(t, a.InitializeAndWait())
	second, _ := a.Identity()
	assert.NotEqual(t, first.AnonymousID, second.AnonymousID)
}

func TestAnalytics_FatalConfigDisablesClient(t *testing.T) {
	transport := &scriptedTransport{responses: []scriptedReply{
		{resp: respWith(http.StatusForbidden, nil)},
	}}
	a := newTestAnalytics(t, transport)
	require.NoError(t, a.InitializeAndWait())

	a.Track("E", nil)
	a.Flush()

	require.Eventually(t, func() bool {
		return a.State() == StateDisabled
	}, 2*time.Second, 5*time.Millisecond)

	// Subsequent calls are dropped silently.
	a.Track("dropped", nil)
	a.Flush()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, transport.requestCount())
	assert.Equal(t, 0, a.GetDebugInfo().Dispatcher.QueueLength)

	// Reset returns the client to Idle and a new Initialize revives it.
	a.ResetAndWait()
	assert.Equal(t, StateIdle, a.State())
	require.NoError(t, a.InitializeAndWait())
	assert.Equal(t, StateReady, a.State())
}

func TestAnalytics_InitializeFailureReturnsToIdle(t *testing.T) {
	mockStore := new(kvstore.MockStore)
	mockStore.On("Get", "metarouter:anonymous_id").Return("", false, errors.New("storage unavailable"))

	transport := &scriptedTransport{}
	a := newTestAnalytics(t, transport, WithStore(mockStore))

	assert.Error(t, a.InitializeAndWait())
	assert.Equal(t, StateIdle, a.State())
}

func TestAnalytics_BackgroundFlushesPendingEvents(t *testing.T) {
	transport := &scriptedTransport{}
	a := newTestAnalytics(t, transport)
	require.NoError(t, a.InitializeAndWait())

	a.Track("pending", nil)
	a.HandleBackground()

	require.Eventually(t, func() bool {
		return transport.requestCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Foreground restarts the loop and flushes immediately.
	a.Track("resumed", nil)
	a.HandleForeground()
	require.Eventually(t, func() bool {
		return transport.requestCount() == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestAnalytics_SetAdvertisingIDReachesEvents(t *testing.T) {
	transport := &scriptedTransport{}
	a := newTestAnalytics(t, transport)
	require.NoError(t, a.InitializeAndWait())

	a.SetAdvertisingID("idfa-42")
	a.Track("E", nil)
	a.Flush()

	require.Eventually(t, func() bool {
		return transport.requestCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	batch := transport.batchAt(t, 0)
	require.Len(t, batch, 1)
	require.NotNil(t, batch[0].Context)
	assert.Equal(t, "idfa-42", batch[0].Context.Device.AdvertisingID)

	snap, _ := a.Identity()
	assert.Equal(t, "idfa-42", snap.AdvertisingID)
}

func TestAnalytics_DebugInfo(t *testing.T) {
	transport := &scriptedTransport{}
	a := newTestAnalytics(t, transport)

	info := a.GetDebugInfo()
	assert.Equal(t, "idle", info.LifecycleState)
	assert.Empty(t, info.AnonymousID)

	require.NoError(t, a.InitializeAndWait())
	info = a.GetDebugInfo()
	assert.Equal(t, "ready", info.LifecycleState)
	assert.NotEmpty(t, info.AnonymousID)
	assert.Equal(t, "closed", info.Dispatcher.BreakerState)
	assert.Equal(t, defaultMaxBatchSize, info.Dispatcher.MaxBatchSize)
}
