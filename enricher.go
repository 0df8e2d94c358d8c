package analytics

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Enricher turns a raw semantic call into a wire-shaped event: it stamps the
// messageId, timestamp, and writeKey, merges the identity snapshot, and
// attaches the context record. SentAt is left unset; the dispatcher stamps it
// at drain time.
type Enricher struct {
	writeKey string
	identity *IdentityStore
	provider ContextProvider
	clock    clockwork.Clock
	logger   *zap.Logger
}

// NewEnricher creates an enricher bound to the given identity store and
// context provider.
func NewEnricher(writeKey string, identity *IdentityStore, provider ContextProvider, clock clockwork.Clock, logger *zap.Logger) *Enricher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		writeKey: writeKey,
		identity: identity,
		provider: provider,
		clock:    clock,
		logger:   logger,
	}
}

// Enrich builds the wire event for call. Identify and group calls update the
// identity store before the snapshot is taken, so the event they produce
// already reflects the new identity.
func (e *Enricher) Enrich(ctx context.Context, call Call) (*Event, error) {
	now := e.clock.Now()

	ev := &Event{
		Type:      call.Kind,
		MessageID: newMessageID(now),
		WriteKey:  e.writeKey,
		Timestamp: call.Timestamp,
	}
	if ev.Timestamp == "" {
		ev.Timestamp = formatTimestamp(now)
	}

	switch call.Kind {
	case EventTypeTrack:
		ev.Event = call.Event
		ev.Properties = sanitizeMap(call.Properties)

	case EventTypeIdentify:
		e.identity.SetUserID(call.UserID)
		ev.UserID = call.UserID
		ev.Traits = sanitizeMap(call.Traits)

	case EventTypeGroup:
		e.identity.SetGroupID(call.GroupID)
		if call.GroupID != "" {
			ev.Properties = Properties{"groupId": call.GroupID}
		}
		ev.Traits = sanitizeMap(call.Traits)

	case EventTypeScreen, EventTypePage:
		ev.Name = call.Name
		props := sanitizeMap(call.Properties)
		if props == nil {
			props = Properties{}
		}
		props["name"] = call.Name
		ev.Properties = props

	case EventTypeAlias:
		prior := e.identity.Snapshot().UserID
		ev.UserID = call.NewUserID
		if prior != "" {
			ev.Properties = Properties{"previousId": prior}
		}

	default:
		return nil, fmt.Errorf("unknown event kind %q", call.Kind)
	}

	snap := e.identity.Snapshot()
	ev.AnonymousID = snap.AnonymousID
	if ev.UserID == "" {
		ev.UserID = snap.UserID
	}
	if ev.GroupID == "" {
		ev.GroupID = snap.GroupID
	}

	record, err := e.provider.Context(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to materialise context: %w", err)
	}
	if record.Device.AdvertisingID == "" && snap.AdvertisingID != "" {
		record.Device.AdvertisingID = snap.AdvertisingID
	}
	ev.Context = &record

	return ev, nil
}
