package analytics

import "time"

// EventType identifies the semantic kind of an event.
type EventType string

const (
	EventTypeTrack    EventType = "track"
	EventTypeIdentify EventType = "identify"
	EventTypeGroup    EventType = "group"
	EventTypeScreen   EventType = "screen"
	EventTypePage     EventType = "page"
	EventTypeAlias    EventType = "alias"
)

// timestampLayout is ISO-8601 UTC with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// Event is a fully enriched, wire-shaped event. It is both the queue element
// and the element of the batch JSON. SentAt is the only field mutated after
// enrichment; it is stamped when the batch is committed to transmission.
type Event struct {
	Type         EventType      `json:"type"`
	Event        string         `json:"event,omitempty"`
	UserID       string         `json:"userId,omitempty"`
	GroupID      string         `json:"groupId,omitempty"`
	Name         string         `json:"name,omitempty"`
	AnonymousID  string         `json:"anonymousId"`
	Properties   Properties     `json:"properties,omitempty"`
	Traits       Traits         `json:"traits,omitempty"`
	Integrations map[string]any `json:"integrations,omitempty"`
	Timestamp    string         `json:"timestamp"`
	SentAt       string         `json:"sentAt,omitempty"`
	WriteKey     string         `json:"writeKey"`
	MessageID    string         `json:"messageId"`
	Context      *EventContext  `json:"context,omitempty"`
}

// batchPayload is the wire envelope for a single POST.
type batchPayload struct {
	Batch []*Event `json:"batch"`
}

// EventContext describes the environment an event was produced in. The record
// is materialised once by a ContextProvider and attached unchanged to every
// event until the provider's cache is cleared.
type EventContext struct {
	App      AppInfo      `json:"app"`
	Device   DeviceInfo   `json:"device"`
	Library  LibraryInfo  `json:"library"`
	OS       OSInfo       `json:"os"`
	Screen   ScreenInfo   `json:"screen"`
	Network  *NetworkInfo `json:"network,omitempty"`
	Locale   string       `json:"locale"`
	Timezone string       `json:"timezone"`
}

type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Build     string `json:"build"`
	Namespace string `json:"namespace"`
}

type DeviceInfo struct {
	Manufacturer  string `json:"manufacturer"`
	Model         string `json:"model"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	AdvertisingID string `json:"advertisingId,omitempty"`
}

type LibraryInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type OSInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ScreenInfo struct {
	Density float64 `json:"density"`
	Width   int32   `json:"width"`
	Height  int32   `json:"height"`
}

type NetworkInfo struct {
	Wifi bool `json:"wifi"`
}

// Call is a raw semantic call before enrichment. Exactly one of the
// kind-dependent fields is meaningful, selected by Kind.
type Call struct {
	Kind       EventType
	Event      string
	UserID     string
	GroupID    string
	Name       string
	NewUserID  string
	Properties Properties
	Traits     Traits

	// Timestamp, when non-empty, is used verbatim instead of the enrichment
	// clock. Callers replaying historical events set it.
	Timestamp string
}
