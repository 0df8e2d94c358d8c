package analytics

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metarouterio/analytics-go/kvstore"
)

// Persistent key layout. Keys are removed, never set to empty, on reset.
const (
	anonymousIDKey   = "metarouter:anonymous_id"
	userIDKey        = "metarouter:user_id"
	groupIDKey       = "metarouter:group_id"
	advertisingIDKey = "metarouter:advertising_id"
)

// IdentitySnapshot is a point-in-time copy of the identity fields. Empty
// strings mean the field is unset.
type IdentitySnapshot struct {
	AnonymousID   string
	UserID        string
	GroupID       string
	AdvertisingID string
}

// IdentityStore caches the identity fields in memory and writes every
// mutation through to the persistent store. All operations are serialised;
// readers observe the most recent completed write.
type IdentityStore struct {
	mu     sync.Mutex
	store  kvstore.Store
	logger *zap.Logger
	snap   IdentitySnapshot
}

// NewIdentityStore loads the identity fields from store. When no anonymousId
// has been persisted yet, a fresh lowercase v4 UUID is generated and written
// through before the store is returned.
func NewIdentityStore(store kvstore.Store, logger *zap.Logger) (*IdentityStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &IdentityStore{
		store:  store,
		logger: logger,
	}

	anonymousID, ok, err := store.Get(anonymousIDKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load anonymous id: %w", err)
	}
	if !ok || anonymousID == "" {
		anonymousID = uuid.NewString()
		if err := store.Set(anonymousIDKey, anonymousID); err != nil {
			return nil, fmt.Errorf("failed to persist anonymous id: %w", err)
		}
		logger.Debug("Generated new anonymous id", zap.String("anonymous_id", anonymousID))
	}
	s.snap.AnonymousID = anonymousID

	for _, field := range []struct {
		key string
		dst *string
	}{
		{userIDKey, &s.snap.UserID},
		{groupIDKey, &s.snap.GroupID},
		{advertisingIDKey, &s.snap.AdvertisingID},
	} {
		v, ok, err := store.Get(field.key)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", field.key, err)
		}
		if ok {
			*field.dst = v
		}
	}

	return s, nil
}

// Snapshot returns a copy of the current identity fields.
func (s *IdentityStore) Snapshot() IdentitySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// SetUserID records the user id and writes it through.
func (s *IdentityStore) SetUserID(userID string) {
	s.setField(userIDKey, userID, &s.snap.UserID)
}

// SetGroupID records the group id and writes it through.
func (s *IdentityStore) SetGroupID(groupID string) {
	s.setField(groupIDKey, groupID, &s.snap.GroupID)
}

// SetAdvertisingID records the advertising id and writes it through.
func (s *IdentityStore) SetAdvertisingID(advertisingID string) {
	s.setField(advertisingIDKey, advertisingID, &s.snap.AdvertisingID)
}

func (s *IdentityStore) setField(key, value string, dst *string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	*dst = value
	if err := s.store.Set(key, value); err != nil {
		// Memory stays authoritative for this process; persistence catches up
		// on the next successful write.
		s.logger.Error("Failed to persist identity field", zap.String("key", key), zap.Error(err))
	}
}

// Reset clears the in-memory fields and removes all four persistent keys.
// The next NewIdentityStore regenerates a fresh anonymousId.
func (s *IdentityStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap = IdentitySnapshot{}
	for _, key := range []string{anonymousIDKey, userIDKey, groupIDKey, advertisingIDKey} {
		if err := s.store.Delete(key); err != nil {
			s.logger.Error("Failed to remove identity key", zap.String("key", key), zap.Error(err))
		}
	}
}
