package cache

import (
	"sort"
	"sync"
	"time"
)

// KeyType identifies one class of cached dashboard payload.
type KeyType string

const (
	KeyTypeOverview  KeyType = "overview"
	KeyTypeStats     KeyType = "stats"
	KeyTypeTrends    KeyType = "trends"
	KeyTypeBreakdown KeyType = "breakdown"
	KeyTypeKPI       KeyType = "kpi"
	KeyTypeClient    KeyType = "client"
	KeyTypeSnapshot  KeyType = "snapshot"
)

const defaultTTL = 30 * time.Minute

// registry holds every known key type and its TTL. The bulk invalidation
// path iterates this registry, so adding a key type here is the single
// change needed for it to participate in full sweeps.
var registry = struct {
	sync.RWMutex
	ttls map[KeyType]time.Duration
}{
	ttls: map[KeyType]time.Duration{
		KeyTypeOverview:  30 * time.Minute,
		KeyTypeStats:     5 * time.Minute,
		KeyTypeTrends:    time.Hour,
		KeyTypeBreakdown: defaultTTL,
		KeyTypeKPI:       defaultTTL,
		KeyTypeClient:    defaultTTL,
		KeyTypeSnapshot:  defaultTTL,
	},
}

// Register adds or overrides a key type. A non-positive ttl falls back to
// the default.
func Register(keyType KeyType, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	registry.Lock()
	registry.ttls[keyType] = ttl
	registry.Unlock()
}

// TTLFor returns the cache lifetime for a key type.
func TTLFor(keyType KeyType) time.Duration {
	registry.RLock()
	defer registry.RUnlock()
	if ttl, ok := registry.ttls[keyType]; ok {
		return ttl
	}
	return defaultTTL
}

// KeyTypes returns all registered key types in stable order.
func KeyTypes() []KeyType {
	registry.RLock()
	defer registry.RUnlock()
	types := make([]KeyType, 0, len(registry.ttls))
	for keyType := range registry.ttls {
		types = append(types, keyType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
