package memory

import (
	"sync"
	"time"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/Wyydra/ya-client/internal/core/port"
)

// DefaultKeyTTL is how long a fetched public key is trusted before it has
// to be looked up again.
const DefaultKeyTTL = time.Hour

type keyEntry struct {
	key       port.CachedKey
	expiresAt time.Time
}

type KeyCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[domain.UserID]keyEntry
}

func NewKeyCache(ttl time.Duration) *KeyCache {
	if ttl <= 0 {
		ttl = DefaultKeyTTL
	}
	return &KeyCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[domain.UserID]keyEntry),
	}
}

func (c *KeyCache) Put(userID domain.UserID, publicKey string, encryptionEnabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = keyEntry{
		key:       port.CachedKey{PublicKey: publicKey, EncryptionEnabled: encryptionEnabled},
		expiresAt: c.now().Add(c.ttl),
	}
}

// Get returns the cached key. Expired entries are dropped on the way.
func (c *KeyCache) Get(userID domain.UserID) (port.CachedKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userID]
	if !ok {
		return port.CachedKey{}, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, userID)
		return port.CachedKey{}, false
	}
	return e.key, true
}

func (c *KeyCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[domain.UserID]keyEntry)
}
