// Package session holds decrypted secrets in memory for a bounded time so a
// user is not re-prompted for their password on every command. Entries are
// never persisted; a process restart forces re-authentication.
package session

import (
	"sync"
	"time"

	"github.com/flavortown-bot/flavorvault/internal/domain/model"
)

// DefaultTTL is the session lifetime used when no override is configured.
const DefaultTTL = 2 * time.Hour

type key struct {
	userID  int64
	service model.Service
}

type entry struct {
	secret    string
	metadata  *string
	ttl       time.Duration
	expiresAt time.Time
}

// Cache is a process-local cache of decrypted secrets keyed by
// (user, service) with sliding expiry. All operations are internally
// synchronized; none hold the lock across I/O.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[key]entry
}

// New creates a Cache with the given TTL. Non-positive TTLs fall back to
// DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[key]entry),
	}
}

// NewWithClock creates a Cache whose notion of time comes from now. Used by
// tests to simulate elapsed time.
func NewWithClock(ttl time.Duration, now func() time.Time) *Cache {
	c := New(ttl)
	c.now = now
	return c
}

// Get returns the cached secret for (userID, service) if present and not
// expired. A hit extends the entry's expiry by the full TTL window; an
// expired entry found here is removed. Expiry is checked lazily -- there is
// no background sweeper.
func (c *Cache) Get(userID int64, service model.Service) (secret string, metadata *string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{userID: userID, service: service}
	e, found := c.entries[k]
	if !found {
		return "", nil, false
	}

	now := c.now()
	if !now.Before(e.expiresAt) {
		delete(c.entries, k)
		return "", nil, false
	}

	e.expiresAt = now.Add(e.ttl)
	c.entries[k] = e
	return e.secret, e.metadata, true
}

// Put inserts or replaces the entry for (userID, service) with
// expiry now + TTL.
func (c *Cache) Put(userID int64, service model.Service, secret string, metadata *string) {
	c.PutTTL(userID, service, secret, metadata, c.ttl)
}

// PutTTL is Put with a per-entry lifetime overriding the cache default.
// Non-positive ttl falls back to the default.
func (c *Cache) PutTTL(userID int64, service model.Service, secret string, metadata *string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key{userID: userID, service: service}] = entry{
		secret:    secret,
		metadata:  metadata,
		ttl:       ttl,
		expiresAt: c.now().Add(ttl),
	}
}

// Clear removes all entries for one user and returns how many were removed.
func (c *Cache) Clear(userID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k := range c.entries {
		if k.userID == userID {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// ClearService removes the entry for one (user, service) pair if present.
func (c *Cache) ClearService(userID int64, service model.Service) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key{userID: userID, service: service})
}

// ClearAll wipes the entire cache and returns how many entries were removed.
// Administrative reset; stored credentials are unaffected.
func (c *Cache) ClearAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := len(c.entries)
	c.entries = make(map[key]entry)
	return removed
}

// Len returns the number of entries currently held, including any that have
// expired but not yet been observed by Get.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
