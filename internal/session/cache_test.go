package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flavortown-bot/flavorvault/internal/domain/model"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(ttl time.Duration) (*Cache, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewWithClock(ttl, clk.now), clk
}

func TestCache_PutGet(t *testing.T) {
	c, _ := newTestCache(time.Hour)

	c.Put(7, model.ServiceFlavortown, "ft_key", nil)

	secret, metadata, ok := c.Get(7, model.ServiceFlavortown)
	require.True(t, ok)
	assert.Equal(t, "ft_key", secret)
	assert.Nil(t, metadata)
}

func TestCache_Miss(t *testing.T) {
	c, _ := newTestCache(time.Hour)

	_, _, ok := c.Get(7, model.ServiceFlavortown)
	assert.False(t, ok)
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c, clk := newTestCache(time.Hour)

	c.Put(7, model.ServiceFlavortown, "ft_key", nil)

	clk.advance(time.Hour + time.Second)

	_, _, ok := c.Get(7, model.ServiceFlavortown)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry must be removed on discovery")
}

func TestCache_SlidingExpiry(t *testing.T) {
	c, clk := newTestCache(time.Hour)

	c.Put(7, model.ServiceFlavortown, "ft_key", nil)

	// Read every 40 minutes; each hit resets the expiry clock, so the entry
	// survives well past the original deadline.
	for i := 0; i < 4; i++ {
		clk.advance(40 * time.Minute)
		_, _, ok := c.Get(7, model.ServiceFlavortown)
		require.True(t, ok, "read %d should hit", i)
	}

	// Now let a full TTL elapse without reads.
	clk.advance(time.Hour + time.Second)
	_, _, ok := c.Get(7, model.ServiceFlavortown)
	assert.False(t, ok)
}

func TestCache_PutTTLOverridesDefault(t *testing.T) {
	c, clk := newTestCache(time.Hour)

	c.PutTTL(7, model.ServiceFlavortown, "short_lived", nil, 10*time.Minute)

	clk.advance(5 * time.Minute)
	_, _, ok := c.Get(7, model.ServiceFlavortown)
	require.True(t, ok)

	// The hit extends by the entry's own TTL, not the cache default.
	clk.advance(11 * time.Minute)
	_, _, ok = c.Get(7, model.ServiceFlavortown)
	assert.False(t, ok)
}

func TestCache_KeysAreIndependent(t *testing.T) {
	c, _ := newTestCache(time.Hour)

	c.Put(7, model.ServiceFlavortown, "ft_key", nil)
	c.Put(7, model.ServiceHackatime, "ht_key", nil)
	c.Put(8, model.ServiceFlavortown, "other_key", nil)

	c.ClearService(7, model.ServiceFlavortown)

	_, _, ok := c.Get(7, model.ServiceFlavortown)
	assert.False(t, ok)

	secret, _, ok := c.Get(7, model.ServiceHackatime)
	require.True(t, ok)
	assert.Equal(t, "ht_key", secret)

	secret, _, ok = c.Get(8, model.ServiceFlavortown)
	require.True(t, ok)
	assert.Equal(t, "other_key", secret)
}

func TestCache_ClearUser(t *testing.T) {
	c, _ := newTestCache(time.Hour)

	c.Put(7, model.ServiceFlavortown, "a", nil)
	c.Put(7, model.ServiceHackatime, "b", nil)
	c.Put(8, model.ServiceFlavortown, "c", nil)

	removed := c.Clear(7)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Len())
}

func TestCache_ClearAll(t *testing.T) {
	c, _ := newTestCache(time.Hour)

	c.Put(7, model.ServiceFlavortown, "a", nil)
	c.Put(8, model.ServiceHackatime, "b", nil)

	removed := c.ClearAll()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.ClearAll())
}

func TestCache_PutReplaces(t *testing.T) {
	c, _ := newTestCache(time.Hour)

	meta := "hackatime_username=orpheus"
	c.Put(7, model.ServiceFlavortown, "old", nil)
	c.Put(7, model.ServiceFlavortown, "new", &meta)

	secret, metadata, ok := c.Get(7, model.ServiceFlavortown)
	require.True(t, ok)
	assert.Equal(t, "new", secret)
	require.NotNil(t, metadata)
	assert.Equal(t, meta, *metadata)
	assert.Equal(t, 1, c.Len())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(time.Hour)

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(id int64) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 200; i++ {
				c.Put(id, model.ServiceFlavortown, "secret", nil)
				c.Get(id, model.ServiceFlavortown)
				c.Clear(id)
			}
		}(int64(g % 3))
	}
	for g := 0; g < 8; g++ {
		<-done
	}
}
