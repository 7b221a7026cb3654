package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyCacheExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewKeyCache(time.Hour)
	c.now = func() time.Time { return now }

	c.Put("bob", "pub", true)

	got, ok := c.Get("bob")
	assert.True(t, ok)
	assert.Equal(t, "pub", got.PublicKey)
	assert.True(t, got.EncryptionEnabled)

	now = now.Add(59 * time.Minute)
	_, ok = c.Get("bob")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = c.Get("bob")
	assert.False(t, ok)
}

func TestKeyCachePutRefreshes(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewKeyCache(time.Hour)
	c.now = func() time.Time { return now }

	c.Put("bob", "old", true)
	now = now.Add(50 * time.Minute)
	c.Put("bob", "new", false)
	now = now.Add(50 * time.Minute)

	got, ok := c.Get("bob")
	assert.True(t, ok)
	assert.Equal(t, "new", got.PublicKey)
	assert.False(t, got.EncryptionEnabled)
}

func TestKeyCacheClear(t *testing.T) {
	c := NewKeyCache(0)
	c.Put("bob", "pub", true)
	c.Put("carol", "pub2", true)

	c.Clear()

	_, ok := c.Get("bob")
	assert.False(t, ok)
	_, ok = c.Get("carol")
	assert.False(t, ok)
}
