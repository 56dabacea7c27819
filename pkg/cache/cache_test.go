package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryCache_TTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewInMemoryCache[string, bool](time.Minute).WithClock(func() time.Time { return now })

	c.Set("0xabc", true, 0)
	c.Set("0xdef", true, 10*time.Minute)

	v, ok := c.Get("0xabc")
	assert.True(t, ok)
	assert.True(t, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("0xabc")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Size())

	_, ok = c.Get("0xdef")
	assert.True(t, ok)

	now = now.Add(time.Hour)
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 0, c.Size())
}

func TestInMemoryCache_Delete(t *testing.T) {
	c := NewInMemoryCache[string, int](time.Minute)
	c.Set("k", 1, 0)
	c.Delete("k")
	_, ok := c.Get("k")
	assert.False(t, ok)
}
