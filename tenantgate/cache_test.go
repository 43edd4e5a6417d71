package tenantgate

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResponseCache_GetPutExpire(t *testing.T) {
	c := newResponseCache(4)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	key := cacheKey("t1", "https://api.example.com/a", 1)

	c.put(key, http.StatusCreated, []byte("body"), time.Minute, now)

	e, ok := c.get(key, now.Add(59*time.Second))
	assert.True(t, ok)
	assert.Equal(t, []byte("body"), e.body)
	assert.Equal(t, http.StatusCreated, e.status)

	_, ok = c.get(key, now.Add(time.Minute))
	assert.False(t, ok)
	assert.Zero(t, c.size())
}

func TestResponseCache_ZeroTTLIsNotStored(t *testing.T) {
	c := newResponseCache(4)
	c.put("k", http.StatusOK, []byte("x"), 0, time.Now())
	assert.Zero(t, c.size())
}

func TestResponseCache_KeysSeparateTenantsAndGenerations(t *testing.T) {
	url := "https://api.example.com/a"
	assert.NotEqual(t, cacheKey("t1", url, 1), cacheKey("t2", url, 1))
	assert.NotEqual(t, cacheKey("t1", url, 1), cacheKey("t1", url, 2))
}

func TestResponseCache_Bounded(t *testing.T) {
	c := newResponseCache(3)
	now := time.Now()

	c.put("expired", http.StatusOK, []byte("x"), time.Second, now.Add(-time.Hour))
	for i := range 5 {
		c.put(fmt.Sprintf("k%d", i), http.StatusOK, []byte("x"), time.Minute, now)
	}

	assert.LessOrEqual(t, c.size(), 3)
	_, ok := c.get("k4", now)
	assert.True(t, ok, "latest entry is kept")

	c.purge()
	assert.Zero(t, c.size())
}

func TestStorable(t *testing.T) {
	assert.True(t, storable(nil))
	assert.True(t, storable(http.Header{"Cache-Control": {"max-age=60"}}))
	assert.False(t, storable(http.Header{"Cache-Control": {"private, No-Store"}}))
	assert.False(t, storable(http.Header{"Cache-Control": {"max-age=0", "no-store"}}))
}
