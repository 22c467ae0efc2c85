package lru

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestCachePutGet(t *testing.T) {
	t.Parallel()

	c, err := New()
	require.NoError(t, err)

	content := []byte("hello")
	require.NoError(t, c.Put("k", content))

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, content, got)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(5), c.SizeBytes())
}

func TestNewRejectsNegativeLimits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opt  Option
	}{
		{name: "entries", opt: WithMaxEntries(-1)},
		{name: "bytes", opt: WithMaxBytes(-1)},
		{name: "ttl", opt: WithTTL(-time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.opt)
			require.Error(t, err)
		})
	}
}

func TestCacheEntryLimit(t *testing.T) {
	t.Parallel()

	c, err := New(WithMaxEntries(2), WithMaxBytes(0))
	require.NoError(t, err)

	require.NoError(t, c.Put("a", []byte("a")))
	require.NoError(t, c.Put("b", []byte("b")))
	_, ok := c.Get("a") // a becomes most recent
	require.True(t, ok)
	require.NoError(t, c.Put("c", []byte("c")))

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used cell should be evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(2), c.SizeBytes())
	assert.Equal(t, int64(1), c.Evictions())
}

func TestCacheByteBudget(t *testing.T) {
	t.Parallel()

	c, err := New(WithMaxEntries(0), WithMaxBytes(100))
	require.NoError(t, err)

	require.NoError(t, c.Put("a", bytes.Repeat([]byte("a"), 60)))
	require.NoError(t, c.Put("b", bytes.Repeat([]byte("b"), 60)))

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, int64(60), c.SizeBytes())
	assert.Equal(t, int64(100), c.MaxBytes())
}

func TestCacheSkipsOversizedContent(t *testing.T) {
	t.Parallel()

	c, err := New(WithMaxBytes(10))
	require.NoError(t, err)

	require.NoError(t, c.Put("small", []byte("1234")))
	require.NoError(t, c.Put("big", bytes.Repeat([]byte("x"), 11)))

	_, ok := c.Get("big")
	assert.False(t, ok)
	_, ok = c.Get("small")
	assert.True(t, ok)
	assert.Equal(t, int64(4), c.SizeBytes())
}

func TestCacheReplaceAdjustsSize(t *testing.T) {
	t.Parallel()

	c, err := New()
	require.NoError(t, err)

	require.NoError(t, c.Put("k", bytes.Repeat([]byte("x"), 10)))
	require.NoError(t, c.Put("k", bytes.Repeat([]byte("y"), 3)))

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(3), c.SizeBytes())
	assert.Zero(t, c.Evictions())
}

func TestCacheDeleteAndPrune(t *testing.T) {
	t.Parallel()

	c, err := New()
	require.NoError(t, err)

	require.NoError(t, c.Put("a", bytes.Repeat([]byte("a"), 10)))
	require.NoError(t, c.Put("b", bytes.Repeat([]byte("b"), 20)))
	require.NoError(t, c.Put("c", bytes.Repeat([]byte("c"), 30)))

	require.NoError(t, c.Delete("missing"))
	require.NoError(t, c.Delete("b"))
	assert.Equal(t, int64(40), c.SizeBytes())

	freed, err := c.Prune(30)
	require.NoError(t, err)
	assert.Equal(t, int64(10), freed)
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Purge()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.SizeBytes())
}

func TestCacheTTL(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	now := time.Unix(1000, 0)
	c, err := New(WithTTL(time.Minute))
	require.NoError(t, err)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put("k", []byte("value")))
	now = now.Add(30 * time.Second)
	_, ok := c.Get("k")
	require.True(t, ok)

	now = now.Add(30 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
	assert.Zero(t, c.SizeBytes())
	assert.Equal(t, int64(1), c.Evictions())
}

func TestCachePutDropsExpiredCells(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	c, err := New(WithTTL(time.Minute))
	require.NoError(t, err)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put("a", []byte("aaaa")))
	require.NoError(t, c.Put("b", []byte("bb")))
	now = now.Add(time.Minute)
	require.NoError(t, c.Put("c", []byte("c")))

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(1), c.SizeBytes())
	assert.Equal(t, int64(2), c.Evictions())
}

func TestCacheDeleteIsNotEviction(t *testing.T) {
	t.Parallel()

	c, err := New()
	require.NoError(t, err)

	require.NoError(t, c.Put("k", []byte("value")))
	require.NoError(t, c.Delete("k"))
	require.NoError(t, c.Delete("k"))

	assert.Equal(t, 0, c.Len())
	assert.Zero(t, c.SizeBytes())
	assert.Zero(t, c.Evictions())
}
