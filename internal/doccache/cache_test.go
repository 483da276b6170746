package doccache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withClock pins the package clock to a controllable time.
func withClock(t *testing.T) *time.Time {
	t.Helper()
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = time.Now })
	return &now
}

func TestKey_ContentAddressed(t *testing.T) {
	a := Key([]byte("same bytes"))
	b := Key([]byte("same bytes"))
	c := Key([]byte("other bytes"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestCache_PutAndGet(t *testing.T) {
	withClock(t)
	cache := New(time.Hour)

	pages := []Page{{Text: "Patient has elevated glucose.", Number: 1, Filename: "case.pdf"}}
	key := Key([]byte("raw"))
	cache.Put(key, pages)

	got, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, pages, got)
}

func TestCache_GetMissing(t *testing.T) {
	cache := New(time.Hour)

	_, ok := cache.Get(Key([]byte("never stored")))
	assert.False(t, ok)
}

func TestCache_TTLBoundary(t *testing.T) {
	now := withClock(t)
	cache := New(time.Hour)

	key := Key([]byte("raw"))
	cache.Put(key, []Page{{Text: "x", Number: 1}})

	// Just inside the TTL.
	*now = now.Add(time.Hour - time.Millisecond)
	_, ok := cache.Get(key)
	assert.True(t, ok, "entry should be live at T + TTL - eps")

	// Just past the TTL.
	*now = now.Add(2 * time.Millisecond)
	_, ok = cache.Get(key)
	assert.False(t, ok, "entry should be absent at T + TTL + eps")
}

func TestCache_PutResetsTimestamp(t *testing.T) {
	now := withClock(t)
	cache := New(time.Hour)

	key := Key([]byte("raw"))
	cache.Put(key, []Page{{Text: "v1", Number: 1}})

	*now = now.Add(50 * time.Minute)
	cache.Put(key, []Page{{Text: "v2", Number: 1}})

	*now = now.Add(30 * time.Minute)
	got, ok := cache.Get(key)
	require.True(t, ok, "second Put should have reset the clock")
	assert.Equal(t, "v2", got[0].Text)
}

func TestCache_Sweep(t *testing.T) {
	now := withClock(t)
	cache := New(time.Hour)

	cache.Put(Key([]byte("old")), []Page{{Text: "old", Number: 1}})
	*now = now.Add(30 * time.Minute)
	cache.Put(Key([]byte("fresh")), []Page{{Text: "fresh", Number: 1}})

	*now = now.Add(45 * time.Minute)
	purged := cache.Sweep()

	assert.Equal(t, 1, purged)
	assert.Equal(t, 1, cache.Len())

	_, ok := cache.Get(Key([]byte("fresh")))
	assert.True(t, ok)
}

func TestCache_Reset(t *testing.T) {
	cache := New(time.Hour)
	cache.Put(Key([]byte("a")), []Page{{Text: "a", Number: 1}})
	cache.Put(Key([]byte("b")), []Page{{Text: "b", Number: 1}})

	cache.Reset()
	assert.Equal(t, 0, cache.Len())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := New(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n byte) {
			defer wg.Done()
			key := Key([]byte{n})
			cache.Put(key, []Page{{Text: "p", Number: 1}})
			cache.Get(key)
			cache.Sweep()
		}(byte(i))
	}
	wg.Wait()

	assert.Equal(t, 16, cache.Len())
}
