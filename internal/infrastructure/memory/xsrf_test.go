package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache() (*XsrfCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := NewXsrfCache()
	c.now = clock.Now
	return c, clock
}

func TestCreateReturnsLiveToken(t *testing.T) {
	c, clock := newTestCache()

	token := c.Create()
	require.NotEmpty(t, token)
	assert.True(t, c.Has(token))
	assert.Equal(t, token, c.Get(token))

	// past the default TTL the token is gone
	clock.Advance(10*time.Minute + time.Second)
	assert.False(t, c.Has(token))
	assert.Empty(t, c.Get(token))
}

func TestCreateTokensAreUnique(t *testing.T) {
	c, _ := newTestCache()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		token := c.Create()
		require.False(t, seen[token], "duplicate token %s", token)
		seen[token] = true
	}
}

func TestSetExpiresAtTakesPrecedenceOverLifetime(t *testing.T) {
	c, clock := newTestCache()

	at := clock.Now().Add(time.Second)
	c.Set("k", at, time.Hour)

	assert.True(t, c.Has("k"))
	clock.Advance(2 * time.Second)
	assert.False(t, c.Has("k"))
}

func TestSetLifetime(t *testing.T) {
	c, clock := newTestCache()

	c.Set("k", time.Time{}, time.Minute)
	clock.Advance(59 * time.Second)
	assert.True(t, c.Has("k"))
	clock.Advance(2 * time.Second)
	assert.False(t, c.Has("k"))
}

func TestGetLazilyDeletesExpired(t *testing.T) {
	c, clock := newTestCache()

	c.Set("k", time.Time{}, time.Minute)
	clock.Advance(2 * time.Minute)

	assert.Empty(t, c.Get("k"))
	assert.Equal(t, 0, c.Len())
}

func TestHasDoesNotMutate(t *testing.T) {
	c, clock := newTestCache()

	c.Set("k", time.Time{}, time.Minute)
	clock.Advance(2 * time.Minute)

	assert.False(t, c.Has("k"))
	assert.Equal(t, 1, c.Len(), "Has must not remove expired entries")
}

func TestDelete(t *testing.T) {
	c, _ := newTestCache()

	c.Set("k", time.Time{}, 0)
	assert.True(t, c.Delete("k"))
	assert.False(t, c.Delete("k"))
	assert.False(t, c.Has("k"))
}

func TestCleanupRemovesOnlyExpired(t *testing.T) {
	c, clock := newTestCache()

	c.Set("dead", time.Time{}, time.Minute)
	clock.Advance(2 * time.Minute)
	c.Set("live", time.Time{}, time.Hour)

	c.Cleanup()
	assert.False(t, c.Has("dead"))
	assert.True(t, c.Has("live"))
	assert.Equal(t, 1, c.Len())

	// idempotent: a second run with nothing expired changes nothing
	c.Cleanup()
	assert.Equal(t, 1, c.Len())
}

func TestCapacityEvictsOldestInsertion(t *testing.T) {
	c, _ := newTestCache()
	c.SetMaxSize(3)

	for i := 0; i < 4; i++ {
		c.Set(fmt.Sprintf("k%d", i), time.Time{}, 0)
	}

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Has("k0"), "first-inserted key must be evicted")
	for i := 1; i < 4; i++ {
		assert.True(t, c.Has(fmt.Sprintf("k%d", i)))
	}
}

func TestEvictionSkipsDeletedKeys(t *testing.T) {
	c, _ := newTestCache()
	c.SetMaxSize(2)

	c.Set("a", time.Time{}, 0)
	c.Set("b", time.Time{}, 0)
	c.Delete("a")
	c.Set("c", time.Time{}, 0) // fits into the freed slot
	c.Set("d", time.Time{}, 0) // store full again, "b" is now oldest

	assert.False(t, c.Has("b"))
	assert.True(t, c.Has("c"))
	assert.True(t, c.Has("d"))
}

func TestOverwriteDoesNotEvict(t *testing.T) {
	c, _ := newTestCache()
	c.SetMaxSize(2)

	c.Set("a", time.Time{}, 0)
	c.Set("b", time.Time{}, 0)
	c.Set("a", time.Time{}, time.Hour) // overwrite in place

	assert.Equal(t, 2, c.Len())
	assert.True(t, c.Has("a"))
	assert.True(t, c.Has("b"))
}

func TestOrderStaysBoundedUnderChurn(t *testing.T) {
	c, _ := newTestCache()

	// normal lifecycle: token created per form render, consumed on submit
	for i := 0; i < 50000; i++ {
		key := fmt.Sprintf("k%d", i)
		c.Set(key, time.Time{}, 0)
		c.Delete(key)
	}
	c.Cleanup()

	assert.Equal(t, 0, c.Len())
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Empty(t, c.order, "consumed tokens must not accumulate in the order slice")
}

func TestOrderStaysProportionalToLiveEntries(t *testing.T) {
	c, clock := newTestCache()

	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("live%d", i), time.Time{}, time.Hour)
	}
	// abandoned tokens expire and get swept while the long-lived ones stay
	for i := 0; i < 10000; i++ {
		c.Set(fmt.Sprintf("churn%d", i), time.Time{}, time.Minute)
		if i%100 == 99 {
			clock.Advance(2 * time.Minute)
			c.Cleanup()
		}
	}
	clock.Advance(2 * time.Minute)
	c.Cleanup()

	assert.Equal(t, 100, c.Len())
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.LessOrEqual(t, len(c.order), 2*len(c.entries)+1,
		"order slice length must track the live entry count")
}

func TestEvictionOrderSurvivesCompaction(t *testing.T) {
	c, _ := newTestCache()
	c.SetMaxSize(8)

	c.Set("a", time.Time{}, 0)
	c.Set("b", time.Time{}, 0)
	c.Set("c", time.Time{}, 0)
	for i := 0; i < 64; i++ {
		key := fmt.Sprintf("x%d", i)
		c.Set(key, time.Time{}, 0)
		c.Delete(key)
	}

	c.SetMaxSize(3)
	c.Set("d", time.Time{}, 0)

	assert.False(t, c.Has("a"), "oldest surviving key must still be evicted first")
	assert.True(t, c.Has("b"))
	assert.True(t, c.Has("c"))
	assert.True(t, c.Has("d"))
}

func TestRecreatedKeyAgesFromRecreation(t *testing.T) {
	c, _ := newTestCache()
	c.SetMaxSize(2)

	c.Set("a", time.Time{}, 0)
	c.Set("b", time.Time{}, 0)
	c.Delete("a")
	c.Set("a", time.Time{}, 0) // recreated, now newer than "b"
	c.Set("c", time.Time{}, 0) // full: "b" is the oldest live entry

	assert.False(t, c.Has("b"))
	assert.True(t, c.Has("a"))
	assert.True(t, c.Has("c"))
}

func TestConfigDefaultLifetime(t *testing.T) {
	c, clock := newTestCache()
	c.SetDefaultLifetime(time.Second)

	c.Set("k", time.Time{}, 0)
	clock.Advance(2 * time.Second)
	assert.False(t, c.Has("k"))
}

func TestConcurrentAccess(t *testing.T) {
	c := NewXsrfCache()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k-%d-%d", n, j)
				c.Set(key, time.Time{}, 0)
				c.Has(key)
				c.Get(key)
				if j%3 == 0 {
					c.Delete(key)
				}
				if j%50 == 0 {
					c.Cleanup()
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestSweeperRemovesExpired(t *testing.T) {
	c := NewXsrfCache()
	c.Set("k", time.Now().Add(5*time.Millisecond), 0)

	s := NewSweeper(c, 10*time.Millisecond)
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
}
