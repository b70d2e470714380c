package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"
)

func TestLRUTTLServesFreshEntries(t *testing.T) {
	clk := testclock.NewFakePassiveClock(time.Unix(1_700_000_000, 0))
	c := NewLRUTTLWithClock[string, int](4, 0, time.Minute, clk)

	c.Set("jo", 1, 0)
	clk.SetTime(clk.Now().Add(time.Minute))
	v, ok := c.Get("jo")
	require.True(t, ok, "entry at exactly ttl should still be fresh")
	assert.Equal(t, 1, v)

	clk.SetTime(clk.Now().Add(time.Millisecond))
	_, ok = c.Get("jo")
	assert.False(t, ok, "entry past ttl must miss")
	assert.Equal(t, 0, c.Len(), "expired entry is dropped on read")
}

func TestLRUTTLSetRefreshesTimestamp(t *testing.T) {
	clk := testclock.NewFakePassiveClock(time.Unix(1_700_000_000, 0))
	c := NewLRUTTLWithClock[string, string](4, 0, 10*time.Second, clk)

	c.Set("k", "old", 0)
	clk.SetTime(clk.Now().Add(8 * time.Second))
	c.Set("k", "new", 0)
	clk.SetTime(clk.Now().Add(8 * time.Second))

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", v)
}

func TestLRUTTLEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUTTL[string, int](2, 0, time.Minute)

	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	_, ok := c.Get("a")
	require.True(t, ok)
	c.Set("c", 3, 0)

	_, ok = c.Get("b")
	assert.False(t, ok, "b should be evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRUTTLByteBound(t *testing.T) {
	c := NewLRUTTL[string, []byte](10, 4, time.Minute)

	c.Set("a", []byte("aa"), 2)
	c.Set("b", []byte("bb"), 2)
	c.Set("c", []byte("cc"), 2)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestLRUTTLClearAndNilReceiver(t *testing.T) {
	c := NewLRUTTL[string, int](4, 0, time.Minute)
	c.Set("a", 1, 0)
	c.Clear()
	assert.Equal(t, 0, c.Len())

	var nilCache *LRUTTL[string, int]
	nilCache.Set("a", 1, 0)
	_, ok := nilCache.Get("a")
	assert.False(t, ok)
	nilCache.Delete("a")
	nilCache.Clear()
	assert.Equal(t, 0, nilCache.Len())
}
