package cache_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pgsqlite-go/pgsqlite/pkg/session/cache"
)

func TestCache(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Cache Suite")
}

var _ = Describe("Cache", func() {
	It("evicts the least-recently-used entry once over capacity", func() {
		c := cache.New[string, int](2, 0)
		c.Put("a", 1)
		c.Put("b", 2)
		c.Get("a") // touch "a" so "b" becomes the LRU entry
		c.Put("c", 3)

		_, ok := c.Get("b")
		Expect(ok).To(BeFalse())

		v, ok := c.Get("a")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(1))

		v, ok = c.Get("c")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(3))
	})

	It("expires an entry once its TTL has elapsed", func() {
		c := cache.New[string, int](0, 10*time.Millisecond)
		c.Put("k", 1)

		_, ok := c.Get("k")
		Expect(ok).To(BeTrue())

		time.Sleep(20 * time.Millisecond)
		_, ok = c.Get("k")
		Expect(ok).To(BeFalse())
	})

	It("tracks hit/miss/eviction counters", func() {
		c := cache.New[string, int](1, 0)
		c.Put("a", 1)
		c.Get("a")
		c.Get("missing")
		c.Put("b", 2) // evicts "a"

		stats := c.StatsSnapshot()
		Expect(stats.Hits).To(Equal(uint64(1)))
		Expect(stats.Misses).To(Equal(uint64(1)))
		Expect(stats.Evictions).To(Equal(uint64(1)))
		Expect(stats.Size).To(Equal(1))
	})

	It("clears every entry without resetting counters", func() {
		c := cache.New[string, int](0, 0)
		c.Put("a", 1)
		c.Clear()

		Expect(c.Len()).To(Equal(0))
		_, ok := c.Get("a")
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("ResultCache", func() {
	It("caches and retrieves a result keyed by query and parameters", func() {
		rc := cache.NewResultCache(10, 100, 0)
		key := cache.NewResultSetKey("SELECT 1", []string{"a", "b"})

		rc.Put(key, cache.CachedResultSet{Columns: []string{"x"}, Rows: [][]any{{1}}})

		got, ok := rc.Get(key)
		Expect(ok).To(BeTrue())
		Expect(got.Columns).To(Equal([]string{"x"}))
	})

	It("declines to cache a result wider than MaxResultRows", func() {
		rc := cache.NewResultCache(10, 1, 0)
		key := cache.NewResultSetKey("SELECT 1", nil)

		rc.Put(key, cache.CachedResultSet{Rows: [][]any{{1}, {2}, {3}}})

		_, ok := rc.Get(key)
		Expect(ok).To(BeFalse())
	})

	It("normalizes query text case and whitespace into the same key", func() {
		k1 := cache.NewResultSetKey("  SELECT 1  ", nil)
		k2 := cache.NewResultSetKey("select 1", nil)
		Expect(k1).To(Equal(k2))
	})

	It("invalidates every cached result", func() {
		rc := cache.NewResultCache(10, 100, 0)
		key := cache.NewResultSetKey("SELECT 1", nil)
		rc.Put(key, cache.CachedResultSet{Rows: [][]any{{1}}})

		rc.Invalidate()

		_, ok := rc.Get(key)
		Expect(ok).To(BeFalse())
	})
})
