package meta

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("ArcCache", func() {
	It("serves a put value and misses on unseen keys", func() {
		c := NewArcCache(4)
		c.Put([]byte("a"), []byte("1"))
		c.Put([]byte("b"), []byte("2"))

		v, ok := c.Get([]byte("a"))
		Expect(ok).To(BeTrue())
		Expect(string(v)).To(Equal("1"))

		_, ok = c.Get([]byte("missing"))
		Expect(ok).To(BeFalse())
		Expect(c.Len()).To(Equal(2))
	})

	It("evicts once the capacity bound is exceeded", func() {
		c := NewArcCache(2)
		c.Put([]byte("a"), []byte("1"))
		c.Put([]byte("b"), []byte("2"))
		c.Put([]byte("c"), []byte("3"))

		Expect(c.Len()).To(Equal(2))
		Expect(c.Stats().Evictions.Load()).To(BeNumerically(">", 0))
	})

	Describe("adaptive frequency behavior", func() {
		It("keeps the resident set within capacity after T2 promotion", func() {
			c := NewArcCache(2)
			c.Put([]byte("a"), []byte("1"))
			c.Put([]byte("b"), []byte("2"))

			By("touching \"a\" again, promoting it into T2 (frequently used)")
			c.Get([]byte("a"))

			By("inserting new entries, forcing evictions")
			c.Put([]byte("c"), []byte("3"))
			c.Put([]byte("d"), []byte("4"))

			info := c.DebugInfo()
			Expect(info.T1Len + info.T2Len).To(BeNumerically("<=", info.Capacity))
		})

		It("grows p and serves a ghost re-insertion from B1", func() {
			c := NewArcCache(2)
			c.Put([]byte("a"), []byte("1"))
			c.Put([]byte("b"), []byte("2"))
			By("evicting \"a\" into the B1 ghost list")
			c.Put([]byte("c"), []byte("3"))

			info := c.DebugInfo()
			Expect(info.B1Len).To(BeNumerically(">", 0))

			By("re-inserting \"a\" through the B1 ghost path")
			c.Put([]byte("a"), []byte("1-again"))
			v, ok := c.Get([]byte("a"))
			Expect(ok).To(BeTrue())
			Expect(string(v)).To(Equal("1-again"))
		})
	})

	It("removes a key and reports not-found on a second removal", func() {
		c := NewArcCache(4)
		c.Put([]byte("a"), []byte("1"))
		v, ok := c.Remove([]byte("a"))
		Expect(ok).To(BeTrue())
		Expect(string(v)).To(Equal("1"))
		Expect(c.Contains([]byte("a"))).To(BeFalse())

		_, ok = c.Remove([]byte("a"))
		Expect(ok).To(BeFalse())
	})

	It("tracks hit/miss stats and hit ratio", func() {
		c := NewArcCache(4)
		c.Put([]byte("a"), []byte("1"))
		c.Get([]byte("a"))
		c.Get([]byte("missing"))

		stats := c.Stats()
		Expect(stats.Hits.Load()).To(BeEquivalentTo(1))
		Expect(stats.Misses.Load()).To(BeEquivalentTo(1))
		Expect(stats.HitRatio()).To(Equal(0.5))
	})

	It("resets every list and p on Clear", func() {
		c := NewArcCache(4)
		c.Put([]byte("a"), []byte("1"))
		c.Put([]byte("b"), []byte("2"))
		c.Clear()

		Expect(c.Len()).To(Equal(0))
		info := c.DebugInfo()
		Expect(info.T1Len).To(BeZero())
		Expect(info.T2Len).To(BeZero())
		Expect(info.B1Len).To(BeZero())
		Expect(info.B2Len).To(BeZero())
		Expect(info.P).To(BeZero())
	})
})
