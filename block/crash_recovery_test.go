package block

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/objectio/objectio/cmn"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("WriteCache crash recovery", func() {
	var (
		dir         string
		journalPath string
		mapper      *ChunkMapper
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "block-crash-test")
		Expect(err).NotTo(HaveOccurred())
		journalPath = filepath.Join(dir, "cache.journal")
		mapper = NewChunkMapper(64 * 1024)
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("replays unflushed writes from the journal after an unclean restart", func() {
		cfg := DefaultCacheConfig()
		cfg.JournalPath = journalPath

		cache, err := NewWriteCache(mapper, cfg)
		Expect(err).NotTo(HaveOccurred())
		cache.InitVolume("vol1")

		payload := bytes.Repeat([]byte{0xAB}, 4096)
		By("writing data that is never flushed or cleanly closed")
		Expect(cache.Write("vol1", 0, payload)).To(Succeed())
		Expect(cache.Write("vol1", mapper.ChunkSize(), payload)).To(Succeed())

		By("simulating a crash: drop the in-memory cache, keep the journal file")
		Expect(cache.Sync()).To(Succeed())

		By("restarting against the same journal path")
		restarted, err := NewWriteCache(mapper, cfg)
		Expect(err).NotTo(HaveOccurred())
		defer restarted.Close()
		restarted.InitVolume("vol1")

		pending, err := restarted.Recover()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(HaveLen(2))

		for _, w := range pending {
			Expect(restarted.Write(w.VolumeID, uint64(w.ChunkID)*mapper.ChunkSize()+w.Offset, w.Data)).To(Succeed())
		}

		data, ok := restarted.Read("vol1", 0, uint64(len(payload)))
		Expect(ok).To(BeTrue())
		Expect(data).To(Equal(payload))
	})

	It("excludes writes already marked flushed from recovery", func() {
		cfg := DefaultCacheConfig()
		cfg.JournalPath = journalPath

		cache, err := NewWriteCache(mapper, cfg)
		Expect(err).NotTo(HaveOccurred())
		cache.InitVolume("vol1")

		payload := bytes.Repeat([]byte{0xCD}, 1024)
		Expect(cache.Write("vol1", 0, payload)).To(Succeed())

		chunkID := mapper.ByteOffsetToChunkID(0)
		By("marking the chunk flushed before the crash")
		cache.MarkFlushed("vol1", []cmn.ChunkId{chunkID})
		Expect(cache.Sync()).To(Succeed())

		restarted, err := NewWriteCache(mapper, cfg)
		Expect(err).NotTo(HaveOccurred())
		defer restarted.Close()

		pending, err := restarted.Recover()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())
	})
})
