package meta

import (
	"fmt"
	"os"

	"github.com/objectio/objectio/cmn"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func tempStoreDir() string {
	dir, err := os.MkdirTemp("", "meta-store-test")
	Expect(err).NotTo(HaveOccurred())
	return dir
}

var _ = Describe("Store", func() {
	It("puts, gets, and deletes a key", func() {
		dir := tempStoreDir()
		defer os.RemoveAll(dir)

		s, err := Open(DefaultStoreConfig(dir))
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		key := ObjectMetaKey("bucket1", "obj1")
		Expect(s.Put(key, []byte("v1"))).To(Succeed())

		v, err := s.Get(key)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(v)).To(Equal("v1"))

		Expect(s.Delete(key)).To(Succeed())
		_, err = s.Get(key)
		Expect(cmn.IsKind(err, cmn.KindNotFound)).To(BeTrue(), "expected not-found after delete, got %v", err)
	})

	Describe("WAL recovery", func() {
		It("recovers every entry from the WAL with no snapshot taken", func() {
			dir := tempStoreDir()
			defer os.RemoveAll(dir)
			cfg := DefaultStoreConfig(dir)

			s, err := Open(cfg)
			Expect(err).NotTo(HaveOccurred())

			By("writing 50 entries through the WAL")
			for i := 0; i < 50; i++ {
				Expect(s.Put(BlockKey(uint64(i)), []byte(fmt.Sprintf("val-%d", i)))).To(Succeed())
			}
			Expect(s.Close()).To(Succeed())

			By("simulating a crash-restart by reopening the same data dir")
			reopened, err := Open(cfg)
			Expect(err).NotTo(HaveOccurred())
			defer reopened.Close()

			Expect(reopened.Len()).To(Equal(50))
			v, err := reopened.Get(BlockKey(7))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(v)).To(Equal("val-7"))
		})

		It("recovers a snapshot plus its WAL tail", func() {
			dir := tempStoreDir()
			defer os.RemoveAll(dir)
			cfg := DefaultStoreConfig(dir)

			s, err := Open(cfg)
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 20; i++ {
				Expect(s.Put(BlockKey(uint64(i)), []byte("v"))).To(Succeed())
			}
			By("taking a snapshot")
			Expect(s.Snapshot()).To(Succeed())

			By("writing more entries after the snapshot")
			for i := 20; i < 30; i++ {
				Expect(s.Put(BlockKey(uint64(i)), []byte("v"))).To(Succeed())
			}
			Expect(s.Close()).To(Succeed())

			reopened, err := Open(cfg)
			Expect(err).NotTo(HaveOccurred())
			defer reopened.Close()

			Expect(reopened.Len()).To(Equal(30), "expected 20 from snapshot + 10 from wal tail")
		})
	})

	It("scans by key prefix", func() {
		dir := tempStoreDir()
		defer os.RemoveAll(dir)

		s, err := Open(DefaultStoreConfig(dir))
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		for i := 0; i < 5; i++ {
			Expect(s.Put(ObjectMetaKey("bucketA", fmt.Sprintf("k%d", i)), []byte("v"))).To(Succeed())
		}
		Expect(s.Put(ObjectMetaKey("bucketB", "other"), []byte("v"))).To(Succeed())

		results := s.PrefixScan(ObjectMetaPrefix("bucketA"))
		Expect(results).To(HaveLen(5))
	})
})
