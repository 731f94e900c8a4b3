package block

import (
	"bytes"
	"testing"

	"github.com/objectio/objectio/cmn"
)

func testCache(t *testing.T) *WriteCache {
	t.Helper()
	mapper := NewChunkMapper(1024 * 1024)
	cfg := DefaultCacheConfig()
	cfg.JournalPath = ""
	wc, err := NewWriteCache(mapper, cfg)
	if err != nil {
		t.Fatalf("NewWriteCache: %v", err)
	}
	return wc
}

func TestWriteCacheSingleChunk(t *testing.T) {
	c := testCache(t)
	c.InitVolume("vol1")

	data := bytes.Repeat([]byte{0xAB}, 4096)
	if err := c.Write("vol1", 0, data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	read, ok := c.Read("vol1", 0, 4096)
	if !ok || !bytes.Equal(read, data) {
		t.Fatalf("readback mismatch: ok=%v", ok)
	}

	stats := c.Stats()
	if stats.DirtyChunks != 1 || stats.DirtyBytes == 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestWriteCacheSpanningChunks(t *testing.T) {
	c := testCache(t)
	c.InitVolume("vol1")

	data := bytes.Repeat([]byte{0xCD}, 2*1024*1024)
	if err := c.Write("vol1", 512*1024, data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	stats := c.Stats()
	if stats.DirtyChunks != 3 {
		t.Fatalf("expected 3 dirty chunks, got %d", stats.DirtyChunks)
	}

	read, ok := c.Read("vol1", 512*1024, 2*1024*1024)
	if !ok || !bytes.Equal(read, data) {
		t.Fatalf("readback mismatch: ok=%v", ok)
	}
}

func TestWriteCacheFlush(t *testing.T) {
	c := testCache(t)
	c.InitVolume("vol1")

	data := bytes.Repeat([]byte{0xEF}, 4096)
	if err := c.Write("vol1", 0, data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	flushed := c.FlushVolume("vol1")
	if len(flushed) != 1 {
		t.Fatalf("expected 1 flushed chunk, got %d", len(flushed))
	}
	if _, ok := flushed[0]; !ok {
		t.Fatalf("expected chunk 0 in flushed set")
	}

	stats := c.Stats()
	if stats.DirtyChunks != 0 || stats.DirtyBytes != 0 {
		t.Fatalf("expected no dirty data after flush, got %+v", stats)
	}
}

func TestWriteCacheReadMiss(t *testing.T) {
	c := testCache(t)
	c.InitVolume("vol1")

	if _, ok := c.Read("vol1", 0, 4096); ok {
		t.Fatalf("expected cache miss on unwritten chunk")
	}
}

func TestWriteCacheMarkFlushedMovesToClean(t *testing.T) {
	mapper := NewChunkMapper(1024 * 1024)
	cfg := DefaultCacheConfig()
	cfg.MaxDirtyAge = 0
	c, err := NewWriteCache(mapper, cfg)
	if err != nil {
		t.Fatalf("NewWriteCache: %v", err)
	}
	c.InitVolume("vol1")

	data := bytes.Repeat([]byte{0x11}, 4096)
	if err := c.Write("vol1", 0, data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	toFlush := c.GetChunksToFlush("vol1")
	chunkIDs := make([]cmn.ChunkId, 0, len(toFlush))
	for id := range toFlush {
		chunkIDs = append(chunkIDs, id)
	}
	c.MarkFlushed("vol1", chunkIDs)

	stats := c.Stats()
	if stats.DirtyChunks != 0 || stats.CleanChunks != 1 {
		t.Fatalf("expected chunk moved to clean, got %+v", stats)
	}

	read, ok := c.Read("vol1", 0, 4096)
	if !ok || !bytes.Equal(read, data) {
		t.Fatalf("expected clean-cache readback to still work")
	}
}
