package block

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/objectio/objectio/ec"
)

func testFlusher(t *testing.T, maxDirtyAge time.Duration) (*Flusher, *WriteCache, *VolumeManager) {
	t.Helper()
	mapper := NewChunkMapper(1024 * 1024)
	cfg := DefaultCacheConfig()
	cfg.JournalPath = ""
	cfg.MaxDirtyAge = maxDirtyAge
	cache, err := NewWriteCache(mapper, cfg)
	if err != nil {
		t.Fatalf("NewWriteCache: %v", err)
	}

	dir := t.TempDir()
	vm, err := NewVolumeManager(dir+"/meta", dir+"/chunks.db", mapper)
	if err != nil {
		t.Fatalf("NewVolumeManager: %v", err)
	}
	t.Cleanup(func() { vm.Close() })

	eio, backend := testECIO(t, 3)
	f := NewFlusher(cache, vm, eio, backend)
	_ = ec.Backend(backend)
	return f, cache, vm
}

func TestFlusherFlushVolumeAllDrainsDirtyChunks(t *testing.T) {
	f, cache, vm := testFlusher(t, 30*time.Second)
	vol, err := vm.CreateVolume("disk-a", 4*1024*1024, "default")
	if err != nil {
		t.Fatalf("CreateVolume: %v", err)
	}
	cache.InitVolume(vol.VolumeID)

	data := bytes.Repeat([]byte{0x77}, 4096)
	if err := cache.Write(vol.VolumeID, 0, data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	f.FlushVolumeAll(context.Background(), vol.VolumeID)

	stats := cache.Stats()
	if stats.DirtyChunks != 0 {
		t.Fatalf("expected no dirty chunks after force flush, got %+v", stats)
	}
	if !vm.IsChunkAllocated(vol.VolumeID, 0) {
		t.Fatalf("expected chunk 0 to be recorded as allocated after flush")
	}
}

func TestFlusherFlushVolumeSkipsYoungChunks(t *testing.T) {
	f, cache, vm := testFlusher(t, time.Hour)
	vol, err := vm.CreateVolume("disk-a", 4*1024*1024, "default")
	if err != nil {
		t.Fatalf("CreateVolume: %v", err)
	}
	cache.InitVolume(vol.VolumeID)

	data := bytes.Repeat([]byte{0x99}, 4096)
	if err := cache.Write(vol.VolumeID, 0, data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	f.FlushVolume(context.Background(), vol.VolumeID)

	stats := cache.Stats()
	if stats.DirtyChunks != 1 {
		t.Fatalf("expected chunk to remain dirty (too young to flush), got %+v", stats)
	}
	if vm.IsChunkAllocated(vol.VolumeID, 0) {
		t.Fatalf("expected chunk 0 not yet allocated")
	}
}
