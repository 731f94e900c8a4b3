package block

import (
	"testing"

	"github.com/objectio/objectio/cmn"
)

func testVolumeManager(t *testing.T) *VolumeManager {
	t.Helper()
	dir := t.TempDir()
	vm, err := NewVolumeManager(dir+"/meta", dir+"/chunks.db", DefaultChunkMapper())
	if err != nil {
		t.Fatalf("NewVolumeManager: %v", err)
	}
	t.Cleanup(func() { vm.Close() })
	return vm
}

func TestCreateAndGetVolume(t *testing.T) {
	vm := testVolumeManager(t)

	vol, err := vm.CreateVolume("disk-a", 16*1024*1024, "default")
	if err != nil {
		t.Fatalf("CreateVolume: %v", err)
	}
	if vol.State != VolumeAvailable {
		t.Fatalf("expected new volume available, got %v", vol.State)
	}

	got, err := vm.GetVolume(vol.VolumeID)
	if err != nil {
		t.Fatalf("GetVolume: %v", err)
	}
	if got.Name != "disk-a" {
		t.Fatalf("name mismatch: %s", got.Name)
	}

	byName, err := vm.GetVolumeByName("disk-a")
	if err != nil || byName.VolumeID != vol.VolumeID {
		t.Fatalf("GetVolumeByName mismatch: %v %+v", err, byName)
	}
}

func TestCreateVolumeDuplicateName(t *testing.T) {
	vm := testVolumeManager(t)
	if _, err := vm.CreateVolume("disk-a", 4096, "default"); err != nil {
		t.Fatalf("CreateVolume: %v", err)
	}
	if _, err := vm.CreateVolume("disk-a", 4096, "default"); err == nil {
		t.Fatalf("expected duplicate name to be rejected")
	}
}

func TestResizeVolumeRejectsShrink(t *testing.T) {
	vm := testVolumeManager(t)
	vol, err := vm.CreateVolume("disk-a", 16*1024*1024, "default")
	if err != nil {
		t.Fatalf("CreateVolume: %v", err)
	}
	if _, err := vm.ResizeVolume(vol.VolumeID, 8*1024*1024); err == nil {
		t.Fatalf("expected shrink to be rejected")
	}
	grown, err := vm.ResizeVolume(vol.VolumeID, 32*1024*1024)
	if err != nil {
		t.Fatalf("ResizeVolume: %v", err)
	}
	if grown.SizeBytes != 32*1024*1024 {
		t.Fatalf("unexpected size after resize: %d", grown.SizeBytes)
	}
}

func TestChunkAllocationRoundtrip(t *testing.T) {
	vm := testVolumeManager(t)
	vol, err := vm.CreateVolume("disk-a", 16*1024*1024, "default")
	if err != nil {
		t.Fatalf("CreateVolume: %v", err)
	}

	ref := ChunkRef{ObjectKey: cmn.ChunkObjectKey(vol.VolumeID, 3), ETag: "abc", Size: 4096}
	if err := vm.SetChunk(vol.VolumeID, 3, ref); err != nil {
		t.Fatalf("SetChunk: %v", err)
	}

	got, ok, err := vm.GetChunk(vol.VolumeID, 3)
	if err != nil || !ok {
		t.Fatalf("GetChunk: ok=%v err=%v", ok, err)
	}
	if got.ObjectKey != ref.ObjectKey {
		t.Fatalf("object key mismatch: %s", got.ObjectKey)
	}

	if !vm.IsChunkAllocated(vol.VolumeID, 3) {
		t.Fatalf("expected chunk 3 allocated")
	}
	if vm.IsChunkAllocated(vol.VolumeID, 99) {
		t.Fatalf("expected chunk 99 not allocated")
	}

	allocated, err := vm.AllocatedChunks(vol.VolumeID)
	if err != nil || len(allocated) != 1 || allocated[0] != 3 {
		t.Fatalf("unexpected allocated chunks: %v err=%v", allocated, err)
	}
}

func TestSnapshotAndClone(t *testing.T) {
	vm := testVolumeManager(t)
	vol, err := vm.CreateVolume("disk-a", 16*1024*1024, "default")
	if err != nil {
		t.Fatalf("CreateVolume: %v", err)
	}
	ref := ChunkRef{ObjectKey: cmn.ChunkObjectKey(vol.VolumeID, 0), ETag: "abc", Size: 4096}
	if err := vm.SetChunk(vol.VolumeID, 0, ref); err != nil {
		t.Fatalf("SetChunk: %v", err)
	}

	snap, err := vm.CreateSnapshot(vol.VolumeID, "snap1")
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if len(snap.ChunkRefs) != 1 {
		t.Fatalf("expected 1 chunk ref in snapshot, got %d", len(snap.ChunkRefs))
	}

	clone, err := vm.CloneFromSnapshot(snap.SnapshotID, "disk-b", "default")
	if err != nil {
		t.Fatalf("CloneFromSnapshot: %v", err)
	}
	if clone.ParentSnapshotID != snap.SnapshotID {
		t.Fatalf("expected clone to reference parent snapshot")
	}

	cloned, ok, err := vm.GetChunk(clone.VolumeID, 0)
	if err != nil || !ok || cloned.ObjectKey != ref.ObjectKey {
		t.Fatalf("expected cloned volume to inherit chunk ref: %+v ok=%v err=%v", cloned, ok, err)
	}

	if err := vm.DeleteSnapshot(snap.SnapshotID); err != nil {
		t.Fatalf("DeleteSnapshot: %v", err)
	}
	if _, err := vm.GetSnapshot(snap.SnapshotID); err == nil {
		t.Fatalf("expected snapshot to be gone")
	}
}

func TestDeleteVolumeRejectsWithSnapshots(t *testing.T) {
	vm := testVolumeManager(t)
	vol, err := vm.CreateVolume("disk-a", 16*1024*1024, "default")
	if err != nil {
		t.Fatalf("CreateVolume: %v", err)
	}
	if _, err := vm.CreateSnapshot(vol.VolumeID, "snap1"); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if err := vm.DeleteVolume(vol.VolumeID, false); err == nil {
		t.Fatalf("expected delete to be rejected while snapshots exist")
	}
	if err := vm.DeleteVolume(vol.VolumeID, true); err != nil {
		t.Fatalf("expected forced delete to succeed: %v", err)
	}
}
