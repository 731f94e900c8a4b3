package block

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/objectio/objectio/cmn"
	"github.com/sdomino/scribble"
)

// VolumeState is a volume's lifecycle stage (§4.E.1, ported from volume.rs).
type VolumeState int

const (
	VolumeCreating VolumeState = iota + 1
	VolumeAvailable
	VolumeAttached
	VolumeError
	VolumeDeleting
)

// Volume is one block device's metadata.
type Volume struct {
	VolumeID         string            `json:"volume_id"`
	Name             string            `json:"name"`
	SizeBytes        uint64            `json:"size_bytes"`
	UsedBytes        uint64            `json:"used_bytes"`
	Pool             string            `json:"pool"`
	State            VolumeState       `json:"state"`
	CreatedAt        int64             `json:"created_at"`
	UpdatedAt        int64             `json:"updated_at"`
	ParentSnapshotID string            `json:"parent_snapshot_id,omitempty"`
	ChunkSize        uint64            `json:"chunk_size"`
	Metadata         map[string]string `json:"metadata"`
}

func (v *Volume) ChunkCount() uint64 { return (v.SizeBytes + v.ChunkSize - 1) / v.ChunkSize }
func (v *Volume) CanModify() bool    { return v.State == VolumeAvailable }
func (v *Volume) CanAttach() bool    { return v.State == VolumeAvailable }
func (v *Volume) CanDelete() bool    { return v.State == VolumeAvailable }

// ChunkRef resolves one allocated chunk to the object it is currently
// stored as.
type ChunkRef struct {
	ObjectKey string `json:"object_key"`
	ETag      string `json:"etag"`
	Size      uint64 `json:"size"`
}

// Snapshot is a point-in-time copy-on-write reference to a volume's chunk
// map.
type Snapshot struct {
	SnapshotID  string                    `json:"snapshot_id"`
	VolumeID    string                    `json:"volume_id"`
	Name        string                    `json:"name"`
	SizeBytes   uint64                    `json:"size_bytes"`
	UniqueBytes uint64                    `json:"unique_bytes"`
	CreatedAt   int64                     `json:"created_at"`
	Metadata    map[string]string         `json:"metadata"`
	ChunkRefs   map[cmn.ChunkId]ChunkRef  `json:"chunk_refs"`
}

const (
	volumesCollection   = "volumes"
	snapshotsCollection = "snapshots"
)

// VolumeManager owns volume and snapshot metadata (persisted via
// github.com/sdomino/scribble as small JSON documents, mirroring the
// teacher's downloader job store) and the allocated-chunk index (backed by
// ChunkStore). In-memory indices (name -> id, volume -> snapshot ids) are
// rebuilt from the scribble store at startup and kept in sync thereafter
// (§4.E.1, ported from volume.rs).
type VolumeManager struct {
	mu sync.RWMutex

	driver *scribble.Driver
	chunks *ChunkStore
	mapper *ChunkMapper

	volumes         map[string]*Volume
	volumeNames     map[string]string
	snapshots       map[string]*Snapshot
	volumeSnapshots map[string]map[string]bool
}

// NewVolumeManager opens (creating if absent) the scribble document store at
// dbDir and the chunk-location index at chunkStorePath, loading any
// previously persisted volumes and snapshots.
func NewVolumeManager(dbDir, chunkStorePath string, mapper *ChunkMapper) (*VolumeManager, error) {
	driver, err := scribble.New(dbDir, nil)
	if err != nil {
		return nil, cmn.WrapIntegrityError(err, "open volume metadata store %s", dbDir)
	}
	chunks, err := OpenChunkStore(chunkStorePath)
	if err != nil {
		return nil, err
	}

	vm := &VolumeManager{
		driver:          driver,
		chunks:          chunks,
		mapper:          mapper,
		volumes:         make(map[string]*Volume),
		volumeNames:     make(map[string]string),
		snapshots:       make(map[string]*Snapshot),
		volumeSnapshots: make(map[string]map[string]bool),
	}
	if err := vm.loadExisting(); err != nil {
		return nil, err
	}
	return vm, nil
}

func (vm *VolumeManager) loadExisting() error {
	records, err := vm.driver.ReadAll(volumesCollection)
	if err != nil {
		return nil // no collection directory yet; fresh store
	}
	for _, rec := range records {
		var v Volume
		if err := json.Unmarshal([]byte(rec), &v); err != nil {
			continue
		}
		vol := v
		vm.volumes[vol.VolumeID] = &vol
		vm.volumeNames[vol.Name] = vol.VolumeID
		vm.volumeSnapshots[vol.VolumeID] = make(map[string]bool)
	}

	snapRecords, err := vm.driver.ReadAll(snapshotsCollection)
	if err != nil {
		return nil
	}
	for _, rec := range snapRecords {
		var s Snapshot
		if err := json.Unmarshal([]byte(rec), &s); err != nil {
			continue
		}
		snap := s
		vm.snapshots[snap.SnapshotID] = &snap
		if set, ok := vm.volumeSnapshots[snap.VolumeID]; ok {
			set[snap.SnapshotID] = true
		}
	}
	return nil
}

func (vm *VolumeManager) ChunkMapper() *ChunkMapper { return vm.mapper }

// CreateVolume provisions a new volume, persisting it immediately.
func (vm *VolumeManager) CreateVolume(name string, sizeBytes uint64, pool string) (*Volume, error) {
	if sizeBytes == 0 {
		return nil, cmn.NewConfigError("volume size must be positive")
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if _, exists := vm.volumeNames[name]; exists {
		return nil, cmn.NewConflictError("volume already exists: %s", name)
	}

	now := cmn.NowUnix()
	vol := &Volume{
		VolumeID:  uuid.New().String(),
		Name:      name,
		SizeBytes: sizeBytes,
		Pool:      pool,
		State:     VolumeAvailable,
		CreatedAt: now,
		UpdatedAt: now,
		ChunkSize: vm.mapper.ChunkSize(),
		Metadata:  map[string]string{},
	}
	if err := vm.driver.Write(volumesCollection, vol.VolumeID, vol); err != nil {
		return nil, cmn.WrapIntegrityError(err, "persist volume %s", vol.VolumeID)
	}
	vm.volumes[vol.VolumeID] = vol
	vm.volumeNames[name] = vol.VolumeID
	vm.volumeSnapshots[vol.VolumeID] = make(map[string]bool)
	return vol, nil
}

func (vm *VolumeManager) GetVolume(volumeID string) (*Volume, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	v, ok := vm.volumes[volumeID]
	if !ok {
		return nil, cmn.NewNotFoundError("volume not found: %s", volumeID)
	}
	return v, nil
}

func (vm *VolumeManager) GetVolumeByName(name string) (*Volume, error) {
	vm.mu.RLock()
	id, ok := vm.volumeNames[name]
	vm.mu.RUnlock()
	if !ok {
		return nil, cmn.NewNotFoundError("volume not found: %s", name)
	}
	return vm.GetVolume(id)
}

func (vm *VolumeManager) ListVolumes() []*Volume {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	out := make([]*Volume, 0, len(vm.volumes))
	for _, v := range vm.volumes {
		out = append(out, v)
	}
	return out
}

// DeleteVolume removes a volume's metadata and chunk mappings. Refuses to
// delete an attached volume or one with live snapshots unless force is set.
func (vm *VolumeManager) DeleteVolume(volumeID string, force bool) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vol, ok := vm.volumes[volumeID]
	if !ok {
		return cmn.NewNotFoundError("volume not found: %s", volumeID)
	}
	if vol.State == VolumeAttached && !force {
		return cmn.NewConflictError("volume %s is attached", volumeID)
	}
	if len(vm.volumeSnapshots[volumeID]) > 0 && !force {
		return cmn.NewConflictError("volume %s has snapshots", volumeID)
	}

	if err := vm.driver.Delete(volumesCollection, volumeID); err != nil {
		return cmn.WrapIntegrityError(err, "delete persisted volume %s", volumeID)
	}
	if err := vm.chunks.DeleteVolume(volumeID); err != nil {
		return err
	}
	delete(vm.volumes, volumeID)
	delete(vm.volumeNames, vol.Name)
	delete(vm.volumeSnapshots, volumeID)
	return nil
}

// ResizeVolume grows a volume's provisioned size; shrinking is rejected.
func (vm *VolumeManager) ResizeVolume(volumeID string, newSizeBytes uint64) (*Volume, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vol, ok := vm.volumes[volumeID]
	if !ok {
		return nil, cmn.NewNotFoundError("volume not found: %s", volumeID)
	}
	if !vol.CanModify() {
		return nil, cmn.NewConflictError("volume %s is attached", volumeID)
	}
	if newSizeBytes < vol.SizeBytes {
		return nil, cmn.NewConfigError("cannot shrink volume from %d to %d", vol.SizeBytes, newSizeBytes)
	}
	vol.SizeBytes = newSizeBytes
	vol.UpdatedAt = cmn.NowUnix()
	if err := vm.driver.Write(volumesCollection, volumeID, vol); err != nil {
		return nil, cmn.WrapIntegrityError(err, "persist resized volume %s", volumeID)
	}
	return vol, nil
}

func (vm *VolumeManager) SetVolumeState(volumeID string, state VolumeState) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vol, ok := vm.volumes[volumeID]
	if !ok {
		return cmn.NewNotFoundError("volume not found: %s", volumeID)
	}
	vol.State = state
	vol.UpdatedAt = cmn.NowUnix()
	return vm.driver.Write(volumesCollection, volumeID, vol)
}

// GetChunk/SetChunk/IsChunkAllocated/AllocatedChunks proxy to the
// bbolt-backed ChunkStore (sparse: only allocated chunks are tracked).
func (vm *VolumeManager) GetChunk(volumeID string, chunkID cmn.ChunkId) (ChunkRef, bool, error) {
	return vm.chunks.GetChunk(volumeID, chunkID)
}

func (vm *VolumeManager) SetChunk(volumeID string, chunkID cmn.ChunkId, ref ChunkRef) error {
	return vm.chunks.PutChunk(volumeID, chunkID, ref)
}

func (vm *VolumeManager) IsChunkAllocated(volumeID string, chunkID cmn.ChunkId) bool {
	_, ok, _ := vm.chunks.GetChunk(volumeID, chunkID)
	return ok
}

func (vm *VolumeManager) AllocatedChunks(volumeID string) ([]cmn.ChunkId, error) {
	return vm.chunks.AllocatedChunks(volumeID)
}

// CreateSnapshot captures the volume's current chunk map as a new snapshot.
func (vm *VolumeManager) CreateSnapshot(volumeID, name string) (*Snapshot, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vol, ok := vm.volumes[volumeID]
	if !ok {
		return nil, cmn.NewNotFoundError("volume not found: %s", volumeID)
	}

	chunkIDs, err := vm.chunks.AllocatedChunks(volumeID)
	if err != nil {
		return nil, err
	}
	refs := make(map[cmn.ChunkId]ChunkRef, len(chunkIDs))
	for _, id := range chunkIDs {
		if ref, ok, _ := vm.chunks.GetChunk(volumeID, id); ok {
			refs[id] = ref
		}
	}

	snap := &Snapshot{
		SnapshotID: uuid.New().String(),
		VolumeID:   volumeID,
		Name:       name,
		SizeBytes:  vol.SizeBytes,
		CreatedAt:  cmn.NowUnix(),
		Metadata:   map[string]string{},
		ChunkRefs:  refs,
	}
	if err := vm.driver.Write(snapshotsCollection, snap.SnapshotID, snap); err != nil {
		return nil, cmn.WrapIntegrityError(err, "persist snapshot %s", snap.SnapshotID)
	}
	vm.snapshots[snap.SnapshotID] = snap
	if vm.volumeSnapshots[volumeID] == nil {
		vm.volumeSnapshots[volumeID] = make(map[string]bool)
	}
	vm.volumeSnapshots[volumeID][snap.SnapshotID] = true
	return snap, nil
}

func (vm *VolumeManager) GetSnapshot(snapshotID string) (*Snapshot, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	s, ok := vm.snapshots[snapshotID]
	if !ok {
		return nil, cmn.NewNotFoundError("snapshot not found: %s", snapshotID)
	}
	return s, nil
}

func (vm *VolumeManager) ListSnapshots(volumeID string) []*Snapshot {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	ids := vm.volumeSnapshots[volumeID]
	out := make([]*Snapshot, 0, len(ids))
	for id := range ids {
		if s, ok := vm.snapshots[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (vm *VolumeManager) DeleteSnapshot(snapshotID string) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	snap, ok := vm.snapshots[snapshotID]
	if !ok {
		return cmn.NewNotFoundError("snapshot not found: %s", snapshotID)
	}
	if err := vm.driver.Delete(snapshotsCollection, snapshotID); err != nil {
		return cmn.WrapIntegrityError(err, "delete persisted snapshot %s", snapshotID)
	}
	delete(vm.snapshots, snapshotID)
	if set, ok := vm.volumeSnapshots[snap.VolumeID]; ok {
		delete(set, snapshotID)
	}
	return nil
}

// CloneFromSnapshot creates a new volume pre-populated with a snapshot's
// chunk map (copy-on-write: the chunks themselves are not duplicated).
func (vm *VolumeManager) CloneFromSnapshot(snapshotID, name, pool string) (*Volume, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	snap, ok := vm.snapshots[snapshotID]
	if !ok {
		return nil, cmn.NewNotFoundError("snapshot not found: %s", snapshotID)
	}
	if _, exists := vm.volumeNames[name]; exists {
		return nil, cmn.NewConflictError("volume already exists: %s", name)
	}
	if pool == "" {
		pool = "default"
	}

	now := cmn.NowUnix()
	vol := &Volume{
		VolumeID:         uuid.New().String(),
		Name:             name,
		SizeBytes:        snap.SizeBytes,
		UsedBytes:        snap.UniqueBytes,
		Pool:             pool,
		State:            VolumeAvailable,
		CreatedAt:        now,
		UpdatedAt:        now,
		ParentSnapshotID: snapshotID,
		ChunkSize:        vm.mapper.ChunkSize(),
		Metadata:         map[string]string{},
	}
	if err := vm.driver.Write(volumesCollection, vol.VolumeID, vol); err != nil {
		return nil, cmn.WrapIntegrityError(err, "persist cloned volume %s", vol.VolumeID)
	}
	for chunkID, ref := range snap.ChunkRefs {
		if err := vm.chunks.PutChunk(vol.VolumeID, chunkID, ref); err != nil {
			return nil, err
		}
	}
	vm.volumes[vol.VolumeID] = vol
	vm.volumeNames[name] = vol.VolumeID
	vm.volumeSnapshots[vol.VolumeID] = make(map[string]bool)
	return vol, nil
}

// RestoreSnapshot overwrites volumeID's chunk map in place with snapshotID's,
// discarding any chunk allocated since the snapshot was taken. progress, if
// non-nil, is called after each chunk is restored with the count done so far
// and the total chunk count.
func (vm *VolumeManager) RestoreSnapshot(volumeID, snapshotID string, progress func(done, total int)) error {
	vm.mu.Lock()
	vol, ok := vm.volumes[volumeID]
	if !ok {
		vm.mu.Unlock()
		return cmn.NewNotFoundError("volume not found: %s", volumeID)
	}
	snap, ok := vm.snapshots[snapshotID]
	if !ok {
		vm.mu.Unlock()
		return cmn.NewNotFoundError("snapshot not found: %s", snapshotID)
	}
	if snap.VolumeID != volumeID {
		vm.mu.Unlock()
		return cmn.NewConflictError("snapshot %s does not belong to volume %s", snapshotID, volumeID)
	}
	vm.mu.Unlock()

	existing, err := vm.chunks.AllocatedChunks(volumeID)
	if err != nil {
		return err
	}
	for _, chunkID := range existing {
		if _, inSnapshot := snap.ChunkRefs[chunkID]; !inSnapshot {
			if err := vm.chunks.DeleteChunk(volumeID, chunkID); err != nil {
				return err
			}
		}
	}

	total := len(snap.ChunkRefs)
	done := 0
	for chunkID, ref := range snap.ChunkRefs {
		if err := vm.chunks.PutChunk(volumeID, chunkID, ref); err != nil {
			return err
		}
		done++
		if progress != nil {
			progress(done, total)
		}
	}

	vm.mu.Lock()
	vol.UsedBytes = snap.UniqueBytes
	vol.UpdatedAt = cmn.NowUnix()
	err = vm.driver.Write(volumesCollection, vol.VolumeID, vol)
	vm.mu.Unlock()
	if err != nil {
		return cmn.WrapIntegrityError(err, "persist restored volume %s", vol.VolumeID)
	}
	return nil
}

func (vm *VolumeManager) Close() error {
	return vm.chunks.Close()
}

func (s VolumeState) String() string {
	switch s {
	case VolumeCreating:
		return "creating"
	case VolumeAvailable:
		return "available"
	case VolumeAttached:
		return "attached"
	case VolumeError:
		return "error"
	case VolumeDeleting:
		return "deleting"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}
