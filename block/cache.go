package block

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/objectio/objectio/cmn"
)

// DirtyChunk is a full chunk's worth of data not yet flushed to object
// storage.
type DirtyChunk struct {
	Data         []byte
	DirtySince   time.Time
	LastModified time.Time
}

// CacheConfig tunes a WriteCache's flush behavior and durability.
type CacheConfig struct {
	MaxCacheBytes uint64
	FlushInterval time.Duration
	MaxDirtyAge   time.Duration
	JournalPath   string // empty disables journaling
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxCacheBytes: 256 * 1024 * 1024,
		FlushInterval: 5 * time.Second,
		MaxDirtyAge:   30 * time.Second,
	}
}

// CacheStats summarizes a WriteCache's current memory footprint.
type CacheStats struct {
	VolumeCount int
	DirtyBytes  uint64
	CleanBytes  uint64
	DirtyChunks int
	CleanChunks int
}

type volumeCache struct {
	dirtyChunks map[cmn.ChunkId]DirtyChunk
	cleanChunks map[cmn.ChunkId][]byte
	dirtyBytes  uint64
	cleanBytes  uint64
}

func newVolumeCache() *volumeCache {
	return &volumeCache{
		dirtyChunks: make(map[cmn.ChunkId]DirtyChunk),
		cleanChunks: make(map[cmn.ChunkId][]byte),
	}
}

// WriteCache is the write-back cache sitting in front of the chunked object
// backend (§4.E.2): writes land here first and are acknowledged immediately,
// with a background flusher (§4.E.3) draining dirty chunks to storage. A
// write-ahead journal, when configured, makes the cache durable across a
// crash between acknowledging a write and flushing it.
type WriteCache struct {
	mu      sync.RWMutex
	caches  map[string]*volumeCache
	mapper  *ChunkMapper
	cfg     CacheConfig
	dirty   atomic.Uint64 // total dirty bytes across all volumes
	journal *Journal
}

// NewWriteCache builds a WriteCache, opening its journal if cfg.JournalPath
// is set.
func NewWriteCache(mapper *ChunkMapper, cfg CacheConfig) (*WriteCache, error) {
	wc := &WriteCache{
		caches: make(map[string]*volumeCache),
		mapper: mapper,
		cfg:    cfg,
	}
	if cfg.JournalPath != "" {
		j, err := OpenJournal(cfg.JournalPath, cmn.WALSyncPerWrite)
		if err != nil {
			return nil, err
		}
		wc.journal = j
	}
	return wc, nil
}

func (c *WriteCache) ChunkMapper() *ChunkMapper { return c.mapper }

// InitVolume registers an empty cache for volumeID if one doesn't exist yet.
func (c *WriteCache) InitVolume(volumeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.caches[volumeID]; !ok {
		c.caches[volumeID] = newVolumeCache()
	}
}

// RemoveVolume drops volumeID's cache entirely, adjusting the global dirty
// total.
func (c *WriteCache) RemoveVolume(volumeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if vc, ok := c.caches[volumeID]; ok {
		c.subDirty(vc.dirtyBytes)
		delete(c.caches, volumeID)
	}
}

func (c *WriteCache) subDirty(n uint64) {
	for {
		cur := c.dirty.Load()
		next := uint64(0)
		if cur > n {
			next = cur - n
		}
		if c.dirty.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Write buffers data at offset within volumeID's logical address space,
// logging it to the journal first (write-ahead) if journaling is enabled.
func (c *WriteCache) Write(volumeID string, offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if c.journal != nil {
		chunkID := c.mapper.ByteOffsetToChunkID(offset)
		if err := c.journal.LogWrite(volumeID, chunkID, offset%c.mapper.ChunkSize(), data); err != nil {
			return err
		}
	}

	ranges := c.mapper.ByteRangeToChunks(offset, uint64(len(data)))
	chunkSize := int(c.mapper.ChunkSize())

	c.mu.Lock()
	defer c.mu.Unlock()
	vc, ok := c.caches[volumeID]
	if !ok {
		return cmn.NewNotFoundError("volume not found in cache: %s", volumeID)
	}

	now := time.Now()
	var dataOffset int
	for _, r := range ranges {
		rangeLen := int(r.Length)

		var chunkData []byte
		if existing, ok := vc.dirtyChunks[r.ChunkID]; ok {
			chunkData = append([]byte(nil), existing.Data...)
		} else if clean, ok := vc.cleanChunks[r.ChunkID]; ok {
			chunkData = append([]byte(nil), clean...)
			vc.cleanBytes -= uint64(len(clean))
			delete(vc.cleanChunks, r.ChunkID)
		} else {
			chunkData = make([]byte, chunkSize)
		}
		if len(chunkData) < chunkSize {
			grown := make([]byte, chunkSize)
			copy(grown, chunkData)
			chunkData = grown
		}

		offsetInChunk := int(r.OffsetInChunk)
		copy(chunkData[offsetInChunk:offsetInChunk+rangeLen], data[dataOffset:dataOffset+rangeLen])

		prev, wasDirty := vc.dirtyChunks[r.ChunkID]
		dirtySince := now
		if wasDirty {
			dirtySince = prev.DirtySince
		} else {
			vc.dirtyBytes += uint64(chunkSize)
			c.dirty.Add(uint64(chunkSize))
		}
		vc.dirtyChunks[r.ChunkID] = DirtyChunk{Data: chunkData, DirtySince: dirtySince, LastModified: now}
		dataOffset += rangeLen
	}
	return nil
}

// Read returns cached data for [offset, offset+length), or ok=false on any
// cache miss — the caller must then fall through to the object backend.
func (c *WriteCache) Read(volumeID string, offset, length uint64) (data []byte, ok bool) {
	if length == 0 {
		return []byte{}, true
	}
	ranges := c.mapper.ByteRangeToChunks(offset, length)

	c.mu.RLock()
	defer c.mu.RUnlock()
	vc, found := c.caches[volumeID]
	if !found {
		return nil, false
	}

	out := make([]byte, 0, length)
	for _, r := range ranges {
		offsetInChunk := int(r.OffsetInChunk)
		rangeLen := int(r.Length)
		if dirty, ok := vc.dirtyChunks[r.ChunkID]; ok {
			out = append(out, dirty.Data[offsetInChunk:offsetInChunk+rangeLen]...)
		} else if clean, ok := vc.cleanChunks[r.ChunkID]; ok {
			out = append(out, clean[offsetInChunk:offsetInChunk+rangeLen]...)
		} else {
			return nil, false
		}
	}
	return out, true
}

// AddClean populates the read cache for a chunk just fetched from storage,
// unless it is already dirty (dirty data must never be overwritten by a
// stale read).
func (c *WriteCache) AddClean(volumeID string, chunkID cmn.ChunkId, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vc, ok := c.caches[volumeID]
	if !ok {
		return
	}
	if _, dirty := vc.dirtyChunks[chunkID]; dirty {
		return
	}
	vc.cleanBytes += uint64(len(data))
	vc.cleanChunks[chunkID] = data
}

// GetChunksToFlush returns dirty chunks that are either older than
// MaxDirtyAge or the cache is under pressure (§4.E.3 flush selection).
func (c *WriteCache) GetChunksToFlush(volumeID string) map[cmn.ChunkId][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vc, ok := c.caches[volumeID]
	if !ok {
		return nil
	}

	now := time.Now()
	pressured := c.shouldFlush()
	out := make(map[cmn.ChunkId][]byte)
	for id, dirty := range vc.dirtyChunks {
		if now.Sub(dirty.DirtySince) >= c.cfg.MaxDirtyAge || pressured {
			out[id] = dirty.Data
		}
	}
	return out
}

// MarkFlushed moves the named chunks from dirty to clean, and logs the
// flush completion to the journal so recovery skips them.
func (c *WriteCache) MarkFlushed(volumeID string, chunkIDs []cmn.ChunkId) {
	if c.journal != nil {
		for _, id := range chunkIDs {
			_ = c.journal.LogFlush(volumeID, id)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	vc, ok := c.caches[volumeID]
	if !ok {
		return
	}
	for _, id := range chunkIDs {
		dirty, ok := vc.dirtyChunks[id]
		if !ok {
			continue
		}
		delete(vc.dirtyChunks, id)
		size := uint64(len(dirty.Data))
		vc.dirtyBytes -= size
		c.subDirty(size)
		vc.cleanBytes += size
		vc.cleanChunks[id] = dirty.Data
	}
}

// FlushVolume drains and returns every dirty chunk for volumeID, clearing
// its dirty state unconditionally (used for an explicit force-flush, e.g.
// before unmounting a volume).
func (c *WriteCache) FlushVolume(volumeID string) map[cmn.ChunkId][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	vc, ok := c.caches[volumeID]
	if !ok {
		return nil
	}
	out := make(map[cmn.ChunkId][]byte, len(vc.dirtyChunks))
	for id, dirty := range vc.dirtyChunks {
		out[id] = dirty.Data
	}
	c.subDirty(vc.dirtyBytes)
	vc.dirtyBytes = 0
	vc.dirtyChunks = make(map[cmn.ChunkId]DirtyChunk)
	return out
}

func (c *WriteCache) shouldFlush() bool {
	return c.dirty.Load() >= c.cfg.MaxCacheBytes*80/100
}

// Stats reports current memory usage across every cached volume.
func (c *WriteCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var s CacheStats
	for _, vc := range c.caches {
		s.DirtyBytes += vc.dirtyBytes
		s.CleanBytes += vc.cleanBytes
		s.DirtyChunks += len(vc.dirtyChunks)
		s.CleanChunks += len(vc.cleanChunks)
	}
	s.VolumeCount = len(c.caches)
	return s
}

// Recover replays the journal, returning writes that were never confirmed
// flushed so the caller can re-apply them (§4.E.2 crash recovery).
func (c *WriteCache) Recover() ([]PendingWrite, error) {
	if c.journal == nil {
		return nil, nil
	}
	return c.journal.Recover()
}

func (c *WriteCache) Sync() error {
	if c.journal == nil {
		return nil
	}
	return c.journal.Sync()
}

func (c *WriteCache) Close() error {
	if c.journal == nil {
		return nil
	}
	return c.journal.Close()
}
