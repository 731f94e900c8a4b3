package meta

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/objectio/objectio/cmn"
)

// StoreConfig bundles the on-disk layout and tuning knobs for a Store.
type StoreConfig struct {
	DataDir        string
	SyncMode       cmn.WALSyncMode
	CacheBytes     int64 // interpreted as an entry-count budget, not bytes
	SnapshotConfig SnapshotConfig
}

func DefaultStoreConfig(dataDir string) StoreConfig {
	return StoreConfig{
		DataDir:        dataDir,
		SyncMode:       cmn.WALSyncPerWrite,
		CacheBytes:     4096,
		SnapshotConfig: DefaultSnapshotConfig(dataDir),
	}
}

// Store is the OSD's local metadata engine: WAL for durability, an
// in-memory ordered Index for lookups/scans, an ArcCache for hot entries,
// and periodic snapshotting with WAL truncation (§4.B).
//
// Write path: append to WAL (fsync per policy) -> apply to index -> update
// cache if the key was already cached.
// Read path: cache hit -> return; miss -> index lookup, populating the
// cache on a hit; miss on both -> NotFound.
// Recovery: load the newest valid snapshot, then replay the WAL from
// snapshot.lsn+1.
type Store struct {
	mu     sync.Mutex
	wal    *WAL
	index  *Index
	cache  *ArcCache
	cfg    StoreConfig
	lsn    atomic.Uint64
	mutate atomic.Uint64 // mutations since last snapshot
}

// Open recovers a Store from cfg.DataDir: load the latest snapshot (if any),
// replay the WAL forward from it, and leave the store ready to serve.
func Open(cfg StoreConfig) (*Store, error) {
	index, snapshotLSN, err := loadLatestSnapshot(cfg.SnapshotConfig)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(walDir(cfg.DataDir), 0755); err != nil {
		return nil, cmn.WrapIntegrityError(err, "create wal dir")
	}
	walPath := filepath.Join(walDir(cfg.DataDir), "meta.wal")
	wal, walLSN, err := OpenWAL(walPath, cfg.SyncMode)
	if err != nil {
		return nil, err
	}

	s := &Store{
		wal:   wal,
		index: index,
		cache: NewArcCache(int(cfg.CacheBytes)),
		cfg:   cfg,
	}

	if err := wal.Replay(snapshotLSN+1, func(lsn uint64, op Op) error {
		s.applyOp(op, lsn)
		return nil
	}); err != nil {
		return nil, err
	}

	startLSN := walLSN
	if snapshotLSN > startLSN {
		startLSN = snapshotLSN
	}
	s.lsn.Store(startLSN)
	// Keep numbering after the snapshot even when the WAL tail is empty.
	wal.nextLSN = startLSN + 1
	return s, nil
}

func (s *Store) applyOp(op Op, lsn uint64) {
	switch op.Kind {
	case OpPut:
		s.index.Put(op.Key, op.Value, lsn)
	case OpDelete:
		s.index.Delete(op.Key)
	case OpBatch:
		for _, sub := range op.Ops {
			s.applyOp(sub, lsn)
		}
	}
}

// Get serves a point lookup: cache first, then the index, populating the
// cache on an index hit.
func (s *Store) Get(key []byte) ([]byte, error) {
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}
	e, ok := s.index.Get(key)
	if !ok {
		return nil, cmn.NewNotFoundError("metadata key not found: %x", key)
	}
	s.cache.Put(key, e.Value)
	return e.Value, nil
}

// Put durably writes key=value: WAL append (fsync per policy), apply to the
// index, then refresh the cache if the key was already resident.
func (s *Store) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lsn, err := s.wal.Append(Op{Kind: OpPut, Key: key, Value: value})
	if err != nil {
		return err
	}
	s.index.Put(key, value, lsn)
	if s.cache.Contains(key) {
		s.cache.Put(key, value)
	}
	s.lsn.Store(lsn)
	s.afterMutation()
	return nil
}

// Delete removes key, logging a tombstone first.
func (s *Store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lsn, err := s.wal.Append(Op{Kind: OpDelete, Key: key})
	if err != nil {
		return err
	}
	s.index.Delete(key)
	s.cache.Remove(key)
	s.lsn.Store(lsn)
	s.afterMutation()
	return nil
}

// PutBatch applies every (key, value) pair atomically: a single WAL record,
// one index update per pair.
func (s *Store) PutBatch(pairs map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ops := make([]Op, 0, len(pairs))
	for k, v := range pairs {
		ops = append(ops, Op{Kind: OpPut, Key: []byte(k), Value: v})
	}
	lsn, err := s.wal.AppendBatch(ops)
	if err != nil {
		return err
	}
	for k, v := range pairs {
		s.index.Put([]byte(k), v, lsn)
		if s.cache.Contains([]byte(k)) {
			s.cache.Put([]byte(k), v)
		}
	}
	s.lsn.Store(lsn)
	s.afterMutation()
	return nil
}

// PrefixScan returns every live entry whose key starts with prefix.
func (s *Store) PrefixScan(prefix []byte) []KV {
	return s.index.PrefixScan(prefix)
}

func (s *Store) afterMutation() {
	if s.mutate.Add(1) >= s.cfg.SnapshotConfig.Threshold {
		s.mutate.Store(0)
		go s.snapshotAndTruncate()
	}
}

// snapshotAndTruncate writes a fresh snapshot and compacts the WAL down to
// records newer than it. Failures here are non-fatal: the WAL remains the
// durable source of truth until the next successful snapshot.
func (s *Store) snapshotAndTruncate() {
	lsn := s.lsn.Load()
	if _, err := writeSnapshot(s.cfg.SnapshotConfig, s.index, lsn); err != nil {
		return
	}
	_ = s.wal.TruncateBefore(lsn + 1)
}

// Snapshot forces an immediate snapshot and WAL truncation, for callers
// that want to bound recovery time before a planned shutdown.
func (s *Store) Snapshot() error {
	s.mu.Lock()
	lsn := s.lsn.Load()
	s.mu.Unlock()

	if _, err := writeSnapshot(s.cfg.SnapshotConfig, s.index, lsn); err != nil {
		return err
	}
	return s.wal.TruncateBefore(lsn + 1)
}

func (s *Store) CacheStats() *CacheStats { return s.cache.Stats() }

func (s *Store) Len() int { return s.index.Len() }

func (s *Store) Close() error {
	return s.wal.Close()
}
