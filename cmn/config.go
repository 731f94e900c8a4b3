package cmn

import "time"

// WALSyncMode selects when the OSD metadata WAL fsyncs (§4.B).
type WALSyncMode int

const (
	// WALSyncPerWrite fsyncs after every append (the default).
	WALSyncPerWrite WALSyncMode = iota
	// WALSyncOnCommit batches appends and fsyncs once per explicit commit.
	WALSyncOnCommit
	// WALSyncBatched skips the per-append fsync; the WAL keeps no append
	// count, so records are fsynced only by an explicit WAL.Sync.
	WALSyncBatched
)

// Config is supplied as a struct, not loaded from a file — TOML loading is
// an external collaborator's concern, out of scope per spec.md §1. It
// carries exactly the option table in spec.md §6 plus the ambient options
// every running node needs (listen address, data directory, RPC timeouts,
// metrics).
type Config struct {
	// MDS parameters for the cluster default (§6).
	ECK, ECM int

	// LRC parameters, used when a bucket's storage class selects LRC (§6).
	LRCK, LRCL, LRCG int

	// ChunkSize is the volume chunk size in bytes; must be a power of two
	// (§4.E.1). Default 4 MiB.
	ChunkSize int64

	// CacheBytes is the write-back cache's size limit (§4.E.2): once dirty
	// bytes reach 80% of it, every dirty chunk becomes eligible for flush.
	// Clean bytes are not counted against it and are not capped by it.
	CacheBytes int64

	// FlushInterval is the background flusher's tick period (§4.E.3).
	FlushInterval time.Duration

	// MaxDirtyAge forces a chunk to be flushed once it has been dirty this
	// long, regardless of cache pressure (§4.E.2).
	MaxDirtyAge time.Duration

	// BlockSize is the raw-disk block size; a power of two (§3 Superblock).
	BlockSize uint32

	// WALSyncMode controls OSD metadata WAL fsync policy (§4.B).
	WALSyncMode WALSyncMode

	// MetadataSnapshotThreshold is the mutation count that triggers a
	// metadata-store snapshot (§4.B).
	MetadataSnapshotThreshold uint64

	// MetadataSnapshotRetention is how many old snapshots to keep (§4.B).
	MetadataSnapshotRetention int

	// --- ambient, node-process options not named in §6's option table ---

	// ListenAddress is the inter-node RPC listen address (§6 "Inter-node
	// protocol").
	ListenAddress string

	// DataDir is the node's local data directory: disk files, metadata
	// store snapshots/WAL, volume store, cache journal.
	DataDir string

	// RPCReadTimeout / RPCWriteTimeout are the wall-clock RPC timeouts
	// named in §5 ("default 10s read, 30s write").
	RPCReadTimeout  time.Duration
	RPCWriteTimeout time.Duration

	// MetricsAddress is where Prometheus metrics are exposed, if non-empty.
	MetricsAddress string

	// FlushFanout is the configured per-tick flush fan-out. block.Flusher
	// does not read it: each round writes a volume's chunks one at a time.
	FlushFanout int
}

// DefaultConfig seeds sane defaults, the way the teacher's bucket-prop
// defaults are seeded in cmn/api.go.
func DefaultConfig() Config {
	return Config{
		ECK:                       4,
		ECM:                       2,
		LRCK:                      6,
		LRCL:                      2,
		LRCG:                      2,
		ChunkSize:                 4 << 20,
		CacheBytes:                256 << 20,
		FlushInterval:             5 * time.Second,
		MaxDirtyAge:               30 * time.Second,
		BlockSize:                 64 << 10,
		WALSyncMode:               WALSyncPerWrite,
		MetadataSnapshotThreshold: 10_000,
		MetadataSnapshotRetention: 3,
		ListenAddress:             ":7020",
		DataDir:                   "/var/lib/objectio",
		RPCReadTimeout:            10 * time.Second,
		RPCWriteTimeout:           30 * time.Second,
		MetricsAddress:            ":9090",
		FlushFanout:               8,
	}
}
