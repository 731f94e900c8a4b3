package block

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/objectio/objectio/cmn"
	"github.com/objectio/objectio/meta"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// journalEntry is the payload logged for a pending (not-yet-flushed) write.
type journalEntry struct {
	VolumeID string `json:"volume_id"`
	ChunkID  uint64 `json:"chunk_id"`
	Offset   uint64 `json:"offset"`
	Data     []byte `json:"data"`
}

// Journal is the write cache's write-ahead log: one Put record per cache
// write, keyed by (volume, chunk), and one Delete record for that key once
// the chunk is durably flushed to object storage. It
// reuses the OSD metadata store's WAL implementation (§4.B) rather than a
// bespoke log format, since the write path is identical: append, fsync,
// replay-on-recovery.
type Journal struct {
	wal *meta.WAL
}

// OpenJournal opens (or creates) the write cache's journal file at path.
func OpenJournal(path string, mode cmn.WALSyncMode) (*Journal, error) {
	wal, _, err := meta.OpenWAL(path, mode)
	if err != nil {
		return nil, err
	}
	return &Journal{wal: wal}, nil
}

func journalKey(volumeID string, chunkID cmn.ChunkId) []byte {
	key := make([]byte, 0, len(volumeID)+1+8)
	key = append(key, volumeID...)
	key = append(key, 0)
	key = append(key, cmn.BEUint64(uint64(chunkID))...)
	return key
}

// LogWrite records a pending write for (volumeID, chunkID) before the cache
// acknowledges it, giving write-ahead durability.
func (j *Journal) LogWrite(volumeID string, chunkID cmn.ChunkId, offset uint64, data []byte) error {
	entry := journalEntry{VolumeID: volumeID, ChunkID: uint64(chunkID), Offset: offset, Data: data}
	value, err := json.Marshal(entry)
	if err != nil {
		return cmn.NewConfigError("marshal journal entry: %v", err)
	}
	_, err = j.wal.Append(meta.Op{Kind: meta.OpPut, Key: journalKey(volumeID, chunkID), Value: value})
	return err
}

// LogFlush records that (volumeID, chunkID) has been durably flushed, so it
// is skipped on the next recovery replay.
func (j *Journal) LogFlush(volumeID string, chunkID cmn.ChunkId) error {
	_, err := j.wal.Append(meta.Op{Kind: meta.OpDelete, Key: journalKey(volumeID, chunkID)})
	return err
}

// PendingWrite is one write recovered from the journal that was never
// confirmed flushed. Offset is the byte offset within chunk ChunkID, as
// passed to LogWrite.
type PendingWrite struct {
	VolumeID string
	ChunkID  cmn.ChunkId
	Offset   uint64
	Data     []byte
}

// Recover replays the journal and returns every write that is still pending
// (logged but never followed by a matching flush record), in log order.
func (j *Journal) Recover() ([]PendingWrite, error) {
	var keys []string
	var live []journalEntry

	err := j.wal.Replay(0, func(_ uint64, op meta.Op) error {
		k := string(op.Key)
		switch op.Kind {
		case meta.OpPut:
			var entry journalEntry
			if err := json.Unmarshal(op.Value, &entry); err != nil {
				return cmn.NewIntegrityError("corrupt journal entry: %v", err)
			}
			keys = append(keys, k)
			live = append(live, entry)
		case meta.OpDelete:
			for i := len(keys) - 1; i >= 0; i-- {
				if keys[i] == k {
					keys = append(keys[:i], keys[i+1:]...)
					live = append(live[:i], live[i+1:]...)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	writes := make([]PendingWrite, 0, len(live))
	for _, entry := range live {
		writes = append(writes, PendingWrite{
			VolumeID: entry.VolumeID,
			ChunkID:  cmn.ChunkId(entry.ChunkID),
			Offset:   entry.Offset,
			Data:     entry.Data,
		})
	}
	return writes, nil
}

// Checkpoint drops every journal record with an LSN below snapshotLSN,
// whether or not that record's write has been flushed, bounding replay time
// on the next recovery; a later Recover does not return writes logged
// before snapshotLSN.
func (j *Journal) Checkpoint(snapshotLSN uint64) error {
	return j.wal.TruncateBefore(snapshotLSN)
}

func (j *Journal) Sync() error { return j.wal.Sync() }

func (j *Journal) Close() error { return j.wal.Close() }
