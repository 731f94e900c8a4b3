package block

import (
	"encoding/binary"
	"time"

	"github.com/objectio/objectio/cmn"
	bolt "go.etcd.io/bbolt"
)

var chunksBucket = []byte("chunks")

// ChunkStore persists the (volume, chunk) -> object key mapping a flushed
// chunk resolves to, replacing store.rs's redb-backed BlockStore with
// go.etcd.io/bbolt (§4.E.4).
type ChunkStore struct {
	db *bolt.DB
}

func OpenChunkStore(path string) (*ChunkStore, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, cmn.WrapIntegrityError(err, "open chunk store %s", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(chunksBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, cmn.WrapIntegrityError(err, "create chunks bucket")
	}
	return &ChunkStore{db: db}, nil
}

func chunkStoreKey(volumeID string, chunkID cmn.ChunkId) []byte {
	key := make([]byte, 0, len(volumeID)+1+8)
	key = append(key, volumeID...)
	key = append(key, 0)
	key = append(key, cmn.BEUint64(uint64(chunkID))...)
	return key
}

// PutChunk records the object key a (volume, chunk) pair currently resolves
// to.
func (s *ChunkStore) PutChunk(volumeID string, chunkID cmn.ChunkId, ref ChunkRef) error {
	value, err := json.Marshal(ref)
	if err != nil {
		return cmn.NewConfigError("marshal chunk ref: %v", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(chunksBucket).Put(chunkStoreKey(volumeID, chunkID), value)
	})
}

// GetChunk returns the chunk reference for (volumeID, chunkID), if any.
func (s *ChunkStore) GetChunk(volumeID string, chunkID cmn.ChunkId) (ChunkRef, bool, error) {
	var ref ChunkRef
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(chunksBucket).Get(chunkStoreKey(volumeID, chunkID))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &ref)
	})
	if err != nil {
		return ChunkRef{}, false, cmn.NewIntegrityError("corrupt chunk ref for %s/%d: %v", volumeID, chunkID, err)
	}
	return ref, found, nil
}

// DeleteChunk removes a (volume, chunk) mapping, e.g. on volume deletion.
func (s *ChunkStore) DeleteChunk(volumeID string, chunkID cmn.ChunkId) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(chunksBucket).Delete(chunkStoreKey(volumeID, chunkID))
	})
}

// AllocatedChunks returns every chunk ID recorded for volumeID, ascending.
func (s *ChunkStore) AllocatedChunks(volumeID string) ([]cmn.ChunkId, error) {
	prefix := append([]byte(volumeID), 0)
	var ids []cmn.ChunkId
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(chunksBucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			ids = append(ids, cmn.ChunkId(binary.BigEndian.Uint64(k[len(prefix):])))
		}
		return nil
	})
	return ids, err
}

// DeleteVolume removes every chunk mapping belonging to volumeID.
func (s *ChunkStore) DeleteVolume(volumeID string) error {
	prefix := append([]byte(volumeID), 0)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(chunksBucket)
		c := b.Cursor()
		var keys [][]byte
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (s *ChunkStore) Close() error { return s.db.Close() }
