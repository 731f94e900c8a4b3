package meta

import (
	"bytes"
	"fmt"

	"github.com/objectio/objectio/cmn"
)

// Metadata keys are tagged by a one-byte prefix so distinct entity types can
// be prefix-scanned independently within the same flat index (§4.B).
const (
	keyTagShard      = 's'
	keyTagObject     = 'o'
	keyTagBlock      = 'b'
	keyTagDiskUsage  = 'd'
	keyTagObjectMeta = 'm'
)

// ShardKey builds the key a local ShardMeta record is stored under.
func ShardKey(objectID cmn.ObjectId, position uint8) []byte {
	key := make([]byte, 0, 18)
	key = append(key, keyTagShard)
	key = append(key, objectID[:]...)
	key = append(key, position)
	return key
}

// ObjectKey builds the key an object-level record is stored under.
func ObjectKey(objectID cmn.ObjectId) []byte {
	key := make([]byte, 0, 17)
	key = append(key, keyTagObject)
	key = append(key, objectID[:]...)
	return key
}

// BlockKey builds the key a block's metadata is stored under. The block
// number is big-endian so lexicographic and numeric order agree.
func BlockKey(blockNum uint64) []byte {
	key := make([]byte, 0, 9)
	key = append(key, keyTagBlock)
	key = append(key, cmn.BEUint64(blockNum)...)
	return key
}

// DiskUsageKey builds the key a disk's usage counters are stored under.
func DiskUsageKey(diskID cmn.DiskId) []byte {
	key := make([]byte, 0, 17)
	key = append(key, keyTagDiskUsage)
	key = append(key, diskID[:]...)
	return key
}

// ObjectMetaKey builds the "bucket\0key" style key used by the primary OSD
// object-metadata namespace.
func ObjectMetaKey(bucket, key string) []byte {
	buf := make([]byte, 0, 2+len(bucket)+len(key))
	buf = append(buf, keyTagObjectMeta)
	buf = append(buf, bucket...)
	buf = append(buf, 0)
	buf = append(buf, key...)
	return buf
}

// ObjectMetaPrefix builds the scan prefix for every key in bucket.
func ObjectMetaPrefix(bucket string) []byte {
	buf := make([]byte, 0, 2+len(bucket))
	buf = append(buf, keyTagObjectMeta)
	buf = append(buf, bucket...)
	buf = append(buf, 0)
	return buf
}

// ParseObjectMetaKey recovers (bucket, key) from an ObjectMetaKey, if k is
// one.
func ParseObjectMetaKey(k []byte) (bucket, key string, ok bool) {
	if len(k) == 0 || k[0] != keyTagObjectMeta {
		return "", "", false
	}
	rest := k[1:]
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		return "", "", false
	}
	return string(rest[:i]), string(rest[i+1:]), true
}

// ShardMeta is the per-shard record an OSD keeps for every shard it hosts
// (§3, §4.B).
type ShardMeta struct {
	ObjectID     cmn.ObjectId  `json:"object_id"`
	StripeID     uint64        `json:"stripe_id"`
	Position     uint8         `json:"position"`
	DiskID       cmn.DiskId    `json:"disk_id"`
	BlockNum     uint64        `json:"block_num"`
	Size         uint64        `json:"size"`
	Checksum     uint32        `json:"checksum"`
	CreatedAt    int64         `json:"created_at"`
	LastVerified int64         `json:"last_verified"`
	ShardType    cmn.ShardType `json:"shard_type"`
	LocalGroup   uint8         `json:"local_group"`
}

func (m ShardMeta) Key() []byte { return ShardKey(m.ObjectID, m.Position) }

func (m ShardMeta) String() string {
	return fmt.Sprintf("shard(%s/%d pos=%d block=%d size=%d)", m.ObjectID, m.StripeID, m.Position, m.BlockNum, m.Size)
}
