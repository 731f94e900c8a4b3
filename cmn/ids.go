package cmn

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ObjectId uniquely identifies an EC-protected object (§3 Identifiers).
type ObjectId [16]byte

// NewObjectId mints a random object id.
func NewObjectId() ObjectId {
	var id ObjectId
	copy(id[:], uuid.New()[:])
	return id
}

func (o ObjectId) String() string { return uuid.UUID(o).String() }

// NodeId and DiskId are 16-byte identifiers, same shape as ObjectId.
type (
	NodeId [16]byte
	DiskId [16]byte
)

func NewNodeId() NodeId {
	var id NodeId
	copy(id[:], uuid.New()[:])
	return id
}

func NewDiskId() DiskId {
	var id DiskId
	copy(id[:], uuid.New()[:])
	return id
}

func (n NodeId) String() string { return uuid.UUID(n).String() }
func (d DiskId) String() string { return uuid.UUID(d).String() }

// ShardType distinguishes the role a shard plays within a stripe.
type ShardType uint8

const (
	ShardData ShardType = iota
	ShardLocalParity
	ShardGlobalParity
)

func (t ShardType) String() string {
	switch t {
	case ShardData:
		return "data"
	case ShardLocalParity:
		return "local-parity"
	case ShardGlobalParity:
		return "global-parity"
	default:
		return "unknown"
	}
}

// NoLocalGroup is the sentinel "255 = none" value for a shard's LocalGroup
// field (placement.ShardPlacement, rpc.NodePlacement, rpc.ShardLocation,
// meta.ShardMeta) described in §3's OSD metadata store entity (`local_group∈0..254 or
// 255=none`).
const NoLocalGroup uint8 = 255

// ShardId identifies one shard of one stripe of one object (§3).
type ShardId struct {
	ObjectId ObjectId
	StripeId uint64
	Position uint8
}

func (s ShardId) String() string {
	return fmt.Sprintf("%s/%d/%d", s.ObjectId, s.StripeId, s.Position)
}

// ChunkId is a volume-relative chunk index (§3 Volume/chunk).
type ChunkId uint64

// ChunkObjectKey formats the reserved-bucket key a chunk is stored under:
// "vol_{V}/chunk_{N:08x}" per §3 and §4.E.4.
func ChunkObjectKey(volumeID string, chunk ChunkId) string {
	return fmt.Sprintf("vol_%s/chunk_%08x", volumeID, uint32(chunk))
}

// BlockBucket is the reserved bucket name volume chunks are stored under
// (ec_io.rs BLOCK_BUCKET).
const BlockBucket = "__block__"

// BEUint64 / BEUint32 give big-endian numeric encodings for metadata-store
// keys, so lexicographic byte ordering matches numeric ordering (§3: "keys
// sort lexicographically (big-endian numeric encodings)").
func BEUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func BEUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// NowUnix returns the current time as Unix seconds, for record timestamps.
func NowUnix() int64 { return time.Now().Unix() }
