// Package disk implements the raw-disk layer: aligned direct I/O, the
// on-disk superblock, and per-block header/footer framing (§4.A).
package disk

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/google/uuid"
	"github.com/objectio/objectio/cmn"
)

// Magic is the ObjectIO disk-format identifier, stored at superblock
// offset 0.
var Magic = [8]byte{'O', 'B', 'J', 'E', 'C', 'T', 'I', 'O'}

const (
	// FormatVersion is the current on-disk format version.
	FormatVersion uint32 = 1

	// SuperblockSize is the fixed size of the superblock region (§3).
	SuperblockSize = 4096

	// DefaultBlockSize is the default data-block size (§3: "default 64 KiB").
	DefaultBlockSize uint32 = 64 << 10

	// DefaultWALSize is the default size of a disk's reserved WAL region.
	DefaultWALSize uint64 = 1 << 30

	// MinDiskSize is the smallest disk `init` accepts.
	MinDiskSize uint64 = 1 << 30

	// Alignment is the I/O alignment constant named throughout §4.A: both
	// offset and buffer length must be multiples of this.
	Alignment = 4096

	// checksumOffset is the byte offset of the superblock's checksum field:
	// everything before it is covered by the CRC32C (§3).
	checksumOffset = 292
)

func alignUp(v uint64) uint64 {
	return (v + Alignment - 1) / Alignment * Alignment
}

// Superblock is the 4 KiB record at offset 0 of every raw disk (§3).
type Superblock struct {
	Magic        [8]byte
	Version      uint32
	DiskUUID     uuid.UUID
	DiskID       cmn.DiskId
	DiskSize     uint64
	BlockSize    uint32
	TotalBlocks  uint64
	FreeBlocks   uint64
	WALOffset    uint64
	WALSize      uint64
	BitmapOffset uint64
	BitmapSize   uint64
	IndexOffset  uint64
	IndexSize    uint64
	DataOffset   uint64
	DataSize     uint64
	CreatedAt    uint64
	LastMount    uint64
	MountCount   uint64
	Flags        uint32
	Checksum     uint32
}

// NewSuperblock lays out the regions of a disk of the given size, following
// layout.rs's sizing policy: WAL is min(1GiB, 10% of disk), bitmap is
// 1 bit/block, index is ~1% of blocks, all 4 KiB-aligned, and data takes
// the remainder.
func NewSuperblock(diskSize uint64, blockSize uint32) (*Superblock, error) {
	if diskSize < MinDiskSize {
		return nil, cmn.NewConfigError("disk size %d is below minimum %d", diskSize, MinDiskSize)
	}
	if blockSize == 0 || blockSize&(blockSize-1) != 0 {
		return nil, cmn.NewConfigError("block size %d must be a power of two", blockSize)
	}

	walOffset := uint64(SuperblockSize)
	walSize := alignUp(min64(DefaultWALSize, diskSize/10))

	bitmapOffset := alignUp(walOffset + walSize)
	availableForData := diskSize - bitmapOffset
	blocksApprox := availableForData / uint64(blockSize)
	bitmapSize := alignUp((blocksApprox + 7) / 8)

	indexOffset := alignUp(bitmapOffset + bitmapSize)
	indexBlocks := blocksApprox / 100
	if indexBlocks < 1 {
		indexBlocks = 1
	}
	indexSize := alignUp(indexBlocks * 4096)

	dataOffset := alignUp(indexOffset + indexSize)
	if dataOffset >= diskSize {
		return nil, cmn.NewConfigError("disk size %d too small for region layout", diskSize)
	}
	dataSize := diskSize - dataOffset
	totalBlocks := dataSize / uint64(blockSize)

	now := uint64(time.Now().Unix())

	sb := &Superblock{
		Magic:        Magic,
		Version:      FormatVersion,
		DiskUUID:     uuid.New(),
		DiskID:       cmn.NewDiskId(),
		DiskSize:     diskSize,
		BlockSize:    blockSize,
		TotalBlocks:  totalBlocks,
		FreeBlocks:   totalBlocks,
		WALOffset:    walOffset,
		WALSize:      walSize,
		BitmapOffset: bitmapOffset,
		BitmapSize:   bitmapSize,
		IndexOffset:  indexOffset,
		IndexSize:    indexSize,
		DataOffset:   dataOffset,
		DataSize:     dataSize,
		CreatedAt:    now,
		LastMount:    now,
		MountCount:   1,
	}
	sb.Checksum = sb.computeChecksum()
	if err := sb.Validate(); err != nil {
		return nil, err
	}
	return sb, nil
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// ToBytes serializes the superblock, little-endian, padded to
// SuperblockSize.
func (sb *Superblock) ToBytes() []byte {
	buf := make([]byte, 0, SuperblockSize)
	w := bytes.NewBuffer(buf)
	w.Write(sb.Magic[:])
	writeU32(w, sb.Version)
	w.Write(sb.DiskUUID[:])
	w.Write(sb.DiskID[:])
	writeU64(w, sb.DiskSize)
	writeU32(w, sb.BlockSize)
	writeU64(w, sb.TotalBlocks)
	writeU64(w, sb.FreeBlocks)
	writeU64(w, sb.WALOffset)
	writeU64(w, sb.WALSize)
	writeU64(w, sb.BitmapOffset)
	writeU64(w, sb.BitmapSize)
	writeU64(w, sb.IndexOffset)
	writeU64(w, sb.IndexSize)
	writeU64(w, sb.DataOffset)
	writeU64(w, sb.DataSize)
	writeU64(w, sb.CreatedAt)
	writeU64(w, sb.LastMount)
	writeU64(w, sb.MountCount)
	writeU32(w, sb.Flags)
	w.Write(make([]byte, 128)) // reserved
	writeU32(w, sb.Checksum)

	out := make([]byte, SuperblockSize)
	copy(out, w.Bytes())
	return out
}

// SuperblockFromBytes parses and validates a superblock, rejecting bad
// magic, unsupported version, or checksum mismatch.
func SuperblockFromBytes(data []byte) (*Superblock, error) {
	if len(data) < checksumOffset+4 {
		return nil, cmn.NewIntegrityError("superblock too small: %d bytes", len(data))
	}
	r := bytes.NewReader(data)
	sb := &Superblock{}
	r.Read(sb.Magic[:])
	if sb.Magic != Magic {
		return nil, cmn.NewIntegrityError("invalid superblock magic")
	}
	sb.Version = readU32(r)
	if sb.Version != FormatVersion {
		return nil, cmn.NewIntegrityError("unsupported format version %d", sb.Version)
	}
	r.Read(sb.DiskUUID[:])
	r.Read(sb.DiskID[:])
	sb.DiskSize = readU64(r)
	sb.BlockSize = readU32(r)
	sb.TotalBlocks = readU64(r)
	sb.FreeBlocks = readU64(r)
	sb.WALOffset = readU64(r)
	sb.WALSize = readU64(r)
	sb.BitmapOffset = readU64(r)
	sb.BitmapSize = readU64(r)
	sb.IndexOffset = readU64(r)
	sb.IndexSize = readU64(r)
	sb.DataOffset = readU64(r)
	sb.DataSize = readU64(r)
	sb.CreatedAt = readU64(r)
	sb.LastMount = readU64(r)
	sb.MountCount = readU64(r)
	sb.Flags = readU32(r)
	reserved := make([]byte, 128)
	r.Read(reserved)
	sb.Checksum = readU32(r)

	if sb.computeChecksum() != sb.Checksum {
		return nil, cmn.NewIntegrityError("superblock checksum mismatch")
	}
	return sb, nil
}

func (sb *Superblock) computeChecksum() uint32 {
	full := sb.ToBytes()
	return cmn.CRC32C(full[:checksumOffset])
}

// UpdateChecksum recomputes the checksum after mutating other fields (e.g.
// mount count / last-mount on clean close).
func (sb *Superblock) UpdateChecksum() {
	sb.Checksum = sb.computeChecksum()
}

// Validate checks the superblock invariants named in §3.
func (sb *Superblock) Validate() error {
	if sb.Magic != Magic {
		return cmn.NewIntegrityError("invalid magic")
	}
	if sb.Version != FormatVersion {
		return cmn.NewIntegrityError("invalid version")
	}
	if sb.DataOffset+sb.DataSize > sb.DiskSize {
		return cmn.NewIntegrityError("data region exceeds disk size")
	}
	if sb.TotalBlocks*uint64(sb.BlockSize) > sb.DataSize {
		return cmn.NewIntegrityError("block count exceeds data region")
	}
	return nil
}

func writeU32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func writeU64(w *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

func readU32(r *bytes.Reader) uint32 {
	var b [4]byte
	r.Read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

func readU64(r *bytes.Reader) uint64 {
	var b [8]byte
	r.Read(b[:])
	return binary.LittleEndian.Uint64(b[:])
}
