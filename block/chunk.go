// Package block implements the block-storage gateway path (§4.E): volumes
// backed by fixed-size chunks, each chunk stored as an erasure-coded object
// via the OSD pool, with a write-back cache buffering LBA-granular I/O
// between an NBD frontend and the chunked object backend.
package block

import "github.com/objectio/objectio/cmn"

// LBASize is the logical block size NBD clients address in (chunk.rs LBA_SIZE).
const LBASize = 512

// DefaultChunkSize is the default volume chunk size: 4 MiB.
const DefaultChunkSize = 4 * 1024 * 1024

// ChunkRange is the intersection of a byte range with one chunk.
type ChunkRange struct {
	ChunkID       cmn.ChunkId
	OffsetInChunk uint64
	Length        uint64
}

// ChunkMapper maps a volume's logical byte/LBA space onto fixed-size chunks,
// each stored as one object under the reserved block bucket (§3, §4.E.1).
type ChunkMapper struct {
	chunkSize uint64
}

// NewChunkMapper builds a mapper for chunkSize, which must be a positive
// power of two.
func NewChunkMapper(chunkSize uint64) *ChunkMapper {
	if chunkSize == 0 || chunkSize&(chunkSize-1) != 0 {
		panic("block: chunk size must be a positive power of two")
	}
	return &ChunkMapper{chunkSize: chunkSize}
}

// DefaultChunkMapper builds a mapper using DefaultChunkSize.
func DefaultChunkMapper() *ChunkMapper { return NewChunkMapper(DefaultChunkSize) }

func (m *ChunkMapper) ChunkSize() uint64 { return m.chunkSize }

func (m *ChunkMapper) LBAsPerChunk() uint64 { return m.chunkSize / LBASize }

func (m *ChunkMapper) ByteOffsetToChunkID(byteOffset uint64) cmn.ChunkId {
	return cmn.ChunkId(byteOffset / m.chunkSize)
}

func (m *ChunkMapper) LBAToChunkID(lba uint64) cmn.ChunkId {
	return m.ByteOffsetToChunkID(lba * LBASize)
}

// ByteRangeToChunks splits [startByte, startByte+length) into the ordered
// per-chunk ranges that cover it.
func (m *ChunkMapper) ByteRangeToChunks(startByte, length uint64) []ChunkRange {
	if length == 0 {
		return nil
	}
	endByte := startByte + length
	startChunk := startByte / m.chunkSize
	endChunk := (endByte - 1) / m.chunkSize

	ranges := make([]ChunkRange, 0, endChunk-startChunk+1)
	for chunkID := startChunk; chunkID <= endChunk; chunkID++ {
		chunkStart := chunkID * m.chunkSize
		chunkEnd := chunkStart + m.chunkSize

		rangeStart := max64(startByte, chunkStart)
		rangeEnd := min64(endByte, chunkEnd)

		ranges = append(ranges, ChunkRange{
			ChunkID:       cmn.ChunkId(chunkID),
			OffsetInChunk: rangeStart - chunkStart,
			Length:        rangeEnd - rangeStart,
		})
	}
	return ranges
}

func (m *ChunkMapper) LBARangeToChunks(startLBA, lbaCount uint64) []ChunkRange {
	return m.ByteRangeToChunks(startLBA*LBASize, lbaCount*LBASize)
}

// ChunksForSize returns how many chunks a volume of sizeBytes needs.
func (m *ChunkMapper) ChunksForSize(sizeBytes uint64) uint64 {
	return (sizeBytes + m.chunkSize - 1) / m.chunkSize
}

// AlignedSize rounds sizeBytes up to a whole number of chunks.
func (m *ChunkMapper) AlignedSize(sizeBytes uint64) uint64 {
	return m.ChunksForSize(sizeBytes) * m.chunkSize
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
