package block

import "testing"

func TestChunkMapperDefault(t *testing.T) {
	m := DefaultChunkMapper()
	if m.ChunkSize() != DefaultChunkSize {
		t.Fatalf("chunk size = %d, want %d", m.ChunkSize(), DefaultChunkSize)
	}
	if m.LBAsPerChunk() != 8192 {
		t.Fatalf("lbas per chunk = %d, want 8192", m.LBAsPerChunk())
	}
}

func TestByteOffsetToChunkID(t *testing.T) {
	m := NewChunkMapper(4 * 1024 * 1024)
	cases := map[uint64]uint64{
		0:                 0,
		4*1024*1024 - 1:   0,
		4 * 1024 * 1024:   1,
		8 * 1024 * 1024:   2,
	}
	for offset, want := range cases {
		if got := uint64(m.ByteOffsetToChunkID(offset)); got != want {
			t.Fatalf("ByteOffsetToChunkID(%d) = %d, want %d", offset, got, want)
		}
	}
}

func TestByteRangeToChunksSpanning(t *testing.T) {
	m := NewChunkMapper(4 * 1024 * 1024)
	ranges := m.ByteRangeToChunks(2*1024*1024, 8*1024*1024)
	if len(ranges) != 3 {
		t.Fatalf("expected 3 ranges, got %d", len(ranges))
	}
	if ranges[0].ChunkID != 0 || ranges[0].OffsetInChunk != 2*1024*1024 || ranges[0].Length != 2*1024*1024 {
		t.Fatalf("unexpected first range: %+v", ranges[0])
	}
	if ranges[1].ChunkID != 1 || ranges[1].OffsetInChunk != 0 || ranges[1].Length != 4*1024*1024 {
		t.Fatalf("unexpected second range: %+v", ranges[1])
	}
	if ranges[2].ChunkID != 2 || ranges[2].OffsetInChunk != 0 || ranges[2].Length != 2*1024*1024 {
		t.Fatalf("unexpected third range: %+v", ranges[2])
	}
}

func TestByteRangeToChunksEmpty(t *testing.T) {
	m := DefaultChunkMapper()
	if ranges := m.ByteRangeToChunks(1000, 0); len(ranges) != 0 {
		t.Fatalf("expected no ranges for zero length, got %d", len(ranges))
	}
}

func TestChunksForSizeRoundsUp(t *testing.T) {
	m := NewChunkMapper(4 * 1024 * 1024)
	if got := m.ChunksForSize(1); got != 1 {
		t.Fatalf("ChunksForSize(1) = %d, want 1", got)
	}
	if got := m.ChunksForSize(4*1024*1024 + 1); got != 2 {
		t.Fatalf("ChunksForSize(4MiB+1) = %d, want 2", got)
	}
}
