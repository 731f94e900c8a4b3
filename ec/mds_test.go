package ec

import (
	"bytes"
	"testing"
)

func makeShards(k int, shardSize int, fill func(i int) byte) [][]byte {
	shards := make([][]byte, k)
	for i := range shards {
		shards[i] = bytes.Repeat([]byte{fill(i)}, shardSize)
	}
	return shards
}

func TestMDSEncodeDecodeRoundtrip(t *testing.T) {
	b, err := NewMDSBackend(4, 2)
	if err != nil {
		t.Fatalf("NewMDSBackend: %v", err)
	}
	data := makeShards(4, 1024, func(i int) byte { return byte('A' + i) })

	all, err := b.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("expected 6 shards, got %d", len(all))
	}

	// Drop two shards (within tolerance for m=2) and reconstruct.
	lost := [][]byte{all[0], all[1]}
	missing := []int{0, 1}
	available := make([][]byte, len(all))
	copy(available, all)
	available[0] = nil
	available[1] = nil

	recovered, err := b.Decode(available, missing)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i, r := range recovered {
		if !bytes.Equal(r, lost[i]) {
			t.Errorf("shard %d mismatch: got %v want %v", missing[i], r[:4], lost[i][:4])
		}
	}
}

func TestMDSDecodeFailsBelowThreshold(t *testing.T) {
	b, _ := NewMDSBackend(4, 2)
	data := makeShards(4, 64, func(i int) byte { return byte(i) })
	all, _ := b.Encode(data)

	available := make([][]byte, len(all))
	// Only 3 of 6 shards present, below k=4.
	available[0] = all[0]
	available[1] = all[1]
	available[2] = all[2]

	if _, err := b.Decode(available, []int{3}); err == nil {
		t.Fatal("expected error decoding with insufficient shards")
	}
}

func TestMDSVerify(t *testing.T) {
	b, _ := NewMDSBackend(3, 2)
	data := makeShards(3, 128, func(i int) byte { return byte(i + 1) })
	all, err := b.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	ok, err := b.Verify(all)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("expected verify to pass on freshly encoded shards")
	}

	all[4][0] ^= 0xFF
	ok, err = b.Verify(all)
	if err != nil {
		t.Fatalf("Verify after corruption: %v", err)
	}
	if ok {
		t.Fatal("expected verify to fail after corrupting a parity shard")
	}
}
