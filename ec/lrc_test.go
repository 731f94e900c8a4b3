package ec

import (
	"bytes"
	"testing"
)

func newTestLRC(t *testing.T) LrcBackend {
	t.Helper()
	cfg, err := NewLrcConfig(6, 2, 2)
	if err != nil {
		t.Fatalf("NewLrcConfig: %v", err)
	}
	b, err := NewLrcBackend(cfg)
	if err != nil {
		t.Fatalf("NewLrcBackend: %v", err)
	}
	return b
}

func TestLrcConfigRejectsUnevenGroups(t *testing.T) {
	if _, err := NewLrcConfig(7, 2, 2); err == nil {
		t.Fatal("expected config error for 7 data shards / 2 groups")
	}
}

func TestLrcEncodeLayout(t *testing.T) {
	b := newTestLRC(t)
	data := makeShards(6, 256, func(i int) byte { return byte(i + 1) })

	encoded, err := b.EncodeLRC(data)
	if err != nil {
		t.Fatalf("EncodeLRC: %v", err)
	}
	if len(encoded.DataShards) != 6 {
		t.Errorf("expected 6 data shards, got %d", len(encoded.DataShards))
	}
	if len(encoded.LocalParityShards) != 2 {
		t.Errorf("expected 2 local parity shards, got %d", len(encoded.LocalParityShards))
	}
	if len(encoded.GlobalParityShards) != 2 {
		t.Errorf("expected 2 global parity shards, got %d", len(encoded.GlobalParityShards))
	}
	if len(encoded.AllShards()) != 10 {
		t.Errorf("expected 10 total shards, got %d", len(encoded.AllShards()))
	}

	ok, err := b.Verify(encoded.AllShards())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("expected freshly encoded LRC shards to verify")
	}
}

func TestLrcLocalRepair(t *testing.T) {
	b := newTestLRC(t)
	data := makeShards(6, 256, func(i int) byte { return byte(i + 1) })
	encoded, err := b.EncodeLRC(data)
	if err != nil {
		t.Fatalf("EncodeLRC: %v", err)
	}
	all := encoded.AllShards()

	// Shard 0 is in group 0 (shards 0,1,2 + local parity at index 6).
	lost := all[0]
	available := make([][]byte, len(all))
	copy(available, all)
	available[0] = nil

	if !b.CanRecoverLocally(boolAvailable(available), 0) {
		t.Fatal("expected local recovery to be possible with only shard 0 missing")
	}
	recovered, ok, err := b.DecodeLocal(available, 0)
	if err != nil {
		t.Fatalf("DecodeLocal: %v", err)
	}
	if !ok {
		t.Fatal("expected DecodeLocal to succeed")
	}
	if !bytes.Equal(recovered, lost) {
		t.Errorf("recovered shard mismatch")
	}
}

func TestLrcFallsBackToGlobalWhenGroupHasMultipleMissing(t *testing.T) {
	b := newTestLRC(t)
	data := makeShards(6, 256, func(i int) byte { return byte(i + 1) })
	encoded, err := b.EncodeLRC(data)
	if err != nil {
		t.Fatalf("EncodeLRC: %v", err)
	}
	all := encoded.AllShards()

	// Knock out two shards from the same group (0 and 1) plus the group's
	// local parity (index 6) so local repair for either is impossible.
	available := make([][]byte, len(all))
	copy(available, all)
	lost0, lost1 := all[0], all[1]
	available[0] = nil
	available[1] = nil
	available[6] = nil

	recovered, err := b.Decode(available, []int{0, 1})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(recovered[0], lost0) || !bytes.Equal(recovered[1], lost1) {
		t.Errorf("global-path recovery mismatch")
	}
}

func boolAvailable(shards [][]byte) []bool {
	out := make([]bool, len(shards))
	for i, s := range shards {
		out[i] = s != nil
	}
	return out
}
