package disk

import (
	"bytes"
	"testing"

	"github.com/objectio/objectio/cmn"
)

func TestBlockHeaderRoundtrip(t *testing.T) {
	oid := cmn.NewObjectId()
	h := NewBlockHeader(42, oid, 1024, 4096)
	buf := h.ToBytes()
	got, err := BlockHeaderFromBytes(buf[:])
	if err != nil {
		t.Fatalf("BlockHeaderFromBytes: %v", err)
	}
	if got.Sequence != h.Sequence || got.ObjectID != h.ObjectID || got.DataSize != h.DataSize {
		t.Errorf("roundtrip mismatch: got %+v want %+v", got, h)
	}
}

func TestBlockHeaderDetectsCorruption(t *testing.T) {
	h := NewBlockHeader(1, cmn.NewObjectId(), 0, 10)
	buf := h.ToBytes()
	buf[5] ^= 0xFF
	if _, err := BlockHeaderFromBytes(buf[:]); err == nil {
		t.Error("expected checksum mismatch")
	}
}

func TestBlockFooterRoundtrip(t *testing.T) {
	f := NewBlockFooter(0x12345678, 42)
	buf := f.ToBytes()
	got, err := BlockFooterFromBytes(buf[:])
	if err != nil {
		t.Fatalf("BlockFooterFromBytes: %v", err)
	}
	if got.DataChecksum != f.DataChecksum || got.Sequence != f.Sequence {
		t.Errorf("roundtrip mismatch: got %+v want %+v", got, f)
	}
}

func TestAlignedBufferCopyFromPads(t *testing.T) {
	buf := NewAlignedBuffer(Alignment)
	buf.CopyFrom([]byte("hello"))
	if !bytes.Equal(buf.Data(5), []byte("hello")) {
		t.Errorf("expected prefix 'hello', got %q", buf.Data(5))
	}
	rest := buf.Bytes()[5:]
	for _, b := range rest {
		if b != 0 {
			t.Fatalf("expected zero padding after copied data")
		}
	}
	if uintptrOf(buf.Bytes())%Alignment != 0 {
		t.Errorf("aligned buffer not aligned to %d", Alignment)
	}
}
