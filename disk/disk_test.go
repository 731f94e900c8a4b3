package disk

import (
	"path/filepath"
	"testing"

	"github.com/objectio/objectio/cmn"
)

func TestDiskInitOpenWriteReadBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk0.img")

	d, err := Init(path, 2<<30, DefaultBlockSize)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	oid := cmn.NewObjectId()
	payload := bytes_repeat(0xCD, 4096)
	if err := d.WriteBlock(0, oid, 0, payload); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	header, got, err := reopened.ReadBlock(0)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if header.ObjectID != oid {
		t.Errorf("object id mismatch")
	}
	if !bytesEqual(got, payload) {
		t.Errorf("payload mismatch")
	}
	if !reopened.VerifyBlock(0) {
		t.Errorf("VerifyBlock should succeed on untouched block")
	}
}

func TestDiskReadBlockDetectsBitFlip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk1.img")
	d, err := Init(path, 2<<30, DefaultBlockSize)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer d.Close()

	payload := bytes_repeat(0xAB, 100)
	if err := d.WriteBlock(3, cmn.NewObjectId(), 0, payload); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	// Flip a byte inside the block directly on disk.
	offset := d.blockOffset(3) + HeaderSize + 10
	one := NewAlignedBuffer(Alignment)
	if _, err := d.raw.ReadAt(alignDown(offset), one.Bytes()); err != nil {
		t.Fatalf("raw read: %v", err)
	}
	one.Bytes()[offset-alignDown(offset)] ^= 0xFF
	if _, err := d.raw.WriteAt(alignDown(offset), one.Bytes()); err != nil {
		t.Fatalf("raw write: %v", err)
	}

	if d.VerifyBlock(3) {
		t.Error("VerifyBlock should fail after corrupting payload byte")
	}
	if _, _, err := d.ReadBlock(3); err == nil || !cmn.IsKind(err, cmn.KindIntegrity) {
		t.Errorf("expected integrity error, got %v", err)
	}
}

func TestDiskWriteBlockRejectsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk2.img")
	d, err := Init(path, 2<<30, DefaultBlockSize)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer d.Close()

	err = d.WriteBlock(d.sb.TotalBlocks+1, cmn.NewObjectId(), 0, []byte("x"))
	if err == nil || !cmn.IsKind(err, cmn.KindCapacity) {
		t.Errorf("expected capacity error, got %v", err)
	}
}

func alignDown(v uint64) uint64 { return (v / Alignment) * Alignment }

func bytes_repeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
