package osd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/objectio/objectio/cmn"
	"github.com/objectio/objectio/disk"
	"github.com/objectio/objectio/meta"
	"github.com/objectio/objectio/placement"
	"github.com/objectio/objectio/rpc"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()

	store, err := meta.Open(meta.DefaultStoreConfig(filepath.Join(dir, "meta")))
	if err != nil {
		t.Fatalf("open meta store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	top := placement.NewTopology()
	policy := placement.NewPolicy(top)

	nodeID := cmn.NewNodeId()
	svc := NewService(nodeID, store, policy)

	diskPath := filepath.Join(dir, "disk0.img")
	d, err := disk.Init(diskPath, 16*1024*1024, 0)
	if err != nil {
		t.Fatalf("init disk: %v", err)
	}
	t.Cleanup(func() { d.Close(); os.Remove(diskPath) })
	svc.AttachDisk(cmn.NewDiskId(), d)

	return svc
}

func TestWriteReadShardRoundtrip(t *testing.T) {
	svc := newTestService(t)
	data := []byte("shard payload bytes")
	shardID := cmn.ShardId{ObjectId: cmn.NewObjectId(), StripeId: 0, Position: 0}

	wr, err := svc.WriteShard(context.Background(), rpc.WriteShardRequest{
		ShardID:  shardID,
		Data:     data,
		EcK:      4,
		EcM:      2,
		Checksum: rpc.Checksum{CRC32C: cmn.CRC32C(data)},
	})
	if err != nil {
		t.Fatalf("WriteShard: %v", err)
	}
	if wr.Location.BlockNum != 0 {
		t.Fatalf("expected first block allocation to be 0, got %d", wr.Location.BlockNum)
	}

	rr, err := svc.ReadShard(context.Background(), rpc.ReadShardRequest{ShardID: shardID})
	if err != nil {
		t.Fatalf("ReadShard: %v", err)
	}
	if string(rr.Data) != string(data) {
		t.Fatalf("roundtrip mismatch: got %q want %q", rr.Data, data)
	}
}

func TestWriteShardRejectsBadChecksum(t *testing.T) {
	svc := newTestService(t)
	data := []byte("payload")
	_, err := svc.WriteShard(context.Background(), rpc.WriteShardRequest{
		ShardID:  cmn.ShardId{ObjectId: cmn.NewObjectId()},
		Data:     data,
		Checksum: rpc.Checksum{CRC32C: 0xDEADBEEF},
	})
	if !cmn.IsKind(err, cmn.KindIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
}

func TestObjectMetaRoundtrip(t *testing.T) {
	svc := newTestService(t)
	om := rpc.ObjectMeta{Bucket: "b", Key: "k", Size: 42}

	if err := svc.PutObjectMeta(context.Background(), rpc.PutObjectMetaRequest{Bucket: "b", Key: "k", Object: om}); err != nil {
		t.Fatalf("PutObjectMeta: %v", err)
	}

	got, err := svc.GetObjectMeta(context.Background(), rpc.GetObjectMetaRequest{Bucket: "b", Key: "k"})
	if err != nil {
		t.Fatalf("GetObjectMeta: %v", err)
	}
	if !got.Found || got.Object.Size != 42 {
		t.Fatalf("unexpected object meta: %+v", got)
	}

	if err := svc.DeleteObjectMeta(context.Background(), rpc.DeleteObjectMetaRequest{Bucket: "b", Key: "k"}); err != nil {
		t.Fatalf("DeleteObjectMeta: %v", err)
	}
	got, err = svc.GetObjectMeta(context.Background(), rpc.GetObjectMetaRequest{Bucket: "b", Key: "k"})
	if err != nil {
		t.Fatalf("GetObjectMeta after delete: %v", err)
	}
	if got.Found {
		t.Fatalf("expected object meta to be gone after delete")
	}
}
