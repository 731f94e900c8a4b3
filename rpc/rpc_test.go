package rpc

import (
	"context"
	"net"
	"testing"

	"github.com/objectio/objectio/cmn"
)

type stubHandler struct{}

func (stubHandler) GetPlacement(_ context.Context, req GetPlacementRequest) (GetPlacementResponse, error) {
	return GetPlacementResponse{Nodes: []NodePlacement{{Position: 0, NodeAddress: "stub"}}}, nil
}

func (stubHandler) WriteShard(_ context.Context, req WriteShardRequest) (WriteShardResponse, error) {
	return WriteShardResponse{Location: BlockLocation{BlockNum: 42}}, nil
}

func (stubHandler) ReadShard(_ context.Context, req ReadShardRequest) (ReadShardResponse, error) {
	if req.ShardID.Position == 255 {
		return ReadShardResponse{}, cmn.NewNotFoundError("shard not found")
	}
	return ReadShardResponse{Data: []byte("hello")}, nil
}

func (stubHandler) PutObjectMeta(_ context.Context, req PutObjectMetaRequest) error { return nil }

func (stubHandler) GetObjectMeta(_ context.Context, req GetObjectMetaRequest) (GetObjectMetaResponse, error) {
	return GetObjectMetaResponse{Found: true, Object: ObjectMeta{Bucket: req.Bucket, Key: req.Key}}, nil
}

func (stubHandler) DeleteObjectMeta(_ context.Context, req DeleteObjectMetaRequest) error { return nil }

func startStubServer(t *testing.T) net.Addr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go Serve(ln, stubHandler{})
	t.Cleanup(func() { ln.Close() })
	return ln.Addr()
}

func TestClientRoundTrip(t *testing.T) {
	addr := startStubServer(t)
	pool := NewPool()
	defer pool.Close()

	client, err := pool.GetOrConnect(context.Background(), cmn.NewNodeId(), addr.String())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	placement, err := client.GetPlacement(context.Background(), GetPlacementRequest{Bucket: "b", Key: "k"})
	if err != nil {
		t.Fatalf("GetPlacement: %v", err)
	}
	if len(placement.Nodes) != 1 || placement.Nodes[0].NodeAddress != "stub" {
		t.Fatalf("unexpected placement: %+v", placement)
	}

	wr, err := client.WriteShard(context.Background(), WriteShardRequest{Data: []byte("x")})
	if err != nil {
		t.Fatalf("WriteShard: %v", err)
	}
	if wr.Location.BlockNum != 42 {
		t.Fatalf("unexpected block num: %d", wr.Location.BlockNum)
	}

	rr, err := client.ReadShard(context.Background(), ReadShardRequest{})
	if err != nil {
		t.Fatalf("ReadShard: %v", err)
	}
	if string(rr.Data) != "hello" {
		t.Fatalf("unexpected data: %q", rr.Data)
	}
}

func TestClientReceivesTypedError(t *testing.T) {
	addr := startStubServer(t)
	pool := NewPool()
	defer pool.Close()

	client, err := pool.GetOrConnect(context.Background(), cmn.NewNodeId(), addr.String())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	_, err = client.ReadShard(context.Background(), ReadShardRequest{ShardID: cmn.ShardId{Position: 255}})
	if err == nil {
		t.Fatal("expected error for missing shard")
	}
}

func TestPoolDedupesByAddress(t *testing.T) {
	addr := startStubServer(t)
	pool := NewPool()
	defer pool.Close()

	n1, n2 := cmn.NewNodeId(), cmn.NewNodeId()
	c1, err := pool.GetOrConnect(context.Background(), n1, addr.String())
	if err != nil {
		t.Fatalf("connect 1: %v", err)
	}
	c2, err := pool.GetOrConnect(context.Background(), n2, addr.String())
	if err != nil {
		t.Fatalf("connect 2: %v", err)
	}
	if c1 != c2 {
		t.Fatalf("expected same underlying client for same address, got distinct connections")
	}
}
