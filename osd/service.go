// Package osd implements the OSD-side handler for the inter-node protocol
// (§6): placement resolution, shard I/O against local raw disks, and the
// primary-OSD object-metadata namespace.
package osd

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	jsoniter "github.com/json-iterator/go"
	"github.com/objectio/objectio/cmn"
	"github.com/objectio/objectio/disk"
	"github.com/objectio/objectio/meta"
	"github.com/objectio/objectio/placement"
	"github.com/objectio/objectio/rpc"
	"github.com/objectio/objectio/stats"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Service is one OSD node's RPC handler: it owns a set of local disks, the
// node's metadata store, and a reference to the cluster placement policy
// (kept current by whatever topology-gossip mechanism the deployment uses;
// this package only consumes it).
type Service struct {
	nodeID cmn.NodeId

	mu      sync.RWMutex
	disks   map[cmn.DiskId]*disk.Disk
	diskIDs []cmn.DiskId
	nextIdx uint64

	meta   *meta.Store
	policy *placement.Policy
	stats  *stats.Registry
}

func NewService(nodeID cmn.NodeId, metaStore *meta.Store, policy *placement.Policy) *Service {
	return &Service{
		nodeID: nodeID,
		disks:  make(map[cmn.DiskId]*disk.Disk),
		meta:   metaStore,
		policy: policy,
	}
}

// SetStats attaches a counter registry; shard reads/writes are observed
// against it when set. Nil by default, so instrumentation is opt-in.
func (s *Service) SetStats(r *stats.Registry) { s.stats = r }

func (s *Service) observe(op string, n int64, err error, start time.Time) {
	if s.stats != nil {
		s.stats.Observe(op, n, err, time.Since(start))
	}
}

// AttachDisk registers a local disk handle under id, making it eligible to
// receive shards.
func (s *Service) AttachDisk(id cmn.DiskId, d *disk.Disk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disks[id] = d
	s.diskIDs = append(s.diskIDs, id)
}

func (s *Service) pickDisk() (cmn.DiskId, *disk.Disk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.diskIDs) == 0 {
		return cmn.DiskId{}, nil, cmn.NewCapacityError("osd has no attached disks")
	}
	id := s.diskIDs[s.nextIdx%uint64(len(s.diskIDs))]
	s.nextIdx++
	return id, s.disks[id], nil
}

func (s *Service) diskByID(id cmn.DiskId) (*disk.Disk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.disks[id]
	if !ok {
		return nil, cmn.NewNotFoundError("no local disk %s", id)
	}
	return d, nil
}

// GetPlacement resolves node placement for a fresh write via the shared
// placement.Policy (§6 GetPlacement).
func (s *Service) GetPlacement(_ context.Context, req rpc.GetPlacementRequest) (rpc.GetPlacementResponse, error) {
	result, err := s.policy.PlaceObject(cmn.NewObjectId(), req.StorageClass)
	if err != nil {
		return rpc.GetPlacementResponse{}, err
	}

	nodes := make([]rpc.NodePlacement, 0, len(result.Shards))
	for _, shard := range result.Shards {
		node, ok := s.policy.Topology().GetNode(shard.NodeID)
		address := ""
		if ok {
			address = node.Address
		}
		var diskID cmn.DiskId
		if shard.DiskID != nil {
			diskID = *shard.DiskID
		}
		nodes = append(nodes, rpc.NodePlacement{
			Position:    shard.Position,
			NodeID:      shard.NodeID,
			NodeAddress: address,
			DiskID:      diskID,
			ShardType:   shard.ShardType,
			LocalGroup:  shard.LocalGroup,
		})
	}
	return rpc.GetPlacementResponse{Nodes: nodes}, nil
}

// WriteShard picks a local disk round-robin, writes the shard payload as
// one raw block, and records its ShardMeta (§4.E.4, §3 "block").
func (s *Service) WriteShard(_ context.Context, req rpc.WriteShardRequest) (resp rpc.WriteShardResponse, err error) {
	start := time.Now()
	defer func() { s.observe("write_shard", int64(len(req.Data)), err, start) }()

	if cmn.CRC32C(req.Data) != req.Checksum.CRC32C {
		return rpc.WriteShardResponse{}, cmn.NewIntegrityError("shard checksum mismatch for %s", req.ShardID)
	}

	diskID, d, err := s.pickDisk()
	if err != nil {
		return rpc.WriteShardResponse{}, err
	}

	blockNum, err := s.nextBlockNum(diskID)
	if err != nil {
		return rpc.WriteShardResponse{}, err
	}

	if err := d.WriteBlock(blockNum, req.ShardID.ObjectId, 0, req.Data); err != nil {
		return rpc.WriteShardResponse{}, cmn.WrapIntegrityError(err, "write shard block")
	}

	sm := meta.ShardMeta{
		ObjectID:  req.ShardID.ObjectId,
		StripeID:  req.ShardID.StripeId,
		Position:  req.ShardID.Position,
		DiskID:    diskID,
		BlockNum:  blockNum,
		Size:      uint64(len(req.Data)),
		Checksum:  req.Checksum.CRC32C,
		CreatedAt: cmn.NowUnix(),
	}
	value, err := json.Marshal(sm)
	if err != nil {
		return rpc.WriteShardResponse{}, cmn.NewConfigError("marshal shard meta: %v", err)
	}
	if err := s.meta.Put(sm.Key(), value); err != nil {
		return rpc.WriteShardResponse{}, err
	}

	return rpc.WriteShardResponse{Location: rpc.BlockLocation{DiskID: diskID, BlockNum: blockNum}}, nil
}

// nextBlockNum returns one past the highest block number that this OSD's
// shard records hold for diskID, or 0 when there is none; lower block
// numbers freed earlier are not reused (§4.E.4: allocation is local to each
// disk, and this store holds every disk's shard metadata together).
func (s *Service) nextBlockNum(diskID cmn.DiskId) (uint64, error) {
	entries := s.meta.PrefixScan([]byte{'s'})
	var maxBlock uint64
	var any bool
	for _, kv := range entries {
		var sm meta.ShardMeta
		if err := json.Unmarshal(kv.Value, &sm); err != nil {
			continue
		}
		if sm.DiskID != diskID {
			continue
		}
		if !any || sm.BlockNum >= maxBlock {
			maxBlock = sm.BlockNum + 1
			any = true
		}
	}
	return maxBlock, nil
}

// ReadShard reads the shard's ShardMeta then its backing block, returning
// the full payload (offset/length == 0 means "whole shard", matching
// ec_io.rs's read_shard_from_osd call convention).
func (s *Service) ReadShard(_ context.Context, req rpc.ReadShardRequest) (resp rpc.ReadShardResponse, err error) {
	start := time.Now()
	defer func() { s.observe("read_shard", int64(len(resp.Data)), err, start) }()

	raw, err := s.meta.Get(meta.ShardKey(req.ShardID.ObjectId, req.ShardID.Position))
	if err != nil {
		return rpc.ReadShardResponse{}, err
	}
	var sm meta.ShardMeta
	if err := json.Unmarshal(raw, &sm); err != nil {
		return rpc.ReadShardResponse{}, cmn.NewIntegrityError("corrupt shard meta for %s: %v", req.ShardID, err)
	}

	d, derr := s.diskByID(sm.DiskID)
	if derr != nil {
		return rpc.ReadShardResponse{}, derr
	}
	_, payload, rerr := d.ReadBlock(sm.BlockNum)
	if rerr != nil {
		return rpc.ReadShardResponse{}, rerr
	}

	if req.Length == 0 {
		return rpc.ReadShardResponse{Data: payload}, nil
	}
	end := req.Offset + req.Length
	if end > uint64(len(payload)) {
		return rpc.ReadShardResponse{}, cmn.NewConfigError(
			"read range [%d,%d) exceeds shard size %d", req.Offset, end, len(payload))
	}
	return rpc.ReadShardResponse{Data: payload[req.Offset:end]}, nil
}

// PutObjectMeta/GetObjectMeta/DeleteObjectMeta implement the primary-OSD
// object-metadata namespace (§3 ObjectMeta, §6).
func (s *Service) PutObjectMeta(_ context.Context, req rpc.PutObjectMetaRequest) error {
	value, err := json.Marshal(req.Object)
	if err != nil {
		return cmn.NewConfigError("marshal object meta: %v", err)
	}
	return s.meta.Put(meta.ObjectMetaKey(req.Bucket, req.Key), value)
}

func (s *Service) GetObjectMeta(_ context.Context, req rpc.GetObjectMetaRequest) (rpc.GetObjectMetaResponse, error) {
	raw, err := s.meta.Get(meta.ObjectMetaKey(req.Bucket, req.Key))
	if cmn.IsKind(err, cmn.KindNotFound) {
		return rpc.GetObjectMetaResponse{Found: false}, nil
	}
	if err != nil {
		return rpc.GetObjectMetaResponse{}, err
	}
	var om rpc.ObjectMeta
	if err := json.Unmarshal(raw, &om); err != nil {
		return rpc.GetObjectMetaResponse{}, cmn.NewIntegrityError("corrupt object meta %s/%s: %v", req.Bucket, req.Key, err)
	}
	return rpc.GetObjectMetaResponse{Found: true, Object: om}, nil
}

func (s *Service) DeleteObjectMeta(_ context.Context, req rpc.DeleteObjectMetaRequest) error {
	if err := s.meta.Delete(meta.ObjectMetaKey(req.Bucket, req.Key)); err != nil {
		glog.Warningf("osd: delete object meta %s/%s: %v", req.Bucket, req.Key, err)
		return err
	}
	return nil
}
