package block

import (
	"context"
	"sync"
	"time"

	"github.com/objectio/objectio/cmn"
	"github.com/objectio/objectio/ec"
	"github.com/objectio/objectio/rpc"
	"github.com/objectio/objectio/stats"
)

// ECIO writes and reads whole volume chunks as erasure-coded objects against
// the OSD cluster, over the same GetPlacement/WriteShard/ReadShard/
// PutObjectMeta/GetObjectMeta/DeleteObjectMeta RPC path the S3-style gateway
// uses (§4.E.4, ported from ec_io.rs). It asks one well-known "coordinator"
// OSD for placement on every call, matching ec_io.rs's single
// MetadataServiceClient channel.
type ECIO struct {
	pool            *rpc.Pool
	coordinatorID   cmn.NodeId
	coordinatorAddr string
	stats           *stats.Registry
}

func NewECIO(pool *rpc.Pool, coordinatorID cmn.NodeId, coordinatorAddr string) *ECIO {
	return &ECIO{pool: pool, coordinatorID: coordinatorID, coordinatorAddr: coordinatorAddr}
}

// SetStats attaches a counter registry; chunk reads/writes/deletes are
// observed against it when set.
func (e *ECIO) SetStats(r *stats.Registry) { e.stats = r }

func (e *ECIO) observe(op string, n int64, err error, start time.Time) {
	if e.stats != nil {
		e.stats.Observe(op, n, err, time.Since(start))
	}
}

func (e *ECIO) coordinator(ctx context.Context) (*rpc.Client, error) {
	return e.pool.GetOrConnect(ctx, e.coordinatorID, e.coordinatorAddr)
}

func (e *ECIO) getPlacement(ctx context.Context, key string, size uint64) (rpc.GetPlacementResponse, error) {
	client, err := e.coordinator(ctx)
	if err != nil {
		return rpc.GetPlacementResponse{}, err
	}
	return client.GetPlacement(ctx, rpc.GetPlacementRequest{Bucket: cmn.BlockBucket, Key: key, Size: size})
}

// splitIntoShards divides data into numShards equal-size, zero-padded
// slices.
func splitIntoShards(data []byte, numShards int) [][]byte {
	shardSize := (len(data) + numShards - 1) / numShards
	if shardSize == 0 {
		shardSize = 1
	}
	shards := make([][]byte, numShards)
	for i := 0; i < numShards; i++ {
		shard := make([]byte, shardSize)
		start := i * shardSize
		if start < len(data) {
			end := start + shardSize
			if end > len(data) {
				end = len(data)
			}
			copy(shard, data[start:end])
		}
		shards[i] = shard
	}
	return shards
}

// WriteChunk EC-encodes data and writes every shard to its placed OSD in
// parallel, then records the resulting ObjectMeta on the primary OSD.
// Returns the object key the chunk was stored under.
func (e *ECIO) WriteChunk(ctx context.Context, volumeID string, chunkID cmn.ChunkId, data []byte, backend ec.Backend) (key string, err error) {
	start := time.Now()
	defer func() { e.observe("write_chunk", int64(len(data)), err, start) }()

	objectKey := cmn.ChunkObjectKey(volumeID, chunkID)

	placement, err := e.getPlacement(ctx, objectKey, uint64(len(data)))
	if err != nil {
		return "", err
	}
	if len(placement.Nodes) == 0 {
		return "", cmn.NewCapacityError("no placement nodes returned for chunk %d of volume %s", chunkID, volumeID)
	}

	k := backend.DataShards()
	dataShards := splitIntoShards(data, k)
	allShards, err := backend.Encode(dataShards)
	if err != nil {
		return "", err
	}

	objectID := cmn.NewObjectId()
	total := len(allShards)

	type writeResult struct {
		ok bool
	}
	results := make([]writeResult, total)
	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			np := placement.Nodes[i%len(placement.Nodes)]
			client, err := e.pool.GetClientForPlacement(ctx, np)
			if err != nil {
				return
			}
			_, err = client.WriteShard(ctx, rpc.WriteShardRequest{
				ShardID:  cmn.ShardId{ObjectId: objectID, StripeId: 0, Position: uint8(i)},
				Data:     allShards[i],
				EcK:      uint8(backend.DataShards()),
				EcM:      uint8(backend.ParityShards()),
				Checksum: rpc.Checksum{CRC32C: cmn.CRC32C(allShards[i])},
			})
			results[i] = writeResult{ok: err == nil}
		}()
	}
	wg.Wait()

	successCount := 0
	for _, r := range results {
		if r.ok {
			successCount++
		}
	}
	if successCount < k {
		return "", cmn.NewIntegrityError("only %d/%d shards written for chunk %d, need %d", successCount, total, chunkID, k)
	}

	shardLocs := make([]rpc.ShardLocation, len(placement.Nodes))
	for i, n := range placement.Nodes {
		shardLocs[i] = rpc.ShardLocation{
			Position:   n.Position,
			NodeID:     n.NodeID,
			DiskID:     n.DiskID,
			Offset:     0,
			ShardType:  n.ShardType,
			LocalGroup: n.LocalGroup,
		}
	}

	now := cmn.NowUnix()
	objectMeta := rpc.ObjectMeta{
		Bucket:         cmn.BlockBucket,
		Key:            objectKey,
		ObjectID:       objectID,
		Size:           uint64(len(data)),
		ContentType:    "application/octet-stream",
		CreatedAt:      now,
		ModifiedAt:     now,
		UserMetadata:   map[string]string{},
		IsDeleteMarker: false,
		Stripes: []rpc.StripeMeta{{
			StripeID: 0,
			EcK:      uint8(backend.DataShards()),
			EcM:      uint8(backend.ParityShards()),
			Shards:   shardLocs,
			EcType:   0,
			DataSize: uint64(len(data)),
			ObjectID: objectID,
		}},
	}

	primary := placement.Nodes[0]
	primaryClient, err := e.pool.GetClientForPlacement(ctx, primary)
	if err != nil {
		return "", err
	}
	if err := primaryClient.PutObjectMeta(ctx, rpc.PutObjectMetaRequest{
		Bucket: cmn.BlockBucket, Key: objectKey, Object: objectMeta,
	}); err != nil {
		return "", err
	}

	return objectKey, nil
}

// ReadChunk reconstructs a chunk previously stored under objectKey by
// WriteChunk.
func (e *ECIO) ReadChunk(ctx context.Context, objectKey string, backend ec.Backend) (data []byte, err error) {
	start := time.Now()
	defer func() { e.observe("read_chunk", int64(len(data)), err, start) }()

	placement, err := e.getPlacement(ctx, objectKey, 0)
	if err != nil {
		return nil, err
	}
	if len(placement.Nodes) == 0 {
		return nil, cmn.NewNotFoundError("no placement nodes for %s", objectKey)
	}

	addrByPosition := make(map[uint8]rpc.NodePlacement, len(placement.Nodes))
	for _, n := range placement.Nodes {
		addrByPosition[n.Position] = n
	}

	primary := placement.Nodes[0]
	primaryClient, err := e.pool.GetClientForPlacement(ctx, primary)
	if err != nil {
		return nil, err
	}
	metaResp, err := primaryClient.GetObjectMeta(ctx, rpc.GetObjectMetaRequest{Bucket: cmn.BlockBucket, Key: objectKey})
	if err != nil {
		return nil, err
	}
	if !metaResp.Found {
		return nil, cmn.NewNotFoundError("object meta not found for %s", objectKey)
	}
	if len(metaResp.Object.Stripes) == 0 {
		return nil, cmn.NewIntegrityError("no stripes in object meta for %s", objectKey)
	}
	stripe := metaResp.Object.Stripes[0]

	k := int(stripe.EcK)
	total := int(stripe.EcK) + int(stripe.EcM)
	shards := make([][]byte, total)

	readCount := 0
	for _, loc := range stripe.Shards {
		if readCount >= k {
			break
		}
		pos := int(loc.Position)
		if pos >= total {
			continue
		}
		np, ok := addrByPosition[loc.Position]
		if !ok {
			continue
		}
		client, err := e.pool.GetClientForPlacement(ctx, np)
		if err != nil {
			continue
		}
		resp, err := client.ReadShard(ctx, rpc.ReadShardRequest{ShardID: cmn.ShardId{
			ObjectId: stripe.ObjectID, StripeId: 0, Position: loc.Position,
		}})
		if err != nil {
			continue
		}
		shards[pos] = resp.Data
		readCount++
	}
	if readCount < k {
		return nil, cmn.NewIntegrityError("insufficient shards for %s: have %d, need %d", objectKey, readCount, k)
	}

	missing := make([]int, 0)
	for i := 0; i < k; i++ {
		if shards[i] == nil {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		recovered, err := backend.Decode(shards, missing)
		if err != nil {
			return nil, err
		}
		for j, idx := range missing {
			shards[idx] = recovered[j]
		}
	}

	out := make([]byte, 0, stripe.DataSize)
	for i := 0; i < k && uint64(len(out)) < stripe.DataSize; i++ {
		out = append(out, shards[i]...)
	}
	if uint64(len(out)) > stripe.DataSize {
		out = out[:stripe.DataSize]
	}
	return out, nil
}

// DeleteChunk removes a chunk's object metadata (the shard data itself is
// reclaimed by the OSDs' own garbage collection, out of scope here).
func (e *ECIO) DeleteChunk(ctx context.Context, objectKey string) (err error) {
	start := time.Now()
	defer func() { e.observe("delete_chunk", 0, err, start) }()

	placement, err := e.getPlacement(ctx, objectKey, 0)
	if err != nil {
		return err
	}
	if len(placement.Nodes) == 0 {
		return nil
	}
	primary := placement.Nodes[0]
	client, err := e.pool.GetClientForPlacement(ctx, primary)
	if err != nil {
		return err
	}
	return client.DeleteObjectMeta(ctx, rpc.DeleteObjectMetaRequest{Bucket: cmn.BlockBucket, Key: objectKey})
}
