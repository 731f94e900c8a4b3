package placement

import (
	"testing"

	"github.com/objectio/objectio/cmn"
)

func TestPolicyPlaceObjectErasureCoding(t *testing.T) {
	top := testTopology()
	policy := NewPolicy(top)

	result, err := policy.PlaceObject(cmn.NewObjectId(), "")
	if err != nil {
		t.Fatalf("PlaceObject: %v", err)
	}
	if len(result.Shards) != 6 {
		t.Fatalf("expected 6 shards (4 data + 2 parity), got %d", len(result.Shards))
	}
	dataCount := 0
	for _, s := range result.Shards {
		if s.ShardType == cmn.ShardData {
			dataCount++
		}
	}
	if dataCount != 4 {
		t.Errorf("expected 4 data shards, got %d", dataCount)
	}
}

func TestPolicyPlaceObjectInsufficientNodes(t *testing.T) {
	top := NewTopology()
	top.UpsertNode(NodeInfo{ID: cmn.NewNodeId(), Status: NodeActive, Weight: 1.0})
	policy := NewPolicy(top)

	if _, err := policy.PlaceObject(cmn.NewObjectId(), ""); !cmn.IsKind(err, cmn.KindCapacity) {
		t.Fatalf("expected capacity error with only 1 node for a 6-shard class, got %v", err)
	}
}

func TestPolicyPlaceShardExcludesNodes(t *testing.T) {
	top := testTopology()
	policy := NewPolicy(top)
	id := cmn.NewObjectId()

	result, err := policy.PlaceObject(id, "")
	if err != nil {
		t.Fatalf("PlaceObject: %v", err)
	}
	exclude := make([]cmn.NodeId, 0, len(result.Shards))
	for _, s := range result.Shards {
		exclude = append(exclude, s.NodeID)
	}
	// Every node of testTopology now holds a shard; add a spare for the
	// repair to land on.
	top.UpsertNode(NodeInfo{
		ID:            cmn.NewNodeId(),
		FailureDomain: FailureDomainInfo{Region: "us-east", Datacenter: "dc1", Rack: rackName(4)},
		Status:        NodeActive,
		Weight:        1.0,
	})

	placement, err := policy.PlaceShard(id, 0, exclude, DomainRack, cmn.ShardData, cmn.NoLocalGroup)
	if err != nil {
		t.Fatalf("PlaceShard: %v", err)
	}
	for _, excluded := range exclude {
		if placement.NodeID == excluded {
			t.Fatalf("PlaceShard returned an excluded node")
		}
	}
}

func TestPolicyUnknownStorageClass(t *testing.T) {
	top := testTopology()
	policy := NewPolicy(top)
	if _, err := policy.PlaceObject(cmn.NewObjectId(), "nonexistent"); !cmn.IsKind(err, cmn.KindConfig) {
		t.Fatalf("expected config error for unknown class, got %v", err)
	}
}
