package placement

import (
	"testing"

	"github.com/objectio/objectio/cmn"
)

func testTopology() *Topology {
	top := NewTopology()
	for rack := 1; rack <= 3; rack++ {
		for node := 1; node <= 2; node++ {
			top.UpsertNode(NodeInfo{
				ID:            cmn.NewNodeId(),
				Name:          "node",
				FailureDomain: FailureDomainInfo{Region: "us-east", Datacenter: "dc1", Rack: rackName(rack)},
				Status:        NodeActive,
				Weight:        1.0,
			})
		}
	}
	return top
}

func rackName(n int) string {
	return "rack" + string(rune('0'+n))
}

func TestSelectNodesRackDiversity(t *testing.T) {
	top := testTopology()
	crush := NewCrushMap(top)

	id := cmn.NewObjectId()
	nodes := crush.SelectNodes(id, 3, DomainRack)
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}
	seen := make(map[cmn.NodeId]bool)
	for _, n := range nodes {
		if seen[n] {
			t.Fatalf("duplicate node in selection: %s", n)
		}
		seen[n] = true
	}
}

func TestSelectNodesDeterministic(t *testing.T) {
	top := testTopology()
	crush := NewCrushMap(top)
	id := cmn.NewObjectId()

	n1 := crush.SelectNodes(id, 3, DomainRack)
	n2 := crush.SelectNodes(id, 3, DomainRack)
	if len(n1) != len(n2) {
		t.Fatalf("length mismatch between repeated calls")
	}
	for i := range n1 {
		if n1[i] != n2[i] {
			t.Fatalf("placement not deterministic at index %d: %s vs %s", i, n1[i], n2[i])
		}
	}
}

func TestSelectNodesLRCLayout(t *testing.T) {
	top := NewTopology()
	// 3 domains (racks), each with enough nodes for a full group.
	for rack := 1; rack <= 3; rack++ {
		for node := 1; node <= 4; node++ {
			top.UpsertNode(NodeInfo{
				ID:            cmn.NewNodeId(),
				FailureDomain: FailureDomainInfo{Region: "us-east", Datacenter: "dc1", Rack: rackName(rack)},
				Status:        NodeActive,
				Weight:        1.0,
			})
		}
	}
	crush := NewCrushMap(top)
	id := cmn.NewObjectId()

	cfg := LrcPlacementConfig{
		DataShards:     6,
		LocalParity:    2,
		GlobalParity:   2,
		LocalPlacement: DomainRack,
		GroupPlacement: DomainRack,
	}
	placements := crush.SelectNodesLRC(id, cfg)
	if len(placements) != int(cfg.TotalShards()) {
		t.Fatalf("expected %d shard placements, got %d", cfg.TotalShards(), len(placements))
	}

	dataCount, localCount, globalCount := 0, 0, 0
	for _, p := range placements {
		switch p.ShardType {
		case cmn.ShardData:
			dataCount++
		case cmn.ShardLocalParity:
			localCount++
		case cmn.ShardGlobalParity:
			globalCount++
			if p.LocalGroup != cmn.NoLocalGroup {
				t.Errorf("global parity shard should have no local group")
			}
		}
	}
	if dataCount != 6 || localCount != 2 || globalCount != 2 {
		t.Errorf("unexpected shard type counts: data=%d local=%d global=%d", dataCount, localCount, globalCount)
	}
}
