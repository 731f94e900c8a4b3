package placement

import (
	"sort"

	"github.com/OneOfOne/xxhash"
	"github.com/objectio/objectio/cmn"
)

// CrushMap computes deterministic node placements over a Topology using a
// weighted-hash selection with failure-domain diversity (§4.D, ported from
// crush.rs). The same (topology, object id, count, domain) always produces
// the same selection.
type CrushMap struct {
	topology *Topology
}

func NewCrushMap(topology *Topology) *CrushMap {
	return &CrushMap{topology: topology}
}

func (c *CrushMap) UpdateTopology(t *Topology) { c.topology = t }

func (c *CrushMap) Topology() *Topology { return c.topology }

// hashObject seeds placement from the object id.
func hashObject(id cmn.ObjectId) uint64 {
	return xxhash.Checksum64(id[:])
}

// weightedHash combines the base hash with the node id's hash and adds the
// node's placement weight scaled by 1000 (wrapping uint64 arithmetic);
// callers sort candidates ascending by the result (§4.D).
func weightedHash(baseHash uint64, node NodeInfo) uint64 {
	nodeHash := xxhash.ChecksumString64(node.ID.String())
	weightFactor := uint64(node.Weight * 1000.0)
	return baseHash*nodeHash + weightFactor
}

func domainKey(node NodeInfo, level FailureDomain) string {
	switch level {
	case DomainDisk, DomainNode:
		return node.ID.String()
	default:
		return node.FailureDomain.AtLevel(level)
	}
}

// SelectNodes returns count nodes for object id, preferring one node per
// distinct failure domain at the given level before falling back to
// filling remaining slots from any active node (§4.D two-pass diversity
// selection).
func (c *CrushMap) SelectNodes(id cmn.ObjectId, count int, domain FailureDomain) []cmn.NodeId {
	hash := hashObject(id)
	active := c.topology.ActiveNodes()

	type candidate struct {
		node NodeInfo
		hash uint64
	}
	candidates := make([]candidate, len(active))
	for i, n := range active {
		candidates[i] = candidate{node: n, hash: weightedHash(hash, n)}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].hash < candidates[j].hash })

	selected := make([]cmn.NodeId, 0, count)
	usedDomains := make(map[string]bool)

	for _, cand := range candidates {
		if len(selected) >= count {
			break
		}
		key := domainKey(cand.node, domain)
		if !usedDomains[key] {
			selected = append(selected, cand.node.ID)
			usedDomains[key] = true
		}
	}

	if len(selected) < count {
		already := make(map[cmn.NodeId]bool, len(selected))
		for _, id := range selected {
			already[id] = true
		}
		for _, cand := range candidates {
			if len(selected) >= count {
				break
			}
			if !already[cand.node.ID] {
				selected = append(selected, cand.node.ID)
				already[cand.node.ID] = true
			}
		}
	}

	return selected
}

// LrcShardPlacement is one shard's placement decision under LRC (§4.D).
type LrcShardPlacement struct {
	Position   uint8
	NodeID     cmn.NodeId
	ShardType  cmn.ShardType
	LocalGroup uint8 // cmn.NoLocalGroup for global parity
}

// LrcPlacementConfig parameterizes LRC-aware placement. SelectNodesLRC
// draws each local group from one domain at GroupPlacement granularity;
// LocalPlacement is carried in the config but not read by SelectNodesLRC.
type LrcPlacementConfig struct {
	DataShards     uint8
	LocalParity    uint8
	GlobalParity   uint8
	LocalPlacement FailureDomain
	GroupPlacement FailureDomain
}

func (c LrcPlacementConfig) NumGroups() uint8   { return c.LocalParity }
func (c LrcPlacementConfig) GroupSize() uint8   { return c.DataShards / c.LocalParity }
func (c LrcPlacementConfig) TotalShards() uint8 { return c.DataShards + c.LocalParity + c.GlobalParity }

func (c *CrushMap) groupNodesByDomain(level FailureDomain) map[string][]NodeInfo {
	groups := make(map[string][]NodeInfo)
	for _, n := range c.topology.ActiveNodes() {
		key := domainKey(n, level)
		groups[key] = append(groups[key], n)
	}
	return groups
}

func (c *CrushMap) fallbackNode(hash uint64) cmn.NodeId {
	active := c.topology.ActiveNodes()
	if len(active) > 0 {
		return active[0].ID
	}
	var id cmn.NodeId
	for i := 0; i < 8 && i < len(id); i++ {
		id[i] = byte(hash >> (8 * i))
	}
	return id
}

// SelectNodesLRC places an LRC-protected stripe's shards: active nodes are
// grouped into domains at GroupPlacement granularity, the domains are
// ordered by the hash of their key, local group i (its data shards plus its
// local parity shard) goes to domain i, and global parity goes to domain
// numGroups, both taken modulo the domain count. Global parity therefore
// has a domain of its own only when there are more domains than local
// groups (§4.D, ported from crush.rs's select_nodes_lrc).
func (c *CrushMap) SelectNodesLRC(id cmn.ObjectId, cfg LrcPlacementConfig) []LrcShardPlacement {
	baseHash := hashObject(id)
	numGroups := int(cfg.NumGroups())
	groupSize := int(cfg.GroupSize())

	domainNodes := c.groupNodesByDomain(cfg.GroupPlacement)
	domainKeys := make([]string, 0, len(domainNodes))
	for k := range domainNodes {
		domainKeys = append(domainKeys, k)
	}
	sort.Slice(domainKeys, func(i, j int) bool {
		return xxhash.ChecksumString64(domainKeys[i]) < xxhash.ChecksumString64(domainKeys[j])
	})

	placements := make([]LrcShardPlacement, 0, cfg.TotalShards())
	var position uint8

	sortByHash := func(nodes []NodeInfo, seed uint64) []struct {
		node NodeInfo
		hash uint64
	} {
		out := make([]struct {
			node NodeInfo
			hash uint64
		}, len(nodes))
		for i, n := range nodes {
			out[i] = struct {
				node NodeInfo
				hash uint64
			}{n, weightedHash(seed, n)}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].hash < out[j].hash })
		return out
	}

	for groupIdx := 0; groupIdx < numGroups; groupIdx++ {
		if len(domainKeys) == 0 {
			break
		}
		domainIdx := groupIdx % len(domainKeys)
		groupNodes := domainNodes[domainKeys[domainIdx]]
		sorted := sortByHash(groupNodes, baseHash+uint64(groupIdx))

		for shardInGroup := 0; shardInGroup < groupSize; shardInGroup++ {
			nodeIdx := shardInGroup % maxOne(len(sorted))
			nodeID := c.fallbackNode(baseHash)
			if nodeIdx < len(sorted) {
				nodeID = sorted[nodeIdx].node.ID
			}
			placements = append(placements, LrcShardPlacement{
				Position:   position,
				NodeID:     nodeID,
				ShardType:  cmn.ShardData,
				LocalGroup: uint8(groupIdx),
			})
			position++
		}

		lpIdx := groupSize % maxOne(len(sorted))
		lpNodeID := c.fallbackNode(baseHash)
		if lpIdx < len(sorted) {
			lpNodeID = sorted[lpIdx].node.ID
		}
		placements = append(placements, LrcShardPlacement{
			Position:   position,
			NodeID:     lpNodeID,
			ShardType:  cmn.ShardLocalParity,
			LocalGroup: uint8(groupIdx),
		})
		position++
	}

	globalDomainIdx := 0
	if len(domainKeys) > 0 {
		globalDomainIdx = numGroups % len(domainKeys)
	}
	var globalNodes []NodeInfo
	if len(domainKeys) > 0 {
		globalNodes = domainNodes[domainKeys[globalDomainIdx]]
	}
	sortedGlobal := sortByHash(globalNodes, baseHash+1000)

	for gp := 0; gp < int(cfg.GlobalParity); gp++ {
		nodeIdx := gp % maxOne(len(sortedGlobal))
		nodeID := c.fallbackNode(baseHash)
		if nodeIdx < len(sortedGlobal) {
			nodeID = sortedGlobal[nodeIdx].node.ID
		}
		placements = append(placements, LrcShardPlacement{
			Position:   position,
			NodeID:     nodeID,
			ShardType:  cmn.ShardGlobalParity,
			LocalGroup: cmn.NoLocalGroup,
		})
		position++
	}

	return placements
}

func maxOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
