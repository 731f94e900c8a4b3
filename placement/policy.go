package placement

import (
	"sync"

	"github.com/objectio/objectio/cmn"
	"github.com/objectio/objectio/ec"
)

// Protection describes which erasure-coding or replication scheme a
// storage class applies, and which failure-domain level it places across.
type Protection struct {
	Kind ProtectionKind

	// ErasureCoding (MDS)
	DataShards, ParityShards uint8
	Placement                FailureDomain

	// LRC
	LocalParity, GlobalParity      uint8
	LocalPlacement, GroupPlacement FailureDomain

	// Replication
	Replicas uint8
}

type ProtectionKind int

const (
	ProtectionErasureCoding ProtectionKind = iota
	ProtectionLRC
	ProtectionReplication
)

// StorageClass names one Protection policy, selectable per bucket/object
// (§4.D, §6 config "storage class").
type StorageClass struct {
	Name       string
	Protection Protection
}

// ShardPlacement is one shard's placement decision, independent of MDS/LRC
// (§4.D).
type ShardPlacement struct {
	Position   uint8
	NodeID     cmn.NodeId
	DiskID     *cmn.DiskId
	ShardType  cmn.ShardType
	LocalGroup uint8 // cmn.NoLocalGroup when not applicable
}

// PlacementResult is the full placement decision for one object.
type PlacementResult struct {
	StorageClass string
	Protection   Protection
	Shards       []ShardPlacement
}

// Policy selects node placements given a cluster topology and a set of
// named storage classes (§4.D).
type Policy struct {
	mu              sync.RWMutex
	crush           *CrushMap
	storageClasses  map[string]StorageClass
	defaultClass    string
}

// NewPolicy builds a Policy with aistore's EC defaults (4 data/2 parity,
// rack-level placement) registered as "standard".
func NewPolicy(topology *Topology) *Policy {
	standard := StorageClass{
		Name: "standard",
		Protection: Protection{
			Kind:         ProtectionErasureCoding,
			DataShards:   4,
			ParityShards: 2,
			Placement:    DomainRack,
		},
	}
	return &Policy{
		crush:          NewCrushMap(topology),
		storageClasses: map[string]StorageClass{"standard": standard},
		defaultClass:   "standard",
	}
}

func (p *Policy) UpdateTopology(t *Topology) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.crush.UpdateTopology(t)
}

// Topology returns the topology backing this policy's placement decisions.
func (p *Policy) Topology() *Topology {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.crush.Topology()
}

func (p *Policy) AddStorageClass(class StorageClass) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.storageClasses[class.Name] = class
}

func (p *Policy) GetStorageClass(name string) (StorageClass, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.storageClasses[name]
	return c, ok
}

// PlaceObject computes the full shard placement for a freshly written
// object under the named storage class (or the default if empty).
func (p *Policy) PlaceObject(id cmn.ObjectId, storageClass string) (PlacementResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	name := storageClass
	if name == "" {
		name = p.defaultClass
	}
	class, ok := p.storageClasses[name]
	if !ok {
		return PlacementResult{}, cmn.NewConfigError("unknown storage class: %s", name)
	}

	switch class.Protection.Kind {
	case ProtectionErasureCoding:
		return p.placeErasureCoding(id, class)
	case ProtectionLRC:
		return p.placeLRC(id, class)
	case ProtectionReplication:
		return p.placeReplication(id, class)
	default:
		return PlacementResult{}, cmn.NewConfigError("unknown protection kind for class %s", name)
	}
}

func (p *Policy) placeErasureCoding(id cmn.ObjectId, class StorageClass) (PlacementResult, error) {
	total := int(class.Protection.DataShards) + int(class.Protection.ParityShards)
	nodes := p.crush.SelectNodes(id, total, class.Protection.Placement)
	if len(nodes) < total {
		return PlacementResult{}, cmn.NewCapacityError(
			"insufficient nodes for placement: have %d, need %d", len(nodes), total)
	}

	shards := make([]ShardPlacement, total)
	for i, nodeID := range nodes {
		shardType := cmn.ShardGlobalParity
		if i < int(class.Protection.DataShards) {
			shardType = cmn.ShardData
		}
		shards[i] = ShardPlacement{
			Position:   uint8(i),
			NodeID:     nodeID,
			ShardType:  shardType,
			LocalGroup: cmn.NoLocalGroup,
		}
	}
	return PlacementResult{StorageClass: class.Name, Protection: class.Protection, Shards: shards}, nil
}

func (p *Policy) placeLRC(id cmn.ObjectId, class StorageClass) (PlacementResult, error) {
	prot := class.Protection
	cfg := LrcPlacementConfig{
		DataShards:     prot.DataShards,
		LocalParity:    prot.LocalParity,
		GlobalParity:   prot.GlobalParity,
		LocalPlacement: prot.LocalPlacement,
		GroupPlacement: prot.GroupPlacement,
	}
	lrcPlacements := p.crush.SelectNodesLRC(id, cfg)
	total := int(cfg.TotalShards())
	if len(lrcPlacements) < total {
		return PlacementResult{}, cmn.NewCapacityError(
			"insufficient nodes for lrc placement: have %d, need %d", len(lrcPlacements), total)
	}

	shards := make([]ShardPlacement, len(lrcPlacements))
	for i, lp := range lrcPlacements {
		shards[i] = ShardPlacement{
			Position:   lp.Position,
			NodeID:     lp.NodeID,
			ShardType:  lp.ShardType,
			LocalGroup: lp.LocalGroup,
		}
	}
	return PlacementResult{StorageClass: class.Name, Protection: class.Protection, Shards: shards}, nil
}

func (p *Policy) placeReplication(id cmn.ObjectId, class StorageClass) (PlacementResult, error) {
	nodes := p.crush.SelectNodes(id, int(class.Protection.Replicas), class.Protection.Placement)
	if len(nodes) < int(class.Protection.Replicas) {
		return PlacementResult{}, cmn.NewCapacityError(
			"insufficient nodes for replication: have %d, need %d", len(nodes), class.Protection.Replicas)
	}
	shards := make([]ShardPlacement, len(nodes))
	for i, nodeID := range nodes {
		shards[i] = ShardPlacement{Position: uint8(i), NodeID: nodeID, ShardType: cmn.ShardData, LocalGroup: cmn.NoLocalGroup}
	}
	return PlacementResult{StorageClass: class.Name, Protection: class.Protection, Shards: shards}, nil
}

// PlaceShard finds a replacement node for a single shard during repair,
// excluding nodes already known to hold a copy (§4.D "repair placement
// primitive", §9 Open Question #2: this package exposes the primitive only
// — scheduling when to call it is left to an external controller).
func (p *Policy) PlaceShard(
	id cmn.ObjectId,
	position uint8,
	excludeNodes []cmn.NodeId,
	domain FailureDomain,
	shardType cmn.ShardType,
	localGroup uint8,
) (ShardPlacement, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	excluded := make(map[cmn.NodeId]bool, len(excludeNodes))
	for _, n := range excludeNodes {
		excluded[n] = true
	}

	candidates := p.crush.SelectNodes(id, 10, domain)
	for _, nodeID := range candidates {
		if !excluded[nodeID] {
			return ShardPlacement{
				Position:   position,
				NodeID:     nodeID,
				ShardType:  shardType,
				LocalGroup: localGroup,
			}, nil
		}
	}
	return ShardPlacement{}, cmn.NewCapacityError("no eligible node found for shard repair (all candidates excluded)")
}

// PlaceLRCShard is PlaceShard specialized for LRC repair: data/local-parity
// shards prefer the local group's domain, global parity prefers the
// group-spread domain.
func (p *Policy) PlaceLRCShard(
	id cmn.ObjectId,
	position uint8,
	localGroup uint8,
	shardType cmn.ShardType,
	excludeNodes []cmn.NodeId,
	localPlacement, groupPlacement FailureDomain,
) (ShardPlacement, error) {
	domain := groupPlacement
	if localGroup != cmn.NoLocalGroup {
		domain = localPlacement
	}
	return p.PlaceShard(id, position, excludeNodes, domain, shardType, localGroup)
}

// ecBackendFor exists so callers can build the matching ec.Backend for a
// resolved Protection without re-deriving shard counts by hand.
func ecBackendFor(prot Protection) (ec.Backend, error) {
	switch prot.Kind {
	case ProtectionErasureCoding:
		return ec.NewMDSBackend(int(prot.DataShards), int(prot.ParityShards))
	case ProtectionLRC:
		cfg, err := ec.NewLrcConfig(prot.DataShards, prot.LocalParity, prot.GlobalParity)
		if err != nil {
			return nil, err
		}
		return ec.NewLrcBackend(cfg)
	default:
		return nil, cmn.NewConfigError("protection kind has no matching ec backend")
	}
}
