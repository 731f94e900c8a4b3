// Package placement implements the CRUSH-like deterministic placement
// engine (§4.D): a weighted-hash node selection algorithm with failure
// domain diversity, used both for fresh object placement and for repair.
package placement

import (
	"sync"

	"github.com/objectio/objectio/cmn"
)

// FailureDomain names a level in the topology hierarchy shards must spread
// across for fault tolerance (§4.D).
type FailureDomain int

const (
	DomainDisk FailureDomain = iota
	DomainNode
	DomainRack
	DomainDatacenter
	DomainRegion
)

// NodeStatus/DiskStatus track health for placement eligibility.
type NodeStatus int

const (
	NodeActive NodeStatus = iota
	NodeDraining
	NodeDown
)

type DiskStatus int

const (
	DiskHealthy DiskStatus = iota
	DiskDegraded
	DiskFailed
)

// FailureDomainInfo locates a node within the region/datacenter/rack
// hierarchy.
type FailureDomainInfo struct {
	Region, Datacenter, Rack string
}

func (f FailureDomainInfo) AtLevel(level FailureDomain) string {
	switch level {
	case DomainRack:
		return f.Region + ":" + f.Datacenter + ":" + f.Rack
	case DomainDatacenter:
		return f.Region + ":" + f.Datacenter
	case DomainRegion:
		return f.Region
	default:
		return ""
	}
}

// DiskInfo describes one disk on a node.
type DiskInfo struct {
	ID             cmn.DiskId
	Path           string
	TotalCapacity  uint64
	UsedCapacity   uint64
	Status         DiskStatus
	Weight         float64
}

func (d DiskInfo) AvailableCapacity() uint64 {
	if d.UsedCapacity >= d.TotalCapacity {
		return 0
	}
	return d.TotalCapacity - d.UsedCapacity
}

// NodeInfo describes one storage node in the cluster (§4.D).
type NodeInfo struct {
	ID            cmn.NodeId
	Name          string
	Address       string
	FailureDomain FailureDomainInfo
	Status        NodeStatus
	Disks         []DiskInfo
	Weight        float64
	LastHeartbeat int64
}

func (n NodeInfo) TotalCapacity() uint64 {
	var total uint64
	for _, d := range n.Disks {
		total += d.TotalCapacity
	}
	return total
}

func (n NodeInfo) UsedCapacity() uint64 {
	var used uint64
	for _, d := range n.Disks {
		used += d.UsedCapacity
	}
	return used
}

func (n NodeInfo) AvailableCapacity() uint64 {
	total, used := n.TotalCapacity(), n.UsedCapacity()
	if used >= total {
		return 0
	}
	return total - used
}

func (n NodeInfo) HasCapacity(size uint64) bool { return n.AvailableCapacity() >= size }

func (n NodeInfo) HealthyDisks() []DiskInfo {
	var out []DiskInfo
	for _, d := range n.Disks {
		if d.Status == DiskHealthy {
			out = append(out, d)
		}
	}
	return out
}

// Topology holds every known node, keyed by id, with a monotonic version
// bumped on every mutation so callers can detect staleness (§4.D).
type Topology struct {
	mu      sync.RWMutex
	Version uint64
	nodes   map[cmn.NodeId]NodeInfo
}

func NewTopology() *Topology {
	return &Topology{nodes: make(map[cmn.NodeId]NodeInfo)}
}

// UpsertNode adds or replaces a node, bumping Version.
func (t *Topology) UpsertNode(n NodeInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[n.ID] = n
	t.Version++
}

// RemoveNode deletes a node, bumping Version if it existed.
func (t *Topology) RemoveNode(id cmn.NodeId) (NodeInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if ok {
		delete(t.nodes, id)
		t.Version++
	}
	return n, ok
}

func (t *Topology) GetNode(id cmn.NodeId) (NodeInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	return n, ok
}

// AllNodes returns every known node, in no particular order.
func (t *Topology) AllNodes() []NodeInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]NodeInfo, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n)
	}
	return out
}

// ActiveNodes returns every node with NodeActive status.
func (t *Topology) ActiveNodes() []NodeInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]NodeInfo, 0, len(t.nodes))
	for _, n := range t.nodes {
		if n.Status == NodeActive {
			out = append(out, n)
		}
	}
	return out
}

func (t *Topology) version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Version
}
