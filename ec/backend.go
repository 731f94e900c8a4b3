// Package ec implements the erasure-coding core (§4.C): a pluggable
// backend abstraction over MDS (plain Reed-Solomon) and LRC (locally
// repairable codes with XOR local parity plus Reed-Solomon global parity)
// encodings.
package ec

import "github.com/objectio/objectio/cmn"

// Capabilities describes what a Backend supports.
type Capabilities struct {
	Name            string
	SupportsLRC     bool
	MaxDataShards   int
	MaxParityShards int
}

// Backend is the core erasure-coding operation set (§4.C). The MDS
// implementation reconstructs the original from any k of its k+m shards;
// the LRC implementation is not MDS, and some sets of k surviving shards
// cannot be decoded by it.
type Backend interface {
	Capabilities() Capabilities
	DataShards() int
	ParityShards() int
	TotalShards() int

	// Encode takes k data shards of equal length and returns all k+m
	// shards (data shards first, then computed parity) in order.
	Encode(dataShards [][]byte) ([][]byte, error)

	// Decode reconstructs the shards named by missingIndices from
	// whatever subset of the k+m shards is present (nil entries are
	// treated as missing). At least k shards must be present.
	Decode(shards [][]byte, missingIndices []int) ([][]byte, error)

	// Verify re-encodes the data shards and compares against the
	// parity shards already present.
	Verify(shards [][]byte) (bool, error)
}

// LocalGroup describes one LRC local parity group.
type LocalGroup struct {
	GroupIndex       uint8
	DataShardIndices []int
	LocalParityIndex int
}

// LrcBackend extends Backend with local-group repair (§4.C).
type LrcBackend interface {
	Backend
	Config() LrcConfig

	// EncodeLRC produces data shards, local parity shards (one XOR per
	// group), and global parity shards (Reed-Solomon over all data).
	EncodeLRC(dataShards [][]byte) (LrcEncodedData, error)

	// DecodeLocal attempts single-shard recovery using only the shard's
	// local group. Returns ok=false if the group itself has more than
	// one shard missing (global decode is required instead).
	DecodeLocal(shards [][]byte, missingIndex int) (recovered []byte, ok bool, err error)

	// LocalGroupFor returns the local group owning shardIndex, or
	// ok=false for a global parity shard.
	LocalGroupFor(shardIndex int) (group LocalGroup, ok bool)

	// CanRecoverLocally reports whether missingIndex's group has every
	// other member (including its local parity) present.
	CanRecoverLocally(available []bool, missingIndex int) bool
}

// LrcConfig configures an LRC backend: k data shards split into l local
// groups of k/l shards each, one XOR parity per group, plus g Reed-Solomon
// global parity shards over all k data shards (§4.C).
type LrcConfig struct {
	DataShards        uint8
	LocalParityShards uint8
	GlobalParityShards uint8
	LocalGroupSize    uint8
}

// NewLrcConfig builds a config, computing LocalGroupSize = k/l. Returns a
// config error if k is not evenly divisible by l.
func NewLrcConfig(dataShards, localParityShards, globalParityShards uint8) (LrcConfig, error) {
	if localParityShards == 0 || dataShards%localParityShards != 0 {
		return LrcConfig{}, cmn.NewConfigError(
			"lrc data_shards=%d must be evenly divisible by local_parity_shards=%d",
			dataShards, localParityShards)
	}
	return LrcConfig{
		DataShards:         dataShards,
		LocalParityShards:  localParityShards,
		GlobalParityShards: globalParityShards,
		LocalGroupSize:     dataShards / localParityShards,
	}, nil
}

func (c LrcConfig) TotalShards() uint8 { return c.DataShards + c.LocalParityShards + c.GlobalParityShards }
func (c LrcConfig) TotalParity() uint8 { return c.LocalParityShards + c.GlobalParityShards }

// LrcEncodedData is the result of an LRC encode.
type LrcEncodedData struct {
	DataShards         [][]byte
	LocalParityShards  [][]byte
	GlobalParityShards [][]byte
}

// AllShards concatenates data, local parity, and global parity in order.
func (d LrcEncodedData) AllShards() [][]byte {
	all := make([][]byte, 0, len(d.DataShards)+len(d.LocalParityShards)+len(d.GlobalParityShards))
	all = append(all, d.DataShards...)
	all = append(all, d.LocalParityShards...)
	all = append(all, d.GlobalParityShards...)
	return all
}
