package ec

import (
	"github.com/klauspost/reedsolomon"
	"github.com/objectio/objectio/cmn"
)

// mdsBackend wraps github.com/klauspost/reedsolomon for standard MDS
// Reed-Solomon coding: any k of k+m shards reconstruct the object.
type mdsBackend struct {
	k, m int
	enc  reedsolomon.Encoder
}

// NewMDSBackend builds a Reed-Solomon backend for k data / m parity shards.
func NewMDSBackend(k, m int) (Backend, error) {
	if k <= 0 || m < 0 {
		return nil, cmn.NewConfigError("mds backend requires k>0, m>=0 (got k=%d m=%d)", k, m)
	}
	enc, err := reedsolomon.New(k, m)
	if err != nil {
		return nil, cmn.NewConfigError("construct reedsolomon encoder: %v", err)
	}
	return &mdsBackend{k: k, m: m, enc: enc}, nil
}

func (b *mdsBackend) Capabilities() Capabilities {
	return Capabilities{Name: "reedsolomon-mds", MaxDataShards: 255, MaxParityShards: 255}
}

func (b *mdsBackend) DataShards() int   { return b.k }
func (b *mdsBackend) ParityShards() int { return b.m }
func (b *mdsBackend) TotalShards() int  { return b.k + b.m }

func (b *mdsBackend) Encode(dataShards [][]byte) ([][]byte, error) {
	if len(dataShards) != b.k {
		return nil, cmn.NewConfigError("mds encode expects %d data shards, got %d", b.k, len(dataShards))
	}
	shardSize := len(dataShards[0])
	shards := make([][]byte, b.k+b.m)
	for i, s := range dataShards {
		if len(s) != shardSize {
			return nil, cmn.NewConfigError("mds encode requires equal-size shards")
		}
		shards[i] = s
	}
	for i := b.k; i < b.k+b.m; i++ {
		shards[i] = make([]byte, shardSize)
	}
	if err := b.enc.Encode(shards); err != nil {
		return nil, cmn.NewIntegrityError("reedsolomon encode failed: %v", err)
	}
	return shards, nil
}

func (b *mdsBackend) Decode(shards [][]byte, missingIndices []int) ([][]byte, error) {
	if len(shards) != b.k+b.m {
		return nil, cmn.NewConfigError("mds decode expects %d shards, got %d", b.k+b.m, len(shards))
	}
	present := 0
	for _, s := range shards {
		if s != nil {
			present++
		}
	}
	if present < b.k {
		return nil, cmn.NewIntegrityError("insufficient shards for mds decode: have %d, need %d", present, b.k)
	}

	work := make([][]byte, len(shards))
	copy(work, shards)
	if err := b.enc.Reconstruct(work); err != nil {
		return nil, cmn.NewIntegrityError("reedsolomon reconstruct failed: %v", err)
	}

	out := make([][]byte, len(missingIndices))
	for i, idx := range missingIndices {
		out[i] = work[idx]
	}
	return out, nil
}

func (b *mdsBackend) Verify(shards [][]byte) (bool, error) {
	if len(shards) != b.k+b.m {
		return false, cmn.NewConfigError("mds verify expects %d shards, got %d", b.k+b.m, len(shards))
	}
	ok, err := b.enc.Verify(shards)
	if err != nil {
		return false, cmn.NewIntegrityError("reedsolomon verify failed: %v", err)
	}
	return ok, nil
}
