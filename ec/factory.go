package ec

import "github.com/objectio/objectio/cmn"

// Config selects and parameterizes a Backend, mirroring factory.rs's
// BackendConfig (minus the ISA-L/SIMD backend choice: this module only ever
// builds the reedsolomon-backed Go implementation, so there is no
// auto-detection to perform).
type Config struct {
	DataShards   int
	ParityShards int
	LRC          *LrcConfig
}

// MDSConfig builds a plain MDS backend config.
func MDSConfig(dataShards, parityShards int) Config {
	return Config{DataShards: dataShards, ParityShards: parityShards}
}

// LRCConfigFor builds an LRC backend config.
func LRCConfigFor(cfg LrcConfig) Config {
	return Config{
		DataShards:   int(cfg.DataShards),
		ParityShards: int(cfg.TotalParity()),
		LRC:          &cfg,
	}
}

// NewBackend constructs the Backend named by cfg (§4.C "pluggable backend,
// chosen per bucket/pool at configuration time").
func NewBackend(cfg Config) (Backend, error) {
	if cfg.LRC != nil {
		return NewLrcBackend(*cfg.LRC)
	}
	return NewMDSBackend(cfg.DataShards, cfg.ParityShards)
}

// NewLRCBackend constructs the LrcBackend named by cfg, returning a config
// error if cfg does not describe an LRC configuration.
func NewLRCBackend(cfg Config) (LrcBackend, error) {
	if cfg.LRC == nil {
		return nil, cmn.NewConfigError("lrc backend requested but config has no LRC parameters")
	}
	return NewLrcBackend(*cfg.LRC)
}
