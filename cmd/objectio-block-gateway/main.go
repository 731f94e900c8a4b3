// Command objectio-block-gateway runs the block-storage frontend (§4.E):
// volumes are chunked into erasure-coded objects on the OSD cluster behind a
// write-back cache, exported to clients over NBD.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/golang/glog"
	"github.com/objectio/objectio/block"
	"github.com/objectio/objectio/cmn"
	"github.com/objectio/objectio/ec"
	"github.com/objectio/objectio/nbd"
	"github.com/objectio/objectio/rpc"
	"github.com/objectio/objectio/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := cmn.DefaultConfig()

	dataDir := flag.String("data-dir", cfg.DataDir, "gateway data directory (volume store, chunk index, cache journal)")
	nbdAddr := flag.String("nbd-listen", ":10809", "NBD server listen address")
	coordinatorAddr := flag.String("coordinator", "", "address of one OSD node to resolve placement through")
	ecK := flag.Int("ec-k", cfg.ECK, "erasure-coding data shard count")
	ecM := flag.Int("ec-m", cfg.ECM, "erasure-coding parity shard count")
	flag.Parse()

	if *coordinatorAddr == "" {
		glog.Fatalf("objectio-block-gateway: -coordinator is required")
	}
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		glog.Fatalf("objectio-block-gateway: create data dir %s: %v", *dataDir, err)
	}

	mapper := block.NewChunkMapper(uint64(cfg.ChunkSize))

	cacheCfg := block.DefaultCacheConfig()
	cacheCfg.MaxCacheBytes = uint64(cfg.CacheBytes)
	cacheCfg.FlushInterval = cfg.FlushInterval
	cacheCfg.MaxDirtyAge = cfg.MaxDirtyAge
	cacheCfg.JournalPath = filepath.Join(*dataDir, "cache.journal")

	cache, err := block.NewWriteCache(mapper, cacheCfg)
	if err != nil {
		glog.Fatalf("objectio-block-gateway: open write cache: %v", err)
	}
	defer cache.Close()

	volumes, err := block.NewVolumeManager(
		filepath.Join(*dataDir, "volumes"),
		filepath.Join(*dataDir, "chunks.db"),
		mapper,
	)
	if err != nil {
		glog.Fatalf("objectio-block-gateway: open volume manager: %v", err)
	}
	defer volumes.Close()

	if pending, err := cache.Recover(); err != nil {
		glog.Fatalf("objectio-block-gateway: recover cache journal: %v", err)
	} else if len(pending) > 0 {
		glog.Infof("objectio-block-gateway: replaying %d pending write(s) from journal", len(pending))
		for _, w := range pending {
			cache.InitVolume(w.VolumeID)
			if err := cache.Write(w.VolumeID, uint64(w.ChunkID)*mapper.ChunkSize()+w.Offset, w.Data); err != nil {
				glog.Errorf("objectio-block-gateway: replay write vol=%s offset=%d: %v", w.VolumeID, w.Offset, err)
			}
		}
	}

	backend, err := ec.NewBackend(ec.MDSConfig(*ecK, *ecM))
	if err != nil {
		glog.Fatalf("objectio-block-gateway: build ec backend: %v", err)
	}

	pool := rpc.NewPool()
	defer pool.Close()
	eio := block.NewECIO(pool, cmn.NewNodeId(), *coordinatorAddr)

	reg := prometheus.NewRegistry()
	eio.SetStats(stats.NewRegistry(reg, "objectio_gateway"))
	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
				glog.Errorf("objectio-block-gateway: metrics server: %v", err)
			}
		}()
		glog.Infof("objectio-block-gateway: metrics on %s", cfg.MetricsAddress)
	}

	flusher := block.NewFlusher(cache, volumes, eio, backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go flusher.Run(ctx, cacheCfg.FlushInterval)

	srv := nbd.NewServer(cache, volumes, eio, backend)
	for _, vol := range volumes.ListVolumes() {
		cache.InitVolume(vol.VolumeID)
		srv.Register(vol.VolumeID, vol.SizeBytes, false)
	}

	ln, err := net.Listen("tcp", *nbdAddr)
	if err != nil {
		glog.Fatalf("objectio-block-gateway: listen on %s: %v", *nbdAddr, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		glog.Infof("objectio-block-gateway: shutting down, force-flushing all volumes")
		for _, vol := range volumes.ListVolumes() {
			flusher.FlushVolumeAll(context.Background(), vol.VolumeID)
		}
		cancel()
		ln.Close()
	}()

	glog.Infof("objectio-block-gateway: serving NBD on %s via coordinator %s", *nbdAddr, *coordinatorAddr)
	if err := srv.Serve(ln); err != nil {
		glog.Infof("objectio-block-gateway: nbd server stopped: %v", err)
	}
}
