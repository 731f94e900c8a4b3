// Command objectio-osd runs a single OSD node: it serves the inter-node
// protocol (§6) over TCP, holding one or more local raw-disk files and this
// node's metadata store.
package main

import (
	"flag"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/objectio/objectio/cmn"
	"github.com/objectio/objectio/disk"
	"github.com/objectio/objectio/meta"
	"github.com/objectio/objectio/osd"
	"github.com/objectio/objectio/placement"
	"github.com/objectio/objectio/rpc"
	"github.com/objectio/objectio/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := cmn.DefaultConfig()

	listenAddr := flag.String("listen", cfg.ListenAddress, "inter-node RPC listen address")
	dataDir := flag.String("data-dir", cfg.DataDir, "node data directory (disks, metadata store)")
	diskSpecs := flag.String("disks", "", "comma-separated disk specs, name:sizeBytes (created under data-dir if absent)")
	blockSize := flag.Uint("block-size", uint(cfg.BlockSize), "raw-disk block size in bytes")
	flag.Parse()

	if *diskSpecs == "" {
		glog.Fatalf("objectio-osd: at least one -disks spec is required")
	}
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		glog.Fatalf("objectio-osd: create data dir %s: %v", *dataDir, err)
	}

	metaStore, err := meta.Open(meta.DefaultStoreConfig(filepath.Join(*dataDir, "meta")))
	if err != nil {
		glog.Fatalf("objectio-osd: open metadata store: %v", err)
	}
	defer metaStore.Close()

	nodeID := cmn.NewNodeId()
	topology := placement.NewTopology()
	policy := placement.NewPolicy(topology)
	svc := osd.NewService(nodeID, metaStore, policy)

	reg := prometheus.NewRegistry()
	svc.SetStats(stats.NewRegistry(reg, "objectio_osd"))
	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
				glog.Errorf("objectio-osd: metrics server: %v", err)
			}
		}()
		glog.Infof("objectio-osd: metrics on %s", cfg.MetricsAddress)
	}

	node := placement.NodeInfo{
		ID:      nodeID,
		Name:    nodeID.String(),
		Address: *listenAddr,
		Status:  placement.NodeActive,
	}

	for _, spec := range strings.Split(*diskSpecs, ",") {
		name, sizeBytes, err := parseDiskSpec(spec)
		if err != nil {
			glog.Fatalf("objectio-osd: %v", err)
		}
		diskPath := filepath.Join(*dataDir, name+".img")
		d, err := openOrInitDisk(diskPath, sizeBytes, uint32(*blockSize))
		if err != nil {
			glog.Fatalf("objectio-osd: disk %s: %v", name, err)
		}
		diskID := cmn.NewDiskId()
		svc.AttachDisk(diskID, d)
		node.Disks = append(node.Disks, placement.DiskInfo{
			ID:            diskID,
			Path:          diskPath,
			TotalCapacity: sizeBytes,
			Status:        placement.DiskHealthy,
			Weight:        1.0,
		})
		glog.Infof("objectio-osd: attached disk %s (%s, %d bytes)", name, diskID, sizeBytes)
	}
	topology.UpsertNode(node)

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		glog.Fatalf("objectio-osd: listen on %s: %v", *listenAddr, err)
	}
	glog.Infof("objectio-osd: node %s serving on %s", nodeID, *listenAddr)
	if err := rpc.Serve(ln, svc); err != nil {
		glog.Fatalf("objectio-osd: serve: %v", err)
	}
}

func parseDiskSpec(spec string) (name string, sizeBytes uint64, err error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return "", 0, cmn.NewConfigError("bad disk spec %q, want name:sizeBytes", spec)
	}
	size, parseErr := strconv.ParseUint(parts[1], 10, 64)
	if parseErr != nil {
		return "", 0, cmn.NewConfigError("bad disk spec %q: %v", spec, parseErr)
	}
	return parts[0], size, nil
}

// openOrInitDisk opens an existing disk image at path, initializing a fresh
// one of sizeBytes if none exists yet.
func openOrInitDisk(path string, sizeBytes uint64, blockSize uint32) (*disk.Disk, error) {
	if _, err := os.Stat(path); err == nil {
		return disk.Open(path)
	}
	return disk.Init(path, sizeBytes, blockSize)
}
