// Package stats tracks per-node operational counters (reads, writes,
// bytes, errors) and exports them for scraping, generalizing the
// teacher's per-xaction counter idiom (ID/Kind/ObjCount/BytesCount
// accessors) onto disk, EC, and flush operations instead of rebalance
// xactions.
package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// OpStats is one operation counter's point-in-time snapshot, mirroring
// the accessor shape of the teacher's BaseXactStats (ID/Kind/ObjCount/
// BytesCount) but scoped to a single named operation rather than a
// cluster-wide xaction.
type OpStats struct {
	NameX       string    `json:"name"`
	StartTimeX  time.Time `json:"start_time"`
	ObjCountX   int64     `json:"obj_count"`
	BytesCountX int64     `json:"bytes_count"`
	ErrCountX   int64     `json:"err_count"`
}

func (s *OpStats) Name() string        { return s.NameX }
func (s *OpStats) StartTime() time.Time { return s.StartTimeX }
func (s *OpStats) ObjCount() int64     { return s.ObjCountX }
func (s *OpStats) BytesCount() int64   { return s.BytesCountX }
func (s *OpStats) ErrCount() int64     { return s.ErrCountX }

// Registry is the process-wide counter set for a node (OSD or gateway):
// per-operation counts, bytes, and errors, exported both as in-process
// snapshots (OpStats) and as Prometheus metrics for external scraping.
type Registry struct {
	start time.Time

	ops     *prometheus.CounterVec
	bytes   *prometheus.CounterVec
	errs    *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewRegistry builds a Registry and registers its collectors with reg.
// Pass prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to expose via the default /metrics path.
func NewRegistry(reg prometheus.Registerer, namespace string) *Registry {
	r := &Registry{
		start: time.Now(),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ops_total",
			Help:      "total operations processed, by op name",
		}, []string{"op"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "total bytes processed, by op name",
		}, []string{"op"}),
		errs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "total operation errors, by op name",
		}, []string{"op"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "op_latency_seconds",
			Help:      "operation latency, by op name",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(r.ops, r.bytes, r.errs, r.latency)
	return r
}

// Observe records one completed operation: its byte count, whether it
// failed, and how long it took.
func (r *Registry) Observe(op string, n int64, err error, elapsed time.Duration) {
	r.ops.WithLabelValues(op).Inc()
	r.bytes.WithLabelValues(op).Add(float64(n))
	if err != nil {
		r.errs.WithLabelValues(op).Inc()
	}
	r.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Snapshot returns the current in-process counts for op, reading back
// through the Prometheus collector rather than a separate atomic set, so
// the two views never diverge.
func (r *Registry) Snapshot(op string) OpStats {
	var ops, bytes, errs dto.Metric
	r.ops.WithLabelValues(op).Write(&ops)
	r.bytes.WithLabelValues(op).Write(&bytes)
	r.errs.WithLabelValues(op).Write(&errs)
	return OpStats{
		NameX:       op,
		StartTimeX:  r.start,
		ObjCountX:   int64(ops.GetCounter().GetValue()),
		BytesCountX: int64(bytes.GetCounter().GetValue()),
		ErrCountX:   int64(errs.GetCounter().GetValue()),
	}
}
