// Package metrics provides the Prometheus-backed observability for the Data
// Block Processor: blocks observed, dedup hits/misses, volumes emitted,
// rotations, and capacity-bound warnings, wired the way the teacher wires
// its own promauto-based metric sets (pkg/metrics/prometheus/s3.go).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/blockpack/blockpack/pkg/pipeline"
)

// Pipeline is the Prometheus-backed implementation of pipeline.Metrics.
type Pipeline struct {
	blocksObserved  prometheus.Counter
	dedupHits       prometheus.Counter
	dedupMisses     prometheus.Counter
	volumesEmitted  *prometheus.CounterVec
	volumesRotated  prometheus.Counter
	capacityWarning prometheus.Counter
}

var _ pipeline.Metrics = (*Pipeline)(nil)

// NewPipeline registers the pipeline metric set against reg and returns a
// pipeline.Metrics implementation. Pass a dedicated *prometheus.Registry
// (not the global one) when running multiple Cores that each want their own
// registry, or prometheus.DefaultRegisterer otherwise.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	return &Pipeline{
		blocksObserved: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "blockpack_pipeline_blocks_observed_total",
			Help: "Total number of candidate blocks read from Input.",
		}),
		dedupHits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "blockpack_pipeline_dedup_hits_total",
			Help: "Total number of blocks whose (hash_key, size) was already indexed.",
		}),
		dedupMisses: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "blockpack_pipeline_dedup_misses_total",
			Help: "Total number of blocks that caused a new index row (was_new).",
		}),
		volumesEmitted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "blockpack_pipeline_volumes_emitted_total",
			Help: "Total number of closed volumes emitted, labeled by destination.",
		}, []string{"destination"}),
		volumesRotated: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "blockpack_pipeline_volumes_rotated_total",
			Help: "Total number of capacity-triggered volume rotations.",
		}),
		capacityWarning: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "blockpack_pipeline_capacity_warnings_total",
			Help: "Total number of blocks whose observed compressed growth exceeded the advisory bound.",
		}),
	}
}

func (p *Pipeline) BlockObserved() { p.blocksObserved.Inc() }
func (p *Pipeline) DedupHit()      { p.dedupHits.Inc() }
func (p *Pipeline) DedupMiss()     { p.dedupMisses.Inc() }
func (p *Pipeline) VolumeEmitted(destination string) {
	p.volumesEmitted.WithLabelValues(destination).Inc()
}
func (p *Pipeline) VolumeRotated()   { p.volumesRotated.Inc() }
func (p *Pipeline) CapacityWarning() { p.capacityWarning.Inc() }
