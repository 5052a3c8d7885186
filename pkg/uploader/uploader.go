// Package uploader is the concrete consumer the Pipeline Core's Output and
// SpillPickup channels are specified against but never implement: a
// bounded worker pool that drains VolumeUploadRequests, transmits the
// volume's bytes (and, if present, synthesizes an index volume from its
// Index Accumulator) to a remote backend, and discards local temp state
// once the transfer is acknowledged.
//
// Modeled directly on the teacher's pkg/payload/transfer.TransferQueue:
// a buffered channel, a fixed worker pool, and a graceful Stop that drains
// whatever is still queued before returning.
package uploader

import (
	"context"
	"time"

	"github.com/blockpack/blockpack/pkg/pipeline"
)

// Backend transmits one volume (and its optional index accumulator) to
// remote storage. Implementations are expected to be safe for concurrent
// use by multiple queue workers.
type Backend interface {
	// PutVolume uploads req.Volume's compressed byte stream under
	// req.Volume.RemoteFilename(), and, if req.IndexAccu is non-nil,
	// synthesizes and uploads an index volume describing its entries.
	// req.Volume must already be Closed.
	PutVolume(ctx context.Context, req pipeline.VolumeUploadRequest) error

	// Name identifies the backend for metrics/logging, e.g. "s3" or
	// "filesystem".
	Name() string
}

// Metrics receives uploader events for observability. pkg/metrics provides
// a Prometheus-backed implementation; NopMetrics is used when none is
// configured.
type Metrics interface {
	ObserveUpload(destination string, bytes int64, d time.Duration, err error)
	QueueDropped()
}

// NopMetrics discards every event.
type NopMetrics struct{}

func (NopMetrics) ObserveUpload(string, int64, time.Duration, error) {}
func (NopMetrics) QueueDropped()                                    {}
