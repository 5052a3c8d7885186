package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/blockpack/blockpack/pkg/uploader"
)

// Uploader is the Prometheus-backed implementation of uploader.Metrics,
// mirroring the bucket layout of pkg/metrics/prometheus/s3.go's operation
// duration histogram.
type Uploader struct {
	uploadsTotal   *prometheus.CounterVec
	uploadDuration *prometheus.HistogramVec
	uploadBytes    *prometheus.CounterVec
	queueDropped   prometheus.Counter
}

var _ uploader.Metrics = (*Uploader)(nil)

// NewUploader registers the uploader metric set against reg.
func NewUploader(reg prometheus.Registerer) *Uploader {
	return &Uploader{
		uploadsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "blockpack_uploader_uploads_total",
			Help: "Total number of volume upload attempts by destination and status.",
		}, []string{"destination", "status"}),
		uploadDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name: "blockpack_uploader_upload_duration_milliseconds",
			Help: "Duration of volume uploads in milliseconds.",
			Buckets: []float64{
				10, 50, 100, 500, 1000, 5000, 10000, 30000,
			},
		}, []string{"destination"}),
		uploadBytes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "blockpack_uploader_bytes_total",
			Help: "Total uncompressed source bytes of volume upload attempts by destination.",
		}, []string{"destination"}),
		queueDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "blockpack_uploader_queue_dropped_total",
			Help: "Total number of VolumeUploadRequests dropped because the upload queue was full.",
		}),
	}
}

func (m *Uploader) ObserveUpload(destination string, bytes int64, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.uploadsTotal.WithLabelValues(destination, status).Inc()
	m.uploadDuration.WithLabelValues(destination).Observe(float64(d.Milliseconds()))
	if bytes > 0 {
		m.uploadBytes.WithLabelValues(destination).Add(float64(bytes))
	}
}

func (m *Uploader) QueueDropped() { m.queueDropped.Inc() }
