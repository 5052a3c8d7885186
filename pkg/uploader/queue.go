package uploader

import (
	"context"
	"sync"
	"time"

	"github.com/blockpack/blockpack/internal/logger"
	"github.com/blockpack/blockpack/pkg/pipeline"
)

// QueueConfig configures a Queue.
type QueueConfig struct {
	// Workers is the number of concurrent upload goroutines.
	Workers int
	// UploadTimeout bounds a single PutVolume call.
	UploadTimeout time.Duration
	// Metrics receives upload events. NopMetrics{} if nil.
	Metrics Metrics
}

// Queue drains a pipeline's Output and SpillPickup channels with a fixed
// worker pool, handing each request to Backend.PutVolume. Mirrors the
// teacher's TransferQueue: workers race on one shared inbound channel, and
// Stop drains whatever remains queued before returning.
type Queue struct {
	backend Backend
	metrics Metrics

	inbox   chan pipeline.VolumeUploadRequest
	workers int
	timeout time.Duration

	feedWG    sync.WaitGroup
	wg        sync.WaitGroup
	stoppedCh chan struct{}

	mu      sync.Mutex
	started bool
}

// NewQueue constructs a Queue backed by backend. inboxSize bounds how many
// requests may be buffered across both the Output and SpillPickup feeds
// combined.
func NewQueue(backend Backend, inboxSize int, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 5 * time.Minute
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Queue{
		backend:   backend,
		metrics:   metrics,
		inbox:     make(chan pipeline.VolumeUploadRequest, inboxSize),
		workers:   cfg.Workers,
		timeout:   cfg.UploadTimeout,
		stoppedCh: make(chan struct{}),
	}
}

// Feed starts a goroutine that forwards every request read from src into
// the Queue's inbox until src closes. Call once per source channel (Output,
// SpillPickup) before Start, and close src only once every Pipeline Core
// shard writing to it has returned — Stop closes the inbox once every Feed
// goroutine has drained its source, so a src closed early would make that
// guarantee meaningless.
func (q *Queue) Feed(src <-chan pipeline.VolumeUploadRequest) {
	q.feedWG.Add(1)
	go func() {
		defer q.feedWG.Done()
		for req := range src {
			q.inbox <- req
		}
	}()
}

// Start launches the worker pool.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	logger.Info("starting uploader queue", logger.KeyBackend, q.backend.Name(), "workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	go func() {
		q.wg.Wait()
		close(q.stoppedCh)
	}()
}

// Stop waits for every Feed source to close (the caller must have already
// stopped writing to Output/SpillPickup), closes the inbox once drained,
// and waits up to timeout for in-flight uploads to finish.
func (q *Queue) Stop(timeout time.Duration) {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	q.feedWG.Wait()
	close(q.inbox)

	select {
	case <-q.stoppedCh:
	case <-time.After(timeout):
		logger.Warn("uploader queue stop timed out")
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for req := range q.inbox {
		q.process(ctx, req)
	}
}

func (q *Queue) process(parent context.Context, req pipeline.VolumeUploadRequest) {
	ctx, cancel := context.WithTimeout(parent, q.timeout)
	defer cancel()

	start := time.Now()
	sourceSize := int64(req.Volume.SourceSize())
	err := q.backend.PutVolume(ctx, req)
	q.metrics.ObserveUpload(q.backend.Name(), sourceSize, time.Since(start), err)

	if err != nil {
		logger.Error("volume upload failed", logger.VolumeID(req.Volume.VolumeID()), logger.Err(err))
		return
	}
	logger.Info("volume uploaded", logger.VolumeID(req.Volume.VolumeID()), logger.Backend(q.backend.Name()))
	_ = req.Volume.Dispose()
	if req.IndexAccu != nil {
		_ = req.IndexAccu.Discard()
	}
}
