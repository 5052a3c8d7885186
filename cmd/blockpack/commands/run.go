package commands

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/blockpack/blockpack/internal/config"
	"github.com/blockpack/blockpack/internal/logger"
	"github.com/blockpack/blockpack/internal/splitter"
	"github.com/blockpack/blockpack/pkg/block"
	"github.com/blockpack/blockpack/pkg/index"
	"github.com/blockpack/blockpack/pkg/index/badgerindex"
	"github.com/blockpack/blockpack/pkg/index/postgresindex"
	blockmetrics "github.com/blockpack/blockpack/pkg/metrics"
	"github.com/blockpack/blockpack/pkg/pipeline"
	"github.com/blockpack/blockpack/pkg/uploader"
	"github.com/blockpack/blockpack/pkg/volume"
)

var runMetricsAddr string

var runCmd = &cobra.Command{
	Use:   "run <directory>",
	Short: "Split the files under a directory into blocks and run them through the Data Block Processor",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9090 (disabled if empty)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	pipelineMetrics := blockmetrics.NewPipeline(reg)
	uploaderMetrics := blockmetrics.NewUploader(reg)

	var metricsSrv *http.Server
	if runMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: runMetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", logger.Err(err))
			}
		}()
		logger.Info("metrics server listening", "addr", runMetricsAddr)
	}

	idx, err := openIndex(ctx, cfg.Index)
	if err != nil {
		return err
	}
	defer func() {
		if err := idx.Close(); err != nil {
			logger.Error("index close error", logger.Err(err))
		}
	}()

	backend, err := openUploaderBackend(ctx, cfg.Uploader)
	if err != nil {
		return err
	}

	queue := uploader.NewQueue(backend, cfg.Uploader.QueueSize, uploader.QueueConfig{
		Workers:       cfg.Uploader.Workers,
		UploadTimeout: cfg.Uploader.StopTimeout,
		Metrics:       uploaderMetrics,
	})

	channels := pipeline.NewChannels(cfg.Shards*4, cfg.Uploader.QueueSize, cfg.Uploader.QueueSize, 256)
	queue.Feed(channels.Output)
	queue.Feed(channels.SpillPickup)
	queue.Start(ctx)

	reader := pipeline.NewTaskReader()

	codec, err := buildCodec(cfg.Volume)
	if err != nil {
		return err
	}

	var coresWG sync.WaitGroup
	for i := 0; i < cfg.Shards; i++ {
		shardID := fmt.Sprintf("shard-%d", i)
		core := pipeline.New(pipeline.Options{
			VolumeSize:      uint64(cfg.Volume.Size),
			IndexFilePolicy: indexPolicy(cfg.IndexFilePolicy),
			TempDir:         cfg.TempDir,
			Codec:           codec,
			ShardID:         shardID,
			Metrics:         pipelineMetrics,
		}, idx, channels.ForShard(), reader)

		coresWG.Add(1)
		go func() {
			defer coresWG.Done()
			if err := core.Run(ctx); err != nil {
				logger.Error("pipeline shard stopped with error", "shard", shardID, logger.Err(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received, terminating")
		reader.Terminate()
		cancel()
	}()

	if err := feedDirectory(channels.Input, args[0]); err != nil {
		logger.Error("error walking input directory", logger.Err(err))
	}
	close(channels.Input)

	coresWG.Wait()
	close(channels.Output)
	close(channels.SpillPickup)

	queue.Stop(cfg.Uploader.StopTimeout)
	signal.Stop(sigCh)

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	logger.Info("run complete")
	return nil
}

func openIndex(ctx context.Context, cfg config.IndexConfig) (index.Client, error) {
	switch cfg.Backend {
	case "badger":
		return badgerindex.Open(cfg.BadgerDir)
	case "postgres":
		return postgresindex.Open(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
}

func openUploaderBackend(ctx context.Context, cfg config.UploaderConfig) (uploader.Backend, error) {
	switch cfg.Backend {
	case "filesystem":
		return uploader.NewFSBackend(cfg.FilesystemDir)
	case "s3":
		return uploader.NewS3Backend(ctx, uploader.S3BackendConfig{
			Bucket: cfg.S3.Bucket,
			Prefix: cfg.S3.Prefix,
			Region: cfg.S3.Region,
		})
	default:
		return nil, fmt.Errorf("unknown uploader backend %q", cfg.Backend)
	}
}

func buildCodec(cfg config.VolumeConfig) (volume.Codec, error) {
	level := zstd.SpeedDefault
	switch cfg.ZstdLevel {
	case "fastest":
		level = zstd.SpeedFastest
	case "better":
		level = zstd.SpeedBetterCompression
	case "best":
		level = zstd.SpeedBestCompression
	case "", "default":
		level = zstd.SpeedDefault
	default:
		return nil, fmt.Errorf("unknown zstd level %q", cfg.ZstdLevel)
	}
	return volume.NewZstdCodec(level), nil
}

func indexPolicy(s string) pipeline.IndexPolicy {
	switch s {
	case "none":
		return pipeline.IndexPolicyNone
	case "lookup":
		return pipeline.IndexPolicyLookup
	default:
		return pipeline.IndexPolicyFull
	}
}

// feedDirectory walks dir, splitting every regular file into fixed-size
// candidate blocks and placing them on input in order. It waits on each
// block's Completion before moving to the next so a slow downstream
// naturally backpressures the walk, and logs (without failing the run) any
// completion that reports an error.
func feedDirectory(input chan<- block.Block, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		return splitter.File(path, splitter.Options{}, func(b block.Block) error {
			input <- b
			result := b.Completion.Wait()
			if result.Err != nil {
				logger.Warn("block completion failed", logger.HashKey(b.HashKey), logger.Err(result.Err))
			}
			return nil
		})
	})
}
