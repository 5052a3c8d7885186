package uploader

import (
	"context"
	"fmt"

	"github.com/blockpack/blockpack/internal/logger"
	"github.com/blockpack/blockpack/pkg/index"
	"github.com/blockpack/blockpack/pkg/pipeline"
	"github.com/blockpack/blockpack/pkg/volume"
)

// MergeSpill coalesces several partial SpillPickup volumes, produced by
// independent Pipeline Core shards draining at shutdown, into a single
// volume before upload. Per §8 scenario notes, a separate consumer "may
// merge partial volumes from multiple producer shards" — this is that
// consumer. Every input req.Volume must already be Closed; the merged
// volume is itself Closed and ready to hand to a Backend. With two or more
// inputs, they are disposed once copied, whether MergeSpill succeeds or
// fails; a single input is returned unchanged and is not disposed.
func MergeSpill(ctx context.Context, idx index.Client, reqs []pipeline.VolumeUploadRequest, opts volume.Options) (pipeline.VolumeUploadRequest, error) {
	cleanup := func() {
		for _, r := range reqs {
			_ = r.Volume.Dispose()
			if r.IndexAccu != nil {
				_ = r.IndexAccu.Discard()
			}
		}
	}

	if len(reqs) == 0 {
		return pipeline.VolumeUploadRequest{}, fmt.Errorf("uploader: merge spill: no volumes given")
	}
	if len(reqs) == 1 {
		return reqs[0], nil
	}

	merged, err := volume.New(opts)
	if err != nil {
		cleanup()
		return pipeline.VolumeUploadRequest{}, fmt.Errorf("uploader: merge spill: open merged volume: %w", err)
	}

	volID, err := idx.RegisterRemoteVolume(ctx, merged.RemoteFilename(), index.KindBlocks)
	if err != nil {
		_ = merged.Dispose()
		cleanup()
		return pipeline.VolumeUploadRequest{}, fmt.Errorf("uploader: merge spill: register merged volume: %w", err)
	}
	merged.SetVolumeID(volID)

	for _, r := range reqs {
		if err := merged.AppendClosedVolume(ctx, r.Volume); err != nil {
			_ = merged.Dispose()
			cleanup()
			return pipeline.VolumeUploadRequest{}, fmt.Errorf("uploader: merge spill: append volume %d: %w", r.Volume.VolumeID(), err)
		}
	}
	if err := merged.Close(); err != nil {
		cleanup()
		return pipeline.VolumeUploadRequest{}, fmt.Errorf("uploader: merge spill: close merged volume: %w", err)
	}

	logger.Info("merged spill volumes", logger.VolumeID(volID), "input_count", len(reqs))
	cleanup()
	return pipeline.VolumeUploadRequest{Volume: merged, Close: true}, nil
}
