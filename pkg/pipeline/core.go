// Package pipeline implements the Pipeline Core (C5), Task Reader (C6), and
// Channel Fabric (C7): the loop that consumes candidate blocks, deduplicates
// them against the Block Index Client, packs accepted blocks into
// compressed volumes, rotates on capacity, and hands closed volumes to the
// uploader.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/blockpack/blockpack/internal/logger"
	"github.com/blockpack/blockpack/pkg/block"
	"github.com/blockpack/blockpack/pkg/capacity"
	"github.com/blockpack/blockpack/pkg/index"
	"github.com/blockpack/blockpack/pkg/volume"
	"github.com/blockpack/blockpack/pkg/volume/indexaccum"
)

// IndexPolicy controls whether the Index Accumulator (C3) is populated.
type IndexPolicy int

const (
	IndexPolicyNone IndexPolicy = iota
	IndexPolicyLookup
	IndexPolicyFull
)

// Options configures one Pipeline Core shard.
type Options struct {
	// VolumeSize is the target maximum compressed volume size, in bytes.
	VolumeSize uint64
	// IndexFilePolicy selects whether C3 is populated (Full) or skipped.
	IndexFilePolicy IndexPolicy
	// TempDir is where C2/C3 scratch files are created.
	TempDir string
	// Codec overrides the default compression codec used by every C2 writer
	// this shard creates. Nil selects the default zstd codec.
	Codec volume.Codec
	// ShardID names this shard for logging and metrics only.
	ShardID string
	// Metrics receives pipeline events. NopMetrics{} if nil.
	Metrics Metrics
}

// Core is one Pipeline Core shard: owns at most one Open volume and one
// bound Index Accumulator at a time. Not safe for concurrent use — run
// multiple Cores as goroutines sharing one Fabric.Input to shard work.
type Core struct {
	opts          Options
	index         index.Client
	fabric        Fabric
	reader        *TaskReader
	maxVolumeSize uint64
	metrics       Metrics

	current *volume.Writer
	accum   *indexaccum.Accumulator
}

// New constructs a Pipeline Core shard bound to idx (the shared Block Index
// Client), reading from and writing to fabric, gated by reader.
func New(opts Options, idx index.Client, fabric Fabric, reader *TaskReader) *Core {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Core{
		opts:          opts,
		index:         idx,
		fabric:        fabric,
		reader:        reader,
		maxVolumeSize: capacity.MaxVolumeSize(opts.VolumeSize),
		metrics:       metrics,
	}
}

// Run drives the shard until Input closes (graceful drain, returns nil),
// the Task Reader terminates (open volume disposed, ErrTerminated
// returned), or a fatal error occurs (DatabaseError, VolumeWriteError,
// InvariantViolation, or a channel write failure).
func (c *Core) Run(ctx context.Context) error {
	for {
		select {
		case b, ok := <-c.fabric.Input:
			if !ok {
				return c.drain(ctx)
			}
			c.metrics.BlockObserved()
			if err := c.handleBlock(ctx, b); err != nil {
				c.abandon(b, err)
				c.disposeCurrent()
				return err
			}
		case <-ctx.Done():
			c.disposeCurrent()
			return ctx.Err()
		}
	}
}

// handleBlock runs the main protocol (spec §4.5) for one received block.
func (c *Core) handleBlock(ctx context.Context, b block.Block) error {
	// Step 1: early dedup probe, pre-volume. Deliberately not folded into
	// add_block — the probe exists to avoid allocating volumes for
	// incremental backups that see mostly-duplicate input; the race it
	// leaves open is resolved by add_block's atomicity in step 3.
	if c.current == nil {
		volID, err := c.index.FindBlockID(ctx, b.HashKey, b.Size)
		if err != nil {
			return wrapIndexError("find_block_id", err)
		}
		if volID >= 0 {
			b.Completion.Resolve(false)
			c.metrics.DedupHit()
			return c.gate(ctx)
		}
	}

	// Step 2: lazy volume creation.
	if c.current == nil {
		if err := c.openVolume(ctx); err != nil {
			return err
		}
	}

	// Step 3: atomic add, resolving the race from step 1.
	wasNew, err := c.index.AddBlock(ctx, b.HashKey, b.Size, c.current.VolumeID())
	if err != nil {
		return wrapIndexError("add_block", err)
	}
	b.Completion.Resolve(wasNew)
	if !wasNew {
		c.metrics.DedupHit()
		return c.gate(ctx)
	}
	c.metrics.DedupMiss()

	// Step 4: capacity check, rotate if required.
	if capacity.ShouldRotate(c.current.FileSize(), b.Size, c.maxVolumeSize) {
		if err := c.rotate(ctx, b); err != nil {
			return err
		}
	}

	// Step 5: append.
	if _, err := c.current.AddBlock(ctx, b.HashKey, b.Data, b.Offset, b.Size, b.Hint); err != nil {
		return fmt.Errorf("pipeline: append block: %w", err)
	}
	if c.accum != nil && b.IsBlocklistHashes {
		if err := c.accum.Append(indexaccum.Entry{HashKey: b.HashKey, Size: b.Size, Data: b.Data}); err != nil {
			return fmt.Errorf("pipeline: append index entry: %w", err)
		}
	}

	// Step 6: progress gate.
	return c.gate(ctx)
}

// gate awaits the Task Reader's progress signal between blocks.
func (c *Core) gate(ctx context.Context) error {
	if err := c.reader.Progress(ctx); err != nil {
		return err
	}
	return nil
}

// openVolume allocates and registers a fresh C2 writer as the current
// volume, and a fresh C3 accumulator if Index policy is Full.
func (c *Core) openVolume(ctx context.Context) error {
	w, err := volume.New(volume.Options{
		Codec:   c.opts.Codec,
		TempDir: c.opts.TempDir,
		OnCapacityWarning: func(warn volume.CapacityWarning) {
			c.metrics.CapacityWarning()
			logger.Warn("volume capacity bound exceeded",
				logger.HashKey(warn.HashKey),
				logger.Size(warn.Size),
				logger.Shard(c.opts.ShardID))
		},
	})
	if err != nil {
		return fmt.Errorf("pipeline: open volume: %w", err)
	}

	volID, err := c.index.RegisterRemoteVolume(ctx, w.RemoteFilename(), index.KindBlocks)
	if err != nil {
		_ = w.Dispose()
		return wrapIndexError("register_remote_volume", err)
	}
	w.SetVolumeID(volID)
	c.current = w

	if c.opts.IndexFilePolicy == IndexPolicyFull {
		accum, err := indexaccum.New(c.opts.TempDir)
		if err != nil {
			_ = w.Dispose()
			c.current = nil
			return fmt.Errorf("pipeline: open index accumulator: %w", err)
		}
		c.accum = accum
	}

	return nil
}

// rotate allocates a fresh volume, transfers the triggering block's row to
// it, closes and emits the outgoing volume, and installs the new one as
// current. If anything after the new volume is allocated fails, the new
// volume is disposed and the error is returned with the old volume still
// owned by Core so the caller's unwind can dispose it.
func (c *Core) rotate(ctx context.Context, b block.Block) error {
	tmp, err := volume.New(volume.Options{
		Codec:   c.opts.Codec,
		TempDir: c.opts.TempDir,
		OnCapacityWarning: func(warn volume.CapacityWarning) {
			c.metrics.CapacityWarning()
		},
	})
	if err != nil {
		return fmt.Errorf("pipeline: rotate: allocate volume: %w", err)
	}

	tmpVolID, err := c.index.RegisterRemoteVolume(ctx, tmp.RemoteFilename(), index.KindBlocks)
	if err != nil {
		_ = tmp.Dispose()
		return wrapIndexError("register_remote_volume", err)
	}
	tmp.SetVolumeID(tmpVolID)

	if err := c.index.MoveBlockToVolume(ctx, b.HashKey, b.Size, c.current.VolumeID(), tmpVolID); err != nil {
		_ = tmp.Dispose()
		return wrapIndexError("move_block_to_volume", err)
	}

	if err := c.current.Close(); err != nil {
		_ = tmp.Dispose()
		return fmt.Errorf("pipeline: rotate: close outgoing volume: %w", err)
	}
	if err := c.index.CommitTransaction(ctx, "CommitAddBlockToOutputFlush"); err != nil {
		_ = tmp.Dispose()
		return wrapIndexError("commit_transaction", err)
	}

	req := VolumeUploadRequest{Volume: c.current, Close: true, IndexAccu: c.accum}
	if err := c.emit(c.fabric.Output, "output", req); err != nil {
		_ = tmp.Dispose()
		return err
	}
	c.metrics.VolumeEmitted("output")
	c.metrics.VolumeRotated()
	c.fabric.logf(fmt.Sprintf("rotated volume %d out, %d in", req.Volume.VolumeID(), tmp.VolumeID()))

	c.current = tmp
	c.accum = nil
	if c.opts.IndexFilePolicy == IndexPolicyFull {
		accum, err := indexaccum.New(c.opts.TempDir)
		if err != nil {
			// tmp already took ownership as current; the outer error path
			// will dispose it along with the now-missing accumulator.
			return fmt.Errorf("pipeline: rotate: open index accumulator: %w", err)
		}
		c.accum = accum
	}
	return nil
}

// drain handles graceful Input retirement: a non-empty open volume is
// emitted to SpillPickup for a downstream merger; an empty one is disposed.
func (c *Core) drain(ctx context.Context) error {
	if c.current == nil {
		return nil
	}
	if c.current.SourceSize() == 0 {
		c.disposeCurrent()
		return nil
	}

	if err := c.current.Close(); err != nil {
		c.disposeCurrent()
		return fmt.Errorf("pipeline: drain: close volume: %w", err)
	}
	if err := c.index.CommitTransaction(ctx, "CommitDrainToSpillPickup"); err != nil {
		c.disposeCurrent()
		return wrapIndexError("commit_transaction", err)
	}

	req := VolumeUploadRequest{Volume: c.current, Close: true, IndexAccu: c.accum}
	if err := c.emit(c.fabric.SpillPickup, "spill_pickup", req); err != nil {
		c.disposeCurrent()
		return err
	}
	c.metrics.VolumeEmitted("spill")
	c.fabric.logf(fmt.Sprintf("drained partial volume %d to spill pickup", req.Volume.VolumeID()))

	c.current = nil
	c.accum = nil
	return nil
}

// emit writes req to ch, treating a closed channel as fatal per the Channel
// Fabric's contract; ChannelFull/Closed is never silently absorbed, since
// partial volumes must never be discarded.
func (c *Core) emit(ch chan<- VolumeUploadRequest, name string, req VolumeUploadRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ChannelError{Channel: name, Err: fmt.Errorf("send on closed channel: %v", r)}
		}
	}()
	ch <- req
	return nil
}

// disposeCurrent releases any owned but not-yet-emitted volume/accumulator,
// used on every abrupt unwind path so no temp file is ever leaked.
func (c *Core) disposeCurrent() {
	if c.current != nil {
		_ = c.current.Dispose()
		c.current = nil
	}
	if c.accum != nil {
		_ = c.accum.Discard()
		c.accum = nil
	}
}

// abandon releases a block's completion with an error when the pipeline
// unwinds on a non-retirement error, per invariant I1.
func (c *Core) abandon(b block.Block, err error) {
	b.Completion.Abandon(err)
}

func wrapIndexError(op string, err error) error {
	var dbErr *index.DatabaseError
	if errors.As(err, &dbErr) {
		return err
	}
	var iv *index.InvariantViolation
	if errors.As(err, &iv) {
		return err
	}
	return index.NewDatabaseError(op, index.ErrUnknown, err)
}
