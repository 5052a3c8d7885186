// Package volume implements the Block Volume Writer: a single append-only
// temp file that blocks are streamed into under compression, tracked through
// an Open -> Closed -> Disposed lifecycle until the Pipeline Core hands it
// off to the uploader.
package volume

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/blockpack/blockpack/internal/logger"
	"github.com/blockpack/blockpack/pkg/bufpool"
	"github.com/blockpack/blockpack/pkg/capacity"
	"github.com/blockpack/blockpack/pkg/index"
)

// State is a position in the volume lifecycle. Transitions only move
// forward: Open -> Closed -> Disposed. Close is idempotent; Dispose is
// terminal and may be called from any state to reclaim the temp file.
type State int

const (
	StateOpen State = iota
	StateClosed
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// CapacityWarning records an observed compressed-size growth that exceeded
// the monotone cost bound promised by Capacity Planner. Per the advisory
// resolution, this never fails the write — it's surfaced so callers can log
// or count it, and nothing more.
type CapacityWarning struct {
	HashKey  string
	Offset   uint64
	Size     uint64
	Hint     string
	Observed uint64
	Bound    uint64
}

// Options configures a new Writer.
type Options struct {
	Codec   Codec
	TempDir string
	// OnCapacityWarning, if set, is invoked synchronously from AddBlock
	// whenever the observed file_size growth exceeds the worst-case bound.
	OnCapacityWarning func(CapacityWarning)
}

// Writer is a single Block Volume's temp file plus compressing encoder. A
// Writer is not safe for concurrent use; the Pipeline Core owns exactly one
// per shard at a time.
type Writer struct {
	mu sync.Mutex

	state State

	volumeID       int64
	remoteFilename string

	tempFile *os.File
	counter  *countingWriter
	enc      io.WriteCloser
	flusher  interface{ Flush() error }

	sourceSize uint64
	fileSize   uint64

	onCapacityWarning func(CapacityWarning)
}

// New creates a fresh Open volume backed by a new temp file under
// opts.TempDir (the OS default temp dir if empty).
func New(opts Options) (*Writer, error) {
	codec := opts.Codec
	if codec == nil {
		codec = NewZstdCodec(0)
	}

	f, err := os.CreateTemp(opts.TempDir, "blockpack-volume-*.tmp")
	if err != nil {
		return nil, newWriteError("create temp file", err)
	}

	counter := &countingWriter{w: f}
	enc, err := codec.NewEncoder(counter)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, newWriteError("init encoder", err)
	}

	flusher, _ := enc.(interface{ Flush() error })

	return &Writer{
		state:             StateOpen,
		volumeID:          index.NoVolume,
		remoteFilename:    uuid.NewString(),
		tempFile:          f,
		counter:           counter,
		enc:               enc,
		flusher:           flusher,
		onCapacityWarning: opts.OnCapacityWarning,
	}, nil
}

// VolumeID returns the index-assigned identifier, or index.NoVolume (-1) if
// RegisterRemoteVolume hasn't been called yet for this volume.
func (w *Writer) VolumeID() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.volumeID
}

// SetVolumeID records the identifier assigned by the Block Index Client.
// Called once, after RegisterRemoteVolume, since the remote filename (and
// therefore the temp file) already exists before the volume has an id.
func (w *Writer) SetVolumeID(id int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.volumeID = id
}

// RemoteFilename is the object key this volume will be uploaded under.
// Generated at construction so it's stable regardless of when (or whether)
// an index id is assigned.
func (w *Writer) RemoteFilename() string {
	return w.remoteFilename
}

func (w *Writer) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// SourceSize is the sum of uncompressed block sizes appended so far.
func (w *Writer) SourceSize() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sourceSize
}

// FileSize is the compressed size actually flushed to the temp file so far.
func (w *Writer) FileSize() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fileSize
}

// AddBlock appends one block's bytes to the volume, compressing as it goes,
// and returns the file_size immediately after the block was flushed. offset
// is the source-relative byte offset the block came from (carried through
// for diagnostics only, never interpreted as a slice into data); hint is an
// opaque compression hint forwarded from block.Block.Hint — C2 treats it as
// caller metadata and doesn't branch encoding behavior on it, since spec.md
// leaves hint's interpretation to the codec/caller, not to the volume
// writer. The growth since the previous call is checked against
// capacity.WorstCase(size); an overrun is reported via onCapacityWarning but
// never returned as an error, since C2's cost bound is advisory (resolved
// open question).
func (w *Writer) AddBlock(ctx context.Context, hashKey string, data []byte, offset, size uint64, hint string) (fileSize uint64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateOpen {
		return 0, &StateError{Op: "AddBlock", State: w.state}
	}

	before := w.counter.n

	buf := bufpool.Get(len(data))
	defer bufpool.Put(buf)

	if _, err := io.CopyBuffer(w.enc, bytes.NewReader(data), buf); err != nil {
		return 0, newWriteError("write block", err)
	}
	if w.flusher != nil {
		if err := w.flusher.Flush(); err != nil {
			return 0, newWriteError("flush encoder", err)
		}
	}

	after := w.counter.n
	growth := after - before

	w.sourceSize += size
	w.fileSize = after

	if bound := capacity.WorstCase(size); growth > bound && w.onCapacityWarning != nil {
		w.onCapacityWarning(CapacityWarning{
			HashKey:  hashKey,
			Offset:   offset,
			Size:     size,
			Hint:     hint,
			Observed: growth,
			Bound:    bound,
		})
	}

	return after, nil
}

// Close finalizes the compressed stream and syncs the temp file to disk.
// Idempotent: calling Close on an already-Closed volume is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateClosed || w.state == StateDisposed {
		return nil
	}

	if err := w.enc.Close(); err != nil {
		return newWriteError("finalize encoder", err)
	}
	w.fileSize = w.counter.n
	if err := w.tempFile.Sync(); err != nil {
		return newWriteError("sync temp file", err)
	}

	w.state = StateClosed
	return nil
}

// Dispose releases the temp file and marks the volume terminal. Safe to call
// from any state, including after Close, and safe to call more than once.
func (w *Writer) Dispose() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateDisposed {
		return nil
	}
	if w.state == StateOpen {
		_ = w.enc.Close()
	}

	name := w.tempFile.Name()
	closeErr := w.tempFile.Close()
	removeErr := os.Remove(name)

	w.state = StateDisposed

	if closeErr != nil {
		return newWriteError("close temp file", closeErr)
	}
	if removeErr != nil && !os.IsNotExist(removeErr) {
		return newWriteError("remove temp file", removeErr)
	}
	return nil
}

// AppendClosedVolume concatenates another already-Closed volume's raw
// compressed bytes directly onto w's underlying temp file, bypassing w's
// encoder entirely. This relies on the zstd frame format being
// self-delimiting and concatenation-safe: a decoder reading the combined
// stream sees one logical sequence of frames, which is exactly how
// pkg/uploader.MergeSpill coalesces partial spill volumes from independent
// shards without re-compressing their contents. w must be Open; src must be
// Closed.
func (w *Writer) AppendClosedVolume(ctx context.Context, src *Writer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateOpen {
		return &StateError{Op: "AppendClosedVolume", State: w.state}
	}

	src.mu.Lock()
	if src.state != StateClosed {
		src.mu.Unlock()
		return &StateError{Op: "AppendClosedVolume(src)", State: src.state}
	}
	name := src.tempFile.Name()
	srcSourceSize := src.sourceSize
	src.mu.Unlock()

	f, err := os.Open(name)
	if err != nil {
		return newWriteError("reopen source volume", err)
	}
	defer f.Close()

	buf := bufpool.Get(bufpool.DefaultConfig().MediumSize)
	defer bufpool.Put(buf)

	n, err := io.CopyBuffer(w.counter, f, buf)
	if err != nil {
		return newWriteError("append closed volume", err)
	}

	w.sourceSize += srcSourceSize
	w.fileSize += uint64(n)
	return nil
}

// CopyTo streams the closed volume's compressed bytes to dst, for handoff to
// an uploader. The volume must already be Closed.
func (w *Writer) CopyTo(ctx context.Context, dst io.Writer) (int64, error) {
	w.mu.Lock()
	if w.state != StateClosed {
		w.mu.Unlock()
		return 0, &StateError{Op: "CopyTo", State: w.state}
	}
	name := w.tempFile.Name()
	w.mu.Unlock()

	f, err := os.Open(name)
	if err != nil {
		return 0, newWriteError("reopen temp file", err)
	}
	defer f.Close()

	buf := bufpool.Get(bufpool.DefaultConfig().MediumSize)
	defer bufpool.Put(buf)

	n, err := io.CopyBuffer(dst, f, buf)
	if err != nil {
		return n, newWriteError("copy volume", err)
	}
	return n, nil
}

// LogFields returns the structured fields used whenever the Pipeline Core
// logs something about this volume.
func (w *Writer) LogFields() []any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return []any{
		logger.VolumeID(w.volumeID),
		logger.RemoteName(w.remoteFilename),
		logger.VolumeState(w.state.String()),
		logger.FileSize(w.fileSize),
		logger.SourceSize(w.sourceSize),
	}
}

// countingWriter tracks total bytes written so file_size reflects exactly
// what has been flushed to the temp file, not what the encoder has buffered.
type countingWriter struct {
	w io.Writer
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}
