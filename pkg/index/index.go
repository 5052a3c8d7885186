// Package index defines the Block Index Client contract: the atomic
// dedup primitives a Pipeline Core shard uses against the durable,
// shared block database, plus volume registration and commit.
//
// Implementations must be safe for concurrent use by multiple pipeline
// shards; add_block and move_block_to_volume must serialize against each
// other per (hash_key, size).
package index

import "context"

// VolumeKind distinguishes a block-data volume from an auxiliary index
// volume built from an Index Accumulator.
type VolumeKind int

const (
	KindBlocks VolumeKind = iota
	KindIndex
)

func (k VolumeKind) String() string {
	switch k {
	case KindBlocks:
		return "blocks"
	case KindIndex:
		return "index"
	default:
		return "unknown"
	}
}

// VolumeState is the durable lifecycle of a registered volume row, distinct
// from the in-memory Open/Closed/Disposed state of a volume writer.
type VolumeState int

const (
	// StateTemporary means the volume is registered and blocks are indexed
	// against it, but it has not yet been durably uploaded.
	StateTemporary VolumeState = iota
	// StateUploaded means the uploader has acknowledged the volume.
	StateUploaded
)

func (s VolumeState) String() string {
	switch s {
	case StateTemporary:
		return "temporary"
	case StateUploaded:
		return "uploaded"
	default:
		return "unknown"
	}
}

// NoVolume is the sentinel volume_id returned by FindBlockID when no row
// exists for the given (hash_key, size).
const NoVolume int64 = -1

// Client is the Block Index Client contract (C1). Every method may suspend
// on I/O and must fail with a *DatabaseError on any backend failure; the
// Pipeline Core treats such failures as fatal to its shard.
type Client interface {
	// FindBlockID returns the volume_id of an existing (hash_key, size) row,
	// or NoVolume if absent.
	FindBlockID(ctx context.Context, hashKey string, size uint64) (int64, error)

	// RegisterRemoteVolume allocates a fresh volume_id for a new remote
	// object of the given kind, in StateTemporary.
	RegisterRemoteVolume(ctx context.Context, filename string, kind VolumeKind) (int64, error)

	// AddBlock is an atomic find-or-insert: if no row exists for
	// (hashKey, size) it inserts one mapped to volumeID and returns
	// wasNew=true; otherwise the existing row is left untouched and
	// wasNew=false is returned. Must serialize against concurrent AddBlock
	// and MoveBlockToVolume calls for the same key.
	AddBlock(ctx context.Context, hashKey string, size uint64, volumeID int64) (wasNew bool, err error)

	// MoveBlockToVolume atomically reassigns the (hashKey, size) row from
	// fromVolumeID to toVolumeID, succeeding only if the row currently maps
	// to fromVolumeID.
	MoveBlockToVolume(ctx context.Context, hashKey string, size uint64, fromVolumeID, toVolumeID int64) error

	// CommitTransaction flushes pending work to durable storage. tag is an
	// opaque diagnostic label; implementations may ignore it.
	CommitTransaction(ctx context.Context, tag string) error

	// Close releases backend resources (connection pools, file handles).
	Close() error
}
