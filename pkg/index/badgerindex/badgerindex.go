// Package badgerindex implements the Block Index Client (C1) on an
// embedded BadgerDB, for single-node deployments. Every dedup primitive
// runs inside a Badger transaction; Badger's optimistic concurrency control
// can abort a transaction with ErrConflict when two shards race on the same
// key, so add_block and move_block_to_volume retry on conflict (see
// updateWithConflictRetry) rather than surface it as a failure, matching the
// protocol's tolerance for the benign find-or-insert race.
package badgerindex

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/blockpack/blockpack/internal/logger"
	"github.com/blockpack/blockpack/pkg/index"
)

const (
	blockPrefix  = "blk:"  // blk:{hash_key}:{size} -> blockRow
	volumePrefix = "vol:"  // vol:{id} -> volumeRow
	seqKey       = "seq:volume"

	// maxConflictRetries bounds how many times a transaction is re-run after
	// badger.ErrConflict before giving up. Two shards racing to add_block
	// the same (hash_key, size) is the expected "benign race" the dedup
	// protocol tolerates (P6): one writer wins, the other's optimistic
	// transaction aborts and must re-read the now-committed row rather than
	// surface the conflict as a failure.
	maxConflictRetries = 16
)

type blockRow struct {
	VolumeID int64 `json:"volume_id"`
}

type volumeRow struct {
	Filename string            `json:"filename"`
	Kind     index.VolumeKind  `json:"kind"`
	State    index.VolumeState `json:"state"`
}

// Store is a Badger-backed index.Client.
type Store struct {
	db  *badgerdb.DB
	seq *badgerdb.Sequence
}

var _ index.Client = (*Store)(nil)

// Open opens (creating if absent) a Badger database at dir.
func Open(dir string) (*Store, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, index.NewDatabaseError("open", index.ErrUnavailable, err)
	}
	seq, err := db.GetSequence([]byte(seqKey), 100)
	if err != nil {
		_ = db.Close()
		return nil, index.NewDatabaseError("open", index.ErrUnavailable, err)
	}
	return &Store{db: db, seq: seq}, nil
}

func blockKey(hashKey string, size uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], size)
	return append([]byte(blockPrefix+hashKey+":"), buf[:]...)
}

func volumeKey(id int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return append([]byte(volumePrefix), buf[:]...)
}

// updateWithConflictRetry runs fn in a badger transaction, retrying when two
// transactions touch the same keys and badger's optimistic concurrency
// control aborts one of them with ErrConflict. fn must be safe to re-run: it
// re-reads whatever it needs from the fresh txn each attempt, so a retry
// naturally observes whatever the winning transaction committed.
func updateWithConflictRetry(db *badgerdb.DB, fn func(txn *badgerdb.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = db.Update(fn)
		if err != badgerdb.ErrConflict {
			return err
		}
	}
	return err
}

// FindBlockID implements index.Client.
func (s *Store) FindBlockID(ctx context.Context, hashKey string, size uint64) (int64, error) {
	var volumeID int64 = index.NoVolume
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(blockKey(hashKey, size))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var row blockRow
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &row)
		}); err != nil {
			return err
		}
		volumeID = row.VolumeID
		return nil
	})
	if err != nil {
		return index.NoVolume, index.NewDatabaseError("find_block_id", index.ErrUnknown, err)
	}
	return volumeID, nil
}

// RegisterRemoteVolume implements index.Client.
func (s *Store) RegisterRemoteVolume(ctx context.Context, filename string, kind index.VolumeKind) (int64, error) {
	next, err := s.seq.Next()
	if err != nil {
		return 0, index.NewDatabaseError("register_remote_volume", index.ErrUnavailable, err)
	}
	id := int64(next) + 1 // sequence starts at 0; volume ids are 1-based
	row := volumeRow{Filename: filename, Kind: kind, State: index.StateTemporary}
	val, err := json.Marshal(row)
	if err != nil {
		return 0, index.NewDatabaseError("register_remote_volume", index.ErrUnknown, err)
	}
	err = s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(volumeKey(id), val)
	})
	if err != nil {
		return 0, index.NewDatabaseError("register_remote_volume", index.ErrUnknown, err)
	}
	logger.Debug("registered remote volume", logger.VolumeID(id), logger.RemoteName(filename), logger.VolumeKind(kind.String()))
	return id, nil
}

// AddBlock implements index.Client: atomic find-or-insert.
func (s *Store) AddBlock(ctx context.Context, hashKey string, size uint64, volumeID int64) (bool, error) {
	if volumeID < 0 {
		return false, &index.InvariantViolation{Operation: "add_block", Detail: "negative volume_id"}
	}
	var wasNew bool
	err := updateWithConflictRetry(s.db, func(txn *badgerdb.Txn) error {
		key := blockKey(hashKey, size)
		_, err := txn.Get(key)
		if err == nil {
			wasNew = false
			return nil
		}
		if err != badgerdb.ErrKeyNotFound {
			return err
		}
		val, err := json.Marshal(blockRow{VolumeID: volumeID})
		if err != nil {
			return err
		}
		wasNew = true
		return txn.Set(key, val)
	})
	if err != nil {
		return false, index.NewDatabaseError("add_block", index.ErrUnknown, err)
	}
	return wasNew, nil
}

// MoveBlockToVolume implements index.Client: atomic conditional move.
func (s *Store) MoveBlockToVolume(ctx context.Context, hashKey string, size uint64, fromVolumeID, toVolumeID int64) error {
	err := updateWithConflictRetry(s.db, func(txn *badgerdb.Txn) error {
		key := blockKey(hashKey, size)
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		var row blockRow
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &row)
		}); err != nil {
			return err
		}
		if row.VolumeID != fromVolumeID {
			return fmt.Errorf("move_block_to_volume: row maps to %d, expected %d", row.VolumeID, fromVolumeID)
		}
		row.VolumeID = toVolumeID
		val, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return txn.Set(key, val)
	})
	if err != nil {
		return index.NewDatabaseError("move_block_to_volume", index.ErrUnknown, err)
	}
	return nil
}

// CommitTransaction implements index.Client: Badger auto-commits per
// transaction, so this is a durability sync point via Sync.
func (s *Store) CommitTransaction(ctx context.Context, tag string) error {
	if err := s.db.Sync(); err != nil {
		return index.NewDatabaseError("commit_transaction:"+tag, index.ErrUnavailable, err)
	}
	return nil
}

// Close releases the Badger database and its sequence.
func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return index.NewDatabaseError("close", index.ErrUnknown, err)
	}
	if err := s.db.Close(); err != nil {
		return index.NewDatabaseError("close", index.ErrUnknown, err)
	}
	return nil
}
