package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/blockpack/blockpack/pkg/index"
)

// memIndex is an in-process index.Client for pipeline tests, equivalent to
// pkg/index/badgerindex but without touching disk — fast and deterministic
// for exercising the concurrency and race properties the test suite checks.
type memIndex struct {
	mu      sync.Mutex
	blocks  map[string]int64
	nextID  int64
	commits int
}

func newMemIndex() *memIndex {
	return &memIndex{blocks: make(map[string]int64)}
}

func key(hashKey string, size uint64) string {
	return fmt.Sprintf("%s/%d", hashKey, size)
}

func (m *memIndex) FindBlockID(ctx context.Context, hashKey string, size uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.blocks[key(hashKey, size)]; ok {
		return id, nil
	}
	return index.NoVolume, nil
}

func (m *memIndex) RegisterRemoteVolume(ctx context.Context, filename string, kind index.VolumeKind) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID, nil
}

func (m *memIndex) AddBlock(ctx context.Context, hashKey string, size uint64, volumeID int64) (bool, error) {
	if volumeID < 0 {
		return false, &index.InvariantViolation{Operation: "add_block", Detail: "negative volume id"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(hashKey, size)
	if _, ok := m.blocks[k]; ok {
		return false, nil
	}
	m.blocks[k] = volumeID
	return true, nil
}

func (m *memIndex) MoveBlockToVolume(ctx context.Context, hashKey string, size uint64, fromVolumeID, toVolumeID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(hashKey, size)
	cur, ok := m.blocks[k]
	if !ok || cur != fromVolumeID {
		return index.NewDatabaseError("move_block_to_volume", index.ErrConstraintViolation, nil)
	}
	m.blocks[k] = toVolumeID
	return nil
}

func (m *memIndex) CommitTransaction(ctx context.Context, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	return nil
}

func (m *memIndex) Close() error { return nil }

func (m *memIndex) volumeOf(hashKey string, size uint64) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.blocks[key(hashKey, size)]
	return id, ok
}

func (m *memIndex) seedDuplicate(hashKey string, size uint64, volumeID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[key(hashKey, size)] = volumeID
}
