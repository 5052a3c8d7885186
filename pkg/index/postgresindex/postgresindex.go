// Package postgresindex implements the Block Index Client (C1) against a
// shared PostgreSQL database, for multi-shard and multi-host deployments
// where the embedded Badger backend (pkg/index/badgerindex) cannot be
// shared.
package postgresindex

import (
	"context"
	"errors"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blockpack/blockpack/internal/logger"
	"github.com/blockpack/blockpack/pkg/index"
)

// Store is a PostgreSQL-backed index.Client.
type Store struct {
	db *gorm.DB
}

var _ index.Client = (*Store)(nil)

// Open connects to dsn and returns a ready Store. Callers are expected to
// have already applied the schema migration in
// pkg/index/postgresindex/migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, index.NewDatabaseError("open", index.ErrUnavailable, err)
	}
	return &Store{db: db}, nil
}

// FindBlockID implements index.Client.
func (s *Store) FindBlockID(ctx context.Context, hashKey string, size uint64) (int64, error) {
	var row blockRow
	err := s.db.WithContext(ctx).
		Where("hash_key = ? AND size = ?", hashKey, size).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return index.NoVolume, nil
	}
	if err != nil {
		return index.NoVolume, index.NewDatabaseError("find_block_id", index.ErrUnknown, err)
	}
	return row.VolumeID, nil
}

// RegisterRemoteVolume implements index.Client.
func (s *Store) RegisterRemoteVolume(ctx context.Context, filename string, kind index.VolumeKind) (int64, error) {
	row := volumeRow{Filename: filename, Kind: kindToInt(kind), State: stateToInt(index.StateTemporary)}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, index.NewDatabaseError("register_remote_volume", index.ErrUnknown, err)
	}
	logger.Debug("registered remote volume", logger.VolumeID(row.ID), logger.RemoteName(filename), logger.VolumeKind(kind.String()))
	return row.ID, nil
}

// AddBlock implements index.Client: atomic find-or-insert via a single
// INSERT ... ON CONFLICT DO NOTHING, disambiguated by RowsAffected.
func (s *Store) AddBlock(ctx context.Context, hashKey string, size uint64, volumeID int64) (bool, error) {
	if volumeID < 0 {
		return false, &index.InvariantViolation{Operation: "add_block", Detail: "negative volume_id"}
	}
	result := s.db.WithContext(ctx).
		Clauses(onConflictDoNothing()).
		Create(&blockRow{HashKey: hashKey, Size: size, VolumeID: volumeID})
	if result.Error != nil {
		return false, index.NewDatabaseError("add_block", index.ErrUnknown, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// MoveBlockToVolume implements index.Client: atomic conditional UPDATE.
func (s *Store) MoveBlockToVolume(ctx context.Context, hashKey string, size uint64, fromVolumeID, toVolumeID int64) error {
	result := s.db.WithContext(ctx).Model(&blockRow{}).
		Where("hash_key = ? AND size = ? AND volume_id = ?", hashKey, size, fromVolumeID).
		Update("volume_id", toVolumeID)
	if result.Error != nil {
		return index.NewDatabaseError("move_block_to_volume", index.ErrUnknown, result.Error)
	}
	if result.RowsAffected == 0 {
		return index.NewDatabaseError("move_block_to_volume", index.ErrConstraintViolation,
			errors.New("row does not map to expected from_volume_id"))
	}
	return nil
}

// CommitTransaction implements index.Client. Each operation above already
// commits on return, so this is a no-op durability checkpoint retained for
// protocol symmetry with the Pipeline Core's call sites.
func (s *Store) CommitTransaction(ctx context.Context, tag string) error {
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return index.NewDatabaseError("close", index.ErrUnknown, err)
	}
	if err := sqlDB.Close(); err != nil {
		return index.NewDatabaseError("close", index.ErrUnknown, err)
	}
	return nil
}
