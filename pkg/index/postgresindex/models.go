package postgresindex

import "github.com/blockpack/blockpack/pkg/index"

// blockRow is the gorm model backing the `blocks` table: the durable
// (hash_key, size) -> volume_id mapping.
type blockRow struct {
	HashKey  string `gorm:"column:hash_key;primaryKey"`
	Size     uint64 `gorm:"column:size;primaryKey"`
	VolumeID int64  `gorm:"column:volume_id;not null"`
}

func (blockRow) TableName() string { return "blocks" }

// volumeRow is the gorm model backing the `volumes` table.
type volumeRow struct {
	ID       int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Filename string `gorm:"column:filename;not null"`
	Kind     int    `gorm:"column:kind;not null"`
	State    int    `gorm:"column:state;not null"`
}

func (volumeRow) TableName() string { return "volumes" }

func kindToInt(k index.VolumeKind) int   { return int(k) }
func stateToInt(s index.VolumeState) int { return int(s) }
