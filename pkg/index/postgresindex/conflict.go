package postgresindex

import "gorm.io/gorm/clause"

// onConflictDoNothing builds the ON CONFLICT DO NOTHING clause AddBlock
// relies on to make find-or-insert atomic: a duplicate key produces
// RowsAffected == 0 instead of an error.
func onConflictDoNothing() clause.OnConflict {
	return clause.OnConflict{DoNothing: true}
}
