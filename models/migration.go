package models

import (
	"gorm.io/gorm"
)

// MigrateTable creates or updates the static tables. Dynamic code tables are created by the inventory store.
func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&Country{}, &Location{}, &Product{}, &ProductGenerationId{}, &Batch{},
		&CodeGenerationRequest{},
		&CodesGenerated{}, &CodeGenerationSummary{},
		&SsccCode{},
		&GlobalSetting{},
	)
}
