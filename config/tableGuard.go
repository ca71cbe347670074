package config

import (
	"fmt"

	"bitbucket.org/mmdatafocus/codepool/utils"
	"gorm.io/gorm"
)

// TableGuardPlugin rejects statements whose target table is not a plain lowercase identifier.
// Dynamic per-(generation, level) table names reach gorm through db.Table(name), so this is the
// last line of defence if a caller skipped the inventory sanitizer.
//
// NOTE:
// - Raw SQL is not inspected. Raw statements must bind table names as clause.Table values.
type TableGuardPlugin struct{}

func NewTableGuardPlugin() *TableGuardPlugin { return &TableGuardPlugin{} }

func (p *TableGuardPlugin) Name() string { return "table_guard" }

func (p *TableGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("table_guard:query", tableGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("table_guard:row", tableGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Create().Before("gorm:create").Register("table_guard:create", tableGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("table_guard:update", tableGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("table_guard:delete", tableGuardCallback); err != nil {
		return err
	}
	return nil
}

func tableGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	table := db.Statement.Table
	if table == "" {
		return
	}
	if err := utils.ValidateIdentifier(table); err != nil {
		_ = db.AddError(fmt.Errorf("table guard: %w", err))
	}
}
