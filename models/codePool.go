package models

import (
	"time"

	"gorm.io/gorm"
)

// CodesGenerated is one pre-generated pool serial. ID gives the pool insertion order and is the
// serial_no referenced by rendered codes.
type CodesGenerated struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Code      string    `gorm:"size:32;not null;uniqueIndex" json:"code"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (CodesGenerated) TableName() string {
	return "codes_generated"
}

// CodeGenerationSummary is the reconciliation cursor of one (product, generation id, level).
// LastGenerated only moves forward; Version guards concurrent writers.
type CodeGenerationSummary struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	ProductId      string    `gorm:"size:36;not null;uniqueIndex:idx_cgs_key" json:"product_id"`
	GenerationId   string    `gorm:"size:32;not null;uniqueIndex:idx_cgs_key" json:"generation_id"`
	PackagingLevel int       `gorm:"not null;uniqueIndex:idx_cgs_key" json:"packaging_level"`
	LastGenerated  int64     `gorm:"not null" json:"last_generated"`
	Version        int64     `gorm:"not null" json:"version"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CodeGenerationSummary) TableName() string {
	return "code_generation_summaries"
}

// NextPoolSerials returns up to limit serials with id > afterId in pool order.
func NextPoolSerials(tx *gorm.DB, afterId int64, limit int) ([]CodesGenerated, error) {
	var serials []CodesGenerated
	if limit <= 0 {
		return serials, nil
	}
	err := tx.Where("id > ?", afterId).Order("id").Limit(limit).Find(&serials).Error
	return serials, err
}

// MaxPoolSerialId returns 0 for an empty pool.
func MaxPoolSerialId(tx *gorm.DB) (int64, error) {
	var maxId int64
	err := tx.Model(&CodesGenerated{}).Select("COALESCE(MAX(id), 0)").Scan(&maxId).Error
	return maxId, err
}
