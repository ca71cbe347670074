package models

import (
	"time"

	"gorm.io/gorm"
)

// SsccCode is a pallet-level row of the shared sscc_codes table.
type SsccCode struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	SsccCode         string    `gorm:"column:sscc_code;size:18;not null;index" json:"sscc_code"`
	PackLevel        int       `gorm:"not null" json:"pack_level"`
	ProductId        string    `gorm:"size:36;not null;index" json:"product_id"`
	BatchId          string    `gorm:"size:36;not null;index" json:"batch_id"`
	ProductHistoryId string    `gorm:"size:36" json:"producthistory_uuid"`
	LocationId       string    `gorm:"size:36" json:"location_id"`
	CodeGenId        string    `gorm:"size:36" json:"code_gen_id"`
	IsAggregated     bool      `gorm:"not null" json:"is_aggregated"`
	Printed          bool      `gorm:"not null" json:"printed"`
	IsDropped        bool      `gorm:"not null" json:"is_dropped"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SsccCode) TableName() string {
	return "sscc_codes"
}

// CountSsccCodes counts pallet rows of one batch and product.
func CountSsccCodes(tx *gorm.DB, batchId, productId string) (int64, error) {
	var n int64
	err := tx.Model(&SsccCode{}).
		Where("batch_id = ? AND product_id = ?", batchId, productId).
		Count(&n).Error
	return n, err
}

// GetPendingSsccCodes returns rows still open for resequencing: none of the lifecycle flags are set
// and the code starts with pattern. Order: creation time, then product, batch and level.
func GetPendingSsccCodes(tx *gorm.DB, pattern string) ([]SsccCode, error) {
	var rows []SsccCode
	err := tx.Where("sscc_code LIKE ? AND is_aggregated = ? AND printed = ? AND is_dropped = ?",
		pattern+"%", false, false, false).
		Order("created_at, product_id, batch_id, pack_level, id").
		Find(&rows).Error
	return rows, err
}

// GetCommittedSsccCodes returns codes under pattern that are excluded from resequencing.
func GetCommittedSsccCodes(tx *gorm.DB, pattern string) ([]string, error) {
	var codes []string
	err := tx.Model(&SsccCode{}).
		Where("sscc_code LIKE ? AND (is_aggregated = ? OR printed = ? OR is_dropped = ?)",
			pattern+"%", true, true, true).
		Pluck("sscc_code", &codes).Error
	return codes, err
}
