package models

import (
	"time"

	"gorm.io/gorm"
)

// CodeGenerationRequest is one row of the external request queue. Read-only here except for Status.
type CodeGenerationRequest struct {
	ID                 string        `gorm:"primaryKey;size:36" json:"id"`
	BatchId            string        `gorm:"size:36;not null;index:idx_cgr_batch_product_level" json:"batch_id"`
	ProductId          string        `gorm:"size:36;not null;index:idx_cgr_batch_product_level" json:"product_id"`
	PackagingHierarchy string        `gorm:"size:10;not null;index:idx_cgr_batch_product_level" json:"packaging_hierarchy"`
	LocationId         string        `gorm:"size:36" json:"location_id"`
	NoOfCodes          int           `gorm:"not null" json:"no_of_codes"`
	Status             RequestStatus `gorm:"size:20;not null;index" json:"status"`
	CreatedAt          time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// RequestedTotal is the requested code count summed per (batch, product) for one level.
type RequestedTotal struct {
	BatchId             string
	ProductId           string
	TotalRequestedCodes int64
}

// GetRequestedTotals groups request rows of one level by (batch, product), newest batch first.
// batchId narrows the result to one batch when non-empty.
func GetRequestedTotals(tx *gorm.DB, level PackagingLevel, batchId string) ([]RequestedTotal, error) {
	var rows []RequestedTotal
	q := tx.Model(&CodeGenerationRequest{}).
		Select("batch_id, product_id, SUM(no_of_codes) AS total_requested_codes").
		Where("packaging_hierarchy = ?", level.Hierarchy())
	if batchId != "" {
		q = q.Where("batch_id = ?", batchId)
	}
	err := q.Group("batch_id, product_id").
		Order("batch_id DESC").
		Scan(&rows).Error
	return rows, err
}

// GetFirstCodeRequest returns the oldest request row of a batch/product/level, used as code_gen_id.
func GetFirstCodeRequest(tx *gorm.DB, batchId string, productId string, level PackagingLevel) (*CodeGenerationRequest, error) {
	var req CodeGenerationRequest
	q := tx.Where("batch_id = ? AND packaging_hierarchy = ?", batchId, level.Hierarchy())
	if productId != "" {
		q = q.Where("product_id = ?", productId)
	}
	if err := q.Order("created_at ASC, id ASC").First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// MarkCodeRequestsRequested flips every request row of the key back to "requested".
func MarkCodeRequestsRequested(tx *gorm.DB, batchId string, productId string, level PackagingLevel) (int64, error) {
	res := tx.Model(&CodeGenerationRequest{}).
		Where("batch_id = ? AND product_id = ? AND packaging_hierarchy = ?", batchId, productId, level.Hierarchy()).
		Update("status", RequestStatusRequested)
	return res.RowsAffected, res.Error
}
