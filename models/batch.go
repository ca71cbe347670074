package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var ErrBatchNotConfigured = errors.New("batch not configured")

type Batch struct {
	ID                string    `gorm:"primaryKey;size:36" json:"id"`
	ProductId         string    `gorm:"size:36;not null;index" json:"product_id"`
	BatchNo           string    `gorm:"size:100;not null" json:"batch_no"`
	ManufacturingDate time.Time `json:"manufacturing_date"`
	ExpiryDate        time.Time `json:"expiry_date"`
	LocationId        string    `gorm:"size:36;not null" json:"location_id"`
	ProductHistoryId  string    `gorm:"size:36" json:"producthistory_uuid"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type Location struct {
	ID   string `gorm:"primaryKey;size:36" json:"id"`
	Name string `gorm:"size:255;not null" json:"name"`
}

func GetBatch(tx *gorm.DB, batchId string) (*Batch, error) {
	var batch Batch
	if err := tx.Where("id = ?", batchId).First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: batch %s not found", ErrBatchNotConfigured, batchId)
		}
		return nil, err
	}
	return &batch, nil
}
