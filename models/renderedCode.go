package models

import "time"

// RenderedCode is one row of a dynamic <generation id><level>_codes table.
// It has no fixed table name; callers always go through tx.Table(name).
type RenderedCode struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	SerialNo         int64     `gorm:"column:serial_no" json:"serial_no"`
	ProductId        string    `json:"product_id"`
	BatchId          string    `json:"batch_id"`
	UniqueCode       string    `json:"unique_code"`
	LocationId       string    `json:"location_id"`
	CodeGenId        string    `json:"code_gen_id"`
	CountryCode      string    `json:"country_code"`
	Printed          bool      `json:"printed"`
	IsScanned        bool      `json:"is_scanned"`
	IsAggregated     bool      `json:"is_aggregated"`
	IsDropped        bool      `json:"is_dropped"`
	ParentId         *string   `json:"parent_id"`
	SentToCloud      bool      `json:"sent_to_cloud"`
	DropoutReason    *string   `json:"dropout_reason"`
	IsScannedInOrder bool      `json:"is_scanned_in_order"`
	StorageBin       *int64    `json:"storage_bin"`
	InTransit        bool      `json:"in_transit"`
	UpdatedAt        time.Time `json:"updated_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// Deletable reports whether the row was never committed to the physical world.
func (r *RenderedCode) Deletable() bool {
	return !r.Printed && !r.IsScanned && !r.IsAggregated && !r.IsDropped
}
