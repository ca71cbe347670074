package inventory

import (
	"bitbucket.org/mmdatafocus/codepool/models"
	"bitbucket.org/mmdatafocus/codepool/utils"
	"gorm.io/gorm"
)

// DuplicateBatches lists, in id order, the batches holding a unique code that also appears under another batch.
func (s *Store) DuplicateBatches(tx *gorm.DB, table string) ([]string, error) {
	if err := utils.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	shared := tx.Table(table).
		Select("unique_code").
		Group("unique_code").
		Having("COUNT(DISTINCT batch_id) > 1")

	var batchIds []string
	err := tx.Table(table).
		Distinct("batch_id").
		Where("unique_code IN (?)", shared).
		Order("batch_id").
		Pluck("batch_id", &batchIds).Error
	return batchIds, err
}

// InBatchDuplicates returns every row of batchId whose unique code occurs more than once in that batch,
// ordered by unique_code then serial_no.
func (s *Store) InBatchDuplicates(tx *gorm.DB, table string, batchId string) ([]models.RenderedCode, error) {
	if err := utils.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	repeated := tx.Table(table).
		Select("unique_code").
		Where("batch_id = ?", batchId).
		Group("unique_code").
		Having("COUNT(*) > 1")

	var rows []models.RenderedCode
	err := tx.Table(table).
		Where("batch_id = ? AND unique_code IN (?)", batchId, repeated).
		Order("unique_code, serial_no, id").
		Find(&rows).Error
	return rows, err
}

// SharedCodes returns the unique codes present under both batches.
func (s *Store) SharedCodes(tx *gorm.DB, table string, batchA, batchB string) ([]string, error) {
	if err := utils.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	var codes []string
	err := tx.Table(table).
		Select("unique_code").
		Where("batch_id IN ?", []string{batchA, batchB}).
		Group("unique_code").
		Having("COUNT(DISTINCT batch_id) > 1").
		Order("unique_code").
		Pluck("unique_code", &codes).Error
	return codes, err
}

// CrossBatchCodes lists unique codes that appear under two or more batches.
// With deletableOnly, committed rows are ignored.
func (s *Store) CrossBatchCodes(tx *gorm.DB, table string, deletableOnly bool) ([]string, error) {
	if err := utils.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	var codes []string
	err := Filter{Deletable: deletableOnly}.apply(tx.Table(table)).
		Select("unique_code").
		Group("unique_code").
		Having("COUNT(DISTINCT batch_id) > 1").
		Order("unique_code").
		Pluck("unique_code", &codes).Error
	return codes, err
}
