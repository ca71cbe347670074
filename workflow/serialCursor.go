package workflow

import (
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/codepool/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CursorKey identifies one reconciliation cursor.
type CursorKey struct {
	ProductId    string
	GenerationId string
	Level        models.PackagingLevel
}

// loadCursor returns the cursor of key, creating it at zero on first use.
func loadCursor(tx *gorm.DB, key CursorKey) (*models.CodeGenerationSummary, error) {
	var cur models.CodeGenerationSummary
	err := tx.Where("product_id = ? AND generation_id = ? AND packaging_level = ?",
		key.ProductId, key.GenerationId, int(key.Level)).First(&cur).Error
	if err == nil {
		return &cur, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cur = models.CodeGenerationSummary{
		ID:             uuid.NewString(),
		ProductId:      key.ProductId,
		GenerationId:   key.GenerationId,
		PackagingLevel: int(key.Level),
	}
	if err := tx.Create(&cur).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return nil, fmt.Errorf("%w: cursor for %+v created concurrently", ErrCursorConflict, key)
		}
		return nil, err
	}
	return &cur, nil
}

// poolHighWater is the highest pool id any cursor has consumed. Serials at or below it are never handed out again.
func poolHighWater(tx *gorm.DB) (int64, error) {
	var hw int64
	err := tx.Model(&models.CodeGenerationSummary{}).Select("COALESCE(MAX(last_generated), 0)").Scan(&hw).Error
	return hw, err
}

// takeSerials reserves exactly need serials after the cursor (and after every other cursor's
// high water mark). Fewer available is ErrPoolExhausted; nothing is under-filled.
func takeSerials(tx *gorm.DB, cur *models.CodeGenerationSummary, need int) ([]models.CodesGenerated, error) {
	hw, err := poolHighWater(tx)
	if err != nil {
		return nil, err
	}
	after := max(cur.LastGenerated, hw)
	serials, err := models.NextPoolSerials(tx, after, need)
	if err != nil {
		return nil, err
	}
	if len(serials) < need {
		return nil, fmt.Errorf("%w: need %d serials after id %d, pool has %d", ErrPoolExhausted, need, after, len(serials))
	}
	return serials, nil
}

// advanceCursor moves the cursor to lastId with a compare-and-swap on version.
func advanceCursor(tx *gorm.DB, cur *models.CodeGenerationSummary, lastId int64) error {
	if lastId < cur.LastGenerated {
		return fmt.Errorf("cursor %s cannot move back from %d to %d", cur.ID, cur.LastGenerated, lastId)
	}
	res := tx.Model(&models.CodeGenerationSummary{}).
		Where("id = ? AND version = ?", cur.ID, cur.Version).
		Updates(map[string]interface{}{
			"last_generated": lastId,
			"version":        cur.Version + 1,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: cursor %s version %d", ErrCursorConflict, cur.ID, cur.Version)
	}
	cur.LastGenerated = lastId
	cur.Version++
	return nil
}
