package workflow

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/codepool/config"
	"bitbucket.org/mmdatafocus/codepool/inventory"
	"bitbucket.org/mmdatafocus/codepool/models"
	"bitbucket.org/mmdatafocus/codepool/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Maintenance holds the operator passes that repair state outside the reconciliation loop.
type Maintenance struct {
	DB     *gorm.DB
	Store  *inventory.Store
	Logger *logrus.Logger
}

func NewMaintenance(db *gorm.DB, store *inventory.Store, logger *logrus.Logger) *Maintenance {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Maintenance{DB: db, Store: store, Logger: logger}
}

type CursorResyncOutcome struct {
	CursorId     string
	ProductId    string
	GenerationId string
	Level        int
	Before       int64
	After        int64
}

// ResyncCursors moves every reconciliation cursor up to the highest pool serial id, through the same
// version check as a top-up. Cursors already at or past it are left alone; a cursor never moves back.
func (m *Maintenance) ResyncCursors(ctx context.Context, dryRun bool) ([]CursorResyncOutcome, error) {
	ctx = utils.SetPassInContext(ctx, "summary-resync")
	var outcomes []CursorResyncOutcome
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		maxId, err := models.MaxPoolSerialId(tx)
		if err != nil {
			return err
		}
		var cursors []models.CodeGenerationSummary
		if err := tx.Order("generation_id, packaging_level, product_id").Find(&cursors).Error; err != nil {
			return err
		}
		for i := range cursors {
			cur := &cursors[i]
			o := CursorResyncOutcome{
				CursorId:     cur.ID,
				ProductId:    cur.ProductId,
				GenerationId: cur.GenerationId,
				Level:        cur.PackagingLevel,
				Before:       cur.LastGenerated,
				After:        cur.LastGenerated,
			}
			if cur.LastGenerated < maxId {
				if err := advanceCursor(tx, cur, maxId); err != nil {
					return err
				}
				o.After = cur.LastGenerated
			}
			outcomes = append(outcomes, o)
		}
		m.Logger.WithFields(utils.LogFields(ctx)).WithFields(logrus.Fields{
			"max_pool_id": maxId,
			"cursors":     len(cursors),
			"dry_run":     dryRun,
		}).Info("summary.resync")
		if dryRun {
			return errDryRun
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRun) {
		config.LogError(m.Logger, "maintenance.go", "ResyncCursors", "Resyncing cursors", nil, err)
		return nil, classify(err)
	}
	return outcomes, nil
}

type PruneOutcome struct {
	Table   string
	Dropped bool
}

// PruneLevelFiveTables drops stray <generation id>5_codes tables. Pallet codes only live in sscc_codes.
// On MySQL each DROP commits implicitly, so a failure part way leaves earlier drops applied.
func (m *Maintenance) PruneLevelFiveTables(ctx context.Context, dryRun bool) ([]PruneOutcome, error) {
	ctx = utils.SetPassInContext(ctx, "level5-prune")
	generationIds, err := models.GetAllGenerationIds(m.DB.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	var outcomes []PruneOutcome
	err = m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, generationId := range generationIds {
			table, err := inventory.TableName(generationId, models.PackagingLevelPallet)
			if err != nil {
				config.LogError(m.Logger, "maintenance.go", "PruneLevelFiveTables", "Resolving table name", generationId, err)
				continue
			}
			exists, err := m.Store.Exists(tx, table)
			if err != nil {
				return err
			}
			if !exists {
				continue
			}
			o := PruneOutcome{Table: table}
			if !dryRun {
				if err := m.Store.Drop(tx, table); err != nil {
					return err
				}
				o.Dropped = true
			}
			m.Logger.WithFields(utils.LogFields(ctx)).WithFields(logrus.Fields{"table": table, "dropped": o.Dropped}).Info("level5.prune.table")
			outcomes = append(outcomes, o)
		}
		return nil
	})
	if err != nil {
		config.LogError(m.Logger, "maintenance.go", "PruneLevelFiveTables", "Dropping level 5 tables", nil, err)
		return nil, err
	}
	return outcomes, nil
}
