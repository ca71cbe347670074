package workflow

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/codepool/codetemplate"
	"bitbucket.org/mmdatafocus/codepool/config"
	"bitbucket.org/mmdatafocus/codepool/models"
	"bitbucket.org/mmdatafocus/codepool/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type SsccFillOutcome struct {
	BatchId   string
	ProductId string
	Requested int64
	Generated int64
	Inserted  int64
	DryRun    bool
	Err       error
}

// Fill tops up sscc_codes with placeholder rows so every (batch, product) with pallet requests has as many
// rows as requested. Placeholders are later given real codes by Resequence. One transaction per batch.
func (s *SsccSequencer) Fill(ctx context.Context, opts SsccOptions) ([]SsccFillOutcome, error) {
	ctx = utils.SetRunIdInContext(ctx, utils.RunIdFromContextOrNew(ctx))
	ctx = utils.SetPassInContext(ctx, "sscc-fill")
	if _, err := codetemplate.SSCCBase(opts.Prefix); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	placeholder := codetemplate.SSCCPlaceholder(opts.ExtensionDigit, opts.Prefix)

	totals, err := models.GetRequestedTotals(s.DB.WithContext(ctx), models.PackagingLevelPallet, "")
	if err != nil {
		config.LogError(s.Logger, "ssccFill.go", "Fill", "Querying requested totals", nil, err)
		return nil, err
	}

	var outcomes []SsccFillOutcome
	for _, req := range totals {
		out := SsccFillOutcome{BatchId: req.BatchId, ProductId: req.ProductId, Requested: req.TotalRequestedCodes, DryRun: opts.DryRun}
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			release, err := acquireUnitLock(tx, "sscc_codes:"+req.BatchId)
			if err != nil {
				return err
			}
			defer release()

			out.Generated, err = models.CountSsccCodes(tx, req.BatchId, req.ProductId)
			if err != nil {
				return err
			}
			diff := out.Requested - out.Generated
			if diff <= 0 {
				return nil
			}

			request, err := models.GetFirstCodeRequest(tx, req.BatchId, req.ProductId, models.PackagingLevelPallet)
			if err != nil {
				return err
			}
			batch, err := models.GetBatch(tx, req.BatchId)
			if err != nil {
				return err
			}
			locationId := request.LocationId
			if locationId == "" {
				locationId = batch.LocationId
			}

			rows := make([]models.SsccCode, 0, diff)
			for i := int64(0); i < diff; i++ {
				rows = append(rows, models.SsccCode{
					ID:               uuid.NewString(),
					SsccCode:         placeholder,
					PackLevel:        int(models.PackagingLevelPallet),
					ProductId:        req.ProductId,
					BatchId:          req.BatchId,
					ProductHistoryId: batch.ProductHistoryId,
					LocationId:       locationId,
					CodeGenId:        request.ID,
				})
			}
			if opts.DryRun {
				out.Inserted = diff
				return errDryRun
			}
			chunk := opts.ChunkSize
			if chunk <= 0 {
				chunk = 1000
			}
			res := tx.CreateInBatches(&rows, chunk)
			if res.Error != nil {
				return res.Error
			}
			out.Inserted = res.RowsAffected
			return nil
		})
		if err != nil && !errors.Is(err, errDryRun) {
			out.Inserted = 0
			out.Err = classify(err)
			config.LogError(s.Logger, "ssccFill.go", "Fill", "Filling SSCC placeholders", req, out.Err)
		} else {
			s.Logger.WithFields(utils.LogFields(ctx)).WithFields(logrus.Fields{
				"batch_id":   out.BatchId,
				"product_id": out.ProductId,
				"requested":  out.Requested,
				"generated":  out.Generated,
				"inserted":   out.Inserted,
				"dry_run":    out.DryRun,
			}).Info("sscc.fill.batch")
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}
