package workflow

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/codepool/config"
	"bitbucket.org/mmdatafocus/codepool/inventory"
	"bitbucket.org/mmdatafocus/codepool/models"
	"bitbucket.org/mmdatafocus/codepool/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// errDryRun rolls back a pass that only reports.
var errDryRun = errors.New("dry run")

// DuplicateOutcome summarises one dynamic table.
type DuplicateOutcome struct {
	Table             string
	Level             models.PackagingLevel
	Batches           []string
	InBatchDeleted    int64
	CrossBatchDeleted int64
	// StuckCodes are still shared across batches because every remaining copy is committed
	// (printed, scanned, aggregated or dropped). They need a manual fix.
	StuckCodes []string
	DryRun     bool
	Err        error
}

type DuplicateResolver struct {
	DB     *gorm.DB
	Store  *inventory.Store
	Logger *logrus.Logger
}

func NewDuplicateResolver(db *gorm.DB, store *inventory.Store, logger *logrus.Logger) *DuplicateResolver {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &DuplicateResolver{DB: db, Store: store, Logger: logger}
}

// Run resolves every existing dynamic table of the given layer levels, one transaction per table.
// Pallet level has no dynamic table and is ignored.
func (r *DuplicateResolver) Run(ctx context.Context, levels []models.PackagingLevel, dryRun bool) ([]DuplicateOutcome, error) {
	ctx = utils.SetRunIdInContext(ctx, utils.RunIdFromContextOrNew(ctx))
	ctx = utils.SetPassInContext(ctx, "duplicate-cleanup")
	if len(levels) == 0 {
		levels = models.LayerPackagingLevels
	}

	generationIds, err := models.GetAllGenerationIds(r.DB.WithContext(ctx))
	if err != nil {
		config.LogError(r.Logger, "duplicateResolver.go", "Run", "Querying generation ids", nil, err)
		return nil, err
	}

	var outcomes []DuplicateOutcome
	for _, level := range levels {
		if level.IsPallet() {
			continue
		}
		for _, generationId := range generationIds {
			table, err := inventory.TableName(generationId, level)
			if err != nil {
				config.LogError(r.Logger, "duplicateResolver.go", "Run", "Resolving table name", generationId, err)
				outcomes = append(outcomes, DuplicateOutcome{Level: level, Err: err})
				continue
			}
			exists, err := r.Store.Exists(r.DB.WithContext(ctx), table)
			if err != nil {
				return outcomes, err
			}
			if !exists {
				continue
			}
			out := r.ResolveTable(ctx, table, dryRun)
			out.Level = level
			outcomes = append(outcomes, out)
		}
	}
	return outcomes, nil
}

// ResolveTable removes deletable duplicate rows of one table. First each offending batch keeps a single
// copy of a code it holds more than once; then every pair of offending batches drops its deletable copies
// of the codes both hold, one side at a time, recomputing the shared set before each side.
func (r *DuplicateResolver) ResolveTable(ctx context.Context, table string, dryRun bool) DuplicateOutcome {
	out := DuplicateOutcome{Table: table, DryRun: dryRun}
	ctx = utils.SetTableInContext(ctx, table)
	ctx, span := tracer.Start(ctx, "duplicates.table", trace.WithAttributes(attribute.String("table", table)))
	defer span.End()

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		release, err := acquireUnitLock(tx, table+":duplicates")
		if err != nil {
			return err
		}
		defer release()

		out.Batches, err = r.Store.DuplicateBatches(tx, table)
		if err != nil {
			return err
		}
		if len(out.Batches) == 0 {
			return nil
		}

		for _, batchId := range out.Batches {
			n, err := r.dedupeWithinBatch(tx, table, batchId)
			if err != nil {
				return err
			}
			out.InBatchDeleted += n
		}

		for i := 0; i < len(out.Batches); i++ {
			for j := i + 1; j < len(out.Batches); j++ {
				a, b := out.Batches[i], out.Batches[j]
				for _, side := range []string{a, b} {
					shared, err := r.Store.SharedCodes(tx, table, a, b)
					if err != nil {
						return err
					}
					if len(shared) == 0 {
						break
					}
					for _, chunk := range utils.Chunk(shared, r.Store.ChunkSize()) {
						n, err := r.Store.DeleteWhere(tx, table,
							inventory.Filter{BatchId: side, Deletable: true, UniqueCodes: chunk},
							inventory.OrderBy{Column: "serial_no"}, 0)
						if err != nil {
							return err
						}
						out.CrossBatchDeleted += n
					}
				}
			}
		}

		out.StuckCodes, err = r.Store.CrossBatchCodes(tx, table, false)
		if err != nil {
			return err
		}
		if dryRun {
			return errDryRun
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRun) {
		out.Err = classify(err)
		out.InBatchDeleted, out.CrossBatchDeleted = 0, 0
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		config.LogError(r.Logger, "duplicateResolver.go", "ResolveTable", "Resolving duplicates", utils.LogFields(ctx), out.Err)
		return out
	}

	fields := utils.LogFields(ctx)
	fields["batches"] = len(out.Batches)
	fields["in_batch_deleted"] = out.InBatchDeleted
	fields["cross_batch_deleted"] = out.CrossBatchDeleted
	fields["stuck_codes"] = len(out.StuckCodes)
	fields["dry_run"] = dryRun
	if len(out.StuckCodes) > 0 {
		r.Logger.WithFields(fields).WithField("codes", out.StuckCodes).Warn("duplicates.table.stuck")
	} else {
		r.Logger.WithFields(fields).Info("duplicates.table.done")
	}
	return out
}

// dedupeWithinBatch keeps one row per repeated code in batchId: a committed row if there is one,
// otherwise the lowest serial. Committed rows are never deleted.
func (r *DuplicateResolver) dedupeWithinBatch(tx *gorm.DB, table string, batchId string) (int64, error) {
	rows, err := r.Store.InBatchDuplicates(tx, table, batchId)
	if err != nil {
		return 0, err
	}
	byCode := map[string][]models.RenderedCode{}
	var order []string
	for _, row := range rows {
		if _, ok := byCode[row.UniqueCode]; !ok {
			order = append(order, row.UniqueCode)
		}
		byCode[row.UniqueCode] = append(byCode[row.UniqueCode], row)
	}

	var doomed []string
	for _, code := range order {
		group := byCode[code]
		keep := 0
		for i := range group {
			if !group[i].Deletable() {
				keep = i
				break
			}
		}
		for i := range group {
			if i != keep && group[i].Deletable() {
				doomed = append(doomed, group[i].ID)
			}
		}
	}
	if len(doomed) == 0 {
		return 0, nil
	}
	return r.Store.DeleteRows(tx, table, doomed)
}
