package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/codepool/codetemplate"
	"bitbucket.org/mmdatafocus/codepool/config"
	"bitbucket.org/mmdatafocus/codepool/inventory"
	"bitbucket.org/mmdatafocus/codepool/models"
	"bitbucket.org/mmdatafocus/codepool/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("codepool/workflow")

type ReconcileAction string

const (
	ReconcileActionBalanced     ReconcileAction = "balanced"
	ReconcileActionToppedUp     ReconcileAction = "topped_up"
	ReconcileActionTrimmed      ReconcileAction = "trimmed"
	ReconcileActionTableCreated ReconcileAction = "table_created"
	ReconcileActionSkipped      ReconcileAction = "skipped"
	ReconcileActionDiagnostic   ReconcileAction = "diagnostic"
	ReconcileActionFailed       ReconcileAction = "failed"
)

// UnitOutcome records what one (batch, product, level) unit did.
type UnitOutcome struct {
	Key            UnitKey
	Action         ReconcileAction
	Requested      int64
	Generated      int64
	Printed        int64
	KeepNonPrinted int64
	Inserted       int64
	Deleted        int64
	CursorBefore   int64
	CursorAfter    int64
	Err            error
}

// CodeRequestNotifier is told after commit when a unit created its dynamic table.
type CodeRequestNotifier interface {
	NotifyCodeRequest(ctx context.Context, notice config.CodeRequestNotice) (string, error)
}

type ReconcileOptions struct {
	Levels []models.PackagingLevel
	// BatchId limits the run to one batch when set.
	BatchId string
	// ContinueOnError keeps going after a failed unit; otherwise the run stops at the first failure.
	ContinueOnError bool
	// CrmURL is used when no crm_url global setting exists.
	CrmURL string
}

// Engine reconciles materialized code counts with requested counts.
type Engine struct {
	DB       *gorm.DB
	Store    *inventory.Store
	Logger   *logrus.Logger
	Notifier CodeRequestNotifier
}

func NewEngine(db *gorm.DB, store *inventory.Store, logger *logrus.Logger, notifier CodeRequestNotifier) *Engine {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Engine{DB: db, Store: store, Logger: logger, Notifier: notifier}
}

// Run walks every requested (batch, product) of each level in order. Per-unit failures are logged and
// recorded on the outcome; only failures to read the request totals abort the run.
func (e *Engine) Run(ctx context.Context, opts ReconcileOptions) ([]UnitOutcome, error) {
	runId := utils.RunIdFromContextOrNew(ctx)
	ctx = utils.SetRunIdInContext(ctx, runId)
	ctx = utils.SetPassInContext(ctx, "batch-correction")

	levels := opts.Levels
	if len(levels) == 0 {
		levels = models.AllPackagingLevels
	}

	var outcomes []UnitOutcome
	for _, level := range levels {
		totals, err := models.GetRequestedTotals(e.DB.WithContext(ctx), level, opts.BatchId)
		if err != nil {
			config.LogError(e.Logger, "reconciliationWorkflow.go", "Run", "Querying requested totals", level, err)
			return outcomes, fmt.Errorf("requested totals for level %d: %w", int(level), err)
		}
		e.Logger.WithFields(logrus.Fields{
			"run_id": runId,
			"level":  int(level),
			"units":  len(totals),
		}).Info("reconcile.level.start")

		for _, req := range totals {
			out := e.ReconcileUnit(utils.SetPackagingLevelInContext(ctx, int(level)), level, req, opts.CrmURL)
			outcomes = append(outcomes, out)
			if out.Err != nil && !opts.ContinueOnError {
				return outcomes, out.Err
			}
		}
	}
	return outcomes, nil
}

// ReconcileUnit runs one unit in its own transaction. Nothing the unit did is visible if it fails.
func (e *Engine) ReconcileUnit(ctx context.Context, level models.PackagingLevel, req models.RequestedTotal, crmURL string) UnitOutcome {
	out := UnitOutcome{
		Key:       UnitKey{BatchId: req.BatchId, ProductId: req.ProductId, Level: level},
		Requested: req.TotalRequestedCodes,
	}
	ctx, span := tracer.Start(ctx, "reconcile.unit", trace.WithAttributes(
		attribute.String("batch_id", req.BatchId),
		attribute.String("product_id", req.ProductId),
		attribute.Int("level", int(level)),
	))
	defer span.End()

	var notice *config.CodeRequestNotice
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		notice, err = e.reconcile(tx, &out, crmURL)
		return err
	})
	if err != nil {
		if out.Action == ReconcileActionTableCreated {
			e.Store.Forget(out.Key.Table)
		}
		out.Err = &UnitError{Key: out.Key, Err: classify(err)}
		out.Action = ReconcileActionFailed
		out.Inserted, out.Deleted = 0, 0
		out.CursorAfter = out.CursorBefore
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		config.LogError(e.Logger, "reconciliationWorkflow.go", "ReconcileUnit", "Reconciling unit", e.unitFields(ctx, &out), out.Err)
		return out
	}
	span.SetAttributes(
		attribute.String("table", out.Key.Table),
		attribute.String("action", string(out.Action)),
		attribute.Int64("inserted", out.Inserted),
		attribute.Int64("deleted", out.Deleted),
	)
	e.Logger.WithFields(e.unitFields(ctx, &out)).Info("reconcile.unit." + string(out.Action))

	if notice != nil && e.Notifier != nil {
		notice.RunId, _ = utils.GetRunIdFromContext(ctx)
		if msgId, err := e.Notifier.NotifyCodeRequest(ctx, *notice); err != nil {
			config.LogError(e.Logger, "reconciliationWorkflow.go", "ReconcileUnit", "Publishing code request notice", notice, err)
		} else {
			e.Logger.WithFields(logrus.Fields{"table": notice.TableName, "batch_id": notice.BatchId, "message_id": msgId}).
				Info("reconcile.unit.notified")
		}
	}
	return out
}

func (e *Engine) unitFields(ctx context.Context, out *UnitOutcome) logrus.Fields {
	fields := utils.LogFields(ctx)
	for k, v := range (logrus.Fields{
		"table":            out.Key.Table,
		"batch_id":         out.Key.BatchId,
		"product_id":       out.Key.ProductId,
		"level":            int(out.Key.Level),
		"requested":        out.Requested,
		"generated":        out.Generated,
		"printed":          out.Printed,
		"keep_non_printed": out.KeepNonPrinted,
		"inserted":         out.Inserted,
		"deleted":          out.Deleted,
		"cursor_before":    out.CursorBefore,
		"cursor_after":     out.CursorAfter,
	}) {
		fields[k] = v
	}
	return fields
}

func (e *Engine) reconcile(tx *gorm.DB, out *UnitOutcome, crmURL string) (*config.CodeRequestNotice, error) {
	key := &out.Key
	// pallet codes live in sscc_codes; a level 5 dynamic table is never touched
	if key.Level.IsPallet() {
		key.Table = models.SsccCode{}.TableName()
		release, err := acquireUnitLock(tx, key.Table+":"+key.BatchId)
		if err != nil {
			return nil, err
		}
		defer release()
		return nil, e.palletDiagnostic(tx, out)
	}

	generationId, err := models.GetProductGenerationId(tx, key.ProductId)
	if err != nil {
		return nil, err
	}
	table, err := inventory.TableName(generationId, key.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	key.Table = table

	release, err := acquireUnitLock(tx, table+":"+key.BatchId)
	if err != nil {
		return nil, err
	}
	defer release()

	product, err := models.GetProduct(tx, key.ProductId)
	if err != nil {
		return nil, err
	}
	exists, err := e.Store.Exists(tx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		if !product.PrintsLevel(key.Level) {
			out.Action = ReconcileActionSkipped
			return nil, nil
		}
		if err := e.Store.Create(tx, table); err != nil {
			return nil, err
		}
		out.Action = ReconcileActionTableCreated
		if _, err := models.MarkCodeRequestsRequested(tx, key.BatchId, key.ProductId, key.Level); err != nil {
			return nil, err
		}
		return &config.CodeRequestNotice{
			BatchId:            key.BatchId,
			ProductId:          key.ProductId,
			PackagingHierarchy: key.Level.Hierarchy(),
			TableName:          table,
			NotifiedAt:         time.Now().UTC(),
		}, nil
	}

	out.Generated, err = e.Store.Count(tx, table, inventory.Filter{BatchId: key.BatchId})
	if err != nil {
		return nil, err
	}
	switch {
	case out.Generated > out.Requested:
		return nil, e.trimSurplus(tx, out)
	case out.Generated < out.Requested:
		return nil, e.topUp(tx, out, product, generationId, crmURL)
	}
	out.Action = ReconcileActionBalanced
	return nil, nil
}

func (e *Engine) palletDiagnostic(tx *gorm.DB, out *UnitOutcome) error {
	n, err := models.CountSsccCodes(tx, out.Key.BatchId, out.Key.ProductId)
	if err != nil {
		return err
	}
	out.Generated = n
	out.Action = ReconcileActionDiagnostic
	if n != out.Requested {
		e.Logger.WithFields(logrus.Fields{
			"batch_id":   out.Key.BatchId,
			"product_id": out.Key.ProductId,
			"requested":  out.Requested,
			"generated":  n,
		}).Warn("reconcile.unit.sscc_mismatch")
	}
	return nil
}

// trimSurplus keeps the requested-minus-printed lowest deletable serials and deletes the rest.
// Printed, scanned, aggregated and dropped rows are never candidates.
func (e *Engine) trimSurplus(tx *gorm.DB, out *UnitOutcome) error {
	printed, err := e.Store.Count(tx, out.Key.Table, inventory.Filter{BatchId: out.Key.BatchId, Printed: utils.NewTrue()})
	if err != nil {
		return err
	}
	out.Printed = printed
	out.KeepNonPrinted = max(out.Requested-printed, 0)

	deleted, err := e.Store.DeleteWhere(tx, out.Key.Table,
		inventory.Filter{BatchId: out.Key.BatchId, Deletable: true},
		inventory.OrderBy{Column: "serial_no"},
		out.KeepNonPrinted)
	if err != nil {
		return err
	}
	out.Deleted = deleted
	out.Action = ReconcileActionTrimmed
	return nil
}

// topUp renders requested-minus-generated new codes from the pool and advances the cursor past them.
func (e *Engine) topUp(tx *gorm.DB, out *UnitOutcome, product *models.Product, generationId string, crmURL string) error {
	key := out.Key
	need := int(out.Requested - out.Generated)

	batch, err := models.GetBatch(tx, key.BatchId)
	if err != nil {
		return err
	}
	country, err := models.GetCountry(tx, product.CountryId)
	if err != nil {
		return err
	}
	request, err := models.GetFirstCodeRequest(tx, key.BatchId, key.ProductId, key.Level)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: no request row for %s", ErrConfiguration, key)
		}
		return err
	}
	if v, ok, err := models.GetGlobalSetting(tx, models.GlobalSettingCrmURL); err != nil {
		return err
	} else if ok {
		crmURL = v
	}

	tpl, err := codetemplate.Compile(country.CodeStructure, codetemplate.Context{
		RegistrationNo:    product.RegistrationNo,
		Ndc:               product.Ndc,
		Gtin:              product.Gtin,
		PackagingLevel:    int(key.Level),
		BatchNo:           batch.BatchNo,
		ManufacturingDate: batch.ManufacturingDate,
		ExpiryDate:        batch.ExpiryDate,
		CrmURL:            crmURL,
	})
	if err != nil {
		return fmt.Errorf("%w: code structure of country %s: %w", ErrConfiguration, country.ID, err)
	}

	cursor, err := loadCursor(tx, CursorKey{ProductId: key.ProductId, GenerationId: generationId, Level: key.Level})
	if err != nil {
		return err
	}
	out.CursorBefore = cursor.LastGenerated

	serials, err := takeSerials(tx, cursor, need)
	if err != nil {
		return err
	}

	locationId := batch.LocationId
	if locationId == "" {
		locationId = request.LocationId
	}
	rows := make([]models.RenderedCode, 0, len(serials))
	for _, s := range serials {
		unique := codetemplate.UniqueCode(generationId, int(key.Level), s.Code)
		rows = append(rows, models.RenderedCode{
			ID:          uuid.NewString(),
			SerialNo:    s.ID,
			ProductId:   key.ProductId,
			BatchId:     key.BatchId,
			UniqueCode:  unique,
			LocationId:  locationId,
			CodeGenId:   request.ID,
			CountryCode: tpl.Code(unique),
		})
	}
	inserted, err := e.Store.BulkInsert(tx, key.Table, rows)
	if err != nil {
		return err
	}
	if inserted != int64(len(rows)) {
		return fmt.Errorf("%w: inserted %d of %d rows", ErrCountMismatch, inserted, len(rows))
	}
	if err := advanceCursor(tx, cursor, serials[len(serials)-1].ID); err != nil {
		return err
	}
	out.Inserted = inserted
	out.CursorAfter = cursor.LastGenerated
	out.Action = ReconcileActionToppedUp
	return nil
}
