package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/codepool/codetemplate"
	"bitbucket.org/mmdatafocus/codepool/config"
	"bitbucket.org/mmdatafocus/codepool/models"
	"bitbucket.org/mmdatafocus/codepool/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

type SsccOptions struct {
	Prefix         string
	ExtensionDigit int
	// TxTimeout bounds the whole resequencing transaction.
	TxTimeout time.Duration
	DryRun    bool
	// ChunkSize bounds placeholder inserts.
	ChunkSize int
}

// SsccOptionsFromConfig maps the job settings onto sequencer options.
func SsccOptionsFromConfig(cfg config.JobConfig, dryRun bool) SsccOptions {
	return SsccOptions{
		Prefix:         cfg.SSCC.Prefix,
		ExtensionDigit: cfg.SSCC.ExtensionDigit,
		TxTimeout:      cfg.SSCC.TxTimeout,
		DryRun:         dryRun,
		ChunkSize:      cfg.InsertChunkSize,
	}
}

func (o SsccOptions) pattern() string {
	return strconv.Itoa(o.ExtensionDigit) + o.Prefix
}

type SsccAssignment struct {
	Id        string
	ProductId string
	BatchId   string
	OldCode   string
	NewCode   string
}

type SsccOutcome struct {
	Pattern      string
	Pending      int
	StartCounter int64
	Assignments  []SsccAssignment
	DryRun       bool
}

type SsccSequencer struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

func NewSsccSequencer(db *gorm.DB, logger *logrus.Logger) *SsccSequencer {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &SsccSequencer{DB: db, Logger: logger}
}

// Resequence gives every pending pallet row under the prefix a fresh sequential SSCC in
// (created_at, product_id, batch_id, pack_level) order. Counting resumes after the highest body
// already committed under the prefix. The whole run is one transaction.
func (s *SsccSequencer) Resequence(ctx context.Context, opts SsccOptions) (*SsccOutcome, error) {
	base, err := codetemplate.SSCCBase(opts.Prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if opts.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.TxTimeout)
		defer cancel()
	}
	ctx = utils.SetPassInContext(ctx, "sscc-resequence")
	ctx, span := tracer.Start(ctx, "sscc.resequence", trace.WithAttributes(attribute.String("pattern", opts.pattern())))
	defer span.End()

	out := &SsccOutcome{Pattern: opts.pattern(), DryRun: opts.DryRun}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		release, err := acquireUnitLock(tx, "sscc:"+out.Pattern)
		if err != nil {
			return err
		}
		defer release()

		rows, err := models.GetPendingSsccCodes(tx, out.Pattern)
		if err != nil {
			return err
		}
		out.Pending = len(rows)

		committed, err := models.GetCommittedSsccCodes(tx, out.Pattern)
		if err != nil {
			return err
		}
		out.StartCounter = highestCounter(committed, opts.ExtensionDigit, base)

		generated, err := sequenceCodes(opts, base, out.StartCounter, len(rows))
		if err != nil {
			return err
		}
		if len(generated) != len(rows) {
			return fmt.Errorf("%w: %d rows, %d codes", ErrCountMismatch, len(rows), len(generated))
		}

		out.Assignments = make([]SsccAssignment, 0, len(rows))
		for i, row := range rows {
			out.Assignments = append(out.Assignments, SsccAssignment{
				Id:        row.ID,
				ProductId: row.ProductId,
				BatchId:   row.BatchId,
				OldCode:   row.SsccCode,
				NewCode:   generated[i],
			})
		}
		if opts.DryRun {
			return errDryRun
		}

		for _, a := range out.Assignments {
			res := tx.Model(&models.SsccCode{}).Where("id = ?", a.Id).Update("sscc_code", a.NewCode)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				return fmt.Errorf("%w: sscc row %s not updated", ErrCountMismatch, a.Id)
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRun) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		config.LogError(s.Logger, "ssccSequencer.go", "Resequence", "Resequencing SSCC codes", out.Pattern, err)
		return nil, classify(err)
	}

	s.Logger.WithFields(utils.LogFields(ctx)).WithFields(logrus.Fields{
		"pattern":       out.Pattern,
		"pending":       out.Pending,
		"start_counter": out.StartCounter,
		"dry_run":       out.DryRun,
	}).Info("sscc.resequence.done")
	return out, nil
}

// highestCounter returns the largest counter (body - base) among valid committed codes with the
// same extension digit. Placeholders and foreign codes fail verification and are ignored.
func highestCounter(committed []string, extensionDigit int, base int64) int64 {
	var highest int64
	for _, code := range committed {
		ext, body, err := codetemplate.ParseSSCC(code)
		if err != nil || ext != extensionDigit {
			continue
		}
		highest = max(highest, body-base)
	}
	return highest
}

// sequenceCodes builds n codes for counters start+1..start+n. Every body must keep the prefix.
func sequenceCodes(opts SsccOptions, base int64, start int64, n int) ([]string, error) {
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		body := base + start + int64(i)
		if !strings.HasPrefix(strconv.FormatInt(body, 10), opts.Prefix) {
			return nil, fmt.Errorf("%w: counter %d overflows prefix %s", ErrPoolExhausted, start+int64(i), opts.Prefix)
		}
		code, err := codetemplate.SSCC(opts.ExtensionDigit, body)
		if err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, nil
}
