package reports

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/codepool/utils"
	"bitbucket.org/mmdatafocus/codepool/workflow"
	"github.com/xuri/excelize/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sheet is one tab of a run report.
type Sheet struct {
	Name     string
	Headings []string
	Rows     [][]interface{}
}

// RunReport collects the outcomes of one pass and writes them as an xlsx workbook.
type RunReport struct {
	Pass      string
	RunId     string
	DryRun    bool
	StartedAt time.Time
	sheets    []Sheet
}

func NewRunReport(pass, runId string, dryRun bool) *RunReport {
	return &RunReport{Pass: pass, RunId: runId, DryRun: dryRun, StartedAt: time.Now().UTC()}
}

func (r *RunReport) Sheets() []Sheet {
	return r.sheets
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (r *RunReport) AddUnits(outcomes []workflow.UnitOutcome) {
	s := Sheet{
		Name: "units",
		Headings: []string{"Level", "BatchId", "ProductId", "Table", "Action", "Requested", "Generated",
			"Printed", "KeepNonPrinted", "Inserted", "Deleted", "CursorBefore", "CursorAfter", "Error"},
	}
	for _, o := range outcomes {
		s.Rows = append(s.Rows, []interface{}{
			int(o.Key.Level), o.Key.BatchId, o.Key.ProductId, o.Key.Table, string(o.Action), o.Requested, o.Generated,
			o.Printed, o.KeepNonPrinted, o.Inserted, o.Deleted, o.CursorBefore, o.CursorAfter, errText(o.Err),
		})
	}
	r.sheets = append(r.sheets, s)
}

func (r *RunReport) AddDuplicates(outcomes []workflow.DuplicateOutcome) {
	s := Sheet{
		Name:     "duplicates",
		Headings: []string{"Table", "Level", "Batches", "InBatchDeleted", "CrossBatchDeleted", "StuckCodes", "Error"},
	}
	for _, o := range outcomes {
		s.Rows = append(s.Rows, []interface{}{
			o.Table, int(o.Level), strings.Join(o.Batches, ","), o.InBatchDeleted, o.CrossBatchDeleted,
			strings.Join(o.StuckCodes, ","), errText(o.Err),
		})
	}
	r.sheets = append(r.sheets, s)
}

func (r *RunReport) AddSscc(out *workflow.SsccOutcome) {
	s := Sheet{
		Name:     "sscc",
		Headings: []string{"Id", "ProductId", "BatchId", "OldCode", "NewCode"},
	}
	if out != nil {
		for _, a := range out.Assignments {
			s.Rows = append(s.Rows, []interface{}{a.Id, a.ProductId, a.BatchId, a.OldCode, a.NewCode})
		}
	}
	r.sheets = append(r.sheets, s)
}

func (r *RunReport) AddFill(outcomes []workflow.SsccFillOutcome) {
	s := Sheet{
		Name:     "fill",
		Headings: []string{"BatchId", "ProductId", "Requested", "Generated", "Inserted", "Error"},
	}
	for _, o := range outcomes {
		s.Rows = append(s.Rows, []interface{}{o.BatchId, o.ProductId, o.Requested, o.Generated, o.Inserted, errText(o.Err)})
	}
	r.sheets = append(r.sheets, s)
}

func (r *RunReport) AddResync(outcomes []workflow.CursorResyncOutcome) {
	s := Sheet{
		Name:     "resync",
		Headings: []string{"CursorId", "ProductId", "GenerationId", "Level", "Before", "After"},
	}
	for _, o := range outcomes {
		s.Rows = append(s.Rows, []interface{}{o.CursorId, o.ProductId, o.GenerationId, o.Level, o.Before, o.After})
	}
	r.sheets = append(r.sheets, s)
}

func (r *RunReport) AddPrune(outcomes []workflow.PruneOutcome) {
	s := Sheet{Name: "prune", Headings: []string{"Table", "Dropped"}}
	for _, o := range outcomes {
		s.Rows = append(s.Rows, []interface{}{o.Table, o.Dropped})
	}
	r.sheets = append(r.sheets, s)
}

// FileName is <pass>_<run id>.xlsx.
func (r *RunReport) FileName() string {
	return fmt.Sprintf("%s_%s.xlsx", r.Pass, r.RunId)
}

func (r *RunReport) workbook() (*excelize.File, error) {
	f := excelize.NewFile()

	const summary = "summary"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return nil, err
	}
	for i, kv := range [][]interface{}{
		{"Pass", r.Pass},
		{"RunId", r.RunId},
		{"DryRun", r.DryRun},
		{"StartedAt", r.StartedAt.Format(time.RFC3339)},
	} {
		if err := f.SetSheetRow(summary, fmt.Sprintf("A%d", i+1), &kv); err != nil {
			return nil, err
		}
	}

	for _, s := range r.sheets {
		if _, err := f.NewSheet(s.Name); err != nil {
			return nil, err
		}
		headings := make([]interface{}, len(s.Headings))
		for i, h := range s.Headings {
			headings[i] = h
		}
		if err := f.SetSheetRow(s.Name, "A1", &headings); err != nil {
			return nil, err
		}
		for i, row := range s.Rows {
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetSheetRow(s.Name, cell, &row); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

// Bytes renders the workbook in memory.
func (r *RunReport) Bytes() ([]byte, error) {
	f, err := r.workbook()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the workbook under dir and returns its path.
func (r *RunReport) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := r.workbook()
	if err != nil {
		return "", err
	}
	defer f.Close()
	path := filepath.Join(dir, r.FileName())
	if err := f.SaveAs(path); err != nil {
		return "", err
	}
	return path, nil
}

// Upload stores the workbook as gs://bucket/codepool-reports/<file name>.
func (r *RunReport) Upload(ctx context.Context, bucket string) (string, error) {
	data, err := r.Bytes()
	if err != nil {
		return "", err
	}
	return utils.UploadToGCS(ctx, bucket, "codepool-reports/"+r.FileName(), xlsxContentType, data)
}
