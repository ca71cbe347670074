package reports

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/codepool/config"
	"github.com/sirupsen/logrus"
)

// LastRun is cached in redis under codepool:last_run:<pass> so operators can see the latest outcome.
type LastRun struct {
	Pass       string           `json:"pass"`
	RunId      string           `json:"run_id"`
	DryRun     bool             `json:"dry_run"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Counts     map[string]int64 `json:"counts"`
	Failed     bool             `json:"failed"`
	ReportPath string           `json:"report_path,omitempty"`
	ReportURL  string           `json:"report_url,omitempty"`
}

const lastRunTTL = 30 * 24 * time.Hour

func LastRunKey(pass string) string {
	return "codepool:last_run:" + pass
}

// Publish saves the workbook to cfg.Dir, uploads it to cfg.Bucket when set, and records the last-run
// summary. Failures are logged; they never change the pass result.
func Publish(ctx context.Context, cfg config.ReportConfig, r *RunReport, counts map[string]int64, failed bool, logger *logrus.Logger) LastRun {
	last := LastRun{
		Pass:       r.Pass,
		RunId:      r.RunId,
		DryRun:     r.DryRun,
		StartedAt:  r.StartedAt,
		FinishedAt: time.Now().UTC(),
		Counts:     counts,
		Failed:     failed,
	}
	if cfg.Dir != "" {
		path, err := r.Save(cfg.Dir)
		if err != nil {
			config.LogError(logger, "publish.go", "Publish", "Saving run report", r.FileName(), err)
		} else {
			last.ReportPath = path
		}
	}
	if cfg.Bucket != "" {
		url, err := r.Upload(ctx, cfg.Bucket)
		if err != nil {
			config.LogError(logger, "publish.go", "Publish", "Uploading run report", cfg.Bucket, err)
		} else {
			last.ReportURL = url
		}
	}
	if err := config.SetRedisObject(LastRunKey(r.Pass), last, lastRunTTL); err != nil {
		config.LogError(logger, "publish.go", "Publish", "Caching last run", r.Pass, err)
	}

	logger.WithFields(logrus.Fields{
		"run_id":  r.RunId,
		"pass":    r.Pass,
		"dry_run": r.DryRun,
		"failed":  failed,
		"counts":  counts,
		"report":  last.ReportPath,
	}).Info("pass.done")
	return last
}
