package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/codepool/config"
	"bitbucket.org/mmdatafocus/codepool/inventory"
	"bitbucket.org/mmdatafocus/codepool/models"
	"bitbucket.org/mmdatafocus/codepool/reports"
	"bitbucket.org/mmdatafocus/codepool/utils"
	"bitbucket.org/mmdatafocus/codepool/workflow"
)

const pass = "batch-correction"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Optional job config YAML")
	levelList := flag.String("level", "", "Comma separated packaging levels (default: job config levels)")
	batchID := flag.String("batch-id", "", "Only reconcile this batch")
	continueOnError := flag.Bool("continue-on-error", true, "Keep going after a failed unit")
	migrate := flag.Bool("migrate", false, "Auto-migrate the static tables first")
	report := flag.Bool("report", false, "Write an xlsx run report")
	flag.Parse()

	cfg, err := config.LoadJobConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	levels, err := parseLevels(*levelList, cfg.Levels)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := config.GetLogger()

	config.ConnectDatabaseWithRetry()
	defer config.CloseDatabase()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		return 1
	}
	if *migrate {
		if err := models.MigrateTable(db); err != nil {
			config.LogError(logger, "batch-correction", "run", "Migrating static tables", nil, err)
			return 1
		}
	}
	if err := config.ConnectRedisWithRetry(); err != nil {
		config.LogError(logger, "batch-correction", "run", "Connecting redis", nil, err)
		return 1
	}
	defer config.CloseRedis()

	ctx, lock, err := workflow.BeginPass(context.Background(), cfg, config.GetRedisLock(), logger, pass)
	if err != nil {
		config.LogError(logger, "batch-correction", "run", "Acquiring run lock", nil, err)
		return 1
	}
	defer lock.Release(context.Background())

	engine := workflow.NewEngine(db, inventory.NewStore(cfg.InsertChunkSize), logger, nil)
	if notifier := config.NewPubSubNotifier(cfg.Notify.Topic); notifier != nil {
		engine.Notifier = notifier
		defer config.ClosePubSub()
	}

	outcomes, err := engine.Run(ctx, workflow.ReconcileOptions{
		Levels:          levels,
		BatchId:         strings.TrimSpace(*batchID),
		ContinueOnError: *continueOnError,
		CrmURL:          cfg.CrmURL,
	})

	counts := map[string]int64{"units": int64(len(outcomes))}
	failedUnits := 0
	for _, o := range outcomes {
		counts[string(o.Action)]++
		counts["inserted"] += o.Inserted
		counts["deleted"] += o.Deleted
		if o.Err != nil {
			failedUnits++
		}
	}

	if *report {
		runId, _ := utils.GetRunIdFromContext(ctx)
		r := reports.NewRunReport(pass, runId, false)
		r.AddUnits(outcomes)
		reports.Publish(ctx, cfg.Report, r, counts, err != nil || failedUnits > 0, logger)
	}

	var unitErr *workflow.UnitError
	if err != nil && !errors.As(err, &unitErr) {
		// could not read the request totals
		config.LogError(logger, "batch-correction", "run", "Reconciliation aborted", nil, err)
		return 1
	}
	if failedUnits > 0 {
		logger.WithField("failed_units", failedUnits).Warn("batch-correction finished with failed units")
		return 2
	}
	return 0
}

func parseLevels(list string, defaults []int) ([]models.PackagingLevel, error) {
	var levels []models.PackagingLevel
	if strings.TrimSpace(list) == "" {
		for _, l := range defaults {
			levels = append(levels, models.PackagingLevel(l))
		}
		return levels, nil
	}
	for _, part := range strings.Split(list, ",") {
		l, err := models.ParsePackagingLevel(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("--level: %w", err)
		}
		levels = append(levels, l)
	}
	return utils.UniqueSlice(levels), nil
}
