package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/codepool/config"
	"bitbucket.org/mmdatafocus/codepool/inventory"
	"bitbucket.org/mmdatafocus/codepool/reports"
	"bitbucket.org/mmdatafocus/codepool/utils"
	"bitbucket.org/mmdatafocus/codepool/workflow"
)

const pass = "summary-resync"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Optional job config YAML")
	dryRun := flag.Bool("dry-run", true, "Show cursor moves only (no writes)")
	confirm := flag.String("confirm", "", "Type RESYNC to proceed when dry-run=false")
	report := flag.Bool("report", false, "Write an xlsx run report")
	flag.Parse()

	if !*dryRun && strings.TrimSpace(*confirm) != "RESYNC" {
		fmt.Fprintln(os.Stderr, "set --confirm=RESYNC to proceed")
		return 1
	}
	cfg, err := config.LoadJobConfig(*configPath)
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
	if err := config.ConnectRedisWithRetry(); err != nil {
		config.LogError(logger, pass, "run", "Connecting redis", nil, err)
		return 1
	}
	defer config.CloseRedis()

	// shares the reconciliation lock: cursors must not move while a top-up runs
	ctx, lock, err := workflow.BeginPass(context.Background(), cfg, config.GetRedisLock(), logger, "batch-correction")
	if err != nil {
		config.LogError(logger, pass, "run", "Acquiring run lock", nil, err)
		return 1
	}
	defer lock.Release(context.Background())

	m := workflow.NewMaintenance(db, inventory.NewStore(cfg.InsertChunkSize), logger)
	outcomes, err := m.ResyncCursors(ctx, *dryRun)

	counts := map[string]int64{"cursors": int64(len(outcomes))}
	for _, o := range outcomes {
		if o.After != o.Before {
			counts["moved"]++
		}
	}
	if *report {
		runId, _ := utils.GetRunIdFromContext(ctx)
		r := reports.NewRunReport(pass, runId, *dryRun)
		r.AddResync(outcomes)
		reports.Publish(ctx, cfg.Report, r, counts, err != nil, logger)
	}

	if err != nil {
		return 1
	}
	return 0
}
