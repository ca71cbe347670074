package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/codepool/config"
	"bitbucket.org/mmdatafocus/codepool/reports"
	"bitbucket.org/mmdatafocus/codepool/utils"
	"bitbucket.org/mmdatafocus/codepool/workflow"
)

const pass = "sscc-fill"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Optional job config YAML")
	dryRun := flag.Bool("dry-run", true, "Show how many placeholders would be inserted")
	report := flag.Bool("report", false, "Write an xlsx run report")
	flag.Parse()

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

	ctx, lock, err := workflow.BeginPass(context.Background(), cfg, config.GetRedisLock(), logger, pass)
	if err != nil {
		config.LogError(logger, pass, "run", "Acquiring run lock", nil, err)
		return 1
	}
	defer lock.Release(context.Background())

	outcomes, err := workflow.NewSsccSequencer(db, logger).Fill(ctx, workflow.SsccOptionsFromConfig(cfg, *dryRun))

	counts := map[string]int64{"batches": int64(len(outcomes))}
	failed := err != nil
	for _, o := range outcomes {
		counts["inserted"] += o.Inserted
		if o.Err != nil {
			failed = true
		}
	}
	if *report {
		runId, _ := utils.GetRunIdFromContext(ctx)
		r := reports.NewRunReport(pass, runId, *dryRun)
		r.AddFill(outcomes)
		reports.Publish(ctx, cfg.Report, r, counts, failed, logger)
	}

	if err != nil {
		config.LogError(logger, pass, "run", "SSCC fill aborted", nil, err)
		return 1
	}
	if failed {
		return 2
	}
	return 0
}
