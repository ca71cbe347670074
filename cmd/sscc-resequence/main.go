package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/codepool/config"
	"bitbucket.org/mmdatafocus/codepool/reports"
	"bitbucket.org/mmdatafocus/codepool/utils"
	"bitbucket.org/mmdatafocus/codepool/workflow"
)

const pass = "sscc-resequence"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Optional job config YAML")
	prefix := flag.String("prefix", "", "SSCC company prefix (default: job config sscc.prefix)")
	dryRun := flag.Bool("dry-run", true, "List the planned assignment without writing")
	report := flag.Bool("report", false, "Write an xlsx run report")
	flag.Parse()

	cfg, err := config.LoadJobConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if p := strings.TrimSpace(*prefix); p != "" {
		cfg.SSCC.Prefix = p
		if err := config.ValidateJobConfig(cfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
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

	out, err := workflow.NewSsccSequencer(db, logger).Resequence(ctx, workflow.SsccOptionsFromConfig(cfg, *dryRun))

	counts := map[string]int64{}
	if out != nil {
		counts["pending"] = int64(out.Pending)
		counts["start_counter"] = out.StartCounter
		counts["assigned"] = int64(len(out.Assignments))
	}
	if *report {
		runId, _ := utils.GetRunIdFromContext(ctx)
		r := reports.NewRunReport(pass, runId, *dryRun)
		r.AddSscc(out)
		reports.Publish(ctx, cfg.Report, r, counts, err != nil, logger)
	}

	if err != nil {
		return 1
	}
	return 0
}
