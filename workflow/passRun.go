package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/codepool/config"
	"bitbucket.org/mmdatafocus/codepool/utils"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

// BeginPass tags ctx with a fresh run id and the pass name and takes the run lock
// <run_lock.key_prefix>:<pass>. The caller releases the lock when the pass ends.
func BeginPass(ctx context.Context, cfg config.JobConfig, locker *redislock.Client, logger *logrus.Logger, pass string) (context.Context, *RunLock, error) {
	runId := utils.RunIdFromContextOrNew(ctx)
	ctx = utils.SetRunIdInContext(ctx, runId)
	ctx = utils.SetPassInContext(ctx, pass)

	lock, err := AcquireRunLock(ctx, locker, logger, cfg.RunLock.KeyPrefix+":"+pass, cfg.RunLock.TTL)
	if err != nil {
		return ctx, nil, err
	}
	logger.WithFields(logrus.Fields{"run_id": runId, "pass": pass}).Info("pass.start")
	return ctx, lock, nil
}
