package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/codepool/config"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

// RunLock keeps a batch pass single-instance. A zero RunLock (no redis) is a no-op.
type RunLock struct {
	lock *redislock.Lock
	key  string
	ttl  time.Duration
	stop chan struct{}
	done chan struct{}
}

// AcquireRunLock obtains key for ttl and refreshes it every ttl/2 until Release.
// With a nil locker the pass runs unguarded.
func AcquireRunLock(ctx context.Context, locker *redislock.Client, logger *logrus.Logger, key string, ttl time.Duration) (*RunLock, error) {
	if locker == nil {
		if logger != nil {
			logger.WithField("lock_key", key).Warn("redis lock not configured; running without run lock")
		}
		return &RunLock{key: key}, nil
	}
	lock, err := locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrRunLocked, key)
	} else if err != nil {
		config.LogError(logger, "runLock.go", "AcquireRunLock", "Error obtaining run lock", key, err)
		return nil, err
	}

	r := &RunLock{lock: lock, key: key, ttl: ttl, stop: make(chan struct{}), done: make(chan struct{})}
	go r.keepAlive(logger)
	return r, nil
}

func (r *RunLock) keepAlive(logger *logrus.Logger) {
	defer close(r.done)
	ticker := time.NewTicker(r.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if err := r.lock.Refresh(context.Background(), r.ttl, nil); err != nil {
				config.LogError(logger, "runLock.go", "keepAlive", "Refreshing run lock", r.key, err)
				return
			}
		}
	}
}

func (r *RunLock) Release(ctx context.Context) error {
	if r == nil || r.lock == nil {
		return nil
	}
	close(r.stop)
	<-r.done
	lock := r.lock
	r.lock = nil
	return lock.Release(ctx)
}
