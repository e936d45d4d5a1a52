// Package scheduler runs the periodic analytics refresh.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/trezcool/flowboard/core"
)

// ErrLocked is returned when another process holds the refresh lock.
var ErrLocked = errors.New("analytics refresh already running")

// Refresher refreshes every analytics record and returns how many were refreshed.
type Refresher interface {
	RefreshAllAnalytics(ctx context.Context) (int, error)
}

// AnalyticsRefresher refreshes the analytics every interval. A lock file makes sure
// only one process per host refreshes at a time.
type AnalyticsRefresher struct {
	refresher Refresher
	interval  time.Duration
	lock      *flock.Flock
	logger    core.Logger
}

func NewAnalyticsRefresher(r Refresher, conf core.AnalyticsConfig, logger core.Logger) *AnalyticsRefresher {
	return &AnalyticsRefresher{
		refresher: r,
		interval:  conf.RefreshInterval,
		lock:      flock.New(conf.LockFile),
		logger:    logger,
	}
}

func (r *AnalyticsRefresher) Enabled() bool { return r.interval > 0 }

// RunOnce refreshes all analytics unless another process is already doing it.
func (r *AnalyticsRefresher) RunOnce(ctx context.Context) (int, error) {
	ok, err := r.lock.TryLock()
	if err != nil {
		return 0, errors.Wrap(err, "acquiring analytics lock")
	}
	if !ok {
		return 0, ErrLocked
	}
	defer func() {
		if err := r.lock.Unlock(); err != nil {
			r.logger.Warn("releasing analytics lock", err)
		}
	}()
	return r.refresher.RefreshAllAnalytics(ctx)
}

// Run refreshes on every tick until ctx is done. It returns immediately when disabled.
func (r *AnalyticsRefresher) Run(ctx context.Context) {
	if !r.Enabled() {
		return
	}
	r.logger.Info(fmt.Sprintf("analytics refresher started (every %s)", r.interval))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("analytics refresher stopped")
			return
		case <-ticker.C:
			n, err := r.RunOnce(ctx)
			switch {
			case errors.Cause(err) == ErrLocked:
				r.logger.Debug("analytics refresh skipped: lock held by another process")
			case err != nil && ctx.Err() == nil:
				r.logger.Error(fmt.Sprintf("refreshing analytics: %v", err), err)
			case err == nil:
				r.logger.Debug(fmt.Sprintf("analytics refresher: %d records", n))
			}
		}
	}
}
