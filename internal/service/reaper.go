package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bnema/mediaconv/internal/domain"
	"github.com/bnema/mediaconv/internal/port"
	"go.uber.org/zap"
)

// ClaimChecker tells whether a job is still owned by a live worker.
type ClaimChecker interface {
	Claimed(jobID string) bool
}

// Reaper deletes expired jobs and their files on a fixed interval.
type Reaper struct {
	store    port.JobStore
	claims   ClaimChecker
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewReaper(store port.JobStore, claims ClaimChecker, interval time.Duration, logger *zap.Logger) *Reaper {
	return &Reaper{
		store:    store,
		claims:   claims,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// Run sweeps once immediately, then every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if n, err := r.Sweep(ctx); err != nil {
			r.logger.Error("cleanup failed", zap.Error(err))
		} else if n > 0 {
			r.logger.Info("cleanup removed jobs", zap.Int("count", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs one cleanup cycle and returns how many rows it deleted. A
// panic inside the cycle is turned into an error.
func (r *Reaper) Sweep(ctx context.Context) (deleted int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("cleanup panicked: %v", rec)
		}
	}()

	now := r.now()
	jobs, err := r.store.CollectExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	for _, j := range jobs {
		if r.heldByWorker(j, now) {
			r.logger.Debug("skipping running zombie", zap.String("job_id", j.ID))
			continue
		}

		removeQuietly(r.logger, j.InputPath)
		removeQuietly(r.logger, j.OutputPath)
		if err := r.store.Delete(ctx, j.ID); err != nil {
			r.logger.Warn("failed to delete job", zap.String("job_id", j.ID), zap.Error(err))
			continue
		}
		deleted++
	}
	return deleted, nil
}

// heldByWorker reports a row selected only for its age while a worker of
// this process still owns it.
func (r *Reaper) heldByWorker(j *domain.Job, now time.Time) bool {
	if r.claims == nil || j.Status.IsTerminal() || j.IsExpired(now) {
		return false
	}
	return r.claims.Claimed(j.ID)
}

func removeQuietly(logger *zap.Logger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Debug("failed to remove file", zap.String("path", path), zap.Error(err))
	}
}
