package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/mediaconv/internal/domain"
	"github.com/bnema/mediaconv/internal/infrastructure/logger"
	"github.com/bnema/mediaconv/internal/port"
	"go.uber.org/zap"
)

// Runner drives one job from queued to a terminal status.
type Runner struct {
	store        port.JobStore
	transformers map[domain.MediaType]port.Transformer
	processedDir string
	retention    time.Duration
	events       EventPublisher
	now          func() time.Time
	logger       *zap.Logger
}

func NewRunner(
	store port.JobStore,
	transformers map[domain.MediaType]port.Transformer,
	processedDir string,
	retention time.Duration,
	events EventPublisher,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		store:        store,
		transformers: transformers,
		processedDir: processedDir,
		retention:    retention,
		events:       events,
		now:          time.Now,
		logger:       logger,
	}
}

// Run executes jobID. A job that is no longer queued is skipped, so running
// the same id twice has no effect.
func (r *Runner) Run(ctx context.Context, jobID string) {
	job, err := r.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.logger.Debug("job vanished before start", zap.String("job_id", jobID))
		} else {
			r.logger.Error("failed to load job", zap.String("job_id", jobID), zap.Error(err))
		}
		return
	}
	if job.Status != domain.JobStatusQueued {
		r.logger.Debug("job not queued, skipping",
			zap.String("job_id", jobID),
			zap.String("status", string(job.Status)),
		)
		return
	}

	processing := domain.JobStatusProcessing
	queued := domain.JobStatusQueued
	startedAt := r.now()
	claimed, err := r.store.UpdateFields(ctx, jobID, domain.JobUpdate{
		Status:     &processing,
		StartedAt:  &startedAt,
		FromStatus: &queued,
	})
	if err != nil {
		r.logger.Error("failed to start job", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if !claimed {
		return
	}
	r.publish(jobID, processing, "")
	r.logger.Info("job start",
		zap.String("job_id", jobID),
		zap.String("media_type", string(job.MediaType)),
		logger.Untrusted("filename", job.OriginalFilename),
	)

	outputFilename, storageFilename := domain.OutputNames(job)
	outputPath := filepath.Join(r.processedDir, storageFilename)
	if _, ok := domain.NormalizeFormat(job.TargetFormat); (job.Action == domain.ActionConvert && !ok) ||
		!withinDir(r.processedDir, outputPath) {
		r.removeFile(job.InputPath)
		r.finishWithError(ctx, job, fmt.Errorf("%w: target %q", domain.ErrUnsupportedFormat, job.TargetFormat))
		return
	}

	runErr := r.transform(ctx, job, outputPath)
	if runErr == nil {
		if _, statErr := os.Stat(outputPath); statErr != nil {
			runErr = fmt.Errorf("no output produced: %w", statErr)
		}
	}

	r.removeFile(job.InputPath)

	if runErr != nil {
		r.removeFile(outputPath)
		r.finishWithError(ctx, job, runErr)
		return
	}
	r.finishDone(ctx, job, outputPath, outputFilename)
}

// withinDir reports whether path is a file directly inside dir.
func withinDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != "." && rel != ".." && filepath.Base(rel) == rel
}

func (r *Runner) transform(ctx context.Context, job *domain.Job, outputPath string) (err error) {
	ext := domain.Ext(job.OriginalFilename)
	t, ok := r.transformers[domain.MediaTypeForExt(ext)]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, ext)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("transform panicked: %v", rec)
		}
	}()
	return t.Transform(ctx, domain.NewTransformRequest(job, outputPath))
}

func (r *Runner) finishDone(ctx context.Context, job *domain.Job, outputPath, outputFilename string) {
	done := domain.JobStatusDone
	processing := domain.JobStatusProcessing
	doneAt := r.now()
	expiresAt := doneAt.Add(r.retention)
	empty := ""

	matched, err := r.store.UpdateFields(ctx, job.ID, domain.JobUpdate{
		Status:         &done,
		Error:          &empty,
		DoneAt:         &doneAt,
		ExpiresAt:      &expiresAt,
		OutputPath:     &outputPath,
		OutputFilename: &outputFilename,
		ClearInputPath: true,
		FromStatus:     &processing,
	})
	if err != nil || !matched {
		// The row is gone; nothing will ever serve or reap this file.
		r.removeFile(outputPath)
		if err != nil {
			r.logger.Error("failed to record job result", zap.String("job_id", job.ID), zap.Error(err))
		}
		return
	}

	r.publish(job.ID, done, "")
	r.logger.Info("job done",
		zap.String("job_id", job.ID),
		zap.String("media_type", string(job.MediaType)),
	)
}

func (r *Runner) finishWithError(ctx context.Context, job *domain.Job, runErr error) {
	failed := domain.JobStatusError
	processing := domain.JobStatusProcessing
	msg := domain.SafeErrorMessage(runErr)
	doneAt := r.now()
	expiresAt := doneAt.Add(r.retention)

	_, err := r.store.UpdateFields(ctx, job.ID, domain.JobUpdate{
		Status:         &failed,
		Error:          &msg,
		DoneAt:         &doneAt,
		ExpiresAt:      &expiresAt,
		ClearInputPath: true,
		FromStatus:     &processing,
	})
	if err != nil {
		r.logger.Error("failed to record job failure", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	r.publish(job.ID, failed, msg)
	r.logger.Info("job error",
		zap.String("job_id", job.ID),
		zap.String("media_type", string(job.MediaType)),
		logger.Untrusted("error", msg),
	)
}

func (r *Runner) removeFile(path string) {
	removeQuietly(r.logger, path)
}

func (r *Runner) publish(jobID string, status domain.JobStatus, msg string) {
	if r.events != nil {
		r.events.Publish(jobID, Event{Status: status, Message: msg})
	}
}
