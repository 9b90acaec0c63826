package service

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bnema/mediaconv/internal/domain"
	"github.com/bnema/mediaconv/internal/infrastructure/logger"
	"github.com/bnema/mediaconv/internal/port"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 100
	maxListLimit     = 200
	purgeBatchSize   = 500
)

const (
	DefaultRetention       = 3 * time.Hour
	DefaultCleanupInterval = 5 * time.Minute
	DefaultMaxEnqueuedJobs = 50
)

const interruptedMessage = "interrupted by restart"

type Config struct {
	DataDir         string
	Retention       time.Duration
	CleanupInterval time.Duration
	MaxEnqueuedJobs int
	Pools           PoolSizes
}

// AdmitRequest is one upload as received from a client.
type AdmitRequest struct {
	SessionID    string
	Filename     string
	File         io.Reader
	Action       string
	TargetFormat string
	CompMode     string
	CompValue    string
	Params       domain.Params
}

type AdmitResult struct {
	JobID  string
	Status domain.JobStatus
}

// Output is an open result file ready to be streamed. The caller closes
// File.
type Output struct {
	File        *os.File
	Filename    string
	ContentType string
	Size        int64
}

// JobService is the entry point of the job subsystem: admission, polling,
// downloads and the background lifecycle.
type JobService struct {
	store        port.JobStore
	quota        *QuotaGuard
	dispatcher   *Dispatcher
	runner       *Runner
	reaper       *Reaper
	events       *EventBus
	uploadDir    string
	processedDir string
	cfg          Config
	now          func() time.Time
	logger       *zap.Logger

	mu           sync.Mutex
	reaperCancel context.CancelFunc
	reaperDone   chan struct{}
}

func NewJobService(
	store port.JobStore,
	transformers map[domain.MediaType]port.Transformer,
	events *EventBus,
	cfg Config,
	logger *zap.Logger,
) (*JobService, error) {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}

	uploadDir := filepath.Join(cfg.DataDir, "uploads")
	processedDir := filepath.Join(cfg.DataDir, "processed")
	for _, dir := range []string{uploadDir, processedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	var publisher EventPublisher
	if events != nil {
		publisher = events
	}

	s := &JobService{
		store:        store,
		quota:        NewQuotaGuard(store, cfg.MaxEnqueuedJobs),
		events:       events,
		uploadDir:    uploadDir,
		processedDir: processedDir,
		cfg:          cfg,
		now:          time.Now,
		logger:       logger,
	}
	s.runner = NewRunner(store, transformers, processedDir, cfg.Retention, publisher, logger.Named("runner"))
	s.dispatcher = NewDispatcher(cfg.Pools, s.runner.Run, logger.Named("dispatcher"))
	s.reaper = NewReaper(store, s.dispatcher, cfg.CleanupInterval, logger.Named("reaper"))
	return s, nil
}

// Start launches the worker pools, re-queues the work left by a previous
// process and starts the reaper. ctx bounds the life of the workers and
// the reaper.
func (s *JobService) Start(ctx context.Context) error {
	s.dispatcher.Start(ctx)

	if err := s.recoverJobs(ctx); err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}

	reaperCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.reaperCancel = cancel
	s.reaperDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.reaper.Run(reaperCtx)
	}()
	return nil
}

// Shutdown stops the reaper and the pools. Jobs already running are not
// waited for.
func (s *JobService) Shutdown() {
	s.mu.Lock()
	cancel, done := s.reaperCancel, s.reaperDone
	s.reaperCancel, s.reaperDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.dispatcher.Stop()
}

// recoverJobs fails the jobs a previous process was running and re-submits
// the queued ones whose input is still on disk.
func (s *JobService) recoverJobs(ctx context.Context) error {
	stalled, err := s.store.ListByStatus(ctx, domain.JobStatusProcessing)
	if err != nil {
		return err
	}
	for _, j := range stalled {
		s.failStranded(ctx, j, domain.JobStatusProcessing, interruptedMessage)
	}

	queued, err := s.store.ListByStatus(ctx, domain.JobStatusQueued)
	if err != nil {
		return err
	}
	resubmitted := 0
	for _, j := range queued {
		if j.InputPath == "" || !fileExists(j.InputPath) {
			s.failStranded(ctx, j, domain.JobStatusQueued, "input file missing")
			continue
		}
		if err := s.dispatcher.Submit(j.ID, j.MediaType); err != nil {
			return err
		}
		resubmitted++
	}

	if len(stalled) > 0 || resubmitted > 0 {
		s.logger.Info("recovered jobs",
			zap.Int("interrupted", len(stalled)),
			zap.Int("resubmitted", resubmitted),
		)
	}
	return nil
}

func (s *JobService) failStranded(ctx context.Context, j *domain.Job, from domain.JobStatus, msg string) {
	failed := domain.JobStatusError
	now := s.now()
	expiresAt := now.Add(s.cfg.Retention)
	if _, err := s.store.UpdateFields(ctx, j.ID, domain.JobUpdate{
		Status:         &failed,
		Error:          &msg,
		DoneAt:         &now,
		ExpiresAt:      &expiresAt,
		ClearInputPath: true,
		FromStatus:     &from,
	}); err != nil {
		s.logger.Warn("failed to mark stranded job", zap.String("job_id", j.ID), zap.Error(err))
		return
	}
	removeQuietly(s.logger, j.InputPath)
}

// Admit validates an upload, persists its input and queues the job. A
// cover image is stored as is and finished immediately.
func (s *JobService) Admit(ctx context.Context, req AdmitRequest) (*AdmitResult, error) {
	if req.File == nil || strings.TrimSpace(req.Filename) == "" {
		return nil, domain.ErrMissingFile
	}

	action, ok := domain.ParseAction(req.Action)
	if !ok {
		return nil, domain.ErrInvalidAction
	}

	targetFormat := ""
	if action == domain.ActionConvert {
		var valid bool
		targetFormat, valid = domain.NormalizeFormat(req.TargetFormat)
		if targetFormat == "" {
			return nil, domain.ErrMissingFormat
		}
		if !valid {
			return nil, domain.ErrInvalidFormat
		}
	}

	params := req.Params
	if err := params.Validate(); err != nil {
		return nil, err
	}
	params.RelativePath = domain.SanitizeRelativePath(params.RelativePath)
	params.IsCover = false

	allowed, err := s.quota.Allow(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domain.ErrQuotaExceeded
	}

	filename := domain.UploadFilename(req.Filename)
	if domain.IsIgnoredFilename(filename) {
		return nil, domain.ErrDisallowedFilename
	}

	id := domain.NewJobID()
	storageName := domain.SanitizeFilename(id + "__" + filename)
	inputPath := filepath.Join(s.uploadDir, storageName)
	if err := writeFile(inputPath, req.File); err != nil {
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}

	now := s.now()
	job := &domain.Job{
		ID:               id,
		SessionID:        req.SessionID,
		MediaType:        domain.DetectMediaType(filename),
		OriginalFilename: filename,
		Action:           action,
		TargetFormat:     targetFormat,
		CompMode:         strings.TrimSpace(req.CompMode),
		CompValue:        strings.TrimSpace(req.CompValue),
		Params:           params,
		Status:           domain.JobStatusQueued,
		CreatedAt:        now,
		InputPath:        inputPath,
	}

	if domain.IsCoverImage(filename) {
		return s.admitCover(ctx, job, storageName)
	}

	if err := s.store.Insert(ctx, job); err != nil {
		removeQuietly(s.logger, inputPath)
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	s.logger.Info("job queued",
		zap.String("job_id", id),
		zap.String("media_type", string(job.MediaType)),
		zap.String("action", string(action)),
		logger.Untrusted("filename", filename),
	)
	s.publish(id, domain.JobStatusQueued)

	if err := s.dispatcher.Submit(id, job.MediaType); err != nil {
		// The row stays queued; the next start re-submits it.
		s.logger.Warn("failed to dispatch job", zap.String("job_id", id), zap.Error(err))
	}
	return &AdmitResult{JobID: id, Status: domain.JobStatusQueued}, nil
}

func (s *JobService) admitCover(ctx context.Context, job *domain.Job, storageName string) (*AdmitResult, error) {
	outputPath := filepath.Join(s.processedDir, storageName)
	if err := copyFile(job.InputPath, outputPath); err != nil {
		removeQuietly(s.logger, job.InputPath)
		removeQuietly(s.logger, outputPath)
		return nil, fmt.Errorf("failed to store cover: %w", err)
	}
	removeQuietly(s.logger, job.InputPath)

	now := job.CreatedAt
	job.InputPath = ""
	job.Params.IsCover = true
	job.Status = domain.JobStatusDone
	job.OutputPath = outputPath
	job.OutputFilename = job.OriginalFilename
	job.DoneAt.Time, job.DoneAt.Valid = now, true
	job.ExpiresAt.Time, job.ExpiresAt.Valid = now.Add(s.cfg.Retention), true

	if err := s.store.Insert(ctx, job); err != nil {
		removeQuietly(s.logger, outputPath)
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	s.logger.Info("cover stored", zap.String("job_id", job.ID))
	s.publish(job.ID, domain.JobStatusDone)
	return &AdmitResult{JobID: job.ID, Status: domain.JobStatusDone}, nil
}

// GetStatus returns the job as seen by sessionID. Jobs of other sessions
// are reported as not found.
func (s *JobService) GetStatus(ctx context.Context, jobID, sessionID string) (*domain.JobView, error) {
	job, err := s.store.GetForSession(ctx, jobID, sessionID)
	if err != nil {
		return nil, err
	}
	v := job.View()
	return &v, nil
}

// List returns the unexpired jobs of sessionID, newest first.
func (s *JobService) List(ctx context.Context, sessionID string, limit int) ([]domain.JobView, error) {
	limit = clampLimit(limit)
	jobs, err := s.store.ListForSession(ctx, sessionID, limit, true, s.now())
	if err != nil {
		return nil, err
	}
	views := make([]domain.JobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, j.View())
	}
	return views, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}

// FetchOutput opens the result of a finished job.
func (s *JobService) FetchOutput(ctx context.Context, jobID, sessionID string) (*Output, error) {
	job, err := s.store.GetForSession(ctx, jobID, sessionID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusDone {
		return nil, domain.ErrNotReady
	}
	if job.IsExpired(s.now()) {
		return nil, domain.ErrExpired
	}
	if job.OutputPath == "" {
		return nil, domain.ErrNotFound
	}

	f, err := os.Open(job.OutputPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to open output: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat output: %w", err)
	}

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectReader(f); err == nil {
		contentType = mt.String()
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rewind output: %w", err)
	}

	name := job.OutputFilename
	if name == "" {
		name = filepath.Base(job.OutputPath)
	}
	return &Output{File: f, Filename: name, ContentType: contentType, Size: info.Size()}, nil
}

// PurgeSession deletes every job of sessionID with its files and returns
// how many rows were removed.
func (s *JobService) PurgeSession(ctx context.Context, sessionID string) (int, error) {
	deleted := 0
	for {
		jobs, err := s.store.ListForSession(ctx, sessionID, purgeBatchSize, false, s.now())
		if err != nil {
			return deleted, err
		}
		if len(jobs) == 0 {
			break
		}
		for _, j := range jobs {
			removeQuietly(s.logger, j.InputPath)
			removeQuietly(s.logger, j.OutputPath)
			if err := s.store.Delete(ctx, j.ID); err != nil {
				return deleted, fmt.Errorf("failed to delete job %s: %w", j.ID, err)
			}
			deleted++
		}
		if len(jobs) < purgeBatchSize {
			break
		}
	}

	if deleted > 0 {
		s.logger.Info("session purged", zap.Int("count", deleted))
	}
	return deleted, nil
}

// ArchiveOutputs writes a zip of every finished, unexpired output of
// sessionID to w. It returns domain.ErrNotFound when there is nothing to
// archive, before anything is written.
func (s *JobService) ArchiveOutputs(ctx context.Context, sessionID string, w io.Writer) error {
	now := s.now()
	jobs, err := s.store.ListForSession(ctx, sessionID, purgeBatchSize, true, now)
	if err != nil {
		return err
	}

	var ready []*domain.Job
	for _, j := range jobs {
		if j.Status == domain.JobStatusDone && j.OutputPath != "" && fileExists(j.OutputPath) {
			ready = append(ready, j)
		}
	}
	if len(ready) == 0 {
		return domain.ErrNotFound
	}

	zw := zip.NewWriter(w)
	seen := make(map[string]bool)
	for _, j := range ready {
		name := uniqueArchiveName(domain.ArchiveName(j), seen)
		if err := addToArchive(zw, name, j.OutputPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

func addToArchive(zw *zip.Writer, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dst, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	return nil
}

// uniqueArchiveName suffixes repeated names as "name (2).ext", skipping
// any suffixed name already taken.
func uniqueArchiveName(name string, seen map[string]bool) string {
	candidate := name
	ext := filepath.Ext(name)
	for n := 2; seen[candidate]; n++ {
		candidate = fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), n, ext)
	}
	seen[candidate] = true
	return candidate
}

func (s *JobService) Workers() PoolSizes {
	return s.dispatcher.Sizes()
}

func (s *JobService) Retention() time.Duration {
	return s.cfg.Retention
}

func (s *JobService) MaxEnqueuedJobs() int {
	return s.quota.Limit()
}

func (s *JobService) publish(jobID string, status domain.JobStatus) {
	if s.events != nil {
		s.events.Publish(jobID, Event{Status: status})
	}
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return writeFile(dst, in)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
