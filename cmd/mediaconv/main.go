package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bnema/mediaconv/config"
	"github.com/bnema/mediaconv/internal/adapter/converter/ffmpeg"
	"github.com/bnema/mediaconv/internal/adapter/converter/pdf"
	"github.com/bnema/mediaconv/internal/adapter/converter/raster"
	HTTPAdapter "github.com/bnema/mediaconv/internal/adapter/http"
	sqlitestore "github.com/bnema/mediaconv/internal/adapter/storage/sqlite"
	"github.com/bnema/mediaconv/internal/domain"
	"github.com/bnema/mediaconv/internal/infrastructure/logger"
	"github.com/bnema/mediaconv/internal/port"
	"github.com/bnema/mediaconv/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mediaconv: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := sqlitestore.NewStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer func() { _ = store.Close() }()

	av := ffmpeg.NewConverter(cfg.FFmpegPath, cfg.FFprobePath, log.Named("ffmpeg"))
	transformers := map[domain.MediaType]port.Transformer{
		domain.MediaTypeVideo: av,
		domain.MediaTypeAudio: av,
		domain.MediaTypeImage: raster.NewCodec(log.Named("raster")),
		domain.MediaTypePDF:   pdf.NewCodec(log.Named("pdf")),
	}

	events := service.NewEventBus()
	jobs, err := service.NewJobService(store, transformers, events, service.Config{
		DataDir:         cfg.DataDir,
		Retention:       cfg.Retention,
		CleanupInterval: cfg.CleanupInterval,
		MaxEnqueuedJobs: cfg.MaxEnqueuedJobs,
		Pools: service.PoolSizes{
			Video: cfg.VideoWorkers,
			Audio: cfg.AudioWorkers,
			Image: cfg.ImageWorkers,
			PDF:   cfg.PDFWorkers,
		},
	}, log.Named("jobs"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := jobs.Start(ctx); err != nil {
		return fmt.Errorf("failed to start job service: %w", err)
	}
	defer jobs.Shutdown()

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           HTTPAdapter.NewServer(jobs, events, cfg.MaxUploadSizeMB, log.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening",
			zap.String("addr", addr),
			zap.String("data_dir", cfg.DataDir),
			zap.Any("workers", jobs.Workers()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown error", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	log.Info("shutdown complete")
	return err
}
