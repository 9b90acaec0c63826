package http

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/bnema/mediaconv/internal/adapter/http/middleware"
	"github.com/bnema/mediaconv/internal/domain"
	"github.com/bnema/mediaconv/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// JobService is the part of the job subsystem the web layer drives.
type JobService interface {
	Admit(ctx context.Context, req service.AdmitRequest) (*service.AdmitResult, error)
	GetStatus(ctx context.Context, jobID, sessionID string) (*domain.JobView, error)
	List(ctx context.Context, sessionID string, limit int) ([]domain.JobView, error)
	FetchOutput(ctx context.Context, jobID, sessionID string) (*service.Output, error)
	PurgeSession(ctx context.Context, sessionID string) (int, error)
	ArchiveOutputs(ctx context.Context, sessionID string, w io.Writer) error
	Workers() service.PoolSizes
	Retention() time.Duration
}

var _ JobService = (*service.JobService)(nil)

type Server struct {
	router     chi.Router
	handlers   *Handlers
	sseHandler *SSEHandler
}

func NewServer(jobs JobService, events *service.EventBus, maxUploadMB int, logger *zap.Logger) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		handlers:   NewHandlers(jobs, maxUploadMB, logger),
		sseHandler: NewSSEHandler(events, jobs, logger),
	}

	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.RequestLogger(logger))
	s.router.Use(chimw.Recoverer)
	s.router.Use(middleware.SecurityHeaders)
	s.router.Use(Sessions)

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handlers.Health)

	s.router.Get("/jobs", s.handlers.ListJobs)
	s.router.Post("/jobs", s.handlers.CreateJob)
	s.router.Get("/jobs/{id}", s.handlers.GetJob)
	s.router.Get("/jobs/{id}/events", s.sseHandler.Events)

	s.router.Get("/download/{id}", s.handlers.Download)
	s.router.Get("/download-all", s.handlers.DownloadAll)
	s.router.Delete("/clear-all", s.handlers.ClearAll)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
