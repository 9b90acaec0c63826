package port

import (
	"context"
	"time"

	"github.com/bnema/mediaconv/internal/domain"
)

type JobStore interface {
	Insert(ctx context.Context, j *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	GetForSession(ctx context.Context, id, sessionID string) (*domain.Job, error)

	// UpdateFields applies a partial update and reports whether a row matched.
	UpdateFields(ctx context.Context, id string, u domain.JobUpdate) (bool, error)

	CountActive(ctx context.Context, sessionID string) (int, error)
	ListForSession(ctx context.Context, sessionID string, limit int, notExpiredOnly bool, now time.Time) ([]*domain.Job, error)
	CollectExpired(ctx context.Context, now time.Time) ([]*domain.Job, error)
	ListByStatus(ctx context.Context, statuses ...domain.JobStatus) ([]*domain.Job, error)
	Delete(ctx context.Context, id string) error
}
