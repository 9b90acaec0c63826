package service

import (
	"context"
	"fmt"

	"github.com/bnema/mediaconv/internal/port"
)

// QuotaGuard caps the number of queued or processing jobs per session. The
// count and the later insert are not atomic, so concurrent admissions may
// overshoot the limit slightly.
type QuotaGuard struct {
	store port.JobStore
	limit int
}

func NewQuotaGuard(store port.JobStore, limit int) *QuotaGuard {
	return &QuotaGuard{store: store, limit: limit}
}

// Allow returns whether sessionID may enqueue one more job.
func (q *QuotaGuard) Allow(ctx context.Context, sessionID string) (bool, error) {
	if q.limit <= 0 {
		return true, nil
	}
	n, err := q.store.CountActive(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("count active jobs: %w", err)
	}
	return n < q.limit, nil
}

func (q *QuotaGuard) Limit() int {
	return q.limit
}
