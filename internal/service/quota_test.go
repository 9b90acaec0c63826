package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bnema/mediaconv/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaGuard_Allow(t *testing.T) {
	const limit = 3
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name     string
		queued   int
		finished int
		want     bool
	}{
		{"empty session", 0, 0, true},
		{"one below limit", limit - 1, 0, true},
		{"at limit", limit, 0, false},
		{"finished jobs do not count", limit - 1, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			dir := t.TempDir()
			for i := range tt.queued {
				seedJob(t, store, dir, fmt.Sprintf("q%d", i), "sess", "a.png", domain.JobStatusQueued, now)
			}
			for i := range tt.finished {
				seedJob(t, store, dir, fmt.Sprintf("d%d", i), "sess", "a.png", domain.JobStatusDone, now)
			}
			seedJob(t, store, dir, "other", "other-session", "a.png", domain.JobStatusQueued, now)

			guard := NewQuotaGuard(store, limit)
			ok, err := guard.Allow(context.Background(), "sess")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestQuotaGuard_ProcessingCounts(t *testing.T) {
	store := newTestStore(t)
	now := time.Unix(1_700_000_000, 0)
	seedJob(t, store, t.TempDir(), "p1", "sess", "a.png", domain.JobStatusProcessing, now)

	ok, err := NewQuotaGuard(store, 1).Allow(context.Background(), "sess")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQuotaGuard_NoLimit(t *testing.T) {
	store := newTestStore(t)
	now := time.Unix(1_700_000_000, 0)
	seedJob(t, store, t.TempDir(), "q1", "sess", "a.png", domain.JobStatusQueued, now)

	guard := NewQuotaGuard(store, 0)
	ok, err := guard.Allow(context.Background(), "sess")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, guard.Limit())
}
