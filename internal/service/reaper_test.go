package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bnema/mediaconv/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type claimSet map[string]bool

func (c claimSet) Claimed(jobID string) bool { return c[jobID] }

func TestReaper_Sweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	dir := t.TempDir()

	tests := []struct {
		name       string
		status     domain.JobStatus
		created    time.Time
		expiresAt  time.Time
		claimed    bool
		wantReaped bool
	}{
		{"expired done", domain.JobStatusDone, now.Add(-4 * time.Hour), now.Add(-time.Minute), false, true},
		{"expired error", domain.JobStatusError, now.Add(-4 * time.Hour), now.Add(-time.Second), false, true},
		{"expires exactly now", domain.JobStatusDone, now.Add(-3 * time.Hour), now, false, true},
		{"not yet expired", domain.JobStatusDone, now.Add(-time.Hour), now.Add(time.Hour), false, false},
		{"fresh queued", domain.JobStatusQueued, now.Add(-23 * time.Hour), time.Time{}, false, false},
		{"queued zombie", domain.JobStatusQueued, now.Add(-25 * time.Hour), time.Time{}, false, true},
		{"processing zombie", domain.JobStatusProcessing, now.Add(-25 * time.Hour), time.Time{}, false, true},
		{"zombie still held by a worker", domain.JobStatusProcessing, now.Add(-25 * time.Hour), time.Time{}, true, false},
		{"expired job with stale claim", domain.JobStatusDone, now.Add(-25 * time.Hour), now.Add(-time.Hour), true, true},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			ctx := context.Background()
			id := "job" + string(rune('a'+i))

			job := seedJob(t, store, dir, id, "sess", "photo.png", tt.status, tt.created)
			output := filepath.Join(dir, id+".jpg")
			require.NoError(t, os.WriteFile(output, []byte("out"), 0644))

			update := domain.JobUpdate{OutputPath: &output}
			if !tt.expiresAt.IsZero() {
				update.ExpiresAt = &tt.expiresAt
			}
			_, err := store.UpdateFields(ctx, id, update)
			require.NoError(t, err)

			reaper := NewReaper(store, claimSet{id: tt.claimed}, time.Minute, zaptest.NewLogger(t))
			reaper.now = func() time.Time { return now }

			n, err := reaper.Sweep(ctx)
			require.NoError(t, err)

			_, getErr := store.Get(ctx, id)
			if tt.wantReaped {
				assert.Equal(t, 1, n)
				assert.ErrorIs(t, getErr, domain.ErrNotFound)
				assert.True(t, fileMissing(job.InputPath))
				assert.True(t, fileMissing(output))
			} else {
				assert.Equal(t, 0, n)
				assert.NoError(t, getErr)
				assert.FileExists(t, job.InputPath)
				assert.FileExists(t, output)
			}
		})
	}
}

func TestReaper_MissingFilesAreIgnored(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	job := seedJob(t, store, t.TempDir(), "job1", "sess", "photo.png", domain.JobStatusError, now.Add(-time.Hour))
	require.NoError(t, os.Remove(job.InputPath))
	gone := "/nonexistent/output.jpg"
	expired := now.Add(-time.Minute)
	_, err := store.UpdateFields(ctx, "job1", domain.JobUpdate{ExpiresAt: &expired, OutputPath: &gone})
	require.NoError(t, err)

	reaper := NewReaper(store, nil, time.Minute, zaptest.NewLogger(t))
	reaper.now = func() time.Time { return now }

	n, err := reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReaper_RunStopsWithContext(t *testing.T) {
	store := newTestStore(t)
	reaper := NewReaper(store, nil, 10*time.Millisecond, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		reaper.Run(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}

func TestReaper_RunSweepsImmediately(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	past := time.Now().Add(-48 * time.Hour)
	seedJob(t, store, t.TempDir(), "job1", "sess", "photo.png", domain.JobStatusQueued, past)

	reaper := NewReaper(store, nil, time.Hour, zaptest.NewLogger(t))
	go reaper.Run(ctx)

	require.Eventually(t, func() bool {
		_, err := store.Get(context.Background(), "job1")
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)
}
