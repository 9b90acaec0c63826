package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bnema/mediaconv/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// concurrencyProbe records how many handlers run at once.
type concurrencyProbe struct {
	running atomic.Int32
	peak    atomic.Int32
	release chan struct{}
}

func newConcurrencyProbe() *concurrencyProbe {
	return &concurrencyProbe{release: make(chan struct{})}
}

func (p *concurrencyProbe) enter() {
	n := p.running.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
}

func (p *concurrencyProbe) handle(ctx context.Context, jobID string) {
	p.enter()
	defer p.running.Add(-1)
	<-p.release
}

func TestPoolSizes_WithDefaults(t *testing.T) {
	d := DefaultPoolSizes()
	assert.Equal(t, 1, d.Video)
	assert.GreaterOrEqual(t, d.Image, 4)
	assert.Equal(t, 4, d.PDF)
	assert.GreaterOrEqual(t, d.Audio, 1)

	got := PoolSizes{Video: 2, Audio: -1}.withDefaults()
	assert.Equal(t, 2, got.Video)
	assert.Equal(t, d.Audio, got.Audio)
	assert.Equal(t, d.Image, got.Image)
	assert.Equal(t, d.PDF, got.PDF)
}

func TestDispatcher_RoutesByMediaType(t *testing.T) {
	d := NewDispatcher(PoolSizes{}, func(context.Context, string) {}, zaptest.NewLogger(t))

	require.NoError(t, d.Submit("v1", domain.MediaTypeVideo))
	require.NoError(t, d.Submit("a1", domain.MediaTypeAudio))
	require.NoError(t, d.Submit("p1", domain.MediaTypePDF))
	require.NoError(t, d.Submit("i1", domain.MediaTypeImage))
	require.NoError(t, d.Submit("u1", domain.MediaTypeUnknown))

	assert.Equal(t, []string{"v1"}, d.pools[domain.MediaTypeVideo].queue)
	assert.Equal(t, []string{"a1"}, d.pools[domain.MediaTypeAudio].queue)
	assert.Equal(t, []string{"p1"}, d.pools[domain.MediaTypePDF].queue)
	assert.Equal(t, []string{"i1", "u1"}, d.pools[domain.MediaTypeImage].queue, "unknown falls back to the image pool")
}

func TestDispatcher_DuplicateSubmitIsIgnored(t *testing.T) {
	d := NewDispatcher(PoolSizes{}, func(context.Context, string) {}, zaptest.NewLogger(t))

	require.NoError(t, d.Submit("job1", domain.MediaTypeImage))
	require.NoError(t, d.Submit("job1", domain.MediaTypeImage))

	assert.Len(t, d.pools[domain.MediaTypeImage].queue, 1)
	assert.True(t, d.Claimed("job1"))
	assert.False(t, d.Claimed("job2"))
}

func TestDispatcher_SingleWorkerRunsInOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	handler := func(_ context.Context, id string) {
		mu.Lock()
		order = append(order, id)
		mu.Unlock()
	}

	d := NewDispatcher(PoolSizes{Video: 1}, handler, zaptest.NewLogger(t))
	for i := range 5 {
		require.NoError(t, d.Submit(fmt.Sprintf("job%d", i), domain.MediaTypeVideo))
	}
	d.Start(context.Background())
	t.Cleanup(d.Stop)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"job0", "job1", "job2", "job3", "job4"}, order)
	assert.False(t, d.Claimed("job4"), "claims are released once the handler returns")
}

func TestDispatcher_PoolConcurrency(t *testing.T) {
	tests := []struct {
		name      string
		sizes     PoolSizes
		mediaType domain.MediaType
		wantPeak  int32
	}{
		{"video pool runs one at a time", PoolSizes{Video: 1}, domain.MediaTypeVideo, 1},
		{"image pool runs two at once", PoolSizes{Image: 2}, domain.MediaTypeImage, 2},
		{"pdf pool bounded at three", PoolSizes{PDF: 3}, domain.MediaTypePDF, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := newConcurrencyProbe()
			d := NewDispatcher(tt.sizes, probe.handle, zaptest.NewLogger(t))
			d.Start(context.Background())
			t.Cleanup(d.Stop)

			for i := range 5 {
				require.NoError(t, d.Submit(fmt.Sprintf("job%d", i), tt.mediaType))
			}

			require.Eventually(t, func() bool {
				return probe.running.Load() == tt.wantPeak
			}, 2*time.Second, 5*time.Millisecond)

			// Give extra workers a chance to show up if the bound were broken.
			time.Sleep(50 * time.Millisecond)
			assert.Equal(t, tt.wantPeak, probe.peak.Load())

			close(probe.release)
			require.Eventually(t, func() bool {
				return probe.running.Load() == 0 && !d.Claimed("job4")
			}, 2*time.Second, 5*time.Millisecond)
			assert.Equal(t, tt.wantPeak, probe.peak.Load())
		})
	}
}

func TestDispatcher_StopDropsQueuedJobs(t *testing.T) {
	probe := newConcurrencyProbe()
	d := NewDispatcher(PoolSizes{Video: 1}, probe.handle, zaptest.NewLogger(t))
	d.Start(context.Background())

	require.NoError(t, d.Submit("running", domain.MediaTypeVideo))
	require.Eventually(t, func() bool { return probe.running.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, d.Submit("waiting", domain.MediaTypeVideo))

	d.Stop()

	assert.False(t, d.Claimed("waiting"), "queued jobs are dropped")
	assert.True(t, d.Claimed("running"), "in-flight jobs are not waited for")
	assert.ErrorIs(t, d.Submit("late", domain.MediaTypeVideo), ErrDispatcherStopped)

	close(probe.release)
	require.Eventually(t, func() bool { return !d.Claimed("running") }, 2*time.Second, 5*time.Millisecond)

	d.Stop()
}

func TestDispatcher_HandlerPanicReleasesClaim(t *testing.T) {
	var calls atomic.Int32
	handler := func(_ context.Context, id string) {
		calls.Add(1)
		if id == "boom" {
			panic("codec exploded")
		}
	}

	d := NewDispatcher(PoolSizes{Image: 1}, handler, zaptest.NewLogger(t))
	d.Start(context.Background())
	t.Cleanup(d.Stop)

	require.NoError(t, d.Submit("boom", domain.MediaTypeImage))
	require.NoError(t, d.Submit("after", domain.MediaTypeImage))

	require.Eventually(t, func() bool {
		return calls.Load() == 2 && !d.Claimed("boom") && !d.Claimed("after")
	}, 2*time.Second, 5*time.Millisecond)
}
