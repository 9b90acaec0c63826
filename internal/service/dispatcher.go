package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/bnema/mediaconv/internal/domain"
	"go.uber.org/zap"
)

var ErrDispatcherStopped = errors.New("dispatcher stopped")

// PoolSizes is the worker count of each media pool.
type PoolSizes struct {
	Video int `json:"video"`
	Audio int `json:"audio"`
	Image int `json:"image"`
	PDF   int `json:"pdf"`
}

// DefaultPoolSizes sizes the pools for the host: one video worker since
// the transcoder already uses every core, one audio worker per core, at
// least four image workers and four pdf workers.
func DefaultPoolSizes() PoolSizes {
	cpus := runtime.NumCPU()
	return PoolSizes{
		Video: 1,
		Audio: cpus,
		Image: max(4, cpus),
		PDF:   4,
	}
}

// withDefaults replaces non-positive sizes with the host defaults.
func (s PoolSizes) withDefaults() PoolSizes {
	d := DefaultPoolSizes()
	if s.Video <= 0 {
		s.Video = d.Video
	}
	if s.Audio <= 0 {
		s.Audio = d.Audio
	}
	if s.Image <= 0 {
		s.Image = d.Image
	}
	if s.PDF <= 0 {
		s.PDF = d.PDF
	}
	return s
}

// JobHandler executes one dispatched job.
type JobHandler func(ctx context.Context, jobID string)

// Dispatcher routes jobs to a worker pool per media type. Submit never
// blocks: each pool keeps an unbounded FIFO queue drained by a fixed set
// of workers.
type Dispatcher struct {
	sizes   PoolSizes
	pools   map[domain.MediaType]*pool
	handler JobHandler
	logger  *zap.Logger

	mu      sync.Mutex
	claims  map[string]struct{}
	started bool
	stopped bool
}

func NewDispatcher(sizes PoolSizes, handler JobHandler, logger *zap.Logger) *Dispatcher {
	sizes = sizes.withDefaults()
	d := &Dispatcher{
		sizes:   sizes,
		handler: handler,
		logger:  logger,
		claims:  make(map[string]struct{}),
	}
	d.pools = map[domain.MediaType]*pool{
		domain.MediaTypeVideo: newPool(string(domain.MediaTypeVideo), sizes.Video),
		domain.MediaTypeAudio: newPool(string(domain.MediaTypeAudio), sizes.Audio),
		domain.MediaTypeImage: newPool(string(domain.MediaTypeImage), sizes.Image),
		domain.MediaTypePDF:   newPool(string(domain.MediaTypePDF), sizes.PDF),
	}
	return d
}

// Start launches the workers of every pool. Jobs run with ctx, which is
// expected to outlive Stop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true

	for _, p := range d.pools {
		for i := range p.size {
			go d.work(ctx, p, i)
		}
	}
	d.logger.Info("dispatcher started",
		zap.Int("video", d.sizes.Video),
		zap.Int("audio", d.sizes.Audio),
		zap.Int("image", d.sizes.Image),
		zap.Int("pdf", d.sizes.PDF),
	)
}

// Submit enqueues jobID on the pool for mediaType. Unknown media types go
// to the image pool. The job stays claimed until its handler returns.
func (d *Dispatcher) Submit(jobID string, mediaType domain.MediaType) error {
	p, ok := d.pools[mediaType]
	if !ok {
		p = d.pools[domain.MediaTypeImage]
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrDispatcherStopped
	}
	if _, dup := d.claims[jobID]; dup {
		d.mu.Unlock()
		return nil
	}
	d.claims[jobID] = struct{}{}
	d.mu.Unlock()

	if !p.push(jobID) {
		d.release(jobID)
		return ErrDispatcherStopped
	}
	return nil
}

// Claimed reports whether jobID is queued or running in this process.
func (d *Dispatcher) Claimed(jobID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.claims[jobID]
	return ok
}

// Stop refuses further submissions and drops queued jobs. It does not wait
// for running jobs.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	dropped := 0
	for _, p := range d.pools {
		for _, id := range p.close() {
			d.release(id)
			dropped++
		}
	}
	d.logger.Info("dispatcher stopped", zap.Int("dropped", dropped))
}

func (d *Dispatcher) Sizes() PoolSizes {
	return d.sizes
}

func (d *Dispatcher) release(jobID string) {
	d.mu.Lock()
	delete(d.claims, jobID)
	d.mu.Unlock()
}

func (d *Dispatcher) work(ctx context.Context, p *pool, worker int) {
	for {
		jobID, ok := p.pop()
		if !ok {
			return
		}
		d.runOne(ctx, p.name, worker, jobID)
	}
}

func (d *Dispatcher) runOne(ctx context.Context, poolName string, worker int, jobID string) {
	defer d.release(jobID)
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("job handler panicked",
				zap.String("pool", poolName),
				zap.Int("worker", worker),
				zap.String("job_id", jobID),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	d.handler(ctx, jobID)
}

// pool is a FIFO queue consumed by size workers.
type pool struct {
	name  string
	size  int
	mu    sync.Mutex
	cond  *sync.Cond
	queue []string
	done  bool
}

func newPool(name string, size int) *pool {
	p := &pool{name: name, size: size}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *pool) push(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return false
	}
	p.queue = append(p.queue, jobID)
	p.cond.Signal()
	return true
}

// pop blocks until a job is available or the pool is closed.
func (p *pool) pop() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.done {
		p.cond.Wait()
	}
	if p.done {
		return "", false
	}
	jobID := p.queue[0]
	p.queue[0] = ""
	p.queue = p.queue[1:]
	return jobID, true
}

// close wakes every worker and returns the jobs that never started.
func (p *pool) close() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = true
	pending := p.queue
	p.queue = nil
	p.cond.Broadcast()
	return pending
}
