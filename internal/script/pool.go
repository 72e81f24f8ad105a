package script

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrQueueFull is returned by Submit when the job queue is at capacity.
var ErrQueueFull = errors.New("script queue is full")

// finishedJob pairs a job with its raw execution result for the result
// processor.
type finishedJob struct {
	job Job
	res result
}

// Pool runs scripts on a fixed set of workers behind a bounded queue.
// Submit never blocks on execution: it enqueues and returns the job id
// immediately, or ErrQueueFull. A single result processor goroutine
// persists terminal states and captured output, so workers are back on
// the queue as soon as a script exits.
type Pool struct {
	runner  Runner
	store   *Store
	logger  *zap.Logger
	workers int

	queue   chan Job
	results chan finishedJob

	mu   sync.Mutex
	jobs map[string]*Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup // workers
	pwg    sync.WaitGroup // result processor
}

// NewPool creates a pool with the given worker count and queue capacity.
func NewPool(store *Store, workers, queueSize int, defaultTimeout time.Duration, logger *zap.Logger) *Pool {
	return &Pool{
		runner:  Runner{DefaultTimeout: defaultTimeout},
		store:   store,
		logger:  logger,
		workers: workers,
		queue:   make(chan Job, queueSize),
		results: make(chan finishedJob, queueSize),
		jobs:    make(map[string]*Job),
	}
}

// Start launches the workers and the result processor.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.pwg.Add(1)
	go p.processResults()
}

// Stop drains the pool: workers finish their in-flight script (killed at
// its deadline or when ctx expires), then the result processor persists
// the remaining outcomes. Returns an error if ctx expires first.
func (p *Pool) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(p.results)
		p.pwg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("script pool shutdown: %w", ctx.Err())
	}
}

// Submit validates the spec, persists a queued job record, and enqueues
// it. The returned id can be used with Job to poll the outcome.
func (p *Pool) Submit(ctx context.Context, spec Spec, label string) (string, error) {
	if err := validateSpec(spec); err != nil {
		return "", err
	}

	job := Job{
		ID:       uuid.NewString(),
		Label:    label,
		Spec:     spec,
		Status:   StatusQueued,
		QueuedAt: time.Now(),
	}

	if err := p.store.InsertJob(ctx, job); err != nil {
		return "", fmt.Errorf("persist job: %w", err)
	}

	p.mu.Lock()
	p.jobs[job.ID] = &job
	p.mu.Unlock()

	select {
	case p.queue <- job:
	default:
		p.finalize(ctx, job, result{
			Status:   StatusError,
			ExitCode: -1,
			Err:      ErrQueueFull,
		})
		return "", ErrQueueFull
	}

	queueDepth.Set(float64(len(p.queue)))
	p.logger.Debug("script job queued",
		zap.String("job_id", job.ID),
		zap.String("label", label),
	)
	return job.ID, nil
}

// Job returns a copy of a tracked job by id.
func (p *Pool) Job(id string) (Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Jobs returns a snapshot of all tracked jobs.
func (p *Pool) Jobs() []Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Job, 0, len(p.jobs))
	for _, j := range p.jobs {
		out = append(out, *j)
	}
	return out
}

// QueueDepth returns the number of jobs waiting for a worker.
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job := <-p.queue:
			queueDepth.Set(float64(len(p.queue)))
			p.runOne(job)
		}
	}
}

func (p *Pool) runOne(job Job) {
	started := time.Now()
	p.setStatus(job.ID, StatusRunning, started)
	if err := p.store.MarkRunning(p.ctx, job.ID, started); err != nil {
		p.logger.Warn("failed to mark job running",
			zap.String("job_id", job.ID), zap.Error(err))
	}

	res := p.runner.Run(p.ctx, job.Spec)

	job.StartedAt = started
	job.FinishedAt = time.Now()
	// The processor drains this channel until workers are done, so the
	// send cannot block past shutdown.
	p.results <- finishedJob{job: job, res: res}
}

// processResults is the single goroutine that persists terminal job
// states, keeping the workers free for the next script.
func (p *Pool) processResults() {
	defer p.pwg.Done()

	for fj := range p.results {
		p.finalize(context.Background(), fj.job, fj.res)
	}
}

func (p *Pool) finalize(ctx context.Context, job Job, res result) {
	job.Status = res.Status
	job.ExitCode = res.ExitCode
	if res.Err != nil {
		job.Error = res.Err.Error()
	}
	if job.FinishedAt.IsZero() {
		job.FinishedAt = time.Now()
	}

	p.mu.Lock()
	if tracked, ok := p.jobs[job.ID]; ok {
		*tracked = job
	}
	p.mu.Unlock()

	if err := p.store.FinishJob(ctx, job, res.Stdout, res.Stderr); err != nil {
		p.logger.Error("failed to persist job result",
			zap.String("job_id", job.ID), zap.Error(err))
	}

	jobsTotal.WithLabelValues(string(job.Status)).Inc()
	if d := job.Duration(); d > 0 {
		jobDuration.Observe(d.Seconds())
	}

	p.logger.Info("script job finished",
		zap.String("job_id", job.ID),
		zap.String("label", job.Label),
		zap.String("status", string(job.Status)),
		zap.Int("exit_code", job.ExitCode),
		zap.Duration("duration", job.Duration()),
	)
}

func (p *Pool) setStatus(id string, status JobStatus, startedAt time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if j, ok := p.jobs[id]; ok {
		j.Status = status
		j.StartedAt = startedAt
	}
}

func validateSpec(spec Spec) error {
	switch spec.Type {
	case SourceInline:
		if spec.Content == "" {
			return errors.New("inline script has no content")
		}
	case SourceFile:
		if spec.Path == "" {
			return errors.New("file script has no path")
		}
	default:
		return fmt.Errorf("unknown script source type %q", spec.Type)
	}
	return nil
}
