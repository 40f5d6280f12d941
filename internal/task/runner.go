package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/tiptoro/tiptoro-api/internal/gateway"
	"github.com/tiptoro/tiptoro-api/internal/platform/logger"
)

// ErrUnknownPipeline is recorded when a stored task names a pipeline that
// is not in the runner's catalog.
var ErrUnknownPipeline = errors.New("unknown pipeline")

// MetaRunnerError is the Meta key holding why a task could not be run.
const MetaRunnerError = "runner_error"

// RunnerConfig holds configuration for the task runner
type RunnerConfig struct {
	// WorkerCount determines how many tasks are processed concurrently
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory job queue
	QueueSize int

	// StuckTaskAge defines how long a task can stay running before it is
	// considered abandoned and requeued
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stuck tasks.
	// If zero, defaults to 5 minutes
	StuckTaskCheckInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:            2,
		QueueSize:              100,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
	}
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithObserver reports every finished pipeline invocation to o.
func WithObserver(o PipelineObserver) RunnerOption {
	return func(r *Runner) {
		r.observer = o
	}
}

// Runner executes stored tasks through their pipelines in background workers.
type Runner struct {
	store     TaskStore
	pipelines gateway.Catalog
	queue     *Queue
	config    RunnerConfig
	logger    *slog.Logger
	observer  PipelineObserver

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inFlight sync.Map
}

// NewRunner creates a runner. Start must be called before jobs are processed.
func NewRunner(store TaskStore, pipelines gateway.Catalog, config RunnerConfig, logger *slog.Logger, opts ...RunnerOption) *Runner {
	if config.StuckTaskCheckInterval == 0 {
		config.StuckTaskCheckInterval = 5 * time.Minute
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1
	}
	logger = logger.With("component", "task_runner")

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		store:     store,
		pipelines: pipelines,
		queue:     NewQueue(config.QueueSize, logger),
		config:    config,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit persists a new task and queues it to run from the first step.
func (r *Runner) Submit(ctx context.Context, rec *Record) error {
	if _, ok := r.pipelines.Pipeline(rec.Pipeline); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPipeline, rec.Pipeline)
	}
	if err := r.store.SaveTask(ctx, rec); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return r.Enqueue(rec.StartJob())
}

// Resume persists a suspended or failed task as pending and queues the steps
// after its last completed skill.
func (r *Runner) Resume(ctx context.Context, rec *Record) error {
	job := rec.ResumeJob()
	if err := r.store.SaveTask(ctx, rec); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return r.Enqueue(job)
}

// Enqueue queues a job for an already stored task.
func (r *Runner) Enqueue(job Job) error {
	return r.queue.Enqueue(job)
}

// Start recovers unfinished tasks and starts the workers and the stuck task
// monitor.
func (r *Runner) Start() error {
	if err := r.Recover(r.ctx); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.stuckTaskMonitor()

	r.logger.Info("task runner started", "worker_count", r.config.WorkerCount)
	return nil
}

// Stop signals the workers to exit and waits for in-flight tasks to finish.
// Queued jobs that were not started are recovered on the next Start.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
	r.queue.Close()
	r.logger.Info("task runner stopped")
}

// Recover queues tasks left pending or running by a previous process.
// Running tasks resume after their last completed skill, so the step that
// was interrupted runs again.
func (r *Runner) Recover(ctx context.Context) error {
	pending, err := r.store.GetTasksByStatus(ctx, gateway.StatusPending, 0)
	if err != nil {
		return fmt.Errorf("failed to get pending tasks: %w", err)
	}
	running, err := r.store.GetTasksByStatus(ctx, gateway.StatusRunning, 0)
	if err != nil {
		return fmt.Errorf("failed to get running tasks: %w", err)
	}

	r.logger.Info("recovering unfinished tasks",
		"pending_count", len(pending),
		"running_count", len(running))

	for _, rec := range append(pending, running...) {
		r.requeue(rec, "recovered")
	}
	return nil
}

func (r *Runner) requeue(rec *Record, reason string) {
	job := Job{TaskID: rec.ID(), ResumeAfter: rec.Context.LastSkill}
	if err := r.queue.Enqueue(job); err != nil {
		r.logger.Error("failed to requeue task",
			"task_id", job.TaskID,
			"reason", reason,
			"error", err)
		return
	}
	r.logger.Info("requeued task", "task_id", job.TaskID, "reason", reason)
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()
	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return
		case job, ok := <-r.queue.Jobs():
			if !ok {
				return
			}
			r.process(job, id)
		}
	}
}

// flight marks a task being processed. A job arriving for the task in the
// meantime is parked in next and queued again when the current run lands.
type flight struct {
	mu     sync.Mutex
	landed bool
	next   *Job
}

func (f *flight) park(job Job) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.landed {
		return false
	}
	f.next = &job
	return true
}

// takeOff claims the task for this worker. It returns nil when another
// worker holds the task, in which case job has been parked with it.
func (r *Runner) takeOff(job Job) *flight {
	f := &flight{}
	for {
		v, busy := r.inFlight.LoadOrStore(job.TaskID, f)
		if !busy {
			return f
		}
		if v.(*flight).park(job) {
			r.logger.Debug("task already in flight, parking job", "task_id", job.TaskID)
			return nil
		}
		// The holder is landing; its entry disappears momentarily.
		runtime.Gosched()
	}
}

func (r *Runner) land(taskID string, f *flight) {
	f.mu.Lock()
	f.landed = true
	next := f.next
	f.mu.Unlock()
	r.inFlight.Delete(taskID)

	if next == nil {
		return
	}
	if err := r.queue.Enqueue(*next); err != nil {
		r.logger.Error("failed to requeue parked job", "task_id", taskID, "error", err)
	}
}

// process runs one job to its next halt. Pipelines run on a context that
// outlives Stop so that an in-flight step is not cut short by shutdown.
func (r *Runner) process(job Job, workerID int) {
	f := r.takeOff(job)
	if f == nil {
		return
	}
	defer r.land(job.TaskID, f)

	log := r.logger.With("task_id", job.TaskID, "worker_id", workerID)
	ctx := logger.WithLogger(context.Background(), log)

	rec, err := r.store.GetTask(ctx, job.TaskID)
	if err != nil {
		log.Error("failed to load task", "error", err)
		return
	}
	if rec.Status().IsTerminal() {
		log.Debug("task already finished", "status", rec.Status())
		return
	}
	if rec.Status() == gateway.StatusAwaitingHuman {
		log.Debug("task awaits verification, skipping job")
		return
	}

	tc := rec.Context
	pipeline, ok := r.pipelines.Pipeline(rec.Pipeline)
	if !ok {
		r.abort(ctx, rec, fmt.Errorf("%w: %s", ErrUnknownPipeline, rec.Pipeline))
		return
	}

	tc.Status = gateway.StatusRunning
	if err := r.store.SaveTask(ctx, rec); err != nil {
		log.Error("failed to mark task running", "error", err)
		return
	}

	log.Info("processing task", "pipeline", rec.Pipeline, "resume_after", job.ResumeAfter)
	if job.ResumeAfter == "" {
		err = pipeline.Run(ctx, tc)
	} else {
		err = pipeline.Resume(ctx, tc, job.ResumeAfter)
	}
	if err != nil {
		r.abort(ctx, rec, err)
		return
	}

	r.finish(ctx, rec)
}

// abort fails a task whose pipeline could not run at all. The reason goes
// to Meta because the error trail only holds handler failures.
func (r *Runner) abort(ctx context.Context, rec *Record, cause error) {
	logger.FromContext(ctx).Error("pipeline could not run", "pipeline", rec.Pipeline, "error", cause)
	rec.Context.Status = gateway.StatusFailed
	rec.Context.Meta.Set(MetaRunnerError, cause.Error())
	r.finish(ctx, rec)
}

func (r *Runner) finish(ctx context.Context, rec *Record) {
	log := logger.FromContext(ctx)
	if err := r.store.SaveTask(ctx, rec); err != nil {
		log.Error("failed to save task", "error", err)
		return
	}
	if r.observer != nil {
		r.observer.ObservePipeline(rec.Pipeline, rec.Status())
	}
	log.Info("task processed", "status", rec.Status(), "last_skill", rec.Context.LastSkill)
}

// stuckTaskMonitor periodically requeues tasks that have been running longer
// than StuckTaskAge and are not being processed by this runner.
func (r *Runner) stuckTaskMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.requeueStuck(r.ctx)
		}
	}
}

func (r *Runner) requeueStuck(ctx context.Context) {
	stuck, err := r.store.GetTasksByStatus(ctx, gateway.StatusRunning, r.config.StuckTaskAge)
	if err != nil {
		r.logger.Error("failed to check for stuck tasks", "error", err)
		return
	}
	for _, rec := range stuck {
		if _, busy := r.inFlight.Load(rec.ID()); busy {
			continue
		}
		r.requeue(rec, "stuck")
	}
}
