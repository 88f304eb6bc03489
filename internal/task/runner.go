package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TaskRunnerConfig holds configuration for the task runner.
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks.
	WorkerCount int

	// QueueSize determines the buffer size of the in-memory task queue.
	QueueSize int

	// StuckTaskAge defines how long a job may sit in processing state
	// before it is considered stuck and requeued.
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stuck jobs.
	// If zero, defaults to 5 minutes.
	StuckTaskCheckInterval time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable
// defaults.
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:            2,
		QueueSize:              100,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
	}
}

// TaskRunner manages background job processing: it persists submitted
// jobs, feeds them through an in-memory queue to a worker pool, and on
// startup recovers jobs a previous process left unfinished.
type TaskRunner struct {
	store      JobStore
	factory    TaskFactory
	queue      *TaskQueue
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     TaskRunnerConfig
	logger     *slog.Logger
}

// NewTaskRunner creates a new TaskRunner. The factory is used to turn
// recovered job records back into executable tasks.
func NewTaskRunner(
	store JobStore,
	factory TaskFactory,
	config TaskRunnerConfig,
	logger *slog.Logger,
) *TaskRunner {
	if config.StuckTaskCheckInterval == 0 {
		config.StuckTaskCheckInterval = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TaskRunner{
		store:      store,
		factory:    factory,
		queue:      NewTaskQueue(config.QueueSize, logger),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger,
	}
}

// Enqueue adds an already-persisted task to the in-memory queue. The
// caller is responsible for saving the job row first; a task that
// cannot be queued stays pending in the jobs table and is recovered on
// the next start.
func (r *TaskRunner) Enqueue(task Task) error {
	if err := r.queue.Enqueue(task); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Start recovers unfinished jobs and launches the worker pool.
func (r *TaskRunner) Start() error {
	if err := r.Recover(); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.stuckTaskMonitor()

	return nil
}

// Stop gracefully shuts down the task runner. Workers finish the task
// they hold; queued tasks remain in the jobs table for the next start.
func (r *TaskRunner) Stop() {
	r.cancelFunc()
	r.queue.Close()
	r.wg.Wait()
}

// Recover loads pending and interrupted jobs from the jobs table and
// requeues them.
func (r *TaskRunner) Recover() error {
	ctx := context.Background()

	pending, err := r.store.GetPendingJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending jobs: %w", err)
	}

	// Processing jobs of any age: the process owning them is gone.
	processing, err := r.store.GetProcessingJobs(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to get processing jobs: %w", err)
	}

	r.logger.Info("recovering unfinished jobs",
		"pending_count", len(pending),
		"processing_count", len(processing))

	for _, record := range pending {
		r.requeueRecord(ctx, record, false)
	}
	for _, record := range processing {
		r.requeueRecord(ctx, record, true)
	}

	return nil
}

// requeueRecord turns a persisted record back into a task and puts it
// on the queue. resetStatus moves an interrupted processing job back
// to pending first.
func (r *TaskRunner) requeueRecord(ctx context.Context, record JobRecord, resetStatus bool) {
	task, err := r.factory.FromRecord(record)
	if err != nil {
		r.logger.Error("failed to rebuild job from record, marking failed",
			"job_id", record.ID,
			"job_type", record.Type,
			"error", err)
		if updateErr := r.store.UpdateJobStatus(ctx, record.ID, TaskStatusFailed,
			"unrecoverable record: "+err.Error()); updateErr != nil {
			r.logger.Error("failed to mark unrecoverable job failed",
				"job_id", record.ID,
				"error", updateErr)
		}
		return
	}

	if resetStatus {
		if err := r.store.UpdateJobStatus(ctx, record.ID, TaskStatusPending, "reset after recovery"); err != nil {
			r.logger.Error("failed to reset interrupted job status",
				"job_id", record.ID,
				"job_type", record.Type,
				"error", err)
			return
		}
	}

	if err := r.queue.Enqueue(task); err != nil {
		r.logger.Error("failed to requeue job",
			"job_id", record.ID,
			"job_type", record.Type,
			"error", err)
	}
}

// worker processes tasks from the queue until the runner stops.
func (r *TaskRunner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case task, ok := <-r.queue.GetChannel():
			if !ok {
				r.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}
			r.processTask(task, id)
		}
	}
}

// processTask executes a single task and records its outcome. A
// failing task never takes the worker down with it.
func (r *TaskRunner) processTask(task Task, workerID int) {
	ctx := context.Background()
	log := r.logger.With(
		"job_id", task.ID(),
		"job_type", task.Type(),
		"worker_id", workerID,
	)

	if err := r.store.UpdateJobStatus(ctx, task.ID(), TaskStatusProcessing, ""); err != nil {
		log.Error("failed to update job status to processing", "error", err)
		return
	}

	log.Info("processing job")

	err := task.Execute(ctx)
	if err != nil {
		log.Error("job execution failed", "error", err)
		if updateErr := r.store.UpdateJobStatus(ctx, task.ID(), TaskStatusFailed, err.Error()); updateErr != nil {
			log.Error("failed to update job status to failed", "error", updateErr)
		}
		return
	}

	log.Info("job completed")
	if updateErr := r.store.UpdateJobStatus(ctx, task.ID(), TaskStatusCompleted, ""); updateErr != nil {
		log.Error("failed to update job status to completed", "error", updateErr)
	}
}

// stuckTaskMonitor periodically requeues jobs stuck in processing
// state longer than the configured age.
func (r *TaskRunner) stuckTaskMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			ctx := context.Background()

			stuck, err := r.store.GetProcessingJobs(ctx, r.config.StuckTaskAge)
			if err != nil {
				r.logger.Error("failed to check for stuck jobs", "error", err)
				continue
			}
			if len(stuck) == 0 {
				continue
			}

			r.logger.Info("found stuck jobs", "count", len(stuck))
			for _, record := range stuck {
				r.requeueRecord(ctx, record, true)
			}
		}
	}
}
