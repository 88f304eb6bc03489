// Package task provides the background job machinery: a buffered
// in-memory queue, a worker pool runner, and the exam generation task
// itself. Jobs are persisted to a jobs table so unfinished work
// survives a restart.
package task

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a background job.
type TaskStatus string

// Possible task status values.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// TaskTypeExamGeneration identifies jobs that build or rebuild an exam
// document with the language model.
const TaskTypeExamGeneration = "exam_generation"

// Task represents a unit of background work to be processed.
type Task interface {
	// ID returns the task's unique identifier.
	ID() uuid.UUID

	// Type returns the task type identifier.
	Type() string

	// Payload returns the serialized task data.
	Payload() []byte

	// Status returns the current task status.
	Status() TaskStatus

	// Execute runs the task logic.
	Execute(ctx context.Context) error
}

// JobRecord is the persisted form of a task, as read back from the
// jobs table. Recovered records are turned into executable tasks by a
// TaskFactory.
type JobRecord struct {
	ID           uuid.UUID
	Type         string
	Payload      []byte
	Status       TaskStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// JobStore defines the interface for persisting jobs.
type JobStore interface {
	// SaveJob persists a task to the jobs table.
	SaveJob(ctx context.Context, t Task) error

	// UpdateJobStatus updates the status of a job. Unknown IDs are a
	// no-op.
	UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status TaskStatus, errorMsg string) error

	// GetPendingJobs retrieves all jobs with pending status.
	GetPendingJobs(ctx context.Context) ([]JobRecord, error)

	// GetProcessingJobs retrieves jobs with processing status. If
	// olderThan is non-zero, only jobs that have sat in that state
	// longer than the duration are returned.
	GetProcessingJobs(ctx context.Context, olderThan time.Duration) ([]JobRecord, error)

	// WithTx returns a JobStore bound to the given transaction.
	WithTx(tx *sql.Tx) JobStore
}

// TaskFactory reconstitutes an executable task from a persisted job
// record. It carries the dependencies (stores, clients) the task needs
// to run.
type TaskFactory interface {
	FromRecord(record JobRecord) (Task, error)
}

// TaskQueueReader provides read-only access to the task channel so
// workers can consume tasks without being able to enqueue.
type TaskQueueReader interface {
	// GetChannel returns a read-only channel for consuming tasks.
	GetChannel() <-chan Task
}

// TaskQueueWriter provides write access to the task queue.
type TaskQueueWriter interface {
	// Enqueue adds a task to the queue for processing.
	// Returns an error if the queue is full or closed.
	Enqueue(task Task) error

	// Close closes the task queue, preventing further submission.
	Close()
}
