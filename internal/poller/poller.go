// Package poller implements the client-side polling loop for exam
// status: an initial delay, then a fixed interval, stopping as soon as
// the exam reaches a terminal state or the context is cancelled.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/examgen/examgen-api/internal/domain"
)

// Default timings match the frontend's polling behavior: a short first
// check shortly after submission, then a relaxed steady interval.
const (
	DefaultInitialDelay = 2 * time.Second
	DefaultInterval     = 10 * time.Second
)

// ErrPollingCancelled is returned when the context ends before the
// exam reaches a terminal state.
var ErrPollingCancelled = errors.New("polling cancelled")

// Fetcher retrieves the current exam record. HTTP clients and direct
// service callers both satisfy it.
type Fetcher interface {
	FetchExam(ctx context.Context, examID uuid.UUID) (*domain.Exam, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, examID uuid.UUID) (*domain.Exam, error)

// FetchExam implements Fetcher.
func (f FetcherFunc) FetchExam(ctx context.Context, examID uuid.UUID) (*domain.Exam, error) {
	return f(ctx, examID)
}

// Poller polls an exam until it is ready or failed.
type Poller struct {
	fetcher      Fetcher
	initialDelay time.Duration
	interval     time.Duration
	logger       *slog.Logger
}

// New creates a Poller. Non-positive delays fall back to the defaults.
func New(fetcher Fetcher, initialDelay, interval time.Duration, logger *slog.Logger) *Poller {
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		fetcher:      fetcher,
		initialDelay: initialDelay,
		interval:     interval,
		logger:       logger,
	}
}

// Wait polls until the exam reaches a terminal state and returns that
// record. Cancellation wins over an in-flight fetch: once the context
// is done, any late response is discarded and ErrPollingCancelled is
// returned. Transient fetch errors are logged and retried on the next
// tick.
func (p *Poller) Wait(ctx context.Context, examID uuid.UUID) (*domain.Exam, error) {
	timer := time.NewTimer(p.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrPollingCancelled, ctx.Err())
		case <-timer.C:
		}

		exam, err := p.fetcher.FetchExam(ctx, examID)

		// A response that raced with cancellation must not escape.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Join(ErrPollingCancelled, ctxErr)
		}

		if err != nil {
			p.logger.Warn("exam status fetch failed, will retry",
				"exam_id", examID,
				"error", err)
		} else if exam.State.Terminal() {
			return exam, nil
		}

		timer.Reset(p.interval)
	}
}
