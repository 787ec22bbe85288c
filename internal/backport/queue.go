package backport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/simplesurance/backportd/internal/logfields"
)

// ErrQueueStopped is returned by Enqueue after the queue was stopped.
var ErrQueueStopped = errors.New("queue is stopped")

// Job is a unit of queued work.
// A Job is immutable once enqueued.
type Job struct {
	// Name identifies the job in log messages.
	Name string
	// LogFields are added to all log messages concerning the job.
	LogFields []zap.Field
	// Run executes the job.
	Run func(ctx context.Context) error
	// OnFailure is invoked exactly once when Run returned an error.
	// It is optional. An error returned by OnFailure is logged and
	// otherwise ignored.
	OnFailure func(ctx context.Context, jobErr error) error
}

// Queue runs jobs serialized in FIFO order.
//
// At most one job's Run function is executing at any instant, process-wide.
// When a job's Run function returns an error, its OnFailure handler is
// invoked and the queue proceeds with the next job regardless of the
// handler's outcome.
// The queue accepts an unbounded number of pending jobs.
type Queue struct {
	logger *zap.Logger

	lock    sync.Mutex
	pending []*Job
	running bool
	stopped bool

	wg sync.WaitGroup
}

func NewQueue() *Queue {
	return &Queue{
		logger: zap.L().Named("queue"),
	}
}

// Enqueue appends a job to the run list.
// If no job is currently running, execution starts immediately, otherwise
// the job waits until all earlier jobs reached a terminal state.
func (q *Queue) Enqueue(job *Job) error {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.stopped {
		return ErrQueueStopped
	}

	q.pending = append(q.pending, job)
	metrics.PendingJobsInc()

	q.logger.Debug(
		"job enqueued",
		append(job.logFields(),
			logfields.Event("job_enqueued"),
			zap.Int("queue_len", len(q.pending)),
		)...,
	)

	if !q.running {
		q.running = true
		q.wg.Add(1)
		go q.runLoop()
	}

	return nil
}

func (q *Queue) runLoop() {
	defer q.wg.Done()

	for {
		q.lock.Lock()

		if q.stopped || len(q.pending) == 0 {
			q.running = false
			q.lock.Unlock()
			return
		}

		job := q.pending[0]
		q.pending = q.pending[1:]
		metrics.PendingJobsDec()

		q.lock.Unlock()

		q.runJob(job)
	}
}

func (q *Queue) runJob(job *Job) {
	ctx := context.Background()
	logger := q.logger.With(job.logFields()...)

	logger.Info("job started", logfields.Event("job_started"))

	err := runRecovered(ctx, job.Run)
	if err == nil {
		metrics.ProcessedJobsInc(jobResultSuccess)
		logger.Info("job succeeded", logfields.Event("job_succeeded"))
		return
	}

	metrics.ProcessedJobsInc(jobResultFailure)
	logger.Error(
		"job failed",
		logfields.Event("job_failed"),
		zap.Error(err),
	)

	if job.OnFailure == nil {
		return
	}

	// a failing failure-handler must not stall the queue, its error is
	// only logged
	if handlerErr := runRecoveredErr(ctx, err, job.OnFailure); handlerErr != nil {
		logger.Error(
			"job failure handler failed",
			logfields.Event("job_failure_handler_failed"),
			zap.NamedError("failure_handler_error", handlerErr),
		)
	}
}

func runRecovered(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return fn(ctx)
}

func runRecoveredErr(ctx context.Context, jobErr error, fn func(context.Context, error) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return fn(ctx, jobErr)
}

// Stop discards all pending jobs and prevents enqueuing further ones.
// A currently running job finishes normally.
// Stop does not wait for the running job, use Wait for that.
func (q *Queue) Stop() {
	q.lock.Lock()

	if q.stopped {
		q.lock.Unlock()
		return
	}

	q.stopped = true
	discarded := len(q.pending)

	for range q.pending {
		metrics.PendingJobsDec()
	}
	q.pending = nil

	q.lock.Unlock()

	q.logger.Info(
		"queue stopped",
		logfields.Event("queue_stopped"),
		zap.Int("discarded_jobs", discarded),
	)
}

// Wait blocks until the run lane terminated.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (j *Job) logFields() []zap.Field {
	return append([]zap.Field{zap.String("job", j.Name)}, j.LogFields...)
}
