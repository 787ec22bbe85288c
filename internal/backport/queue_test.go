package backport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const condCheckInterval = 20 * time.Millisecond
const condWaitTimeout = 5 * time.Second

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestJobsRunInEnqueueOrder(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	q := NewQueue()
	defer q.Wait()

	var mu sync.Mutex
	var order []int

	const jobCnt = 50

	for i := 0; i < jobCnt; i++ {
		i := i
		err := q.Enqueue(&Job{
			Name: "test",
			Run: func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			},
		})
		require.NoError(t, err)
	}

	require.Eventuallyf(
		t,
		func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(order) == jobCnt
		},
		condWaitTimeout,
		condCheckInterval,
		"not all jobs were executed",
	)

	mu.Lock()
	defer mu.Unlock()

	for i, v := range order {
		assert.Equal(t, i, v, "job executed out of order")
	}
}

func TestOnlyOneJobRunsAtATime(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	q := NewQueue()
	defer q.Wait()

	var running, maxRunning, done int32

	const jobCnt = 20

	for i := 0; i < jobCnt; i++ {
		err := q.Enqueue(&Job{
			Name: "test",
			Run: func(context.Context) error {
				cur := atomic.AddInt32(&running, 1)
				if cur > atomic.LoadInt32(&maxRunning) {
					atomic.StoreInt32(&maxRunning, cur)
				}

				time.Sleep(time.Millisecond)

				atomic.AddInt32(&running, -1)
				atomic.AddInt32(&done, 1)
				return nil
			},
		})
		require.NoError(t, err)
	}

	require.Eventuallyf(
		t,
		func() bool { return atomic.LoadInt32(&done) == jobCnt },
		condWaitTimeout,
		condCheckInterval,
		"not all jobs were executed",
	)

	assert.EqualValues(t, 1, atomic.LoadInt32(&maxRunning))
}

func TestFailureHandlerIsInvokedExactlyOnce(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	q := NewQueue()
	defer q.Wait()

	jobErr := errors.New("job failed")
	var handlerCalls int32
	var handlerErr error
	var handlerDone = make(chan struct{})

	err := q.Enqueue(&Job{
		Name: "failing",
		Run: func(context.Context) error {
			return jobErr
		},
		OnFailure: func(_ context.Context, err error) error {
			atomic.AddInt32(&handlerCalls, 1)
			handlerErr = err
			close(handlerDone)
			return nil
		},
	})
	require.NoError(t, err)

	select {
	case <-handlerDone:
	case <-time.After(condWaitTimeout):
		t.Fatal("failure handler was not invoked")
	}

	q.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&handlerCalls))
	assert.ErrorIs(t, handlerErr, jobErr)
}

func TestQueueContinuesAfterFailingJobAndFailingHandler(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	q := NewQueue()
	defer q.Wait()

	var secondRan int32

	err := q.Enqueue(&Job{
		Name: "failing",
		Run: func(context.Context) error {
			return errors.New("job failed")
		},
		OnFailure: func(context.Context, error) error {
			return errors.New("failure handler failed too")
		},
	})
	require.NoError(t, err)

	err = q.Enqueue(&Job{
		Name: "succeeding",
		Run: func(context.Context) error {
			atomic.StoreInt32(&secondRan, 1)
			return nil
		},
	})
	require.NoError(t, err)

	require.Eventuallyf(
		t,
		func() bool { return atomic.LoadInt32(&secondRan) == 1 },
		condWaitTimeout,
		condCheckInterval,
		"job enqueued after a failing one was not executed",
	)
}

func TestPanickingJobInvokesFailureHandler(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	q := NewQueue()
	defer q.Wait()

	handlerDone := make(chan struct{})

	err := q.Enqueue(&Job{
		Name: "panicking",
		Run: func(context.Context) error {
			panic("boom")
		},
		OnFailure: func(_ context.Context, err error) error {
			assert.ErrorContains(t, err, "boom")
			close(handlerDone)
			return nil
		},
	})
	require.NoError(t, err)

	select {
	case <-handlerDone:
	case <-time.After(condWaitTimeout):
		t.Fatal("failure handler was not invoked for a panicking job")
	}
}

func TestEnqueueAfterStopIsRejected(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	q := NewQueue()
	q.Stop()
	q.Wait()

	err := q.Enqueue(&Job{
		Name: "late",
		Run:  func(context.Context) error { return nil },
	})
	assert.ErrorIs(t, err, ErrQueueStopped)
}
