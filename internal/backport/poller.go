package backport

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/simplesurance/backportd/internal/logfields"
)

// ErrForkNotReady is returned when a fork did not report any commits within
// the poll attempt budget.
var ErrForkNotReady = errors.New("fork not ready in time")

var errNotReadyYet = errors.New("not ready yet")

// readyProbe reports whether the polled resource is ready.
// Probe errors are treated as "not yet ready", not propagated.
type readyProbe func(ctx context.Context) (bool, error)

// waitReady polls probe with a constant interval until it reports readiness.
// Forking is asynchronous on the github side, a fresh fork returns errors or
// an empty commit list until it materialized.
// After maxAttempts unsuccessful attempts ErrForkNotReady is returned, the
// poll must not block the single job lane indefinitely.
func waitReady(ctx context.Context, interval time.Duration, maxAttempts uint, probe readyProbe, logger *zap.Logger) error {
	if maxAttempts == 0 {
		maxAttempts = 1
	}

	var attempt uint

	op := func() error {
		attempt++

		ready, err := probe(ctx)
		if err != nil {
			logger.Debug(
				"readiness probe failed, treating as not ready",
				logfields.Event("fork_readiness_probe_failed"),
				zap.Uint("attempt", attempt),
				zap.Error(err),
			)

			return errNotReadyYet
		}

		if !ready {
			logger.Debug(
				"not ready yet",
				logfields.Event("fork_not_ready"),
				zap.Uint("attempt", attempt),
			)

			return errNotReadyYet
		}

		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(maxAttempts-1))

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return ErrForkNotReady
	}

	logger.Debug(
		"ready",
		logfields.Event("fork_ready"),
		zap.Uint("attempt", attempt),
	)

	return nil
}
