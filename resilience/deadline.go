package resilience

import (
	"context"
	"time"

	"github.com/skillsenselab/faultkit/errors"
)

// Operation is a unit of work guarded by a resilience primitive.
type Operation func(ctx context.Context) error

// callWithDeadline runs fn under the given timeout. On expiry the call is
// abandoned: a TIMEOUT error is returned immediately and fn's eventual result
// is discarded. fn receives a context that is cancelled on expiry so
// cooperative operations can stop early.
func callWithDeadline(ctx context.Context, name string, timeout time.Duration, fn Operation) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(cctx)
	}()

	select {
	case err := <-done:
		return err
	case <-cctx.Done():
		if cctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return errors.Timeout(name, timeout)
		}
		return ctx.Err()
	}
}
