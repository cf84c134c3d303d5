package service

import (
	"context"
	"errors"
	"time"
)

// pollResult summarises a bounded poll.
type pollResult struct {
	Done     bool  // check reported completion
	Failures int   // attempts that returned a transient error
	Attempts int   // attempts made
	LastErr  error // last transient error
}

// poll calls check up to attempts times with a fixed delay in between.  It
// stops early when check reports done or returns a coded *Error, which is
// treated as final and returned as is.  Any other error counts as a
// transient failure and the poll continues.
func poll(ctx context.Context, attempts int, delay time.Duration, sleep func(context.Context, time.Duration) error,
	check func(context.Context) (bool, error)) (pollResult, error) {
	var res pollResult
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := sleep(ctx, delay); err != nil {
				return res, err
			}
		}
		res.Attempts++
		done, err := check(ctx)
		if err != nil {
			var se *Error
			if errors.As(err, &se) {
				return res, err
			}
			res.Failures++
			res.LastErr = err
			continue
		}
		if done {
			res.Done = true
			return res, nil
		}
	}
	return res, nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
