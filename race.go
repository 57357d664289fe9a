package main

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Condition blocks until some UI state is reached or ctx ends.
type Condition func(ctx context.Context) error

// AwaitFirst runs every condition concurrently and returns the index of the
// first one that succeeds. The others are abandoned: their context is released
// when AwaitFirst returns, nothing waits on them again. If every condition
// fails, -1 is returned with the joined errors.
func AwaitFirst(ctx context.Context, timeout time.Duration, conds ...Condition) (int, error) {
	if len(conds) == 0 {
		return -1, errors.New("await first: no conditions")
	}

	var (
		raceCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		raceCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		raceCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type outcome struct {
		index int
		err   error
	}
	results := make(chan outcome, len(conds))
	for i, cond := range conds {
		go func(i int, cond Condition) {
			results <- outcome{index: i, err: cond(raceCtx)}
		}(i, cond)
	}

	errs := make([]error, 0, len(conds))
	for range conds {
		select {
		case r := <-results:
			if r.err == nil {
				return r.index, nil
			}
			errs = append(errs, fmt.Errorf("condition %d: %w", r.index, r.err))
		case <-raceCtx.Done():
			return -1, fmt.Errorf("await first: %w", raceCtx.Err())
		}
	}
	return -1, errors.Join(errs...)
}

// waitFor adapts a page wait into a Condition.
func waitFor(page Page, sel Selector) Condition {
	return func(ctx context.Context) error {
		return page.Wait(ctx, sel)
	}
}
