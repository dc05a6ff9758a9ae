package litepool

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/timzifer/litepool/runtime/actor"
)

// Pending is a handle on a submitted but not yet awaited job. The job is
// erased to a uniform shape for transport through the worker queue; Pending
// restores the caller's concrete result type on delivery.
//
// Abandoning a Pending does not cancel anything: a job that already reached
// the worker still runs to completion, only its result goes unread.
type Pending[T any] struct {
	out <-chan actor.Outcome
}

// Await blocks the calling goroutine until the job's outcome arrives or ctx
// expires. A ctx expiry abandons the result; it does not interrupt the job.
func (p Pending[T]) Await(ctx context.Context) (T, error) {
	var zero T
	if p.out == nil {
		return zero, ErrClosed
	}
	select {
	case o := <-p.out:
		if o.Err != nil {
			return zero, o.Err
		}
		value, _ := o.Value.(T)
		return value, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func erase[T any](fn func(db *sqlx.DB) (T, error)) func(db *sqlx.DB) (any, error) {
	return func(db *sqlx.DB) (any, error) {
		value, err := fn(db)
		if err != nil {
			return nil, err
		}
		return value, nil
	}
}
