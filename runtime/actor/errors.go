package actor

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Submit once Close has begun on the worker (or on
// the pool owning it).
var ErrClosed = errors.New("connection worker closed")

// PanicError is delivered when a job closure panicked instead of returning.
// The closure's panic never unwinds past the worker loop; callers receive it
// as a regular error value.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job panicked: %v", e.Value)
}

// JoinError is returned by Close when the worker goroutine did not terminate
// before the provided context expired. The worker is still marked closed.
type JoinError struct {
	Worker string
	Err    error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("waiting for connection worker %s to stop: %v", e.Worker, e.Err)
}

func (e *JoinError) Unwrap() error { return e.Err }
