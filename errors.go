package litepool

import (
	"github.com/timzifer/litepool/engine"
	"github.com/timzifer/litepool/runtime/actor"
)

// ErrClosed is returned for submissions made after Close began on the
// owning Client or Pool.
var ErrClosed = actor.ErrClosed

// Re-exported error types so callers rarely need the inner packages.
type (
	// OpenError reports that a store could not be opened or prepared.
	OpenError = engine.OpenError
	// PragmaError reports that a store did not adopt a requested pragma.
	PragmaError = engine.PragmaError
	// PanicError is delivered when a job closure panicked.
	PanicError = actor.PanicError
	// JoinError is returned by Close when a worker outlived the deadline.
	JoinError = actor.JoinError
)
