// Package actor runs one exclusive engine session on a dedicated goroutine.
//
// Callers hand in closures; the worker executes them strictly one at a time
// against its private connection and delivers each result through a
// single-use outcome channel. This is the piece that turns the blocking
// engine into something awaitable.
package actor

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/timzifer/litepool/config"
	"github.com/timzifer/litepool/engine"
	"github.com/timzifer/litepool/telemetry"
)

// DefaultQueueDepth bounds the job queue when the configuration does not
// specify one. A full queue suspends submitting goroutines until the worker
// catches up; it never blocks an unrelated goroutine.
const DefaultQueueDepth = 64

// Outcome carries the result of one executed job. Exactly one Outcome is
// delivered per accepted job, whether the closure returned a value, returned
// an error or panicked.
type Outcome struct {
	Value any
	Err   error
}

type job struct {
	run  func(db *sqlx.DB) (any, error)
	done chan Outcome
}

// Actor owns one engine session and the goroutine that serializes access to
// it. The session is never touched from any other goroutine.
type Actor struct {
	id        string
	logger    zerolog.Logger
	collector telemetry.Collector

	db   *sqlx.DB
	jobs chan *job

	mu      sync.RWMutex
	closing bool

	closeOnce sync.Once
	stopped   chan struct{}
}

type settings struct {
	id        string
	logger    zerolog.Logger
	collector telemetry.Collector
}

// Option adjusts worker construction.
type Option func(*settings)

// WithID assigns a stable identifier used in logs and metric labels.
func WithID(id string) Option {
	return func(s *settings) {
		if id != "" {
			s.id = id
		}
	}
}

// WithLogger provides a custom logger instance for the worker.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithCollector installs a telemetry collector.
func WithCollector(collector telemetry.Collector) Option {
	return func(s *settings) {
		if collector != nil {
			s.collector = collector
		}
	}
}

// New opens the session described by cfg and starts the worker goroutine.
// When the open fails no goroutine is left behind.
func New(cfg config.Connection, opts ...Option) (*Actor, error) {
	s := settings{
		id:        "conn",
		logger:    zerolog.Nop(),
		collector: telemetry.Noop(),
	}
	for _, opt := range opts {
		opt(&s)
	}

	db, err := engine.Open(cfg)
	if err != nil {
		return nil, err
	}

	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = DefaultQueueDepth
	}

	a := &Actor{
		id:        s.id,
		logger:    s.logger.With().Str("worker", s.id).Logger(),
		collector: s.collector,
		db:        db,
		jobs:      make(chan *job, depth),
		stopped:   make(chan struct{}),
	}
	go a.loop()
	a.logger.Debug().Int("queue_depth", depth).Msg("connection worker started")
	return a, nil
}

// Submit queues fn for execution and returns the channel on which its
// Outcome will arrive. The channel is buffered, so an abandoned submission
// never blocks the worker. Once Close has begun, Submit fails immediately
// with ErrClosed.
func (a *Actor) Submit(fn func(db *sqlx.DB) (any, error)) (<-chan Outcome, error) {
	j := &job{run: fn, done: make(chan Outcome, 1)}

	a.mu.RLock()
	if a.closing {
		a.mu.RUnlock()
		return nil, ErrClosed
	}
	a.jobs <- j
	a.mu.RUnlock()

	a.collector.SetQueueDepth(a.id, len(a.jobs))
	return j.done, nil
}

// Close stops intake, lets already-queued jobs drain, closes the session and
// waits for the worker goroutine to exit. Repeated calls are cheap no-ops
// that wait for the same termination. When ctx expires before the goroutine
// is gone a JoinError is returned, but the worker stays marked closed so
// submissions keep failing fast.
func (a *Actor) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closing = true
		a.mu.Unlock()
		close(a.jobs)
	})

	select {
	case <-a.stopped:
		return nil
	case <-ctx.Done():
		return &JoinError{Worker: a.id, Err: ctx.Err()}
	}
}

// ID returns the worker identifier.
func (a *Actor) ID() string { return a.id }

func (a *Actor) loop() {
	defer close(a.stopped)
	for j := range a.jobs {
		a.execute(j)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("closing engine session")
	}
	a.logger.Debug().Msg("connection worker stopped")
}

func (a *Actor) execute(j *job) {
	start := time.Now()
	out := a.invoke(j)
	elapsed := time.Since(start)

	// The done channel holds one slot, so delivery never blocks. If the
	// caller abandoned its handle the outcome is simply never read.
	j.done <- out

	outcome := telemetry.OutcomeOK
	switch out.Err.(type) {
	case nil:
	case *PanicError:
		outcome = telemetry.OutcomePanic
	default:
		outcome = telemetry.OutcomeError
	}
	a.collector.IncJobDone(a.id, outcome)
	a.collector.ObserveJobDuration(a.id, elapsed)
	a.collector.SetQueueDepth(a.id, len(a.jobs))
}

// invoke runs the closure and keeps panics from unwinding into the worker
// loop; an abnormal termination becomes a regular typed error on the
// outcome channel.
func (a *Actor) invoke(j *job) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Interface("panic", r).Msg("job panicked")
			out = Outcome{Err: &PanicError{Value: r, Stack: debug.Stack()}}
		}
	}()
	value, err := j.run(a.db)
	if err != nil {
		return Outcome{Err: err}
	}
	return Outcome{Value: value}
}
