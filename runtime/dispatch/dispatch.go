// Package dispatch routes jobs across a set of connection workers sharing
// one storage target. A single worker carries all write traffic, which keeps
// writes totally ordered and sidesteps the engine's writer lock contention;
// the remaining workers serve reads round-robin.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/timzifer/litepool/config"
	"github.com/timzifer/litepool/engine"
	"github.com/timzifer/litepool/runtime/actor"
	"github.com/timzifer/litepool/telemetry"
)

// Pool owns one writer worker and zero or more reader workers.
type Pool struct {
	writer  *actor.Actor
	readers []*actor.Actor
	cursor  atomic.Uint64
	logger  zerolog.Logger
}

type settings struct {
	logger    zerolog.Logger
	collector telemetry.Collector
}

// Option adjusts pool construction.
type Option func(*settings)

// WithLogger provides a custom logger shared by all workers.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithCollector installs a telemetry collector shared by all workers.
func WithCollector(collector telemetry.Collector) Option {
	return func(s *settings) {
		if collector != nil {
			s.collector = collector
		}
	}
}

// New opens cfg.PoolSize workers against the same storage target. The first
// worker becomes the writer, the rest serve reads. When any open fails the
// already-opened workers are shut down before the error is returned, so a
// failed New never leaks goroutines.
func New(cfg config.Pool, opts ...Option) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		target := cfg.Path
		if cfg.Memory() {
			target = ":memory:"
		}
		return nil, &engine.OpenError{Target: target, Err: err}
	}
	s := settings{
		logger:    zerolog.Nop(),
		collector: telemetry.Noop(),
	}
	for _, opt := range opts {
		opt(&s)
	}

	workers := make([]*actor.Actor, 0, cfg.PoolSize)
	for i := 0; i < cfg.PoolSize; i++ {
		id := "writer"
		if i > 0 {
			id = fmt.Sprintf("reader-%d", i)
		}
		w, err := actor.New(cfg.Connection,
			actor.WithID(id),
			actor.WithLogger(s.logger),
			actor.WithCollector(s.collector),
		)
		if err != nil {
			for _, opened := range workers {
				if cerr := opened.Close(context.Background()); cerr != nil {
					s.logger.Warn().Err(cerr).Str("worker", opened.ID()).Msg("closing worker after failed pool open")
				}
			}
			return nil, fmt.Errorf("open worker %s: %w", id, err)
		}
		workers = append(workers, w)
	}

	p := &Pool{
		writer:  workers[0],
		readers: workers[1:],
		logger:  s.logger,
	}
	p.logger.Debug().Int("pool_size", cfg.PoolSize).Msg("pool opened")
	return p, nil
}

// SubmitRead queues fn on the next reader in rotation. A pool of size one
// has no dedicated readers and serves the read on the writer instead.
func (p *Pool) SubmitRead(fn func(db *sqlx.DB) (any, error)) (<-chan actor.Outcome, error) {
	return p.next().Submit(fn)
}

// SubmitWrite queues fn on the writer. Every write in the process funnels
// through this one worker, so writes never contend with each other.
func (p *Pool) SubmitWrite(fn func(db *sqlx.DB) (any, error)) (<-chan actor.Outcome, error) {
	return p.writer.Submit(fn)
}

// Size returns the total number of workers including the writer.
func (p *Pool) Size() int {
	return 1 + len(p.readers)
}

// Close shuts down every worker and waits until all of them terminated.
// Errors from individual workers are collected, not short-circuited, so a
// worker that already failed does not keep the others open.
func (p *Pool) Close(ctx context.Context) error {
	workers := append([]*actor.Actor{p.writer}, p.readers...)
	errs := make([]error, len(workers))
	var wg sync.WaitGroup
	for i, w := range workers {
		wg.Add(1)
		go func(i int, w *actor.Actor) {
			defer wg.Done()
			errs[i] = w.Close(ctx)
		}(i, w)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (p *Pool) next() *actor.Actor {
	if len(p.readers) == 0 {
		return p.writer
	}
	n := p.cursor.Add(1) - 1
	return p.readers[n%uint64(len(p.readers))]
}
