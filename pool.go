package litepool

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/timzifer/litepool/config"
	"github.com/timzifer/litepool/runtime/dispatch"
)

// Pool exposes a writer/reader connection pool over one storage target.
//
// Whether a reader observes a write committed moments earlier depends solely
// on the engine's journaling mode; the pool adds no synchronization of its
// own between readers and the writer.
type Pool struct {
	pool *dispatch.Pool
}

// OpenPool opens cfg.PoolSize connections against the same storage target.
// Exactly one of them carries write traffic. On partial failure the
// already-opened connections are closed before the error is returned.
func OpenPool(cfg config.Pool, opts ...Option) (*Pool, error) {
	o := buildOptions(opts)
	p, err := dispatch.New(cfg,
		dispatch.WithLogger(o.logger),
		dispatch.WithCollector(o.collector),
	)
	if err != nil {
		return nil, err
	}
	return &Pool{pool: p}, nil
}

// ExecRead runs fn on a reader connection and waits for it to finish.
func (p *Pool) ExecRead(ctx context.Context, fn func(db *sqlx.DB) error) error {
	_, err := Read(ctx, p, func(db *sqlx.DB) (struct{}, error) {
		return struct{}{}, fn(db)
	})
	return err
}

// ExecWrite runs fn on the writer connection and waits for it to finish.
func (p *Pool) ExecWrite(ctx context.Context, fn func(db *sqlx.DB) error) error {
	_, err := Write(ctx, p, func(db *sqlx.DB) (struct{}, error) {
		return struct{}{}, fn(db)
	})
	return err
}

// Size returns the number of connections in the pool.
func (p *Pool) Size() int {
	return p.pool.Size()
}

// Close shuts down every connection and waits until all workers terminated.
// Idempotent, and safe to call when some workers already failed.
func (p *Pool) Close(ctx context.Context) error {
	return p.pool.Close(ctx)
}

// Read runs fn on the next reader in rotation and awaits its typed result.
// Reads on different connections may execute simultaneously; no ordering is
// guaranteed between them.
func Read[T any](ctx context.Context, p *Pool, fn func(db *sqlx.DB) (T, error)) (T, error) {
	pending, err := SubmitRead(p, fn)
	if err != nil {
		var zero T
		return zero, err
	}
	return pending.Await(ctx)
}

// Write runs fn on the writer connection and awaits its typed result.
// Writes are executed in submission order relative to all other writes on
// this pool.
func Write[T any](ctx context.Context, p *Pool, fn func(db *sqlx.DB) (T, error)) (T, error) {
	pending, err := SubmitWrite(p, fn)
	if err != nil {
		var zero T
		return zero, err
	}
	return pending.Await(ctx)
}

// SubmitRead queues fn on a reader without waiting.
func SubmitRead[T any](p *Pool, fn func(db *sqlx.DB) (T, error)) (Pending[T], error) {
	out, err := p.pool.SubmitRead(erase(fn))
	if err != nil {
		return Pending[T]{}, err
	}
	return Pending[T]{out: out}, nil
}

// SubmitWrite queues fn on the writer without waiting.
func SubmitWrite[T any](p *Pool, fn func(db *sqlx.DB) (T, error)) (Pending[T], error) {
	out, err := p.pool.SubmitWrite(erase(fn))
	if err != nil {
		return Pending[T]{}, err
	}
	return Pending[T]{out: out}, nil
}
