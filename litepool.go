// Package litepool bridges the blocking embedded SQLite engine to
// asynchronous call sites. Every connection is owned by one long-lived
// worker goroutine; callers submit closures from any number of goroutines
// and await the result without ever sharing a session.
//
// A Client wraps a single connection. A Pool adds a writer/reader split:
// one worker carries all writes (keeping them totally ordered and free of
// writer-lock contention), the remaining workers serve reads round-robin.
package litepool

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/timzifer/litepool/config"
	"github.com/timzifer/litepool/runtime/actor"
	"github.com/timzifer/litepool/telemetry"
)

type options struct {
	logger    zerolog.Logger
	collector telemetry.Collector
}

// Option adjusts how a Client or Pool is opened.
type Option func(*options)

// WithLogger provides a custom logger instance for the workers.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCollector installs a telemetry collector.
func WithCollector(collector telemetry.Collector) Option {
	return func(o *options) {
		if collector != nil {
			o.collector = collector
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:    zerolog.Nop(),
		collector: telemetry.Noop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Client exposes a single exclusive connection.
type Client struct {
	worker *actor.Actor
}

// OpenClient opens the session described by cfg and starts its worker.
func OpenClient(cfg config.Connection, opts ...Option) (*Client, error) {
	o := buildOptions(opts)
	w, err := actor.New(cfg,
		actor.WithLogger(o.logger),
		actor.WithCollector(o.collector),
	)
	if err != nil {
		return nil, err
	}
	return &Client{worker: w}, nil
}

// Exec runs fn with exclusive access to the connection and waits for it to
// finish. When ctx expires first, Exec returns early but fn still runs to
// completion inside the worker; there is no mid-closure interruption.
func (c *Client) Exec(ctx context.Context, fn func(db *sqlx.DB) error) error {
	_, err := Conn(ctx, c, func(db *sqlx.DB) (struct{}, error) {
		return struct{}{}, fn(db)
	})
	return err
}

// Close stops intake, drains queued jobs and waits for the worker to exit.
// Idempotent.
func (c *Client) Close(ctx context.Context) error {
	return c.worker.Close(ctx)
}

// Conn runs fn with exclusive access to the connection and awaits its typed
// result.
func Conn[T any](ctx context.Context, c *Client, fn func(db *sqlx.DB) (T, error)) (T, error) {
	pending, err := Submit(c, fn)
	if err != nil {
		var zero T
		return zero, err
	}
	return pending.Await(ctx)
}

// Submit queues fn without waiting and returns a handle for the eventual
// result. When the client is already closed it fails immediately with
// ErrClosed instead of returning a handle that can never resolve.
func Submit[T any](c *Client, fn func(db *sqlx.DB) (T, error)) (Pending[T], error) {
	out, err := c.worker.Submit(erase(fn))
	if err != nil {
		return Pending[T]{}, err
	}
	return Pending[T]{out: out}, nil
}
