package dispatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/litepool/config"
	"github.com/timzifer/litepool/engine"
	"github.com/timzifer/litepool/runtime/actor"
)

func newTestPool(t *testing.T, size int) *Pool {
	t.Helper()
	p, err := New(config.Pool{
		Connection: config.Connection{
			Path:        filepath.Join(t.TempDir(), "pool.db"),
			JournalMode: config.JournalWAL,
			BusyTimeout: config.Duration{Duration: 5 * time.Second},
		},
		PoolSize: size,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, p.Close(ctx))
	})
	return p
}

func TestPoolOpensRequestedWorkerCount(t *testing.T) {
	p := newTestPool(t, 3)
	require.Equal(t, 3, p.Size())
	require.NotNil(t, p.writer)
	require.Len(t, p.readers, 2)
	require.Equal(t, "writer", p.writer.ID())
}

func TestReadRotationCyclesReaders(t *testing.T) {
	p := newTestPool(t, 3)

	first := p.next()
	second := p.next()
	third := p.next()

	require.NotSame(t, first, second)
	require.Same(t, first, third)
	require.NotSame(t, p.writer, first)
	require.NotSame(t, p.writer, second)
}

func TestSingleWorkerPoolServesReadsOnWriter(t *testing.T) {
	p := newTestPool(t, 1)
	require.Same(t, p.writer, p.next())
}

func TestWritesNeverOverlap(t *testing.T) {
	p := newTestPool(t, 3)

	var inFlight atomic.Int32
	var overlaps atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := p.SubmitWrite(func(db *sqlx.DB) (any, error) {
				if inFlight.Add(1) > 1 {
					overlaps.Add(1)
				}
				time.Sleep(time.Millisecond)
				inFlight.Add(-1)
				return nil, nil
			})
			require.NoError(t, err)
			require.NoError(t, (<-out).Err)
		}()
	}
	wg.Wait()
	require.Zero(t, overlaps.Load())
}

func TestConcurrentReadsSpreadWithoutOverlap(t *testing.T) {
	p := newTestPool(t, 3)

	out, err := p.SubmitWrite(func(db *sqlx.DB) (any, error) {
		if _, err := db.Exec("CREATE TABLE snapshots (id INTEGER PRIMARY KEY, val TEXT NOT NULL)"); err != nil {
			return nil, err
		}
		_, err := db.Exec("INSERT INTO snapshots VALUES (1, 'fixed')")
		return nil, err
	})
	require.NoError(t, err)
	require.NoError(t, (<-out).Err)

	// One guard per connection: a reader may run concurrently with other
	// readers, but never with another job on its own connection.
	var guardMu sync.Mutex
	guards := map[*sqlx.DB]*atomic.Int32{}
	guardFor := func(db *sqlx.DB) *atomic.Int32 {
		guardMu.Lock()
		defer guardMu.Unlock()
		g, ok := guards[db]
		if !ok {
			g = &atomic.Int32{}
			guards[db] = g
		}
		return g
	}

	var counter atomic.Int64
	var overlaps atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := p.SubmitRead(func(db *sqlx.DB) (any, error) {
				guard := guardFor(db)
				if guard.Add(1) > 1 {
					overlaps.Add(1)
				}
				defer guard.Add(-1)

				var val string
				if err := db.Get(&val, "SELECT val FROM snapshots WHERE id = 1"); err != nil {
					return nil, err
				}
				if val != "fixed" {
					return nil, fmt.Errorf("unexpected row value %q", val)
				}
				counter.Add(1)
				return nil, nil
			})
			require.NoError(t, err)
			require.NoError(t, (<-out).Err)
		}()
	}
	wg.Wait()

	require.Zero(t, overlaps.Load())
	require.Equal(t, int64(100), counter.Load())
	require.LessOrEqual(t, len(guards), 2)
}

func TestPoolValidatesConfiguration(t *testing.T) {
	_, err := New(config.Pool{PoolSize: 0})
	require.Error(t, err)

	_, err = New(config.Pool{PoolSize: 3})
	require.Error(t, err) // in-memory pool without shared cache
}

func TestPoolOpenFailureLeaksNoWorkers(t *testing.T) {
	_, err := New(config.Pool{
		Connection: config.Connection{
			Path:     filepath.Join(t.TempDir(), "absent.db"),
			NoCreate: true,
		},
		PoolSize: 2,
	})
	require.Error(t, err)

	var openErr *engine.OpenError
	require.True(t, errors.As(err, &openErr))
}

func TestSubmitAfterCloseFails(t *testing.T) {
	p, err := New(config.Pool{
		Connection: config.Connection{Path: filepath.Join(t.TempDir(), "pool.db")},
		PoolSize:   2,
	})
	require.NoError(t, err)
	require.NoError(t, p.Close(context.Background()))

	_, err = p.SubmitRead(func(db *sqlx.DB) (any, error) { return nil, nil })
	require.ErrorIs(t, err, actor.ErrClosed)
	_, err = p.SubmitWrite(func(db *sqlx.DB) (any, error) { return nil, nil })
	require.ErrorIs(t, err, actor.ErrClosed)

	// Closing again stays trivial.
	require.NoError(t, p.Close(context.Background()))
}

func TestWriterSeesOwnWritesInOrder(t *testing.T) {
	p := newTestPool(t, 2)

	out, err := p.SubmitWrite(func(db *sqlx.DB) (any, error) {
		_, err := db.Exec("CREATE TABLE seq (n INTEGER)")
		return nil, err
	})
	require.NoError(t, err)
	require.NoError(t, (<-out).Err)

	outs := make([]<-chan actor.Outcome, 0, 10)
	for i := 0; i < 10; i++ {
		out, err := p.SubmitWrite(func(db *sqlx.DB) (any, error) {
			_, err := db.Exec(fmt.Sprintf("INSERT INTO seq VALUES (%d)", i))
			return nil, err
		})
		require.NoError(t, err)
		outs = append(outs, out)
	}
	for _, out := range outs {
		require.NoError(t, (<-out).Err)
	}

	out, err = p.SubmitWrite(func(db *sqlx.DB) (any, error) {
		var rows []int
		if err := db.Select(&rows, "SELECT n FROM seq ORDER BY rowid"); err != nil {
			return nil, err
		}
		return rows, nil
	})
	require.NoError(t, err)
	outcome := <-out
	require.NoError(t, outcome.Err)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, outcome.Value)
}
