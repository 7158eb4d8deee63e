// Package pooltest provides an in-memory pool.Source for tests.
package pooltest

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Daytron/revworks-sub001/internal/pool"
)

var errQueryNotStubbed = errors.New("pooltest: Query not stubbed")

// Source hands out fake connections and counts their lifecycle.
type Source struct {
	mu sync.Mutex

	// AcquireErr, when set, fails every Acquire.
	AcquireErr error
	// BeginErr, when set, fails every Begin.
	BeginErr error

	ExecFn     func(sql string, args ...any) (pgconn.CommandTag, error)
	QueryRowFn func(sql string, args ...any) pgx.Row
	QueryFn    func(sql string, args ...any) (pgx.Rows, error)

	acquired  int
	released  int
	commits   int
	rollbacks int
}

func (s *Source) Acquire(ctx context.Context) (pool.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AcquireErr != nil {
		return nil, s.AcquireErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.acquired++
	return &conn{src: s}, nil
}

// Open is the number of connections acquired and not yet released.
func (s *Source) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired - s.released
}

func (s *Source) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func (s *Source) Rollbacks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbacks
}

type conn struct {
	src      *Source
	released bool
}

func (c *conn) Begin(ctx context.Context) (pool.Tx, error) {
	c.src.mu.Lock()
	err := c.src.BeginErr
	c.src.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &tx{src: c.src}, nil
}

func (c *conn) Release() {
	c.src.mu.Lock()
	defer c.src.mu.Unlock()
	if c.released {
		panic("pooltest: connection released twice")
	}
	c.released = true
	c.src.released++
}

type tx struct {
	src *Source
}

func (t *tx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if t.src.ExecFn != nil {
		return t.src.ExecFn(sql, args...)
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (t *tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if t.src.QueryFn != nil {
		return t.src.QueryFn(sql, args...)
	}
	return nil, errQueryNotStubbed
}

func (t *tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if t.src.QueryRowFn != nil {
		return t.src.QueryRowFn(sql, args...)
	}
	return Row(func(dest ...any) error { return pgx.ErrNoRows })
}

func (t *tx) Commit(ctx context.Context) error {
	t.src.mu.Lock()
	defer t.src.mu.Unlock()
	t.src.commits++
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	t.src.mu.Lock()
	defer t.src.mu.Unlock()
	t.src.rollbacks++
	return nil
}

// Row adapts a scan function to pgx.Row.
type Row func(dest ...any) error

func (r Row) Scan(dest ...any) error { return r(dest...) }
