// Package query is the only sanctioned way to touch the connection pool.
// WithReservation reserves a connection, runs one unit of work inside its
// transaction, commits or rolls back, and always releases.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Daytron/revworks-sub001/internal/pool"
)

type ErrorKind int

const (
	// NoConnection: the pool was exhausted, unavailable, or the caller gave up while reserving.
	NoConnection ErrorKind = iota + 1
	// StatementFailed: a statement, commit, or release failed.
	StatementFailed
	// NoResult: the query legitimately matched nothing.
	NoResult
)

func (k ErrorKind) String() string {
	switch k {
	case NoConnection:
		return "no_connection"
	case StatementFailed:
		return "statement_failed"
	case NoResult:
		return "no_result"
	default:
		return "unknown"
	}
}

// Error is the classified failure of one helper invocation.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("query %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func KindOf(err error) (ErrorKind, bool) {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind, true
	}
	return 0, false
}

func IsNoResult(err error) bool {
	k, ok := KindOf(err)
	return ok && k == NoResult
}

func IsNoConnection(err error) bool {
	k, ok := KindOf(err)
	return ok && k == NoConnection
}

// Reserver is satisfied by *pool.Gateway.
type Reserver interface {
	Reserve(ctx context.Context, leasedBy string) (*pool.Reservation, error)
}

type ownerKey struct{}

// WithOwner tags ctx so reservations made under it are leased by owner
// (normally the session ID).
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

func OwnerFrom(ctx context.Context) string {
	if owner, ok := ctx.Value(ownerKey{}).(string); ok && owner != "" {
		return owner
	}
	return pool.SystemOwner
}

const finishTimeout = 5 * time.Second

// WithReservation runs fn inside a freshly reserved transaction. fn's
// result is committed when it returns nil and rolled back otherwise,
// including when fn panics. The reservation is released on every path.
func WithReservation[T any](ctx context.Context, gw Reserver, fn func(ctx context.Context, q pool.Querier) (T, error)) (result T, err error) {
	var zero T

	res, rerr := gw.Reserve(ctx, OwnerFrom(ctx))
	if rerr != nil {
		return zero, &Error{Kind: NoConnection, Err: rerr}
	}

	committed := false
	defer func() {
		if !committed {
			rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
			_ = res.Rollback(rbCtx)
			cancel()
		}
		if relErr := res.Release(); relErr != nil && err == nil {
			result = zero
			err = &Error{Kind: StatementFailed, Err: relErr}
		}
	}()

	out, ferr := fn(ctx, res)
	if ferr != nil {
		return zero, classify(ferr)
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	committed = true
	if cerr := res.Commit(commitCtx); cerr != nil {
		return zero, &Error{Kind: StatementFailed, Err: fmt.Errorf("commit: %w", cerr)}
	}

	return out, nil
}

// Run is WithReservation for work that produces no value.
func Run(ctx context.Context, gw Reserver, fn func(ctx context.Context, q pool.Querier) error) error {
	_, err := WithReservation(ctx, gw, func(ctx context.Context, q pool.Querier) (struct{}, error) {
		return struct{}{}, fn(ctx, q)
	})
	return err
}

func classify(err error) error {
	var qe *Error
	if errors.As(err, &qe) {
		return err
	}

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return &Error{Kind: NoResult, Err: err}
	case errors.Is(err, pool.ErrPoolExhausted), errors.Is(err, pool.ErrPoolUnavailable):
		return &Error{Kind: NoConnection, Err: err}
	default:
		return &Error{Kind: StatementFailed, Err: err}
	}
}
