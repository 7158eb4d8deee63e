package pool

import "errors"

var (
	// ErrPoolExhausted means every connection is leased. Transient; callers may retry.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrPoolUnavailable means the backing store could not hand out a connection.
	ErrPoolUnavailable = errors.New("connection pool unavailable")

	// ErrAlreadyReleased is returned when a reservation is released twice.
	ErrAlreadyReleased = errors.New("reservation already released")

	// ErrTxFinished is returned for statements issued after commit or rollback.
	ErrTxFinished = errors.New("reservation transaction already finished")
)
