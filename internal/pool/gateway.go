// Package pool arbitrates access to a fixed number of database connections.
// Reserve never queues: when every connection is leased it fails with
// ErrPoolExhausted straight away and leaves retry policy to the caller.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Daytron/revworks-sub001/internal/metrics"
)

// SystemOwner is the leased-by value for work not tied to a session.
const SystemOwner = "system"

const rollbackOnReleaseTimeout = 5 * time.Second

type Gateway struct {
	source         Source
	size           int
	acquireTimeout time.Duration
	logger         *slog.Logger

	// slots holds one token per free connection.
	slots chan struct{}

	mu     sync.Mutex
	leases map[uint64]*Reservation
	nextID uint64
	closed bool
}

func NewGateway(source Source, size int, acquireTimeout time.Duration, logger *slog.Logger) (*Gateway, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	if acquireTimeout <= 0 {
		acquireTimeout = 3 * time.Second
	}

	slots := make(chan struct{}, size)
	for i := 0; i < size; i++ {
		slots <- struct{}{}
	}

	return &Gateway{
		source:         source,
		size:           size,
		acquireTimeout: acquireTimeout,
		logger:         logger,
		slots:          slots,
		leases:         make(map[uint64]*Reservation),
	}, nil
}

// Reserve leases one connection and opens a transaction on it. The caller
// must commit or roll back and then Release the reservation.
func (g *Gateway) Reserve(ctx context.Context, leasedBy string) (*Reservation, error) {
	if leasedBy == "" {
		leasedBy = SystemOwner
	}

	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		metrics.PoolReservationsTotal.WithLabelValues(metrics.OutcomeUnavailable).Inc()
		return nil, fmt.Errorf("%w: gateway closed", ErrPoolUnavailable)
	}

	select {
	case <-g.slots:
	default:
		metrics.PoolReservationsTotal.WithLabelValues(metrics.OutcomeExhausted).Inc()
		return nil, ErrPoolExhausted
	}

	acquireCtx, cancel := context.WithTimeout(ctx, g.acquireTimeout)
	defer cancel()

	conn, err := g.source.Acquire(acquireCtx)
	if err != nil {
		g.slots <- struct{}{}
		return nil, g.unavailable(ctx, leasedBy, err)
	}

	tx, err := conn.Begin(acquireCtx)
	if err != nil {
		conn.Release()
		g.slots <- struct{}{}
		return nil, g.unavailable(ctx, leasedBy, err)
	}

	g.mu.Lock()
	g.nextID++
	r := &Reservation{
		id:       g.nextID,
		gateway:  g,
		conn:     conn,
		tx:       tx,
		leasedBy: leasedBy,
		leasedAt: time.Now(),
	}
	g.leases[r.id] = r
	g.mu.Unlock()

	metrics.PoolReservationsTotal.WithLabelValues(metrics.OutcomeGranted).Inc()
	metrics.PoolConnectionsInUse.Inc()
	return r, nil
}

func (g *Gateway) unavailable(ctx context.Context, leasedBy string, cause error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("reserve cancelled: %w", ctxErr)
	}
	metrics.PoolReservationsTotal.WithLabelValues(metrics.OutcomeUnavailable).Inc()
	g.logger.Error("connection pool unavailable", "leased_by", leasedBy, "error", cause)
	return fmt.Errorf("%w: %w", ErrPoolUnavailable, cause)
}

// Release returns the reservation's connection to the pool. An open
// transaction is rolled back first. Releasing twice is a caller bug and
// yields ErrAlreadyReleased.
func (g *Gateway) Release(r *Reservation) error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		metrics.PoolDoubleReleasesTotal.Inc()
		g.logger.Error("reservation released twice", "reservation", r.id, "leased_by", r.leasedBy)
		return ErrAlreadyReleased
	}
	r.released = true
	open := !r.finished
	r.finished = true
	r.mu.Unlock()

	if open {
		g.logger.Warn("reservation released with open transaction, rolling back",
			"reservation", r.id, "leased_by", r.leasedBy)
		ctx, cancel := context.WithTimeout(context.Background(), rollbackOnReleaseTimeout)
		if err := r.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			g.logger.Error("rollback on release failed", "reservation", r.id, "error", err)
		}
		cancel()
	}

	r.conn.Release()

	g.mu.Lock()
	delete(g.leases, r.id)
	g.mu.Unlock()

	g.slots <- struct{}{}
	metrics.PoolConnectionsInUse.Dec()
	return nil
}

// Close makes every later Reserve fail with ErrPoolUnavailable. Outstanding
// reservations stay valid until released.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

func (g *Gateway) Size() int { return g.size }

// Free is the number of connections that can be reserved right now.
func (g *Gateway) Free() int { return len(g.slots) }

func (g *Gateway) InUse() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.leases)
}

type LeaseInfo struct {
	LeasedBy string        `json:"leased_by"`
	Age      time.Duration `json:"age"`
}

// Leases lists outstanding reservations, oldest first.
func (g *Gateway) Leases() []LeaseInfo {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	out := make([]LeaseInfo, 0, len(g.leases))
	for _, r := range g.leases {
		out = append(out, LeaseInfo{LeasedBy: r.leasedBy, Age: now.Sub(r.leasedAt)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Age > out[j].Age })
	return out
}

// Reservation is a scoped loan of one connection with an open transaction.
type Reservation struct {
	id       uint64
	gateway  *Gateway
	conn     Conn
	tx       Tx
	leasedBy string
	leasedAt time.Time

	mu       sync.Mutex
	finished bool
	released bool
}

func (r *Reservation) LeasedBy() string { return r.leasedBy }

func (r *Reservation) done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

func (r *Reservation) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if r.done() {
		return pgconn.CommandTag{}, ErrTxFinished
	}
	return r.tx.Exec(ctx, sql, args...)
}

func (r *Reservation) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if r.done() {
		return nil, ErrTxFinished
	}
	return r.tx.Query(ctx, sql, args...)
}

func (r *Reservation) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if r.done() {
		return errRow{err: ErrTxFinished}
	}
	return r.tx.QueryRow(ctx, sql, args...)
}

func (r *Reservation) Commit(ctx context.Context) error {
	if !r.finish() {
		return ErrTxFinished
	}
	return r.tx.Commit(ctx)
}

func (r *Reservation) Rollback(ctx context.Context) error {
	if !r.finish() {
		return ErrTxFinished
	}
	return r.tx.Rollback(ctx)
}

// Release is shorthand for Gateway.Release(r).
func (r *Reservation) Release() error {
	return r.gateway.Release(r)
}

// finish marks the transaction closed and reports whether it was open.
func (r *Reservation) finish() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return false
	}
	r.finished = true
	return true
}

type errRow struct{ err error }

func (e errRow) Scan(...any) error { return e.err }
