package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Gidwell/jiro/internal/apperr"
)

// ErrLockContended is returned by TryWithWrite when the write lock could not
// be acquired within the allowed wait.
var ErrLockContended = errors.New("write lock contended")

// Instrument observes gateway activity. Calls happen synchronously, in the
// order the events occur.
type Instrument interface {
	LockAcquired(learnerID int64, waited time.Duration)
	CursorClosed(learnerID int64, cursorID uint64)
	Committing(learnerID int64, openCursors int)
	RolledBack(learnerID int64)
}

type nopInstrument struct{}

func (nopInstrument) LockAcquired(int64, time.Duration) {}
func (nopInstrument) CursorClosed(int64, uint64)        {}
func (nopInstrument) Committing(int64, int)             {}
func (nopInstrument) RolledBack(int64)                  {}

// Option configures a Gateway.
type Option func(*Gateway)

// WithInstrument registers an observer for lock, cursor and commit events.
func WithInstrument(instrument Instrument) Option {
	return func(g *Gateway) {
		g.instrument = instrument
	}
}

// Gateway is the only path to durable state. Reads run concurrently; every
// write runs inside a WriteTx, and at most one WriteTx exists per process.
type Gateway struct {
	db         *sqlx.DB
	dialect    Dialect
	statements map[Intent]string
	writeLock  chan struct{}
	holder     atomic.Int64
	cursorSeq  atomic.Uint64
	instrument Instrument
}

// NewGateway compiles every statement intent for dialect. A statement that
// cannot be translated fails construction.
func NewGateway(db *sqlx.DB, dialect Dialect, opts ...Option) (*Gateway, error) {
	statements, err := compileStatements(dialect)
	if err != nil {
		return nil, fmt.Errorf("compile statements: %w", err)
	}
	g := &Gateway{
		db:         db,
		dialect:    dialect,
		statements: statements,
		writeLock:  make(chan struct{}, 1),
		instrument: nopInstrument{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Dialect returns the configured backend.
func (g *Gateway) Dialect() Dialect {
	return g.dialect
}

// DB exposes the underlying handle for migrations and health checks.
func (g *Gateway) DB() *sqlx.DB {
	return g.db
}

// Close closes the underlying database handle.
func (g *Gateway) Close() error {
	return g.db.Close()
}

// Statement returns the compiled statement for intent.
func (g *Gateway) Statement(intent Intent) (string, error) {
	stmt, ok := g.statements[intent]
	if !ok {
		return "", &apperr.DialectError{Dialect: string(g.dialect), Statement: string(intent), Reason: "unknown statement intent"}
	}
	return stmt, nil
}

// Select runs a read outside any write transaction and scans all rows into dest.
func (g *Gateway) Select(ctx context.Context, dest any, intent Intent, args ...any) error {
	stmt, err := g.Statement(intent)
	if err != nil {
		return err
	}
	if err := g.db.SelectContext(ctx, dest, stmt, normalizeArgs(args)...); err != nil {
		return fmt.Errorf("select %s: %w", intent, err)
	}
	return nil
}

// Get runs a single row read. It returns sql.ErrNoRows when nothing matched.
func (g *Gateway) Get(ctx context.Context, dest any, intent Intent, args ...any) error {
	stmt, err := g.Statement(intent)
	if err != nil {
		return err
	}
	if err := g.db.GetContext(ctx, dest, stmt, normalizeArgs(args)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("get %s: %w", intent, err)
	}
	return nil
}

// Query runs a read and hands back the cursor. The caller must close it.
func (g *Gateway) Query(ctx context.Context, intent Intent, args ...any) (*Cursor, error) {
	stmt, err := g.Statement(intent)
	if err != nil {
		return nil, err
	}
	rows, err := g.db.QueryxContext(ctx, stmt, normalizeArgs(args)...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", intent, err)
	}
	return &Cursor{Rows: rows, id: g.cursorSeq.Add(1)}, nil
}

// BeginWrite acquires the process wide write lock on behalf of learnerID and
// opens a transaction. The lock is released by Commit or Rollback.
func (g *Gateway) BeginWrite(ctx context.Context, learnerID int64) (*WriteTx, error) {
	return g.beginWrite(ctx, learnerID, 0)
}

// WithWrite runs fn inside a write transaction. The transaction is committed
// when fn returns nil and rolled back otherwise, including on panic.
func (g *Gateway) WithWrite(ctx context.Context, learnerID int64, fn func(ctx context.Context, tx *WriteTx) error) error {
	tx, err := g.beginWrite(ctx, learnerID, 0)
	if err != nil {
		return err
	}
	return runWrite(ctx, tx, fn)
}

// TryWithWrite is WithWrite for callers that must not wait long. When the lock
// stays held for longer than wait it returns ErrLockContended.
func (g *Gateway) TryWithWrite(ctx context.Context, learnerID int64, wait time.Duration, fn func(ctx context.Context, tx *WriteTx) error) error {
	if wait <= 0 {
		wait = time.Millisecond
	}
	tx, err := g.beginWrite(ctx, learnerID, wait)
	if err != nil {
		return err
	}
	return runWrite(ctx, tx, fn)
}

func runWrite(ctx context.Context, tx *WriteTx, fn func(ctx context.Context, tx *WriteTx) error) error {
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback transaction: %w (original error: %v)", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}

func (g *Gateway) beginWrite(ctx context.Context, learnerID int64, wait time.Duration) (*WriteTx, error) {
	release, err := g.acquire(ctx, learnerID, wait)
	if err != nil {
		return nil, err
	}
	tx, err := g.db.BeginTxx(ctx, nil)
	if err != nil {
		release()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &WriteTx{
		gateway:   g,
		tx:        tx,
		learnerID: learnerID,
		cursors:   make(map[uint64]*Cursor),
		release:   release,
	}, nil
}

func (g *Gateway) acquire(ctx context.Context, learnerID int64, wait time.Duration) (func(), error) {
	start := time.Now()
	var timeout <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case g.writeLock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		slog.Default().Debug("write lock contended",
			"learner_id", learnerID,
			"holder", g.holder.Load(),
			"waited", time.Since(start))
		return nil, ErrLockContended
	}

	g.holder.Store(learnerID)
	g.instrument.LockAcquired(learnerID, time.Since(start))
	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			g.holder.Store(0)
			<-g.writeLock
		}
	}, nil
}

// normalizeArgs stores every timestamp in UTC at microsecond precision so all
// backends compare and round trip them identically.
func normalizeArgs(args []any) []any {
	out := make([]any, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case time.Time:
			out[i] = v.UTC().Truncate(time.Microsecond)
		case *time.Time:
			if v == nil {
				out[i] = nil
			} else {
				out[i] = v.UTC().Truncate(time.Microsecond)
			}
		default:
			out[i] = arg
		}
	}
	return out
}
