package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrTxDone is returned when a WriteTx is used after Commit or Rollback.
var ErrTxDone = errors.New("write transaction already finished")

// Cursor is a result set. Cursors opened inside a WriteTx are tracked and
// always closed before that transaction commits.
type Cursor struct {
	*sqlx.Rows
	id      uint64
	once    sync.Once
	onClose func(*Cursor)
	err     error
}

// ID identifies the cursor in instrumentation callbacks.
func (c *Cursor) ID() uint64 {
	return c.id
}

// Close releases the result set. It is safe to call more than once.
func (c *Cursor) Close() error {
	c.once.Do(func() {
		c.err = c.Rows.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
	return c.err
}

// drain consumes any remaining rows, then closes the cursor.
func (c *Cursor) drain() error {
	for c.Next() {
	}
	iterErr := c.Err()
	if err := c.Close(); err != nil {
		return err
	}
	return iterErr
}

// WriteTx is the scoped transaction handle returned by BeginWrite. It holds
// the gateway write lock until Commit or Rollback.
type WriteTx struct {
	gateway   *Gateway
	tx        *sqlx.Tx
	learnerID int64
	release   func()

	mu      sync.Mutex
	cursors map[uint64]*Cursor
	done    bool
}

// LearnerID is the learner the write scope was opened for.
func (t *WriteTx) LearnerID() int64 {
	return t.learnerID
}

// Exec runs a mutating statement.
func (t *WriteTx) Exec(ctx context.Context, intent Intent, args ...any) (sql.Result, error) {
	stmt, err := t.prepare(intent)
	if err != nil {
		return nil, err
	}
	result, err := t.tx.ExecContext(ctx, stmt, normalizeArgs(args)...)
	if err != nil {
		return nil, fmt.Errorf("exec %s: %w", intent, err)
	}
	return result, nil
}

// Query opens a tracked cursor inside the transaction.
func (t *WriteTx) Query(ctx context.Context, intent Intent, args ...any) (*Cursor, error) {
	stmt, err := t.prepare(intent)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryxContext(ctx, stmt, normalizeArgs(args)...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", intent, err)
	}

	cursor := &Cursor{Rows: rows, id: t.gateway.cursorSeq.Add(1), onClose: t.forget}
	t.mu.Lock()
	t.cursors[cursor.id] = cursor
	t.mu.Unlock()
	return cursor, nil
}

// Select scans every row of intent into dest, a pointer to a slice.
func (t *WriteTx) Select(ctx context.Context, dest any, intent Intent, args ...any) error {
	cursor, err := t.Query(ctx, intent, args...)
	if err != nil {
		return err
	}
	defer cursor.Close()

	if err := sqlx.StructScan(cursor.Rows, dest); err != nil {
		return fmt.Errorf("scan %s: %w", intent, err)
	}
	return cursor.Close()
}

// Get scans the first row of intent into dest. It returns sql.ErrNoRows
// when nothing matched.
func (t *WriteTx) Get(ctx context.Context, dest any, intent Intent, args ...any) error {
	cursor, err := t.Query(ctx, intent, args...)
	if err != nil {
		return err
	}
	defer cursor.Close()

	if !cursor.Next() {
		if err := cursor.Err(); err != nil {
			return fmt.Errorf("get %s: %w", intent, err)
		}
		return sql.ErrNoRows
	}
	if err := scanOne(cursor.Rows, dest); err != nil {
		return fmt.Errorf("scan %s: %w", intent, err)
	}
	return cursor.drain()
}

// Commit drains and closes every open cursor, then commits and releases the
// write lock.
func (t *WriteTx) Commit() error {
	if !t.finish() {
		return ErrTxDone
	}
	defer t.release()

	if err := t.closeCursors(); err != nil {
		_ = t.tx.Rollback()
		t.gateway.instrument.RolledBack(t.learnerID)
		return fmt.Errorf("close cursors before commit: %w", err)
	}

	t.gateway.instrument.Committing(t.learnerID, t.openCursors())
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction and releases the write lock. Calling it
// after Commit returns ErrTxDone.
func (t *WriteTx) Rollback() error {
	if !t.finish() {
		return ErrTxDone
	}
	defer t.release()

	closeErr := t.closeCursors()
	err := t.tx.Rollback()
	t.gateway.instrument.RolledBack(t.learnerID)
	if err != nil {
		return err
	}
	return closeErr
}

func (t *WriteTx) prepare(intent Intent) (string, error) {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done {
		return "", ErrTxDone
	}
	return t.gateway.Statement(intent)
}

func (t *WriteTx) finish() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (t *WriteTx) forget(c *Cursor) {
	t.mu.Lock()
	delete(t.cursors, c.id)
	t.mu.Unlock()
	t.gateway.instrument.CursorClosed(t.learnerID, c.id)
}

func (t *WriteTx) openCursors() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cursors)
}

func (t *WriteTx) closeCursors() error {
	t.mu.Lock()
	open := make([]*Cursor, 0, len(t.cursors))
	for _, c := range t.cursors {
		open = append(open, c)
	}
	t.mu.Unlock()

	var errs []error
	for _, c := range open {
		if err := c.drain(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

func scanOne(rows *sqlx.Rows, dest any) error {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return errors.New("destination must be a non-nil pointer")
	}
	base := v.Elem().Type()
	if base.Kind() == reflect.Struct && base != timeType && !v.Type().Implements(scannerType) {
		return rows.StructScan(dest)
	}
	return rows.Scan(dest)
}
