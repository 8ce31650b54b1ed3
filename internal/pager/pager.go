// Package pager turns a capped, cursor-style query into a lazy sequence
// of rows.
//
// Repositories limit how many rows a single open result set may hold.
// A Reader never asks for more than PageSize rows at once: it drains one
// bounded page into memory, closes the cursor, and when the page was
// full issues a continuation query keyed on the last row it saw. The
// caller only sees HasNext/Next.
//
// Usage:
//
//	r := pager.New(pager.Config[Row, string]{
//	    PageSize: 4000,
//	    Fetch:    fetchChildren,
//	    Key:      func(r Row) string { return r.ID },
//	})
//	for {
//	    ok, err := r.HasNext(ctx)
//	    if err != nil || !ok { break }
//	    row, _ := r.Next(ctx)
//	}
package pager

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shinji-kodama/deepexport/internal/model"
)

// DefaultPageSize is the number of rows requested per underlying query
// when Config.PageSize is not set. It stays below the common result set
// cap of repository APIs.
const DefaultPageSize = 4000

// ErrExhausted is returned by Next when the sequence has no more rows.
var ErrExhausted = errors.New("pager: no more rows")

// Cursor is a forward-only result set. Next returns io.EOF once the
// cursor is drained. Close must be safe to call after io.EOF.
type Cursor[R any] interface {
	Next(ctx context.Context) (R, error)
	Close() error
}

// FetchFunc opens a cursor over at most limit rows. When first is true
// the query starts from the beginning; otherwise it continues strictly
// after the row whose key is after.
type FetchFunc[R any, K comparable] func(ctx context.Context, after K, first bool, limit int) (Cursor[R], error)

// Config parameterizes a Reader.
type Config[R any, K comparable] struct {
	// PageSize bounds the rows requested per query. Defaults to DefaultPageSize.
	PageSize int

	// Fetch issues one bounded query.
	Fetch FetchFunc[R, K]

	// Key extracts the continuation key from a row.
	Key func(R) K
}

// Reader is a single-pass, non-restartable sequence of rows read page by
// page. It is not safe for concurrent use.
type Reader[R any, K comparable] struct {
	cfg Config[R, K]

	buf  []R
	pos  int
	last K

	started bool
	done    bool
	pages   int
	err     error
}

// New creates a Reader. No query is issued until the first HasNext or Next.
func New[R any, K comparable](cfg Config[R, K]) *Reader[R, K] {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &Reader[R, K]{cfg: cfg}
}

// HasNext reports whether another row is available, fetching the next
// page when the current one is consumed. Fetch failures are wrapped
// with model.ErrQuery and are sticky.
func (r *Reader[R, K]) HasNext(ctx context.Context) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	if r.pos < len(r.buf) {
		return true, nil
	}
	if r.done {
		return false, nil
	}

	if err := r.fill(ctx); err != nil {
		r.err = err
		return false, err
	}
	return r.pos < len(r.buf), nil
}

// Next returns the next row. It returns ErrExhausted once the sequence
// has been fully consumed.
func (r *Reader[R, K]) Next(ctx context.Context) (R, error) {
	var zero R

	ok, err := r.HasNext(ctx)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, ErrExhausted
	}

	row := r.buf[r.pos]
	r.buf[r.pos] = zero
	r.pos++
	return row, nil
}

// Pages returns the number of queries issued so far.
func (r *Reader[R, K]) Pages() int {
	return r.pages
}

// fill reads one page into the buffer. The cursor is closed before fill
// returns, on every path.
func (r *Reader[R, K]) fill(ctx context.Context) (err error) {
	cur, err := r.cfg.Fetch(ctx, r.last, !r.started, r.cfg.PageSize)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrQuery, err)
	}
	defer func() {
		if cerr := cur.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close cursor: %w", model.ErrQuery, cerr)
		}
	}()

	r.started = true
	r.pages++
	r.buf = r.buf[:0]
	r.pos = 0

	for len(r.buf) < r.cfg.PageSize {
		row, nerr := cur.Next(ctx)
		if errors.Is(nerr, io.EOF) {
			break
		}
		if nerr != nil {
			return fmt.Errorf("%w: %w", model.ErrQuery, nerr)
		}
		r.buf = append(r.buf, row)
	}

	if len(r.buf) < r.cfg.PageSize {
		r.done = true
	}
	if len(r.buf) > 0 {
		r.last = r.cfg.Key(r.buf[len(r.buf)-1])
	}
	return nil
}

// SliceCursor adapts an in-memory slice to the Cursor interface.
type SliceCursor[R any] struct {
	rows   []R
	pos    int
	closed bool
}

// NewSliceCursor returns a cursor over rows.
func NewSliceCursor[R any](rows []R) *SliceCursor[R] {
	return &SliceCursor[R]{rows: rows}
}

// Next returns the next row or io.EOF.
func (c *SliceCursor[R]) Next(ctx context.Context) (R, error) {
	var zero R
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if c.closed || c.pos >= len(c.rows) {
		return zero, io.EOF
	}
	row := c.rows[c.pos]
	c.pos++
	return row, nil
}

// Close marks the cursor closed.
func (c *SliceCursor[R]) Close() error {
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *SliceCursor[R]) Closed() bool {
	return c.closed
}
