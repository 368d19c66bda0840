// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package fragment

import (
	"context"
	"io"

	"github.com/featurebasedb/cubestore"
	"github.com/featurebasedb/cubestore/backend"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/featurebasedb/cubestore/tracing"
)

// ExecFlag tells AppendFragmentToFragment where a call sits in a stream of
// appends into the same fragment.
type ExecFlag int

const (
	// ExecFirst opens a stream.
	ExecFirst ExecFlag = iota + 1
	ExecMiddle
	// ExecLast flushes and closes the stream.
	ExecLast
	// ExecOnly opens and closes a stream in a single call.
	ExecOnly
)

func (f ExecFlag) String() string {
	switch f {
	case ExecFirst:
		return "first"
	case ExecMiddle:
		return "middle"
	case ExecLast:
		return "last"
	case ExecOnly:
		return "only"
	}
	return "unknown"
}

func (f ExecFlag) opens() bool  { return f == ExecFirst || f == ExecOnly }
func (f ExecFlag) closes() bool { return f == ExecLast || f == ExecOnly }

// CursorState is the state of an AppendCursor.
type CursorState int

const (
	Idle CursorState = iota
	Streaming
	Draining
)

func (s CursorState) String() string {
	return [...]string{"idle", "streaming", "draining"}[s]
}

// AppendCursor carries one prepared insert statement and its arguments
// across the calls of an append stream. Rows read from the source
// fragments are renumbered with consecutive ids and bound to the statement,
// which is executed each time all its rows are bound.
//
// The statement is created by the first row of the stream and released
// when the stream closes. A row wider than the bound buffers makes the
// cursor rebuild the statement with larger buffers, carrying the rows
// already bound over.
type AppendCursor struct {
	store *Store
	state CursorState

	target *cubestore.Fragment
	conn   backend.Conn
	rows   int // rows per statement
	width  int // capacity of each blob buffer

	stmt    *batch
	pending int
	nextID  uint64

	created  int
	released int
	remakes  int
}

// NewAppendCursor returns an idle cursor.
func (s *Store) NewAppendCursor() *AppendCursor {
	return &AppendCursor{store: s}
}

func (c *AppendCursor) State() CursorState { return c.state }

// NextID returns the id the next appended row will receive.
func (c *AppendCursor) NextID() uint64 { return c.nextID }

// Created, Released and Remakes count the statements prepared, released and
// rebuilt by the cursor.
func (c *AppendCursor) Created() int  { return c.created }
func (c *AppendCursor) Released() int { return c.released }
func (c *AppendCursor) Remakes() int  { return c.remakes }

// AppendFragmentToFragment streams the rows of oldFrag into newFrag. totRows
// is the number of rows of the whole stream and sizes the insert statement;
// flag positions the call in the stream. On error the cursor releases its
// statement and returns to Idle.
func (s *Store) AppendFragmentToFragment(ctx context.Context, c *AppendCursor, totRows int, flag ExecFlag, newFrag, oldFrag *cubestore.Fragment) error {
	if c == nil {
		return errors.NewErrNullParameter("cursor")
	}
	return c.Append(ctx, totRows, flag, newFrag, oldFrag)
}

// Append is AppendFragmentToFragment on c.
func (c *AppendCursor) Append(ctx context.Context, totRows int, flag ExecFlag, newFrag, oldFrag *cubestore.Fragment) (err error) {
	if totRows <= 0 {
		return errors.NewErrNullParameter("total rows")
	}
	if flag < ExecFirst || flag > ExecOnly {
		return errors.NewErrNullParameter("exec flag")
	}
	if err := checkFragment(newFrag); err != nil {
		return err
	}
	if err := checkFragment(oldFrag); err != nil {
		return err
	}
	switch {
	case flag.opens() && c.state != Idle:
		return errors.NewErrDataError("append stream already open on %s", c.target.Name)
	case !flag.opens() && c.state != Streaming:
		return errors.NewErrDataError("no append stream open for flag %s", flag)
	case !flag.opens() && c.target != newFrag:
		return errors.NewErrDataError("append stream targets %s, not %s", c.target.Name, newFrag.Name)
	}

	span, ctx := tracing.StartSpanFromContext(ctx, "AppendCursor.Append")
	defer span.Finish()
	span.LogKV("flag", flag.String(), "from", oldFrag.Name, "to", newFrag.Name)

	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if flag.opens() {
		conn, err := c.store.Connect(ctx, newFrag.DB.DBMS)
		if err != nil {
			return err
		}
		c.target, c.conn, c.state = newFrag, conn, Streaming
		c.nextID = 1
		if newFrag.Keys.Valid() {
			c.nextID = newFrag.Keys.Start
		}
		c.rows, c.width, c.pending = totRows, 0, 0
		if c.rows > c.store.cfg.InsertBatchRows {
			c.rows = c.store.cfg.InsertBatchRows
		}
	}

	if err := c.stream(ctx, oldFrag); err != nil {
		return err
	}

	if flag.closes() {
		c.state = Draining
		if err := c.flush(ctx); err != nil {
			return err
		}
		return c.Close()
	}
	return nil
}

// stream reads oldFrag in windows of the statement's row count.
func (c *AppendCursor) stream(ctx context.Context, oldFrag *cubestore.Fragment) error {
	s := c.store
	conn, err := s.Connect(ctx, oldFrag.DB.DBMS)
	if err != nil {
		return err
	}
	for offset := 0; ; {
		window := c.rows
		stmt := sprintf(selectRows, s.cfg.IDColumn, s.cfg.MeasureColumn, oldFrag.QualifiedName(), s.cfg.IDColumn, window, offset)
		res, err := s.query(ctx, conn, "append_read", stmt)
		if err != nil {
			return err
		}
		n, err := c.consume(ctx, res)
		res.Close()
		if err != nil {
			return err
		}
		if n < window {
			return nil
		}
		offset += n
	}
}

func (c *AppendCursor) consume(ctx context.Context, res backend.Result) (int, error) {
	var n int
	for {
		row, err := res.FetchRow()
		if err == io.EOF {
			return n, nil
		} else if err != nil {
			return n, errors.NewErrServerError("fetching appended row", err)
		}
		if len(row.Values) != 2 {
			return n, errors.Newf(errors.ErrServerError, "appended row has %d fields, expected 2", len(row.Values))
		}
		if err := c.bind(ctx, row.Values[1]); err != nil {
			return n, err
		}
		n++
	}
}

// bind adds one row to the statement, preparing or remaking it as needed.
func (c *AppendCursor) bind(ctx context.Context, measure []byte) error {
	switch {
	case c.stmt == nil:
		if len(measure) > 0 && c.store.cfg.InsertBatchBytes/len(measure) < c.rows {
			c.rows = c.store.cfg.InsertBatchBytes / len(measure)
			if c.rows < 1 {
				c.rows = 1
			}
		}
		if err := c.prepare(ctx, len(measure)); err != nil {
			return err
		}
	case len(measure) > c.width:
		if err := c.remake(ctx, len(measure)); err != nil {
			return err
		}
	}
	b := c.stmt
	b.ids[c.pending].Uint = c.nextID
	b.bufs[c.pending] = append(b.bufs[c.pending][:0], measure...)
	b.blobs[c.pending].Blob = b.bufs[c.pending]
	b.blobs[c.pending].IsNull = measure == nil
	c.nextID++
	c.pending++
	if c.pending == c.rows {
		return c.execute(ctx, b.query)
	}
	return nil
}

func (c *AppendCursor) prepare(ctx context.Context, width int) error {
	stmt, err := c.store.insertStatement(c.target.QualifiedName(), c.rows, false)
	if err != nil {
		return err
	}
	b := newBatch(c.rows, width)
	if b.query, err = c.conn.SetupQuery(ctx, stmt, c.rows, b.args); err != nil {
		return errors.NewErrServerError("preparing append into "+c.target.QualifiedName(), err)
	}
	c.stmt, c.width = b, width
	c.created++
	return nil
}

// remake rebuilds the statement with buffers of width bytes, keeping the
// rows bound so far.
func (c *AppendCursor) remake(ctx context.Context, width int) error {
	old := c.stmt
	c.store.Logger.Debugf("append into %s: row width grew from %d to %d bytes, rebuilding statement", c.target.Name, c.width, width)
	c.stmt = nil
	if err := old.close(); err != nil {
		return errors.NewErrServerError("releasing append statement", err)
	}
	c.released++
	if err := c.prepare(ctx, width); err != nil {
		return err
	}
	for i := 0; i < c.pending; i++ {
		c.stmt.ids[i].Uint = old.ids[i].Uint
		c.stmt.bufs[i] = append(c.stmt.bufs[i][:0], old.bufs[i]...)
		c.stmt.blobs[i].Blob = c.stmt.bufs[i]
		c.stmt.blobs[i].IsNull = old.blobs[i].IsNull
	}
	c.remakes++
	return nil
}

func (c *AppendCursor) execute(ctx context.Context, q backend.Query) error {
	CounterStatements.WithLabelValues("append").Inc()
	if err := c.conn.ExecuteQuery(ctx, q); err != nil {
		return errors.NewErrServerError("appending into "+c.target.QualifiedName(), err)
	}
	CounterRowsInserted.Add(float64(c.pending))
	c.pending = 0
	return nil
}

// flush writes rows bound to a partially filled statement with a final
// statement sized to them.
func (c *AppendCursor) flush(ctx context.Context) error {
	if c.pending == 0 {
		return nil
	}
	stmt, err := c.store.insertStatement(c.target.QualifiedName(), c.pending, false)
	if err != nil {
		return err
	}
	args := c.stmt.args[:2*c.pending]
	q, err := c.conn.SetupQuery(ctx, stmt, c.pending, args)
	if err != nil {
		return errors.NewErrServerError("preparing final append into "+c.target.QualifiedName(), err)
	}
	defer q.Close()
	return c.execute(ctx, q)
}

// Close releases the cursor's statement and returns it to Idle. It is safe
// to call in any state.
func (c *AppendCursor) Close() error {
	var err error
	if c.stmt != nil {
		err = c.stmt.close()
		c.stmt = nil
		c.released++
	}
	c.state, c.target, c.conn, c.pending = Idle, nil, nil, 0
	if err != nil {
		return errors.NewErrServerError("releasing append statement", err)
	}
	return nil
}
