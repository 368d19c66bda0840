// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package fragment

import (
	"context"
	"fmt"

	"github.com/featurebasedb/cubestore"
	"github.com/featurebasedb/cubestore/backend"
	"github.com/featurebasedb/cubestore/errors"
)

// ChunkPlan splits TupleCount rows into RegularTimes statements of
// RegularRows rows followed by one final statement of RemainderRows rows.
type ChunkPlan struct {
	TupleCount    uint64
	RowSize       int
	RegularRows   int
	RegularTimes  uint64
	RemainderRows int
}

// PlanChunks returns the largest batch under both budgets. A single row is
// always allowed, even when it alone exceeds byteBudget.
func PlanChunks(tupleCount uint64, rowSize, byteBudget, rowBudget int) (ChunkPlan, error) {
	if rowSize <= 0 {
		return ChunkPlan{}, errors.NewErrNullParameter("row size")
	}
	if byteBudget <= 0 || rowBudget <= 0 {
		return ChunkPlan{}, errors.NewErrNullParameter("batch budget")
	}
	p := ChunkPlan{TupleCount: tupleCount, RowSize: rowSize}
	if tupleCount == 0 {
		return p, nil
	}
	rows := byteBudget / rowSize
	if rows < 1 {
		rows = 1
	}
	if rows > rowBudget {
		rows = rowBudget
	}
	if uint64(rows) > tupleCount {
		rows = int(tupleCount)
	}
	p.RegularRows = rows
	p.RegularTimes = tupleCount / uint64(rows)
	p.RemainderRows = int(tupleCount % uint64(rows))
	return p, nil
}

// Rows returns the number of rows covered by the plan.
func (p ChunkPlan) Rows() uint64 {
	return p.RegularTimes*uint64(p.RegularRows) + uint64(p.RemainderRows)
}

// Statements returns the number of insert statements the plan executes.
func (p ChunkPlan) Statements() uint64 {
	n := p.RegularTimes
	if p.RemainderRows > 0 {
		n++
	}
	return n
}

func (p ChunkPlan) String() string {
	return fmt.Sprintf("%d x %d rows + %d rows", p.RegularTimes, p.RegularRows, p.RemainderRows)
}

// batch is one prepared multi-row insert with its bound arguments.
type batch struct {
	query backend.Query
	ids   []*backend.Arg
	blobs []*backend.Arg
	bufs  [][]byte
	args  []*backend.Arg
}

func newBatch(rows, rowSize int) *batch {
	b := &batch{
		ids:   make([]*backend.Arg, rows),
		blobs: make([]*backend.Arg, rows),
		bufs:  make([][]byte, rows),
		args:  make([]*backend.Arg, 0, 2*rows),
	}
	for i := 0; i < rows; i++ {
		b.ids[i] = backend.NewUintArg(0)
		b.blobs[i] = &backend.Arg{Type: backend.ArgBlob}
		b.bufs[i] = make([]byte, 0, rowSize)
		b.args = append(b.args, b.ids[i], b.blobs[i])
	}
	return b
}

func (b *batch) close() error {
	if b == nil || b.query == nil {
		return nil
	}
	err := b.query.Close()
	b.query = nil
	return err
}

// BatchInserter inserts the rows of one fragment following a ChunkPlan.
// Rows receive consecutive ids starting at the fragment's first key. Both
// statements are prepared once and released by Close.
type BatchInserter struct {
	store *Store
	frag  *cubestore.Fragment
	conn  backend.Conn
	plan  ChunkPlan

	regular *batch
	final   *batch

	cur      *batch
	pending  int
	inserted uint64
	nextID   uint64
}

// NewBatchInserter prepares the statements inserting tupleCount rows of at
// most rowSize bytes into frag.
func (s *Store) NewBatchInserter(ctx context.Context, frag *cubestore.Fragment, tupleCount uint64, rowSize int, compressed bool) (*BatchInserter, error) {
	if err := checkFragment(frag); err != nil {
		return nil, err
	}
	if tupleCount == 0 {
		return nil, errors.NewErrNullParameter("tuple count")
	}
	if frag.Keys.Valid() && tupleCount > frag.Keys.Len() {
		return nil, errors.NewErrDataError("%d rows do not fit fragment %s keys %s", tupleCount, frag.Name, frag.Keys)
	}
	plan, err := PlanChunks(tupleCount, rowSize, s.cfg.InsertBatchBytes, s.cfg.InsertBatchRows)
	if err != nil {
		return nil, err
	}
	conn, err := s.Connect(ctx, frag.DB.DBMS)
	if err != nil {
		return nil, err
	}

	bi := &BatchInserter{store: s, frag: frag, conn: conn, plan: plan, nextID: 1}
	if frag.Keys.Valid() {
		bi.nextID = frag.Keys.Start
	}
	table := frag.QualifiedName()
	if plan.RegularTimes > 0 {
		if bi.regular, err = bi.prepare(ctx, table, plan.RegularRows, rowSize, compressed); err != nil {
			return nil, err
		}
	}
	if plan.RemainderRows > 0 {
		if bi.final, err = bi.prepare(ctx, table, plan.RemainderRows, rowSize, compressed); err != nil {
			bi.Close()
			return nil, err
		}
	}
	bi.cur = bi.regular
	if bi.cur == nil {
		bi.cur = bi.final
	}
	return bi, nil
}

func (bi *BatchInserter) prepare(ctx context.Context, table string, rows, rowSize int, compressed bool) (*batch, error) {
	stmt, err := bi.store.insertStatement(table, rows, compressed)
	if err != nil {
		return nil, err
	}
	b := newBatch(rows, rowSize)
	if b.query, err = bi.conn.SetupQuery(ctx, stmt, rows, b.args); err != nil {
		return nil, errors.NewErrServerError("preparing insert into "+table, err)
	}
	return b, nil
}

// Plan returns the chunk plan of the inserter.
func (bi *BatchInserter) Plan() ChunkPlan { return bi.plan }

// Inserted returns the number of rows already written to the backend.
func (bi *BatchInserter) Inserted() uint64 { return bi.inserted }

// NextID returns the id the next row will receive.
func (bi *BatchInserter) NextID() uint64 { return bi.nextID }

// Insert binds a copy of measure as the next row, executing the current
// statement once all its rows are bound.
func (bi *BatchInserter) Insert(ctx context.Context, measure []byte) error {
	return bi.insert(ctx, measure, false)
}

// InsertView is Insert without the copy: measure must stay unchanged until
// the statement holding it has been executed, which happens at the latest
// when the row completes its batch.
func (bi *BatchInserter) InsertView(ctx context.Context, measure []byte) error {
	return bi.insert(ctx, measure, true)
}

func (bi *BatchInserter) insert(ctx context.Context, measure []byte, view bool) error {
	if bi.cur == nil {
		return errors.NewErrDataError("fragment %s already holds its %d rows", bi.frag.Name, bi.plan.TupleCount)
	}
	if len(measure) > bi.plan.RowSize {
		return errors.WithCode(errors.NewErrBufferOverflow("row", len(measure), bi.plan.RowSize),
			errors.ErrDataError, "binding row of fragment "+bi.frag.Name)
	}
	b := bi.cur
	b.ids[bi.pending].Uint = bi.nextID
	arg := b.blobs[bi.pending]
	if view {
		arg.Blob = measure
	} else {
		b.bufs[bi.pending] = append(b.bufs[bi.pending][:0], measure...)
		arg.Blob = b.bufs[bi.pending]
	}
	arg.IsNull = false
	bi.nextID++
	bi.pending++
	if bi.pending < len(b.ids) {
		return nil
	}

	CounterStatements.WithLabelValues("insert").Inc()
	if err := bi.conn.ExecuteQuery(ctx, b.query); err != nil {
		return errors.NewErrServerError("inserting into "+bi.frag.QualifiedName(), err)
	}
	var n int
	for _, arg := range b.blobs {
		n += len(arg.Blob)
	}
	CounterRowsInserted.Add(float64(bi.pending))
	CounterBytesInserted.Add(float64(n))
	bi.inserted += uint64(bi.pending)
	bi.pending = 0
	if bi.inserted >= bi.plan.RegularTimes*uint64(bi.plan.RegularRows) {
		bi.cur = bi.final
		if bi.inserted == bi.plan.TupleCount {
			bi.cur = nil
		}
	}
	return nil
}

// Close releases both statements. It reports a DataError when rows of the
// plan were never inserted.
func (bi *BatchInserter) Close() error {
	err1 := bi.regular.close()
	err2 := bi.final.close()
	bi.regular, bi.final, bi.cur = nil, nil, nil
	if err1 != nil {
		return errors.NewErrServerError("releasing insert statement", err1)
	}
	if err2 != nil {
		return errors.NewErrServerError("releasing final insert statement", err2)
	}
	if bi.inserted != bi.plan.TupleCount {
		return errors.NewErrDataError("fragment %s: %d of %d rows inserted", bi.frag.Name, bi.inserted, bi.plan.TupleCount)
	}
	return nil
}
