// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/featurebasedb/cubestore"
	"github.com/featurebasedb/cubestore/codec"
	"github.com/featurebasedb/cubestore/config"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/featurebasedb/cubestore/fragment"
	"github.com/featurebasedb/cubestore/logger"
	"github.com/featurebasedb/cubestore/tracing"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Source reads hyperslabs of a variable. start and count are indexed in
// the file's native dimension order; dst receives the cells row-major,
// converted to its type. Sources shared by more than one worker must be
// safe for concurrent use.
type Source interface {
	GetVara(varID int, start, count []int, dst *codec.Array) error
}

// Strategy identifies how Populate moves a fragment from source to store.
type Strategy int

const (
	// RowAtATime reads one row per source call.
	RowAtATime Strategy = iota + 1
	// Chunked reads a statement's worth of rows per source call.
	Chunked
	// ChunkedTransposed is Chunked with a per-row reorder of the implicit
	// dimensions.
	ChunkedTransposed
	// WholeFragment reads and transposes the whole fragment at once.
	WholeFragment
)

func (s Strategy) String() string {
	switch s {
	case RowAtATime:
		return "row"
	case Chunked:
		return "chunked"
	case ChunkedTransposed:
		return "chunked-transposed"
	case WholeFragment:
		return "whole"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// Importer persists source variables into fragments in canonical order.
type Importer struct {
	store        *fragment.Store
	src          Source
	memoryBudget int64
	workers      int

	Logger logger.Logger
}

// New returns an Importer reading from src and writing through store.
func New(store *fragment.Store, src Source, cfg config.Import) (*Importer, error) {
	if store == nil {
		return nil, errors.NewErrNullParameter("store")
	}
	if src == nil {
		return nil, errors.NewErrNullParameter("source")
	}
	if cfg.MemoryBudget < 0 {
		return nil, errors.NewErrDataError("negative memory budget %d", cfg.MemoryBudget)
	}
	if cfg.Workers < 1 {
		return nil, errors.NewErrDataError("import needs at least one worker, got %d", cfg.Workers)
	}
	return &Importer{
		store:        store,
		src:          src,
		memoryBudget: cfg.MemoryBudget,
		workers:      cfg.Workers,
		Logger:       logger.NopLogger,
	}, nil
}

// checkTarget validates v and frag before any I/O.
func checkTarget(frag *cubestore.Fragment, v *Variable) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if err := frag.Validate(); err != nil {
		return err
	}
	if !frag.Keys.Valid() {
		return errors.NewErrDataError("fragment %s has invalid keys %s", frag.Name, frag.Keys)
	}
	if total := v.TupleCount(); frag.Keys.End > total {
		return errors.NewErrDataError("fragment %s keys %s exceed the %d rows of %s", frag.Name, frag.Keys, total, v.Name)
	}
	return nil
}

// choose picks the strategy for a fragment of tuples rows.
func (im *Importer) choose(v *Variable, tuples uint64, rowSize int) Strategy {
	if float64(tuples)*float64(rowSize) <= float64(im.memoryBudget)/2 {
		return WholeFragment
	}
	if v.explicitLeads() {
		if v.implicitCanonical() {
			return Chunked
		}
		return ChunkedTransposed
	}
	return RowAtATime
}

// Populate reads the rows of frag from the source and inserts them. The
// fragment table must exist. Rows are inserted in key order.
func (im *Importer) Populate(ctx context.Context, frag *cubestore.Fragment, v *Variable, compressed bool) (Strategy, error) {
	if err := checkTarget(frag, v); err != nil {
		return 0, err
	}
	span, ctx := tracing.StartSpanFromContext(ctx, "Importer.Populate")
	defer span.Finish()

	rowSize, err := v.RowSize()
	if err != nil {
		return 0, err
	}
	tuples := frag.Keys.Len()
	bi, err := im.store.NewBatchInserter(ctx, frag, tuples, rowSize, compressed)
	if err != nil {
		return 0, err
	}
	p := &populate{
		Importer: im,
		bi:       bi,
		frag:     frag,
		v:        v,
		rowSize:  rowSize,
		rowLen:   v.RowLength(),
	}
	p.elemSize, _ = codec.Sizeof(v.Type)

	strategy := im.choose(v, tuples, rowSize)
	span.LogKV("fragment", frag.Name, "strategy", strategy.String(), "rows", tuples)
	switch strategy {
	case WholeFragment:
		err = p.whole(ctx)
	case Chunked, ChunkedTransposed:
		err = p.chunked(ctx, strategy == ChunkedTransposed)
	default:
		err = p.rows(ctx)
	}
	if err != nil {
		bi.Close()
		return 0, err
	}
	if err := bi.Close(); err != nil {
		return 0, err
	}
	CounterFragments.WithLabelValues(strategy.String()).Inc()
	return strategy, nil
}

// populate holds the state of one Populate call.
type populate struct {
	*Importer
	bi   *fragment.BatchInserter
	frag *cubestore.Fragment
	v    *Variable

	rowSize  int
	rowLen   int
	elemSize int
}

// read fills buf, from element offset pos, with the native read of b and
// returns the number of elements read.
func (p *populate) read(b box, l *layout, buf []byte, pos int) (int, error) {
	n := l.elements()
	if n != b.rows()*p.rowLen {
		return 0, errors.NewErrDataError("variable %s: read of %d elements for %d rows of %d", p.v.Name, n, b.rows(), p.rowLen)
	}
	dst, err := codec.Wrap(p.v.Type, n, buf[pos*p.elemSize:])
	if err != nil {
		return 0, err
	}
	if err := p.src.GetVara(p.v.VarID, l.start, l.count, dst); err != nil {
		return 0, errors.Wrapf(err, "reading %s at %v+%v", p.v.Name, l.start, l.count)
	}
	return n, nil
}

// whole reads every slab of the fragment into one cache and transposes it
// into canonical order in a single pass.
func (p *populate) whole(ctx context.Context) error {
	tuples := int(p.frag.Keys.Len())
	cache, err := codec.AllocArray(p.v.Type, tuples*p.rowLen)
	if err != nil {
		return err
	}
	out := cache
	transpose := !p.v.canonical()
	if transpose {
		if out, err = codec.AllocArray(p.v.Type, tuples*p.rowLen); err != nil {
			return err
		}
	}

	pos := 0
	for _, b := range slabs(p.frag.Keys.Start-1, p.frag.Keys.End-1, p.v.ExplicitSizes()) {
		l := p.v.layoutOf(b, false)
		n, err := p.read(b, l, cache.Bytes(), pos)
		if err != nil {
			return err
		}
		if transpose {
			lo, hi := pos*p.elemSize, (pos+n)*p.elemSize
			if err := l.transpose(cache.Bytes()[lo:hi], out.Bytes()[lo:hi], p.elemSize); err != nil {
				return err
			}
		}
		pos += n
	}
	if pos != tuples*p.rowLen {
		return errors.NewErrDataError("variable %s: %d elements read for fragment %s of %d", p.v.Name, pos, p.frag.Name, tuples*p.rowLen)
	}

	data := out.Bytes()
	for r := 0; r < tuples; r++ {
		if err := p.bi.InsertView(ctx, data[r*p.rowSize:(r+1)*p.rowSize]); err != nil {
			return err
		}
	}
	return nil
}

// chunked reads one statement's worth of rows per pass. The explicit
// dimensions lead the native order, so rows arrive in key order and only
// their implicit layout may need reordering.
func (p *populate) chunked(ctx context.Context, transpose bool) error {
	plan := p.bi.Plan()
	chunk := plan.RegularRows
	if plan.RegularTimes == 0 {
		chunk = plan.RemainderRows
	}
	cache, err := codec.AllocArray(p.v.Type, chunk*p.rowLen)
	if err != nil {
		return err
	}
	var row []byte
	var rl *layout
	if transpose {
		row = make([]byte, p.rowSize)
		rl = p.v.layoutOf(unitBox(p.v.NExp()), true)
	}

	sizes := p.v.ExplicitSizes()
	keys := p.frag.Keys
	for next := keys.Start; next <= keys.End; {
		n := uint64(chunk)
		if rest := keys.End - next + 1; rest < n {
			n = rest
		}
		pos := 0
		for _, b := range slabs(next-1, next+n-2, sizes) {
			m, err := p.read(b, p.v.layoutOf(b, false), cache.Bytes(), pos)
			if err != nil {
				return err
			}
			pos += m
		}

		data := cache.Bytes()
		for r := 0; r < int(n); r++ {
			src := data[r*p.rowSize : (r+1)*p.rowSize]
			if !transpose {
				err = p.bi.InsertView(ctx, src)
			} else if err = rl.transpose(src, row, p.elemSize); err == nil {
				err = p.bi.Insert(ctx, row)
			}
			if err != nil {
				return err
			}
		}
		next += n
	}
	return nil
}

// rows reads one row per source call, locating it by decomposing its key
// over the explicit dimensions.
func (p *populate) rows(ctx context.Context) error {
	cache, err := codec.AllocArray(p.v.Type, p.rowLen)
	if err != nil {
		return err
	}
	transpose := !p.v.implicitCanonical()
	row := cache.Bytes()
	if transpose {
		row = make([]byte, p.rowSize)
	}

	sizes := p.v.ExplicitSizes()
	b := unitBox(len(sizes))
	for id := p.frag.Keys.Start; id <= p.frag.Keys.End; id++ {
		coords, err := ComputeDimensionID(id, sizes)
		if err != nil {
			return err
		}
		for i, c := range coords {
			b.start[i] = c - 1
		}
		l := p.v.layoutOf(b, true)
		if _, err := p.read(b, l, cache.Bytes(), 0); err != nil {
			return err
		}
		if transpose {
			if err := l.transpose(cache.Bytes(), row, p.elemSize); err != nil {
				return err
			}
		}
		if err := p.bi.Insert(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// unitBox returns a box of one row at the origin.
func unitBox(n int) box {
	b := box{start: make([]int, n), count: make([]int, n)}
	for i := range b.count {
		b.count[i] = 1
	}
	return b
}

// ImportCube creates and populates every fragment of v. Fragments hosted by
// the same DBMS instance share its connection and are imported in order by
// one worker; up to the configured number of workers run at once. On error
// the fragments already completed are kept. The strategy used for each
// fragment is returned by index.
func (im *Importer) ImportCube(ctx context.Context, v *Variable, frags []*cubestore.Fragment, compressed bool) ([]Strategy, error) {
	if len(frags) == 0 {
		return nil, errors.NewErrNullParameter("fragments")
	}
	for _, frag := range frags {
		if err := checkTarget(frag, v); err != nil {
			return nil, err
		}
	}
	if err := cubestore.CheckDisjoint(frags); err != nil {
		return nil, err
	}

	log := im.Logger.WithPrefix(fmt.Sprintf("import %s ", uuid.New().String()[:8]))
	var groups [][]int
	byDBMS := make(map[*cubestore.DBMSInstance]int)
	for i, frag := range frags {
		g, ok := byDBMS[frag.DB.DBMS]
		if !ok {
			g = len(groups)
			byDBMS[frag.DB.DBMS] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	log.Infof("importing %s (%d rows of %d elements) into %d fragments on %d DBMS instances",
		v.Name, v.TupleCount(), v.RowLength(), len(frags), len(groups))

	strategies := make([]Strategy, len(frags))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(im.workers)
	for _, group := range groups {
		group := group
		eg.Go(func() error {
			for _, i := range group {
				if err := ctx.Err(); err != nil {
					return err
				}
				frag := frags[i]
				start := time.Now()
				if err := im.store.CreateFragment(ctx, frag); err != nil {
					return errors.Wrapf(err, "creating fragment %s", frag.Name)
				}
				s, err := im.Populate(ctx, frag, v, compressed)
				if err != nil {
					log.Errorf("fragment %s %s failed: %v", frag.Name, frag.Keys, err)
					return errors.Wrapf(err, "populating fragment %s", frag.Name)
				}
				strategies[i] = s
				log.Debugf("fragment %s %s: %s in %s", frag.Name, frag.Keys, s, time.Since(start))
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return strategies, err
	}
	log.Infof("imported %s", v.Name)
	return strategies, nil
}
