// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package fragment_test

import (
	"context"
	"testing"

	"github.com/featurebasedb/cubestore/codec"
	"github.com/featurebasedb/cubestore/config"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/featurebasedb/cubestore/fragment"
	"github.com/stretchr/testify/require"
)

func TestPlanChunks(t *testing.T) {
	p, err := fragment.PlanChunks(2500, 800, 512<<10, 1000)
	require.NoError(t, err)
	require.Equal(t, fragment.ChunkPlan{TupleCount: 2500, RowSize: 800, RegularRows: 655, RegularTimes: 3, RemainderRows: 535}, p)
	require.Equal(t, uint64(4), p.Statements())

	// A row larger than the byte budget still gets a batch of its own.
	p, err = fragment.PlanChunks(3, 1024, 100, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, p.RegularRows)
	require.Equal(t, uint64(3), p.RegularTimes)

	_, err = fragment.PlanChunks(3, 0, 100, 10)
	require.True(t, errors.Is(err, errors.ErrNullParameter))
	_, err = fragment.PlanChunks(3, 8, 100, 0)
	require.True(t, errors.Is(err, errors.ErrNullParameter))
}

func TestPlanChunks_Budget(t *testing.T) {
	for tuples := uint64(0); tuples <= 70; tuples += 7 {
		for _, rowSize := range []int{1, 3, 8, 100, 5000} {
			for _, bytes := range []int{1, 64, 4096} {
				for _, rows := range []int{1, 5, 1000} {
					p, err := fragment.PlanChunks(tuples, rowSize, bytes, rows)
					require.NoError(t, err)
					require.Equal(t, tuples, p.Rows(), "plan %s", p)
					if tuples == 0 {
						require.Equal(t, uint64(0), p.Statements())
						continue
					}
					require.LessOrEqual(t, p.RegularRows, rows)
					if p.RegularRows > 1 {
						require.LessOrEqual(t, p.RegularRows*rowSize, bytes)
					}
					require.Less(t, p.RemainderRows, p.RegularRows)
				}
			}
		}
	}
}

func TestPopulateRandom(t *testing.T) {
	h := newHarness(t, batchRows(4))
	ctx := context.Background()
	f := h.fragment(t, "fact", 1, 10)

	require.NoError(t, h.PopulateRandom(ctx, f, 10, 3, codec.Double, false))

	ids, measures, err := h.adapter.Rows(h.db.Name, f.Name)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, ids)
	for _, m := range measures {
		require.Len(t, m, 24)
	}

	// Two regular statements of four rows, then the final two.
	stats := h.adapter.Stats()
	require.Equal(t, 3, countStatements(stats, "INSERT INTO"))
	require.Equal(t, 0, stats.Open())

	n, err := h.TotalRows(ctx, f)
	require.NoError(t, err)
	require.Equal(t, uint64(10), n)
	n, err = h.TotalElements(ctx, f, codec.Double, false)
	require.NoError(t, err)
	require.Equal(t, uint64(30), n)
	n, err = h.RowElementCount(ctx, f, codec.Double, false)
	require.NoError(t, err)
	require.Equal(t, uint64(3), n)
}

func TestPopulateRandom_Types(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i, typ := range codec.Types {
		f := h.fragment(t, "fact_"+typ.String(), 1, 5)
		compressed := i%2 == 0
		require.NoError(t, h.PopulateRandom(ctx, f, 5, 12, typ, compressed))

		n, err := h.TotalElements(ctx, f, typ, compressed)
		require.NoError(t, err)
		if typ == codec.Bit {
			// Bits are counted per stored byte.
			require.Equal(t, uint64(5*16), n)
		} else {
			require.Equal(t, uint64(5*12), n)
		}
	}
}

func TestBatchInserter(t *testing.T) {
	h := newHarness(t, batchRows(2))
	ctx := context.Background()
	f := h.fragment(t, "fact", 11, 13)

	bi, err := h.NewBatchInserter(ctx, f, 3, 16, false)
	require.NoError(t, err)
	require.Equal(t, uint64(11), bi.NextID())

	view := doubles(t, 1, 1)
	require.NoError(t, bi.InsertView(ctx, view))
	require.NoError(t, bi.Insert(ctx, doubles(t, 2, 2)))
	require.Equal(t, uint64(2), bi.Inserted())

	err = bi.Insert(ctx, make([]byte, 17))
	require.True(t, errors.Is(err, errors.ErrBufferOverflow))

	require.NoError(t, bi.Insert(ctx, doubles(t, 3, 3)))
	err = bi.Insert(ctx, doubles(t, 4, 4))
	require.True(t, errors.Is(err, errors.ErrDataError))
	require.NoError(t, bi.Close())

	ids, measures, err := h.adapter.Rows(h.db.Name, f.Name)
	require.NoError(t, err)
	require.Equal(t, []uint64{11, 12, 13}, ids)
	require.Equal(t, doubles(t, 3, 3), measures[2])

	t.Run("TooManyRows", func(t *testing.T) {
		_, err := h.NewBatchInserter(ctx, f, 4, 16, false)
		require.True(t, errors.Is(err, errors.ErrDataError))
	})

	t.Run("Incomplete", func(t *testing.T) {
		g := h.fragment(t, "partial", 1, 3)
		bi, err := h.NewBatchInserter(ctx, g, 3, 16, false)
		require.NoError(t, err)
		require.NoError(t, bi.Insert(ctx, doubles(t, 1, 1)))
		require.True(t, errors.Is(bi.Close(), errors.ErrDataError))
		require.Equal(t, 0, h.adapter.Stats().Open())
	})

	t.Run("Overflow", func(t *testing.T) {
		h := newHarness(t, func(c *config.Storage) { c.MaxStatementSize = 200 })
		g := h.fragment(t, "f", 1, 100)
		_, err := h.NewBatchInserter(ctx, g, 100, 8, false)
		require.True(t, errors.Is(err, errors.ErrBufferOverflow))
		require.True(t, errors.Is(err, errors.ErrServerError))
	})

	t.Run("FailedInsert", func(t *testing.T) {
		g := h.fragment(t, "failing", 1, 2)
		h.adapter.FailOn("INSERT INTO")
		defer h.adapter.FailOn("")
		err := h.PopulateRandom(ctx, g, 2, 2, codec.Int, false)
		require.True(t, errors.Is(err, errors.ErrServerError))
		require.Equal(t, 0, h.adapter.Stats().Open())
	})
}
