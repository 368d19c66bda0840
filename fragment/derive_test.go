// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package fragment_test

import (
	"context"
	"testing"

	"github.com/featurebasedb/cubestore"
	"github.com/featurebasedb/cubestore/codec"
	"github.com/featurebasedb/cubestore/config"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/featurebasedb/cubestore/fragment"
	"github.com/stretchr/testify/require"
)

// series fills a fragment with rows (i, 10*i) for i in 1..6.
func series(t *testing.T, h *harness, name string) *cubestore.Fragment {
	t.Helper()
	f := h.fragment(t, name, 1, 6)
	var rows [][]byte
	for i := 1; i <= 6; i++ {
		rows = append(rows, doubles(t, float64(i), 10*float64(i)))
	}
	h.fill(t, f, rows...)
	return f
}

func dumpAll(t *testing.T, h *harness, f *cubestore.Fragment) [][]string {
	t.Helper()
	res, err := h.ReadFragmentData(context.Background(), f, fragment.ReadRequest{Type: codec.Double})
	require.NoError(t, err)
	return readAll(t, res)
}

func TestCreateFragmentFromQuery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	src := series(t, h, "src")

	t.Run("Group", func(t *testing.T) {
		f, err := h.CreateFragmentFromQuery(ctx, src, "grouped", fragment.DerivedQuery{
			Operation: "cube_sum_arrays('double', measure)",
			GroupSize: 3,
		})
		require.NoError(t, err)
		require.Equal(t, cubestore.KeyRange{Start: 1, End: 2}, f.Keys)
		require.Equal(t, [][]string{{"1", "6,60"}, {"2", "15,150"}}, dumpAll(t, h, f))
	})

	t.Run("Block", func(t *testing.T) {
		f, err := h.CreateFragmentFromQuery(ctx, src, "blocked", fragment.DerivedQuery{
			Operation: "cube_sum_arrays('double', measure)",
			BlockSize: 2,
		})
		require.NoError(t, err)
		require.Equal(t, cubestore.KeyRange{Start: 1, End: 2}, f.Keys)
		require.Equal(t, [][]string{{"1", "9,90"}, {"2", "12,120"}}, dumpAll(t, h, f))
	})

	t.Run("WhereGroup", func(t *testing.T) {
		f, err := h.CreateFragmentFromQuery(ctx, src, "wheregrouped", fragment.DerivedQuery{
			Operation: "cube_sum_arrays('double', measure)",
			Where:     "id_dim > 2",
			GroupSize: 2,
		})
		require.NoError(t, err)
		require.Equal(t, [][]string{{"2", "7,70"}, {"3", "11,110"}}, dumpAll(t, h, f))
	})

	t.Run("Params", func(t *testing.T) {
		f, err := h.CreateFragmentFromQuery(ctx, src, "picked", fragment.DerivedQuery{
			Operation: "measure",
			Where:     "measure = ?",
			Params:    [][]byte{doubles(t, 5, 50)},
		})
		require.NoError(t, err)
		require.Equal(t, [][]string{{"5", "5,50"}}, dumpAll(t, h, f))
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := h.CreateFragmentFromQuery(ctx, src, "x", fragment.DerivedQuery{})
		require.True(t, errors.Is(err, errors.ErrNullParameter))
		_, err = h.CreateFragmentFromQuery(ctx, src, "x", fragment.DerivedQuery{Operation: "measure", GroupSize: 2, BlockSize: 2})
		require.True(t, errors.Is(err, errors.ErrDataError))
		_, err = h.CreateFragmentFromQuery(ctx, nil, "x", fragment.DerivedQuery{Operation: "measure"})
		require.True(t, errors.Is(err, errors.ErrNullParameter))
		_, err = h.CreateFragmentFromQuery(ctx, src, "", fragment.DerivedQuery{Operation: "measure"})
		require.True(t, errors.Is(err, errors.ErrNullParameter))
	})
}

func TestCreateFragmentFromQuery_Statements(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	src := series(t, h, "src")

	_, err := h.CreateFragmentFromQuery(ctx, src, "picked", fragment.DerivedQuery{
		Operation: "measure",
		Where:     "measure = ?",
		Params:    [][]byte{doubles(t, 2, 20)},
	})
	require.NoError(t, err)
	stmts := h.adapter.Stats().Statements
	require.Equal(t, []string{
		"CREATE TABLE cube1_c1_ms1_0.picked (id_dim BIGINT NOT NULL PRIMARY KEY, measure BLOB)",
		"INSERT INTO cube1_c1_ms1_0.picked (id_dim, measure) SELECT id_dim AS id_dim, measure AS measure FROM cube1_c1_ms1_0.src WHERE measure = ?",
	}, stmts[len(stmts)-2:])

	// A failed fill leaves no table behind.
	h.adapter.FailOn("INSERT INTO cube1_c1_ms1_0.failed")
	defer h.adapter.FailOn("")
	_, err = h.CreateFragmentFromQuery(ctx, src, "failed", fragment.DerivedQuery{
		Operation: "cube_sum_arrays('double', measure)",
		GroupSize: 2,
	})
	require.True(t, errors.Is(err, errors.ErrServerError))
	require.Equal(t, []string{"picked", "src"}, h.adapter.Tables(h.db.Name))
	require.Equal(t, 0, h.adapter.Stats().Open())
}

func TestCreateFragmentFromQuery_Overflow(t *testing.T) {
	h := newHarness(t, func(c *config.Storage) { c.MaxStatementSize = 120 })
	src := h.fragment(t, "src", 1, 6)
	_, err := h.CreateFragmentFromQuery(context.Background(), src, "derived", fragment.DerivedQuery{
		Operation: "cube_sum_arrays('double', measure)",
		GroupSize: 3,
	})
	require.True(t, errors.Is(err, errors.ErrBufferOverflow))
	require.True(t, errors.Is(err, errors.ErrServerError))
	require.Equal(t, []string{"src"}, h.adapter.Tables(h.db.Name))
}
