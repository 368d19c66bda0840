// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package fragment_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/featurebasedb/cubestore"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/featurebasedb/cubestore/fragment"
	"github.com/stretchr/testify/require"
)

// sources creates four fragments of two rows each; source i holds rows
// (i, 0) and (i, 1), widened to width values when wide[i] is set.
func sources(t *testing.T, h *harness, wide map[int]int) []*cubestore.Fragment {
	t.Helper()
	var frags []*cubestore.Fragment
	for i := 0; i < 4; i++ {
		f := h.fragment(t, fmt.Sprintf("src_%d", i), uint64(2*i+1), uint64(2*i+2))
		width := 2
		if w, ok := wide[i]; ok {
			width = w
		}
		rows := make([][]byte, 2)
		for j := range rows {
			vs := make([]float64, width)
			vs[0], vs[1] = float64(i), float64(j)
			rows[j] = doubles(t, vs...)
		}
		h.fill(t, f, rows...)
		frags = append(frags, f)
	}
	return frags
}

var stream = []fragment.ExecFlag{fragment.ExecFirst, fragment.ExecMiddle, fragment.ExecMiddle, fragment.ExecLast}

func TestAppendFragmentToFragment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	srcs := sources(t, h, nil)
	dst := h.fragment(t, "merged", 1, 8)

	cur := h.NewAppendCursor()
	for i, flag := range stream {
		require.NoError(t, h.AppendFragmentToFragment(ctx, cur, 8, flag, dst, srcs[i]))
		if flag == fragment.ExecLast {
			require.Equal(t, fragment.Idle, cur.State())
		} else {
			require.Equal(t, fragment.Streaming, cur.State())
		}
	}
	require.Equal(t, 1, cur.Created())
	require.Equal(t, 1, cur.Released())
	require.Equal(t, 0, cur.Remakes())
	require.Equal(t, 0, h.adapter.Stats().Open())

	ids, measures, err := h.adapter.Rows(h.db.Name, dst.Name)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8}, ids)
	for i, m := range measures {
		require.Equal(t, doubles(t, float64(i/2), float64(i%2)), m)
	}
}

func TestAppendFragmentToFragment_Remake(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	srcs := sources(t, h, map[int]int{1: 3})
	dst := h.fragment(t, "merged", 1, 8)

	cur := h.NewAppendCursor()
	for i, flag := range stream {
		require.NoError(t, cur.Append(ctx, 8, flag, dst, srcs[i]))
	}
	require.Equal(t, 2, cur.Created())
	require.Equal(t, 2, cur.Released())
	require.Equal(t, 1, cur.Remakes())
	require.Equal(t, 0, h.adapter.Stats().Open())

	_, measures, err := h.adapter.Rows(h.db.Name, dst.Name)
	require.NoError(t, err)
	require.Len(t, measures, 8)
	require.Equal(t, doubles(t, 0, 1), measures[1])
	require.Equal(t, doubles(t, 1, 0, 0), measures[2])
	require.Equal(t, doubles(t, 3, 1), measures[7])
}

func TestAppendFragmentToFragment_Partial(t *testing.T) {
	// Statements of three rows: two full executions and a final one of two.
	h := newHarness(t, batchRows(3))
	ctx := context.Background()
	srcs := sources(t, h, nil)
	dst := h.fragment(t, "merged", 101, 108)

	cur := h.NewAppendCursor()
	for i, flag := range stream {
		require.NoError(t, cur.Append(ctx, 8, flag, dst, srcs[i]))
	}
	require.Equal(t, 1, cur.Created())
	require.Equal(t, 1, cur.Released())
	require.Equal(t, uint64(109), cur.NextID())
	require.Equal(t, 0, h.adapter.Stats().Open())

	ids, _, err := h.adapter.Rows(h.db.Name, dst.Name)
	require.NoError(t, err)
	require.Equal(t, []uint64{101, 102, 103, 104, 105, 106, 107, 108}, ids)
}

func TestAppendFragmentToFragment_Only(t *testing.T) {
	h := newHarness(t)
	srcs := sources(t, h, nil)
	dst := h.fragment(t, "copy", 1, 2)

	cur := h.NewAppendCursor()
	require.NoError(t, cur.Append(context.Background(), 2, fragment.ExecOnly, dst, srcs[3]))
	require.Equal(t, fragment.Idle, cur.State())
	require.Equal(t, cur.Created(), cur.Released())

	_, measures, err := h.adapter.Rows(h.db.Name, dst.Name)
	require.NoError(t, err)
	require.Equal(t, [][]byte{doubles(t, 3, 0), doubles(t, 3, 1)}, measures)
}

func TestAppendFragmentToFragment_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	srcs := sources(t, h, nil)
	dst := h.fragment(t, "merged", 1, 8)
	other := h.fragment(t, "other", 1, 8)

	cur := h.NewAppendCursor()
	err := cur.Append(ctx, 8, fragment.ExecMiddle, dst, srcs[0])
	require.True(t, errors.Is(err, errors.ErrDataError))
	err = cur.Append(ctx, 0, fragment.ExecFirst, dst, srcs[0])
	require.True(t, errors.Is(err, errors.ErrNullParameter))
	err = h.AppendFragmentToFragment(ctx, nil, 8, fragment.ExecFirst, dst, srcs[0])
	require.True(t, errors.Is(err, errors.ErrNullParameter))

	require.NoError(t, cur.Append(ctx, 8, fragment.ExecFirst, dst, srcs[0]))
	err = cur.Append(ctx, 8, fragment.ExecFirst, dst, srcs[1])
	require.True(t, errors.Is(err, errors.ErrDataError))
	err = cur.Append(ctx, 8, fragment.ExecMiddle, other, srcs[1])
	require.True(t, errors.Is(err, errors.ErrDataError))

	// A failing read mid-stream releases the statement.
	h.adapter.FailOn("src_2")
	defer h.adapter.FailOn("")
	require.NoError(t, cur.Append(ctx, 8, fragment.ExecMiddle, dst, srcs[1]))
	err = cur.Append(ctx, 8, fragment.ExecMiddle, dst, srcs[2])
	require.True(t, errors.Is(err, errors.ErrServerError))
	require.Equal(t, fragment.Idle, cur.State())
	require.Equal(t, cur.Created(), cur.Released())
	require.Equal(t, 0, h.adapter.Stats().Open())
}
