// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package fragment_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/featurebasedb/cubestore"
	"github.com/featurebasedb/cubestore/backend"
	"github.com/featurebasedb/cubestore/backend/inmem"
	"github.com/featurebasedb/cubestore/codec"
	"github.com/featurebasedb/cubestore/config"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/featurebasedb/cubestore/fragment"
	"github.com/featurebasedb/cubestore/logger"
	"github.com/stretchr/testify/require"
)

type harness struct {
	*fragment.Store
	adapter *inmem.Adapter
	db      *cubestore.DBInstance
}

func newHarness(t *testing.T, mods ...func(*config.Storage)) *harness {
	t.Helper()
	cfg := config.DefaultStorage()
	for _, mod := range mods {
		mod(&cfg)
	}
	a := inmem.New()
	t.Cleanup(func() { a.Close() })
	s, err := fragment.NewStore(a, cfg)
	require.NoError(t, err)
	s.Logger = logger.NewLogfLogger(t)
	h := &harness{
		Store:   s,
		adapter: a,
		db: &cubestore.DBInstance{
			ID:   1,
			Name: cubestore.DatabaseName(1, 1, 1, 0),
			DBMS: &cubestore.DBMSInstance{ID: 1, Driver: "inmem", Host: "localhost"},
		},
	}
	require.NoError(t, s.CreateDatabase(context.Background(), h.db))
	return h
}

func batchRows(rows int) func(*config.Storage) {
	return func(c *config.Storage) { c.InsertBatchRows = rows }
}

// fragment creates an empty fragment table covering keys [start, end].
func (h *harness) fragment(t *testing.T, name string, start, end uint64) *cubestore.Fragment {
	t.Helper()
	f := &cubestore.Fragment{
		CubeID: 1,
		Name:   name,
		Keys:   cubestore.KeyRange{Start: start, End: end},
		DB:     h.db,
	}
	require.NoError(t, h.CreateFragment(context.Background(), f))
	return f
}

// fill inserts one row per measure into f.
func (h *harness) fill(t *testing.T, f *cubestore.Fragment, measures ...[]byte) {
	t.Helper()
	ctx := context.Background()
	width := 0
	for _, m := range measures {
		if len(m) > width {
			width = len(m)
		}
	}
	bi, err := h.NewBatchInserter(ctx, f, uint64(len(measures)), width, false)
	require.NoError(t, err)
	for _, m := range measures {
		require.NoError(t, bi.Insert(ctx, m))
	}
	require.NoError(t, bi.Close())
}

func doubles(t *testing.T, vs ...float64) []byte {
	t.Helper()
	arr, err := codec.AllocArray(codec.Double, len(vs))
	require.NoError(t, err)
	for i, v := range vs {
		require.NoError(t, arr.Set(i, v))
	}
	return arr.Bytes()
}

func readAll(t *testing.T, res backend.Result) [][]string {
	t.Helper()
	defer res.Close()
	var out [][]string
	for {
		row, err := res.FetchRow()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		vals := make([]string, len(row.Values))
		for i, v := range row.Values {
			vals[i] = string(v)
		}
		out = append(out, vals)
	}
}

func countStatements(stats inmem.Stats, prefix string) int {
	var n int
	for _, stmt := range stats.Statements {
		if strings.HasPrefix(stmt, prefix) {
			n++
		}
	}
	return n
}

func TestNewStore(t *testing.T) {
	_, err := fragment.NewStore(nil, config.DefaultStorage())
	require.True(t, errors.Is(err, errors.ErrNullParameter))

	cfg := config.DefaultStorage()
	cfg.InsertBatchRows = 0
	_, err = fragment.NewStore(inmem.New(), cfg)
	require.True(t, errors.Is(err, errors.ErrDataError))
}

func TestStore_CreateDrop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	f := h.fragment(t, cubestore.FragmentName(1, 1, 0, 1), 1, 10)
	require.Equal(t, []string{"fact_c1_d1_r0_1"}, h.adapter.Tables(h.db.Name))

	// Creating the same table twice is a server error.
	err := h.CreateFragment(ctx, f)
	require.True(t, errors.Is(err, errors.ErrServerError))

	require.NoError(t, h.DropFragment(ctx, f))
	require.Empty(t, h.adapter.Tables(h.db.Name))

	// Creating and dropping databases is idempotent.
	require.NoError(t, h.CreateDatabase(ctx, h.db))
	require.NoError(t, h.DropDatabase(ctx, h.db))
	require.NoError(t, h.DropDatabase(ctx, h.db))
	require.Equal(t, 1, countStatements(h.adapter.Stats(), "ATTACH DATABASE"))
	require.Equal(t, 1, countStatements(h.adapter.Stats(), "DETACH DATABASE"))
	err = h.CreateFragment(ctx, f)
	require.True(t, errors.Is(err, errors.ErrServerError))
	require.Equal(t, 0, h.adapter.Stats().Open())
}

func TestStore_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	before := h.adapter.Stats().Executions

	require.True(t, errors.Is(h.CreateFragment(ctx, nil), errors.ErrNullParameter))
	require.True(t, errors.Is(h.CreateFragment(ctx, &cubestore.Fragment{Name: "f"}), errors.ErrNullParameter))
	require.True(t, errors.Is(h.CreateDatabase(ctx, nil), errors.ErrNullParameter))
	require.True(t, errors.Is(h.CreateDatabase(ctx, &cubestore.DBInstance{Name: "x"}), errors.ErrNullParameter))

	bad := &cubestore.Fragment{Name: "f; DROP DATABASE x", DB: h.db}
	require.True(t, errors.Is(h.CreateFragment(ctx, bad), errors.ErrDataError))

	// No statement reached the server.
	require.Equal(t, before, h.adapter.Stats().Executions)
}

func TestStore_Reconnect(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.Equal(t, 1, h.adapter.Stats().Connects)

	h.fragment(t, "a", 1, 1)
	require.Equal(t, 1, h.adapter.Stats().Connects)

	h.adapter.DropConnections()
	h.fragment(t, "b", 1, 1)
	require.Equal(t, 2, h.adapter.Stats().Connects)

	h.adapter.DropConnections()
	h.adapter.Refuse(true)
	err := h.CreateFragment(ctx, &cubestore.Fragment{Name: "c", DB: h.db})
	require.True(t, errors.Is(err, errors.ErrServerError))
	require.Nil(t, h.db.DBMS.Conn)
	h.adapter.Refuse(false)

	h.fragment(t, "c", 1, 1)
	require.NoError(t, h.Disconnect(h.db.DBMS))
	require.Nil(t, h.db.DBMS.Conn)
}

func TestStore_ServerErrorReleases(t *testing.T) {
	h := newHarness(t)
	h.adapter.FailOn("CREATE TABLE")
	err := h.CreateFragment(context.Background(), &cubestore.Fragment{Name: "f", DB: h.db})
	require.True(t, errors.Is(err, errors.ErrServerError))
	require.Equal(t, 0, h.adapter.Stats().Open())
}
