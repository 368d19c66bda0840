// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package inmem_test

import (
	"context"
	"testing"

	"github.com/featurebasedb/cubestore/backend"
	"github.com/featurebasedb/cubestore/backend/inmem"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/stretchr/testify/require"
)

func exec(t *testing.T, conn backend.Conn, stmt string, args ...*backend.Arg) {
	t.Helper()
	ctx := context.Background()
	q, err := conn.SetupQuery(ctx, stmt, 1, args)
	require.NoError(t, err)
	defer q.Close()
	require.NoError(t, conn.ExecuteQuery(ctx, q))
}

func setup(t *testing.T) (*inmem.Adapter, backend.Conn) {
	t.Helper()
	a := inmem.New()
	t.Cleanup(func() { a.Close() })
	conn, err := a.Connect(context.Background(), backend.ConnParams{Host: "localhost"})
	require.NoError(t, err)
	exec(t, conn, "ATTACH DATABASE ':memory:' AS cube1_c1_ms1_0")
	exec(t, conn, "CREATE TABLE cube1_c1_ms1_0.fact (id_dim BIGINT NOT NULL PRIMARY KEY, measure BLOB)")
	return a, conn
}

func TestRowsAndTables(t *testing.T) {
	a, conn := setup(t)
	require.Equal(t, backend.SQLiteDialect, a.Dialect())

	id, m := backend.NewUintArg(0), backend.NewBlobArg(4)
	q, err := conn.SetupQuery(context.Background(), "INSERT INTO cube1_c1_ms1_0.fact (id_dim, measure) VALUES (?, ?)", 1, []*backend.Arg{id, m})
	require.NoError(t, err)
	for _, k := range []uint64{3, 1, 2} {
		id.Uint = k
		require.True(t, m.SetBlob([]byte{byte(k)}))
		require.NoError(t, conn.ExecuteQuery(context.Background(), q))
	}
	require.NoError(t, q.Close())

	ids, measures, err := a.Rows("cube1_c1_ms1_0", "fact")
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 1, 2}, ids)
	require.Equal(t, [][]byte{{3}, {1}, {2}}, measures)

	_, _, err = a.Rows("cube1_c1_ms1_0", "missing")
	require.Error(t, err)
	require.Equal(t, []string{"fact"}, a.Tables("cube1_c1_ms1_0"))
	require.Nil(t, a.Tables("nowhere"))

	stats := a.Stats()
	require.Equal(t, 1, stats.Connects)
	require.Equal(t, 3, stats.Prepared)
	require.Equal(t, 0, stats.Open())
	require.Equal(t, 5, stats.Executions)
	require.Equal(t, "ATTACH DATABASE ':memory:' AS cube1_c1_ms1_0", stats.Statements[0])
}

func TestSharedDatabases(t *testing.T) {
	a, conn := setup(t)
	ctx := context.Background()
	require.NoError(t, conn.Close())

	// Databases outlive the connection which created them.
	other, err := a.Connect(ctx, backend.ConnParams{Database: "cube1_c1_ms1_0"})
	require.NoError(t, err)
	exec(t, other, "INSERT INTO cube1_c1_ms1_0.fact (id_dim, measure) VALUES (1, x'00')")
	ids, _, err := a.Rows("cube1_c1_ms1_0", "fact")
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, ids)

	// Adapters do not share databases.
	b := inmem.New()
	defer b.Close()
	_, err = b.Connect(ctx, backend.ConnParams{Database: "cube1_c1_ms1_0"})
	require.True(t, errors.Is(err, errors.ErrServerError))
}

func TestConnectionFailures(t *testing.T) {
	a, conn := setup(t)
	ctx := context.Background()
	require.NoError(t, conn.Ping(ctx))

	a.DropConnections()
	require.True(t, errors.Is(conn.Ping(ctx), errors.ErrServerError))
	_, err := conn.SetupQuery(ctx, "SELECT 1", 1, nil)
	require.True(t, errors.Is(err, errors.ErrServerError))

	a.Refuse(true)
	_, err = a.Connect(ctx, backend.ConnParams{})
	require.True(t, errors.Is(err, errors.ErrServerError))
	a.Refuse(false)

	conn, err = a.Connect(ctx, backend.ConnParams{Database: "cube1_c1_ms1_0"})
	require.NoError(t, err)
	a.FailOn("DROP TABLE")
	q, err := conn.SetupQuery(ctx, "DROP TABLE cube1_c1_ms1_0.fact", 1, nil)
	require.NoError(t, err)
	require.True(t, errors.Is(conn.ExecuteQuery(ctx, q), errors.ErrServerError))
	require.NoError(t, q.Close())
	require.Equal(t, []string{"fact"}, a.Tables("cube1_c1_ms1_0"))
	a.FailOn("")

	// Closed queries and foreign queries are rejected.
	require.True(t, errors.Is(conn.ExecuteQuery(ctx, q), errors.ErrServerError))
	other, err := a.Connect(ctx, backend.ConnParams{})
	require.NoError(t, err)
	q, err = other.SetupQuery(ctx, "SELECT 1", 1, nil)
	require.NoError(t, err)
	defer q.Close()
	require.True(t, errors.Is(conn.ExecuteQuery(ctx, q), errors.ErrServerError))

	require.NoError(t, conn.Close())
	require.True(t, errors.Is(conn.Ping(ctx), errors.ErrServerError))
}

func TestRegistered(t *testing.T) {
	a, err := backend.DefaultRegistry.Adapter("inmem")
	require.NoError(t, err)
	require.Equal(t, "sqlite", a.Dialect().Name)
}
