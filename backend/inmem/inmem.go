// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package inmem is an in-process backend for tests and single-binary runs.
// Statements are executed by the embedded SQLite engine of package sqldb;
// this package adds counters and the means to fail connections and
// statements on demand.
package inmem

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/featurebasedb/cubestore/backend"
	"github.com/featurebasedb/cubestore/backend/sqldb"
	"github.com/featurebasedb/cubestore/errors"
)

func init() {
	backend.Register("inmem", New())
}

// Stats counts adapter activity. Tests use it to check that prepared
// statements are created and released the expected number of times.
type Stats struct {
	Connects   int
	Prepared   int
	Released   int
	Executions int
	Statements []string
}

// Open returns the number of prepared statements not yet released.
func (s Stats) Open() int { return s.Prepared - s.Released }

// Adapter is a backend.Adapter over a private embedded engine. Every
// connection made through one Adapter sees the same databases.
type Adapter struct {
	engine *sqldb.Adapter

	mu         sync.Mutex
	stats      Stats
	generation int
	failOn     string
	refuse     bool
}

// New returns an empty in-memory server.
func New() *Adapter {
	return &Adapter{engine: sqldb.NewSQLite()}
}

func (a *Adapter) Dialect() backend.Dialect { return a.engine.Dialect() }

// Close discards every database of the adapter.
func (a *Adapter) Close() error { return a.engine.Close() }

// Stats returns a snapshot of the adapter's counters.
func (a *Adapter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.stats
	s.Statements = append([]string(nil), a.stats.Statements...)
	return s
}

// DropConnections invalidates every open connection, as a server restart
// would. Subsequent pings on those connections fail.
func (a *Adapter) DropConnections() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generation++
}

// FailOn makes every statement containing substr fail. An empty substr
// clears the failure.
func (a *Adapter) FailOn(substr string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failOn = substr
}

// Refuse makes new connection attempts fail.
func (a *Adapter) Refuse(refuse bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refuse = refuse
}

// fetch runs stmt on a connection of the engine which bypasses counters and
// injected failures.
func (a *Adapter) fetch(stmt string, args ...*backend.Arg) ([][][]byte, error) {
	ctx := context.Background()
	conn, err := a.engine.Connect(ctx, backend.ConnParams{})
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	q, err := conn.SetupQuery(ctx, stmt, 1, args)
	if err != nil {
		return nil, err
	}
	defer q.Close()
	if err := conn.ExecuteQuery(ctx, q); err != nil {
		return nil, err
	}
	res, err := conn.Result(ctx)
	if err != nil {
		return nil, err
	}
	defer res.Close()
	var rows [][][]byte
	for {
		row, err := res.FetchRow()
		if err == io.EOF {
			return rows, nil
		} else if err != nil {
			return nil, err
		}
		rows = append(rows, row.Values)
	}
}

// Rows returns the keys and measures of a table, in storage order.
func (a *Adapter) Rows(db, name string) ([]uint64, [][]byte, error) {
	rows, err := a.fetch(fmt.Sprintf("SELECT * FROM %s.%s ORDER BY rowid", db, name))
	if err != nil {
		return nil, nil, err
	}
	ids := make([]uint64, len(rows))
	measures := make([][]byte, len(rows))
	for i, row := range rows {
		if len(row) != 2 {
			return nil, nil, errors.Newf(errors.ErrServerError, "table %s.%s has %d columns", db, name, len(row))
		}
		if ids[i], err = strconv.ParseUint(string(row[0]), 10, 64); err != nil {
			return nil, nil, errors.Wrapf(err, "key of row %d", i)
		}
		measures[i] = row[1]
	}
	return ids, measures, nil
}

// Tables lists the tables of db.
func (a *Adapter) Tables(db string) []string {
	rows, err := a.fetch(fmt.Sprintf("SELECT name FROM %s.sqlite_master WHERE type = 'table' ORDER BY name", db))
	if err != nil {
		return nil
	}
	names := make([]string, len(rows))
	for i, row := range rows {
		names[i] = string(row[0])
	}
	return names
}

func (a *Adapter) Connect(ctx context.Context, params backend.ConnParams) (backend.Conn, error) {
	a.mu.Lock()
	if a.refuse {
		a.mu.Unlock()
		return nil, errors.NewErrServerError("connecting to "+params.String(), errors.New(errors.ErrServerError, "connection refused"))
	}
	a.stats.Connects++
	gen := a.generation
	a.mu.Unlock()
	inner, err := a.engine.Connect(ctx, params)
	if err != nil {
		return nil, err
	}
	return &conn{Conn: inner, adapter: a, gen: gen}, nil
}

type conn struct {
	backend.Conn
	adapter *Adapter
	gen     int
	closed  bool
}

type query struct {
	backend.Query
	conn   *conn
	closed bool
}

func (q *query) Close() error {
	if q.closed {
		return nil
	}
	q.closed = true
	a := q.conn.adapter
	a.mu.Lock()
	a.stats.Released++
	a.mu.Unlock()
	return q.Query.Close()
}

// alive is called with the adapter lock held.
func (c *conn) alive() error {
	if c.closed {
		return errors.New(errors.ErrServerError, "connection is closed")
	}
	if c.gen != c.adapter.generation {
		return errors.New(errors.ErrServerError, "server has gone away")
	}
	return nil
}

func (c *conn) Ping(ctx context.Context) error {
	c.adapter.mu.Lock()
	err := c.alive()
	c.adapter.mu.Unlock()
	if err != nil {
		return err
	}
	return c.Conn.Ping(ctx)
}

func (c *conn) SetupQuery(ctx context.Context, stmt string, batch int, args []*backend.Arg) (backend.Query, error) {
	c.adapter.mu.Lock()
	err := c.alive()
	c.adapter.mu.Unlock()
	if err != nil {
		return nil, err
	}
	q, err := c.Conn.SetupQuery(ctx, stmt, batch, args)
	if err != nil {
		return nil, err
	}
	c.adapter.mu.Lock()
	c.adapter.stats.Prepared++
	c.adapter.mu.Unlock()
	return &query{Query: q, conn: c}, nil
}

func (c *conn) ExecuteQuery(ctx context.Context, q backend.Query) error {
	iq, ok := q.(*query)
	if !ok || iq.conn != c {
		return errors.New(errors.ErrServerError, "query was not prepared on this connection")
	}
	if iq.closed {
		return errors.New(errors.ErrServerError, "query is closed")
	}
	a := c.adapter
	a.mu.Lock()
	if err := c.alive(); err != nil {
		a.mu.Unlock()
		return err
	}
	stmt := iq.Statement()
	a.stats.Executions++
	a.stats.Statements = append(a.stats.Statements, stmt)
	failOn := a.failOn
	a.mu.Unlock()
	if failOn != "" && strings.Contains(stmt, failOn) {
		return errors.Newf(errors.ErrServerError, "injected failure executing '%s'", truncate(stmt, 60))
	}
	return c.Conn.ExecuteQuery(ctx, iq.Query)
}

func (c *conn) Close() error {
	c.adapter.mu.Lock()
	c.closed = true
	c.adapter.mu.Unlock()
	return c.Conn.Close()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
