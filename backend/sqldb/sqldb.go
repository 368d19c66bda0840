// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package sqldb implements the backend contract over database/sql for MySQL
// (and MariaDB) and PostgreSQL IO servers, and for an embedded SQLite engine.
// Fragment measures are stored as LONGBLOB, BYTEA or BLOB columns. The array
// functions used by the fragment store are expected to be installed on the
// servers as user defined functions; the embedded engine registers them
// itself.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/featurebasedb/cubestore/backend"
	"github.com/featurebasedb/cubestore/errors"
)

func init() {
	backend.Register("mysql", NewMySQL())
	backend.Register("postgres", NewPostgres())
	backend.Register("sqlite", NewSQLite())
}

// Adapter opens database/sql connections with one driver.
type Adapter struct {
	driver  string
	dialect backend.Dialect

	// The embedded engine keeps its databases in a single connection, which
	// every Conn of the adapter shares under mu.
	mu     sync.Mutex
	db     *sql.DB
	shared *sql.Conn
}

func NewMySQL() *Adapter    { return &Adapter{driver: "mysql", dialect: backend.MySQLDialect} }
func NewPostgres() *Adapter { return &Adapter{driver: "postgres", dialect: backend.PostgresDialect} }

// NewSQLite returns an adapter over an embedded SQLite engine held in process
// memory. Databases are attached in-memory databases and live until the
// adapter is closed.
func NewSQLite() *Adapter { return &Adapter{driver: "sqlite", dialect: backend.SQLiteDialect} }

func (a *Adapter) embedded() bool { return a.driver == "sqlite" }

func (a *Adapter) Dialect() backend.Dialect { return a.dialect }

// DSN renders the driver specific data source name for params.
func (a *Adapter) DSN(params backend.ConnParams) string {
	if a.driver == "mysql" {
		cfg := mysql.NewConfig()
		cfg.User = params.User
		cfg.Passwd = params.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(params.Host, strconv.Itoa(params.Port))
		cfg.DBName = params.Database
		cfg.Timeout = params.Timeout
		cfg.AllowNativePasswords = true
		cfg.InterpolateParams = false
		return cfg.FormatDSN()
	}
	parts := []string{
		"host=" + quoteDSN(params.Host),
		"port=" + strconv.Itoa(params.Port),
		"user=" + quoteDSN(params.User),
		"sslmode=disable",
	}
	if params.Password != "" {
		parts = append(parts, "password="+quoteDSN(params.Password))
	}
	if params.Timeout > 0 {
		parts = append(parts, "connect_timeout="+strconv.Itoa(int(params.Timeout/time.Second)))
	}
	return strings.Join(parts, " ")
}

func quoteDSN(s string) string {
	if s != "" && !strings.ContainsAny(s, " '\\") {
		return s
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s) + "'"
}

func (a *Adapter) Connect(ctx context.Context, params backend.ConnParams) (backend.Conn, error) {
	if a.embedded() {
		return a.connectShared(ctx, params)
	}
	op := fmt.Sprintf("connecting to %s server %s", a.driver, params)
	db, err := sql.Open(a.driver, a.DSN(params))
	if err != nil {
		return nil, errors.NewErrServerError(op, err)
	}
	db.SetMaxOpenConns(1)
	c, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, errors.NewErrServerError(op, err)
	}
	conn := &Conn{adapter: a, db: db, conn: c}
	if params.Database != "" && a.driver != "mysql" {
		if err := conn.UseDB(ctx, params.Database); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// connectShared hands out a Conn on the embedded engine's connection,
// opening it on first use.
func (a *Adapter) connectShared(ctx context.Context, params backend.ConnParams) (backend.Conn, error) {
	a.mu.Lock()
	if a.shared == nil {
		db, err := sql.Open(a.driver, ":memory:")
		if err != nil {
			a.mu.Unlock()
			return nil, errors.NewErrServerError("opening embedded engine", err)
		}
		db.SetMaxOpenConns(1)
		c, err := db.Conn(ctx)
		if err != nil {
			a.mu.Unlock()
			db.Close()
			return nil, errors.NewErrServerError("opening embedded engine", err)
		}
		a.db, a.shared = db, c
	}
	conn := &Conn{adapter: a, conn: a.shared}
	a.mu.Unlock()
	if params.Database != "" {
		if err := conn.UseDB(ctx, params.Database); err != nil {
			return nil, err
		}
	}
	return conn, nil
}

// Close releases the embedded engine and every database it holds. It is a
// no-op for network servers, whose connections are closed one by one.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.shared == nil {
		return nil
	}
	err := a.shared.Close()
	if dberr := a.db.Close(); err == nil {
		err = dberr
	}
	a.db, a.shared = nil, nil
	return err
}

// Conn pins one connection of a *sql.DB so that session state such as the
// selected database survives between statements.
type Conn struct {
	adapter *Adapter
	db      *sql.DB
	conn    *sql.Conn
	last    *backend.BufferedResult
}

// lock serializes statements on the embedded engine's shared connection.
func (c *Conn) lock() func() {
	if !c.adapter.embedded() {
		return func() {}
	}
	c.adapter.mu.Lock()
	return c.adapter.mu.Unlock
}

type query struct {
	conn  *Conn
	text  string
	stmt  *sql.Stmt
	args  []*backend.Arg
	batch int
	rows  bool
}

func (q *query) Statement() string { return q.text }

func (q *query) Close() error {
	if q.stmt == nil {
		return nil
	}
	defer q.conn.lock()()
	err := q.stmt.Close()
	q.stmt = nil
	return err
}

func (c *Conn) Ping(ctx context.Context) error {
	if c.conn == nil {
		return errors.New(errors.ErrServerError, "connection is closed")
	}
	defer c.lock()()
	if err := c.conn.PingContext(ctx); err != nil {
		return errors.NewErrServerError("pinging server", err)
	}
	return nil
}

func (c *Conn) UseDB(ctx context.Context, name string) error {
	if c.conn == nil {
		return errors.New(errors.ErrServerError, "connection is closed")
	}
	if c.adapter.embedded() {
		// Attached databases are always visible; statements qualify their
		// tables, so only the database's presence is checked.
		defer c.lock()()
		var found string
		err := c.conn.QueryRowContext(ctx, c.adapter.dialect.DatabaseExists, name).Scan(&found)
		if err == sql.ErrNoRows {
			return errors.Newf(errors.ErrServerError, "unknown database '%s'", name)
		} else if err != nil {
			return errors.NewErrServerError("selecting database "+name, err)
		}
		return nil
	}
	stmt := "USE " + name
	if c.adapter.driver == "postgres" {
		stmt = "SET search_path TO " + name
	}
	_, err := c.conn.ExecContext(ctx, stmt)
	if err != nil {
		return errors.NewErrServerError("selecting database "+name, err)
	}
	return nil
}

// returnsRows reports whether stmt produces a result set.
func returnsRows(stmt string) bool {
	f := strings.Fields(stmt)
	if len(f) == 0 {
		return false
	}
	switch strings.ToUpper(f[0]) {
	case "SELECT", "SHOW", "DESCRIBE", "EXPLAIN", "WITH", "PRAGMA", "VALUES":
		return true
	}
	return false
}

// Rebind rewrites '?' placeholders outside string literals as $1, $2, ...
func Rebind(stmt string) string {
	text, _ := rebind(stmt, true)
	return text
}

// Placeholders counts the '?' placeholders outside string literals.
func Placeholders(stmt string) int {
	_, n := rebind(stmt, false)
	return n
}

func rebind(stmt string, number bool) (string, int) {
	var sb strings.Builder
	n := 0
	quoted := false
	for _, r := range stmt {
		switch {
		case r == '\'':
			quoted = !quoted
		case r == '?' && !quoted:
			n++
			if number {
				sb.WriteString("$" + strconv.Itoa(n))
				continue
			}
		}
		if number {
			sb.WriteRune(r)
		}
	}
	return sb.String(), n
}

func (c *Conn) SetupQuery(ctx context.Context, stmt string, batch int, args []*backend.Arg) (backend.Query, error) {
	if c.conn == nil {
		return nil, errors.New(errors.ErrServerError, "connection is closed")
	}
	if n := Placeholders(stmt); n != len(args) {
		return nil, errors.Newf(errors.ErrServerError, "statement has %d parameters, %d bound", n, len(args))
	}
	text := stmt
	if c.adapter.driver == "postgres" {
		text = Rebind(stmt)
	}
	defer c.lock()()
	s, err := c.conn.PrepareContext(ctx, text)
	if err != nil {
		return nil, errors.NewErrServerError("preparing statement", err)
	}
	return &query{conn: c, text: stmt, stmt: s, args: args, batch: batch, rows: returnsRows(stmt)}, nil
}

func (c *Conn) ExecuteQuery(ctx context.Context, q backend.Query) error {
	sq, ok := q.(*query)
	if !ok || sq.conn != c || sq.stmt == nil {
		return errors.New(errors.ErrServerError, "query was not prepared on this connection")
	}
	defer c.lock()()
	c.last = nil
	vals := backend.Values(sq.args)
	if !sq.rows {
		if _, err := sq.stmt.ExecContext(ctx, vals...); err != nil {
			return errors.NewErrServerError("executing statement", err)
		}
		return nil
	}
	rows, err := sq.stmt.QueryContext(ctx, vals...)
	if err != nil {
		return errors.NewErrServerError("executing query", err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return errors.NewErrServerError("reading columns", err)
	}
	var out [][][]byte
	for rows.Next() {
		row := make([][]byte, len(cols))
		dest := make([]interface{}, len(cols))
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return errors.NewErrServerError("scanning row", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return errors.NewErrServerError("fetching rows", err)
	}
	c.last = backend.NewBufferedResult(len(cols), out)
	return nil
}

func (c *Conn) Result(ctx context.Context) (backend.Result, error) {
	if c.last == nil {
		return nil, errors.New(errors.ErrServerError, "statement returned no result set")
	}
	res := c.last
	c.last = nil
	return res, nil
}

func (c *Conn) Close() error {
	if c.conn == nil {
		return nil
	}
	c.last = nil
	if c.adapter.embedded() {
		// The shared connection outlives its Conns.
		c.conn = nil
		return nil
	}
	err := c.conn.Close()
	if dberr := c.db.Close(); err == nil {
		err = dberr
	}
	c.conn = nil
	return err
}
