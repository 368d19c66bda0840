// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package backend defines the contract between the fragment store and the
// relational servers that hold fragment tables. Adapters own connections,
// prepared statements and result sets; the fragment store only renders
// statements and binds arguments.
package backend

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/featurebasedb/cubestore/errors"
)

// ConnParams describe how to reach one DBMS instance.
type ConnParams struct {
	Host     string
	Port     int
	User     string
	Password string
	// Database is selected at connect time when not empty.
	Database string
	Timeout  time.Duration
}

func (p ConnParams) String() string {
	return fmt.Sprintf("%s@%s:%d", p.User, p.Host, p.Port)
}

// Adapter opens connections to one kind of DBMS.
type Adapter interface {
	Connect(ctx context.Context, params ConnParams) (Conn, error)
	Dialect() Dialect
}

// Dialect holds the statement pieces which differ between servers.
// Placeholders are always written as '?'; adapters rebind them as needed.
type Dialect struct {
	Name     string
	BlobType string
	// CreateDatabase and DropDatabase take the database name.
	CreateDatabase string
	DropDatabase   string
	// DatabaseExists, when set, returns a row for the database named by its
	// argument. Servers whose CreateDatabase and DropDatabase are not
	// idempotent set it.
	DatabaseExists string
	// TableSize returns one row and one field holding the size in bytes of
	// the table identified by its two arguments: database and table name.
	TableSize string
	// Div and Mod take an integer expression and a positive integer
	// divisor. Div truncates.
	Div string
	Mod string
}

// MySQLDialect is spoken by MySQL and MariaDB IO servers.
var MySQLDialect = Dialect{
	Name:           "mysql",
	BlobType:       "LONGBLOB",
	CreateDatabase: "CREATE DATABASE IF NOT EXISTS %s",
	DropDatabase:   "DROP DATABASE IF EXISTS %s",
	TableSize:      "SELECT (data_length + index_length) FROM information_schema.TABLES WHERE table_schema = ? AND table_name = ?",
	Div:            "(%s) DIV %d",
	Mod:            "(%s) MOD %d",
}

// PostgresDialect maps databases onto schemas.
var PostgresDialect = Dialect{
	Name:           "postgres",
	BlobType:       "BYTEA",
	CreateDatabase: "CREATE SCHEMA IF NOT EXISTS %s",
	DropDatabase:   "DROP SCHEMA IF EXISTS %s CASCADE",
	TableSize:      "SELECT pg_total_relation_size((quote_ident(?) || '.' || quote_ident(?))::regclass)",
	Div:            "DIV(%s, %d)",
	Mod:            "MOD(%s, %d)",
}

// SQLiteDialect maps databases onto in-memory databases attached to one
// embedded connection.
var SQLiteDialect = Dialect{
	Name:           "sqlite",
	BlobType:       "BLOB",
	CreateDatabase: "ATTACH DATABASE ':memory:' AS %s",
	DropDatabase:   "DETACH DATABASE %s",
	DatabaseExists: "SELECT name FROM pragma_database_list WHERE name = ?",
	TableSize:      "SELECT COALESCE(SUM(pgsize), 0) FROM dbstat WHERE schema = ? AND name = ?",
	Div:            "(%s) / %d",
	Mod:            "(%s) %% %d",
}

// Conn is a single connection. Conns are not safe for concurrent use: each
// DBMS instance is driven by one worker at a time.
type Conn interface {
	// Ping reports whether the connection is still usable.
	Ping(ctx context.Context) error

	// UseDB selects the default database for subsequent statements.
	UseDB(ctx context.Context, name string) error

	// SetupQuery prepares stmt for batch executions. args are bound by
	// position and read at every ExecuteQuery call, so callers update the
	// Arg values in place between executions.
	SetupQuery(ctx context.Context, stmt string, batch int, args []*Arg) (Query, error)

	// ExecuteQuery runs q with the current argument values. Statements
	// returning rows leave a result to be collected with Result.
	ExecuteQuery(ctx context.Context, q Query) error

	// Result returns the rows of the last executed statement.
	Result(ctx context.Context) (Result, error)

	Close() error
}

// Query is a prepared statement.
type Query interface {
	Statement() string
	Close() error
}

// Result is a fully buffered result set.
type Result interface {
	NumRows() int
	NumFields() int
	// MaxFieldLengths returns, per field, the largest value length in the
	// result.
	MaxFieldLengths() []int
	// FetchRow returns the next row or io.EOF.
	FetchRow() (*Row, error)
	Close() error
}

// Row is one fetched row. A nil value is SQL NULL.
type Row struct {
	Values  [][]byte
	Lengths []int
}

// ArgType is the wire type of a bound argument.
type ArgType int

const (
	ArgLongLong ArgType = iota + 1
	ArgBlob
	ArgString
)

func (t ArgType) String() string {
	switch t {
	case ArgLongLong:
		return "LONGLONG"
	case ArgBlob:
		return "BLOB"
	case ArgString:
		return "STRING"
	}
	return "UNKNOWN"
}

// Arg is a positional statement argument. Blob arguments keep their
// capacity across executions; Blob's length is the length of the current
// value. String arguments hold their text in Blob.
type Arg struct {
	Type   ArgType
	IsNull bool
	Uint   uint64
	Blob   []byte
}

// NewUintArg returns a LONGLONG argument.
func NewUintArg(v uint64) *Arg { return &Arg{Type: ArgLongLong, Uint: v} }

// NewStringArg returns a text argument. Servers compare it with text
// columns, which a BLOB argument would not match on every server.
func NewStringArg(s string) *Arg { return &Arg{Type: ArgString, Blob: []byte(s)} }

// NewBlobArg returns a BLOB argument with the given capacity.
func NewBlobArg(capacity int) *Arg {
	return &Arg{Type: ArgBlob, Blob: make([]byte, 0, capacity)}
}

// SetBlob copies b into the argument's buffer. It reports false, leaving
// the argument untouched, when b does not fit the current capacity.
func (a *Arg) SetBlob(b []byte) bool {
	if len(b) > cap(a.Blob) {
		return false
	}
	a.Blob = append(a.Blob[:0], b...)
	a.IsNull = false
	return true
}

// Value returns the Go value bound for the argument.
func (a *Arg) Value() interface{} {
	if a.IsNull {
		return nil
	}
	switch a.Type {
	case ArgLongLong:
		// Keys stay below 1<<63, which every driver binds as int64.
		return int64(a.Uint)
	case ArgString:
		return string(a.Blob)
	default:
		return a.Blob
	}
}

// Values returns the bound values of args in order.
func Values(args []*Arg) []interface{} {
	vals := make([]interface{}, len(args))
	for i, a := range args {
		vals[i] = a.Value()
	}
	return vals
}

// BufferedResult is a Result over rows held in memory. Adapters which fetch
// the whole result at once build one with NewBufferedResult.
type BufferedResult struct {
	fields int
	rows   [][][]byte
	next   int
	closed bool
}

// NewBufferedResult returns a result of the given rows, each of which must
// have fields values.
func NewBufferedResult(fields int, rows [][][]byte) *BufferedResult {
	return &BufferedResult{fields: fields, rows: rows}
}

func (r *BufferedResult) NumRows() int   { return len(r.rows) }
func (r *BufferedResult) NumFields() int { return r.fields }

func (r *BufferedResult) MaxFieldLengths() []int {
	max := make([]int, r.fields)
	for _, row := range r.rows {
		for i, v := range row {
			if len(v) > max[i] {
				max[i] = len(v)
			}
		}
	}
	return max
}

func (r *BufferedResult) FetchRow() (*Row, error) {
	if r.closed {
		return nil, errors.New(errors.ErrServerError, "result is closed")
	}
	if r.next >= len(r.rows) {
		return nil, io.EOF
	}
	vals := r.rows[r.next]
	r.next++
	row := &Row{Values: vals, Lengths: make([]int, len(vals))}
	for i, v := range vals {
		row.Lengths[i] = len(v)
	}
	return row, nil
}

func (r *BufferedResult) Close() error {
	r.closed = true
	r.rows = nil
	return nil
}

// Registry maps driver names to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// DefaultRegistry is populated by the adapter packages' init functions.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under name, replacing any previous one.
func (r *Registry) Register(name string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = a
}

// Adapter returns the adapter registered under name.
func (r *Registry) Adapter(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, errors.NewErrDataError("unknown backend driver '%s' (have %v)", name, r.names())
	}
	return a, nil
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds an adapter to DefaultRegistry.
func Register(name string, a Adapter) { DefaultRegistry.Register(name, a) }
