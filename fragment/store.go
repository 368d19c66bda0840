// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package fragment manages fragment tables on relational IO servers: the
// databases holding them, their creation and removal, batched inserts,
// streaming appends, derived fragments and read-back. It is the only package
// which renders statements for a backend.
package fragment

import (
	"context"
	"strings"
	"time"

	"github.com/featurebasedb/cubestore"
	"github.com/featurebasedb/cubestore/backend"
	"github.com/featurebasedb/cubestore/config"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/featurebasedb/cubestore/logger"
	"github.com/featurebasedb/cubestore/tracing"
)

// Store executes fragment operations through a backend adapter.
type Store struct {
	adapter backend.Adapter
	dialect backend.Dialect
	cfg     config.Storage

	// ConnectTimeout bounds connection attempts. Zero means no limit.
	ConnectTimeout time.Duration

	Logger logger.Logger
}

// NewStore returns a store using adapter for every DBMS instance and the
// statement limits of cfg.
func NewStore(adapter backend.Adapter, cfg config.Storage) (*Store, error) {
	if adapter == nil {
		return nil, errors.NewErrNullParameter("adapter")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		adapter: adapter,
		dialect: adapter.Dialect(),
		cfg:     cfg,
		Logger:  logger.NopLogger,
	}, nil
}

// Config returns the storage limits of the store.
func (s *Store) Config() config.Storage { return s.cfg }

// Dialect returns the statement dialect of the store's backend.
func (s *Store) Dialect() backend.Dialect { return s.dialect }

// Connect makes sure dbms holds a live connection, establishing a new one
// when it has none or the current one no longer answers.
func (s *Store) Connect(ctx context.Context, dbms *cubestore.DBMSInstance) (backend.Conn, error) {
	if dbms == nil {
		return nil, errors.NewErrNullParameter("dbms")
	}
	if dbms.Conn != nil {
		if err := dbms.Conn.Ping(ctx); err == nil {
			return dbms.Conn, nil
		}
		s.Logger.Debugf("connection to %s dropped, reconnecting", dbms)
		dbms.Conn.Close()
		dbms.Conn = nil
	}
	params := backend.ConnParams{
		Host:     dbms.Host,
		Port:     dbms.Port,
		User:     dbms.User,
		Password: dbms.Password,
		Timeout:  s.ConnectTimeout,
	}
	if s.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.ConnectTimeout)
		defer cancel()
	}
	conn, err := s.adapter.Connect(ctx, params)
	if err != nil {
		return nil, errors.NewErrServerError("connecting to "+dbms.String(), err)
	}
	CounterReconnects.Inc()
	dbms.Conn = conn
	return conn, nil
}

// Disconnect closes the connection held by dbms, if any.
func (s *Store) Disconnect(dbms *cubestore.DBMSInstance) error {
	if dbms == nil {
		return errors.NewErrNullParameter("dbms")
	}
	if dbms.Conn == nil {
		return nil
	}
	err := dbms.Conn.Close()
	dbms.Conn = nil
	if err != nil {
		return errors.NewErrServerError("closing connection to "+dbms.String(), err)
	}
	return nil
}

// checkStatement rejects statements longer than the configured maximum.
func (s *Store) checkStatement(stmt string) error {
	if len(stmt) > s.cfg.MaxStatementSize {
		return errors.WithCode(errors.NewErrBufferOverflow("statement", len(stmt), s.cfg.MaxStatementSize),
			errors.ErrServerError, "rendering statement")
	}
	return nil
}

// exec runs one statement on conn, releasing it before returning.
func (s *Store) exec(ctx context.Context, conn backend.Conn, op, stmt string, args ...*backend.Arg) error {
	if err := s.checkStatement(stmt); err != nil {
		return err
	}
	q, err := conn.SetupQuery(ctx, stmt, 1, args)
	if err != nil {
		return errors.NewErrServerError(op, err)
	}
	defer q.Close()
	CounterStatements.WithLabelValues(op).Inc()
	if err := conn.ExecuteQuery(ctx, q); err != nil {
		return errors.NewErrServerError(op, err)
	}
	return nil
}

// query runs one statement returning rows and hands back its result.
func (s *Store) query(ctx context.Context, conn backend.Conn, op, stmt string, args ...*backend.Arg) (backend.Result, error) {
	if err := s.exec(ctx, conn, op, stmt, args...); err != nil {
		return nil, err
	}
	res, err := conn.Result(ctx)
	if err != nil {
		return nil, errors.NewErrServerError(op, err)
	}
	return res, nil
}

// execOn connects to dbms and runs stmt.
func (s *Store) execOn(ctx context.Context, dbms *cubestore.DBMSInstance, op, stmt string, args ...*backend.Arg) error {
	conn, err := s.Connect(ctx, dbms)
	if err != nil {
		return err
	}
	return s.exec(ctx, conn, op, stmt, args...)
}

func checkName(what, name string) error {
	if name == "" {
		return errors.NewErrNullParameter(what)
	}
	if strings.IndexFunc(name, func(r rune) bool {
		return !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	}) >= 0 {
		return errors.NewErrDataError("invalid %s '%s'", what, name)
	}
	return nil
}

func checkDB(db *cubestore.DBInstance) error {
	if db == nil {
		return errors.NewErrNullParameter("db")
	}
	if db.DBMS == nil {
		return errors.NewErrNullParameter("dbms")
	}
	return checkName("database name", db.Name)
}

func checkFragment(frag *cubestore.Fragment) error {
	if err := frag.Validate(); err != nil {
		return err
	}
	if err := checkName("fragment name", frag.Name); err != nil {
		return err
	}
	return checkName("database name", frag.DB.Name)
}

// databaseExists reports whether db is present on servers which need the
// check. Other servers always report false.
func (s *Store) databaseExists(ctx context.Context, db *cubestore.DBInstance) (bool, error) {
	if s.dialect.DatabaseExists == "" {
		return false, nil
	}
	conn, err := s.Connect(ctx, db.DBMS)
	if err != nil {
		return false, err
	}
	res, err := s.query(ctx, conn, "database_exists", s.dialect.DatabaseExists, backend.NewStringArg(db.Name))
	if err != nil {
		return false, err
	}
	defer res.Close()
	return res.NumRows() > 0, nil
}

// CreateDatabase creates db on its DBMS instance if it does not exist.
func (s *Store) CreateDatabase(ctx context.Context, db *cubestore.DBInstance) error {
	if err := checkDB(db); err != nil {
		return err
	}
	span, ctx := tracing.StartSpanFromContext(ctx, "Store.CreateDatabase")
	defer span.Finish()
	if ok, err := s.databaseExists(ctx, db); err != nil {
		return err
	} else if ok {
		return nil
	}
	return s.execOn(ctx, db.DBMS, "create_database", sprintf(s.dialect.CreateDatabase, db.Name))
}

// DropDatabase removes db and every fragment in it. Dropping a missing
// database is not an error.
func (s *Store) DropDatabase(ctx context.Context, db *cubestore.DBInstance) error {
	if err := checkDB(db); err != nil {
		return err
	}
	span, ctx := tracing.StartSpanFromContext(ctx, "Store.DropDatabase")
	defer span.Finish()
	if s.dialect.DatabaseExists != "" {
		if ok, err := s.databaseExists(ctx, db); err != nil || !ok {
			return err
		}
	}
	return s.execOn(ctx, db.DBMS, "drop_database", sprintf(s.dialect.DropDatabase, db.Name))
}

// CreateFragment creates the empty table of frag.
func (s *Store) CreateFragment(ctx context.Context, frag *cubestore.Fragment) error {
	if err := checkFragment(frag); err != nil {
		return err
	}
	span, ctx := tracing.StartSpanFromContext(ctx, "Store.CreateFragment")
	defer span.Finish()
	return s.execOn(ctx, frag.DB.DBMS, "create_fragment", s.createTableStatement(frag.QualifiedName()))
}

// DropFragment removes the table of frag.
func (s *Store) DropFragment(ctx context.Context, frag *cubestore.Fragment) error {
	if err := checkFragment(frag); err != nil {
		return err
	}
	span, ctx := tracing.StartSpanFromContext(ctx, "Store.DropFragment")
	defer span.Finish()
	return s.execOn(ctx, frag.DB.DBMS, "drop_fragment", sprintf(dropTable, frag.QualifiedName()))
}
