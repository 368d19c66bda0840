// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package fragment

import (
	"context"
	"encoding/binary"
	"io"
	"strconv"
	"strings"

	"github.com/cespare/xxhash"
	"github.com/featurebasedb/cubestore"
	"github.com/featurebasedb/cubestore/backend"
	"github.com/featurebasedb/cubestore/codec"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/featurebasedb/cubestore/tracing"
)

// ReadRequest selects the rows and the form of the measures returned by
// ReadFragmentData.
type ReadRequest struct {
	Type       codec.Type
	Compressed bool

	// IDClause restricts the rows by key: "3", "1:10" or "1:4,9".
	IDClause string

	// ArrayClause extracts elements of each measure, 1-based: "2", "1:3,7".
	ArrayClause string

	// Where is an additional filter on the source rows.
	Where string

	// Limit caps the number of rows when positive.
	Limit int

	// Raw returns measures as binary blobs instead of their text dump.
	Raw bool
}

// readStatement renders the SELECT of r over table.
func (s *Store) readStatement(table string, r ReadRequest) (string, error) {
	m := s.measureExpr(r.Compressed)
	if r.ArrayClause != "" {
		if err := checkArrayClause(r.ArrayClause); err != nil {
			return "", err
		}
		m = sprintf(subarray, r.Type, m, r.ArrayClause)
	}
	if !r.Raw {
		m = sprintf(dump, r.Type, m)
	}

	var conds []string
	if r.IDClause != "" {
		cond, err := s.idFilter(r.IDClause)
		if err != nil {
			return "", err
		}
		conds = append(conds, cond)
	}
	if r.Where != "" {
		conds = append(conds, "("+r.Where+")")
	}

	var b strings.Builder
	b.WriteString(sprintf(selectData, s.cfg.IDColumn, m, table))
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY " + s.cfg.IDColumn)
	if r.Limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(r.Limit))
	}
	return b.String(), nil
}

// ReadFragmentData returns the rows of frag selected by r as (id, measure)
// pairs. The caller closes the result.
func (s *Store) ReadFragmentData(ctx context.Context, frag *cubestore.Fragment, r ReadRequest) (backend.Result, error) {
	if err := checkFragment(frag); err != nil {
		return nil, err
	}
	if err := checkType(r.Type); err != nil {
		return nil, err
	}
	if r.Limit < 0 {
		return nil, errors.NewErrNullParameter("limit")
	}
	stmt, err := s.readStatement(frag.QualifiedName(), r)
	if err != nil {
		return nil, err
	}
	span, ctx := tracing.StartSpanFromContext(ctx, "Store.ReadFragmentData")
	defer span.Finish()

	conn, err := s.Connect(ctx, frag.DB.DBMS)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, conn, "read", stmt)
}

// scalar runs stmt and parses its single value. Any other result shape is a
// ServerError. NULL reads as zero.
func (s *Store) scalar(ctx context.Context, dbms *cubestore.DBMSInstance, op, stmt string, args ...*backend.Arg) (uint64, error) {
	conn, err := s.Connect(ctx, dbms)
	if err != nil {
		return 0, err
	}
	res, err := s.query(ctx, conn, op, stmt, args...)
	if err != nil {
		return 0, err
	}
	defer res.Close()
	if res.NumRows() != 1 || res.NumFields() != 1 {
		return 0, errors.Newf(errors.ErrServerError, "%s: expected 1 row and 1 field, got %d rows and %d fields", op, res.NumRows(), res.NumFields())
	}
	row, err := res.FetchRow()
	if err != nil {
		return 0, errors.NewErrServerError(op, err)
	}
	if row.Values[0] == nil {
		return 0, nil
	}
	text := string(row.Values[0])
	if n, err := strconv.ParseUint(text, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f < 0 {
		return 0, errors.Newf(errors.ErrServerError, "%s: unexpected value '%s'", op, text)
	}
	return uint64(f), nil
}

// TotalRows returns the number of rows of frag.
func (s *Store) TotalRows(ctx context.Context, frag *cubestore.Fragment) (uint64, error) {
	if err := checkFragment(frag); err != nil {
		return 0, err
	}
	span, ctx := tracing.StartSpanFromContext(ctx, "Store.TotalRows")
	defer span.Finish()
	return s.scalar(ctx, frag.DB.DBMS, "total_rows", sprintf(countRows, frag.QualifiedName()))
}

// TotalElements returns the number of array elements over all rows of frag.
func (s *Store) TotalElements(ctx context.Context, frag *cubestore.Fragment, t codec.Type, compressed bool) (uint64, error) {
	if err := checkFragment(frag); err != nil {
		return 0, err
	}
	if err := checkType(t); err != nil {
		return 0, err
	}
	span, ctx := tracing.StartSpanFromContext(ctx, "Store.TotalElements")
	defer span.Finish()
	return s.scalar(ctx, frag.DB.DBMS, "total_elements", sprintf(countElements, t, s.measureExpr(compressed), frag.QualifiedName()))
}

// RowElementCount returns the number of array elements of one row of frag.
func (s *Store) RowElementCount(ctx context.Context, frag *cubestore.Fragment, t codec.Type, compressed bool) (uint64, error) {
	if err := checkFragment(frag); err != nil {
		return 0, err
	}
	if err := checkType(t); err != nil {
		return 0, err
	}
	span, ctx := tracing.StartSpanFromContext(ctx, "Store.RowElementCount")
	defer span.Finish()
	return s.scalar(ctx, frag.DB.DBMS, "row_elements", sprintf(rowElements, t, s.measureExpr(compressed), frag.QualifiedName()))
}

// FragmentSizeBytes returns the storage footprint of frag as reported by its
// server.
func (s *Store) FragmentSizeBytes(ctx context.Context, frag *cubestore.Fragment) (uint64, error) {
	if err := checkFragment(frag); err != nil {
		return 0, err
	}
	span, ctx := tracing.StartSpanFromContext(ctx, "Store.FragmentSizeBytes")
	defer span.Finish()
	db, table := backend.NewStringArg(frag.DB.Name), backend.NewStringArg(frag.Name)
	return s.scalar(ctx, frag.DB.DBMS, "fragment_size", s.dialect.TableSize, db, table)
}

// Checksum hashes the (id, measure) rows of frag in key order. Rows are read
// in windows of at most insert-batch-rows rows.
func (s *Store) Checksum(ctx context.Context, frag *cubestore.Fragment) (uint64, error) {
	if err := checkFragment(frag); err != nil {
		return 0, err
	}
	span, ctx := tracing.StartSpanFromContext(ctx, "Store.Checksum")
	defer span.Finish()

	conn, err := s.Connect(ctx, frag.DB.DBMS)
	if err != nil {
		return 0, err
	}
	h := xxhash.New()
	var key [8]byte
	window := s.cfg.InsertBatchRows
	for offset := 0; ; offset += window {
		stmt := sprintf(selectRows, s.cfg.IDColumn, s.cfg.MeasureColumn, frag.QualifiedName(), s.cfg.IDColumn, window, offset)
		res, err := s.query(ctx, conn, "checksum", stmt)
		if err != nil {
			return 0, err
		}
		var n int
		for {
			row, err := res.FetchRow()
			if err == io.EOF {
				break
			} else if err != nil {
				res.Close()
				return 0, errors.NewErrServerError("checksum", err)
			}
			id, err := strconv.ParseUint(string(row.Values[0]), 10, 64)
			if err != nil {
				res.Close()
				return 0, errors.Newf(errors.ErrServerError, "checksum: bad key '%s'", row.Values[0])
			}
			binary.BigEndian.PutUint64(key[:], id)
			h.Write(key[:])
			h.Write(row.Values[1])
			n++
		}
		res.Close()
		if n < window {
			return h.Sum64(), nil
		}
	}
}
