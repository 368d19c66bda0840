// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package fragment

import (
	"context"
	"strings"

	"github.com/featurebasedb/cubestore"
	"github.com/featurebasedb/cubestore/backend"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/featurebasedb/cubestore/tracing"
)

// DerivedQuery describes a fragment computed from another one.
type DerivedQuery struct {
	// Operation is the expression producing the new measure from the
	// source row(s), e.g. "cube_sum_arrays('double', measure)". It may
	// reference Params with '?' placeholders.
	Operation string

	// Where optionally filters the source rows.
	Where string

	// GroupSize aggregates each run of GroupSize consecutive rows into one
	// row. BlockSize aggregates rows whose ids are congruent modulo
	// BlockSize. At most one of them may be set; Operation must then be an
	// aggregate.
	GroupSize int
	BlockSize int

	// Params are bound positionally as binary arguments.
	Params [][]byte
}

func (q DerivedQuery) validate() error {
	switch {
	case strings.TrimSpace(q.Operation) == "":
		return errors.NewErrNullParameter("operation")
	case q.GroupSize < 0:
		return errors.NewErrNullParameter("group size")
	case q.BlockSize < 0:
		return errors.NewErrNullParameter("block size")
	case q.GroupSize > 0 && q.BlockSize > 0:
		return errors.NewErrDataError("group size and block size are mutually exclusive")
	}
	return nil
}

// selectStatement renders the SELECT producing the derived rows of table.
func (s *Store) selectStatement(table string, q DerivedQuery) string {
	id := s.cfg.IDColumn
	idExpr := id
	var groupBy string
	switch {
	case q.GroupSize > 0:
		idExpr = sprintf(s.dialect.Div, "MIN("+id+")-1", q.GroupSize) + "+1"
		groupBy = sprintf(s.dialect.Div, id+"-1", q.GroupSize)
	case q.BlockSize > 0:
		idExpr = sprintf(s.dialect.Mod, "MIN("+id+")-1", q.BlockSize) + "+1"
		groupBy = sprintf(s.dialect.Mod, id+"-1", q.BlockSize)
	}

	var b strings.Builder
	b.WriteString(sprintf("SELECT %s AS %s, %s AS %s FROM %s", idExpr, id, q.Operation, s.cfg.MeasureColumn, table))
	if q.Where != "" {
		b.WriteString(" WHERE " + q.Where)
	}
	if groupBy != "" {
		b.WriteString(" GROUP BY " + groupBy)
	}
	return b.String()
}

// derivedKeys returns the key range the derived rows will occupy.
func derivedKeys(old cubestore.KeyRange, q DerivedQuery) cubestore.KeyRange {
	if !old.Valid() {
		return cubestore.KeyRange{}
	}
	switch {
	case q.GroupSize > 0:
		g := uint64(q.GroupSize)
		return cubestore.KeyRange{Start: (old.Start-1)/g + 1, End: (old.End-1)/g + 1}
	case q.BlockSize > 0:
		b := uint64(q.BlockSize)
		if old.Len() >= b {
			return cubestore.KeyRange{Start: 1, End: b}
		}
		start, end := (old.Start-1)%b+1, (old.End-1)%b+1
		if start > end {
			return cubestore.KeyRange{Start: 1, End: b}
		}
		return cubestore.KeyRange{Start: start, End: end}
	}
	return old
}

// CreateFragmentFromQuery creates a fragment named newName in old's database
// holding the rows q derives from old. The table is created empty and then
// filled by an INSERT ... SELECT, so Params bind on every server. Both
// statements must fit the maximum statement size; when the fill fails the
// new table is dropped.
func (s *Store) CreateFragmentFromQuery(ctx context.Context, old *cubestore.Fragment, newName string, q DerivedQuery) (*cubestore.Fragment, error) {
	if err := checkFragment(old); err != nil {
		return nil, err
	}
	if err := checkName("fragment name", newName); err != nil {
		return nil, err
	}
	if err := q.validate(); err != nil {
		return nil, err
	}
	span, ctx := tracing.StartSpanFromContext(ctx, "Store.CreateFragmentFromQuery")
	defer span.Finish()

	frag := &cubestore.Fragment{
		CubeID:        old.CubeID,
		RelativeIndex: old.RelativeIndex,
		Name:          newName,
		Keys:          derivedKeys(old.Keys, q),
		DB:            old.DB,
	}
	create := s.createTableStatement(frag.QualifiedName())
	fill := sprintf(insertSelect, frag.QualifiedName(), s.cfg.IDColumn, s.cfg.MeasureColumn, s.selectStatement(old.QualifiedName(), q))
	for _, stmt := range []string{create, fill} {
		if err := s.checkStatement(stmt); err != nil {
			return nil, err
		}
	}
	span.LogKV("statement", fill)

	args := make([]*backend.Arg, len(q.Params))
	for i, p := range q.Params {
		args[i] = &backend.Arg{Type: backend.ArgBlob, Blob: p, IsNull: p == nil}
	}
	if err := s.execOn(ctx, old.DB.DBMS, "create_fragment_from_query", create); err != nil {
		return nil, err
	}
	if err := s.execOn(ctx, old.DB.DBMS, "create_fragment_from_query", fill, args...); err != nil {
		if derr := s.execOn(ctx, old.DB.DBMS, "drop_fragment", sprintf(dropTable, frag.QualifiedName())); derr != nil {
			s.Logger.Warnf("dropping %s after failed fill: %v", frag.QualifiedName(), derr)
		}
		return nil, err
	}
	return frag, nil
}
