// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package fragment

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/featurebasedb/cubestore/codec"
	"github.com/featurebasedb/cubestore/errors"
)

// Statement templates. Table names are always qualified with their database
// so statements do not depend on the connection's default database.
const (
	createTable = "CREATE TABLE %s (%s BIGINT NOT NULL PRIMARY KEY, %s %s)"
	dropTable   = "DROP TABLE IF EXISTS %s"

	insertInto            = "INSERT INTO %s (%s, %s) VALUES "
	insertRow             = "(?, ?), "
	insertRowFinal        = "(?, ?)"
	insertCompressed      = "(?, cube_compress(?)), "
	insertCompressedFinal = "(?, cube_compress(?))"
	insertSelect          = "INSERT INTO %s (%s, %s) %s"

	selectRows    = "SELECT %s, %s FROM %s ORDER BY %s LIMIT %d OFFSET %d"
	selectData    = "SELECT %s, %s FROM %s"
	countRows     = "SELECT COUNT(*) FROM %s"
	countElements = "SELECT SUM(cube_count_array('%s', %s)) FROM %s"
	rowElements   = "SELECT cube_count_array('%s', %s) FROM %s LIMIT 1"

	uncompress = "cube_uncompress(%s)"
	subarray   = "cube_get_subarray('%s', %s, '%s')"
	dump       = "cube_dump('%s', %s)"
)

func sprintf(format string, args ...interface{}) string { return fmt.Sprintf(format, args...) }

func (s *Store) createTableStatement(table string) string {
	return sprintf(createTable, table, s.cfg.IDColumn, s.cfg.MeasureColumn, s.dialect.BlobType)
}

// insertStatement renders a multi-row insert of rows tuples. The last tuple
// uses the final row template, which carries no trailing separator.
func (s *Store) insertStatement(table string, rows int, compressed bool) (string, error) {
	if rows <= 0 {
		return "", errors.NewErrNullParameter("rows")
	}
	row, final := insertRow, insertRowFinal
	if compressed {
		row, final = insertCompressed, insertCompressedFinal
	}
	head := sprintf(insertInto, table, s.cfg.IDColumn, s.cfg.MeasureColumn)
	size := len(head) + (rows-1)*len(row) + len(final)
	if size > s.cfg.MaxStatementSize {
		return "", errors.WithCode(errors.NewErrBufferOverflow("insert statement", size, s.cfg.MaxStatementSize),
			errors.ErrServerError, "rendering insert statement")
	}
	var b strings.Builder
	b.Grow(size)
	b.WriteString(head)
	for i := 0; i < rows-1; i++ {
		b.WriteString(row)
	}
	b.WriteString(final)
	return b.String(), nil
}

// measureExpr returns the expression reading the measure column, decompressed
// when needed.
func (s *Store) measureExpr(compressed bool) string {
	if compressed {
		return sprintf(uncompress, s.cfg.MeasureColumn)
	}
	return s.cfg.MeasureColumn
}

// checkArrayClause validates a sub-array clause such as "1:3,7": 1-based
// indexes and inclusive ranges separated by commas.
func checkArrayClause(clause string) error {
	for _, part := range strings.Split(clause, ",") {
		bounds := strings.Split(part, ":")
		if len(bounds) > 2 {
			return errors.NewErrDataError("invalid sub-array clause '%s'", clause)
		}
		for _, b := range bounds {
			n, err := strconv.ParseUint(strings.TrimSpace(b), 10, 64)
			if err != nil || n == 0 {
				return errors.NewErrDataError("invalid sub-array clause '%s'", clause)
			}
		}
	}
	return nil
}

// idFilter renders an id clause such as "3", "1:10" or "1:4,9" into a
// condition on the key column.
func (s *Store) idFilter(clause string) (string, error) {
	var conds []string
	for _, part := range strings.Split(clause, ",") {
		bounds := strings.Split(strings.TrimSpace(part), ":")
		nums := make([]uint64, len(bounds))
		for i, b := range bounds {
			n, err := strconv.ParseUint(strings.TrimSpace(b), 10, 64)
			if err != nil {
				return "", errors.NewErrDataError("invalid id clause '%s'", clause)
			}
			nums[i] = n
		}
		switch len(nums) {
		case 1:
			conds = append(conds, sprintf("%s = %d", s.cfg.IDColumn, nums[0]))
		case 2:
			if nums[1] < nums[0] {
				return "", errors.NewErrDataError("invalid id range '%s'", part)
			}
			conds = append(conds, sprintf("%s BETWEEN %d AND %d", s.cfg.IDColumn, nums[0], nums[1]))
		default:
			return "", errors.NewErrDataError("invalid id clause '%s'", clause)
		}
	}
	if len(conds) == 1 {
		return conds[0], nil
	}
	return "(" + strings.Join(conds, " OR ") + ")", nil
}

func checkType(t codec.Type) error {
	if !t.Valid() {
		return errors.Newf(errors.ErrDataError, "unknown measure type %d", t)
	}
	return nil
}
