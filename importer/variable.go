// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package importer

import (
	"fmt"
	"sort"

	"github.com/featurebasedb/cubestore/codec"
	"github.com/featurebasedb/cubestore/errors"
)

// Dim describes one dimension of a source variable in the file's native
// order. Start and End are 0-based inclusive indices of the imported subset.
// Level is the 1-based rank of the dimension among dimensions of the same
// kind (explicit or implicit).
type Dim struct {
	Name     string `json:"name"`
	Size     int    `json:"size"`
	Explicit bool   `json:"explicit"`
	Level    int    `json:"level"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
}

// FullDim returns a dimension importing every index.
func FullDim(name string, size int, explicit bool, level int) Dim {
	return Dim{Name: name, Size: size, Explicit: explicit, Level: level, Start: 0, End: size - 1}
}

// Count returns the number of indices in the imported subset.
func (d Dim) Count() int { return d.End - d.Start + 1 }

func (d Dim) kind() string {
	if d.Explicit {
		return "explicit"
	}
	return "implicit"
}

func (d Dim) String() string {
	return fmt.Sprintf("%s(%s %d, [%d:%d] of %d)", d.Name, d.kind(), d.Level, d.Start, d.End, d.Size)
}

// Variable describes one measure variable of a source file. Dims are listed in
// the file's native order.
type Variable struct {
	Name  string     `json:"name"`
	VarID int        `json:"varID"`
	Type  codec.Type `json:"type"`
	Dims  []Dim      `json:"dims"`
}

// Validate checks the geometry of v. Every dimension must have a distinct
// (kind, level) pair, levels of a kind must be 1..n, and subsets must lie
// within the dimension.
func (v *Variable) Validate() error {
	if v == nil {
		return errors.NewErrNullParameter("variable")
	}
	if v.Name == "" {
		return errors.NewErrNullParameter("variable name")
	}
	if !v.Type.Valid() {
		return errors.NewErrDataError("variable %s has unknown type %d", v.Name, v.Type)
	}
	if v.Type == codec.Bit {
		return errors.NewErrDataError("variable %s: bit measures cannot be imported", v.Name)
	}
	if len(v.Dims) == 0 {
		return errors.NewErrDataError("variable %s has no dimensions", v.Name)
	}
	seen := make(map[string]bool, len(v.Dims))
	for _, d := range v.Dims {
		if d.Size < 1 {
			return errors.NewErrDataError("dimension %s of %s has size %d", d.Name, v.Name, d.Size)
		}
		if d.Start < 0 || d.End >= d.Size || d.Start > d.End {
			return errors.NewErrDataError("dimension %s of %s: subset [%d:%d] outside [0:%d]", d.Name, v.Name, d.Start, d.End, d.Size-1)
		}
		key := fmt.Sprintf("%s/%d", d.kind(), d.Level)
		if seen[key] {
			return errors.NewErrDataError("variable %s has two %s dimensions of level %d", v.Name, d.kind(), d.Level)
		}
		seen[key] = true
	}
	nexp, nimp := v.NExp(), v.NImp()
	if nexp == 0 {
		return errors.NewErrDataError("variable %s has no explicit dimension", v.Name)
	}
	if nexp+nimp != len(v.Dims) {
		return errors.NewErrDataError("variable %s: %d explicit and %d implicit of %d dimensions", v.Name, nexp, nimp, len(v.Dims))
	}
	for _, d := range v.Dims {
		n := nimp
		if d.Explicit {
			n = nexp
		}
		if d.Level < 1 || d.Level > n {
			return errors.NewErrDataError("dimension %s of %s has level %d, want 1..%d", d.Name, v.Name, d.Level, n)
		}
	}
	return nil
}

// NExp returns the number of explicit dimensions.
func (v *Variable) NExp() int {
	var n int
	for _, d := range v.Dims {
		if d.Explicit {
			n++
		}
	}
	return n
}

// NImp returns the number of implicit dimensions.
func (v *Variable) NImp() int { return len(v.Dims) - v.NExp() }

// CanonicalOrder returns the native indices of the dimensions ordered
// explicit first, then implicit, each by ascending level.
func (v *Variable) CanonicalOrder() []int {
	order := make([]int, len(v.Dims))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		da, db := v.Dims[order[a]], v.Dims[order[b]]
		if da.Explicit != db.Explicit {
			return da.Explicit
		}
		return da.Level < db.Level
	})
	return order
}

// explicitOrder and implicitOrder split CanonicalOrder by kind.
func (v *Variable) explicitOrder() []int { return v.CanonicalOrder()[:v.NExp()] }
func (v *Variable) implicitOrder() []int { return v.CanonicalOrder()[v.NExp():] }

// ExplicitSizes returns the subset counts of the explicit dimensions in
// level order.
func (v *Variable) ExplicitSizes() []int {
	order := v.explicitOrder()
	sizes := make([]int, len(order))
	for i, n := range order {
		sizes[i] = v.Dims[n].Count()
	}
	return sizes
}

// RowLength returns the number of elements in one fragment row, the product
// of the implicit subset counts.
func (v *Variable) RowLength() int {
	n := 1
	for _, d := range v.Dims {
		if !d.Explicit {
			n *= d.Count()
		}
	}
	return n
}

// TupleCount returns the number of rows of the whole cube, the product of
// the explicit subset counts.
func (v *Variable) TupleCount() uint64 {
	n := uint64(1)
	for _, d := range v.Dims {
		if d.Explicit {
			n *= uint64(d.Count())
		}
	}
	return n
}

// RowSize returns the encoded size of one fragment row.
func (v *Variable) RowSize() (int, error) {
	return codec.ArrayBytes(v.Type, v.RowLength())
}

// explicitLeads reports whether the explicit dimensions come first in the
// native order, by ascending level.
func (v *Variable) explicitLeads() bool {
	for i, n := range v.explicitOrder() {
		if n != i {
			return false
		}
	}
	return true
}

// implicitCanonical reports whether the implicit dimensions appear in the
// native order by ascending level.
func (v *Variable) implicitCanonical() bool {
	prev := -1
	for _, n := range v.implicitOrder() {
		if n < prev {
			return false
		}
		prev = n
	}
	return true
}

// canonical reports whether the native order is the canonical order.
func (v *Variable) canonical() bool {
	for i, n := range v.CanonicalOrder() {
		if n != i {
			return false
		}
	}
	return true
}
