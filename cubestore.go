// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package cubestore holds the data model shared by the fragment store, the
// importer and the command line tools: fragments, the databases and DBMS
// instances hosting them, and the deterministic naming of both.
package cubestore

import (
	"fmt"

	"github.com/featurebasedb/cubestore/backend"
	"github.com/featurebasedb/cubestore/errors"
)

// KeyRange is an inclusive range of 1-based row identifiers.
type KeyRange struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// Len returns the number of keys in the range.
func (r KeyRange) Len() uint64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Valid reports whether r is a non-empty 1-based range.
func (r KeyRange) Valid() bool { return r.Start >= 1 && r.End >= r.Start }

func (r KeyRange) Contains(id uint64) bool { return id >= r.Start && id <= r.End }

// Overlaps reports whether r and o share any key.
func (r KeyRange) Overlaps(o KeyRange) bool { return r.Start <= o.End && o.Start <= r.End }

func (r KeyRange) String() string { return fmt.Sprintf("[%d,%d]", r.Start, r.End) }

// Partition splits [1,total] into at most n dense ranges of ceil(total/n)
// keys; the last range may be shorter.
func Partition(total uint64, n int) ([]KeyRange, error) {
	if n <= 0 {
		return nil, errors.NewErrNullParameter("n")
	}
	if total == 0 {
		return nil, nil
	}
	size := (total + uint64(n) - 1) / uint64(n)
	ranges := make([]KeyRange, 0, n)
	for start := uint64(1); start <= total; start += size {
		end := start + size - 1
		if end > total {
			end = total
		}
		ranges = append(ranges, KeyRange{Start: start, End: end})
	}
	return ranges, nil
}

// DBMSInstance describes one relational server. Conn is established lazily
// by the fragment store and shared by every fragment hosted on the server.
type DBMSInstance struct {
	ID       int    `json:"id"`
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"-"`

	Conn backend.Conn `json:"-"`
}

func (d *DBMSInstance) String() string {
	return fmt.Sprintf("dbms %d (%s://%s:%d)", d.ID, d.Driver, d.Host, d.Port)
}

// DBInstance is a logical database on a DBMS instance.
type DBInstance struct {
	ID   int           `json:"id"`
	Name string        `json:"name"`
	DBMS *DBMSInstance `json:"dbms"`
}

// Fragment is a contiguous key range of a cube stored as one table.
type Fragment struct {
	ID            int         `json:"id"`
	CubeID        int         `json:"cubeId"`
	RelativeIndex int         `json:"relativeIndex"`
	Name          string      `json:"name"`
	Keys          KeyRange    `json:"keys"`
	DB            *DBInstance `json:"db"`
}

// Validate checks that f can be addressed on a server.
func (f *Fragment) Validate() error {
	switch {
	case f == nil:
		return errors.NewErrNullParameter("fragment")
	case f.Name == "":
		return errors.NewErrNullParameter("fragment name")
	case f.DB == nil || f.DB.Name == "":
		return errors.NewErrNullParameter("fragment database")
	case f.DB.DBMS == nil:
		return errors.NewErrNullParameter("fragment dbms")
	}
	return nil
}

// QualifiedName returns "database.table".
func (f *Fragment) QualifiedName() string { return f.DB.Name + "." + f.Name }

// TupleCount returns the number of rows of f.
func (f *Fragment) TupleCount() uint64 { return f.Keys.Len() }

// Naming templates. Callers locate tables without a catalog lookup by
// rendering the same template with the same identifiers.
const (
	DatabaseNameFormat = "cube%d_c%d_ms%d_%d"
	FragmentNameFormat = "fact_c%d_d%d_r%d_%d"
)

// DatabaseName names the seq-th database of a cube in a container on a DBMS.
func DatabaseName(cube, container, dbms, seq int) string {
	return fmt.Sprintf(DatabaseNameFormat, cube, container, dbms, seq)
}

// FragmentName names the seq-th fragment produced by rank for a cube.
func FragmentName(container, cube, rank, seq int) string {
	return fmt.Sprintf(FragmentNameFormat, container, cube, rank, seq)
}

// CheckDisjoint returns a DataError if any two fragments overlap.
func CheckDisjoint(frags []*Fragment) error {
	for i := range frags {
		for j := i + 1; j < len(frags); j++ {
			if frags[i].Keys.Overlaps(frags[j].Keys) {
				return errors.NewErrDataError("fragments %s %s and %s %s overlap",
					frags[i].Name, frags[i].Keys, frags[j].Name, frags[j].Keys)
			}
		}
	}
	return nil
}
