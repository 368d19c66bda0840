// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package netcdf reads variables of NetCDF classic files as import sources.
package netcdf

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ctessum/cdf"
	"github.com/featurebasedb/cubestore/calendar"
	"github.com/featurebasedb/cubestore/codec"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/featurebasedb/cubestore/importer"
)

// Dim is a dimension of a file variable.
type Dim struct {
	Name string
	Size int
}

// File is an open NetCDF classic file. It is safe for concurrent use.
type File struct {
	mu      sync.Mutex
	path    string
	f       *os.File
	nc      *cdf.File
	vars    []string
	numRecs int
}

// Open opens the file at path for reading.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening netcdf file")
	}
	nc, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, errors.WithCode(err, errors.ErrDataError, "reading netcdf header of "+path)
	}
	if errs := nc.Header.Check(); len(errs) > 0 {
		f.Close()
		return nil, errors.WithCode(errs[0], errors.ErrDataError, fmt.Sprintf("netcdf header of %s has %d errors", path, len(errs)))
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "stat netcdf file")
	}
	return &File{
		path:    path,
		f:       f,
		nc:      nc,
		vars:    nc.Header.Variables(),
		numRecs: int(nc.Header.NumRecs(fi.Size())),
	}, nil
}

// Close closes the underlying file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.Close()
}

// Variables lists the variable names of the file.
func (f *File) Variables() []string { return append([]string(nil), f.vars...) }

// VarID returns the id of the variable named name.
func (f *File) VarID(name string) (int, error) {
	for i, v := range f.vars {
		if v == name {
			return i, nil
		}
	}
	return 0, errors.NewErrDataError("no variable '%s' in %s", name, f.path)
}

func (f *File) varName(varID int) (string, error) {
	if varID < 0 || varID >= len(f.vars) {
		return "", errors.NewErrDataError("no variable %d in %s", varID, f.path)
	}
	return f.vars[varID], nil
}

// Dims returns the dimensions of a variable in the file's order. The record
// dimension has the number of records written.
func (f *File) Dims(varID int) ([]Dim, error) {
	name, err := f.varName(varID)
	if err != nil {
		return nil, err
	}
	names := f.nc.Header.Dimensions(name)
	lengths := f.lengths(name)
	dims := make([]Dim, len(names))
	for i := range names {
		dims[i] = Dim{Name: names[i], Size: lengths[i]}
	}
	return dims, nil
}

func (f *File) lengths(name string) []int {
	lengths := append([]int(nil), f.nc.Header.Lengths(name)...)
	if f.nc.Header.IsRecordVariable(name) {
		lengths[0] = f.numRecs
	}
	return lengths
}

// VarType returns the element type of a variable.
func (f *File) VarType(varID int) (codec.Type, error) {
	name, err := f.varName(varID)
	if err != nil {
		return 0, err
	}
	switch f.nc.Header.ZeroValue(name, 0).(type) {
	case []uint8:
		return codec.Byte, nil
	case []int16:
		return codec.Short, nil
	case []int32:
		return codec.Int, nil
	case []float32:
		return codec.Float, nil
	case []float64:
		return codec.Double, nil
	}
	return 0, errors.NewErrDataError("variable %s has no numeric type", name)
}

// GetVara reads the hyperslab of count cells from start into dst, converting
// every value to the type of dst. start and count are in the file's
// dimension order and dst receives the cells row-major.
func (f *File) GetVara(varID int, start, count []int, dst *codec.Array) error {
	name, err := f.varName(varID)
	if err != nil {
		return err
	}
	if dst == nil {
		return errors.NewErrNullParameter("destination")
	}
	if _, err := f.VarType(varID); err != nil {
		return err
	}
	lengths := f.lengths(name)
	n := len(lengths)
	if len(start) != n || len(count) != n {
		return errors.NewErrDataError("%s has %d dimensions, got start %v count %v", name, n, start, count)
	}
	total := 1
	for i := range lengths {
		if start[i] < 0 || count[i] < 1 || start[i]+count[i] > lengths[i] {
			return errors.NewErrDataError("%s: dimension %d read [%d,+%d) outside [0,%d)", name, i, start[i], count[i], lengths[i])
		}
		total *= count[i]
	}
	if dst.Len() != total {
		return errors.NewErrDataError("%s: destination holds %d of %d cells", name, dst.Len(), total)
	}

	// Runs are contiguous in the file: axis r is read partially, every axis
	// after it whole.
	r := n - 1
	for r > 0 && count[r] == lengths[r] {
		r--
	}
	run := count[r]
	for d := r + 1; d < n; d++ {
		run *= lengths[d]
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	begin := make([]int, n)
	end := make([]int, n)
	outer := append([]int(nil), start[:r]...)
	for pos := 0; pos < total; pos += run {
		copy(begin, outer)
		copy(end, outer)
		begin[r], end[r] = start[r], start[r]+count[r]-1
		for d := r + 1; d < n; d++ {
			begin[d], end[d] = 0, lengths[d]-1
		}
		rd := f.nc.Reader(name, begin, end)
		buf := rd.Zero(run)
		got, err := rd.Read(buf)
		if err != nil && got < run {
			return errors.WithCode(err, errors.ErrDataError, fmt.Sprintf("reading %s at %v", name, begin))
		}
		if err := convert(dst, pos, buf); err != nil {
			return err
		}
		for d := r - 1; d >= 0; d-- {
			if outer[d]+1 < start[d]+count[d] {
				outer[d]++
				break
			}
			outer[d] = start[d]
		}
	}
	return nil
}

func convert(dst *codec.Array, pos int, buf interface{}) error {
	set := func(i int, v float64) error { return dst.SetFloat64(pos+i, v) }
	switch vs := buf.(type) {
	case []uint8:
		for i, v := range vs {
			if err := set(i, float64(v)); err != nil {
				return err
			}
		}
	case []int16:
		for i, v := range vs {
			if err := set(i, float64(v)); err != nil {
				return err
			}
		}
	case []int32:
		for i, v := range vs {
			if err := set(i, float64(v)); err != nil {
				return err
			}
		}
	case []float32:
		for i, v := range vs {
			if err := set(i, float64(v)); err != nil {
				return err
			}
		}
	case []float64:
		for i, v := range vs {
			if err := set(i, v); err != nil {
				return err
			}
		}
	default:
		return errors.NewErrDataError("cannot convert %T", buf)
	}
	return nil
}

// Values reads every value of a one-dimensional variable, typically a
// coordinate variable, as doubles.
func (f *File) Values(name string) (*codec.Array, error) {
	id, err := f.VarID(name)
	if err != nil {
		return nil, err
	}
	lengths := f.lengths(name)
	if len(lengths) != 1 {
		return nil, errors.NewErrDataError("variable %s has %d dimensions, want 1", name, len(lengths))
	}
	arr, err := codec.AllocArray(codec.Double, lengths[0])
	if err != nil {
		return nil, err
	}
	if lengths[0] == 0 {
		return arr, nil
	}
	return arr, f.GetVara(id, []int{0}, []int{lengths[0]}, arr)
}

// Attribute returns the attribute attr of variable v, or the global attribute
// when v is empty. Values are a string or a slice of numbers.
func (f *File) Attribute(v, attr string) (interface{}, error) {
	val := f.nc.Header.GetAttribute(v, attr)
	if val == nil {
		return nil, errors.NewErrDataError("no attribute '%s' on '%s'", attr, v)
	}
	return val, nil
}

// StringAttribute returns a text attribute.
func (f *File) StringAttribute(v, attr string) (string, error) {
	val, err := f.Attribute(v, attr)
	if err != nil {
		return "", err
	}
	s, ok := val.(string)
	if !ok {
		return "", errors.NewErrDataError("attribute %s:%s is %T, not text", v, attr, val)
	}
	return strings.TrimRight(s, "\x00"), nil
}

// intAttribute returns the values of an integer attribute.
func (f *File) intAttribute(v, attr string) ([]int, error) {
	val, err := f.Attribute(v, attr)
	if err != nil {
		return nil, err
	}
	var out []int
	switch vs := val.(type) {
	case []uint8:
		for _, x := range vs {
			out = append(out, int(x))
		}
	case []int16:
		for _, x := range vs {
			out = append(out, int(x))
		}
	case []int32:
		for _, x := range vs {
			out = append(out, int(x))
		}
	default:
		return nil, errors.NewErrDataError("attribute %s:%s is %T, not integer", v, attr, val)
	}
	return out, nil
}

// Variable describes variable name for import. explicit names the explicit
// dimensions in level order; every other dimension is implicit, levelled in
// file order. The whole extent of each dimension is selected.
func (f *File) Variable(name string, explicit ...string) (*importer.Variable, error) {
	id, err := f.VarID(name)
	if err != nil {
		return nil, err
	}
	typ, err := f.VarType(id)
	if err != nil {
		return nil, err
	}
	dims, err := f.Dims(id)
	if err != nil {
		return nil, err
	}
	level := make(map[string]int, len(explicit))
	for i, e := range explicit {
		level[e] = i + 1
	}
	v := &importer.Variable{Name: name, VarID: id, Type: typ}
	implicit := 0
	for _, d := range dims {
		if l, ok := level[d.Name]; ok {
			v.Dims = append(v.Dims, importer.FullDim(d.Name, d.Size, true, l))
			delete(level, d.Name)
			continue
		}
		implicit++
		v.Dims = append(v.Dims, importer.FullDim(d.Name, d.Size, false, implicit))
	}
	for _, e := range explicit {
		if _, ok := level[e]; ok {
			return nil, errors.NewErrDataError("variable %s has no dimension '%s'", name, e)
		}
	}
	return v, v.Validate()
}

// TimeDimension describes the coordinate variable name as a time dimension
// from its CF units and calendar attributes.
func (f *File) TimeDimension(name string) (*calendar.Dimension, error) {
	id, err := f.VarID(name)
	if err != nil {
		return nil, err
	}
	typ, err := f.VarType(id)
	if err != nil {
		return nil, err
	}
	raw, err := f.StringAttribute(name, "units")
	if err != nil {
		return nil, errors.WithCode(err, errors.ErrTimeParsing, "time dimension "+name)
	}
	units, base, err := calendar.ParseUnits(raw)
	if err != nil {
		return nil, err
	}
	dim := &calendar.Dimension{
		Name:     name,
		Type:     typ,
		Calendar: "standard",
		BaseTime: base,
		Units:    units,
	}
	if cal, err := f.StringAttribute(name, "calendar"); err == nil {
		dim.Calendar = cal
	}
	family, err := calendar.ParseFamily(dim.Calendar)
	if err != nil {
		return nil, err
	}
	if family == calendar.UserDefined {
		months, err := f.intAttribute(name, "month_lengths")
		if err != nil {
			return nil, err
		}
		if len(months) != 12 {
			return nil, errors.NewErrDataError("%s:month_lengths has %d entries", name, len(months))
		}
		copy(dim.MonthLengths[:], months)
		if ly, err := f.intAttribute(name, "leap_year"); err == nil && len(ly) > 0 {
			dim.LeapYear = ly[0]
		}
		if lm, err := f.intAttribute(name, "leap_month"); err == nil && len(lm) > 0 {
			dim.LeapMonth = lm[0]
		}
	}
	if _, err := dim.CalendarOf(); err != nil {
		return nil, err
	}
	return dim, nil
}
