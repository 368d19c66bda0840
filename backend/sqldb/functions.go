// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package sqldb

import (
	"bytes"
	"database/sql/driver"
	"encoding/binary"
	"io"
	"strconv"
	"strings"

	"github.com/featurebasedb/cubestore/codec"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/klauspost/compress/zlib"
	"modernc.org/sqlite"
)

// arrayFunctions are the array functions IO servers provide as user defined
// functions. The embedded engine registers them on every connection.
var arrayFunctions = map[string]*sqlite.FunctionImpl{
	"cube_compress":     {NArgs: 1, Deterministic: true, Scalar: compressFunc},
	"cube_uncompress":   {NArgs: 1, Deterministic: true, Scalar: uncompressFunc},
	"cube_count_array":  {NArgs: 2, Deterministic: true, Scalar: countArrayFunc},
	"cube_get_subarray": {NArgs: 3, Deterministic: true, Scalar: subarrayFunc},
	"cube_dump":         {NArgs: 2, Deterministic: true, Scalar: dumpFunc},
	"cube_sum_arrays": {NArgs: 2, Deterministic: true, MakeAggregate: func(sqlite.FunctionContext) (sqlite.AggregateFunction, error) {
		return &arraySum{}, nil
	}},
}

func init() {
	for name, impl := range arrayFunctions {
		if err := sqlite.RegisterFunction(name, impl); err != nil {
			panic(errors.Wrapf(err, "registering %s", name))
		}
	}
}

// blobArg returns the bytes of a BLOB or TEXT value. ok is false for NULL.
func blobArg(v driver.Value) (b []byte, ok bool, err error) {
	switch x := v.(type) {
	case nil:
		return nil, false, nil
	case []byte:
		return x, true, nil
	case string:
		return []byte(x), true, nil
	}
	return nil, false, errors.Newf(errors.ErrDataError, "expected a binary value, got %T", v)
}

func textArg(v driver.Value) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	}
	return "", errors.Newf(errors.ErrDataError, "expected a string, got %T", v)
}

func typeArg(v driver.Value) (codec.Type, error) {
	s, err := textArg(v)
	if err != nil {
		return 0, err
	}
	return codec.ParseType(s)
}

// measureArg wraps the measure argument of an array function. arr is nil
// for NULL.
func measureArg(typ, measure driver.Value) (*codec.Array, error) {
	t, err := typeArg(typ)
	if err != nil {
		return nil, err
	}
	b, ok, err := blobArg(measure)
	if err != nil || !ok {
		return nil, err
	}
	return wrapMeasure(t, b)
}

func wrapMeasure(t codec.Type, b []byte) (*codec.Array, error) {
	if t == codec.Bit {
		return codec.Wrap(t, len(b)*8, b)
	}
	sz, err := codec.Sizeof(t)
	if err != nil {
		return nil, err
	}
	if len(b)%sz != 0 {
		return nil, errors.NewErrDataError("measure of %d bytes is not a %s array", len(b), t)
	}
	return codec.Wrap(t, len(b)/sz, b)
}

func compressFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	b, ok, err := blobArg(args[0])
	if err != nil || !ok {
		return nil, err
	}
	return Compress(b)
}

func uncompressFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	b, ok, err := blobArg(args[0])
	if err != nil || !ok {
		return nil, err
	}
	return Uncompress(b)
}

func countArrayFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	arr, err := measureArg(args[0], args[1])
	if err != nil || arr == nil {
		return nil, err
	}
	return int64(arr.Len()), nil
}

func subarrayFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	arr, err := measureArg(args[0], args[1])
	if err != nil || arr == nil {
		return nil, err
	}
	clause, err := textArg(args[2])
	if err != nil {
		return nil, err
	}
	return Subarray(arr, clause)
}

func dumpFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	arr, err := measureArg(args[0], args[1])
	if err != nil || arr == nil {
		return nil, err
	}
	return Dump(arr)
}

// arraySum adds arrays element by element. All arrays of a group must have
// the same length.
type arraySum struct {
	sum *codec.Array
}

func (s *arraySum) add(args []driver.Value, sign float64) error {
	arr, err := measureArg(args[0], args[1])
	if err != nil || arr == nil {
		return err
	}
	if s.sum == nil {
		if s.sum, err = codec.AllocArray(arr.Type(), arr.Len()); err != nil {
			return err
		}
	}
	if arr.Len() != s.sum.Len() {
		return errors.NewErrDataError("cannot sum arrays of %d and %d elements", s.sum.Len(), arr.Len())
	}
	for i := 0; i < arr.Len(); i++ {
		a, err := s.sum.Float64(i)
		if err != nil {
			return err
		}
		b, err := arr.Float64(i)
		if err != nil {
			return err
		}
		if err := s.sum.SetFloat64(i, a+sign*b); err != nil {
			return err
		}
	}
	return nil
}

func (s *arraySum) Step(_ *sqlite.FunctionContext, args []driver.Value) error {
	return s.add(args, 1)
}

func (s *arraySum) WindowInverse(_ *sqlite.FunctionContext, args []driver.Value) error {
	return s.add(args, -1)
}

func (s *arraySum) WindowValue(_ *sqlite.FunctionContext) (driver.Value, error) {
	if s.sum == nil {
		return nil, nil
	}
	return append([]byte{}, s.sum.Bytes()...), nil
}

func (s *arraySum) Final(_ *sqlite.FunctionContext) {}

// Compress produces the MySQL COMPRESS() layout: the uncompressed length as a
// little endian uint32 followed by a zlib stream. Empty input stays empty.
func Compress(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return []byte{}, nil
	}
	var buf bytes.Buffer
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(b)))
	buf.Write(hdr[:])
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Uncompress reverses Compress.
func Uncompress(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return []byte{}, nil
	}
	if len(b) < 4 {
		return nil, errors.New(errors.ErrDataError, "compressed value is too short")
	}
	n := binary.LittleEndian.Uint32(b[:4])
	r, err := zlib.NewReader(bytes.NewReader(b[4:]))
	if err != nil {
		return nil, errors.Wrap(err, "opening zlib stream")
	}
	defer r.Close()
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, errors.Wrap(err, "reading zlib stream")
	}
	return out, nil
}

// Subarray extracts the 1-based inclusive ranges listed in clause, e.g.
// "1:3,7".
func Subarray(arr *codec.Array, clause string) ([]byte, error) {
	var idx []int
	for _, part := range strings.Split(clause, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bounds := strings.SplitN(part, ":", 2)
		lo, err := strconv.Atoi(bounds[0])
		if err != nil {
			return nil, errors.NewErrDataError("invalid subarray clause '%s'", clause)
		}
		hi := lo
		if len(bounds) == 2 {
			if hi, err = strconv.Atoi(bounds[1]); err != nil {
				return nil, errors.NewErrDataError("invalid subarray clause '%s'", clause)
			}
		}
		if lo < 1 || hi > arr.Len() || lo > hi {
			return nil, errors.NewErrDataError("subarray %d:%d outside [1,%d]", lo, hi, arr.Len())
		}
		for i := lo; i <= hi; i++ {
			idx = append(idx, i-1)
		}
	}
	out, err := codec.AllocArray(arr.Type(), len(idx))
	if err != nil {
		return nil, err
	}
	for k, i := range idx {
		if err := codec.CopyElements(out, k, arr, i, 1); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}

// Dump renders the elements of arr as comma separated text.
func Dump(arr *codec.Array) (string, error) {
	var sb strings.Builder
	for i := 0; i < arr.Len(); i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		v, err := arr.Value(i)
		if err != nil {
			return "", err
		}
		switch x := v.(type) {
		case float32:
			sb.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
		case float64:
			sb.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
		case bool:
			if x {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		default:
			n, err := arr.Int64(i)
			if err != nil {
				return "", err
			}
			sb.WriteString(strconv.FormatInt(n, 10))
		}
	}
	return sb.String(), nil
}
