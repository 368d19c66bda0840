// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package codec converts between native numeric values and the fixed-width
// binary representation stored in fragment measures. The format is the
// host's native byte order with no header or length prefix: the length of a
// measure is always derived from its element type and element count.
package codec

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/featurebasedb/cubestore/errors"
)

// Type is the element type of a measure.
type Type int

const (
	Byte Type = iota + 1
	Short
	Int
	Long
	Float
	Double
	Bit
)

// Types lists every supported type in tag order.
var Types = []Type{Byte, Short, Int, Long, Float, Double, Bit}

var typeNames = map[Type]string{
	Byte:   "byte",
	Short:  "short",
	Int:    "int",
	Long:   "long",
	Float:  "float",
	Double: "double",
	Bit:    "bit",
}

var typeSizes = map[Type]int{
	Byte:   1,
	Short:  2,
	Int:    4,
	Long:   8,
	Float:  4,
	Double: 8,
	Bit:    1,
}

// order is the byte order of every encoded value.
var order = binary.NativeEndian

// ParseType returns the Type named by s (case insensitive).
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, errors.Newf(errors.ErrUnknownType, "unknown type '%s'", s)
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether t is one of the supported types.
func (t Type) Valid() bool {
	_, ok := typeSizes[t]
	return ok
}

// Sizeof returns the width in bytes of a single value of type t. Packed bit
// arrays are sized with ArrayBytes; a standalone bit value occupies one byte.
func Sizeof(t Type) (int, error) {
	sz, ok := typeSizes[t]
	if !ok {
		return 0, errors.Newf(errors.ErrUnknownType, "unknown type tag %d", int(t))
	}
	return sz, nil
}

// ArrayBytes returns the number of bytes occupied by n elements of type t:
// n*Sizeof(t), or ceil(n/8) for bit arrays.
func ArrayBytes(t Type, n int) (int, error) {
	if n < 0 {
		return 0, errors.NewErrDataError("negative array length %d", n)
	}
	sz, err := Sizeof(t)
	if err != nil {
		return 0, err
	}
	if t == Bit {
		return (n + 7) / 8, nil
	}
	if n > 0 && sz > math.MaxInt/n {
		return 0, errors.NewErrOutOfMemory(math.MaxInt64)
	}
	return n * sz, nil
}

// EncodeValue returns the binary representation of v, which must have the Go
// type matching t: int8, int16, int32, int64, float32, float64 or bool.
func EncodeValue(v interface{}, t Type) ([]byte, error) {
	sz, err := Sizeof(t)
	if err != nil {
		return nil, err
	}
	b := make([]byte, sz)
	if err := putValue(b, v, t); err != nil {
		return nil, err
	}
	return b, nil
}

// DecodeValue interprets the first Sizeof(t) bytes of b as a value of type t.
func DecodeValue(b []byte, t Type) (interface{}, error) {
	sz, err := Sizeof(t)
	if err != nil {
		return nil, err
	}
	if len(b) < sz {
		return nil, errors.Newf(errors.ErrInvalidBuffer, "buffer of %d bytes is too short for %s", len(b), t)
	}
	switch t {
	case Byte:
		return int8(b[0]), nil
	case Short:
		return int16(order.Uint16(b)), nil
	case Int:
		return int32(order.Uint32(b)), nil
	case Long:
		return int64(order.Uint64(b)), nil
	case Float:
		return math.Float32frombits(order.Uint32(b)), nil
	case Double:
		return math.Float64frombits(order.Uint64(b)), nil
	default:
		return b[0]&1 == 1, nil
	}
}

func putValue(b []byte, v interface{}, t Type) error {
	switch t {
	case Byte:
		x, ok := v.(int8)
		if !ok {
			return mismatch(v, t)
		}
		b[0] = byte(x)
	case Short:
		x, ok := v.(int16)
		if !ok {
			return mismatch(v, t)
		}
		order.PutUint16(b, uint16(x))
	case Int:
		x, ok := v.(int32)
		if !ok {
			return mismatch(v, t)
		}
		order.PutUint32(b, uint32(x))
	case Long:
		x, ok := v.(int64)
		if !ok {
			return mismatch(v, t)
		}
		order.PutUint64(b, uint64(x))
	case Float:
		x, ok := v.(float32)
		if !ok {
			return mismatch(v, t)
		}
		order.PutUint32(b, math.Float32bits(x))
	case Double:
		x, ok := v.(float64)
		if !ok {
			return mismatch(v, t)
		}
		order.PutUint64(b, math.Float64bits(x))
	case Bit:
		x, ok := v.(bool)
		if !ok {
			return mismatch(v, t)
		}
		b[0] = 0
		if x {
			b[0] = 1
		}
	default:
		return errors.Newf(errors.ErrUnknownType, "unknown type tag %d", int(t))
	}
	return nil
}

func mismatch(v interface{}, t Type) error {
	return errors.NewErrDataError("value of type %T cannot be encoded as %s", v, t)
}

// PutUint64 and Uint64 encode row identifiers with the same byte order as
// measures.
func PutUint64(b []byte, v uint64) { order.PutUint64(b, v) }

func Uint64(b []byte) uint64 { return order.Uint64(b) }
