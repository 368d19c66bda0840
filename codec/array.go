// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package codec

import (
	"fmt"
	"math"

	"github.com/featurebasedb/cubestore/errors"
)

// MaxArrayBytes bounds a single AllocArray call.
const MaxArrayBytes = 1 << 40

// Array is a typed view over a byte buffer holding Len elements of Type in
// the measure wire format. Callers own the buffer; Array never retains a
// reference to anything other than its own Data slice.
type Array struct {
	typ  Type
	n    int
	data []byte
}

// AllocArray allocates a zeroed array of n elements of type t.
func AllocArray(t Type, n int) (a *Array, err error) {
	size, err := ArrayBytes(t, n)
	if err != nil {
		return nil, err
	}
	if size > MaxArrayBytes {
		return nil, errors.NewErrOutOfMemory(int64(size))
	}
	defer func() {
		if r := recover(); r != nil {
			a, err = nil, errors.NewErrOutOfMemory(int64(size))
		}
	}()
	return &Array{typ: t, n: n, data: make([]byte, size)}, nil
}

// Wrap returns an Array backed by b. No copy is made; b must hold at least
// ArrayBytes(t, n) bytes.
func Wrap(t Type, n int, b []byte) (*Array, error) {
	size, err := ArrayBytes(t, n)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(b) == 0 {
		return nil, errors.New(errors.ErrInvalidBuffer, "cannot wrap empty buffer")
	}
	if len(b) < size {
		return nil, errors.Newf(errors.ErrInvalidBuffer, "buffer of %d bytes is too short for %d %s elements", len(b), n, t)
	}
	return &Array{typ: t, n: n, data: b[:size]}, nil
}

func (a *Array) Type() Type { return a.typ }
func (a *Array) Len() int   { return a.n }

// Bytes returns the underlying buffer.
func (a *Array) Bytes() []byte { return a.data }

// ElemSize returns the width of one element, or 0 for bit arrays.
func (a *Array) ElemSize() int {
	if a.typ == Bit {
		return 0
	}
	return typeSizes[a.typ]
}

func (a *Array) check(i int) error {
	if a == nil || len(a.data) == 0 {
		return errors.New(errors.ErrInvalidBuffer, "nil or empty buffer")
	}
	if i < 0 || i >= a.n {
		return errors.Newf(errors.ErrInvalidBuffer, "position %d out of range [0,%d)", i, a.n)
	}
	return nil
}

func bitMask(i int) byte { return 0x80 >> uint(i%8) }

// Set stores v at position i. v must have the Go type matching the array type.
func (a *Array) Set(i int, v interface{}) error {
	if err := a.check(i); err != nil {
		return err
	}
	if a.typ == Bit {
		x, ok := v.(bool)
		if !ok {
			return mismatch(v, a.typ)
		}
		a.setBit(i, x)
		return nil
	}
	sz := typeSizes[a.typ]
	return putValue(a.data[i*sz:(i+1)*sz], v, a.typ)
}

func (a *Array) setBit(i int, x bool) {
	if x {
		a.data[i/8] |= bitMask(i)
	} else {
		a.data[i/8] &^= bitMask(i)
	}
}

// SetBytes copies the encoded element b into position i.
func (a *Array) SetBytes(i int, b []byte) error {
	if err := a.check(i); err != nil {
		return err
	}
	if a.typ == Bit {
		if len(b) < 1 {
			return errors.New(errors.ErrInvalidBuffer, "empty bit value")
		}
		a.setBit(i, b[0]&1 == 1)
		return nil
	}
	sz := typeSizes[a.typ]
	if len(b) < sz {
		return errors.Newf(errors.ErrInvalidBuffer, "value of %d bytes is too short for %s", len(b), a.typ)
	}
	copy(a.data[i*sz:(i+1)*sz], b)
	return nil
}

// Get returns a view of the encoded element at i. The returned slice aliases
// the array; for bit arrays it is a freshly built single byte.
func (a *Array) Get(i int) ([]byte, error) {
	if err := a.check(i); err != nil {
		return nil, err
	}
	if a.typ == Bit {
		if a.data[i/8]&bitMask(i) != 0 {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	}
	sz := typeSizes[a.typ]
	return a.data[i*sz : (i+1)*sz : (i+1)*sz], nil
}

// GetCopy is like Get but the result never aliases the array.
func (a *Array) GetCopy(i int) ([]byte, error) {
	b, err := a.Get(i)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Value decodes the element at i.
func (a *Array) Value(i int) (interface{}, error) {
	b, err := a.Get(i)
	if err != nil {
		return nil, err
	}
	return DecodeValue(b, a.typ)
}

// Float64 returns the element at i converted to float64.
func (a *Array) Float64(i int) (float64, error) {
	v, err := a.Value(i)
	if err != nil {
		return 0, err
	}
	return ToFloat64(v)
}

// SetFloat64 converts f to the array type and stores it at i. Integer types
// truncate toward zero; bit arrays store f != 0.
func (a *Array) SetFloat64(i int, f float64) error {
	v, err := FromFloat64(f, a.typ)
	if err != nil {
		return err
	}
	return a.Set(i, v)
}

// Int64 returns the element at i converted to int64.
func (a *Array) Int64(i int) (int64, error) {
	v, err := a.Value(i)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case float32:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, mismatch(v, a.typ)
}

// ToFloat64 converts a decoded value to float64.
func ToFloat64(v interface{}) (float64, error) {
	switch x := v.(type) {
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, errors.NewErrDataError("cannot convert %T to float64", v)
}

// FromFloat64 converts f to the Go value matching t.
func FromFloat64(f float64, t Type) (interface{}, error) {
	switch t {
	case Byte:
		return int8(f), nil
	case Short:
		return int16(f), nil
	case Int:
		return int32(f), nil
	case Long:
		return int64(f), nil
	case Float:
		return float32(f), nil
	case Double:
		return f, nil
	case Bit:
		return f != 0 && !math.IsNaN(f), nil
	}
	return nil, errors.Newf(errors.ErrUnknownType, "unknown type tag %d", int(t))
}

// CopyElements copies n elements starting at src[srcPos] into dst[dstPos].
// Both arrays must share a type.
func CopyElements(dst *Array, dstPos int, src *Array, srcPos, n int) error {
	if dst == nil || src == nil {
		return errors.NewErrNullParameter("array")
	}
	if dst.typ != src.typ {
		return errors.NewErrDataError("cannot copy %s elements into %s array", src.typ, dst.typ)
	}
	if n == 0 {
		return nil
	}
	if dstPos < 0 || srcPos < 0 || dstPos+n > dst.n || srcPos+n > src.n {
		return errors.Newf(errors.ErrInvalidBuffer, "copy of %d elements out of range", n)
	}
	if dst.typ == Bit {
		for k := 0; k < n; k++ {
			dst.setBit(dstPos+k, src.data[(srcPos+k)/8]&bitMask(srcPos+k) != 0)
		}
		return nil
	}
	sz := typeSizes[dst.typ]
	copy(dst.data[dstPos*sz:(dstPos+n)*sz], src.data[srcPos*sz:(srcPos+n)*sz])
	return nil
}

func (a *Array) String() string {
	return fmt.Sprintf("%s[%d]", a.typ, a.n)
}
