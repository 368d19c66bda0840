// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package importer

import (
	"github.com/featurebasedb/cubestore/errors"
)

func checkSizes(sizes []int) (uint64, error) {
	if len(sizes) == 0 {
		return 0, errors.NewErrNullParameter("sizes")
	}
	total := uint64(1)
	for i, s := range sizes {
		if s < 1 {
			return 0, errors.NewErrDataError("size %d of axis %d", s, i)
		}
		total *= uint64(s)
	}
	return total, nil
}

// ComputeDimensionID decomposes a 1-based linear id into 1-based coordinates
// over sizes, which are ordered outermost to innermost. It is the inverse of
// row-major flattening.
func ComputeDimensionID(id uint64, sizes []int) ([]int, error) {
	total, err := checkSizes(sizes)
	if err != nil {
		return nil, err
	}
	if id < 1 || id > total {
		return nil, errors.NewErrDataError("id %d outside [1,%d]", id, total)
	}
	coords := make([]int, len(sizes))
	r := id - 1
	for i := len(sizes) - 1; i >= 0; i-- {
		s := uint64(sizes[i])
		coords[i] = int(r%s) + 1
		r /= s
	}
	return coords, nil
}

// FlattenDimensionID returns the 1-based linear id of 1-based coordinates.
func FlattenDimensionID(coords, sizes []int) (uint64, error) {
	if _, err := checkSizes(sizes); err != nil {
		return 0, err
	}
	if len(coords) != len(sizes) {
		return 0, errors.NewErrDataError("%d coordinates for %d axes", len(coords), len(sizes))
	}
	var id uint64
	for i, c := range coords {
		if c < 1 || c > sizes[i] {
			return 0, errors.NewErrDataError("coordinate %d of axis %d outside [1,%d]", c, i, sizes[i])
		}
		id = id*uint64(sizes[i]) + uint64(c-1)
	}
	return id + 1, nil
}

// CacheToBuffer copies every cell of a box from cache to dst. The box has
// one axis per entry of limits, enumerated row-major so that dst receives
// the cells in axis order. products holds the stride, in elements, of each
// axis within cache. counters is scratch space of the same length and is
// left zeroed.
func CacheToBuffer(counters, limits, products []int, cache, dst []byte, elemSize int) error {
	n := len(limits)
	if n == 0 || elemSize < 1 {
		return errors.NewErrNullParameter("limits")
	}
	if len(counters) != n || len(products) != n {
		return errors.NewErrDataError("%d counters and %d products for %d axes", len(counters), len(products), n)
	}
	total, last := 1, 0
	for i, l := range limits {
		if l < 0 || products[i] < 0 {
			return errors.NewErrDataError("axis %d has limit %d and product %d", i, l, products[i])
		}
		total *= l
		last += (l - 1) * products[i]
		counters[i] = 0
	}
	if total == 0 {
		return nil
	}
	if total*elemSize > len(dst) {
		return errors.WithCode(errors.NewErrBufferOverflow("transposed rows", total*elemSize, len(dst)), errors.ErrDataError, "destination too short")
	}
	if (last+1)*elemSize > len(cache) {
		return errors.WithCode(errors.NewErrBufferOverflow("cache read", (last+1)*elemSize, len(cache)), errors.ErrDataError, "cache too short")
	}

	off := 0
	for k := 0; k < total; k++ {
		copy(dst[k*elemSize:(k+1)*elemSize], cache[off*elemSize:(off+1)*elemSize])
		for i := n - 1; i >= 0; i-- {
			if counters[i]+1 < limits[i] {
				counters[i]++
				off += products[i]
				break
			}
			off -= counters[i] * products[i]
			counters[i] = 0
		}
	}
	return nil
}

// box is a hyperslab over the explicit dimensions in level order, relative
// to the imported subset.
type box struct {
	start []int
	count []int
}

func (b box) rows() int {
	n := 1
	for _, c := range b.count {
		n *= c
	}
	return n
}

// slabs decomposes the 0-based row range [lo, hi] over sizes into boxes
// whose row-major enumerations, concatenated, yield the rows in order.
func slabs(lo, hi uint64, sizes []int) []box {
	if len(sizes) == 0 {
		return []box{{}}
	}
	inner := uint64(1)
	for _, s := range sizes[1:] {
		inner *= uint64(s)
	}
	prefix := func(outer, n int, bs []box) []box {
		for i := range bs {
			bs[i].start = append([]int{outer}, bs[i].start...)
			bs[i].count = append([]int{n}, bs[i].count...)
		}
		return bs
	}
	first, last := lo/inner, hi/inner
	if first == last {
		return prefix(int(first), 1, slabs(lo%inner, hi%inner, sizes[1:]))
	}

	var out []box
	if lo%inner != 0 {
		out = append(out, prefix(int(first), 1, slabs(lo%inner, inner-1, sizes[1:]))...)
		first++
	}
	var tail []box
	if hi%inner != inner-1 {
		tail = prefix(int(last), 1, slabs(0, hi%inner, sizes[1:]))
		last--
	}
	if first <= last {
		full := box{start: []int{int(first)}, count: []int{int(last - first + 1)}}
		for _, s := range sizes[1:] {
			full.start = append(full.start, 0)
			full.count = append(full.count, s)
		}
		out = append(out, full)
	}
	return append(out, tail...)
}

// layout maps a box to a native hyperslab read and the transposition that
// brings the read into canonical order.
type layout struct {
	start, count []int // native order, absolute indices
	limits       []int // canonical order
	products     []int // native strides of the canonical axes
	counters     []int
}

// layoutOf builds the read geometry of b. When implicitOnly is set the
// transposition covers the implicit axes of a single row.
func (v *Variable) layoutOf(b box, implicitOnly bool) *layout {
	l := &layout{
		start: make([]int, len(v.Dims)),
		count: make([]int, len(v.Dims)),
	}
	for i, n := range v.explicitOrder() {
		l.start[n] = v.Dims[n].Start + b.start[i]
		l.count[n] = b.count[i]
	}
	for _, n := range v.implicitOrder() {
		l.start[n] = v.Dims[n].Start
		l.count[n] = v.Dims[n].Count()
	}

	strides := make([]int, len(v.Dims))
	s := 1
	for n := len(v.Dims) - 1; n >= 0; n-- {
		strides[n] = s
		s *= l.count[n]
	}
	axes := v.CanonicalOrder()
	if implicitOnly {
		axes = v.implicitOrder()
	}
	for _, n := range axes {
		l.limits = append(l.limits, l.count[n])
		l.products = append(l.products, strides[n])
	}
	l.counters = make([]int, len(axes))
	return l
}

// elements returns the number of elements of the native read.
func (l *layout) elements() int {
	n := 1
	for _, c := range l.count {
		n *= c
	}
	return n
}

func (l *layout) transpose(cache, dst []byte, elemSize int) error {
	if len(l.limits) == 0 {
		copy(dst, cache)
		return nil
	}
	return CacheToBuffer(l.counters, l.limits, l.products, cache, dst, elemSize)
}
