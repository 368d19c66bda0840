// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package importer

import (
	"github.com/featurebasedb/cubestore/calendar"
	"github.com/featurebasedb/cubestore/codec"
	"github.com/featurebasedb/cubestore/errors"
)

// ResolveTimeSubset maps the dates from and to, written like a base time,
// onto the 0-based inclusive index range of the ascending time values of
// dim. An empty bound leaves that side open.
func ResolveTimeSubset(values *codec.Array, dim *calendar.Dimension, from, to string) (start, end int, err error) {
	if values == nil || values.Len() == 0 {
		return 0, 0, errors.NewErrNullParameter("time values")
	}
	if dim == nil {
		return 0, 0, errors.NewErrNullParameter("dimension")
	}
	bound := func(s string) (float64, error) {
		d, err := calendar.ParseBaseTime(s)
		if err != nil {
			return 0, err
		}
		return calendar.TimeToValue(d, dim)
	}

	start, end = 0, values.Len()-1
	if from != "" {
		lo, err := bound(from)
		if err != nil {
			return 0, 0, err
		}
		for start <= end {
			v, err := values.Float64(start)
			if err != nil {
				return 0, 0, err
			}
			if v >= lo {
				break
			}
			start++
		}
	}
	if to != "" {
		hi, err := bound(to)
		if err != nil {
			return 0, 0, err
		}
		for end >= start {
			v, err := values.Float64(end)
			if err != nil {
				return 0, 0, err
			}
			if v <= hi {
				break
			}
			end--
		}
	}
	if start > end {
		return 0, 0, errors.NewErrDataError("no %s value between '%s' and '%s'", dim.Name, from, to)
	}
	return start, end, nil
}
