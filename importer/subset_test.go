// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package importer_test

import (
	"testing"

	"github.com/featurebasedb/cubestore/calendar"
	"github.com/featurebasedb/cubestore/codec"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/featurebasedb/cubestore/importer"
	"github.com/stretchr/testify/require"
)

func TestResolveTimeSubset(t *testing.T) {
	dim := &calendar.Dimension{
		Name:     "time",
		Type:     codec.Double,
		Calendar: "standard",
		BaseTime: "2000-01-01",
		Units:    "d",
	}
	values, err := codec.AllocArray(codec.Double, 10)
	require.NoError(t, err)
	for i := 0; i < values.Len(); i++ {
		require.NoError(t, values.SetFloat64(i, float64(i)+0.5))
	}

	for _, test := range []struct {
		from, to   string
		start, end int
	}{
		{"2000-01-03", "2000-01-05 23:00", 2, 4},
		{"", "2000-01-02", 0, 0},
		{"2000-01-08 12:00", "", 7, 9},
		{"", "", 0, 9},
		{"1999-12-01", "2001-01-01", 0, 9},
	} {
		start, end, err := importer.ResolveTimeSubset(values, dim, test.from, test.to)
		require.NoError(t, err, "%s..%s", test.from, test.to)
		require.Equal(t, test.start, start, "%s..%s", test.from, test.to)
		require.Equal(t, test.end, end, "%s..%s", test.from, test.to)
	}

	_, _, err = importer.ResolveTimeSubset(values, dim, "2001-01-01", "")
	require.True(t, errors.Is(err, errors.ErrDataError))
	_, _, err = importer.ResolveTimeSubset(values, dim, "yesterday", "")
	require.True(t, errors.Is(err, errors.ErrTimeParsing))
	_, _, err = importer.ResolveTimeSubset(nil, dim, "", "")
	require.True(t, errors.Is(err, errors.ErrNullParameter))
}
