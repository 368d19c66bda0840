// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package calendar_test

import (
	"testing"

	"github.com/featurebasedb/cubestore/calendar"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, name string) calendar.Calendar {
	t.Helper()
	c, err := calendar.New(name)
	require.NoError(t, err)
	return c
}

func calendars(t *testing.T) map[string]calendar.Calendar {
	user, err := calendar.NewUserDefined([12]int{30, 30, 35, 30, 30, 30, 30, 30, 30, 30, 30, 30}, 2, 3)
	require.NoError(t, err)
	return map[string]calendar.Calendar{
		"standard":            mustNew(t, "standard"),
		"gregorian":           mustNew(t, "gregorian"),
		"proleptic_gregorian": mustNew(t, "proleptic_gregorian"),
		"julian":              mustNew(t, "julian"),
		"360_day":             mustNew(t, "360_day"),
		"no_leap":             mustNew(t, "no_leap"),
		"366_day":             mustNew(t, "366_day"),
		"user_defined":        user,
	}
}

func testYears() []int {
	var ys []int
	for y := -400; y <= 2800; y += 13 {
		ys = append(ys, y)
	}
	for y := 1570; y <= 1610; y++ {
		ys = append(ys, y)
	}
	return append(ys, 1900, 2000, 2001, 2100, 2400)
}

func TestRoundTrip(t *testing.T) {
	for name, cal := range calendars(t) {
		t.Run(name, func(t *testing.T) {
			for _, y := range testYears() {
				for m := 1; m <= 12; m++ {
					size, err := cal.MonthSize(y, m)
					require.NoError(t, err)
					valid := 0
					for d := 1; d <= 36; d++ {
						g, err := cal.DateToDay(y, m, d)
						if err != nil {
							require.True(t, errors.Is(err, errors.ErrDataError), "%d-%d-%d: %v", y, m, d, err)
							continue
						}
						valid++
						got, err := cal.DayToDate(g)
						require.NoError(t, err)
						require.Equal(t, []int{y, m, d}, []int{got.Year, got.Month, got.Day})
					}
					require.Equal(t, size, valid, "%s %d-%02d", name, y, m)
				}
			}
		})
	}
}

func TestDayNumbersAreContiguous(t *testing.T) {
	realDays := map[string]bool{"standard": true, "gregorian": true, "proleptic_gregorian": true, "julian": true}
	for name, cal := range calendars(t) {
		t.Run(name, func(t *testing.T) {
			start, err := cal.DateToDay(1580, 1, 1)
			require.NoError(t, err)
			prev, err := cal.DayToDate(start)
			require.NoError(t, err)
			for g := start + 1; g < start+4*366; g++ {
				cur, err := cal.DayToDate(g)
				require.NoError(t, err)
				back, err := cal.DateToDay(cur.Year, cur.Month, cur.Day)
				require.NoError(t, err)
				require.Equal(t, g, back)
				if realDays[name] {
					require.Equal(t, (prev.Weekday+1)%7, cur.Weekday)
				}
				if cur.Year == prev.Year {
					require.Equal(t, prev.YearDay+1, cur.YearDay)
				} else {
					require.Equal(t, 0, cur.YearDay)
				}
				prev = cur
			}
		})
	}
}

func TestMonthSize(t *testing.T) {
	standard := mustNew(t, "standard")
	for _, tt := range []struct {
		y, m, exp int
	}{
		{2000, 2, 29},
		{1900, 2, 28},
		{2001, 2, 28},
		{1500, 2, 29},
		{1582, 10, 21},
		{2001, 12, 31},
	} {
		got, err := standard.MonthSize(tt.y, tt.m)
		require.NoError(t, err)
		require.Equal(t, tt.exp, got, "%d-%02d", tt.y, tt.m)
	}

	got, err := mustNew(t, "julian").MonthSize(1900, 2)
	require.NoError(t, err)
	require.Equal(t, 29, got)
	got, err = mustNew(t, "no_leap").MonthSize(2000, 2)
	require.NoError(t, err)
	require.Equal(t, 28, got)
	got, err = mustNew(t, "all_leap").MonthSize(2001, 2)
	require.NoError(t, err)
	require.Equal(t, 29, got)
	got, err = mustNew(t, "360_day").MonthSize(2001, 2)
	require.NoError(t, err)
	require.Equal(t, 30, got)

	leap, err := standard.IsLeapYear(2000)
	require.NoError(t, err)
	require.True(t, leap)
	leap, err = standard.IsLeapYear(1900)
	require.NoError(t, err)
	require.False(t, leap)

	_, err = standard.MonthSize(2000, 13)
	require.True(t, errors.Is(err, errors.ErrDataError))
}

func TestGregorianCutover(t *testing.T) {
	standard := mustNew(t, "standard")
	last, err := standard.DateToDay(1582, 10, 4)
	require.NoError(t, err)
	first, err := standard.DateToDay(1582, 10, 15)
	require.NoError(t, err)
	require.Equal(t, last+1, first)

	d, err := standard.DayToDate(first)
	require.NoError(t, err)
	require.Equal(t, 5, d.Weekday) // Friday
	d, err = standard.DayToDate(last)
	require.NoError(t, err)
	require.Equal(t, 4, d.Weekday) // Thursday

	_, err = standard.DateToDay(1582, 10, 10)
	require.True(t, errors.Is(err, errors.ErrDataError))

	julian := mustNew(t, "julian")
	g, err := julian.DateToDay(1582, 10, 4)
	require.NoError(t, err)
	d, err = julian.DayToDate(g)
	require.NoError(t, err)
	require.Equal(t, 4, d.Weekday)
}

func TestWeekday(t *testing.T) {
	cal := mustNew(t, "proleptic_gregorian")
	for _, tt := range []struct {
		y, m, d, exp int
	}{
		{1970, 1, 1, 4},
		{2000, 1, 1, 6},
		{2022, 3, 14, 1},
	} {
		g, err := cal.DateToDay(tt.y, tt.m, tt.d)
		require.NoError(t, err)
		got, err := cal.DayToDate(g)
		require.NoError(t, err)
		require.Equal(t, tt.exp, got.Weekday)
	}
}

func TestFamilies(t *testing.T) {
	_, err := calendar.New("")
	require.True(t, errors.Is(err, errors.ErrTimeParsing))
	_, err = calendar.New("martian")
	require.True(t, errors.Is(err, errors.ErrDataError))
	_, err = calendar.New("user_defined")
	require.True(t, errors.Is(err, errors.ErrDataError))
	_, err = calendar.NewUserDefined([12]int{30, 0}, 0, 2)
	require.True(t, errors.Is(err, errors.ErrDataError))

	for _, alias := range [][2]string{{"standard", "gregorian"}, {"proleptic", "proleptic_gregorian"}, {"365_day", "no_leap"}, {"366_day", "all_leap"}} {
		a, err := calendar.ParseFamily(alias[0])
		require.NoError(t, err)
		b, err := calendar.ParseFamily(alias[1])
		require.NoError(t, err)
		require.Equal(t, a, b)
	}
}

func TestUserDefinedLeap(t *testing.T) {
	cal, err := calendar.NewUserDefined([12]int{30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30}, 2, 3)
	require.NoError(t, err)
	for y, exp := range map[int]int{2: 31, 6: 31, -2: 31, 3: 30, 4: 30} {
		got, err := cal.MonthSize(y, 3)
		require.NoError(t, err)
		require.Equal(t, exp, got, "year %d", y)
	}
	a, err := cal.DateToDay(6, 1, 1)
	require.NoError(t, err)
	b, err := cal.DateToDay(7, 1, 1)
	require.NoError(t, err)
	require.Equal(t, 361, b-a)
}
