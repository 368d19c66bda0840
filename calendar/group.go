// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package calendar

import (
	"github.com/featurebasedb/cubestore/codec"
	"github.com/featurebasedb/cubestore/errors"
)

// Level is a time aggregation concept level.
type Level byte

const (
	Second     Level = 's'
	Minute     Level = 'm'
	Hour       Level = 'h'
	ThreeHours Level = '3'
	SixHours   Level = '6'
	Day        Level = 'd'
	Week       Level = 'w'
	Month      Level = 'M'
	Quarter    Level = 'q'
	Year       Level = 'y'
)

// ParseLevel validates a concept level code.
func ParseLevel(s string) (Level, error) {
	if len(s) != 1 {
		return 0, errors.NewErrDataError("invalid concept level '%s'", s)
	}
	l := Level(s[0])
	switch l {
	case Second, Minute, Hour, ThreeHours, SixHours, Day, Week, Month, Quarter, Year:
		return l, nil
	}
	return 0, errors.NewErrDataError("invalid concept level '%s'", s)
}

func (l Level) subDaily() bool {
	switch l {
	case Second, Minute, Hour, ThreeHours, SixHours:
		return true
	}
	return false
}

// Midnight selects which day an instant at exactly 00:00:00 belongs to.
type Midnight int

const (
	// Midnight00 puts midnight at the start of its own day.
	Midnight00 Midnight = iota
	// Midnight24 puts midnight at the end of the previous day.
	Midnight24
)

// GroupState carries the fields of the previously examined value across
// IsInTimeGroup calls, and the calendar, base time and units of the
// dimension it was used with. The zero value is ready to use. Reset it
// before reusing it for a modified dimension.
type GroupState struct {
	prev    Date
	started bool

	dim *Dimension
	res *resolved
}

// Reset forgets the previous value.
func (s *GroupState) Reset() { *s = GroupState{} }

// sameGroup compares a and b at level l and every coarser level: equality of
// seconds is only meaningful together with equality of minutes, and so on up
// to the year.
func sameGroup(a, b Date, l Level) bool {
	switch l {
	case Second:
		if a.Second != b.Second {
			return false
		}
		fallthrough
	case Minute:
		if a.Minute != b.Minute {
			return false
		}
		fallthrough
	case Hour:
		if a.Hour != b.Hour {
			return false
		}
		fallthrough
	case ThreeHours:
		if a.Hour/3 != b.Hour/3 {
			return false
		}
		fallthrough
	case SixHours:
		if a.Hour/6 != b.Hour/6 {
			return false
		}
		fallthrough
	case Day:
		if a.Day != b.Day {
			return false
		}
		fallthrough
	case Week:
		if a.YearDay-a.Weekday != b.YearDay-b.Weekday {
			return false
		}
		fallthrough
	case Month:
		if a.Month != b.Month {
			return false
		}
		fallthrough
	case Quarter:
		if (a.Month-1)/3 != (b.Month-1)/3 {
			return false
		}
		fallthrough
	case Year:
		return a.Year == b.Year
	}
	return false
}

// IsInTimeGroup reports whether the i-th value of a time dimension belongs to
// the same level bucket as the previous value seen through state. The first
// value always starts a new group. When centroid is set, the value is
// replaced in place by the midpoint of its bucket, expressed in the
// dimension's units.
func IsInTimeGroup(values *codec.Array, i int, dim *Dimension, level Level, state *GroupState, midnight Midnight, centroid bool) (bool, error) {
	if state == nil {
		return false, errors.NewErrNullParameter("state")
	}
	if _, err := ParseLevel(string(level)); err != nil {
		return false, err
	}
	if state.res == nil || state.dim != dim {
		r, err := dim.resolve()
		if err != nil {
			return false, err
		}
		state.dim, state.res = dim, r
	}
	r := state.res
	date, secs, err := r.valueToTime(values, i)
	if err != nil {
		return false, err
	}

	if midnight == Midnight24 && !level.subDaily() && date.Hour == 0 && date.Minute == 0 && date.Second == 0 && secs == float64(int64(secs)) {
		prev, err := r.cal.FromSeconds(secs - secondsPerDay)
		if err != nil {
			return false, err
		}
		prev.Hour = 24
		date = prev
	}

	in := state.started && sameGroup(state.prev, date, level)
	state.prev = date
	state.started = true

	if centroid {
		mid, err := r.centroid(date, level)
		if err != nil {
			return false, err
		}
		if err := values.SetFloat64(i, (mid-r.base)/r.scale); err != nil {
			return false, err
		}
	}
	return in, nil
}

// centroid returns the midpoint, in seconds, of the level bucket holding d.
func (r *resolved) centroid(d Date, l Level) (float64, error) {
	var start, length float64
	day, err := r.cal.DateToDay(d.Year, d.Month, d.Day)
	if err != nil {
		return 0, err
	}
	dayStart := float64(day) * secondsPerDay
	switch l {
	case Second:
		start, length = dayStart+float64(d.Hour*3600+d.Minute*60+d.Second), 1
	case Minute:
		start, length = dayStart+float64(d.Hour*3600+d.Minute*60), 60
	case Hour:
		start, length = dayStart+float64(d.Hour*3600), 3600
	case ThreeHours:
		start, length = dayStart+float64(d.Hour/3*3*3600), 3*3600
	case SixHours:
		start, length = dayStart+float64(d.Hour/6*6*3600), 6*3600
	case Day:
		start, length = dayStart, secondsPerDay
	default:
		first, last, err := r.dayBounds(d, l, day)
		if err != nil {
			return 0, err
		}
		start, length = float64(first)*secondsPerDay, float64(last-first)*secondsPerDay
	}
	return start + length/2, nil
}

// dayBounds returns the half-open day range of a week, month, quarter or year
// bucket. Weeks are clipped to their month.
func (r *resolved) dayBounds(d Date, l Level, day int) (first, last int, err error) {
	monthStart, err := r.cal.DateToDay(d.Year, d.Month, 1)
	if err != nil {
		return 0, 0, err
	}
	monthLen, err := r.cal.MonthSize(d.Year, d.Month)
	if err != nil {
		return 0, 0, err
	}
	switch l {
	case Week:
		first = day - d.Weekday
		last = first + 7
		if first < monthStart {
			first = monthStart
		}
		if end := monthStart + monthLen; last > end {
			last = end
		}
	case Month:
		first, last = monthStart, monthStart+monthLen
	case Quarter:
		m0 := (d.Month-1)/3*3 + 1
		if first, err = r.cal.DateToDay(d.Year, m0, 1); err != nil {
			return 0, 0, err
		}
		last = first
		for m := m0; m < m0+3; m++ {
			n, err := r.cal.MonthSize(d.Year, m)
			if err != nil {
				return 0, 0, err
			}
			last += n
		}
	case Year:
		if first, err = r.cal.DateToDay(d.Year, 1, 1); err != nil {
			return 0, 0, err
		}
		if last, err = r.cal.DateToDay(d.Year+1, 1, 1); err != nil {
			return 0, 0, err
		}
	}
	return first, last, nil
}
