// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package calendar converts between calendar dates and linear day numbers for
// the calendar families used by climate and forecast data, and maps stored
// dimension values to dates.
//
// Day numbers count days from January 1st of year 0 of the calendar in
// question. For the mixed gregorian family the axis is the proleptic
// Gregorian one, so Julian dates before the 1582 cutover are shifted onto it.
package calendar

import (
	"strings"

	"github.com/featurebasedb/cubestore/errors"
)

// Family identifies a calendar system.
type Family int

const (
	// Gregorian is the mixed Julian/Gregorian calendar with the cutover on
	// 1582-10-15. Also known as "standard".
	Gregorian Family = iota + 1
	ProlepticGregorian
	Julian
	Day360
	NoLeap
	AllLeap
	UserDefined
)

var familyNames = map[string]Family{
	"gregorian":           Gregorian,
	"standard":            Gregorian,
	"proleptic_gregorian": ProlepticGregorian,
	"proleptic":           ProlepticGregorian,
	"julian":              Julian,
	"360_day":             Day360,
	"no_leap":             NoLeap,
	"noleap":              NoLeap,
	"365_day":             NoLeap,
	"all_leap":            AllLeap,
	"366_day":             AllLeap,
	"user_defined":        UserDefined,
}

func (f Family) String() string {
	switch f {
	case Gregorian:
		return "gregorian"
	case ProlepticGregorian:
		return "proleptic_gregorian"
	case Julian:
		return "julian"
	case Day360:
		return "360_day"
	case NoLeap:
		return "no_leap"
	case AllLeap:
		return "all_leap"
	case UserDefined:
		return "user_defined"
	}
	return "unknown"
}

// ParseFamily resolves a calendar name. An empty name is a time parsing
// error; an unknown one is a data error.
func ParseFamily(name string) (Family, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return 0, errors.NewErrTimeParsing("missing calendar name")
	}
	f, ok := familyNames[name]
	if !ok {
		return 0, errors.NewErrDataError("unsupported calendar '%s'", name)
	}
	return f, nil
}

var standardMonths = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// Cutover dates of the mixed gregorian family.
const (
	cutoverYear     = 1582
	cutoverMonth    = 10
	lastJulianDay   = 4
	firstGregorianD = 15
)

// Calendar performs date arithmetic for one family. MonthLengths, LeapYear
// and LeapMonth are only used by UserDefined: a year y is a leap year when
// (y-LeapYear) is a multiple of 4, and then LeapMonth gets one extra day.
// LeapMonth 0 disables leap years.
type Calendar struct {
	Family       Family
	MonthLengths [12]int
	LeapYear     int
	LeapMonth    int
}

// New returns a calendar for one of the predefined families.
func New(name string) (Calendar, error) {
	f, err := ParseFamily(name)
	if err != nil {
		return Calendar{}, err
	}
	if f == UserDefined {
		return Calendar{}, errors.NewErrDataError("user_defined calendar requires month lengths")
	}
	return Calendar{Family: f}, nil
}

// NewUserDefined returns a user defined calendar.
func NewUserDefined(months [12]int, leapYear, leapMonth int) (Calendar, error) {
	c := Calendar{Family: UserDefined, MonthLengths: months, LeapYear: leapYear, LeapMonth: leapMonth}
	return c, c.validate()
}

func (c Calendar) validate() error {
	if c.Family < Gregorian || c.Family > UserDefined {
		return errors.NewErrDataError("unsupported calendar family %d", int(c.Family))
	}
	if c.Family != UserDefined {
		return nil
	}
	for i, n := range c.MonthLengths {
		if n <= 0 {
			return errors.NewErrDataError("month %d of user defined calendar has length %d", i+1, n)
		}
	}
	if c.LeapMonth < 0 || c.LeapMonth > 12 {
		return errors.NewErrDataError("invalid leap month %d", c.LeapMonth)
	}
	return nil
}

// rules is the closed-form description of a single (non-mixed) calendar.
type rules struct {
	before    func(y int) int // days from year 0 to January 1st of y
	leap      func(y int) bool
	months    [12]int
	leapMonth int
	approx    int
}

func (r *rules) monthLen(y, m int) int {
	n := r.months[m-1]
	if m == r.leapMonth && r.leap(y) {
		n++
	}
	return n
}

func (r *rules) dayOf(y, m, d int) int {
	n := r.before(y)
	for k := 1; k < m; k++ {
		n += r.monthLen(y, k)
	}
	return n + d - 1
}

// date inverts dayOf. The year estimate is corrected in both directions so
// that any reasonable approx converges.
func (r *rules) date(g int) (y, m, d, yday int) {
	y = floorDiv(g, r.approx)
	for r.before(y) > g {
		y--
	}
	for r.before(y+1) <= g {
		y++
	}
	doy := g - r.before(y)
	yday = doy
	m = 1
	for m < 12 && doy >= r.monthLen(y, m) {
		doy -= r.monthLen(y, m)
		m++
	}
	return y, m, doy + 1, yday
}

var gregorianRules = &rules{
	before: func(y int) int {
		return 365*y + floorDiv(y+3, 4) - floorDiv(y+99, 100) + floorDiv(y+399, 400)
	},
	leap:      gregorianLeap,
	months:    standardMonths,
	leapMonth: 2,
	approx:    365,
}

var julianRules = &rules{
	before:    func(y int) int { return 365*y + floorDiv(y+3, 4) },
	leap:      julianLeap,
	months:    standardMonths,
	leapMonth: 2,
	approx:    365,
}

var noLeapRules = &rules{
	before: func(y int) int { return 365 * y },
	leap:   func(int) bool { return false },
	months: standardMonths,
	approx: 365,
}

var allLeapRules = &rules{
	before:    func(y int) int { return 366 * y },
	leap:      func(int) bool { return true },
	months:    standardMonths,
	leapMonth: 2,
	approx:    366,
}

var day360Rules = &rules{
	before: func(y int) int { return 360 * y },
	leap:   func(int) bool { return false },
	months: [12]int{30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30},
	approx: 360,
}

func gregorianLeap(y int) bool { return y%4 == 0 && (y%100 != 0 || y%400 == 0) }
func julianLeap(y int) bool    { return floorMod(y, 4) == 0 }

// julianOffset maps Julian day numbers onto the proleptic Gregorian axis so
// that 1582-10-04 (Julian) is immediately followed by 1582-10-15.
var julianOffset = gregorianRules.dayOf(cutoverYear, cutoverMonth, firstGregorianD) -
	julianRules.dayOf(cutoverYear, cutoverMonth, lastJulianDay) - 1

var cutoverDay = gregorianRules.dayOf(cutoverYear, cutoverMonth, firstGregorianD)

func (c Calendar) rules() *rules {
	switch c.Family {
	case ProlepticGregorian:
		return gregorianRules
	case Julian:
		return julianRules
	case Day360:
		return day360Rules
	case NoLeap:
		return noLeapRules
	case AllLeap:
		return allLeapRules
	case UserDefined:
		r := floorMod(c.LeapYear, 4)
		yearLen := 0
		for _, n := range c.MonthLengths {
			yearLen += n
		}
		if c.LeapMonth == 0 {
			return &rules{
				before: func(y int) int { return yearLen * y },
				leap:   func(int) bool { return false },
				months: c.MonthLengths,
				approx: yearLen,
			}
		}
		return &rules{
			before:    func(y int) int { return yearLen*y + floorDiv(y-r+3, 4) },
			leap:      func(y int) bool { return floorMod(y-r, 4) == 0 },
			months:    c.MonthLengths,
			leapMonth: c.LeapMonth,
			approx:    yearLen,
		}
	}
	return nil
}

// beforeCutover reports whether (y, m, d) is a Julian date in the mixed
// calendar, and inGap whether it falls in the ten skipped days.
func beforeCutover(y, m, d int) (julian, inGap bool) {
	switch {
	case y != cutoverYear:
		return y < cutoverYear, false
	case m != cutoverMonth:
		return m < cutoverMonth, false
	case d <= lastJulianDay:
		return true, false
	case d < firstGregorianD:
		return false, true
	}
	return false, false
}

// IsLeapYear reports whether y is a leap year.
func (c Calendar) IsLeapYear(y int) (bool, error) {
	if err := c.validate(); err != nil {
		return false, err
	}
	if c.Family == Gregorian {
		if y <= cutoverYear {
			return julianLeap(y), nil
		}
		return gregorianLeap(y), nil
	}
	return c.rules().leap(y), nil
}

// MonthSize returns the number of days of month m in year y. For the mixed
// gregorian family October 1582 has 21 days.
func (c Calendar) MonthSize(y, m int) (int, error) {
	if err := c.validate(); err != nil {
		return 0, err
	}
	if m < 1 || m > 12 {
		return 0, errors.NewErrDataError("invalid month %d", m)
	}
	if c.Family == Gregorian {
		switch {
		case y == cutoverYear && m == cutoverMonth:
			return standardMonths[m-1] - (firstGregorianD - lastJulianDay - 1), nil
		case y <= cutoverYear:
			return julianRules.monthLen(y, m), nil
		}
		return gregorianRules.monthLen(y, m), nil
	}
	return c.rules().monthLen(y, m), nil
}

func (c Calendar) checkDate(r *rules, y, m, d int) error {
	if m < 1 || m > 12 {
		return errors.NewErrDataError("invalid month %d", m)
	}
	if d < 1 || d > r.monthLen(y, m) {
		return errors.NewErrDataError("invalid day %d for %04d-%02d in %s calendar", d, y, m, c.Family)
	}
	return nil
}

// DateToDay returns the day number of (y, m, d).
func (c Calendar) DateToDay(y, m, d int) (int, error) {
	if err := c.validate(); err != nil {
		return 0, err
	}
	if c.Family == Gregorian {
		julian, gap := beforeCutover(y, m, d)
		if gap {
			return 0, errors.NewErrDataError("date %04d-%02d-%02d does not exist in the gregorian calendar", y, m, d)
		}
		if julian {
			if err := c.checkDate(julianRules, y, m, d); err != nil {
				return 0, err
			}
			return julianRules.dayOf(y, m, d) + julianOffset, nil
		}
		if err := c.checkDate(gregorianRules, y, m, d); err != nil {
			return 0, err
		}
		return gregorianRules.dayOf(y, m, d), nil
	}
	r := c.rules()
	if err := c.checkDate(r, y, m, d); err != nil {
		return 0, err
	}
	return r.dayOf(y, m, d), nil
}

// DayToDate is the inverse of DateToDay. Weekday (Sunday = 0) and YearDay
// (0-based, January 1st = 0) are filled in as well.
func (c Calendar) DayToDate(g int) (Date, error) {
	if err := c.validate(); err != nil {
		return Date{}, err
	}
	var out Date
	var weekdayAxis int
	switch c.Family {
	case Gregorian:
		if g >= cutoverDay {
			out.Year, out.Month, out.Day, out.YearDay = gregorianRules.date(g)
		} else {
			out.Year, out.Month, out.Day, out.YearDay = julianRules.date(g - julianOffset)
		}
		if out.Year == cutoverYear && g >= cutoverDay {
			// The gregorian part of 1582 starts ten days later in the year.
			out.YearDay -= firstGregorianD - lastJulianDay - 1
		}
		weekdayAxis = g
	case ProlepticGregorian:
		out.Year, out.Month, out.Day, out.YearDay = gregorianRules.date(g)
		weekdayAxis = g
	case Julian:
		out.Year, out.Month, out.Day, out.YearDay = julianRules.date(g)
		weekdayAxis = g + julianOffset
	default:
		out.Year, out.Month, out.Day, out.YearDay = c.rules().date(g)
		// Calendar independent: treat the fields as a proleptic Gregorian
		// date, overflowing days into the following month like mktime.
		weekdayAxis = gregorianRules.dayOf(out.Year, out.Month, 1) + out.Day - 1
	}
	out.Weekday = weekday(weekdayAxis)
	return out, nil
}

// epochDay is 1970-01-01, a Thursday.
var epochDay = gregorianRules.dayOf(1970, 1, 1)

func weekday(g int) int { return floorMod(g-epochDay+4, 7) }

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floorMod(a, b int) int { return a - floorDiv(a, b)*b }
