// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package calendar

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/featurebasedb/cubestore/codec"
	"github.com/featurebasedb/cubestore/errors"
)

const secondsPerDay = 86400

// Date holds decomposed calendar fields.
type Date struct {
	Year    int `json:"year"`
	Month   int `json:"month"`
	Day     int `json:"day"`
	Hour    int `json:"hour"`
	Minute  int `json:"minute"`
	Second  int `json:"second"`
	Weekday int `json:"weekday"`
	YearDay int `json:"yearday"`
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second)
}

// Dimension is the persisted metadata of a time dimension. Units holds a
// granularity code whose first character is one of s, m, h, 3, 6 or d.
type Dimension struct {
	Name         string     `json:"name"`
	Type         codec.Type `json:"type"`
	Calendar     string     `json:"calendar"`
	BaseTime     string     `json:"baseTime"`
	Units        string     `json:"units"`
	MonthLengths [12]int    `json:"monthLengths"`
	LeapYear     int        `json:"leapYear"`
	LeapMonth    int        `json:"leapMonth"`
}

// CalendarOf returns the calendar described by dim.
func (dim *Dimension) CalendarOf() (Calendar, error) {
	f, err := ParseFamily(dim.Calendar)
	if err != nil {
		return Calendar{}, err
	}
	if f == UserDefined {
		return NewUserDefined(dim.MonthLengths, dim.LeapYear, dim.LeapMonth)
	}
	return Calendar{Family: f}, nil
}

// UnitSeconds returns the number of seconds in one unit of the given
// granularity code.
func UnitSeconds(units string) (float64, error) {
	if units == "" {
		return 0, errors.NewErrTimeParsing("missing time units")
	}
	scale := 1.0
	switch units[0] {
	case 'd':
		scale *= 4
		fallthrough
	case '6':
		scale *= 2
		fallthrough
	case '3':
		scale *= 3
		fallthrough
	case 'h':
		scale *= 60
		fallthrough
	case 'm':
		scale *= 60
		fallthrough
	case 's':
	default:
		return 0, errors.NewErrTimeParsing("unsupported time units '%s'", units)
	}
	return scale, nil
}

var unitWords = map[string]string{
	"s": "s", "sec": "s", "secs": "s", "second": "s", "seconds": "s",
	"m": "m", "min": "m", "mins": "m", "minute": "m", "minutes": "m",
	"h": "h", "hr": "h", "hrs": "h", "hour": "h", "hours": "h",
	"3": "3", "3h": "3", "3hours": "3",
	"6": "6", "6h": "6", "6hours": "6",
	"d": "d", "day": "d", "days": "d",
}

// ParseUnits splits a CF units attribute such as "days since 1900-01-01" into
// a granularity code and a base time.
func ParseUnits(s string) (units, baseTime string, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), " since ", 2)
	if len(parts) != 2 {
		return "", "", errors.NewErrTimeParsing("units '%s' are not of the form '<unit> since <time>'", s)
	}
	word := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(parts[0]), " ", ""))
	code, ok := unitWords[word]
	if !ok {
		return "", "", errors.NewErrTimeParsing("unsupported time unit '%s'", parts[0])
	}
	base := strings.TrimSpace(parts[1])
	if _, err := ParseBaseTime(base); err != nil {
		return "", "", err
	}
	return code, base, nil
}

var baseTimeRe = regexp.MustCompile(`^(-?\d+)-(\d{1,2})-(\d{1,2})(?:[ T](\d{1,2}):(\d{1,2})(?::(\d{1,2})(?:\.\d*)?)?)?\s*(?:Z|UTC)?$`)

// ParseBaseTime parses "YYYY-MM-DD[ hh:mm[:ss]]". The fields are not checked
// against any calendar.
func ParseBaseTime(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, errors.NewErrTimeParsing("missing base time")
	}
	m := baseTimeRe.FindStringSubmatch(s)
	if m == nil {
		return Date{}, errors.NewErrTimeParsing("malformed base time '%s'", s)
	}
	fields := make([]int, 6)
	for i := 1; i <= 6; i++ {
		if m[i] == "" {
			continue
		}
		v, err := strconv.Atoi(m[i])
		if err != nil {
			return Date{}, errors.NewErrTimeParsing("malformed base time '%s'", s)
		}
		fields[i-1] = v
	}
	d := Date{Year: fields[0], Month: fields[1], Day: fields[2], Hour: fields[3], Minute: fields[4], Second: fields[5]}
	if d.Month < 1 || d.Month > 12 || d.Day < 1 || d.Hour > 24 || d.Minute > 59 || d.Second > 60 {
		return Date{}, errors.NewErrTimeParsing("base time '%s' out of range", s)
	}
	return d, nil
}

// Seconds returns the number of seconds between the calendar epoch and date.
func (c Calendar) Seconds(date Date) (float64, error) {
	day, err := c.DateToDay(date.Year, date.Month, date.Day)
	if err != nil {
		return 0, err
	}
	return float64(day)*secondsPerDay + float64(date.Hour*3600+date.Minute*60+date.Second), nil
}

// FromSeconds decomposes seconds since the calendar epoch.
func (c Calendar) FromSeconds(secs float64) (Date, error) {
	day := math.Floor(secs / secondsPerDay)
	rem := int(math.Floor(secs - day*secondsPerDay))
	date, err := c.DayToDate(int(day))
	if err != nil {
		return Date{}, err
	}
	date.Hour = rem / 3600
	date.Minute = rem % 3600 / 60
	date.Second = rem % 60
	return date, nil
}

// resolved holds what every value conversion needs from a Dimension.
type resolved struct {
	cal   Calendar
	base  float64
	scale float64
}

func (dim *Dimension) resolve() (*resolved, error) {
	if dim == nil {
		return nil, errors.NewErrNullParameter("dimension")
	}
	cal, err := dim.CalendarOf()
	if err != nil {
		return nil, err
	}
	scale, err := UnitSeconds(dim.Units)
	if err != nil {
		return nil, err
	}
	bt, err := ParseBaseTime(dim.BaseTime)
	if err != nil {
		return nil, err
	}
	base, err := cal.Seconds(bt)
	if err != nil {
		return nil, errors.Wrap(err, "base time")
	}
	return &resolved{cal: cal, base: base, scale: scale}, nil
}

// ValueToTime converts the i-th stored value of a dimension into calendar
// fields. The second result is the number of seconds since the calendar
// epoch, including any fractional part.
func ValueToTime(values *codec.Array, i int, dim *Dimension) (Date, float64, error) {
	r, err := dim.resolve()
	if err != nil {
		return Date{}, 0, err
	}
	return r.valueToTime(values, i)
}

func (r *resolved) valueToTime(values *codec.Array, i int) (Date, float64, error) {
	if values == nil {
		return Date{}, 0, errors.NewErrNullParameter("values")
	}
	v, err := values.Float64(i)
	if err != nil {
		return Date{}, 0, err
	}
	secs := r.base + v*r.scale
	date, err := r.cal.FromSeconds(secs)
	return date, secs, err
}

// TimeToValue is the inverse of ValueToTime: it returns the value, in the
// dimension's units, that stands for date.
func TimeToValue(date Date, dim *Dimension) (float64, error) {
	r, err := dim.resolve()
	if err != nil {
		return 0, err
	}
	secs, err := r.cal.Seconds(date)
	if err != nil {
		return 0, err
	}
	return (secs - r.base) / r.scale, nil
}
