// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/featurebasedb/cubestore"
	"github.com/featurebasedb/cubestore/calendar"
	"github.com/featurebasedb/cubestore/codec"
	"github.com/featurebasedb/cubestore/config"
	"github.com/featurebasedb/cubestore/errors"
)

// CalendarCommand converts between stored values of a catalogued time
// dimension and dates.
type CalendarCommand struct {
	Cube      int    `json:"cube"`
	Dimension string `json:"dimension"`

	// Values are converted to dates, unless Reverse is set, in which case
	// they are dates converted to values.
	Values  []string `json:"values"`
	Reverse bool     `json:"reverse"`

	Config *config.Config

	*cubestore.CmdIO
}

// NewCalendarCommand returns a new instance of CalendarCommand.
func NewCalendarCommand(stdin io.Reader, stdout, stderr io.Writer) *CalendarCommand {
	return &CalendarCommand{
		CmdIO:  cubestore.NewCmdIO(stdin, stdout, stderr),
		Config: config.NewConfig(),
	}
}

// Run prints one converted value per line.
func (cmd *CalendarCommand) Run(_ context.Context) error {
	if cmd.Dimension == "" {
		return errors.NewErrNullParameter("dimension")
	} else if len(cmd.Values) == 0 {
		return errors.NewErrNullParameter("values")
	}
	e, err := openEnv(cmd.Config, cmd.Logger())
	if err != nil {
		return err
	}
	defer e.Close()
	dim, err := e.cat.Dimension(cmd.Cube, cmd.Dimension)
	if err != nil {
		return err
	}

	if cmd.Reverse {
		for _, s := range cmd.Values {
			date, err := calendar.ParseBaseTime(s)
			if err != nil {
				return err
			}
			v, err := calendar.TimeToValue(date, dim)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.Stdout, "%s\t%s\n", s, strconv.FormatFloat(v, 'g', -1, 64))
		}
		return nil
	}

	values, err := codec.AllocArray(codec.Double, len(cmd.Values))
	if err != nil {
		return err
	}
	for i, s := range cmd.Values {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return errors.NewErrDataError("invalid value '%s'", s)
		}
		if err := values.SetFloat64(i, f); err != nil {
			return err
		}
	}
	for i, s := range cmd.Values {
		date, _, err := calendar.ValueToTime(values, i, dim)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.Stdout, "%s\t%s\n", s, date)
	}
	return nil
}
