// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"context"
	"io"

	"github.com/featurebasedb/cubestore/ctl"
	"github.com/spf13/cobra"
)

var Calendar *ctl.CalendarCommand

func newCalendarCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	Calendar = ctl.NewCalendarCommand(stdin, stdout, stderr)
	calendarCmd := &cobra.Command{
		Use:   "calendar <value>...",
		Short: "Convert values of a time dimension to dates.",
		Long: `Converts values of a catalogued time dimension to dates in the
dimension's calendar, or dates to values with --reverse.
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			done, err := setup(Calendar.CmdIO, Calendar.Config)
			if err != nil {
				return err
			}
			defer done()
			Calendar.Values = args
			return Calendar.Run(context.Background())
		},
	}

	flags := calendarCmd.Flags()
	flags.IntVar(&Calendar.Cube, "cube", 0, "Cube of the dimension.")
	flags.StringVar(&Calendar.Dimension, "dim", "time", "Time dimension.")
	flags.BoolVar(&Calendar.Reverse, "reverse", false, "Convert dates to values.")
	configFlags(flags, Calendar.Config)

	return calendarCmd
}
