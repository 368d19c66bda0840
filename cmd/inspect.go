// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"context"
	"io"

	"github.com/featurebasedb/cubestore/ctl"
	"github.com/spf13/cobra"
)

var Inspector *ctl.InspectCommand

func newInspectCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	Inspector = ctl.NewInspectCommand(stdin, stdout, stderr)
	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Report the stored state of cubes.",
		Long: `Without --cube, lists the cubes of the catalog. With --cube, reports
the rows, array elements, size and checksum of every fragment of the cube.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			done, err := setup(Inspector.CmdIO, Inspector.Config)
			if err != nil {
				return err
			}
			defer done()
			return Inspector.Run(context.Background())
		},
	}

	flags := inspectCmd.Flags()
	flags.IntVar(&Inspector.Cube, "cube", 0, "Cube to inspect.")
	flags.BoolVar(&Inspector.Check, "check", false, "Fail when a fragment does not hold one row per key.")
	configFlags(flags, Inspector.Config)

	return inspectCmd
}
