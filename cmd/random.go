// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"context"
	"io"

	"github.com/featurebasedb/cubestore/ctl"
	"github.com/spf13/cobra"
)

var Randomizer *ctl.RandomCommand

func newRandomCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	Randomizer = ctl.NewRandomCommand(stdin, stdout, stderr)
	randomCmd := &cobra.Command{
		Use:   "random",
		Short: "Create a cube of random measures.",
		Long: `Creates a cube with a single fragment filled with random measures of
the given type. Useful for measuring the backend.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			done, err := setup(Randomizer.CmdIO, Randomizer.Config)
			if err != nil {
				return err
			}
			defer done()
			return Randomizer.Run(context.Background())
		},
	}

	flags := randomCmd.Flags()
	flags.IntVar(&Randomizer.Rows, "rows", 1000, "Number of rows.")
	flags.IntVar(&Randomizer.ArrayLength, "array-length", 100, "Number of values per row.")
	flags.StringVarP(&Randomizer.Type, "type", "t", "float", "Value type: byte, short, int, long, float, double or bit.")
	flags.IntVar(&Randomizer.Container, "container", 1, "Container id of the cube.")
	flags.BoolVar(&Randomizer.Compressed, "compressed", false, "Compress measures.")
	configFlags(flags, Randomizer.Config)

	return randomCmd
}
