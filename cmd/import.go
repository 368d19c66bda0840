// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"context"
	"io"

	"github.com/featurebasedb/cubestore/ctl"
	"github.com/spf13/cobra"
)

// Importer is global so that tests can control and verify it.
var Importer *ctl.ImportCommand

// newImportCommand runs the import subcommand for ingesting NetCDF variables.
func newImportCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	Importer = ctl.NewImportCommand(stdin, stdout, stderr)
	importCmd := &cobra.Command{
		Use:   "import <file.nc>",
		Short: "Import a NetCDF variable as a new cube.",
		Long: `Imports one variable of a NetCDF classic file as a new cube.

The explicit dimensions, in level order, become the keys of the fragment
rows; every other dimension of the variable is stored inside the measure
array of each row. The rows are split into the requested number of
fragments, which are created in a new database on the configured backend
and recorded in the catalog of the data directory.

With --time-dim, only the time steps between --from and --to are imported.
Dates are written as YYYY-MM-DD with an optional hh:mm:ss.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			done, err := setup(Importer.CmdIO, Importer.Config)
			if err != nil {
				return err
			}
			defer done()
			Importer.Path = args[0]
			return Importer.Run(context.Background())
		},
	}

	flags := importCmd.Flags()
	flags.StringVarP(&Importer.Variable, "variable", "V", "", "Variable to import.")
	flags.StringSliceVarP(&Importer.Explicit, "explicit", "e", nil, "Explicit dimensions in level order.")
	flags.IntVarP(&Importer.Fragments, "fragments", "n", 1, "Number of fragments.")
	flags.IntVar(&Importer.Container, "container", 1, "Container id of the cube.")
	flags.BoolVar(&Importer.Compressed, "compressed", false, "Compress measures.")
	flags.StringVar(&Importer.TimeDim, "time-dim", "", "Time dimension restricted by --from and --to.")
	flags.StringVar(&Importer.From, "from", "", "First date imported.")
	flags.StringVar(&Importer.To, "to", "", "Last date imported.")
	configFlags(flags, Importer.Config)

	return importCmd
}
