// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/featurebasedb/cubestore"
	"github.com/featurebasedb/cubestore/config"
	"github.com/featurebasedb/cubestore/errors"
)

// InspectCommand reports the stored state of a cube: per fragment its rows,
// elements, size and checksum. With no cube it lists the catalog.
type InspectCommand struct {
	Cube int `json:"cube"`

	// Check compares the stored rows of every fragment with its key range.
	Check bool `json:"check"`

	Config *config.Config

	*cubestore.CmdIO
}

// NewInspectCommand returns a new instance of InspectCommand.
func NewInspectCommand(stdin io.Reader, stdout, stderr io.Writer) *InspectCommand {
	return &InspectCommand{
		CmdIO:  cubestore.NewCmdIO(stdin, stdout, stderr),
		Config: config.NewConfig(),
	}
}

// Run prints the report.
func (cmd *InspectCommand) Run(ctx context.Context) error {
	if cmd.Cube < 0 {
		return errors.NewErrDataError("invalid cube id %d", cmd.Cube)
	}
	e, err := openEnv(cmd.Config, cmd.Logger())
	if err != nil {
		return err
	}
	defer e.Close()

	tw := tabwriter.NewWriter(cmd.Stdout, 0, 8, 1, ' ', 0)
	if cmd.Cube == 0 {
		cubes, err := e.cat.Cubes()
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "CUBE\tSOURCE\tMEASURE\tTYPE\tCOMPRESSED\tCREATED")
		for _, c := range cubes {
			name, typ := "", ""
			if c.Measure != nil {
				name, typ = c.Measure.Name, c.Measure.Type.String()
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%v\t%s\n", c.ID, c.Source, name, typ, c.Compressed, c.Created.Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	}

	cube, err := e.cat.Cube(cmd.Cube)
	if err != nil {
		return err
	}
	if cube.Measure == nil {
		return errors.NewErrDataError("cube %d has no measure", cube.ID)
	}
	frags, err := e.fragments(cube.ID)
	if err != nil {
		return err
	}
	typ := cube.Measure.Type

	fmt.Fprintf(cmd.Stdout, "cube %d: %s (%s) from %s\n", cube.ID, cube.Measure.Name, typ, cube.Source)
	fmt.Fprintln(tw, "FRAGMENT\tKEYS\tROWS\tELEMENTS\tBYTES\tCHECKSUM")
	var mismatched []string
	for _, frag := range frags {
		rows, err := e.store.TotalRows(ctx, frag)
		if err != nil {
			return err
		}
		elems, err := e.store.TotalElements(ctx, frag, typ, cube.Compressed)
		if err != nil {
			return err
		}
		size, err := e.store.FragmentSizeBytes(ctx, frag)
		if err != nil {
			return err
		}
		sum, err := e.store.Checksum(ctx, frag)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%016x\n", frag.QualifiedName(), frag.Keys, rows, elems, size, sum)
		if rows != frag.TupleCount() {
			mismatched = append(mismatched, frag.Name)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if cmd.Check && len(mismatched) > 0 {
		return errors.NewErrDataError("fragments with missing or extra rows: %v", mismatched)
	}
	return nil
}
