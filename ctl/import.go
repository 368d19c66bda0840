// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/featurebasedb/cubestore"
	"github.com/featurebasedb/cubestore/catalog"
	"github.com/featurebasedb/cubestore/config"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/featurebasedb/cubestore/importer"
	"github.com/featurebasedb/cubestore/netcdf"
)

// ImportCommand imports one variable of a NetCDF file as a new cube.
type ImportCommand struct {
	// File to import from.
	Path string `json:"path"`

	// Variable holding the measure.
	Variable string `json:"variable"`

	// Explicit dimensions in level order. Every other dimension of the
	// variable is stored inside the measure arrays.
	Explicit []string `json:"explicit"`

	// Number of fragments the cube is split into.
	Fragments int `json:"fragments"`

	Container  int  `json:"container"`
	Compressed bool `json:"compressed"`

	// TimeDim optionally restricts the import to the values of a time
	// coordinate between From and To. Either bound may be empty.
	TimeDim string `json:"timeDim"`
	From    string `json:"from"`
	To      string `json:"to"`

	Config *config.Config

	*cubestore.CmdIO
}

// NewImportCommand returns a new instance of ImportCommand.
func NewImportCommand(stdin io.Reader, stdout, stderr io.Writer) *ImportCommand {
	return &ImportCommand{
		CmdIO:     cubestore.NewCmdIO(stdin, stdout, stderr),
		Fragments: 1,
		Container: 1,
		Config:    config.NewConfig(),
	}
}

// Run executes the import.
func (cmd *ImportCommand) Run(ctx context.Context) error {
	log := cmd.Logger()

	// Validate arguments before touching the file or the backend.
	if cmd.Path == "" {
		return errors.NewErrNullParameter("path")
	} else if cmd.Variable == "" {
		return errors.NewErrNullParameter("variable")
	} else if cmd.Fragments < 1 {
		return errors.NewErrDataError("fragments must be positive, got %d", cmd.Fragments)
	} else if cmd.Container < 1 {
		return errors.NewErrDataError("container must be positive, got %d", cmd.Container)
	} else if cmd.TimeDim == "" && (cmd.From != "" || cmd.To != "") {
		return errors.NewErrNullParameter("time dimension")
	}

	f, err := netcdf.Open(cmd.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	v, err := f.Variable(cmd.Variable, cmd.Explicit...)
	if err != nil {
		return err
	}
	if cmd.TimeDim != "" {
		if err := cmd.restrictTime(f, v); err != nil {
			return err
		}
	}

	e, err := openEnv(cmd.Config, log)
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := e.cat.NextCubeID()
	if err != nil {
		return err
	}
	db := &cubestore.DBInstance{ID: 1, Name: cubestore.DatabaseName(id, cmd.Container, e.dbms.ID, 0), DBMS: e.dbms}
	if err := e.store.CreateDatabase(ctx, db); err != nil {
		return err
	}
	ranges, err := cubestore.Partition(v.TupleCount(), cmd.Fragments)
	if err != nil {
		return err
	}
	frags := make([]*cubestore.Fragment, len(ranges))
	for i, r := range ranges {
		frags[i] = &cubestore.Fragment{
			ID:            i + 1,
			CubeID:        id,
			RelativeIndex: i,
			Name:          cubestore.FragmentName(cmd.Container, id, 0, i),
			Keys:          r,
			DB:            db,
		}
	}

	im, err := importer.New(e.store, f, cmd.Config.Import)
	if err != nil {
		return err
	}
	im.Logger = log
	start := time.Now()
	strategies, err := im.ImportCube(ctx, v, frags, cmd.Compressed)
	if err != nil {
		return errors.Wrapf(err, "importing %s from %s", cmd.Variable, cmd.Path)
	}

	if err := e.cat.PutCube(&catalog.Cube{
		ID:         id,
		Container:  cmd.Container,
		Source:     filepath.Base(cmd.Path),
		Measure:    v,
		Compressed: cmd.Compressed,
		Created:    time.Now().UTC(),
	}); err != nil {
		return err
	}
	for _, frag := range frags {
		if err := e.cat.PutFragment(frag); err != nil {
			return err
		}
	}
	for _, d := range v.Dims {
		dim, err := f.TimeDimension(d.Name)
		if err != nil {
			// Not a time coordinate.
			continue
		}
		if err := e.cat.PutDimension(id, dim); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.Stdout, "cube %d: %s, %d rows of %d cells in %d fragments (%s)\n",
		id, cmd.Variable, v.TupleCount(), v.RowLength(), len(frags), time.Since(start).Round(time.Millisecond))
	for i, frag := range frags {
		fmt.Fprintf(cmd.Stdout, "  %s %s %s\n", frag.QualifiedName(), frag.Keys, strategies[i])
	}
	return nil
}

// restrictTime narrows the time dimension of v to the values between From
// and To.
func (cmd *ImportCommand) restrictTime(f *netcdf.File, v *importer.Variable) error {
	n := -1
	for i := range v.Dims {
		if v.Dims[i].Name == cmd.TimeDim {
			n = i
		}
	}
	if n < 0 {
		return errors.NewErrDataError("variable %s has no dimension '%s'", v.Name, cmd.TimeDim)
	}
	dim, err := f.TimeDimension(cmd.TimeDim)
	if err != nil {
		return err
	}
	values, err := f.Values(cmd.TimeDim)
	if err != nil {
		return err
	}
	start, end, err := importer.ResolveTimeSubset(values, dim, cmd.From, cmd.To)
	if err != nil {
		return err
	}
	v.Dims[n].Start, v.Dims[n].End = start, end
	return v.Validate()
}
