// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/featurebasedb/cubestore"
	"github.com/featurebasedb/cubestore/catalog"
	"github.com/featurebasedb/cubestore/codec"
	"github.com/featurebasedb/cubestore/config"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/featurebasedb/cubestore/importer"
)

// RandomCommand creates a one-fragment cube filled with random measures.
type RandomCommand struct {
	Rows        int    `json:"rows"`
	ArrayLength int    `json:"arrayLength"`
	Type        string `json:"type"`
	Container   int    `json:"container"`
	Compressed  bool   `json:"compressed"`

	Config *config.Config

	*cubestore.CmdIO
}

// NewRandomCommand returns a new instance of RandomCommand.
func NewRandomCommand(stdin io.Reader, stdout, stderr io.Writer) *RandomCommand {
	return &RandomCommand{
		CmdIO:       cubestore.NewCmdIO(stdin, stdout, stderr),
		Rows:        1000,
		ArrayLength: 100,
		Type:        "float",
		Container:   1,
		Config:      config.NewConfig(),
	}
}

// Run creates and fills the fragment.
func (cmd *RandomCommand) Run(ctx context.Context) error {
	typ, err := codec.ParseType(cmd.Type)
	if err != nil {
		return err
	}
	if cmd.Rows < 1 {
		return errors.NewErrDataError("rows must be positive, got %d", cmd.Rows)
	} else if cmd.ArrayLength < 1 {
		return errors.NewErrDataError("array length must be positive, got %d", cmd.ArrayLength)
	} else if cmd.Container < 1 {
		return errors.NewErrDataError("container must be positive, got %d", cmd.Container)
	}

	e, err := openEnv(cmd.Config, cmd.Logger())
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := e.cat.NextCubeID()
	if err != nil {
		return err
	}
	db := &cubestore.DBInstance{ID: 1, Name: cubestore.DatabaseName(id, cmd.Container, e.dbms.ID, 0), DBMS: e.dbms}
	frag := &cubestore.Fragment{
		ID:     1,
		CubeID: id,
		Name:   cubestore.FragmentName(cmd.Container, id, 0, 0),
		Keys:   cubestore.KeyRange{Start: 1, End: uint64(cmd.Rows)},
		DB:     db,
	}
	start := time.Now()
	if err := e.store.CreateDatabase(ctx, db); err != nil {
		return err
	}
	if err := e.store.CreateFragment(ctx, frag); err != nil {
		return err
	}
	if err := e.store.PopulateRandom(ctx, frag, frag.TupleCount(), cmd.ArrayLength, typ, cmd.Compressed); err != nil {
		return err
	}

	if err := e.cat.PutCube(&catalog.Cube{
		ID:        id,
		Container: cmd.Container,
		Source:    "random",
		Measure: &importer.Variable{Name: "random", Type: typ, Dims: []importer.Dim{
			importer.FullDim("key", cmd.Rows, true, 1),
			importer.FullDim("cell", cmd.ArrayLength, false, 1),
		}},
		Compressed: cmd.Compressed,
		Created:    time.Now().UTC(),
	}); err != nil {
		return err
	}
	if err := e.cat.PutFragment(frag); err != nil {
		return err
	}
	fmt.Fprintf(cmd.Stdout, "cube %d: %s holds %d rows of %d %s values (%s)\n",
		id, frag.QualifiedName(), cmd.Rows, cmd.ArrayLength, typ, time.Since(start).Round(time.Millisecond))
	return nil
}
