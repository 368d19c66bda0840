// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/featurebasedb/cubestore/backend"
	"github.com/featurebasedb/cubestore/backend/inmem"
	"github.com/featurebasedb/cubestore/codec"
	"github.com/featurebasedb/cubestore/config"
	"github.com/featurebasedb/cubestore/ctl"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/stretchr/testify/require"
)

// GetIO returns an empty stdin and stdout/stderr writing to buf.
func GetIO(buf *bytes.Buffer) (io.Reader, io.Writer, io.Writer) {
	return strings.NewReader(""), buf, io.Discard
}

// testConfig keeps the catalog in a temporary directory and fragments in the
// process-wide inmem backend. Tests use distinct containers so their
// databases do not collide.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := config.NewConfig()
	c.DataDir = t.TempDir()
	c.Backend.Driver = "inmem"
	c.Backend.Host = "localhost"
	c.Storage.InsertBatchRows = 2
	return c
}

func mem(t *testing.T) *inmem.Adapter {
	t.Helper()
	a, err := backend.DefaultRegistry.Adapter("inmem")
	require.NoError(t, err)
	return a.(*inmem.Adapter)
}

// writeFile writes tas(time, lat, lon) = 100*time + 10*lat + lon with a
// noleap time coordinate.
func writeFile(t *testing.T) string {
	t.Helper()
	h := cdf.NewHeader([]string{"time", "lat", "lon"}, []int{4, 3, 2})
	h.AddVariable("tas", []string{"time", "lat", "lon"}, []float32{0})
	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", "days since 2000-01-01")
	h.AddAttribute("time", "calendar", "noleap")
	h.Define()

	path := filepath.Join(t.TempDir(), "tas.nc")
	ff, err := os.Create(path)
	require.NoError(t, err)
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	require.NoError(t, err)
	var tas []float32
	for ti := 0; ti < 4; ti++ {
		for la := 0; la < 3; la++ {
			for lo := 0; lo < 2; lo++ {
				tas = append(tas, float32(100*ti+10*la+lo))
			}
		}
	}
	// Writes ending at the end of a variable report io.EOF.
	_, err = f.Writer("tas", nil, nil).Write(tas)
	if err != io.EOF {
		require.NoError(t, err)
	}
	_, err = f.Writer("time", nil, nil).Write([]float64{0, 31, 59, 365})
	if err != io.EOF {
		require.NoError(t, err)
	}
	return path
}

func TestConfigCommand_Run(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := ctl.NewConfigCommand(GetIO(buf))
	require.NoError(t, cmd.Run(context.Background()))
	require.Contains(t, buf.String(), "[storage]")
	require.Contains(t, buf.String(), "insert-batch-rows = 1000")
	require.Contains(t, buf.String(), "memory-budget")

	cmd.Config = nil
	require.True(t, errors.Is(cmd.Run(context.Background()), errors.ErrNullParameter))
}

func TestImportCommand_Validation(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := ctl.NewImportCommand(GetIO(buf))
	cmd.Config = testConfig(t)
	ctx := context.Background()

	require.True(t, errors.Is(cmd.Run(ctx), errors.ErrNullParameter))
	cmd.Path = "tas.nc"
	require.True(t, errors.Is(cmd.Run(ctx), errors.ErrNullParameter))
	cmd.Variable = "tas"
	cmd.Fragments = 0
	require.True(t, errors.Is(cmd.Run(ctx), errors.ErrDataError))
	cmd.Fragments = 1
	cmd.From = "2000-01-01"
	require.True(t, errors.Is(cmd.Run(ctx), errors.ErrNullParameter))

	cmd.From = ""
	cmd.Path = writeFile(t)
	cmd.Explicit = []string{"depth"}
	require.True(t, errors.Is(cmd.Run(ctx), errors.ErrDataError))
	cmd.Explicit = []string{"lat"}
	cmd.TimeDim = "height"
	require.True(t, errors.Is(cmd.Run(ctx), errors.ErrDataError))
}

func TestImportCommand_Run(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := testConfig(t)
	ctx := context.Background()

	imp := ctl.NewImportCommand(GetIO(buf))
	imp.Config = cfg
	imp.Path = writeFile(t)
	imp.Variable = "tas"
	imp.Explicit = []string{"lat"}
	imp.Fragments = 2
	imp.Container = 11
	imp.TimeDim = "time"
	imp.From = "2000-02-01"
	imp.To = "2000-12-31"
	require.NoError(t, imp.Run(ctx))
	require.Contains(t, buf.String(), "cube 1: tas, 3 rows of 4 cells in 2 fragments")
	require.Contains(t, buf.String(), "cube1_c11_ms1_0.fact_c11_d1_r0_0 [1,2]")
	require.Contains(t, buf.String(), "cube1_c11_ms1_0.fact_c11_d1_r0_1 [3,3]")

	var rows [][]float64
	for _, name := range []string{"fact_c11_d1_r0_0", "fact_c11_d1_r0_1"} {
		_, measures, err := mem(t).Rows("cube1_c11_ms1_0", name)
		require.NoError(t, err)
		for _, m := range measures {
			arr, err := codec.Wrap(codec.Float, 4, m)
			require.NoError(t, err)
			row := make([]float64, arr.Len())
			for i := range row {
				row[i], err = arr.Float64(i)
				require.NoError(t, err)
			}
			rows = append(rows, row)
		}
	}
	// February and March of each latitude.
	require.Equal(t, [][]float64{
		{100, 101, 200, 201},
		{110, 111, 210, 211},
		{120, 121, 220, 221},
	}, rows)

	buf.Reset()
	inspect := ctl.NewInspectCommand(GetIO(buf))
	inspect.Config = cfg
	require.NoError(t, inspect.Run(ctx))
	require.Contains(t, buf.String(), "tas.nc")

	buf.Reset()
	inspect.Cube = 1
	inspect.Check = true
	require.NoError(t, inspect.Run(ctx))
	out := buf.String()
	require.Contains(t, out, "cube 1: tas (float) from tas.nc")
	require.Contains(t, out, "CHECKSUM")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	require.Equal(t, []string{"cube1_c11_ms1_0.fact_c11_d1_r0_0", "[1,2]", "2", "8"}, strings.Fields(lines[2])[:4])
	require.Equal(t, []string{"cube1_c11_ms1_0.fact_c11_d1_r0_1", "[3,3]", "1", "4"}, strings.Fields(lines[3])[:4])

	inspect.Cube = 5
	require.True(t, errors.Is(inspect.Run(ctx), errors.ErrDataError))

	buf.Reset()
	cal := ctl.NewCalendarCommand(GetIO(buf))
	cal.Config = cfg
	cal.Cube = 1
	cal.Dimension = "time"
	cal.Values = []string{"31", "365"}
	require.NoError(t, cal.Run(ctx))
	require.Equal(t, "31\t2000-02-01 00:00:00\n365\t2001-01-01 00:00:00\n", buf.String())

	buf.Reset()
	cal.Values = []string{"2000-03-01"}
	cal.Reverse = true
	require.NoError(t, cal.Run(ctx))
	require.Equal(t, "2000-03-01\t59\n", buf.String())

	cal.Reverse = false
	cal.Values = []string{"soon"}
	require.True(t, errors.Is(cal.Run(ctx), errors.ErrDataError))
	cal.Values = []string{"1"}
	cal.Dimension = "lat"
	require.True(t, errors.Is(cal.Run(ctx), errors.ErrDataError))
	cal.Values = nil
	require.True(t, errors.Is(cal.Run(ctx), errors.ErrNullParameter))
}

func TestRandomCommand_Run(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := testConfig(t)
	ctx := context.Background()

	cmd := ctl.NewRandomCommand(GetIO(buf))
	cmd.Config = cfg
	cmd.Rows = 5
	cmd.ArrayLength = 3
	cmd.Type = "double"
	cmd.Container = 12
	require.NoError(t, cmd.Run(ctx))
	require.Contains(t, buf.String(), "cube 1: cube1_c12_ms1_0.fact_c12_d1_r0_0 holds 5 rows of 3 double values")

	ids, measures, err := mem(t).Rows("cube1_c12_ms1_0", "fact_c12_d1_r0_0")
	require.NoError(t, err)
	require.Len(t, ids, 5)
	for _, m := range measures {
		require.Len(t, m, 3*8)
	}

	buf.Reset()
	inspect := ctl.NewInspectCommand(GetIO(buf))
	inspect.Config = cfg
	inspect.Cube = 1
	inspect.Check = true
	require.NoError(t, inspect.Run(ctx))
	require.Contains(t, buf.String(), "cube 1: random (double) from random")

	cmd.Type = "quad"
	require.True(t, errors.Is(cmd.Run(ctx), errors.ErrUnknownType))
	cmd.Type = "int"
	cmd.Rows = 0
	require.True(t, errors.Is(cmd.Run(ctx), errors.ErrDataError))
}
