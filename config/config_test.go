// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package config_test

import (
	"testing"
	"time"

	"github.com/featurebasedb/cubestore/config"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/pelletier/go-toml"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	c := config.NewConfig()
	require.NoError(t, c.Validate())
	require.Equal(t, 4<<20, c.Storage.MaxStatementSize)
	require.Equal(t, 512<<10, c.Storage.InsertBatchBytes)
	require.Equal(t, 1000, c.Storage.InsertBatchRows)
	require.Equal(t, int64(256<<20), c.Import.MemoryBudget)
}

func TestValidate(t *testing.T) {
	for name, mod := range map[string]func(c *config.Config){
		"NoDriver":      func(c *config.Config) { c.Backend.Driver = "" },
		"Port":          func(c *config.Config) { c.Backend.Port = 70000 },
		"BatchRows":     func(c *config.Config) { c.Storage.InsertBatchRows = 0 },
		"BatchBytes":    func(c *config.Config) { c.Storage.InsertBatchBytes = -1 },
		"Statement":     func(c *config.Config) { c.Storage.MaxStatementSize = 0 },
		"SameColumns":   func(c *config.Config) { c.Storage.MeasureColumn = c.Storage.IDColumn },
		"MemoryBudget":  func(c *config.Config) { c.Import.MemoryBudget = 0 },
		"NoWorkers":     func(c *config.Config) { c.Import.Workers = 0 },
		"EmptyIDColumn": func(c *config.Config) { c.Storage.IDColumn = "" },
	} {
		t.Run(name, func(t *testing.T) {
			c := config.NewConfig()
			mod(c)
			require.True(t, errors.Is(c.Validate(), errors.ErrDataError))
		})
	}
}

func TestTOML(t *testing.T) {
	src := `
data-dir = "/var/lib/cubestore"
verbose = true

[backend]
driver = "postgres"
port = 5432
connect-timeout = "3s"

[storage]
insert-batch-rows = 10
`
	c := config.NewConfig()
	require.NoError(t, toml.Unmarshal([]byte(src), c))
	require.Equal(t, "/var/lib/cubestore", c.DataDir)
	require.True(t, c.Verbose)
	require.Equal(t, "postgres", c.Backend.Driver)
	require.Equal(t, 5432, c.Backend.Port)
	require.Equal(t, config.Duration(3*time.Second), c.Backend.ConnectTimeout)
	require.Equal(t, 10, c.Storage.InsertBatchRows)
	require.Equal(t, 512<<10, c.Storage.InsertBatchBytes)

	out, err := toml.Marshal(*c)
	require.NoError(t, err)
	require.Contains(t, string(out), "connect-timeout")
	require.Contains(t, string(out), "3s")
}
