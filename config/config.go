// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package config holds the process configuration. A Config is built once at
// startup (defaults, then TOML file, environment and flags) and handed
// explicitly to the components that need it.
package config

import (
	"time"

	"github.com/featurebasedb/cubestore/errors"
)

const (
	defaultMaxStatementSize = 4 << 20
	defaultInsertBatchBytes = 512 << 10
	defaultInsertBatchRows  = 1000
	defaultMemoryBudget     = 256 << 20
)

// Duration is a TOML wrapper type for time.Duration.
type Duration time.Duration

// String returns the string representation of the duration.
func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalText parses a TOML value into a duration value.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}

	*d = Duration(v)
	return nil
}

// MarshalText writes duration value in text format.
func (d Duration) MarshalText() (text []byte, err error) {
	return []byte(d.String()), nil
}

// MarshalTOML write duration into valid TOML.
func (d Duration) MarshalTOML() ([]byte, error) {
	return []byte(d.String()), nil
}

// Backend describes the relational server hosting fragment tables.
type Backend struct {
	// Driver is one of the registered backend adapters: mysql, postgres,
	// sqlite or inmem. The last two run an embedded engine in process
	// memory and ignore the connection settings.
	Driver         string   `toml:"driver"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	User           string   `toml:"user"`
	Password       string   `toml:"password"`
	ConnectTimeout Duration `toml:"connect-timeout"`
}

// Storage holds the statement and batching limits of the fragment store.
type Storage struct {
	// MaxStatementSize is the largest statement, in bytes, the store will
	// render.
	MaxStatementSize int `toml:"max-statement-size"`

	// InsertBatchBytes and InsertBatchRows bound the encoded size and the
	// row count of one multi-row insert.
	InsertBatchBytes int `toml:"insert-batch-bytes"`
	InsertBatchRows  int `toml:"insert-batch-rows"`

	IDColumn      string `toml:"id-column"`
	MeasureColumn string `toml:"measure-column"`
}

// Import holds the ingestion limits.
type Import struct {
	// MemoryBudget is the memory, in bytes, an import may use for its
	// read caches.
	MemoryBudget int64 `toml:"memory-budget"`
	Workers      int   `toml:"workers"`
}

// Config represents the configuration for the command.
type Config struct {
	// DataDir is the directory holding the catalog.
	DataDir string `toml:"data-dir"`

	// LogPath configures where logs are written. Empty means stderr.
	LogPath string `toml:"log-path"`

	// Verbose toggles verbose logging.
	Verbose bool `toml:"verbose"`

	Backend Backend `toml:"backend"`
	Storage Storage `toml:"storage"`
	Import  Import  `toml:"import"`
}

// NewConfig returns an instance of Config with default options.
func NewConfig() *Config {
	return &Config{
		DataDir: "~/.cubestore",
		Backend: Backend{
			Driver:         "mysql",
			Host:           "127.0.0.1",
			Port:           3306,
			User:           "root",
			ConnectTimeout: Duration(10 * time.Second),
		},
		Storage: DefaultStorage(),
		Import: Import{
			MemoryBudget: defaultMemoryBudget,
			Workers:      1,
		},
	}
}

// DefaultStorage returns the default fragment store limits.
func DefaultStorage() Storage {
	return Storage{
		MaxStatementSize: defaultMaxStatementSize,
		InsertBatchBytes: defaultInsertBatchBytes,
		InsertBatchRows:  defaultInsertBatchRows,
		IDColumn:         "id_dim",
		MeasureColumn:    "measure",
	}
}

// Validate checks the storage limits.
func (s Storage) Validate() error {
	switch {
	case s.MaxStatementSize <= 0:
		return errors.NewErrDataError("max-statement-size must be positive, got %d", s.MaxStatementSize)
	case s.InsertBatchBytes <= 0:
		return errors.NewErrDataError("insert-batch-bytes must be positive, got %d", s.InsertBatchBytes)
	case s.InsertBatchRows <= 0:
		return errors.NewErrDataError("insert-batch-rows must be positive, got %d", s.InsertBatchRows)
	case s.IDColumn == "" || s.MeasureColumn == "":
		return errors.NewErrDataError("id-column and measure-column must be set")
	case s.IDColumn == s.MeasureColumn:
		return errors.NewErrDataError("id-column and measure-column must differ")
	}
	return nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if c.Backend.Driver == "" {
		return errors.NewErrDataError("backend.driver must be set")
	}
	if c.Backend.Port < 0 || c.Backend.Port > 65535 {
		return errors.NewErrDataError("backend.port out of range: %d", c.Backend.Port)
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if c.Import.MemoryBudget <= 0 {
		return errors.NewErrDataError("import.memory-budget must be positive, got %d", c.Import.MemoryBudget)
	}
	if c.Import.Workers <= 0 {
		return errors.NewErrDataError("import.workers must be positive, got %d", c.Import.Workers)
	}
	return nil
}
