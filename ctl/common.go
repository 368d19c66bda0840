// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package ctl implements the cubestore commands. Every command embeds a
// CmdIO and is driven by its Run method.
package ctl

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/featurebasedb/cubestore"
	"github.com/featurebasedb/cubestore/backend"
	"github.com/featurebasedb/cubestore/catalog"
	"github.com/featurebasedb/cubestore/config"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/featurebasedb/cubestore/fragment"
	"github.com/featurebasedb/cubestore/logger"

	// Adapters register themselves with backend.DefaultRegistry.
	_ "github.com/featurebasedb/cubestore/backend/inmem"
	_ "github.com/featurebasedb/cubestore/backend/sqldb"
)

// defaultDBMS identifies the configured backend in catalog records.
const defaultDBMS = 1

// env is what the data commands share: the catalog of the data directory
// and a fragment store on the configured backend.
type env struct {
	cat   *catalog.Catalog
	store *fragment.Store
	dbms  *cubestore.DBMSInstance
	log   logger.Logger
}

// expandHome replaces a leading ~ with the home directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "locating home directory")
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func openEnv(cfg *config.Config, log logger.Logger) (*env, error) {
	if cfg == nil {
		return nil, errors.NewErrNullParameter("config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	adapter, err := backend.DefaultRegistry.Adapter(cfg.Backend.Driver)
	if err != nil {
		return nil, err
	}
	store, err := fragment.NewStore(adapter, cfg.Storage)
	if err != nil {
		return nil, err
	}
	store.ConnectTimeout = time.Duration(cfg.Backend.ConnectTimeout)
	store.Logger = log

	dir, err := expandHome(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Open(filepath.Join(dir, catalog.FileName))
	if err != nil {
		return nil, err
	}
	cat.Logger = log
	return &env{
		cat:   cat,
		store: store,
		dbms: &cubestore.DBMSInstance{
			ID:       defaultDBMS,
			Driver:   cfg.Backend.Driver,
			Host:     cfg.Backend.Host,
			Port:     cfg.Backend.Port,
			User:     cfg.Backend.User,
			Password: cfg.Backend.Password,
		},
		log: log,
	}, nil
}

// fragments loads the fragments of a cube and points them at the configured
// backend, which must be the one they were written to.
func (e *env) fragments(cubeID int) ([]*cubestore.Fragment, error) {
	frags, err := e.cat.Fragments(cubeID)
	if err != nil {
		return nil, err
	}
	for _, f := range frags {
		if f.DB == nil || f.DB.DBMS == nil {
			return nil, errors.NewErrDataError("fragment %s has no database", f.Name)
		}
		if f.DB.DBMS.Driver != e.dbms.Driver {
			return nil, errors.NewErrDataError("fragment %s lives on a %s server, backend is %s", f.Name, f.DB.DBMS.Driver, e.dbms.Driver)
		}
		f.DB.DBMS = e.dbms
	}
	return frags, nil
}

func (e *env) Close() error {
	if err := e.store.Disconnect(e.dbms); err != nil {
		e.log.Warnf("disconnecting: %v", err)
	}
	return e.cat.Close()
}
