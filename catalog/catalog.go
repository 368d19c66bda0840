// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package catalog persists cube, fragment and dimension metadata in a bolt
// file.
package catalog

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/featurebasedb/cubestore"
	"github.com/featurebasedb/cubestore/calendar"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/featurebasedb/cubestore/importer"
	"github.com/featurebasedb/cubestore/logger"
	bolt "go.etcd.io/bbolt"
)

// FileName is the name of the catalog file within the data directory.
const FileName = "catalog.db"

var (
	bucketCubes      = []byte("cubes")
	bucketFragments  = []byte("fragments")
	bucketDimensions = []byte("dimensions")
)

// Cube describes an imported cube.
type Cube struct {
	ID         int                `json:"id"`
	Container  int                `json:"container"`
	Source     string             `json:"source"`
	Measure    *importer.Variable `json:"measure"`
	Compressed bool               `json:"compressed"`
	Created    time.Time          `json:"created"`
}

// Catalog is the metadata store of one data directory.
type Catalog struct {
	db   *bolt.DB
	Path string

	Logger logger.Logger
}

// Open opens or creates the catalog at path.
func Open(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrapf(err, "mkdir %s", filepath.Dir(path))
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open catalog %s", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketCubes, bucketFragments, bucketDimensions} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initializing catalog buckets")
	}
	return &Catalog{db: db, Path: path, Logger: logger.NopLogger}, nil
}

// Close closes the underlying file.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func u64tob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// NextCubeID reserves a new cube identifier. Identifiers start at 1.
func (c *Catalog) NextCubeID() (int, error) {
	var id uint64
	err := c.db.Update(func(tx *bolt.Tx) (err error) {
		id, err = tx.Bucket(bucketCubes).NextSequence()
		return err
	})
	return int(id), errors.Wrap(err, "reserving cube id")
}

// PutCube stores c, replacing any cube with the same id.
func (c *Catalog) PutCube(cube *Cube) error {
	if cube == nil {
		return errors.NewErrNullParameter("cube")
	}
	if cube.ID < 1 {
		return errors.NewErrDataError("invalid cube id %d", cube.ID)
	}
	buf, err := json.Marshal(cube)
	if err != nil {
		return errors.Wrap(err, "marshaling cube")
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCubes).Put(u64tob(uint64(cube.ID)), buf)
	})
}

// Cube returns the cube with the given id.
func (c *Catalog) Cube(id int) (*Cube, error) {
	var cube *Cube
	err := c.db.View(func(tx *bolt.Tx) error {
		buf := tx.Bucket(bucketCubes).Get(u64tob(uint64(id)))
		if buf == nil {
			return errors.NewErrDataError("cube %d is not in the catalog", id)
		}
		cube = &Cube{}
		return json.Unmarshal(buf, cube)
	})
	return cube, err
}

// Cubes lists every cube by id.
func (c *Catalog) Cubes() ([]*Cube, error) {
	var cubes []*Cube
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCubes).ForEach(func(k, v []byte) error {
			cube := &Cube{}
			if err := json.Unmarshal(v, cube); err != nil {
				return errors.Wrapf(err, "decoding cube %d", binary.BigEndian.Uint64(k))
			}
			cubes = append(cubes, cube)
			return nil
		})
	})
	return cubes, err
}

// PutFragment records f under its cube, keyed by its first key.
func (c *Catalog) PutFragment(f *cubestore.Fragment) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if !f.Keys.Valid() {
		return errors.NewErrDataError("fragment %s has invalid keys %s", f.Name, f.Keys)
	}
	buf, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "marshaling fragment")
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketFragments).CreateBucketIfNotExists(u64tob(uint64(f.CubeID)))
		if err != nil {
			return err
		}
		return b.Put(u64tob(f.Keys.Start), buf)
	})
}

// Fragments returns the fragments of a cube in key order. Fragments on the
// same database, or the same DBMS instance, share one descriptor.
func (c *Catalog) Fragments(cubeID int) ([]*cubestore.Fragment, error) {
	var frags []*cubestore.Fragment
	dbs := make(map[string]*cubestore.DBInstance)
	servers := make(map[int]*cubestore.DBMSInstance)
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFragments).Bucket(u64tob(uint64(cubeID)))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			f := &cubestore.Fragment{}
			if err := json.Unmarshal(v, f); err != nil {
				return errors.Wrapf(err, "decoding fragment at key %d", binary.BigEndian.Uint64(k))
			}
			if f.DB != nil {
				if db, ok := dbs[f.DB.Name]; ok {
					f.DB = db
				} else {
					dbs[f.DB.Name] = f.DB
					if f.DB.DBMS != nil {
						if s, ok := servers[f.DB.DBMS.ID]; ok {
							f.DB.DBMS = s
						} else {
							servers[f.DB.DBMS.ID] = f.DB.DBMS
						}
					}
				}
			}
			frags = append(frags, f)
			return nil
		})
	})
	return frags, err
}

// PutDimension records the metadata of a dimension of a cube.
func (c *Catalog) PutDimension(cubeID int, dim *calendar.Dimension) error {
	if dim == nil || dim.Name == "" {
		return errors.NewErrNullParameter("dimension")
	}
	buf, err := json.Marshal(dim)
	if err != nil {
		return errors.Wrap(err, "marshaling dimension")
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketDimensions).CreateBucketIfNotExists(u64tob(uint64(cubeID)))
		if err != nil {
			return err
		}
		return b.Put([]byte(dim.Name), buf)
	})
}

// Dimension returns the metadata of a dimension of a cube.
func (c *Catalog) Dimension(cubeID int, name string) (*calendar.Dimension, error) {
	var dim *calendar.Dimension
	err := c.db.View(func(tx *bolt.Tx) error {
		var buf []byte
		if b := tx.Bucket(bucketDimensions).Bucket(u64tob(uint64(cubeID))); b != nil {
			buf = b.Get([]byte(name))
		}
		if buf == nil {
			return errors.NewErrDataError("cube %d has no dimension '%s'", cubeID, name)
		}
		dim = &calendar.Dimension{}
		return json.Unmarshal(buf, dim)
	})
	return dim, err
}

// Dimensions lists the dimension names of a cube.
func (c *Catalog) Dimensions(cubeID int) ([]string, error) {
	var names []string
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDimensions).Bucket(u64tob(uint64(cubeID)))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	sort.Strings(names)
	return names, err
}

// DeleteCube removes a cube with its fragments and dimensions.
func (c *Catalog) DeleteCube(id int) error {
	key := u64tob(uint64(id))
	return c.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketCubes).Get(key) == nil {
			return errors.NewErrDataError("cube %d is not in the catalog", id)
		}
		if err := tx.Bucket(bucketCubes).Delete(key); err != nil {
			return err
		}
		for _, name := range [][]byte{bucketFragments, bucketDimensions} {
			if tx.Bucket(name).Bucket(key) == nil {
				continue
			}
			if err := tx.Bucket(name).DeleteBucket(key); err != nil {
				return err
			}
		}
		c.Logger.Debugf("deleted cube %d from %s", id, c.Path)
		return nil
	})
}
