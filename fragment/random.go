// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package fragment

import (
	"context"
	"math/rand"
	"time"

	"github.com/featurebasedb/cubestore"
	"github.com/featurebasedb/cubestore/codec"
	"github.com/featurebasedb/cubestore/errors"
	"github.com/featurebasedb/cubestore/tracing"
)

// PopulateRandom fills frag with tupleCount rows of arrayLength random
// values of type t.
func (s *Store) PopulateRandom(ctx context.Context, frag *cubestore.Fragment, tupleCount uint64, arrayLength int, t codec.Type, compressed bool) (err error) {
	if err := checkFragment(frag); err != nil {
		return err
	}
	if arrayLength <= 0 {
		return errors.NewErrNullParameter("array length")
	}
	if err := checkType(t); err != nil {
		return err
	}
	span, ctx := tracing.StartSpanFromContext(ctx, "Store.PopulateRandom")
	defer span.Finish()

	arr, err := codec.AllocArray(t, arrayLength)
	if err != nil {
		return err
	}
	bi, err := s.NewBatchInserter(ctx, frag, tupleCount, len(arr.Bytes()), compressed)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := bi.Close(); err == nil {
			err = cerr
		}
	}()
	span.LogKV("plan", bi.Plan().String())
	s.Logger.Debugf("populating %s with %d random rows (%s)", frag.QualifiedName(), tupleCount, bi.Plan())

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := uint64(0); i < tupleCount; i++ {
		if err := randomize(arr, rnd); err != nil {
			return err
		}
		if err := bi.Insert(ctx, arr.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func randomize(arr *codec.Array, rnd *rand.Rand) error {
	for i := 0; i < arr.Len(); i++ {
		var v interface{}
		switch arr.Type() {
		case codec.Byte:
			v = int8(rnd.Intn(256) - 128)
		case codec.Short:
			v = int16(rnd.Intn(1 << 16))
		case codec.Int:
			v = int32(rnd.Uint32())
		case codec.Long:
			v = int64(rnd.Uint64())
		case codec.Float:
			v = float32(rnd.Float64() * 1000)
		case codec.Double:
			v = rnd.Float64() * 1000
		case codec.Bit:
			v = rnd.Intn(2) == 1
		default:
			return errors.Newf(errors.ErrDataError, "unknown measure type %d", arr.Type())
		}
		if err := arr.Set(i, v); err != nil {
			return err
		}
	}
	return nil
}
