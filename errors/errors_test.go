// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package errors_test

import (
	"fmt"
	"io"
	"testing"

	stderrors "errors"

	"github.com/featurebasedb/cubestore/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrors(t *testing.T) {
	t.Run("Is", func(t *testing.T) {
		null := errors.NewErrNullParameter("frag")
		server := errors.NewErrServerError("executing insert", io.ErrUnexpectedEOF)
		custom := errors.New(errors.ErrDataError, "custom data message")

		tests := []struct {
			err    error
			target errors.Code
			exp    bool
		}{
			{
				err:    null,
				target: errors.ErrNullParameter,
				exp:    true,
			},
			{
				err:    null,
				target: errors.ErrServerError,
				exp:    false,
			},
			{
				err:    server,
				target: errors.ErrServerError,
				exp:    true,
			},
			{
				err:    errors.Wrap(server, "with message"),
				target: errors.ErrServerError,
				exp:    true,
			},
			{
				err:    custom,
				target: errors.ErrDataError,
				exp:    true,
			},
			{
				err:    fmt.Errorf("plain"),
				target: errors.ErrDataError,
				exp:    false,
			},
		}

		for i, test := range tests {
			t.Run(fmt.Sprintf("test-%d", i), func(t *testing.T) {
				got := errors.Is(test.err, test.target)
				assert.Equal(t, test.exp, got)
			})
		}
	})

	t.Run("Cause", func(t *testing.T) {
		err := errors.NewErrServerError("reading", io.ErrUnexpectedEOF)
		assert.True(t, stderrors.Is(err, io.ErrUnexpectedEOF))
		assert.Contains(t, err.Error(), "reading")
		assert.Equal(t, errors.ErrServerError, errors.CodeOf(errors.Wrap(err, "outer")))
		assert.Equal(t, errors.ErrUncoded, errors.CodeOf(io.EOF))
	})

	t.Run("WithCodeNil", func(t *testing.T) {
		assert.NoError(t, errors.WithCode(nil, errors.ErrDataError, "nothing"))
	})
}
