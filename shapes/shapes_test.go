// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes_test

import (
	"testing"

	. "github.com/gomlx/chains/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	s := Make(dtypes.Float32, 2, 3)
	assert.Equal(t, 2, s.Rank())
	assert.Equal(t, 6, s.Size())
	assert.Equal(t, uintptr(24), s.Memory())
	assert.True(t, s.Ok())
	assert.Equal(t, "(Float32)[2 3]", s.String())

	scalar := Make(dtypes.Int64)
	assert.True(t, scalar.IsScalar())
	assert.Equal(t, 1, scalar.Size())

	require.Panics(t, func() { Make(dtypes.Float32, 2, 0) })
	require.Panics(t, func() { Make(dtypes.Float32, -1) })
}

func TestInvalid(t *testing.T) {
	s := Invalid()
	assert.False(t, s.Ok())
}

func TestEqualAndClone(t *testing.T) {
	s := Make(dtypes.Float64, 4, 5)
	c := s.Clone()
	assert.True(t, s.Equal(c))

	c.Dimensions[0] = 7
	assert.False(t, s.Equal(c))
	assert.Equal(t, 4, s.Dimensions[0]) // Clone is deep.

	assert.False(t, s.Equal(Make(dtypes.Float32, 4, 5)))
	assert.False(t, s.Equal(Make(dtypes.Float64, 4)))
}
