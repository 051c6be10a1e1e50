// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package initializers implements parameter storage initializers: functions
// that allocate a host tensor of a given shape and fill it with initial
// values.
//
// They are used by lazily-initialized parameters, whose storage is only
// allocated once the shape is known.
package initializers

import (
	"math"
	"math/rand/v2"

	"github.com/gomlx/chains/shapes"
	"github.com/gomlx/chains/tensors"
	"github.com/pkg/errors"
)

// Initializer allocates and fills a host tensor of the given shape.
type Initializer func(shape shapes.Shape) (*tensors.Tensor, error)

// Zeros initializes storage to all zeros. It works for every dtype and is
// itself an Initializer.
func Zeros(shape shapes.Shape) (*tensors.Tensor, error) {
	if !shape.Ok() {
		return nil, errors.Errorf("initializers.Zeros: invalid shape")
	}
	return tensors.FromShape(shape), nil
}

// NaN initializes storage to all NaNs, making uses of values never written
// to stand out. It only works for float dtypes.
func NaN(shape shapes.Shape) (*tensors.Tensor, error) {
	if !shape.Ok() {
		return nil, errors.Errorf("initializers.NaN: invalid shape")
	}
	if !shape.DType.IsFloat() {
		return nil, errors.Errorf("initializers.NaN: dtype %s is not a float type", shape.DType)
	}
	t := tensors.FromShape(shape)
	if err := t.Fill(math.NaN()); err != nil {
		return nil, err
	}
	return t, nil
}

// Constant returns an initializer that fills storage with the given value,
// converted to the shape's dtype.
func Constant(value float64) Initializer {
	return func(shape shapes.Shape) (*tensors.Tensor, error) {
		if !shape.Ok() {
			return nil, errors.Errorf("initializers.Constant: invalid shape")
		}
		t := tensors.FromShape(shape)
		if err := t.Fill(value); err != nil {
			return nil, err
		}
		return t, nil
	}
}

// RandomUniform returns an initializer that fills storage with values sampled
// uniformly from [min, max). Float dtypes only.
func RandomUniform(min, max float64) Initializer {
	return func(shape shapes.Shape) (*tensors.Tensor, error) {
		if !shape.Ok() {
			return nil, errors.Errorf("initializers.RandomUniform: invalid shape")
		}
		if !shape.DType.IsFloat() {
			return nil, errors.Errorf("initializers.RandomUniform: dtype %s is not a float type", shape.DType)
		}
		t := tensors.FromShape(shape)
		if err := t.FillFn(func(int) float64 {
			return min + rand.Float64()*(max-min)
		}); err != nil {
			return nil, err
		}
		return t, nil
	}
}
