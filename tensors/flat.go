// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

func checkHostAccess[T dtypes.Supported](t *Tensor, caller string) []T {
	if !t.OnHost() {
		exceptions.Panicf("tensors.%s: tensor is on device #%d of backend %q, move it to the host first",
			caller, t.device, t.backend.Name())
	}
	if got := dtypes.FromGenericsType[T](); t.shape.DType != got {
		exceptions.Panicf("tensors.%s: tensor has dtype %s, accessed as %s", caller, t.shape.DType, got)
	}
	return t.flat.([]T)
}

// ConstFlatData gives read access to the tensor's flat host data. The slice
// must not be modified nor retained past the call. The tensor must be on the
// host and T must match its dtype, it panics otherwise.
func ConstFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	accessFn(checkHostAccess[T](t, "ConstFlatData"))
}

// MutableFlatData gives read-write access to the tensor's flat host data.
// The slice must not be retained past the call. The tensor must be on the
// host and T must match its dtype, it panics otherwise.
func MutableFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	accessFn(checkHostAccess[T](t, "MutableFlatData"))
}

// CopyFlatData returns a copy of the tensor's flat host data.
func CopyFlatData[T dtypes.Supported](t *Tensor) []T {
	flat := checkHostAccess[T](t, "CopyFlatData")
	flatCopy := make([]T, len(flat))
	copy(flatCopy, flat)
	return flatCopy
}

// AssignFlatData overwrites the tensor's host data with the given flat slice,
// which must have exactly the tensor's size.
func AssignFlatData[T dtypes.Supported](t *Tensor, fromFlat []T) {
	flat := checkHostAccess[T](t, "AssignFlatData")
	if len(fromFlat) != len(flat) {
		exceptions.Panicf("tensors.AssignFlatData: tensor %s has %d elements, given %d",
			t.shape, len(flat), len(fromFlat))
	}
	copy(flat, fromFlat)
}

// ToScalar returns the value of a scalar (rank-0) tensor.
func ToScalar[T dtypes.Supported](t *Tensor) T {
	flat := checkHostAccess[T](t, "ToScalar")
	if !t.shape.IsScalar() {
		exceptions.Panicf("tensors.ToScalar: tensor has shape %s, not a scalar", t.shape)
	}
	return flat[0]
}
