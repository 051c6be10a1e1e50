// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"bytes"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// CopyFrom overwrites the tensor's contents with src's. Shapes (dtype and
// dimensions) must match. Both tensors keep their residency: copying works
// across host/device and across devices.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if t == src {
		return nil
	}
	if !t.shape.Equal(src.shape) {
		return errors.Errorf("tensors.CopyFrom: shapes differ, %s vs %s", t.shape, src.shape)
	}
	data, err := src.hostData()
	if err != nil {
		return err
	}
	return t.setHostData(data)
}

// AccumulateFrom adds src's elements to the tensor's, element-wise. Shapes
// must match. Both tensors keep their residency; the arithmetic itself runs
// on the host.
func (t *Tensor) AccumulateFrom(src *Tensor) error {
	if !t.shape.Equal(src.shape) {
		return errors.Errorf("tensors.AccumulateFrom: shapes differ, %s vs %s", t.shape, src.shape)
	}
	dstFlat := t.flat
	if !t.OnHost() {
		data, err := t.hostData()
		if err != nil {
			return err
		}
		dstFlat = flatFromBytes(t.shape, data)
	}
	srcFlat := src.flat
	if !src.OnHost() {
		data, err := src.hostData()
		if err != nil {
			return err
		}
		srcFlat = flatFromBytes(src.shape, data)
	}
	if err := accumulateFlat(t.shape.DType, dstFlat, srcFlat); err != nil {
		return err
	}
	if !t.OnHost() {
		return t.setHostData(bytesView(dstFlat, t.shape))
	}
	return nil
}

// Zero sets every element to zero, preserving residency.
func (t *Tensor) Zero() error {
	if t.OnHost() {
		clear(t.flatBytes())
		return nil
	}
	return t.setHostData(make([]byte, t.shape.Memory()))
}

// Equal compares shape and contents. Device tensors are downloaded (without
// changing residency) for the comparison; a failed download compares unequal.
func (t *Tensor) Equal(t2 *Tensor) bool {
	if t == t2 {
		return true
	}
	if !t.shape.Equal(t2.shape) {
		return false
	}
	data, err := t.hostData()
	if err != nil {
		return false
	}
	data2, err := t2.hostData()
	if err != nil {
		return false
	}
	return bytes.Equal(data, data2)
}

// FillFn sets each element to fn(flatIndex), converted to the tensor's dtype.
// The tensor must be on the host. Only real-numeric dtypes are supported.
func (t *Tensor) FillFn(fn func(flatIdx int) float64) error {
	if !t.OnHost() {
		return errors.Errorf("tensors.FillFn: tensor is on device, move it to the host first")
	}
	switch t.shape.DType {
	case dtypes.Float16:
		fillConvert(t.flat.([]float16.Float16), fn, func(v float64) float16.Float16 {
			return float16.Fromfloat32(float32(v))
		})
	case dtypes.Float32:
		fillConvert(t.flat.([]float32), fn, func(v float64) float32 { return float32(v) })
	case dtypes.Float64:
		fillConvert(t.flat.([]float64), fn, func(v float64) float64 { return v })
	case dtypes.Int8:
		fillConvert(t.flat.([]int8), fn, func(v float64) int8 { return int8(v) })
	case dtypes.Int16:
		fillConvert(t.flat.([]int16), fn, func(v float64) int16 { return int16(v) })
	case dtypes.Int32:
		fillConvert(t.flat.([]int32), fn, func(v float64) int32 { return int32(v) })
	case dtypes.Int64:
		fillConvert(t.flat.([]int64), fn, func(v float64) int64 { return int64(v) })
	case dtypes.Uint8:
		fillConvert(t.flat.([]uint8), fn, func(v float64) uint8 { return uint8(v) })
	case dtypes.Uint16:
		fillConvert(t.flat.([]uint16), fn, func(v float64) uint16 { return uint16(v) })
	case dtypes.Uint32:
		fillConvert(t.flat.([]uint32), fn, func(v float64) uint32 { return uint32(v) })
	case dtypes.Uint64:
		fillConvert(t.flat.([]uint64), fn, func(v float64) uint64 { return uint64(v) })
	default:
		return errors.Errorf("tensors.FillFn: dtype %s not supported", t.shape.DType)
	}
	return nil
}

// Fill sets every element to the given value, converted to the tensor's dtype.
func (t *Tensor) Fill(value float64) error {
	return t.FillFn(func(int) float64 { return value })
}

func fillConvert[T any](flat []T, fn func(int) float64, conv func(float64) T) {
	for i := range flat {
		flat[i] = conv(fn(i))
	}
}

type addable interface {
	~float32 | ~float64 |
		~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64
}

func addSlices[T addable](dst, src []T) {
	for i := range dst {
		dst[i] += src[i]
	}
}

func accumulateFlat(dtype dtypes.DType, dstFlat, srcFlat any) error {
	switch dtype {
	case dtypes.Float16:
		dst, src := dstFlat.([]float16.Float16), srcFlat.([]float16.Float16)
		for i := range dst {
			dst[i] = float16.Fromfloat32(dst[i].Float32() + src[i].Float32())
		}
	case dtypes.Float32:
		addSlices(dstFlat.([]float32), srcFlat.([]float32))
	case dtypes.Float64:
		addSlices(dstFlat.([]float64), srcFlat.([]float64))
	case dtypes.Int8:
		addSlices(dstFlat.([]int8), srcFlat.([]int8))
	case dtypes.Int16:
		addSlices(dstFlat.([]int16), srcFlat.([]int16))
	case dtypes.Int32:
		addSlices(dstFlat.([]int32), srcFlat.([]int32))
	case dtypes.Int64:
		addSlices(dstFlat.([]int64), srcFlat.([]int64))
	case dtypes.Uint8:
		addSlices(dstFlat.([]uint8), srcFlat.([]uint8))
	case dtypes.Uint16:
		addSlices(dstFlat.([]uint16), srcFlat.([]uint16))
	case dtypes.Uint32:
		addSlices(dstFlat.([]uint32), srcFlat.([]uint32))
	case dtypes.Uint64:
		addSlices(dstFlat.([]uint64), srcFlat.([]uint64))
	default:
		return errors.Errorf("tensors: accumulation not supported for dtype %s", dtype)
	}
	return nil
}
