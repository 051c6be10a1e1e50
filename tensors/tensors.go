// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements the array value holder used for parameter and
// gradient storage: a shaped, dtype-typed flat slice that lives either in
// host memory or in a backend's device memory.
//
// A Tensor is always resident in exactly one place. Transfers between host
// and device go through the backends.Backend interface; all element access
// (ConstFlatData, MutableFlatData, arithmetic) requires host residency.
package tensors

import (
	"reflect"
	"unsafe"

	"github.com/gomlx/chains/backends"
	"github.com/gomlx/chains/shapes"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Tensor is a shaped array value, resident either on the host or on one
// backend device.
//
// The zero value is not usable; create tensors with FromShape,
// FromFlatDataAndDimensions or FromScalar.
type Tensor struct {
	shape shapes.Shape

	// flat is the host storage, a slice of the dtype's Go type ([]float32,
	// []int64, ...). nil while the tensor is on a device.
	flat any

	// buffer is the device storage. nil while the tensor is on the host.
	buffer  backends.Buffer
	backend backends.Backend
	device  backends.DeviceNum
}

// FromShape creates a zero-initialized host tensor of the given shape.
// It panics on an invalid shape.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("tensors.FromShape: invalid shape")
	}
	flatV := reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), shape.Size(), shape.Size())
	return &Tensor{shape: shape.Clone(), flat: flatV.Interface()}
}

// FromFlatDataAndDimensions creates a host tensor from the given flat data
// and dimensions. The data slice is used directly (not copied) and must have
// exactly the shape's size. The dtype is inferred from T.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	dtype := dtypes.FromGenericsType[T]()
	shape := shapes.Make(dtype, dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("tensors.FromFlatDataAndDimensions: data has %d elements, shape %s requires %d",
			len(data), shape, shape.Size())
	}
	return &Tensor{shape: shape, flat: data}
}

// FromScalar creates a host tensor with a scalar shape holding the given value.
func FromScalar[T dtypes.Supported](value T) *Tensor {
	return FromFlatDataAndDimensions([]T{value})
}

// FromFlatBytes creates a host tensor of the given dtype and dimensions from
// raw flat data bytes, as produced by CopyFlatBytes.
func FromFlatBytes(dtype dtypes.DType, dimensions []int, data []byte) (*Tensor, error) {
	for _, dim := range dimensions {
		if dim <= 0 {
			return nil, errors.Errorf("tensors.FromFlatBytes: invalid dimensions %v", dimensions)
		}
	}
	shape := shapes.Make(dtype, dimensions...)
	if uintptr(len(data)) != shape.Memory() {
		return nil, errors.Errorf("tensors.FromFlatBytes: shape %s requires %d bytes, got %d",
			shape, shape.Memory(), len(data))
	}
	return &Tensor{shape: shape, flat: flatFromBytes(shape, data)}, nil
}

// CopyFlatBytes returns a copy of the tensor's raw flat data bytes, without
// changing its residency.
func CopyFlatBytes(t *Tensor) ([]byte, error) {
	return t.hostData()
}

// Shape of the tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the tensor, a shortcut to Shape().DType.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Size returns the number of elements.
func (t *Tensor) Size() int { return t.shape.Size() }

// Memory returns the number of bytes of the tensor's storage.
func (t *Tensor) Memory() uintptr { return t.shape.Memory() }

// OnHost returns whether the tensor's storage lives in host memory.
func (t *Tensor) OnHost() bool { return t.flat != nil }

// OnDevice returns whether the tensor's storage lives on the given backend
// and device.
func (t *Tensor) OnDevice(backend backends.Backend, device backends.DeviceNum) bool {
	return t.buffer != nil && t.backend == backend && t.device == device
}

// Device returns the backend and device holding the tensor's storage. The
// backend is nil while the tensor is on the host.
func (t *Tensor) Device() (backends.Backend, backends.DeviceNum) {
	if t.OnHost() {
		return nil, 0
	}
	return t.backend, t.device
}

// ToDevice moves the tensor's storage to the given backend device. A device
// of backends.CurrentDevice resolves against the backend's device scope.
// It is a no-op if the storage is already there.
func (t *Tensor) ToDevice(backend backends.Backend, device backends.DeviceNum) error {
	if backend == nil {
		return errors.Errorf("tensors.ToDevice: nil backend")
	}
	if device == backends.CurrentDevice {
		device = backend.CurrentDevice()
	}
	if t.OnDevice(backend, device) {
		return nil
	}
	if !t.OnHost() {
		// Device-to-device (possibly cross-backend) goes through the host.
		if err := t.ToHost(); err != nil {
			return err
		}
	}
	buffer, err := backend.FromHost(t.flatBytes(), device)
	if err != nil {
		return errors.WithMessagef(err, "uploading %s tensor to device #%d of backend %q",
			t.shape, device, backend.Name())
	}
	t.flat = nil
	t.buffer = buffer
	t.backend = backend
	t.device = device
	return nil
}

// ToHost moves the tensor's storage back to host memory, freeing the device
// buffer. It is a no-op if the storage is already on the host.
func (t *Tensor) ToHost() error {
	if t.OnHost() {
		return nil
	}
	data, err := t.backend.ToHost(t.buffer)
	if err != nil {
		return errors.WithMessagef(err, "downloading %s tensor from device #%d of backend %q",
			t.shape, t.device, t.backend.Name())
	}
	t.backend.Free(t.buffer)
	t.flat = flatFromBytes(t.shape, data)
	t.buffer = nil
	t.backend = nil
	t.device = 0
	return nil
}

// Clone returns a deep copy of the tensor's contents, always resident on the
// host. The original tensor's residency is not changed.
func (t *Tensor) Clone() *Tensor {
	data, err := t.hostData()
	if err != nil {
		exceptions.Panicf("tensors.Clone: %+v", err)
	}
	return &Tensor{shape: t.shape.Clone(), flat: flatFromBytes(t.shape, data)}
}

// FinalizeDevice frees the device buffer, if any, discarding the contents.
// Host tensors are unaffected.
func (t *Tensor) FinalizeDevice() {
	if t.buffer != nil {
		t.backend.Free(t.buffer)
		t.buffer = nil
		t.backend = nil
		t.device = 0
	}
}

// hostData returns a copy of the tensor's raw bytes without changing its
// residency.
func (t *Tensor) hostData() ([]byte, error) {
	if t.OnHost() {
		view := t.flatBytes()
		data := make([]byte, len(view))
		copy(data, view)
		return data, nil
	}
	return t.backend.ToHost(t.buffer)
}

// setHostData overwrites the tensor's storage with the given raw bytes,
// preserving its residency (a device tensor gets a fresh upload).
func (t *Tensor) setHostData(data []byte) error {
	if t.OnHost() {
		copy(t.flatBytes(), data)
		return nil
	}
	buffer, err := t.backend.FromHost(data, t.device)
	if err != nil {
		return err
	}
	t.backend.Free(t.buffer)
	t.buffer = buffer
	return nil
}

// flatBytes returns the host storage as raw bytes. Tensor must be on host.
func (t *Tensor) flatBytes() []byte {
	return bytesView(t.flat, t.shape)
}

func bytesView(flat any, shape shapes.Shape) []byte {
	v := reflect.ValueOf(flat)
	numBytes := v.Len() * int(shape.DType.Memory())
	if numBytes == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(v.Pointer())), numBytes)
}

func flatFromBytes(shape shapes.Shape, data []byte) any {
	flatV := reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), shape.Size(), shape.Size())
	flat := flatV.Interface()
	copy(bytesView(flat, shape), data)
	return flat
}
