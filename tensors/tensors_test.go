// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors_test

import (
	"math"
	"testing"

	"github.com/gomlx/chains/backends"
	"github.com/gomlx/chains/shapes"
	. "github.com/gomlx/chains/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/chains/backends/simple"
)

func init() {
	klog.InitFlags(nil)
}

func TestFromFlatDataAndDimensions(t *testing.T) {
	x := FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.Equal(t, dtypes.Float32, x.DType())
	assert.Equal(t, 6, x.Size())
	assert.True(t, x.OnHost())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, CopyFlatData[float32](x))

	require.Panics(t, func() { FromFlatDataAndDimensions([]float32{1, 2}, 3) })
	require.Panics(t, func() { CopyFlatData[float64](x) }) // Wrong dtype.
}

func TestFromShapeIsZero(t *testing.T) {
	x := FromShape(shapes.Make(dtypes.Int64, 3))
	assert.Equal(t, []int64{0, 0, 0}, CopyFlatData[int64](x))
}

func TestScalar(t *testing.T) {
	x := FromScalar(3.5)
	assert.True(t, x.Shape().IsScalar())
	assert.Equal(t, 3.5, ToScalar[float64](x))
}

func TestMutableFlatData(t *testing.T) {
	x := FromShape(shapes.Make(dtypes.Float32, 2))
	MutableFlatData(x, func(flat []float32) {
		flat[0], flat[1] = 1, 2
	})
	ConstFlatData(x, func(flat []float32) {
		assert.Equal(t, []float32{1, 2}, flat)
	})
}

func TestCopyFrom(t *testing.T) {
	x := FromFlatDataAndDimensions([]float32{1, 2, 3}, 3)
	y := FromShape(shapes.Make(dtypes.Float32, 3))
	require.NoError(t, y.CopyFrom(x))
	assert.Equal(t, []float32{1, 2, 3}, CopyFlatData[float32](y))

	// Shape mismatch.
	z := FromShape(shapes.Make(dtypes.Float32, 4))
	require.Error(t, z.CopyFrom(x))
	require.Error(t, z.CopyFrom(FromFlatDataAndDimensions([]float64{1, 2, 3, 4}, 4)))
}

func TestAccumulateFrom(t *testing.T) {
	x := FromFlatDataAndDimensions([]float32{1, 2, 3}, 3)
	y := FromFlatDataAndDimensions([]float32{10, 20, 30}, 3)
	require.NoError(t, x.AccumulateFrom(y))
	assert.Equal(t, []float32{11, 22, 33}, CopyFlatData[float32](x))

	// Float16 goes through x448/float16 arithmetic.
	h := FromFlatDataAndDimensions([]float16.Float16{float16.Fromfloat32(1.5)}, 1)
	g := FromFlatDataAndDimensions([]float16.Float16{float16.Fromfloat32(2.25)}, 1)
	require.NoError(t, h.AccumulateFrom(g))
	assert.Equal(t, float32(3.75), CopyFlatData[float16.Float16](h)[0].Float32())
}

func TestZeroAndFill(t *testing.T) {
	x := FromFlatDataAndDimensions([]float64{1, 2}, 2)
	require.NoError(t, x.Zero())
	assert.Equal(t, []float64{0, 0}, CopyFlatData[float64](x))

	require.NoError(t, x.Fill(1.5))
	assert.Equal(t, []float64{1.5, 1.5}, CopyFlatData[float64](x))

	require.NoError(t, x.FillFn(func(i int) float64 { return float64(i) }))
	assert.Equal(t, []float64{0, 1}, CopyFlatData[float64](x))

	nan := FromShape(shapes.Make(dtypes.Float32, 1))
	require.NoError(t, nan.Fill(math.NaN()))
	assert.True(t, math.IsNaN(float64(CopyFlatData[float32](nan)[0])))
}

func TestClone(t *testing.T) {
	x := FromFlatDataAndDimensions([]int32{1, 2}, 2)
	y := x.Clone()
	MutableFlatData(x, func(flat []int32) { flat[0] = 9 })
	assert.Equal(t, []int32{1, 2}, CopyFlatData[int32](y))
	assert.True(t, x.Shape().Equal(y.Shape()))
}

func TestEqual(t *testing.T) {
	x := FromFlatDataAndDimensions([]float32{1, 2}, 2)
	assert.True(t, x.Equal(x.Clone()))
	assert.False(t, x.Equal(FromFlatDataAndDimensions([]float32{1, 3}, 2)))
	assert.False(t, x.Equal(FromFlatDataAndDimensions([]float32{1, 2, 3}, 3)))
}

func TestDeviceTransfers(t *testing.T) {
	backend := backends.MustNewWithConfig("simple:2")
	x := FromFlatDataAndDimensions([]float32{1, 2, 3}, 3)

	require.NoError(t, x.ToDevice(backend, 0))
	assert.False(t, x.OnHost())
	assert.True(t, x.OnDevice(backend, 0))
	gotBackend, device := x.Device()
	assert.Equal(t, backend, gotBackend)
	assert.Equal(t, backends.DeviceNum(0), device)

	// Device-to-device.
	require.NoError(t, x.ToDevice(backend, 1))
	assert.True(t, x.OnDevice(backend, 1))

	// Copy and accumulate work across residencies.
	y := FromFlatDataAndDimensions([]float32{10, 20, 30}, 3)
	require.NoError(t, x.AccumulateFrom(y))
	assert.True(t, x.OnDevice(backend, 1))

	require.NoError(t, x.ToHost())
	assert.True(t, x.OnHost())
	assert.Equal(t, []float32{11, 22, 33}, CopyFlatData[float32](x))
}

func TestFlatBytesRoundTrip(t *testing.T) {
	x := FromFlatDataAndDimensions([]float32{1.5, -2}, 2)
	data := must.M1(CopyFlatBytes(x))
	y := must.M1(FromFlatBytes(dtypes.Float32, []int{2}, data))
	assert.True(t, x.Equal(y))

	_, err := FromFlatBytes(dtypes.Float32, []int{3}, data)
	require.Error(t, err)
	_, err = FromFlatBytes(dtypes.Float32, []int{-1}, data)
	require.Error(t, err)
}
