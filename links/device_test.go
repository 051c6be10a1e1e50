// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package links_test

import (
	"testing"

	"github.com/gomlx/chains/backends"
	. "github.com/gomlx/chains/links"
	"github.com/gomlx/chains/tensors"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDeviceAndBack(t *testing.T) {
	backend := backends.MustNewWithConfig("simple:2")
	m := NewMLP()
	fillParam(m.L1.W, 4)
	want := paramData(m.L1.W)
	m.InitScope(func() {
		must.M(m.SetAttr("mean", tensors.FromScalar(float32(2.5))))
	})
	require.NoError(t, m.RegisterPersistent("mean"))

	require.NoError(t, ToDevice(m, backend, 1))

	// Every tensor of every node moved, persistent values included.
	assert.False(t, m.L1.W.Value().OnHost())
	assert.True(t, m.L1.W.Value().OnDevice(backend, 1))
	mean, _ := m.Attr("mean")
	assert.True(t, mean.(*tensors.Tensor).OnDevice(backend, 1))

	// No-op when already there.
	require.NoError(t, ToDevice(m, backend, 1))

	// Values survive the round-trip.
	require.NoError(t, ToHost(m))
	assert.True(t, m.L1.W.Value().OnHost())
	assert.Equal(t, want, paramData(m.L1.W))
	assert.Equal(t, float32(2.5), tensors.ToScalar[float32](mean.(*tensors.Tensor)))
}

func TestToDeviceRegistersOnDevice(t *testing.T) {
	backend := backends.MustNewWithConfig("simple")
	l := NewLinear(2, 2)
	require.NoError(t, ToDevice(l, backend, 0))

	// A parameter registered while the link is on a device follows it.
	p := NewParameterWithValue(tensors.FromScalar(float32(1)))
	l.InitScope(func() {
		must.M(l.SetAttr("scale", p))
	})
	assert.True(t, p.Value().OnDevice(backend, 0))

	require.NoError(t, ToHost(l))
	assert.True(t, p.Value().OnHost())
}

func TestToDeviceWithoutBackend(t *testing.T) {
	// An unknown backend name reports the missing accelerator support.
	_, err := backends.NewWithConfig("does-not-exist")
	require.ErrorIs(t, err, backends.ErrNoAccelerator)
}

func TestCurrentDeviceScope(t *testing.T) {
	backend := backends.MustNewWithConfig("simple:3")
	release := must.M1(backend.ScopeDevice(2))
	defer release()

	l := NewLinear(2, 2)
	// CurrentDevice resolves against the surrounding scope.
	require.NoError(t, ToDevice(l, backend, backends.CurrentDevice))
	assert.True(t, l.W.Value().OnDevice(backend, 2))
}
