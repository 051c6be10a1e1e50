// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package links_test

import (
	"testing"

	"github.com/gomlx/chains/backends"
	. "github.com/gomlx/chains/links"
	"github.com/gomlx/chains/serializers"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeRoundTrip(t *testing.T) {
	m := NewMLP()
	fillParam(m.L1.W, 1.25)
	fillParam(m.L2.W, -3)
	require.NoError(t, m.L1.AddPersistent("steps", 42))

	store := serializers.NewStore()
	require.NoError(t, Serialize(m, serializers.NewRecorder(store)))

	// Keys are the "/"-joined paths, relative to the root.
	_, found := store.Get("l1/W")
	assert.True(t, found)
	_, found = store.Get("l1/steps")
	assert.True(t, found)

	// Saved values are snapshots: later mutation does not touch them.
	fillParam(m.L1.W, 99)
	fillParam(m.L2.W, 99)

	require.NoError(t, Serialize(m, serializers.NewRestorer(store)))
	assert.Equal(t, float32(1.25), paramData(m.L1.W)[0])
	assert.Equal(t, float32(-3), paramData(m.L2.W)[0])
}

func TestSerializeDeferredAllocation(t *testing.T) {
	src := NewMLP()
	require.NoError(t, src.L1.B.Initialize())
	fillParam(src.L1.B, 8)
	require.NoError(t, src.L2.B.Initialize())

	store := serializers.NewStore()
	require.NoError(t, Serialize(src, serializers.NewRecorder(store)))

	// The fresh tree's lazy parameters get allocated from the stored shapes.
	dst := NewMLP()
	require.False(t, dst.L1.B.Initialized())
	require.NoError(t, Serialize(dst, serializers.NewRestorer(store)))
	require.True(t, dst.L1.B.Initialized())
	assert.True(t, dst.L1.B.Value().Shape().Equal(src.L1.B.Value().Shape()))
	assert.Equal(t, float32(8), paramData(dst.L1.B)[0])
}

func TestSerializeMissingEntry(t *testing.T) {
	m := NewLinear(2, 2)
	err := Serialize(m, serializers.NewRestorer(serializers.NewStore()))
	require.ErrorIs(t, err, serializers.ErrEntryMissing)

	// NonStrict keeps current values for missing entries.
	fillParam(m.W, 5)
	require.NoError(t, Serialize(m, serializers.NewRestorer(serializers.NewStore()).NonStrict()))
	assert.Equal(t, float32(5), paramData(m.W)[0])
}

func TestSerializeAnonymousPipeline(t *testing.T) {
	double := func(args ...any) (any, error) { return args[0].(float64) * 2, nil }

	s := must.M1(NewSequential(ApplyFn(double)))
	err := Serialize(s, serializers.NewRecorder(serializers.NewStore()))
	require.ErrorIs(t, err, ErrNotSerializable)
	assert.Contains(t, err.Error(), "NamedFn")

	// The named wrapping is the remedy.
	s = must.M1(NewSequential(NamedFn{Name: "double", Fn: double}))
	require.NoError(t, Serialize(s, serializers.NewRecorder(serializers.NewStore())))

	// A nested anonymous pipeline poisons the whole tree.
	parent := &ChainList{}
	parent.Append(must.M1(NewSequential(ApplyFn(double))))
	err = Serialize(parent, serializers.NewRecorder(serializers.NewStore()))
	require.ErrorIs(t, err, ErrNotSerializable)
}

func TestSerializeKeepsDevicePlacement(t *testing.T) {
	backend := backends.MustNewWithConfig("simple")
	m := NewLinear(2, 2)
	fillParam(m.W, 3)

	store := serializers.NewStore()
	require.NoError(t, Serialize(m, serializers.NewRecorder(store)))

	require.NoError(t, ToDevice(m, backend, 0))
	require.NoError(t, Serialize(m, serializers.NewRestorer(store).NonStrict()))
	assert.True(t, m.W.Value().OnDevice(backend, 0))

	require.NoError(t, ToHost(m))
	assert.Equal(t, float32(3), paramData(m.W)[0])
}

func TestStoreJSONRoundTrip(t *testing.T) {
	m := NewLinear(2, 3)
	fillParam(m.W, 1.5)
	store := serializers.NewStore()
	require.NoError(t, Serialize(m, serializers.NewRecorder(store)))

	data := must.M1(store.MarshalJSON())
	restoredStore := serializers.NewStore()
	require.NoError(t, restoredStore.UnmarshalJSON(data))

	m2 := NewLinear(2, 3)
	require.NoError(t, Serialize(m2, serializers.NewRestorer(restoredStore).NonStrict()))
	assert.Equal(t, paramData(m.W), paramData(m2.W))
}
