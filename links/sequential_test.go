// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package links_test

import (
	"testing"

	"github.com/gomlx/chains/initializers"
	. "github.com/gomlx/chains/links"
	"github.com/gomlx/chains/shapes"
	"github.com/gomlx/chains/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scale is a callable link stage multiplying its float64 input by a learned
// gain.
type Scale struct {
	Link
	Gain *Parameter
}

func NewScale(gain float64) *Scale {
	s := &Scale{Gain: NewParameter(shapes.Make(dtypes.Float64), initializers.Constant(gain))}
	must.M(s.Gain.Initialize())
	s.InitScope(func() {
		must.M(s.SetAttr("gain", s.Gain))
	})
	return s
}

func (s *Scale) Apply(args ...any) (any, error) {
	return args[0].(float64) * tensors.ToScalar[float64](s.Gain.Value()), nil
}

func (s *Scale) Clone() Node {
	c := &Scale{}
	s.Link.CloneInto(&c.Link)
	c.Gain, _ = c.Param("gain")
	return c
}

var addOne = NamedFn{Name: "addOne", Fn: func(args ...any) (any, error) {
	return args[0].(float64) + 1, nil
}}

func TestSequentialApply(t *testing.T) {
	split := NamedFn{Name: "split", Fn: func(args ...any) (any, error) {
		return []any{args[0].(float64), 1.0}, nil
	}}
	sum := NamedFn{Name: "sum", Fn: func(args ...any) (any, error) {
		total := 0.0
		for _, arg := range args {
			total += arg.(float64)
		}
		return total, nil
	}}

	s := must.M1(NewSequential(addOne, NewScale(3), split, sum))
	got := must.M1(s.Apply(2.0))
	// (2+1)*3 = 9, split into (9, 1), summed to 10.
	assert.Equal(t, 10.0, got)

	// An empty pipeline returns its input unchanged.
	empty := must.M1(NewSequential())
	assert.Equal(t, 5.0, must.M1(empty.Apply(5.0)))
}

func TestSequentialChildIndexSync(t *testing.T) {
	a, b := NewScale(2), NewScale(3)
	s := must.M1(NewSequential(addOne, a, addOne, b))

	// Only link stages are children, named by their child-list position.
	assert.Equal(t, 2, s.ChainList.Len())
	assert.Equal(t, "0", a.Name())
	assert.Equal(t, "1", b.Name())

	// Deleting a function stage leaves children alone.
	require.NoError(t, s.Delete(0))
	assert.Equal(t, "0", a.Name())

	// Deleting a link stage renumbers the ones after it.
	require.NoError(t, s.Delete(0)) // a
	assert.Equal(t, "", a.Name())
	assert.Equal(t, "0", b.Name())
	assert.Equal(t, 1, s.ChainList.Len())

	// Inserting a link stage before b pushes b's index up.
	c := NewScale(4)
	require.NoError(t, s.Insert(0, c))
	assert.Equal(t, "0", c.Name())
	assert.Equal(t, "1", b.Name())
}

func TestSequentialEditing(t *testing.T) {
	s := must.M1(NewSequential(addOne, NewScale(2)))

	// Set with an identical stage is a no-op.
	require.NoError(t, s.Set(0, addOne))
	assert.Equal(t, 2, s.Len())

	// Set replaces.
	double := NamedFn{Name: "double", Fn: func(args ...any) (any, error) {
		return args[0].(float64) * 2, nil
	}}
	require.NoError(t, s.Set(0, double))
	assert.Equal(t, 8.0, must.M1(s.Apply(2.0)))

	// Pop removes from the end by default.
	popped := must.M1(s.Pop(-1))
	_, isScale := popped.(*Scale)
	assert.True(t, isScale)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 0, s.ChainList.Len())

	// Remove by equality.
	require.NoError(t, s.Remove(double))
	assert.Equal(t, 0, s.Len())
	require.ErrorIs(t, s.Remove(double), ErrMissingAttribute)

	// Clear detaches children.
	sc := NewScale(2)
	require.NoError(t, s.Append(sc))
	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "", sc.Name())
}

func TestSequentialSetInvalidKeepsPipeline(t *testing.T) {
	sc := NewScale(3)
	s := must.M1(NewSequential(addOne, sc))

	// A failed replacement must not destroy the stage it targeted.
	require.ErrorIs(t, s.Set(1, 5), ErrNotCallable)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 1, s.ChainList.Len())
	assert.Equal(t, "0", sc.Name())
	assert.Same(t, sc, must.M1(s.Layer(1)).(*Scale))

	require.ErrorIs(t, s.Set(0, nil), ErrInvalidType)
	assert.Equal(t, 2, s.Len())

	// A Node without an Apply method is rejected the same way.
	require.ErrorIs(t, s.Set(1, NewLinear(2, 2)), ErrNotCallable)
	assert.Equal(t, 9.0, must.M1(s.Apply(2.0)))
}

func TestSequentialQueries(t *testing.T) {
	sc := NewScale(2)
	s := must.M1(NewSequential(addOne, sc, addOne, NewScale(5)))

	assert.Equal(t, 1, must.M1(s.Index(sc)))

	// Bounded search: the second addOne sits at position 2.
	assert.Equal(t, 2, must.M1(s.Index(addOne, 1)))
	assert.Equal(t, 0, must.M1(s.Index(addOne, 0, 2)))
	assert.Equal(t, 2, must.M1(s.Index(addOne, -3))) // Negative counts from the end.
	_, err := s.Index(sc, 2)
	require.ErrorIs(t, err, ErrMissingAttribute)

	assert.Equal(t, 2, s.Count(addOne))
	assert.Equal(t, 2, s.CountByTypeName("Scale"))
	assert.Equal(t, 2, s.CountByTypeName("addOne"))

	removed := must.M1(s.RemoveByTypeName("addOne"))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, s.Len())
}

func TestSequentialExtendConcat(t *testing.T) {
	sc := NewScale(2)
	a := must.M1(NewSequential(addOne))
	b := must.M1(NewSequential(sc))

	c := must.M1(a.Concat(b))
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 1, a.Len()) // Concat does not mutate its receivers.

	// Link stages are shared, not copied.
	assert.Same(t, sc.Gain.Value(), c.ChainList.At(0).(*Scale).Gain.Value())

	require.NoError(t, a.Extend(b))
	assert.Equal(t, 2, a.Len())
}

func TestSequentialRepeat(t *testing.T) {
	sc := NewScale(3)
	fresh := tensors.FromScalar(7.0) // Learned state the repetitions must not inherit.
	sc.Gain.SetValue(fresh)

	s := must.M1(NewSequential(addOne, sc))
	r := must.M1(s.Repeat(2))
	assert.Equal(t, 4, r.Len())
	assert.Equal(t, 2, r.ChainList.Len())

	// Every repetition got freshly initialized storage: the constant
	// initializer value, not the learned 7.
	for i := 0; i < 2; i++ {
		gain := r.ChainList.At(i).(*Scale).Gain
		assert.NotSame(t, sc.Gain.Value(), gain.Value())
		assert.Equal(t, 3.0, tensors.ToScalar[float64](gain.Value()))
	}
	// The original keeps its learned state.
	assert.Equal(t, 7.0, tensors.ToScalar[float64](sc.Gain.Value()))

	// n <= 0 gives an empty pipeline.
	assert.Equal(t, 0, must.M1(s.Repeat(0)).Len())
}

func TestSequentialTypeErrors(t *testing.T) {
	s := must.M1(NewSequential())
	require.ErrorIs(t, s.Append(5), ErrNotCallable)
	require.ErrorIs(t, s.Append(nil), ErrInvalidType)

	// A Node without an Apply method is not a valid stage.
	require.ErrorIs(t, s.Append(NewLinear(2, 2)), ErrNotCallable)

	_, err := NewSequential(addOne, 5)
	require.ErrorIs(t, err, ErrNotCallable)
}

func TestSequentialSortReverse(t *testing.T) {
	s := must.M1(NewSequential(addOne))
	require.ErrorIs(t, s.Sort(), ErrUnsupported)
	require.ErrorIs(t, s.Reverse(), ErrUnsupported)
}

func TestSequentialClone(t *testing.T) {
	s := must.M1(NewSequential(addOne, NewScale(4)))
	c := s.Clone().(*Sequential)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 12.0, must.M1(c.Apply(2.0)))

	// The cloned link stage aliases the original's storage.
	orig := s.ChainList.At(0).(*Scale)
	cloned := c.ChainList.At(0).(*Scale)
	assert.NotSame(t, orig, cloned)
	assert.Same(t, orig.Gain.Value(), cloned.Gain.Value())
}

func TestSequentialString(t *testing.T) {
	s := must.M1(NewSequential(addOne, NewScale(2)))
	str := s.String()
	assert.Contains(t, str, "(0): addOne")
	assert.Contains(t, str, "(1): Scale")
}
