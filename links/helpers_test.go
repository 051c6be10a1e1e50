// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package links_test

import (
	"github.com/gomlx/chains/initializers"
	. "github.com/gomlx/chains/links"
	"github.com/gomlx/chains/shapes"
	"github.com/gomlx/chains/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/chains/backends/simple"
)

func init() {
	klog.InitFlags(nil)
}

// Linear is the test building block: W initialized eagerly, B lazily (shape
// declared, storage deferred).
type Linear struct {
	Link
	W, B *Parameter
}

func NewLinear(outputDim, inputDim int) *Linear {
	l := &Linear{
		W: NewParameterWithValue(tensors.FromShape(shapes.Make(dtypes.Float32, outputDim, inputDim))),
		B: NewParameter(shapes.Make(dtypes.Float32, outputDim), initializers.Zeros),
	}
	l.InitScope(func() {
		must.M(l.SetAttr("W", l.W))
		must.M(l.SetAttr("B", l.B))
	})
	return l
}

func (l *Linear) Clone() Node {
	c := &Linear{}
	l.Link.CloneInto(&c.Link)
	c.W, _ = c.Param("W")
	c.B, _ = c.Param("B")
	return c
}

// MLP composes two Linear links by name.
type MLP struct {
	Chain
	L1, L2 *Linear
}

func NewMLP() *MLP {
	m := &MLP{L1: NewLinear(3, 2), L2: NewLinear(1, 3)}
	m.InitScope(func() {
		must.M(m.SetAttr("l1", m.L1))
		must.M(m.SetAttr("l2", m.L2))
	})
	return m
}

func (m *MLP) Clone() Node {
	c := &MLP{}
	m.Chain.CloneInto(&c.Chain)
	l1, _ := c.Child("l1")
	l2, _ := c.Child("l2")
	c.L1 = l1.(*Linear)
	c.L2 = l2.(*Linear)
	return c
}

// fillParam overwrites a parameter's (float32) value.
func fillParam(p *Parameter, value float32) {
	t := p.Value()
	tensors.MutableFlatData(t, func(flat []float32) {
		for i := range flat {
			flat[i] = value
		}
	})
}

func paramData(p *Parameter) []float32 {
	return tensors.CopyFlatData[float32](p.Value())
}

func mustFlat(t *tensors.Tensor) []float32 {
	return tensors.CopyFlatData[float32](t)
}

func shapesScalarF32() shapes.Shape {
	return shapes.Make(dtypes.Float32)
}
