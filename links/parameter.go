// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package links

import (
	"github.com/gomlx/chains/backends"
	"github.com/gomlx/chains/initializers"
	"github.com/gomlx/chains/shapes"
	"github.com/gomlx/chains/tensors"
	"github.com/pkg/errors"
)

// UpdateRule describes how an optimizer should treat a parameter. The
// composition layer only reads and toggles Enabled; everything else is the
// optimizer's business.
type UpdateRule struct {
	// Enabled gates whether the parameter is updated during training. See
	// EnableUpdate and DisableUpdate for toggling a whole tree.
	Enabled bool
}

// Parameter is a named, learnable array slot owned by a link.
//
// Storage may be allocated lazily: a parameter created with an invalid shape
// (shapes.Invalid()) stays uninitialized (Value() == nil) until Initialize is
// called with a concrete shape — typically when the first input is seen or a
// saved value is restored.
type Parameter struct {
	name  string
	shape shapes.Shape
	init  initializers.Initializer
	value *tensors.Tensor
	grad  *tensors.Tensor
	rule  *UpdateRule
}

// NewParameter creates an uninitialized parameter. The shape may be
// shapes.Invalid() when not yet known. The optional initializer is used by
// Initialize; the default fills float storage with NaNs (so reads of values
// never written stand out) and everything else with zeros.
func NewParameter(shape shapes.Shape, init ...initializers.Initializer) *Parameter {
	p := &Parameter{shape: shape.Clone(), rule: &UpdateRule{Enabled: true}}
	if len(init) > 0 {
		p.init = init[0]
	}
	return p
}

// NewParameterWithValue creates a parameter already holding the given value.
func NewParameterWithValue(value *tensors.Tensor) *Parameter {
	return &Parameter{
		shape: value.Shape().Clone(),
		value: value,
		rule:  &UpdateRule{Enabled: true},
	}
}

// Name returns the name the parameter was registered under, "" before
// registration.
func (p *Parameter) Name() string { return p.name }

// Shape returns the declared (or current) shape. It may be invalid for an
// uninitialized parameter whose shape is not yet known.
func (p *Parameter) Shape() shapes.Shape { return p.shape }

// Value returns the parameter's storage, nil while uninitialized.
func (p *Parameter) Value() *tensors.Tensor { return p.value }

// Initialized returns whether storage has been allocated.
func (p *Parameter) Initialized() bool { return p.value != nil }

// SetValue replaces the parameter's storage and adopts the value's shape.
// The gradient is left untouched.
func (p *Parameter) SetValue(value *tensors.Tensor) {
	p.value = value
	p.shape = value.Shape().Clone()
}

// Initialize (re-)allocates the parameter's storage using its initializer.
// An optional shape overrides (and becomes) the declared one. The gradient
// is reset. Existing storage is discarded, so Initialize on an initialized
// parameter erases its learned state.
func (p *Parameter) Initialize(shape ...shapes.Shape) error {
	target := p.shape
	if len(shape) > 0 {
		target = shape[0]
	}
	if !target.Ok() {
		return errors.Errorf("parameter %q has no shape to initialize from", p.name)
	}
	init := p.init
	if init == nil {
		if target.DType.IsFloat() {
			init = initializers.NaN
		} else {
			init = initializers.Zeros
		}
	}
	value, err := init(target)
	if err != nil {
		return errors.WithMessagef(err, "initializing parameter %q", p.name)
	}
	p.value = value
	p.shape = target.Clone()
	p.grad = nil
	return nil
}

// Grad returns the accumulated gradient, nil when cleared or never set.
func (p *Parameter) Grad() *tensors.Tensor { return p.grad }

// SetGrad replaces the gradient tensor.
func (p *Parameter) SetGrad(grad *tensors.Tensor) { p.grad = grad }

// ClearGrad releases the gradient (sets it to nil).
func (p *Parameter) ClearGrad() { p.grad = nil }

// ZeroGrad makes the gradient an all-zeros tensor shaped like the value,
// allocating it if needed. A no-op on an uninitialized parameter.
func (p *Parameter) ZeroGrad() error {
	if p.value == nil {
		return nil
	}
	if p.grad == nil {
		p.grad = tensors.FromShape(p.value.Shape())
		if backend, device := p.value.Device(); backend != nil {
			return p.grad.ToDevice(backend, device)
		}
		return nil
	}
	return p.grad.Zero()
}

// UpdateRule returns the parameter's update rule. Never nil for parameters
// created by this package.
func (p *Parameter) UpdateRule() *UpdateRule { return p.rule }

// SetUpdateRule replaces the update rule.
func (p *Parameter) SetUpdateRule(rule *UpdateRule) { p.rule = rule }

// CopyValueFrom copies the source parameter's value into this one, across
// devices if needed. An uninitialized source is a no-op (there is nothing to
// copy); a previously-uninitialized destination adopts a host copy of the
// source value.
func (p *Parameter) CopyValueFrom(src *Parameter) error {
	if src.value == nil {
		return nil
	}
	if p.value == nil {
		p.value = src.value.Clone()
		p.shape = p.value.Shape().Clone()
		return nil
	}
	return p.value.CopyFrom(src.value)
}

// AccumulateGradFrom adds the source parameter's gradient into this one's.
// A nil source gradient is a no-op; a nil destination gradient adopts a host
// copy of the source gradient.
func (p *Parameter) AccumulateGradFrom(src *Parameter) error {
	if src.grad == nil {
		return nil
	}
	if p.grad == nil {
		p.grad = src.grad.Clone()
		return nil
	}
	return p.grad.AccumulateFrom(src.grad)
}

// shareClone returns a new holder for the same storage: the value tensor is
// aliased (copy-on-write is up to the caller, see SetValue), the gradient is
// reset and the update rule is shared.
func (p *Parameter) shareClone() *Parameter {
	return &Parameter{
		name:  p.name,
		shape: p.shape.Clone(),
		init:  p.init,
		value: p.value,
		rule:  p.rule,
	}
}

func (p *Parameter) toHost() error {
	if p.value != nil {
		if err := p.value.ToHost(); err != nil {
			return err
		}
	}
	if p.grad != nil {
		return p.grad.ToHost()
	}
	return nil
}

func (p *Parameter) toDevice(backend backends.Backend, device backends.DeviceNum) error {
	if p.value != nil {
		if err := p.value.ToDevice(backend, device); err != nil {
			return err
		}
	}
	if p.grad != nil {
		return p.grad.ToDevice(backend, device)
	}
	return nil
}
