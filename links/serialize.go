// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package links

import (
	"github.com/gomlx/chains/serializers"
	"github.com/gomlx/chains/support/xslices"
	"github.com/gomlx/chains/tensors"
	"github.com/pkg/errors"
)

// Serialize runs the tree through a serializer — the same traversal both
// saves and loads, the serializer decides the direction (see the serializers
// package).
//
// Per node: every parameter's value, then every persistent value, then each
// child through ser.Sub(childName). Loading a value into an uninitialized
// parameter first allocates its storage from the restored value's shape. A
// node on a device keeps its placement: restored values are uploaded back.
//
// A tree holding anonymous function pipeline stages fails with
// ErrNotSerializable before touching the serializer.
func Serialize(n Node, ser serializers.Serializer) error {
	if err := n.checkSerializable(); err != nil {
		return err
	}
	l := n.base()
	for _, name := range xslices.SortedKeys(l.paramNames) {
		p := l.attrs[name].(*Parameter)
		if err := serializeParam(l, name, p, ser); err != nil {
			return err
		}
	}
	for _, name := range xslices.SortedKeys(l.persistentNames) {
		value, err := ser.Entry(name, l.attrs[name])
		if err != nil {
			return errors.WithMessagef(err, "serializing persistent value %q", name)
		}
		if value == nil {
			continue
		}
		if t, ok := value.(*tensors.Tensor); ok && l.backend != nil {
			if err := t.ToDevice(l.backend, l.device); err != nil {
				return errors.WithMessagef(err, "moving restored persistent value %q to the link's device", name)
			}
		}
		l.attrs[name] = value
	}
	for child := range n.Children() {
		if err := Serialize(child, ser.Sub(child.Name())); err != nil {
			return errors.WithMessagef(err, "child link %q", child.Name())
		}
	}
	return nil
}

func serializeParam(l *Link, name string, p *Parameter, ser serializers.Serializer) error {
	var current any
	if p.value != nil {
		current = p.value
	}
	value, err := ser.Entry(name, current)
	if err != nil {
		return errors.WithMessagef(err, "serializing parameter %q", name)
	}
	if value == nil {
		return nil
	}
	restored, ok := value.(*tensors.Tensor)
	if !ok {
		return errors.WithMessagef(ErrInvalidType,
			"serializer returned a %T for parameter %q, expected a *tensors.Tensor", value, name)
	}
	if restored == p.value {
		// Saving direction: the serializer handed the value back.
		return nil
	}
	if p.value == nil {
		// Deferred allocation: the restored value defines the shape.
		if err := p.Initialize(restored.Shape()); err != nil {
			return err
		}
		if l.backend != nil {
			if err := p.toDevice(l.backend, l.device); err != nil {
				return errors.WithMessagef(err, "moving restored parameter %q to the link's device", name)
			}
		}
	}
	if err := p.value.CopyFrom(restored); err != nil {
		return errors.WithMessagef(err, "restoring parameter %q", name)
	}
	return nil
}
