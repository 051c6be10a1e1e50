// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package links

import (
	"github.com/gomlx/chains/backends"
	"github.com/gomlx/chains/support/xslices"
	"github.com/gomlx/chains/tensors"
	"github.com/pkg/errors"
)

// ToHost moves every parameter (values and gradients) and persistent tensor
// in the tree to host memory. Nodes already on the host are skipped; the
// recursion always visits all children, so a mixed tree ends up uniformly on
// the host.
//
// Transfers are not atomic: on error the tree may be left in a mixed state.
func ToHost(n Node) error {
	l := n.base()
	if l.backend != nil {
		if err := moveOwn(n, func(t *tensors.Tensor) error { return t.ToHost() }); err != nil {
			return err
		}
		// Own device state updates only after every transfer succeeded.
		l.backend, l.device = nil, 0
	}
	for child := range n.Children() {
		if err := ToHost(child); err != nil {
			return err
		}
	}
	return nil
}

// ToDevice moves every parameter (values and gradients) and persistent
// tensor in the tree to the given backend device. A nil backend uses
// backends.New(), so the error reports the missing accelerator support when
// nothing is registered (test with errors.Is(err, backends.ErrNoAccelerator)).
//
// A device of backends.CurrentDevice resolves against the backend's device
// scope; the scope for the resolved device is held for the duration of the
// whole transfer. Nodes already on the target device are skipped; the
// recursion always visits all children.
//
// Transfers are not atomic: on error the tree may be left in a mixed state.
func ToDevice(n Node, backend backends.Backend, device backends.DeviceNum) error {
	if backend == nil {
		var err error
		backend, err = backends.New()
		if err != nil {
			return errors.WithMessage(err, "links.ToDevice needs an accelerator backend")
		}
	}
	release, err := backend.ScopeDevice(device)
	if err != nil {
		return err
	}
	defer release()
	return toDeviceRecursive(n, backend, backend.CurrentDevice())
}

func toDeviceRecursive(n Node, backend backends.Backend, device backends.DeviceNum) error {
	l := n.base()
	if l.backend != backend || l.device != device {
		if err := moveOwn(n, func(t *tensors.Tensor) error { return t.ToDevice(backend, device) }); err != nil {
			return err
		}
		l.backend, l.device = backend, device
	}
	for child := range n.Children() {
		if err := toDeviceRecursive(child, backend, device); err != nil {
			return err
		}
	}
	return nil
}

// moveOwn applies a transfer to the node's own parameters and persistent
// tensors, children excluded.
func moveOwn(n Node, transfer func(*tensors.Tensor) error) error {
	l := n.base()
	for _, name := range xslices.SortedKeys(l.paramNames) {
		p := l.attrs[name].(*Parameter)
		if p.value != nil {
			if err := transfer(p.value); err != nil {
				return errors.WithMessagef(err, "moving parameter %q", name)
			}
		}
		if p.grad != nil {
			if err := transfer(p.grad); err != nil {
				return errors.WithMessagef(err, "moving gradient of parameter %q", name)
			}
		}
	}
	for _, name := range xslices.SortedKeys(l.persistentNames) {
		if t, ok := l.attrs[name].(*tensors.Tensor); ok {
			if err := transfer(t); err != nil {
				return errors.WithMessagef(err, "moving persistent value %q", name)
			}
		}
	}
	return nil
}
