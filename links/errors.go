// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package links

import "github.com/pkg/errors"

// Sentinel errors returned (wrapped, with context) by the operations in this
// package. Test with errors.Is.
var (
	// ErrAttributeExists signals a registration conflict: a parameter, child
	// link or persistent value under a name already taken.
	ErrAttributeExists = errors.New("attribute already exists")

	// ErrMissingAttribute signals an access to an attribute, parameter or
	// child link that does not exist.
	ErrMissingAttribute = errors.New("attribute does not exist")

	// ErrInvalidType signals a value of the wrong kind for the operation,
	// e.g. registering a child link as a plain attribute of a ChainList.
	ErrInvalidType = errors.New("invalid type for operation")

	// ErrNotCallable signals a pipeline stage that cannot be applied.
	ErrNotCallable = errors.New("layer is not callable")

	// ErrUnsupported signals an operation a type deliberately does not
	// support, like sorting a pipeline.
	ErrUnsupported = errors.New("operation not supported")

	// ErrNotSerializable signals a tree that cannot be serialized, e.g. a
	// pipeline holding anonymous function layers.
	ErrNotSerializable = errors.New("not serializable")
)
