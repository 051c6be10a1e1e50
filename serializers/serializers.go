// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package serializers defines the Serializer collaborator used to save and
// restore a tree of links, plus in-memory Recorder/Restorer implementations
// backed by a flat Store keyed by "/"-joined paths.
//
// The same traversal drives both directions: for each leaf entry the
// serializer is handed the current value and returns the value to keep. A
// saving serializer records the value and returns it unchanged; a loading
// serializer ignores the current value and returns the stored one.
package serializers

import (
	"strings"

	"github.com/pkg/errors"
)

// PathSeparator joins nested serializer keys into flat store paths.
const PathSeparator = "/"

// Serializer is the hierarchical save/load collaborator.
//
// Implementations must support both directions through the single Entry
// round-trip, see the package documentation.
type Serializer interface {
	// Entry processes one leaf value under the given name. It returns the
	// value to keep: the same value when saving, the restored value when
	// loading, or nil when there is nothing to restore.
	Entry(name string, value any) (any, error)

	// Sub returns a serializer scoped to the given child key.
	Sub(key string) Serializer
}

// ErrEntryMissing is returned (wrapped) by a strict Restorer when a requested
// entry is not in the store.
var ErrEntryMissing = errors.New("serialized entry missing")

// JoinPath appends a name to a "/"-terminated or empty prefix.
func JoinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + PathSeparator + name
}

// SplitPath splits a store path into its segments.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, PathSeparator)
}
