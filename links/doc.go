// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package links implements the composition layer of a model: building blocks
// (links) that hold named parameters and persistent state, composed into
// trees by name (Chain), by position (ChainList) or as an editable pipeline
// (Sequential).
//
// A link registers its state inside an initialization scope:
//
//	type Linear struct {
//		links.Link
//		W, B *links.Parameter
//	}
//
//	func NewLinear(inputDim, outputDim int) *Linear {
//		l := &Linear{
//			W: links.NewParameter(shapes.Make(dtypes.Float32, outputDim, inputDim)),
//			B: links.NewParameter(shapes.Make(dtypes.Float32, outputDim)),
//		}
//		l.InitScope(func() {
//			must.M(l.SetAttr("W", l.W))
//			must.M(l.SetAttr("B", l.B))
//		})
//		return l
//	}
//
// Whole-tree operations — parameter enumeration, value copy, gradient
// bookkeeping, device transfer, serialization — are package-level functions
// (Params, NamedParams, CopyParams, AddGrads, ClearGrads, ToDevice, ToHost,
// Serialize, ...) over the Node interface, which every type embedding Link,
// Chain, ChainList or Sequential satisfies.
//
// Paths: every attached link has a name, its path segment under its parent;
// child links of a ChainList are named by their decimal index. Traversals
// report "/"-joined paths, own entries before children's.
//
// All types are single-threaded: callers must not mutate a tree concurrently.
package links
