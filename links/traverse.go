// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package links

import (
	"iter"

	"github.com/gomlx/chains/support/xslices"
	"github.com/gomlx/chains/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Params iterates over every parameter in the tree, the node's own first
// (sorted by name), then each child subtree. With includeUninit false,
// parameters without storage are skipped.
func Params(n Node, includeUninit bool) iter.Seq[*Parameter] {
	return func(yield func(*Parameter) bool) {
		namedParamsHelper(n, "", includeUninit, func(_ string, p *Parameter) bool {
			return yield(p)
		})
	}
}

// NamedParams is like Params but also yields each parameter's "/"-joined
// path: "/<name>" for the node's own parameters, "/<child>/<name>" one level
// down, and so on.
func NamedParams(n Node, includeUninit bool) iter.Seq2[string, *Parameter] {
	return func(yield func(string, *Parameter) bool) {
		namedParamsHelper(n, "", includeUninit, yield)
	}
}

func namedParamsHelper(n Node, prefix string, includeUninit bool, yield func(string, *Parameter) bool) bool {
	l := n.base()
	for _, name := range xslices.SortedKeys(l.paramNames) {
		p := l.attrs[name].(*Parameter)
		if !includeUninit && !p.Initialized() {
			continue
		}
		if !yield(prefix+ScopeSeparator+name, p) {
			return false
		}
	}
	for child := range n.Children() {
		if !namedParamsHelper(child, prefix+ScopeSeparator+child.Name(), includeUninit, yield) {
			return false
		}
	}
	return true
}

// Links iterates over the tree's links in pre-order: the node itself (unless
// skipSelf), then each child subtree.
func Links(n Node, skipSelf bool) iter.Seq[Node] {
	return func(yield func(Node) bool) {
		namedLinksHelper(n, "", !skipSelf, func(_ string, link Node) bool {
			return yield(link)
		})
	}
}

// NamedLinks is like Links but also yields each link's "/"-joined path. The
// root's own path is "/".
func NamedLinks(n Node, skipSelf bool) iter.Seq2[string, Node] {
	return func(yield func(string, Node) bool) {
		namedLinksHelper(n, "", !skipSelf, yield)
	}
}

func namedLinksHelper(n Node, prefix string, includeSelf bool, yield func(string, Node) bool) bool {
	if includeSelf {
		path := prefix
		if path == "" {
			path = ScopeSeparator
		}
		if !yield(path, n) {
			return false
		}
	}
	for child := range n.Children() {
		if !namedLinksHelper(child, prefix+ScopeSeparator+child.Name(), true, yield) {
			return false
		}
	}
	return true
}

// CopyParams copies parameter values (and persistent tensor values) from a
// source tree into a destination tree of the same topology, pairing nodes by
// child name and parameters by name. Values are copied in place, across
// devices if needed; each tree keeps its own device placement, and storage
// adopted by a previously-uninitialized parameter follows the destination
// link's placement.
func CopyParams(dst, src Node) error {
	dl, sl := dst.base(), src.base()
	for _, name := range xslices.SortedKeys(dl.paramNames) {
		dp := dl.attrs[name].(*Parameter)
		sp, found := sl.Param(name)
		if !found {
			return errors.WithMessagef(ErrMissingAttribute, "source link has no parameter %q", name)
		}
		adopting := !dp.Initialized()
		if err := dp.CopyValueFrom(sp); err != nil {
			return errors.WithMessagef(err, "copying parameter %q", name)
		}
		if adopting && dp.Initialized() && dl.backend != nil {
			if err := dp.Value().ToDevice(dl.backend, dl.device); err != nil {
				return errors.WithMessagef(err, "placing adopted parameter %q", name)
			}
		}
	}
	for _, name := range xslices.SortedKeys(dl.persistentNames) {
		if !sl.persistentNames.Has(name) {
			continue
		}
		dstValue, srcValue := dl.attrs[name], sl.attrs[name]
		dstTensor, dstOk := dstValue.(*tensors.Tensor)
		srcTensor, srcOk := srcValue.(*tensors.Tensor)
		if dstOk && srcOk {
			if err := dstTensor.CopyFrom(srcTensor); err != nil {
				return errors.WithMessagef(err, "copying persistent value %q", name)
			}
			continue
		}
		dl.attrs[name] = srcValue
	}
	return forEachChildPair(dst, src, CopyParams)
}

// AddGrads accumulates gradients from a source tree into a destination tree
// of the same topology, element-wise per parameter. Parameters whose source
// gradient is nil are skipped; a nil destination gradient adopts a copy of
// the source's, placed on the destination link's device.
func AddGrads(dst, src Node) error {
	dl, sl := dst.base(), src.base()
	for _, name := range xslices.SortedKeys(dl.paramNames) {
		dp := dl.attrs[name].(*Parameter)
		sp, found := sl.Param(name)
		if !found {
			return errors.WithMessagef(ErrMissingAttribute, "source link has no parameter %q", name)
		}
		adopting := dp.Grad() == nil
		if err := dp.AccumulateGradFrom(sp); err != nil {
			return errors.WithMessagef(err, "accumulating gradient of parameter %q", name)
		}
		if adopting && dp.Grad() != nil && dl.backend != nil {
			if err := dp.Grad().ToDevice(dl.backend, dl.device); err != nil {
				return errors.WithMessagef(err, "placing adopted gradient of parameter %q", name)
			}
		}
	}
	return forEachChildPair(dst, src, AddGrads)
}

func forEachChildPair(dst, src Node, fn func(dst, src Node) error) error {
	srcChildren := make(map[string]Node)
	for child := range src.Children() {
		srcChildren[child.Name()] = child
	}
	for child := range dst.Children() {
		srcChild, found := srcChildren[child.Name()]
		if !found {
			return errors.WithMessagef(ErrMissingAttribute, "source has no child link %q", child.Name())
		}
		if err := fn(child, srcChild); err != nil {
			return errors.WithMessagef(err, "child link %q", child.Name())
		}
	}
	return nil
}

// ClearGrads releases every gradient in the tree. This is the cheap way to
// reset gradients between steps.
func ClearGrads(n Node) {
	for p := range Params(n, true) {
		p.ClearGrad()
	}
}

// ZeroGrads zero-fills every gradient in the tree, allocating missing ones.
//
// Deprecated: use ClearGrads, which releases instead of filling; gradient
// accumulation treats a missing gradient as zero anyway.
func ZeroGrads(n Node) error {
	klog.Warningf("links: ZeroGrads is deprecated, use ClearGrads instead")
	for p := range Params(n, true) {
		if err := p.ZeroGrad(); err != nil {
			return errors.WithMessagef(err, "zeroing gradient of parameter %q", p.Name())
		}
	}
	return nil
}

// EnableUpdate marks every parameter in the tree as updatable by optimizers.
func EnableUpdate(n Node) {
	for p := range Params(n, true) {
		if rule := p.UpdateRule(); rule != nil {
			rule.Enabled = true
		}
	}
}

// DisableUpdate marks every parameter in the tree as frozen.
func DisableUpdate(n Node) {
	for p := range Params(n, true) {
		if rule := p.UpdateRule(); rule != nil {
			rule.Enabled = false
		}
	}
}

// UpdateEnabled returns whether at least one parameter in the tree is marked
// updatable.
func UpdateEnabled(n Node) bool {
	for p := range Params(n, true) {
		if rule := p.UpdateRule(); rule != nil && rule.Enabled {
			return true
		}
	}
	return false
}

// NumParameters returns the total element count of the tree's initialized
// parameters.
func NumParameters(n Node) int {
	total := 0
	for p := range Params(n, false) {
		total += p.Value().Size()
	}
	return total
}

// Memory returns the bytes used by the tree's initialized parameter values
// (gradients not included). Pretty-print with humanize.Bytes.
func Memory(n Node) uintptr {
	var total uintptr
	for p := range Params(n, false) {
		total += p.Value().Memory()
	}
	return total
}
