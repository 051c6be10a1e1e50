// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package links

import (
	"iter"
	"strconv"

	"github.com/gomlx/chains/support/xslices"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// ChainList is a link that composes child links by position. Child names are
// always the decimal index of the child's current position: inserting or
// deleting renumbers every subsequent child, so paths stay consistent with
// positions.
//
// The zero value is ready to use.
type ChainList struct {
	Link

	children []Node
}

// SetAttr sets a named attribute. A ChainList's children are positional, so
// registering a child link as an attribute is rejected (ErrInvalidType) even
// inside an initialization scope; use Append. Parameters and plain values
// behave as on Link.
func (cl *ChainList) SetAttr(name string, value any) error {
	if cl.withinInitScope {
		if _, ok := value.(Node); ok {
			return errors.WithMessagef(ErrInvalidType,
				"cannot register a child link as attribute %q of a ChainList, use Append", name)
		}
	}
	return cl.Link.SetAttr(name, value)
}

// Append adds a child link at the end, naming it by its index. It panics on
// a nil child.
func (cl *ChainList) Append(child Node) {
	if child == nil {
		exceptions.Panicf("links: ChainList.Append called with a nil child")
	}
	child.base().setName(strconv.Itoa(len(cl.children)))
	cl.children = append(cl.children, child)
}

// AddLink is an alias of Append.
func (cl *ChainList) AddLink(child Node) {
	cl.Append(child)
}

// Insert adds a child link at the given position (0 to Len inclusive),
// renumbering subsequent children.
func (cl *ChainList) Insert(index int, child Node) error {
	if child == nil {
		return errors.WithMessagef(ErrInvalidType, "cannot insert a nil child link")
	}
	if index < 0 || index > len(cl.children) {
		return errors.Errorf("insert position %d out of range, list has %d children", index, len(cl.children))
	}
	cl.children = append(cl.children, nil)
	copy(cl.children[index+1:], cl.children[index:])
	cl.children[index] = child
	cl.renumberFrom(index)
	return nil
}

// Delete removes and returns the child at the given position (negative
// counts from the end), renumbering subsequent children. The removed child's
// name is reset.
func (cl *ChainList) Delete(index int) (Node, error) {
	i, err := cl.checkIndex(index)
	if err != nil {
		return nil, err
	}
	child := cl.children[i]
	cl.children = append(cl.children[:i], cl.children[i+1:]...)
	cl.renumberFrom(i)
	child.base().setName("")
	return child, nil
}

// At returns the child at the given position; negative counts from the end.
// It panics when out of range.
func (cl *ChainList) At(index int) Node {
	return xslices.At(cl.children, index)
}

// Len returns the number of children.
func (cl *ChainList) Len() int { return len(cl.children) }

// Children implements Node, yielding children in positional order.
func (cl *ChainList) Children() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for _, child := range cl.children {
			if !yield(child) {
				return
			}
		}
	}
}

// Clone implements Node: Link's copy semantics, plus children cloned
// recursively, keeping their positions.
func (cl *ChainList) Clone() Node {
	cl2 := &ChainList{}
	cl.CloneInto(cl2)
	return cl2
}

// CloneInto copies the registry and the cloned children into dst. See
// Link.CloneInto; wrapper types embedding ChainList shadow Clone with it.
func (cl *ChainList) CloneInto(dst *ChainList) {
	cl.Link.CloneInto(&dst.Link)
	if len(cl.children) == 0 {
		return
	}
	dst.children = make([]Node, len(cl.children))
	for i, child := range cl.children {
		c := child.Clone()
		c.base().setName(strconv.Itoa(i))
		dst.children[i] = c
	}
}

func (cl *ChainList) renumberFrom(index int) {
	for i := index; i < len(cl.children); i++ {
		cl.children[i].base().setName(strconv.Itoa(i))
	}
}

func (cl *ChainList) checkIndex(index int) (int, error) {
	i := index
	if i < 0 {
		i += len(cl.children)
	}
	if i < 0 || i >= len(cl.children) {
		return 0, errors.Errorf("position %d out of range, list has %d children", index, len(cl.children))
	}
	return i, nil
}

// clearChildren detaches and drops every child.
func (cl *ChainList) clearChildren() {
	for _, child := range cl.children {
		child.base().setName("")
	}
	cl.children = nil
}
