// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package links

import (
	"iter"

	"github.com/gomlx/chains/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Chain is a link that composes child links by name. Inside an
// initialization scope, assigning a Node attribute registers it as a child;
// the attribute name becomes the child's name and path segment.
//
// Child iteration order is unspecified (name-set order); operations that
// care about order should use a ChainList or Sequential.
//
// The zero value is ready to use.
type Chain struct {
	Link

	childNames sets.Set[string]
}

func (c *Chain) setupChain() {
	c.setup()
	if c.childNames == nil {
		c.childNames = sets.Make[string]()
	}
}

// SetAttr sets a named attribute. In addition to Link's parameter
// registration, inside an initialization scope a Node value is registered as
// a child link — failing with ErrAttributeExists if the name is taken.
func (c *Chain) SetAttr(name string, value any) error {
	c.setupChain()
	if c.withinInitScope {
		if child, ok := value.(Node); ok {
			return c.registerChild(name, child)
		}
	}
	c.childNames.Discard(name)
	return c.Link.SetAttr(name, value)
}

func (c *Chain) registerChild(name string, child Node) error {
	if c.HasAttr(name) {
		return errors.WithMessagef(ErrAttributeExists, "cannot register a new child link %q", name)
	}
	child.base().setName(name)
	c.childNames.Insert(name)
	c.attrs[name] = child
	return nil
}

// DelAttr removes an attribute, including a child link registration.
func (c *Chain) DelAttr(name string) {
	c.setupChain()
	c.childNames.Discard(name)
	c.Link.DelAttr(name)
}

// AddLink registers a child link under the given name.
//
// Deprecated: assign a Node attribute within InitScope instead.
func (c *Chain) AddLink(name string, child Node) error {
	klog.Warningf("links: Chain.AddLink is deprecated, assign a Node attribute within InitScope instead")
	c.setupChain()
	return c.registerChild(name, child)
}

// Child returns the child link registered under name.
func (c *Chain) Child(name string) (Node, bool) {
	if !c.childNames.Has(name) {
		return nil, false
	}
	return c.attrs[name].(Node), true
}

// Children implements Node.
func (c *Chain) Children() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for name := range c.childNames {
			if !yield(c.attrs[name].(Node)) {
				return
			}
		}
	}
}

// Clone implements Node: Link's copy semantics, plus children cloned
// recursively.
func (c *Chain) Clone() Node {
	c2 := &Chain{}
	c.CloneInto(c2)
	return c2
}

// CloneInto copies the registry and the cloned children into dst. See
// Link.CloneInto; wrapper types embedding Chain shadow Clone with it.
func (c *Chain) CloneInto(dst *Chain) {
	c.Link.CloneInto(&dst.Link)
	dst.childNames = c.childNames.Clone()
	for name := range c.childNames {
		child := c.attrs[name].(Node).Clone()
		child.base().setName(name)
		dst.attrs[name] = child
	}
}
