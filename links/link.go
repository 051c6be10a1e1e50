// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package links

import (
	"iter"
	"maps"

	"github.com/gomlx/chains/backends"
	"github.com/gomlx/chains/initializers"
	"github.com/gomlx/chains/shapes"
	"github.com/gomlx/chains/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ScopeSeparator joins link names into the "/"-separated paths reported by
// NamedParams and NamedLinks.
const ScopeSeparator = "/"

// Node is the interface of every building block in a composition tree: any
// type that embeds Link (or Chain, ChainList, Sequential) satisfies it.
//
// The package-level tree operations (Params, CopyParams, ToDevice, Serialize,
// ...) are all written against Node.
type Node interface {
	// Name returns the link's path segment under its parent, "" while
	// unattached.
	Name() string

	// Children returns the child links, in the order the concrete type
	// defines (registration-set order for Chain, positional for ChainList).
	Children() iter.Seq[Node]

	// Clone returns a registry-level copy: plain attributes shallow-copied,
	// parameters re-held with aliased storage and cleared gradients, child
	// links cloned recursively, name reset.
	//
	// Clone returns the embedded base type (*Chain for a type embedding
	// Chain, and so on); wrapper types that need to survive cloning with
	// their own type — e.g. to keep methods like Apply — must shadow Clone.
	Clone() Node

	// base gives the tree operations access to the registry. Being
	// unexported it also closes the interface: only types embedding Link
	// can satisfy Node.
	base() *Link

	checkSerializable() error
}

// Link is the base building block: a bag of named attributes with three
// tracked classifications — parameters, persistent values and (for the
// composite types) child links. Embed it (or Chain/ChainList/Sequential) to
// define a new building block.
//
// The zero value is ready to use.
type Link struct {
	name string

	// attrs holds every named attribute; paramNames and persistentNames
	// classify a subset of them and are always disjoint.
	attrs           map[string]any
	paramNames      sets.Set[string]
	persistentNames sets.Set[string]

	withinInitScope bool

	// Device placement of the link's own storage: backend == nil means host.
	backend backends.Backend
	device  backends.DeviceNum
}

func (l *Link) setup() {
	if l.attrs == nil {
		l.attrs = make(map[string]any)
		l.paramNames = sets.Make[string]()
		l.persistentNames = sets.Make[string]()
	}
}

// Name returns the link's path segment under its parent, "" while unattached.
func (l *Link) Name() string { return l.name }

func (l *Link) setName(name string) { l.name = name }

func (l *Link) base() *Link { return l }

func (l *Link) checkSerializable() error { return nil }

// Children implements Node. A plain Link has no children.
func (l *Link) Children() iter.Seq[Node] {
	return func(yield func(Node) bool) {}
}

// InitScope runs fn with the initialization scope open: attribute assignments
// made inside it register parameters (and, on composite types, child links).
// Scopes re-enter cleanly and the previous state is restored on every exit
// path, including panics.
func (l *Link) InitScope(fn func()) {
	l.setup()
	prev := l.withinInitScope
	l.withinInitScope = true
	defer func() { l.withinInitScope = prev }()
	fn()
}

// WithinInitScope returns whether an initialization scope is currently open.
func (l *Link) WithinInitScope() bool { return l.withinInitScope }

// SetAttr sets a named attribute. Inside an initialization scope a
// *Parameter value is registered: its name is overwritten with the attribute
// name, it joins the parameter set, and its storage follows the link's
// current device placement. Outside the scope (or for any other value type)
// this is a plain write.
//
// A plain write to a name previously tracked as parameter or persistent
// reclassifies it as a plain attribute.
func (l *Link) SetAttr(name string, value any) error {
	l.setup()
	if l.withinInitScope {
		if p, ok := value.(*Parameter); ok {
			return l.registerParam(name, p)
		}
	}
	l.paramNames.Discard(name)
	l.persistentNames.Discard(name)
	l.attrs[name] = value
	return nil
}

func (l *Link) registerParam(name string, p *Parameter) error {
	p.name = name
	l.persistentNames.Discard(name)
	l.paramNames.Insert(name)
	l.attrs[name] = p
	if l.backend != nil {
		if err := p.toDevice(l.backend, l.device); err != nil {
			return errors.WithMessagef(err, "moving newly registered parameter %q to the link's device", name)
		}
	}
	return nil
}

// DelAttr removes an attribute and its classification, whichever it is.
// Deleting a name that does not exist is a no-op.
func (l *Link) DelAttr(name string) {
	l.setup()
	delete(l.attrs, name)
	l.paramNames.Discard(name)
	l.persistentNames.Discard(name)
}

// Attr returns the attribute registered under name.
func (l *Link) Attr(name string) (any, bool) {
	value, found := l.attrs[name]
	return value, found
}

// Param returns the parameter registered under name.
func (l *Link) Param(name string) (*Parameter, bool) {
	if !l.paramNames.Has(name) {
		return nil, false
	}
	return l.attrs[name].(*Parameter), true
}

// HasAttr returns whether an attribute exists under name.
func (l *Link) HasAttr(name string) bool {
	_, found := l.attrs[name]
	return found
}

// AddParam creates, registers and returns a parameter in one call.
//
// Deprecated: assign a *Parameter attribute within InitScope instead. Unlike
// SetAttr it fails if the name is already taken. With a valid shape the
// storage is allocated eagerly; with shapes.Invalid() it stays lazy.
func (l *Link) AddParam(name string, shape shapes.Shape, init ...initializers.Initializer) (*Parameter, error) {
	klog.Warningf("links: Link.AddParam is deprecated, assign a *Parameter attribute within InitScope instead")
	l.setup()
	if l.HasAttr(name) {
		return nil, errors.WithMessagef(ErrAttributeExists, "cannot add parameter %q", name)
	}
	p := NewParameter(shape, init...)
	if shape.Ok() {
		if err := p.Initialize(); err != nil {
			return nil, err
		}
	}
	if err := l.registerParam(name, p); err != nil {
		return nil, err
	}
	return p, nil
}

// AddPersistent registers a value that serialization must include but that is
// not a parameter (counters, running statistics, ...). It fails if the name
// is already taken.
func (l *Link) AddPersistent(name string, value any) error {
	l.setup()
	if l.HasAttr(name) {
		return errors.WithMessagef(ErrAttributeExists, "cannot add persistent value %q", name)
	}
	l.attrs[name] = value
	l.persistentNames.Insert(name)
	return nil
}

// RegisterPersistent reclassifies an existing attribute as persistent. A
// parameter so reclassified stops being a parameter.
func (l *Link) RegisterPersistent(name string) error {
	l.setup()
	if !l.HasAttr(name) {
		return errors.WithMessagef(ErrMissingAttribute, "cannot mark %q persistent", name)
	}
	l.paramNames.Discard(name)
	l.persistentNames.Insert(name)
	return nil
}

// Clone implements Node. See Node.Clone for the copy semantics.
func (l *Link) Clone() Node {
	l2 := &Link{}
	l.CloneInto(l2)
	return l2
}

// CloneInto copies the registry into dst: attributes shallow-copied,
// parameters re-held with aliased storage and cleared gradients, name reset,
// device placement preserved. It is the building block for wrapper types
// shadowing Clone:
//
//	func (l *Linear) Clone() links.Node {
//		c := &Linear{}
//		l.Link.CloneInto(&c.Link)
//		c.W, _ = c.Param("W")
//		c.B, _ = c.Param("B")
//		return c
//	}
func (l *Link) CloneInto(dst *Link) {
	dst.name = ""
	dst.withinInitScope = false
	dst.backend, dst.device = l.backend, l.device
	dst.attrs = maps.Clone(l.attrs)
	dst.paramNames = l.paramNames.Clone()
	dst.persistentNames = l.persistentNames.Clone()
	dst.setup()
	for name := range l.paramNames {
		dst.attrs[name] = l.attrs[name].(*Parameter).shareClone()
	}
}
