// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package links

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Applier is the callable contract of a pipeline stage: it takes the
// previous stage's results and returns the next value, or an error that
// aborts the whole pipeline evaluation.
type Applier interface {
	Apply(args ...any) (any, error)
}

// ApplyFn is a bare function stage. A bare function is anonymous: it has no
// serializable identity, so a pipeline holding one cannot be serialized.
// Wrap it in a NamedFn when the pipeline must be saved.
type ApplyFn func(args ...any) (any, error)

// Apply implements Applier.
func (fn ApplyFn) Apply(args ...any) (any, error) { return fn(args...) }

// NamedFn is a function stage with a serializable identity: the name stands
// in for the function during type-name lookups and keeps the pipeline
// serializable (the function itself still is not saved — reconstruction is
// up to the caller).
type NamedFn struct {
	Name string
	Fn   ApplyFn
}

// Apply implements Applier.
func (nf NamedFn) Apply(args ...any) (any, error) { return nf.Fn(args...) }

// Sequential is an editable pipeline: an ordered list of stages, each either
// a link (a Node that implements Applier) or a plain callable. Link stages
// are also children of the underlying ChainList, index-synchronized, so all
// tree operations see them; callable stages are invisible to tree
// operations.
//
// Apply evaluates the stages in order; see Apply for the argument-passing
// convention.
//
// The zero value is an empty pipeline, ready to use.
type Sequential struct {
	ChainList

	layers       []any
	numAnonymous int
}

// NewSequential creates a pipeline from the given stages. It fails
// (ErrNotCallable / ErrInvalidType) on any stage that cannot be applied.
func NewSequential(stages ...any) (*Sequential, error) {
	s := &Sequential{}
	for _, stage := range stages {
		if err := s.Append(stage); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Append adds a stage at the end of the pipeline.
func (s *Sequential) Append(stage any) error {
	return s.Insert(len(s.layers), stage)
}

// Insert adds a stage at the given position (0 to Len inclusive). A Node
// stage also joins the child list at the matching position, so child indices
// stay aligned with stage order.
func (s *Sequential) Insert(index int, stage any) error {
	if index < 0 || index > len(s.layers) {
		return errors.Errorf("insert position %d out of range, pipeline has %d layers", index, len(s.layers))
	}
	stage, err := normalizeStage(stage)
	if err != nil {
		return err
	}
	if node, ok := stage.(Node); ok {
		if err := s.ChainList.Insert(s.childIndexBefore(index), node); err != nil {
			return err
		}
	}
	if stageAnonymous(stage) {
		s.numAnonymous++
	}
	s.layers = append(s.layers, nil)
	copy(s.layers[index+1:], s.layers[index:])
	s.layers[index] = stage
	return nil
}

// Set replaces the stage at the given position (negative counts from the
// end). Replacing a stage with an identical one is a no-op. An invalid
// replacement leaves the pipeline untouched.
func (s *Sequential) Set(index int, stage any) error {
	i, err := s.checkLayerIndex(index)
	if err != nil {
		return err
	}
	if stageEqual(s.layers[i], stage) {
		return nil
	}
	// Validate before touching the pipeline, so a bad replacement does not
	// destroy the stage it was meant to replace.
	stage, err = normalizeStage(stage)
	if err != nil {
		return err
	}
	if err := s.Delete(i); err != nil {
		return err
	}
	return s.Insert(i, stage)
}

// Delete removes the stage at the given position (negative counts from the
// end). A Node stage also leaves the child list.
func (s *Sequential) Delete(index int) error {
	i, err := s.checkLayerIndex(index)
	if err != nil {
		return err
	}
	stage := s.layers[i]
	if _, ok := stage.(Node); ok {
		if _, err := s.ChainList.Delete(s.childIndexBefore(i)); err != nil {
			return err
		}
	}
	if stageAnonymous(stage) {
		s.numAnonymous--
	}
	s.layers = append(s.layers[:i], s.layers[i+1:]...)
	return nil
}

// Pop removes and returns the stage at the given position (negative counts
// from the end, so Pop(-1) pops the last stage).
func (s *Sequential) Pop(index int) (any, error) {
	i, err := s.checkLayerIndex(index)
	if err != nil {
		return nil, err
	}
	stage := s.layers[i]
	if err := s.Delete(i); err != nil {
		return nil, err
	}
	return stage, nil
}

// Remove removes the first stage equal to the given one (same link, same
// function identity, or same NamedFn).
func (s *Sequential) Remove(stage any) error {
	i, err := s.Index(stage)
	if err != nil {
		return err
	}
	return s.Delete(i)
}

// RemoveByTypeName removes every stage whose type name matches (see
// CountByTypeName) and returns how many were removed.
func (s *Sequential) RemoveByTypeName(typeName string) (int, error) {
	removed := 0
	for i := len(s.layers) - 1; i >= 0; i-- {
		if stageTypeName(s.layers[i]) != typeName {
			continue
		}
		if err := s.Delete(i); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Extend appends every stage of the other pipeline. Link stages are shared,
// not copied.
func (s *Sequential) Extend(other *Sequential) error {
	for _, stage := range other.layers {
		if err := s.Append(stage); err != nil {
			return err
		}
	}
	return nil
}

// Concat returns a new pipeline with this one's stages followed by the
// others'. Link stages are shared, not copied.
func (s *Sequential) Concat(others ...*Sequential) (*Sequential, error) {
	out := &Sequential{}
	if err := out.Extend(s); err != nil {
		return nil, err
	}
	for _, other := range others {
		if err := out.Extend(other); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Repeat returns a new pipeline with the whole stage list repeated n times.
// Link stages are cloned and every cloned parameter's storage is freshly
// re-initialized, uniformly for all repetitions, so repetitions share no
// learned state. Callable stages are shared. n <= 0 gives an empty pipeline.
func (s *Sequential) Repeat(n int) (*Sequential, error) {
	out := &Sequential{}
	for rep := 0; rep < n; rep++ {
		for _, stage := range s.layers {
			node, ok := stage.(Node)
			if !ok {
				if err := out.Append(stage); err != nil {
					return nil, err
				}
				continue
			}
			clone := node.Clone()
			for p := range Params(clone, false) {
				if err := p.Initialize(); err != nil {
					return nil, errors.WithMessagef(err, "re-initializing parameter %q of a repeated layer", p.Name())
				}
			}
			if err := out.Append(clone); err != nil {
				return nil, errors.WithMessagef(err,
					"layer of type %T does not survive cloning as a pipeline stage, shadow Clone to preserve the Applier implementation",
					stage)
			}
		}
	}
	return out, nil
}

// Clear removes every stage.
func (s *Sequential) Clear() {
	s.clearChildren()
	s.layers = nil
	s.numAnonymous = 0
}

// Len returns the number of stages (links and callables).
func (s *Sequential) Len() int { return len(s.layers) }

// Layer returns the stage at the given position (negative counts from the
// end).
func (s *Sequential) Layer(index int) (any, error) {
	i, err := s.checkLayerIndex(index)
	if err != nil {
		return nil, err
	}
	return s.layers[i], nil
}

// Index returns the position of the first stage equal to the given one. The
// optional bounds restrict the search to positions [start, end); negative
// bounds count from the end and out-of-range bounds are clamped.
func (s *Sequential) Index(stage any, bounds ...int) (int, error) {
	start, end := 0, len(s.layers)
	if len(bounds) > 0 {
		start = clampLayerIndex(bounds[0], len(s.layers))
	}
	if len(bounds) > 1 {
		end = clampLayerIndex(bounds[1], len(s.layers))
	}
	for i := start; i < end; i++ {
		if stageEqual(s.layers[i], stage) {
			return i, nil
		}
	}
	return 0, errors.WithMessagef(ErrMissingAttribute, "stage %s not in the pipeline", stageTypeName(stage))
}

func clampLayerIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	return min(max(i, 0), n)
}

// Count returns how many stages are equal to the given one.
func (s *Sequential) Count(stage any) int {
	count := 0
	for _, layer := range s.layers {
		if stageEqual(layer, stage) {
			count++
		}
	}
	return count
}

// CountByTypeName returns how many stages have the given type name: the Go
// type name for links and callables, the NamedFn.Name for named functions.
func (s *Sequential) CountByTypeName(typeName string) int {
	count := 0
	for _, layer := range s.layers {
		if stageTypeName(layer) == typeName {
			count++
		}
	}
	return count
}

// Sort is not supported on a pipeline: stage order is meaning, not
// presentation. It always returns ErrUnsupported.
func (s *Sequential) Sort() error {
	return errors.WithMessagef(ErrUnsupported, "a Sequential pipeline cannot be sorted")
}

// Reverse is not supported on a pipeline. It always returns ErrUnsupported.
func (s *Sequential) Reverse() error {
	return errors.WithMessagef(ErrUnsupported, "a Sequential pipeline cannot be reversed")
}

// Apply evaluates the pipeline: the first stage receives args; each later
// stage receives the previous result — unpacked as the argument list if it
// is a []any, passed as a single argument otherwise. It returns the last
// stage's result. An empty pipeline returns its input unchanged (the single
// argument, or the argument slice when there is more than one).
func (s *Sequential) Apply(args ...any) (any, error) {
	if len(s.layers) == 0 {
		if len(args) == 1 {
			return args[0], nil
		}
		return args, nil
	}
	cur := args
	var out any
	for i, stage := range s.layers {
		var err error
		out, err = stage.(Applier).Apply(cur...)
		if err != nil {
			return nil, errors.WithMessagef(err, "applying pipeline layer #%d (%s)", i, stageTypeName(stage))
		}
		if tuple, ok := out.([]any); ok {
			cur = tuple
		} else {
			cur = []any{out}
		}
	}
	return out, nil
}

// Clone implements Node. Link stages are cloned (keeping their learned
// values aliased, per the usual Clone semantics), callable stages are
// shared.
//
// It panics if a link stage's clone degrades to a type that no longer
// implements Applier; such links must shadow Clone.
func (s *Sequential) Clone() Node {
	s2 := &Sequential{}
	s.Link.CloneInto(&s2.Link)
	// Children and layer bookkeeping are rebuilt through Append.
	for _, stage := range s.layers {
		toAppend := stage
		if node, ok := stage.(Node); ok {
			toAppend = node.Clone()
		}
		if err := s2.Append(toAppend); err != nil {
			exceptions.Panicf("links: Sequential.Clone: layer of type %T does not survive cloning, shadow Clone on it: %+v",
				stage, err)
		}
	}
	return s2
}

func (s *Sequential) checkSerializable() error {
	if s.numAnonymous > 0 {
		return errors.WithMessagef(ErrNotSerializable,
			"pipeline holds %d anonymous function layer(s), wrap them in a NamedFn to make the pipeline serializable",
			s.numAnonymous)
	}
	return nil
}

// String lists the stages, one per line.
func (s *Sequential) String() string {
	var b strings.Builder
	b.WriteString("Sequential(\n")
	for i, stage := range s.layers {
		fmt.Fprintf(&b, "  (%d): %s\n", i, stageTypeName(stage))
	}
	b.WriteString(")")
	return b.String()
}

// childIndexBefore returns how many Node stages sit before the given layer
// position — the position such a stage takes in the child list.
func (s *Sequential) childIndexBefore(index int) int {
	count := 0
	for _, layer := range s.layers[:index] {
		if _, ok := layer.(Node); ok {
			count++
		}
	}
	return count
}

func (s *Sequential) checkLayerIndex(index int) (int, error) {
	i := index
	if i < 0 {
		i += len(s.layers)
	}
	if i < 0 || i >= len(s.layers) {
		return 0, errors.Errorf("position %d out of range, pipeline has %d layers", index, len(s.layers))
	}
	return i, nil
}

// normalizeStage validates a stage and converts raw functions to ApplyFn.
func normalizeStage(stage any) (any, error) {
	switch v := stage.(type) {
	case nil:
		return nil, errors.WithMessagef(ErrInvalidType, "a pipeline stage cannot be nil")
	case func(args ...any) (any, error):
		return ApplyFn(v), nil
	case ApplyFn:
		if v == nil {
			return nil, errors.WithMessagef(ErrInvalidType, "a pipeline stage cannot be a nil function")
		}
		return v, nil
	case NamedFn:
		if v.Fn == nil {
			return nil, errors.WithMessagef(ErrInvalidType, "NamedFn %q has a nil function", v.Name)
		}
		return v, nil
	case Node:
		if _, ok := v.(Applier); !ok {
			return nil, errors.WithMessagef(ErrNotCallable,
				"link layer of type %T does not implement Applier", stage)
		}
		return v, nil
	case Applier:
		return v, nil
	default:
		return nil, errors.WithMessagef(ErrNotCallable, "layer of type %T", stage)
	}
}

// stageAnonymous reports whether a stage is an anonymous function (bare
// ApplyFn), which blocks serialization.
func stageAnonymous(stage any) bool {
	_, ok := stage.(ApplyFn)
	return ok
}

// stageTypeName names a stage: NamedFn.Name for named functions, the
// (pointer-stripped) Go type name otherwise.
func stageTypeName(stage any) string {
	if nf, ok := stage.(NamedFn); ok {
		return nf.Name
	}
	t := reflect.TypeOf(stage)
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}

// stageEqual compares stages: links and Applier values by identity,
// functions by function identity, NamedFn by name and function identity.
func stageEqual(a, b any) bool {
	if fnB, ok := b.(func(args ...any) (any, error)); ok {
		b = ApplyFn(fnB)
	}
	fnA, okA := a.(ApplyFn)
	fnB, okB := b.(ApplyFn)
	if okA || okB {
		if !okA || !okB {
			return false
		}
		return reflect.ValueOf(fnA).Pointer() == reflect.ValueOf(fnB).Pointer()
	}
	nfA, okA := a.(NamedFn)
	nfB, okB := b.(NamedFn)
	if okA || okB {
		if !okA || !okB {
			return false
		}
		return nfA.Name == nfB.Name &&
			reflect.ValueOf(nfA.Fn).Pointer() == reflect.ValueOf(nfB.Fn).Pointer()
	}
	return a == b
}
