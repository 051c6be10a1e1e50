// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package serializers

import (
	"encoding/json"
	"iter"

	"github.com/gomlx/chains/support/xslices"
	"github.com/gomlx/chains/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Store is a flat map from "/"-joined paths to saved values. Tensors are
// snapshotted at save time; everything else must round-trip through JSON
// (numbers come back as float64, the usual encoding/json behavior).
type Store struct {
	entries map[string]any
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]any)}
}

// Len returns the number of stored entries.
func (s *Store) Len() int { return len(s.entries) }

// Get returns the value stored under the given path.
func (s *Store) Get(path string) (any, bool) {
	v, found := s.entries[path]
	return v, found
}

// Entries iterates over the stored (path, value) pairs sorted by path.
func (s *Store) Entries() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, path := range xslices.SortedKeys(s.entries) {
			if !yield(path, s.entries[path]) {
				return
			}
		}
	}
}

// storedEntry is the JSON representation of one store entry: either a tensor
// or a plain JSON value.
type storedEntry struct {
	Tensor *storedTensor `json:"tensor,omitempty"`
	Value  any           `json:"value,omitempty"`
}

type storedTensor struct {
	DType      string `json:"dtype"`
	Dimensions []int  `json:"dims,omitempty"`
	Data       []byte `json:"data"` // base64 of the flat little-endian data.
}

// MarshalJSON implements json.Marshaler.
func (s *Store) MarshalJSON() ([]byte, error) {
	encoded := make(map[string]storedEntry, len(s.entries))
	for path, value := range s.entries {
		if t, ok := value.(*tensors.Tensor); ok {
			data, err := tensors.CopyFlatBytes(t)
			if err != nil {
				return nil, errors.WithMessagef(err, "encoding entry %q", path)
			}
			encoded[path] = storedEntry{Tensor: &storedTensor{
				DType:      t.DType().String(),
				Dimensions: t.Shape().Dimensions,
				Data:       data,
			}}
			continue
		}
		encoded[path] = storedEntry{Value: value}
	}
	return json.Marshal(encoded)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Store) UnmarshalJSON(data []byte) error {
	var encoded map[string]storedEntry
	if err := json.Unmarshal(data, &encoded); err != nil {
		return errors.Wrap(err, "parsing serialized store")
	}
	s.entries = make(map[string]any, len(encoded))
	for path, entry := range encoded {
		if entry.Tensor == nil {
			s.entries[path] = entry.Value
			continue
		}
		dtype, err := dtypes.DTypeString(entry.Tensor.DType)
		if err != nil {
			return errors.Wrapf(err, "entry %q has unknown dtype %q", path, entry.Tensor.DType)
		}
		t, err := tensors.FromFlatBytes(dtype, entry.Tensor.Dimensions, entry.Tensor.Data)
		if err != nil {
			return errors.WithMessagef(err, "entry %q", path)
		}
		s.entries[path] = t
	}
	return nil
}

// Recorder is a saving Serializer: each Entry snapshots the given value into
// the store and returns it unchanged.
type Recorder struct {
	store *Store
	path  string
}

// NewRecorder returns a Recorder writing into the given store.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// Entry implements Serializer.
func (r *Recorder) Entry(name string, value any) (any, error) {
	path := JoinPath(r.path, name)
	if t, ok := value.(*tensors.Tensor); ok {
		r.store.entries[path] = t.Clone()
		return value, nil
	}
	r.store.entries[path] = value
	return value, nil
}

// Sub implements Serializer.
func (r *Recorder) Sub(key string) Serializer {
	return &Recorder{store: r.store, path: JoinPath(r.path, key)}
}

// Restorer is a loading Serializer: each Entry looks up the stored value and
// returns it, ignoring the current one. By default a missing entry is an
// error (wrapping ErrEntryMissing); see NonStrict.
type Restorer struct {
	store  *Store
	path   string
	strict bool
}

// NewRestorer returns a strict Restorer reading from the given store.
func NewRestorer(store *Store) *Restorer {
	return &Restorer{store: store, strict: true}
}

// NonStrict makes missing entries keep the current value instead of failing.
// It returns the Restorer for chaining.
func (r *Restorer) NonStrict() *Restorer {
	r.strict = false
	return r
}

// Entry implements Serializer.
func (r *Restorer) Entry(name string, value any) (any, error) {
	path := JoinPath(r.path, name)
	stored, found := r.store.entries[path]
	if !found {
		if r.strict {
			return nil, errors.WithMessagef(ErrEntryMissing, "path %q", path)
		}
		return value, nil
	}
	if t, ok := stored.(*tensors.Tensor); ok {
		// Hand out a copy so the caller cannot mutate the store.
		return t.Clone(), nil
	}
	return stored, nil
}

// Sub implements Serializer.
func (r *Restorer) Sub(key string) Serializer {
	return &Restorer{store: r.store, path: JoinPath(r.path, key), strict: r.strict}
}
