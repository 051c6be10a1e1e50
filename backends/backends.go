// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the interface to an accelerator backend: an opaque
// device memory manager that can hold array buffers outside the host heap.
//
// The links package only ever talks to a backend through this interface, to
// move parameter storage between the host and an accelerator device. Backend
// implementations register themselves with Register, usually from an init()
// function, so importing a backend package for its side effects is enough:
//
//	import _ "github.com/gomlx/chains/backends/simple"
//
// New creates the backend selected by the CHAINS_BACKEND environment variable,
// or the first registered one.
package backends

import (
	"os"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// DeviceNum is the ordinal of a device managed by a Backend.
type DeviceNum int

// CurrentDevice selects whatever device the backend's device scope currently
// points to (see Backend.ScopeDevice).
const CurrentDevice = DeviceNum(-1)

// Buffer is an opaque handle to an array held in a backend's device memory.
type Buffer any

// Backend is the device memory interface used for parameter placement.
//
// Implementations are not required to be safe for concurrent use; callers are
// single-threaded by contract.
type Backend interface {
	// Name returns the short name of the backend, the same it was registered with.
	Name() string

	// Description of the backend.
	Description() string

	// NumDevices returns the number of devices available.
	NumDevices() DeviceNum

	// FromHost uploads the given bytes to the device, returning an opaque buffer
	// handle. A device of CurrentDevice resolves against the device scope.
	FromHost(data []byte, device DeviceNum) (Buffer, error)

	// ToHost downloads a buffer's contents back to host memory. The buffer
	// remains valid.
	ToHost(buffer Buffer) ([]byte, error)

	// Free releases a device buffer. Freeing an already-freed buffer is a no-op.
	Free(buffer Buffer)

	// BufferDevice returns the device that holds the given buffer.
	BufferDevice(buffer Buffer) DeviceNum

	// ScopeDevice makes device the current one and returns a function that
	// restores the previous current device. Scopes nest.
	ScopeDevice(device DeviceNum) (release func(), err error)

	// CurrentDevice returns the device targeted by the innermost open scope,
	// or the default device (0) when no scope is open.
	CurrentDevice() DeviceNum

	// Finalize releases all resources held by the backend. The backend is
	// unusable afterward.
	Finalize()
}

// Constructor builds a backend from a backend-specific configuration string
// (may be empty, for defaults).
type Constructor func(config string) (Backend, error)

// ErrNoAccelerator is returned by New when no backend has been registered or
// the requested one is unknown.
var ErrNoAccelerator = errors.New("no accelerator backend available")

// ConfigEnvVar is the environment variable that overrides the default backend
// configuration for New. Its value follows the same "name" or "name:config"
// format as NewWithConfig.
const ConfigEnvVar = "CHAINS_BACKEND"

var (
	registries    = make(map[string]Constructor)
	registryOrder []string

	// DefaultConfig is used by New when ConfigEnvVar is not set. Empty selects
	// the first registered backend.
	DefaultConfig string
)

// Register a backend constructor under the given name. Registering a name
// twice overwrites the previous constructor.
func Register(name string, constructor Constructor) {
	if _, found := registries[name]; !found {
		registryOrder = append(registryOrder, name)
	}
	registries[name] = constructor
}

// List returns the names of the registered backends, in registration order.
func List() []string {
	names := make([]string, len(registryOrder))
	copy(names, registryOrder)
	return names
}

// New creates the default backend: the one configured by the CHAINS_BACKEND
// environment variable, else DefaultConfig, else the first registered backend.
//
// It returns an error wrapping ErrNoAccelerator if none is available.
func New() (Backend, error) {
	config := os.Getenv(ConfigEnvVar)
	if config == "" {
		config = DefaultConfig
	}
	if config == "" {
		if len(registryOrder) == 0 {
			return nil, errors.WithMessage(ErrNoAccelerator,
				"no backend registered; import a backend package (e.g. backends/simple) for its side effects")
		}
		config = registryOrder[0]
	}
	return NewWithConfig(config)
}

// MustNew is like New but panics on error.
func MustNew() Backend {
	backend, err := New()
	if err != nil {
		panic(err)
	}
	return backend
}

// NewWithConfig creates a backend from a configuration string in the format
// "name" or "name:backend_specific_config".
func NewWithConfig(config string) (Backend, error) {
	name := config
	var backendConfig string
	if idx := strings.Index(config, ":"); idx >= 0 {
		name = config[:idx]
		backendConfig = config[idx+1:]
	}
	constructor, found := registries[name]
	if !found {
		return nil, errors.WithMessagef(ErrNoAccelerator,
			"unknown backend %q, registered backends are %v", name, List())
	}
	backend, err := constructor(backendConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "creating backend %q", name)
	}
	return backend, nil
}

// MustNewWithConfig is like NewWithConfig but panics on error.
func MustNewWithConfig(config string) Backend {
	backend, err := NewWithConfig(config)
	if err != nil {
		exceptions.Panicf("backends.MustNewWithConfig(%q): %+v", config, err)
	}
	return backend
}
