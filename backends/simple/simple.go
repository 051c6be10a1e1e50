// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simple implements a pure-Go backend that simulates device memory in
// host RAM. It has no hardware requirements and exists so that device
// placement can be exercised (and tested) anywhere.
//
// It registers itself under the name "simple". The configuration string, if
// given, is the number of simulated devices (default 1), e.g. "simple:2".
package simple

import (
	"strconv"

	"github.com/gomlx/chains/backends"
	"github.com/pkg/errors"
)

// BackendName used for registration.
const BackendName = "simple"

func init() {
	backends.Register(BackendName, func(config string) (backends.Backend, error) {
		return New(config)
	})
}

// buffer holds simulated device memory.
type buffer struct {
	data   []byte
	device backends.DeviceNum
	freed  bool
}

// Backend simulates an accelerator with one or more devices, all backed by
// host RAM.
type Backend struct {
	numDevices  backends.DeviceNum
	deviceStack []backends.DeviceNum
	finalized   bool
}

// New creates a simulated backend. config, if not empty, is the number of
// devices.
func New(config string) (*Backend, error) {
	numDevices := 1
	if config != "" {
		var err error
		numDevices, err = strconv.Atoi(config)
		if err != nil || numDevices < 1 {
			return nil, errors.Errorf("simple backend config must be a positive device count, got %q", config)
		}
	}
	return &Backend{numDevices: backends.DeviceNum(numDevices)}, nil
}

// Name implements backends.Backend.
func (b *Backend) Name() string { return BackendName }

// Description implements backends.Backend.
func (b *Backend) Description() string {
	return "Simulated accelerator backed by host RAM (pure Go)"
}

// NumDevices implements backends.Backend.
func (b *Backend) NumDevices() backends.DeviceNum { return b.numDevices }

func (b *Backend) resolveDevice(device backends.DeviceNum) (backends.DeviceNum, error) {
	if device == backends.CurrentDevice {
		device = b.CurrentDevice()
	}
	if device < 0 || device >= b.numDevices {
		return 0, errors.Errorf("device #%d out of range, backend %q has %d device(s)",
			device, BackendName, b.numDevices)
	}
	return device, nil
}

// FromHost implements backends.Backend. The data is copied, the caller keeps
// ownership of the input slice.
func (b *Backend) FromHost(data []byte, device backends.DeviceNum) (backends.Buffer, error) {
	if b.finalized {
		return nil, errors.Errorf("backend %q already finalized", BackendName)
	}
	device, err := b.resolveDevice(device)
	if err != nil {
		return nil, err
	}
	deviceData := make([]byte, len(data))
	copy(deviceData, data)
	return &buffer{data: deviceData, device: device}, nil
}

// ToHost implements backends.Backend. It returns a copy, the buffer remains
// valid.
func (b *Backend) ToHost(buf backends.Buffer) ([]byte, error) {
	deviceBuf, err := b.checkBuffer(buf)
	if err != nil {
		return nil, err
	}
	data := make([]byte, len(deviceBuf.data))
	copy(data, deviceBuf.data)
	return data, nil
}

// Free implements backends.Backend.
func (b *Backend) Free(buf backends.Buffer) {
	deviceBuf, ok := buf.(*buffer)
	if !ok || deviceBuf.freed {
		return
	}
	deviceBuf.data = nil
	deviceBuf.freed = true
}

// BufferDevice implements backends.Backend.
func (b *Backend) BufferDevice(buf backends.Buffer) backends.DeviceNum {
	deviceBuf, ok := buf.(*buffer)
	if !ok {
		return 0
	}
	return deviceBuf.device
}

// ScopeDevice implements backends.Backend. Scopes nest and must be released
// in LIFO order.
func (b *Backend) ScopeDevice(device backends.DeviceNum) (release func(), err error) {
	device, err = b.resolveDevice(device)
	if err != nil {
		return nil, err
	}
	b.deviceStack = append(b.deviceStack, device)
	released := false
	return func() {
		if released {
			return
		}
		released = true
		b.deviceStack = b.deviceStack[:len(b.deviceStack)-1]
	}, nil
}

// CurrentDevice implements backends.Backend.
func (b *Backend) CurrentDevice() backends.DeviceNum {
	if len(b.deviceStack) == 0 {
		return 0
	}
	return b.deviceStack[len(b.deviceStack)-1]
}

// Finalize implements backends.Backend.
func (b *Backend) Finalize() {
	b.finalized = true
	b.deviceStack = nil
}

func (b *Backend) checkBuffer(buf backends.Buffer) (*buffer, error) {
	deviceBuf, ok := buf.(*buffer)
	if !ok {
		return nil, errors.Errorf("buffer was not created by the %q backend", BackendName)
	}
	if deviceBuf.freed {
		return nil, errors.Errorf("buffer already freed")
	}
	return deviceBuf, nil
}
