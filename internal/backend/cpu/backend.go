// Package cpu implements the pure Go CPU backend for 3D region-of-interest
// max pooling.
package cpu

import (
	"github.com/born-ml/roipool3d/internal/parallel"
	"github.com/born-ml/roipool3d/internal/tensor"
)

// CPUBackend implements the pooling operators on CPU with optional
// goroutine parallelism over independent output planes.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

// New creates a new CPU backend with default parallelism.
func New() *CPUBackend {
	return NewWithConfig(parallel.DefaultConfig())
}

// NewWithConfig creates a CPU backend with an explicit parallelism config.
// Use parallel.Sequential() for single-threaded execution.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		par:    cfg,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}
