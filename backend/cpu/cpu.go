// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU backend for the 3D ROI pooling
// operators.
package cpu

import (
	internalcpu "github.com/born-ml/roipool3d/internal/backend/cpu"
	"github.com/born-ml/roipool3d/internal/parallel"
	"github.com/born-ml/roipool3d/tensor"
)

// Backend represents the CPU backend implementation.
//
// Both operators run as data-parallel maps over independent output (or
// gradient) planes, parallelized with a goroutine pool.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// ParallelConfig controls the backend's goroutine parallelism.
type ParallelConfig = parallel.Config

// DefaultParallelConfig returns the default parallelism for this machine.
func DefaultParallelConfig() ParallelConfig {
	return parallel.DefaultConfig()
}

// SequentialConfig disables goroutine parallelism.
func SequentialConfig() ParallelConfig {
	return parallel.Sequential()
}

// New creates a new CPU backend with default parallelism.
//
// Example:
//
//	backend := cpu.New()
//	output, argmax := backend.ROIPool3D(volume, rois, 4, 4, 4, 1.0/8, 1.0/4)
func New() *Backend {
	return internalcpu.New()
}

// NewWithConfig creates a CPU backend with an explicit parallelism config.
func NewWithConfig(cfg ParallelConfig) *Backend {
	return internalcpu.NewWithConfig(cfg)
}
