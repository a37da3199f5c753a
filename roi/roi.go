// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package roi provides the public region-of-interest record type.
package roi

import (
	internalroi "github.com/born-ml/roipool3d/internal/roi"
	"github.com/born-ml/roipool3d/tensor"
)

// Region is an axis-aligned sub-volume of a feature map in original
// (unscaled) coordinates, tied to one batch element.
type Region = internalroi.Region

// Fields is the number of values per packed region row.
const Fields = internalroi.Fields

// Pack copies regions into the flat [R, 7] tensor layout the kernels
// consume.
func Pack(regions []Region, dtype tensor.DataType, device tensor.Device) (*tensor.RawTensor, error) {
	return internalroi.Pack(regions, dtype, device)
}

// Validate checks that every region references a valid batch slot.
func Validate(regions []Region, batchSize int) error {
	return internalroi.Validate(regions, batchSize)
}

// ValidatePooledShape checks that every pooled extent is strictly positive.
func ValidatePooledShape(pooledD, pooledH, pooledW int) error {
	return internalroi.ValidatePooledShape(pooledD, pooledH, pooledW)
}
