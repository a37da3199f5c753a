// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the network-facing 3D ROI pooling layer.
package nn

import (
	"github.com/born-ml/roipool3d/internal/nn"
	"github.com/born-ml/roipool3d/tensor"
)

// Parameter represents a trainable parameter in a neural network.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// ROIPool3D is a 3D region-of-interest max pooling layer.
type ROIPool3D[B tensor.Backend] = nn.ROIPool3D[B]

// NewROIPool3D creates a new 3D ROI max pooling layer.
//
// Example:
//
//	backend := cpu.New()
//	pool := nn.NewROIPool3D(4, 4, 4, 1.0/8, 1.0/4, backend)
//	output, op := pool.Forward(features, regions)
func NewROIPool3D[B tensor.Backend](pooledD, pooledH, pooledW int,
	spatialScale, depthScale float64, backend B) *ROIPool3D[B] {
	return nn.NewROIPool3D(pooledD, pooledH, pooledW, spatialScale, depthScale, backend)
}
