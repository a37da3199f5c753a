// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff exposes the differentiable-operation contract a graph
// executor uses to route gradients through the pooling operator.
package autodiff

import (
	"github.com/born-ml/roipool3d/internal/autodiff/ops"
	"github.com/born-ml/roipool3d/tensor"
)

// Operation represents a differentiable operation in a computation graph.
type Operation = ops.Operation

// ROIPool3DOp records a 3D ROI max pooling operation: its inputs, output,
// and the selection index needed to route gradients.
type ROIPool3DOp = ops.ROIPool3DOp

// NewROIPool3DOp creates a new ROIPool3D operation from a completed
// forward pass.
func NewROIPool3DOp(input, rois, output *tensor.RawTensor, argmax []int,
	pooledD, pooledH, pooledW int, spatialScale, depthScale float64) *ROIPool3DOp {
	return ops.NewROIPool3DOp(input, rois, output, argmax,
		pooledD, pooledH, pooledW, spatialScale, depthScale)
}
