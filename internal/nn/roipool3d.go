package nn

import (
	"fmt"

	"github.com/born-ml/roipool3d/internal/autodiff/ops"
	"github.com/born-ml/roipool3d/internal/roi"
	"github.com/born-ml/roipool3d/internal/tensor"
)

// ROIPool3D is a 3D region-of-interest max pooling layer.
//
// The layer reduces each region of a volumetric feature map to a fixed
// [Pd, Ph, Pw] grid by adaptive max pooling. Unlike Conv layers it has no
// learnable parameters.
//
// Input shape:  [batch, channels, depth, height, width]
// Output shape: [regions, channels, Pd, Ph, Pw]
//
// Region coordinates are given in the original image/volume space; the
// layer's scale factors convert them into feature-map coordinates
// (spatialScale for x/y, depthScale for z). For a feature map downsampled
// 8x in-plane and 4x in depth, use spatialScale=1.0/8 and depthScale=1.0/4.
//
// Example:
//
//	pool := nn.NewROIPool3D(4, 4, 4, 1.0/8, 1.0/4, backend)
//	output, op := pool.Forward(features, regions)
//	// op.Backward(...) routes gradients during the backward pass.
type ROIPool3D[B tensor.Backend] struct {
	pooledD, pooledH, pooledW int
	spatialScale, depthScale  float64
	backend                   B
}

// NewROIPool3D creates a new 3D ROI max pooling layer.
//
// The constructor guards the invariants the kernels leave unchecked:
// pooled extents must be strictly positive and scale factors positive.
func NewROIPool3D[B tensor.Backend](pooledD, pooledH, pooledW int,
	spatialScale, depthScale float64, backend B) *ROIPool3D[B] {
	if err := roi.ValidatePooledShape(pooledD, pooledH, pooledW); err != nil {
		panic(fmt.Sprintf("roipool3d: %v", err))
	}
	if spatialScale <= 0 || depthScale <= 0 {
		panic(fmt.Sprintf("roipool3d: scale factors must be positive, got xy=%g z=%g",
			spatialScale, depthScale))
	}

	return &ROIPool3D[B]{
		pooledD:      pooledD,
		pooledH:      pooledH,
		pooledW:      pooledW,
		spatialScale: spatialScale,
		depthScale:   depthScale,
		backend:      backend,
	}
}

// Forward performs the forward pass.
//
// Returns the pooled output and the recorded operation; the operation
// carries the selection index a graph executor needs to route gradients
// back through this layer.
func (m *ROIPool3D[B]) Forward(input *tensor.Tensor[float32, B], regions []roi.Region) (*tensor.Tensor[float32, B], *ops.ROIPool3DOp) {
	inputShape := input.Shape()
	if len(inputShape) != 5 {
		panic(fmt.Sprintf("roipool3d: expected 5D input [N,C,D,H,W], got %dD", len(inputShape)))
	}
	if err := roi.Validate(regions, inputShape[0]); err != nil {
		panic(fmt.Sprintf("roipool3d: %v", err))
	}

	rois, err := roi.Pack(regions, input.DType(), m.backend.Device())
	if err != nil {
		panic(fmt.Sprintf("roipool3d: %v", err))
	}

	outputRaw, argmax := m.backend.ROIPool3D(input.Raw(), rois,
		m.pooledD, m.pooledH, m.pooledW, m.spatialScale, m.depthScale)

	op := ops.NewROIPool3DOp(input.Raw(), rois, outputRaw, argmax,
		m.pooledD, m.pooledH, m.pooledW, m.spatialScale, m.depthScale)

	return tensor.New[float32, B](outputRaw, m.backend), op
}

// Parameters returns all trainable parameters (empty for ROIPool3D).
func (m *ROIPool3D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{}
}

// String returns a string representation of the layer.
func (m *ROIPool3D[B]) String() string {
	return fmt.Sprintf("ROIPool3D(pooled=%dx%dx%d, spatial_scale=%g, depth_scale=%g)",
		m.pooledD, m.pooledH, m.pooledW, m.spatialScale, m.depthScale)
}

// OutputShape computes the output shape for a given region count and
// channel count.
func (m *ROIPool3D[B]) OutputShape(numRegions, channels int) tensor.Shape {
	return tensor.Shape{numRegions, channels, m.pooledD, m.pooledH, m.pooledW}
}
