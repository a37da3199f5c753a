package ops

import (
	"github.com/born-ml/roipool3d/internal/tensor"
)

// ROIPool3DOp records a 3D ROI max pooling operation for autodiff.
//
// Forward:
//
//	output[n,c,pd,ph,pw] = max of input[batch(n), c, bin(pd,ph,pw)]
//
// Backward:
//   - Gradients flow only to the input element each bin selected (its
//     recorded argmax); every other element in the bin receives zero.
//   - An element selected by bins of several overlapping regions sums
//     their contributions.
//
// The region list is an operation attribute, not a differentiable input:
// region coordinates receive no gradient.
type ROIPool3DOp struct {
	input  *tensor.RawTensor
	rois   *tensor.RawTensor
	output *tensor.RawTensor
	argmax []int // Flat in-volume indices of max positions for gradient routing

	pooledD, pooledH, pooledW int
	spatialScale, depthScale  float64
}

// NewROIPool3DOp creates a new ROIPool3D operation.
//
// argmax must be the selection index the forward pass produced for this
// exact (input, rois, pooled shape, scales) combination; without it the
// backward pass cannot route gradients.
func NewROIPool3DOp(input, rois, output *tensor.RawTensor, argmax []int,
	pooledD, pooledH, pooledW int, spatialScale, depthScale float64) *ROIPool3DOp {
	return &ROIPool3DOp{
		input:        input,
		rois:         rois,
		output:       output,
		argmax:       argmax,
		pooledD:      pooledD,
		pooledH:      pooledH,
		pooledW:      pooledW,
		spatialScale: spatialScale,
		depthScale:   depthScale,
	}
}

// Inputs returns the differentiable input tensors.
func (op *ROIPool3DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *ROIPool3DOp) Output() *tensor.RawTensor {
	return op.output
}

// Argmax returns the recorded selection index (one entry per output
// element; -1 marks an empty bin).
func (op *ROIPool3DOp) Argmax() []int {
	return op.argmax
}

// Backward computes the input gradient.
//
// This implements the subgradient of the per-bin max:
//
//	∂max(x_i)/∂x_j = 1 if j = argmax(x_i), else 0
//
// This is pure orchestration - delegates computation to the backend.
func (op *ROIPool3DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inputGrad := backend.ROIPool3DBackward(outputGrad, op.rois, op.argmax,
		op.input.Shape(), op.pooledD, op.pooledH, op.pooledW,
		op.spatialScale, op.depthScale)

	return []*tensor.RawTensor{inputGrad}
}
