// Package ops defines the differentiable-operation contract the pooling
// operators expose to a graph executor.
//
// Each operation records its inputs and output during the forward pass,
// and computes input gradients during the backward pass. The executor
// (external to this module) owns scheduling and gradient bookkeeping.
package ops

import "github.com/born-ml/roipool3d/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns a slice of gradients corresponding to each input tensor.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}
