package tensor

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for region pooling operations.
//
// Implementations:
//   - CPU: Pure Go with optional goroutine parallelism
//   - GPU backends (CUDA, Vulkan, Metal): Phase 2
type Backend interface {
	// ROIPool3D performs adaptive 3D region-of-interest max pooling.
	//
	// input has shape [N, C, D, H, W]; rois has shape [R, 7] with rows
	// (batchIndex, x1, y1, z1, x2, y2, z2) in unscaled coordinates.
	// Returns the pooled output [R, C, Pd, Ph, Pw] and one argmax entry per
	// output element: the flat in-volume coordinate d*H*W + h*W + w of the
	// selected maximum, or -1 for an empty bin.
	ROIPool3D(input, rois *RawTensor, pooledD, pooledH, pooledW int,
		spatialScale, depthScale float64) (*RawTensor, []int)

	// ROIPool3DBackward routes the output gradient back to the input
	// elements recorded in argmax, accumulating across regions.
	// Returns the input gradient with shape inputShape.
	ROIPool3DBackward(gradOutput, rois *RawTensor, argmax []int,
		inputShape Shape, pooledD, pooledH, pooledW int,
		spatialScale, depthScale float64) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
