package tensor

// mockBackend is a minimal Backend for tensor-level tests.
// The pooling methods are never exercised here.
type mockBackend struct{}

func (m *mockBackend) ROIPool3D(input, rois *RawTensor, pooledD, pooledH, pooledW int,
	spatialScale, depthScale float64) (*RawTensor, []int) {
	panic("not implemented in mock")
}

func (m *mockBackend) ROIPool3DBackward(gradOutput, rois *RawTensor, argmax []int,
	inputShape Shape, pooledD, pooledH, pooledW int,
	spatialScale, depthScale float64) *RawTensor {
	panic("not implemented in mock")
}

func (m *mockBackend) Name() string   { return "Mock" }
func (m *mockBackend) Device() Device { return CPU }
